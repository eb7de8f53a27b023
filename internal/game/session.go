package game

import (
	"context"
	"errors"

	"github.com/annel0/lerocia/internal/eventbus"
	"github.com/annel0/lerocia/internal/persistence"
	"github.com/annel0/lerocia/internal/protocol"
	"github.com/annel0/lerocia/internal/session"
	"github.com/annel0/lerocia/internal/world"
)

// OnConnect регистрирует соединение и запрашивает у клиента имя
func (w *World) OnConnect(conn session.ConnID) error {
	if err := w.sessions.Connect(conn); err != nil {
		return err
	}
	var roster []protocol.RosterEntry
	for _, e := range w.sessions.Roster() {
		roster = append(roster, protocol.RosterEntry{Name: e.Name, ID: e.CharacterID})
	}
	w.send(conn, protocol.AskName(uint32(conn), roster))
	w.log.Info("Соединение %d открыто", conn)
	return nil
}

type loadedCharacter struct {
	stats persistence.StatsRecord
	items []int
	fresh bool
}

// OnNameDeclared привязывает соединение к персонажу и загружает его из хранилища.
// Персонаж появляется в мире, когда загрузка вернётся в тиковый цикл.
func (w *World) OnNameDeclared(conn session.ConnID, name string, characterID int) error {
	if _, ok := w.sessions.State(conn); !ok {
		return session.ErrUnknownConn
	}
	if characterID < 0 {
		return reject(protocol.CmdNameIs, "invalid character id %d", characterID)
	}
	if _, exists := w.store.Lookup(characterID); exists {
		return reject(protocol.CmdNameIs, "character %d is already in the world", characterID)
	}
	if err := w.sessions.Bind(conn, characterID, name); err != nil {
		if errors.Is(err, session.ErrAlreadyBound) || errors.Is(err, session.ErrCharacterBusy) {
			return reject(protocol.CmdNameIs, "%v", err)
		}
		return err
	}

	persistence.Call(w.gw, "LoadCharacter", characterID, func(ctx context.Context, s persistence.Store) (loadedCharacter, error) {
		var out loadedCharacter
		stats, err := s.GetStatsForCharacter(ctx, characterID)
		switch {
		case errors.Is(err, persistence.ErrNotFound):
			out.fresh = true
		case err != nil:
			return out, err
		default:
			out.stats = stats
		}
		items, err := s.GetItemsForCharacter(ctx, characterID)
		if err != nil && !errors.Is(err, persistence.ErrNotFound) {
			return out, err
		}
		out.items = items
		return out, nil
	}, func(l loadedCharacter, err error) {
		w.finishLoad(conn, characterID, name, l, err)
	})
	return nil
}

func (w *World) finishLoad(conn session.ConnID, characterID int, name string, l loadedCharacter, err error) {
	st, ok := w.sessions.State(conn)
	if bound, _ := w.sessions.CharacterOf(conn); !ok || st != session.StateLoading || bound != characterID {
		w.log.Debug("Загрузка персонажа %d для закрытого соединения %d отброшена", characterID, conn)
		return
	}
	if err != nil {
		w.abortLoad(conn, characterID, "load failed")
		return
	}

	stats := world.DefaultStats()
	if !l.fresh {
		stats = statsFromRecord(l.stats)
	}
	p := world.NewPlayer(characterID, name, stats)
	p.Position = w.spawnPoint()
	p.Inventory = w.knownItems(characterID, l.items)
	sanitizeEquipment(p, w.store.Catalog())

	if err := w.store.Insert(p); err != nil {
		w.log.Warn("Персонаж %d не добавлен: %v", characterID, err)
		w.abortLoad(conn, characterID, "character id in use")
		return
	}
	if err := w.sessions.MarkReady(conn); err != nil {
		_ = w.store.Remove(characterID)
		w.log.Warn("Соединение %d: %v", conn, err)
		return
	}

	w.send(conn, w.itemsMessage())
	w.send(conn, w.npcsMessage())
	w.send(conn, w.bodiesMessage())
	w.send(conn, protocol.Inventory(p.Inventory))
	w.broadcast(protocol.Connected(characterRecord(p)))

	if l.fresh {
		w.persistStats(p)
	}
	w.events.Emit(eventbus.TypePlayerJoined, eventbus.PriorityLow, eventbus.PlayerJoined{
		CharacterID: characterID, Name: name, ConnID: uint32(conn),
	})
	w.log.Info("Игрок %s (%d) вошёл через соединение %d", name, characterID, conn)
}

// abortLoad возвращает соединение в ожидание имени
func (w *World) abortLoad(conn session.ConnID, characterID int, reason string) {
	w.log.Warn("Вход персонажа %d через соединение %d отклонён: %s", characterID, conn, reason)
	_, _, _ = w.sessions.Disconnect(conn)
	_ = w.sessions.Connect(conn)
	w.send(conn, protocol.ErrorReply(protocol.CmdNameIs, reason))
}

// OnDisconnect сохраняет характеристики, убирает персонажа из мира и рассылает DC.
// Запросы к хранилищу, уже стоящие в очереди, не отменяются.
func (w *World) OnDisconnect(conn session.ConnID) error {
	state, characterID, err := w.sessions.Disconnect(conn)
	if err != nil {
		return err
	}
	w.log.Info("Соединение %d закрыто (%s)", conn, state)

	switch state {
	case session.StateReady:
		if c, ok := w.store.Lookup(characterID); ok {
			w.persistStats(c)
			_ = w.store.Remove(characterID)
		}
		w.logout(characterID)
		w.broadcast(protocol.Disconnected(characterID))
		w.events.Emit(eventbus.TypePlayerLeft, eventbus.PriorityLow, eventbus.PlayerLeft{
			CharacterID: characterID, ConnID: uint32(conn),
		})
	case session.StateLoading:
		w.logout(characterID)
	}
	return nil
}

func (w *World) logout(characterID int) {
	w.persist("Logout", characterID, func(ctx context.Context, s persistence.Store) error {
		return s.Logout(ctx, characterID)
	})
}

func (w *World) itemsMessage() string {
	items := w.store.WorldItems()
	recs := make([]protocol.WorldItemRecord, len(items))
	for i, it := range items {
		recs[i] = worldItemRecord(it)
	}
	return protocol.Items(recs)
}

func (w *World) npcsMessage() string {
	npcs := w.store.NPCs()
	recs := make([]protocol.CharacterRecord, len(npcs))
	for i, c := range npcs {
		recs[i] = characterRecord(c)
	}
	return protocol.NPCs(recs)
}

func (w *World) bodiesMessage() string {
	bodies := w.store.Bodies()
	recs := make([]protocol.BodyRecord, len(bodies))
	for i, c := range bodies {
		recs[i] = bodyRecord(c)
	}
	return protocol.Bodies(recs)
}
