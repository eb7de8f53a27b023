package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/annel0/lerocia/internal/persistence"
	"github.com/annel0/lerocia/internal/vec"
	"github.com/annel0/lerocia/internal/world"
)

// Bootstrap загружает начальное состояние мира до запуска тикового цикла.
// Выполняется синхронно: сбрасывает входы, затем читает предметы, NPC и трупы.
// Ошибки хранилища и отдельных записей логируются и не прерывают загрузку,
// ошибка возвращается только при отмене ctx.
func (w *World) Bootstrap(ctx context.Context) error {
	s := w.gw.Store()
	call := func(fn func(ctx context.Context) error) error {
		cctx, cancel := context.WithTimeout(ctx, w.cfg.Persistence.CallTimeout)
		defer cancel()
		return fn(cctx)
	}

	if err := call(func(ctx context.Context) error { return s.LogoutAll(ctx) }); err != nil {
		w.log.Error("LogoutAll: %v", err)
	}

	var items []persistence.WorldItemRecord
	if err := call(func(ctx context.Context) (err error) {
		items, err = s.LoadWorldItems(ctx)
		return err
	}); err != nil {
		w.log.Error("LoadWorldItems: %v", err)
	}
	for _, r := range items {
		if err := w.addWorldItem(r); err != nil {
			w.log.Warn("Предмет в мире %d пропущен: %v", r.WorldID, err)
		}
	}

	var npcs []persistence.NPCRecord
	if err := call(func(ctx context.Context) (err error) {
		npcs, err = s.LoadNPCs(ctx)
		return err
	}); err != nil {
		w.log.Error("LoadNPCs: %v", err)
	}
	for _, r := range npcs {
		var owned []int
		var dests []persistence.DestinationRecord
		err := call(func(ctx context.Context) (err error) {
			if owned, err = s.GetItemsForCharacter(ctx, r.ID); err != nil && !errors.Is(err, persistence.ErrNotFound) {
				return err
			}
			dests, err = s.GetDestinationsForNPC(ctx, r.ID)
			if errors.Is(err, persistence.ErrNotFound) {
				err = nil
			}
			return err
		})
		if err != nil {
			w.log.Warn("NPC %d: %v", r.ID, err)
		}
		if err := w.addNPC(r, owned, dests); err != nil {
			w.log.Warn("NPC %d пропущен: %v", r.ID, err)
		}
	}

	var bodies []persistence.BodyRecord
	if err := call(func(ctx context.Context) (err error) {
		bodies, err = s.LoadBodies(ctx)
		return err
	}); err != nil {
		w.log.Error("LoadBodies: %v", err)
	}
	for _, r := range bodies {
		var owned []int
		if err := call(func(ctx context.Context) (err error) {
			owned, err = s.GetItemsForCharacter(ctx, r.ID)
			if errors.Is(err, persistence.ErrNotFound) {
				err = nil
			}
			return err
		}); err != nil {
			w.log.Warn("Труп %d: %v", r.ID, err)
		}
		if err := w.addBody(r, owned); err != nil {
			w.log.Warn("Труп %d пропущен: %v", r.ID, err)
		}
	}

	w.publishSnapshot()
	w.log.Info("Мир загружен: NPC %d, трупов %d, предметов %d",
		len(w.store.NPCs()), len(w.store.Bodies()), len(w.store.WorldItems()))
	return ctx.Err()
}

func (w *World) addWorldItem(r persistence.WorldItemRecord) error {
	if !w.store.Catalog().Known(r.ItemID) {
		return fmt.Errorf("%w: %d", world.ErrUnknownItem, r.ItemID)
	}
	return w.store.InsertWorldItem(world.WorldItem{
		WorldID:  r.WorldID,
		ItemID:   r.ItemID,
		Position: position(r.X, r.Y, r.Z),
	})
}

func (w *World) addNPC(r persistence.NPCRecord, items []int, dests []persistence.DestinationRecord) error {
	personality, err := world.ParsePersonality(r.Personality)
	if err != nil {
		return err
	}
	data := world.NPCData{
		RespawnDelay: seconds(r.RespawnDelay),
		LookRadius:   r.LookRadius,
	}
	if data.RespawnDelay <= 0 {
		data.RespawnDelay = w.cfg.NPC.DefaultRespawnDelay
	}
	if data.LookRadius <= 0 {
		data.LookRadius = w.cfg.NPC.DefaultLookRadius
	}
	for _, d := range dests {
		data.Destinations = append(data.Destinations, world.Destination{
			Position: position(d.X, d.Y, d.Z),
			Dwell:    seconds(d.Duration),
		})
	}

	c := world.NewNPC(r.ID, r.Name, personality, position(r.X, r.Y, r.Z), data)
	c.DialogueID = r.DialogueID
	if rot := (vec.Quat{W: r.RotW, X: r.RotX, Y: r.RotY, Z: r.RotZ}); rot != (vec.Quat{}) {
		c.Rotation = rot
	}
	c.Stats = statsFromRecord(r.StatsRecord)
	c.Inventory = w.knownItems(r.ID, items)
	sanitizeEquipment(c, w.store.Catalog())
	return w.store.Insert(c)
}

func (w *World) addBody(r persistence.BodyRecord, items []int) error {
	personality, err := world.ParsePersonality(r.Personality)
	if err != nil {
		personality = world.Passive
	}
	stats := statsFromRecord(r.StatsRecord)
	c := world.NewBody(r.ID, r.Name, personality, position(r.X, r.Y, r.Z), stats, w.knownItems(r.ID, items))
	return w.store.Insert(c)
}
