package game

import (
	"context"
	"time"

	"github.com/annel0/lerocia/internal/protocol"
	"github.com/annel0/lerocia/internal/session"
)

const inboxSize = 4096

// EventKind тип события транспорта
type EventKind uint8

const (
	EventConnect EventKind = iota
	EventDisconnect
	EventMessage
)

// Event событие транспорта для тикового цикла
type Event struct {
	Kind    EventKind
	Conn    session.ConnID
	Payload string
}

// Submit передаёт событие в тиковый цикл. Блокируется, пока очередь полна.
func (w *World) Submit(ev Event) {
	w.inbox <- ev
}

// TrySubmit передаёт событие без ожидания; false если очередь полна.
// Для ненадёжного канала, где потеря кадра допустима.
func (w *World) TrySubmit(ev Event) bool {
	select {
	case w.inbox <- ev:
		return true
	default:
		return false
	}
}

func (w *World) handleEvent(ev Event) {
	switch ev.Kind {
	case EventConnect:
		if err := w.OnConnect(ev.Conn); err != nil {
			w.log.Warn("Соединение %d: %v", ev.Conn, err)
		}
	case EventDisconnect:
		if err := w.OnDisconnect(ev.Conn); err != nil {
			w.log.Warn("Соединение %d: %v", ev.Conn, err)
		}
	case EventMessage:
		w.dispatch(ev.Conn, ev.Payload)
	}
}

// drainInbox обрабатывает события, накопленные к началу тика
func (w *World) drainInbox() int {
	n := len(w.inbox)
	for i := 0; i < n; i++ {
		w.handleEvent(<-w.inbox)
	}
	return n
}

// Step выполняет один тик: результаты хранилища, события транспорта,
// отложенные продолжения и NPC, возрождения, затем рассылка положений.
func (w *World) Step(dt time.Duration) {
	start := time.Now()

	w.gw.Drain()
	w.drainInbox()

	w.clock.Advance(dt)
	w.npcs.Step()
	w.nav.Step(dt, w.clock.Now())
	w.checkRespawns()

	w.sinceBroadcast += dt
	if w.sinceBroadcast >= w.cfg.Server.BroadcastInterval {
		w.sinceBroadcast = 0
		w.BroadcastPositions()
		w.publishSnapshot()
	}

	w.metrics.ObserveTick(time.Since(start))
	w.metrics.SetConnections(w.sessions.Counts())
	w.metrics.SetEntities(len(w.store.Players()), len(w.store.NPCs()), len(w.store.Bodies()), len(w.store.WorldItems()))
}

// BroadcastPositions рассылает ASKPOSITION по ненадёжному каналу.
// В кадр попадают только игроки с готовым соединением и живые NPC.
func (w *World) BroadcastPositions() {
	var frame []protocol.TransformRecord
	for _, c := range w.store.Characters() {
		switch {
		case c.NPC != nil:
			if !c.Alive() {
				continue
			}
		case w.sessions.IsReady(c.ID):
		default:
			continue
		}
		frame = append(frame, protocol.TransformRecord{
			ID:       c.ID,
			Position: c.Position,
			Rotation: c.Rotation,
			MoveTime: c.MoveTime,
		})
	}
	w.broadcastUnreliable(protocol.AskPosition(frame))
}

// Run крутит тиковый цикл до отмены ctx
func (w *World) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Server.TickInterval)
	defer ticker.Stop()
	w.log.Info("Тиковый цикл запущен: тик %s, рассылка %s", w.cfg.Server.TickInterval, w.cfg.Server.BroadcastInterval)

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			w.Shutdown()
			return ctx.Err()
		case now := <-ticker.C:
			w.Step(now.Sub(last))
			last = now
		}
	}
}

// Shutdown сохраняет характеристики всех игроков и выходит из них.
// Вызывается из горутины тика перед закрытием шлюза.
func (w *World) Shutdown() {
	w.gw.Drain()
	w.drainInbox()
	for _, conn := range w.sessions.Connections() {
		if err := w.OnDisconnect(conn); err != nil {
			w.log.Warn("Соединение %d: %v", conn, err)
		}
	}
	w.publishSnapshot()
	w.log.Info("Тиковый цикл остановлен")
}
