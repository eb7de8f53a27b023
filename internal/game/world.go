// Package game содержит авторитетное ядро сервера: обработчики команд,
// боевые и инвентарные резолверы и тиковый цикл.
//
// Всё состояние World принадлежит одной горутине тика. Транспорт передаёт
// события через Submit, хранилище возвращает результаты через шлюз.
package game

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/annel0/lerocia/internal/config"
	"github.com/annel0/lerocia/internal/eventbus"
	"github.com/annel0/lerocia/internal/logging"
	"github.com/annel0/lerocia/internal/motion"
	"github.com/annel0/lerocia/internal/npc"
	"github.com/annel0/lerocia/internal/persistence"
	"github.com/annel0/lerocia/internal/schedule"
	"github.com/annel0/lerocia/internal/session"
	"github.com/annel0/lerocia/internal/vec"
	"github.com/annel0/lerocia/internal/world"
)

// Broadcaster доставляет закодированные сообщения клиентам
type Broadcaster interface {
	// SendReliable отправляет по надёжному каналу
	SendReliable(conn session.ConnID, msg string)
	// SendUnreliable отправляет по ненадёжному каналу
	SendUnreliable(conn session.ConnID, msg string)
}

// Metrics принимает наблюдения тикового цикла
type Metrics interface {
	ObserveTick(took time.Duration)
	ObserveCommand(cmd string, class ErrorClass)
	SetConnections(pending, loading, ready int)
	SetEntities(players, npcs, bodies, worldItems int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveTick(time.Duration)         {}
func (nopMetrics) ObserveCommand(string, ErrorClass) {}
func (nopMetrics) SetConnections(int, int, int)      {}
func (nopMetrics) SetEntities(int, int, int, int)    {}

// Deps зависимости World
type Deps struct {
	Config  *config.Config
	Catalog *world.Catalog
	Gateway *persistence.Gateway
	Out     Broadcaster
	Events  *eventbus.Publisher
	Metrics Metrics
}

// World контекст тикового цикла, передаваемый всем резолверам
type World struct {
	cfg      *config.Config
	store    *world.Store
	sessions *session.Registry
	gw       *persistence.Gateway
	clock    *schedule.Queue
	nav      *motion.Navigator
	physics  *motion.Physics
	npcs     *npc.Controller
	out      Broadcaster
	events   *eventbus.Publisher
	metrics  Metrics
	log      *logging.Logger

	// dying персонажи, чей труп ещё создаётся в хранилище
	dying map[int]struct{}

	inbox          chan Event
	sinceBroadcast time.Duration
	snapshot       atomic.Pointer[Snapshot]
}

// New собирает World. Config и Gateway обязательны.
func New(d Deps) *World {
	catalog := d.Catalog
	if catalog == nil {
		catalog = world.DefaultCatalog()
	}
	metrics := d.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}

	store := world.NewStore(catalog)
	w := &World{
		cfg:      d.Config,
		store:    store,
		sessions: session.NewRegistry(),
		gw:       d.Gateway,
		clock:    schedule.New(),
		out:      d.Out,
		events:   d.Events,
		metrics:  metrics,
		log:      logging.GetGameLogger(),
		dying:    make(map[int]struct{}),
		inbox:    make(chan Event, inboxSize),
	}
	w.nav = motion.NewNavigator(store, d.Config.NPC.Speed, d.Config.NPC.StoppingDistance)
	w.physics = motion.NewPhysics(store, motion.DefaultCollider)
	w.npcs = npc.NewController(store, w.nav, w.physics, w, w.clock, d.Config.NPC)
	if d.Config.NPC.TieBreak == config.TieBreakLastSeen {
		w.npcs.SetTieBreak(npc.LastSeen)
	}
	w.publishSnapshot()
	return w
}

// SetBroadcaster подключает транспорт. Вызывается до Run: транспорт сам
// передаёт события в World, поэтому создаётся после него.
func (w *World) SetBroadcaster(out Broadcaster) { w.out = out }

// Store возвращает хранилище сущностей. Только для горутины тика и тестов.
func (w *World) Store() *world.Store { return w.store }

// Sessions возвращает реестр соединений. Только для горутины тика и тестов.
func (w *World) Sessions() *session.Registry { return w.sessions }

// Clock возвращает монотонные часы тика
func (w *World) Clock() *schedule.Queue { return w.clock }

// NPCs возвращает контроллер поведения NPC
func (w *World) NPCs() *npc.Controller { return w.npcs }

func (w *World) spawnPoint() vec.Vec3 {
	p := w.cfg.Game.SpawnPoint
	return vec.Vec3{X: p[0], Y: p[1], Z: p[2]}
}

// send отправляет сообщение одному соединению по надёжному каналу
func (w *World) send(conn session.ConnID, msg string) {
	if w.out != nil {
		w.out.SendReliable(conn, msg)
	}
}

// broadcast рассылает сообщение всем готовым клиентам
func (w *World) broadcast(msg string) {
	if w.out == nil {
		return
	}
	for _, conn := range w.sessions.ReadyConnections() {
		w.out.SendReliable(conn, msg)
	}
}

func (w *World) broadcastUnreliable(msg string) {
	if w.out == nil {
		return
	}
	for _, conn := range w.sessions.ReadyConnections() {
		w.out.SendUnreliable(conn, msg)
	}
}

// sendToCharacter отправляет сообщение игроку, если он подключён
func (w *World) sendToCharacter(characterID int, msg string) {
	if conn, ok := w.sessions.ConnOf(characterID); ok && w.sessions.IsReady(characterID) {
		w.send(conn, msg)
	}
}

// persist ставит запись в шлюз без продолжения; ошибки логирует шлюз
func (w *World) persist(op string, key int, fn func(ctx context.Context, s persistence.Store) error) {
	w.gw.Exec(op, key, fn, nil)
}
