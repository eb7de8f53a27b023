// Package metrics экспортирует показатели сервера в Prometheus.
package metrics

import (
	"time"

	"github.com/annel0/lerocia/internal/game"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector метрики тикового цикла, хранилища и транспорта.
// Реализует game.Metrics и persistence.Observer.
type Collector struct {
	tickDuration prometheus.Histogram
	commands     *prometheus.CounterVec
	connections  *prometheus.GaugeVec
	entities     *prometheus.GaugeVec

	persistDuration *prometheus.HistogramVec
	persistErrors   *prometheus.CounterVec

	bytes    *prometheus.CounterVec
	frames   *prometheus.CounterVec
	rejected prometheus.Counter
}

// New создаёт метрики и регистрирует их в reg
func New(namespace string, reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Длительность одного тика.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Команды клиентов по результату обработки.",
		}, []string{"command", "class"}),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Соединения по этапам.",
		}, []string{"state"}),
		entities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities",
			Help:      "Сущности мира по видам.",
		}, []string{"kind"}),
		persistDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "persistence_duration_seconds",
			Help:      "Длительность вызовов хранилища.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		persistErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_errors_total",
			Help:      "Неудачные вызовы хранилища.",
		}, []string{"op"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "network_bytes_total",
			Help:      "Байты по каналу и направлению.",
		}, []string{"channel", "direction"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "network_frames_total",
			Help:      "Кадры по каналу и направлению.",
		}, []string{"channel", "direction"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "network_rejected_connections_total",
			Help:      "Соединения, отклонённые из-за лимита.",
		}),
	}
	for _, col := range []prometheus.Collector{
		c.tickDuration, c.commands, c.connections, c.entities,
		c.persistDuration, c.persistErrors, c.bytes, c.frames, c.rejected,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) ObserveTick(took time.Duration) {
	c.tickDuration.Observe(took.Seconds())
}

func (c *Collector) ObserveCommand(cmd string, class game.ErrorClass) {
	c.commands.WithLabelValues(cmd, string(class)).Inc()
}

func (c *Collector) SetConnections(pending, loading, ready int) {
	c.connections.WithLabelValues("pending").Set(float64(pending))
	c.connections.WithLabelValues("loading").Set(float64(loading))
	c.connections.WithLabelValues("ready").Set(float64(ready))
}

func (c *Collector) SetEntities(players, npcs, bodies, worldItems int) {
	c.entities.WithLabelValues("player").Set(float64(players))
	c.entities.WithLabelValues("npc").Set(float64(npcs))
	c.entities.WithLabelValues("body").Set(float64(bodies))
	c.entities.WithLabelValues("world_item").Set(float64(worldItems))
}

// ObservePersistence вызывается воркерами шлюза хранилища
func (c *Collector) ObservePersistence(op string, took time.Duration, err error) {
	c.persistDuration.WithLabelValues(op).Observe(took.Seconds())
	if err != nil {
		c.persistErrors.WithLabelValues(op).Inc()
	}
}

// ObserveFrame учитывает кадр транспорта. direction: "in" или "out".
func (c *Collector) ObserveFrame(channel, direction string, size int) {
	c.frames.WithLabelValues(channel, direction).Inc()
	c.bytes.WithLabelValues(channel, direction).Add(float64(size))
}

// ConnectionRejected учитывает отказ по лимиту соединений
func (c *Collector) ConnectionRejected() {
	c.rejected.Inc()
}
