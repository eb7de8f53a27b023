package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/lerocia/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Observer получает результат каждого вызова хранилища (метрики)
type Observer interface {
	ObservePersistence(op string, took time.Duration, err error)
}

// Options настройки шлюза
type Options struct {
	Workers  int
	Timeout  time.Duration
	Observer Observer
}

type request struct {
	op   string
	key  int
	run  func(ctx context.Context) error
	done func(error)
}

// worker очередь без ограничения длины: Submit из тика никогда не блокируется
type worker struct {
	mu     sync.Mutex
	queue  []request
	notify chan struct{}
}

// Gateway выполняет вызовы хранилища вне тикового цикла.
// Вызовы с одинаковым ключом выполняются строго по порядку отправки.
// Продолжения (done) выполняются только внутри Drain, то есть в тиковом цикле.
type Gateway struct {
	store    Store
	timeout  time.Duration
	observer Observer
	tracer   trace.Tracer
	log      *logging.Logger

	workers []*worker
	wg      sync.WaitGroup
	quit    chan struct{}
	closed  atomic.Bool

	inboxMu sync.Mutex
	inbox   []func()
	ready   chan struct{}

	pending atomic.Int64
}

// NewGateway запускает пул воркеров поверх store
func NewGateway(store Store, opts Options) *Gateway {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	g := &Gateway{
		store:    store,
		timeout:  opts.Timeout,
		observer: opts.Observer,
		tracer:   otel.Tracer("lerocia/persistence"),
		log:      logging.GetPersistenceLogger(),
		quit:     make(chan struct{}),
		ready:    make(chan struct{}, 1),
	}
	for i := 0; i < opts.Workers; i++ {
		w := &worker{notify: make(chan struct{}, 1)}
		g.workers = append(g.workers, w)
		g.wg.Add(1)
		go g.loop(w)
	}
	return g
}

// Store хранилище, на котором работает шлюз
func (g *Gateway) Store() Store {
	return g.store
}

// Pending число вызовов, чьи продолжения ещё не выполнены
func (g *Gateway) Pending() int {
	return int(g.pending.Load())
}

// Ready сигнал о появлении завершённых вызовов
func (g *Gateway) Ready() <-chan struct{} {
	return g.ready
}

func (g *Gateway) submit(req request) {
	if g.closed.Load() {
		g.log.Error("%s(%d): %v", req.op, req.key, ErrClosed)
		return
	}
	g.pending.Add(1)
	idx := req.key % len(g.workers)
	if idx < 0 {
		idx = -idx
	}
	w := g.workers[idx]
	w.mu.Lock()
	w.queue = append(w.queue, req)
	w.mu.Unlock()
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (g *Gateway) loop(w *worker) {
	defer g.wg.Done()
	for {
		w.mu.Lock()
		batch := w.queue
		w.queue = nil
		w.mu.Unlock()

		for _, req := range batch {
			g.execute(req)
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-w.notify:
		case <-g.quit:
			w.mu.Lock()
			rest := w.queue
			w.queue = nil
			w.mu.Unlock()
			for _, req := range rest {
				g.execute(req)
			}
			return
		}
	}
}

func (g *Gateway) execute(req request) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()
	ctx, span := g.tracer.Start(ctx, "persistence."+req.op, trace.WithAttributes(attribute.Int("lerocia.key", req.key)))

	start := time.Now()
	err := req.run(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		err = fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	took := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	if g.observer != nil {
		g.observer.ObservePersistence(req.op, took, err)
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		g.log.Error("%s(%d) за %s: %v", req.op, req.key, took, err)
	} else {
		g.log.Trace("%s(%d) за %s", req.op, req.key, took)
	}

	g.deliver(func() {
		if req.done != nil {
			req.done(err)
		}
	})
}

func (g *Gateway) deliver(fn func()) {
	g.inboxMu.Lock()
	g.inbox = append(g.inbox, fn)
	g.inboxMu.Unlock()
	select {
	case g.ready <- struct{}{}:
	default:
	}
}

// Drain выполняет накопленные продолжения в вызывающей горутине. Возвращает их число.
func (g *Gateway) Drain() int {
	g.inboxMu.Lock()
	batch := g.inbox
	g.inbox = nil
	g.inboxMu.Unlock()

	for _, fn := range batch {
		fn()
		g.pending.Add(-1)
	}
	return len(batch)
}

// Settle дренирует продолжения, пока не останется вызовов в полёте.
// Продолжения могут порождать новые вызовы; они тоже дожидаются.
func (g *Gateway) Settle(ctx context.Context) error {
	for {
		g.Drain()
		if g.Pending() == 0 {
			return nil
		}
		select {
		case <-g.ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close дожидается выполнения очередей и закрывает хранилище.
// Вызывается после остановки тикового цикла; оставшиеся продолжения выполняются здесь же.
func (g *Gateway) Close() error {
	if !g.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(g.quit)
	g.wg.Wait()
	g.Drain()
	return g.store.Close()
}

// Exec ставит в очередь вызов без результата. done выполняется в Drain; может быть nil.
func (g *Gateway) Exec(op string, key int, fn func(ctx context.Context, s Store) error, done func(error)) {
	g.submit(request{
		op:  op,
		key: key,
		run: func(ctx context.Context) error {
			return fn(ctx, g.store)
		},
		done: done,
	})
}

// Call ставит в очередь вызов с результатом. done выполняется в Drain.
func Call[T any](g *Gateway, op string, key int, fn func(ctx context.Context, s Store) (T, error), done func(T, error)) {
	var result T
	g.submit(request{
		op:  op,
		key: key,
		run: func(ctx context.Context) error {
			v, err := fn(ctx, g.store)
			result = v
			return err
		},
		done: func(err error) {
			done(result, err)
		},
	})
}
