package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/lerocia/internal/api"
	"github.com/annel0/lerocia/internal/auth"
	"github.com/annel0/lerocia/internal/cache"
	"github.com/annel0/lerocia/internal/config"
	"github.com/annel0/lerocia/internal/eventbus"
	"github.com/annel0/lerocia/internal/game"
	"github.com/annel0/lerocia/internal/logging"
	"github.com/annel0/lerocia/internal/metrics"
	"github.com/annel0/lerocia/internal/network"
	"github.com/annel0/lerocia/internal/observability"
	"github.com/annel0/lerocia/internal/persistence"
	"github.com/annel0/lerocia/internal/storage"
	"github.com/annel0/lerocia/internal/world"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию $GAME_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Ошибка конфигурации: %v", err)
	}
	if err := logging.InitLogger(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Dir: cfg.Log.Dir}); err != nil {
		log.Fatalf("Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseLogger()

	if err := run(cfg); err != nil {
		logging.Error("Сервер остановлен с ошибкой: %v", err)
		logging.CloseLogger()
		os.Exit(1)
	}
	logging.Info("Сервер успешно остановлен")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info("Запуск сервера: KCP=%d UDP=%d, тик %s, хранилище %s",
		cfg.Server.KCPPort, cfg.Server.UDPPort, cfg.Server.TickInterval, cfg.Persistence.Backend)

	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("телеметрия: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logging.Warn("Остановка телеметрии: %v", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.New("lerocia", reg)
	if err != nil {
		return fmt.Errorf("метрики: %w", err)
	}

	catalog := world.DefaultCatalog()
	if cfg.Catalog.Path != "" {
		if catalog, err = world.LoadCatalog(cfg.Catalog.Path); err != nil {
			return fmt.Errorf("каталог предметов: %w", err)
		}
	}

	store, err := openStore(cfg.Persistence)
	if err != nil {
		return err
	}
	gw := persistence.NewGateway(store, persistence.Options{
		Workers:  cfg.Persistence.Workers,
		Timeout:  cfg.Persistence.CallTimeout,
		Observer: collector,
	})

	bus, err := openBus(cfg.EventBus)
	if err != nil {
		_ = gw.Close()
		return err
	}
	defer bus.Close()
	exporter := eventbus.NewMetricsExporter(bus, reg)
	exporter.Start()
	defer exporter.Stop()
	if logging.IsDebug() {
		if sub, err := eventbus.StartLoggingListener(bus); err != nil {
			logging.Warn("Логирование событий недоступно: %v", err)
		} else {
			defer sub.Unsubscribe()
		}
	}

	w := game.New(game.Deps{
		Config:  cfg,
		Catalog: catalog,
		Gateway: gw,
		Events:  eventbus.NewPublisher(bus),
		Metrics: collector,
	})
	if err := w.Bootstrap(ctx); err != nil {
		_ = gw.Close()
		return fmt.Errorf("загрузка мира: %w", err)
	}

	transport, err := network.NewTransport(cfg.Server, w, collector)
	if err != nil {
		_ = gw.Close()
		return err
	}
	w.SetBroadcaster(transport)
	if err := transport.Start(); err != nil {
		_ = gw.Close()
		return err
	}

	var rest *api.RestServer
	if cfg.API.Enabled {
		if rest, err = startAPI(cfg.API, w, reg); err != nil {
			transport.Stop()
			_ = gw.Close()
			return err
		}
	}

	tickCtx, cancelTick := context.WithCancel(context.Background())
	tickDone := make(chan error, 1)
	go func() { tickDone <- w.Run(tickCtx) }()
	logging.Info("Сервер готов принимать соединения")

	<-ctx.Done()
	logging.Info("Получен сигнал завершения, останавливаемся...")

	// Транспорт останавливается первым: события отключения попадают в очередь тика,
	// и Run успевает вывести игроков из мира до закрытия шлюза.
	if rest != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rest.Stop(stopCtx); err != nil {
			logging.Warn("Остановка REST API: %v", err)
		}
		cancel()
	}
	transport.Stop()
	cancelTick()
	if err := <-tickDone; err != nil && !errors.Is(err, context.Canceled) {
		logging.Error("Тиковый цикл: %v", err)
	}

	if rc, ok := store.(*cache.RedisCache); ok {
		m := rc.GetMetrics()
		logging.Info("Redis кеш: запросов %d, попаданий %.1f%%, ошибок %d", m.TotalRequests, m.HitRatio*100, m.Errors)
	}
	return gw.Close()
}

// openStore открывает бэкенд и при необходимости оборачивает его Redis кешем
func openStore(cfg config.PersistenceConfig) (persistence.Store, error) {
	store, err := storage.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("хранилище %s: %w", cfg.Backend, err)
	}
	if !cfg.Redis.Enabled {
		return store, nil
	}
	cached, err := cache.NewRedisCache(cache.CacheConfig{
		RedisURL: cfg.Redis.Addr,
		RedisDB:  cfg.Redis.DB,
		TTL:      cfg.Redis.TTL,
	}, store)
	if err != nil {
		// Без кеша сервер работает напрямую с хранилищем
		logging.Warn("Redis недоступен, кеш отключён: %v", err)
		return store, nil
	}
	return cached, nil
}

func openBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	switch cfg.Type {
	case config.BusJetStream:
		bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
		if err != nil {
			return nil, fmt.Errorf("JetStream %s: %w", cfg.URL, err)
		}
		return bus, nil
	default:
		return eventbus.NewMemoryBus(1024), nil
	}
}

func startAPI(cfg config.APIConfig, w *game.World, reg *prometheus.Registry) (*api.RestServer, error) {
	issuer, err := auth.NewIssuer(cfg.JWTSecret, 12*time.Hour)
	if err != nil {
		return nil, err
	}
	users := auth.NewMemoryUserRepo()
	if cfg.AdminPassHash == "" {
		logging.Warn("api.admin_password_hash не задан: вход в REST API недоступен")
	} else if _, err := users.CreateUser(cfg.AdminUser, cfg.AdminPassHash, true); err != nil {
		return nil, err
	}

	rest, err := api.NewRestServer(api.Config{
		Addr:     fmt.Sprintf(":%d", cfg.Port),
		Users:    users,
		Issuer:   issuer,
		World:    w,
		Registry: reg,
	})
	if err != nil {
		return nil, err
	}
	if err := rest.Start(); err != nil {
		return nil, err
	}
	return rest, nil
}
