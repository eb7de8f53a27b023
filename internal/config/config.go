package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервера.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Game        GameConfig        `yaml:"game"`
	NPC         NPCConfig         `yaml:"npc"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	EventBus    EventBusConfig    `yaml:"eventbus"`
	API         APIConfig         `yaml:"api"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Log         LogConfig         `yaml:"log"`
}

type ServerConfig struct {
	KCPPort           int           `yaml:"kcp_port" env:"LEROCIA_KCP_PORT"`
	UDPPort           int           `yaml:"udp_port" env:"LEROCIA_UDP_PORT"`
	TickInterval      time.Duration `yaml:"tick_interval" env:"LEROCIA_TICK_INTERVAL"`
	BroadcastInterval time.Duration `yaml:"broadcast_interval" env:"LEROCIA_BROADCAST_INTERVAL"`
	MaxConnections    int           `yaml:"max_connections" env:"LEROCIA_MAX_CONNECTIONS"`
	// CompressThreshold кадры длиннее этого размера сжимаются zstd; 0 отключает сжатие
	CompressThreshold int `yaml:"compress_threshold" env:"LEROCIA_COMPRESS_THRESHOLD"`
}

// Политики смерти игрока
const (
	DeathPolicyBody         = "body"
	DeathPolicyAwaitRespawn = "await_respawn"
)

type GameConfig struct {
	SpawnPoint     [3]float64 `yaml:"spawn_point"`
	DeathPolicy    string     `yaml:"player_death_policy" env:"LEROCIA_DEATH_POLICY"`
	MaxHitDistance float64    `yaml:"max_hit_distance" env:"LEROCIA_MAX_HIT_DISTANCE"`
	BodySuffix     string     `yaml:"body_suffix"`
}

type NPCConfig struct {
	StoppingDistance    float64       `yaml:"stopping_distance"`
	AttackDelay         time.Duration `yaml:"attack_delay"`
	AttackCooldown      time.Duration `yaml:"attack_cooldown"`
	ProbeRange          float64       `yaml:"probe_range"`
	Speed               float64       `yaml:"speed"`
	DefaultLookRadius   float64       `yaml:"default_look_radius"`
	DefaultRespawnDelay time.Duration `yaml:"default_respawn_delay"`
	// TieBreak правило выбора между равноудалёнными целями
	TieBreak string `yaml:"tie_break" env:"LEROCIA_NPC_TIE_BREAK"`
}

// Правила выбора цели
const (
	TieBreakFirstSeen = "first_seen"
	TieBreakLastSeen  = "last_seen"
)

// Бэкенды хранилища
const (
	BackendHTTP   = "http"
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendMaria  = "maria"
)

type PersistenceConfig struct {
	Backend     string        `yaml:"backend" env:"LEROCIA_PERSISTENCE_BACKEND"`
	Workers     int           `yaml:"workers" env:"LEROCIA_PERSISTENCE_WORKERS"`
	CallTimeout time.Duration `yaml:"call_timeout" env:"LEROCIA_PERSISTENCE_TIMEOUT"`
	HTTPBaseURL string        `yaml:"http_base_url" env:"LEROCIA_HTTP_BASE_URL"`
	BadgerDir   string        `yaml:"badger_dir" env:"LEROCIA_BADGER_DIR"`
	MariaDSN    string        `yaml:"maria_dsn" env:"LEROCIA_MARIA_DSN"`
	SeedFile    string        `yaml:"seed_file" env:"LEROCIA_SEED_FILE"`
	Redis       RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Enabled bool          `yaml:"enabled" env:"LEROCIA_REDIS_ENABLED"`
	Addr    string        `yaml:"addr" env:"LEROCIA_REDIS_ADDR"`
	DB      int           `yaml:"db"`
	TTL     time.Duration `yaml:"ttl"`
}

type CatalogConfig struct {
	Path string `yaml:"path" env:"LEROCIA_CATALOG"`
}

// Типы шины событий
const (
	BusMemory    = "memory"
	BusJetStream = "jetstream"
)

type EventBusConfig struct {
	Type      string `yaml:"type" env:"LEROCIA_EVENTBUS"`
	URL       string `yaml:"url" env:"LEROCIA_NATS_URL"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

type APIConfig struct {
	Enabled       bool   `yaml:"enabled" env:"LEROCIA_API_ENABLED"`
	Port          int    `yaml:"port" env:"LEROCIA_REST_PORT"`
	AdminUser     string `yaml:"admin_user"`
	AdminPassHash string `yaml:"admin_password_hash" env:"LEROCIA_ADMIN_PASSWORD_HASH"`
	JWTSecret     string `yaml:"jwt_secret" env:"LEROCIA_JWT_SECRET"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"LEROCIA_OTEL_ENABLED"`
	Endpoint    string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `yaml:"service_name"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
	Dir    string `yaml:"dir"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			KCPPort:           7777,
			UDPPort:           7778,
			TickInterval:      50 * time.Millisecond,
			BroadcastInterval: 50 * time.Millisecond,
			MaxConnections:    256,
			CompressThreshold: 1024,
		},
		Game: GameConfig{
			SpawnPoint:  [3]float64{0, 1, 0},
			DeathPolicy: DeathPolicyBody,
			BodySuffix:  "'s body",
		},
		NPC: NPCConfig{
			StoppingDistance:    2,
			AttackDelay:         500 * time.Millisecond,
			AttackCooldown:      1500 * time.Millisecond,
			ProbeRange:          3,
			Speed:               3.5,
			DefaultLookRadius:   10,
			DefaultRespawnDelay: 30 * time.Second,
			TieBreak:            TieBreakFirstSeen,
		},
		Persistence: PersistenceConfig{
			Backend:     BackendMemory,
			Workers:     4,
			CallTimeout: 5 * time.Second,
			HTTPBaseURL: "http://localhost/lerocia",
			BadgerDir:   "data/badger",
			Redis: RedisConfig{
				Addr: "localhost:6379",
				TTL:  10 * time.Minute,
			},
		},
		EventBus: EventBusConfig{
			Type:      BusMemory,
			URL:       "nats://localhost:4222",
			Stream:    "LEROCIA",
			Retention: 24,
		},
		API: APIConfig{
			Port:      8088,
			AdminUser: "admin",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "lerocia-server",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load читает YAML поверх значений по умолчанию и применяет переменные окружения.
// Если path == "", используется ENV GAME_CONFIG; если и он пуст, файл не читается.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("GAME_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("чтение конфига %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("разбор конфига %s: %w", path, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if v := os.Getenv("LEROCIA_SPAWN_POINT"); v != "" {
		p, err := parseTriple(v)
		if err != nil {
			return nil, fmt.Errorf("LEROCIA_SPAWN_POINT: %w", err)
		}
		cfg.Game.SpawnPoint = p
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность значений.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.TickInterval <= 0 {
		errs = append(errs, errors.New("server.tick_interval должен быть > 0"))
	}
	if c.Server.BroadcastInterval <= 0 {
		errs = append(errs, errors.New("server.broadcast_interval должен быть > 0"))
	}
	switch c.Game.DeathPolicy {
	case DeathPolicyBody, DeathPolicyAwaitRespawn:
	default:
		errs = append(errs, fmt.Errorf("неизвестная game.player_death_policy %q", c.Game.DeathPolicy))
	}
	switch c.NPC.TieBreak {
	case TieBreakFirstSeen, TieBreakLastSeen:
	default:
		errs = append(errs, fmt.Errorf("неизвестный npc.tie_break %q", c.NPC.TieBreak))
	}
	switch c.Persistence.Backend {
	case BackendHTTP, BackendMemory, BackendBadger, BackendMaria:
	default:
		errs = append(errs, fmt.Errorf("неизвестный persistence.backend %q", c.Persistence.Backend))
	}
	if c.Persistence.Backend == BackendMaria && c.Persistence.MariaDSN == "" {
		errs = append(errs, errors.New("persistence.maria_dsn обязателен для backend maria"))
	}
	if c.Persistence.Workers <= 0 {
		errs = append(errs, errors.New("persistence.workers должен быть > 0"))
	}
	switch c.EventBus.Type {
	case BusMemory, BusJetStream:
	default:
		errs = append(errs, fmt.Errorf("неизвестный eventbus.type %q", c.EventBus.Type))
	}
	if c.API.Enabled && c.API.JWTSecret == "" {
		errs = append(errs, errors.New("api.jwt_secret обязателен при включённом API"))
	}
	return errors.Join(errs...)
}

func parseTriple(s string) ([3]float64, error) {
	var out [3]float64
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return out, fmt.Errorf("ожидалось 3 координаты: %q", s)
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, err
		}
		out[i] = f
	}
	return out, nil
}
