package storage

import (
	"fmt"

	"github.com/annel0/lerocia/internal/config"
	"github.com/annel0/lerocia/internal/persistence"
)

// Open создаёт хранилище по конфигурации
func Open(cfg config.PersistenceConfig) (persistence.Store, error) {
	var seed *Seed
	if cfg.SeedFile != "" && (cfg.Backend == config.BackendMemory || cfg.Backend == config.BackendBadger) {
		s, err := LoadSeed(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		seed = s
	}

	switch cfg.Backend {
	case config.BackendMemory:
		return NewMemoryStore(seed), nil
	case config.BackendBadger:
		return NewBadgerStore(cfg.BadgerDir, seed)
	case config.BackendMaria:
		return NewMariaStore(cfg.MariaDSN)
	case config.BackendHTTP:
		return NewHTTPStore(cfg.HTTPBaseURL, nil)
	default:
		return nil, fmt.Errorf("неизвестный backend хранилища %q", cfg.Backend)
	}
}
