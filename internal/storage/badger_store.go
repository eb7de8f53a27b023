package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/annel0/lerocia/internal/persistence"
	"github.com/dgraph-io/badger/v3"
	"github.com/klauspost/compress/zstd"
)

// Префиксы ключей BadgerDB
const (
	prefixWorldItem = "wi:"
	prefixNPC       = "npc:"
	prefixBody      = "body:"
	prefixItems     = "items:"
	prefixStats     = "stats:"
	prefixDest      = "dest:"
	prefixOnline    = "online:"
	keyNextID       = "meta:next_id"

	conflictRetries = 3
)

// BadgerStore реализует persistence.Store поверх встроенной BadgerDB.
// Значения хранятся как JSON, сжатый zstd.
type BadgerStore struct {
	db           *badger.DB
	compressor   *zstd.Encoder
	decompressor *zstd.Decoder
}

// NewBadgerStore открывает базу в dir. Пустой dir открывает базу в памяти.
// seed импортируется только в пустую базу.
func NewBadgerStore(dir string, seed *Seed) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	s := &BadgerStore{db: db, compressor: enc, decompressor: dec}

	if seed != nil {
		empty, err := s.empty()
		if err != nil {
			s.Close()
			return nil, err
		}
		if empty {
			if err := s.importSeed(seed); err != nil {
				s.Close()
				return nil, fmt.Errorf("импорт seed: %w", err)
			}
		}
	}
	return s, nil
}

func (s *BadgerStore) empty() (bool, error) {
	empty := true
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		defer it.Close()
		it.Rewind()
		empty = !it.Valid()
		return nil
	})
	return empty, err
}

func (s *BadgerStore) importSeed(seed *Seed) error {
	mem := NewMemoryStore(seed)
	return s.db.Update(func(txn *badger.Txn) error {
		for id, w := range mem.worldItems {
			if err := s.put(txn, prefixWorldItem+strconv.Itoa(id), w); err != nil {
				return err
			}
		}
		for id, n := range mem.npcs {
			if err := s.put(txn, prefixNPC+strconv.Itoa(id), n); err != nil {
				return err
			}
		}
		for id, b := range mem.bodies {
			if err := s.put(txn, prefixBody+strconv.Itoa(id), b); err != nil {
				return err
			}
		}
		for id, items := range mem.items {
			if err := s.put(txn, prefixItems+strconv.Itoa(id), items); err != nil {
				return err
			}
		}
		for id, st := range mem.stats {
			if err := s.put(txn, prefixStats+strconv.Itoa(id), st); err != nil {
				return err
			}
		}
		for id, d := range mem.destinations {
			if err := s.put(txn, prefixDest+strconv.Itoa(id), d); err != nil {
				return err
			}
		}
		return s.put(txn, keyNextID, mem.nextID)
	})
}

func (s *BadgerStore) put(txn *badger.Txn, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("сериализация %s: %w", key, err)
	}
	return txn.Set([]byte(key), s.compressor.EncodeAll(data, nil))
}

// get читает значение; отсутствие ключа даёт persistence.ErrNotFound
func (s *BadgerStore) get(txn *badger.Txn, key string, v interface{}) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%s: %w", key, persistence.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return s.decode(item, v)
}

func (s *BadgerStore) decode(item *badger.Item, v interface{}) error {
	return item.Value(func(val []byte) error {
		data, err := s.decompressor.DecodeAll(val, nil)
		if err != nil {
			return fmt.Errorf("распаковка %s: %w", item.Key(), err)
		}
		return json.Unmarshal(data, v)
	})
}

func scanPrefix[T any](s *BadgerStore, ctx context.Context, prefix string) ([]T, error) {
	var out []T
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var v T
			if err := s.decode(it.Item(), &v); err != nil {
				return err
			}
			out = append(out, v)
		}
		return nil
	})
	return out, err
}

// update выполняет транзакцию с повтором при конфликте
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < conflictRetries; i++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func (s *BadgerStore) LoadWorldItems(ctx context.Context) ([]persistence.WorldItemRecord, error) {
	return scanPrefix[persistence.WorldItemRecord](s, ctx, prefixWorldItem)
}

func (s *BadgerStore) LoadNPCs(ctx context.Context) ([]persistence.NPCRecord, error) {
	return scanPrefix[persistence.NPCRecord](s, ctx, prefixNPC)
}

func (s *BadgerStore) LoadBodies(ctx context.Context) ([]persistence.BodyRecord, error) {
	return scanPrefix[persistence.BodyRecord](s, ctx, prefixBody)
}

func (s *BadgerStore) GetItemsForCharacter(ctx context.Context, characterID int) ([]int, error) {
	var items []int
	err := s.db.View(func(txn *badger.Txn) error {
		return s.get(txn, prefixItems+strconv.Itoa(characterID), &items)
	})
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, nil
	}
	return items, err
}

func (s *BadgerStore) GetStatsForCharacter(ctx context.Context, characterID int) (persistence.StatsRecord, error) {
	var st persistence.StatsRecord
	found := true
	err := s.update(ctx, func(txn *badger.Txn) error {
		found = true
		if err := txn.Set([]byte(prefixOnline+strconv.Itoa(characterID)), nil); err != nil {
			return err
		}
		err := s.get(txn, prefixStats+strconv.Itoa(characterID), &st)
		if errors.Is(err, persistence.ErrNotFound) {
			// отметка входа сохраняется и для нового персонажа
			found = false
			return nil
		}
		return err
	})
	if err == nil && !found {
		return st, fmt.Errorf("статистика %d: %w", characterID, persistence.ErrNotFound)
	}
	return st, err
}

func (s *BadgerStore) SetStatsForCharacter(ctx context.Context, characterID int, stats persistence.StatsRecord) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return s.put(txn, prefixStats+strconv.Itoa(characterID), stats)
	})
}

func (s *BadgerStore) GetDestinationsForNPC(ctx context.Context, npcID int) ([]persistence.DestinationRecord, error) {
	var dest []persistence.DestinationRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return s.get(txn, prefixDest+strconv.Itoa(npcID), &dest)
	})
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, nil
	}
	return dest, err
}

func (s *BadgerStore) CreateBody(ctx context.Context, body persistence.BodyRecord) (int, error) {
	var id int
	err := s.update(ctx, func(txn *badger.Txn) error {
		next := 0
		if err := s.get(txn, keyNextID, &next); err != nil && !errors.Is(err, persistence.ErrNotFound) {
			return err
		}
		id = next
		body.ID = id
		if err := s.put(txn, prefixBody+strconv.Itoa(id), body); err != nil {
			return err
		}
		if err := s.put(txn, prefixStats+strconv.Itoa(id), body.StatsRecord); err != nil {
			return err
		}
		return s.put(txn, keyNextID, next+1)
	})
	return id, err
}

func (s *BadgerStore) modifyItems(ctx context.Context, characterID int, fn func([]int) ([]int, error)) error {
	key := prefixItems + strconv.Itoa(characterID)
	return s.update(ctx, func(txn *badger.Txn) error {
		var items []int
		if err := s.get(txn, key, &items); err != nil && !errors.Is(err, persistence.ErrNotFound) {
			return err
		}
		items, err := fn(items)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return txn.Delete([]byte(key))
		}
		return s.put(txn, key, items)
	})
}

func (s *BadgerStore) AddItemForCharacter(ctx context.Context, characterID, itemID int) error {
	return s.modifyItems(ctx, characterID, func(items []int) ([]int, error) {
		return append(items, itemID), nil
	})
}

func (s *BadgerStore) DeleteItemForCharacter(ctx context.Context, characterID, itemID int) error {
	return s.modifyItems(ctx, characterID, func(items []int) ([]int, error) {
		for i, id := range items {
			if id == itemID {
				return append(items[:i], items[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("предмет %d у %d: %w", itemID, characterID, persistence.ErrNotFound)
	})
}

func (s *BadgerStore) AddWorldItem(ctx context.Context, item persistence.WorldItemRecord) error {
	key := prefixWorldItem + strconv.Itoa(item.WorldID)
	return s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err == nil {
			return fmt.Errorf("предмет в мире %d уже существует", item.WorldID)
		}
		return s.put(txn, key, item)
	})
}

func (s *BadgerStore) DeleteWorldItem(ctx context.Context, worldID int) error {
	key := []byte(prefixWorldItem + strconv.Itoa(worldID))
	return s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("предмет в мире %d: %w", worldID, persistence.ErrNotFound)
		}
		return txn.Delete(key)
	})
}

func (s *BadgerStore) UpdateInventoryOwnership(ctx context.Context, oldOwner, newOwner int) error {
	oldKey := prefixItems + strconv.Itoa(oldOwner)
	newKey := prefixItems + strconv.Itoa(newOwner)
	return s.update(ctx, func(txn *badger.Txn) error {
		var from, to []int
		if err := s.get(txn, oldKey, &from); err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				return nil
			}
			return err
		}
		if err := s.get(txn, newKey, &to); err != nil && !errors.Is(err, persistence.ErrNotFound) {
			return err
		}
		if err := s.put(txn, newKey, append(to, from...)); err != nil {
			return err
		}
		return txn.Delete([]byte(oldKey))
	})
}

func (s *BadgerStore) Logout(ctx context.Context, characterID int) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.Delete([]byte(prefixOnline + strconv.Itoa(characterID)))
	})
}

func (s *BadgerStore) LogoutAll(ctx context.Context) error {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		defer it.Close()
		p := []byte(prefixOnline)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// Online считается ли персонаж вошедшим
func (s *BadgerStore) Online(characterID int) bool {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(prefixOnline + strconv.Itoa(characterID)))
		return err
	})
	return err == nil
}

// Close закрывает хранилище данных
func (s *BadgerStore) Close() error {
	s.decompressor.Close()
	_ = s.compressor.Close()
	return s.db.Close()
}

var _ persistence.Store = (*BadgerStore)(nil)
