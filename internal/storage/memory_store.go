// Package storage содержит реализации persistence.Store.
package storage

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/annel0/lerocia/internal/persistence"
	"gopkg.in/yaml.v3"
)

// Seed начальное содержимое хранилища в YAML
type Seed struct {
	WorldItems   []persistence.WorldItemRecord           `yaml:"world_items"`
	NPCs         []persistence.NPCRecord                 `yaml:"npcs"`
	Bodies       []persistence.BodyRecord                `yaml:"bodies"`
	Items        []persistence.ItemRecord                `yaml:"items"`
	Stats        map[int]persistence.StatsRecord         `yaml:"stats"`
	Destinations map[int][]persistence.DestinationRecord `yaml:"destinations"`
}

// LoadSeed читает YAML файл начального состояния
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение seed %s: %w", path, err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("разбор seed %s: %w", path, err)
	}
	return &seed, nil
}

// MemoryStore реализует persistence.Store в памяти.
// Используется для локальной разработки и тестов.
// ВНИМАНИЕ: Данные теряются при перезапуске сервера!
type MemoryStore struct {
	mu           sync.Mutex
	worldItems   map[int]persistence.WorldItemRecord
	npcs         map[int]persistence.NPCRecord
	bodies       map[int]persistence.BodyRecord
	items        map[int][]int
	stats        map[int]persistence.StatsRecord
	destinations map[int][]persistence.DestinationRecord
	online       map[int]bool
	nextID       int

	failures map[string]error
	calls    map[string]int
}

// NewMemoryStore создаёт хранилище; seed может быть nil
func NewMemoryStore(seed *Seed) *MemoryStore {
	s := &MemoryStore{
		worldItems:   make(map[int]persistence.WorldItemRecord),
		npcs:         make(map[int]persistence.NPCRecord),
		bodies:       make(map[int]persistence.BodyRecord),
		items:        make(map[int][]int),
		stats:        make(map[int]persistence.StatsRecord),
		destinations: make(map[int][]persistence.DestinationRecord),
		online:       make(map[int]bool),
		failures:     make(map[string]error),
		calls:        make(map[string]int),
	}
	if seed == nil {
		return s
	}
	for _, w := range seed.WorldItems {
		s.worldItems[w.WorldID] = w
	}
	for _, n := range seed.NPCs {
		s.npcs[n.ID] = n
		s.observeID(n.ID)
	}
	for _, b := range seed.Bodies {
		s.bodies[b.ID] = b
		s.observeID(b.ID)
	}
	for _, it := range seed.Items {
		s.items[it.OwnerID] = append(s.items[it.OwnerID], it.ItemID)
		s.observeID(it.OwnerID)
	}
	for id, st := range seed.Stats {
		s.stats[id] = st
		s.observeID(id)
	}
	for id, d := range seed.Destinations {
		s.destinations[id] = d
	}
	return s
}

func (s *MemoryStore) observeID(id int) {
	if id >= s.nextID {
		s.nextID = id + 1
	}
}

// FailOn заставляет операцию op возвращать err; nil снимает сбой
func (s *MemoryStore) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Calls число вызовов операции op
func (s *MemoryStore) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// enter учитывает вызов и проверяет контекст. Вызывается под s.mu.
func (s *MemoryStore) enter(ctx context.Context, op string) error {
	s.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.failures[op]; err != nil {
		return err
	}
	return nil
}

func (s *MemoryStore) LoadWorldItems(ctx context.Context) ([]persistence.WorldItemRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "LoadWorldItems"); err != nil {
		return nil, err
	}
	out := make([]persistence.WorldItemRecord, 0, len(s.worldItems))
	for _, w := range s.worldItems {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorldID < out[j].WorldID })
	return out, nil
}

func (s *MemoryStore) LoadNPCs(ctx context.Context) ([]persistence.NPCRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "LoadNPCs"); err != nil {
		return nil, err
	}
	out := make([]persistence.NPCRecord, 0, len(s.npcs))
	for _, n := range s.npcs {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) LoadBodies(ctx context.Context) ([]persistence.BodyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "LoadBodies"); err != nil {
		return nil, err
	}
	out := make([]persistence.BodyRecord, 0, len(s.bodies))
	for _, b := range s.bodies {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetItemsForCharacter(ctx context.Context, characterID int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "GetItemsForCharacter"); err != nil {
		return nil, err
	}
	return append([]int(nil), s.items[characterID]...), nil
}

func (s *MemoryStore) GetStatsForCharacter(ctx context.Context, characterID int) (persistence.StatsRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "GetStatsForCharacter"); err != nil {
		return persistence.StatsRecord{}, err
	}
	s.online[characterID] = true
	st, ok := s.stats[characterID]
	if !ok {
		return persistence.StatsRecord{}, fmt.Errorf("статистика %d: %w", characterID, persistence.ErrNotFound)
	}
	return st, nil
}

func (s *MemoryStore) SetStatsForCharacter(ctx context.Context, characterID int, stats persistence.StatsRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "SetStatsForCharacter"); err != nil {
		return err
	}
	s.stats[characterID] = stats
	s.observeID(characterID)
	return nil
}

func (s *MemoryStore) GetDestinationsForNPC(ctx context.Context, npcID int) ([]persistence.DestinationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "GetDestinationsForNPC"); err != nil {
		return nil, err
	}
	return append([]persistence.DestinationRecord(nil), s.destinations[npcID]...), nil
}

func (s *MemoryStore) CreateBody(ctx context.Context, body persistence.BodyRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "CreateBody"); err != nil {
		return 0, err
	}
	body.ID = s.nextID
	s.nextID++
	s.bodies[body.ID] = body
	s.stats[body.ID] = body.StatsRecord
	return body.ID, nil
}

func (s *MemoryStore) AddItemForCharacter(ctx context.Context, characterID, itemID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "AddItemForCharacter"); err != nil {
		return err
	}
	s.items[characterID] = append(s.items[characterID], itemID)
	s.observeID(characterID)
	return nil
}

func (s *MemoryStore) DeleteItemForCharacter(ctx context.Context, characterID, itemID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "DeleteItemForCharacter"); err != nil {
		return err
	}
	items := s.items[characterID]
	for i, id := range items {
		if id == itemID {
			s.items[characterID] = append(items[:i:i], items[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("предмет %d у %d: %w", itemID, characterID, persistence.ErrNotFound)
}

func (s *MemoryStore) AddWorldItem(ctx context.Context, item persistence.WorldItemRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "AddWorldItem"); err != nil {
		return err
	}
	if _, exists := s.worldItems[item.WorldID]; exists {
		return fmt.Errorf("предмет в мире %d уже существует", item.WorldID)
	}
	s.worldItems[item.WorldID] = item
	return nil
}

func (s *MemoryStore) DeleteWorldItem(ctx context.Context, worldID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "DeleteWorldItem"); err != nil {
		return err
	}
	if _, exists := s.worldItems[worldID]; !exists {
		return fmt.Errorf("предмет в мире %d: %w", worldID, persistence.ErrNotFound)
	}
	delete(s.worldItems, worldID)
	return nil
}

func (s *MemoryStore) UpdateInventoryOwnership(ctx context.Context, oldOwner, newOwner int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "UpdateInventoryOwnership"); err != nil {
		return err
	}
	s.items[newOwner] = append(s.items[newOwner], s.items[oldOwner]...)
	delete(s.items, oldOwner)
	return nil
}

func (s *MemoryStore) Logout(ctx context.Context, characterID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "Logout"); err != nil {
		return err
	}
	delete(s.online, characterID)
	return nil
}

func (s *MemoryStore) LogoutAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "LogoutAll"); err != nil {
		return err
	}
	s.online = make(map[int]bool)
	return nil
}

// Items предметы персонажа (для проверок в тестах)
func (s *MemoryStore) Items(characterID int) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.items[characterID]...)
}

// Stats сохранённая статистика персонажа без отметки входа
func (s *MemoryStore) Stats(characterID int) (persistence.StatsRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[characterID]
	return st, ok
}

// Online считается ли персонаж вошедшим
func (s *MemoryStore) Online(characterID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online[characterID]
}

// HasWorldItem есть ли предмет в мире
func (s *MemoryStore) HasWorldItem(worldID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.worldItems[worldID]
	return ok
}

func (s *MemoryStore) Close() error { return nil }

var _ persistence.Store = (*MemoryStore)(nil)
