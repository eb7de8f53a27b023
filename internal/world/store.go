package world

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrDuplicateID = errors.New("персонаж с таким id уже существует")
	ErrNotFound    = errors.New("объект не найден")
	ErrNotHeld     = errors.New("предмета нет в инвентаре")
)

// Store таблицы персонажей и предметов в мире с производными индексами
type Store struct {
	catalog    *Catalog
	characters map[int]*Character
	npcs       map[int]struct{}
	bodies     map[int]struct{}
	worldItems map[int]*WorldItem
}

// NewStore создаёт пустое хранилище
func NewStore(catalog *Catalog) *Store {
	return &Store{
		catalog:    catalog,
		characters: make(map[int]*Character),
		npcs:       make(map[int]struct{}),
		bodies:     make(map[int]struct{}),
		worldItems: make(map[int]*WorldItem),
	}
}

// Catalog справочник предметов хранилища
func (s *Store) Catalog() *Catalog {
	return s.catalog
}

// Insert добавляет персонажа. Повторный id отклоняется, неизвестные предметы в инвентаре тоже.
func (s *Store) Insert(c *Character) error {
	if _, exists := s.characters[c.ID]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateID, c.ID)
	}
	for _, id := range c.Inventory {
		if !s.catalog.Known(id) {
			return fmt.Errorf("персонаж %d: %w: %d", c.ID, ErrUnknownItem, id)
		}
	}
	s.characters[c.ID] = c
	switch c.Kind {
	case KindNPC:
		s.npcs[c.ID] = struct{}{}
	case KindBody:
		s.bodies[c.ID] = struct{}{}
	}
	return nil
}

// Remove удаляет персонажа
func (s *Store) Remove(id int) error {
	c, ok := s.characters[id]
	if !ok {
		return fmt.Errorf("%w: персонаж %d", ErrNotFound, id)
	}
	delete(s.characters, id)
	delete(s.npcs, c.ID)
	delete(s.bodies, c.ID)
	return nil
}

// Get возвращает персонажа или ErrNotFound
func (s *Store) Get(id int) (*Character, error) {
	c, ok := s.characters[id]
	if !ok {
		return nil, fmt.Errorf("%w: персонаж %d", ErrNotFound, id)
	}
	return c, nil
}

// Lookup возвращает персонажа без ошибки
func (s *Store) Lookup(id int) (*Character, bool) {
	c, ok := s.characters[id]
	return c, ok
}

// Len число персонажей всех видов
func (s *Store) Len() int {
	return len(s.characters)
}

// NextCharacterID наибольший id + 1; используется, когда хранилище не выдало id
func (s *Store) NextCharacterID() int {
	next := 0
	for id := range s.characters {
		if id >= next {
			next = id + 1
		}
	}
	return next
}

func (s *Store) sorted(ids map[int]struct{}) []*Character {
	out := make([]*Character, 0, len(ids))
	for id := range ids {
		out = append(out, s.characters[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Characters все персонажи по возрастанию id
func (s *Store) Characters() []*Character {
	out := make([]*Character, 0, len(s.characters))
	for _, c := range s.characters {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NPCs только NPC, по возрастанию id
func (s *Store) NPCs() []*Character {
	return s.sorted(s.npcs)
}

// Bodies только трупы, по возрастанию id
func (s *Store) Bodies() []*Character {
	return s.sorted(s.bodies)
}

// Players только игроки, по возрастанию id
func (s *Store) Players() []*Character {
	var out []*Character
	for _, c := range s.Characters() {
		if c.Kind == KindPlayer {
			out = append(out, c)
		}
	}
	return out
}

// AddItem добавляет предмет в конец инвентаря
func (s *Store) AddItem(characterID, itemID int) error {
	c, err := s.Get(characterID)
	if err != nil {
		return err
	}
	if !s.catalog.Known(itemID) {
		return fmt.Errorf("%w: %d", ErrUnknownItem, itemID)
	}
	c.Inventory = append(c.Inventory, itemID)
	c.UpdateStats(s.catalog)
	return nil
}

// RemoveItem убирает первое вхождение предмета из инвентаря.
// Снимает экипировку, если снят последний экземпляр.
func (s *Store) RemoveItem(characterID, itemID int) error {
	c, err := s.Get(characterID)
	if err != nil {
		return err
	}
	i := c.itemIndex(itemID)
	if i < 0 {
		return fmt.Errorf("персонаж %d, предмет %d: %w", characterID, itemID, ErrNotHeld)
	}
	c.Inventory = append(append(make([]int, 0, len(c.Inventory)-1), c.Inventory[:i]...), c.Inventory[i+1:]...)
	if !c.HasItem(itemID) {
		if c.Weapon == itemID {
			c.Weapon = NoItem
		}
		if c.Apparel == itemID {
			c.Apparel = NoItem
		}
	}
	c.UpdateStats(s.catalog)
	return nil
}

// TakeInventory забирает весь инвентарь персонажа, оставляя его пустым и без экипировки
func (s *Store) TakeInventory(characterID int) ([]int, error) {
	c, err := s.Get(characterID)
	if err != nil {
		return nil, err
	}
	items := c.Inventory
	c.Inventory = nil
	c.Weapon = NoItem
	c.Apparel = NoItem
	c.UpdateStats(s.catalog)
	return items, nil
}

// InsertWorldItem кладёт предмет в мир
func (s *Store) InsertWorldItem(item WorldItem) error {
	if _, exists := s.worldItems[item.WorldID]; exists {
		return fmt.Errorf("%w: предмет в мире %d", ErrDuplicateID, item.WorldID)
	}
	if !s.catalog.Known(item.ItemID) {
		return fmt.Errorf("%w: %d", ErrUnknownItem, item.ItemID)
	}
	it := item
	s.worldItems[item.WorldID] = &it
	return nil
}

// RemoveWorldItem убирает предмет из мира и возвращает его
func (s *Store) RemoveWorldItem(worldID int) (WorldItem, error) {
	it, ok := s.worldItems[worldID]
	if !ok {
		return WorldItem{}, fmt.Errorf("%w: предмет в мире %d", ErrNotFound, worldID)
	}
	delete(s.worldItems, worldID)
	return *it, nil
}

// WorldItem возвращает предмет в мире
func (s *Store) WorldItem(worldID int) (WorldItem, bool) {
	it, ok := s.worldItems[worldID]
	if !ok {
		return WorldItem{}, false
	}
	return *it, true
}

// WorldItems все предметы в мире по возрастанию world id
func (s *Store) WorldItems() []WorldItem {
	out := make([]WorldItem, 0, len(s.worldItems))
	for _, it := range s.worldItems {
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorldID < out[j].WorldID })
	return out
}

// NextWorldID наибольший world id + 1, либо 0 для пустого мира
func (s *Store) NextWorldID() int {
	next := 0
	for id := range s.worldItems {
		if id >= next {
			next = id + 1
		}
	}
	return next
}
