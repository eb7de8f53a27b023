package world

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ItemKind категория предмета
type ItemKind string

const (
	ItemWeapon     ItemKind = "weapon"
	ItemApparel    ItemKind = "apparel"
	ItemConsumable ItemKind = "consumable"
	ItemMisc       ItemKind = "misc"
)

var ErrUnknownItem = errors.New("предмет отсутствует в каталоге")

// ItemDef описание типа предмета
type ItemDef struct {
	ID     int      `yaml:"id"`
	Name   string   `yaml:"name"`
	Kind   ItemKind `yaml:"kind"`
	Damage int      `yaml:"damage,omitempty"`
	Armor  int      `yaml:"armor,omitempty"`
	Heal   int      `yaml:"heal,omitempty"`
	Value  int      `yaml:"value"`
	Weight int      `yaml:"weight"`
}

// Catalog справочник типов предметов, неизменяемый после загрузки
type Catalog struct {
	items map[int]ItemDef
}

type catalogFile struct {
	Items []ItemDef `yaml:"items"`
}

// NewCatalog строит каталог из списка описаний
func NewCatalog(defs []ItemDef) (*Catalog, error) {
	c := &Catalog{items: make(map[int]ItemDef, len(defs))}
	for _, d := range defs {
		if _, dup := c.items[d.ID]; dup {
			return nil, fmt.Errorf("повторный id предмета %d", d.ID)
		}
		switch d.Kind {
		case ItemWeapon, ItemApparel, ItemConsumable, ItemMisc:
		default:
			return nil, fmt.Errorf("предмет %d: неизвестная категория %q", d.ID, d.Kind)
		}
		c.items[d.ID] = d
	}
	return c, nil
}

// LoadCatalog читает каталог из YAML файла. Пустой путь даёт DefaultCatalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение каталога: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("разбор каталога: %w", err)
	}
	return NewCatalog(f.Items)
}

// DefaultCatalog встроенный набор предметов
func DefaultCatalog() *Catalog {
	c, _ := NewCatalog([]ItemDef{
		{ID: 0, Name: "Iron Sword", Kind: ItemWeapon, Damage: 25, Value: 50, Weight: 8},
		{ID: 1, Name: "Wooden Club", Kind: ItemWeapon, Damage: 15, Value: 10, Weight: 5},
		{ID: 2, Name: "Leather Armor", Kind: ItemApparel, Armor: 5, Value: 30, Weight: 10},
		{ID: 3, Name: "Chainmail", Kind: ItemApparel, Armor: 12, Value: 120, Weight: 25},
		{ID: 4, Name: "Health Potion", Kind: ItemConsumable, Heal: 40, Value: 15, Weight: 1},
		{ID: 5, Name: "Bread", Kind: ItemConsumable, Heal: 10, Value: 2, Weight: 1},
		{ID: 6, Name: "Gold Ring", Kind: ItemMisc, Value: 200, Weight: 0},
		{ID: 7, Name: "Torch", Kind: ItemMisc, Value: 3, Weight: 2},
	})
	return c
}

// Lookup возвращает описание предмета
func (c *Catalog) Lookup(id int) (ItemDef, bool) {
	d, ok := c.items[id]
	return d, ok
}

// Known сообщает, есть ли предмет в каталоге
func (c *Catalog) Known(id int) bool {
	_, ok := c.items[id]
	return ok
}

// All возвращает все описания по возрастанию id
func (c *Catalog) All() []ItemDef {
	out := make([]ItemDef, 0, len(c.items))
	for _, d := range c.items {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
