// Package world хранит авторитетное состояние мира: персонажей и предметы.
//
// Store не потокобезопасен: им владеет единственный тиковый цикл.
package world

import (
	"fmt"
	"time"

	"github.com/annel0/lerocia/internal/vec"
)

// Kind дискриминатор варианта персонажа
type Kind uint8

const (
	KindPlayer Kind = iota
	KindNPC
	KindBody
)

func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindNPC:
		return "npc"
	case KindBody:
		return "body"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Personality определяет правила выбора целей
type Personality string

const (
	Friendly Personality = "friendly"
	Enemy    Personality = "enemy"
	Passive  Personality = "passive"
)

// ParsePersonality разбирает тег личности
func ParsePersonality(s string) (Personality, error) {
	switch p := Personality(s); p {
	case Friendly, Enemy, Passive:
		return p, nil
	default:
		return "", fmt.Errorf("неизвестная личность %q", s)
	}
}

// Targets возвращает личности, которые атакует персонаж с данной личностью
func (p Personality) Targets() []Personality {
	switch p {
	case Friendly:
		return []Personality{Enemy}
	case Enemy:
		return []Personality{Friendly, Passive}
	default:
		return nil
	}
}

// Hostile сообщает, атакует ли p персонажа с личностью other
func (p Personality) Hostile(other Personality) bool {
	for _, t := range p.Targets() {
		if t == other {
			return true
		}
	}
	return false
}

// NoItem отсутствие экипировки
const NoItem = -1

// Stats числовые характеристики персонажа
type Stats struct {
	MaxHealth  int
	Health     int
	MaxStamina int
	Stamina    int
	Gold       int
	Weight     int
	BaseDamage int
	BaseArmor  int
	// Damage и Armor производные, см. UpdateStats
	Damage  int
	Armor   int
	Weapon  int
	Apparel int
}

// Destination точка патрулирования и время ожидания на ней
type Destination struct {
	Position vec.Vec3
	Dwell    time.Duration
}

// NPCData поля, присущие только NPC
type NPCData struct {
	Origin       vec.Vec3
	RespawnDelay time.Duration
	LookRadius   float64
	Destinations []Destination
	// DiedAt момент смерти по монотонным часам тика
	DiedAt time.Duration
}

// Character игрок, NPC или труп
type Character struct {
	ID          int
	Kind        Kind
	Name        string
	Personality Personality
	DialogueID  int

	Position vec.Vec3
	Rotation vec.Quat
	MoveTime float64

	Stats
	Inventory []int
	Dead      bool

	// NPC заполнено только для KindNPC
	NPC *NPCData
}

// NewPlayer создаёт игрока с начальными характеристиками
func NewPlayer(id int, name string, stats Stats) *Character {
	return &Character{
		ID:          id,
		Kind:        KindPlayer,
		Name:        name,
		Personality: Friendly,
		Rotation:    vec.Identity,
		Stats:       stats,
	}
}

// NewNPC создаёт NPC в точке origin
func NewNPC(id int, name string, personality Personality, origin vec.Vec3, data NPCData) *Character {
	data.Origin = origin
	return &Character{
		ID:          id,
		Kind:        KindNPC,
		Name:        name,
		Personality: personality,
		Position:    origin,
		Rotation:    vec.Identity,
		Stats:       DefaultStats(),
		NPC:         &data,
	}
}

// NewBody создаёт труп: контейнер предметов без боевого поведения
func NewBody(id int, name string, personality Personality, position vec.Vec3, stats Stats, items []int) *Character {
	stats.Weapon = NoItem
	stats.Apparel = NoItem
	return &Character{
		ID:          id,
		Kind:        KindBody,
		Name:        name,
		Personality: personality,
		Position:    position,
		Rotation:    vec.Identity,
		Stats:       stats,
		Inventory:   append([]int(nil), items...),
	}
}

// DefaultStats стартовые характеристики без экипировки
func DefaultStats() Stats {
	return Stats{
		MaxHealth:  100,
		Health:     100,
		MaxStamina: 100,
		Stamina:    100,
		BaseDamage: 10,
		Damage:     10,
		Weapon:     NoItem,
		Apparel:    NoItem,
	}
}

// Alive жив ли персонаж. Трупы всегда считаются мёртвыми.
func (c *Character) Alive() bool {
	return c.Kind != KindBody && !c.Dead
}

// HasItem проверяет наличие предмета в инвентаре
func (c *Character) HasItem(itemID int) bool {
	return c.itemIndex(itemID) >= 0
}

func (c *Character) itemIndex(itemID int) int {
	for i, id := range c.Inventory {
		if id == itemID {
			return i
		}
	}
	return -1
}

// UpdateStats пересчитывает производные характеристики по экипировке и инвентарю
func (c *Character) UpdateStats(catalog *Catalog) {
	c.Damage = c.BaseDamage
	if c.Weapon != NoItem {
		if def, ok := catalog.Lookup(c.Weapon); ok && def.Kind == ItemWeapon {
			c.Damage = def.Damage
		}
	}
	c.Armor = c.BaseArmor
	if c.Apparel != NoItem {
		if def, ok := catalog.Lookup(c.Apparel); ok && def.Kind == ItemApparel {
			c.Armor = def.Armor
		}
	}
	weight := 0
	for _, id := range c.Inventory {
		if def, ok := catalog.Lookup(id); ok {
			weight += def.Weight
		}
	}
	c.Weight = weight
}

// WorldItem экземпляр предмета, лежащий в мире
type WorldItem struct {
	WorldID  int
	ItemID   int
	Position vec.Vec3
}
