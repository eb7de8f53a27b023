package game

import (
	"time"

	"github.com/annel0/lerocia/internal/persistence"
	"github.com/annel0/lerocia/internal/protocol"
	"github.com/annel0/lerocia/internal/vec"
	"github.com/annel0/lerocia/internal/world"
)

func statsRecord(s world.Stats) persistence.StatsRecord {
	return persistence.StatsRecord{
		MaxHealth:  s.MaxHealth,
		Health:     s.Health,
		MaxStamina: s.MaxStamina,
		Stamina:    s.Stamina,
		Gold:       s.Gold,
		Weight:     s.Weight,
		BaseDamage: s.BaseDamage,
		BaseArmor:  s.BaseArmor,
		Weapon:     s.Weapon,
		Apparel:    s.Apparel,
	}
}

// statsFromRecord восстанавливает характеристики; производные пересчитывает UpdateStats.
// Запись без максимального здоровья считается пустой.
func statsFromRecord(r persistence.StatsRecord) world.Stats {
	if r.MaxHealth <= 0 {
		return world.DefaultStats()
	}
	s := world.Stats{
		MaxHealth:  r.MaxHealth,
		Health:     r.Health,
		MaxStamina: r.MaxStamina,
		Stamina:    r.Stamina,
		Gold:       r.Gold,
		Weight:     r.Weight,
		BaseDamage: r.BaseDamage,
		BaseArmor:  r.BaseArmor,
		Damage:     r.BaseDamage,
		Armor:      r.BaseArmor,
		Weapon:     r.Weapon,
		Apparel:    r.Apparel,
	}
	if s.Health <= 0 || s.Health > s.MaxHealth {
		s.Health = s.MaxHealth
	}
	return s
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// sanitizeEquipment снимает экипировку, которой нет в инвентаре
func sanitizeEquipment(c *world.Character, catalog *world.Catalog) {
	if c.Weapon != world.NoItem && !c.HasItem(c.Weapon) {
		c.Weapon = world.NoItem
	}
	if c.Apparel != world.NoItem && !c.HasItem(c.Apparel) {
		c.Apparel = world.NoItem
	}
	c.UpdateStats(catalog)
}

// knownItems отбрасывает id, которых нет в каталоге
func (w *World) knownItems(owner int, items []int) []int {
	out := make([]int, 0, len(items))
	for _, id := range items {
		if !w.store.Catalog().Known(id) {
			w.log.Warn("Персонаж %d: неизвестный предмет %d пропущен", owner, id)
			continue
		}
		out = append(out, id)
	}
	return out
}

func characterRecord(c *world.Character) protocol.CharacterRecord {
	health := c.Health
	if health < 0 {
		health = 0
	}
	return protocol.CharacterRecord{
		ID:          c.ID,
		Name:        c.Name,
		Personality: string(c.Personality),
		Position:    c.Position,
		Rotation:    c.Rotation,
		Health:      health,
		MaxHealth:   c.MaxHealth,
		DialogueID:  c.DialogueID,
		Alive:       c.Alive(),
	}
}

func bodyRecord(c *world.Character) protocol.BodyRecord {
	return protocol.BodyRecord{
		ID:       c.ID,
		Name:     c.Name,
		Position: c.Position,
		Items:    append([]int(nil), c.Inventory...),
	}
}

func worldItemRecord(it world.WorldItem) protocol.WorldItemRecord {
	return protocol.WorldItemRecord{WorldID: it.WorldID, ItemID: it.ItemID, Position: it.Position}
}

func position(x, y, z float64) vec.Vec3 {
	return vec.Vec3{X: x, Y: y, Z: z}
}
