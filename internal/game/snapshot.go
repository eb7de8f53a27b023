package game

import (
	"time"

	"github.com/annel0/lerocia/internal/vec"
	"github.com/annel0/lerocia/internal/world"
)

// CharacterView представление персонажа для админского API
type CharacterView struct {
	ID          int      `json:"id"`
	Kind        string   `json:"kind"`
	Name        string   `json:"name"`
	Personality string   `json:"personality"`
	Position    vec.Vec3 `json:"position"`
	Health      int      `json:"health"`
	MaxHealth   int      `json:"max_health"`
	Gold        int      `json:"gold"`
	Alive       bool     `json:"alive"`
	Items       []int    `json:"items"`
	State       string   `json:"state,omitempty"`
}

// WorldItemView предмет в мире для админского API
type WorldItemView struct {
	WorldID  int      `json:"world_id"`
	ItemID   int      `json:"item_id"`
	Position vec.Vec3 `json:"position"`
}

// ConnectionCounts число соединений по этапам
type ConnectionCounts struct {
	Pending int `json:"pending"`
	Loading int `json:"loading"`
	Ready   int `json:"ready"`
}

// Snapshot неизменяемый снимок мира. Публикуется тиком, читается из других горутин.
type Snapshot struct {
	TakenAt            time.Time        `json:"taken_at"`
	Clock              time.Duration    `json:"clock"`
	Characters         []CharacterView  `json:"characters"`
	WorldItems         []WorldItemView  `json:"world_items"`
	Connections        ConnectionCounts `json:"connections"`
	PendingPersistence int              `json:"pending_persistence"`
}

// Snapshot возвращает последний опубликованный снимок. Безопасен из любой горутины.
func (w *World) Snapshot() *Snapshot {
	return w.snapshot.Load()
}

func (w *World) publishSnapshot() {
	chars := w.store.Characters()
	snap := &Snapshot{
		TakenAt:            time.Now(),
		Clock:              w.clock.Now(),
		Characters:         make([]CharacterView, 0, len(chars)),
		PendingPersistence: w.gw.Pending(),
	}
	for _, c := range chars {
		view := CharacterView{
			ID:          c.ID,
			Kind:        c.Kind.String(),
			Name:        c.Name,
			Personality: string(c.Personality),
			Position:    c.Position,
			Health:      max(0, c.Health),
			MaxHealth:   c.MaxHealth,
			Gold:        c.Gold,
			Alive:       c.Alive(),
			Items:       append([]int{}, c.Inventory...),
		}
		if c.Kind == world.KindNPC {
			if st, ok := w.npcs.State(c.ID); ok {
				view.State = string(st)
			}
		}
		snap.Characters = append(snap.Characters, view)
	}
	for _, it := range w.store.WorldItems() {
		snap.WorldItems = append(snap.WorldItems, WorldItemView{WorldID: it.WorldID, ItemID: it.ItemID, Position: it.Position})
	}
	snap.Connections.Pending, snap.Connections.Loading, snap.Connections.Ready = w.sessions.Counts()
	w.snapshot.Store(snap)
}
