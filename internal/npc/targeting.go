package npc

import (
	"github.com/annel0/lerocia/internal/world"
)

// TieBreak выбирает кандидата при строго равных расстояниях
type TieBreak int

const (
	// FirstSeen оставляет первого встреченного (кандидаты идут по возрастанию id)
	FirstSeen TieBreak = iota
	// LastSeen заменяет текущего лучшего равноудалённым
	LastSeen
)

// SelectTarget возвращает ближайшего живого враждебного персонажа в радиусе
// обзора NPC. Радиус строгий: кандидат на расстоянии ровно radius не подходит.
func SelectTarget(self *world.Character, candidates []*world.Character, radius float64, tie TieBreak) (*world.Character, float64) {
	var best *world.Character
	bestDist := radius
	for _, c := range candidates {
		if c.ID == self.ID || !c.Alive() || !self.Personality.Hostile(c.Personality) {
			continue
		}
		d := self.Position.DistanceTo(c.Position)
		if d >= radius {
			continue
		}
		if best == nil || d < bestDist || (tie == LastSeen && d == bestDist) {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}
