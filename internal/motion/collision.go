// Package motion содержит серверные заменители движковых сервисов:
// кинематическую навигацию и луч вперёд для проверки попаданий.
package motion

import (
	"math"

	"github.com/annel0/lerocia/internal/vec"
	"github.com/annel0/lerocia/internal/world"
)

// CapsuleCollider представляет вертикальную капсулу персонажа
type CapsuleCollider struct {
	Radius float64
	Height float64
}

// DefaultCollider размер гуманоида по умолчанию
var DefaultCollider = CapsuleCollider{Radius: 0.5, Height: 2}

// IsPointInside проверяет, находится ли точка внутри капсулы с основанием в base
func (cc CapsuleCollider) IsPointInside(base, point vec.Vec3) bool {
	if point.Y < base.Y || point.Y > base.Y+cc.Height {
		return false
	}
	dx, dz := point.X-base.X, point.Z-base.Z
	return dx*dx+dz*dz <= cc.Radius*cc.Radius
}

// RayDistance возвращает расстояние вдоль луча до пересечения с капсулой
// в горизонтальной плоскости. Луч из origin по направлению dir (единичный).
// false если пересечения нет или по высоте луч проходит мимо.
func (cc CapsuleCollider) RayDistance(base, origin, dir vec.Vec3) (float64, bool) {
	if origin.Y < base.Y-cc.Radius || origin.Y > base.Y+cc.Height+cc.Radius {
		return 0, false
	}
	fx, fz := dir.X, dir.Z
	flen := math.Hypot(fx, fz)
	if flen == 0 {
		return 0, false
	}
	fx, fz = fx/flen, fz/flen

	ox, oz := base.X-origin.X, base.Z-origin.Z
	t := ox*fx + oz*fz
	if t < 0 {
		// Центр позади: попадание только если стоим внутри капсулы
		if ox*ox+oz*oz <= cc.Radius*cc.Radius {
			return 0, true
		}
		return 0, false
	}
	d2 := ox*ox + oz*oz - t*t
	r2 := cc.Radius * cc.Radius
	if d2 > r2 {
		return 0, false
	}
	hit := t - math.Sqrt(r2-d2)
	if hit < 0 {
		hit = 0
	}
	return hit, true
}

// Physics отвечает на запросы луча по живым персонажам хранилища
type Physics struct {
	store    *world.Store
	collider CapsuleCollider
}

// NewPhysics создаёт сервис запросов луча
func NewPhysics(store *world.Store, collider CapsuleCollider) *Physics {
	return &Physics{store: store, collider: collider}
}

// ProbeForward бросает луч вперёд от персонажа from на дистанцию maxRange и
// возвращает id ближайшего живого персонажа, которого он задел.
func (p *Physics) ProbeForward(from *world.Character, maxRange float64) (int, bool) {
	dir := from.Rotation.Forward()
	best, bestID := math.Inf(1), 0
	for _, c := range p.store.Characters() {
		if c.ID == from.ID || !c.Alive() {
			continue
		}
		d, ok := p.collider.RayDistance(c.Position, from.Position, dir)
		if !ok || d > maxRange {
			continue
		}
		if d < best {
			best, bestID = d, c.ID
		}
	}
	return bestID, !math.IsInf(best, 1)
}
