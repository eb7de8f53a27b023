package motion

import (
	"time"

	"github.com/annel0/lerocia/internal/vec"
	"github.com/annel0/lerocia/internal/world"
)

type agent struct {
	destination vec.Vec3
	moving      bool
}

// Navigator двигает персонажей к назначенной точке с постоянной скоростью.
// Агент останавливается на дистанции остановки и считается прибывшим.
type Navigator struct {
	store    *world.Store
	speed    float64
	stopping float64
	agents   map[int]*agent
}

// NewNavigator создаёт навигатор; speed в метрах в секунду
func NewNavigator(store *world.Store, speed, stopping float64) *Navigator {
	return &Navigator{
		store:    store,
		speed:    speed,
		stopping: stopping,
		agents:   make(map[int]*agent),
	}
}

// Navigate задаёт новую цель движения
func (n *Navigator) Navigate(id int, destination vec.Vec3) {
	a, ok := n.agents[id]
	if !ok {
		a = &agent{}
		n.agents[id] = a
	}
	a.destination = destination
	a.moving = true
}

// Stop прекращает движение агента
func (n *Navigator) Stop(id int) {
	if a, ok := n.agents[id]; ok {
		a.moving = false
	}
}

// Destination возвращает текущую цель агента
func (n *Navigator) Destination(id int) (vec.Vec3, bool) {
	a, ok := n.agents[id]
	if !ok {
		return vec.Vec3{}, false
	}
	return a.destination, true
}

// Arrived сообщает, что агент находится в пределах дистанции остановки от цели
func (n *Navigator) Arrived(id int) bool {
	a, ok := n.agents[id]
	if !ok {
		return false
	}
	c, ok := n.store.Lookup(id)
	if !ok {
		return false
	}
	return c.Position.DistanceTo(a.destination) <= n.stopping
}

// Warp переносит агента без движения и сбрасывает цель
func (n *Navigator) Warp(id int, position vec.Vec3) {
	if c, ok := n.store.Lookup(id); ok {
		c.Position = position
	}
	delete(n.agents, id)
}

// Step продвигает всех движущихся агентов на dt
func (n *Navigator) Step(dt time.Duration, now time.Duration) {
	maxStep := n.speed * dt.Seconds()
	for id, a := range n.agents {
		if !a.moving {
			continue
		}
		c, ok := n.store.Lookup(id)
		if !ok {
			delete(n.agents, id)
			continue
		}
		if !c.Alive() {
			continue
		}
		to := a.destination.Sub(c.Position)
		dist := to.Length()
		if dist <= n.stopping {
			a.moving = false
			continue
		}
		step := dist - n.stopping
		if step > maxStep {
			step = maxStep
		}
		c.Rotation = vec.YawTowards(c.Position, a.destination)
		c.Position = c.Position.Add(to.Mul(step / dist))
		c.MoveTime = now.Seconds()
	}
}
