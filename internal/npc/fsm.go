package npc

import (
	"github.com/annel0/lerocia/internal/vec"
	"github.com/annel0/lerocia/internal/world"
)

// StateName имя состояния автомата NPC
type StateName string

const (
	StateWandering StateName = "wandering"
	StateSeeking   StateName = "seeking"
	StateAttacking StateName = "attacking"
	StateDead      StateName = "dead"
)

// State представляет состояние конечного автомата NPC
type State interface {
	Name() StateName
	Enter(a *Agent, c *Controller)
	Update(a *Agent, c *Controller) State
	Exit(a *Agent, c *Controller)
}

var (
	wandering State = wanderState{}
	seeking   State = seekState{}
	attacking State = attackState{}
	dead      State = deadState{}
)

// === Конкретные состояния ===

// wanderState - патрулирование по точкам или возврат к точке появления
type wanderState struct{}

func (wanderState) Name() StateName { return StateWandering }

func (wanderState) Enter(a *Agent, c *Controller) {
	a.target = 0
	a.dwelling = false
}

func (wanderState) Update(a *Agent, c *Controller) State {
	if t, _ := c.acquire(a.npc); t != nil {
		a.target = t.ID
		return seeking
	}

	dests := a.npc.NPC.Destinations
	if len(dests) == 0 {
		c.nav.Navigate(a.npc.ID, a.npc.NPC.Origin)
		return wandering
	}
	if a.destIndex >= len(dests) {
		a.destIndex = 0
	}
	cur := dests[a.destIndex]
	c.nav.Navigate(a.npc.ID, cur.Position)
	if !c.nav.Arrived(a.npc.ID) {
		return wandering
	}

	now := c.clock.Now()
	if !a.dwelling {
		a.dwelling = true
		a.dwellUntil = now + cur.Dwell
	}
	if now >= a.dwellUntil {
		a.dwelling = false
		a.destIndex = (a.destIndex + 1) % len(dests)
	}
	return wandering
}

func (wanderState) Exit(a *Agent, c *Controller) {
	a.dwelling = false
}

// seekState - движение к цели
type seekState struct{}

func (seekState) Name() StateName { return StateSeeking }

func (seekState) Enter(a *Agent, c *Controller) {}

func (seekState) Update(a *Agent, c *Controller) State {
	t, dist := c.acquire(a.npc)
	if t == nil {
		return wandering
	}
	a.target = t.ID
	c.nav.Navigate(a.npc.ID, t.Position)
	if dist <= c.cfg.StoppingDistance {
		return attacking
	}
	return seeking
}

func (seekState) Exit(a *Agent, c *Controller) {}

// attackState - цель на дистанции остановки, атаки по кулдауну
type attackState struct{}

func (attackState) Name() StateName { return StateAttacking }

func (attackState) Enter(a *Agent, c *Controller) {
	c.nav.Stop(a.npc.ID)
}

func (attackState) Update(a *Agent, c *Controller) State {
	t, dist := c.acquire(a.npc)
	if t == nil {
		return wandering
	}
	a.target = t.ID
	if dist > c.cfg.StoppingDistance {
		return seeking
	}
	a.npc.Rotation = vec.YawTowards(a.npc.Position, t.Position)
	if !a.cooldown {
		c.attack(a)
	}
	return attacking
}

func (attackState) Exit(a *Agent, c *Controller) {}

// deadState - ждёт возрождения
type deadState struct{}

func (deadState) Name() StateName { return StateDead }

func (deadState) Enter(a *Agent, c *Controller) {
	c.nav.Stop(a.npc.ID)
	c.cancelAttack(a)
	a.target = 0
	a.destIndex = 0
}

func (deadState) Update(a *Agent, c *Controller) State {
	if a.npc.Alive() {
		return wandering
	}
	return dead
}

func (deadState) Exit(a *Agent, c *Controller) {}

// alive подходит ли персонаж для продолжения атаки
func alive(c *world.Character) bool {
	return c != nil && c.Alive()
}
