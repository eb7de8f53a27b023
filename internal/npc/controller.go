// Package npc управляет поведением NPC: выбор цели, патрулирование и
// ритм атак. Контроллер работает только из горутины тика.
package npc

import (
	"time"

	"github.com/annel0/lerocia/internal/config"
	"github.com/annel0/lerocia/internal/logging"
	"github.com/annel0/lerocia/internal/schedule"
	"github.com/annel0/lerocia/internal/vec"
	"github.com/annel0/lerocia/internal/world"
)

// Navigator сервис навигации: принимает цель и сообщает о прибытии
type Navigator interface {
	Navigate(id int, destination vec.Vec3)
	Stop(id int)
	Arrived(id int) bool
}

// Prober проверяет луч вперёд от персонажа
type Prober interface {
	ProbeForward(from *world.Character, maxRange float64) (int, bool)
}

// Combat принимает намерения атаки от контроллера
type Combat interface {
	// AttackIntent рассылает начало атаки
	AttackIntent(attackerID int)
	// ApplyDamage наносит урон по правилам боя
	ApplyDamage(attackerID, targetID, amount int) error
}

// Agent состояние автомата одного NPC
type Agent struct {
	npc   *world.Character
	state State

	target     int
	destIndex  int
	dwelling   bool
	dwellUntil time.Duration

	cooldown bool
	tasks    []schedule.TaskID
}

// Controller ведёт автоматы всех NPC хранилища
type Controller struct {
	store  *world.Store
	nav    Navigator
	probe  Prober
	combat Combat
	clock  *schedule.Queue
	cfg    config.NPCConfig
	tie    TieBreak

	agents map[int]*Agent
	log    *logging.Logger
}

// NewController создаёт контроллер. Отложенные атаки ставятся в clock.
func NewController(store *world.Store, nav Navigator, probe Prober, combat Combat, clock *schedule.Queue, cfg config.NPCConfig) *Controller {
	return &Controller{
		store:  store,
		nav:    nav,
		probe:  probe,
		combat: combat,
		clock:  clock,
		cfg:    cfg,
		tie:    FirstSeen,
		agents: make(map[int]*Agent),
		log:    logging.GetNPCLogger(),
	}
}

// SetTieBreak задаёт правило выбора между равноудалёнными целями
func (c *Controller) SetTieBreak(tie TieBreak) { c.tie = tie }

// Step выполняет один шаг поведения каждого NPC в порядке возрастания id
func (c *Controller) Step() {
	for _, npc := range c.store.NPCs() {
		a := c.agent(npc)
		if !npc.Alive() && a.state != dead {
			c.transition(a, dead)
			continue
		}
		if next := a.state.Update(a, c); next != a.state {
			c.transition(a, next)
		}
	}
}

// State возвращает текущее состояние NPC
func (c *Controller) State(id int) (StateName, bool) {
	a, ok := c.agents[id]
	if !ok {
		return "", false
	}
	return a.state.Name(), true
}

// Target возвращает id текущей цели NPC, 0 если цели нет
func (c *Controller) Target(id int) int {
	if a, ok := c.agents[id]; ok {
		return a.target
	}
	return 0
}

func (c *Controller) agent(npc *world.Character) *Agent {
	a, ok := c.agents[npc.ID]
	if !ok {
		a = &Agent{npc: npc, state: wandering}
		c.agents[npc.ID] = a
		a.state.Enter(a, c)
	}
	// Запись могла быть заменена в хранилище
	a.npc = npc
	return a
}

func (c *Controller) transition(a *Agent, next State) {
	c.log.Debug("NPC %d: %s -> %s", a.npc.ID, a.state.Name(), next.Name())
	a.state.Exit(a, c)
	a.state = next
	a.state.Enter(a, c)
}

func (c *Controller) lookRadius(npc *world.Character) float64 {
	if npc.NPC != nil && npc.NPC.LookRadius > 0 {
		return npc.NPC.LookRadius
	}
	return c.cfg.DefaultLookRadius
}

func (c *Controller) acquire(npc *world.Character) (*world.Character, float64) {
	return SelectTarget(npc, c.store.Characters(), c.lookRadius(npc), c.tie)
}

// attack рассылает намерение, через AttackDelay проверяет луч и наносит урон,
// кулдаун снимается через AttackCooldown от начала атаки, но не раньше проверки.
func (c *Controller) attack(a *Agent) {
	a.cooldown = true
	id := a.npc.ID
	c.combat.AttackIntent(id)

	probeTask := c.clock.After(c.cfg.AttackDelay, func(time.Duration) {
		a.tasks = a.tasks[:0]
		npc, ok := c.store.Lookup(id)
		if !ok || !alive(npc) {
			a.cooldown = false
			return
		}
		if target, hit := c.probe.ProbeForward(npc, c.cfg.ProbeRange); hit {
			if err := c.combat.ApplyDamage(id, target, npc.Damage); err != nil {
				c.log.Warn("NPC %d: атака на %d не прошла: %v", id, target, err)
			}
		}
		remain := c.cfg.AttackCooldown - c.cfg.AttackDelay
		if remain <= 0 {
			a.cooldown = false
			return
		}
		a.tasks = append(a.tasks, c.clock.After(remain, func(time.Duration) {
			a.tasks = a.tasks[:0]
			a.cooldown = false
		}))
	})
	a.tasks = append(a.tasks, probeTask)
}

func (c *Controller) cancelAttack(a *Agent) {
	for _, id := range a.tasks {
		c.clock.Cancel(id)
	}
	a.tasks = a.tasks[:0]
	a.cooldown = false
}
