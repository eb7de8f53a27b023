package game

import (
	"context"

	"github.com/annel0/lerocia/internal/config"
	"github.com/annel0/lerocia/internal/eventbus"
	"github.com/annel0/lerocia/internal/persistence"
	"github.com/annel0/lerocia/internal/protocol"
	"github.com/annel0/lerocia/internal/vec"
	"github.com/annel0/lerocia/internal/world"
)

// NoBody id трупа в DEATH, когда труп не создаётся
const NoBody = -1

// AttackIntent рассылает начало атаки
func (w *World) AttackIntent(attackerID int) {
	w.broadcast(protocol.AttackEvent(attackerID))
}

// ApplyDamage наносит урон max(0, amount-броня) и рассылает HIT всегда.
// При здоровье <= 0 запускает переход смерти ровно один раз.
func (w *World) ApplyDamage(attackerID, targetID, amount int) error {
	target, err := w.store.Get(targetID)
	if err != nil {
		return err
	}
	if target.Kind == world.KindBody {
		return reject(protocol.CmdHit, "target %d is a body", targetID)
	}
	if !target.Alive() {
		return reject(protocol.CmdHit, "target %d is dead", targetID)
	}

	effective := max(0, max(0, amount)-target.Armor)
	target.Health -= effective
	w.broadcast(protocol.HitEvent(attackerID, targetID, effective, max(0, target.Health)))

	if target.Health <= 0 {
		w.kill(target, attackerID)
	}
	return nil
}

type bodyResult struct {
	ID      int
	Created bool
}

// kill помечает персонажа мёртвым и отдаёт инвентарь новому трупу.
// Труп создаётся в хранилище вместе с одним переносом владения предметами
// (UpdateInventoryOwnership), сколько бы предметов ни было.
func (w *World) kill(c *world.Character, killerID int) {
	c.Dead = true
	w.log.Info("Персонаж %d (%s) убит персонажем %d", c.ID, c.Name, killerID)

	if c.Kind == world.KindNPC {
		c.NPC.DiedAt = w.clock.Now()
	}
	if c.Kind == world.KindPlayer && w.cfg.Game.DeathPolicy == config.DeathPolicyAwaitRespawn {
		w.broadcast(protocol.DeathEvent(c.ID, NoBody, nil))
		w.events.Emit(eventbus.TypeCharacterDied, eventbus.PriorityHigh, eventbus.CharacterDied{
			CharacterID: c.ID, BodyID: NoBody, KillerID: killerID,
		})
		return
	}

	snapshot := c.Stats
	snapshot.Health = max(0, snapshot.Health)
	items, _ := w.store.TakeInventory(c.ID)
	oldID := c.ID
	name := c.Name + w.cfg.Game.BodySuffix
	personality := c.Personality
	pos := c.Position
	rec := persistence.BodyRecord{
		Name:        name,
		Personality: string(personality),
		X:           pos.X,
		Y:           pos.Y,
		Z:           pos.Z,
		StatsRecord: statsRecord(snapshot),
	}

	w.dying[oldID] = struct{}{}
	persistence.Call(w.gw, "CreateBody", oldID, func(ctx context.Context, s persistence.Store) (bodyResult, error) {
		id, err := s.CreateBody(ctx, rec)
		if err != nil {
			return bodyResult{}, err
		}
		return bodyResult{ID: id, Created: true}, s.UpdateInventoryOwnership(ctx, oldID, id)
	}, func(res bodyResult, err error) {
		delete(w.dying, oldID)
		body := world.NewBody(res.ID, name, personality, pos, snapshot, items)
		w.finishDeath(oldID, killerID, body, res.Created, err)
	})
}

func (w *World) finishDeath(oldID, killerID int, body *world.Character, created bool, err error) {
	if !created {
		body.ID = w.store.NextCharacterID()
		w.log.Error("Труп персонажа %d не создан в хранилище (%v), локальный id %d", oldID, err, body.ID)
	}
	if ierr := w.store.Insert(body); ierr != nil {
		body.ID = w.store.NextCharacterID()
		w.log.Warn("Труп персонажа %d: %v, локальный id %d", oldID, ierr, body.ID)
		if ierr = w.store.Insert(body); ierr != nil {
			w.log.Error("Труп персонажа %d потерян: %v", oldID, ierr)
			return
		}
	}
	body.UpdateStats(w.store.Catalog())

	w.broadcast(protocol.DeathEvent(oldID, body.ID, body.Inventory))
	w.events.Emit(eventbus.TypeCharacterDied, eventbus.PriorityHigh, eventbus.CharacterDied{
		CharacterID: oldID, BodyID: body.ID, KillerID: killerID, Items: body.Inventory,
	})

	if c, ok := w.store.Lookup(oldID); ok && c.Kind == world.KindPlayer && c.Dead {
		w.respawnPlayer(c)
	}
}

// Respawn возрождает мёртвого игрока по запросу клиента
func (w *World) Respawn(characterID int) error {
	c, err := w.store.Get(characterID)
	if err != nil {
		return err
	}
	if c.Kind != world.KindPlayer {
		return reject(protocol.CmdRespawn, "character %d is not a player", characterID)
	}
	if !c.Dead {
		return reject(protocol.CmdRespawn, "not dead")
	}
	if _, pending := w.dying[characterID]; pending {
		return reject(protocol.CmdRespawn, "death in progress")
	}
	w.respawnPlayer(c)
	return nil
}

func (w *World) respawnPlayer(c *world.Character) {
	c.Dead = false
	c.Health = c.MaxHealth
	c.Stamina = c.MaxStamina
	c.Position = w.spawnPoint()
	c.Rotation = vec.Identity

	w.broadcast(protocol.RespawnEvent(c.ID))
	stats := statsRecord(c.Stats)
	w.persist("SetStatsForCharacter", c.ID, func(ctx context.Context, s persistence.Store) error {
		return s.SetStatsForCharacter(ctx, c.ID, stats)
	})
	w.events.Emit(eventbus.TypeCharacterRespawned, eventbus.PriorityNormal, eventbus.CharacterRespawned{CharacterID: c.ID})
}

func (w *World) respawnNPC(c *world.Character) {
	c.Dead = false
	c.Health = c.MaxHealth
	c.Stamina = c.MaxStamina
	c.Rotation = vec.Identity
	w.nav.Warp(c.ID, c.NPC.Origin)

	w.broadcast(protocol.RespawnEvent(c.ID))
	w.events.Emit(eventbus.TypeCharacterRespawned, eventbus.PriorityNormal, eventbus.CharacterRespawned{CharacterID: c.ID})
}

// checkRespawns возрождает NPC, чья задержка истекла
func (w *World) checkRespawns() {
	now := w.clock.Now()
	for _, c := range w.store.NPCs() {
		if !c.Dead {
			continue
		}
		if _, pending := w.dying[c.ID]; pending {
			continue
		}
		if now-c.NPC.DiedAt >= c.NPC.RespawnDelay {
			w.respawnNPC(c)
		}
	}
}
