package game

import (
	"errors"
	"fmt"

	"github.com/annel0/lerocia/internal/protocol"
	"github.com/annel0/lerocia/internal/session"
)

// HandleMessage разбирает и выполняет одну команду клиента
func (w *World) HandleMessage(conn session.ConnID, raw string) error {
	cmd, err := protocol.Decode(raw)
	if err != nil {
		return err
	}
	if c, ok := cmd.(protocol.NameIs); ok {
		return w.OnNameDeclared(conn, c.PlayerName, c.CharacterID)
	}

	characterID, ok := w.sessions.ReadyCharacterOf(conn)
	if !ok {
		if _, known := w.sessions.State(conn); !known {
			return session.ErrUnknownConn
		}
		return reject(cmd.Name(), "not in world")
	}

	switch c := cmd.(type) {
	case protocol.MyPosition:
		return w.Move(characterID, c)
	case protocol.Attack:
		if _, err := w.actor(protocol.CmdAttack, characterID); err != nil {
			return err
		}
		w.AttackIntent(characterID)
		return nil
	case protocol.Hit:
		return w.Hit(characterID, c.TargetID, c.Damage)
	case protocol.Use:
		return w.Use(characterID, c.ItemID)
	case protocol.Drop:
		_, err := w.Drop(characterID, c.ItemID, c.Position)
		return err
	case protocol.Pickup:
		return w.Pickup(characterID, c.WorldID)
	case protocol.NPCItems:
		return w.NPCItems(conn, c.NPCID)
	case protocol.Buy:
		return w.Buy(characterID, c.MerchantID, c.ItemID)
	case protocol.Loot:
		return w.Loot(characterID, c.BodyID, c.ItemID)
	case protocol.Respawn:
		return w.Respawn(characterID)
	case protocol.Bind:
		return reject(protocol.CmdBind, "bind is accepted on the unreliable channel only")
	default:
		return fmt.Errorf("%w: %s", protocol.ErrUnknownCommand, cmd.Name())
	}
}

// Move принимает положение, сообщённое клиентом. Мёртвые игроки не двигаются.
func (w *World) Move(characterID int, m protocol.MyPosition) error {
	c, err := w.store.Get(characterID)
	if err != nil {
		return err
	}
	if !c.Alive() {
		return nil
	}
	c.Position = m.Position
	c.Rotation = m.Rotation
	c.MoveTime = m.MoveTime
	return nil
}

// Hit урон от игрока: заявленный урон ограничен [0, урон атакующего]
func (w *World) Hit(attackerID, targetID, damage int) error {
	attacker, err := w.actor(protocol.CmdHit, attackerID)
	if err != nil {
		return err
	}
	if targetID == attackerID {
		return reject(protocol.CmdHit, "cannot hit self")
	}
	target, err := w.store.Get(targetID)
	if err != nil {
		return err
	}
	if limit := w.cfg.Game.MaxHitDistance; limit > 0 && attacker.Position.DistanceTo(target.Position) > limit {
		return reject(protocol.CmdHit, "target %d out of reach", targetID)
	}
	return w.ApplyDamage(attackerID, targetID, min(max(damage, 0), attacker.Damage))
}

// dispatch выполняет команду и классифицирует ошибку. Ни одна ошибка не
// прерывает тик и не закрывает соединение.
func (w *World) dispatch(conn session.ConnID, raw string) {
	err := w.HandleMessage(conn, raw)
	class := Classify(err)
	w.metrics.ObserveCommand(commandLabel(raw, class), class)

	switch class {
	case ClassOK:
	case ClassValidation:
		var verr *ValidationError
		errors.As(err, &verr)
		w.log.Debug("Соединение %d: отказ %v", conn, err)
		w.send(conn, protocol.ErrorReply(verr.Command, verr.Reason))
	case ClassProtocol:
		w.log.Warn("Соединение %d: ошибка протокола: %v", conn, err)
	case ClassIntegrity:
		w.log.Warn("Соединение %d: ошибка целостности: %v", conn, err)
	default:
		w.log.Error("Соединение %d: %v", conn, err)
	}
}

// commandLabel имя команды для метрик; неизвестные команды схлопываются
func commandLabel(raw string, class ErrorClass) string {
	m, err := protocol.Split(raw)
	if err != nil {
		return "empty"
	}
	if class == ClassProtocol && !protocol.Known(m.Command) {
		return "unknown"
	}
	return string(m.Command)
}
