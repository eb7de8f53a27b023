package protocol

import (
	"fmt"
	"strings"

	"github.com/annel0/lerocia/internal/vec"
)

// RosterEntry имя и id подключённого игрока для ASKNAME
type RosterEntry struct {
	Name string
	ID   int
}

// WorldItemRecord предмет, лежащий в мире
type WorldItemRecord struct {
	WorldID  int
	ItemID   int
	Position vec.Vec3
}

// CharacterRecord полный снимок персонажа (CNN, NPCS)
type CharacterRecord struct {
	ID          int
	Name        string
	Personality string
	Position    vec.Vec3
	Rotation    vec.Quat
	Health      int
	MaxHealth   int
	DialogueID  int
	Alive       bool
}

// BodyRecord труп и его содержимое
type BodyRecord struct {
	ID       int
	Name     string
	Position vec.Vec3
	Items    []int
}

// TransformRecord компактное положение для ASKPOSITION
type TransformRecord struct {
	ID       int
	Position vec.Vec3
	Rotation vec.Quat
	MoveTime float64
}

func joinRecords[T any](records []T, enc func(T) string) string {
	parts := make([]string, len(records))
	for i, r := range records {
		parts[i] = enc(r)
	}
	return strings.Join(parts, RecordSep)
}

func values(v ...string) string {
	return strings.Join(v, ValueSep)
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func vec3Values(p vec.Vec3) []string {
	return []string{FormatFloat(p.X), FormatFloat(p.Y), FormatFloat(p.Z)}
}

func quatValues(q vec.Quat) []string {
	return []string{FormatFloat(q.W), FormatFloat(q.X), FormatFloat(q.Y), FormatFloat(q.Z)}
}

func encodeCharacter(c CharacterRecord, full bool) string {
	v := []string{Itoa(c.ID), c.Name, c.Personality}
	v = append(v, vec3Values(c.Position)...)
	v = append(v, quatValues(c.Rotation)...)
	v = append(v, Itoa(c.Health), Itoa(c.MaxHealth))
	if full {
		v = append(v, Itoa(c.DialogueID), boolFlag(c.Alive))
	}
	return values(v...)
}

// AskName вызов представиться новому соединению со списком уже загруженных игроков
func AskName(connID uint32, roster []RosterEntry) string {
	return Encode(CmdAskName, fmt.Sprint(connID), joinRecords(roster, func(e RosterEntry) string {
		return values(e.Name, Itoa(e.ID))
	}))
}

// Items список предметов в мире
func Items(items []WorldItemRecord) string {
	return Encode(CmdItems, joinRecords(items, func(w WorldItemRecord) string {
		return values(append([]string{Itoa(w.WorldID), Itoa(w.ItemID)}, vec3Values(w.Position)...)...)
	}))
}

// NPCs снимок всех NPC
func NPCs(npcs []CharacterRecord) string {
	return Encode(CmdNPCs, joinRecords(npcs, func(c CharacterRecord) string {
		return encodeCharacter(c, true)
	}))
}

// Bodies снимок трупов вместе с инвентарём
func Bodies(bodies []BodyRecord) string {
	return Encode(CmdBodies, joinRecords(bodies, func(b BodyRecord) string {
		v := append([]string{Itoa(b.ID), b.Name}, vec3Values(b.Position)...)
		return values(append(v, JoinInts(b.Items, ListSep))...)
	}))
}

// Connected о новом игроке
func Connected(c CharacterRecord) string {
	return Encode(CmdConnected, encodeCharacter(c, false))
}

// Disconnected об ушедшем игроке
func Disconnected(characterID int) string {
	return Encode(CmdDisconnect, Itoa(characterID))
}

// AskPosition кадр положений для ненадёжного канала
func AskPosition(transforms []TransformRecord) string {
	return Encode(CmdAskPosition, joinRecords(transforms, func(t TransformRecord) string {
		v := append([]string{Itoa(t.ID)}, vec3Values(t.Position)...)
		v = append(v, quatValues(t.Rotation)...)
		return values(append(v, FormatFloat(t.MoveTime))...)
	}))
}

// HitEvent HIT|attacker|target|damage|health
func HitEvent(attackerID, targetID, damage, health int) string {
	return Encode(CmdHit, Itoa(attackerID), Itoa(targetID), Itoa(damage), Itoa(health))
}

// AttackEvent ATK|char
func AttackEvent(characterID int) string {
	return Encode(CmdAttack, Itoa(characterID))
}

// UseEvent USE|char|item
func UseEvent(characterID, itemID int) string {
	return Encode(CmdUse, Itoa(characterID), Itoa(itemID))
}

// DropEvent DROP|char|world|item|x|y|z
func DropEvent(characterID, worldID, itemID int, pos vec.Vec3) string {
	return Encode(CmdDrop, append([]string{Itoa(characterID), Itoa(worldID), Itoa(itemID)}, vec3Values(pos)...)...)
}

// PickupEvent PICKUP|char|world
func PickupEvent(characterID, worldID int) string {
	return Encode(CmdPickup, Itoa(characterID), Itoa(worldID))
}

// BuyEvent BUY|buyer|merchant|item
func BuyEvent(buyerID, merchantID, itemID int) string {
	return Encode(CmdBuy, Itoa(buyerID), Itoa(merchantID), Itoa(itemID))
}

// LootEvent LOOT|char|body|item
func LootEvent(characterID, bodyID, itemID int) string {
	return Encode(CmdLoot, Itoa(characterID), Itoa(bodyID), Itoa(itemID))
}

// DeathEvent DEATH|old|body|items
func DeathEvent(oldID, bodyID int, items []int) string {
	return Encode(CmdDeath, Itoa(oldID), Itoa(bodyID), JoinInts(items, RecordSep))
}

// RespawnEvent RESPAWN|char
func RespawnEvent(characterID int) string {
	return Encode(CmdRespawn, Itoa(characterID))
}

// Inventory INVENTORY|items
func Inventory(items []int) string {
	return Encode(CmdInventory, JoinInts(items, RecordSep))
}

// NPCInventory NPCITEMS|npc|items
func NPCInventory(npcID int, items []int) string {
	return Encode(CmdNPCItems, Itoa(npcID), JoinInts(items, RecordSep))
}

// ErrorReply ERROR|command|reason, только инициатору
func ErrorReply(cmd Command, reason string) string {
	reason = strings.NewReplacer(FieldSep, " ", "\n", " ").Replace(reason)
	return Encode(CmdError, string(cmd), reason)
}
