package protocol

import (
	"fmt"

	"github.com/annel0/lerocia/internal/vec"
)

// Command имя команды протокола
type Command string

// Команды клиента
const (
	CmdNameIs     Command = "NAMEIS"
	CmdMyPosition Command = "MYPOSITION"
	CmdAttack     Command = "ATK"
	CmdHit        Command = "HIT"
	CmdUse        Command = "USE"
	CmdDrop       Command = "DROP"
	CmdPickup     Command = "PICKUP"
	CmdNPCItems   Command = "NPCITEMS"
	CmdBuy        Command = "BUY"
	CmdLoot       Command = "LOOT"
	CmdRespawn    Command = "RESPAWN"
	// CmdBind привязывает UDP адрес к KCP соединению
	CmdBind Command = "BIND"
)

// Команды сервера
const (
	CmdAskName     Command = "ASKNAME"
	CmdItems       Command = "ITEMS"
	CmdNPCs        Command = "NPCS"
	CmdBodies      Command = "BODIES"
	CmdConnected   Command = "CNN"
	CmdDisconnect  Command = "DC"
	CmdAskPosition Command = "ASKPOSITION"
	CmdDeath       Command = "DEATH"
	CmdInventory   Command = "INVENTORY"
	CmdError       Command = "ERROR"
)

// ClientCommand типизированная команда клиента
type ClientCommand interface {
	Name() Command
}

type NameIs struct {
	PlayerName  string
	CharacterID int
}

type MyPosition struct {
	Position vec.Vec3
	Rotation vec.Quat
	MoveTime float64
}

type Attack struct{}

type Hit struct {
	TargetID int
	Damage   int
}

type Use struct {
	ItemID int
}

type Drop struct {
	ItemID   int
	Position vec.Vec3
}

type Pickup struct {
	WorldID int
}

type NPCItems struct {
	NPCID int
}

type Buy struct {
	MerchantID int
	ItemID     int
}

type Loot struct {
	BodyID int
	ItemID int
}

type Respawn struct{}

type Bind struct {
	ConnID uint32
}

func (NameIs) Name() Command     { return CmdNameIs }
func (MyPosition) Name() Command { return CmdMyPosition }
func (Attack) Name() Command     { return CmdAttack }
func (Hit) Name() Command        { return CmdHit }
func (Use) Name() Command        { return CmdUse }
func (Drop) Name() Command       { return CmdDrop }
func (Pickup) Name() Command     { return CmdPickup }
func (NPCItems) Name() Command   { return CmdNPCItems }
func (Buy) Name() Command        { return CmdBuy }
func (Loot) Name() Command       { return CmdLoot }
func (Respawn) Name() Command    { return CmdRespawn }
func (Bind) Name() Command       { return CmdBind }

// Decode разбирает сырое сообщение клиента в типизированную команду
func Decode(raw string) (ClientCommand, error) {
	m, err := Split(raw)
	if err != nil {
		return nil, err
	}
	decode, ok := decoders[m.Command]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownCommand, m.Command)
	}
	return decode(m)
}

// Known сообщает, есть ли у команды клиента декодер
func Known(cmd Command) bool {
	_, ok := decoders[cmd]
	return ok
}

var decoders = map[Command]func(Message) (ClientCommand, error){
	CmdNameIs: func(m Message) (ClientCommand, error) {
		r, err := newArgReader(m, 2)
		if err != nil {
			return nil, err
		}
		c := NameIs{PlayerName: r.name(0), CharacterID: r.int(1)}
		return c, r.err
	},
	CmdMyPosition: func(m Message) (ClientCommand, error) {
		r, err := newArgReader(m, 8)
		if err != nil {
			return nil, err
		}
		c := MyPosition{
			Position: vec.Vec3{X: r.float(0), Y: r.float(1), Z: r.float(2)},
			Rotation: vec.Quat{W: r.float(3), X: r.float(4), Y: r.float(5), Z: r.float(6)},
			MoveTime: r.float(7),
		}
		return c, r.err
	},
	CmdAttack: func(m Message) (ClientCommand, error) {
		if _, err := newArgReader(m, 0); err != nil {
			return nil, err
		}
		return Attack{}, nil
	},
	CmdHit: func(m Message) (ClientCommand, error) {
		r, err := newArgReader(m, 2)
		if err != nil {
			return nil, err
		}
		c := Hit{TargetID: r.int(0), Damage: r.int(1)}
		return c, r.err
	},
	CmdUse: func(m Message) (ClientCommand, error) {
		r, err := newArgReader(m, 1)
		if err != nil {
			return nil, err
		}
		c := Use{ItemID: r.int(0)}
		return c, r.err
	},
	CmdDrop: func(m Message) (ClientCommand, error) {
		r, err := newArgReader(m, 4)
		if err != nil {
			return nil, err
		}
		c := Drop{ItemID: r.int(0), Position: vec.Vec3{X: r.float(1), Y: r.float(2), Z: r.float(3)}}
		return c, r.err
	},
	CmdPickup: func(m Message) (ClientCommand, error) {
		r, err := newArgReader(m, 1)
		if err != nil {
			return nil, err
		}
		c := Pickup{WorldID: r.int(0)}
		return c, r.err
	},
	CmdNPCItems: func(m Message) (ClientCommand, error) {
		r, err := newArgReader(m, 1)
		if err != nil {
			return nil, err
		}
		c := NPCItems{NPCID: r.int(0)}
		return c, r.err
	},
	CmdBuy: func(m Message) (ClientCommand, error) {
		r, err := newArgReader(m, 2)
		if err != nil {
			return nil, err
		}
		c := Buy{MerchantID: r.int(0), ItemID: r.int(1)}
		return c, r.err
	},
	CmdLoot: func(m Message) (ClientCommand, error) {
		r, err := newArgReader(m, 2)
		if err != nil {
			return nil, err
		}
		c := Loot{BodyID: r.int(0), ItemID: r.int(1)}
		return c, r.err
	},
	CmdRespawn: func(m Message) (ClientCommand, error) {
		if _, err := newArgReader(m, 0); err != nil {
			return nil, err
		}
		return Respawn{}, nil
	},
	CmdBind: func(m Message) (ClientCommand, error) {
		r, err := newArgReader(m, 1)
		if err != nil {
			return nil, err
		}
		id := r.int(0)
		if r.err == nil && id < 0 {
			r.fail(0, fmt.Errorf("отрицательный id соединения %d", id))
		}
		return Bind{ConnID: uint32(id)}, r.err
	},
}
