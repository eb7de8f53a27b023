package protocol

import (
	"errors"
	"testing"

	"github.com/annel0/lerocia/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_ClientCommands(t *testing.T) {
	cases := []struct {
		raw  string
		want ClientCommand
	}{
		{"NAMEIS|Aria|12", NameIs{PlayerName: "Aria", CharacterID: 12}},
		{"MYPOSITION|1|2.5|-3|1|0|0|0|17.25", MyPosition{
			Position: vec.Vec3{X: 1, Y: 2.5, Z: -3},
			Rotation: vec.Quat{W: 1},
			MoveTime: 17.25,
		}},
		{"ATK", Attack{}},
		{"HIT|5|30", Hit{TargetID: 5, Damage: 30}},
		{"USE|7", Use{ItemID: 7}},
		{"DROP|7|1|2|3", Drop{ItemID: 7, Position: vec.Vec3{X: 1, Y: 2, Z: 3}}},
		{"PICKUP|4", Pickup{WorldID: 4}},
		{"NPCITEMS|100", NPCItems{NPCID: 100}},
		{"BUY|100|7", Buy{MerchantID: 100, ItemID: 7}},
		{"LOOT|200|7", Loot{BodyID: 200, ItemID: 7}},
		{"RESPAWN", Respawn{}},
		{"BIND|3\n", Bind{ConnID: 3}},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := Decode(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.want.Name(), got.Name())
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Run("неизвестная команда", func(t *testing.T) {
		_, err := Decode("FLY|1")
		assert.ErrorIs(t, err, ErrUnknownCommand)
	})
	t.Run("пустое сообщение", func(t *testing.T) {
		_, err := Decode("")
		assert.ErrorIs(t, err, ErrEmptyMessage)
	})
	t.Run("лишний аргумент", func(t *testing.T) {
		_, err := Decode("USE|1|2")
		assert.ErrorIs(t, err, ErrArgCount)
	})
	t.Run("ATK с аргументом", func(t *testing.T) {
		_, err := Decode("ATK|1")
		assert.ErrorIs(t, err, ErrArgCount)
	})
	strict := []string{"USE|1.5", "USE| 1", "USE|+1", "USE|", "DROP|1|NaN|0|0", "DROP|1|Inf|0|0", "HIT|x|1", "BIND|-1"}
	for _, raw := range strict {
		t.Run("строгий разбор "+raw, func(t *testing.T) {
			_, err := Decode(raw)
			var pe *ParseError
			require.True(t, errors.As(err, &pe), "ожидалась ParseError, получено %v", err)
			assert.Positive(t, pe.Field)
		})
	}
	t.Run("имя с разделителем", func(t *testing.T) {
		_, err := Decode("NAMEIS|a%b|1")
		assert.Error(t, err)
		_, err = Decode("NAMEIS||1")
		assert.Error(t, err)
	})
}

func TestEncode(t *testing.T) {
	assert.Equal(t, "RESPAWN", Encode(CmdRespawn), "без аргументов кодируется голое имя")
	assert.Equal(t, "DC|5", Encode(CmdDisconnect, "5"))

	m, err := Split("HIT|1|2|3|4")
	require.NoError(t, err)
	assert.Equal(t, "HIT|1|2|3|4", m.String())
}

func TestServerMessages(t *testing.T) {
	assert.Equal(t, "ASKNAME|3|Aria%1;Bo%2", AskName(3, []RosterEntry{{"Aria", 1}, {"Bo", 2}}))
	assert.Equal(t, "ASKNAME|0|", AskName(0, nil))
	assert.Equal(t, "ITEMS|0%7%1%2%3;1%8%0.5%0%-1", Items([]WorldItemRecord{
		{WorldID: 0, ItemID: 7, Position: vec.Vec3{X: 1, Y: 2, Z: 3}},
		{WorldID: 1, ItemID: 8, Position: vec.Vec3{X: 0.5, Z: -1}},
	}))
	assert.Equal(t, "NPCS|100%Guard%friendly%1%0%2%1%0%0%0%80%100%4%1", NPCs([]CharacterRecord{{
		ID: 100, Name: "Guard", Personality: "friendly",
		Position: vec.Vec3{X: 1, Z: 2}, Rotation: vec.Identity,
		Health: 80, MaxHealth: 100, DialogueID: 4, Alive: true,
	}}))
	assert.Equal(t, "BODIES|200%Guard's body%1%0%2%7,8;201%Empty%0%0%0%", Bodies([]BodyRecord{
		{ID: 200, Name: "Guard's body", Position: vec.Vec3{X: 1, Z: 2}, Items: []int{7, 8}},
		{ID: 201, Name: "Empty"},
	}))
	assert.Equal(t, "CNN|1%Aria%friendly%0%1%0%1%0%0%0%100%100", Connected(CharacterRecord{
		ID: 1, Name: "Aria", Personality: "friendly", Position: vec.Vec3{Y: 1}, Rotation: vec.Identity,
		Health: 100, MaxHealth: 100,
	}))
	assert.Equal(t, "ASKPOSITION|1%0%1%0%1%0%0%0%2.5", AskPosition([]TransformRecord{
		{ID: 1, Position: vec.Vec3{Y: 1}, Rotation: vec.Identity, MoveTime: 2.5},
	}))
	assert.Equal(t, "DROP|1|0|7|1|2|3", DropEvent(1, 0, 7, vec.Vec3{X: 1, Y: 2, Z: 3}))
	assert.Equal(t, "PICKUP|2|0", PickupEvent(2, 0))
	assert.Equal(t, "DEATH|100|201|7;8", DeathEvent(100, 201, []int{7, 8}))
	assert.Equal(t, "INVENTORY|", Inventory(nil))
	assert.Equal(t, "NPCITEMS|100|7", NPCInventory(100, []int{7}))
	assert.Equal(t, "HIT|1|2|30|70", HitEvent(1, 2, 30, 70))
	assert.Equal(t, "ERROR|BUY|not enough gold", ErrorReply(CmdBuy, "not enough gold"))
	assert.Equal(t, "ERROR|BUY|a b", ErrorReply(CmdBuy, "a|b"))
}

func TestSplitInts(t *testing.T) {
	got, err := SplitInts("7;8;9", RecordSep)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 8, 9}, got)

	got, err = SplitInts("", RecordSep)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = SplitInts("7;x", RecordSep)
	assert.Error(t, err)
}

func TestKnown(t *testing.T) {
	assert.True(t, Known(CmdPickup))
	assert.False(t, Known(CmdAskPosition), "серверные команды клиент не шлёт")
	assert.False(t, Known("FLY"))
}
