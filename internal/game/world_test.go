package game

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/annel0/lerocia/internal/config"
	"github.com/annel0/lerocia/internal/persistence"
	"github.com/annel0/lerocia/internal/protocol"
	"github.com/annel0/lerocia/internal/session"
	"github.com/annel0/lerocia/internal/storage"
	"github.com/annel0/lerocia/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder запоминает отправленные сообщения по соединениям
type recorder struct {
	mu         sync.Mutex
	reliable   map[session.ConnID][]string
	unreliable map[session.ConnID][]string
}

func newRecorder() *recorder {
	return &recorder{
		reliable:   make(map[session.ConnID][]string),
		unreliable: make(map[session.ConnID][]string),
	}
}

func (r *recorder) SendReliable(conn session.ConnID, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reliable[conn] = append(r.reliable[conn], msg)
}

func (r *recorder) SendUnreliable(conn session.ConnID, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unreliable[conn] = append(r.unreliable[conn], msg)
}

// withPrefix сообщения соединения, начинающиеся с команды cmd
func (r *recorder) withPrefix(conn session.ConnID, cmd protocol.Command) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.reliable[conn] {
		if strings.HasPrefix(m, string(cmd)+protocol.FieldSep) || m == string(cmd) {
			out = append(out, m)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reliable = make(map[session.ConnID][]string)
	r.unreliable = make(map[session.ConnID][]string)
}

type fixture struct {
	w   *World
	out *recorder
	db  *storage.MemoryStore
	gw  *persistence.Gateway
}

func newFixture(t *testing.T, seed *storage.Seed, tweak ...func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.Default()
	for _, fn := range tweak {
		fn(cfg)
	}
	db := storage.NewMemoryStore(seed)
	gw := persistence.NewGateway(db, persistence.Options{Workers: 2, Timeout: time.Second})
	t.Cleanup(func() { _ = gw.Close() })

	out := newRecorder()
	w := New(Deps{Config: cfg, Gateway: gw, Out: out})
	require.NoError(t, w.Bootstrap(context.Background()))
	return &fixture{w: w, out: out, db: db, gw: gw}
}

func (f *fixture) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.gw.Settle(ctx))
}

// join проводит соединение через рукопожатие до готовности
func (f *fixture) join(t *testing.T, conn session.ConnID, name string, id int) *world.Character {
	t.Helper()
	require.NoError(t, f.w.OnConnect(conn))
	require.NoError(t, f.w.HandleMessage(conn, "NAMEIS|"+name+"|"+protocol.Itoa(id)))
	f.settle(t)
	require.True(t, f.w.Sessions().IsReady(id))
	c, err := f.w.Store().Get(id)
	require.NoError(t, err)
	return c
}

func TestJoinSendsWorldState(t *testing.T) {
	f := newFixture(t, &storage.Seed{
		WorldItems: []persistence.WorldItemRecord{{WorldID: 1, ItemID: 7, X: 3}},
		NPCs: []persistence.NPCRecord{{
			ID: 5, Name: "Guard", Personality: "friendly", Z: 20,
			StatsRecord: persistence.StatsRecord{MaxHealth: 100, Health: 100},
		}},
	})

	require.NoError(t, f.w.OnConnect(1))
	require.NoError(t, f.w.HandleMessage(1, "NAMEIS|alice|10"))
	assert.False(t, f.w.Sessions().IsReady(10), "персонаж появляется только после загрузки")

	f.settle(t)
	msgs := f.out.reliable[1]
	require.Len(t, msgs, 6)
	assert.True(t, strings.HasPrefix(msgs[0], "ASKNAME|1"))
	assert.Equal(t, "ITEMS|1%7%3%0%0", msgs[1])
	assert.True(t, strings.HasPrefix(msgs[2], "NPCS|5%Guard%friendly"))
	assert.Equal(t, "BODIES|", msgs[3])
	assert.Equal(t, "INVENTORY|", msgs[4])
	assert.True(t, strings.HasPrefix(msgs[5], "CNN|10%alice"))

	// Новый персонаж получает начальные характеристики в хранилище
	f.settle(t)
	stats, ok := f.db.Stats(10)
	require.True(t, ok)
	assert.Equal(t, 100, stats.MaxHealth)
	assert.True(t, f.db.Online(10))
}

func TestRosterListsLoadedPlayers(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, 1, "alice", 10)

	require.NoError(t, f.w.OnConnect(2))
	assert.Equal(t, "ASKNAME|2|alice%10", f.out.reliable[2][0])
}

func TestDuplicateNameRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, 1, "alice", 10)
	require.NoError(t, f.w.OnConnect(2))

	f.w.dispatch(2, "NAMEIS|alice|10")
	replies := f.out.withPrefix(2, protocol.CmdError)
	require.Len(t, replies, 1)
	assert.True(t, strings.HasPrefix(replies[0], "ERROR|NAMEIS|"))
}

func TestCommandsBeforeReadyRejected(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.w.OnConnect(1))

	f.w.dispatch(1, "HIT|5|10")
	assert.Equal(t, []string{"ERROR|HIT|not in world"}, f.out.withPrefix(1, protocol.CmdError))
}

func TestStaleLoadDiscarded(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.w.OnConnect(1))
	require.NoError(t, f.w.HandleMessage(1, "NAMEIS|alice|10"))
	require.NoError(t, f.w.OnDisconnect(1))

	f.settle(t)
	_, ok := f.w.Store().Lookup(10)
	assert.False(t, ok)
	assert.Equal(t, 1, f.db.Calls("Logout"))
	assert.False(t, f.db.Online(10))
}

func TestLoadFailureReturnsToPending(t *testing.T) {
	f := newFixture(t, nil)
	f.db.FailOn("GetStatsForCharacter", &persistence.RemoteError{Op: "GetStatsForCharacter", Msg: "db down"})
	require.NoError(t, f.w.OnConnect(1))
	require.NoError(t, f.w.HandleMessage(1, "NAMEIS|alice|10"))
	f.settle(t)

	st, ok := f.w.Sessions().State(1)
	require.True(t, ok)
	assert.Equal(t, session.StatePending, st)
	assert.Equal(t, []string{"ERROR|NAMEIS|load failed"}, f.out.withPrefix(1, protocol.CmdError))

	f.db.FailOn("GetStatsForCharacter", nil)
	require.NoError(t, f.w.HandleMessage(1, "NAMEIS|alice|10"))
	f.settle(t)
	assert.True(t, f.w.Sessions().IsReady(10))
}

func TestDisconnectFlushesStats(t *testing.T) {
	f := newFixture(t, nil)
	alice := f.join(t, 1, "alice", 10)
	f.join(t, 2, "bob", 11)

	alice.Gold = 77
	require.NoError(t, f.w.OnDisconnect(1))
	f.settle(t)

	stats, ok := f.db.Stats(10)
	require.True(t, ok)
	assert.Equal(t, 77, stats.Gold)
	assert.False(t, f.db.Online(10))
	assert.Contains(t, f.out.withPrefix(2, protocol.CmdDisconnect), "DC|10")
	_, ok = f.w.Store().Lookup(10)
	assert.False(t, ok)
}

func TestDropAndPickup(t *testing.T) {
	f := newFixture(t, &storage.Seed{
		Items: []persistence.ItemRecord{{OwnerID: 10, ItemID: 4}},
	})
	alice := f.join(t, 1, "alice", 10)
	require.Equal(t, []int{4}, alice.Inventory)

	require.NoError(t, f.w.HandleMessage(1, "DROP|4|1|0|2"))
	items := f.w.Store().WorldItems()
	require.Len(t, items, 1)
	worldID := items[0].WorldID
	assert.Empty(t, alice.Inventory)
	assert.Contains(t, f.out.withPrefix(1, protocol.CmdDrop), "DROP|10|"+protocol.Itoa(worldID)+"|4|1|0|2")

	f.settle(t)
	assert.True(t, f.db.HasWorldItem(worldID))
	assert.Empty(t, f.db.Items(10))

	require.NoError(t, f.w.HandleMessage(1, "PICKUP|"+protocol.Itoa(worldID)))
	assert.Equal(t, []int{4}, alice.Inventory)
	assert.Empty(t, f.w.Store().WorldItems())

	f.settle(t)
	assert.False(t, f.db.HasWorldItem(worldID))
	assert.Equal(t, []int{4}, f.db.Items(10))
}

func TestDropPickedUpByAnotherPlayer(t *testing.T) {
	f := newFixture(t, &storage.Seed{
		Items: []persistence.ItemRecord{{OwnerID: 10, ItemID: 7}},
	})
	alice := f.join(t, 1, "alice", 10)
	bob := f.join(t, 2, "bob", 11)

	require.NoError(t, f.w.HandleMessage(1, "DROP|7|1|2|3"))
	items := f.w.Store().WorldItems()
	require.Len(t, items, 1)
	worldID := protocol.Itoa(items[0].WorldID)
	assert.Contains(t, f.out.withPrefix(2, protocol.CmdDrop), "DROP|10|"+worldID+"|7|1|2|3")

	require.NoError(t, f.w.HandleMessage(2, "PICKUP|"+worldID))
	assert.Contains(t, f.out.withPrefix(1, protocol.CmdPickup), "PICKUP|11|"+worldID)
	assert.Empty(t, alice.Inventory)
	assert.Equal(t, []int{7}, bob.Inventory)
	assert.Empty(t, f.w.Store().WorldItems())

	f.settle(t)
	assert.Empty(t, f.db.Items(10))
	assert.Equal(t, []int{7}, f.db.Items(11))
	assert.False(t, f.db.HasWorldItem(items[0].WorldID))
}

func TestDropItemNotHeld(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, 1, "alice", 10)

	err := f.w.HandleMessage(1, "DROP|4|0|0|0")
	assert.ErrorIs(t, err, world.ErrNotHeld)
	assert.Equal(t, ClassIntegrity, Classify(err))
}

func TestPlayerDeathCreatesBody(t *testing.T) {
	f := newFixture(t, &storage.Seed{
		Items: []persistence.ItemRecord{{OwnerID: 10, ItemID: 4}, {OwnerID: 10, ItemID: 6}},
		NPCs: []persistence.NPCRecord{{
			ID: 5, Name: "Bandit", Personality: "enemy", Z: 50,
			StatsRecord: persistence.StatsRecord{MaxHealth: 100, Health: 100, BaseDamage: 60},
		}},
	})
	alice := f.join(t, 1, "alice", 10)

	require.NoError(t, f.w.ApplyDamage(5, 10, 60))
	assert.Equal(t, 40, alice.Health)
	require.NoError(t, f.w.ApplyDamage(5, 10, 60))
	assert.Contains(t, f.out.withPrefix(1, protocol.CmdHit), "HIT|5|10|60|0")
	assert.True(t, alice.Dead)
	assert.Empty(t, alice.Inventory)

	// Повторный урон по мёртвому отклоняется
	assert.Equal(t, ClassValidation, Classify(f.w.ApplyDamage(5, 10, 60)))

	f.settle(t)
	bodies := f.w.Store().Bodies()
	require.Len(t, bodies, 1)
	body := bodies[0]
	assert.NotEqual(t, 10, body.ID)
	assert.Equal(t, "alice's body", body.Name)
	assert.Equal(t, []int{4, 6}, body.Inventory)

	assert.Equal(t, 1, f.db.Calls("CreateBody"))
	assert.Equal(t, 1, f.db.Calls("UpdateInventoryOwnership"))
	assert.ElementsMatch(t, []int{4, 6}, f.db.Items(body.ID))
	assert.Empty(t, f.db.Items(10))

	deaths := f.out.withPrefix(1, protocol.CmdDeath)
	require.Len(t, deaths, 1)
	assert.Equal(t, "DEATH|10|"+protocol.Itoa(body.ID)+"|4;6", deaths[0])

	// Игрок возрождается в точке появления с полным здоровьем
	assert.False(t, alice.Dead)
	assert.Equal(t, alice.MaxHealth, alice.Health)
	assert.Equal(t, f.w.spawnPoint(), alice.Position)
	assert.Contains(t, f.out.withPrefix(1, protocol.CmdRespawn), "RESPAWN|10")
}

func TestAwaitRespawnPolicy(t *testing.T) {
	f := newFixture(t, &storage.Seed{
		Items: []persistence.ItemRecord{{OwnerID: 10, ItemID: 4}},
	}, func(c *config.Config) { c.Game.DeathPolicy = config.DeathPolicyAwaitRespawn })
	alice := f.join(t, 1, "alice", 10)
	f.join(t, 2, "bob", 11)

	require.NoError(t, f.w.ApplyDamage(11, 10, 500))
	f.settle(t)
	assert.True(t, alice.Dead)
	assert.Empty(t, f.w.Store().Bodies())
	assert.Equal(t, []int{4}, alice.Inventory)
	assert.Equal(t, []string{"DEATH|10|-1|"}, f.out.withPrefix(2, protocol.CmdDeath))
	assert.Zero(t, f.db.Calls("CreateBody"))

	// Мёртвый игрок не может атаковать
	f.w.dispatch(1, "HIT|11|5")
	assert.Len(t, f.out.withPrefix(1, protocol.CmdError), 1)

	require.NoError(t, f.w.HandleMessage(1, "RESPAWN"))
	assert.False(t, alice.Dead)
	assert.Equal(t, alice.MaxHealth, alice.Health)
	assert.Equal(t, ClassValidation, Classify(f.w.HandleMessage(1, "RESPAWN")))
}

func TestHitClampsDamage(t *testing.T) {
	f := newFixture(t, nil)
	alice := f.join(t, 1, "alice", 10)
	bob := f.join(t, 2, "bob", 11)

	require.NoError(t, f.w.HandleMessage(1, "HIT|11|9999"))
	assert.Equal(t, bob.MaxHealth-alice.Damage, bob.Health)

	require.NoError(t, f.w.HandleMessage(1, "HIT|11|-5"))
	assert.Equal(t, bob.MaxHealth-alice.Damage, bob.Health)

	assert.Equal(t, ClassValidation, Classify(f.w.HandleMessage(1, "HIT|10|5")))
}

func TestHitRespectsArmor(t *testing.T) {
	f := newFixture(t, &storage.Seed{
		Items: []persistence.ItemRecord{{OwnerID: 11, ItemID: 3}},
	})
	f.join(t, 1, "alice", 10)
	bob := f.join(t, 2, "bob", 11)
	require.NoError(t, f.w.HandleMessage(2, "USE|3"))
	require.Equal(t, 12, bob.Armor)

	require.NoError(t, f.w.HandleMessage(1, "HIT|11|10"))
	assert.Equal(t, bob.MaxHealth, bob.Health)
	assert.Contains(t, f.out.withPrefix(1, protocol.CmdHit), "HIT|10|11|0|100")
}

func TestUseItems(t *testing.T) {
	f := newFixture(t, &storage.Seed{
		Items: []persistence.ItemRecord{{OwnerID: 10, ItemID: 0}, {OwnerID: 10, ItemID: 4}, {OwnerID: 10, ItemID: 7}},
	})
	alice := f.join(t, 1, "alice", 10)

	require.NoError(t, f.w.HandleMessage(1, "USE|0"))
	assert.Equal(t, 0, alice.Weapon)
	assert.Equal(t, 25, alice.Damage)
	require.NoError(t, f.w.HandleMessage(1, "USE|0"))
	assert.Equal(t, world.NoItem, alice.Weapon)
	assert.Equal(t, alice.BaseDamage, alice.Damage)

	alice.Health = 30
	require.NoError(t, f.w.HandleMessage(1, "USE|4"))
	assert.Equal(t, 70, alice.Health)
	assert.Equal(t, []int{0, 7}, alice.Inventory)

	assert.Equal(t, ClassValidation, Classify(f.w.HandleMessage(1, "USE|7")))
	assert.Equal(t, ClassValidation, Classify(f.w.HandleMessage(1, "USE|4")))

	f.settle(t)
	assert.ElementsMatch(t, []int{0, 7}, f.db.Items(10))
	stats, ok := f.db.Stats(10)
	require.True(t, ok)
	assert.Equal(t, 70, stats.Health)
}

func TestBuyFromMerchant(t *testing.T) {
	f := newFixture(t, &storage.Seed{
		NPCs: []persistence.NPCRecord{{
			ID: 5, Name: "Trader", Personality: "friendly", Z: 30,
			StatsRecord: persistence.StatsRecord{MaxHealth: 100, Health: 100},
		}},
		Items: []persistence.ItemRecord{{OwnerID: 5, ItemID: 0}, {OwnerID: 5, ItemID: 6}},
		Stats: map[int]persistence.StatsRecord{10: {MaxHealth: 100, Health: 100, Gold: 60, BaseDamage: 10, Weapon: -1, Apparel: -1}},
	})
	alice := f.join(t, 1, "alice", 10)
	trader, err := f.w.Store().Get(5)
	require.NoError(t, err)

	require.NoError(t, f.w.HandleMessage(1, "BUY|5|0"))
	assert.Equal(t, 10, alice.Gold)
	assert.Equal(t, 50, trader.Gold)
	assert.Equal(t, []int{0}, alice.Inventory)
	assert.Equal(t, []int{6}, trader.Inventory)
	assert.Contains(t, f.out.withPrefix(1, protocol.CmdBuy), "BUY|10|5|0")

	f.w.dispatch(1, "BUY|5|6")
	assert.Equal(t, []string{"ERROR|BUY|not enough gold"}, f.out.withPrefix(1, protocol.CmdError))
	assert.Equal(t, []int{6}, trader.Inventory)

	assert.Equal(t, ClassValidation, Classify(f.w.HandleMessage(1, "BUY|10|0")))

	f.settle(t)
	assert.Equal(t, []int{0}, f.db.Items(10))
	assert.Equal(t, []int{6}, f.db.Items(5))
	stats, ok := f.db.Stats(5)
	require.True(t, ok)
	assert.Equal(t, 50, stats.Gold)
}

func TestBuyUnknownItem(t *testing.T) {
	f := newFixture(t, &storage.Seed{
		NPCs: []persistence.NPCRecord{{
			ID: 5, Name: "Trader", Personality: "friendly", Z: 30,
			StatsRecord: persistence.StatsRecord{MaxHealth: 100, Health: 100},
		}},
	})
	f.join(t, 1, "alice", 10)
	trader, err := f.w.Store().Get(5)
	require.NoError(t, err)
	trader.Inventory = append(trader.Inventory, 999)

	err = f.w.HandleMessage(1, "BUY|5|999")
	assert.Equal(t, ClassValidation, Classify(err))
	assert.Contains(t, err.Error(), "unknown item 999")
	assert.NotContains(t, err.Error(), "gold")
	assert.Equal(t, []int{999}, trader.Inventory)
}

func TestLootBody(t *testing.T) {
	f := newFixture(t, &storage.Seed{
		Bodies: []persistence.BodyRecord{{
			ID: 20, Name: "Old body", Personality: "enemy", X: 2,
			StatsRecord: persistence.StatsRecord{MaxHealth: 100},
		}},
		NPCs: []persistence.NPCRecord{{
			ID: 5, Name: "Trader", Personality: "friendly", Z: 30,
			StatsRecord: persistence.StatsRecord{MaxHealth: 100, Health: 100},
		}},
		Items: []persistence.ItemRecord{{OwnerID: 20, ItemID: 6}, {OwnerID: 5, ItemID: 7}},
	})
	alice := f.join(t, 1, "alice", 10)

	require.NoError(t, f.w.HandleMessage(1, "NPCITEMS|20"))
	assert.Equal(t, []string{"NPCITEMS|20|6"}, f.out.withPrefix(1, protocol.CmdNPCItems))

	require.NoError(t, f.w.HandleMessage(1, "LOOT|20|6"))
	assert.Equal(t, []int{6}, alice.Inventory)
	assert.Contains(t, f.out.withPrefix(1, protocol.CmdLoot), "LOOT|10|20|6")

	// Пустой труп остаётся в мире
	_, ok := f.w.Store().Lookup(20)
	assert.True(t, ok)

	assert.Equal(t, ClassValidation, Classify(f.w.HandleMessage(1, "LOOT|5|7")))
	assert.Equal(t, ClassValidation, Classify(f.w.HandleMessage(1, "LOOT|20|6")))
	assert.Equal(t, ClassValidation, Classify(f.w.HandleMessage(1, "NPCITEMS|10")))

	f.settle(t)
	assert.Equal(t, []int{6}, f.db.Items(10))
	assert.Empty(t, f.db.Items(20))
}

func TestNPCDeathAndRespawn(t *testing.T) {
	f := newFixture(t, &storage.Seed{
		NPCs: []persistence.NPCRecord{{
			ID: 5, Name: "Wolf", Personality: "enemy", X: 40, RespawnDelay: 10,
			StatsRecord: persistence.StatsRecord{MaxHealth: 50, Health: 50},
		}},
		Items: []persistence.ItemRecord{{OwnerID: 5, ItemID: 5}},
	})
	f.join(t, 1, "alice", 10)

	require.NoError(t, f.w.ApplyDamage(10, 5, 50))
	wolf, err := f.w.Store().Get(5)
	require.NoError(t, err)
	assert.True(t, wolf.Dead)

	// Пока труп создаётся, NPC не возрождается
	f.w.checkRespawns()
	assert.True(t, wolf.Dead)

	f.settle(t)
	require.Len(t, f.w.Store().Bodies(), 1)
	assert.Equal(t, []int{5}, f.w.Store().Bodies()[0].Inventory)

	f.w.Step(5 * time.Second)
	assert.True(t, wolf.Dead)
	f.w.Step(5 * time.Second)
	assert.False(t, wolf.Dead)
	assert.Equal(t, 50, wolf.Health)
	assert.Equal(t, wolf.NPC.Origin, wolf.Position)
	assert.Empty(t, wolf.Inventory)
	assert.Contains(t, f.out.withPrefix(1, protocol.CmdRespawn), "RESPAWN|5")
}

func TestNPCKilledByTwoHits(t *testing.T) {
	f := newFixture(t, &storage.Seed{
		NPCs: []persistence.NPCRecord{{
			ID: 5, Name: "Deer", Personality: "passive", X: 40, RespawnDelay: 10,
			StatsRecord: persistence.StatsRecord{MaxHealth: 100, Health: 100},
		}},
	})
	f.join(t, 1, "alice", 10)
	deer, err := f.w.Store().Get(5)
	require.NoError(t, err)

	require.NoError(t, f.w.ApplyDamage(10, 5, 60))
	f.settle(t)
	assert.False(t, deer.Dead)
	assert.Empty(t, f.out.withPrefix(1, protocol.CmdDeath))

	require.NoError(t, f.w.ApplyDamage(10, 5, 60))
	f.settle(t)
	assert.Equal(t, []string{"HIT|10|5|60|40", "HIT|10|5|60|0"}, f.out.withPrefix(1, protocol.CmdHit))
	deaths := f.out.withPrefix(1, protocol.CmdDeath)
	require.Len(t, deaths, 1)
	assert.True(t, strings.HasPrefix(deaths[0], "DEATH|5|"))

	f.out.reset()
	f.w.BroadcastPositions()
	require.Len(t, f.out.unreliable[1], 1)
	assert.Equal(t, []string{"10"}, frameIDs(t, f.out.unreliable[1][0]))

	f.w.Step(10 * time.Second)
	require.False(t, deer.Dead)
	assert.Len(t, f.out.withPrefix(1, protocol.CmdDeath), 1)
	f.out.reset()
	f.w.BroadcastPositions()
	require.Len(t, f.out.unreliable[1], 1)
	assert.Equal(t, []string{"5", "10"}, frameIDs(t, f.out.unreliable[1][0]))
}

func TestOverkillBodyHealthClamped(t *testing.T) {
	f := newFixture(t, &storage.Seed{
		NPCs: []persistence.NPCRecord{{
			ID: 5, Name: "Wolf", Personality: "enemy", X: 40,
			StatsRecord: persistence.StatsRecord{MaxHealth: 50, Health: 50},
		}},
	})
	f.join(t, 1, "alice", 10)

	require.NoError(t, f.w.ApplyDamage(10, 5, 80))
	f.settle(t)

	bodies := f.w.Store().Bodies()
	require.Len(t, bodies, 1)
	assert.Equal(t, 0, bodies[0].Health)

	stored, err := f.db.LoadBodies(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 0, stored[0].Health)
}

func TestNPCAttacksPlayerUntilDeath(t *testing.T) {
	f := newFixture(t, &storage.Seed{
		NPCs: []persistence.NPCRecord{{
			ID: 5, Name: "Bandit", Personality: "enemy", Y: 1, Z: 1.5,
			StatsRecord: persistence.StatsRecord{MaxHealth: 100, Health: 100, BaseDamage: 60},
		}},
	})
	f.join(t, 1, "alice", 10)

	for i := 0; i < 200 && len(f.w.Store().Bodies()) == 0; i++ {
		f.w.Step(50 * time.Millisecond)
		f.settle(t)
	}
	require.Len(t, f.w.Store().Bodies(), 1)

	hits := f.out.withPrefix(1, protocol.CmdHit)
	require.GreaterOrEqual(t, len(hits), 2)
	assert.Equal(t, "HIT|5|10|60|40", hits[0])
	assert.Equal(t, "HIT|5|10|60|0", hits[1])
	assert.NotEmpty(t, f.out.withPrefix(1, protocol.CmdAttack))
}

func TestBroadcastPositionsSkipsDeadNPCs(t *testing.T) {
	f := newFixture(t, &storage.Seed{
		NPCs: []persistence.NPCRecord{
			{ID: 5, Name: "A", Personality: "passive", X: 30, StatsRecord: persistence.StatsRecord{MaxHealth: 10, Health: 10}},
			{ID: 6, Name: "B", Personality: "passive", X: 40, StatsRecord: persistence.StatsRecord{MaxHealth: 10, Health: 10}},
		},
	})
	f.join(t, 1, "alice", 10)
	require.NoError(t, f.w.OnConnect(2))

	b, err := f.w.Store().Get(6)
	require.NoError(t, err)
	b.Dead = true

	f.out.reset()
	f.w.BroadcastPositions()
	frames := f.out.unreliable[1]
	require.Len(t, frames, 1)
	assert.Empty(t, f.out.unreliable[2], "кадры идут только готовым соединениям")

	assert.Equal(t, []string{"5", "10"}, frameIDs(t, frames[0]))
}

// frameIDs id персонажей кадра ASKPOSITION в порядке записи
func frameIDs(t *testing.T, frame string) []string {
	t.Helper()
	m, err := protocol.Split(frame)
	require.NoError(t, err)
	var ids []string
	for _, rec := range strings.Split(m.Args[0], protocol.RecordSep) {
		ids = append(ids, strings.SplitN(rec, protocol.ValueSep, 2)[0])
	}
	return ids
}

func TestMoveIgnoredWhenDead(t *testing.T) {
	f := newFixture(t, nil, func(c *config.Config) { c.Game.DeathPolicy = config.DeathPolicyAwaitRespawn })
	alice := f.join(t, 1, "alice", 10)

	require.NoError(t, f.w.HandleMessage(1, "MYPOSITION|1|2|3|1|0|0|0|4.5"))
	assert.Equal(t, 3.0, alice.Position.Z)
	assert.Equal(t, 4.5, alice.MoveTime)

	alice.Dead = true
	require.NoError(t, f.w.HandleMessage(1, "MYPOSITION|9|9|9|1|0|0|0|5"))
	assert.Equal(t, 3.0, alice.Position.Z)
}

func TestInboxOrderAndSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	f.w.Submit(Event{Kind: EventConnect, Conn: 1})
	f.w.Submit(Event{Kind: EventMessage, Conn: 1, Payload: "NAMEIS|alice|10"})
	f.w.Step(f.w.cfg.Server.TickInterval)
	f.settle(t)
	f.w.Step(f.w.cfg.Server.TickInterval)

	assert.True(t, f.w.Sessions().IsReady(10))
	snap := f.w.Snapshot()
	require.NotNil(t, snap)
	require.Len(t, snap.Characters, 1)
	assert.Equal(t, "alice", snap.Characters[0].Name)
	assert.Equal(t, 1, snap.Connections.Ready)

	f.w.Submit(Event{Kind: EventDisconnect, Conn: 1})
	f.w.Step(f.w.cfg.Server.TickInterval)
	assert.False(t, f.w.Sessions().IsReady(10))
}

func TestShutdownLogsEveryoneOut(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, 1, "alice", 10)
	f.join(t, 2, "bob", 11)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.w.Run(ctx), context.Canceled)
	f.settle(t)

	assert.False(t, f.db.Online(10))
	assert.False(t, f.db.Online(11))
	assert.Empty(t, f.w.Store().Players())
}

func TestBootstrapLoadsWorld(t *testing.T) {
	f := newFixture(t, &storage.Seed{
		WorldItems: []persistence.WorldItemRecord{{WorldID: 1, ItemID: 7}, {WorldID: 2, ItemID: 999}},
		NPCs: []persistence.NPCRecord{
			{ID: 5, Name: "Guard", Personality: "friendly", StatsRecord: persistence.StatsRecord{MaxHealth: 80, Health: 80, Weapon: 0, Apparel: -1}},
			{ID: 6, Name: "Ghost", Personality: "unknown"},
		},
		Bodies: []persistence.BodyRecord{{ID: 20, Name: "Old body", Personality: "enemy"}},
		Items:  []persistence.ItemRecord{{OwnerID: 5, ItemID: 0}, {OwnerID: 5, ItemID: 999}, {OwnerID: 20, ItemID: 6}},
		Destinations: map[int][]persistence.DestinationRecord{
			5: {{X: 1, Duration: 2}, {X: 5, Duration: 0.5}},
		},
	})

	assert.Len(t, f.w.Store().WorldItems(), 1, "неизвестный предмет пропускается")
	guard, err := f.w.Store().Get(5)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, guard.Inventory)
	assert.Equal(t, 25, guard.Damage)
	assert.Equal(t, 80, guard.MaxHealth)
	assert.Equal(t, f.w.cfg.NPC.DefaultLookRadius, guard.NPC.LookRadius)
	require.Len(t, guard.NPC.Destinations, 2)
	assert.Equal(t, 2*time.Second, guard.NPC.Destinations[0].Dwell)

	_, ok := f.w.Store().Lookup(6)
	assert.False(t, ok, "NPC с неизвестной личностью пропускается")

	body, err := f.w.Store().Get(20)
	require.NoError(t, err)
	assert.Equal(t, world.KindBody, body.Kind)
	assert.Equal(t, []int{6}, body.Inventory)
	assert.Equal(t, 1, f.db.Calls("LogoutAll"))
}

func TestBootstrapSurvivesStoreFailures(t *testing.T) {
	db := storage.NewMemoryStore(&storage.Seed{
		NPCs: []persistence.NPCRecord{{
			ID: 5, Name: "Guard", Personality: "friendly",
			StatsRecord: persistence.StatsRecord{MaxHealth: 80, Health: 80},
		}},
	})
	db.FailOn("LogoutAll", &persistence.RemoteError{Op: "LogoutAll", Msg: "db busy"})
	db.FailOn("LoadWorldItems", &persistence.RemoteError{Op: "LoadWorldItems", Msg: "db busy"})
	gw := persistence.NewGateway(db, persistence.Options{Workers: 1, Timeout: time.Second})
	t.Cleanup(func() { _ = gw.Close() })

	w := New(Deps{Config: config.Default(), Gateway: gw, Out: newRecorder()})
	require.NoError(t, w.Bootstrap(context.Background()))
	assert.Len(t, w.Store().NPCs(), 1)
	assert.Empty(t, w.Store().WorldItems())
	assert.Equal(t, 1, db.Calls("LoadBodies"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, New(Deps{Config: config.Default(), Gateway: gw, Out: newRecorder()}).Bootstrap(ctx), context.Canceled)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ClassOK},
		{"validation", reject(protocol.CmdBuy, "no"), ClassValidation},
		{"unknown command", protocol.ErrUnknownCommand, ClassProtocol},
		{"parse", &protocol.ParseError{Command: protocol.CmdHit, Field: 1}, ClassProtocol},
		{"not found", world.ErrNotFound, ClassIntegrity},
		{"remote", &persistence.RemoteError{Op: "x", Msg: "y"}, ClassPersistence},
		{"timeout", persistence.ErrTimeout, ClassPersistence},
		{"other", context.DeadlineExceeded, ClassInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestCommandLabel(t *testing.T) {
	assert.Equal(t, "HIT", commandLabel("HIT|1|2", ClassValidation))
	assert.Equal(t, "unknown", commandLabel("FOO|1", ClassProtocol))
	assert.Equal(t, "empty", commandLabel("", ClassProtocol))
}
