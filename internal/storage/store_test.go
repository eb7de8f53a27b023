package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/annel0/lerocia/internal/config"
	"github.com/annel0/lerocia/internal/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSeed() *Seed {
	return &Seed{
		WorldItems: []persistence.WorldItemRecord{{WorldID: 0, ItemID: 7, X: 1, Y: 0, Z: 2}},
		NPCs: []persistence.NPCRecord{{
			ID: 100, Name: "Guard", Personality: "friendly", RotW: 1,
			StatsRecord: persistence.StatsRecord{MaxHealth: 100, Health: 100, Weapon: -1, Apparel: -1},
		}},
		Items: []persistence.ItemRecord{{OwnerID: 100, ItemID: 4}, {OwnerID: 1, ItemID: 0}},
		Destinations: map[int][]persistence.DestinationRecord{
			100: {{X: 5, Z: 5, Duration: 2}, {X: -5, Z: 5, Duration: 1}},
		},
	}
}

// runStoreContract проверяет общее поведение всех встроенных хранилищ
func runStoreContract(t *testing.T, s persistence.Store) {
	ctx := context.Background()

	t.Run("Загрузка мира", func(t *testing.T) {
		items, err := s.LoadWorldItems(ctx)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, 7, items[0].ItemID)

		npcs, err := s.LoadNPCs(ctx)
		require.NoError(t, err)
		require.Len(t, npcs, 1)
		assert.Equal(t, "Guard", npcs[0].Name)
		assert.Equal(t, 100, npcs[0].MaxHealth)

		dest, err := s.GetDestinationsForNPC(ctx, 100)
		require.NoError(t, err)
		assert.Len(t, dest, 2)

		dest, err = s.GetDestinationsForNPC(ctx, 999)
		require.NoError(t, err)
		assert.Empty(t, dest)
	})

	t.Run("Статистика нового персонажа", func(t *testing.T) {
		_, err := s.GetStatsForCharacter(ctx, 1)
		assert.ErrorIs(t, err, persistence.ErrNotFound)

		want := persistence.StatsRecord{MaxHealth: 120, Health: 80, Gold: 15, BaseDamage: 10, Weapon: 0, Apparel: -1}
		require.NoError(t, s.SetStatsForCharacter(ctx, 1, want))
		got, err := s.GetStatsForCharacter(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("Инвентарь", func(t *testing.T) {
		require.NoError(t, s.AddItemForCharacter(ctx, 1, 4))
		require.NoError(t, s.AddItemForCharacter(ctx, 1, 4))
		items, err := s.GetItemsForCharacter(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 4, 4}, items)

		require.NoError(t, s.DeleteItemForCharacter(ctx, 1, 4))
		items, err = s.GetItemsForCharacter(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 4}, items)

		assert.ErrorIs(t, s.DeleteItemForCharacter(ctx, 1, 6), persistence.ErrNotFound)
	})

	t.Run("Предметы в мире", func(t *testing.T) {
		require.NoError(t, s.AddWorldItem(ctx, persistence.WorldItemRecord{WorldID: 1, ItemID: 6}))
		assert.Error(t, s.AddWorldItem(ctx, persistence.WorldItemRecord{WorldID: 1, ItemID: 6}))
		require.NoError(t, s.DeleteWorldItem(ctx, 1))
		assert.ErrorIs(t, s.DeleteWorldItem(ctx, 1), persistence.ErrNotFound)
	})

	t.Run("Труп и передача инвентаря", func(t *testing.T) {
		id, err := s.CreateBody(ctx, persistence.BodyRecord{Name: "Guard's body", Personality: "friendly",
			StatsRecord: persistence.StatsRecord{MaxHealth: 100}})
		require.NoError(t, err)
		assert.Greater(t, id, 100, "id трупа не пересекается с существующими")

		id2, err := s.CreateBody(ctx, persistence.BodyRecord{Name: "second"})
		require.NoError(t, err)
		assert.NotEqual(t, id, id2)

		require.NoError(t, s.UpdateInventoryOwnership(ctx, 100, id))
		items, err := s.GetItemsForCharacter(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []int{4}, items)
		items, err = s.GetItemsForCharacter(ctx, 100)
		require.NoError(t, err)
		assert.Empty(t, items)

		bodies, err := s.LoadBodies(ctx)
		require.NoError(t, err)
		assert.Len(t, bodies, 2)
	})

	t.Run("Выход", func(t *testing.T) {
		assert.NoError(t, s.Logout(ctx, 1))
		assert.NoError(t, s.LogoutAll(ctx))
	})
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore(testSeed())
	runStoreContract(t, s)

	t.Run("Отметка входа", func(t *testing.T) {
		ctx := context.Background()
		_, _ = s.GetStatsForCharacter(ctx, 5)
		assert.True(t, s.Online(5))
		require.NoError(t, s.LogoutAll(ctx))
		assert.False(t, s.Online(5))
	})

	t.Run("Инъекция сбоя", func(t *testing.T) {
		boom := errors.New("boom")
		s.FailOn("CreateBody", boom)
		_, err := s.CreateBody(context.Background(), persistence.BodyRecord{})
		assert.ErrorIs(t, err, boom)
		s.FailOn("CreateBody", nil)
		_, err = s.CreateBody(context.Background(), persistence.BodyRecord{})
		assert.NoError(t, err)
		assert.Equal(t, 4, s.Calls("CreateBody"))
	})
}

func TestBadgerStore(t *testing.T) {
	s, err := NewBadgerStore("", testSeed())
	require.NoError(t, err)
	defer s.Close()
	runStoreContract(t, s)

	t.Run("Отметка входа", func(t *testing.T) {
		ctx := context.Background()
		_, err := s.GetStatsForCharacter(ctx, 5)
		assert.ErrorIs(t, err, persistence.ErrNotFound)
		assert.True(t, s.Online(5), "отметка входа сохраняется даже без статистики")
		require.NoError(t, s.LogoutAll(ctx))
		assert.False(t, s.Online(5))
	})
}

func TestBadgerStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewBadgerStore(dir, testSeed())
	require.NoError(t, err)
	require.NoError(t, s.AddItemForCharacter(context.Background(), 1, 6))
	require.NoError(t, s.Close())

	// seed не должен повторно импортироваться в непустую базу
	s, err = NewBadgerStore(dir, testSeed())
	require.NoError(t, err)
	defer s.Close()
	items, err := s.GetItemsForCharacter(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 6}, items)
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
world_items:
  - {world_id: 3, item_id: 7, position_x: 1, position_y: 2, position_z: 3}
npcs:
  - {npc_id: 100, npc_name: Guard, personality: enemy, max_health: 50, current_health: 50, weapon_id: -1, apparel_id: -1}
stats:
  1: {max_health: 100, current_health: 90, gold: 5, weapon_id: -1, apparel_id: -1}
`), 0644))

	store, err := Open(config.PersistenceConfig{Backend: config.BackendMemory, SeedFile: path})
	require.NoError(t, err)
	npcs, err := store.LoadNPCs(context.Background())
	require.NoError(t, err)
	require.Len(t, npcs, 1)
	assert.Equal(t, 50, npcs[0].MaxHealth, "inline поля статистики читаются из seed")
	st, err := store.GetStatsForCharacter(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 90, st.Health)

	_, err = Open(config.PersistenceConfig{Backend: "cassandra"})
	assert.Error(t, err)
}
