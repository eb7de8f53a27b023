package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GAME_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, cfg.Server.TickInterval)
	assert.Equal(t, [3]float64{0, 1, 0}, cfg.Game.SpawnPoint)
	assert.Equal(t, DeathPolicyBody, cfg.Game.DeathPolicy)
	assert.Equal(t, BackendMemory, cfg.Persistence.Backend)
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	yml := `
server:
  kcp_port: 9000
  tick_interval: 100ms
game:
  player_death_policy: await_respawn
npc:
  attack_delay: 750ms
persistence:
  backend: badger
  badger_dir: /tmp/x
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	t.Setenv("LEROCIA_UDP_PORT", "9001")
	t.Setenv("LEROCIA_SPAWN_POINT", "1, 2, 3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.KCPPort)
	assert.Equal(t, 9001, cfg.Server.UDPPort, "env должен перекрывать значение по умолчанию")
	assert.Equal(t, 100*time.Millisecond, cfg.Server.TickInterval)
	assert.Equal(t, 50*time.Millisecond, cfg.Server.BroadcastInterval, "незаданное в YAML поле остаётся дефолтным")
	assert.Equal(t, DeathPolicyAwaitRespawn, cfg.Game.DeathPolicy)
	assert.Equal(t, 750*time.Millisecond, cfg.NPC.AttackDelay)
	assert.Equal(t, [3]float64{1, 2, 3}, cfg.Game.SpawnPoint)
	assert.Equal(t, "/tmp/x", cfg.Persistence.BadgerDir)
}

func TestValidate(t *testing.T) {
	t.Run("неизвестная политика смерти", func(t *testing.T) {
		cfg := Default()
		cfg.Game.DeathPolicy = "ghost"
		assert.Error(t, cfg.Validate())
	})
	t.Run("maria без DSN", func(t *testing.T) {
		cfg := Default()
		cfg.Persistence.Backend = BackendMaria
		assert.Error(t, cfg.Validate())
	})
	t.Run("API без секрета", func(t *testing.T) {
		cfg := Default()
		cfg.API.Enabled = true
		assert.Error(t, cfg.Validate())
	})
	t.Run("неизвестный tie_break", func(t *testing.T) {
		cfg := Default()
		cfg.NPC.TieBreak = "random"
		assert.Error(t, cfg.Validate())
	})
	t.Run("нулевой тик", func(t *testing.T) {
		cfg := Default()
		cfg.Server.TickInterval = 0
		assert.Error(t, cfg.Validate())
	})
	t.Run("дефолт валиден", func(t *testing.T) {
		assert.NoError(t, Default().Validate())
	})
}

func TestParseTriple(t *testing.T) {
	_, err := parseTriple("1,2")
	assert.Error(t, err)
	_, err = parseTriple("1,x,3")
	assert.Error(t, err)
}
