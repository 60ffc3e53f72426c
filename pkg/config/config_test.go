package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "./data", cfg.Storage.DataDir)
	assert.True(t, cfg.Import.SortAdjacency)
	assert.Equal(t, uint32(65536), cfg.Import.BlockWidth)
	assert.True(t, cfg.Server.EnableCORS)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MUNINDB_PORT", "9999")
	t.Setenv("MUNINDB_DATA_DIR", "/tmp/graph")
	t.Setenv("MUNINDB_BLOCK_MODE", "true")
	t.Setenv("MUNINDB_CACHE_BYTES", "1048576")
	t.Setenv("MUNINDB_LOG_LEVEL", "debug")
	t.Setenv("MUNINDB_ENABLE_CORS", "false")
	t.Setenv("MUNINDB_CORS_ORIGINS", "http://a.example, http://b.example")

	cfg := Default()
	cfg.LoadFromEnv()

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "/tmp/graph", cfg.Storage.DataDir)
	assert.True(t, cfg.Storage.BlockMode)
	assert.Equal(t, uint64(1048576), cfg.Storage.CacheBytes)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.Server.EnableCORS)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Server.CORSOrigins)
}

func TestEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("MUNINDB_PORT", "not-a-number")
	cfg := Default()
	cfg.LoadFromEnv()
	assert.Equal(t, 8080, cfg.Server.Port, "unparsable values keep the default")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "munindb.yaml")
	content := `
server:
  port: 7070
storage:
  data_dir: /srv/graph
  block_mode: true
auth:
  enabled: true
  password: secret
log_level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := Default()
	require.NoError(t, cfg.LoadFile(path))

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/srv/graph", cfg.Storage.DataDir)
	assert.True(t, cfg.Storage.BlockMode)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = -1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Storage.DataDir = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Auth.Enabled = true
	assert.Error(t, cfg.Validate(), "auth without a password")

	cfg = Default()
	cfg.Import.BlockWidth = 0
	assert.Error(t, cfg.Validate())
}
