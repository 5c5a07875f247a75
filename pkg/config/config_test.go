package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1, cfg.MVCC.MinVersions)
	assert.Equal(t, 30*time.Second, cfg.Lock.DefaultTimeout)
	assert.True(t, cfg.Lock.EnableDeadlockDetection)
	assert.True(t, cfg.Index.CacheEnabled)
	assert.Equal(t, 5, cfg.BFS.DefaultMaxSteps)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graphd.yaml")
	content := `
data_dir: /var/lib/graphd
mvcc:
  min_versions: 3
index:
  cache_enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/graphd", cfg.DataDir)
	assert.Equal(t, 3, cfg.MVCC.MinVersions)
	assert.False(t, cfg.Index.CacheEnabled)
	// Untouched settings keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Lock.DefaultTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
