package cyql_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlch/cyql"
)

func TestLoadConfigFile_FillsDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, ".cyql.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: graph.db\n"), 0o644))

	cfg, err := cyql.LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "graph.db", cfg.Database)
	assert.Equal(t, cyql.DefaultMaxHops, cfg.DefaultMaxHops)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigFile_PreservesExplicitValues(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, ".cyql.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: graph.db\ndefault_max_hops: 5\nlog_level: debug\n"), 0o644))

	cfg, err := cyql.LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.DefaultMaxHops)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestFindConfig_WalksUpToParent(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".cyql.yaml"), []byte("database: graph.db\n"), 0o644))

	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	path, err := cyql.FindConfig(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ".cyql.yaml"), path)
}

func TestFindConfig_NotFound(t *testing.T) {
	t.Parallel()

	_, err := cyql.FindConfig(t.TempDir())
	require.ErrorIs(t, err, cyql.ErrConfigNotFound)
}
