package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chuliyu/poolmanager/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCLIStructure(t *testing.T) {
	cmd := BuildCLI()
	require.NotNil(t, cmd)
	assert.Equal(t, "poolmanagerctl", cmd.Use)

	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Use] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["submit"])
	assert.True(t, names["status"])

	flag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "pools.yaml", flag.DefValue)
}

func intPtr(v int) *int { return &v }

func TestPoolConfigYAMLNormalizeDefaults(t *testing.T) {
	p := PoolConfigYAML{PoolName: "p1", WorkerScript: "./worker.sh"}
	cfg := p.normalize()

	assert.Equal(t, "p1", cfg.PoolName)
	assert.Equal(t, 1, cfg.WorkerCount, "omitted workerCount should default to 1")
	assert.Equal(t, protocol.DefaultOneShotMemoryLimitMB, cfg.WorkerMemoryLimit)
}

func TestPoolConfigYAMLNormalizeHonorsExplicitZero(t *testing.T) {
	p := PoolConfigYAML{PoolName: "p1", WorkerScript: "./worker.sh", WorkerCount: intPtr(0)}
	cfg := p.normalize()

	assert.Equal(t, 0, cfg.WorkerCount, "an explicit workerCount of 0 must be honored, not defaulted")
}

func TestPoolConfigYAMLNormalizeHonorsExplicitMemoryLimit(t *testing.T) {
	p := PoolConfigYAML{PoolName: "p1", WorkerScript: "./worker.sh", WorkerMemoryLimit: intPtr(512)}
	cfg := p.normalize()

	assert.Equal(t, 512, cfg.WorkerMemoryLimit)
}

func TestLoadConfigValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pools.yaml")
	content := `
pools:
  - poolName: p1
    workerScript: ./worker.sh
    workerCount: 2
    workerMemoryLimit: 512
metrics:
  enabled: true
  port: 9099
stats_interval_ms: 500
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Pools, 1)
	assert.Equal(t, "p1", cfg.Pools[0].PoolName)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9099, cfg.Metrics.Port)
	assert.Equal(t, 500, cfg.StatsIntervalMs)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNormalizePools(t *testing.T) {
	pools := []PoolConfigYAML{
		{PoolName: "a", WorkerScript: "s"},
		{PoolName: "b", WorkerScript: "s", WorkerCount: intPtr(3)},
	}
	out := normalizePools(pools)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].WorkerCount)
	assert.Equal(t, 3, out[1].WorkerCount)
}
