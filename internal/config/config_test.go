package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("VIGIL_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8002, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 0.02, cfg.RiskFreeRate)
	assert.Equal(t, 4, cfg.SimWorkers)
	assert.True(t, cfg.SweepEnabled)
}

func TestLoad_SimWorkersFromEnv(t *testing.T) {
	t.Setenv("VIGIL_DATA_DIR", t.TempDir())
	t.Setenv("SIM_WORKERS", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.SimWorkers)
}

func TestLoad_RejectsNonPositiveSimWorkers(t *testing.T) {
	t.Setenv("VIGIL_DATA_DIR", t.TempDir())
	t.Setenv("SIM_WORKERS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker count")
}

func TestValidate_PortRange(t *testing.T) {
	cfg := &Config{Port: 70000, SimWorkers: 4}
	assert.Error(t, cfg.Validate())

	cfg = &Config{Port: 8002, SimWorkers: 4}
	assert.NoError(t, cfg.Validate())
}
