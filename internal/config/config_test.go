package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "PORT", "")
	setEnv(t, "PHYSICS_TOLERANCE", "")
	setEnv(t, "ENERGY_NOISE_FLOOR", "")
	setEnv(t, "RATE_LIMIT_RPM", "")
	setEnv(t, "MODEL_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultPhysicsTolerance, cfg.PhysicsTolerance)
	assert.Equal(t, DefaultEnergyNoiseFloor, cfg.EnergyNoiseFloor)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimitRPM)
	assert.Empty(t, cfg.ModelPath)
}

func TestLoad_WithOverrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "MODEL_PATH", "/var/lib/guardian/model.json")
	setEnv(t, "PHYSICS_TOLERANCE", "0.1")
	setEnv(t, "ENERGY_NOISE_FLOOR", "0.02")
	setEnv(t, "RATE_LIMIT_RPM", "600")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "/var/lib/guardian/model.json", cfg.ModelPath)
	assert.Equal(t, 0.1, cfg.PhysicsTolerance)
	assert.Equal(t, 0.02, cfg.EnergyNoiseFloor)
	assert.Equal(t, 600, cfg.RateLimitRPM)
}

func TestLoad_InvalidTolerance(t *testing.T) {
	setEnv(t, "PHYSICS_TOLERANCE", "1.5")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "PHYSICS_TOLERANCE")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name: "valid",
			config: Config{
				Port:             "8080",
				PhysicsTolerance: 0.05,
				EnergyNoiseFloor: 0.01,
				RateLimitRPM:     120,
			},
		},
		{
			name: "non-numeric port",
			config: Config{
				Port:             "eighty",
				PhysicsTolerance: 0.05,
				RateLimitRPM:     120,
			},
			wantErr: "PORT",
		},
		{
			name: "zero tolerance",
			config: Config{
				Port:             "8080",
				PhysicsTolerance: 0,
				RateLimitRPM:     120,
			},
			wantErr: "PHYSICS_TOLERANCE",
		},
		{
			name: "negative noise floor",
			config: Config{
				Port:             "8080",
				PhysicsTolerance: 0.05,
				EnergyNoiseFloor: -0.01,
				RateLimitRPM:     120,
			},
			wantErr: "ENERGY_NOISE_FLOOR",
		},
		{
			name: "zero rate limit",
			config: Config{
				Port:             "8080",
				PhysicsTolerance: 0.05,
			},
			wantErr: "RATE_LIMIT_RPM",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvHelpers(t *testing.T) {
	setEnv(t, "ENV", "production")
	setEnv(t, "PORT", "")
	setEnv(t, "PHYSICS_TOLERANCE", "")
	setEnv(t, "ENERGY_NOISE_FLOOR", "")
	setEnv(t, "RATE_LIMIT_RPM", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
}
