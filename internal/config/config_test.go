package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load(nil)
	assert.Equal(t, 5060, cfg.Port)
	assert.Equal(t, 32, cfg.MaxCalls)
	assert.Equal(t, 5, cfg.MaxThreads)
	assert.Equal(t, 10, cfg.QueueCapacity)
	assert.Equal(t, 1400, cfg.BufferSize)
	assert.Equal(t, 7200, cfg.RegisterExpiry)
	assert.NotEmpty(t, cfg.AdvertiseIP, "advertise address must fall back to auto-detection")
}

func TestLoadFlagOverride(t *testing.T) {
	cfg := Load([]string{"-port", "6060", "-max-calls", "64"})
	assert.Equal(t, 6060, cfg.Port)
	assert.Equal(t, 64, cfg.MaxCalls)
}

func TestEnvOverridesFlagDefault(t *testing.T) {
	t.Setenv("TINYSIP_PORT", "7070")
	cfg := Load(nil)
	assert.Equal(t, 7070, cfg.Port)
}

func TestExplicitAdvertiseIPIsNotOverriddenByAutoDetect(t *testing.T) {
	cfg := Load([]string{"-advertise", "203.0.113.5"})
	assert.Equal(t, "203.0.113.5", cfg.AdvertiseIP)
}
