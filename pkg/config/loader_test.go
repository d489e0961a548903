package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/cutsync/pkg/config"
)

type nested struct {
	Timeout time.Duration `env:"TEST_CFG_TIMEOUT" envDefault:"10s"`
}

type testConfig struct {
	Name   string `env:"TEST_CFG_NAME,required"`
	Limit  int    `env:"TEST_CFG_LIMIT" envDefault:"4"`
	Nested nested
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_CFG_NAME", "cutsync")
	t.Setenv("TEST_CFG_TIMEOUT", "3s")

	var cfg testConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "cutsync", cfg.Name)
	assert.Equal(t, 4, cfg.Limit)
	assert.Equal(t, 3*time.Second, cfg.Nested.Timeout)
}

func TestLoad_MissingRequired(t *testing.T) {
	var cfg struct {
		Secret string `env:"TEST_CFG_SURELY_UNSET_SECRET,required"`
	}
	err := config.Load(&cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrParsingConfig)
}

func TestLoad_NilPointer(t *testing.T) {
	var cfg *testConfig
	assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
}

func TestMustLoad_Panics(t *testing.T) {
	var cfg struct {
		Secret string `env:"TEST_CFG_SURELY_UNSET_SECRET,required"`
	}
	assert.Panics(t, func() { config.MustLoad(&cfg) })
}
