package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surgedb/surgedb/pkg/distance"
	"github.com/surgedb/surgedb/pkg/errs"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig(128, distance.Cosine)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveDimensions(t *testing.T) {
	cfg := DefaultConfig(0, distance.Cosine)
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidConfig))
}

func TestValidateRejectsMmapWithQuantization(t *testing.T) {
	cfg := DefaultConfig(8, distance.Cosine)
	cfg.Persistence = Mmap
	cfg.Quantization = SQ8
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidConfig))
}

func TestValidateRejectsRerankMultiplierBelowOneWhenQuantized(t *testing.T) {
	cfg := DefaultConfig(8, distance.Cosine)
	cfg.Quantization = Binary
	cfg.RerankMultiplier = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidConfig))
}

func TestValidateRejectsInvalidHnswParams(t *testing.T) {
	cfg := DefaultConfig(8, distance.Cosine)
	cfg.M0 = 1
	cfg.M = 16
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidHnswParam))
}
