package main

import (
	"testing"

	"github.com/kikiluvv/moodset/internal/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatioArgs(t *testing.T) {
	assert.NoError(t, ratioArgs(buildCmd, nil))
	assert.NoError(t, ratioArgs(buildCmd, []string{"3", "1"}))
	assert.Error(t, ratioArgs(buildCmd, []string{"3"}))
	assert.Error(t, ratioArgs(buildCmd, []string{"1", "2", "3"}))
	assert.Error(t, ratioArgs(buildCmd, []string{"a", "1"}))
	assert.Error(t, ratioArgs(buildCmd, []string{"0", "0"}))
}

func TestParseRatio(t *testing.T) {
	r, err := parseRatio(nil)
	require.NoError(t, err)
	assert.Equal(t, dataset.DefaultRatio, r)

	r, err = parseRatio([]string{"0.8", "0.2"})
	require.NoError(t, err)
	assert.Equal(t, dataset.Ratio{Train: 0.8, Test: 0.2}, r)
}
