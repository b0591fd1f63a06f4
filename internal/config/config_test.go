package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moodset.yaml")
	data := []byte(`
dataset:
  root: out
  image_size: 64
pipeline:
  workers: 2
  fetch_timeout: 5s
training:
  batch_size: 4
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "out", cfg.Dataset.Root)
	assert.Equal(t, 64, cfg.Dataset.ImageSize)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.FetchTimeout)
	assert.Equal(t, 4, cfg.Training.BatchSize)

	// untouched keys keep their defaults
	assert.Equal(t, "agg", cfg.Dataset.Annotations)
	assert.Equal(t, 3, cfg.Pipeline.ChunkSize)
	assert.Equal(t, 1000, cfg.Model.Classes)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  resize_backend: magic\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := Default()
	cfg.Training.BatchSize = 32
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 32, loaded.Training.BatchSize)
}

func TestContext(t *testing.T) {
	assert.Equal(t, Default(), FromContext(context.Background()))

	cfg := Default()
	cfg.Dataset.Root = "elsewhere"
	ctx := WithConfig(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
}
