package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kikiluvv/moodset/pkg/util"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	Dataset  DatasetConfig  `yaml:"dataset"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Model    ModelConfig    `yaml:"model"`
	Training TrainingConfig `yaml:"training"`
	FFmpeg   FFmpegConfig   `yaml:"ffmpeg"`
}

// DatasetConfig describes where the raw annotations live and where
// feature vectors are written.
type DatasetConfig struct {
	Root        string `yaml:"root"`
	Annotations string `yaml:"annotations"`
	Archive     string `yaml:"archive"`
	ArchiveHint string `yaml:"archive_hint"`
	ImageSize   int    `yaml:"image_size"`
	// Seed drives partition shuffling. Zero picks a time based seed.
	Seed   int64    `yaml:"seed"`
	Splits []string `yaml:"splits"`
}

type PipelineConfig struct {
	// Workers is the pool size per annotation file, 0 means runtime.NumCPU().
	Workers       int           `yaml:"workers"`
	ChunkSize     int           `yaml:"chunk_size"`
	ResizeBackend string        `yaml:"resize_backend"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
	JPEGQuality   int           `yaml:"jpeg_quality"`
}

type ModelConfig struct {
	URL               string `yaml:"url"`
	FileName          string `yaml:"file_name"`
	CacheDir          string `yaml:"cache_dir"`
	Digest            string `yaml:"digest"`
	SharedLibraryPath string `yaml:"shared_library_path"`
	InputName         string `yaml:"input_name"`
	OutputName        string `yaml:"output_name"`
	InputSize         int    `yaml:"input_size"`
	Layout            string `yaml:"layout"`
	Normalization     string `yaml:"normalization"`
	Softmax           bool   `yaml:"softmax"`
	Classes           int    `yaml:"classes"`
}

type TrainingConfig struct {
	BatchSize int  `yaml:"batch_size"`
	Shuffle   bool `yaml:"shuffle"`
}

type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path"`
	Threads    int    `yaml:"threads"`
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate rejects sizes the pipeline cannot work with
func (c *Config) Validate() error {
	if c.Dataset.ImageSize < 3 {
		return fmt.Errorf("dataset.image_size must be at least 3, got %d", c.Dataset.ImageSize)
	}
	if c.Pipeline.ChunkSize < 1 {
		return fmt.Errorf("pipeline.chunk_size must be positive, got %d", c.Pipeline.ChunkSize)
	}
	if c.Pipeline.Workers < 0 {
		return fmt.Errorf("pipeline.workers must not be negative, got %d", c.Pipeline.Workers)
	}
	if c.Training.BatchSize < 1 {
		return fmt.Errorf("training.batch_size must be positive, got %d", c.Training.BatchSize)
	}
	if c.Model.InputSize < 1 || c.Model.Classes < 1 {
		return fmt.Errorf("model.input_size and model.classes must be positive")
	}
	switch c.Pipeline.ResizeBackend {
	case "native", "ffmpeg":
	default:
		return fmt.Errorf("unknown pipeline.resize_backend %q", c.Pipeline.ResizeBackend)
	}
	return nil
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Root:        "dataset",
			Annotations: "agg",
			Archive:     "agg.zip",
			ArchiveHint: "http://www.cs.rochester.edu/u/qyou/deepemotion/",
			ImageSize:   256,
			Splits:      []string{"train", "test"},
		},
		Pipeline: PipelineConfig{
			Workers:       0,
			ChunkSize:     3,
			ResizeBackend: "native",
			FetchTimeout:  30 * time.Second,
			JPEGQuality:   90,
		},
		Model: ModelConfig{
			URL:           "https://github.com/onnx/models/raw/main/validated/vision/classification/vgg/model/vgg16-7.onnx",
			FileName:      "vgg16-7.onnx",
			CacheDir:      "~/.moodset/models",
			InputName:     "data",
			OutputName:    "vgg0_dense2_fwd",
			InputSize:     224,
			Layout:        "NCHW",
			Normalization: "torch",
			Softmax:       true,
			Classes:       1000,
		},
		Training: TrainingConfig{
			BatchSize: 10,
			Shuffle:   true,
		},
		FFmpeg: FFmpegConfig{
			BinaryPath: "ffmpeg",
			Threads:    1,
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./moodset.yaml",
		"./config.yaml",
		filepath.Join(os.Getenv("HOME"), ".moodset", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return Default()
}
