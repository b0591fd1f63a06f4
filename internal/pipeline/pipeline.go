package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"path/filepath"
	"time"

	"github.com/kikiluvv/moodset/internal/config"
	"github.com/kikiluvv/moodset/internal/dataset"
	"github.com/kikiluvv/moodset/internal/features"
	"github.com/kikiluvv/moodset/internal/ffmpeg"
	"github.com/kikiluvv/moodset/internal/modelcache"
	"github.com/kikiluvv/moodset/pkg/util"
	"github.com/mholt/archiver"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// ErrNoDataset means neither the annotation directory nor its archive could
// be found.
var ErrNoDataset = errors.New("raw annotation corpus not found")

// Pipeline orchestrates a full dataset build: locate the raw corpus, load
// the embedding model, partition, then sweep each split.
type Pipeline struct {
	logger   zerolog.Logger
	cfg      *config.Config
	fs       afero.Fs
	client   *http.Client
	embedder features.Embedder
	resizer  Resizer
	rng      *rand.Rand
	closers  []io.Closer
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithFs replaces the OS filesystem used for annotations and the dataset.
// Archive extraction and the ffmpeg backend always use the OS filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(p *Pipeline) { p.fs = fsys }
}

// WithEmbedder skips model download and uses e for the deep features.
func WithEmbedder(e features.Embedder) Option {
	return func(p *Pipeline) { p.embedder = e }
}

// WithHTTPClient sets the client for image and weight downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Pipeline) { p.client = c }
}

// WithResizer overrides the configured resize backend.
func WithResizer(r Resizer) Option {
	return func(p *Pipeline) { p.resizer = r }
}

// New creates a new pipeline instance
func New(logger zerolog.Logger, cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	p := &Pipeline{
		logger: logger.With().Str("component", "pipeline").Logger(),
		cfg:    cfg,
		fs:     afero.NewOsFs(),
		client: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}

	seed := cfg.Dataset.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	p.rng = rand.New(rand.NewSource(seed))

	if p.resizer == nil {
		r, err := p.newResizer()
		if err != nil {
			return nil, err
		}
		p.resizer = r
	}
	return p, nil
}

func (p *Pipeline) newResizer() (Resizer, error) {
	switch p.cfg.Pipeline.ResizeBackend {
	case "", "native":
		return NativeResizer{}, nil
	case "ffmpeg":
		exec, err := ffmpeg.New(p.logger, p.cfg.FFmpeg.BinaryPath, p.cfg.FFmpeg.Threads)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ffmpeg: %w", err)
		}
		return NewFFmpegResizer(exec, ""), nil
	}
	return nil, fmt.Errorf("unknown resize backend %q", p.cfg.Pipeline.ResizeBackend)
}

// Close releases the embedding model if the pipeline loaded it
func (p *Pipeline) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c.Close())
	}
	p.closers = nil
	return errors.Join(errs...)
}

// Build runs every stage and returns one summary per configured split.
func (p *Pipeline) Build(ctx context.Context, ratio dataset.Ratio) (map[string]Summary, error) {
	if _, err := ratio.TrainFraction(); err != nil {
		return nil, err
	}

	if err := p.locateCorpus(); err != nil {
		return nil, err
	}

	embedder, err := p.loadEmbedder(ctx)
	if err != nil {
		return nil, err
	}

	annotations := p.cfg.Dataset.Annotations
	files, err := dataset.ListAnnotationFiles(p.fs, annotations)
	if err != nil {
		return nil, err
	}
	train, test, err := dataset.Partition(files, ratio, p.rng)
	if err != nil {
		return nil, err
	}
	if err := dataset.Materialize(p.fs, annotations, train, test); err != nil {
		return nil, err
	}
	p.logger.Info().
		Int("train_files", len(train)).
		Int("test_files", len(test)).
		Float64("train_ratio", ratio.Train).
		Float64("test_ratio", ratio.Test).
		Msg("annotation files partitioned")

	store := dataset.NewStore(p.fs, p.cfg.Dataset.Root)
	if err := store.EnsureLayout(p.cfg.Dataset.Splits); err != nil {
		return nil, err
	}

	pcfg := Config{
		Workers:     p.cfg.Pipeline.Workers,
		ChunkSize:   p.cfg.Pipeline.ChunkSize,
		ImageSize:   p.cfg.Dataset.ImageSize,
		JPEGQuality: p.cfg.Pipeline.JPEGQuality,
	}
	fetcher := NewSourceFetcher(p.client, p.fs, p.cfg.Pipeline.FetchTimeout)
	proc := NewProcessor(p.logger, store, fetcher, p.resizer, features.NewExtractor(embedder), pcfg)
	driver := NewDriver(p.logger, p.fs, annotations, proc, pcfg)

	summaries := make(map[string]Summary, len(p.cfg.Dataset.Splits))
	for _, split := range p.cfg.Dataset.Splits {
		p.logger.Info().Str("split", split).Msg("creating data set")
		s, err := driver.Run(ctx, split)
		summaries[split] = s
		if err != nil {
			return summaries, fmt.Errorf("split %s: %w", split, err)
		}
	}
	return summaries, nil
}

// locateCorpus makes sure the annotation directory exists, extracting the
// archive next to it when only the archive is present.
func (p *Pipeline) locateCorpus() error {
	dir := p.cfg.Dataset.Annotations
	if ok, _ := afero.DirExists(p.fs, dir); ok {
		return nil
	}

	archive := p.cfg.Dataset.Archive
	if archive == "" || !util.FileExists(archive) {
		return fmt.Errorf("%w: no %s directory or %s archive, download it from %s",
			ErrNoDataset, dir, archive, p.cfg.Dataset.ArchiveHint)
	}

	start := time.Now()
	p.logger.Info().Str("archive", archive).Msg("extracting annotation archive")
	if err := archiver.Unarchive(archive, filepath.Dir(filepath.Clean(dir))); err != nil {
		return fmt.Errorf("failed to extract %s: %w", archive, err)
	}
	if ok, _ := afero.DirExists(p.fs, dir); !ok {
		return fmt.Errorf("%w: %s did not contain %s", ErrNoDataset, archive, dir)
	}
	p.logger.Info().Dur("elapsed", time.Since(start)).Msg("archive extracted")
	return nil
}

// loadEmbedder returns the injected embedder or downloads the configured
// model and opens an ONNX session for it.
func (p *Pipeline) loadEmbedder(ctx context.Context) (features.Embedder, error) {
	if p.embedder != nil {
		return p.embedder, nil
	}

	mc := p.cfg.Model
	layout, err := features.ParseLayout(mc.Layout)
	if err != nil {
		return nil, err
	}
	norm, err := features.ParseNormalization(mc.Normalization)
	if err != nil {
		return nil, err
	}

	cache := modelcache.New(p.logger, util.ExpandHome(mc.CacheDir), p.client)
	path, err := cache.Fetch(ctx, modelcache.Spec{URL: mc.URL, FileName: mc.FileName, Digest: mc.Digest})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch embedding weights: %w", err)
	}

	e, err := features.NewONNXEmbedder(p.logger, features.ONNXOptions{
		ModelPath:         path,
		SharedLibraryPath: mc.SharedLibraryPath,
		InputName:         mc.InputName,
		OutputName:        mc.OutputName,
		InputSize:         mc.InputSize,
		Classes:           mc.Classes,
		Layout:            layout,
		Normalization:     norm,
		Softmax:           mc.Softmax,
	})
	if err != nil {
		return nil, err
	}
	p.embedder = e
	p.closers = append(p.closers, e)
	return e, nil
}
