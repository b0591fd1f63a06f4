package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kikiluvv/moodset/internal/dataset"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// RecordProcessor handles a single annotation line.
type RecordProcessor interface {
	Process(ctx context.Context, line, split string) (Outcome, error)
}

// Driver sweeps the annotation files of a split, one file at a time, and
// processes each file's lines concurrently.
type Driver struct {
	logger         zerolog.Logger
	fs             afero.Fs
	annotationsDir string
	processor      RecordProcessor
	cfg            Config
}

// NewDriver creates a driver reading annotation files from
// <annotationsDir>/<split>.
func NewDriver(logger zerolog.Logger, fsys afero.Fs, annotationsDir string, processor RecordProcessor, cfg Config) *Driver {
	return &Driver{
		logger:         logger.With().Str("component", "driver").Logger(),
		fs:             fsys,
		annotationsDir: annotationsDir,
		processor:      processor,
		cfg:            cfg,
	}
}

// Run processes every annotation file of split. Record failures are logged
// and counted, never returned. An error is returned only when the split
// cannot be listed or ctx is cancelled.
func (d *Driver) Run(ctx context.Context, split string) (Summary, error) {
	logger := d.logger.With().
		Str("run_id", uuid.NewString()).
		Str("split", split).
		Logger()

	files, err := dataset.ListAnnotationFiles(d.fs, filepath.Join(d.annotationsDir, split))
	if err != nil {
		return Summary{}, err
	}

	logger.Info().
		Int("files", len(files)).
		Int("workers", d.cfg.workers()).
		Int("chunk_size", d.cfg.chunkSize()).
		Msg("starting sweep")

	start := time.Now()
	var total Summary
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			total.Elapsed = time.Since(start)
			return total, err
		}

		s, err := d.runFile(ctx, logger, file, split)
		if err != nil {
			logger.Error().Err(err).Str("file", file).Msg("failed to read annotation file")
			continue
		}
		total.merge(s)
	}
	total.Elapsed = time.Since(start)

	logger.Info().
		Int("files", total.Files).
		Int("lines", total.Lines).
		Int("written", total.Written).
		Int("skipped", total.Skipped).
		Int("failed", total.Failed).
		Dur("elapsed", total.Elapsed).
		Msg("sweep complete")

	return total, ctx.Err()
}

// runFile processes one file on a pool that lives only as long as the file.
func (d *Driver) runFile(ctx context.Context, logger zerolog.Logger, file, split string) (Summary, error) {
	data, err := afero.ReadFile(d.fs, file)
	if err != nil {
		return Summary{}, err
	}
	lines := splitLines(string(data))

	start := time.Now()
	var written, skipped int64
	jobs := make([]Job, len(lines))
	for i, line := range lines {
		line := line
		jobs[i] = func() error {
			outcome, err := d.processor.Process(ctx, line, split)
			if err != nil {
				return err
			}
			switch outcome {
			case OutcomeWritten:
				atomic.AddInt64(&written, 1)
			case OutcomeSkipped:
				atomic.AddInt64(&skipped, 1)
			}
			return nil
		}
	}

	errs := NewPool(d.cfg.workers(), d.cfg.chunkSize()).Run(ctx, jobs)

	s := Summary{Files: 1, Lines: len(lines)}
	for i, err := range errs {
		if err == nil {
			continue
		}
		s.Failed++
		if ctx.Err() != nil && err == ctx.Err() {
			continue
		}
		logger.Warn().Err(err).Str("file", filepath.Base(file)).Str("line", lines[i]).Msg("record failed")
	}
	s.Written = int(atomic.LoadInt64(&written))
	s.Skipped = int(atomic.LoadInt64(&skipped))
	s.Elapsed = time.Since(start)

	logger.Info().
		Str("file", filepath.Base(file)).
		Int("lines", s.Lines).
		Int("written", s.Written).
		Int("skipped", s.Skipped).
		Int("failed", s.Failed).
		Dur("elapsed", s.Elapsed).
		Msg("annotation file processed")

	return s, nil
}

// splitLines returns the non-blank lines of data.
func splitLines(data string) []string {
	var lines []string
	for _, l := range strings.Split(data, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
