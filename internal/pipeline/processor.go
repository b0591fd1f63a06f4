package pipeline

import (
	"context"
	"fmt"
	"image"

	"github.com/kikiluvv/moodset/internal/annotation"
	"github.com/kikiluvv/moodset/internal/dataset"
	"github.com/kikiluvv/moodset/internal/features"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Processor turns one annotation line into one persisted feature vector.
type Processor struct {
	logger    zerolog.Logger
	store     *dataset.Store
	fetcher   Fetcher
	resizer   Resizer
	extractor *features.Extractor
	cfg       Config
}

// NewProcessor wires a record processor.
func NewProcessor(logger zerolog.Logger, store *dataset.Store, fetcher Fetcher, resizer Resizer, extractor *features.Extractor, cfg Config) *Processor {
	return &Processor{
		logger:    logger.With().Str("component", "processor").Logger(),
		store:     store,
		fetcher:   fetcher,
		resizer:   resizer,
		extractor: extractor,
		cfg:       cfg,
	}
}

// Process handles one annotation line for split. Records below the
// agreement threshold are skipped without touching the store. The resized
// intermediate image is always removed before returning.
func (p *Processor) Process(ctx context.Context, line, split string) (Outcome, error) {
	rec, err := annotation.Parse(line)
	if err != nil {
		return 0, err
	}
	if !rec.Included() {
		p.logger.Debug().
			Str("image", rec.ImageID()).
			Int("agree", rec.AgreeCount).
			Int("disagree", rec.DisagreeCount).
			Msg("record below agreement threshold")
		return OutcomeSkipped, nil
	}

	data, err := p.fetcher.Fetch(ctx, rec.SourceURI)
	if err != nil {
		return 0, err
	}
	resized, err := p.resizer.Resize(ctx, data, p.cfg.ImageSize)
	if err != nil {
		return 0, fmt.Errorf("failed to resize %s: %w", rec.ImageID(), err)
	}

	imgPath := p.store.ImagePath(split, rec)
	fsys := p.store.Fs()
	out, err := fsys.Create(imgPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create intermediate image: %w", err)
	}
	defer func() {
		if err := fsys.Remove(imgPath); err != nil {
			p.logger.Warn().Err(err).Str("path", imgPath).Msg("failed to remove intermediate image")
		}
	}()

	err = encodeImage(out, resized, imgPath, p.cfg.JPEGQuality)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("failed to write intermediate image: %w", err)
	}

	img, err := p.readImage(imgPath)
	if err != nil {
		return 0, err
	}

	vec, err := p.extractor.Extract(img)
	if err != nil {
		return 0, fmt.Errorf("failed to extract features from %s: %w", rec.ImageID(), err)
	}

	vecPath := p.store.VectorPath(split, rec)
	if err := p.store.WriteVector(vecPath, vec); err != nil {
		return 0, err
	}

	p.logger.Debug().Str("path", vecPath).Str("label", string(rec.Label())).Msg("feature vector written")
	return OutcomeWritten, nil
}

func (p *Processor) readImage(path string) (image.Image, error) {
	data, err := afero.ReadFile(p.store.Fs(), path)
	if err != nil {
		return nil, fmt.Errorf("failed to read intermediate image: %w", err)
	}
	return decodeImage(data)
}
