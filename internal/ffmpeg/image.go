package ffmpeg

import (
	"context"
	"fmt"
	"time"
)

// ScaleImage rescales a still image to exactly Width x Height, ignoring the
// aspect ratio. The output format follows the Output extension.
func (e *Executor) ScaleImage(ctx context.Context, opts ScaleOptions) error {
	if opts.Input == "" || opts.Output == "" {
		return fmt.Errorf("input and output are required")
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return fmt.Errorf("invalid target size %dx%d", opts.Width, opts.Height)
	}
	if opts.Flags == "" {
		opts.Flags = ScaleBilinear
	}

	filter := NewFilterBuilder().
		Scale(opts.Width, opts.Height, opts.Flags).
		Format("rgb24").
		Build()

	start := time.Now()
	err := e.Run(ctx, RunOptions{
		Args: []string{
			"-i", opts.Input,
			"-vf", filter,
			"-frames:v", "1",
			opts.Output,
		},
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("")
		},
	})
	if err != nil {
		return fmt.Errorf("failed to scale %s: %w", opts.Input, err)
	}

	e.logger.Debug().
		Str("output", opts.Output).
		Int("width", opts.Width).
		Int("height", opts.Height).
		Dur("elapsed", time.Since(start)).
		Msg("image scaled")
	return nil
}
