package pipeline

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/kikiluvv/moodset/internal/ffmpeg"
	"github.com/kikiluvv/moodset/pkg/util"
	"github.com/nfnt/resize"
)

// Resizer turns raw image bytes into a size x size image.
type Resizer interface {
	Resize(ctx context.Context, data []byte, size int) (image.Image, error)
}

// NativeResizer decodes in process and resamples with bilinear
// interpolation.
type NativeResizer struct{}

func (NativeResizer) Resize(_ context.Context, data []byte, size int) (image.Image, error) {
	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	return resize.Resize(uint(size), uint(size), img, resize.Bilinear), nil
}

// FFmpegResizer delegates decoding and scaling to ffmpeg, which covers
// formats the Go decoders don't. It stages data in temp files.
type FFmpegResizer struct {
	exec   *ffmpeg.Executor
	tmpDir string
}

// NewFFmpegResizer creates a resizer that stages files in tmpDir, or the OS
// temp dir when empty.
func NewFFmpegResizer(exec *ffmpeg.Executor, tmpDir string) *FFmpegResizer {
	return &FFmpegResizer{exec: exec, tmpDir: tmpDir}
}

func (r *FFmpegResizer) Resize(ctx context.Context, data []byte, size int) (image.Image, error) {
	src, err := util.TempFile(r.tmpDir, "moodset-src-", "")
	if err != nil {
		return nil, err
	}
	dst, err := util.TempFile(r.tmpDir, "moodset-dst-", ".png")
	if err != nil {
		src.Close()
		util.CleanupFiles(src.Name())
		return nil, err
	}
	dst.Close()
	defer util.CleanupFiles(src.Name(), dst.Name())

	_, err = src.Write(data)
	if cerr := src.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stage image: %w", err)
	}

	err = r.exec.ScaleImage(ctx, ffmpeg.ScaleOptions{
		Input:  src.Name(),
		Output: dst.Name(),
		Width:  size,
		Height: size,
		Flags:  ffmpeg.ScaleBilinear,
	})
	if err != nil {
		return nil, err
	}

	out, err := os.ReadFile(dst.Name())
	if err != nil {
		return nil, err
	}
	return decodeImage(out)
}
