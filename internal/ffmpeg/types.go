package ffmpeg

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args       []string
	LogHandler func(line string)
}

// ScaleFlags selects the swscale interpolation used by ScaleImage.
type ScaleFlags string

const (
	ScaleBilinear ScaleFlags = "bilinear"
	ScaleBicubic  ScaleFlags = "bicubic"
	ScaleLanczos  ScaleFlags = "lanczos"
)

// ScaleOptions configures a single image rescale
type ScaleOptions struct {
	Input  string
	Output string
	Width  int
	Height int
	Flags  ScaleFlags
}
