package features

import (
	"fmt"
	"image"
	"math"

	"github.com/nfnt/resize"
)

// Layout is the tensor memory order the embedding model expects
type Layout string

const (
	NCHW Layout = "NCHW"
	NHWC Layout = "NHWC"
)

// Normalization selects the input scaling the pretrained weights were
// trained with.
type Normalization string

const (
	// Caffe is Keras' VGG16 preprocess_input: BGR order, 0-255 scale with
	// the ImageNet channel means subtracted.
	Caffe Normalization = "caffe"
	// Torch scales to 0-1 then standardises with ImageNet mean and std.
	Torch Normalization = "torch"
)

var (
	caffeMeanBGR = [3]float32{103.939, 116.779, 123.68}
	torchMean    = [3]float32{0.485, 0.456, 0.406}
	torchStd     = [3]float32{0.229, 0.224, 0.225}
)

// ParseLayout validates a layout name from config.
func ParseLayout(s string) (Layout, error) {
	switch Layout(s) {
	case NCHW, NHWC:
		return Layout(s), nil
	}
	return "", fmt.Errorf("unknown tensor layout %q", s)
}

// ParseNormalization validates a normalization name from config.
func ParseNormalization(s string) (Normalization, error) {
	switch Normalization(s) {
	case Caffe, Torch:
		return Normalization(s), nil
	}
	return "", fmt.Errorf("unknown normalization %q", s)
}

// Preprocess resizes img to size x size and packs it into a normalised
// float32 tensor of shape [1, 3, size, size] or [1, size, size, 3].
func Preprocess(img image.Image, size int, layout Layout, norm Normalization) []float32 {
	resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)
	b := resized.Bounds()

	data := make([]float32, 3*size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, bl, _ := resized.At(b.Min.X+x, b.Min.Y+y).RGBA()
			px := [3]float32{float32(r>>8), float32(g>>8), float32(bl>>8)}

			var ch [3]float32
			switch norm {
			case Caffe:
				ch = [3]float32{px[2] - caffeMeanBGR[0], px[1] - caffeMeanBGR[1], px[0] - caffeMeanBGR[2]}
			default:
				for c := range ch {
					ch[c] = (px[c]/255 - torchMean[c]) / torchStd[c]
				}
			}

			for c, val := range ch {
				var idx int
				if layout == NHWC {
					idx = (y*size+x)*3 + c
				} else {
					idx = c*size*size + y*size + x
				}
				data[idx] = val
			}
		}
	}
	return data
}

// Softmax converts logits to probabilities in float64.
func Softmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	hi := math.Inf(-1)
	for _, l := range logits {
		hi = math.Max(hi, float64(l))
	}
	var total float64
	for i, l := range logits {
		out[i] = math.Exp(float64(l) - hi)
		total += out[i]
	}
	for i := range out {
		out[i] /= total
	}
	return out
}
