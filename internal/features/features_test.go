package features

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns a fixed vector so tests don't need onnxruntime
type fakeEmbedder struct {
	size int
	err  error
	out  []float64
}

func (f *fakeEmbedder) Size() int { return f.size }

func (f *fakeEmbedder) Embed(img image.Image) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	v := make([]float64, f.size)
	for i := range v {
		v[i] = 1 / float64(f.size)
	}
	return v, nil
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func fillCell(img *image.RGBA, row, col, cell int, c color.Color) {
	r := image.Rect(col*cell, row*cell, (col+1)*cell, (row+1)*cell)
	draw.Draw(img, r, &image.Uniform{C: c}, image.Point{}, draw.Src)
}

func TestWidth(t *testing.T) {
	assert.Equal(t, 1010, Width(1000))
	assert.Equal(t, 10, HandcraftedLen)
}

func TestAffectClosedForm(t *testing.T) {
	hsv := [3]float64{42, 120, 200}
	pad := Affect(hsv)
	assert.InDelta(t, 0.69*200+0.22*120, pad[0], 1e-12)
	assert.InDelta(t, -0.31*200+0.6*120, pad[1], 1e-12)
	assert.InDelta(t, -0.76*200+0.32*120, pad[2], 1e-12)
}

func TestColorMeansSolid(t *testing.T) {
	img := solid(9, 9, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	rgb, hsv := ColorMeans(img)

	assert.InDelta(t, 200, rgb[0], 1e-9)
	assert.InDelta(t, 100, rgb[1], 1e-9)
	assert.InDelta(t, 50, rgb[2], 1e-9)

	// v = 200, s = round(150*255/200) = 191, h = 60*50/150 / 2 = 10
	assert.InDelta(t, 10, hsv[0], 1e-9)
	assert.InDelta(t, 191, hsv[1], 1e-9)
	assert.InDelta(t, 200, hsv[2], 1e-9)
}

func TestColorMeansHalfAndHalf(t *testing.T) {
	img := solid(4, 2, color.RGBA{A: 255})
	draw.Draw(img, image.Rect(0, 0, 4, 1), &image.Uniform{C: color.RGBA{R: 255, G: 255, B: 255, A: 255}}, image.Point{}, draw.Src)

	rgb, hsv := ColorMeans(img)
	for c := 0; c < 3; c++ {
		assert.InDelta(t, 127.5, rgb[c], 1e-9)
	}
	assert.InDelta(t, 0, hsv[0], 1e-9)
	assert.InDelta(t, 0, hsv[1], 1e-9)
	assert.InDelta(t, 127.5, hsv[2], 1e-9)
}

func TestToHSVHues(t *testing.T) {
	cases := []struct {
		r, g, b float64
		h       float64
	}{
		{255, 0, 0, 0},
		{0, 255, 0, 60},
		{0, 0, 255, 120},
		{255, 0, 1, 0}, // just under 360 degrees rounds back to 0
	}
	for _, c := range cases {
		h, s, v := toHSV(c.r, c.g, c.b)
		assert.InDelta(t, c.h, h, 1e-9, "%v", c)
		assert.InDelta(t, 255, s, 1e-9)
		assert.InDelta(t, 255, v, 1e-9)
	}
}

func TestMultiBlockLBPUniform(t *testing.T) {
	code, err := MultiBlockLBP(solid(30, 30, color.Gray{Y: 90}))
	require.NoError(t, err)
	assert.Equal(t, 255.0, code)
}

func TestMultiBlockLBPBrightCentre(t *testing.T) {
	img := solid(30, 30, color.Black)
	fillCell(img, 1, 1, 10, color.White)
	code, err := MultiBlockLBP(img)
	require.NoError(t, err)
	assert.Equal(t, 0.0, code)
}

func TestMultiBlockLBPTopRow(t *testing.T) {
	img := solid(30, 30, color.Black)
	fillCell(img, 1, 1, 10, color.Gray{Y: 128})
	for col := 0; col < 3; col++ {
		fillCell(img, 0, col, 10, color.White)
	}
	code, err := MultiBlockLBP(img)
	require.NoError(t, err)
	assert.Equal(t, float64(128+64+32), code)
}

func TestMultiBlockLBPLeftNeighbourIsLowestBit(t *testing.T) {
	img := solid(30, 30, color.Black)
	fillCell(img, 1, 1, 10, color.Gray{Y: 128})
	fillCell(img, 1, 0, 10, color.White)
	code, err := MultiBlockLBP(img)
	require.NoError(t, err)
	assert.Equal(t, 1.0, code)
}

func TestMultiBlockLBPGridIgnoresRemainder(t *testing.T) {
	// 32 / 3 = 10, the last two rows and columns are outside the grid
	img := solid(32, 32, color.Gray{Y: 50})
	draw.Draw(img, image.Rect(30, 0, 32, 32), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	code, err := MultiBlockLBP(img)
	require.NoError(t, err)
	assert.Equal(t, 255.0, code)
}

func TestMultiBlockLBPTooSmall(t *testing.T) {
	_, err := MultiBlockLBP(solid(2, 2, color.White))
	assert.Error(t, err)
}

func TestExtractLayout(t *testing.T) {
	emb := &fakeEmbedder{size: 5}
	x := NewExtractor(emb)
	require.Equal(t, 15, x.Width())

	img := solid(12, 12, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	v, err := x.Extract(img)
	require.NoError(t, err)
	require.Len(t, v, 15)

	assert.Equal(t, 255.0, v.Texture())
	assert.Equal(t, [3]float64{200, 100, 50}, v.RGB())
	hsv := v.HSV()
	assert.Equal(t, Affect(hsv), v.Affect())
	assert.InDelta(t, 0.69*hsv[2]+0.22*hsv[1], v.Affect()[0], 1e-12)
	assert.Len(t, v.Embedding(), 5)
}

func TestExtractConstantWidth(t *testing.T) {
	x := NewExtractor(&fakeEmbedder{size: 7})
	for _, c := range []color.Color{color.White, color.Black, color.RGBA{R: 12, G: 200, B: 99, A: 255}} {
		v, err := x.Extract(solid(9, 9, c))
		require.NoError(t, err)
		assert.Len(t, v, Width(7))
	}
}

func TestExtractPropagatesEmbedderError(t *testing.T) {
	boom := errors.New("boom")
	x := NewExtractor(&fakeEmbedder{size: 3, err: boom})
	_, err := x.Extract(solid(9, 9, color.White))
	assert.ErrorIs(t, err, boom)
}

func TestExtractRejectsWrongEmbeddingSize(t *testing.T) {
	x := NewExtractor(&fakeEmbedder{size: 3, out: []float64{1, 2}})
	_, err := x.Extract(solid(9, 9, color.White))
	assert.Error(t, err)
}

func TestExtractEmptyImage(t *testing.T) {
	x := NewExtractor(&fakeEmbedder{size: 3})
	_, err := x.Extract(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestPreprocessTorchNCHW(t *testing.T) {
	data := Preprocess(solid(8, 8, color.RGBA{R: 255, A: 255}), 4, NCHW, Torch)
	require.Len(t, data, 3*4*4)

	want := [3]float32{
		(1 - torchMean[0]) / torchStd[0],
		(0 - torchMean[1]) / torchStd[1],
		(0 - torchMean[2]) / torchStd[2],
	}
	for c := 0; c < 3; c++ {
		for i := 0; i < 16; i++ {
			assert.InDelta(t, want[c], data[c*16+i], 1e-5)
		}
	}
}

func TestPreprocessCaffeNHWC(t *testing.T) {
	data := Preprocess(solid(8, 8, color.RGBA{R: 255, A: 255}), 4, NHWC, Caffe)
	require.Len(t, data, 3*4*4)

	for px := 0; px < 16; px++ {
		assert.InDelta(t, -caffeMeanBGR[0], data[px*3], 1e-4)
		assert.InDelta(t, -caffeMeanBGR[1], data[px*3+1], 1e-4)
		assert.InDelta(t, 255-caffeMeanBGR[2], data[px*3+2], 1e-4)
	}
}

func TestParseLayoutAndNormalization(t *testing.T) {
	l, err := ParseLayout("NHWC")
	require.NoError(t, err)
	assert.Equal(t, NHWC, l)
	_, err = ParseLayout("CHW")
	assert.Error(t, err)

	n, err := ParseNormalization("caffe")
	require.NoError(t, err)
	assert.Equal(t, Caffe, n)
	_, err = ParseNormalization("none")
	assert.Error(t, err)
}

func TestSoftmax(t *testing.T) {
	p := Softmax([]float32{1, 2, 3, 1000})
	var total float64
	for _, x := range p {
		assert.False(t, math.IsNaN(x))
		total += x
	}
	assert.InDelta(t, 1, total, 1e-9)
	assert.Greater(t, p[3], 0.99)
	assert.Empty(t, Softmax(nil))
}

// TestONNXEmbedder runs against a real model when one is configured.
func TestONNXEmbedder(t *testing.T) {
	model := os.Getenv("MOODSET_ONNX_MODEL")
	if model == "" {
		t.Skip("MOODSET_ONNX_MODEL not set")
	}

	e, err := NewONNXEmbedder(zerolog.New(os.Stderr), ONNXOptions{
		ModelPath:         model,
		SharedLibraryPath: os.Getenv("MOODSET_ONNX_LIBRARY"),
		InputName:         "data",
		OutputName:        "vgg0_dense2_fwd",
		InputSize:         224,
		Classes:           1000,
		Layout:            NCHW,
		Normalization:     Torch,
		Softmax:           true,
	})
	require.NoError(t, err)
	defer e.Close()

	probs, err := e.Embed(solid(256, 256, color.RGBA{R: 30, G: 140, B: 60, A: 255}))
	require.NoError(t, err)
	require.Len(t, probs, 1000)

	var total float64
	for _, p := range probs {
		total += p
	}
	assert.InDelta(t, 1, total, 1e-3)
}
