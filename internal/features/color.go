package features

import (
	"image"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ColorMeans returns the per-channel mean over every pixel of img, in RGB
// and in HSV. Channels use the 8-bit scale: RGB, S and V in [0, 255], hue
// in [0, 180) as OpenCV stores it.
func ColorMeans(img image.Image) (rgb, hsv [3]float64) {
	b := img.Bounds()
	n := b.Dx() * b.Dy()
	if n == 0 {
		return rgb, hsv
	}

	var planes [6][]float64
	for i := range planes {
		planes[i] = make([]float64, 0, n)
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			r8, g8, b8 := float64(r>>8), float64(g>>8), float64(bl>>8)
			h, s, v := toHSV(r8, g8, b8)
			planes[0] = append(planes[0], r8)
			planes[1] = append(planes[1], g8)
			planes[2] = append(planes[2], b8)
			planes[3] = append(planes[3], h)
			planes[4] = append(planes[4], s)
			planes[5] = append(planes[5], v)
		}
	}

	for i := 0; i < 3; i++ {
		rgb[i] = stat.Mean(planes[i], nil)
		hsv[i] = stat.Mean(planes[i+3], nil)
	}
	return rgb, hsv
}

// toHSV converts one 8-bit pixel, rounding each channel to an integer.
func toHSV(r, g, b float64) (h, s, v float64) {
	v = math.Max(r, math.Max(g, b))
	lo := math.Min(r, math.Min(g, b))
	diff := v - lo

	if v > 0 {
		s = math.Round(diff * 255 / v)
	}
	if diff == 0 {
		return 0, s, v
	}

	switch v {
	case r:
		h = 60 * (g - b) / diff
	case g:
		h = 120 + 60*(b-r)/diff
	default:
		h = 240 + 60*(r-g)/diff
	}
	if h < 0 {
		h += 360
	}
	h = math.Round(h / 2)
	if h >= 180 {
		h -= 180
	}
	return h, s, v
}

// Affect derives pleasure, arousal and dominance from a mean HSV triple
// (Valdez & Mehrabian). Brightness is the V channel.
func Affect(hsv [3]float64) [3]float64 {
	s, v := hsv[1], hsv[2]
	return [3]float64{
		0.69*v + 0.22*s,
		-0.31*v + 0.6*s,
		-0.76*v + 0.32*s,
	}
}
