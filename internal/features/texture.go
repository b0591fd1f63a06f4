package features

import (
	"fmt"
	"image"
)

// neighbour blocks of the 3x3 grid as (row, col), clockwise from the top
// left. The first entry maps to the most significant bit.
var lbpNeighbours = [8][2]int{
	{0, 0}, {0, 1}, {0, 2},
	{1, 2}, {2, 2}, {2, 1},
	{2, 0}, {1, 0},
}

// MultiBlockLBP computes a multi-block local binary pattern over a 3x3 grid
// anchored at the image's top left corner. Each cell is a third of the
// smaller image dimension. A neighbour cell whose intensity sum is at least
// the centre cell's sum sets its bit, giving a code in [0, 255].
func MultiBlockLBP(img image.Image) (float64, error) {
	b := img.Bounds()
	cell := min(b.Dx(), b.Dy()) / 3
	if cell < 1 {
		return 0, fmt.Errorf("image %dx%d too small for a 3x3 block grid", b.Dx(), b.Dy())
	}

	integral := grayIntegral(img, 3*cell, 3*cell)
	centre := integral.sum(cell, cell, cell)

	var code int
	for i, n := range lbpNeighbours {
		if integral.sum(n[0]*cell, n[1]*cell, cell) >= centre {
			code |= 1 << (7 - i)
		}
	}
	return float64(code), nil
}

// integralImage holds cumulative sums with a zero row and column prepended.
// Luminance is kept in fixed point (0.2125R + 0.7154G + 0.0721B scaled by
// 1e4) so equal blocks compare equal.
type integralImage struct {
	stride int
	vals   []int64
}

// grayIntegral builds the integral image of the top left w x h region of img.
func grayIntegral(img image.Image, w, h int) integralImage {
	b := img.Bounds()
	ii := integralImage{stride: w + 1, vals: make([]int64, (w+1)*(h+1))}
	for y := 0; y < h; y++ {
		var row int64
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			row += 2125*int64(r) + 7154*int64(g) + 721*int64(bl)
			ii.vals[(y+1)*ii.stride+x+1] = ii.vals[y*ii.stride+x+1] + row
		}
	}
	return ii
}

// sum of the size x size square with top left corner (r, c)
func (ii integralImage) sum(r, c, size int) int64 {
	at := func(y, x int) int64 { return ii.vals[y*ii.stride+x] }
	return at(r+size, c+size) - at(r, c+size) - at(r+size, c) + at(r, c)
}
