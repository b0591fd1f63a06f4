// Package features turns a resized image into the fixed-length numeric
// descriptor that stands in for the image in training.
//
// A vector is the concatenation, in this order, of
//
//	texture (1) | RGB mean (3) | pleasure, arousal, dominance (3) | HSV mean (3) | embedding (n)
//
// Persisted vectors depend on this layout; changing the order or any
// sub-extractor size invalidates existing datasets.
package features

import (
	"errors"
	"fmt"
	"image"
)

const (
	textureLen = 1
	rgbLen     = 3
	affectLen  = 3
	hsvLen     = 3

	// HandcraftedLen is the number of values preceding the embedding.
	HandcraftedLen = textureLen + rgbLen + affectLen + hsvLen
)

// Width returns the vector length for an embedding of the given size.
func Width(embedSize int) int {
	return HandcraftedLen + embedSize
}

// Vector is one image's feature vector.
type Vector []float64

func (v Vector) Texture() float64 { return v[0] }

func (v Vector) RGB() [3]float64 { return [3]float64{v[1], v[2], v[3]} }

func (v Vector) Affect() [3]float64 { return [3]float64{v[4], v[5], v[6]} }

func (v Vector) HSV() [3]float64 { return [3]float64{v[7], v[8], v[9]} }

func (v Vector) Embedding() []float64 { return v[HandcraftedLen:] }

// Embedder produces the deep-network part of the vector. Implementations
// must be safe for concurrent use; one instance is shared by all workers.
type Embedder interface {
	Embed(img image.Image) ([]float64, error)
	Size() int
}

var ErrEmptyImage = errors.New("empty image")

// Extractor computes feature vectors. It holds no mutable state.
type Extractor struct {
	embedder Embedder
}

// NewExtractor creates an extractor backed by the given embedder
func NewExtractor(embedder Embedder) *Extractor {
	return &Extractor{embedder: embedder}
}

// Width is the length of every vector this extractor returns.
func (x *Extractor) Width() int {
	return Width(x.embedder.Size())
}

// Extract computes the feature vector of img.
func (x *Extractor) Extract(img image.Image) (Vector, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, ErrEmptyImage
	}

	lbp, err := MultiBlockLBP(img)
	if err != nil {
		return nil, fmt.Errorf("texture: %w", err)
	}

	rgb, hsv := ColorMeans(img)
	pad := Affect(hsv)

	emb, err := x.embedder.Embed(img)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if len(emb) != x.embedder.Size() {
		return nil, fmt.Errorf("embedding: expected %d values, got %d", x.embedder.Size(), len(emb))
	}

	v := make(Vector, 0, x.Width())
	v = append(v, lbp)
	v = append(v, rgb[:]...)
	v = append(v, pad[:]...)
	v = append(v, hsv[:]...)
	v = append(v, emb...)
	return v, nil
}
