package dataset

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Options configures a Generator.
type Options struct {
	BatchSize int
	Shuffle   bool
	// Width is the expected vector length. Zero accepts whatever the first
	// row of each batch has.
	Width int
	Rand  *rand.Rand
}

// Batch is one mini-batch: a BatchSize x Width feature matrix and the
// matching label indices.
type Batch struct {
	Features *mat.Dense
	Labels   []int
}

// Generator serves persisted vectors in fixed-size batches. Vectors are read
// from the store on every request; nothing is cached. A Generator is not
// safe for concurrent use.
type Generator struct {
	store *Store
	files []string
	opts  Options
	perm  []int
}

// NewGenerator creates a generator over files and starts the first epoch.
func NewGenerator(store *Store, files []string, opts Options) (*Generator, error) {
	if opts.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	g := &Generator{
		store: store,
		files: append([]string(nil), files...),
		opts:  opts,
	}
	g.StartEpoch()
	return g, nil
}

// StartEpoch draws a new visiting order, or resets to file order when
// shuffling is off.
func (g *Generator) StartEpoch() {
	if g.opts.Shuffle {
		g.perm = g.opts.Rand.Perm(len(g.files))
		return
	}
	g.perm = make([]int, len(g.files))
	for i := range g.perm {
		g.perm[i] = i
	}
}

// Len is the number of full batches per epoch. Trailing samples that do not
// fill a batch are skipped.
func (g *Generator) Len() int {
	return len(g.files) / g.opts.BatchSize
}

// Samples is the number of vector files the generator draws from.
func (g *Generator) Samples() int {
	return len(g.files)
}

// Batch loads batch i of the current epoch.
func (g *Generator) Batch(i int) (Batch, error) {
	if i < 0 || i >= g.Len() {
		return Batch{}, fmt.Errorf("batch %d out of range [0, %d)", i, g.Len())
	}

	bs := g.opts.BatchSize
	width := g.opts.Width
	var data []float64
	labels := make([]int, bs)

	for row, idx := range g.perm[i*bs : (i+1)*bs] {
		path := g.files[idx]
		v, err := g.store.ReadVector(path)
		if err != nil {
			return Batch{}, err
		}
		if width == 0 {
			width = len(v)
		}
		if len(v) != width || width == 0 {
			return Batch{}, fmt.Errorf("%s: %w: got %d, want %d", path, ErrWidth, len(v), width)
		}
		if data == nil {
			data = make([]float64, 0, bs*width)
		}
		data = append(data, v...)

		label, err := LabelOf(path)
		if err != nil {
			return Batch{}, fmt.Errorf("%s: %w", path, err)
		}
		labels[row] = label.Index()
	}

	return Batch{Features: mat.NewDense(bs, width, data), Labels: labels}, nil
}

// ErrWidth means a persisted vector has an unexpected length.
var ErrWidth = errors.New("vector width mismatch")
