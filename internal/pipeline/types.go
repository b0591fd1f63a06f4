package pipeline

import (
	"runtime"
	"time"
)

// Outcome is what happened to one annotation record.
type Outcome int

const (
	// OutcomeWritten means a feature vector was persisted.
	OutcomeWritten Outcome = iota
	// OutcomeSkipped means the record failed the agreement threshold.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWritten:
		return "written"
	case OutcomeSkipped:
		return "skipped"
	}
	return "unknown"
}

// Config holds pipeline-specific configuration
type Config struct {
	// Workers per annotation file, 0 means runtime.NumCPU()
	Workers int
	// ChunkSize is how many consecutive lines a worker claims at once
	ChunkSize int
	// ImageSize is the square edge images are resized to before extraction
	ImageSize   int
	JPEGQuality int
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

func (c Config) chunkSize() int {
	return max(1, c.ChunkSize)
}

// Summary aggregates the outcome of a sweep over one split.
type Summary struct {
	Files   int
	Lines   int
	Written int
	Skipped int
	Failed  int
	Elapsed time.Duration
}

func (s *Summary) merge(o Summary) {
	s.Files += o.Files
	s.Lines += o.Lines
	s.Written += o.Written
	s.Skipped += o.Skipped
	s.Failed += o.Failed
}
