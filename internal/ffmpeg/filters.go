package ffmpeg

import (
	"fmt"
	"strings"
)

// FilterBuilder helps construct ffmpeg filter chains
type FilterBuilder struct {
	filters []string
}

// NewFilterBuilder creates a new filter builder
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{
		filters: make([]string, 0),
	}
}

// Scale adds a scale filter. Non-positive sizes are ignored so chaining
// can continue.
func (fb *FilterBuilder) Scale(width, height int, flags ScaleFlags) *FilterBuilder {
	if width <= 0 || height <= 0 {
		return fb
	}
	f := fmt.Sprintf("scale=%d:%d", width, height)
	if flags != "" {
		f += ":flags=" + string(flags)
	}
	fb.filters = append(fb.filters, f)
	return fb
}

// Format forces the output pixel format, e.g. rgb24.
func (fb *FilterBuilder) Format(pixFmt string) *FilterBuilder {
	if pixFmt == "" {
		return fb
	}
	fb.filters = append(fb.filters, "format="+pixFmt)
	return fb
}

// Build returns the complete filter string joined with commas
func (fb *FilterBuilder) Build() string {
	return strings.Join(fb.filters, ",")
}
