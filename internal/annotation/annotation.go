// Package annotation parses crowd-sourced emotion judgments and maps emotion
// categories onto the binary labels used by the dataset.
package annotation

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// Label is the binary class a record is filed under
type Label string

const (
	Positive Label = "positive"
	Negative Label = "negative"
)

// Labels lists every label in class index order.
var Labels = []Label{Positive, Negative}

// Index returns the integer class fed to the classifier.
func (l Label) Index() int {
	if l == Positive {
		return 0
	}
	return 1
}

// ParseLabel maps a directory name back to its label.
func ParseLabel(s string) (Label, error) {
	switch Label(s) {
	case Positive:
		return Positive, nil
	case Negative:
		return Negative, nil
	}
	return "", fmt.Errorf("unknown label %q", s)
}

var (
	ErrMalformed       = errors.New("malformed annotation")
	ErrUnknownCategory = errors.New("unknown emotion category")
)

var categories = map[string]Label{
	"amusement":   Positive,
	"awe":         Positive,
	"contentment": Positive,
	"excitement":  Positive,
	"anger":       Negative,
	"disgust":     Negative,
	"fear":        Negative,
	"sadness":     Negative,
}

// Categories returns the recognised emotion categories.
func Categories() []string {
	return []string{"amusement", "awe", "anger", "contentment", "disgust", "excitement", "fear", "sadness"}
}

// LabelFor maps an emotion category onto its binary label.
func LabelFor(category string) (Label, error) {
	l, ok := categories[category]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return l, nil
}

// Record is one judgment: how many respondents agreed or disagreed that
// the image at SourceURI evokes Category.
type Record struct {
	Category      string
	SourceURI     string
	DisagreeCount int
	AgreeCount    int
}

// Parse reads a single annotation line. Only the first whitespace separated
// token is considered; anything after it on the same line is ignored.
func Parse(line string) (Record, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Record{}, fmt.Errorf("%w: empty line", ErrMalformed)
	}

	parts := strings.Split(fields[0], ",")
	if len(parts) != 4 {
		return Record{}, fmt.Errorf("%w: expected 4 fields, got %d in %q", ErrMalformed, len(parts), fields[0])
	}

	disagree, err := strconv.Atoi(parts[2])
	if err != nil {
		return Record{}, fmt.Errorf("%w: disagree count %q", ErrMalformed, parts[2])
	}
	agree, err := strconv.Atoi(parts[3])
	if err != nil {
		return Record{}, fmt.Errorf("%w: agree count %q", ErrMalformed, parts[3])
	}
	if parts[1] == "" {
		return Record{}, fmt.Errorf("%w: empty source uri", ErrMalformed)
	}

	r := Record{
		Category:      parts[0],
		SourceURI:     parts[1],
		DisagreeCount: disagree,
		AgreeCount:    agree,
	}
	if _, err := LabelFor(r.Category); err != nil {
		return Record{}, err
	}
	if r.ImageID() == "" {
		return Record{}, fmt.Errorf("%w: no image id in %q", ErrMalformed, r.SourceURI)
	}
	return r, nil
}

// Included reports whether enough respondents agreed with the category
func (r Record) Included() bool {
	return r.AgreeCount >= r.DisagreeCount
}

// Label returns the binary label of the record's category.
func (r Record) Label() Label {
	return categories[r.Category]
}

// ImageID is the trailing path segment of the source uri, extension included.
func (r Record) ImageID() string {
	uri := r.SourceURI
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	id := path.Base(uri)
	if id == "." || id == "/" {
		return ""
	}
	return id
}

// StemID is the image id with its extension removed; it names the
// persisted feature file.
func (r Record) StemID() string {
	id := r.ImageID()
	return strings.TrimSuffix(id, path.Ext(id))
}

// CategoryFromFile returns the emotion category encoded in an annotation
// file name, e.g. "amusement_3.csv" -> "amusement".
func CategoryFromFile(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if i := strings.Index(base, "_"); i >= 0 {
		return base[:i]
	}
	return strings.TrimSuffix(base, path.Ext(base))
}
