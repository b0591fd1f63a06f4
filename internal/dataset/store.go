package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/kikiluvv/moodset/internal/annotation"
	"github.com/sbinet/npyio"
	"github.com/spf13/afero"
)

// Store is the on-disk feature dataset:
//
//	<root>/<split>/<label>/<image id without extension>
//
// Each file holds one vector in NumPy .npy format. The label is encoded only
// by the parent directory.
type Store struct {
	fs   afero.Fs
	root string
}

// NewStore returns a store rooted at root on fsys.
func NewStore(fsys afero.Fs, root string) *Store {
	return &Store{fs: fsys, root: root}
}

// Fs exposes the underlying filesystem for callers that stage files next to
// the vectors.
func (s *Store) Fs() afero.Fs { return s.fs }

func (s *Store) Root() string { return s.root }

// Dir is the directory holding one split's vectors for label.
func (s *Store) Dir(split string, label annotation.Label) string {
	return filepath.Join(s.root, split, string(label))
}

// ImagePath is where the intermediate resized image for a record lives. Ids
// without an extension get ".jpg" so the image never shares the vector's path.
func (s *Store) ImagePath(split string, r annotation.Record) string {
	id := r.ImageID()
	if filepath.Ext(id) == "" {
		id += ".jpg"
	}
	return filepath.Join(s.Dir(split, r.Label()), id)
}

// VectorPath is where a record's feature vector is persisted.
func (s *Store) VectorPath(split string, r annotation.Record) string {
	return filepath.Join(s.Dir(split, r.Label()), r.StemID())
}

// EnsureLayout creates <root>/<split>/<label> for every split and label.
func (s *Store) EnsureLayout(splits []string) error {
	for _, split := range splits {
		for _, label := range annotation.Labels {
			if err := s.fs.MkdirAll(s.Dir(split, label), 0755); err != nil {
				return fmt.Errorf("failed to create %s: %w", s.Dir(split, label), err)
			}
		}
	}
	return nil
}

// WriteVector persists v at path, replacing any previous file.
func (s *Store) WriteVector(path string, v []float64) error {
	f, err := s.fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create vector file: %w", err)
	}
	if err := npyio.Write(f, v); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode vector %s: %w", path, err)
	}
	return f.Close()
}

// ReadVector loads a vector written by WriteVector.
func (s *Store) ReadVector(path string) ([]float64, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var v []float64
	if err := npyio.Read(f, &v); err != nil {
		return nil, fmt.Errorf("failed to decode vector %s: %w", path, err)
	}
	return v, nil
}

// List returns every vector file of split, sorted by path. A missing split
// directory yields an empty list.
func (s *Store) List(split string) ([]string, error) {
	var files []string
	for _, label := range annotation.Labels {
		dir := s.Dir(split, label)
		entries, err := afero.ReadDir(s.fs, dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to list %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// LabelOf reads the label from a vector path's parent directory.
func LabelOf(path string) (annotation.Label, error) {
	return annotation.ParseLabel(filepath.Base(filepath.Dir(path)))
}
