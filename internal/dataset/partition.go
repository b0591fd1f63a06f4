package dataset

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kikiluvv/moodset/internal/annotation"
	"github.com/spf13/afero"
)

// Ratio is the relative weight of the train and test partitions.
type Ratio struct {
	Train float64
	Test  float64
}

// DefaultRatio sends every annotation file to training.
var DefaultRatio = Ratio{Train: 1, Test: 0}

// TrainFraction returns Train / (Train + Test).
func (r Ratio) TrainFraction() (float64, error) {
	if r.Train < 0 || r.Test < 0 {
		return 0, fmt.Errorf("ratio %v:%v: weights must not be negative", r.Train, r.Test)
	}
	if r.Train+r.Test == 0 {
		return 0, errors.New("ratio 0:0: at least one weight must be positive")
	}
	return r.Train / (r.Train + r.Test), nil
}

// Quota is the number of training files a category with count files gets.
// Every category keeps at least one training file.
func Quota(fraction float64, count int) int {
	return max(1, int(math.Round(fraction*float64(count))))
}

// Partition splits annotation files into train and test. Files are shuffled
// globally with rng, then each file goes to train while its category still
// has quota left. Each output keeps the shuffled order.
func Partition(files []string, ratio Ratio, rng *rand.Rand) (train, test []string, err error) {
	fraction, err := ratio.TrainFraction()
	if err != nil {
		return nil, nil, err
	}

	counts := make(map[string]int)
	for _, f := range files {
		cat := annotation.CategoryFromFile(f)
		if _, err := annotation.LabelFor(cat); err != nil {
			return nil, nil, fmt.Errorf("annotation file %s: %w", f, err)
		}
		counts[cat]++
	}

	remaining := make(map[string]int, len(counts))
	for cat, n := range counts {
		remaining[cat] = Quota(fraction, n)
	}

	shuffled := append([]string(nil), files...)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	for _, f := range shuffled {
		cat := annotation.CategoryFromFile(f)
		if remaining[cat] > 0 {
			train = append(train, f)
			remaining[cat]--
		} else {
			test = append(test, f)
		}
	}
	return train, test, nil
}

// ListAnnotationFiles returns the *.csv files directly under dir, sorted.
func ListAnnotationFiles(fsys afero.Fs, dir string) ([]string, error) {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list annotations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// Materialize copies the partitioned files into <dir>/train and <dir>/test.
// Both directories are emptied first.
func Materialize(fsys afero.Fs, dir string, train, test []string) error {
	for split, files := range map[string][]string{"train": train, "test": test} {
		target := filepath.Join(dir, split)
		if err := fsys.RemoveAll(target); err != nil {
			return fmt.Errorf("failed to clear %s: %w", target, err)
		}
		if err := fsys.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", target, err)
		}
		for _, f := range files {
			if err := copyFile(fsys, f, filepath.Join(target, filepath.Base(f))); err != nil {
				return err
			}
		}
	}
	return nil
}

func copyFile(fsys afero.Fs, src, dst string) error {
	in, err := fsys.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := fsys.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
