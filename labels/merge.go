package labels

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var ErrNothingToMerge = errors.New("no labels to merge")

func init() {
	// Keep pdfcpu from creating its config directory under the user's home.
	model.ConfigPath = "disable"
}

// MergedName is the file name of a consolidated label sheet written at ts.
func MergedName(ts time.Time) string {
	return "labels_" + ts.UTC().Format("20060102T150405Z") + ".pdf"
}

// MergedPath is a path in dir for a sheet merged at ts that no existing file
// uses. Later sheets in the same second get a _2, _3, ... suffix.
func MergedPath(dir string, ts time.Time) string {
	name := MergedName(ts)
	path := filepath.Join(dir, name)
	base := strings.TrimSuffix(name, ".pdf")
	for i := 2; exists(path); i++ {
		path = filepath.Join(dir, fmt.Sprintf("%s_%d.pdf", base, i))
	}
	return path
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Consolidate merges paths, in order, into outPath and then deletes the
// sources. If the merge fails nothing is deleted.
func Consolidate(paths []string, outPath string) error {
	var inputs []string
	for _, p := range paths {
		if exists(p) {
			inputs = append(inputs, p)
		}
	}
	if len(inputs) == 0 {
		return ErrNothingToMerge
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}

	conf := model.NewDefaultConfiguration()
	if err := api.MergeCreateFile(inputs, outPath, false, conf); err != nil {
		_ = os.Remove(outPath)
		return fmt.Errorf("merge %d labels: %w", len(inputs), err)
	}

	var errs []error
	for _, p := range inputs {
		if p == outPath {
			continue
		}
		if err := os.Remove(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PageCount reports the number of pages in a PDF file.
func PageCount(path string) (int, error) {
	return api.PageCountFile(path)
}

// PageDims reports the size of every page in points, in page order.
func PageDims(path string) ([]types.Dim, error) {
	return api.PageDimsFile(path)
}
