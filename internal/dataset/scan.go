// Package dataset builds the k-NN dataset from a directory of per-class
// image folders.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoClasses is returned when the dataset root holds no usable class.
var ErrNoClasses = errors.New("no valid classes")

// Class is one sub-directory of the dataset root.
type Class struct {
	Label  string
	Images []string
}

// Scan lists the class folders directly under root, sorted by name, and
// the images inside each one whose extension is in exts. Extensions are
// matched case-insensitively, with or without a leading dot. Nested
// directories are ignored.
func Scan(root string, exts []string) ([]Class, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w in %s: directory does not exist", ErrNoClasses, root)
		}
		return nil, fmt.Errorf("read dataset root: %w", err)
	}

	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		allowed["."+strings.TrimPrefix(strings.ToLower(e), ".")] = true
	}

	var classes []Class
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		dir := filepath.Join(root, entry.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read class %s: %w", entry.Name(), err)
		}

		class := Class{Label: entry.Name()}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			if allowed[strings.ToLower(filepath.Ext(f.Name()))] {
				class.Images = append(class.Images, filepath.Join(dir, f.Name()))
			}
		}
		sort.Strings(class.Images)
		classes = append(classes, class)
	}

	if len(classes) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoClasses, root)
	}

	sort.Slice(classes, func(i, j int) bool {
		return classes[i].Label < classes[j].Label
	})
	return classes, nil
}

// Labels returns the class labels in scan order.
func Labels(classes []Class) []string {
	labels := make([]string, len(classes))
	for i, c := range classes {
		labels[i] = c.Label
	}
	return labels
}
