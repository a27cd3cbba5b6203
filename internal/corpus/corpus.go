// Package corpus handles the filesystem side of deduplication: document
// naming, input discovery, transparent decoding of compressed inputs and
// atomic output files.
package corpus

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/snappy"
)

var (
	// ErrNoInputs is returned when the input list is empty.
	ErrNoInputs = errors.New("no input files")

	// ErrDuplicateName is returned when two inputs share a base name. Outputs
	// and document identities are keyed by base name, so this is a
	// configuration error.
	ErrDuplicateName = errors.New("input files share a base name")
)

// compressedExts lists extensions decoded with the snappy framing format.
var compressedExts = []string{".sz", ".snappy"}

// DocumentName returns the stable identity of an input file: its base name.
func DocumentName(path string) string {
	return filepath.Base(path)
}

// IsCompressed reports whether path is read and written snappy-framed.
func IsCompressed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range compressedExts {
		if ext == e {
			return true
		}
	}
	return false
}

// Names validates inputs and returns their document names in order.
func Names(inputs []string) ([]string, error) {
	if len(inputs) == 0 {
		return nil, ErrNoInputs
	}
	names := make([]string, len(inputs))
	firstSeen := make(map[string]string, len(inputs))
	for i, path := range inputs {
		name := DocumentName(path)
		if prev, ok := firstSeen[name]; ok {
			return nil, fmt.Errorf("%w: %s and %s", ErrDuplicateName, prev, path)
		}
		firstSeen[name] = path
		names[i] = name
	}
	return names, nil
}

// CheckOutputDir verifies dir exists, is a directory and accepts new files.
func CheckOutputDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("output directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output directory %s: not a directory", dir)
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}

// CheckReadable verifies every input can be opened before any work starts.
func CheckReadable(inputs []string) error {
	for _, path := range inputs {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("input %s: %w", path, err)
		}
		if info.IsDir() {
			return fmt.Errorf("input %s: is a directory", path)
		}
	}
	return nil
}

// readCloser pairs a decoding reader with the file it reads from.
type readCloser struct {
	io.Reader
	f *os.File
}

func (r *readCloser) Close() error { return r.f.Close() }

// Open opens path for reading, decoding snappy-framed files.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if !IsCompressed(path) {
		return f, nil
	}
	return &readCloser{Reader: snappy.NewReader(f), f: f}, nil
}

// ReadText returns the decoded contents of path.
func ReadText(path string) (string, error) {
	r, err := Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}
