package corpus

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
)

const (
	writeBufSize = 64 * 1024
	filePerm     = 0o644
)

// Writer writes one output file atomically: bytes go to a temp file in the
// destination directory which is renamed into place by Commit. Until Commit
// succeeds the destination is untouched.
type Writer struct {
	dest   string
	tmp    *os.File
	buf    *bufio.Writer
	snappy *snappy.Writer
	w      io.Writer
	done   bool
}

// Create starts an output file named name inside dir. When encode is true
// the content is written snappy-framed.
func Create(dir, name string, encode bool) (*Writer, error) {
	dest := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, ".tmp-"+name+"-*")
	if err != nil {
		return nil, fmt.Errorf("creating output for %s: %w", dest, err)
	}
	_ = os.Chmod(tmp.Name(), filePerm)

	w := &Writer{dest: dest, tmp: tmp, buf: bufio.NewWriterSize(tmp, writeBufSize)}
	w.w = w.buf
	if encode {
		w.snappy = snappy.NewBufferedWriter(w.buf)
		w.w = w.snappy
	}
	return w, nil
}

// Path returns the final destination path.
func (w *Writer) Path() string { return w.dest }

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) { return w.w.Write(p) }

// WriteString writes s.
func (w *Writer) WriteString(s string) (int, error) { return io.WriteString(w.w, s) }

// Commit flushes, syncs and renames the temp file onto the destination.
func (w *Writer) Commit() error {
	if w.done {
		return nil
	}
	w.done = true
	if w.snappy != nil {
		if err := w.snappy.Close(); err != nil {
			return w.fail(err)
		}
	}
	if err := w.buf.Flush(); err != nil {
		return w.fail(err)
	}
	if err := w.tmp.Sync(); err != nil {
		return w.fail(err)
	}
	if err := w.tmp.Close(); err != nil {
		_ = os.Remove(w.tmp.Name())
		return fmt.Errorf("writing %s: %w", w.dest, err)
	}
	if err := os.Rename(w.tmp.Name(), w.dest); err != nil {
		_ = os.Remove(w.tmp.Name())
		return fmt.Errorf("writing %s: %w", w.dest, err)
	}
	return nil
}

// Abort discards the temp file. It is a no-op after Commit.
func (w *Writer) Abort() {
	if w.done {
		return
	}
	w.done = true
	_ = w.tmp.Close()
	_ = os.Remove(w.tmp.Name())
}

func (w *Writer) fail(err error) error {
	_ = w.tmp.Close()
	_ = os.Remove(w.tmp.Name())
	return fmt.Errorf("writing %s: %w", w.dest, err)
}

// CopyFile copies src byte for byte into dir under its document name.
func CopyFile(src, dir string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := Create(dir, DocumentName(src), false)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Abort()
		return "", fmt.Errorf("copying %s: %w", src, err)
	}
	if err := out.Commit(); err != nil {
		return "", err
	}
	return out.Path(), nil
}
