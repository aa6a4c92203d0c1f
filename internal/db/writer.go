package db

import (
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
)

// Writer streams rows into a new dataset file. Rows land in a temp file
// beside the target; Close renames it into place so a crash or abort never
// leaves a half-written dataset.
type Writer[T any] struct {
	f     *os.File
	w     *parquet.GenericWriter[T]
	final string
	buf   []T
	n     int
}

// NewWriter creates the temp file and the parquet writer for it.
func NewWriter[T any](path string) (*Writer[T], error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, err
	}
	return &Writer[T]{
		f:     f,
		w:     parquet.NewGenericWriter[T](f),
		final: path,
		buf:   make([]T, 0, scanBatch),
	}, nil
}

// Write buffers one row.
func (w *Writer[T]) Write(row T) error {
	w.buf = append(w.buf, row)
	w.n++
	if len(w.buf) == scanBatch {
		return w.flush()
	}
	return nil
}

func (w *Writer[T]) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	_, err := w.w.Write(w.buf)
	w.buf = w.buf[:0]
	return err
}

// Count returns the number of rows written so far.
func (w *Writer[T]) Count() int { return w.n }

// Close finishes the file and renames it over the target path.
func (w *Writer[T]) Close() error {
	if err := w.flush(); err != nil {
		w.Abort()
		return err
	}
	if err := w.w.Close(); err != nil {
		w.Abort()
		return err
	}
	if err := w.f.Close(); err != nil {
		os.Remove(w.f.Name())
		return err
	}
	return os.Rename(w.f.Name(), w.final)
}

// Abort discards the temp file.
func (w *Writer[T]) Abort() {
	w.f.Close()
	os.Remove(w.f.Name())
}
