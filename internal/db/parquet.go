package db

import (
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
)

const scanBatch = 512

// iterator streams games from a scan source. Implementations are not safe
// for concurrent use; every materialization opens its own.
type iterator interface {
	next() (Game, bool, error)
	close() error
}

type parquetIter struct {
	f   *os.File
	r   *parquet.GenericReader[Game]
	buf []Game
	pos int
	n   int
	eof bool
}

func openParquet(path string) (*parquetIter, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &parquetIter{
		f:   f,
		r:   parquet.NewGenericReader[Game](f),
		buf: make([]Game, scanBatch),
	}, nil
}

func (it *parquetIter) next() (Game, bool, error) {
	for it.pos >= it.n {
		if it.eof {
			return Game{}, false, nil
		}
		n, err := it.r.Read(it.buf)
		it.n, it.pos = n, 0
		if err == io.EOF {
			it.eof = true
		} else if err != nil {
			return Game{}, false, err
		}
		if n == 0 && it.eof {
			return Game{}, false, nil
		}
	}
	g := it.buf[it.pos]
	it.pos++
	return g, true, nil
}

func (it *parquetIter) close() error {
	if err := it.r.Close(); err != nil {
		it.f.Close()
		return err
	}
	return it.f.Close()
}

type memoryIter struct {
	rows []Game
	pos  int
}

func (it *memoryIter) next() (Game, bool, error) {
	if it.pos >= len(it.rows) {
		return Game{}, false, nil
	}
	g := it.rows[it.pos]
	it.pos++
	return g, true, nil
}

func (it *memoryIter) close() error { return nil }

// validateSchema checks that the file at path carries every canonical Game
// column with a physical type the reader can coerce. Integer widths cast
// trivially; anything else must match, so a bad file fails at load rather
// than mid-scan.
func validateSchema(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}

	have := make(map[string]parquet.Field)
	for _, field := range pf.Schema().Fields() {
		have[field.Name()] = field
	}
	for _, want := range parquet.SchemaOf(Game{}).Fields() {
		got, ok := have[want.Name()]
		if !ok {
			return fmt.Errorf("%w: missing column %q", ErrSchema, want.Name())
		}
		if !compatibleNode(got, want) {
			return fmt.Errorf("%w: column %q has an incompatible type", ErrSchema, want.Name())
		}
	}
	return nil
}

func compatibleNode(got, want parquet.Node) bool {
	if got.Leaf() != want.Leaf() {
		return false
	}
	if want.Leaf() {
		return coercibleKind(got.Type().Kind(), want.Type().Kind())
	}
	byName := make(map[string]parquet.Field, len(got.Fields()))
	for _, f := range got.Fields() {
		byName[f.Name()] = f
	}
	for _, wf := range want.Fields() {
		gf, ok := byName[wf.Name()]
		if !ok || !compatibleNode(gf, wf) {
			return false
		}
	}
	return true
}

func coercibleKind(got, want parquet.Kind) bool {
	if got == want {
		return true
	}
	isInt := func(k parquet.Kind) bool { return k == parquet.Int32 || k == parquet.Int64 }
	return isInt(got) && isInt(want)
}

// writeParquet streams rows into path. The caller is responsible for
// temp-then-rename when overwriting a live dataset.
func writeParquet(path string, rows iterator) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	w := parquet.NewGenericWriter[Game](f)

	count := 0
	buf := make([]Game, 0, scanBatch)
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
		buf = buf[:0]
		return nil
	}

	for {
		g, ok, err := rows.next()
		if err != nil {
			f.Close()
			return count, err
		}
		if !ok {
			break
		}
		buf = append(buf, g)
		count++
		if len(buf) == scanBatch {
			if err := flush(); err != nil {
				f.Close()
				return count, err
			}
		}
	}
	if err := flush(); err != nil {
		f.Close()
		return count, err
	}
	if err := w.Close(); err != nil {
		f.Close()
		return count, err
	}
	return count, f.Close()
}
