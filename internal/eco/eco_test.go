package eco_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fachess/fachess/internal/eco"
)

const fixture = `# test classification data
A00 "Polish: Sokolsky Opening" 1.b4 *
B00 "King's Pawn" 1.e4 *
B20 "Sicilian" 1.e4 c5 *
B27 "Sicilian: 2.Nf3" 1.e4 c5 2.Nf3 *
C50 "Italian Game" 1.e4 e5 2.Nf3 {the knight
spans lines} Nc6 (2...Nf6 3.Nxe5) 3.Bc4! *
D06 "QGD: symmetrical defence" 1.d4 d5 2.c4 c5 $5 *
`

func loadFixture(t *testing.T) *eco.Database {
	t.Helper()
	path := filepath.Join(t.TempDir(), "openings.eco")
	if err := os.WriteFile(path, []byte(fixture), 0o644); err != nil {
		t.Fatal(err)
	}
	db := eco.NewDatabase()
	if err := db.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	return db
}

func TestLoadCount(t *testing.T) {
	db := loadFixture(t)
	if db.Count() != 6 {
		t.Errorf("expected 6 entries, got %d", db.Count())
	}
}

func TestClassify(t *testing.T) {
	db := loadFixture(t)

	tests := []struct {
		name string
		line []string
		code string
		ply  int
	}{
		{"polish", []string{"b2b4"}, "A00", 1},
		{"kings pawn", []string{"e2e4"}, "B00", 1},
		{"sicilian", []string{"e2e4", "c7c5"}, "B20", 2},
		{"sicilian nf3", []string{"e2e4", "c7c5", "g1f3"}, "B27", 3},
		{"italian with comments and variation stripped", []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1c4"}, "C50", 5},
		{"glyph entry", []string{"d2d4", "d7d5", "c2c4", "c7c5"}, "D06", 4},
		{"past known theory keeps deepest prefix", []string{"e2e4", "c7c5", "g1f3", "d7d6"}, "B27", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, ply := db.Classify(tt.line)
			if o.Code != tt.code {
				t.Errorf("Classify(%v) code = %q, want %q", tt.line, o.Code, tt.code)
			}
			if ply != tt.ply {
				t.Errorf("Classify(%v) ply = %d, want %d", tt.line, ply, tt.ply)
			}
		})
	}
}

func TestClassifyTransposition(t *testing.T) {
	db := loadFixture(t)
	// The Italian position reached with the bishop developed before the
	// knight classifies identically.
	o, ply := db.Classify([]string{"e2e4", "e7e5", "f1c4", "b8c6", "g1f3"})
	if o.Code != "C50" {
		t.Errorf("transposition code = %q, want C50", o.Code)
	}
	if ply != 5 {
		t.Errorf("transposition ply = %d, want 5", ply)
	}
}

func TestClassifyStartAndUnknown(t *testing.T) {
	db := loadFixture(t)

	o, ply := db.Classify(nil)
	if o.Name != eco.StartName || ply != 0 {
		t.Errorf("empty line = %q at %d", o.Name, ply)
	}

	o, ply = db.Classify([]string{"h2h4"})
	if o.Name != eco.UnknownName || ply != 0 {
		t.Errorf("unknown line = %q at %d", o.Name, ply)
	}
}

func TestClassifyMonotone(t *testing.T) {
	db := loadFixture(t)
	// Extending a line never loses an already-recognized classification.
	line := []string{"e2e4", "c7c5", "g1f3", "d7d6", "d2d4"}
	prevPly := 0
	for i := 1; i <= len(line); i++ {
		_, ply := db.Classify(line[:i])
		if ply < prevPly {
			t.Fatalf("classification depth went backwards at %v: %d < %d", line[:i], ply, prevPly)
		}
		prevPly = ply
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.eco")
	if err := os.WriteFile(path, []byte("not a classification file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	db := eco.NewDatabase()
	if err := db.LoadFile(path); err == nil {
		t.Error("expected an error for a file with no entries")
	}
}
