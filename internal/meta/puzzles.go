package meta

import (
	"context"
	"database/sql"
	"time"
)

// Puzzle attempt states.
const (
	PuzzlePending = "pending"
	PuzzleSuccess = "success"
	PuzzleFail    = "fail"
)

// PuzzleSummary aggregates attempt counts per status.
type PuzzleSummary struct {
	Pending int
	Success int
	Fail    int
}

// SetPuzzleStatus records the outcome of a puzzle attempt.
func (s *Store) SetPuzzleStatus(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO puzzle_stats (id, status, updated_at) VALUES (?, ?, ?)",
		id, status, time.Now())
	return err
}

// GetPuzzleStatus returns the recorded status for a puzzle, or PuzzlePending
// when it was never attempted.
func (s *Store) GetPuzzleStatus(ctx context.Context, id int64) (string, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		"SELECT status FROM puzzle_stats WHERE id = ?", id).Scan(&status)
	if err == sql.ErrNoRows {
		return PuzzlePending, nil
	}
	if err != nil {
		return "", err
	}
	return status, nil
}

// PuzzleStats aggregates counts across every recorded attempt.
func (s *Store) PuzzleStats(ctx context.Context) (PuzzleSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM puzzle_stats GROUP BY status")
	if err != nil {
		return PuzzleSummary{}, err
	}
	defer rows.Close()

	var sum PuzzleSummary
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return PuzzleSummary{}, err
		}
		switch status {
		case PuzzleSuccess:
			sum.Success = n
		case PuzzleFail:
			sum.Fail = n
		default:
			sum.Pending = n
		}
	}
	return sum, rows.Err()
}
