package analysis

// Judgment thresholds in centipawns of loss for one move.
const (
	inaccuracyLoss = 50
	mistakeLoss    = 100
	blunderLoss    = 300
)

// SideAccuracy summarizes one player's moves over a game.
type SideAccuracy struct {
	Moves        int
	ACPL         int // average centipawn loss
	Inaccuracies int
	Mistakes     int
	Blunders     int
}

// Report is a whole-game accuracy breakdown built from per-position
// evaluations.
type Report struct {
	White SideAccuracy
	Black SideAccuracy
}

func (s *SideAccuracy) record(loss int) {
	s.Moves++
	s.ACPL += loss // running total until finalize
	switch {
	case loss >= blunderLoss:
		s.Blunders++
	case loss >= mistakeLoss:
		s.Mistakes++
	case loss >= inaccuracyLoss:
		s.Inaccuracies++
	}
}

func (s *SideAccuracy) finalize() {
	if s.Moves > 0 {
		s.ACPL /= s.Moves
	}
}

// BuildReport derives per-side accuracy from evaluations as EvaluateGame
// produces them: evals[0] is the position before any move, evals[i] the
// position after ply i, all from white's perspective and already clamped.
// A move's loss is how far the evaluation moved against the mover, floored
// at zero so forced losing sequences are not double-counted.
func BuildReport(evals []int) Report {
	var r Report
	for ply := 1; ply < len(evals); ply++ {
		prev, cur := evals[ply-1], evals[ply]
		if ply%2 == 1 { // white moved
			loss := prev - cur
			if loss < 0 {
				loss = 0
			}
			r.White.record(loss)
		} else {
			loss := cur - prev
			if loss < 0 {
				loss = 0
			}
			r.Black.record(loss)
		}
	}
	r.White.finalize()
	r.Black.finalize()
	return r
}
