// Package knowledge holds the de-duplicated position graph gathered while
// reviewing a game: which positions have been seen, what moves were
// explored from each, the branching variations that connect them back to
// a shared root, and which variation is presently the mainline.
//
// Knowledge is not safe for concurrent use. Exactly one goroutine — the
// review dispatcher's central loop — may call its mutating methods; this
// mirrors the single-writer discipline the teacher's own search state
// (pkg/search/transposition.go) relies on external synchronization for.
package knowledge

import (
	"errors"
	"fmt"

	"github.com/kallevik/revline/pkg/position"
)

// ErrPastConclusion is returned by AddMove when asked to extend a
// variation that has already reached a recorded Outcome.
var ErrPastConclusion = errors.New("variation already concluded")

// ErrOutOfRange is returned by AddMove when hm lies beyond the
// variation's recorded length.
var ErrOutOfRange = errors.New("halfmove index out of range")

// MoveInfo is reserved per-edge metadata. It exists as its own type,
// separate from PositionInfo, because the same destination position
// reached via two different paths is one PositionInfo but each path's
// edge into it is distinct.
type MoveInfo struct{}

// PositionInfo is everything known about one unique position.
type PositionInfo struct {
	Pos   position.Position
	Moves map[position.Move]MoveInfo
	Eval  *Score
}

func newPositionInfo(pos position.Position) PositionInfo {
	return PositionInfo{Pos: pos, Moves: map[position.Move]MoveInfo{}}
}

// Variation is an ordered path of moves from the shared root, plus the
// aligned sequence of position indices reached along the way (length =
// len(Moves)+1, index 0 = root). Outcome is set once the variation is
// known to terminate, either because the final position is a natural game
// end or because it has repeated three times.
type Variation struct {
	Moves     []position.Move
	Positions []int
	Outcome   *position.Outcome
}

func newVariation(root int, outcome *position.Outcome) Variation {
	return Variation{Positions: []int{root}, Outcome: outcome}
}

// repetition reports whether the variation's final position has occurred
// at least three times within it. Only the final position can newly
// trigger this, since a variation stops being extended once it does.
func (v Variation) repetition() bool {
	last := v.Positions[len(v.Positions)-1]
	count := 0
	for _, idx := range v.Positions {
		if idx == last {
			count++
		}
	}
	return count >= 3
}

// Knowledge is the de-duplicated position/variation graph for one review run.
type Knowledge struct {
	positions  []PositionInfo
	index      map[string]int // position.Key() -> index into positions
	variations []Variation
	main       int
}

// New creates a Knowledge rooted at root.
func New(root position.Position) *Knowledge {
	var outcome *position.Outcome
	if o, ok := root.Outcome(); ok {
		outcome = &o
	}
	return &Knowledge{
		positions:  []PositionInfo{newPositionInfo(root)},
		index:      map[string]int{root.Key(): 0},
		variations: []Variation{newVariation(0, outcome)},
		main:       0,
	}
}

// IndexOf returns the index of pos in the position arena, if known.
func (k *Knowledge) IndexOf(pos position.Position) (int, bool) {
	idx, ok := k.index[pos.Key()]
	return idx, ok
}

// Position returns the PositionInfo at idx.
func (k *Knowledge) Position(idx int) PositionInfo {
	return k.positions[idx]
}

// UpdateEval records eval for the position at idx. It is invariant once
// set: a later call for a position that already has an evaluation leaves
// the first one in place. Processor.ShouldProcess checking Eval == nil
// keeps most repeats from being analysed at all, but two processors can
// both be told to analyse a position before either result is applied.
func (k *Knowledge) UpdateEval(idx int, eval Score) {
	if k.positions[idx].Eval != nil {
		return
	}
	k.positions[idx].Eval = &eval
}

// VariationHM returns the variation at idx and the PositionInfo reached
// after hm halfmoves within it.
func (k *Knowledge) VariationHM(idx, hm int) (Variation, PositionInfo) {
	v := k.variations[idx]
	return v, k.positions[v.Positions[hm]]
}

// Variation returns the variation at idx.
func (k *Knowledge) Variation(idx int) Variation {
	return k.variations[idx]
}

// NumVariations returns the number of variations recorded so far.
func (k *Knowledge) NumVariations() int {
	return len(k.variations)
}

// NumPositions returns the number of unique positions recorded so far.
func (k *Knowledge) NumPositions() int {
	return len(k.positions)
}

// Main returns the index of the current mainline variation.
func (k *Knowledge) Main() int {
	return k.main
}

// Root returns the PositionInfo for the shared root of the mainline.
func (k *Knowledge) Root() PositionInfo {
	main := k.variations[k.main]
	return k.positions[main.Positions[0]]
}

// AddMove adds mov to the variation vidx after hm halfmoves already
// played in it. If hm is the end of that variation, the variation is
// extended in place. If the variation already continues past hm with a
// different move, a new branch variation is created sharing the prefix.
// If mov matches the move already played at hm, AddMove is a no-op that
// returns the existing branch/position unchanged.
//
// Returns the index of the variation the move now lives in (which may
// differ from vidx if a branch was created), that variation, and the
// PositionInfo reached after the move.
func (k *Knowledge) AddMove(vidx, hm int, mov position.Move) (int, Variation, PositionInfo, error) {
	v := k.variations[vidx]
	if len(v.Moves) < hm {
		return 0, Variation{}, PositionInfo{}, fmt.Errorf("add move: hm=%d beyond variation %d length %d: %w", hm, vidx, len(v.Moves), ErrOutOfRange)
	}

	if hm < len(v.Moves) && v.Moves[hm] == mov {
		// Already played in this variation at this point: no-op.
		posIdx := v.Positions[hm+1]
		return vidx, v, k.positions[posIdx], nil
	}

	if hm == len(v.Moves) && v.Outcome != nil {
		return 0, Variation{}, PositionInfo{}, fmt.Errorf("add move: variation %d: %w", vidx, ErrPastConclusion)
	}

	beforeIdx := v.Positions[hm]
	before := k.positions[beforeIdx].Pos

	after, err := before.Play(mov)
	if err != nil {
		return 0, Variation{}, PositionInfo{}, fmt.Errorf("add move: %w", err)
	}

	afterIdx, seen := k.index[after.Key()]
	if !seen {
		afterIdx = len(k.positions)
		k.positions = append(k.positions, newPositionInfo(after))
		k.index[after.Key()] = afterIdx
	}

	targetVIdx := vidx
	if hm < len(v.Moves) {
		// Diverging mid-line: branch off a new variation sharing the prefix.
		moves := append([]position.Move(nil), v.Moves[:hm]...)
		positions := append([]int(nil), v.Positions[:hm+1]...)
		k.variations = append(k.variations, Variation{Moves: moves, Positions: positions})
		targetVIdx = len(k.variations) - 1
	}

	target := k.variations[targetVIdx]
	target.Moves = append(append([]position.Move(nil), target.Moves...), mov)
	target.Positions = append(append([]int(nil), target.Positions...), afterIdx)

	outcome, hasOutcome := after.Outcome()
	switch {
	case hasOutcome:
		target.Outcome = &outcome
	case target.repetition():
		draw := position.Outcome{Draw: true}
		target.Outcome = &draw
	default:
		target.Outcome = nil
	}
	k.variations[targetVIdx] = target

	return targetVIdx, target, k.positions[afterIdx], nil
}

// UpdateMainline moves the mainline pointer from variation from to
// variation to, but only if from is still the mainline (it may have
// already moved on via a different apply in the interim).
func (k *Knowledge) UpdateMainline(from, to int) {
	if from == k.main && to < len(k.variations) {
		k.main = to
	}
}
