// Package pgn renders a knowledge.Knowledge position graph as a branched
// PGN game record: tags, movetext with move numbers, evaluation comments,
// and parenthesized variations off the mainline.
package pgn

import (
	"fmt"
	"io"

	"github.com/kallevik/revline/pkg/knowledge"
	"github.com/kallevik/revline/pkg/position"
)

// moveNo is a PGN move-number token: a fullmove count plus whose move it
// labels ("12." for White, "12..." for Black).
type moveNo struct {
	n     int
	white bool
}

func moveNoFor(pos position.Position) moveNo {
	return moveNo{n: pos.FullMoveNumber(), white: pos.Turn() == position.White}
}

func (m moveNo) next() moveNo {
	if m.white {
		return moveNo{n: m.n, white: false}
	}
	return moveNo{n: m.n + 1, white: true}
}

func (m moveNo) String() string {
	if m.white {
		return fmt.Sprintf("%d.", m.n)
	}
	return fmt.Sprintf("%d...", m.n)
}

// mov is a single played move together with the PositionInfo reached
// after it, which supplies the evaluation comment.
type mov struct {
	san string
	no  moveNo
	pos knowledge.PositionInfo
}

func (m mov) writeTo(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%v %v", m.no, m.san); err != nil {
		return err
	}
	if m.pos.Eval != nil {
		if _, err := fmt.Fprintf(w, " { Eval: %v, }", m.pos.Eval); err != nil {
			return err
		}
	}
	return nil
}

// node is a line of moves up to the first branch point, plus the
// branching continuations from the end of that line.
type node struct {
	line     []mov
	branches []*node
	outcome  *position.Outcome
}

// branchMoveNo returns the move number a move inserted at halfmove hm in n
// should carry. Usually that's the ply after the move already at hm-1, but
// at hm == 0 there is no preceding move to advance from: the new move is a
// sibling occupying the very same ply as whatever already starts n (either
// n's own first move, or — once n's line has been fully split into
// branches at this ply — any one of those branches' first move).
func branchMoveNo(n *node, hm int) moveNo {
	if hm > 0 {
		return n.line[hm-1].no.next()
	}
	if len(n.line) > 0 {
		return n.line[0].no
	}
	return n.branches[0].line[0].no
}

// addMove inserts mov at halfmove hm in the tree rooted at n, creating a
// branch if this move diverges from what is already recorded there.
// Returns the node the move now lives in and the halfmove index just past
// the new move within that node, so the caller can continue folding the
// rest of a variation's moves in place.
func (n *node) addMove(hm int, san string, pos knowledge.PositionInfo) (*node, int) {
	switch {
	case hm == len(n.line) && len(n.branches) == 0:
		n.line = append(n.line, mov{san: san, no: branchMoveNo(n, hm), pos: pos})
		return n, hm + 1

	case hm == len(n.line):
		for _, b := range n.branches {
			if b.line[0].san == san {
				return b, 1
			}
		}
		b := &node{line: []mov{{san: san, no: branchMoveNo(n, hm), pos: pos}}}
		n.branches = append(n.branches, b)
		return b, 1

	case n.line[hm].san == san:
		return n, hm + 1

	default:
		tail := &node{line: n.line[hm:], branches: n.branches, outcome: n.outcome}
		nextNo := branchMoveNo(n, hm)
		n.line = n.line[:hm]
		n.branches = []*node{tail}
		n.outcome = nil

		fresh := &node{line: []mov{{san: san, no: nextNo, pos: pos}}}
		n.branches = append(n.branches, fresh)
		return fresh, 1
	}
}

// Tree holds the mainline-first move tree built from a Knowledge, ready
// to be written as PGN.
type Tree struct {
	root position.Position
	line *node
}

// Build walks every variation sharing the mainline's root and folds it
// into a single branched move tree, mainline first.
func Build(k *knowledge.Knowledge) *Tree {
	variations := orderVariations(k)
	t := &Tree{root: k.Root().Pos, line: &node{}}
	if len(variations) == 0 {
		return t
	}

	main := variations[0]
	t.root = k.Position(main.Positions[0]).Pos

	first := k.Position(main.Positions[0])
	firstAfter := k.Position(main.Positions[1])
	t.line.line = append(t.line.line, mov{
		san: first.Pos.SAN(main.Moves[0]),
		no:  moveNoFor(first.Pos),
		pos: firstAfter,
	})

	for vi, v := range variations {
		cur, hm := t.line, 0
		for i, m := range v.Moves {
			if vi == 0 && i == 0 {
				// The mainline's first move was already seeded above.
				hm = 1
				continue
			}
			before := k.Position(v.Positions[i])
			after := k.Position(v.Positions[i+1])
			san := before.Pos.SAN(m)
			cur, hm = cur.addMove(hm, san, after)
		}
		cur.outcome = v.Outcome
	}

	return t
}

// orderVariations puts the mainline first, followed by every other
// variation sharing its root position; variations rooted elsewhere (a
// multi-game PGN) are dropped, as this emitter never writes more than one
// game.
func orderVariations(k *knowledge.Knowledge) []knowledge.Variation {
	mainIdx := k.Main()
	main := k.Variation(mainIdx)
	if len(main.Moves) == 0 {
		found := false
		for i := 0; i < k.NumVariations(); i++ {
			if v := k.Variation(i); len(v.Moves) > 0 {
				main, mainIdx = v, i
				found = true
				break
			}
		}
		if !found {
			return nil
		}
	}

	root := main.Positions[0]
	var out []knowledge.Variation
	mainPos := -1
	for i := 0; i < k.NumVariations(); i++ {
		v := k.Variation(i)
		if len(v.Positions) == 0 || v.Positions[0] != root {
			continue
		}
		if i == mainIdx {
			mainPos = len(out)
		}
		out = append(out, v)
	}
	if mainPos > 0 {
		out[0], out[mainPos] = out[mainPos], out[0]
	}
	return out
}

func resultToken(outcome *position.Outcome) string {
	switch {
	case outcome == nil:
		return "*"
	case outcome.Draw:
		return "1/2-1/2"
	case outcome.Decisive && outcome.Winner == position.White:
		return "1-0"
	default:
		return "0-1"
	}
}

// WritePGN renders the tree as a complete PGN game to w.
func (t *Tree) WritePGN(w io.Writer) error {
	if err := t.writeTags(w); err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, "\n"); err != nil {
		return err
	}
	if err := t.writeMoves(w); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, " %s", resultToken(t.line.outcome))
	return err
}

func (t *Tree) writeTags(w io.Writer) error {
	tags := []struct{ k, v string }{
		{"Event", "?"},
		{"Site", "?"},
		{"Round", "?"},
		{"White", "?"},
		{"Black", "?"},
		{"Result", resultToken(t.line.outcome)},
		{"PlyCount", fmt.Sprintf("%d", countPlies(t.line))},
	}
	for _, tag := range tags {
		if _, err := fmt.Fprintf(w, "[%s %q]\n", tag.k, tag.v); err != nil {
			return err
		}
	}
	if t.root.FEN() != position.Initial().FEN() {
		if _, err := fmt.Fprint(w, "[SetUp \"1\"]\n"); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "[FEN %q]\n", t.root.FEN()); err != nil {
			return err
		}
	}
	return nil
}

// countPlies counts the mainline's halfmoves: the root line plus, at every
// branch point, the index-0 continuation.
func countPlies(n *node) int {
	plies := 0
	for {
		plies += len(n.line)
		if len(n.branches) == 0 {
			return plies
		}
		n = n.branches[0]
	}
}

func writeLine(w io.Writer, n *node) error {
	for i, m := range n.line {
		if i > 0 {
			if _, err := fmt.Fprint(w, " "); err != nil {
				return err
			}
		}
		if err := m.writeTo(w); err != nil {
			return err
		}
	}
	return nil
}

// writeMoves performs the same stack-based depth-first walk as the
// original tree serializer: the mainline prints flat, and every branch
// off it opens a parenthesized variation that closes once that branch
// (and any of its own sub-branches) is fully printed.
func (t *Tree) writeMoves(w io.Writer) error {
	if err := writeLine(w, t.line); err != nil {
		return err
	}
	if len(t.line.branches) == 0 {
		return nil
	}

	// opened tracks whether a frame's entry was itself preceded by a "("
	// (true for every branch but a node's own index-0 continuation, which
	// prints flat). Only opened frames get a matching ")" on exhaustion —
	// the root frame, and any continuation frame that itself branches
	// further, must not close a paren nothing ever opened.
	type frame struct {
		n      *node
		idx    int
		opened bool
	}
	stack := []frame{{n: t.line, idx: 0}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.idx >= len(top.n.branches) {
			stack = stack[:len(stack)-1]
			if top.opened {
				if _, err := fmt.Fprint(w, ")"); err != nil {
					return err
				}
			}
			continue
		}

		if _, err := fmt.Fprint(w, " "); err != nil {
			return err
		}

		opensParen := top.idx > 0
		if opensParen {
			if _, err := fmt.Fprint(w, "("); err != nil {
				return err
			}
		}

		branch := top.n.branches[top.idx]
		if err := writeLine(w, branch); err != nil {
			return err
		}

		top.idx++
		switch {
		case len(branch.branches) == 0 && opensParen:
			if _, err := fmt.Fprint(w, ")"); err != nil {
				return err
			}
		case len(branch.branches) > 0:
			stack = append(stack, frame{n: branch, idx: 0, opened: opensParen})
		}
	}
	return nil
}
