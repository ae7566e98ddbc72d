// Package position adapts github.com/notnil/chess into the narrow,
// hashable Position contract the rest of this module depends on: play a
// move, ask whose turn it is, ask whether the game is over, and compare
// two positions for transposition purposes.
package position

import (
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

// Color is the side to move.
type Color int

const (
	White Color = iota
	Black
)

func (c Color) String() string {
	if c == White {
		return "white"
	}
	return "black"
}

func colorOf(c chess.Color) Color {
	if c == chess.Black {
		return Black
	}
	return White
}

// Move is a chess move in UCI coordinate notation, e.g. "e2e4" or "e7e8q".
// A plain string is deliberately used instead of a struct so Move is
// trivially hashable and comparable, which knowledge.Variation and
// PositionInfo.Moves both rely on.
type Move string

// Outcome is the terminal state of a position, if any.
type Outcome struct {
	Draw     bool
	Decisive bool
	Winner   Color // valid iff Decisive
}

// Position wraps an immutable snapshot of a notnil/chess game. Play never
// mutates the receiver; it returns a new Position sharing no state with it.
type Position struct {
	game *chess.Game
}

// Initial returns the standard starting position.
func Initial() Position {
	return Position{game: chess.NewGame(chess.UseNotation(chess.UCINotation{}))}
}

// FromFEN parses a FEN string into a Position.
func FromFEN(fen string) (Position, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return Position{}, fmt.Errorf("parse fen %q: %w", fen, err)
	}
	return Position{game: chess.NewGame(opt, chess.UseNotation(chess.UCINotation{}))}, nil
}

// FEN renders the position in Forsyth-Edwards notation.
func (p Position) FEN() string {
	return p.game.Position().String()
}

// Key returns a reduced FEN used for transposition hashing and equality:
// board placement, side to move, castling rights and en passant target
// only. The halfmove clock and fullmove number are intentionally excluded
// so that two move orders reaching the identical chess position dedupe to
// the same Knowledge entry even though their clocks differ.
func (p Position) Key() string {
	fields := strings.Fields(p.FEN())
	if len(fields) < 4 {
		return p.FEN()
	}
	return strings.Join(fields[:4], " ")
}

// Turn returns the side to move.
func (p Position) Turn() Color {
	return colorOf(p.game.Position().Turn())
}

// FullMoveNumber returns the move counter as carried in the FEN.
func (p Position) FullMoveNumber() int {
	fields := strings.Fields(p.FEN())
	if len(fields) < 6 {
		return 1
	}
	var n int
	if _, err := fmt.Sscanf(fields[5], "%d", &n); err != nil || n == 0 {
		return 1
	}
	return n
}

// Outcome reports whether the position is terminal under the chess rules
// (checkmate, stalemate, or another draw condition the library detects).
// It does not know about three-fold repetition as tracked by Knowledge.
func (p Position) Outcome() (Outcome, bool) {
	switch p.game.Outcome() {
	case chess.WhiteWon:
		return Outcome{Decisive: true, Winner: White}, true
	case chess.BlackWon:
		return Outcome{Decisive: true, Winner: Black}, true
	case chess.Draw:
		return Outcome{Draw: true}, true
	default:
		return Outcome{}, false
	}
}

// ValidMoves returns all legal moves from this position in UCI notation.
func (p Position) ValidMoves() []Move {
	vm := p.game.ValidMoves()
	ret := make([]Move, 0, len(vm))
	for _, m := range vm {
		ret = append(ret, Move(chess.UCINotation{}.Encode(p.game.Position(), m)))
	}
	return ret
}

// Play applies move and returns the resulting position. The receiver is
// never mutated.
func (p Position) Play(move Move) (Position, error) {
	fen := p.FEN()
	opt, err := chess.FEN(fen)
	if err != nil {
		return Position{}, fmt.Errorf("replay fen %q: %w", fen, err)
	}
	next := chess.NewGame(opt, chess.UseNotation(chess.UCINotation{}))
	if err := next.MoveStr(string(move)); err != nil {
		return Position{}, fmt.Errorf("play move %v from %v: %w", move, fen, err)
	}
	return Position{game: next}, nil
}

// SAN renders move in standard algebraic notation as legal from this
// position, for PGN emission. It returns the raw UCI string if move is
// not presently legal (defensive; callers only pass moves already known
// legal from ValidMoves or a prior Play).
func (p Position) SAN(move Move) string {
	pos := p.game.Position()
	for _, m := range pos.ValidMoves() {
		if Move(chess.UCINotation{}.Encode(pos, m)) == move {
			return chess.AlgebraicNotation{}.Encode(pos, m)
		}
	}
	return string(move)
}
