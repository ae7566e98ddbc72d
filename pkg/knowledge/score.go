package knowledge

import (
	"fmt"
	"strings"
)

// Score is an engine evaluation: either a centipawn count or a moves-to-mate
// count, the same tagged shape UCI engines report in "info score" tokens.
// Positive values favor the side the score is reported for; Mate is
// negative when that side is the one being mated.
type Score struct {
	mate    bool
	cp      int16
	mateIn  int8
}

// Cp constructs a centipawn score.
func Cp(v int16) Score {
	return Score{cp: v}
}

// Mate constructs a moves-to-mate score. n is negative if the analyzed
// side is the one being mated.
func Mate(n int8) Score {
	return Score{mate: true, mateIn: n}
}

// IsMate reports whether the score is a forced-mate score.
func (s Score) IsMate() bool {
	return s.mate
}

// CpValue returns the centipawn value and true, or (0, false) if this is a mate score.
func (s Score) CpValue() (int16, bool) {
	if s.mate {
		return 0, false
	}
	return s.cp, true
}

// MateIn returns the mate-distance value and true, or (0, false) if this is a centipawn score.
func (s Score) MateIn() (int8, bool) {
	if !s.mate {
		return 0, false
	}
	return s.mateIn, true
}

// Negate flips the score to the opposite side's perspective, used to
// normalize UCI's side-to-move-relative scores to White's perspective.
func (s Score) Negate() Score {
	if s.mate {
		return Mate(-s.mateIn)
	}
	return Cp(-s.cp)
}

// ordinal maps a Score onto a single int64 line respecting the total
// order: positive mate > Cp > negative mate; within positive mates fewer
// moves is better; within Cp, numerically greater is better; within
// negative mates, the mate further away (larger magnitude) is better.
func (s Score) ordinal() int64 {
	const tier = 1_000_000
	if s.mate {
		if s.mateIn > 0 {
			return tier - int64(s.mateIn)
		}
		return -tier - int64(s.mateIn)
	}
	return int64(s.cp)
}

// Compare returns -1, 0 or 1 as s is worse than, equal to, or better than o.
func (s Score) Compare(o Score) int {
	a, b := s.ordinal(), o.ordinal()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (s Score) String() string {
	if s.mate {
		return fmt.Sprintf("#%d", s.mateIn)
	}
	str := fmt.Sprintf("%.2f", float64(s.cp)/100)
	if strings.HasSuffix(str, "0") {
		str = str[:len(str)-1]
	}
	return str
}
