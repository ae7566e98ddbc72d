package uci

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kallevik/revline/pkg/knowledge"
	"github.com/kallevik/revline/pkg/position"
)

// ProtocolName is the line an engine's stdin sees to switch it into UCI mode.
const ProtocolName = "uci"

// ErrProtocolClosed is returned when an engine's output stream ends
// before the expected reply arrives, generally because the process died.
var ErrProtocolClosed = errors.New("engine protocol stream closed")

// Command is a single line sent to an engine's stdin.
type Command string

// CmdUCI requests the engine identify itself and switch to UCI mode.
func CmdUCI() Command { return "uci" }

// CmdDebug toggles the engine's own debug-mode output.
func CmdDebug(on bool) Command {
	if on {
		return "debug on"
	}
	return "debug off"
}

// CmdSetOption sets one named engine parameter.
func CmdSetOption(name, value string) Command {
	return Command(fmt.Sprintf("setoption name %s value %s", name, value))
}

// CmdIsReady asks the engine to synchronize and reply readyok.
func CmdIsReady() Command { return "isready" }

// CmdUCINewGame tells the engine the next search is from a new game.
func CmdUCINewGame() Command { return "ucinewgame" }

// CmdPosition sets up the position to search from. An empty fen means the
// standard starting position.
func CmdPosition(fen string, moves []position.Move) Command {
	var sb strings.Builder
	sb.WriteString("position ")
	if fen == "" {
		sb.WriteString("startpos")
	} else {
		sb.WriteString("fen ")
		sb.WriteString(fen)
	}
	if len(moves) > 0 {
		sb.WriteString(" moves")
		for _, m := range moves {
			sb.WriteString(" ")
			sb.WriteString(string(m))
		}
	}
	return Command(sb.String())
}

// GoOptions bounds a single "go" search. A zero Depth or Movetime means no
// limit of that kind is applied.
type GoOptions struct {
	Depth    uint
	Movetime time.Duration
}

// CmdGo starts a search under the given bounds.
func CmdGo(opt GoOptions) Command {
	var sb strings.Builder
	sb.WriteString("go")
	if opt.Depth > 0 {
		fmt.Fprintf(&sb, " depth %d", opt.Depth)
	}
	if opt.Movetime > 0 {
		fmt.Fprintf(&sb, " movetime %d", opt.Movetime.Milliseconds())
	}
	if opt.Depth == 0 && opt.Movetime == 0 {
		sb.WriteString(" infinite")
	}
	return Command(sb.String())
}

// CmdStop halts the active search, which must still resolve with bestmove.
func CmdStop() Command { return "stop" }

// CmdQuit tells the engine to exit.
func CmdQuit() Command { return "quit" }

// Info is one parsed "info" line from the engine.
type Info struct {
	MultiPV int
	Depth   int
	Score   knowledge.Score
	PV      []position.Move
}

// Msg is one parsed line received from an engine.
type Msg interface{ isMsg() }

// IDMsg is the engine's "id name/author" identification.
type IDMsg struct {
	Name, Author string
}

// UCIOkMsg marks the end of the handshake's identification phase.
type UCIOkMsg struct{}

// ReadyOkMsg answers isready.
type ReadyOkMsg struct{}

// BestMoveMsg is the terminal reply to a search.
type BestMoveMsg struct {
	Move   position.Move
	Ponder position.Move
}

// InfoMsg carries one parsed analysis step.
type InfoMsg struct {
	Info Info
}

func (IDMsg) isMsg()       {}
func (UCIOkMsg) isMsg()    {}
func (ReadyOkMsg) isMsg()  {}
func (BestMoveMsg) isMsg() {}
func (InfoMsg) isMsg()     {}

// ParseLine parses one line of engine output into a Msg. ok is false for
// lines that carry no protocol meaning for this module (option
// declarations, registration prompts, bare "info string" lines, and
// malformed info lines missing a score or an empty pv) — callers should
// silently skip them, per the protocol's tolerance for engine noise.
func ParseLine(line string) (Msg, bool) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return nil, false
	}

	switch fields[0] {
	case "id":
		return parseID(fields[1:])
	case "uciok":
		return UCIOkMsg{}, true
	case "readyok":
		return ReadyOkMsg{}, true
	case "bestmove":
		return parseBestMove(fields[1:])
	case "info":
		return parseInfo(fields[1:])
	default:
		return nil, false
	}
}

func parseID(fields []string) (Msg, bool) {
	if len(fields) < 2 {
		return nil, false
	}
	rest := strings.Join(fields[1:], " ")
	switch fields[0] {
	case "name":
		return IDMsg{Name: rest}, true
	case "author":
		return IDMsg{Author: rest}, true
	default:
		return nil, false
	}
}

func parseBestMove(fields []string) (Msg, bool) {
	if len(fields) == 0 {
		return nil, false
	}
	msg := BestMoveMsg{Move: position.Move(fields[0])}
	if len(fields) >= 3 && fields[1] == "ponder" {
		msg.Ponder = position.Move(fields[2])
	}
	return msg, true
}

func parseInfo(fields []string) (Msg, bool) {
	var info Info
	haveScore := false

	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "multipv":
			if i+1 < len(fields) {
				if v, err := strconv.Atoi(fields[i+1]); err == nil {
					info.MultiPV = v
					i++
				}
			}
		case "depth":
			if i+1 < len(fields) {
				if v, err := strconv.Atoi(fields[i+1]); err == nil {
					info.Depth = v
					i++
				}
			}
		case "score":
			if i+2 < len(fields) {
				kind, val := fields[i+1], fields[i+2]
				if n, err := strconv.Atoi(val); err == nil {
					switch kind {
					case "cp":
						info.Score = knowledge.Cp(int16(n))
						haveScore = true
					case "mate":
						info.Score = knowledge.Mate(int8(n))
						haveScore = true
					}
				}
				i += 2
			}
		case "pv":
			for j := i + 1; j < len(fields); j++ {
				if isInfoKeyword(fields[j]) {
					break
				}
				info.PV = append(info.PV, position.Move(fields[j]))
			}
			i = len(fields)
		case "string":
			// Everything after "string" is a free-form comment, not tokens.
			i = len(fields)
		}
	}

	if !haveScore || len(info.PV) == 0 {
		return nil, false
	}
	return InfoMsg{Info: info}, true
}

func isInfoKeyword(s string) bool {
	switch s {
	case "depth", "seldepth", "time", "nodes", "nps", "multipv", "score", "cp", "mate", "currmove", "currmovenumber", "hashfull", "tbhits", "string":
		return true
	default:
		return false
	}
}
