package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"stockfish/internal/fen"
)

// Lookback selects which earlier line supplies the score once bestmove arrives.
type Lookback int

const (
	// LookbackPrevious uses only the line immediately before bestmove. If that
	// line has no score the result is ErrNoScore, even when an earlier info
	// line had one.
	LookbackPrevious Lookback = iota

	// LookbackLastScored uses the most recent line that mentions a score.
	LookbackLastScored
)

func (l Lookback) String() string {
	switch l {
	case LookbackPrevious:
		return "previous"
	case LookbackLastScored:
		return "last-scored"
	default:
		return "unknown"
	}
}

// ParseLookback accepts the names produced by String.
func ParseLookback(s string) (Lookback, error) {
	switch s {
	case "previous", "":
		return LookbackPrevious, nil
	case "last-scored":
		return LookbackLastScored, nil
	default:
		return 0, fmt.Errorf("unknown lookback mode %q", s)
	}
}

const (
	terminalToken = "bestmove"
	ponderToken   = "ponder"
	scoreToken    = "score"
	depthToken    = "depth"
)

// scoreWindow is the single-slot buffer the calculation scan keeps while
// waiting for the terminal line.
type scoreWindow struct {
	mode     Lookback
	buffered string
	has      bool
}

// observe feeds one line and reports whether it was the terminal line.
func (w *scoreWindow) observe(line string) bool {
	if firstField(line) == terminalToken {
		return true
	}
	if w.mode == LookbackLastScored && !containsField(line, scoreToken) {
		return false
	}
	w.buffered = line
	w.has = true
	return false
}

// extract builds the result from the terminal line and the buffered line.
// Black-to-move scores are negated so the evaluation is from White's side.
func (w *scoreWindow) extract(terminal string, side fen.Color) (EngineOutput, error) {
	const op = "parse output"

	fields := strings.Fields(terminal)
	if len(fields) < 2 {
		return EngineOutput{}, protocolErrorf(op, terminal, "bestmove without a move")
	}
	out := EngineOutput{BestMove: fields[1]}
	if len(fields) >= 4 && fields[2] == ponderToken {
		out.Ponder = fields[3]
	}

	if !w.has {
		return EngineOutput{}, &ProtocolError{Op: op, Line: terminal, Err: fmt.Errorf("%w: no line before bestmove", ErrNoScore)}
	}

	eval, err := parseScore(w.buffered)
	if err != nil {
		return EngineOutput{}, &ProtocolError{Op: op, Line: w.buffered, Err: err}
	}
	if side == fen.Black {
		eval.Value = -eval.Value
	}
	out.Evaluation = eval

	if d, ok := fieldUint(w.buffered, depthToken); ok {
		out.Depth = d
	} else if d, ok := fieldUint(terminal, depthToken); ok {
		out.Depth = d
	}

	return out, nil
}

// parseScore finds the first "score <kind> <int>" triplet, scanning left to
// right.
func parseScore(line string) (Evaluation, error) {
	fields := strings.Fields(line)
	for i, f := range fields {
		if f != scoreToken {
			continue
		}
		if i+2 >= len(fields) {
			return Evaluation{}, errors.New("truncated score")
		}
		kind, err := ParseEvalKind(fields[i+1])
		if err != nil {
			return Evaluation{}, err
		}
		value, err := strconv.Atoi(fields[i+2])
		if err != nil {
			return Evaluation{}, fmt.Errorf("score value %q: %w", fields[i+2], err)
		}
		return Evaluation{Kind: kind, Value: value}, nil
	}
	return Evaluation{}, ErrNoScore
}

// ParseOutput runs the calculation scan over an already collected window of
// lines. position is the FEN the search ran on; it decides the score sign.
// Lines after the first bestmove are ignored.
func ParseOutput(position string, lines []string, mode Lookback) (EngineOutput, error) {
	w := scoreWindow{mode: mode}
	for _, line := range lines {
		if w.observe(line) {
			return w.extract(line, fen.SideToMove(position))
		}
	}
	return EngineOutput{}, protocolErrorf("parse output", "", "no bestmove line")
}

func firstField(line string) string {
	line = strings.TrimLeft(line, " \t")
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		return line[:i]
	}
	return line
}

func containsField(line, token string) bool {
	for _, f := range strings.Fields(line) {
		if f == token {
			return true
		}
	}
	return false
}

// fieldUint returns the unsigned integer following the first occurrence of
// key, if any.
func fieldUint(line, key string) (uint, bool) {
	fields := strings.Fields(line)
	for i := 0; i+1 < len(fields); i++ {
		if fields[i] != key {
			continue
		}
		n, err := strconv.ParseUint(fields[i+1], 10, 32)
		if err != nil {
			return 0, false
		}
		return uint(n), true
	}
	return 0, false
}
