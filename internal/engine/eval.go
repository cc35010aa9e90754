package engine

import (
	"fmt"
	"strconv"
)

// EvalKind is the unit of an evaluation: centipawns or moves to mate.
type EvalKind int

const (
	Centipawn EvalKind = iota + 1
	Mate
)

// NoMove is the best-move token engines report when the side to move has no
// legal moves.
const NoMove = "(none)"

// ParseEvalKind converts the protocol descriptor ("cp" or "mate").
func ParseEvalKind(s string) (EvalKind, error) {
	switch s {
	case "cp":
		return Centipawn, nil
	case "mate":
		return Mate, nil
	default:
		return 0, fmt.Errorf("unknown score kind %q", s)
	}
}

func (k EvalKind) String() string {
	switch k {
	case Centipawn:
		return "cp"
	case Mate:
		return "mate"
	default:
		return "unknown"
	}
}

func (k EvalKind) MarshalText() ([]byte, error) {
	if k != Centipawn && k != Mate {
		return nil, fmt.Errorf("invalid eval kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *EvalKind) UnmarshalText(text []byte) error {
	parsed, err := ParseEvalKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Evaluation is a score from White's point of view. For Mate, Value is the
// number of moves to mate; positive means White mates.
type Evaluation struct {
	Kind  EvalKind `json:"kind"`
	Value int      `json:"value"`
}

func (e Evaluation) String() string {
	return e.Kind.String() + " " + strconv.Itoa(e.Value)
}

// EngineOutput is the complete answer to one calculation request.
type EngineOutput struct {
	Evaluation Evaluation `json:"evaluation"`
	BestMove   string     `json:"bestMove"`
	Ponder     string     `json:"ponder,omitempty"` // empty when the engine offered none
	Depth      uint       `json:"depth,omitempty"`  // zero when not reported
}

// HasMove reports whether the engine found a move to play.
func (o EngineOutput) HasMove() bool {
	return o.BestMove != "" && o.BestMove != NoMove
}

func (o EngineOutput) String() string {
	return o.Evaluation.String() + "_" + o.BestMove
}
