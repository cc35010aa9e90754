package processor

import (
	"fmt"

	"github.com/notnil/chess"

	"stockfish/internal/fen"
)

// replay checks that start is a well-formed FEN and that every move is legal
// in sequence. Engines silently skip bad input, so this is the only place an
// illegal request is caught.
func replay(start string, moves []string) error {
	if _, err := fen.Parse(start); err != nil {
		return &requestError{code: errInvalidFEN, err: err}
	}
	opt, err := chess.FEN(start)
	if err != nil {
		return &requestError{code: errInvalidFEN, err: err}
	}
	game := chess.NewGame(opt)

	for i, s := range moves {
		m, err := chess.UCINotation{}.Decode(game.Position(), s)
		if err != nil {
			return &requestError{code: errInvalidMove, err: fmt.Errorf("move %d (%s): %w", i+1, s, err)}
		}
		if err := game.Move(m); err != nil {
			return &requestError{code: errInvalidMove, err: fmt.Errorf("move %d (%s) is illegal", i+1, s)}
		}
	}
	return nil
}
