package console

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"stockfish/internal/engine"
)

// Terminal color codes
const (
	Reset   = "\033[0m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	White   = "\033[37m"
)

// Palette colors text, or passes it through when color is off.
type Palette struct {
	enabled bool
}

// NewPalette enables color only when asked and w is a terminal.
func NewPalette(w io.Writer, color bool) Palette {
	if !color {
		return Palette{}
	}
	f, ok := w.(*os.File)
	return Palette{enabled: ok && term.IsTerminal(int(f.Fd()))}
}

func (p Palette) Paint(color, text string) string {
	if !p.enabled {
		return text
	}
	return color + text + Reset
}

// Prompt returns a colored prompt string
func (p Palette) Prompt(text string) string {
	if !p.enabled {
		return text + " > "
	}
	return Yellow + text + Yellow + " > " + Reset
}

// FormatEvaluation renders a score in pawns ("+0.25") or moves to mate ("#-3").
func FormatEvaluation(e engine.Evaluation) string {
	switch e.Kind {
	case engine.Mate:
		return fmt.Sprintf("#%d", e.Value)
	case engine.Centipawn:
		sign := "+"
		v := e.Value
		if v < 0 {
			sign = "-"
			v = -v
		}
		return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
	default:
		return "?"
	}
}

// FormatOutput renders a search result on one line.
func (p Palette) FormatOutput(out engine.EngineOutput) string {
	var b strings.Builder

	eval := FormatEvaluation(out.Evaluation)
	switch {
	case out.Evaluation.Kind == engine.Mate:
		eval = p.Paint(Magenta, eval)
	case out.Evaluation.Value > 0:
		eval = p.Paint(Blue, eval)
	case out.Evaluation.Value < 0:
		eval = p.Paint(Red, eval)
	}
	fmt.Fprintf(&b, "eval %s", eval)

	if out.HasMove() {
		fmt.Fprintf(&b, "  best %s", p.Paint(Green, out.BestMove))
	} else {
		b.WriteString("  no legal move")
	}
	if out.Ponder != "" {
		fmt.Fprintf(&b, "  ponder %s", out.Ponder)
	}
	if out.Depth > 0 {
		fmt.Fprintf(&b, "  depth %d", out.Depth)
	}
	return b.String()
}
