package console

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"stockfish/internal/engine"
	"stockfish/internal/engine/enginetest"
)

func newTestConsole(t *testing.T, f *enginetest.Fake) (*Console, *bytes.Buffer) {
	t.Helper()
	stdin, stdout := f.Start()
	s, err := engine.NewPipeSession(stdin, stdout, engine.WithDepth(2))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	var buf bytes.Buffer
	return New(s, &buf, NewPalette(&buf, false)), &buf
}

func run(t *testing.T, c *Console, buf *bytes.Buffer, line string) string {
	t.Helper()
	buf.Reset()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Execute(ctx, line); err != nil {
		t.Fatalf("%s: %v", line, err)
	}
	return buf.String()
}

func TestConsoleSession(t *testing.T) {
	f := &enginetest.Fake{Score: -150}
	c, buf := newTestConsole(t, f)

	if out := run(t, c, buf, "r"); strings.TrimSpace(out) != "readyok" {
		t.Fatalf("ready: %q", out)
	}
	if out := run(t, c, buf, "new"); !strings.Contains(out, "New game") {
		t.Fatalf("new: %q", out)
	}

	out := run(t, c, buf, "m e2e4 e7e5")
	if !strings.HasPrefix(out, "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq") {
		t.Fatalf("move: %q", out)
	}

	out = run(t, c, buf, "go")
	if !strings.Contains(out, "eval -1.50") || !strings.Contains(out, "depth 2") {
		t.Fatalf("go: %q", out)
	}

	out = run(t, c, buf, "fen 8/8/4k3/8/8/8/8/4K3 w - - 0 1")
	if !strings.HasPrefix(out, "8/8/4k3/8/8/8/8/4K3 w -") {
		t.Fatalf("fen: %q", out)
	}

	out = run(t, c, buf, "clock 1000 2000")
	if !strings.Contains(out, "eval") {
		t.Fatalf("clock: %q", out)
	}
	if f.Received("go wtime 1000 btime 2000") != 1 {
		t.Fatalf("commands: %q", f.Commands())
	}
}

func TestConsoleSettings(t *testing.T) {
	f := &enginetest.Fake{}
	c, buf := newTestConsole(t, f)

	if out := run(t, c, buf, "dp 9"); strings.TrimSpace(out) != "depth 9" {
		t.Fatalf("depth: %q", out)
	}
	if out := run(t, c, buf, "lb last-scored"); strings.TrimSpace(out) != "lookback last-scored" {
		t.Fatalf("lookback: %q", out)
	}
	run(t, c, buf, "hs 32")
	run(t, c, buf, "sk 5")
	run(t, c, buf, "r")
	if v, _ := f.Option("Hash"); v != "32" {
		t.Fatalf("Hash = %q", v)
	}
	if v, _ := f.Option("Skill Level"); v != "5" {
		t.Fatalf("Skill Level = %q", v)
	}
	if out := run(t, c, buf, "v"); !strings.Contains(out, "16.1") {
		t.Fatalf("version: %q", out)
	}
	if out := run(t, c, buf, "u"); !strings.Contains(out, "Stockfish 16.1 by") {
		t.Fatalf("uci: %q", out)
	}
}

func TestConsoleErrors(t *testing.T) {
	c, buf := newTestConsole(t, &enginetest.Fake{})

	cases := map[string]string{
		"bogus":            "Unknown command",
		"m e2e9":           "invalid move format",
		"fen not a fen":    "invalid FEN",
		"sk 30":            "skill must be 0-20",
		"t":                "usage: time",
		"go 0":             "depth must be a positive integer",
		"help nosuchthing": "unknown command",
	}
	for line, want := range cases {
		if out := run(t, c, buf, line); !strings.Contains(out, want) {
			t.Errorf("%q: got %q, want %q", line, out, want)
		}
	}

	if err := c.Execute(context.Background(), "x"); !errors.Is(err, ErrExit) {
		t.Fatalf("exit returned %v", err)
	}
}

func TestHelpListsGroups(t *testing.T) {
	c, buf := newTestConsole(t, &enginetest.Fake{})
	out := run(t, c, buf, "?")
	for _, want := range []string{"Position Commands:", "Search Commands:", "[g] go", "[x] exit"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q", want)
		}
	}
}

func TestFormatEvaluation(t *testing.T) {
	tests := []struct {
		eval engine.Evaluation
		want string
	}{
		{engine.Evaluation{Kind: engine.Centipawn, Value: 25}, "+0.25"},
		{engine.Evaluation{Kind: engine.Centipawn, Value: -305}, "-3.05"},
		{engine.Evaluation{Kind: engine.Centipawn, Value: 0}, "+0.00"},
		{engine.Evaluation{Kind: engine.Mate, Value: -3}, "#-3"},
	}
	for _, tt := range tests {
		if got := FormatEvaluation(tt.eval); got != tt.want {
			t.Errorf("FormatEvaluation(%v) = %q, want %q", tt.eval, got, tt.want)
		}
	}
}

func TestIsUCIMove(t *testing.T) {
	for _, m := range []string{"e2e4", "a7a8q", "h1h8"} {
		if !isUCIMove(m) {
			t.Errorf("%q rejected", m)
		}
	}
	for _, m := range []string{"", "e2", "e2e4k", "i2i4", "e0e1", "e2e4qq"} {
		if isUCIMove(m) {
			t.Errorf("%q accepted", m)
		}
	}
}
