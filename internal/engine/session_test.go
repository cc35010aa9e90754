package engine_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"stockfish/internal/engine"
	"stockfish/internal/engine/enginetest"
	"stockfish/internal/fen"
)

const (
	// Italian game after 3...Bc5, no en passant square.
	italianFEN = "r1bqk1nr/pppp1ppp/2n5/2b1p3/2B1P3/5N2/PPPP1PPP/RNBQK2R w KQkq - 4 4"
	// After 1.e4 e5 2.Nf3 Nc6.
	knightsFEN = "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3"
	// Fool's mate, white is checkmated.
	matedFEN = "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"
)

func startSession(t *testing.T, f *enginetest.Fake, opts ...engine.Option) *engine.Session {
	t.Helper()
	stdin, stdout := f.Start()
	s, err := engine.NewPipeSession(stdin, stdout, opts...)
	if err != nil {
		t.Fatalf("NewPipeSession: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestVersionFromGreeting(t *testing.T) {
	s := startSession(t, &enginetest.Fake{Greeting: "Stockfish 17 by the Stockfish developers"})
	v, ok := s.Version()
	if !ok || v != "17" {
		t.Fatalf("Version() = %q, %v", v, ok)
	}

	s = startSession(t, &enginetest.Fake{Greeting: "hello"})
	if v, ok := s.Version(); ok {
		t.Fatalf("single-word greeting gave version %q", v)
	}
}

func TestEnsureReadyIdempotent(t *testing.T) {
	f := &enginetest.Fake{}
	s := startSession(t, f)
	ctx := testContext(t)

	if s.Ready() {
		t.Fatal("Ready() before any probe")
	}
	for i := 0; i < 2; i++ {
		if err := s.EnsureReady(ctx); err != nil {
			t.Fatalf("EnsureReady #%d: %v", i+1, err)
		}
		if !s.Ready() {
			t.Fatalf("Ready() false after EnsureReady #%d", i+1)
		}
	}
	if got := f.Received("isready"); got != 2 {
		t.Fatalf("sent %d isready, want 2", got)
	}

	// Nothing may be left over for the next exchange.
	got, err := s.FEN(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !fen.SameBoard(got, fen.StartingFEN) {
		t.Fatalf("FEN after barrier = %q", got)
	}
	if s.Ready() {
		t.Fatal("Ready() still true after another command")
	}
}

func TestFENRoundTrip(t *testing.T) {
	s := startSession(t, &enginetest.Fake{})
	ctx := testContext(t)

	for _, position := range []string{fen.StartingFEN, italianFEN, matedFEN} {
		if err := s.SetFEN(ctx, position); err != nil {
			t.Fatal(err)
		}
		got, err := s.FEN(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !fen.SameBoard(got, position) {
			t.Fatalf("FEN() = %q, want %q", got, position)
		}

		again, err := s.FEN(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if again != got {
			t.Fatalf("second fetch %q differs from first %q", again, got)
		}
	}
}

func TestPlayMoves(t *testing.T) {
	f := &enginetest.Fake{}
	s := startSession(t, f)
	ctx := testContext(t)

	if err := s.ResetPosition(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.PlayMove(ctx, "e2e4"); err != nil {
		t.Fatal(err)
	}
	if err := s.PlayMoves(ctx, "e7e5", "g1f3", "b8c6"); err != nil {
		t.Fatal(err)
	}

	got, err := s.FEN(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !fen.SameBoard(got, knightsFEN) {
		t.Fatalf("FEN() = %q, want %q", got, knightsFEN)
	}

	cmds := f.Commands()
	var last string
	for _, c := range cmds {
		if strings.HasPrefix(c, "position fen") {
			last = c
		}
	}
	if !strings.HasSuffix(last, " moves e7e5 g1f3 b8c6") {
		t.Fatalf("last position command = %q", last)
	}
}

func TestSetPosition(t *testing.T) {
	f := &enginetest.Fake{}
	s := startSession(t, f)
	ctx := testContext(t)

	if err := s.SetPosition(ctx, fen.StartingFEN, "e2e4", "e7e5", "g1f3", "b8c6"); err != nil {
		t.Fatal(err)
	}
	got, err := s.FEN(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !fen.SameBoard(got, knightsFEN) {
		t.Fatalf("FEN() = %q", got)
	}
}

func TestGoDepthOne(t *testing.T) {
	s := startSession(t, &enginetest.Fake{Score: 25})
	ctx := testContext(t)

	if err := s.NewGame(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.ResetPosition(ctx); err != nil {
		t.Fatal(err)
	}

	out, err := s.GoDepth(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if out.Evaluation.Kind != engine.Centipawn || out.Evaluation.Value != 25 {
		t.Fatalf("evaluation = %v", out.Evaluation)
	}
	if len(out.BestMove) < 4 || !out.HasMove() {
		t.Fatalf("best move = %q", out.BestMove)
	}
	if out.Depth != 1 {
		t.Fatalf("depth = %d, want 1", out.Depth)
	}
	if out.Ponder == "" {
		t.Fatal("expected a ponder move")
	}
}

func TestScoreSign(t *testing.T) {
	tests := []struct {
		name     string
		position string
		want     int
	}{
		{"white to move", italianFEN, 37},
		{"black to move", strings.Replace(knightsFEN, " w ", " b ", 1), -37},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := startSession(t, &enginetest.Fake{Score: 37})
			ctx := testContext(t)

			if err := s.SetFEN(ctx, tt.position); err != nil {
				t.Fatal(err)
			}
			out, err := s.GoDepth(ctx, 2)
			if err != nil {
				t.Fatal(err)
			}
			if out.Evaluation.Value != tt.want {
				t.Fatalf("value = %d, want %d", out.Evaluation.Value, tt.want)
			}
		})
	}
}

func TestGoUsesConfiguredDepth(t *testing.T) {
	f := &enginetest.Fake{}
	s := startSession(t, f, engine.WithDepth(4))
	ctx := testContext(t)

	if s.Depth() != 4 {
		t.Fatalf("Depth() = %d", s.Depth())
	}
	out, err := s.Go(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if out.Depth != 4 {
		t.Fatalf("result depth = %d", out.Depth)
	}

	s.SetDepth(0)
	s.SetDepth(6)
	if _, err := s.Go(ctx); err != nil {
		t.Fatal(err)
	}
	if f.Received("go depth 4") != 1 || f.Received("go depth 6") != 1 {
		t.Fatalf("commands: %q", f.Commands())
	}
}

func TestNoLegalMoves(t *testing.T) {
	s := startSession(t, &enginetest.Fake{})
	ctx := testContext(t)

	if err := s.SetFEN(ctx, matedFEN); err != nil {
		t.Fatal(err)
	}
	out, err := s.Go(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if out.HasMove() || out.BestMove != engine.NoMove {
		t.Fatalf("best move = %q", out.BestMove)
	}
	if out.Evaluation.Kind != engine.Mate || out.Evaluation.Value != 0 {
		t.Fatalf("evaluation = %v", out.Evaluation)
	}
}

func TestLookbackModes(t *testing.T) {
	script := func(req enginetest.SearchRequest) []string {
		return []string{
			"info depth 8 score cp 52 pv " + req.Legal[0],
			"info string search done",
			"bestmove " + req.Legal[0],
		}
	}

	s := startSession(t, &enginetest.Fake{Search: script})
	ctx := testContext(t)

	_, err := s.GoDepth(ctx, 8)
	if !errors.Is(err, engine.ErrNoScore) || !errors.Is(err, engine.ErrProtocol) {
		t.Fatalf("previous-line lookback: got %v", err)
	}

	// A parse failure leaves the session in sync.
	s.SetLookback(engine.LookbackLastScored)
	if s.Lookback() != engine.LookbackLastScored {
		t.Fatal("lookback not updated")
	}
	out, err := s.GoDepth(ctx, 8)
	if err != nil {
		t.Fatal(err)
	}
	if out.Evaluation.Value != 52 || out.Depth != 8 {
		t.Fatalf("got %+v", out)
	}
}

func TestGoFor(t *testing.T) {
	f := &enginetest.Fake{Score: 11}
	s := startSession(t, f)
	ctx := testContext(t)

	start := time.Now()
	out, err := s.GoFor(ctx, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("returned after %s", elapsed)
	}
	if out.Evaluation.Value != 11 {
		t.Fatalf("got %+v", out)
	}
	if f.Received("stop") != 1 {
		t.Fatalf("commands: %q", f.Commands())
	}

	if _, err := s.GoFor(ctx, 0); err == nil {
		t.Fatal("zero duration accepted")
	}
}

func TestGoForCancelledEarly(t *testing.T) {
	f := &enginetest.Fake{Score: 3}
	s := startSession(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	out, err := s.GoFor(ctx, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("cancellation did not cut the wait short")
	}
	if !out.HasMove() {
		t.Fatalf("got %+v", out)
	}
}

func TestGoClockFormatting(t *testing.T) {
	tests := []struct {
		clock engine.Clock
		want  string
	}{
		{engine.Clock{White: 60 * time.Second, Black: 45500 * time.Millisecond}, "go wtime 60000 btime 45500"},
		{engine.Clock{White: time.Second}, "go wtime 1000"},
		{engine.Clock{Black: 2 * time.Second}, "go btime 2000"},
	}

	for _, tt := range tests {
		f := &enginetest.Fake{}
		s := startSession(t, f)
		if _, err := s.GoClock(testContext(t), tt.clock); err != nil {
			t.Fatal(err)
		}
		if f.Received(tt.want) != 1 {
			t.Fatalf("want %q in %q", tt.want, f.Commands())
		}
	}
}

func TestBoardDisplay(t *testing.T) {
	s := startSession(t, &enginetest.Fake{})
	ctx := testContext(t)

	board, err := s.BoardDisplay(ctx)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(board, "\n")
	if len(lines) != 18 {
		t.Fatalf("got %d lines:\n%s", len(lines), board)
	}
	if !strings.Contains(lines[1], "| r | n | b | q | k | b | n | r | 8") {
		t.Fatalf("unexpected top rank %q", lines[1])
	}

	// The dump was fully drained.
	if _, err := s.FEN(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestOptions(t *testing.T) {
	f := &enginetest.Fake{}
	s := startSession(t, f)
	ctx := testContext(t)

	if err := s.SetHash(ctx, 64); err != nil {
		t.Fatal(err)
	}
	if err := s.SetThreads(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSkillLevel(ctx, 99); err != nil {
		t.Fatal(err)
	}
	// Options apply in order with the barrier.
	if err := s.EnsureReady(ctx); err != nil {
		t.Fatal(err)
	}

	for name, want := range map[string]string{"Hash": "64", "Threads": "2", "Skill Level": "20"} {
		if got, _ := f.Option(name); got != want {
			t.Errorf("option %s = %q, want %q", name, got, want)
		}
	}
}

func TestIdentify(t *testing.T) {
	s := startSession(t, &enginetest.Fake{})
	ctx := testContext(t)

	id, err := s.Identify(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if id.Name != "Stockfish 16.1" || !strings.HasPrefix(id.Author, "the Stockfish developers") {
		t.Fatalf("got %+v", id)
	}
	var found bool
	for _, o := range id.Options {
		if o.Name == "Skill Level" && o.Type == "spin" && o.Default == "20" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Skill Level option missing: %+v", id.Options)
	}
}

func TestResyncAfterCancelledSearch(t *testing.T) {
	f := &enginetest.Fake{Score: 7}
	s := startSession(t, f)

	// "go" with no limits waits for stop, so this read is abandoned.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := s.GoClock(ctx, engine.Clock{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}

	out, err := s.GoDepth(testContext(t), 2)
	if err != nil {
		t.Fatal(err)
	}
	if out.Depth != 2 || out.Evaluation.Value != 7 {
		t.Fatalf("result after resync = %+v", out)
	}
	if f.Received("stop") != 1 {
		t.Fatalf("commands: %q", f.Commands())
	}
}

func TestResyncAfterAbandonedExchange(t *testing.T) {
	const stall = 300 * time.Millisecond

	tests := []struct {
		name    string
		stall   string
		times   int
		abandon func(context.Context, *engine.Session) error
	}{
		{"barrier", "isready", 1, func(ctx context.Context, s *engine.Session) error {
			return s.EnsureReady(ctx)
		}},
		{"barrier abandoned during resync", "isready", 2, func(ctx context.Context, s *engine.Session) error {
			return s.EnsureReady(ctx)
		}},
		{"fen dump", "d", 1, func(ctx context.Context, s *engine.Session) error {
			_, err := s.FEN(ctx)
			return err
		}},
		{"board dump", "d", 1, func(ctx context.Context, s *engine.Session) error {
			_, err := s.BoardDisplay(ctx)
			return err
		}},
		{"identify", "uci", 1, func(ctx context.Context, s *engine.Session) error {
			_, err := s.Identify(ctx)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &enginetest.Fake{Stall: map[string]time.Duration{tt.stall: stall}}
			s := startSession(t, f)

			for i := 0; i < tt.times; i++ {
				ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
				err := tt.abandon(ctx, s)
				cancel()
				if !errors.Is(err, context.DeadlineExceeded) {
					t.Fatalf("attempt %d: expected deadline, got %v", i+1, err)
				}
			}

			ctx := testContext(t)
			board, err := s.BoardDisplay(ctx)
			if err != nil {
				t.Fatal(err)
			}
			for _, stale := range []string{"readyok", "uciok", "Fen:", "id name"} {
				if strings.Contains(board, stale) {
					t.Fatalf("board contains %q:\n%s", stale, board)
				}
			}
			if !strings.HasPrefix(board, " +---+") {
				t.Fatalf("board = %q", board)
			}

			got, err := s.FEN(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if !fen.SameBoard(got, fen.StartingFEN) {
				t.Fatalf("FEN = %q", got)
			}

			id, err := s.Identify(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if id.Name != "Stockfish 16.1" {
				t.Fatalf("Identify = %+v", id)
			}
			if err := s.EnsureReady(ctx); err != nil || !s.Ready() {
				t.Fatalf("EnsureReady: %v, Ready() = %v", err, s.Ready())
			}
		})
	}
}

func TestCommandResyncHonoursContext(t *testing.T) {
	f := &enginetest.Fake{Stall: map[string]time.Duration{"d": 400 * time.Millisecond}}
	s := startSession(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	_, err := s.FEN(ctx)
	cancel()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}

	// The engine is still busy with the dump, so the resync cannot finish.
	ctx, cancel = context.WithTimeout(context.Background(), 50*time.Millisecond)
	err = s.SetOption(ctx, "Hash", "32")
	cancel()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if f.Received("setoption") != 0 {
		t.Fatalf("setoption sent before resync: %q", f.Commands())
	}

	if err := s.SetOption(testContext(t), "Hash", "32"); err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureReady(testContext(t)); err != nil {
		t.Fatal(err)
	}
	if v, _ := f.Option("Hash"); v != "32" {
		t.Fatalf("Hash = %q", v)
	}
}

func TestTerminated(t *testing.T) {
	s := startSession(t, &enginetest.Fake{CrashOn: "go"})
	ctx := testContext(t)

	if err := s.EnsureReady(ctx); err != nil {
		t.Fatal(err)
	}
	_, err := s.Go(ctx)
	if !errors.Is(err, engine.ErrTerminated) {
		t.Fatalf("expected ErrTerminated, got %v", err)
	}
	if err := s.EnsureReady(ctx); err == nil {
		t.Fatal("EnsureReady succeeded on a dead engine")
	}
}

func TestConstructionFailure(t *testing.T) {
	_, err := engine.New("/nonexistent/stockfish-binary")
	if !errors.Is(err, engine.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	// An engine that never greets.
	f := &enginetest.Fake{Silent: true}
	stdin, stdout := f.Start()
	_, err = engine.NewPipeSession(stdin, stdout, engine.WithStartTimeout(50*time.Millisecond))
	if !errors.Is(err, engine.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	select {
	case <-f.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("fake still running after failed construction")
	}

	// An engine that exits immediately.
	r, w := io.Pipe()
	w.Close()
	_, err = engine.NewPipeSession(nopWriteCloser{io.Discard}, r)
	if !errors.Is(err, engine.ErrUnavailable) || !errors.Is(err, engine.ErrTerminated) {
		t.Fatalf("expected ErrUnavailable wrapping ErrTerminated, got %v", err)
	}
}

func TestClose(t *testing.T) {
	f := &enginetest.Fake{}
	stdin, stdout := f.Start()
	s, err := engine.NewPipeSession(stdin, stdout)
	if err != nil {
		t.Fatal(err)
	}

	ctx := testContext(t)
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := s.FEN(ctx); !errors.Is(err, engine.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if f.Received("quit") != 1 {
		t.Fatalf("commands: %q", f.Commands())
	}
	<-f.Done()
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
