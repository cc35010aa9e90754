package processor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stockfish/internal/engine"
	"stockfish/internal/engine/enginetest"
	"stockfish/internal/server/core"
	"stockfish/internal/server/storage"
)

// fakePool hands out one Fake per session and remembers them.
type fakePool struct {
	mu      sync.Mutex
	newFake func(n int) *enginetest.Fake
	fakes   []*enginetest.Fake
}

func (p *fakePool) factory() (*engine.Session, error) {
	p.mu.Lock()
	f := p.newFake(len(p.fakes))
	p.fakes = append(p.fakes, f)
	p.mu.Unlock()

	stdin, stdout := f.Start()
	return engine.NewPipeSession(stdin, stdout, engine.WithDepth(2))
}

func (p *fakePool) started() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.fakes)
}

func (p *fakePool) last() *enginetest.Fake {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fakes[len(p.fakes)-1]
}

func newTestProcessor(t *testing.T, pool *fakePool, store *storage.Store, timeout time.Duration) *Processor {
	t.Helper()
	q := NewEngineQueue(1, pool.factory, zerolog.Nop())
	t.Cleanup(func() { _ = q.Shutdown(5 * time.Second) })
	return New(q, store, timeout, zerolog.Nop())
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.NewStore(filepath.Join(t.TempDir(), "test.db"), true, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.InitDB(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func scoring(score int) *fakePool {
	return &fakePool{newFake: func(int) *enginetest.Fake { return &enginetest.Fake{Score: score} }}
}

func wantError(t *testing.T, resp ProcessorResponse, code string) {
	t.Helper()
	if resp.Success || resp.Error == nil {
		t.Fatalf("expected %s, got success: %+v", code, resp.Data)
	}
	if resp.Error.Code != code {
		t.Fatalf("code = %s (%s), want %s", resp.Error.Code, resp.Error.Error, code)
	}
}

func TestAnalyzeDepthAndRecall(t *testing.T) {
	pool := scoring(40)
	store := newTestStore(t)
	p := newTestProcessor(t, pool, store, 5*time.Second)
	ctx := context.Background()

	resp := p.Execute(ctx, NewAnalyzeCommand("alice", core.AnalysisRequest{
		Moves: []string{"e2e4"},
		Depth: 4,
	}))
	if !resp.Success {
		t.Fatalf("analyze failed: %+v", resp.Error)
	}
	a := resp.Data.(core.AnalysisResponse)

	if !strings.HasPrefix(a.FEN, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq") {
		t.Errorf("FEN = %q", a.FEN)
	}
	// Black to move, so the engine's +40 is -40 for White.
	if a.Evaluation != (engine.Evaluation{Kind: engine.Centipawn, Value: -40}) {
		t.Errorf("Evaluation = %v", a.Evaluation)
	}
	if a.Mode != "depth" || a.Depth != 4 || a.EngineVersion != "16.1" || a.BestMove == "" {
		t.Errorf("response = %+v", a)
	}
	if a.Display != a.Evaluation.String()+"_"+a.BestMove {
		t.Errorf("Display = %q", a.Display)
	}
	if pool.last().Received("go depth 4") != 1 {
		t.Errorf("commands = %q", pool.last().Commands())
	}

	if err := store.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	got := p.Execute(ctx, NewGetAnalysisCommand(a.ID))
	if !got.Success {
		t.Fatalf("get failed: %+v", got.Error)
	}
	stored := got.Data.(core.AnalysisResponse)
	if stored.ID != a.ID || stored.FEN != a.FEN || stored.Evaluation != a.Evaluation ||
		stored.BestMove != a.BestMove || stored.Display != a.Display || len(stored.Moves) != 1 {
		t.Errorf("stored = %+v\nwant   %+v", stored, a)
	}

	list := p.Execute(ctx, NewQueryAnalysesCommand(AnalysisQuery{FEN: a.FEN}))
	if !list.Success || list.Data.(core.AnalysisListResponse).Count != 1 {
		t.Fatalf("query = %+v", list)
	}

	wantError(t, p.Execute(ctx, NewGetAnalysisCommand("00000000-0000-0000-0000-000000000000")), core.ErrAnalysisNotFound)
}

func TestAnalyzeUsesSessionDepth(t *testing.T) {
	pool := scoring(0)
	p := newTestProcessor(t, pool, nil, 5*time.Second)

	resp := p.Execute(context.Background(), NewAnalyzeCommand("", core.AnalysisRequest{}))
	if !resp.Success {
		t.Fatalf("analyze failed: %+v", resp.Error)
	}
	if pool.last().Received("go depth 2") != 1 {
		t.Errorf("commands = %q", pool.last().Commands())
	}
	if pool.last().Received("ucinewgame") != 1 {
		t.Errorf("expected ucinewgame, got %q", pool.last().Commands())
	}
}

func TestAnalyzeTimeAndClock(t *testing.T) {
	pool := scoring(15)
	p := newTestProcessor(t, pool, nil, 5*time.Second)
	ctx := context.Background()

	resp := p.Execute(ctx, NewAnalyzeCommand("", core.AnalysisRequest{Mode: "time", MoveTimeMs: 50}))
	if !resp.Success {
		t.Fatalf("time analysis failed: %+v", resp.Error)
	}
	if a := resp.Data.(core.AnalysisResponse); a.Mode != "time" || a.Evaluation.Value != 15 {
		t.Errorf("time analysis = %+v", a)
	}
	if pool.last().Received("stop") != 1 {
		t.Errorf("commands = %q", pool.last().Commands())
	}

	resp = p.Execute(ctx, NewAnalyzeCommand("", core.AnalysisRequest{Mode: "clock", WhiteTimeMs: 60000, BlackTimeMs: 30000}))
	if !resp.Success {
		t.Fatalf("clock analysis failed: %+v", resp.Error)
	}
	if pool.last().Received("go wtime 60000 btime 30000") != 1 {
		t.Errorf("commands = %q", pool.last().Commands())
	}
}

func TestAnalyzeRejectsBadRequests(t *testing.T) {
	p := newTestProcessor(t, scoring(0), nil, 5*time.Second)
	ctx := context.Background()

	tests := []struct {
		name string
		req  core.AnalysisRequest
		code string
	}{
		{"illegal move", core.AnalysisRequest{Moves: []string{"e2e5"}}, core.ErrInvalidMove},
		{"illegal second move", core.AnalysisRequest{Moves: []string{"e2e4", "e2e4"}}, core.ErrInvalidMove},
		{"bad fen", core.AnalysisRequest{FEN: "8/8/8/8 w - - 0 1"}, core.ErrInvalidFEN},
		{"time without budget", core.AnalysisRequest{Mode: "time"}, core.ErrInvalidRequest},
		{"clock without times", core.AnalysisRequest{Mode: "clock"}, core.ErrInvalidRequest},
		{"unknown mode", core.AnalysisRequest{Mode: "ponder"}, core.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantError(t, p.Execute(ctx, NewAnalyzeCommand("", tt.req)), tt.code)
		})
	}

	wantError(t, p.Execute(ctx, Command{Type: CmdAnalyze, Args: "nope"}), core.ErrInvalidRequest)
	wantError(t, p.Execute(ctx, Command{Type: CommandType(99)}), core.ErrInvalidRequest)
}

func TestNoLegalMoves(t *testing.T) {
	p := newTestProcessor(t, scoring(0), nil, 5*time.Second)
	resp := p.Execute(context.Background(), NewAnalyzeCommand("", core.AnalysisRequest{
		Moves: []string{"f2f3", "e7e5", "g2g4", "d8h4"},
	}))
	if !resp.Success {
		t.Fatalf("analyze failed: %+v", resp.Error)
	}
	a := resp.Data.(core.AnalysisResponse)
	if a.BestMove != engine.NoMove || a.Evaluation.Kind != engine.Mate {
		t.Errorf("mated position = %+v", a)
	}
}

func TestEngineRestartAfterCrash(t *testing.T) {
	pool := &fakePool{newFake: func(n int) *enginetest.Fake {
		if n == 0 {
			return &enginetest.Fake{CrashOn: "go"}
		}
		return &enginetest.Fake{Score: 5}
	}}
	p := newTestProcessor(t, pool, nil, 5*time.Second)
	ctx := context.Background()

	wantError(t, p.Execute(ctx, NewAnalyzeCommand("", core.AnalysisRequest{})), core.ErrEngineTerminated)

	resp := p.Execute(ctx, NewAnalyzeCommand("", core.AnalysisRequest{}))
	if !resp.Success {
		t.Fatalf("analysis after restart failed: %+v", resp.Error)
	}
	if pool.started() != 2 {
		t.Errorf("sessions started = %d, want 2", pool.started())
	}
}

func TestEngineTimeout(t *testing.T) {
	pool := &fakePool{newFake: func(int) *enginetest.Fake {
		return &enginetest.Fake{Search: func(enginetest.SearchRequest) []string {
			return []string{"info depth 1 score cp 3"}
		}}
	}}
	p := newTestProcessor(t, pool, nil, 100*time.Millisecond)

	wantError(t, p.Execute(context.Background(), NewAnalyzeCommand("", core.AnalysisRequest{})), core.ErrEngineTimeout)
}

func TestEngineUnavailable(t *testing.T) {
	q := NewEngineQueue(1, func() (*engine.Session, error) {
		return nil, fmt.Errorf("%w: no binary", engine.ErrUnavailable)
	}, zerolog.Nop())
	t.Cleanup(func() { _ = q.Shutdown(time.Second) })
	p := New(q, nil, time.Second, zerolog.Nop())

	wantError(t, p.Execute(context.Background(), NewAnalyzeCommand("", core.AnalysisRequest{})), core.ErrEngineUnavailable)
	if h := p.Health(); h.EngineVersion != "" || h.Workers != 1 || h.Storage != "disabled" {
		t.Errorf("health = %+v", h)
	}
}

func TestNormalizePosition(t *testing.T) {
	p := newTestProcessor(t, scoring(0), nil, 5*time.Second)
	resp := p.Execute(context.Background(), NewNormalizePositionCommand(core.PositionRequest{
		FEN:   "r1bqkbnr/pppp1ppp/2n5/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R w KQkq - 2 3",
		Moves: []string{"f1b5"},
	}))
	if !resp.Success {
		t.Fatalf("normalize failed: %+v", resp.Error)
	}
	pos := resp.Data.(core.PositionResponse)
	if !strings.HasPrefix(pos.FEN, "r1bqkbnr/pppp1ppp/2n5/1B2p3/4P3/5N2/PPPP1PPP/RNBQK2R b KQkq") {
		t.Errorf("FEN = %q", pos.FEN)
	}
	if pos.Turn != "b" || !strings.Contains(pos.Board, "| K |") {
		t.Errorf("position = %+v", pos)
	}
}

func TestStorageDisabled(t *testing.T) {
	p := newTestProcessor(t, scoring(0), nil, time.Second)
	wantError(t, p.Execute(context.Background(), NewGetAnalysisCommand("x")), core.ErrStorageDisabled)
	wantError(t, p.Execute(context.Background(), NewQueryAnalysesCommand(AnalysisQuery{})), core.ErrStorageDisabled)
}

func TestQueueClosed(t *testing.T) {
	q := NewEngineQueue(1, scoring(0).factory, zerolog.Nop())
	if err := q.Shutdown(5 * time.Second); err != nil {
		t.Fatal(err)
	}
	err := q.Do(context.Background(), func(context.Context, *engine.Session) error { return nil })
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Do after shutdown = %v", err)
	}
}

func TestEngineErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrQueueFull, core.ErrResourceLimit},
		{ErrQueueClosed, core.ErrEngineUnavailable},
		{fmt.Errorf("x: %w", engine.ErrUnavailable), core.ErrEngineUnavailable},
		{context.DeadlineExceeded, core.ErrEngineTimeout},
		{engine.ErrTerminated, core.ErrEngineTerminated},
		{engine.ErrClosed, core.ErrEngineTerminated},
		{engine.ErrProtocol, core.ErrEngineProtocol},
		{errors.New("boom"), core.ErrInternalError},
	}
	for _, tt := range tests {
		if got := engineErrorCode(tt.err); got != tt.want {
			t.Errorf("engineErrorCode(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
