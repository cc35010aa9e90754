package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const (
	readyProbe   = "isready"
	readyAck     = "readyok"
	dumpCommand  = "d"
	fenPrefix    = "Fen:"
	dumpSentinel = "Checkers"
)

// Session speaks UCI to one engine process. Every exported method holds the
// session lock for a whole exchange, so concurrent callers are serialised
// instead of splitting each other's lines.
//
// Reads honour ctx. If a read is abandoned the session is marked out of sync
// and the next call first re-synchronises: it stops any search still running,
// drains up to its bestmove, then runs the readiness barrier.
type Session struct {
	mu    sync.Mutex
	proc  *Process
	lines *LineSource
	log   zerolog.Logger

	depth    uint
	lookback Lookback
	version  string

	ready     bool
	outOfSync bool
	searching bool
	closed    bool

	// unanswered counts "isready" commands whose "readyok" is still unread.
	unanswered int
}

// New starts the engine binary at path and reads its greeting line.
func New(path string, opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	proc, err := StartProcess(path, o.args, o.log)
	if err != nil {
		return nil, err
	}
	return start(proc, o)
}

// NewPipeSession runs a session over existing pipes, e.g. a remote engine or
// a test double. stdin is the engine's input, stdout its output.
func NewPipeSession(stdin io.WriteCloser, stdout io.Reader, opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return start(NewPipeProcess(stdin, stdout, o.log), o)
}

func start(proc *Process, o options) (*Session, error) {
	ctx := context.Background()
	if o.startTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.startTimeout)
		defer cancel()
	}

	first, err := proc.Lines().Next(ctx)
	if err != nil {
		_ = proc.Close(context.Background())
		return nil, fmt.Errorf("%w: no greeting from engine: %w", ErrUnavailable, err)
	}

	s := &Session{
		proc:     proc,
		lines:    proc.Lines(),
		log:      o.log,
		depth:    o.depth,
		lookback: o.lookback,
	}
	if fields := strings.Fields(first); len(fields) > 1 {
		s.version = fields[1]
	}

	s.log.Info().Str("greeting", first).Str("version", s.version).Msg("engine session started")
	return s, nil
}

// Version returns the version token from the engine's greeting line.
func (s *Session) Version() (string, bool) {
	return s.version, s.version != ""
}

// Ready reports whether the last command sent was an acknowledged readiness probe.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Pid returns the engine's process id, or 0 when running over pipes.
func (s *Session) Pid() int {
	return s.proc.Pid()
}

// EnsureReady sends "isready" and discards output until "readyok".
func (s *Session) EnsureReady(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.prepare(ctx); err != nil {
		return err
	}
	return s.ensureReady(ctx)
}

// NewGame tells the engine the next position belongs to a different game.
func (s *Session) NewGame(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.prepare(ctx); err != nil {
		return err
	}
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	return s.send("ucinewgame")
}

// FEN returns the engine's current position.
func (s *Session) FEN(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.prepare(ctx); err != nil {
		return "", err
	}
	return s.fen(ctx)
}

// BoardDisplay returns the engine's own text rendering of the board: the
// non-empty lines of its dump that precede the FEN line.
func (s *Session) BoardDisplay(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.prepare(ctx); err != nil {
		return "", err
	}
	if err := s.send(dumpCommand); err != nil {
		return "", err
	}

	var board []string
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return "", err
		}
		if firstField(line) == fenPrefix {
			break
		}
		if strings.Contains(line, dumpSentinel) {
			return "", protocolErrorf("board display", line, "dump ended without a Fen line")
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		board = append(board, line)
	}

	if err := s.drainDump(ctx); err != nil {
		return "", err
	}
	return strings.Join(board, "\n"), nil
}

// Close sends "quit" and shuts the process down. Later calls return nil.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	_ = s.proc.Write("quit") // Best-effort: the engine may already be gone.
	err := s.proc.Close(ctx)
	s.log.Info().Err(err).Msg("engine session closed")
	return err
}

// prepare rejects closed sessions and re-synchronises after an abandoned read.
func (s *Session) prepare(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if !s.outOfSync {
		return nil
	}

	s.log.Debug().Bool("searching", s.searching).Msg("resynchronising engine output")
	if s.searching {
		if err := s.send("stop"); err != nil {
			return err
		}
		for {
			line, err := s.readLine(ctx)
			if err != nil {
				return err
			}
			if firstField(line) == terminalToken {
				break
			}
		}
		s.searching = false
	}

	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	s.outOfSync = false
	return nil
}

// ensureReady is the readiness barrier. Each "isready" is answered by exactly
// one "readyok", so acks owed to abandoned barriers are consumed before the
// barrier counts as passed.
func (s *Session) ensureReady(ctx context.Context) error {
	if err := s.send(readyProbe); err != nil {
		return err
	}
	s.unanswered++
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if line != readyAck {
			continue
		}
		s.unanswered--
		if s.unanswered == 0 {
			s.ready = true
			return nil
		}
	}
}

// fen sends "d", takes the payload of the "Fen:" line, then drains the rest
// of the dump so none of it is mistaken for the next reply.
func (s *Session) fen(ctx context.Context) (string, error) {
	if err := s.send(dumpCommand); err != nil {
		return "", err
	}

	var payload string
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return "", err
		}
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == fenPrefix {
			payload = strings.Join(fields[1:], " ")
			break
		}
		if strings.Contains(line, dumpSentinel) {
			return "", protocolErrorf("fetch fen", line, "dump ended without a Fen line")
		}
	}

	if err := s.drainDump(ctx); err != nil {
		return "", err
	}
	if payload == "" {
		return "", protocolErrorf("fetch fen", "", "empty Fen line")
	}
	return payload, nil
}

func (s *Session) drainDump(ctx context.Context) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, dumpSentinel) {
			return nil
		}
	}
}

func (s *Session) send(command string) error {
	if err := s.proc.Write(command); err != nil {
		return err
	}
	if command != readyProbe {
		s.ready = false
	}
	return nil
}

// readLine pulls the next line. A cancelled read leaves the exchange
// unfinished, so the session is flagged for resynchronisation.
func (s *Session) readLine(ctx context.Context) (string, error) {
	line, err := s.lines.Next(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.outOfSync = true
		}
		return "", err
	}
	return line, nil
}
