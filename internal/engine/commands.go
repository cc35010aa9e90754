package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"stockfish/internal/fen"
)

// Clock holds per-side remaining time for GoClock. Zero or negative means
// the field is left out of the command.
type Clock struct {
	White time.Duration
	Black time.Duration
}

// SetFEN replaces the engine's position.
func (s *Session) SetFEN(ctx context.Context, position string) error {
	return s.command(ctx, "position fen "+position)
}

// SetPosition replaces the engine's position with position followed by moves.
func (s *Session) SetPosition(ctx context.Context, position string, moves ...string) error {
	return s.command(ctx, positionCommand(position, moves))
}

// ResetPosition returns the engine to the standard starting position.
func (s *Session) ResetPosition(ctx context.Context) error {
	return s.command(ctx, "position startpos")
}

// PlayMove applies one move to the current position.
func (s *Session) PlayMove(ctx context.Context, move string) error {
	return s.PlayMoves(ctx, move)
}

// PlayMoves applies moves to the current position. UCI has no incremental
// move command, so this fetches the current FEN and sets it again with the
// moves appended. Moves are not checked for legality.
func (s *Session) PlayMoves(ctx context.Context, moves ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.prepare(ctx); err != nil {
		return err
	}
	current, err := s.fen(ctx)
	if err != nil {
		return err
	}
	return s.send(positionCommand(current, moves))
}

func positionCommand(position string, moves []string) string {
	cmd := "position fen " + position
	if len(moves) > 0 {
		cmd += " moves " + strings.Join(moves, " ")
	}
	return cmd
}

// Go searches to the session's configured depth. The FEN is read with "d"
// before "go" is sent rather than after "bestmove"; the position cannot change
// in between.
func (s *Session) Go(ctx context.Context) (EngineOutput, error) {
	s.mu.Lock()
	depth := s.depth
	s.mu.Unlock()
	return s.GoDepth(ctx, depth)
}

// GoDepth searches to a fixed depth.
func (s *Session) GoDepth(ctx context.Context, depth uint) (EngineOutput, error) {
	return s.calculate(ctx, "go depth "+strconv.FormatUint(uint64(depth), 10), 0)
}

// GoFor searches for d and then sends "stop". If ctx ends first the search
// is stopped early; the result is still collected and returned.
func (s *Session) GoFor(ctx context.Context, d time.Duration) (EngineOutput, error) {
	if d <= 0 {
		return EngineOutput{}, fmt.Errorf("engine: search duration must be positive, got %s", d)
	}
	return s.calculate(ctx, "go", d)
}

// GoClock searches with the given remaining clock times.
func (s *Session) GoClock(ctx context.Context, clock Clock) (EngineOutput, error) {
	cmd := "go"
	if clock.White > 0 {
		cmd += " wtime " + strconv.FormatInt(clock.White.Milliseconds(), 10)
	}
	if clock.Black > 0 {
		cmd += " btime " + strconv.FormatInt(clock.Black.Milliseconds(), 10)
	}
	return s.calculate(ctx, cmd, 0)
}

// calculate sends goCmd and scans for bestmove. A positive wait sleeps that
// long and then sends "stop".
//
// The position is fetched before the search starts rather than during it:
// the answer is the same, and a fast search cannot emit bestmove in the
// middle of the dump.
func (s *Session) calculate(ctx context.Context, goCmd string, wait time.Duration) (EngineOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.prepare(ctx); err != nil {
		return EngineOutput{}, err
	}

	position, err := s.fen(ctx)
	if err != nil {
		return EngineOutput{}, err
	}
	side := fen.SideToMove(position)

	if err := s.send(goCmd); err != nil {
		return EngineOutput{}, err
	}
	s.searching = true

	readCtx := ctx
	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			readCtx = context.WithoutCancel(ctx)
		}
		if err := s.send("stop"); err != nil {
			return EngineOutput{}, err
		}
	}

	w := scoreWindow{mode: s.lookback}
	for {
		line, err := s.readLine(readCtx)
		if err != nil {
			return EngineOutput{}, err
		}
		if !w.observe(line) {
			continue
		}
		s.searching = false
		out, err := w.extract(line, side)
		if err != nil {
			s.log.Warn().Err(err).Str("fen", position).Msg("unparseable engine output")
			return EngineOutput{}, err
		}
		s.log.Debug().Str("fen", position).Str("cmd", goCmd).Stringer("result", out).Uint("depth", out.Depth).Msg("search finished")
		return out, nil
	}
}

// SetDepth sets the depth used by Go. Zero is ignored.
func (s *Session) SetDepth(depth uint) {
	if depth == 0 {
		return
	}
	s.mu.Lock()
	s.depth = depth
	s.mu.Unlock()
}

// Depth returns the depth used by Go.
func (s *Session) Depth() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.depth
}

// SetLookback changes how the score line is chosen for later searches.
func (s *Session) SetLookback(mode Lookback) {
	s.mu.Lock()
	s.lookback = mode
	s.mu.Unlock()
}

func (s *Session) Lookback() Lookback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookback
}

// SetOption sends a "setoption" command.
func (s *Session) SetOption(ctx context.Context, name, value string) error {
	return s.command(ctx, fmt.Sprintf("setoption name %s value %s", name, value))
}

// SetHash sets the transposition table size in MB.
func (s *Session) SetHash(ctx context.Context, mb uint) error {
	return s.SetOption(ctx, "Hash", strconv.FormatUint(uint64(mb), 10))
}

// SetThreads sets the number of search threads.
func (s *Session) SetThreads(ctx context.Context, n uint) error {
	return s.SetOption(ctx, "Threads", strconv.FormatUint(uint64(n), 10))
}

// SetSkillLevel sets the Stockfish skill level (0-20)
func (s *Session) SetSkillLevel(ctx context.Context, level int) error {
	if level < 0 {
		level = 0
	} else if level > 20 {
		level = 20
	}
	return s.SetOption(ctx, "Skill Level", strconv.Itoa(level))
}

// command sends a command that expects no reply. ctx only bounds the
// resync that runs first when an earlier exchange was abandoned.
func (s *Session) command(ctx context.Context, cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.prepare(ctx); err != nil {
		return err
	}
	return s.send(cmd)
}

// Identity is what the engine reports in answer to "uci".
type Identity struct {
	Name    string
	Author  string
	Options []OptionInfo
}

// OptionInfo describes one "option" line.
type OptionInfo struct {
	Name    string
	Type    string
	Default string
}

// Identify sends "uci" and collects the id and option lines up to "uciok".
func (s *Session) Identify(ctx context.Context) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.prepare(ctx); err != nil {
		return nil, err
	}
	if err := s.send("uci"); err != nil {
		return nil, err
	}

	id := &Identity{}
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return nil, err
		}
		switch {
		case line == "uciok":
			return id, nil
		case strings.HasPrefix(line, "id name "):
			id.Name = strings.TrimPrefix(line, "id name ")
		case strings.HasPrefix(line, "id author "):
			id.Author = strings.TrimPrefix(line, "id author ")
		case strings.HasPrefix(line, "option "):
			id.Options = append(id.Options, parseOptionLine(line))
		}
	}
}

// parseOptionLine reads "option name <words> type <t> [default <words>] ...".
func parseOptionLine(line string) OptionInfo {
	var opt OptionInfo
	var key string
	var value []string

	flush := func() {
		v := strings.Join(value, " ")
		switch key {
		case "name":
			opt.Name = v
		case "type":
			opt.Type = v
		case "default":
			opt.Default = v
		}
		value = value[:0]
	}

	for _, f := range strings.Fields(line)[1:] {
		switch f {
		case "name", "type", "default", "min", "max", "var":
			flush()
			key = f
		default:
			value = append(value, f)
		}
	}
	flush()
	return opt
}
