// Package enginetest provides a scripted stand-in for a UCI chess engine.
//
// A Fake speaks enough of the protocol for session tests: the greeting line,
// uci/isready/ucinewgame/setoption, position (startpos or fen, with moves),
// the "d" board dump and go/stop. Positions and moves are tracked with a real
// move generator, so FEN round trips and best moves are legal.
//
// Usage:
//
//	f := &enginetest.Fake{Score: 37}
//	stdin, stdout := f.Start()
//	s, err := engine.NewPipeSession(stdin, stdout)
package enginetest

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/notnil/chess"

	"stockfish/internal/fen"
)

const (
	DefaultGreeting = "Stockfish 16.1 by the Stockfish developers (see AUTHORS file)"
	defaultDepth    = 3
)

// SearchRequest describes one "go" command.
type SearchRequest struct {
	FEN   string
	Args  []string // fields after "go"
	Legal []string // legal moves in UCI notation, generator order
}

// Fake is a scripted engine. Configure the fields before Start.
type Fake struct {
	// Greeting is the first line written. Empty means DefaultGreeting.
	Greeting string
	// Silent suppresses the greeting entirely.
	Silent bool

	// Score is the centipawn score reported from the side to move's view.
	Score int

	// Search replaces the default search output. It returns every line to
	// emit, bestmove included.
	Search func(SearchRequest) []string

	// CrashOn closes the output stream when a command with this first word
	// arrives, without answering it.
	CrashOn string

	// Stall delays the reply to the first command with the given first word.
	// Input is still read while the reply is held back.
	Stall map[string]time.Duration

	mu       sync.Mutex
	commands []string
	options  map[string]string
	game     *chess.Game

	out     *io.PipeWriter
	pending *SearchRequest // a "go" waiting for "stop"
	stalled map[string]bool
	done    chan struct{}
}

// Start launches the fake. The returned writer is the engine's stdin, the
// reader its stdout.
func (f *Fake) Start() (io.WriteCloser, io.Reader) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	f.out = outW
	f.options = make(map[string]string)
	f.game = chess.NewGame()
	f.stalled = make(map[string]bool)
	f.done = make(chan struct{})

	go f.run(inR)
	return inW, outR
}

// Done is closed once the fake has stopped.
func (f *Fake) Done() <-chan struct{} {
	return f.done
}

// Commands returns every line received so far.
func (f *Fake) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

// Received reports how many received lines start with prefix.
func (f *Fake) Received(prefix string) int {
	n := 0
	for _, c := range f.Commands() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Option returns the last value set for an engine option.
func (f *Fake) Option(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.options[name]
	return v, ok
}

// FEN returns the fake's current position.
func (f *Fake) FEN() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.game.Position().String()
}

func (f *Fake) run(in *io.PipeReader) {
	defer close(f.done)
	defer f.out.Close()
	defer in.Close()

	if !f.Silent {
		greeting := f.Greeting
		if greeting == "" {
			greeting = DefaultGreeting
		}
		if !f.emit(greeting) {
			return
		}
	}

	for line := range f.read(in) {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if f.CrashOn != "" && fields[0] == f.CrashOn {
			return
		}
		if d, ok := f.Stall[fields[0]]; ok && !f.stalled[fields[0]] {
			f.stalled[fields[0]] = true
			time.Sleep(d)
		}
		if !f.handle(fields) {
			return
		}
	}
}

// read records and queues input lines so writers never wait on a slow reply.
func (f *Fake) read(in io.Reader) <-chan string {
	queue := make(chan string, 1024)
	go func() {
		defer close(queue)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			f.mu.Lock()
			f.commands = append(f.commands, line)
			f.mu.Unlock()

			select {
			case queue <- line:
			case <-f.done:
				return
			}
		}
	}()
	return queue
}

// handle answers one command and reports whether to keep running.
func (f *Fake) handle(fields []string) bool {
	switch fields[0] {
	case "quit":
		return false
	case "uci":
		return f.emit(
			"id name Stockfish 16.1",
			"id author the Stockfish developers (see AUTHORS file)",
			"",
			"option name Threads type spin default 1 min 1 max 1024",
			"option name Hash type spin default 16 min 1 max 33554432",
			"option name Ponder type check default false",
			"option name Skill Level type spin default 20 min 0 max 20",
			"option name SyzygyPath type string default <empty>",
			"uciok",
		)
	case "isready":
		return f.emit("readyok")
	case "ucinewgame":
		f.mu.Lock()
		f.game = chess.NewGame()
		f.mu.Unlock()
	case "setoption":
		f.setOption(fields[1:])
	case "position":
		f.setPosition(fields[1:])
	case "d":
		return f.emit(f.dump()...)
	case "go":
		req := f.request(fields[1:])
		if len(req.Args) == 0 || req.Args[0] == "infinite" {
			f.pending = &req
			return true
		}
		return f.emit(f.search(req)...)
	case "stop":
		if f.pending == nil {
			return true
		}
		req := *f.pending
		f.pending = nil
		return f.emit(f.search(req)...)
	}
	return true
}

func (f *Fake) emit(lines ...string) bool {
	for _, line := range lines {
		if _, err := io.WriteString(f.out, line+"\n"); err != nil {
			return false
		}
	}
	return true
}

func (f *Fake) setOption(fields []string) {
	// name <words...> value <words...>
	var name, value []string
	target := &name
	for _, w := range fields {
		switch w {
		case "name":
			target = &name
		case "value":
			target = &value
		default:
			*target = append(*target, w)
		}
	}
	f.mu.Lock()
	f.options[strings.Join(name, " ")] = strings.Join(value, " ")
	f.mu.Unlock()
}

// setPosition handles "startpos|fen <fen> [moves ...]". Like a real engine
// it silently stops at the first illegal move.
func (f *Fake) setPosition(fields []string) {
	if len(fields) == 0 {
		return
	}

	var game *chess.Game
	rest := fields[1:]
	switch fields[0] {
	case "startpos":
		game = chess.NewGame()
	case "fen":
		n := 0
		for n < len(rest) && rest[n] != "moves" {
			n++
		}
		opt, err := chess.FEN(strings.Join(rest[:n], " "))
		if err != nil {
			return
		}
		game = chess.NewGame(opt)
		rest = rest[n:]
	default:
		return
	}

	if len(rest) > 0 && rest[0] == "moves" {
		for _, s := range rest[1:] {
			m, err := chess.UCINotation{}.Decode(game.Position(), s)
			if err != nil {
				break
			}
			if err := game.Move(m); err != nil {
				break
			}
		}
	}

	f.mu.Lock()
	f.game = game
	f.mu.Unlock()
}

// dump mimics Stockfish's "d" output.
func (f *Fake) dump() []string {
	current := f.FEN()
	lines := []string{"", " +---+---+---+---+---+---+---+---+"}

	if p, err := fen.Parse(current); err == nil {
		for rank := '8'; rank >= '1'; rank-- {
			var b strings.Builder
			for file := 'a'; file <= 'h'; file++ {
				piece := p.PieceAt(string(file) + string(rank))
				if piece == 0 {
					piece = ' '
				}
				fmt.Fprintf(&b, " | %c", piece)
			}
			fmt.Fprintf(&b, " | %c", rank)
			lines = append(lines, b.String(), " +---+---+---+---+---+---+---+---+")
		}
	}

	return append(lines,
		"   a   b   c   d   e   f   g   h",
		"",
		"Fen: "+current,
		"Key: 8F8F01D4562F59FB",
		"Checkers: ",
	)
}

func (f *Fake) request(args []string) SearchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	pos := f.game.Position()
	req := SearchRequest{FEN: pos.String(), Args: args}
	for _, m := range f.game.ValidMoves() {
		req.Legal = append(req.Legal, chess.UCINotation{}.Encode(pos, m))
	}
	return req
}

func (f *Fake) search(req SearchRequest) []string {
	if f.Search != nil {
		return f.Search(req)
	}
	return DefaultSearch(req, f.Score)
}

// DefaultSearch reports info lines for depths 1..n with a constant score and
// the first legal move. n comes from "depth n", otherwise a small default.
// A side with no legal moves gets "bestmove (none)".
func DefaultSearch(req SearchRequest, score int) []string {
	if len(req.Legal) == 0 {
		return []string{"info depth 0 score mate 0", "bestmove (none)"}
	}

	depth := defaultDepth
	for i := 0; i+1 < len(req.Args); i++ {
		if req.Args[i] == "depth" {
			if n, err := strconv.Atoi(req.Args[i+1]); err == nil && n > 0 {
				depth = n
			}
		}
	}

	best := req.Legal[0]
	ponder := Reply(req.FEN, best)

	lines := []string{"info string NNUE evaluation using nn-b1a57edbea57.nnue enabled"}
	for d := 1; d <= depth; d++ {
		pv := best
		if ponder != "" {
			pv += " " + ponder
		}
		lines = append(lines, fmt.Sprintf(
			"info depth %d seldepth %d multipv 1 score cp %d nodes %d nps 400000 hashfull 0 tbhits 0 time %d pv %s",
			d, d+1, score, 20*d*d, d, pv))
	}

	bestLine := "bestmove " + best
	if ponder != "" {
		bestLine += " ponder " + ponder
	}
	return append(lines, bestLine)
}

// Reply returns the first legal answer to move in position, or "".
func Reply(position, move string) string {
	opt, err := chess.FEN(position)
	if err != nil {
		return ""
	}
	game := chess.NewGame(opt)
	m, err := chess.UCINotation{}.Decode(game.Position(), move)
	if err != nil {
		return ""
	}
	if err := game.Move(m); err != nil {
		return ""
	}
	after := game.Position()
	for _, r := range game.ValidMoves() {
		return chess.UCINotation{}.Encode(after, r)
	}
	return ""
}
