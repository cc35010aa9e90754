package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	maxLineBytes = 1 << 20
	closeGrace   = time.Second
)

// Process owns an engine subprocess (or any pair of pipes speaking the same
// protocol): the write end of its input and one reader goroutine that feeds
// every output line into a line channel.
type Process struct {
	cmd   *exec.Cmd // nil for pipe-backed processes
	stdin io.WriteCloser
	log   zerolog.Logger

	wmu sync.Mutex
	w   *bufio.Writer

	lines *LineSource
	done  chan struct{} // closed when the reader exits and the child is reaped

	waitErr   error
	closeOnce sync.Once
	closeErr  error
}

// StartProcess spawns the engine binary with piped stdin/stdout.
func StartProcess(path string, args []string, log zerolog.Logger) (*Process, error) {
	cmd := exec.Command(path, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %w", ErrUnavailable, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %w", ErrUnavailable, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %w", ErrUnavailable, path, err)
	}

	log.Debug().Str("path", path).Int("pid", cmd.Process.Pid).Msg("engine process started")
	return newProcess(cmd, stdin, stdout, log), nil
}

// NewPipeProcess supervises an engine reachable through arbitrary pipes.
// Closing stdin must eventually make stdout reach EOF.
func NewPipeProcess(stdin io.WriteCloser, stdout io.Reader, log zerolog.Logger) *Process {
	return newProcess(nil, stdin, stdout, log)
}

func newProcess(cmd *exec.Cmd, stdin io.WriteCloser, stdout io.Reader, log zerolog.Logger) *Process {
	sink, source := NewLineChannel()
	p := &Process{
		cmd:   cmd,
		stdin: stdin,
		log:   log,
		w:     bufio.NewWriter(stdin),
		lines: source,
		done:  make(chan struct{}),
	}
	go p.readLoop(stdout, sink)
	return p
}

// readLoop forwards lines until the output stream ends, then reaps the child.
func (p *Process) readLoop(stdout io.Reader, sink LineSink) {
	defer close(p.done)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		p.log.Trace().Str("line", line).Msg("engine >")
		sink.Send(line)
	}

	scanErr := scanner.Err()
	if scanErr != nil {
		scanErr = &OpError{Op: "read", Err: scanErr}
	}
	sink.Close(scanErr)

	if p.cmd != nil {
		p.waitErr = p.cmd.Wait()
	}
	p.log.Debug().AnErr("scan_err", scanErr).AnErr("wait_err", p.waitErr).Msg("engine output closed")
}

// Write sends one command line and flushes it.
func (p *Process) Write(command string) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	p.log.Trace().Str("cmd", command).Msg("engine <")

	if _, err := p.w.WriteString(command); err != nil {
		return &OpError{Op: "write", Err: err}
	}
	if err := p.w.WriteByte('\n'); err != nil {
		return &OpError{Op: "write", Err: err}
	}
	if err := p.w.Flush(); err != nil {
		return &OpError{Op: "write", Err: err}
	}
	return nil
}

// Lines returns the consumer end of the output channel.
func (p *Process) Lines() *LineSource {
	return p.lines
}

// Done is closed once the output stream has ended and the child was reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Pid returns the child's pid, or 0 for pipe-backed processes.
func (p *Process) Pid() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Close closes the engine's input and waits for its output to end, killing
// the child if it outlives the grace period or ctx. Safe to call repeatedly.
func (p *Process) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.wmu.Lock()
		_ = p.stdin.Close() // Best-effort: the child may already be gone.
		p.wmu.Unlock()

		timer := time.NewTimer(closeGrace)
		defer timer.Stop()

		select {
		case <-p.done:
			p.closeErr = p.exitErr()
			return
		case <-timer.C:
		case <-ctx.Done():
		}

		if p.cmd == nil {
			p.closeErr = errors.New("engine: output did not close after stdin was closed")
			return
		}

		p.log.Warn().Int("pid", p.Pid()).Msg("engine did not exit, killing")
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.closeErr = fmt.Errorf("kill engine: %w", err)
		}
		<-p.done
	})
	return p.closeErr
}

// exitErr reports a non-zero exit. Only valid after done is closed.
func (p *Process) exitErr() error {
	var ee *exec.ExitError
	if errors.As(p.waitErr, &ee) && ee.ExitCode() != 0 {
		return fmt.Errorf("engine exited: %w", p.waitErr)
	}
	return nil
}
