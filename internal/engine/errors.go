package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors for session operations.
var (
	// ErrUnavailable indicates the engine could not be started: the binary
	// failed to spawn or never produced its first line.
	ErrUnavailable = errors.New("engine: unavailable")

	// ErrTerminated indicates the engine's output stream closed while a
	// caller was still waiting for a line.
	ErrTerminated = errors.New("engine: terminated")

	// ErrProtocol is matched by every *ProtocolError.
	ErrProtocol = errors.New("engine: protocol violation")

	// ErrNoScore indicates the line preceding bestmove carried no score
	// triplet. Engines occasionally do this on very shallow searches, so
	// callers may retry.
	ErrNoScore = errors.New("no score in info line")

	// ErrClosed is returned by operations on a session after Close.
	ErrClosed = errors.New("engine: session closed")
)

// OpError reports an I/O failure talking to the subprocess.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// ProtocolError reports engine output that did not match the expected grammar.
// Line holds the offending line when there is one.
type ProtocolError struct {
	Op   string
	Line string
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Line == "" {
		return fmt.Sprintf("engine: protocol: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("engine: protocol: %s: %v (line %q)", e.Op, e.Err, e.Line)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrProtocol) true for any protocol error.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

func protocolErrorf(op, line, format string, args ...any) *ProtocolError {
	return &ProtocolError{Op: op, Line: line, Err: fmt.Errorf(format, args...)}
}
