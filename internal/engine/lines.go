package engine

import (
	"context"
	"fmt"
	"sync"
)

// lineBuffer is an unbounded FIFO shared by one LineSink and one LineSource.
type lineBuffer struct {
	mu     sync.Mutex
	queue  []string
	closed bool
	err    error
	notify chan struct{} // capacity 1, poked on every Send and on Close
}

// LineSink is the producer end of a line channel. Only the process reader
// goroutine holds it.
type LineSink struct {
	b *lineBuffer
}

// LineSource is the consumer end of a line channel. It must have a single
// consumer; the Session serialises its own use.
type LineSource struct {
	b *lineBuffer
}

// NewLineChannel returns the two ends of an unbounded, ordered line channel.
func NewLineChannel() (LineSink, *LineSource) {
	b := &lineBuffer{notify: make(chan struct{}, 1)}
	return LineSink{b: b}, &LineSource{b: b}
}

// Send appends a line. It never blocks and never drops; lines sent after
// Close are discarded.
func (s LineSink) Send(line string) {
	s.b.mu.Lock()
	if !s.b.closed {
		s.b.queue = append(s.b.queue, line)
	}
	s.b.mu.Unlock()
	s.b.poke()
}

// Close marks end of stream. err is the reader's failure, nil on clean EOF.
// Only the first call has an effect.
func (s LineSink) Close(err error) {
	s.b.mu.Lock()
	if !s.b.closed {
		s.b.closed = true
		s.b.err = err
	}
	s.b.mu.Unlock()
	s.b.poke()
}

func (b *lineBuffer) poke() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Next returns the oldest undelivered line, blocking until one arrives.
// Lines queued before the stream closed are still delivered; after that Next
// returns an error wrapping ErrTerminated. If ctx ends first, ctx.Err() is
// returned and no line is consumed.
func (s *LineSource) Next(ctx context.Context) (string, error) {
	for {
		s.b.mu.Lock()
		if len(s.b.queue) > 0 {
			line := s.b.queue[0]
			s.b.queue[0] = ""
			s.b.queue = s.b.queue[1:]
			s.b.mu.Unlock()
			return line, nil
		}
		if s.b.closed {
			err := s.b.err
			s.b.mu.Unlock()
			if err != nil {
				return "", fmt.Errorf("%w: %w", ErrTerminated, err)
			}
			return "", ErrTerminated
		}
		s.b.mu.Unlock()

		select {
		case <-s.b.notify:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Pending returns the number of lines waiting to be consumed.
func (s *LineSource) Pending() int {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	return len(s.b.queue)
}

// Closed reports whether the producer has signalled end of stream.
func (s *LineSource) Closed() bool {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	return s.b.closed
}
