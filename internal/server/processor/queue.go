package processor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"stockfish/internal/engine"
)

const queueSize = 100

var (
	ErrQueueFull   = errors.New("engine queue is full")
	ErrQueueClosed = errors.New("engine queue is shutting down")
)

// SessionFactory starts a fresh engine session for a worker.
type SessionFactory func() (*engine.Session, error)

// Job runs against a worker's session. The session is owned by the worker
// for the duration of the call.
type Job func(ctx context.Context, s *engine.Session) error

type task struct {
	ctx  context.Context
	job  Job
	done chan error
}

// EngineQueue runs jobs on a fixed pool of workers, each owning one engine
// session.
type EngineQueue struct {
	tasks   chan task
	workers int
	factory SessionFactory
	log     zerolog.Logger
	version atomic.Value // string
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewEngineQueue creates a queue with specified worker count
func NewEngineQueue(workerCount int, factory SessionFactory, log zerolog.Logger) *EngineQueue {
	if workerCount < 1 {
		workerCount = 2
	}

	ctx, cancel := context.WithCancel(context.Background())

	q := &EngineQueue{
		tasks:   make(chan task, queueSize),
		workers: workerCount,
		factory: factory,
		log:     log.With().Str("component", "queue").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
	q.version.Store("")

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	return q
}

// Workers returns the pool size.
func (q *EngineQueue) Workers() int {
	return q.workers
}

// Version returns the engine version reported by the most recently started
// session, or "" before any worker has one.
func (q *EngineQueue) Version() string {
	return q.version.Load().(string)
}

// Do runs job on the next free worker and waits for it. If ctx ends first,
// Do returns ctx.Err(); the worker sees the same cancelled ctx.
func (q *EngineQueue) Do(ctx context.Context, job Job) error {
	t := task{ctx: ctx, job: job, done: make(chan error, 1)}

	select {
	case <-q.ctx.Done():
		return ErrQueueClosed
	default:
	}

	select {
	case q.tasks <- t:
	case <-q.ctx.Done():
		return ErrQueueClosed
	default:
		return ErrQueueFull
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *EngineQueue) worker(id int) {
	defer q.wg.Done()
	log := q.log.With().Int("worker", id).Logger()

	var s *engine.Session
	defer func() {
		if s != nil {
			q.closeSession(s, log)
		}
	}()

	s = q.startSession(log)

	for {
		select {
		case t := <-q.tasks:
			if err := t.ctx.Err(); err != nil {
				t.done <- err
				continue
			}
			if s == nil {
				if s = q.startSession(log); s == nil {
					t.done <- engine.ErrUnavailable
					continue
				}
			}

			err := t.job(t.ctx, s)
			if errors.Is(err, engine.ErrTerminated) || errors.Is(err, engine.ErrClosed) {
				log.Warn().Err(err).Msg("engine session lost, restarting on next job")
				q.closeSession(s, log)
				s = nil
			}
			t.done <- err

		case <-q.ctx.Done():
			q.rejectPending()
			return
		}
	}
}

func (q *EngineQueue) startSession(log zerolog.Logger) *engine.Session {
	s, err := q.factory()
	if err != nil {
		log.Error().Err(err).Msg("failed to start engine session")
		return nil
	}
	if v, ok := s.Version(); ok {
		q.version.Store(v)
	}
	log.Debug().Int("pid", s.Pid()).Msg("engine session ready")
	return s
}

func (q *EngineQueue) closeSession(s *engine.Session, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil && !errors.Is(err, engine.ErrClosed) {
		log.Debug().Err(err).Msg("engine session close")
	}
}

// rejectPending fails tasks still buffered at shutdown.
func (q *EngineQueue) rejectPending() {
	for {
		select {
		case t := <-q.tasks:
			t.done <- ErrQueueClosed
		default:
			return
		}
	}
}

// Shutdown stops the workers and closes their sessions. The task channel is
// never closed, so a racing Do gets ErrQueueClosed rather than a panic.
func (q *EngineQueue) Shutdown(timeout time.Duration) error {
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.rejectPending()
		return nil
	case <-time.After(timeout):
		return errors.New("shutdown timeout exceeded")
	}
}
