// Package processor executes analysis commands against a pool of engine
// sessions and records the results.
package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stockfish/internal/engine"
	"stockfish/internal/fen"
	"stockfish/internal/server/core"
	"stockfish/internal/server/storage"
)

const (
	errInvalidFEN  = core.ErrInvalidFEN
	errInvalidMove = core.ErrInvalidMove
)

// requestError carries an error code for failures caused by the request
// itself.
type requestError struct {
	code string
	err  error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

// Processor handles command execution and coordinates between the engine
// queue and storage.
type Processor struct {
	queue   *EngineQueue
	store   *storage.Store // nil when persistence is disabled
	timeout time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

// New creates a processor. store may be nil.
func New(queue *EngineQueue, store *storage.Store, timeout time.Duration, log zerolog.Logger) *Processor {
	return &Processor{
		queue:   queue,
		store:   store,
		timeout: timeout,
		log:     log.With().Str("component", "processor").Logger(),
		now:     time.Now,
	}
}

func (p *Processor) Execute(ctx context.Context, cmd Command) ProcessorResponse {
	switch cmd.Type {
	case CmdAnalyze:
		return p.handleAnalyze(ctx, cmd)
	case CmdGetAnalysis:
		return p.handleGetAnalysis(cmd)
	case CmdQueryAnalyses:
		return p.handleQueryAnalyses(cmd)
	case CmdNormalizePosition:
		return p.handleNormalizePosition(ctx, cmd)
	default:
		return p.errorResponse("unknown command", core.ErrInvalidRequest)
	}
}

func (p *Processor) handleAnalyze(ctx context.Context, cmd Command) ProcessorResponse {
	args, ok := cmd.Args.(core.AnalysisRequest)
	if !ok {
		return p.errorResponse("invalid arguments", core.ErrInvalidRequest)
	}

	mode, err := core.ParseMode(args.Mode)
	if err != nil {
		return p.errorResponse(err.Error(), core.ErrInvalidRequest)
	}
	switch {
	case mode == core.ModeTime && args.MoveTimeMs <= 0:
		return p.errorResponse("time mode requires moveTimeMs", core.ErrInvalidRequest)
	case mode == core.ModeClock && args.WhiteTimeMs <= 0 && args.BlackTimeMs <= 0:
		return p.errorResponse("clock mode requires whiteTimeMs or blackTimeMs", core.ErrInvalidRequest)
	}

	start := args.FEN
	if start == "" {
		start = fen.StartingFEN
	}
	if err := replay(start, args.Moves); err != nil {
		return p.requestErrorResponse(err)
	}

	// A fixed-time search gets its budget on top of the usual allowance.
	timeout := p.timeout
	if mode == core.ModeTime {
		timeout += time.Duration(args.MoveTimeMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		position string
		out      engine.EngineOutput
	)
	began := p.now()
	err = p.queue.Do(ctx, func(ctx context.Context, s *engine.Session) error {
		if err := s.NewGame(ctx); err != nil {
			return err
		}
		if err := s.SetPosition(ctx, start, args.Moves...); err != nil {
			return err
		}
		var err error
		if position, err = s.FEN(ctx); err != nil {
			return err
		}

		switch mode {
		case core.ModeTime:
			out, err = s.GoFor(ctx, time.Duration(args.MoveTimeMs)*time.Millisecond)
		case core.ModeClock:
			out, err = s.GoClock(ctx, engine.Clock{
				White: time.Duration(args.WhiteTimeMs) * time.Millisecond,
				Black: time.Duration(args.BlackTimeMs) * time.Millisecond,
			})
		default:
			if args.Depth > 0 {
				out, err = s.GoDepth(ctx, args.Depth)
			} else {
				out, err = s.Go(ctx)
			}
		}
		return err
	})
	if err != nil {
		p.log.Warn().Err(err).Str("fen", start).Str("mode", mode.String()).Msg("analysis failed")
		return p.engineErrorResponse(err)
	}

	resp := core.AnalysisResponse{
		ID:            uuid.New().String(),
		FEN:           position,
		StartFEN:      start,
		Moves:         args.Moves,
		Mode:          mode.String(),
		Evaluation:    out.Evaluation,
		BestMove:      out.BestMove,
		Ponder:        out.Ponder,
		Depth:         out.Depth,
		Display:       out.String(),
		EngineVersion: p.queue.Version(),
		ElapsedMs:     p.now().Sub(began).Milliseconds(),
		CreatedAt:     began.UTC(),
	}

	if p.store != nil {
		p.store.RecordAnalysis(toRecord(resp))
	}

	p.log.Info().
		Str("id", resp.ID).
		Str("user", cmd.UserID).
		Str("result", resp.Display).
		Int64("elapsed_ms", resp.ElapsedMs).
		Msg("analysis complete")

	return ProcessorResponse{
		Success: true,
		Data:    resp,
	}
}

func (p *Processor) handleNormalizePosition(ctx context.Context, cmd Command) ProcessorResponse {
	args, ok := cmd.Args.(core.PositionRequest)
	if !ok {
		return p.errorResponse("invalid arguments", core.ErrInvalidRequest)
	}

	start := args.FEN
	if start == "" {
		start = fen.StartingFEN
	}
	if err := replay(start, args.Moves); err != nil {
		return p.requestErrorResponse(err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var resp core.PositionResponse
	err := p.queue.Do(ctx, func(ctx context.Context, s *engine.Session) error {
		if err := s.NewGame(ctx); err != nil {
			return err
		}
		if err := s.SetPosition(ctx, start, args.Moves...); err != nil {
			return err
		}
		position, err := s.FEN(ctx)
		if err != nil {
			return err
		}
		board, err := s.BoardDisplay(ctx)
		if err != nil {
			return err
		}
		resp = core.PositionResponse{
			FEN:   position,
			Turn:  fen.SideToMove(position).String(),
			Board: board,
		}
		return nil
	})
	if err != nil {
		return p.engineErrorResponse(err)
	}

	return ProcessorResponse{
		Success: true,
		Data:    resp,
	}
}

func (p *Processor) handleGetAnalysis(cmd Command) ProcessorResponse {
	if p.store == nil {
		return p.errorResponse("analysis history is disabled", core.ErrStorageDisabled)
	}

	rec, err := p.store.GetAnalysis(cmd.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return p.errorResponse("analysis not found", core.ErrAnalysisNotFound)
	}
	if err != nil {
		p.log.Error().Err(err).Str("id", cmd.ID).Msg("analysis lookup failed")
		return p.errorResponse("failed to load analysis", core.ErrInternalError)
	}

	resp, err := fromRecord(rec)
	if err != nil {
		return p.errorResponse(err.Error(), core.ErrInternalError)
	}
	return ProcessorResponse{
		Success: true,
		Data:    resp,
	}
}

func (p *Processor) handleQueryAnalyses(cmd Command) ProcessorResponse {
	if p.store == nil {
		return p.errorResponse("analysis history is disabled", core.ErrStorageDisabled)
	}
	q, ok := cmd.Args.(AnalysisQuery)
	if !ok {
		return p.errorResponse("invalid arguments", core.ErrInvalidRequest)
	}

	records, err := p.store.QueryAnalyses(q.FEN, q.Limit)
	if err != nil {
		p.log.Error().Err(err).Msg("analysis query failed")
		return p.errorResponse("failed to query analyses", core.ErrInternalError)
	}

	list := core.AnalysisListResponse{Analyses: make([]core.AnalysisResponse, 0, len(records))}
	for _, rec := range records {
		resp, err := fromRecord(rec)
		if err != nil {
			p.log.Warn().Err(err).Str("id", rec.AnalysisID).Msg("skipping unreadable analysis")
			continue
		}
		list.Analyses = append(list.Analyses, resp)
	}
	list.Count = len(list.Analyses)

	return ProcessorResponse{
		Success: true,
		Data:    list,
	}
}

// Health reports queue and storage state.
func (p *Processor) Health() core.HealthResponse {
	h := core.HealthResponse{
		Status:        "healthy",
		Time:          p.now().Unix(),
		EngineVersion: p.queue.Version(),
		Workers:       p.queue.Workers(),
		Storage:       "disabled",
	}
	if p.store != nil {
		h.Storage = "ok"
		if !p.store.IsHealthy() {
			h.Storage = "degraded"
			h.Status = "degraded"
		}
	}
	return h
}

// Close cleans up resources
func (p *Processor) Close() error {
	return p.queue.Shutdown(5 * time.Second)
}

// errorResponse creates error response
func (p *Processor) errorResponse(message, code string) ProcessorResponse {
	return ProcessorResponse{
		Success: false,
		Error: &core.ErrorResponse{
			Error: message,
			Code:  code,
		},
	}
}

func (p *Processor) requestErrorResponse(err error) ProcessorResponse {
	var re *requestError
	if errors.As(err, &re) {
		return p.errorResponse(re.Error(), re.code)
	}
	return p.errorResponse(err.Error(), core.ErrInvalidRequest)
}

// engineErrorResponse maps queue and session failures to error codes.
func (p *Processor) engineErrorResponse(err error) ProcessorResponse {
	return p.errorResponse(err.Error(), engineErrorCode(err))
}

func engineErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrQueueFull):
		return core.ErrResourceLimit
	case errors.Is(err, ErrQueueClosed), errors.Is(err, engine.ErrUnavailable):
		return core.ErrEngineUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return core.ErrEngineTimeout
	case errors.Is(err, engine.ErrTerminated), errors.Is(err, engine.ErrClosed):
		return core.ErrEngineTerminated
	case errors.Is(err, engine.ErrProtocol), errors.Is(err, engine.ErrNoScore):
		return core.ErrEngineProtocol
	default:
		return core.ErrInternalError
	}
}

func toRecord(a core.AnalysisResponse) storage.AnalysisRecord {
	return storage.AnalysisRecord{
		AnalysisID:    a.ID,
		StartFEN:      a.StartFEN,
		Moves:         strings.Join(a.Moves, " "),
		PositionFEN:   a.FEN,
		Mode:          a.Mode,
		EvalKind:      a.Evaluation.Kind.String(),
		EvalValue:     a.Evaluation.Value,
		BestMove:      a.BestMove,
		Ponder:        a.Ponder,
		Depth:         int(a.Depth),
		ElapsedMs:     a.ElapsedMs,
		EngineVersion: a.EngineVersion,
		CreatedAtUTC:  a.CreatedAt,
	}
}

func fromRecord(r storage.AnalysisRecord) (core.AnalysisResponse, error) {
	kind, err := engine.ParseEvalKind(r.EvalKind)
	if err != nil {
		return core.AnalysisResponse{}, fmt.Errorf("analysis %s: %w", r.AnalysisID, err)
	}
	out := engine.EngineOutput{
		Evaluation: engine.Evaluation{Kind: kind, Value: r.EvalValue},
		BestMove:   r.BestMove,
		Ponder:     r.Ponder,
		Depth:      uint(r.Depth),
	}
	return core.AnalysisResponse{
		ID:            r.AnalysisID,
		FEN:           r.PositionFEN,
		StartFEN:      r.StartFEN,
		Moves:         strings.Fields(r.Moves),
		Mode:          r.Mode,
		Evaluation:    out.Evaluation,
		BestMove:      out.BestMove,
		Ponder:        out.Ponder,
		Depth:         out.Depth,
		Display:       out.String(),
		EngineVersion: r.EngineVersion,
		ElapsedMs:     r.ElapsedMs,
		CreatedAt:     r.CreatedAtUTC,
	}, nil
}
