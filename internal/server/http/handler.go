// Package http exposes the analysis processor over a JSON API.
package http

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"stockfish/internal/server/core"
	"stockfish/internal/server/processor"
)

const (
	rateLimitRate = 10 // req/sec
	defaultLimit  = 20
	maxLimit      = 100
)

// Config holds the HTTP layer settings.
type Config struct {
	JWTSecret []byte // empty disables authentication
	// AllowAnonymous serves requests without a token. A valid token still
	// attributes the request to its subject.
	AllowAnonymous bool
	DevMode        bool
	Log            zerolog.Logger
}

// HTTPHandler handles HTTP requests and routes them to the processor
type HTTPHandler struct {
	proc *processor.Processor
}

func NewHTTPHandler(proc *processor.Processor) *HTTPHandler {
	return &HTTPHandler{proc: proc}
}

func NewFiberApp(proc *processor.Processor, cfg Config) *fiber.App {
	h := NewHTTPHandler(proc)

	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          11 * time.Minute, // time-mode searches may run long
		IdleTimeout:           60 * time.Second,
		DisableStartupMessage: true,
	})

	// Global middleware (order matters)
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:        "${time} ${status} ${method} ${path} ${latency}\n",
		Output:        cfg.Log,
		DisableColors: true,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check (no rate limit)
	app.Get("/health", h.Health)

	api := app.Group("/api/v1")

	maxReq := rateLimitRate
	if cfg.DevMode {
		maxReq = rateLimitRate * 2
	}
	api.Use(limiter.New(limiter.Config{
		Max:        maxReq,
		Expiration: 1 * time.Second,
		KeyGenerator: func(c *fiber.Ctx) string {
			if xff := c.Get("X-Forwarded-For"); xff != "" {
				if idx := strings.Index(xff, ","); idx != -1 {
					return strings.TrimSpace(xff[:idx])
				}
				return xff
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(core.ErrorResponse{
				Error:   "rate limit exceeded",
				Code:    core.ErrRateLimitExceeded,
				Details: fmt.Sprintf("%d requests per second allowed", maxReq),
			})
		},
	}))

	switch {
	case len(cfg.JWTSecret) == 0:
	case cfg.AllowAnonymous:
		api.Use(OptionalAuth(HS256Validator(cfg.JWTSecret)))
	default:
		api.Use(AuthRequired(HS256Validator(cfg.JWTSecret)))
	}

	api.Use(contentTypeValidator)
	api.Use(validationMiddleware)

	api.Post("/analyses", h.Analyze)
	api.Get("/analyses", h.ListAnalyses)
	api.Get("/analyses/:analysisId", h.GetAnalysis)
	api.Post("/positions", h.NormalizePosition)

	return app
}

// contentTypeValidator ensures POST requests have application/json
func contentTypeValidator(c *fiber.Ctx) error {
	if c.Method() == fiber.MethodPost {
		contentType := c.Get("Content-Type")
		if mediaType, _, _ := strings.Cut(contentType, ";"); contentType != "" && strings.TrimSpace(mediaType) != fiber.MIMEApplicationJSON {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(core.ErrorResponse{
				Error:   "unsupported media type",
				Code:    core.ErrInvalidContent,
				Details: "Content-Type must be application/json",
			})
		}
	}
	return c.Next()
}

// customErrorHandler provides consistent error responses
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	response := core.ErrorResponse{
		Error: "internal server error",
		Code:  core.ErrInternalError,
	}

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		response.Error = e.Message

		switch code {
		case fiber.StatusNotFound:
			response.Code = core.ErrNotFound
		case fiber.StatusBadRequest:
			response.Code = core.ErrInvalidRequest
		case fiber.StatusTooManyRequests:
			response.Code = core.ErrRateLimitExceeded
		}
	}

	return c.Status(code).JSON(response)
}

// statusFor maps processor error codes to HTTP status.
func statusFor(code string) int {
	switch code {
	case core.ErrInvalidRequest, core.ErrInvalidFEN, core.ErrInvalidMove:
		return fiber.StatusBadRequest
	case core.ErrUnauthorized:
		return fiber.StatusUnauthorized
	case core.ErrAnalysisNotFound, core.ErrNotFound:
		return fiber.StatusNotFound
	case core.ErrStorageDisabled:
		return fiber.StatusNotImplemented
	case core.ErrEngineProtocol:
		return fiber.StatusBadGateway
	case core.ErrResourceLimit, core.ErrEngineUnavailable, core.ErrEngineTerminated:
		return fiber.StatusServiceUnavailable
	case core.ErrEngineTimeout:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func respond(c *fiber.Ctx, resp processor.ProcessorResponse, okStatus int) error {
	if !resp.Success {
		return c.Status(statusFor(resp.Error.Code)).JSON(resp.Error)
	}
	return c.Status(okStatus).JSON(resp.Data)
}

func bypassDetected(c *fiber.Ctx) error {
	return c.Status(fiber.StatusInternalServerError).JSON(core.ErrorResponse{
		Error: "validation bypass detected",
		Code:  core.ErrInternalError,
	})
}

// Health check endpoint with engine and storage status
func (h *HTTPHandler) Health(c *fiber.Ctx) error {
	return c.JSON(h.proc.Health())
}

// Analyze runs one search and returns the evaluation and best move.
func (h *HTTPHandler) Analyze(c *fiber.Ctx) error {
	req, ok := validatedBody[core.AnalysisRequest](c)
	if !ok {
		return bypassDetected(c)
	}

	userID, _ := c.Locals("userID").(string)
	resp := h.proc.Execute(c.UserContext(), processor.NewAnalyzeCommand(userID, req))
	return respond(c, resp, fiber.StatusCreated)
}

// NormalizePosition returns the engine's FEN and board for a position.
func (h *HTTPHandler) NormalizePosition(c *fiber.Ctx) error {
	req, ok := validatedBody[core.PositionRequest](c)
	if !ok {
		return bypassDetected(c)
	}

	resp := h.proc.Execute(c.UserContext(), processor.NewNormalizePositionCommand(req))
	return respond(c, resp, fiber.StatusOK)
}

// GetAnalysis retrieves one stored analysis
func (h *HTTPHandler) GetAnalysis(c *fiber.Ctx) error {
	id := c.Params("analysisId")

	if !isValidUUID(id) {
		return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
			Error:   "invalid analysis ID format",
			Code:    core.ErrInvalidRequest,
			Details: "analysis ID must be a valid UUID",
		})
	}

	resp := h.proc.Execute(c.UserContext(), processor.NewGetAnalysisCommand(id))
	return respond(c, resp, fiber.StatusOK)
}

// ListAnalyses returns stored analyses, newest first, optionally for one
// position (?fen=...&limit=n).
func (h *HTTPHandler) ListAnalyses(c *fiber.Ctx) error {
	position := c.Query("fen")
	if position != "" && !isFENSafe(position) {
		return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
			Error: "invalid fen query parameter",
			Code:  core.ErrInvalidFEN,
		})
	}

	limit := defaultLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxLimit {
			return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
				Error:   "invalid limit",
				Code:    core.ErrInvalidRequest,
				Details: fmt.Sprintf("limit must be between 1 and %d", maxLimit),
			})
		}
		limit = n
	}

	resp := h.proc.Execute(c.UserContext(), processor.NewQueryAnalysesCommand(processor.AnalysisQuery{
		FEN:   position,
		Limit: limit,
	}))
	return respond(c, resp, fiber.StatusOK)
}
