package core

import (
	"time"

	"stockfish/internal/engine"
)

// Request types

type AnalysisRequest struct {
	FEN         string   `json:"fen,omitempty" validate:"omitempty,max=100,fen"`
	Moves       []string `json:"moves,omitempty" validate:"max=600,dive,ucimove"`
	Mode        string   `json:"mode,omitempty" validate:"omitempty,oneof=depth time clock"`
	Depth       uint     `json:"depth,omitempty" validate:"omitempty,min=1,max=60"`
	MoveTimeMs  int      `json:"moveTimeMs,omitempty" validate:"omitempty,min=10,max=600000"`
	WhiteTimeMs int      `json:"whiteTimeMs,omitempty" validate:"omitempty,min=1,max=86400000"`
	BlackTimeMs int      `json:"blackTimeMs,omitempty" validate:"omitempty,min=1,max=86400000"`
}

type PositionRequest struct {
	FEN   string   `json:"fen,omitempty" validate:"omitempty,max=100,fen"`
	Moves []string `json:"moves,omitempty" validate:"max=600,dive,ucimove"`
}

// Response types

type AnalysisResponse struct {
	ID            string            `json:"id"`
	FEN           string            `json:"fen"` // position that was searched
	StartFEN      string            `json:"startFen"`
	Moves         []string          `json:"moves,omitempty"`
	Mode          string            `json:"mode"`
	Evaluation    engine.Evaluation `json:"evaluation"`
	BestMove      string            `json:"bestMove"`
	Ponder        string            `json:"ponder,omitempty"`
	Depth         uint              `json:"depth,omitempty"`
	Display       string            `json:"display"` // e.g. "cp 25_e2e4"
	EngineVersion string            `json:"engineVersion,omitempty"`
	ElapsedMs     int64             `json:"elapsedMs"`
	CreatedAt     time.Time         `json:"createdAt"`
}

type AnalysisListResponse struct {
	Analyses []AnalysisResponse `json:"analyses"`
	Count    int                `json:"count"`
}

type PositionResponse struct {
	FEN   string `json:"fen"`
	Turn  string `json:"turn"`  // "w" or "b"
	Board string `json:"board"` // engine's own board display
}

type HealthResponse struct {
	Status        string `json:"status"`
	Time          int64  `json:"time"`
	EngineVersion string `json:"engineVersion,omitempty"`
	Workers       int    `json:"workers"`
	Storage       string `json:"storage"` // "ok", "degraded" or "disabled"
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}
