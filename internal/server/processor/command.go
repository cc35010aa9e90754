package processor

import (
	"stockfish/internal/server/core"
)

// CommandType defines the type of command being executed
type CommandType int

const (
	CmdAnalyze CommandType = iota
	CmdGetAnalysis
	CmdQueryAnalyses
	CmdNormalizePosition
)

// Command is a unified structure for all processor operations
type Command struct {
	Type   CommandType
	UserID string // subject of the bearer token, empty when anonymous
	ID     string // analysis id for lookups
	Args   any    // Command-specific arguments
}

// AnalysisQuery filters stored analyses.
type AnalysisQuery struct {
	FEN   string
	Limit int
}

// ProcessorResponse wraps the response with metadata
type ProcessorResponse struct {
	Success bool                `json:"success"`
	Data    any                 `json:"data,omitempty"`
	Error   *core.ErrorResponse `json:"error,omitempty"`
}

func NewAnalyzeCommand(userID string, req core.AnalysisRequest) Command {
	return Command{
		Type:   CmdAnalyze,
		UserID: userID,
		Args:   req,
	}
}

func NewGetAnalysisCommand(id string) Command {
	return Command{
		Type: CmdGetAnalysis,
		ID:   id,
	}
}

func NewQueryAnalysesCommand(q AnalysisQuery) Command {
	return Command{
		Type: CmdQueryAnalyses,
		Args: q,
	}
}

func NewNormalizePositionCommand(req core.PositionRequest) Command {
	return Command{
		Type: CmdNormalizePosition,
		Args: req,
	}
}
