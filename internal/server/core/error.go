package core

// Error codes
const (
	ErrAnalysisNotFound  = "ANALYSIS_NOT_FOUND"
	ErrInvalidMove       = "INVALID_MOVE"
	ErrRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrInvalidContent    = "INVALID_CONTENT_TYPE"
	ErrInvalidRequest    = "INVALID_REQUEST"
	ErrInvalidFEN        = "INVALID_FEN"
	ErrInternalError     = "INTERNAL_ERROR"
	ErrResourceLimit     = "RESOURCE_LIMIT"
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrStorageDisabled   = "STORAGE_DISABLED"
	ErrNotFound          = "NOT_FOUND"

	ErrEngineUnavailable = "ENGINE_UNAVAILABLE"
	ErrEngineTerminated  = "ENGINE_TERMINATED"
	ErrEngineProtocol    = "ENGINE_PROTOCOL"
	ErrEngineTimeout     = "ENGINE_TIMEOUT"
)
