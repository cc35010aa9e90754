package storage

import "time"

// AnalysisRecord represents a row in the analyses table
type AnalysisRecord struct {
	AnalysisID    string    `db:"analysis_id"`
	StartFEN      string    `db:"start_fen"`
	Moves         string    `db:"moves"` // space separated UCI moves
	PositionFEN   string    `db:"position_fen"`
	Mode          string    `db:"mode"`
	EvalKind      string    `db:"eval_kind"`
	EvalValue     int       `db:"eval_value"`
	BestMove      string    `db:"best_move"`
	Ponder        string    `db:"ponder"`
	Depth         int       `db:"depth"`
	ElapsedMs     int64     `db:"elapsed_ms"`
	EngineVersion string    `db:"engine_version"`
	CreatedAtUTC  time.Time `db:"created_at_utc"`
}

// Schema defines the SQLite database structure
const Schema = `
CREATE TABLE IF NOT EXISTS analyses (
	analysis_id TEXT PRIMARY KEY,
	start_fen TEXT NOT NULL,
	moves TEXT NOT NULL DEFAULT '',
	position_fen TEXT NOT NULL,
	mode TEXT NOT NULL CHECK(mode IN ('depth', 'time', 'clock')),
	eval_kind TEXT NOT NULL CHECK(eval_kind IN ('cp', 'mate')),
	eval_value INTEGER NOT NULL,
	best_move TEXT NOT NULL,
	ponder TEXT NOT NULL DEFAULT '',
	depth INTEGER NOT NULL DEFAULT 0,
	elapsed_ms INTEGER NOT NULL DEFAULT 0,
	engine_version TEXT NOT NULL DEFAULT '',
	created_at_utc DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_analyses_position_fen ON analyses(position_fen);
CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at_utc);
`
