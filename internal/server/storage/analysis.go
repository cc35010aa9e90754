package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

const analysisColumns = `analysis_id, start_fen, moves, position_fen, mode,
	eval_kind, eval_value, best_move, ponder, depth, elapsed_ms,
	engine_version, created_at_utc`

// RecordAnalysis asynchronously stores a finished analysis
func (s *Store) RecordAnalysis(record AnalysisRecord) {
	s.enqueue("analysis", func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO analyses (`+analysisColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.AnalysisID, record.StartFEN, record.Moves, record.PositionFEN, record.Mode,
			record.EvalKind, record.EvalValue, record.BestMove, record.Ponder, record.Depth,
			record.ElapsedMs, record.EngineVersion, record.CreatedAtUTC,
		)
		return err
	})
}

// GetAnalysis loads one analysis by id.
func (s *Store) GetAnalysis(id string) (AnalysisRecord, error) {
	row := s.db.QueryRow(`SELECT `+analysisColumns+` FROM analyses WHERE analysis_id = ?`, id)

	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return AnalysisRecord{}, ErrNotFound
	}
	if err != nil {
		return AnalysisRecord{}, fmt.Errorf("query failed: %w", err)
	}
	return a, nil
}

// QueryAnalyses retrieves analyses, newest first. An empty or "*" position
// matches everything; limit <= 0 means no limit.
func (s *Store) QueryAnalyses(positionFEN string, limit int) ([]AnalysisRecord, error) {
	query := `SELECT ` + analysisColumns + ` FROM analyses WHERE 1=1`

	var args []interface{}

	if positionFEN != "" && positionFEN != "*" {
		query += " AND position_fen = ?"
		args = append(args, positionFEN)
	}

	query += " ORDER BY created_at_utc DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var analyses []AnalysisRecord
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		analyses = append(analyses, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return analyses, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row scanner) (AnalysisRecord, error) {
	var a AnalysisRecord
	err := row.Scan(
		&a.AnalysisID, &a.StartFEN, &a.Moves, &a.PositionFEN, &a.Mode,
		&a.EvalKind, &a.EvalValue, &a.BestMove, &a.Ponder, &a.Depth, &a.ElapsedMs,
		&a.EngineVersion, &a.CreatedAtUTC,
	)
	return a, err
}
