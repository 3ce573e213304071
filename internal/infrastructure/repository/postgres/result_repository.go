package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

// schemaLockKey serializes bootstrap DDL across concurrent API starts.
const schemaLockKey = int64(2026101501)

// ResultRepository stores every QAResult a session produced, keyed by
// session and sequence number.
type ResultRepository struct {
	db *sql.DB
}

func NewResultRepository(db *sql.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

func (r *ResultRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS qa_results (
	session_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	node_id TEXT,
	question TEXT NOT NULL,
	answer TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	sources JSONB NOT NULL DEFAULT '[]'::jsonb,
	mode TEXT NOT NULL,
	category TEXT,
	answer_category TEXT,
	fallback_reason TEXT,
	follow_up BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_qa_results_created_at ON qa_results(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ResultRepository) AppendResult(ctx context.Context, sessionID string, seq int, result domain.QAResult) error {
	sources := result.Sources
	if sources == nil {
		sources = []string{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO qa_results (
	session_id, seq, node_id, question, answer, confidence, sources, mode, category, answer_category, fallback_reason, follow_up, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (session_id, seq) DO NOTHING
`,
		sessionID, seq, result.NodeID, result.Question, result.Answer, result.Confidence, sourcesJSON,
		string(result.Mode), result.Category, result.AnswerCategory, result.FallbackReason, result.FollowUp, result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert qa result: %w", err)
	}
	return nil
}

func (r *ResultRepository) ListResults(ctx context.Context, sessionID string) ([]domain.QAResult, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT node_id, question, answer, confidence, sources, mode, category, answer_category, fallback_reason, follow_up, created_at
FROM qa_results
WHERE session_id = $1
ORDER BY seq ASC
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list qa results: %w", err)
	}
	defer rows.Close()

	out := make([]domain.QAResult, 0)
	for rows.Next() {
		var (
			result     domain.QAResult
			sourcesRaw []byte
			mode       string
			nodeID     sql.NullString
			category   sql.NullString
			answerCat  sql.NullString
			fallback   sql.NullString
		)
		if err := rows.Scan(
			&nodeID, &result.Question, &result.Answer, &result.Confidence, &sourcesRaw, &mode,
			&category, &answerCat, &fallback, &result.FollowUp, &result.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan qa result: %w", err)
		}
		if err := json.Unmarshal(sourcesRaw, &result.Sources); err != nil {
			return nil, fmt.Errorf("unmarshal sources: %w", err)
		}
		result.Mode = domain.AnswerMode(mode)
		result.NodeID = nodeID.String
		result.Category = category.String
		result.AnswerCategory = answerCat.String
		result.FallbackReason = fallback.String
		out = append(out, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate qa results: %w", err)
	}
	return out, nil
}
