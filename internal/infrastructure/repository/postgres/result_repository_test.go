package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*ResultRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &ResultRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(schemaLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS qa_results").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendResultInsertsRow(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	created := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO qa_results").
		WithArgs("s-1", 2, "parties", "Who are the parties?", "John Doe.", 0.5, []byte(`["complaint#000000"]`),
			"extraction", "parties", "answered", "", false, created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AppendResult(context.Background(), "s-1", 2, domain.QAResult{
		NodeID:         "parties",
		Question:       "Who are the parties?",
		Answer:         "John Doe.",
		Confidence:     0.5,
		Sources:        []string{"complaint#000000"},
		Mode:           domain.ModeExtraction,
		Category:       "parties",
		AnswerCategory: "answered",
		CreatedAt:      created,
	})
	if err != nil {
		t.Fatalf("AppendResult() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListResultsScansRowsInOrder(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	created := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"node_id", "question", "answer", "confidence", "sources", "mode", "category", "answer_category", "fallback_reason", "follow_up", "created_at",
	}).
		AddRow("has_claim", "Is there a claim?", "Yes.", 1.0, []byte(`["a#000000"]`), "synthesis", "screening", "affirmative", "synthesis timeout", false, created).
		AddRow(nil, "When?", "March.", 0.5, []byte(`[]`), "extraction", nil, "answered", nil, true, created)
	mock.ExpectQuery("SELECT node_id, question, answer").
		WithArgs("s-1").
		WillReturnRows(rows)

	results, err := repo.ListResults(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("ListResults() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].NodeID != "has_claim" || results[0].FallbackReason != "synthesis timeout" || results[0].Mode != domain.ModeSynthesis {
		t.Fatalf("unexpected first result %+v", results[0])
	}
	if !results[1].FollowUp || results[1].NodeID != "" || len(results[1].Sources) != 0 {
		t.Fatalf("unexpected follow-up result %+v", results[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendResultWrapsDriverError(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO qa_results").WillReturnError(errors.New("connection reset"))
	err := repo.AppendResult(context.Background(), "s-1", 0, domain.QAResult{Question: "q"})
	if err == nil {
		t.Fatalf("expected error")
	}
}
