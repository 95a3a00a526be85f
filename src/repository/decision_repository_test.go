package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"gextrader/src/model"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	return gdb, mock
}

func TestDecisionRepositoryCreateAndFetch(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&DecisionRepository{}).WithDB(mockDB)

	record := &model.DecisionRecord{
		Symbol:         "US100",
		FinalDecision:  "BUY",
		Confidence:     85.25,
		ConsensusLevel: 0.75,
		OpinionCount:   4,
		Opinions:       `[{"source_id":"setup-engine"}]`,
		Reasoning:      "3 of 4 sources voted BUY",
		Executed:       true,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "decision_records"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	if err := repo.Create(context.Background(), record); err != nil {
		t.Fatalf("expected create to succeed, got %v", err)
	}

	createdAt := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)
	row := sqlmock.NewRows([]string{
		"id", "symbol", "final_decision", "confidence", "consensus_level",
		"opinion_count", "opinions", "reasoning", "executed", "gate_reason", "created_at",
	}).AddRow(1, record.Symbol, record.FinalDecision, record.Confidence, record.ConsensusLevel,
		record.OpinionCount, record.Opinions, record.Reasoning, record.Executed, "", createdAt)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "decision_records" WHERE "decision_records"."id" = $1 ORDER BY "decision_records"."id" LIMIT $2`)).
		WithArgs(1, 1).
		WillReturnRows(row)

	found, err := repo.FindByID(context.Background(), 1)
	if err != nil || found == nil {
		t.Fatalf("expected to find record by id, got %+v err=%v", found, err)
	}
	if found.FinalDecision != "BUY" {
		t.Fatalf("unexpected decision: %s", found.FinalDecision)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDecisionRepositoryFindByIDNotFound(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&DecisionRepository{}).WithDB(mockDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "decision_records"`)).
		WithArgs(42, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	found, err := repo.FindByID(context.Background(), 42)
	if err != nil {
		t.Fatalf("not-found must not be an error, got %v", err)
	}
	if found != nil {
		t.Fatalf("expected nil record, got %+v", found)
	}
}

func TestDecisionRepositoryFindLatest(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&DecisionRepository{}).WithDB(mockDB)

	rows := sqlmock.NewRows([]string{"id", "symbol", "final_decision"}).
		AddRow(3, "US100", "SELL").
		AddRow(2, "US100", "HOLD")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "decision_records" WHERE symbol = $1 ORDER BY created_at DESC, id DESC LIMIT $2`)).
		WithArgs("US100", 2).
		WillReturnRows(rows)

	records, err := repo.FindLatest(context.Background(), "US100", 2)
	if err != nil {
		t.Fatalf("expected FindLatest to succeed, got %v", err)
	}
	if len(records) != 2 || records[0].FinalDecision != "SELL" {
		t.Fatalf("unexpected records: %+v", records)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOperationLogRepositoryCreate(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&OperationLogRepository{}).WithDB(mockDB)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "operation_logs"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	log := &model.OperationLog{
		Symbol:    "US100",
		Kind:      "market",
		Side:      "buy",
		Volume:    1,
		ClientTag: "tag-1",
		Status:    model.OperationStatusDone,
		Retcode:   10009,
		Attempts:  1,
	}
	if err := repo.Create(context.Background(), log); err != nil {
		t.Fatalf("expected create to succeed, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
