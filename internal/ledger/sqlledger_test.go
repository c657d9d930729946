package ledger

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/atelierai/agentcore/pkg/models"
)

func testNow() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestSQLLedger_Debit_NoHalfDebitOnInsufficientBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	l := &SQLLedger{db: db, now: testNow}
	subject := models.Subject{Kind: models.SubjectUser, ID: "user-1"}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT expires_at, revoked_at FROM unlimited_access_grants").
		WithArgs(subject.Kind, subject.ID).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT credits_remaining, credit_limit FROM credit_allocations").
		WithArgs(subject.Kind, subject.ID).
		WillReturnRows(sqlmock.NewRows([]string{"credits_remaining", "credit_limit"}).AddRow(0.0, 0))
	mock.ExpectRollback()

	_, err = l.Debit(context.Background(), subject, 5, models.ActionSourceToolCall, models.ActionType("search"), "call-1")
	if err != ErrInsufficientCredits {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestSQLLedger_Debit_CommitsExactlyOneTransaction exercises invariant 4
// ("no half-debits"): a successful debit writes the new balance and
// appends exactly one credit_transactions row inside the same commit.
func TestSQLLedger_Debit_CommitsExactlyOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	l := &SQLLedger{db: db, now: testNow}
	subject := models.Subject{Kind: models.SubjectUser, ID: "user-1"}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT expires_at, revoked_at FROM unlimited_access_grants").
		WithArgs(subject.Kind, subject.ID).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT credits_remaining, credit_limit FROM credit_allocations").
		WithArgs(subject.Kind, subject.ID).
		WillReturnRows(sqlmock.NewRows([]string{"credits_remaining", "credit_limit"}).AddRow(10.0, 0))
	mock.ExpectExec("UPDATE credit_allocations SET credits_remaining").
		WithArgs(9.0, subject.Kind, subject.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO credit_transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	txn, err := l.Debit(context.Background(), subject, 1, models.ActionSourceToolCall, models.ActionType("search"), "call-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if txn.CreditsChanged != -1 || txn.NewBalance != 9 {
		t.Fatalf("unexpected transaction: %+v", txn)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLLedger_Debit_UnlimitedGrantBypassesBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	l := &SQLLedger{db: db, now: testNow}
	subject := models.Subject{Kind: models.SubjectOrganization, ID: "org-1"}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT expires_at, revoked_at FROM unlimited_access_grants").
		WithArgs(subject.Kind, subject.ID).
		WillReturnRows(sqlmock.NewRows([]string{"expires_at", "revoked_at"}).AddRow(nil, nil))
	mock.ExpectQuery("SELECT credits_remaining, credit_limit FROM credit_allocations").
		WithArgs(subject.Kind, subject.ID).
		WillReturnRows(sqlmock.NewRows([]string{"credits_remaining", "credit_limit"}).AddRow(0.0, 0))
	mock.ExpectExec("INSERT INTO credit_transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	txn, err := l.Debit(context.Background(), subject, 100, models.ActionSourceToolCall, models.ActionType("search"), "call-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if txn.CreditsChanged != 0 {
		t.Fatalf("expected unlimited-grant debit to leave balance untouched, got CreditsChanged=%v", txn.CreditsChanged)
	}
}
