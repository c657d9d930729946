package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/atelierai/agentcore/pkg/models"
)

// SQLLedger is the durable Ledger implementation: every Debit/Refill runs
// inside a single `database/sql` transaction that locks the allocation row
// with SELECT ... FOR UPDATE, satisfying invariant 4 ("no half-debits") and
// invariant 8 ("admission correctness") — grounded on the teacher's
// CockroachStore (lib/pq DSN + connection-pool setup) and, for local/test
// use, modernc.org/sqlite.
type SQLLedger struct {
	db       *sql.DB
	resolver MembershipResolver
	now      func() time.Time
}

// SQLLedgerConfig configures connection pooling, mirroring the teacher's
// CockroachConfig.
type SQLLedgerConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultSQLLedgerConfig returns sane pool defaults.
func DefaultSQLLedgerConfig() SQLLedgerConfig {
	return SQLLedgerConfig{MaxOpenConns: 25, MaxIdleConns: 5, ConnMaxLifetime: 5 * time.Minute}
}

// NewSQLLedger opens driverName ("postgres" or "sqlite") against dsn and
// configures the pool.
func NewSQLLedger(driverName, dsn string, cfg SQLLedgerConfig, resolver MembershipResolver) (*SQLLedger, error) {
	if dsn == "" {
		return nil, fmt.Errorf("ledger: dsn is required")
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: ping database: %w", err)
	}

	return &SQLLedger{db: db, resolver: resolver, now: time.Now}, nil
}

// DB exposes the pool for schema migration tooling.
func (l *SQLLedger) DB() *sql.DB { return l.db }

func (l *SQLLedger) CanDebit(ctx context.Context, subject models.Subject, amount float64) (bool, error) {
	if active, err := l.activeGrant(ctx, l.db, subject); err != nil {
		return false, err
	} else if active {
		return true, nil
	}

	var remaining float64
	err := l.db.QueryRowContext(ctx,
		`SELECT credits_remaining FROM credit_allocations WHERE subject_kind = $1 AND subject_id = $2`,
		subject.Kind, subject.ID,
	).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger: can_debit query: %w", err)
	}
	return remaining >= amount, nil
}

// Debit implements the spec §4.7 atomic procedure: lock the row, check
// balance (unless an unlimited grant is active), write the new balance,
// append the transaction row, commit. Any failure rolls back the whole
// transaction — no partial mutation is ever visible.
func (l *SQLLedger) Debit(ctx context.Context, subject models.Subject, amount float64, source models.ActionSource, actionType models.ActionType, entityID string) (*models.CreditTransaction, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: negative amount", ErrFatal)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: begin debit tx: %w", err)
	}
	defer tx.Rollback()

	unlimited, err := l.activeGrant(ctx, tx, subject)
	if err != nil {
		return nil, err
	}

	var previous float64
	var creditLimit int
	err = tx.QueryRowContext(ctx,
		`SELECT credits_remaining, credit_limit FROM credit_allocations WHERE subject_kind = $1 AND subject_id = $2 FOR UPDATE`,
		subject.Kind, subject.ID,
	).Scan(&previous, &creditLimit)
	if errors.Is(err, sql.ErrNoRows) {
		if _, insErr := tx.ExecContext(ctx,
			`INSERT INTO credit_allocations (subject_kind, subject_id, credits_remaining) VALUES ($1, $2, 0)`,
			subject.Kind, subject.ID,
		); insErr != nil {
			return nil, fmt.Errorf("ledger: seed allocation: %w", insErr)
		}
		previous = 0
	} else if err != nil {
		return nil, fmt.Errorf("ledger: lock allocation row: %w", err)
	}

	if !unlimited && previous < amount {
		return nil, ErrInsufficientCredits
	}

	newBalance := previous
	if !unlimited {
		newBalance = previous - amount
		if _, err := tx.ExecContext(ctx,
			`UPDATE credit_allocations SET credits_remaining = $1 WHERE subject_kind = $2 AND subject_id = $3`,
			newBalance, subject.Kind, subject.ID,
		); err != nil {
			return nil, fmt.Errorf("ledger: write new balance: %w", err)
		}
	}

	txn := models.CreditTransaction{
		ID:              uuid.NewString(),
		Actor:           subject.ID,
		CreditsChanged:  -amount,
		PreviousBalance: previous,
		NewBalance:      newBalance,
		ActionSource:    source,
		ActionType:      actionType,
		EntityID:        entityID,
		At:              l.now(),
	}
	if unlimited {
		txn.CreditsChanged = 0
	}

	if err := l.insertTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ledger: commit debit: %w", err)
	}
	return &txn, nil
}

func (l *SQLLedger) Refill(ctx context.Context, subject models.Subject, amount float64, source models.ActionSource, actionType models.ActionType, entityID string) (*models.CreditTransaction, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: negative amount", ErrFatal)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: begin refill tx: %w", err)
	}
	defer tx.Rollback()

	var previous float64
	var creditLimit int
	err = tx.QueryRowContext(ctx,
		`SELECT credits_remaining, credit_limit FROM credit_allocations WHERE subject_kind = $1 AND subject_id = $2 FOR UPDATE`,
		subject.Kind, subject.ID,
	).Scan(&previous, &creditLimit)
	if errors.Is(err, sql.ErrNoRows) {
		previous, creditLimit = 0, 0
		if _, insErr := tx.ExecContext(ctx,
			`INSERT INTO credit_allocations (subject_kind, subject_id, credits_remaining) VALUES ($1, $2, 0)`,
			subject.Kind, subject.ID,
		); insErr != nil {
			return nil, fmt.Errorf("ledger: seed allocation: %w", insErr)
		}
	} else if err != nil {
		return nil, fmt.Errorf("ledger: lock allocation row: %w", err)
	}

	target := previous + amount
	var clipped float64
	if creditLimit > 0 && target > float64(creditLimit) {
		clipped = target - float64(creditLimit)
		target = float64(creditLimit)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE credit_allocations SET credits_remaining = $1 WHERE subject_kind = $2 AND subject_id = $3`,
		target, subject.Kind, subject.ID,
	); err != nil {
		return nil, fmt.Errorf("ledger: write refilled balance: %w", err)
	}

	txn := models.CreditTransaction{
		ID:               uuid.NewString(),
		Actor:            subject.ID,
		CreditsChanged:   amount - clipped,
		PreviousBalance:  previous,
		NewBalance:       target,
		ActionSource:     source,
		ActionType:       actionType,
		EntityID:         entityID,
		ClippedRemainder: clipped,
		At:               l.now(),
	}
	if err := l.insertTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ledger: commit refill: %w", err)
	}
	return &txn, nil
}

func (l *SQLLedger) insertTransaction(ctx context.Context, tx *sql.Tx, txn models.CreditTransaction) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO credit_transactions
		 (id, actor, organization, credits_changed, previous_balance, new_balance, action_source, action_type, entity_id, clipped_remainder, at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		txn.ID, txn.Actor, txn.Organization, txn.CreditsChanged, txn.PreviousBalance, txn.NewBalance,
		txn.ActionSource, txn.ActionType, txn.EntityID, txn.ClippedRemainder, txn.At,
	)
	if err != nil {
		return fmt.Errorf("ledger: append transaction: %w", err)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (l *SQLLedger) activeGrant(ctx context.Context, q queryRower, subject models.Subject) (bool, error) {
	var expiresAt, revokedAt sql.NullTime
	err := q.QueryRowContext(ctx,
		`SELECT expires_at, revoked_at FROM unlimited_access_grants
		 WHERE subject_kind = $1 AND subject_id = $2
		 ORDER BY granted_at DESC LIMIT 1`,
		subject.Kind, subject.ID,
	).Scan(&expiresAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger: check unlimited grant: %w", err)
	}
	grant := models.UnlimitedAccessGrant{}
	if expiresAt.Valid {
		grant.ExpiresAt = &expiresAt.Time
	}
	if revokedAt.Valid {
		grant.RevokedAt = &revokedAt.Time
	}
	return grant.Active(l.now()), nil
}

func (l *SQLLedger) GrantUnlimited(ctx context.Context, subject models.Subject, by, reason string, expiresAt *time.Time) (*models.UnlimitedAccessGrant, error) {
	grant := &models.UnlimitedAccessGrant{
		ID:        uuid.NewString(),
		Subject:   subject,
		GrantedBy: by,
		GrantedAt: l.now(),
		ExpiresAt: expiresAt,
		Reason:    reason,
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO unlimited_access_grants (id, subject_kind, subject_id, granted_by, granted_at, expires_at, reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		grant.ID, subject.Kind, subject.ID, by, grant.GrantedAt, expiresAt, reason,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: insert unlimited grant: %w", err)
	}
	return grant, nil
}

func (l *SQLLedger) RevokeUnlimited(ctx context.Context, subject models.Subject, by, reason string) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE unlimited_access_grants SET revoked_at = $1, revoked_by = $2, notes = $3
		 WHERE subject_kind = $4 AND subject_id = $5 AND revoked_at IS NULL`,
		l.now(), by, reason, subject.Kind, subject.ID,
	)
	if err != nil {
		return fmt.Errorf("ledger: revoke unlimited grant: %w", err)
	}
	return nil
}

func (l *SQLLedger) Access(ctx context.Context, subject models.Subject) (*models.AccessDecision, error) {
	if active, err := l.activeGrant(ctx, l.db, subject); err != nil {
		return nil, err
	} else if active {
		return &models.AccessDecision{CanAccess: true, AccessSource: models.AccessUnlimitedGrant}, nil
	}

	var trialEndsAt, activeUntil, cancelledAt sql.NullTime
	err := l.db.QueryRowContext(ctx,
		`SELECT trial_ends_at, active_until, cancelled_at FROM subscriptions
		 WHERE subject_kind = $1 AND subject_id = $2 ORDER BY id DESC LIMIT 1`,
		subject.Kind, subject.ID,
	).Scan(&trialEndsAt, &activeUntil, &cancelledAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ledger: query subscription: %w", err)
	}

	now := l.now()
	if trialEndsAt.Valid && trialEndsAt.Time.After(now) {
		remaining := int(trialEndsAt.Time.Sub(now).Hours() / 24)
		return &models.AccessDecision{CanAccess: true, AccessSource: models.AccessTrial, DaysRemaining: &remaining}, nil
	}
	if activeUntil.Valid && activeUntil.Time.After(now) && !cancelledAt.Valid {
		remaining := int(activeUntil.Time.Sub(now).Hours() / 24)
		return &models.AccessDecision{CanAccess: true, AccessSource: models.AccessSubscription, DaysRemaining: &remaining}, nil
	}

	var remaining float64
	err = l.db.QueryRowContext(ctx,
		`SELECT credits_remaining FROM credit_allocations WHERE subject_kind = $1 AND subject_id = $2`,
		subject.Kind, subject.ID,
	).Scan(&remaining)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ledger: query balance: %w", err)
	}
	if remaining > 0 {
		return &models.AccessDecision{CanAccess: true, AccessSource: models.AccessCreditsOnly}, nil
	}
	return &models.AccessDecision{CanAccess: false, AccessSource: models.AccessNone}, nil
}

func (l *SQLLedger) ResolveSubject(ctx context.Context, userID, organizationID string) (models.Subject, error) {
	if organizationID != "" && l.resolver != nil {
		active, err := l.resolver.ActiveMember(ctx, userID, organizationID)
		if err != nil {
			return models.Subject{}, err
		}
		if active {
			return models.Subject{Kind: models.SubjectOrganization, ID: organizationID}, nil
		}
	}
	if l.resolver != nil {
		personalOrg, err := l.resolver.PersonalOrganization(ctx, userID)
		if err == nil && personalOrg != "" {
			return models.Subject{Kind: models.SubjectOrganization, ID: personalOrg}, nil
		}
	}
	return models.Subject{Kind: models.SubjectUser, ID: userID}, nil
}

var _ Ledger = (*SQLLedger)(nil)
