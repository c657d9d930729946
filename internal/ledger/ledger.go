// Package ledger implements the Credit Ledger & Admission Gate (spec
// §4.7): atomic, row-locked debit/refill on a per-subject allocation, plus
// unlimited-grant and trial/subscription access resolution.
package ledger

import (
	"context"
	"time"

	"github.com/atelierai/agentcore/pkg/models"
)

// Ledger is the public interface the Agent Loop, Tool Dispatcher, and
// external admission query use. Implementations must satisfy: debits on
// the same subject serialize by row lock; debits on disjoint subjects
// proceed in parallel; readers never block writers (spec §4.7, §5).
type Ledger interface {
	// CanDebit is a non-locking, advisory check.
	CanDebit(ctx context.Context, subject models.Subject, amount float64) (bool, error)

	// Debit atomically locks the allocation row, verifies sufficient
	// balance (or an active unlimited grant), writes the new balance, and
	// appends a CreditTransaction — or touches nothing at all.
	Debit(ctx context.Context, subject models.Subject, amount float64, source models.ActionSource, actionType models.ActionType, entityID string) (*models.CreditTransaction, error)

	// Refill adds credits, clipping to CreditLimit when the plan sets one.
	Refill(ctx context.Context, subject models.Subject, amount float64, source models.ActionSource, actionType models.ActionType, entityID string) (*models.CreditTransaction, error)

	// GrantUnlimited installs an UnlimitedAccessGrant bypassing the
	// admission gate without mutating balances.
	GrantUnlimited(ctx context.Context, subject models.Subject, by, reason string, expiresAt *time.Time) (*models.UnlimitedAccessGrant, error)

	// RevokeUnlimited ends an active grant.
	RevokeUnlimited(ctx context.Context, subject models.Subject, by, reason string) error

	// Access answers the external admission query (spec §6).
	Access(ctx context.Context, subject models.Subject) (*models.AccessDecision, error)

	// ResolveSubject implements the §4.7 subject-resolution rule: prefer
	// the organization when membership is active, else the user's own
	// personal organization.
	ResolveSubject(ctx context.Context, userID, organizationID string) (models.Subject, error)
}
