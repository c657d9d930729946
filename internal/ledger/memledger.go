package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atelierai/agentcore/pkg/models"
)

func subjectKey(s models.Subject) string { return string(s.Kind) + ":" + s.ID }

// MembershipResolver answers whether a user is an active member of an
// organization, and what a user's personal organization id is — the two
// facts ResolveSubject needs (spec §4.7). Kept as a seam so the ledger
// package never imports an identity/org store directly.
type MembershipResolver interface {
	ActiveMember(ctx context.Context, userID, organizationID string) (bool, error)
	PersonalOrganization(ctx context.Context, userID string) (string, error)
}

// MemLedger is an in-memory Ledger, grounded on the teacher's usage.Tracker
// (sync.RWMutex guarding maps, accumulate-in-place pattern) repurposed from
// token-usage aggregation to credit-balance mutation. Suitable for tests
// and single-process deployments; SQLLedger is the durable implementation.
type MemLedger struct {
	mu          sync.Mutex
	allocations map[string]*models.CreditAllocation
	grants      map[string]*models.UnlimitedAccessGrant // keyed by subject
	subs        map[string]*models.Subscription
	txns        []models.CreditTransaction
	resolver    MembershipResolver
	now         func() time.Time
}

// NewMemLedger constructs an empty in-memory ledger. nowFn defaults to
// time.Now; tests may override it for deterministic grant-expiry checks.
func NewMemLedger(resolver MembershipResolver, nowFn func() time.Time) *MemLedger {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &MemLedger{
		allocations: make(map[string]*models.CreditAllocation),
		grants:      make(map[string]*models.UnlimitedAccessGrant),
		subs:        make(map[string]*models.Subscription),
		resolver:    resolver,
		now:         nowFn,
	}
}

// Seed installs (or replaces) a subject's starting allocation, for tests
// and bootstrapping new subjects.
func (l *MemLedger) Seed(alloc models.CreditAllocation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := alloc
	l.allocations[subjectKey(alloc.Subject)] = &a
}

func (l *MemLedger) allocationLocked(subject models.Subject) *models.CreditAllocation {
	key := subjectKey(subject)
	alloc, ok := l.allocations[key]
	if !ok {
		alloc = &models.CreditAllocation{Subject: subject}
		l.allocations[key] = alloc
	}
	return alloc
}

func (l *MemLedger) hasActiveGrant(subject models.Subject) bool {
	grant, ok := l.grants[subjectKey(subject)]
	if !ok {
		return false
	}
	return grant.Active(l.now())
}

func (l *MemLedger) CanDebit(ctx context.Context, subject models.Subject, amount float64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hasActiveGrant(subject) {
		return true, nil
	}
	alloc := l.allocationLocked(subject)
	return alloc.CreditsRemaining >= amount, nil
}

func (l *MemLedger) Debit(ctx context.Context, subject models.Subject, amount float64, source models.ActionSource, actionType models.ActionType, entityID string) (*models.CreditTransaction, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: negative amount", ErrFatal)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	alloc := l.allocationLocked(subject)
	unlimited := l.hasActiveGrant(subject)
	if !unlimited && alloc.CreditsRemaining < amount {
		return nil, ErrInsufficientCredits
	}

	previous := alloc.CreditsRemaining
	if !unlimited {
		alloc.CreditsRemaining -= amount
	}
	txn := models.CreditTransaction{
		ID:              uuid.NewString(),
		Actor:           subject.ID,
		CreditsChanged:  -amount,
		PreviousBalance: previous,
		NewBalance:      alloc.CreditsRemaining,
		ActionSource:    source,
		ActionType:      actionType,
		EntityID:        entityID,
		At:              l.now(),
	}
	if unlimited {
		txn.CreditsChanged = 0
		txn.NewBalance = previous
	}
	l.txns = append(l.txns, txn)
	return &txn, nil
}

func (l *MemLedger) Refill(ctx context.Context, subject models.Subject, amount float64, source models.ActionSource, actionType models.ActionType, entityID string) (*models.CreditTransaction, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: negative amount", ErrFatal)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	alloc := l.allocationLocked(subject)
	previous := alloc.CreditsRemaining
	target := previous + amount
	var clipped float64
	if alloc.CreditLimit > 0 && target > float64(alloc.CreditLimit) {
		clipped = target - float64(alloc.CreditLimit)
		target = float64(alloc.CreditLimit)
	}
	alloc.CreditsRemaining = target

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
	l.txns = append(l.txns, txn)
	return &txn, nil
}

func (l *MemLedger) GrantUnlimited(ctx context.Context, subject models.Subject, by, reason string, expiresAt *time.Time) (*models.UnlimitedAccessGrant, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	grant := &models.UnlimitedAccessGrant{
		ID:        uuid.NewString(),
		Subject:   subject,
		GrantedBy: by,
		GrantedAt: l.now(),
		ExpiresAt: expiresAt,
		Reason:    reason,
	}
	l.grants[subjectKey(subject)] = grant
	return grant, nil
}

func (l *MemLedger) RevokeUnlimited(ctx context.Context, subject models.Subject, by, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	grant, ok := l.grants[subjectKey(subject)]
	if !ok {
		return nil
	}
	now := l.now()
	grant.RevokedAt = &now
	grant.RevokedBy = by
	if reason != "" {
		grant.Notes = reason
	}
	return nil
}

func (l *MemLedger) Access(ctx context.Context, subject models.Subject) (*models.AccessDecision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hasActiveGrant(subject) {
		return &models.AccessDecision{CanAccess: true, AccessSource: models.AccessUnlimitedGrant}, nil
	}

	if sub, ok := l.subs[subjectKey(subject)]; ok {
		now := l.now()
		if sub.TrialEndsAt != nil && sub.TrialEndsAt.After(now) {
			remaining := int(sub.TrialEndsAt.Sub(now).Hours() / 24)
			return &models.AccessDecision{CanAccess: true, AccessSource: models.AccessTrial, DaysRemaining: &remaining}, nil
		}
		if sub.ActiveUntil != nil && sub.ActiveUntil.After(now) && sub.CancelledAt == nil {
			remaining := int(sub.ActiveUntil.Sub(now).Hours() / 24)
			return &models.AccessDecision{CanAccess: true, AccessSource: models.AccessSubscription, DaysRemaining: &remaining}, nil
		}
	}

	alloc := l.allocationLocked(subject)
	if alloc.CreditsRemaining > 0 {
		return &models.AccessDecision{CanAccess: true, AccessSource: models.AccessCreditsOnly}, nil
	}
	return &models.AccessDecision{CanAccess: false, AccessSource: models.AccessNone}, nil
}

// SetSubscription installs a subject's subscription record, for tests and
// webhook-driven updates from PaymentCompletion events.
func (l *MemLedger) SetSubscription(sub models.Subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := sub
	l.subs[subjectKey(sub.Subject)] = &s
}

func (l *MemLedger) ResolveSubject(ctx context.Context, userID, organizationID string) (models.Subject, error) {
	if organizationID != "" {
		if l.resolver != nil {
			active, err := l.resolver.ActiveMember(ctx, userID, organizationID)
			if err != nil {
				return models.Subject{}, err
			}
			if active {
				return models.Subject{Kind: models.SubjectOrganization, ID: organizationID}, nil
			}
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

var _ Ledger = (*MemLedger)(nil)
