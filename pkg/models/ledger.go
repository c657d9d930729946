package models

import "time"

// SubjectKind distinguishes whether a ledger subject is an individual user
// or an organization (spec §3, §4.7).
type SubjectKind string

const (
	SubjectUser         SubjectKind = "user"
	SubjectOrganization SubjectKind = "organization"
)

// Subject identifies the (user, organization) pair a ledger operation
// targets. Resolve always prefers the organization when membership is
// active; otherwise it falls back to the user's personal organization.
type Subject struct {
	Kind SubjectKind `json:"kind"`
	ID   string      `json:"id"`
}

// PlanType enumerates the billing plans that influence credit_limit and
// daily/plan credit grants.
type PlanType string

const (
	PlanFree    PlanType = "free"
	PlanTrial   PlanType = "trial"
	PlanPro     PlanType = "pro"
	PlanUnknown PlanType = ""
)

// CreditAllocation is the per-subject balance row (spec §3).
//
// Invariant: CreditsRemaining >= 0 at rest; it may go negative only
// transiently inside a transaction that is about to be rolled back.
type CreditAllocation struct {
	Subject                 Subject    `json:"subject"`
	CreditsRemaining        float64    `json:"credits_remaining"`
	DailyCredits            int        `json:"daily_credits"`
	PlanCredits             int        `json:"plan_credits"`
	CreditLimit             int        `json:"credit_limit"`
	LastDailyCreditClaimed  *time.Time `json:"last_daily_credit_claimed_at,omitempty"`
	PlanType                PlanType   `json:"plan_type"`
}

// ActionSource identifies what part of the system initiated a ledger
// mutation (the agent loop, a tool dispatch, a billing webhook, ...).
type ActionSource string

const (
	ActionSourceAgentTurn   ActionSource = "agent_turn"
	ActionSourceToolCall    ActionSource = "tool_call"
	ActionSourceRefill      ActionSource = "refill"
	ActionSourceAdmin       ActionSource = "admin"
	ActionSourceSubscription ActionSource = "subscription"
)

// ActionType further qualifies ActionSource (e.g. the specific tool name,
// or "daily_grant" for an automatic refill).
type ActionType string

// CreditTransaction is an append-only ledger entry (spec §3).
//
// Invariant: NewBalance == PreviousBalance + CreditsChanged, and matches the
// parent CreditAllocation at commit time.
type CreditTransaction struct {
	ID               string       `json:"id"`
	Actor            string       `json:"actor"`
	Organization     string       `json:"organization,omitempty"`
	CreditsChanged   float64      `json:"credits_changed"`
	PreviousBalance  float64      `json:"previous_balance"`
	NewBalance       float64      `json:"new_balance"`
	ActionSource     ActionSource `json:"action_source"`
	ActionType       ActionType   `json:"action_type"`
	EntityID         string       `json:"entity_id,omitempty"`
	ClippedRemainder float64      `json:"clipped_remainder,omitempty"`
	At               time.Time    `json:"at"`
}

// UnlimitedAccessGrant is an override that bypasses the admission gate
// without mutating balances (spec §3).
type UnlimitedAccessGrant struct {
	ID         string     `json:"id"`
	Subject    Subject    `json:"subject"`
	GrantedBy  string     `json:"granted_by"`
	GrantedAt  time.Time  `json:"granted_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	RevokedBy  string     `json:"revoked_by,omitempty"`
	Reason     string     `json:"reason"`
	Notes      string     `json:"notes,omitempty"`
}

// Active reports whether the grant currently bypasses the admission gate.
func (g *UnlimitedAccessGrant) Active(now time.Time) bool {
	if g == nil {
		return false
	}
	if g.RevokedAt != nil {
		return false
	}
	if g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
		return false
	}
	return true
}

// Subscription tracks a subject's billing subscription lifecycle, used to
// derive AccessSource.
type Subscription struct {
	ID          string     `json:"id"`
	Subject     Subject    `json:"subject"`
	PlanType    PlanType   `json:"plan_type"`
	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`
	ActiveUntil *time.Time `json:"active_until,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// PaymentCompletion records a completed payment event used to extend or
// renew a Subscription.
type PaymentCompletion struct {
	ID             string    `json:"id"`
	Subject        Subject   `json:"subject"`
	ProductType    string    `json:"product_type"`
	CompletedAt    time.Time `json:"completed_at"`
	PeriodDays     int       `json:"period_days"`
}

// AccessSource explains why a subject can (or cannot) proceed.
type AccessSource string

const (
	AccessTrial          AccessSource = "trial"
	AccessSubscription   AccessSource = "subscription"
	AccessCreditsOnly    AccessSource = "credits_only"
	AccessUnlimitedGrant AccessSource = "unlimited_grant"
	AccessNone           AccessSource = "none"
)

// AccessDecision is the result of an admission query (spec §6).
type AccessDecision struct {
	CanAccess    bool         `json:"can_access"`
	AccessSource AccessSource `json:"access_source"`
	DaysRemaining *int        `json:"days_remaining,omitempty"`
}
