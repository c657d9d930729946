package ledger

import "errors"

// Sentinel errors per spec §4.7 / §7.
var (
	ErrInsufficientCredits = errors.New("ledger: insufficient credits")
	ErrConflict            = errors.New("ledger: row lock conflict, retry")
	ErrFatal               = errors.New("ledger: fatal error")
	ErrNoAllocation        = errors.New("ledger: no allocation for subject")
	ErrNoMembership        = errors.New("ledger: organization membership not active")
)
