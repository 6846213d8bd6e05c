package common

import "errors"

// Ledger failure taxonomy shared by the native and asset ledgers. Every
// transfer failure resolves to exactly one of these so callers can tell
// transient causes from structural ones.
var (
	ErrOther             = errors.New("ledger: other")
	ErrCannotLookup      = errors.New("ledger: cannot lookup")
	ErrBadOrigin         = errors.New("ledger: bad origin")
	ErrConsumerRemaining = errors.New("ledger: consumer remaining")
	ErrNoProviders       = errors.New("ledger: no providers")
	ErrTooManyConsumers  = errors.New("ledger: too many consumers")

	ErrFundsUnavailable = errors.New("ledger: token funds unavailable")
	ErrOnlyProvider     = errors.New("ledger: token only provider")
	ErrBelowMinimum     = errors.New("ledger: token below minimum")
	ErrCannotCreate     = errors.New("ledger: token cannot create")
	ErrUnknownAsset     = errors.New("ledger: token unknown asset")
	ErrFrozen           = errors.New("ledger: token frozen")
	ErrNotExpendable    = errors.New("ledger: token not expendable")
	ErrUnsupported      = errors.New("ledger: token unsupported")

	ErrUnderflow      = errors.New("ledger: arithmetic underflow")
	ErrOverflow       = errors.New("ledger: arithmetic overflow")
	ErrDivisionByZero = errors.New("ledger: arithmetic division by zero")
)

// ExistencePolicy controls whether a native transfer may reap the sender.
type ExistencePolicy uint8

const (
	// KeepAlive refuses transfers that would drop the sender below the
	// existential deposit.
	KeepAlive ExistencePolicy = iota
	// AllowDeath lets the sender be reaped; leftover dust is burned.
	AllowDeath
)

func (p ExistencePolicy) String() string {
	if p == KeepAlive {
		return "keep-alive"
	}
	return "allow-death"
}
