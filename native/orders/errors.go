package orders

import (
	"errors"
	"fmt"

	"genomarket/native/common"
	"genomarket/native/pricing"
)

// Not-found errors.
var (
	ErrOrderNotFound            = errors.New("orders: order not found")
	ErrOfferingDoesNotExist     = errors.New("orders: offering does not exist")
	ErrPalletAccountNotFound    = errors.New("orders: pallet account not found")
	ErrSettlementNotConfigured  = errors.New("orders: settlement config not set")
	ErrTrackingRecordNotFound   = errors.New("orders: tracking record not found")
	ErrTrackingInitialization   = errors.New("orders: tracking initialization error")
	ErrSellerUnavailable        = errors.New("orders: seller unavailable")
	ErrOrderExists              = errors.New("orders: order already exists")
	ErrCollaboratorUnconfigured = errors.New("orders: collaborator not configured")
)

// Authorization errors.
var (
	ErrUnauthorized             = errors.New("orders: unauthorized")
	ErrUnauthorizedCancellation = errors.New("orders: unauthorized cancellation")
)

// State errors.
var (
	ErrOrderCannotBePaid             = errors.New("orders: order cannot be paid")
	ErrOrderCannotBeCancelled        = errors.New("orders: order cannot be cancelled")
	ErrOrderCannotBeFulfilled        = errors.New("orders: order cannot be fulfilled")
	ErrOrderCannotBeRefunded         = errors.New("orders: order cannot be refunded")
	ErrOrderCannotBeFailed           = errors.New("orders: order cannot be failed")
	ErrOngoingOrderCannotBeCancelled = errors.New("orders: ongoing order cannot be cancelled")
	ErrOrderNotYetExpired            = errors.New("orders: order not yet expired")
	ErrNotSuccessfullyProcessed      = errors.New("orders: tracked work not successfully processed")
)

// Value errors share the pricing sentinels so errors.Is works across layers.
var (
	ErrPriceIndexNotFound = pricing.ErrPriceIndexNotFound
	ErrAssetIDNotFound    = pricing.ErrAssetIDNotFound
	ErrPriceMismatch      = pricing.ErrPriceMismatch
	ErrInvalidConfig      = errors.New("orders: invalid settlement config")
)

// Ledger errors. Each maps exactly one ledger failure.
var (
	ErrInsufficientBalance      = errors.New("orders: insufficient balance")
	ErrBadOrigin                = errors.New("orders: bad origin")
	ErrCannotLookup             = errors.New("orders: cannot lookup")
	ErrConsumerRemaining        = errors.New("orders: consumer remaining")
	ErrNoProviders              = errors.New("orders: no providers")
	ErrTooManyConsumers         = errors.New("orders: too many consumers")
	ErrTokenOnlyProvider        = errors.New("orders: token only provider")
	ErrTokenBelowMinimum        = errors.New("orders: token below minimum")
	ErrTokenCannotCreate        = errors.New("orders: token cannot create")
	ErrTokenUnknownAsset        = errors.New("orders: token unknown asset")
	ErrTokenFrozen              = errors.New("orders: token frozen")
	ErrTokenNotExpendable       = errors.New("orders: token not expendable")
	ErrTokenUnsupported         = errors.New("orders: token unsupported")
	ErrArithmeticUnderflow      = errors.New("orders: arithmetic underflow")
	ErrArithmeticOverflow       = errors.New("orders: arithmetic overflow")
	ErrArithmeticDivisionByZero = errors.New("orders: arithmetic division by zero")
	ErrLedgerOther              = errors.New("orders: ledger failure")
)

var ledgerErrors = []struct {
	ledger error
	order  error
}{
	{common.ErrFundsUnavailable, ErrInsufficientBalance},
	{common.ErrBadOrigin, ErrBadOrigin},
	{common.ErrCannotLookup, ErrCannotLookup},
	{common.ErrConsumerRemaining, ErrConsumerRemaining},
	{common.ErrNoProviders, ErrNoProviders},
	{common.ErrTooManyConsumers, ErrTooManyConsumers},
	{common.ErrOnlyProvider, ErrTokenOnlyProvider},
	{common.ErrBelowMinimum, ErrTokenBelowMinimum},
	{common.ErrCannotCreate, ErrTokenCannotCreate},
	{common.ErrUnknownAsset, ErrTokenUnknownAsset},
	{common.ErrFrozen, ErrTokenFrozen},
	{common.ErrNotExpendable, ErrTokenNotExpendable},
	{common.ErrUnsupported, ErrTokenUnsupported},
	{common.ErrUnderflow, ErrArithmeticUnderflow},
	{common.ErrOverflow, ErrArithmeticOverflow},
	{common.ErrDivisionByZero, ErrArithmeticDivisionByZero},
	{common.ErrOther, ErrLedgerOther},
}

// mapLedgerError translates a ledger failure into the matching order error.
// Unrecognised failures become ErrLedgerOther; the cause stays in the chain.
func mapLedgerError(err error) error {
	if err == nil {
		return nil
	}
	for _, m := range ledgerErrors {
		if errors.Is(err, m.ledger) {
			return wrap(m.order, err)
		}
	}
	return wrap(ErrLedgerOther, err)
}

// LedgerError classifies a failure returned by the native or asset ledger
// outside a settlement call, e.g. a plain balance transfer.
func LedgerError(err error) error { return mapLedgerError(err) }

func wrap(kind, cause error) error {
	if cause == nil || cause == kind {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}

var codes = []struct {
	err       error
	code      string
	retryable bool
}{
	{ErrOrderNotFound, "OrderNotFound", false},
	{ErrOfferingDoesNotExist, "OfferingDoesNotExist", false},
	{ErrPalletAccountNotFound, "PalletAccountNotFound", false},
	{ErrSettlementNotConfigured, "SettlementNotConfigured", false},
	{ErrTrackingRecordNotFound, "TrackingRecordNotFound", false},
	{ErrTrackingInitialization, "TrackingInitializationError", true},
	{ErrSellerUnavailable, "SellerUnavailable", true},
	{ErrOrderExists, "OrderExists", true},
	{ErrCollaboratorUnconfigured, "CollaboratorUnconfigured", false},
	{ErrUnauthorized, "Unauthorized", false},
	{ErrUnauthorizedCancellation, "UnauthorizedCancellation", false},
	{ErrOrderCannotBePaid, "OrderCannotBePaid", false},
	{ErrOrderCannotBeCancelled, "OrderCannotBeCancelled", false},
	{ErrOrderCannotBeFulfilled, "OrderCannotBeFulfilled", false},
	{ErrOrderCannotBeRefunded, "OrderCannotBeRefunded", false},
	{ErrOrderCannotBeFailed, "OrderCannotBeFailed", false},
	{ErrOngoingOrderCannotBeCancelled, "OngoingOrderCannotBeCancelled", false},
	{ErrOrderNotYetExpired, "OrderNotYetExpired", true},
	{ErrNotSuccessfullyProcessed, "NotSuccessfullyProcessed", true},
	{ErrPriceIndexNotFound, "PriceIndexNotFound", false},
	{ErrAssetIDNotFound, "AssetIdNotFound", false},
	{ErrPriceMismatch, "PriceMismatch", false},
	{ErrInvalidConfig, "InvalidConfig", false},
	{ErrInsufficientBalance, "InsufficientBalance", true},
	{ErrBadOrigin, "BadOrigin", false},
	{ErrCannotLookup, "CannotLookup", false},
	{ErrConsumerRemaining, "ConsumerRemaining", true},
	{ErrNoProviders, "NoProviders", true},
	{ErrTooManyConsumers, "TooManyConsumers", true},
	{ErrTokenOnlyProvider, "TokenOnlyProvider", true},
	{ErrTokenBelowMinimum, "TokenBelowMinimum", true},
	{ErrTokenCannotCreate, "TokenCannotCreate", true},
	{ErrTokenUnknownAsset, "TokenUnknownAsset", false},
	{ErrTokenFrozen, "TokenFrozen", true},
	{ErrTokenNotExpendable, "TokenNotExpendable", true},
	{ErrTokenUnsupported, "TokenUnsupported", false},
	{ErrArithmeticUnderflow, "ArithmeticUnderflow", false},
	{ErrArithmeticOverflow, "ArithmeticOverflow", false},
	{ErrArithmeticDivisionByZero, "ArithmeticDivisionByZero", false},
	{ErrLedgerOther, "LedgerOther", false},
	{common.ErrModulePaused, "ModulePaused", true},
}

// Code returns the stable error code for off-chain clients, or "Internal"
// when err is not part of the settlement taxonomy.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "Internal"
}

// Retryable reports whether the same call may succeed later without changing
// its inputs, e.g. after the account is funded or the lab reports progress.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.retryable
		}
	}
	return false
}
