package runtime

import (
	"errors"

	"genomarket/native/assets"
	"genomarket/native/catalog"
	"genomarket/native/orders"
	"genomarket/native/pricing"
	"genomarket/native/tracking"
)

var (
	ErrWrongChain     = errors.New("runtime: wrong chain id")
	ErrBadNonce       = errors.New("runtime: unexpected nonce")
	ErrBadSignature   = errors.New("runtime: signature does not match caller")
	ErrUnknownCall    = errors.New("runtime: unknown call")
	ErrUnknownPallet  = errors.New("runtime: unknown pallet")
	ErrInvalidArgs    = errors.New("runtime: invalid arguments")
	ErrGenesisApplied = errors.New("runtime: genesis already applied")
	ErrChainMismatch  = errors.New("runtime: store belongs to another chain")
)

const internalCode = "Internal"

var errorCodes = []struct {
	err       error
	code      string
	retryable bool
}{
	{ErrWrongChain, "WrongChain", false},
	{ErrBadNonce, "BadNonce", true},
	{ErrBadSignature, "BadSignature", false},
	{ErrUnknownCall, "UnknownCall", false},
	{ErrUnknownPallet, "UnknownPallet", false},
	{ErrInvalidArgs, "InvalidArguments", false},
	{catalog.ErrSellerExists, "SellerExists", false},
	{catalog.ErrSellerNotFound, "SellerNotFound", false},
	{catalog.ErrOfferingNotFound, "OfferingNotFound", false},
	{catalog.ErrNotOfferingOwner, "Unauthorized", false},
	{catalog.ErrInvalidName, "InvalidName", false},
	{catalog.ErrPendingOrders, "PendingOrders", true},
	{catalog.ErrTooManyOfferings, "TooManyOfferings", false},
	{tracking.ErrTrackingExists, "TrackingExists", false},
	{tracking.ErrTrackingNotFound, "TrackingRecordNotFound", false},
	{tracking.ErrUnauthorized, "Unauthorized", false},
	{tracking.ErrInvalidTransition, "InvalidTransition", false},
	{tracking.ErrOrderNotPaid, "OrderNotPaid", false},
	{assets.ErrUnauthorized, "Unauthorized", false},
	{pricing.ErrNegativePrice, "NegativePrice", false},
	{pricing.ErrUnknownCurrency, "UnknownCurrency", false},
}

// Code returns the stable error code reported to API clients. Settlement
// errors keep their orders code even when a collaborator error is wrapped
// inside; anything unclassified is "Internal".
func Code(err error) string {
	if err == nil {
		return ""
	}
	if code := orders.Code(err); code != internalCode {
		return code
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return internalCode
}

// Retryable reports whether resubmitting the same call may succeed later.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if orders.Code(err) != internalCode {
		return orders.Retryable(err)
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.retryable
		}
	}
	return false
}
