package orders

import (
	"fmt"

	"genomarket/core/types"
)

func canCancel(o *Order, caller types.Address, rec TrackingRecord, tracked bool) error {
	if o.Status.Terminal() {
		return fmt.Errorf("%w: status %s", ErrOrderCannotBeCancelled, o.Status)
	}
	if caller != o.Customer {
		return ErrUnauthorizedCancellation
	}
	if tracked && !rec.IsRegistered() {
		return ErrOngoingOrderCannotBeCancelled
	}
	return nil
}

func canPay(o *Order, caller types.Address, cfg *storedConfig) error {
	if o.Status != StatusUnpaid {
		return fmt.Errorf("%w: status %s", ErrOrderCannotBePaid, o.Status)
	}
	if o.Currency.Transferable() {
		if caller != o.Customer {
			return ErrUnauthorized
		}
		return nil
	}
	if caller != cfg.EscrowKey {
		return ErrUnauthorized
	}
	return nil
}

// canFulfill and canRefund run after the engine has checked the escrow key,
// so a foreign caller sees ErrUnauthorized even for an unknown order.
func canFulfill(o *Order, rec TrackingRecord, tracked bool) error {
	if o.Status != StatusPaid {
		return fmt.Errorf("%w: status %s", ErrOrderCannotBeFulfilled, o.Status)
	}
	if !tracked {
		return ErrTrackingRecordNotFound
	}
	if !rec.ProcessSuccess() {
		return ErrNotSuccessfullyProcessed
	}
	return nil
}

func canRefund(o *Order, rec TrackingRecord, tracked bool) error {
	if o.Status != StatusPaid {
		return fmt.Errorf("%w: status %s", ErrOrderCannotBeRefunded, o.Status)
	}
	if !tracked {
		return ErrTrackingRecordNotFound
	}
	if !rec.IsRejected() {
		return ErrOrderNotYetExpired
	}
	return nil
}
