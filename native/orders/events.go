package orders

import (
	"math/big"
	"strconv"

	"genomarket/core/types"
)

const (
	EventTypeOrderCreated           = "orders.created"
	EventTypeOrderPaid              = "orders.paid"
	EventTypeOrderFulfilled         = "orders.fulfilled"
	EventTypeOrderRefunded          = "orders.refunded"
	EventTypeOrderCancelled         = "orders.cancelled"
	EventTypeOrderFailed            = "orders.failed"
	EventTypeTrackingCleanupFailed  = "orders.tracking_cleanup_failed"
	EventTypeSettlementConfigUpdate = "orders.config_updated"
)

type orderEvent struct {
	evt *types.Event
}

func (e orderEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e orderEvent) Event() *types.Event { return e.evt }

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func newOrderEvent(eventType, pallet string, o *Order) *types.Event {
	attrs := map[string]string{
		"pallet":     pallet,
		"orderId":    o.ID.Hex(),
		"offeringId": o.OfferingID.Hex(),
		"customer":   o.Customer.String(),
		"seller":     o.Seller.String(),
		"trackingId": o.TrackingID,
		"currency":   o.Currency.String(),
		"total":      formatAmount(o.TotalPrice),
		"escrow":     o.Escrow.String(),
		"status":     o.Status.String(),
		"updatedAt":  strconv.FormatInt(o.UpdatedAt, 10),
	}
	if o.AssetID != nil {
		attrs["assetId"] = strconv.FormatUint(uint64(*o.AssetID), 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

// newSettlementEvent extends the order event with the amounts moved out of
// escrow.
func newSettlementEvent(eventType, pallet string, o *Order, amounts map[string]*big.Int) *types.Event {
	evt := newOrderEvent(eventType, pallet, o)
	for k, v := range amounts {
		evt.Attributes[k] = formatAmount(v)
	}
	return evt
}

func newTrackingCleanupFailedEvent(pallet string, o *Order, cause error) *types.Event {
	return &types.Event{Type: EventTypeTrackingCleanupFailed, Attributes: map[string]string{
		"pallet":     pallet,
		"orderId":    o.ID.Hex(),
		"trackingId": o.TrackingID,
		"error":      cause.Error(),
	}}
}

func newConfigUpdatedEvent(pallet string, cfg SettlementConfig) *types.Event {
	return &types.Event{Type: EventTypeSettlementConfigUpdate, Attributes: map[string]string{
		"pallet":    pallet,
		"admin":     cfg.Admin.String(),
		"escrowKey": cfg.EscrowKey.String(),
		"treasury":  cfg.Treasury.String(),
	}}
}
