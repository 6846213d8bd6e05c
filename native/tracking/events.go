package tracking

import (
	"strconv"

	"genomarket/core/types"
)

const (
	EventTypeRegistered    = "tracking.registered"
	EventTypeStatusUpdated = "tracking.status_updated"
	EventTypeDeleted       = "tracking.deleted"
)

type trackingEvent struct {
	evt *types.Event
}

func (e trackingEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e trackingEvent) Event() *types.Event { return e.evt }

func newRecordEvent(eventType string, rec *Record) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"trackingId": rec.ID,
		"kind":       rec.Kind,
		"orderId":    rec.OrderID.Hex(),
		"seller":     rec.Seller.String(),
		"status":     rec.Status.String(),
		"updatedAt":  strconv.FormatUint(rec.UpdatedAt, 10),
	}}
}
