package catalog

import (
	"strconv"

	"genomarket/core/types"
)

const (
	EventTypeSellerRegistered   = "catalog.seller.registered"
	EventTypeSellerAvailability = "catalog.seller.availability"
	EventTypeSellerDeregistered = "catalog.seller.deregistered"
	EventTypeOfferingPublished  = "catalog.offering.published"
)

type catalogEvent struct {
	evt *types.Event
}

func (e catalogEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e catalogEvent) Event() *types.Event { return e.evt }

func newSellerEvent(eventType string, s *Seller) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"seller":    s.Address.String(),
		"name":      s.Name,
		"available": strconv.FormatBool(s.Available),
	}}
}

func newOfferingEvent(o *Offering) *types.Event {
	return &types.Event{Type: EventTypeOfferingPublished, Attributes: map[string]string{
		"id":    o.ID.Hex(),
		"owner": o.Owner.String(),
		"name":  o.Name,
		"tiers": strconv.Itoa(len(o.Tiers)),
	}}
}
