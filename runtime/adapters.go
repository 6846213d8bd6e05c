package runtime

import (
	"genomarket/core/types"
	"genomarket/native/catalog"
	"genomarket/native/orders"
	"genomarket/native/tracking"
)

// offeringSource exposes catalog offerings to the settlement engines.
type offeringSource struct {
	registry *catalog.Registry
}

func (s offeringSource) OfferingByID(id types.Hash) (orders.Offering, bool, error) {
	offering, ok, err := s.registry.OfferingByID(id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return offering, true, nil
}

// trackingSource exposes one tracking registry to its settlement engine.
type trackingSource struct {
	registry *tracking.Registry
}

func (s trackingSource) Register(seller, customer types.Address, orderID types.Hash) (orders.TrackingRecord, error) {
	rec, err := s.registry.Register(seller, customer, orderID)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s trackingSource) ByTrackingID(id string) (orders.TrackingRecord, bool, error) {
	rec, ok, err := s.registry.ByTrackingID(id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return rec, true, nil
}

func (s trackingSource) Delete(id string) error { return s.registry.Delete(id) }
