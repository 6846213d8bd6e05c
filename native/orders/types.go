package orders

import (
	"fmt"
	"math/big"

	"genomarket/core/types"
	"genomarket/native/pricing"
)

// Status is the settlement state of an order.
type Status uint8

const (
	StatusUnpaid Status = iota
	StatusPaid
	StatusFulfilled
	StatusRefunded
	StatusCancelled
	StatusFailed
)

var statusNames = map[Status]string{
	StatusUnpaid:    "unpaid",
	StatusPaid:      "paid",
	StatusFulfilled: "fulfilled",
	StatusRefunded:  "refunded",
	StatusCancelled: "cancelled",
	StatusFailed:    "failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusFulfilled, StatusRefunded, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// Order is one marketplace purchase and the escrow it drives.
type Order struct {
	ID                   types.Hash
	OfferingID           types.Hash
	Customer             types.Address
	Seller               types.Address
	CustomerBoxPublicKey []byte
	TrackingID           string
	// AssetID is nil for the native currency.
	AssetID              *uint32
	Currency             pricing.Currency
	PriceComponents      []pricing.Component
	AdditionalComponents []pricing.Component
	TotalPrice           *big.Int
	// Escrow is the custody account holding the funds while Paid.
	Escrow    types.Address
	Status    Status
	CreatedAt int64
	UpdatedAt int64
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func cloneComponents(in []pricing.Component) []pricing.Component {
	out := make([]pricing.Component, len(in))
	for i, c := range in {
		out[i] = pricing.Component{Label: c.Label, Value: cloneBigInt(c.Value)}
	}
	return out
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.CustomerBoxPublicKey = append([]byte(nil), o.CustomerBoxPublicKey...)
	if o.AssetID != nil {
		id := *o.AssetID
		clone.AssetID = &id
	}
	clone.PriceComponents = cloneComponents(o.PriceComponents)
	clone.AdditionalComponents = cloneComponents(o.AdditionalComponents)
	clone.TotalPrice = cloneBigInt(o.TotalPrice)
	return &clone
}

// TestingTotal sums the price components refunded to the customer on
// rejection.
func (o *Order) TestingTotal() *big.Int { return pricing.Sum(o.PriceComponents) }

// AdditionalTotal sums the additional (QC) components kept by the seller on
// rejection.
func (o *Order) AdditionalTotal() *big.Int { return pricing.Sum(o.AdditionalComponents) }

// storedOrder is the persisted form; rlp has no signed integers or optional
// pointers.
type storedOrder struct {
	ID                   types.Hash
	OfferingID           types.Hash
	Customer             types.Address
	Seller               types.Address
	CustomerBoxPublicKey []byte
	TrackingID           string
	HasAsset             bool
	AssetID              uint32
	Currency             pricing.Currency
	PriceComponents      []pricing.Component
	AdditionalComponents []pricing.Component
	TotalPrice           *big.Int
	Escrow               types.Address
	Status               Status
	CreatedAt            uint64
	UpdatedAt            uint64
}

func unixToUint(ts int64) uint64 {
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func newStoredOrder(o *Order) *storedOrder {
	s := &storedOrder{
		ID:                   o.ID,
		OfferingID:           o.OfferingID,
		Customer:             o.Customer,
		Seller:               o.Seller,
		CustomerBoxPublicKey: append([]byte(nil), o.CustomerBoxPublicKey...),
		TrackingID:           o.TrackingID,
		Currency:             o.Currency,
		PriceComponents:      cloneComponents(o.PriceComponents),
		AdditionalComponents: cloneComponents(o.AdditionalComponents),
		TotalPrice:           cloneBigInt(o.TotalPrice),
		Escrow:               o.Escrow,
		Status:               o.Status,
		CreatedAt:            unixToUint(o.CreatedAt),
		UpdatedAt:            unixToUint(o.UpdatedAt),
	}
	if o.AssetID != nil {
		s.HasAsset = true
		s.AssetID = *o.AssetID
	}
	return s
}

func (s *storedOrder) order() *Order {
	o := &Order{
		ID:                   s.ID,
		OfferingID:           s.OfferingID,
		Customer:             s.Customer,
		Seller:               s.Seller,
		CustomerBoxPublicKey: append([]byte(nil), s.CustomerBoxPublicKey...),
		TrackingID:           s.TrackingID,
		Currency:             s.Currency,
		PriceComponents:      cloneComponents(s.PriceComponents),
		AdditionalComponents: cloneComponents(s.AdditionalComponents),
		TotalPrice:           cloneBigInt(s.TotalPrice),
		Escrow:               s.Escrow,
		Status:               s.Status,
		CreatedAt:            int64(s.CreatedAt),
		UpdatedAt:            int64(s.UpdatedAt),
	}
	if s.HasAsset {
		id := s.AssetID
		o.AssetID = &id
	}
	return o
}

// Variant configures one marketplace instance of the settlement engine.
type Variant struct {
	// Name identifies the pallet in calls, storage and events.
	Name string
	// Tag seeds the pallet escrow account.
	Tag string
	// TrackingKind names the kind of tracked work.
	TrackingKind string
	// PerOrderEscrow derives a custody sub-account for every order instead of
	// pooling funds in the pallet account.
	PerOrderEscrow bool
}

var (
	DNAOrders = Variant{
		Name:         "orders",
		Tag:          "dbio/ordr",
		TrackingKind: "dna-sample",
	}
	GeneticAnalysisOrders = Variant{
		Name:         "genetic-analysis-orders",
		Tag:          "dbio/gaor",
		TrackingKind: "genetic-analysis",
	}
	ServiceRequests = Variant{
		Name:           "service-request",
		Tag:            "dbio/svrq",
		TrackingKind:   "service-request",
		PerOrderEscrow: true,
	}
)

// Variants lists the built-in marketplaces.
func Variants() []Variant {
	return []Variant{DNAOrders, GeneticAnalysisOrders, ServiceRequests}
}
