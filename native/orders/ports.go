package orders

import (
	"math/big"

	"genomarket/core/types"
	"genomarket/native/common"
	"genomarket/native/pricing"
)

// Offering is the purchasable item as seen by the settlement engine.
type Offering interface {
	OwnerID() types.Address
	PriceTiers() []pricing.Tier
}

// OfferingProvider resolves offerings by id.
type OfferingProvider interface {
	OfferingByID(id types.Hash) (Offering, bool, error)
}

// SellerAvailability reports whether a seller accepts new orders.
type SellerAvailability interface {
	IsAvailable(seller types.Address) (bool, error)
}

// TrackingRecord is the external workflow record linked to an order.
type TrackingRecord interface {
	TrackingID() string
	IsRegistered() bool
	ProcessSuccess() bool
	IsRejected() bool
}

// TrackingProvider owns the tracking records.
type TrackingProvider interface {
	Register(seller, customer types.Address, orderID types.Hash) (TrackingRecord, error)
	ByTrackingID(id string) (TrackingRecord, bool, error)
	Delete(id string) error
}

// NativeLedger is the native-currency ledger.
type NativeLedger interface {
	Transfer(from, to types.Address, amount *big.Int, policy common.ExistencePolicy) error
	FreeBalance(addr types.Address) (*big.Int, error)
	AccountNonce(addr types.Address) (uint64, error)
	EnsureModuleAccount(addr types.Address) error
}

// AssetLedger is the fungible-asset ledger.
type AssetLedger interface {
	Transfer(assetID uint32, from, to types.Address, amount *big.Int, keepAlive bool) error
	Balance(assetID uint32, addr types.Address) (*big.Int, error)
	Symbol(assetID uint32) ([]byte, error)
}
