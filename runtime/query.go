package runtime

import (
	"math/big"

	"genomarket/core/types"
	"genomarket/native/assets"
	"genomarket/native/catalog"
	"genomarket/native/orders"
	"genomarket/native/tracking"
)

// Order loads an order of a pallet.
func (r *Runtime) Order(pallet string, id types.Hash) (*orders.Order, bool, error) {
	engine, err := r.market(pallet)
	if err != nil {
		return nil, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return engine.GetOrderByID(id)
}

// OrdersByCustomer lists every order a customer ever placed on a pallet.
func (r *Runtime) OrdersByCustomer(pallet string, customer types.Address) ([]types.Hash, error) {
	engine, err := r.market(pallet)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return engine.OrdersByCustomer(customer)
}

// OrdersBySeller lists every order a seller ever received on a pallet.
func (r *Runtime) OrdersBySeller(pallet string, seller types.Address) ([]types.Hash, error) {
	engine, err := r.market(pallet)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return engine.OrdersBySeller(seller)
}

// PendingOrdersBySeller lists the seller's orders that are not terminal yet.
func (r *Runtime) PendingOrdersBySeller(pallet string, seller types.Address) ([]types.Hash, error) {
	engine, err := r.market(pallet)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return engine.PendingOrdersBySeller(seller)
}

func (r *Runtime) LastOrderByCustomer(pallet string, customer types.Address) (types.Hash, bool, error) {
	engine, err := r.market(pallet)
	if err != nil {
		return types.Hash{}, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return engine.LastOrderByCustomer(customer)
}

// EscrowBalance returns the custody account of an order and its balance in
// the order currency.
func (r *Runtime) EscrowBalance(pallet string, id types.Hash) (types.Address, *big.Int, error) {
	engine, err := r.market(pallet)
	if err != nil {
		return types.Address{}, nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return engine.EscrowBalance(id)
}

// SettlementConfig returns the privileged keys of a pallet.
func (r *Runtime) SettlementConfig(pallet string) (orders.SettlementConfig, error) {
	engine, err := r.market(pallet)
	if err != nil {
		return orders.SettlementConfig{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return engine.Config()
}

// Account returns the native ledger record of addr.
func (r *Runtime) Account(addr types.Address) (*types.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bank.Account(addr)
}

func (r *Runtime) AssetBalance(assetID uint32, addr types.Address) (*big.Int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.assets.Balance(assetID, addr)
}

// Tracking loads a tracking record of the given kind.
func (r *Runtime) Tracking(kind, id string) (*tracking.Record, bool, error) {
	reg, err := r.trackingRegistry(kind)
	if err != nil {
		return nil, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return reg.ByTrackingID(id)
}

func (r *Runtime) Seller(addr types.Address) (*catalog.Seller, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalog.Seller(addr)
}

func (r *Runtime) Offering(id types.Hash) (*catalog.Offering, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalog.OfferingByID(id)
}

func (r *Runtime) OfferingsByOwner(owner types.Address) ([]types.Hash, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalog.OfferingsByOwner(owner)
}

// Asset returns the metadata of a registered asset.
func (r *Runtime) Asset(assetID uint32) (*assets.Metadata, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.assets.Metadata(assetID)
}
