package orders

import (
	"fmt"
	"math/big"

	"genomarket/core/state"
	"genomarket/core/types"
	"genomarket/native/pricing"
)

const (
	sectionOrder           = "order"
	sectionBySeller        = "by-seller"
	sectionByCustomer      = "by-customer"
	sectionPendingBySeller = "pending-by-seller"
	sectionLastByCustomer  = "last-by-customer"
	sectionCustody         = "custody"
)

func (e *Engine) key(section string, suffix []byte) []byte {
	return state.PalletKey(e.variant.Name, section, suffix)
}

func (e *Engine) loadOrder(id types.Hash) (*Order, error) {
	stored := new(storedOrder)
	ok, err := e.state.KVGet(e.key(sectionOrder, id[:]), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOrderNotFound
	}
	return stored.order(), nil
}

func (e *Engine) storeOrder(o *Order) error {
	return e.state.KVPut(e.key(sectionOrder, o.ID[:]), newStoredOrder(o))
}

func (e *Engine) orderExists(id types.Hash) (bool, error) {
	return e.state.KVHas(e.key(sectionOrder, id[:]))
}

// indexNew records a freshly created order in every secondary index.
func (e *Engine) indexNew(o *Order) error {
	if err := e.state.AppendHash(e.key(sectionBySeller, o.Seller[:]), o.ID); err != nil {
		return err
	}
	if err := e.state.AppendHash(e.key(sectionByCustomer, o.Customer[:]), o.ID); err != nil {
		return err
	}
	if err := e.state.AppendHash(e.key(sectionPendingBySeller, o.Seller[:]), o.ID); err != nil {
		return err
	}
	return e.state.KVPut(e.key(sectionLastByCustomer, o.Customer[:]), o.ID)
}

// indexTerminal drops a settled order from the seller's pending work. The
// audit-trail lists are never pruned.
func (e *Engine) indexTerminal(o *Order) error {
	_, err := e.state.RemoveHash(e.key(sectionPendingBySeller, o.Seller[:]), o.ID)
	return err
}

// adjustCustody moves the running total of funds the pallet holds in escrow
// for currency c. Per-order escrow accounts are included.
func (e *Engine) adjustCustody(c pricing.Currency, delta *big.Int) error {
	key := e.key(sectionCustody, []byte(c.String()))
	total := new(big.Int)
	if _, err := e.state.KVGet(key, total); err != nil {
		return err
	}
	total.Add(total, delta)
	if total.Sign() < 0 {
		return fmt.Errorf("orders: %s custody below zero", c)
	}
	return e.state.KVPut(key, total)
}

// Custody returns the funds held in escrow across all of the pallet's paid
// orders, by on-chain currency. Off-chain currencies are never held.
func (e *Engine) Custody() (map[pricing.Currency]*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	out := make(map[pricing.Currency]*big.Int)
	for _, c := range []pricing.Currency{pricing.DBIO, pricing.USN, pricing.USDTE} {
		total := new(big.Int)
		if _, err := e.state.KVGet(e.key(sectionCustody, []byte(c.String())), total); err != nil {
			return nil, err
		}
		out[c] = total
	}
	return out, nil
}

// OrdersBySeller lists every order ever placed with seller.
func (e *Engine) OrdersBySeller(seller types.Address) ([]types.Hash, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.HashList(e.key(sectionBySeller, seller[:]))
}

// OrdersByCustomer lists every order ever placed by customer.
func (e *Engine) OrdersByCustomer(customer types.Address) ([]types.Hash, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.HashList(e.key(sectionByCustomer, customer[:]))
}

// PendingOrdersBySeller lists the seller's orders that are not yet terminal.
func (e *Engine) PendingOrdersBySeller(seller types.Address) ([]types.Hash, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.HashList(e.key(sectionPendingBySeller, seller[:]))
}

// LastOrderByCustomer returns the customer's most recently created order.
func (e *Engine) LastOrderByCustomer(customer types.Address) (types.Hash, bool, error) {
	if err := e.ready(); err != nil {
		return types.Hash{}, false, err
	}
	var id types.Hash
	ok, err := e.state.KVGet(e.key(sectionLastByCustomer, customer[:]), &id)
	return id, ok, err
}
