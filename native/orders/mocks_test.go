package orders

import (
	"errors"
	"fmt"
	"math/big"

	"genomarket/core/types"
	"genomarket/native/common"
	"genomarket/native/pricing"
)

type offeringStub struct {
	owner types.Address
	tiers []pricing.Tier
}

func (o *offeringStub) OwnerID() types.Address     { return o.owner }
func (o *offeringStub) PriceTiers() []pricing.Tier { return o.tiers }

type catalogStub struct {
	offerings   map[types.Hash]*offeringStub
	unavailable map[types.Address]bool
}

func newCatalogStub() *catalogStub {
	return &catalogStub{
		offerings:   make(map[types.Hash]*offeringStub),
		unavailable: make(map[types.Address]bool),
	}
}

func (c *catalogStub) OfferingByID(id types.Hash) (Offering, bool, error) {
	o, ok := c.offerings[id]
	if !ok {
		return nil, false, nil
	}
	return o, true, nil
}

func (c *catalogStub) IsAvailable(seller types.Address) (bool, error) {
	return !c.unavailable[seller], nil
}

type recordStub struct {
	id       string
	orderID  types.Hash
	progress string
}

func (r *recordStub) TrackingID() string   { return r.id }
func (r *recordStub) IsRegistered() bool   { return r.progress == "" }
func (r *recordStub) ProcessSuccess() bool { return r.progress == "success" }
func (r *recordStub) IsRejected() bool     { return r.progress == "rejected" }

type trackingStub struct {
	records     map[string]*recordStub
	byOrder     map[types.Hash]string
	registerErr error
	deleteErr   error
	seq         int
}

func newTrackingStub() *trackingStub {
	return &trackingStub{
		records: make(map[string]*recordStub),
		byOrder: make(map[types.Hash]string),
	}
}

func (t *trackingStub) Register(seller, customer types.Address, orderID types.Hash) (TrackingRecord, error) {
	if t.registerErr != nil {
		return nil, t.registerErr
	}
	t.seq++
	rec := &recordStub{id: fmt.Sprintf("TRK%018d", t.seq), orderID: orderID}
	t.records[rec.id] = rec
	t.byOrder[orderID] = rec.id
	return rec, nil
}

func (t *trackingStub) ByTrackingID(id string) (TrackingRecord, bool, error) {
	rec, ok := t.records[id]
	if !ok {
		return nil, false, nil
	}
	return rec, true, nil
}

func (t *trackingStub) Delete(id string) error {
	if t.deleteErr != nil {
		return t.deleteErr
	}
	if _, ok := t.records[id]; !ok {
		return errors.New("tracking record not found")
	}
	delete(t.records, id)
	return nil
}

func (t *trackingStub) set(orderID types.Hash, progress string) {
	t.records[t.byOrder[orderID]].progress = progress
}

// failingLedger wraps a native ledger and refuses transfers to one account.
type failingLedger struct {
	NativeLedger
	failTo types.Address
	err    error
}

func (f *failingLedger) Transfer(from, to types.Address, amount *big.Int, policy common.ExistencePolicy) error {
	if to == f.failTo {
		return f.err
	}
	return f.NativeLedger.Transfer(from, to, amount, policy)
}
