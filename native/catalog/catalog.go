package catalog

import (
	"errors"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"genomarket/core/events"
	"genomarket/core/state"
	"genomarket/core/types"
	"genomarket/native/pricing"
)

var (
	ErrSellerExists      = errors.New("catalog: seller already registered")
	ErrSellerNotFound    = errors.New("catalog: seller not found")
	ErrOfferingNotFound  = errors.New("catalog: offering not found")
	ErrNotOfferingOwner  = errors.New("catalog: caller does not own offering")
	ErrInvalidName       = errors.New("catalog: invalid name")
	ErrPendingOrders     = errors.New("catalog: seller has pending orders")
	ErrTooManyOfferings  = errors.New("catalog: too many offerings")
	ErrStateUnconfigured = errors.New("catalog: state not configured")
)

const maxOfferingsPerSeller = 256

// Seller is a registered lab or service provider.
type Seller struct {
	Address   types.Address
	Name      string
	Available bool
	// Created counts offerings ever published; it seeds offering ids.
	Created uint64
}

// Offering is a purchasable service published by a seller.
type Offering struct {
	ID    types.Hash
	Owner types.Address
	Name  string
	Tiers []pricing.Tier
}

// OwnerID returns the publishing seller.
func (o *Offering) OwnerID() types.Address { return o.Owner }

// PriceTiers returns copies of the offering's tiers.
func (o *Offering) PriceTiers() []pricing.Tier {
	out := make([]pricing.Tier, len(o.Tiers))
	for i, t := range o.Tiers {
		out[i] = t.Clone()
	}
	return out
}

// PendingView answers whether a seller still has unresolved orders.
type PendingView interface {
	IsPendingOrderBySellerExist(seller types.Address) (bool, error)
}

// Registry stores sellers and their offerings.
type Registry struct {
	state   *state.Manager
	emitter events.Emitter
	pending []PendingView
}

// NewRegistry binds the catalog to state.
func NewRegistry(st *state.Manager) *Registry {
	return &Registry{state: st, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// AddPendingView registers a marketplace that must be drained before a
// seller can leave.
func (r *Registry) AddPendingView(view PendingView) {
	if view != nil {
		r.pending = append(r.pending, view)
	}
}

func (r *Registry) emit(evt *types.Event) {
	r.state.AfterCommit(func() { r.emitter.Emit(catalogEvent{evt: evt}) })
}

func (r *Registry) ready() error {
	if r == nil || r.state == nil {
		return ErrStateUnconfigured
	}
	return nil
}

func normalizeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || len(trimmed) > 128 {
		return "", ErrInvalidName
	}
	return trimmed, nil
}

// Seller loads a seller registration.
func (r *Registry) Seller(addr types.Address) (*Seller, bool, error) {
	if err := r.ready(); err != nil {
		return nil, false, err
	}
	seller := new(Seller)
	ok, err := r.state.KVGet(state.SellerKey(addr), seller)
	if err != nil || !ok {
		return nil, ok, err
	}
	return seller, true, nil
}

// RegisterSeller adds caller as an available seller.
func (r *Registry) RegisterSeller(caller types.Address, name string) (*Seller, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if caller.IsZero() {
		return nil, ErrSellerNotFound
	}
	normalized, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	if _, ok, err := r.Seller(caller); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrSellerExists
	}
	seller := &Seller{Address: caller, Name: normalized, Available: true}
	if err := r.state.KVPut(state.SellerKey(caller), seller); err != nil {
		return nil, err
	}
	r.emit(newSellerEvent(EventTypeSellerRegistered, seller))
	return seller, nil
}

// SetAvailable toggles whether the seller accepts new orders.
func (r *Registry) SetAvailable(caller types.Address, available bool) error {
	seller, ok, err := r.Seller(caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSellerNotFound
	}
	if seller.Available == available {
		return nil
	}
	seller.Available = available
	if err := r.state.KVPut(state.SellerKey(caller), seller); err != nil {
		return err
	}
	r.emit(newSellerEvent(EventTypeSellerAvailability, seller))
	return nil
}

// IsAvailable reports whether seller is registered and accepting orders.
func (r *Registry) IsAvailable(seller types.Address) (bool, error) {
	s, ok, err := r.Seller(seller)
	if err != nil || !ok {
		return false, err
	}
	return s.Available, nil
}

func offeringID(owner types.Address, seq uint64) (types.Hash, error) {
	encoded, err := rlp.EncodeToBytes([]interface{}{owner, seq})
	if err != nil {
		return types.Hash{}, err
	}
	return types.Hash(ethcrypto.Keccak256Hash(encoded)), nil
}

// PutOffering publishes a new offering, or replaces an existing one when
// offering.ID is set. Only the owning seller may publish.
func (r *Registry) PutOffering(caller types.Address, offering Offering) (*Offering, error) {
	seller, ok, err := r.Seller(caller)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSellerNotFound
	}
	name, err := normalizeName(offering.Name)
	if err != nil {
		return nil, err
	}
	for i, tier := range offering.Tiers {
		if err := tier.Validate(); err != nil {
			return nil, fmt.Errorf("tier %d: %w", i, err)
		}
	}

	out := &Offering{Owner: caller, Name: name, Tiers: offering.PriceTiers()}
	if !offering.ID.IsZero() {
		existing, ok, err := r.OfferingByID(offering.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrOfferingNotFound
		}
		if existing.Owner != caller {
			return nil, ErrNotOfferingOwner
		}
		out.ID = existing.ID
	} else {
		ids, err := r.state.HashList(state.OfferingsByOwnerKey(caller))
		if err != nil {
			return nil, err
		}
		if len(ids) >= maxOfferingsPerSeller {
			return nil, ErrTooManyOfferings
		}
		id, err := offeringID(caller, seller.Created)
		if err != nil {
			return nil, err
		}
		out.ID = id
		seller.Created++
		if err := r.state.KVPut(state.SellerKey(caller), seller); err != nil {
			return nil, err
		}
		if err := r.state.AppendHash(state.OfferingsByOwnerKey(caller), id); err != nil {
			return nil, err
		}
	}
	if err := r.state.KVPut(state.OfferingKey(out.ID), out); err != nil {
		return nil, err
	}
	r.emit(newOfferingEvent(out))
	return out, nil
}

// OfferingByID loads an offering.
func (r *Registry) OfferingByID(id types.Hash) (*Offering, bool, error) {
	if err := r.ready(); err != nil {
		return nil, false, err
	}
	offering := new(Offering)
	ok, err := r.state.KVGet(state.OfferingKey(id), offering)
	if err != nil || !ok {
		return nil, ok, err
	}
	return offering, true, nil
}

// OfferingsByOwner lists the offering ids published by owner.
func (r *Registry) OfferingsByOwner(owner types.Address) ([]types.Hash, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	return r.state.HashList(state.OfferingsByOwnerKey(owner))
}

// DeregisterSeller removes the seller and every offering it published. It is
// refused while any marketplace reports pending orders for the seller.
func (r *Registry) DeregisterSeller(caller types.Address) error {
	if _, ok, err := r.Seller(caller); err != nil {
		return err
	} else if !ok {
		return ErrSellerNotFound
	}
	for _, view := range r.pending {
		pending, err := view.IsPendingOrderBySellerExist(caller)
		if err != nil {
			return err
		}
		if pending {
			return ErrPendingOrders
		}
	}
	ids, err := r.state.HashList(state.OfferingsByOwnerKey(caller))
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := r.state.KVDelete(state.OfferingKey(id)); err != nil {
			return err
		}
	}
	if err := r.state.KVDelete(state.OfferingsByOwnerKey(caller)); err != nil {
		return err
	}
	if err := r.state.KVDelete(state.SellerKey(caller)); err != nil {
		return err
	}
	r.emit(&types.Event{Type: EventTypeSellerDeregistered, Attributes: map[string]string{
		"seller": caller.String(),
	}})
	return nil
}
