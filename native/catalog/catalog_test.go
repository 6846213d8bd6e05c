package catalog

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"genomarket/core/events"
	"genomarket/core/state"
	"genomarket/core/types"
	"genomarket/native/pricing"
	"genomarket/storage"
)

type pendingStub map[types.Address]bool

func (p pendingStub) IsPendingOrderBySellerExist(seller types.Address) (bool, error) {
	return p[seller], nil
}

func lab(b byte) types.Address {
	var a types.Address
	a[0] = b
	return a
}

func dnaTier() pricing.Tier {
	return pricing.Tier{
		Currency:   pricing.DBIO,
		Total:      big.NewInt(1000),
		Components: []pricing.Component{{Label: "testing_price", Value: big.NewInt(800)}},
		Additional: []pricing.Component{{Label: "qc_price", Value: big.NewInt(200)}},
	}
}

func newRegistry() *Registry {
	return NewRegistry(state.NewManager(storage.NewMemDB()))
}

func TestRegisterSellerAndAvailability(t *testing.T) {
	r := newRegistry()
	rec := &events.Recorder{}
	r.SetEmitter(rec)
	seller := lab(1)

	available, err := r.IsAvailable(seller)
	require.NoError(t, err)
	require.False(t, available)

	_, err = r.RegisterSeller(seller, "  Helix Lab ")
	require.NoError(t, err)
	_, err = r.RegisterSeller(seller, "Helix Lab")
	require.ErrorIs(t, err, ErrSellerExists)
	_, err = r.RegisterSeller(lab(2), " ")
	require.ErrorIs(t, err, ErrInvalidName)

	available, err = r.IsAvailable(seller)
	require.NoError(t, err)
	require.True(t, available)

	require.NoError(t, r.SetAvailable(seller, false))
	available, err = r.IsAvailable(seller)
	require.NoError(t, err)
	require.False(t, available)
	require.ErrorIs(t, r.SetAvailable(lab(9), true), ErrSellerNotFound)

	require.Equal(t, []string{EventTypeSellerRegistered, EventTypeSellerAvailability}, rec.Types())
}

func TestPutOffering(t *testing.T) {
	r := newRegistry()
	seller := lab(1)
	_, err := r.PutOffering(seller, Offering{Name: "WGS", Tiers: []pricing.Tier{dnaTier()}})
	require.ErrorIs(t, err, ErrSellerNotFound)

	_, err = r.RegisterSeller(seller, "Helix Lab")
	require.NoError(t, err)

	first, err := r.PutOffering(seller, Offering{Name: "WGS", Tiers: []pricing.Tier{dnaTier()}})
	require.NoError(t, err)
	second, err := r.PutOffering(seller, Offering{Name: "Exome", Tiers: []pricing.Tier{dnaTier()}})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	loaded, ok, err := r.OfferingByID(first.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, seller, loaded.OwnerID())
	require.Equal(t, "WGS", loaded.Name)
	require.Len(t, loaded.PriceTiers(), 1)
	require.Equal(t, int64(1000), loaded.PriceTiers()[0].Total.Int64())

	updated, err := r.PutOffering(seller, Offering{ID: first.ID, Name: "WGS 30x"})
	require.NoError(t, err)
	require.Equal(t, first.ID, updated.ID)

	bad := dnaTier()
	bad.Total = big.NewInt(1)
	_, err = r.PutOffering(seller, Offering{Name: "Broken", Tiers: []pricing.Tier{bad}})
	require.ErrorIs(t, err, pricing.ErrPriceMismatch)

	other := lab(2)
	_, err = r.RegisterSeller(other, "Other Lab")
	require.NoError(t, err)
	_, err = r.PutOffering(other, Offering{ID: first.ID, Name: "Hijack"})
	require.ErrorIs(t, err, ErrNotOfferingOwner)

	ids, err := r.OfferingsByOwner(seller)
	require.NoError(t, err)
	require.Equal(t, []types.Hash{first.ID, second.ID}, ids)
}

func TestDeregisterSellerBlockedByPendingOrders(t *testing.T) {
	r := newRegistry()
	seller := lab(1)
	pending := pendingStub{seller: true}
	r.AddPendingView(pending)

	_, err := r.RegisterSeller(seller, "Helix Lab")
	require.NoError(t, err)
	offering, err := r.PutOffering(seller, Offering{Name: "WGS", Tiers: []pricing.Tier{dnaTier()}})
	require.NoError(t, err)

	require.ErrorIs(t, r.DeregisterSeller(seller), ErrPendingOrders)

	pending[seller] = false
	require.NoError(t, r.DeregisterSeller(seller))
	_, ok, err := r.OfferingByID(offering.ID)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = r.Seller(seller)
	require.NoError(t, err)
	require.False(t, ok)
	require.ErrorIs(t, r.DeregisterSeller(seller), ErrSellerNotFound)
}
