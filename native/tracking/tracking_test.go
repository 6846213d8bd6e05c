package tracking

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"genomarket/core/events"
	"genomarket/core/state"
	"genomarket/core/types"
	"genomarket/storage"
)

type observerStub struct {
	unpaid bool
	failed []types.Hash
	err    error
}

func (o *observerStub) IsOrderPaid(types.Hash) (bool, error) { return !o.unpaid, nil }

func (o *observerStub) UpdateStatusFailed(orderID types.Hash) error {
	if o.err != nil {
		return o.err
	}
	o.failed = append(o.failed, orderID)
	return nil
}

var (
	seller   = types.Address{0x01}
	customer = types.Address{0x02}
	orderID  = types.Hash{0xAA}
)

func newRegistry(t *testing.T) (*Registry, *state.Manager) {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	r := NewRegistry(mgr, KindDNASample)
	r.SetNowFunc(func() int64 { return 1700000000 })
	return r, mgr
}

func TestNewIDIsDeterministicPerKind(t *testing.T) {
	id := NewID(KindDNASample, orderID)
	require.Len(t, id, IDLength)
	require.Equal(t, id, NewID(KindDNASample, orderID))
	require.NotEqual(t, id, NewID(KindGeneticAnalysis, orderID))
}

func TestRegisterAndLookup(t *testing.T) {
	r, _ := newRegistry(t)
	rec := &events.Recorder{}
	r.SetEmitter(rec)

	created, err := r.Register(seller, customer, orderID)
	require.NoError(t, err)
	require.True(t, created.IsRegistered())
	require.Equal(t, uint64(1700000000), created.CreatedAt)

	_, err = r.Register(seller, customer, orderID)
	require.ErrorIs(t, err, ErrTrackingExists)
	_, err = r.Register(types.ZeroAddress, customer, types.Hash{0xBB})
	require.ErrorIs(t, err, ErrInvalidParty)

	loaded, ok, err := r.ByTrackingID(created.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, created, loaded)

	byOrder, ok, err := r.ByOrderID(orderID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, created.ID, byOrder.ID)

	require.NoError(t, r.Delete(created.ID))
	_, ok, err = r.ByOrderID(orderID)
	require.NoError(t, err)
	require.False(t, ok)
	require.ErrorIs(t, r.Delete(created.ID), ErrTrackingNotFound)

	require.Equal(t, []string{EventTypeRegistered, EventTypeDeleted}, rec.Types())
}

func TestLabWorkflow(t *testing.T) {
	r, _ := newRegistry(t)
	created, err := r.Register(seller, customer, orderID)
	require.NoError(t, err)

	_, err = r.UpdateStatus(customer, created.ID, StatusArrived)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = r.UpdateStatus(seller, created.ID, StatusResultReady)
	require.ErrorIs(t, err, ErrInvalidTransition)

	for _, next := range []Status{StatusArrived, StatusInProgress, StatusResultReady} {
		updated, err := r.UpdateStatus(seller, created.ID, next)
		require.NoError(t, err)
		require.Equal(t, next, updated.Status)
	}
	final, _, err := r.ByTrackingID(created.ID)
	require.NoError(t, err)
	require.True(t, final.ProcessSuccess())
	require.False(t, final.IsRegistered())

	_, err = r.UpdateStatus(seller, created.ID, StatusRejected)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRejectFromAnyActiveState(t *testing.T) {
	r, _ := newRegistry(t)
	created, err := r.Register(seller, customer, orderID)
	require.NoError(t, err)
	_, err = r.UpdateStatus(seller, created.ID, StatusArrived)
	require.NoError(t, err)
	rejected, err := r.UpdateStatus(seller, created.ID, StatusRejected)
	require.NoError(t, err)
	require.True(t, rejected.IsRejected())
}

func TestWorkStartsOnlyForPaidOrders(t *testing.T) {
	r, _ := newRegistry(t)
	observer := &observerStub{unpaid: true}
	r.SetOrderObserver(observer)
	created, err := r.Register(seller, customer, orderID)
	require.NoError(t, err)

	for _, next := range []Status{StatusArrived, StatusRejected} {
		_, err = r.UpdateStatus(seller, created.ID, next)
		require.ErrorIs(t, err, ErrOrderNotPaid)
	}
	loaded, _, err := r.ByTrackingID(created.ID)
	require.NoError(t, err)
	require.True(t, loaded.IsRegistered())

	observer.unpaid = false
	arrived, err := r.UpdateStatus(seller, created.ID, StatusArrived)
	require.NoError(t, err)
	require.Equal(t, StatusArrived, arrived.Status)

	observer.unpaid = true
	_, err = r.UpdateStatus(seller, created.ID, StatusRejected)
	require.NoError(t, err)
}

func TestFailNotifiesObserverAtomically(t *testing.T) {
	r, mgr := newRegistry(t)
	created, err := r.Register(seller, customer, orderID)
	require.NoError(t, err)

	_, err = r.Fail(seller, created.ID)
	require.ErrorIs(t, err, ErrNoOrderObserver)

	observer := &observerStub{err: errors.New("order already paid")}
	r.SetOrderObserver(observer)
	err = mgr.Atomic(func() error {
		_, err := r.Fail(seller, created.ID)
		return err
	})
	require.Error(t, err)
	loaded, _, err := r.ByTrackingID(created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRegistered, loaded.Status)

	observer.err = nil
	failed, err := r.Fail(seller, created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, failed.Status)
	require.Equal(t, []types.Hash{orderID}, observer.failed)

	_, err = r.Fail(seller, created.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" Result_Ready ")
	require.NoError(t, err)
	require.Equal(t, StatusResultReady, s)
	_, err = ParseStatus("lost")
	require.Error(t, err)
}
