package runtime

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"genomarket/config"
	"genomarket/core/events"
	"genomarket/core/types"
	"genomarket/crypto"
	"genomarket/native/catalog"
	"genomarket/native/common"
	"genomarket/native/orders"
	"genomarket/native/tracking"
	"genomarket/storage"
)

const testChainID = 7

type harness struct {
	rt        *Runtime
	events    *events.Recorder
	customer  *crypto.PrivateKey
	seller    *crypto.PrivateKey
	admin     *crypto.PrivateKey
	escrowKey *crypto.PrivateKey
	treasury  types.Address
	offering  types.Hash
}

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key
}

func testGenesis(h *harness) *config.Genesis {
	settlement := config.GenesisSettlement{
		Admin:     h.admin.Address().Hex(),
		EscrowKey: h.escrowKey.Address().Hex(),
		Treasury:  h.treasury.Hex(),
	}
	return &config.Genesis{
		ChainID:            testChainID,
		ExistentialDeposit: "1",
		Accounts: []config.GenesisAccount{
			{Address: h.customer.Address().Hex(), Balance: "10000"},
			{Address: h.seller.Address().Hex(), Balance: "100"},
			{Address: h.treasury.Hex(), Balance: "10"},
		},
		Assets: []config.GenesisAsset{{
			ID:         1,
			Symbol:     "USN",
			MinBalance: "1",
			Sufficient: true,
			Balances:   []config.GenesisAccount{{Address: h.customer.Address().Hex(), Balance: "500"}},
		}},
		Sellers: []config.GenesisSeller{{
			Address: h.seller.Address().Hex(),
			Name:    "Helix Lab",
			Offerings: []config.GenesisOffering{{
				Name: "Whole genome",
				Tiers: []config.GenesisTier{
					{
						Currency:   "DBIO",
						Components: []config.GenesisComponent{{Label: "testing_price", Value: "900"}},
						Additional: []config.GenesisComponent{{Label: "qc_price", Value: "100"}},
					},
					{
						Currency:   "USN",
						Components: []config.GenesisComponent{{Label: "testing_price", Value: "80"}},
						Additional: []config.GenesisComponent{{Label: "qc_price", Value: "20"}},
					},
				},
			}},
		}},
		Settlement: map[string]config.GenesisSettlement{
			orders.DNAOrders.Name:             settlement,
			orders.GeneticAnalysisOrders.Name: settlement,
			orders.ServiceRequests.Name:       settlement,
		},
	}
}

func newHarness(t *testing.T, pauses common.PauseView) *harness {
	t.Helper()
	h := &harness{
		events:    &events.Recorder{},
		customer:  mustKey(t),
		seller:    mustKey(t),
		admin:     mustKey(t),
		escrowKey: mustKey(t),
		treasury:  types.Address{0x7E},
	}
	rt, err := New(storage.NewMemDB(), Options{
		ChainID:            testChainID,
		ExistentialDeposit: big.NewInt(1),
		Pauses:             pauses,
		Emitter:            h.events,
		Now:                func() int64 { return 1700000000 },
	})
	require.NoError(t, err)
	require.NoError(t, rt.ApplyGenesis(testGenesis(h)))
	h.rt = rt

	ids, err := rt.OfferingsByOwner(h.seller.Address())
	require.NoError(t, err)
	require.Len(t, ids, 1)
	h.offering = ids[0]
	h.events.Reset()
	return h
}

func (h *harness) nonce(t *testing.T, addr types.Address) uint64 {
	t.Helper()
	acc, err := h.rt.Account(addr)
	require.NoError(t, err)
	return acc.Nonce
}

func (h *harness) submit(t *testing.T, key *crypto.PrivateKey, call string, args interface{}) (*Receipt, error) {
	t.Helper()
	env, err := NewEnvelope(testChainID, key.Address(), h.nonce(t, key.Address()), call, args)
	require.NoError(t, err)
	require.NoError(t, env.Sign(key))
	return h.rt.Submit(context.Background(), env)
}

func (h *harness) mustSubmit(t *testing.T, key *crypto.PrivateKey, call string, args interface{}) interface{} {
	t.Helper()
	receipt, err := h.submit(t, key, call, args)
	require.NoError(t, err, call)
	return receipt.Result
}

func (h *harness) balance(t *testing.T, addr types.Address) *big.Int {
	t.Helper()
	acc, err := h.rt.Account(addr)
	require.NoError(t, err)
	return acc.Free
}

func (h *harness) createOrder(t *testing.T, pallet string) *orders.Order {
	t.Helper()
	result := h.mustSubmit(t, h.customer, pallet+".create", CreateOrderArgs{
		OfferingID:           h.offering,
		CustomerBoxPublicKey: []byte{0xB0, 0x0C},
	})
	order, ok := result.(*orders.Order)
	require.True(t, ok)
	return order
}

func (h *harness) advance(t *testing.T, kind, trackingID string, statuses ...string) {
	t.Helper()
	for _, status := range statuses {
		h.mustSubmit(t, h.seller, "tracking.update_status", TrackingArgs{Kind: kind, TrackingID: trackingID, Status: status})
	}
}

func TestOrderLifecycleThroughDispatcher(t *testing.T) {
	h := newHarness(t, nil)
	order := h.createOrder(t, "orders")
	require.Equal(t, orders.StatusUnpaid, order.Status)
	require.Equal(t, h.seller.Address(), order.Seller)
	require.NotEmpty(t, order.TrackingID)

	paid := h.mustSubmit(t, h.customer, "orders.pay", OrderArgs{OrderID: order.ID}).(*orders.Order)
	require.Equal(t, orders.StatusPaid, paid.Status)
	require.Equal(t, big.NewInt(9000), h.balance(t, h.customer.Address()))

	escrow, held, err := h.rt.EscrowBalance("orders", order.ID)
	require.NoError(t, err)
	require.Equal(t, orders.PalletAccount(orders.DNAOrders.Tag), escrow)
	require.Equal(t, big.NewInt(1000), held)

	h.advance(t, "dna-sample", order.TrackingID, "arrived", "in_progress", "result_ready")

	fulfilled := h.mustSubmit(t, h.escrowKey, "orders.fulfill", OrderArgs{OrderID: order.ID}).(*orders.Order)
	require.Equal(t, orders.StatusFulfilled, fulfilled.Status)
	require.Equal(t, big.NewInt(100+950), h.balance(t, h.seller.Address()))
	require.Equal(t, big.NewInt(10+50), h.balance(t, h.treasury))

	pending, err := h.rt.PendingOrdersBySeller("orders", h.seller.Address())
	require.NoError(t, err)
	require.Empty(t, pending)
	last, ok, err := h.rt.LastOrderByCustomer("orders", h.customer.Address())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, order.ID, last)

	require.Contains(t, h.events.Types(), orders.EventTypeOrderFulfilled)
	require.Contains(t, h.events.Types(), tracking.EventTypeStatusUpdated)
}

func TestRejectedSampleRefundsThroughDispatcher(t *testing.T) {
	h := newHarness(t, nil)
	order := h.createOrder(t, "genetic-analysis-orders")
	h.mustSubmit(t, h.customer, "genetic-analysis-orders.pay", OrderArgs{OrderID: order.ID})
	h.advance(t, "genetic-analysis", order.TrackingID, "arrived", "rejected")

	refunded := h.mustSubmit(t, h.escrowKey, "genetic-analysis-orders.refund", OrderArgs{OrderID: order.ID}).(*orders.Order)
	require.Equal(t, orders.StatusRefunded, refunded.Status)
	require.Equal(t, big.NewInt(9000+900), h.balance(t, h.customer.Address()))
	require.Equal(t, big.NewInt(100+100), h.balance(t, h.seller.Address()))
}

func TestTrackingFailureMarksOrderFailed(t *testing.T) {
	h := newHarness(t, nil)
	order := h.createOrder(t, "service-request")
	require.Equal(t, orders.SubAccount(orders.ServiceRequests.Tag, order.ID), order.Escrow)

	rec := h.mustSubmit(t, h.seller, "tracking.fail", TrackingArgs{Kind: "service-request", TrackingID: order.TrackingID}).(*tracking.Record)
	require.Equal(t, tracking.StatusFailed, rec.Status)

	stored, ok, err := h.rt.Order("service-request", order.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, orders.StatusFailed, stored.Status)
	require.Contains(t, h.events.Types(), orders.EventTypeOrderFailed)
}

func TestUnpaidOrderStaysCancellable(t *testing.T) {
	h := newHarness(t, nil)
	order := h.createOrder(t, "orders")

	for _, status := range []string{"rejected", "arrived"} {
		_, err := h.submit(t, h.seller, "tracking.update_status", TrackingArgs{Kind: "dna-sample", TrackingID: order.TrackingID, Status: status})
		require.ErrorIs(t, err, tracking.ErrOrderNotPaid)
		require.Equal(t, "OrderNotPaid", Code(err))
	}

	cancelled := h.mustSubmit(t, h.customer, "orders.cancel", OrderArgs{OrderID: order.ID}).(*orders.Order)
	require.Equal(t, orders.StatusCancelled, cancelled.Status)

	pending, err := h.rt.PendingOrdersBySeller("orders", h.seller.Address())
	require.NoError(t, err)
	require.Empty(t, pending)
	h.mustSubmit(t, h.seller, "catalog.deregister_seller", struct{}{})
}

func TestCommittedEventsCarryCallPosition(t *testing.T) {
	h := newHarness(t, nil)
	first := h.createOrder(t, "orders")
	second := h.createOrder(t, "orders")
	h.events.Reset()

	var hashes []string
	for _, order := range []*orders.Order{first, second} {
		receipt, err := h.submit(t, h.customer, "orders.pay", OrderArgs{OrderID: order.ID})
		require.NoError(t, err)
		hashes = append(hashes, receipt.Hash.Hex())
	}

	positions := make(map[string]bool)
	sources := make(map[string]bool)
	for _, evt := range h.events.Events() {
		payload, ok := evt.(events.Payload)
		if !ok {
			continue
		}
		attrs := payload.Event()
		source := attrs.Attr(events.AttrSource)
		key := source + "/" + attrs.Attr(events.AttrEventIndex)
		require.False(t, positions[key], key)
		positions[key] = true
		sources[source] = true
	}
	require.Len(t, sources, 2)
	for _, hash := range hashes {
		require.True(t, sources[hash], hash)
	}
}

func TestNonceHandling(t *testing.T) {
	h := newHarness(t, nil)
	customer := h.customer.Address()

	env, err := NewEnvelope(testChainID, customer, 5, "orders.create", CreateOrderArgs{OfferingID: h.offering})
	require.NoError(t, err)
	require.NoError(t, env.Sign(h.customer))
	_, err = h.rt.Submit(context.Background(), env)
	require.ErrorIs(t, err, ErrBadNonce)
	require.Equal(t, "BadNonce", Code(err))
	require.Zero(t, h.nonce(t, customer))

	// A failing call still consumes the nonce but changes nothing else.
	_, err = h.submit(t, h.customer, "orders.pay", OrderArgs{OrderID: types.Hash{0x01}})
	require.ErrorIs(t, err, orders.ErrOrderNotFound)
	require.Equal(t, uint64(1), h.nonce(t, customer))
	require.Empty(t, h.events.Events())
	require.Equal(t, big.NewInt(10000), h.balance(t, customer))

	h.createOrder(t, "orders")
	require.Equal(t, uint64(2), h.nonce(t, customer))
}

func TestNonceSurvivesReapedCaller(t *testing.T) {
	h := newHarness(t, nil)
	seller := h.seller.Address()
	h.mustSubmit(t, h.seller, "bank.transfer", TransferArgs{To: h.treasury, Amount: big.NewInt(100)})

	acc, err := h.rt.Account(seller)
	require.NoError(t, err)
	require.Zero(t, acc.Free.Sign())
	require.Equal(t, uint64(1), acc.Nonce)
	require.Equal(t, big.NewInt(110), h.balance(t, h.treasury))
}

func TestEnvelopeRejections(t *testing.T) {
	h := newHarness(t, nil)

	env, err := NewEnvelope(testChainID+1, h.customer.Address(), 0, "orders.create", CreateOrderArgs{})
	require.NoError(t, err)
	require.NoError(t, env.Sign(h.customer))
	_, err = h.rt.Submit(context.Background(), env)
	require.ErrorIs(t, err, ErrWrongChain)

	env, err = NewEnvelope(testChainID, h.customer.Address(), 0, "orders.create", CreateOrderArgs{})
	require.NoError(t, err)
	require.NoError(t, env.Sign(h.customer))
	env.Caller = h.seller.Address()
	_, err = h.rt.Submit(context.Background(), env)
	require.ErrorIs(t, err, ErrBadSignature)

	_, err = h.submit(t, h.customer, "orders.teleport", struct{}{})
	require.ErrorIs(t, err, ErrUnknownCall)

	_, err = h.submit(t, h.customer, "orders.pay", map[string]string{"order": "x"})
	require.ErrorIs(t, err, ErrInvalidArgs)
	require.Equal(t, "InvalidArguments", Code(err))

	_, err = h.submit(t, h.seller, "tracking.update_status", TrackingArgs{Kind: "blood-test", TrackingID: "X"})
	require.ErrorIs(t, err, ErrUnknownPallet)

	_, err = h.rt.Submit(context.Background(), nil)
	require.ErrorIs(t, err, ErrInvalidArgs)
}

func TestPausedModuleRejectsCalls(t *testing.T) {
	h := newHarness(t, common.Pauses{"catalog": true, "orders": true})

	_, err := h.submit(t, h.customer, "catalog.register_seller", RegisterSellerArgs{Name: "Other"})
	require.ErrorIs(t, err, common.ErrModulePaused)
	require.Equal(t, "ModulePaused", Code(err))
	require.True(t, Retryable(err))

	_, err = h.submit(t, h.customer, "orders.create", CreateOrderArgs{OfferingID: h.offering})
	require.ErrorIs(t, err, common.ErrModulePaused)

	h.createOrder(t, "genetic-analysis-orders")
}

func TestCatalogCallsAndPendingGuard(t *testing.T) {
	h := newHarness(t, nil)
	h.createOrder(t, "orders")

	_, err := h.submit(t, h.seller, "catalog.deregister_seller", struct{}{})
	require.ErrorIs(t, err, catalog.ErrPendingOrders)
	require.Equal(t, "PendingOrders", Code(err))

	seller := h.mustSubmit(t, h.seller, "catalog.set_available", AvailabilityArgs{Available: false}).(*catalog.Seller)
	require.False(t, seller.Available)

	_, err = h.submit(t, h.customer, "orders.create", CreateOrderArgs{OfferingID: h.offering})
	require.ErrorIs(t, err, orders.ErrSellerUnavailable)

	offering, ok, err := h.rt.Offering(h.offering)
	require.NoError(t, err)
	require.True(t, ok)
	updated := h.mustSubmit(t, h.seller, "catalog.put_offering", PutOfferingArgs{
		ID:    h.offering,
		Name:  "Exome",
		Tiers: offering.Tiers[:1],
	}).(*catalog.Offering)
	require.Equal(t, h.offering, updated.ID)
	require.Equal(t, "Exome", updated.Name)
}

func TestUpdateConfigRequiresAdmin(t *testing.T) {
	h := newHarness(t, nil)
	next := SettlementConfigArgs{Admin: h.admin.Address(), EscrowKey: h.seller.Address(), Treasury: h.treasury}

	_, err := h.submit(t, h.customer, "orders.update_config", next)
	require.ErrorIs(t, err, orders.ErrUnauthorized)

	h.mustSubmit(t, h.admin, "orders.update_config", next)
	cfg, err := h.rt.SettlementConfig("orders")
	require.NoError(t, err)
	require.Equal(t, h.seller.Address(), cfg.EscrowKey)

	other, err := h.rt.SettlementConfig("service-request")
	require.NoError(t, err)
	require.Equal(t, h.escrowKey.Address(), other.EscrowKey)
}

func TestAssetTransferAndOrder(t *testing.T) {
	h := newHarness(t, nil)
	assetID := uint32(1)

	_, err := h.submit(t, h.customer, "assets.transfer", TransferArgs{To: h.seller.Address(), Amount: big.NewInt(5)})
	require.ErrorIs(t, err, ErrInvalidArgs)

	h.mustSubmit(t, h.customer, "assets.transfer", TransferArgs{To: h.seller.Address(), Amount: big.NewInt(5), AssetID: &assetID, KeepAlive: true})
	balance, err := h.rt.AssetBalance(assetID, h.seller.Address())
	require.NoError(t, err)
	require.Equal(t, big.NewInt(5), balance)

	_, err = h.submit(t, h.customer, "assets.transfer", TransferArgs{To: h.seller.Address(), Amount: big.NewInt(1000), AssetID: &assetID})
	require.ErrorIs(t, err, orders.ErrInsufficientBalance)
	require.True(t, Retryable(err))

	result := h.mustSubmit(t, h.customer, "orders.create", CreateOrderArgs{OfferingID: h.offering, PriceIndex: 1, AssetID: &assetID})
	order := result.(*orders.Order)
	require.NotNil(t, order.AssetID)
	h.mustSubmit(t, h.customer, "orders.pay", OrderArgs{OrderID: order.ID})
	balance, err = h.rt.AssetBalance(assetID, h.customer.Address())
	require.NoError(t, err)
	require.Equal(t, big.NewInt(500-5-100), balance)
}

func TestGenesisAppliesOnce(t *testing.T) {
	h := newHarness(t, nil)
	ok, err := h.rt.Initialized()
	require.NoError(t, err)
	require.True(t, ok)
	require.ErrorIs(t, h.rt.ApplyGenesis(testGenesis(h)), ErrGenesisApplied)

	g := testGenesis(h)
	g.ChainID = testChainID + 1
	require.ErrorIs(t, h.rt.ApplyGenesis(g), ErrChainMismatch)

	g = testGenesis(h)
	g.Settlement["blood-test"] = g.Settlement["orders"]
	rt, err := New(storage.NewMemDB(), Options{ChainID: testChainID})
	require.NoError(t, err)
	require.ErrorIs(t, rt.ApplyGenesis(g), ErrUnknownPallet)
	ok, err = rt.Initialized()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCodeKeepsSettlementClassification(t *testing.T) {
	wrapped := fmt.Errorf("%w: %w", orders.ErrTrackingInitialization, tracking.ErrTrackingExists)
	require.Equal(t, "TrackingInitializationError", Code(wrapped))
	require.True(t, Retryable(wrapped))

	require.Equal(t, "TrackingRecordNotFound", Code(tracking.ErrTrackingNotFound))
	require.Equal(t, "Unauthorized", Code(catalog.ErrNotOfferingOwner))
	require.Equal(t, "Internal", Code(errors.New("boom")))
	require.False(t, Retryable(errors.New("boom")))
	require.Equal(t, "", Code(nil))
}

func TestCallsListsEveryPallet(t *testing.T) {
	h := newHarness(t, nil)
	calls := h.rt.Calls()
	for _, pallet := range h.rt.Pallets() {
		for _, op := range []string{"create", "cancel", "pay", "fulfill", "refund", "update_config"} {
			require.Contains(t, calls, pallet+"."+op)
		}
	}
	require.Contains(t, calls, "tracking.fail")
}
