package orders

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"genomarket/core/events"
	"genomarket/core/state"
	"genomarket/core/types"
	"genomarket/native/common"
	"genomarket/native/pricing"
	"genomarket/observability/logging"
)

// Engine settles marketplace orders for one Variant. Every mutating call runs
// in its own atomic state scope: on error nothing is written and no event is
// emitted.
type Engine struct {
	variant   Variant
	state     *state.Manager
	native    NativeLedger
	assets    AssetLedger
	offerings OfferingProvider
	sellers   SellerAvailability
	tracking  TrackingProvider
	emitter   events.Emitter
	pauses    common.PauseView
	logger    *slog.Logger
	nowFn     func() int64
}

// NewEngine creates an engine for the marketplace variant.
func NewEngine(variant Variant) *Engine {
	return &Engine{
		variant: variant,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// Variant returns the marketplace configuration.
func (e *Engine) Variant() Variant { return e.variant }

// SetState configures the state backend.
func (e *Engine) SetState(st *state.Manager) { e.state = st }

// SetLedgers wires the native and asset ledgers.
func (e *Engine) SetLedgers(native NativeLedger, assets AssetLedger) {
	e.native = native
	e.assets = assets
}

// SetCatalog wires the offering and seller providers.
func (e *Engine) SetCatalog(offerings OfferingProvider, sellers SellerAvailability) {
	e.offerings = offerings
	e.sellers = sellers
}

// SetTracking wires the tracking provider of the variant's kind.
func (e *Engine) SetTracking(tracking TrackingProvider) { e.tracking = tracking }

// SetPauses wires the pause view consulted before every mutation.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetLogger overrides the default logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// SetNowFunc overrides the clock used for timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt *types.Event) {
	if evt == nil {
		return
	}
	e.state.AfterCommit(func() { e.emitter.Emit(orderEvent{evt: evt}) })
}

func (e *Engine) now() int64 { return e.nowFn() }

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return fmt.Errorf("orders: state not configured")
	}
	if e.native == nil {
		return fmt.Errorf("%w: native ledger", ErrCollaboratorUnconfigured)
	}
	return nil
}

// mutate runs fn atomically after the readiness and pause checks.
func (e *Engine) mutate(fn func() error) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, e.variant.Name); err != nil {
		return err
	}
	return e.state.Atomic(fn)
}

// OrderID derives the id of the order a customer places for an offering at
// the given account nonce.
func OrderID(customer types.Address, offeringID types.Hash, nonce uint64) (types.Hash, error) {
	encoded, err := rlp.EncodeToBytes([]interface{}{customer, offeringID, nonce})
	if err != nil {
		return types.Hash{}, err
	}
	return types.Hash(ethcrypto.Keccak256Hash(encoded)), nil
}

func (e *Engine) lookupTracking(o *Order) (TrackingRecord, bool, error) {
	if e.tracking == nil {
		return nil, false, fmt.Errorf("%w: tracking", ErrCollaboratorUnconfigured)
	}
	if o.TrackingID == "" {
		return nil, false, nil
	}
	return e.tracking.ByTrackingID(o.TrackingID)
}

// CreateOrder opens an unpaid order for offeringID at the chosen price tier
// and registers its tracking record. No funds move.
func (e *Engine) CreateOrder(customer types.Address, offeringID types.Hash, priceIndex uint32, customerBoxPublicKey []byte, assetID *uint32) (*Order, error) {
	var created *Order
	err := e.mutate(func() error {
		if e.offerings == nil || e.sellers == nil || e.tracking == nil {
			return ErrCollaboratorUnconfigured
		}
		if customer.IsZero() {
			return ErrBadOrigin
		}
		offering, ok, err := e.offerings.OfferingByID(offeringID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrOfferingDoesNotExist
		}
		seller := offering.OwnerID()
		available, err := e.sellers.IsAvailable(seller)
		if err != nil {
			return err
		}
		if !available {
			return ErrSellerUnavailable
		}
		tier, err := pricing.Resolve(offering.PriceTiers(), priceIndex)
		if err != nil {
			return err
		}
		if err := tier.Validate(); err != nil {
			return err
		}
		var symbols pricing.SymbolSource
		if e.assets != nil {
			symbols = e.assets
		}
		validatedAsset, err := pricing.ValidateAsset(tier.Currency, assetID, symbols)
		if err != nil {
			return err
		}
		pallet, err := e.PalletAccount()
		if err != nil {
			return err
		}

		nonce, err := e.native.AccountNonce(customer)
		if err != nil {
			return err
		}
		id, err := OrderID(customer, offeringID, nonce)
		if err != nil {
			return err
		}
		if exists, err := e.orderExists(id); err != nil {
			return err
		} else if exists {
			return ErrOrderExists
		}

		escrow := pallet
		if e.variant.PerOrderEscrow {
			escrow = SubAccount(e.variant.Tag, id)
			if err := e.native.EnsureModuleAccount(escrow); err != nil {
				return mapLedgerError(err)
			}
		}

		rec, err := e.tracking.Register(seller, customer, id)
		if err != nil {
			return wrap(ErrTrackingInitialization, err)
		}

		now := e.now()
		order := &Order{
			ID:                   id,
			OfferingID:           offeringID,
			Customer:             customer,
			Seller:               seller,
			CustomerBoxPublicKey: append([]byte(nil), customerBoxPublicKey...),
			TrackingID:           rec.TrackingID(),
			AssetID:              validatedAsset,
			Currency:             tier.Currency,
			PriceComponents:      tier.Components,
			AdditionalComponents: tier.Additional,
			TotalPrice:           tier.Total,
			Escrow:               escrow,
			Status:               StatusUnpaid,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := e.storeOrder(order); err != nil {
			return err
		}
		if err := e.indexNew(order); err != nil {
			return err
		}
		e.emit(newOrderEvent(EventTypeOrderCreated, e.variant.Name, order))
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("order created",
		slog.String("pallet", e.variant.Name),
		slog.String("order_id", created.ID.Hex()),
		slog.String("currency", created.Currency.String()),
		logging.MaskBytes("customer_box_public_key", created.CustomerBoxPublicKey))
	return created.Clone(), nil
}

// CancelOrder lets the customer withdraw before the lab starts work. A paid
// order is refunded from escrow and ends Refunded; otherwise it ends
// Cancelled.
func (e *Engine) CancelOrder(caller types.Address, id types.Hash) (*Order, error) {
	var out *Order
	err := e.mutate(func() error {
		o, err := e.loadOrder(id)
		if err != nil {
			return err
		}
		rec, tracked, err := e.lookupTracking(o)
		if err != nil {
			return err
		}
		if err := canCancel(o, caller, rec, tracked); err != nil {
			return err
		}
		eventType := EventTypeOrderCancelled
		if o.Status == StatusPaid {
			if o.Currency.Transferable() {
				if err := e.transfer(o.Currency, o.Escrow, o.Customer, o.TotalPrice, o.AssetID, false); err != nil {
					return err
				}
				if err := e.adjustCustody(o.Currency, new(big.Int).Neg(o.TotalPrice)); err != nil {
					return err
				}
			}
			o.Status = StatusRefunded
			eventType = EventTypeOrderRefunded
		} else {
			o.Status = StatusCancelled
		}
		if err := e.indexTerminal(o); err != nil {
			return err
		}
		if tracked {
			e.cleanupTracking(o)
		}
		o.UpdatedAt = e.now()
		if err := e.storeOrder(o); err != nil {
			return err
		}
		e.emit(newOrderEvent(eventType, e.variant.Name, o))
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// cleanupTracking deletes the order's tracking record. A failed deletion does
// not block the cancellation; its writes are discarded and the failure is
// logged and reported as an event.
func (e *Engine) cleanupTracking(o *Order) {
	err := e.state.Atomic(func() error { return e.tracking.Delete(o.TrackingID) })
	if err == nil {
		return
	}
	e.logger.Warn("tracking cleanup failed",
		slog.String("pallet", e.variant.Name),
		slog.String("order_id", o.ID.Hex()),
		slog.String("tracking_id", o.TrackingID),
		slog.Any("error", err))
	e.emit(newTrackingCleanupFailedEvent(e.variant.Name, o, err))
}

// SetOrderPaid moves the order total into escrow. For transferable currencies
// the customer pays; otherwise the escrow key confirms an off-chain payment.
func (e *Engine) SetOrderPaid(caller types.Address, id types.Hash) (*Order, error) {
	var out *Order
	err := e.mutate(func() error {
		cfg, err := e.loadConfig()
		if err != nil {
			return err
		}
		o, err := e.loadOrder(id)
		if err != nil {
			return err
		}
		if err := canPay(o, caller, cfg); err != nil {
			return err
		}
		if o.Currency.Transferable() {
			if err := e.transfer(o.Currency, o.Customer, o.Escrow, o.TotalPrice, o.AssetID, true); err != nil {
				return err
			}
			if err := e.adjustCustody(o.Currency, o.TotalPrice); err != nil {
				return err
			}
		}
		o.Status = StatusPaid
		o.UpdatedAt = e.now()
		if err := e.storeOrder(o); err != nil {
			return err
		}
		e.emit(newOrderEvent(EventTypeOrderPaid, e.variant.Name, o))
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// FulfillOrder releases escrow after the lab reports success: the fee goes to
// the treasury, the rest to the seller.
func (e *Engine) FulfillOrder(caller types.Address, id types.Hash) (*Order, error) {
	var out *Order
	err := e.mutate(func() error {
		cfg, err := e.loadConfig()
		if err != nil {
			return err
		}
		if caller != cfg.EscrowKey {
			return ErrUnauthorized
		}
		o, err := e.loadOrder(id)
		if err != nil {
			return err
		}
		rec, tracked, err := e.lookupTracking(o)
		if err != nil {
			return err
		}
		if err := canFulfill(o, rec, tracked); err != nil {
			return err
		}
		fee, payout, err := splitFee(o.TotalPrice)
		if err != nil {
			return err
		}
		if o.Currency.Transferable() {
			if err := e.transfer(o.Currency, o.Escrow, cfg.Treasury, fee, o.AssetID, false); err != nil {
				return err
			}
			if err := e.transfer(o.Currency, o.Escrow, o.Seller, payout, o.AssetID, false); err != nil {
				return err
			}
			if err := e.adjustCustody(o.Currency, new(big.Int).Neg(o.TotalPrice)); err != nil {
				return err
			}
		}
		o.Status = StatusFulfilled
		o.UpdatedAt = e.now()
		if err := e.indexTerminal(o); err != nil {
			return err
		}
		if err := e.storeOrder(o); err != nil {
			return err
		}
		e.emit(newSettlementEvent(EventTypeOrderFulfilled, e.variant.Name, o, map[string]*big.Int{
			"fee":    fee,
			"payout": payout,
		}))
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// SetOrderRefunded settles a rejected order: the price components go back to
// the customer and the additional (QC) components go to the seller.
func (e *Engine) SetOrderRefunded(caller types.Address, id types.Hash) (*Order, error) {
	var out *Order
	err := e.mutate(func() error {
		cfg, err := e.loadConfig()
		if err != nil {
			return err
		}
		if caller != cfg.EscrowKey {
			return ErrUnauthorized
		}
		o, err := e.loadOrder(id)
		if err != nil {
			return err
		}
		rec, tracked, err := e.lookupTracking(o)
		if err != nil {
			return err
		}
		if err := canRefund(o, rec, tracked); err != nil {
			return err
		}
		refund := o.TestingTotal()
		qc := o.AdditionalTotal()
		if new(big.Int).Add(refund, qc).Cmp(o.TotalPrice) != 0 {
			return ErrPriceMismatch
		}
		if o.Currency.Transferable() {
			if err := e.transfer(o.Currency, o.Escrow, o.Customer, refund, o.AssetID, false); err != nil {
				return err
			}
			if err := e.transfer(o.Currency, o.Escrow, o.Seller, qc, o.AssetID, false); err != nil {
				return err
			}
			if err := e.adjustCustody(o.Currency, new(big.Int).Neg(o.TotalPrice)); err != nil {
				return err
			}
		}
		o.Status = StatusRefunded
		o.UpdatedAt = e.now()
		if err := e.indexTerminal(o); err != nil {
			return err
		}
		if err := e.storeOrder(o); err != nil {
			return err
		}
		e.emit(newSettlementEvent(EventTypeOrderRefunded, e.variant.Name, o, map[string]*big.Int{
			"refund": refund,
			"qc":     qc,
		}))
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// UpdateStatusFailed marks an unpaid order as failed after its tracked work
// failed hard. Paid orders hold funds and must go through the refund path.
func (e *Engine) UpdateStatusFailed(id types.Hash) error {
	return e.mutate(func() error {
		o, err := e.loadOrder(id)
		if err != nil {
			return err
		}
		if o.Status != StatusUnpaid {
			return fmt.Errorf("%w: status %s", ErrOrderCannotBeFailed, o.Status)
		}
		o.Status = StatusFailed
		o.UpdatedAt = e.now()
		if err := e.indexTerminal(o); err != nil {
			return err
		}
		if err := e.storeOrder(o); err != nil {
			return err
		}
		e.emit(newOrderEvent(EventTypeOrderFailed, e.variant.Name, o))
		return nil
	})
}

// GetOrderByID returns the order, if any.
func (e *Engine) GetOrderByID(id types.Hash) (*Order, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	o, err := e.loadOrder(id)
	if errors.Is(err, ErrOrderNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return o, true, nil
}

// IsOrderPaid reports whether the order exists and is Paid.
func (e *Engine) IsOrderPaid(id types.Hash) (bool, error) {
	o, ok, err := e.GetOrderByID(id)
	if err != nil || !ok {
		return false, err
	}
	return o.Status == StatusPaid, nil
}

// IsPendingOrderBySellerExist reports whether the seller has any order that
// is not yet terminal.
func (e *Engine) IsPendingOrderBySellerExist(seller types.Address) (bool, error) {
	pending, err := e.PendingOrdersBySeller(seller)
	if err != nil {
		return false, err
	}
	return len(pending) > 0, nil
}

// EscrowBalance returns the custody balance backing the order's currency.
// For the pooled variants this is the balance of the whole pallet account.
func (e *Engine) EscrowBalance(id types.Hash) (types.Address, *big.Int, error) {
	if err := e.ready(); err != nil {
		return types.Address{}, nil, err
	}
	o, err := e.loadOrder(id)
	if err != nil {
		return types.Address{}, nil, err
	}
	bal, err := e.balance(o.Currency, o.Escrow, o.AssetID)
	if err != nil {
		return types.Address{}, nil, err
	}
	return o.Escrow, bal, nil
}
