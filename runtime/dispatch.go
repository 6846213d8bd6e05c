package runtime

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"genomarket/core/types"
	"genomarket/native/catalog"
	"genomarket/native/common"
	"genomarket/native/orders"
	"genomarket/native/pricing"
	"genomarket/native/tracking"
)

// Receipt describes an accepted envelope.
type Receipt struct {
	Hash   types.Hash
	Caller types.Address
	Nonce  uint64
	Call   string
	// Result is the record the call produced or changed, e.g. *orders.Order.
	Result interface{}
}

type handler func(caller types.Address, env *Envelope) (interface{}, error)

// CreateOrderArgs are the arguments of <pallet>.create.
type CreateOrderArgs struct {
	OfferingID           types.Hash    `json:"offeringId"`
	PriceIndex           uint32        `json:"priceIndex"`
	CustomerBoxPublicKey hexutil.Bytes `json:"customerBoxPublicKey"`
	AssetID              *uint32       `json:"assetId,omitempty"`
}

// OrderArgs are the arguments of cancel, pay, fulfill and refund.
type OrderArgs struct {
	OrderID types.Hash `json:"orderId"`
}

// SettlementConfigArgs are the arguments of <pallet>.update_config.
type SettlementConfigArgs struct {
	Admin     types.Address `json:"admin"`
	EscrowKey types.Address `json:"escrowKey"`
	Treasury  types.Address `json:"treasury"`
}

// TrackingArgs are the arguments of tracking.update_status and tracking.fail.
// Status is ignored by tracking.fail.
type TrackingArgs struct {
	Kind       string `json:"kind"`
	TrackingID string `json:"trackingId"`
	Status     string `json:"status,omitempty"`
}

type RegisterSellerArgs struct {
	Name string `json:"name"`
}

type AvailabilityArgs struct {
	Available bool `json:"available"`
}

// PutOfferingArgs publishes a new offering, or replaces the offering named by
// ID when it is set.
type PutOfferingArgs struct {
	ID    types.Hash     `json:"id"`
	Name  string         `json:"name"`
	Tiers []pricing.Tier `json:"tiers"`
}

// TransferArgs move native currency, or an asset when AssetID is set.
type TransferArgs struct {
	To        types.Address `json:"to"`
	Amount    *big.Int      `json:"amount"`
	AssetID   *uint32       `json:"assetId,omitempty"`
	KeepAlive bool          `json:"keepAlive"`
}

func (r *Runtime) buildRoutes() map[string]handler {
	routes := map[string]handler{
		"tracking.update_status":    r.updateTrackingStatus,
		"tracking.fail":             r.failTracking,
		"catalog.register_seller":   r.registerSeller,
		"catalog.set_available":     r.setAvailable,
		"catalog.put_offering":      r.putOffering,
		"catalog.deregister_seller": r.deregisterSeller,
		"bank.transfer":             r.transfer,
		"assets.transfer":           r.transfer,
	}
	for name, engine := range r.markets {
		routes[name+".create"] = func(caller types.Address, env *Envelope) (interface{}, error) {
			var args CreateOrderArgs
			if err := env.decodeArgs(&args); err != nil {
				return nil, err
			}
			return engine.CreateOrder(caller, args.OfferingID, args.PriceIndex, args.CustomerBoxPublicKey, args.AssetID)
		}
		routes[name+".cancel"] = orderRoute(engine.CancelOrder)
		routes[name+".pay"] = orderRoute(engine.SetOrderPaid)
		routes[name+".fulfill"] = orderRoute(engine.FulfillOrder)
		routes[name+".refund"] = orderRoute(engine.SetOrderRefunded)
		routes[name+".update_config"] = func(caller types.Address, env *Envelope) (interface{}, error) {
			var args SettlementConfigArgs
			if err := env.decodeArgs(&args); err != nil {
				return nil, err
			}
			cfg := orders.SettlementConfig{Admin: args.Admin, EscrowKey: args.EscrowKey, Treasury: args.Treasury}
			if err := engine.UpdateConfig(caller, cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
	}
	return routes
}

func orderRoute(op func(caller types.Address, id types.Hash) (*orders.Order, error)) handler {
	return func(caller types.Address, env *Envelope) (interface{}, error) {
		var args OrderArgs
		if err := env.decodeArgs(&args); err != nil {
			return nil, err
		}
		return op(caller, args.OrderID)
	}
}

// Calls lists every routable call name.
func (r *Runtime) Calls() []string {
	out := make([]string, 0, len(r.routes))
	for name := range r.routes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func splitCall(call string) (string, string) {
	idx := strings.LastIndex(call, ".")
	if idx < 0 {
		return call, ""
	}
	return call[:idx], call[idx+1:]
}

// Submit verifies and executes one envelope. The envelope must carry the
// caller's current account nonce. Once the nonce matches, it is consumed even
// when the call itself fails; the failed call leaves no other state change
// and emits no events. The nonce survives the caller being reaped.
func (r *Runtime) Submit(ctx context.Context, env *Envelope) (*Receipt, error) {
	if env == nil {
		return nil, ErrInvalidArgs
	}
	module, op := splitCall(env.Call)
	_, span := r.tracer.Start(ctx, "runtime.Submit", trace.WithAttributes(
		attribute.String("call", env.Call),
		attribute.Int64("nonce", int64(env.Nonce)),
	))
	defer span.End()

	start := time.Now()
	receipt, err := r.submit(env)
	r.metrics.ObserveOperation(module, op, Code(err), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Code(err))
		r.logger.Debug("call rejected",
			"call", env.Call,
			"caller", env.Caller.String(),
			"code", Code(err),
			"error", err)
		return nil, err
	}
	if _, ok := r.markets[module]; ok {
		r.recordEscrow(module)
	}
	r.logger.Info("call applied", "call", env.Call, "caller", env.Caller.String(), "nonce", env.Nonce)
	return receipt, nil
}

func (r *Runtime) submit(env *Envelope) (*Receipt, error) {
	if env.ChainID != r.chainID {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrWrongChain, env.ChainID, r.chainID)
	}
	route, ok := r.routes[env.Call]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCall, env.Call)
	}
	if err := env.Verify(); err != nil {
		return nil, err
	}
	hash, err := env.Hash()
	if err != nil {
		return nil, err
	}
	module, _ := splitCall(env.Call)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink.begin(hash.Hex())

	var (
		result  interface{}
		callErr error
	)
	err = r.state.Atomic(func() error {
		nonce, err := r.bank.AccountNonce(env.Caller)
		if err != nil {
			return err
		}
		if env.Nonce != nonce {
			return fmt.Errorf("%w: got %d, want %d", ErrBadNonce, env.Nonce, nonce)
		}
		callErr = r.state.Atomic(func() error {
			if err := common.Guard(r.pauses, module); err != nil {
				return err
			}
			var err error
			result, err = route(env.Caller, env)
			return err
		})
		return r.bank.SetNonce(env.Caller, nonce+1)
	})
	if err != nil {
		return nil, err
	}
	if callErr != nil {
		return nil, callErr
	}
	return &Receipt{Hash: hash, Caller: env.Caller, Nonce: env.Nonce, Call: env.Call, Result: result}, nil
}

func (r *Runtime) updateTrackingStatus(caller types.Address, env *Envelope) (interface{}, error) {
	var args TrackingArgs
	if err := env.decodeArgs(&args); err != nil {
		return nil, err
	}
	reg, err := r.trackingRegistry(args.Kind)
	if err != nil {
		return nil, err
	}
	next, err := tracking.ParseStatus(args.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	if next == tracking.StatusFailed {
		return reg.Fail(caller, args.TrackingID)
	}
	return reg.UpdateStatus(caller, args.TrackingID, next)
}

func (r *Runtime) failTracking(caller types.Address, env *Envelope) (interface{}, error) {
	var args TrackingArgs
	if err := env.decodeArgs(&args); err != nil {
		return nil, err
	}
	reg, err := r.trackingRegistry(args.Kind)
	if err != nil {
		return nil, err
	}
	return reg.Fail(caller, args.TrackingID)
}

func (r *Runtime) registerSeller(caller types.Address, env *Envelope) (interface{}, error) {
	var args RegisterSellerArgs
	if err := env.decodeArgs(&args); err != nil {
		return nil, err
	}
	return r.catalog.RegisterSeller(caller, args.Name)
}

func (r *Runtime) setAvailable(caller types.Address, env *Envelope) (interface{}, error) {
	var args AvailabilityArgs
	if err := env.decodeArgs(&args); err != nil {
		return nil, err
	}
	if err := r.catalog.SetAvailable(caller, args.Available); err != nil {
		return nil, err
	}
	seller, _, err := r.catalog.Seller(caller)
	return seller, err
}

func (r *Runtime) putOffering(caller types.Address, env *Envelope) (interface{}, error) {
	var args PutOfferingArgs
	if err := env.decodeArgs(&args); err != nil {
		return nil, err
	}
	return r.catalog.PutOffering(caller, catalog.Offering{ID: args.ID, Name: args.Name, Tiers: args.Tiers})
}

func (r *Runtime) deregisterSeller(caller types.Address, env *Envelope) (interface{}, error) {
	if err := env.decodeArgs(&struct{}{}); err != nil {
		return nil, err
	}
	return nil, r.catalog.DeregisterSeller(caller)
}

func (r *Runtime) transfer(caller types.Address, env *Envelope) (interface{}, error) {
	var args TransferArgs
	if err := env.decodeArgs(&args); err != nil {
		return nil, err
	}
	if args.Amount == nil || args.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidArgs)
	}
	isAsset := strings.HasPrefix(env.Call, "assets.")
	if isAsset != (args.AssetID != nil) {
		return nil, fmt.Errorf("%w: assetId must be set exactly for assets.transfer", ErrInvalidArgs)
	}
	var err error
	if isAsset {
		err = r.assets.Transfer(*args.AssetID, caller, args.To, args.Amount, args.KeepAlive)
	} else {
		policy := common.AllowDeath
		if args.KeepAlive {
			policy = common.KeepAlive
		}
		err = r.bank.Transfer(caller, args.To, args.Amount, policy)
	}
	if err != nil {
		return nil, orders.LedgerError(err)
	}
	return nil, nil
}
