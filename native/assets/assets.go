package assets

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	"genomarket/core/events"
	"genomarket/core/state"
	"genomarket/core/types"
	"genomarket/native/common"
)

var (
	ErrAssetExists   = errors.New("assets: asset already exists")
	ErrInvalidSymbol = errors.New("assets: invalid symbol")
	ErrUnauthorized  = errors.New("assets: unauthorized")
)

// Metadata describes a fungible asset.
type Metadata struct {
	ID         uint32
	Symbol     string
	Name       string
	Decimals   uint8
	MinBalance *big.Int
	// Sufficient assets can keep an account alive on their own; other assets
	// require the holder to already exist on the native ledger.
	Sufficient bool
	Owner      types.Address
}

type holding struct {
	Balance  *big.Int
	Frozen   bool
	Consumer bool
}

// NativeAccounts is the slice of the native ledger the asset ledger needs for
// reference counting.
type NativeAccounts interface {
	IncConsumers(addr types.Address) error
	DecConsumers(addr types.Address) error
}

// Ledger keeps balances for every registered fungible asset.
type Ledger struct {
	state   *state.Manager
	native  NativeAccounts
	emitter events.Emitter
}

// NewLedger binds the asset ledger to state and the native account registry.
func NewLedger(st *state.Manager, native NativeAccounts) *Ledger {
	return &Ledger{state: st, native: native, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) ready() error {
	if l == nil || l.state == nil {
		return fmt.Errorf("assets: state not configured")
	}
	return nil
}

// Create registers a new asset.
func (l *Ledger) Create(meta Metadata) error {
	if err := l.ready(); err != nil {
		return err
	}
	symbol := strings.TrimSpace(meta.Symbol)
	if symbol == "" || len(symbol) > 16 {
		return ErrInvalidSymbol
	}
	if _, ok, err := l.Metadata(meta.ID); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %d", ErrAssetExists, meta.ID)
	}
	meta.Symbol = symbol
	if meta.MinBalance == nil {
		meta.MinBalance = big.NewInt(0)
	}
	if meta.MinBalance.Sign() < 0 {
		return common.ErrUnderflow
	}
	return l.state.KVPut(state.AssetMetaKey(meta.ID), &meta)
}

// Metadata loads the asset definition.
func (l *Ledger) Metadata(assetID uint32) (*Metadata, bool, error) {
	if err := l.ready(); err != nil {
		return nil, false, err
	}
	meta := new(Metadata)
	ok, err := l.state.KVGet(state.AssetMetaKey(assetID), meta)
	if err != nil || !ok {
		return nil, ok, err
	}
	return meta, true, nil
}

// Symbol returns the registered symbol bytes of the asset.
func (l *Ledger) Symbol(assetID uint32) ([]byte, error) {
	meta, ok, err := l.Metadata(assetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrUnknownAsset
	}
	return []byte(meta.Symbol), nil
}

func (l *Ledger) holding(assetID uint32, addr types.Address) (*holding, bool, error) {
	h := new(holding)
	ok, err := l.state.KVGet(state.AssetAccountKey(assetID, addr), h)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return &holding{Balance: big.NewInt(0)}, false, nil
	}
	if h.Balance == nil {
		h.Balance = big.NewInt(0)
	}
	return h, true, nil
}

// Balance returns the asset balance held by addr.
func (l *Ledger) Balance(assetID uint32, addr types.Address) (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	h, _, err := l.holding(assetID, addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(h.Balance), nil
}

func (l *Ledger) openHolding(meta *Metadata, addr types.Address) (*holding, error) {
	h := &holding{Balance: big.NewInt(0)}
	if meta.Sufficient {
		return h, nil
	}
	if l.native == nil {
		return nil, common.ErrCannotCreate
	}
	if err := l.native.IncConsumers(addr); err != nil {
		if errors.Is(err, common.ErrNoProviders) {
			return nil, common.ErrCannotCreate
		}
		return nil, err
	}
	h.Consumer = true
	return h, nil
}

func (l *Ledger) closeHolding(assetID uint32, addr types.Address, h *holding) error {
	if h.Consumer && l.native != nil {
		if err := l.native.DecConsumers(addr); err != nil {
			return err
		}
	}
	return l.state.KVDelete(state.AssetAccountKey(assetID, addr))
}

func (l *Ledger) credit(meta *Metadata, addr types.Address, amount *uint256.Int) error {
	dst, exists, err := l.holding(meta.ID, addr)
	if err != nil {
		return err
	}
	current, overflow := uint256.FromBig(dst.Balance)
	if overflow {
		return common.ErrOverflow
	}
	next, overflow := new(uint256.Int).AddOverflow(current, amount)
	if overflow {
		return common.ErrOverflow
	}
	if !exists {
		minBalance, overflow := uint256.FromBig(meta.MinBalance)
		if overflow {
			return common.ErrOverflow
		}
		if next.Lt(minBalance) {
			return common.ErrBelowMinimum
		}
		dst, err = l.openHolding(meta, addr)
		if err != nil {
			return err
		}
	}
	dst.Balance = next.ToBig()
	return l.state.KVPut(state.AssetAccountKey(meta.ID, addr), dst)
}

func parseAmount(amount *big.Int) (*uint256.Int, error) {
	if amount == nil {
		return uint256.NewInt(0), nil
	}
	if amount.Sign() < 0 {
		return nil, common.ErrUnderflow
	}
	out, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, common.ErrOverflow
	}
	return out, nil
}

// Mint issues new units of the asset. Only the asset owner may mint; the zero
// owner leaves minting to genesis.
func (l *Ledger) Mint(caller types.Address, assetID uint32, to types.Address, amount *big.Int) error {
	meta, ok, err := l.Metadata(assetID)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrUnknownAsset
	}
	if !meta.Owner.IsZero() && caller != meta.Owner {
		return ErrUnauthorized
	}
	if to.IsZero() {
		return common.ErrCannotLookup
	}
	amt, err := parseAmount(amount)
	if err != nil {
		return err
	}
	if amt.IsZero() {
		return nil
	}
	return l.credit(meta, to, amt)
}

// SetFrozen freezes or thaws a holder. Frozen holders cannot send.
func (l *Ledger) SetFrozen(caller types.Address, assetID uint32, who types.Address, frozen bool) error {
	meta, ok, err := l.Metadata(assetID)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrUnknownAsset
	}
	if caller != meta.Owner {
		return ErrUnauthorized
	}
	h, exists, err := l.holding(assetID, who)
	if err != nil {
		return err
	}
	if !exists {
		return common.ErrCannotLookup
	}
	h.Frozen = frozen
	return l.state.KVPut(state.AssetAccountKey(assetID, who), h)
}

// Transfer moves amount of the asset. With keepAlive the sender may not drop
// below the asset's minimum balance; otherwise a sub-minimum remainder closes
// the holding and the dust is burned.
func (l *Ledger) Transfer(assetID uint32, from, to types.Address, amount *big.Int, keepAlive bool) error {
	if from.IsZero() {
		return common.ErrBadOrigin
	}
	if to.IsZero() {
		return common.ErrCannotLookup
	}
	meta, ok, err := l.Metadata(assetID)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrUnknownAsset
	}
	amt, err := parseAmount(amount)
	if err != nil {
		return err
	}
	if amt.IsZero() || from == to {
		return nil
	}
	src, exists, err := l.holding(assetID, from)
	if err != nil {
		return err
	}
	if !exists {
		return common.ErrFundsUnavailable
	}
	if src.Frozen {
		return common.ErrFrozen
	}
	balance, overflow := uint256.FromBig(src.Balance)
	if overflow {
		return common.ErrOverflow
	}
	if balance.Lt(amt) {
		return common.ErrFundsUnavailable
	}
	remaining := new(uint256.Int).Sub(balance, amt)
	minBalance, overflow := uint256.FromBig(meta.MinBalance)
	if overflow {
		return common.ErrOverflow
	}
	closing := remaining.IsZero() || remaining.Lt(minBalance)
	if closing && keepAlive {
		return common.ErrNotExpendable
	}

	if err := l.credit(meta, to, amt); err != nil {
		return err
	}
	if closing {
		if err := l.closeHolding(assetID, from, src); err != nil {
			return err
		}
	} else {
		src.Balance = remaining.ToBig()
		if err := l.state.KVPut(state.AssetAccountKey(assetID, from), src); err != nil {
			return err
		}
	}
	id := assetID
	evt := events.Transfer{AssetID: &id, Symbol: meta.Symbol, From: from, To: to, Amount: amt.ToBig()}
	l.state.AfterCommit(func() { l.emitter.Emit(evt) })
	return nil
}
