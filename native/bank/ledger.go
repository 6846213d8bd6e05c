package bank

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"genomarket/core/events"
	"genomarket/core/state"
	"genomarket/core/types"
	"genomarket/native/common"
)

// DefaultMaxConsumers bounds the number of consumer references (e.g. asset
// holdings) an account may carry.
const DefaultMaxConsumers uint32 = 16

// NativeSymbol names the native currency in supply events.
const NativeSymbol = "DBIO"

// Ledger is the native-currency ledger. Balances use checked 256-bit
// arithmetic; accounts below the existential deposit are reaped unless they
// carry a provider reference.
type Ledger struct {
	state              *state.Manager
	existentialDeposit *uint256.Int
	maxConsumers       uint32
	emitter            events.Emitter
}

// NewLedger binds a native ledger to the state manager. A nil deposit means
// every non-zero balance keeps an account alive.
func NewLedger(st *state.Manager, existentialDeposit *big.Int) *Ledger {
	ed := uint256.NewInt(0)
	if existentialDeposit != nil && existentialDeposit.Sign() > 0 {
		if v, overflow := uint256.FromBig(existentialDeposit); !overflow {
			ed = v
		}
	}
	return &Ledger{
		state:              st,
		existentialDeposit: ed,
		maxConsumers:       DefaultMaxConsumers,
		emitter:            events.NoopEmitter{},
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetMaxConsumers overrides DefaultMaxConsumers.
func (l *Ledger) SetMaxConsumers(n uint32) { l.maxConsumers = n }

// ExistentialDeposit returns the minimum balance that keeps an account alive.
func (l *Ledger) ExistentialDeposit() *big.Int { return l.existentialDeposit.ToBig() }

func (l *Ledger) emit(evt events.Event) {
	l.state.AfterCommit(func() { l.emitter.Emit(evt) })
}

func toU256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return uint256.NewInt(0), nil
	}
	if v.Sign() < 0 {
		return nil, common.ErrUnderflow
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, common.ErrOverflow
	}
	return out, nil
}

// Account returns the stored account or an empty record.
func (l *Ledger) Account(addr types.Address) (*types.Account, error) {
	if l == nil || l.state == nil {
		return nil, fmt.Errorf("bank: state not configured")
	}
	acc := new(types.Account)
	ok, err := l.state.KVGet(state.AccountKey(addr), acc)
	if err != nil {
		return nil, err
	}
	if !ok || acc.Free == nil {
		if !ok {
			acc = new(types.Account)
		}
		acc.Free = big.NewInt(0)
	}
	return acc, nil
}

func (l *Ledger) putAccount(addr types.Address, acc *types.Account) error {
	if acc.Empty() {
		return l.state.KVDelete(state.AccountKey(addr))
	}
	return l.state.KVPut(state.AccountKey(addr), acc)
}

func (l *Ledger) alive(acc *types.Account) bool {
	if acc.Providers > 0 {
		return true
	}
	free, err := toU256(acc.Free)
	if err != nil {
		return false
	}
	return !free.IsZero() && !free.Lt(l.existentialDeposit)
}

// FreeBalance returns the spendable balance of addr.
func (l *Ledger) FreeBalance(addr types.Address) (*big.Int, error) {
	acc, err := l.Account(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.Free), nil
}

// AccountNonce returns the number of transactions accepted from addr.
func (l *Ledger) AccountNonce(addr types.Address) (uint64, error) {
	acc, err := l.Account(addr)
	if err != nil {
		return 0, err
	}
	return acc.Nonce, nil
}

// IncNonce bumps the account nonce after a transaction is accepted.
func (l *Ledger) IncNonce(addr types.Address) error {
	acc, err := l.Account(addr)
	if err != nil {
		return err
	}
	acc.Nonce++
	return l.putAccount(addr, acc)
}

// SetNonce records the next transaction nonce expected from addr.
func (l *Ledger) SetNonce(addr types.Address, nonce uint64) error {
	acc, err := l.Account(addr)
	if err != nil {
		return err
	}
	acc.Nonce = nonce
	return l.putAccount(addr, acc)
}

// EnsureModuleAccount gives addr a permanent provider reference so custody
// accounts survive being drained. Idempotent.
func (l *Ledger) EnsureModuleAccount(addr types.Address) error {
	if addr.IsZero() {
		return common.ErrCannotLookup
	}
	acc, err := l.Account(addr)
	if err != nil {
		return err
	}
	if acc.Module {
		return nil
	}
	acc.Module = true
	acc.Providers++
	return l.putAccount(addr, acc)
}

// HasProviders reports whether addr is a live account.
func (l *Ledger) HasProviders(addr types.Address) (bool, error) {
	acc, err := l.Account(addr)
	if err != nil {
		return false, err
	}
	return l.alive(acc), nil
}

// IncConsumers adds a consumer reference. The account must be alive.
func (l *Ledger) IncConsumers(addr types.Address) error {
	acc, err := l.Account(addr)
	if err != nil {
		return err
	}
	if !l.alive(acc) {
		return common.ErrNoProviders
	}
	if acc.Consumers >= l.maxConsumers {
		return common.ErrTooManyConsumers
	}
	acc.Consumers++
	return l.putAccount(addr, acc)
}

// DecConsumers drops a consumer reference.
func (l *Ledger) DecConsumers(addr types.Address) error {
	acc, err := l.Account(addr)
	if err != nil {
		return err
	}
	if acc.Consumers == 0 {
		return common.ErrUnderflow
	}
	acc.Consumers--
	return l.putAccount(addr, acc)
}

// TotalIssuance returns the sum of all native balances.
func (l *Ledger) TotalIssuance() (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, fmt.Errorf("bank: state not configured")
	}
	total := new(big.Int)
	ok, err := l.state.KVGet(state.TotalIssuanceKey(), total)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return total, nil
}

// adjustIssuance applies delta to the total issuance and queues a supply
// event carrying the new total.
func (l *Ledger) adjustIssuance(delta *big.Int, reason string) error {
	total, err := l.TotalIssuance()
	if err != nil {
		return err
	}
	total.Add(total, delta)
	if total.Sign() < 0 {
		return common.ErrUnderflow
	}
	if _, err := toU256(total); err != nil {
		return err
	}
	if err := l.state.KVPut(state.TotalIssuanceKey(), total); err != nil {
		return err
	}
	l.emit(events.TokenSupply{Token: NativeSymbol, Total: total, Delta: new(big.Int).Set(delta), Reason: reason})
	return nil
}

// Mint credits new native currency to addr (genesis endowments, faucets).
func (l *Ledger) Mint(to types.Address, amount *big.Int) error {
	if to.IsZero() {
		return common.ErrCannotLookup
	}
	amt, err := toU256(amount)
	if err != nil {
		return err
	}
	if amt.IsZero() {
		return nil
	}
	acc, err := l.Account(to)
	if err != nil {
		return err
	}
	free, err := toU256(acc.Free)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(free, amt)
	if overflow {
		return common.ErrOverflow
	}
	if !l.alive(acc) && next.Lt(l.existentialDeposit) {
		return common.ErrBelowMinimum
	}
	acc.Free = next.ToBig()
	if err := l.adjustIssuance(amt.ToBig(), events.SupplyReasonMint); err != nil {
		return err
	}
	return l.putAccount(to, acc)
}

// Transfer moves amount from one account to another under the given
// existence policy.
func (l *Ledger) Transfer(from, to types.Address, amount *big.Int, policy common.ExistencePolicy) error {
	if from.IsZero() {
		return common.ErrBadOrigin
	}
	if to.IsZero() {
		return common.ErrCannotLookup
	}
	amt, err := toU256(amount)
	if err != nil {
		return err
	}
	if amt.IsZero() || from == to {
		return nil
	}
	src, err := l.Account(from)
	if err != nil {
		return err
	}
	srcFree, err := toU256(src.Free)
	if err != nil {
		return err
	}
	if srcFree.Lt(amt) {
		return common.ErrFundsUnavailable
	}
	remaining := new(uint256.Int).Sub(srcFree, amt)
	reap := false
	if src.Providers == 0 && remaining.Lt(l.existentialDeposit) {
		if policy == common.KeepAlive {
			return common.ErrNotExpendable
		}
		if src.Consumers > 0 {
			return common.ErrConsumerRemaining
		}
		reap = true
	}

	dst, err := l.Account(to)
	if err != nil {
		return err
	}
	dstFree, err := toU256(dst.Free)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(dstFree, amt)
	if overflow {
		return common.ErrOverflow
	}
	if !l.alive(dst) && next.Lt(l.existentialDeposit) {
		return common.ErrBelowMinimum
	}
	dst.Free = next.ToBig()

	if reap {
		dust := remaining.ToBig()
		if dust.Sign() > 0 {
			if err := l.adjustIssuance(new(big.Int).Neg(dust), events.SupplyReasonDust); err != nil {
				return err
			}
		}
		if err := l.state.KVDelete(state.AccountKey(from)); err != nil {
			return err
		}
		l.emit(events.AccountReaped{Account: from, Dust: dust})
	} else {
		src.Free = remaining.ToBig()
		if err := l.putAccount(from, src); err != nil {
			return err
		}
	}
	if err := l.putAccount(to, dst); err != nil {
		return err
	}
	l.emit(events.Transfer{From: from, To: to, Amount: amt.ToBig()})
	return nil
}
