package bank

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"genomarket/core/events"
	"genomarket/core/state"
	"genomarket/core/types"
	"genomarket/native/common"
	"genomarket/storage"
)

func newTestLedger(t *testing.T, ed int64) (*Ledger, *state.Manager) {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	return NewLedger(mgr, big.NewInt(ed)), mgr
}

func addr(fill byte) types.Address {
	var a types.Address
	for i := range a {
		a[i] = fill
	}
	return a
}

func balance(t *testing.T, l *Ledger, a types.Address) int64 {
	t.Helper()
	bal, err := l.FreeBalance(a)
	require.NoError(t, err)
	return bal.Int64()
}

func TestTransferMovesFundsAndEmits(t *testing.T) {
	l, _ := newTestLedger(t, 10)
	rec := &events.Recorder{}
	l.SetEmitter(rec)
	alice, bob := addr(1), addr(2)
	require.NoError(t, l.Mint(alice, big.NewInt(1000)))

	require.NoError(t, l.Transfer(alice, bob, big.NewInt(300), common.KeepAlive))
	require.Equal(t, int64(700), balance(t, l, alice))
	require.Equal(t, int64(300), balance(t, l, bob))
	require.Equal(t, []string{events.TypeTokenSupply, events.TypeTransfer}, rec.Types())
	supply := rec.Events()[0].(events.Payload).Event()
	require.Equal(t, "DBIO", supply.Attributes["token"])
	require.Equal(t, "1000", supply.Attributes["total"])
	require.Equal(t, events.SupplyReasonMint, supply.Attributes["reason"])

	issuance, err := l.TotalIssuance()
	require.NoError(t, err)
	require.Equal(t, int64(1000), issuance.Int64())
}

func TestTransferFailureTaxonomy(t *testing.T) {
	l, _ := newTestLedger(t, 10)
	alice, bob := addr(1), addr(2)
	require.NoError(t, l.Mint(alice, big.NewInt(100)))

	cases := []struct {
		name   string
		from   types.Address
		to     types.Address
		amount *big.Int
		policy common.ExistencePolicy
		want   error
	}{
		{"bad origin", types.ZeroAddress, bob, big.NewInt(1), common.KeepAlive, common.ErrBadOrigin},
		{"cannot lookup", alice, types.ZeroAddress, big.NewInt(1), common.KeepAlive, common.ErrCannotLookup},
		{"negative", alice, bob, big.NewInt(-1), common.KeepAlive, common.ErrUnderflow},
		{"overflow", alice, bob, new(big.Int).Lsh(big.NewInt(1), 300), common.KeepAlive, common.ErrOverflow},
		{"funds unavailable", alice, bob, big.NewInt(101), common.AllowDeath, common.ErrFundsUnavailable},
		{"keep alive", alice, bob, big.NewInt(95), common.KeepAlive, common.ErrNotExpendable},
		{"below minimum", alice, bob, big.NewInt(5), common.KeepAlive, common.ErrBelowMinimum},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := l.Transfer(tc.from, tc.to, tc.amount, tc.policy)
			require.ErrorIs(t, err, tc.want)
		})
	}
	require.Equal(t, int64(100), balance(t, l, alice))
}

func TestAllowDeathReapsAndBurnsDust(t *testing.T) {
	l, _ := newTestLedger(t, 10)
	rec := &events.Recorder{}
	l.SetEmitter(rec)
	alice, bob := addr(1), addr(2)
	require.NoError(t, l.Mint(alice, big.NewInt(100)))
	require.NoError(t, l.IncNonce(alice))

	require.NoError(t, l.Transfer(alice, bob, big.NewInt(95), common.AllowDeath))
	require.Equal(t, int64(0), balance(t, l, alice))
	nonce, err := l.AccountNonce(alice)
	require.NoError(t, err)
	require.Zero(t, nonce)
	issuance, err := l.TotalIssuance()
	require.NoError(t, err)
	require.Equal(t, int64(95), issuance.Int64())
	require.Equal(t, []string{events.TypeTokenSupply, events.TypeTokenSupply, events.TypeAccountReaped, events.TypeTransfer}, rec.Types())
	burn := rec.Events()[1].(events.Payload).Event()
	require.Equal(t, "-5", burn.Attributes["delta"])
	require.Equal(t, "95", burn.Attributes["total"])
	require.Equal(t, events.SupplyReasonDust, burn.Attributes["reason"])
}

func TestConsumerReferenceBlocksReaping(t *testing.T) {
	l, _ := newTestLedger(t, 10)
	alice, bob := addr(1), addr(2)
	require.NoError(t, l.Mint(alice, big.NewInt(100)))
	require.NoError(t, l.IncConsumers(alice))
	require.ErrorIs(t, l.Transfer(alice, bob, big.NewInt(100), common.AllowDeath), common.ErrConsumerRemaining)
	require.NoError(t, l.DecConsumers(alice))
	require.ErrorIs(t, l.DecConsumers(alice), common.ErrUnderflow)
	require.ErrorIs(t, l.IncConsumers(bob), common.ErrNoProviders)

	l.SetMaxConsumers(1)
	require.NoError(t, l.IncConsumers(alice))
	require.ErrorIs(t, l.IncConsumers(alice), common.ErrTooManyConsumers)
}

func TestModuleAccountSurvivesDrain(t *testing.T) {
	l, _ := newTestLedger(t, 10)
	escrow, bob := addr(9), addr(2)
	require.NoError(t, l.EnsureModuleAccount(escrow))
	require.NoError(t, l.EnsureModuleAccount(escrow))
	require.NoError(t, l.Mint(escrow, big.NewInt(3)))

	require.NoError(t, l.Transfer(escrow, bob, big.NewInt(0), common.AllowDeath))
	alive, err := l.HasProviders(escrow)
	require.NoError(t, err)
	require.True(t, alive)

	acc, err := l.Account(escrow)
	require.NoError(t, err)
	require.Equal(t, uint32(1), acc.Providers)
}

func TestTransferInsideFailedAtomicScopeLeavesNoTrace(t *testing.T) {
	l, mgr := newTestLedger(t, 1)
	alice, bob := addr(1), addr(2)
	require.NoError(t, l.Mint(alice, big.NewInt(50)))

	err := mgr.Atomic(func() error {
		if err := l.Transfer(alice, bob, big.NewInt(20), common.KeepAlive); err != nil {
			return err
		}
		return l.Transfer(alice, bob, big.NewInt(40), common.KeepAlive)
	})
	require.ErrorIs(t, err, common.ErrFundsUnavailable)
	require.Equal(t, int64(50), balance(t, l, alice))
	require.Equal(t, int64(0), balance(t, l, bob))
}
