package orders

import (
	"math/big"

	"github.com/holiman/uint256"

	"genomarket/core/types"
	"genomarket/native/common"
	"genomarket/native/pricing"
)

// feeDivisor takes a 5% settlement fee.
const feeDivisor = 20

// transfer is the single money-movement path of the engine. Native transfers
// honour keepAlive as the existence policy; asset transfers pass it through.
// Ledger failures come back as order errors.
func (e *Engine) transfer(currency pricing.Currency, from, to types.Address, amount *big.Int, assetID *uint32, keepAlive bool) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if currency.Native() {
		policy := common.AllowDeath
		if keepAlive {
			policy = common.KeepAlive
		}
		return mapLedgerError(e.native.Transfer(from, to, amount, policy))
	}
	if assetID == nil {
		return ErrAssetIDNotFound
	}
	if e.assets == nil {
		return ErrCollaboratorUnconfigured
	}
	return mapLedgerError(e.assets.Transfer(*assetID, from, to, amount, keepAlive))
}

func (e *Engine) balance(currency pricing.Currency, addr types.Address, assetID *uint32) (*big.Int, error) {
	if currency.Native() {
		return e.native.FreeBalance(addr)
	}
	if assetID == nil {
		return nil, ErrAssetIDNotFound
	}
	if e.assets == nil {
		return nil, ErrCollaboratorUnconfigured
	}
	return e.assets.Balance(*assetID, addr)
}

// splitFee returns the treasury fee and the seller payout of total.
func splitFee(total *big.Int) (*big.Int, *big.Int, error) {
	if total == nil {
		return big.NewInt(0), big.NewInt(0), nil
	}
	if total.Sign() < 0 {
		return nil, nil, ErrArithmeticUnderflow
	}
	t, overflow := uint256.FromBig(total)
	if overflow {
		return nil, nil, ErrArithmeticOverflow
	}
	fee := new(uint256.Int).Div(t, uint256.NewInt(feeDivisor))
	payout := new(uint256.Int).Sub(t, fee)
	return fee.ToBig(), payout.ToBig(), nil
}
