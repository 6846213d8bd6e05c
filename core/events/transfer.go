package events

import (
	"math/big"
	"strconv"
	"strings"

	"genomarket/core/types"
)

const (
	// TypeTransfer is emitted for native balance movements.
	TypeTransfer = "transfer.native"
	// TypeAssetTransfer is emitted for fungible asset movements.
	TypeAssetTransfer = "transfer.asset"
	// TypeAccountReaped is emitted when an account drops below the existential
	// deposit and is removed.
	TypeAccountReaped = "account.reaped"
)

// Transfer describes a native or asset balance movement.
type Transfer struct {
	AssetID *uint32
	Symbol  string
	From    types.Address
	To      types.Address
	Amount  *big.Int
}

func (e Transfer) EventType() string {
	if e.AssetID != nil {
		return TypeAssetTransfer
	}
	return TypeTransfer
}

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{
		"from":   e.From.String(),
		"to":     e.To.String(),
		"amount": formatAmount(e.Amount),
	}
	if e.AssetID != nil {
		attrs["assetId"] = strconv.FormatUint(uint64(*e.AssetID), 10)
	}
	if symbol := normalizeAsset(e.Symbol); symbol != "" {
		attrs["asset"] = symbol
	}
	return &types.Event{Type: e.EventType(), Attributes: attrs}
}

// AccountReaped records the removal of a dust account.
type AccountReaped struct {
	Account types.Address
	Dust    *big.Int
}

func (AccountReaped) EventType() string { return TypeAccountReaped }

func (e AccountReaped) Event() *types.Event {
	return &types.Event{Type: TypeAccountReaped, Attributes: map[string]string{
		"account": e.Account.String(),
		"dust":    formatAmount(e.Dust),
	}}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func normalizeAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return ""
	}
	return strings.ToUpper(trimmed)
}
