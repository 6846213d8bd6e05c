package events

import (
	"math/big"
	"strings"

	"genomarket/core/types"
)

const (
	// TypeTokenSupply is emitted whenever the native issuance changes.
	TypeTokenSupply = "token.supply"

	SupplyReasonMint = "mint"
	// SupplyReasonDust marks issuance removed when a reaped account leaves
	// dust behind.
	SupplyReasonDust = "dust"
)

// TokenSupply captures a supply delta and the resulting total.
type TokenSupply struct {
	Token  string
	Total  *big.Int
	Delta  *big.Int
	Reason string
}

func (TokenSupply) EventType() string { return TypeTokenSupply }

func (e TokenSupply) Event() *types.Event {
	token := strings.ToUpper(strings.TrimSpace(e.Token))
	if token == "" {
		token = "UNKNOWN"
	}
	attrs := map[string]string{
		"token": token,
		"total": formatAmount(e.Total),
		"delta": formatAmount(e.Delta),
	}
	if reason := strings.TrimSpace(e.Reason); reason != "" {
		attrs["reason"] = reason
	}
	return &types.Event{Type: TypeTokenSupply, Attributes: attrs}
}
