package rpc

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"genomarket/core/types"
	"genomarket/native/assets"
	"genomarket/native/catalog"
	"genomarket/native/orders"
	"genomarket/native/pricing"
	"genomarket/native/tracking"
	"genomarket/runtime"
)

// Amounts are rendered as decimal strings so clients never lose precision.

type ComponentView struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type TierView struct {
	Currency   string          `json:"currency"`
	Total      string          `json:"total"`
	Components []ComponentView `json:"components"`
	Additional []ComponentView `json:"additional"`
}

type OrderView struct {
	ID                   types.Hash      `json:"id"`
	OfferingID           types.Hash      `json:"offeringId"`
	Customer             types.Address   `json:"customer"`
	Seller               types.Address   `json:"seller"`
	CustomerBoxPublicKey string          `json:"customerBoxPublicKey,omitempty"`
	TrackingID           string          `json:"trackingId"`
	Currency             string          `json:"currency"`
	AssetID              *uint32         `json:"assetId,omitempty"`
	PriceComponents      []ComponentView `json:"priceComponents"`
	AdditionalComponents []ComponentView `json:"additionalComponents"`
	TotalPrice           string          `json:"totalPrice"`
	Escrow               types.Address   `json:"escrow"`
	Status               string          `json:"status"`
	CreatedAt            int64           `json:"createdAt"`
	UpdatedAt            int64           `json:"updatedAt"`
}

type RecordView struct {
	ID        string        `json:"id"`
	Kind      string        `json:"kind"`
	OrderID   types.Hash    `json:"orderId"`
	Seller    types.Address `json:"seller"`
	Customer  types.Address `json:"customer"`
	Status    string        `json:"status"`
	CreatedAt uint64        `json:"createdAt"`
	UpdatedAt uint64        `json:"updatedAt"`
}

type SellerView struct {
	Address   types.Address `json:"address"`
	Name      string        `json:"name"`
	Available bool          `json:"available"`
}

type OfferingView struct {
	ID    types.Hash    `json:"id"`
	Owner types.Address `json:"owner"`
	Name  string        `json:"name"`
	Tiers []TierView    `json:"tiers"`
}

type ConfigView struct {
	Admin     types.Address `json:"admin"`
	EscrowKey types.Address `json:"escrowKey"`
	Treasury  types.Address `json:"treasury"`
}

type AccountView struct {
	Address types.Address `json:"address"`
	Nonce   uint64        `json:"nonce"`
	Free    string        `json:"free"`
	Module  bool          `json:"module,omitempty"`
}

type AssetView struct {
	ID         uint32        `json:"id"`
	Symbol     string        `json:"symbol"`
	Name       string        `json:"name"`
	Decimals   uint8         `json:"decimals"`
	MinBalance string        `json:"minBalance"`
	Sufficient bool          `json:"sufficient"`
	Owner      types.Address `json:"owner"`
}

type EscrowView struct {
	OrderID types.Hash    `json:"orderId"`
	Account types.Address `json:"account"`
	Balance string        `json:"balance"`
}

type ReceiptView struct {
	Hash   types.Hash    `json:"hash"`
	Caller types.Address `json:"caller"`
	Nonce  uint64        `json:"nonce"`
	Call   string        `json:"call"`
	Result interface{}   `json:"result,omitempty"`
}

type ErrorBody struct {
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
	Message   string `json:"message"`
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func componentViews(in []pricing.Component) []ComponentView {
	out := make([]ComponentView, len(in))
	for i, c := range in {
		out[i] = ComponentView{Label: c.Label, Value: amount(c.Value)}
	}
	return out
}

func newOrderView(o *orders.Order) OrderView {
	view := OrderView{
		ID:                   o.ID,
		OfferingID:           o.OfferingID,
		Customer:             o.Customer,
		Seller:               o.Seller,
		TrackingID:           o.TrackingID,
		Currency:             o.Currency.String(),
		AssetID:              o.AssetID,
		PriceComponents:      componentViews(o.PriceComponents),
		AdditionalComponents: componentViews(o.AdditionalComponents),
		TotalPrice:           amount(o.TotalPrice),
		Escrow:               o.Escrow,
		Status:               o.Status.String(),
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
	}
	if len(o.CustomerBoxPublicKey) > 0 {
		view.CustomerBoxPublicKey = hexutil.Encode(o.CustomerBoxPublicKey)
	}
	return view
}

func newRecordView(r *tracking.Record) RecordView {
	return RecordView{
		ID:        r.ID,
		Kind:      r.Kind,
		OrderID:   r.OrderID,
		Seller:    r.Seller,
		Customer:  r.Customer,
		Status:    r.Status.String(),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func newSellerView(s *catalog.Seller) SellerView {
	return SellerView{Address: s.Address, Name: s.Name, Available: s.Available}
}

func newOfferingView(o *catalog.Offering) OfferingView {
	tiers := make([]TierView, len(o.Tiers))
	for i, t := range o.Tiers {
		tiers[i] = TierView{
			Currency:   t.Currency.String(),
			Total:      amount(t.Total),
			Components: componentViews(t.Components),
			Additional: componentViews(t.Additional),
		}
	}
	return OfferingView{ID: o.ID, Owner: o.Owner, Name: o.Name, Tiers: tiers}
}

func newConfigView(cfg orders.SettlementConfig) ConfigView {
	return ConfigView{Admin: cfg.Admin, EscrowKey: cfg.EscrowKey, Treasury: cfg.Treasury}
}

func newAssetView(m *assets.Metadata) AssetView {
	return AssetView{
		ID:         m.ID,
		Symbol:     m.Symbol,
		Name:       m.Name,
		Decimals:   m.Decimals,
		MinBalance: amount(m.MinBalance),
		Sufficient: m.Sufficient,
		Owner:      m.Owner,
	}
}

// resultView renders the record a call returned.
func resultView(result interface{}) interface{} {
	switch v := result.(type) {
	case *orders.Order:
		return newOrderView(v)
	case *tracking.Record:
		return newRecordView(v)
	case *catalog.Seller:
		return newSellerView(v)
	case *catalog.Offering:
		return newOfferingView(v)
	case orders.SettlementConfig:
		return newConfigView(v)
	default:
		return v
	}
}

func newReceiptView(r *runtime.Receipt) ReceiptView {
	return ReceiptView{
		Hash:   r.Hash,
		Caller: r.Caller,
		Nonce:  r.Nonce,
		Call:   r.Call,
		Result: resultView(r.Result),
	}
}
