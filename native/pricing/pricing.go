package pricing

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	ErrPriceIndexNotFound = errors.New("pricing: price index not found")
	ErrAssetIDNotFound    = errors.New("pricing: asset id not found")
	ErrPriceMismatch      = errors.New("pricing: total does not match components")
	ErrNegativePrice      = errors.New("pricing: negative price component")
	ErrUnknownCurrency    = errors.New("pricing: unknown currency")
)

// Currency identifies the money family an offering is priced in.
type Currency uint8

const (
	// DBIO is the chain-native currency.
	DBIO Currency = iota
	USN
	USDTE
	// ETH is settled off-chain; the escrow key confirms payment.
	ETH
	USDT
)

var currencyNames = map[Currency]string{
	DBIO:  "DBIO",
	USN:   "USN",
	USDTE: "USDTE",
	ETH:   "ETH",
	USDT:  "USDT",
}

// Native reports whether the currency is the chain-native token.
func (c Currency) Native() bool { return c == DBIO }

// Transferable reports whether funds move on-chain for this currency. For the
// other currencies the escrow key marks payment and settlement happens off
// chain.
func (c Currency) Transferable() bool {
	switch c {
	case DBIO, USN, USDTE:
		return true
	default:
		return false
	}
}

// Symbol is the asset symbol expected on the asset ledger. The native currency
// has no asset symbol.
func (c Currency) Symbol() string {
	switch c {
	case USN:
		return "USN"
	case USDTE:
		return "USDT.e"
	case ETH:
		return "ETH"
	case USDT:
		return "USDT"
	default:
		return ""
	}
}

func (c Currency) String() string {
	if name, ok := currencyNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Currency(%d)", uint8(c))
}

// ParseCurrency accepts the currency name in any case.
func ParseCurrency(raw string) (Currency, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	for c, name := range currencyNames {
		if name == trimmed {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCurrency, raw)
}

// MarshalText renders the currency name.
func (c Currency) MarshalText() ([]byte, error) {
	if _, ok := currencyNames[c]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCurrency, uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText parses a currency name.
func (c *Currency) UnmarshalText(text []byte) error {
	parsed, err := ParseCurrency(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Component is one itemised charge, e.g. the testing price or the QC price.
type Component struct {
	Label string   `json:"label" yaml:"label"`
	Value *big.Int `json:"value" yaml:"value"`
}

// Tier is one way to buy an offering: a currency, a total, and the
// components that sum to it.
type Tier struct {
	Currency   Currency    `json:"currency" yaml:"currency"`
	Total      *big.Int    `json:"total" yaml:"total"`
	Components []Component `json:"components" yaml:"components"`
	Additional []Component `json:"additional" yaml:"additional"`
}

// Sum adds up the component values. Nil values count as zero.
func Sum(components []Component) *big.Int {
	total := new(big.Int)
	for _, c := range components {
		if c.Value != nil {
			total.Add(total, c.Value)
		}
	}
	return total
}

func cloneComponents(in []Component) []Component {
	if in == nil {
		return nil
	}
	out := make([]Component, len(in))
	for i, c := range in {
		out[i] = Component{Label: c.Label, Value: big.NewInt(0)}
		if c.Value != nil {
			out[i].Value.Set(c.Value)
		}
	}
	return out
}

// Clone returns a deep copy of the tier.
func (t Tier) Clone() Tier {
	clone := Tier{
		Currency:   t.Currency,
		Total:      big.NewInt(0),
		Components: cloneComponents(t.Components),
		Additional: cloneComponents(t.Additional),
	}
	if t.Total != nil {
		clone.Total.Set(t.Total)
	}
	return clone
}

// Validate checks that the currency is known, no component is negative, and
// the total equals the sum of all components.
func (t Tier) Validate() error {
	if _, ok := currencyNames[t.Currency]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownCurrency, uint8(t.Currency))
	}
	for _, group := range [][]Component{t.Components, t.Additional} {
		for _, c := range group {
			if c.Value != nil && c.Value.Sign() < 0 {
				return fmt.Errorf("%w: %s", ErrNegativePrice, c.Label)
			}
		}
	}
	total := t.Total
	if total == nil {
		total = big.NewInt(0)
	}
	sum := new(big.Int).Add(Sum(t.Components), Sum(t.Additional))
	if total.Cmp(sum) != 0 {
		return fmt.Errorf("%w: total %s, components %s", ErrPriceMismatch, total, sum)
	}
	return nil
}

// Resolve selects the tier at index.
func Resolve(tiers []Tier, index uint32) (Tier, error) {
	if len(tiers) == 0 || uint64(index) >= uint64(len(tiers)) {
		return Tier{}, ErrPriceIndexNotFound
	}
	return tiers[index].Clone(), nil
}

// SymbolSource looks up the registered symbol of an asset.
type SymbolSource interface {
	Symbol(assetID uint32) ([]byte, error)
}

// ValidateAsset checks that assetID names an asset whose symbol matches the
// currency. The native currency never needs an asset and yields nil whatever
// was supplied.
func ValidateAsset(currency Currency, assetID *uint32, symbols SymbolSource) (*uint32, error) {
	if currency.Native() {
		return nil, nil
	}
	if assetID == nil || symbols == nil {
		return nil, ErrAssetIDNotFound
	}
	symbol, err := symbols.Symbol(*assetID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssetIDNotFound, err)
	}
	if !strings.EqualFold(strings.TrimSpace(string(symbol)), currency.Symbol()) {
		return nil, ErrAssetIDNotFound
	}
	id := *assetID
	return &id, nil
}
