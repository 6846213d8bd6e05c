package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"genomarket/core/types"
	"genomarket/native/pricing"
)

// Genesis seeds the runtime state of a fresh chain.
type Genesis struct {
	ChainID            uint64                       `yaml:"chain_id"`
	ExistentialDeposit string                       `yaml:"existential_deposit"`
	Accounts           []GenesisAccount             `yaml:"accounts"`
	Assets             []GenesisAsset               `yaml:"assets"`
	Sellers            []GenesisSeller              `yaml:"sellers"`
	Settlement         map[string]GenesisSettlement `yaml:"settlement"`
}

type GenesisAccount struct {
	Address string `yaml:"address"`
	Balance string `yaml:"balance"`
}

type GenesisAsset struct {
	ID         uint32           `yaml:"id"`
	Symbol     string           `yaml:"symbol"`
	Name       string           `yaml:"name"`
	Decimals   uint8            `yaml:"decimals"`
	MinBalance string           `yaml:"min_balance"`
	Sufficient bool             `yaml:"sufficient"`
	Owner      string           `yaml:"owner"`
	Balances   []GenesisAccount `yaml:"balances"`
}

type GenesisSeller struct {
	Address   string            `yaml:"address"`
	Name      string            `yaml:"name"`
	Offerings []GenesisOffering `yaml:"offerings"`
}

type GenesisOffering struct {
	Name  string        `yaml:"name"`
	Tiers []GenesisTier `yaml:"tiers"`
}

type GenesisTier struct {
	Currency   string             `yaml:"currency"`
	Components []GenesisComponent `yaml:"components"`
	Additional []GenesisComponent `yaml:"additional"`
}

type GenesisComponent struct {
	Label string `yaml:"label"`
	Value string `yaml:"value"`
}

// GenesisSettlement holds the privileged keys of one marketplace pallet.
type GenesisSettlement struct {
	Admin     string `yaml:"admin"`
	EscrowKey string `yaml:"escrow_key"`
	Treasury  string `yaml:"treasury"`
}

// LoadGenesis reads and validates a YAML genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	return ParseGenesis(raw)
}

// ParseGenesis decodes and validates a YAML genesis document.
func ParseGenesis(raw []byte) (*Genesis, error) {
	var g Genesis
	if err := yaml.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// ParseAmount parses a non-negative base-10 integer amount. Empty means zero.
func ParseAmount(raw string) (*big.Int, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(raw), "_", "")
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", raw)
	}
	return v, nil
}

// Tier converts the YAML tier into a priced tier whose total is the sum of
// its components.
func (t GenesisTier) Tier() (pricing.Tier, error) {
	currency, err := pricing.ParseCurrency(t.Currency)
	if err != nil {
		return pricing.Tier{}, err
	}
	tier := pricing.Tier{Currency: currency}
	for _, group := range []struct {
		in  []GenesisComponent
		out *[]pricing.Component
	}{{t.Components, &tier.Components}, {t.Additional, &tier.Additional}} {
		for _, c := range group.in {
			value, err := ParseAmount(c.Value)
			if err != nil {
				return pricing.Tier{}, fmt.Errorf("component %s: %w", c.Label, err)
			}
			*group.out = append(*group.out, pricing.Component{Label: c.Label, Value: value})
		}
	}
	tier.Total = new(big.Int).Add(pricing.Sum(tier.Components), pricing.Sum(tier.Additional))
	return tier, nil
}

// Keys parses the settlement addresses.
func (s GenesisSettlement) Keys() (admin, escrowKey, treasury types.Address, err error) {
	if admin, err = types.ParseAddress(s.Admin); err != nil {
		return admin, escrowKey, treasury, fmt.Errorf("admin: %w", err)
	}
	if escrowKey, err = types.ParseAddress(s.EscrowKey); err != nil {
		return admin, escrowKey, treasury, fmt.Errorf("escrow_key: %w", err)
	}
	if treasury, err = types.ParseAddress(s.Treasury); err != nil {
		return admin, escrowKey, treasury, fmt.Errorf("treasury: %w", err)
	}
	return admin, escrowKey, treasury, nil
}

// Validate checks addresses, amounts and currencies without touching state.
func (g *Genesis) Validate() error {
	if g.ChainID == 0 {
		return fmt.Errorf("genesis: chain_id required")
	}
	if _, err := ParseAmount(g.ExistentialDeposit); err != nil {
		return fmt.Errorf("genesis: existential_deposit: %w", err)
	}
	for i, acc := range g.Accounts {
		if _, err := types.ParseAddress(acc.Address); err != nil {
			return fmt.Errorf("genesis: accounts[%d]: %w", i, err)
		}
		if _, err := ParseAmount(acc.Balance); err != nil {
			return fmt.Errorf("genesis: accounts[%d]: %w", i, err)
		}
	}
	seenAssets := make(map[uint32]bool)
	for i, asset := range g.Assets {
		if seenAssets[asset.ID] {
			return fmt.Errorf("genesis: assets[%d]: duplicate id %d", i, asset.ID)
		}
		seenAssets[asset.ID] = true
		if strings.TrimSpace(asset.Symbol) == "" {
			return fmt.Errorf("genesis: assets[%d]: symbol required", i)
		}
		if _, err := ParseAmount(asset.MinBalance); err != nil {
			return fmt.Errorf("genesis: assets[%d]: %w", i, err)
		}
		if asset.Owner != "" {
			if _, err := types.ParseAddress(asset.Owner); err != nil {
				return fmt.Errorf("genesis: assets[%d]: owner: %w", i, err)
			}
		}
		for j, bal := range asset.Balances {
			if _, err := types.ParseAddress(bal.Address); err != nil {
				return fmt.Errorf("genesis: assets[%d].balances[%d]: %w", i, j, err)
			}
			if _, err := ParseAmount(bal.Balance); err != nil {
				return fmt.Errorf("genesis: assets[%d].balances[%d]: %w", i, j, err)
			}
		}
	}
	for i, seller := range g.Sellers {
		if _, err := types.ParseAddress(seller.Address); err != nil {
			return fmt.Errorf("genesis: sellers[%d]: %w", i, err)
		}
		for j, offering := range seller.Offerings {
			for k, tier := range offering.Tiers {
				if _, err := tier.Tier(); err != nil {
					return fmt.Errorf("genesis: sellers[%d].offerings[%d].tiers[%d]: %w", i, j, k, err)
				}
			}
		}
	}
	for pallet, s := range g.Settlement {
		if _, _, _, err := s.Keys(); err != nil {
			return fmt.Errorf("genesis: settlement %s: %w", pallet, err)
		}
	}
	return nil
}
