package runtime

import (
	"fmt"

	"genomarket/config"
	"genomarket/core/state"
	"genomarket/core/types"
	"genomarket/native/assets"
	"genomarket/native/catalog"
	"genomarket/native/orders"
	"genomarket/native/pricing"
)

// Initialized reports whether genesis has been applied to the store.
func (r *Runtime) Initialized() (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var chainID uint64
	ok, err := r.state.KVGet(state.GenesisKey(), &chainID)
	if err != nil {
		return false, err
	}
	if ok && chainID != r.chainID {
		return false, fmt.Errorf("%w: stored %d, configured %d", ErrChainMismatch, chainID, r.chainID)
	}
	return ok, nil
}

// ApplyGenesis seeds balances, assets, sellers, offerings and settlement keys
// in one atomic scope. A store can only be initialised once.
func (r *Runtime) ApplyGenesis(g *config.Genesis) error {
	if g == nil {
		return fmt.Errorf("runtime: genesis required")
	}
	if g.ChainID != r.chainID {
		return fmt.Errorf("%w: genesis %d, configured %d", ErrChainMismatch, g.ChainID, r.chainID)
	}
	if err := g.Validate(); err != nil {
		return err
	}
	initialized, err := r.Initialized()
	if err != nil {
		return err
	}
	if initialized {
		return ErrGenesisApplied
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink.begin(fmt.Sprintf("genesis:%d", r.chainID))
	return r.state.Atomic(func() error {
		if err := r.genesisAccounts(g); err != nil {
			return err
		}
		if err := r.genesisAssets(g); err != nil {
			return err
		}
		if err := r.genesisSellers(g); err != nil {
			return err
		}
		if err := r.genesisSettlement(g); err != nil {
			return err
		}
		return r.state.KVPut(state.GenesisKey(), r.chainID)
	})
}

func (r *Runtime) genesisAccounts(g *config.Genesis) error {
	for _, acc := range g.Accounts {
		addr, err := types.ParseAddress(acc.Address)
		if err != nil {
			return err
		}
		amount, err := config.ParseAmount(acc.Balance)
		if err != nil {
			return err
		}
		if err := r.bank.Mint(addr, amount); err != nil {
			return fmt.Errorf("genesis account %s: %w", addr, err)
		}
	}
	return nil
}

func (r *Runtime) genesisAssets(g *config.Genesis) error {
	for _, spec := range g.Assets {
		minBalance, err := config.ParseAmount(spec.MinBalance)
		if err != nil {
			return err
		}
		var owner types.Address
		if spec.Owner != "" {
			if owner, err = types.ParseAddress(spec.Owner); err != nil {
				return err
			}
		}
		meta := assets.Metadata{
			ID:         spec.ID,
			Symbol:     spec.Symbol,
			Name:       spec.Name,
			Decimals:   spec.Decimals,
			MinBalance: minBalance,
			Sufficient: spec.Sufficient,
			Owner:      owner,
		}
		if err := r.assets.Create(meta); err != nil {
			return fmt.Errorf("genesis asset %d: %w", spec.ID, err)
		}
		for _, bal := range spec.Balances {
			addr, err := types.ParseAddress(bal.Address)
			if err != nil {
				return err
			}
			amount, err := config.ParseAmount(bal.Balance)
			if err != nil {
				return err
			}
			if err := r.assets.Mint(owner, spec.ID, addr, amount); err != nil {
				return fmt.Errorf("genesis asset %d balance %s: %w", spec.ID, addr, err)
			}
		}
	}
	return nil
}

func (r *Runtime) genesisSellers(g *config.Genesis) error {
	for _, spec := range g.Sellers {
		addr, err := types.ParseAddress(spec.Address)
		if err != nil {
			return err
		}
		if _, err := r.catalog.RegisterSeller(addr, spec.Name); err != nil {
			return fmt.Errorf("genesis seller %s: %w", addr, err)
		}
		for _, offering := range spec.Offerings {
			tiers := make([]pricing.Tier, 0, len(offering.Tiers))
			for _, t := range offering.Tiers {
				tier, err := t.Tier()
				if err != nil {
					return err
				}
				tiers = append(tiers, tier)
			}
			if _, err := r.catalog.PutOffering(addr, catalog.Offering{Name: offering.Name, Tiers: tiers}); err != nil {
				return fmt.Errorf("genesis offering %q: %w", offering.Name, err)
			}
		}
	}
	return nil
}

func (r *Runtime) genesisSettlement(g *config.Genesis) error {
	for pallet, keys := range g.Settlement {
		engine, err := r.market(pallet)
		if err != nil {
			return err
		}
		admin, escrowKey, treasury, err := keys.Keys()
		if err != nil {
			return err
		}
		cfg := orders.SettlementConfig{Admin: admin, EscrowKey: escrowKey, Treasury: treasury}
		if err := engine.InitGenesis(cfg); err != nil {
			return fmt.Errorf("genesis settlement %s: %w", pallet, err)
		}
	}
	return nil
}
