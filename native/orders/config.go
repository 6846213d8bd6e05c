package orders

import (
	"fmt"

	"genomarket/core/state"
	"genomarket/core/types"
)

// SettlementConfig holds the privileged keys of a marketplace.
type SettlementConfig struct {
	// Admin may replace the configuration.
	Admin types.Address
	// EscrowKey fulfils and refunds orders and confirms off-chain payments.
	EscrowKey types.Address
	// Treasury receives the settlement fee.
	Treasury types.Address
}

// Validate rejects unset keys.
func (c SettlementConfig) Validate() error {
	switch {
	case c.Admin.IsZero():
		return fmt.Errorf("%w: admin required", ErrInvalidConfig)
	case c.EscrowKey.IsZero():
		return fmt.Errorf("%w: escrow key required", ErrInvalidConfig)
	case c.Treasury.IsZero():
		return fmt.Errorf("%w: treasury required", ErrInvalidConfig)
	}
	return nil
}

type storedConfig struct {
	Admin         types.Address
	EscrowKey     types.Address
	Treasury      types.Address
	PalletAccount types.Address
}

func (e *Engine) configKey() []byte {
	return state.PalletKey(e.variant.Name, "config", nil)
}

func (e *Engine) loadConfig() (*storedConfig, error) {
	cfg := new(storedConfig)
	ok, err := e.state.KVGet(e.configKey(), cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSettlementNotConfigured
	}
	return cfg, nil
}

// InitGenesis stores the initial configuration and registers the pallet
// custody account as a permanent module account.
func (e *Engine) InitGenesis(cfg SettlementConfig) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return e.state.Atomic(func() error {
		if ok, err := e.state.KVHas(e.configKey()); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("%w: %s already initialised", ErrInvalidConfig, e.variant.Name)
		}
		pallet := PalletAccount(e.variant.Tag)
		if err := e.native.EnsureModuleAccount(pallet); err != nil {
			return mapLedgerError(err)
		}
		return e.state.KVPut(e.configKey(), &storedConfig{
			Admin:         cfg.Admin,
			EscrowKey:     cfg.EscrowKey,
			Treasury:      cfg.Treasury,
			PalletAccount: pallet,
		})
	})
}

// Config returns the current settlement configuration.
func (e *Engine) Config() (SettlementConfig, error) {
	if err := e.ready(); err != nil {
		return SettlementConfig{}, err
	}
	stored, err := e.loadConfig()
	if err != nil {
		return SettlementConfig{}, err
	}
	return SettlementConfig{Admin: stored.Admin, EscrowKey: stored.EscrowKey, Treasury: stored.Treasury}, nil
}

// PalletAccount returns the custody account registered at genesis.
func (e *Engine) PalletAccount() (types.Address, error) {
	if err := e.ready(); err != nil {
		return types.Address{}, err
	}
	stored, err := e.loadConfig()
	if err != nil {
		return types.Address{}, err
	}
	if stored.PalletAccount.IsZero() {
		return types.Address{}, ErrPalletAccountNotFound
	}
	return stored.PalletAccount, nil
}

// UpdateConfig replaces the privileged keys. Only the current admin may call
// it.
func (e *Engine) UpdateConfig(caller types.Address, cfg SettlementConfig) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return e.state.Atomic(func() error {
		stored, err := e.loadConfig()
		if err != nil {
			return err
		}
		if caller != stored.Admin {
			return ErrUnauthorized
		}
		stored.Admin = cfg.Admin
		stored.EscrowKey = cfg.EscrowKey
		stored.Treasury = cfg.Treasury
		if err := e.state.KVPut(e.configKey(), stored); err != nil {
			return err
		}
		e.emit(newConfigUpdatedEvent(e.variant.Name, cfg))
		return nil
	})
}
