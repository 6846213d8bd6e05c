package types

import "math/big"

// Account is the native-ledger record kept for every address that holds a
// balance, has sent a transaction, or was registered as a custody account.
type Account struct {
	Nonce     uint64   `json:"nonce"`
	Free      *big.Int `json:"free"`
	Providers uint32   `json:"providers"`
	Consumers uint32   `json:"consumers"`
	// Module accounts carry a permanent provider reference and are never
	// reaped when their balance drops below the existential deposit.
	Module bool `json:"module"`
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Free != nil {
		clone.Free = new(big.Int).Set(a.Free)
	} else {
		clone.Free = big.NewInt(0)
	}
	return &clone
}

// Empty reports whether the record carries nothing worth persisting.
func (a *Account) Empty() bool {
	if a == nil {
		return true
	}
	return a.Nonce == 0 && (a.Free == nil || a.Free.Sign() == 0) && a.Providers == 0 && a.Consumers == 0 && !a.Module
}
