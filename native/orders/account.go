package orders

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"genomarket/core/types"
)

var modulePrefix = []byte("modl")

// PalletAccount derives the custody account of a pallet from its tag. Nobody
// holds a key for it.
func PalletAccount(tag string) types.Address {
	return types.BytesToAddress(ethcrypto.Keccak256(modulePrefix, []byte(tag)))
}

// SubAccount derives a per-order custody account under the pallet tag.
func SubAccount(tag string, orderID types.Hash) types.Address {
	return types.BytesToAddress(ethcrypto.Keccak256(modulePrefix, []byte(tag), orderID[:]))
}
