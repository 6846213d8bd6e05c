package state

import (
	"encoding/binary"

	"genomarket/core/types"
)

var (
	accountPrefix       = []byte("bank/account/")
	totalIssuanceKey    = []byte("bank/total-issuance")
	assetMetaPrefix     = []byte("assets/meta/")
	assetAccountPrefix  = []byte("assets/account/")
	sellerPrefix        = []byte("catalog/seller/")
	offeringPrefix      = []byte("catalog/offering/")
	offeringsByOwnerKey = []byte("catalog/by-owner/")
	trackingPrefix      = []byte("tracking/")
	genesisKey          = []byte("runtime/genesis")
)

func join(parts ...[]byte) []byte {
	size := 0
	for _, p := range parts {
		size += len(p)
	}
	buf := make([]byte, 0, size)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

// AccountKey addresses the native-ledger account record.
func AccountKey(addr types.Address) []byte { return join(accountPrefix, addr[:]) }

// TotalIssuanceKey addresses the native total issuance.
func TotalIssuanceKey() []byte { return append([]byte(nil), totalIssuanceKey...) }

func u32(v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return buf[:]
}

// AssetMetaKey addresses fungible asset metadata.
func AssetMetaKey(assetID uint32) []byte { return join(assetMetaPrefix, u32(assetID)) }

// AssetAccountKey addresses a holder's balance of an asset.
func AssetAccountKey(assetID uint32, addr types.Address) []byte {
	return join(assetAccountPrefix, u32(assetID), []byte{':'}, addr[:])
}

// SellerKey addresses a seller (lab) registration.
func SellerKey(addr types.Address) []byte { return join(sellerPrefix, addr[:]) }

// OfferingKey addresses an offering definition.
func OfferingKey(id types.Hash) []byte { return join(offeringPrefix, id[:]) }

// OfferingsByOwnerKey addresses the list of offering ids owned by a seller.
func OfferingsByOwnerKey(owner types.Address) []byte { return join(offeringsByOwnerKey, owner[:]) }

// TrackingKey addresses a tracking record of the given kind.
func TrackingKey(kind, trackingID string) []byte {
	return join(trackingPrefix, []byte(kind), []byte{'/'}, []byte(trackingID))
}

// TrackingByOrderKey maps an order id to its tracking id for the given kind.
func TrackingByOrderKey(kind string, orderID types.Hash) []byte {
	return join(trackingPrefix, []byte(kind), []byte("/by-order/"), orderID[:])
}

// PalletKey namespaces a key under a marketplace pallet instance.
func PalletKey(pallet, section string, suffix []byte) []byte {
	return join([]byte("pallet/"), []byte(pallet), []byte{'/'}, []byte(section), []byte{'/'}, suffix)
}

// GenesisKey marks a store whose genesis state has been applied. It holds the
// chain id.
func GenesisKey() []byte { return append([]byte(nil), genesisKey...) }
