package query

import (
	"encoding/hex"
	"strings"

	"github.com/mr-tron/base58"
)

const (
	solanaAddressLen = 32
	evmAddressLen    = 20
)

// ValidAddress accepts a base58 Solana public key (32 bytes) or a
// 0x-prefixed 20-byte hex address.
func ValidAddress(address string) bool {
	address = strings.TrimSpace(address)
	if address == "" {
		return false
	}

	if strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X") {
		raw, err := hex.DecodeString(address[2:])
		return err == nil && len(raw) == evmAddressLen
	}

	raw, err := base58.Decode(address)
	return err == nil && len(raw) == solanaAddressLen
}
