package testutils

import (
	"crypto/ecdsa"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// TestChainID is the chain id used by the fake backend and signed test transactions.
var TestChainID = big.NewInt(56)

// NewKey returns a deterministic private key and its address.
func NewKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key := make([]byte, 32)
	for i := 0; i < 32; i++ {
		key[i] = byte(i + 1)
	}
	privateKey, err := crypto.ToECDSA(key)
	require.NoError(t, err)
	return privateKey, crypto.PubkeyToAddress(privateKey.PublicKey)
}

// HexKey returns the hex encoding of the key from NewKey, as read from PRIVATE_KEY.
func HexKey(t *testing.T) string {
	t.Helper()
	key, _ := NewKey(t)
	return common.Bytes2Hex(crypto.FromECDSA(key))
}

// MustABI parses a JSON ABI or fails the test.
func MustABI(t *testing.T, raw string) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(raw))
	require.NoError(t, err)
	return parsed
}

// Address derives a stable address from a label, for readable tests.
func Address(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(label))[12:])
}

// Units returns n * 10^decimals.
func Units(n int64, decimals int) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
}
