package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Account is the single controlling account the bot trades from.
type Account struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
}

// NewAccount parses a hex private key, with or without 0x prefix.
func NewAccount(hexKey string, chainID *big.Int) (*Account, error) {
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, errors.New("chain id must be positive")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &Account{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(chainID),
	}, nil
}

// WatchOnly returns an account that can read balances but not sign.
func WatchOnly(address common.Address) *Account {
	return &Account{address: address}
}

func (a *Account) Address() common.Address {
	return a.address
}

// CanSign reports whether the account holds a key.
func (a *Account) CanSign() bool {
	return a.key != nil
}

// TransactOpts returns fresh signing options. The nonce is left to the
// transaction layer (pending nonce at send time).
func (a *Account) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if a.key == nil {
		return nil, errors.New("account has no signing key")
	}
	opts, err := bind.NewKeyedTransactorWithChainID(a.key, a.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}

