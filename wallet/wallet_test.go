package wallet

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/dexarb/utils/testutils"
)

func TestNewAccount(t *testing.T) {
	_, want := testutils.NewKey(t)

	for _, hexKey := range []string{testutils.HexKey(t), "0x" + testutils.HexKey(t)} {
		acct, err := NewAccount(hexKey, big.NewInt(56))
		require.NoError(t, err)
		assert.Equal(t, want, acct.Address())
		assert.True(t, acct.CanSign())
	}
}

func TestNewAccountErrors(t *testing.T) {
	_, err := NewAccount("not-hex", big.NewInt(56))
	assert.Error(t, err)

	_, err = NewAccount(testutils.HexKey(t), nil)
	assert.Error(t, err)
}

func TestTransactOpts(t *testing.T) {
	acct, err := NewAccount(testutils.HexKey(t), big.NewInt(56))
	require.NoError(t, err)

	ctx := context.Background()
	opts, err := acct.TransactOpts(ctx)
	require.NoError(t, err)
	assert.Equal(t, acct.Address(), opts.From)
	assert.Nil(t, opts.Nonce)
	assert.Equal(t, ctx, opts.Context)

	_, err = WatchOnly(acct.Address()).TransactOpts(ctx)
	assert.Error(t, err)
}

