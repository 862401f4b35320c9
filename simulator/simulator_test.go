package simulator

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/dexarb/dex/uniswap"
	"github.com/michaelpento.lv/dexarb/utils/testutils"
)

var (
	router = testutils.Address("router")
	usdt   = testutils.Address("usdt")
	cake   = testutils.Address("cake")
)

func swapData(t *testing.T, to common.Address) []byte {
	routerABI := testutils.MustABI(t, uniswap.RouterABI)
	data, err := routerABI.Pack("swapExactTokensForTokens",
		big.NewInt(1000), big.NewInt(999), []common.Address{usdt, cake}, to, big.NewInt(1700000000))
	require.NoError(t, err)
	return data
}

func newBackend(t *testing.T, revert bool) *testutils.Backend {
	backend := testutils.NewBackend()
	backend.Register(router, testutils.MustABI(t, uniswap.RouterABI))
	backend.OnCall(router, "swapExactTokensForTokens", func(args []interface{}) ([]interface{}, error) {
		if revert {
			return nil, errors.New("execution reverted: PancakeRouter: INSUFFICIENT_OUTPUT_AMOUNT")
		}
		return []interface{}{[]*big.Int{args[0].(*big.Int), big.NewInt(1001)}}, nil
	})
	return backend
}

func TestSimulateCall(t *testing.T) {
	sim := NewSimulator(newBackend(t, false))
	_, from := testutils.NewKey(t)

	result, err := sim.SimulateCall(context.Background(), Call{From: from, To: router, Gas: 400000, Data: swapData(t, from)})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, uint64(150000), result.GasUsed)
	assert.NotEmpty(t, result.Return)
}

func TestSimulateCallRevert(t *testing.T) {
	sim := NewSimulator(newBackend(t, true))

	result, err := sim.SimulateCall(context.Background(), Call{To: router, Data: swapData(t, usdt)})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error.Error(), "INSUFFICIENT_OUTPUT_AMOUNT")
}

func TestSimulateCallShortData(t *testing.T) {
	sim := NewSimulator(newBackend(t, false))
	_, err := sim.SimulateCall(context.Background(), Call{To: router, Data: []byte{0x01}})
	assert.Error(t, err)
}
