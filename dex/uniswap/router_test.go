package uniswap

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/testutils"
)

var (
	routerAddr = testutils.Address("router")
	usdt       = testutils.Address("usdt")
	cake       = testutils.Address("cake")
)

func newRouter(t *testing.T) (*V2Router, *testutils.Backend) {
	backend := testutils.NewBackend()
	backend.Register(routerAddr, parsedRouterABI)
	return NewV2Router("pancakeswap", routerAddr, backend), backend
}

func TestGetAmountsOut(t *testing.T) {
	router, backend := newRouter(t)
	backend.OnCall(routerAddr, "getAmountsOut", func(args []interface{}) ([]interface{}, error) {
		amountIn := args[0].(*big.Int)
		path := args[1].([]common.Address)
		require.Equal(t, []common.Address{usdt, cake}, path)
		return []interface{}{[]*big.Int{amountIn, new(big.Int).Mul(amountIn, big.NewInt(2))}}, nil
	})

	amounts, err := router.GetAmountsOut(context.Background(), big.NewInt(100), []common.Address{usdt, cake})
	require.NoError(t, err)
	require.Len(t, amounts, 2)
	assert.Equal(t, big.NewInt(200), amounts[1])
	assert.Equal(t, "pancakeswap", router.Name())
	assert.Equal(t, routerAddr, router.Address())
}

func TestGetAmountsOutErrors(t *testing.T) {
	router, backend := newRouter(t)

	_, err := router.GetAmountsOut(context.Background(), big.NewInt(1), []common.Address{usdt})
	assert.Error(t, err)

	backend.OnCall(routerAddr, "getAmountsOut", func(args []interface{}) ([]interface{}, error) {
		return nil, errors.New("execution reverted: INSUFFICIENT_LIQUIDITY")
	})
	_, err = router.GetAmountsOut(context.Background(), big.NewInt(1), []common.Address{usdt, cake})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INSUFFICIENT_LIQUIDITY")

	// a router that answers with the wrong number of hops
	backend.OnCall(routerAddr, "getAmountsOut", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{[]*big.Int{big.NewInt(1)}}, nil
	})
	_, err = router.GetAmountsOut(context.Background(), big.NewInt(1), []common.Address{usdt, cake})
	assert.Error(t, err)
}

func TestSwapExactTokensForTokens(t *testing.T) {
	router, backend := newRouter(t)
	key, from := testutils.NewKey(t)
	opts, err := bind.NewKeyedTransactorWithChainID(key, testutils.TestChainID)
	require.NoError(t, err)
	opts.GasPrice = big.NewInt(1_000_000_000)
	opts.GasLimit = 400000

	tx, err := router.SwapExactTokensForTokens(opts, big.NewInt(1000), big.NewInt(999),
		[]common.Address{usdt, cake}, from, big.NewInt(1700000000))
	require.NoError(t, err)
	assert.Equal(t, uint64(400000), tx.Gas())

	sent := backend.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "swapExactTokensForTokens", sent[0].Method)
	assert.Equal(t, big.NewInt(999), sent[0].Args[1])
	assert.Equal(t, from, sent[0].Args[3])
}

func TestPackSwapMatchesSentCalldata(t *testing.T) {
	router, _ := newRouter(t)
	data, err := router.PackSwap(big.NewInt(1), big.NewInt(1), []common.Address{usdt, cake}, usdt, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, parsedRouterABI.Methods["swapExactTokensForTokens"].ID, data[:4])
}

func TestNewRegistry(t *testing.T) {
	backend := testutils.NewBackend()
	registry := NewRegistry([]types.Venue{
		{ID: "pancakeswap", Router: routerAddr},
		{ID: "biswap", Router: testutils.Address("biswap")},
	}, backend)

	assert.Equal(t, []string{"pancakeswap", "biswap"}, registry.IDs())
	r, err := registry.Router("biswap")
	require.NoError(t, err)
	assert.Equal(t, testutils.Address("biswap"), r.Address())

	_, err = registry.Router("1inch")
	assert.Error(t, err)
}
