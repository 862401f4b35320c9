package simulator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Backend is the node surface the simulator needs.
type Backend interface {
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// SimulationResult represents the result of a transaction simulation
type SimulationResult struct {
	Success bool
	GasUsed uint64
	Return  []byte
	Error   error
}

// Call is an unsigned contract call to simulate.
type Call struct {
	From     common.Address
	To       common.Address
	Gas      uint64
	GasPrice *big.Int
	Data     []byte
}

// Simulator handles transaction simulation
type Simulator struct {
	client Backend
}

// NewSimulator creates a new transaction simulator
func NewSimulator(client Backend) *Simulator {
	return &Simulator{client: client}
}

// SimulateCall executes call against the latest state without sending anything.
// A revert is reported in the result, not as an error.
func (s *Simulator) SimulateCall(ctx context.Context, call Call) (*SimulationResult, error) {
	if len(call.Data) < 4 {
		return nil, fmt.Errorf("call data too short")
	}

	msg := ethereum.CallMsg{
		From:     call.From,
		To:       &call.To,
		Gas:      call.Gas,
		GasPrice: call.GasPrice,
		Value:    big.NewInt(0),
		Data:     call.Data,
	}

	result, err := s.client.CallContract(ctx, msg, nil)
	if err != nil {
		return &SimulationResult{Success: false, Error: err}, nil
	}

	gasUsed, err := s.client.EstimateGas(ctx, msg)
	if err != nil {
		return &SimulationResult{Success: false, Error: err, Return: result}, nil
	}

	return &SimulationResult{Success: true, GasUsed: gasUsed, Return: result}, nil
}
