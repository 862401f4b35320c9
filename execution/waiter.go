package execution

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// ReceiptWaiter blocks until a transaction is mined.
type ReceiptWaiter interface {
	WaitMined(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error)
}

// MinedWaiter polls the node for the receipt.
type MinedWaiter struct {
	Backend bind.DeployBackend
}

func (w MinedWaiter) WaitMined(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	return bind.WaitMined(ctx, w.Backend, tx)
}
