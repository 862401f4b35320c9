package types

import "errors"

// Failure taxonomy. Each error is contained at the smallest enclosing scope:
// a triple, a leg, or a cycle.
var (
	// ErrQuoteUnavailable means a venue router cannot price a path.
	ErrQuoteUnavailable = errors.New("quote unavailable")
	// ErrApprovalFailed means an allowance transaction did not confirm.
	ErrApprovalFailed = errors.New("approval failed")
	// ErrSwapFailed means a swap reverted, missed its deadline or was never sent.
	ErrSwapFailed = errors.New("swap failed")
	// ErrEstimationDegraded means the gas cost fell back to the conservative constant.
	ErrEstimationDegraded = errors.New("gas estimation degraded")
	// ErrCycleFatal wraps anything unexpected caught at the cycle boundary.
	ErrCycleFatal = errors.New("cycle fatal")
	// ErrCycleBusy is returned when a cycle is requested while another one runs.
	ErrCycleBusy = errors.New("cycle already running")
)
