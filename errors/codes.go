// Package errors provides the coded error taxonomy shared by the ledger,
// the registries and the NATS handlers.
package errors

// Code is a machine-readable error code. Handlers send it back verbatim as
// the failure reason.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "ERR_UNKNOWN"

	// Construction and configuration
	CodeInvalidConfig Code = "ERR_INVALID_CONFIG"
	CodeConfigLocked  Code = "ERR_CONFIG_LOCKED"

	// Registration and tickets
	CodeCapacityExceeded   Code = "ERR_CAPACITY_EXCEEDED"
	CodeAlreadyRegistered  Code = "ERR_ALREADY_REGISTERED"
	CodeNotRegistered      Code = "ERR_NOT_REGISTERED"
	CodeWrongDepositAmount Code = "ERR_WRONG_DEPOSIT_AMOUNT"
	CodeTransferPaused     Code = "ERR_TRANSFER_PAUSED"
	CodeHolderConflict     Code = "ERR_HOLDER_CONFLICT"

	// Lifecycle
	CodeAlreadyEnded Code = "ERR_ALREADY_ENDED"
	CodeNotEnded     Code = "ERR_NOT_ENDED"

	// Authorization
	CodeUnauthorized Code = "ERR_UNAUTHORIZED"

	// Attendance and settlement
	CodeInvalidBitmapIndex Code = "ERR_INVALID_BITMAP_INDEX"
	CodeAlreadyPaid        Code = "ERR_ALREADY_PAID"
	CodeNotEligible        Code = "ERR_NOT_ELIGIBLE"
	CodeSplitMismatch      Code = "ERR_SPLIT_MISMATCH"

	// Sweeps
	CodeCoolingPeriodNotElapsed Code = "ERR_COOLING_PERIOD_NOT_ELAPSED"
	CodeSweepExhausted          Code = "ERR_SWEEP_EXHAUSTED"

	// Asset movement
	CodeTransferFailed Code = "ERR_TRANSFER_FAILED"

	// Service surface
	CodePartyNotFound  Code = "ERR_PARTY_NOT_FOUND"
	CodeInvalidRequest Code = "ERR_INVALID_REQUEST"
)
