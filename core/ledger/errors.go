package ledger

import "errors"

var (
	ErrUnauthorized        = errors.New("ledger: unauthorized")
	ErrNotSigner           = errors.New("ledger: account did not sign the transaction")
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrWrongResource       = errors.New("ledger: resource mismatch")
	ErrInvalidAmount       = errors.New("ledger: invalid amount")
	ErrInvalidID           = errors.New("ledger: invalid local id")
	ErrNotFound            = errors.New("ledger: not found")
	ErrDuplicateID         = errors.New("ledger: non-fungible id already exists")
	ErrBurned              = errors.New("ledger: non-fungible id was burned")
	ErrImmutableField      = errors.New("ledger: field is immutable")
	ErrWrongKind           = errors.New("ledger: operation not supported by resource kind")
	ErrDanglingBucket      = errors.New("ledger: transaction left a non-empty bucket")
	ErrProofInvalid        = errors.New("ledger: proof no longer valid")
	ErrTxClosed            = errors.New("ledger: transaction already finished")
	ErrPanic               = errors.New("ledger: transaction panicked")
	ErrEpochRegression     = errors.New("ledger: epoch cannot move backwards")
	ErrReceiptNotPersisted = errors.New("ledger: receipt not persisted")
)
