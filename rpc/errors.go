package rpc

import (
	"errors"
	"net/http"

	"fcgsales/core"
	"fcgsales/core/ledger"
	"fcgsales/core/state"
	"fcgsales/native/common"
	"fcgsales/native/escrow"
	"fcgsales/native/offers"
)

const (
	codeNotFound          = -32004
	codeConflict          = -32009
	codeInsufficientFunds = -32011
	codeNotImplemented    = -32012
	codeModulePaused      = -32013
)

type errorMapping struct {
	target error
	status int
	code   int
}

// errorTable is consulted in order; the first match wins.
var errorTable = []errorMapping{
	{errMissingAuth, http.StatusUnauthorized, codeUnauthorized},
	{errSignerMismatch, http.StatusUnauthorized, codeUnauthorized},
	{errMalformedAuthSig, http.StatusUnauthorized, codeUnauthorized},
	{errStaleRequest, http.StatusUnauthorized, codeUnauthorized},
	{errReplayedRequest, http.StatusConflict, codeDuplicateTx},
	{common.ErrModulePaused, http.StatusServiceUnavailable, codeModulePaused},
	{core.ErrUnknownAccount, http.StatusForbidden, codeUnauthorized},
	{ledger.ErrUnauthorized, http.StatusForbidden, codeUnauthorized},
	{ledger.ErrNotSigner, http.StatusForbidden, codeUnauthorized},
	{offers.ErrInvalidOfferProof, http.StatusForbidden, codeUnauthorized},
	{escrow.ErrInvalidEscrowToken, http.StatusForbidden, codeUnauthorized},
	{core.ErrUnknownRegistry, http.StatusNotFound, codeNotFound},
	{core.ErrUnknownEscrow, http.StatusNotFound, codeNotFound},
	{offers.ErrOfferNotFound, http.StatusNotFound, codeNotFound},
	{state.ErrReceiptNotFound, http.StatusNotFound, codeNotFound},
	{ledger.ErrNotFound, http.StatusNotFound, codeNotFound},
	{offers.ErrNotImplemented, http.StatusNotImplemented, codeNotImplemented},
	{ledger.ErrInsufficientBalance, http.StatusConflict, codeInsufficientFunds},
	{escrow.ErrInsufficientAmount, http.StatusConflict, codeInsufficientFunds},
	{offers.ErrNotAcceptable, http.StatusConflict, codeConflict},
	{offers.ErrNotRefusable, http.StatusConflict, codeConflict},
	{offers.ErrExpired, http.StatusConflict, codeConflict},
	{escrow.ErrNotOpen, http.StatusConflict, codeConflict},
	{escrow.ErrAlreadySettled, http.StatusConflict, codeConflict},
	{escrow.ErrClosed, http.StatusConflict, codeConflict},
	{ledger.ErrDuplicateID, http.StatusConflict, codeConflict},
	{ledger.ErrBurned, http.StatusConflict, codeConflict},
	{core.ErrInvalidRequest, http.StatusBadRequest, codeInvalidParams},
	{ledger.ErrInvalidAmount, http.StatusBadRequest, codeInvalidParams},
	{ledger.ErrInvalidID, http.StatusBadRequest, codeInvalidParams},
	{ledger.ErrWrongResource, http.StatusBadRequest, codeInvalidParams},
	{ledger.ErrWrongKind, http.StatusBadRequest, codeInvalidParams},
	{offers.ErrInvalidAmount, http.StatusBadRequest, codeInvalidParams},
	{escrow.ErrWrongResource, http.StatusBadRequest, codeInvalidParams},
	{escrow.ErrInvalidAmount, http.StatusBadRequest, codeInvalidParams},
	{escrow.ErrEmptyDeposit, http.StatusBadRequest, codeInvalidParams},
}

// classify maps an operation error onto an HTTP status and JSON-RPC code.
func classify(err error) (int, int) {
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, codeServerError
}

// failureData is attached to errors raised by an executed transaction so the
// caller can look the failed receipt up later.
type failureData struct {
	Receipt *ledger.Receipt `json:"receipt"`
}

func (w *statusRecorder) writeFailure(id interface{}, err error, receipt *ledger.Receipt) {
	status, code := classify(err)
	var data interface{}
	if receipt != nil {
		data = failureData{Receipt: receipt}
	}
	w.writeError(status, id, code, err.Error(), data)
}
