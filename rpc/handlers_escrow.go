package rpc

import (
	"net/http"

	"github.com/shopspring/decimal"

	"fcgsales/core"
	"fcgsales/core/ledger"
)

type escrowParams struct {
	Escrow ledger.ComponentAddress `json:"escrow"`
}

type exchangeParams struct {
	Escrow ledger.ComponentAddress `json:"escrow"`
	// Amount of the requested resource to pay. Zero pays exactly the
	// requested amount.
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) handleInstantiateEscrow(w *statusRecorder, r *http.Request, req *RPCRequest) {
	var params core.EscrowRequest
	signer, ok := s.readSigned(w, req, &params)
	if !ok {
		return
	}
	snapshot, receipt, err := s.node.InstantiateEscrow(r.Context(), signer, params)
	w.writeMutation(req.ID, snapshot, receipt, err)
}

func (s *Server) handleExchange(w *statusRecorder, r *http.Request, req *RPCRequest) {
	var params exchangeParams
	signer, ok := s.readSigned(w, req, &params)
	if !ok {
		return
	}
	if params.Amount.IsNegative() {
		w.writeError(http.StatusBadRequest, req.ID, codeInvalidParams, "amount must not be negative", nil)
		return
	}
	snapshot, receipt, err := s.node.Exchange(r.Context(), signer, params.Escrow, params.Amount)
	w.writeMutation(req.ID, snapshot, receipt, err)
}

func (s *Server) handleWithdrawResource(w *statusRecorder, r *http.Request, req *RPCRequest) {
	var params escrowParams
	signer, ok := s.readSigned(w, req, &params)
	if !ok {
		return
	}
	result, receipt, err := s.node.WithdrawResource(r.Context(), signer, params.Escrow)
	w.writeMutation(req.ID, result, receipt, err)
}

func (s *Server) handleCancelEscrow(w *statusRecorder, r *http.Request, req *RPCRequest) {
	var params escrowParams
	signer, ok := s.readSigned(w, req, &params)
	if !ok {
		return
	}
	snapshot, receipt, err := s.node.CancelEscrow(r.Context(), signer, params.Escrow)
	w.writeMutation(req.ID, snapshot, receipt, err)
}

func (s *Server) handleGetEscrow(w *statusRecorder, r *http.Request, req *RPCRequest) {
	var params escrowParams
	if !s.readParams(w, req, &params) {
		return
	}
	snapshot, err := s.node.GetEscrow(r.Context(), params.Escrow)
	if err != nil {
		w.writeFailure(req.ID, err, nil)
		return
	}
	writeResult(w, req.ID, snapshot)
}
