package rpc

import (
	"encoding/hex"
	"net/http"
	"strings"

	"fcgsales/core"
	"fcgsales/core/ledger"
	"fcgsales/crypto"
)

type createAccountParams struct {
	PubKey string `json:"pubkey"`
}

type accountParams struct {
	Account ledger.AccountAddress `json:"account"`
}

type createAccountResult struct {
	Account ledger.AccountAddress `json:"account"`
}

type resourceResult struct {
	Resource ledger.ResourceAddress `json:"resource"`
}

type balancesResult struct {
	Account  ledger.AccountAddress `json:"account"`
	Balances []core.Balance        `json:"balances"`
}

// handleCreateAccount registers the public key. The request must be signed by
// the same key so only its holder can register it.
func (s *Server) handleCreateAccount(w *statusRecorder, r *http.Request, req *RPCRequest) {
	var params createAccountParams
	signer, ok := s.readSigned(w, req, &params)
	if !ok {
		return
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(params.PubKey), "0x"))
	if err != nil {
		w.writeError(http.StatusBadRequest, req.ID, codeInvalidParams, "pubkey must be hex encoded", err.Error())
		return
	}
	key, err := crypto.PublicKeyFromBytes(raw)
	if err != nil {
		w.writeError(http.StatusBadRequest, req.ID, codeInvalidParams, "invalid pubkey", err.Error())
		return
	}
	if ledger.AccountAddress(key.Address()) != signer {
		w.writeError(http.StatusUnauthorized, req.ID, codeUnauthorized, "pubkey does not belong to signer", nil)
		return
	}
	addr, err := s.node.CreateAccount(r.Context(), raw)
	if err != nil {
		w.writeFailure(req.ID, err, nil)
		return
	}
	writeResult(w, req.ID, createAccountResult{Account: addr})
}

func (s *Server) handleBalances(w *statusRecorder, r *http.Request, req *RPCRequest) {
	var params accountParams
	if !s.readParams(w, req, &params) {
		return
	}
	if params.Account.IsZero() {
		w.writeError(http.StatusBadRequest, req.ID, codeInvalidParams, "account required", nil)
		return
	}
	if !s.node.HasAccount(params.Account) {
		w.writeFailure(req.ID, core.ErrUnknownAccount, nil)
		return
	}
	balances, err := s.node.AccountBalances(r.Context(), params.Account)
	if err != nil {
		w.writeFailure(req.ID, err, nil)
		return
	}
	writeResult(w, req.ID, balancesResult{Account: params.Account, Balances: balances})
}

func (s *Server) handleCreateFungible(w *statusRecorder, r *http.Request, req *RPCRequest) {
	var params core.FungibleRequest
	signer, ok := s.readSigned(w, req, &params)
	if !ok {
		return
	}
	addr, receipt, err := s.node.CreateFungible(r.Context(), signer, params)
	w.writeMutation(req.ID, resourceResult{Resource: addr}, receipt, err)
}

func (s *Server) handleCreateNonFungible(w *statusRecorder, r *http.Request, req *RPCRequest) {
	var params core.NonFungibleRequest
	signer, ok := s.readSigned(w, req, &params)
	if !ok {
		return
	}
	addr, receipt, err := s.node.CreateNonFungible(r.Context(), signer, params)
	w.writeMutation(req.ID, resourceResult{Resource: addr}, receipt, err)
}

func (s *Server) handleGenesisResources(w *statusRecorder, _ *http.Request, req *RPCRequest) {
	writeResult(w, req.ID, s.node.GenesisResources())
}
