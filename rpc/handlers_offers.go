package rpc

import (
	"context"
	"net/http"

	"fcgsales/core"
	"fcgsales/core/ledger"
	"fcgsales/native/offers"
)

type registryParams struct {
	Registry ledger.ComponentAddress `json:"registry"`
}

type issueBadgeParams struct {
	Registry  ledger.ComponentAddress `json:"registry"`
	Name      string                  `json:"name"`
	Recipient ledger.AccountAddress   `json:"recipient"`
}

type sendOfferParams struct {
	Registry ledger.ComponentAddress `json:"registry"`
	core.SendOfferRequest
}

type offerParams struct {
	Registry ledger.ComponentAddress `json:"registry"`
	OfferID  ledger.LocalID          `json:"offerId"`
}

type emptyParams struct{}

func (s *Server) handleInstantiateRegistry(w *statusRecorder, r *http.Request, req *RPCRequest) {
	var params emptyParams
	signer, ok := s.readSigned(w, req, &params)
	if !ok {
		return
	}
	info, receipt, err := s.node.InstantiateRegistry(r.Context(), signer)
	w.writeMutation(req.ID, info, receipt, err)
}

func (s *Server) handleGetRegistry(w *statusRecorder, r *http.Request, req *RPCRequest) {
	var params registryParams
	if !s.readParams(w, req, &params) {
		return
	}
	info, err := s.node.GetRegistry(r.Context(), params.Registry)
	if err != nil {
		w.writeFailure(req.ID, err, nil)
		return
	}
	writeResult(w, req.ID, info)
}

type badgeIssuer func(ctx context.Context, signer ledger.AccountAddress, registry ledger.ComponentAddress, name string, recipient ledger.AccountAddress) (*core.BadgeResult, *ledger.Receipt, error)

func (s *Server) handleIssueManagerBadge(w *statusRecorder, r *http.Request, req *RPCRequest) {
	s.issueBadge(w, r, req, s.node.IssueManagerBadge)
}

func (s *Server) handleIssueCustomerBadge(w *statusRecorder, r *http.Request, req *RPCRequest) {
	s.issueBadge(w, r, req, s.node.IssueCustomerBadge)
}

func (s *Server) issueBadge(w *statusRecorder, r *http.Request, req *RPCRequest, issue badgeIssuer) {
	var params issueBadgeParams
	signer, ok := s.readSigned(w, req, &params)
	if !ok {
		return
	}
	if params.Recipient.IsZero() {
		w.writeError(http.StatusBadRequest, req.ID, codeInvalidParams, "recipient required", nil)
		return
	}
	badge, receipt, err := issue(r.Context(), signer, params.Registry, params.Name, params.Recipient)
	w.writeMutation(req.ID, badge, receipt, err)
}

func (s *Server) handleSendOffer(w *statusRecorder, r *http.Request, req *RPCRequest) {
	var params sendOfferParams
	signer, ok := s.readSigned(w, req, &params)
	if !ok {
		return
	}
	offer, receipt, err := s.node.SendOffer(r.Context(), signer, params.Registry, params.SendOfferRequest)
	w.writeMutation(req.ID, offer, receipt, err)
}

func (s *Server) handleCancelOffer(w *statusRecorder, r *http.Request, req *RPCRequest) {
	var params offerParams
	signer, ok := s.readSigned(w, req, &params)
	if !ok {
		return
	}
	receipt, err := s.node.CancelOffer(r.Context(), signer, params.Registry, params.OfferID)
	w.writeMutation(req.ID, nil, receipt, err)
}

type offerResolver func(ctx context.Context, signer ledger.AccountAddress, registry ledger.ComponentAddress, id ledger.LocalID) (*offers.Offer, *ledger.Receipt, error)

func (s *Server) handleAcceptOffer(w *statusRecorder, r *http.Request, req *RPCRequest) {
	s.resolveOffer(w, r, req, s.node.AcceptOffer)
}

func (s *Server) handleRefuseOffer(w *statusRecorder, r *http.Request, req *RPCRequest) {
	s.resolveOffer(w, r, req, s.node.RefuseOffer)
}

func (s *Server) resolveOffer(w *statusRecorder, r *http.Request, req *RPCRequest, resolve offerResolver) {
	var params offerParams
	signer, ok := s.readSigned(w, req, &params)
	if !ok {
		return
	}
	offer, receipt, err := resolve(r.Context(), signer, params.Registry, params.OfferID)
	w.writeMutation(req.ID, offer, receipt, err)
}

func (s *Server) handleGetOffer(w *statusRecorder, r *http.Request, req *RPCRequest) {
	var params offerParams
	if !s.readParams(w, req, &params) {
		return
	}
	offer, err := s.node.GetOffer(r.Context(), params.Registry, params.OfferID)
	if err != nil {
		w.writeFailure(req.ID, err, nil)
		return
	}
	writeResult(w, req.ID, offer)
}
