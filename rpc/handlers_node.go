package rpc

import (
	"net/http"

	"fcgsales/core/state"
)

const maxEventsPerPage = 500

type epochResult struct {
	Epoch    uint64 `json:"epoch"`
	Sequence uint64 `json:"sequence"`
}

type advanceEpochParams struct {
	By uint64 `json:"by"`
}

type receiptParams struct {
	Sequence uint64 `json:"sequence"`
}

type eventsParams struct {
	FromSequence uint64 `json:"fromSequence"`
	Type         string `json:"type,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

type eventsResult struct {
	Events []state.LoggedEvent `json:"events"`
}

func (s *Server) handleEpoch(w *statusRecorder, _ *http.Request, req *RPCRequest) {
	writeResult(w, req.ID, epochResult{Epoch: s.node.Epoch(), Sequence: s.node.Sequence()})
}

func (s *Server) handleAdvanceEpoch(w *statusRecorder, _ *http.Request, req *RPCRequest) {
	var params advanceEpochParams
	if !s.readParams(w, req, &params) {
		return
	}
	if params.By == 0 {
		w.writeError(http.StatusBadRequest, req.ID, codeInvalidParams, "by must be positive", nil)
		return
	}
	epoch := s.node.AdvanceEpoch(params.By)
	writeResult(w, req.ID, epochResult{Epoch: epoch, Sequence: s.node.Sequence()})
}

func (s *Server) handleGetReceipt(w *statusRecorder, _ *http.Request, req *RPCRequest) {
	var params receiptParams
	if !s.readParams(w, req, &params) {
		return
	}
	receipt, err := s.node.Receipt(params.Sequence)
	if err != nil {
		w.writeFailure(req.ID, err, nil)
		return
	}
	writeResult(w, req.ID, receipt)
}

func (s *Server) handleGetEvents(w *statusRecorder, _ *http.Request, req *RPCRequest) {
	var params eventsParams
	if !s.readParams(w, req, &params) {
		return
	}
	limit := params.Limit
	if limit <= 0 || limit > maxEventsPerPage {
		limit = maxEventsPerPage
	}
	evts, err := s.node.Events(params.FromSequence, params.Type, limit)
	if err != nil {
		w.writeFailure(req.ID, err, nil)
		return
	}
	if evts == nil {
		evts = []state.LoggedEvent{}
	}
	writeResult(w, req.ID, eventsResult{Events: evts})
}
