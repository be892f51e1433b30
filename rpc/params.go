package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"fcgsales/core/ledger"
)

// mutationResult is returned by every method that executes a transaction.
type mutationResult struct {
	Result  interface{}     `json:"result,omitempty"`
	Receipt *ledger.Receipt `json:"receipt"`
}

func firstParam(req *RPCRequest) json.RawMessage {
	if len(req.Params) == 0 {
		return nil
	}
	return req.Params[0]
}

// decodeParams decodes the single object parameter methods accept. Unknown
// fields are rejected.
func decodeParams(raw json.RawMessage, dst interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("parameter object required")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

// readParams decodes an unsigned request and reports failures to the caller.
func (s *Server) readParams(w *statusRecorder, req *RPCRequest, dst interface{}) bool {
	if len(req.Params) > 1 {
		w.writeError(http.StatusBadRequest, req.ID, codeInvalidParams, "expected a single parameter object", nil)
		return false
	}
	if err := decodeParams(firstParam(req), dst); err != nil {
		w.writeError(http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return false
	}
	return true
}

// readSigned authenticates the request envelope and decodes its parameters.
func (s *Server) readSigned(w *statusRecorder, req *RPCRequest, dst interface{}) (ledger.AccountAddress, bool) {
	if len(req.Params) > 1 {
		w.writeError(http.StatusBadRequest, req.ID, codeInvalidParams, "expected a single parameter object", nil)
		return ledger.AccountAddress{}, false
	}
	raw := firstParam(req)
	signer, err := s.verify(req, raw)
	if err != nil {
		w.writeFailure(req.ID, err, nil)
		return ledger.AccountAddress{}, false
	}
	if err := decodeParams(raw, dst); err != nil {
		w.writeError(http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return ledger.AccountAddress{}, false
	}
	return signer, true
}

func (w *statusRecorder) writeMutation(id interface{}, result interface{}, receipt *ledger.Receipt, err error) {
	if err != nil {
		w.writeFailure(id, err, receipt)
		return
	}
	writeResult(w, id, mutationResult{Result: result, Receipt: receipt})
}
