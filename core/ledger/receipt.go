package ledger

import "fcgsales/core/types"

// ReceiptStatus is the outcome of a transaction.
type ReceiptStatus string

const (
	StatusCommitted ReceiptStatus = "committed"
	StatusFailed    ReceiptStatus = "failed"
)

// Receipt records the outcome of one Execute call. Failed transactions carry
// the abort reason and never any events.
type Receipt struct {
	Sequence uint64           `json:"sequence"`
	Epoch    uint64           `json:"epoch"`
	Status   ReceiptStatus    `json:"status"`
	Error    string           `json:"error,omitempty"`
	Signers  []AccountAddress `json:"signers,omitempty"`
	Events   []*types.Event   `json:"events"`
}

// Committed reports whether the transaction's effects were kept.
func (r *Receipt) Committed() bool {
	return r != nil && r.Status == StatusCommitted
}
