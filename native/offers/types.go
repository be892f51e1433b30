package offers

import (
	"fmt"

	"github.com/shopspring/decimal"

	"fcgsales/core/ledger"
)

// State is the lifecycle position of an offer record.
type State string

const (
	StateNew      State = "NEW"
	StateAccepted State = "ACCEPTED"
	StateRefused  State = "REFUSED"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateAccepted || s == StateRefused }

// Field names of the offer record. Only state and the two resolution markers
// are mutable after minting.
const (
	fieldHash       = "hash"
	fieldExpiry     = "expiry"
	fieldState      = "state"
	fieldCreatedAt  = "created_at"
	fieldAcceptedAt = "accepted_at"
	fieldRefusedAt  = "refused_at"
	fieldAmount     = "amount"
	fieldRecipient  = "recipient"
)

var mutableFields = []string{fieldState, fieldAcceptedAt, fieldRefusedAt}

// Offer is a decoded snapshot of an offer record.
type Offer struct {
	ID         ledger.LocalID        `json:"id"`
	Hash       string                `json:"hash"`
	Expiry     uint64                `json:"expiry"`
	State      State                 `json:"state"`
	CreatedAt  uint64                `json:"createdAt"`
	AcceptedAt uint64                `json:"acceptedAt"`
	RefusedAt  uint64                `json:"refusedAt"`
	Amount     decimal.Decimal       `json:"amount"`
	Recipient  ledger.AccountAddress `json:"recipient,omitempty"`
}

// Expired reports whether the offer can no longer be resolved at epoch. The
// expiry epoch itself is still valid.
func (o *Offer) Expired(epoch uint64) bool { return epoch > o.Expiry }

func (o *Offer) fields() (ledger.Fields, error) {
	data := ledger.Fields{}
	for name, value := range map[string]interface{}{
		fieldHash:       o.Hash,
		fieldExpiry:     o.Expiry,
		fieldState:      string(o.State),
		fieldCreatedAt:  o.CreatedAt,
		fieldAcceptedAt: o.AcceptedAt,
		fieldRefusedAt:  o.RefusedAt,
		fieldRecipient:  o.Recipient,
	} {
		if err := data.Set(name, value); err != nil {
			return nil, err
		}
	}
	if err := data.SetDecimal(fieldAmount, o.Amount); err != nil {
		return nil, err
	}
	return data, nil
}

func decodeOffer(id ledger.LocalID, data ledger.Fields) (*Offer, error) {
	o := &Offer{ID: id}
	var state string
	for name, out := range map[string]interface{}{
		fieldHash:       &o.Hash,
		fieldExpiry:     &o.Expiry,
		fieldState:      &state,
		fieldCreatedAt:  &o.CreatedAt,
		fieldAcceptedAt: &o.AcceptedAt,
		fieldRefusedAt:  &o.RefusedAt,
		fieldRecipient:  &o.Recipient,
	} {
		if err := data.Get(name, out); err != nil {
			return nil, fmt.Errorf("offers: decode %s: %w", id, err)
		}
	}
	amount, err := data.Decimal(fieldAmount)
	if err != nil {
		return nil, fmt.Errorf("offers: decode %s: %w", id, err)
	}
	o.State = State(state)
	o.Amount = amount
	return o, nil
}
