package escrow

import (
	"fmt"

	"github.com/shopspring/decimal"

	"fcgsales/core/ledger"
)

// Status is the lifecycle position of an escrow. OPEN moves to SETTLED on a
// successful exchange and then to WITHDRAWN, or straight to CANCELLED.
// WITHDRAWN and CANCELLED coincide with the escrow token being burned.
type Status uint8

const (
	StatusOpen Status = iota + 1
	StatusSettled
	StatusWithdrawn
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "OPEN"
	case StatusSettled:
		return "SETTLED"
	case StatusWithdrawn:
		return "WITHDRAWN"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status name.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a status name.
func (s *Status) UnmarshalText(text []byte) error {
	for _, candidate := range []Status{StatusOpen, StatusSettled, StatusWithdrawn, StatusCancelled} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("escrow: unknown status %q", text)
}

// Terminal reports whether the escrow has no further operations.
func (s Status) Terminal() bool { return s == StatusWithdrawn || s == StatusCancelled }

// Field names of the escrow token data. All are frozen at mint.
const (
	fieldRequestedResource = "requested_resource"
	fieldRequestedAmount   = "requested_amount"
	fieldOfferedResource   = "offered_resource"
)

// TokenID is the local id of the single escrow token an engine mints.
var TokenID = ledger.IntegerID(1)

// Snapshot reports the externally visible state of an engine.
type Snapshot struct {
	Component         ledger.ComponentAddress `json:"component"`
	Status            Status                  `json:"status"`
	TokenResource     ledger.ResourceAddress  `json:"tokenResource"`
	RequestedResource ledger.ResourceAddress  `json:"requestedResource"`
	RequestedAmount   decimal.Decimal         `json:"requestedAmount"`
	OfferedResource   ledger.ResourceAddress  `json:"offeredResource"`
	DepositAmount     decimal.Decimal         `json:"depositAmount"`
	DepositIDs        []ledger.LocalID        `json:"depositIds,omitempty"`
	ProceedsAmount    decimal.Decimal         `json:"proceedsAmount"`
}
