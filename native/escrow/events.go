package escrow

import (
	"fcgsales/core/events"
	"fcgsales/core/types"
)

const (
	EventTypeEscrowCreated   = "escrow.created"
	EventTypeEscrowSettled   = "escrow.settled"
	EventTypeEscrowWithdrawn = "escrow.withdrawn"
	EventTypeEscrowCancelled = "escrow.cancelled"
)

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// NewCreatedEvent returns the payload emitted when an escrow is instantiated.
func NewCreatedEvent(s Snapshot) *types.Event { return newEscrowEvent(EventTypeEscrowCreated, s) }

// NewSettledEvent returns the payload emitted when a payment settles an
// escrow.
func NewSettledEvent(s Snapshot) *types.Event { return newEscrowEvent(EventTypeEscrowSettled, s) }

// NewWithdrawnEvent returns the payload emitted when settled proceeds are
// withdrawn and the token burned.
func NewWithdrawnEvent(s Snapshot) *types.Event { return newEscrowEvent(EventTypeEscrowWithdrawn, s) }

// NewCancelledEvent returns the payload emitted when an open escrow is
// cancelled and its deposit returned.
func NewCancelledEvent(s Snapshot) *types.Event { return newEscrowEvent(EventTypeEscrowCancelled, s) }

func newEscrowEvent(eventType string, s Snapshot) *types.Event {
	attrs := map[string]string{
		"escrow":            s.Component.String(),
		"status":            s.Status.String(),
		"token":             s.TokenResource.String(),
		"requestedResource": s.RequestedResource.String(),
		"requestedAmount":   events.FormatAmount(s.RequestedAmount),
		"offeredResource":   s.OfferedResource.String(),
		"deposit":           events.FormatAmount(s.DepositAmount),
		"proceeds":          events.FormatAmount(s.ProceedsAmount),
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
