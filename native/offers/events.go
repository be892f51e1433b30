package offers

import (
	"fcgsales/core/events"
	"fcgsales/core/ledger"
	"fcgsales/core/types"
)

const (
	EventTypeOfferSent     = "offer.sent"
	EventTypeOfferAccepted = "offer.accepted"
	EventTypeOfferRefused  = "offer.refused"
)

type offerEvent struct {
	evt *types.Event
}

func (e offerEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e offerEvent) Event() *types.Event { return e.evt }

// NewSentEvent returns the payload emitted when an offer record is minted.
func NewSentEvent(registry ledger.ComponentAddress, o *Offer) *types.Event {
	return newOfferEvent(EventTypeOfferSent, registry, o, o.CreatedAt)
}

// NewAcceptedEvent returns the payload emitted when a customer accepts an
// offer. It carries the full resolved record and the resolution epoch.
func NewAcceptedEvent(registry ledger.ComponentAddress, o *Offer, epoch uint64) *types.Event {
	return newOfferEvent(EventTypeOfferAccepted, registry, o, epoch)
}

// NewRefusedEvent returns the payload emitted when a customer refuses an
// offer.
func NewRefusedEvent(registry ledger.ComponentAddress, o *Offer, epoch uint64) *types.Event {
	return newOfferEvent(EventTypeOfferRefused, registry, o, epoch)
}

func newOfferEvent(eventType string, registry ledger.ComponentAddress, o *Offer, epoch uint64) *types.Event {
	attrs := map[string]string{
		"registry": registry.String(),
		"epoch":    events.FormatEpoch(epoch),
	}
	if o == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["offerId"] = string(o.ID)
	attrs["hash"] = o.Hash
	attrs["expiry"] = events.FormatEpoch(o.Expiry)
	attrs["state"] = string(o.State)
	attrs["createdAt"] = events.FormatEpoch(o.CreatedAt)
	attrs["acceptedAt"] = events.FormatEpoch(o.AcceptedAt)
	attrs["refusedAt"] = events.FormatEpoch(o.RefusedAt)
	attrs["offerAmount"] = events.FormatAmount(o.Amount)
	if !o.Recipient.IsZero() {
		attrs["recipient"] = o.Recipient.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
