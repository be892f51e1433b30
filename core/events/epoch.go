package events

import (
	"strconv"

	"fcgsales/core/types"
)

const (
	EventEpochAdvanced = "epoch.advanced"
)

// EpochAdvanced signals that the ledger clock moved forward.
type EpochAdvanced struct {
	Previous   uint64
	Epoch      uint64
	AdvancedAt int64
}

// EventType implements the Event interface.
func (EpochAdvanced) EventType() string { return EventEpochAdvanced }

// Event converts the struct into a types.Event payload.
func (e EpochAdvanced) Event() *types.Event {
	attrs := map[string]string{
		"previous":    FormatEpoch(e.Previous),
		"epoch":       FormatEpoch(e.Epoch),
		"advanced_at": strconv.FormatInt(e.AdvancedAt, 10),
	}
	return &types.Event{Type: EventEpochAdvanced, Attributes: attrs}
}
