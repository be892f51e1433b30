package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"fcgsales/core/ledger"
	"fcgsales/core/types"
	"fcgsales/storage"
)

// ErrReceiptNotFound is returned when no receipt exists for a sequence.
var ErrReceiptNotFound = errors.New("state: receipt not found")

// ErrSequenceRegression is returned when a receipt does not extend the head.
var ErrSequenceRegression = errors.New("state: receipt does not extend the log head")

var (
	receiptPrefix = []byte("receipt/")
	headKey       = ethcrypto.Keccak256([]byte("receipt-head"))
)

func receiptKey(seq uint64) []byte {
	buf := make([]byte, len(receiptPrefix)+8)
	copy(buf, receiptPrefix)
	binary.BigEndian.PutUint64(buf[len(receiptPrefix):], seq)
	return buf
}

type storedAttribute struct {
	Key   string
	Value string
}

type storedEvent struct {
	Type       string
	Attributes []storedAttribute
}

type storedReceipt struct {
	Sequence uint64
	Epoch    uint64
	Status   string
	Error    string
	Signers  [][]byte
	Events   []storedEvent
}

type storedHead struct {
	Sequence uint64
	Epoch    uint64
}

// LoggedEvent is a committed event together with the transaction it came from.
type LoggedEvent struct {
	Sequence uint64       `json:"sequence"`
	Epoch    uint64       `json:"epoch"`
	Event    *types.Event `json:"event"`
}

// ReceiptLog persists transaction receipts in sequence order.
type ReceiptLog struct {
	mu sync.Mutex
	db storage.Database
}

// NewReceiptLog wraps db.
func NewReceiptLog(db storage.Database) *ReceiptLog {
	return &ReceiptLog{db: db}
}

// Append stores the receipt and advances the head in one batch. The sequence
// must be above the current head.
func (l *ReceiptLog) Append(r *ledger.Receipt) error {
	if r == nil {
		return fmt.Errorf("state: nil receipt")
	}
	rec := storedReceipt{
		Sequence: r.Sequence,
		Epoch:    r.Epoch,
		Status:   string(r.Status),
		Error:    r.Error,
	}
	for _, s := range r.Signers {
		rec.Signers = append(rec.Signers, append([]byte(nil), s[:]...))
	}
	for _, evt := range r.Events {
		if evt == nil {
			continue
		}
		se := storedEvent{Type: evt.Type}
		for _, k := range evt.Keys() {
			se.Attributes = append(se.Attributes, storedAttribute{Key: k, Value: evt.Attributes[k]})
		}
		rec.Events = append(rec.Events, se)
	}
	encoded, err := rlp.EncodeToBytes(rec)
	if err != nil {
		return fmt.Errorf("state: encode receipt %d: %w", r.Sequence, err)
	}
	head, err := rlp.EncodeToBytes(storedHead{Sequence: r.Sequence, Epoch: r.Epoch})
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	current, _, err := l.Head()
	if err != nil {
		return err
	}
	if r.Sequence <= current {
		return fmt.Errorf("%w: %d after %d", ErrSequenceRegression, r.Sequence, current)
	}
	batch := l.db.NewBatch()
	batch.Put(receiptKey(r.Sequence), encoded)
	batch.Put(headKey, head)
	return batch.Write()
}

// Head returns the sequence and epoch of the latest receipt, zero when the log
// is empty.
func (l *ReceiptLog) Head() (uint64, uint64, error) {
	raw, err := l.db.Get(headKey)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	var head storedHead
	if err := rlp.DecodeBytes(raw, &head); err != nil {
		return 0, 0, fmt.Errorf("state: decode head: %w", err)
	}
	return head.Sequence, head.Epoch, nil
}

// Receipt loads the receipt with the sequence number.
func (l *ReceiptLog) Receipt(seq uint64) (*ledger.Receipt, error) {
	raw, err := l.db.Get(receiptKey(seq))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrReceiptNotFound, seq)
	}
	if err != nil {
		return nil, err
	}
	return decodeReceipt(raw)
}

// Events returns up to limit committed events of the given type (all types
// when eventType is empty) from receipts at or after fromSeq.
func (l *ReceiptLog) Events(fromSeq uint64, eventType string, limit int) ([]LoggedEvent, error) {
	var (
		out     []LoggedEvent
		iterErr error
	)
	err := l.db.Iterate(receiptPrefix, func(key, value []byte) bool {
		if binary.BigEndian.Uint64(key[len(receiptPrefix):]) < fromSeq {
			return true
		}
		r, err := decodeReceipt(value)
		if err != nil {
			iterErr = err
			return false
		}
		for _, evt := range r.Events {
			if eventType != "" && evt.Type != eventType {
				continue
			}
			out = append(out, LoggedEvent{Sequence: r.Sequence, Epoch: r.Epoch, Event: evt})
			if limit > 0 && len(out) >= limit {
				return false
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}
	return out, nil
}

func decodeReceipt(raw []byte) (*ledger.Receipt, error) {
	var rec storedReceipt
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, fmt.Errorf("state: decode receipt: %w", err)
	}
	r := &ledger.Receipt{
		Sequence: rec.Sequence,
		Epoch:    rec.Epoch,
		Status:   ledger.ReceiptStatus(rec.Status),
		Error:    rec.Error,
		Events:   make([]*types.Event, 0, len(rec.Events)),
	}
	for _, s := range rec.Signers {
		var addr ledger.AccountAddress
		copy(addr[:], s)
		r.Signers = append(r.Signers, addr)
	}
	for _, se := range rec.Events {
		evt := &types.Event{Type: se.Type, Attributes: make(map[string]string, len(se.Attributes))}
		for _, a := range se.Attributes {
			evt.Attributes[a.Key] = a.Value
		}
		r.Events = append(r.Events, evt)
	}
	return r, nil
}
