package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"fcgsales/core/events"
	"fcgsales/core/types"
)

// Ledger is the in-memory asset substrate. Transactions are serialized: at most
// one Execute or View body runs at a time, and each either commits every
// effect or none.
type Ledger struct {
	sem        chan struct{}
	epoch      atomic.Uint64
	nonce      uint64
	seq        uint64
	resources  map[ResourceAddress]*ResourceManager
	components map[ComponentAddress]*Component
	accounts   map[AccountAddress]*Account
	emitter    events.Emitter
	sink       ReceiptSink
	logger     *slog.Logger
}

// ReceiptSink persists a receipt before its transaction is final. It runs
// while the ledger is held, so receipts reach the sink in sequence order.
type ReceiptSink func(*Receipt) error

// New returns an empty ledger at epoch 0.
func New() *Ledger {
	return &Ledger{
		sem:        make(chan struct{}, 1),
		resources:  make(map[ResourceAddress]*ResourceManager),
		components: make(map[ComponentAddress]*Component),
		accounts:   make(map[AccountAddress]*Account),
		emitter:    events.NoopEmitter{},
		logger:     slog.Default(),
	}
}

// SetEmitter configures the sink for committed events. Passing nil discards
// events.
func (l *Ledger) SetEmitter(e events.Emitter) {
	l.sem <- struct{}{}
	defer l.release()
	if e == nil {
		e = events.NoopEmitter{}
	}
	l.emitter = e
}

// SetReceiptSink installs the sink every receipt passes through. A sink error
// undoes the transaction and its sequence number as if it never ran.
func (l *Ledger) SetReceiptSink(sink ReceiptSink) {
	l.sem <- struct{}{}
	defer l.release()
	l.sink = sink
}

// SetLogger overrides the logger used for aborted transactions.
func (l *Ledger) SetLogger(logger *slog.Logger) {
	l.sem <- struct{}{}
	defer l.release()
	if logger == nil {
		logger = slog.Default()
	}
	l.logger = logger
}

// CurrentEpoch returns the current epoch.
func (l *Ledger) CurrentEpoch() uint64 { return l.epoch.Load() }

// AdvanceEpoch moves the epoch forward by n and returns the new value.
func (l *Ledger) AdvanceEpoch(n uint64) uint64 { return l.epoch.Add(n) }

// SetEpoch jumps to epoch. Moving backwards fails with ErrEpochRegression.
func (l *Ledger) SetEpoch(epoch uint64) error {
	for {
		cur := l.epoch.Load()
		if epoch < cur {
			return fmt.Errorf("%w: %d < %d", ErrEpochRegression, epoch, cur)
		}
		if l.epoch.CompareAndSwap(cur, epoch) {
			return nil
		}
	}
}

// Resume continues receipt numbering and the epoch after a restart. Neither
// value moves backwards.
func (l *Ledger) Resume(sequence, epoch uint64) error {
	l.sem <- struct{}{}
	defer l.release()
	if sequence < l.seq {
		return fmt.Errorf("ledger: sequence %d behind %d", sequence, l.seq)
	}
	if err := l.SetEpoch(epoch); err != nil {
		return err
	}
	l.seq = sequence
	return nil
}

// Sequence returns the number of transactions executed so far.
func (l *Ledger) Sequence() uint64 {
	l.sem <- struct{}{}
	defer l.release()
	return l.seq
}

// Execute runs fn as one all-or-nothing transaction signed by signers. The
// receipt is returned for committed and failed transactions alike; the error
// is the abort reason. A context cancelled while waiting for the ledger, or a
// receipt the sink refused, returns no receipt and leaves no trace.
func (l *Ledger) Execute(ctx context.Context, signers []AccountAddress, fn func(*Tx) error) (*Receipt, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	defer l.release()

	tx := l.begin(ctx, signers)
	err := run(tx, fn)
	if err == nil {
		err = tx.checkBuckets()
	}
	receipt := &Receipt{Sequence: l.seq + 1, Epoch: tx.epoch, Signers: tx.Signers()}
	if err != nil {
		tx.revert()
		tx.close()
		receipt.Status = StatusFailed
		receipt.Error = err.Error()
		if sinkErr := l.persist(receipt); sinkErr != nil {
			return nil, errors.Join(err, sinkErr)
		}
		l.seq = receipt.Sequence
		l.logger.Warn("transaction aborted",
			slog.Uint64("sequence", receipt.Sequence),
			slog.Uint64("epoch", receipt.Epoch),
			slog.String("error", err.Error()))
		return receipt, err
	}
	queued := tx.events
	receipt.Status = StatusCommitted
	receipt.Events = make([]*types.Event, 0, len(queued))
	for _, evt := range queued {
		receipt.Events = append(receipt.Events, events.Flatten(evt))
	}
	if sinkErr := l.persist(receipt); sinkErr != nil {
		tx.revert()
		tx.close()
		l.logger.Error("transaction discarded",
			slog.Uint64("sequence", receipt.Sequence),
			slog.String("error", sinkErr.Error()))
		return nil, sinkErr
	}
	tx.close()
	l.seq = receipt.Sequence
	for _, evt := range queued {
		l.emitter.Emit(evt)
	}
	return receipt, nil
}

func (l *Ledger) persist(r *Receipt) error {
	if l.sink == nil {
		return nil
	}
	if err := l.sink(r); err != nil {
		return fmt.Errorf("%w: %v", ErrReceiptNotPersisted, err)
	}
	return nil
}

// View runs fn against current state and discards every effect. It is the
// read path for callers outside a transaction.
func (l *Ledger) View(ctx context.Context, fn func(*Tx) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()
	tx := l.begin(ctx, nil)
	err := run(tx, fn)
	tx.revert()
	tx.close()
	return err
}

func (l *Ledger) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Ledger) release() { <-l.sem }

func (l *Ledger) begin(ctx context.Context, signers []AccountAddress) *Tx {
	return &Tx{
		ledger:  l,
		ctx:     ctx,
		epoch:   l.epoch.Load(),
		signers: append([]AccountAddress(nil), signers...),
		zone:    &AuthZone{},
	}
}

func (l *Ledger) allocate(kind string) [20]byte {
	l.nonce++
	return deriveAddress(kind, l.nonce)
}

func run(tx *Tx, fn func(*Tx) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	if fn == nil {
		return nil
	}
	return fn(tx)
}
