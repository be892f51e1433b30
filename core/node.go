package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fcgsales/core/events"
	"fcgsales/core/genesis"
	"fcgsales/core/ledger"
	"fcgsales/core/state"
	"fcgsales/crypto"
	"fcgsales/native/common"
	"fcgsales/native/escrow"
	"fcgsales/native/offers"
	"fcgsales/observability"
	"fcgsales/observability/metrics"
	"fcgsales/storage"
)

// Options wires the collaborators of a Node.
type Options struct {
	DB      storage.Database
	Pauses  common.PauseView
	Genesis *genesis.Spec
	Emitter events.Emitter
	Logger  *slog.Logger
	// TracerProvider receives one span per transaction; nil uses the global
	// provider.
	TracerProvider trace.TracerProvider
}

const tracerName = "fcgsales/core"

// Node is the central controller. It hosts the ledger together with every
// registry and escrow instantiated on it, and persists one receipt per
// transaction. Ledger state lives in memory and is rebuilt from genesis on
// boot; the receipt log is the durable record.
type Node struct {
	ledger   *ledger.Ledger
	receipts *state.ReceiptLog
	pauses   common.PauseView
	emitter  events.Emitter
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time

	mu         sync.RWMutex
	accounts   map[ledger.AccountAddress]*crypto.PublicKey
	registries map[ledger.ComponentAddress]*offers.Registry
	escrows    map[ledger.ComponentAddress]*escrow.Engine
	genesis    map[string]ledger.ResourceAddress
}

// NewNode opens the receipt log, resumes sequence and epoch from its head and
// applies genesis when one is configured.
func NewNode(opts Options) (*Node, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("node: database must not be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	emitter := events.Fanout{observability.Events()}
	if opts.Emitter != nil {
		emitter = append(emitter, opts.Emitter)
	}

	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	l := ledger.New()
	l.SetLogger(logger)
	l.SetEmitter(emitter)

	n := &Node{
		ledger:     l,
		receipts:   state.NewReceiptLog(opts.DB),
		pauses:     opts.Pauses,
		emitter:    emitter,
		logger:     logger,
		tracer:     tp.Tracer(tracerName),
		now:        time.Now,
		accounts:   make(map[ledger.AccountAddress]*crypto.PublicKey),
		registries: make(map[ledger.ComponentAddress]*offers.Registry),
		escrows:    make(map[ledger.ComponentAddress]*escrow.Engine),
		genesis:    make(map[string]ledger.ResourceAddress),
	}

	l.SetReceiptSink(n.receipts.Append)

	seq, epoch, err := n.receipts.Head()
	if err != nil {
		return nil, fmt.Errorf("node: read receipt head: %w", err)
	}
	if err := l.Resume(seq, epoch); err != nil {
		return nil, fmt.Errorf("node: resume: %w", err)
	}
	if seq > 0 {
		logger.Warn("ledger state is not persisted; components referenced by earlier receipts are gone",
			slog.Uint64("sequence", seq),
			slog.Uint64("epoch", epoch))
	}
	if opts.Genesis != nil {
		if err := n.applyGenesis(opts.Genesis); err != nil {
			return nil, err
		}
	}
	metrics.Sales().SetEpoch(l.CurrentEpoch())
	logger.Info("node ready",
		slog.Uint64("sequence", l.Sequence()),
		slog.Uint64("epoch", l.CurrentEpoch()),
		slog.Int("genesis_resources", len(n.genesis)))
	return n, nil
}

func (n *Node) applyGenesis(spec *genesis.Spec) error {
	if spec.Epoch > n.ledger.CurrentEpoch() {
		if err := n.ledger.SetEpoch(spec.Epoch); err != nil {
			return err
		}
	}
	var result *genesis.Result
	_, err := n.run(context.Background(), nil, func(tx *ledger.Tx) error {
		var applyErr error
		result, applyErr = genesis.Apply(tx, spec)
		return applyErr
	})
	if err != nil {
		return fmt.Errorf("node: apply genesis: %w", err)
	}
	n.mu.Lock()
	for symbol, addr := range result.Resources {
		n.genesis[symbol] = addr
	}
	n.mu.Unlock()
	return nil
}

// Ledger exposes the underlying ledger.
func (n *Node) Ledger() *ledger.Ledger { return n.ledger }

// GenesisResources returns the resources created by genesis keyed by symbol.
func (n *Node) GenesisResources() map[string]ledger.ResourceAddress {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]ledger.ResourceAddress, len(n.genesis))
	for k, v := range n.genesis {
		out[k] = v
	}
	return out
}

// execute runs fn signed by signer, who must be a registered account.
func (n *Node) execute(ctx context.Context, signer ledger.AccountAddress, fn func(*ledger.Tx) error) (*ledger.Receipt, error) {
	if !n.HasAccount(signer) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, signer)
	}
	return n.run(ctx, []ledger.AccountAddress{signer}, fn)
}

func (n *Node) run(ctx context.Context, signers []ledger.AccountAddress, fn func(*ledger.Tx) error) (*ledger.Receipt, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := n.tracer.Start(ctx, "ledger.execute")
	defer span.End()
	receipt, err := n.ledger.Execute(ctx, signers, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if receipt == nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int64("ledger.sequence", int64(receipt.Sequence)),
		attribute.Int64("ledger.epoch", int64(receipt.Epoch)),
		attribute.String("ledger.status", string(receipt.Status)),
	)
	n.observe(receipt)
	return receipt, err
}

func (n *Node) observe(receipt *ledger.Receipt) {
	m := metrics.Sales()
	m.ObserveTransaction(string(receipt.Status))
	for _, evt := range receipt.Events {
		switch evt.Type {
		case offers.EventTypeOfferSent:
			m.ObserveOfferSent()
		case offers.EventTypeOfferAccepted:
			m.ObserveOfferResolved("accepted")
		case offers.EventTypeOfferRefused:
			m.ObserveOfferResolved("refused")
		case escrow.EventTypeEscrowCreated, escrow.EventTypeEscrowSettled,
			escrow.EventTypeEscrowWithdrawn, escrow.EventTypeEscrowCancelled:
			m.ObserveEscrowTransition(strings.TrimPrefix(evt.Type, "escrow."))
		}
	}
}

// Epoch returns the current ledger epoch.
func (n *Node) Epoch() uint64 { return n.ledger.CurrentEpoch() }

// AdvanceEpoch moves the clock forward by `by` epochs and returns the new
// epoch. Advancing by zero is a no-op.
func (n *Node) AdvanceEpoch(by uint64) uint64 {
	if by == 0 {
		return n.ledger.CurrentEpoch()
	}
	next := n.ledger.AdvanceEpoch(by)
	metrics.Sales().SetEpoch(next)
	n.emitter.Emit(events.EpochAdvanced{Previous: next - by, Epoch: next, AdvancedAt: n.now().Unix()})
	n.logger.Debug("epoch advanced", slog.Uint64("epoch", next))
	return next
}

// RunEpochTicker advances the epoch by one every interval until ctx is done.
func (n *Node) RunEpochTicker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.AdvanceEpoch(1)
		}
	}
}

// Sequence returns the number of the latest receipt.
func (n *Node) Sequence() uint64 { return n.ledger.Sequence() }

// Receipt loads a persisted receipt.
func (n *Node) Receipt(seq uint64) (*ledger.Receipt, error) {
	return n.receipts.Receipt(seq)
}

// Events lists committed events from the receipt log.
func (n *Node) Events(fromSeq uint64, eventType string, limit int) ([]state.LoggedEvent, error) {
	return n.receipts.Events(fromSeq, strings.TrimSpace(eventType), limit)
}
