package escrow

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"fcgsales/core/ledger"
	"fcgsales/native/common"
)

// ModuleName is the pause-guard key of escrow engines.
const ModuleName = "escrow"

// Blueprint names the escrow code on the ledger.
const Blueprint = "escrow"

var (
	ErrWrongResource      = errors.New("escrow: payment is not of the requested resource")
	ErrInsufficientAmount = errors.New("escrow: payment is below the requested amount")
	ErrNotOpen            = errors.New("escrow: escrow is not open")
	ErrAlreadySettled     = errors.New("escrow: already settled, cannot cancel")
	ErrInvalidEscrowToken = errors.New("escrow: bucket must hold exactly the escrow token")
	ErrInvalidAmount      = errors.New("escrow: invalid requested amount")
	ErrEmptyDeposit       = errors.New("escrow: deposit must not be empty")
	ErrClosed             = errors.New("escrow: escrow already closed")

	errNilEngine = errors.New("escrow engine: engine not configured")
)

// Engine holds an offered asset in trust until somebody pays the requested
// amount of the requested resource. The engine exclusively owns its deposit
// and proceeds vaults; whoever holds the escrow token may withdraw the
// proceeds or cancel an unsettled escrow.
type Engine struct {
	component         *ledger.Component
	token             *ledger.ResourceManager
	requestedResource ledger.ResourceAddress
	requestedAmount   decimal.Decimal
	offeredResource   ledger.ResourceAddress
	deposit           *ledger.Vault
	proceeds          *ledger.Vault
	status            Status
	pauses            common.PauseView
	logger            *slog.Logger
}

// Instantiate creates an OPEN escrow holding the whole deposit and returns
// the engine together with its escrow token.
func Instantiate(tx *ledger.Tx, requestedResource ledger.ResourceAddress, requestedAmount decimal.Decimal, deposit *ledger.Bucket) (*Engine, *ledger.Bucket, error) {
	requested, err := tx.Resource(requestedResource)
	if err != nil {
		return nil, nil, fmt.Errorf("escrow: requested resource: %w", err)
	}
	if err := requested.CheckAmount(requestedAmount); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if deposit.IsEmpty() {
		return nil, nil, ErrEmptyDeposit
	}
	offered, err := tx.Resource(deposit.ResourceAddress())
	if err != nil {
		return nil, nil, err
	}
	component, err := tx.NewComponent(Blueprint)
	if err != nil {
		return nil, nil, err
	}
	self := ledger.RequireComponent(component.Address())
	token, err := tx.CreateResource(ledger.ResourceConfig{
		Kind:   ledger.NonFungible,
		IDKind: ledger.IDKindInteger,
		Metadata: map[string]string{
			"name":        "Escrow Token",
			"description": "Redeems the proceeds of, or cancels, a single escrow",
		},
		Rules: ledger.ResourceRules{
			Mint: self,
			Burn: self,
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("escrow: create token resource: %w", err)
	}

	e := &Engine{
		component:         component,
		token:             token,
		requestedResource: requestedResource,
		requestedAmount:   requestedAmount,
		offeredResource:   offered.Address(),
		deposit:           tx.NewVault(offered),
		proceeds:          tx.NewVault(requested),
		status:            StatusOpen,
		logger:            slog.Default(),
	}
	data := ledger.Fields{}
	if err := data.Set(fieldRequestedResource, requestedResource); err != nil {
		return nil, nil, err
	}
	if err := data.SetDecimal(fieldRequestedAmount, requestedAmount); err != nil {
		return nil, nil, err
	}
	if err := data.Set(fieldOfferedResource, e.offeredResource); err != nil {
		return nil, nil, err
	}
	var tokenBucket *ledger.Bucket
	err = tx.Call(component, func() error {
		if err := e.deposit.Put(tx, deposit); err != nil {
			return err
		}
		var mintErr error
		tokenBucket, mintErr = token.MintNonFungible(tx, TokenID, data)
		return mintErr
	})
	if err != nil {
		return nil, nil, fmt.Errorf("escrow: instantiate: %w", err)
	}
	tx.Emit(escrowEvent{evt: NewCreatedEvent(e.Snapshot())})
	return e, tokenBucket, nil
}

// SetPauses wires the pause view consulted before every operation.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetLogger overrides the engine logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger.With(slog.String("escrow", e.component.Address().String()))
}

// Address returns the engine component address.
func (e *Engine) Address() ledger.ComponentAddress { return e.component.Address() }

// TokenResource returns the resource of the escrow token.
func (e *Engine) TokenResource() ledger.ResourceAddress { return e.token.Address() }

// Status returns the current lifecycle position.
func (e *Engine) Status() Status { return e.status }

// Snapshot reports the current state of the engine.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Component:         e.component.Address(),
		Status:            e.status,
		TokenResource:     e.token.Address(),
		RequestedResource: e.requestedResource,
		RequestedAmount:   e.requestedAmount,
		OfferedResource:   e.offeredResource,
		DepositAmount:     e.deposit.Amount(),
		DepositIDs:        e.deposit.NonFungibleIDs(),
		ProceedsAmount:    e.proceeds.Amount(),
	}
}

func (e *Engine) enter() error {
	if e == nil || e.component == nil {
		return errNilEngine
	}
	return common.Guard(e.pauses, ModuleName)
}

func (e *Engine) setStatus(tx *ledger.Tx, next Status) {
	prev := e.status
	e.status = next
	tx.OnRevert(func() { e.status = prev })
}

func (e *Engine) checkToken(b *ledger.Bucket) error {
	if b == nil || b.ResourceAddress() != e.token.Address() || !b.Amount().Equal(decimal.NewFromInt(1)) || !b.Contains(TokenID) {
		return ErrInvalidEscrowToken
	}
	return nil
}

// Exchange settles an OPEN escrow. Anybody may pay: exactly the requested
// amount moves from payment into the proceeds vault, the whole deposit is
// returned as offered, and the rest of payment comes back as change.
func (e *Engine) Exchange(tx *ledger.Tx, payment *ledger.Bucket) (offered *ledger.Bucket, change *ledger.Bucket, err error) {
	if err := e.enter(); err != nil {
		return nil, nil, err
	}
	if e.status != StatusOpen {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotOpen, e.status)
	}
	if payment == nil {
		return nil, nil, ErrWrongResource
	}
	if payment.ResourceAddress() != e.requestedResource {
		return nil, nil, fmt.Errorf("%w: got %s, want %s", ErrWrongResource, payment.ResourceAddress(), e.requestedResource)
	}
	if payment.Amount().LessThan(e.requestedAmount) {
		return nil, nil, fmt.Errorf("%w: got %s, want %s", ErrInsufficientAmount, payment.Amount(), e.requestedAmount)
	}
	err = tx.Call(e.component, func() error {
		paid, err := payment.Take(e.requestedAmount)
		if err != nil {
			return err
		}
		if err := e.proceeds.Put(tx, paid); err != nil {
			return err
		}
		offered, err = e.deposit.TakeAll(tx)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("escrow: exchange: %w", err)
	}
	e.setStatus(tx, StatusSettled)
	tx.Emit(escrowEvent{evt: NewSettledEvent(e.Snapshot())})
	e.logger.Info("escrow settled",
		slog.String("paid", e.requestedAmount.String()),
		slog.String("change", payment.Amount().String()),
		slog.Uint64("epoch", tx.Epoch()))
	return offered, payment, nil
}

// WithdrawResource redeems the escrow token. A settled escrow burns the token
// and releases the proceeds; an open escrow hands the token back untouched and
// releases nothing. Settlement is decided by status, so an escrow requesting
// zero still withdraws once exchanged.
func (e *Engine) WithdrawResource(tx *ledger.Tx, token *ledger.Bucket) (proceeds *ledger.Bucket, returned *ledger.Bucket, err error) {
	if err := e.enter(); err != nil {
		return nil, nil, err
	}
	if err := e.checkToken(token); err != nil {
		return nil, nil, err
	}
	switch e.status {
	case StatusOpen:
		return nil, token, nil
	case StatusSettled:
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrClosed, e.status)
	}
	err = tx.Call(e.component, func() error {
		if err := e.token.Burn(tx, token); err != nil {
			return err
		}
		proceeds, err = e.proceeds.TakeAll(tx)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("escrow: withdraw: %w", err)
	}
	e.setStatus(tx, StatusWithdrawn)
	tx.Emit(escrowEvent{evt: NewWithdrawnEvent(e.Snapshot())})
	e.logger.Info("escrow withdrawn",
		slog.String("proceeds", proceeds.Amount().String()),
		slog.Uint64("epoch", tx.Epoch()))
	return proceeds, nil, nil
}

// CancelEscrow burns the token of an OPEN escrow and returns the deposit. A
// settled escrow cannot be cancelled: the call fails and the transaction
// aborts with proceeds and token intact.
func (e *Engine) CancelEscrow(tx *ledger.Tx, token *ledger.Bucket) (*ledger.Bucket, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	if err := e.checkToken(token); err != nil {
		return nil, err
	}
	switch e.status {
	case StatusOpen:
	case StatusSettled:
		return nil, ErrAlreadySettled
	default:
		return nil, fmt.Errorf("%w: %s", ErrClosed, e.status)
	}
	var refund *ledger.Bucket
	err := tx.Call(e.component, func() error {
		if err := e.token.Burn(tx, token); err != nil {
			return err
		}
		var takeErr error
		refund, takeErr = e.deposit.TakeAll(tx)
		return takeErr
	})
	if err != nil {
		return nil, fmt.Errorf("escrow: cancel: %w", err)
	}
	e.setStatus(tx, StatusCancelled)
	tx.Emit(escrowEvent{evt: NewCancelledEvent(e.Snapshot())})
	e.logger.Info("escrow cancelled",
		slog.String("refund", refund.Amount().String()),
		slog.Uint64("epoch", tx.Epoch()))
	return refund, nil
}
