package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"fcgsales/core/ledger"
	"fcgsales/native/escrow"
)

// EscrowRequest opens an escrow. The deposit is OfferedAmount of a fungible
// OfferedResource, or the units in OfferedIDs of a non-fungible one.
type EscrowRequest struct {
	RequestedResource ledger.ResourceAddress `json:"requestedResource"`
	RequestedAmount   decimal.Decimal        `json:"requestedAmount"`
	OfferedResource   ledger.ResourceAddress `json:"offeredResource"`
	OfferedAmount     decimal.Decimal        `json:"offeredAmount"`
	OfferedIDs        []ledger.LocalID       `json:"offeredIds,omitempty"`
}

// WithdrawResult reports the outcome of redeeming an escrow token.
type WithdrawResult struct {
	Settled  bool            `json:"settled"`
	Proceeds decimal.Decimal `json:"proceeds"`
	Escrow   escrow.Snapshot `json:"escrow"`
}

func (n *Node) escrow(addr ledger.ComponentAddress) (*escrow.Engine, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	e, ok := n.escrows[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEscrow, addr)
	}
	return e, nil
}

// InstantiateEscrow moves the deposit out of the signer's account into a new
// escrow and hands the escrow token to the signer.
func (n *Node) InstantiateEscrow(ctx context.Context, signer ledger.AccountAddress, req EscrowRequest) (*escrow.Snapshot, *ledger.Receipt, error) {
	var (
		engine *escrow.Engine
		snap   escrow.Snapshot
	)
	receipt, err := n.execute(ctx, signer, func(tx *ledger.Tx) error {
		var (
			deposit *ledger.Bucket
			err     error
		)
		if len(req.OfferedIDs) > 0 {
			deposit, err = tx.WithdrawNonFungibles(signer, req.OfferedResource, req.OfferedIDs)
		} else {
			deposit, err = tx.Withdraw(signer, req.OfferedResource, req.OfferedAmount)
		}
		if err != nil {
			return err
		}
		e, token, err := escrow.Instantiate(tx, req.RequestedResource, req.RequestedAmount, deposit)
		if err != nil {
			return err
		}
		e.SetPauses(n.pauses)
		e.SetLogger(n.logger)
		if err := tx.Deposit(signer, token); err != nil {
			return err
		}
		engine, snap = e, e.Snapshot()
		return nil
	})
	if err != nil {
		return nil, receipt, err
	}
	n.mu.Lock()
	n.escrows[engine.Address()] = engine
	n.mu.Unlock()
	return &snap, receipt, nil
}

// Exchange pays amount of the requested resource from the signer's account.
// A zero amount pays exactly the requested amount. The offered asset and any
// change land in the signer's account.
func (n *Node) Exchange(ctx context.Context, signer ledger.AccountAddress, addr ledger.ComponentAddress, amount decimal.Decimal) (*escrow.Snapshot, *ledger.Receipt, error) {
	e, err := n.escrow(addr)
	if err != nil {
		return nil, nil, err
	}
	var snap escrow.Snapshot
	receipt, err := n.execute(ctx, signer, func(tx *ledger.Tx) error {
		current := e.Snapshot()
		pay := amount
		if pay.IsZero() {
			pay = current.RequestedAmount
		}
		payment, err := tx.Withdraw(signer, current.RequestedResource, pay)
		if err != nil {
			return err
		}
		offered, change, err := e.Exchange(tx, payment)
		if err != nil {
			return err
		}
		snap = e.Snapshot()
		return tx.Deposit(signer, offered, change)
	})
	if err != nil {
		return nil, receipt, err
	}
	return &snap, receipt, nil
}

// WithdrawResource redeems the escrow token held by the signer. An unsettled
// escrow leaves the token in place and pays nothing.
func (n *Node) WithdrawResource(ctx context.Context, signer ledger.AccountAddress, addr ledger.ComponentAddress) (*WithdrawResult, *ledger.Receipt, error) {
	e, err := n.escrow(addr)
	if err != nil {
		return nil, nil, err
	}
	result := &WithdrawResult{Proceeds: decimal.Zero}
	receipt, err := n.execute(ctx, signer, func(tx *ledger.Tx) error {
		token, err := tx.WithdrawNonFungibles(signer, e.TokenResource(), []ledger.LocalID{escrow.TokenID})
		if err != nil {
			return err
		}
		proceeds, returned, err := e.WithdrawResource(tx, token)
		if err != nil {
			return err
		}
		if proceeds != nil {
			result.Settled = true
			result.Proceeds = proceeds.Amount()
		}
		result.Escrow = e.Snapshot()
		return tx.Deposit(signer, proceeds, returned)
	})
	if err != nil {
		return nil, receipt, err
	}
	return result, receipt, nil
}

// CancelEscrow burns the signer's escrow token and refunds the deposit. A
// settled escrow fails and the whole transaction aborts.
func (n *Node) CancelEscrow(ctx context.Context, signer ledger.AccountAddress, addr ledger.ComponentAddress) (*escrow.Snapshot, *ledger.Receipt, error) {
	e, err := n.escrow(addr)
	if err != nil {
		return nil, nil, err
	}
	var snap escrow.Snapshot
	receipt, err := n.execute(ctx, signer, func(tx *ledger.Tx) error {
		token, err := tx.WithdrawNonFungibles(signer, e.TokenResource(), []ledger.LocalID{escrow.TokenID})
		if err != nil {
			return err
		}
		refund, err := e.CancelEscrow(tx, token)
		if err != nil {
			return err
		}
		snap = e.Snapshot()
		return tx.Deposit(signer, refund)
	})
	if err != nil {
		return nil, receipt, err
	}
	return &snap, receipt, nil
}

// GetEscrow reports the current state of an escrow.
func (n *Node) GetEscrow(ctx context.Context, addr ledger.ComponentAddress) (*escrow.Snapshot, error) {
	e, err := n.escrow(addr)
	if err != nil {
		return nil, err
	}
	var snap escrow.Snapshot
	err = n.ledger.View(ctx, func(*ledger.Tx) error {
		snap = e.Snapshot()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
