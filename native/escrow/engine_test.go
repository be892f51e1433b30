package escrow

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"fcgsales/core/events"
	"fcgsales/core/ledger"
	"fcgsales/native/common"
)

var (
	seller = ledger.AccountAddress{19: 1}
	buyer  = ledger.AccountAddress{19: 2}
)

type fixture struct {
	t        *testing.T
	ledger   *ledger.Ledger
	recorder *events.Recorder
	coinX    ledger.ResourceAddress
	nftY     ledger.ResourceAddress
	engine   *Engine
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// newFixture gives the buyer 800 X and the seller the non-fungible Y #1#,
// then opens an escrow asking 500 X for Y.
func newFixture(t *testing.T, requested string) *fixture {
	t.Helper()
	f := &fixture{t: t, ledger: ledger.New(), recorder: &events.Recorder{}}
	f.ledger.SetEmitter(f.recorder)
	f.mustExec(nil, func(tx *ledger.Tx) error {
		x, coins, err := tx.CreateFungibleWithSupply(ledger.ResourceConfig{Divisibility: 18}, amount("800"))
		if err != nil {
			return err
		}
		y, nft, err := tx.CreateNonFungibleWithSupply(ledger.ResourceConfig{IDKind: ledger.IDKindInteger},
			map[ledger.LocalID]ledger.Fields{ledger.IntegerID(1): {}})
		if err != nil {
			return err
		}
		f.coinX, f.nftY = x.Address(), y.Address()
		if err := tx.Deposit(buyer, coins); err != nil {
			return err
		}
		return tx.Deposit(seller, nft)
	})
	f.mustExec([]ledger.AccountAddress{seller}, func(tx *ledger.Tx) error {
		deposit, err := tx.WithdrawNonFungibles(seller, f.nftY, []ledger.LocalID{ledger.IntegerID(1)})
		if err != nil {
			return err
		}
		engine, token, err := Instantiate(tx, f.coinX, amount(requested), deposit)
		if err != nil {
			return err
		}
		f.engine = engine
		return tx.Deposit(seller, token)
	})
	return f
}

func (f *fixture) exec(signers []ledger.AccountAddress, fn func(*ledger.Tx) error) error {
	_, err := f.ledger.Execute(context.Background(), signers, fn)
	return err
}

func (f *fixture) mustExec(signers []ledger.AccountAddress, fn func(*ledger.Tx) error) {
	f.t.Helper()
	if err := f.exec(signers, fn); err != nil {
		f.t.Fatalf("execute: %v", err)
	}
}

func (f *fixture) pay(x string) error {
	return f.exec([]ledger.AccountAddress{buyer}, func(tx *ledger.Tx) error {
		payment, err := tx.Withdraw(buyer, f.coinX, amount(x))
		if err != nil {
			return err
		}
		offered, change, err := f.engine.Exchange(tx, payment)
		if err != nil {
			return err
		}
		return tx.Deposit(buyer, offered, change)
	})
}

func (f *fixture) withdraw() error {
	return f.exec([]ledger.AccountAddress{seller}, func(tx *ledger.Tx) error {
		token, err := tx.WithdrawNonFungibles(seller, f.engine.TokenResource(), []ledger.LocalID{TokenID})
		if err != nil {
			return err
		}
		proceeds, returned, err := f.engine.WithdrawResource(tx, token)
		if err != nil {
			return err
		}
		return tx.Deposit(seller, proceeds, returned)
	})
}

func (f *fixture) cancel() error {
	return f.exec([]ledger.AccountAddress{seller}, func(tx *ledger.Tx) error {
		token, err := tx.WithdrawNonFungibles(seller, f.engine.TokenResource(), []ledger.LocalID{TokenID})
		if err != nil {
			return err
		}
		refund, err := f.engine.CancelEscrow(tx, token)
		if err != nil {
			return err
		}
		return tx.Deposit(seller, refund)
	})
}

func (f *fixture) holdings(who ledger.AccountAddress) (x decimal.Decimal, ys []ledger.LocalID, tokens []ledger.LocalID) {
	f.t.Helper()
	if err := f.ledger.View(context.Background(), func(tx *ledger.Tx) error {
		acct := tx.Account(who)
		x = acct.Balance(f.coinX)
		ys = acct.NonFungibleIDs(f.nftY)
		tokens = acct.NonFungibleIDs(f.engine.TokenResource())
		return nil
	}); err != nil {
		f.t.Fatalf("view: %v", err)
	}
	return x, ys, tokens
}

func (f *fixture) snapshot() Snapshot {
	var s Snapshot
	_ = f.ledger.View(context.Background(), func(*ledger.Tx) error {
		s = f.engine.Snapshot()
		return nil
	})
	return s
}

func TestExchangeThenWithdraw(t *testing.T) {
	f := newFixture(t, "500")
	if s := f.snapshot(); s.Status != StatusOpen || !s.DepositAmount.Equal(amount("1")) || !s.ProceedsAmount.IsZero() {
		t.Fatalf("unexpected open snapshot %+v", s)
	}

	if err := f.pay("500"); err != nil {
		t.Fatalf("exchange: %v", err)
	}
	x, ys, _ := f.holdings(buyer)
	if !x.Equal(amount("300")) || len(ys) != 1 || ys[0] != ledger.IntegerID(1) {
		t.Fatalf("buyer holds %s X and %v", x, ys)
	}
	s := f.snapshot()
	if s.Status != StatusSettled || !s.DepositAmount.IsZero() || !s.ProceedsAmount.Equal(amount("500")) {
		t.Fatalf("unexpected settled snapshot %+v", s)
	}

	if err := f.withdraw(); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	x, _, tokens := f.holdings(seller)
	if !x.Equal(amount("500")) || len(tokens) != 0 {
		t.Fatalf("seller holds %s X and tokens %v", x, tokens)
	}
	if s := f.snapshot(); s.Status != StatusWithdrawn || !s.ProceedsAmount.IsZero() {
		t.Fatalf("unexpected withdrawn snapshot %+v", s)
	}

	if err := f.withdraw(); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("second withdraw: expected ErrInsufficientBalance, got %v", err)
	}
	for _, typ := range []string{EventTypeEscrowCreated, EventTypeEscrowSettled, EventTypeEscrowWithdrawn} {
		if len(f.recorder.OfType(typ)) != 1 {
			t.Fatalf("expected one %s event", typ)
		}
	}
}

func TestExchangeReturnsChange(t *testing.T) {
	f := newFixture(t, "500")
	if err := f.pay("800"); err != nil {
		t.Fatalf("exchange: %v", err)
	}
	x, _, _ := f.holdings(buyer)
	if !x.Equal(amount("300")) {
		t.Fatalf("buyer balance after change = %s", x)
	}
	if s := f.snapshot(); !s.ProceedsAmount.Equal(amount("500")) {
		t.Fatalf("proceeds = %s", s.ProceedsAmount)
	}
}

func TestExchangeGuards(t *testing.T) {
	f := newFixture(t, "500")
	if err := f.pay("499.999999999999999999"); !errors.Is(err, ErrInsufficientAmount) {
		t.Fatalf("expected ErrInsufficientAmount, got %v", err)
	}

	err := f.exec([]ledger.AccountAddress{seller}, func(tx *ledger.Tx) error {
		token, err := tx.WithdrawNonFungibles(seller, f.engine.TokenResource(), []ledger.LocalID{TokenID})
		if err != nil {
			return err
		}
		offered, change, err := f.engine.Exchange(tx, token)
		if err != nil {
			return err
		}
		return tx.Deposit(seller, offered, change)
	})
	if !errors.Is(err, ErrWrongResource) {
		t.Fatalf("expected ErrWrongResource, got %v", err)
	}
	if s := f.snapshot(); s.Status != StatusOpen || !s.DepositAmount.Equal(amount("1")) {
		t.Fatalf("failed exchanges changed the escrow: %+v", s)
	}
}

func TestSecondExchangeRejected(t *testing.T) {
	f := newFixture(t, "500")
	if err := f.pay("500"); err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if err := f.pay("300"); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
	if s := f.snapshot(); !s.ProceedsAmount.Equal(amount("500")) {
		t.Fatalf("second exchange touched proceeds: %s", s.ProceedsAmount)
	}
	x, _, _ := f.holdings(buyer)
	if !x.Equal(amount("300")) {
		t.Fatalf("buyer balance = %s", x)
	}
}

func TestWithdrawBeforeExchangeReturnsToken(t *testing.T) {
	f := newFixture(t, "500")
	if err := f.withdraw(); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	x, _, tokens := f.holdings(seller)
	if !x.IsZero() || len(tokens) != 1 || tokens[0] != TokenID {
		t.Fatalf("seller holds %s X and tokens %v", x, tokens)
	}
	if s := f.snapshot(); s.Status != StatusOpen || !s.DepositAmount.Equal(amount("1")) {
		t.Fatalf("withdraw changed an open escrow: %+v", s)
	}
	if len(f.recorder.OfType(EventTypeEscrowWithdrawn)) != 0 {
		t.Fatalf("withdrawn event emitted for an open escrow")
	}
}

func TestCancelOpenEscrow(t *testing.T) {
	f := newFixture(t, "500")
	if err := f.cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, ys, tokens := f.holdings(seller)
	if len(ys) != 1 || len(tokens) != 0 {
		t.Fatalf("seller holds %v and tokens %v", ys, tokens)
	}
	if s := f.snapshot(); s.Status != StatusCancelled || !s.DepositAmount.IsZero() {
		t.Fatalf("unexpected cancelled snapshot %+v", s)
	}
	if err := f.pay("500"); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("exchange after cancel: expected ErrNotOpen, got %v", err)
	}
}

func TestCancelAfterSettleFails(t *testing.T) {
	f := newFixture(t, "500")
	if err := f.pay("500"); err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if err := f.cancel(); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}
	_, _, tokens := f.holdings(seller)
	if len(tokens) != 1 {
		t.Fatalf("token burned by a failed cancel: %v", tokens)
	}
	if s := f.snapshot(); s.Status != StatusSettled || !s.ProceedsAmount.Equal(amount("500")) {
		t.Fatalf("failed cancel changed the escrow: %+v", s)
	}
	if err := f.withdraw(); err != nil {
		t.Fatalf("withdraw after failed cancel: %v", err)
	}
}

func TestTokenMustBeExact(t *testing.T) {
	f := newFixture(t, "500")
	err := f.exec([]ledger.AccountAddress{buyer}, func(tx *ledger.Tx) error {
		coins, err := tx.Withdraw(buyer, f.coinX, amount("1"))
		if err != nil {
			return err
		}
		_, _, err = f.engine.WithdrawResource(tx, coins)
		return err
	})
	if !errors.Is(err, ErrInvalidEscrowToken) {
		t.Fatalf("expected ErrInvalidEscrowToken, got %v", err)
	}
}

func TestZeroRequestSettlesByStatus(t *testing.T) {
	f := newFixture(t, "0")
	if err := f.pay("0"); err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if err := f.withdraw(); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if s := f.snapshot(); s.Status != StatusWithdrawn {
		t.Fatalf("status = %s", s.Status)
	}
}

func TestInstantiateValidation(t *testing.T) {
	f := newFixture(t, "500")
	err := f.exec([]ledger.AccountAddress{buyer}, func(tx *ledger.Tx) error {
		deposit, err := tx.Withdraw(buyer, f.coinX, amount("1"))
		if err != nil {
			return err
		}
		_, _, err = Instantiate(tx, f.nftY, amount("0.5"), deposit)
		return err
	})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	err = f.exec([]ledger.AccountAddress{buyer}, func(tx *ledger.Tx) error {
		deposit, err := tx.Withdraw(buyer, f.coinX, amount("0"))
		if err != nil {
			return err
		}
		_, _, err = Instantiate(tx, f.nftY, amount("1"), deposit)
		return err
	})
	if !errors.Is(err, ErrEmptyDeposit) {
		t.Fatalf("expected ErrEmptyDeposit, got %v", err)
	}
}

func TestPausedEngine(t *testing.T) {
	f := newFixture(t, "500")
	f.engine.SetPauses(common.NewPauseSet(ModuleName))
	if err := f.pay("500"); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}

func TestEventPayload(t *testing.T) {
	f := newFixture(t, "500")
	created := f.recorder.OfType(EventTypeEscrowCreated)
	if len(created) != 1 {
		t.Fatalf("expected one created event")
	}
	attrs := events.Flatten(created[0]).Attributes
	want := map[string]string{
		"escrow":            f.engine.Address().String(),
		"status":            "OPEN",
		"requestedResource": f.coinX.String(),
		"requestedAmount":   "500",
		"offeredResource":   f.nftY.String(),
		"deposit":           "1",
		"proceeds":          "0",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Fatalf("attribute %s = %q, want %q", k, attrs[k], v)
		}
	}
}
