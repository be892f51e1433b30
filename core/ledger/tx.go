package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"fcgsales/core/events"
)

// Tx is the handle a transaction body uses to touch ledger state. Every
// mutation made through it is journaled and undone when the transaction fails.
// A Tx is only valid inside the Ledger.Execute or Ledger.View call that created
// it.
type Tx struct {
	ledger  *Ledger
	ctx     context.Context
	epoch   uint64
	signers []AccountAddress
	zone    *AuthZone
	journal []func()
	buckets []*Bucket
	events  []events.Event
	done    bool
}

// Context returns the context the transaction was started with.
func (tx *Tx) Context() context.Context { return tx.ctx }

// Epoch returns the epoch the transaction executes in. It is fixed for the
// lifetime of the transaction.
func (tx *Tx) Epoch() uint64 { return tx.epoch }

// Signers returns the accounts that signed the transaction.
func (tx *Tx) Signers() []AccountAddress {
	return append([]AccountAddress(nil), tx.signers...)
}

// IsSigner reports whether addr signed the transaction.
func (tx *Tx) IsSigner(addr AccountAddress) bool {
	for _, s := range tx.signers {
		if s == addr {
			return true
		}
	}
	return false
}

// AuthZone returns the proofs presented so far.
func (tx *Tx) AuthZone() *AuthZone { return tx.zone }

// Authorize fails with ErrUnauthorized unless the auth zone satisfies rule.
func (tx *Tx) Authorize(rule AccessRule) error {
	if err := tx.usable(); err != nil {
		return err
	}
	if !rule.satisfiedBy(tx.zone) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, rule)
	}
	return nil
}

// OnRevert registers an undo action run when the transaction fails. Actions
// run in reverse registration order.
func (tx *Tx) OnRevert(fn func()) {
	if fn != nil {
		tx.record(fn)
	}
}

func (tx *Tx) record(fn func()) {
	tx.journal = append(tx.journal, fn)
}

// Emit queues an event. Queued events reach the ledger's emitter only when the
// transaction commits.
func (tx *Tx) Emit(evt events.Event) {
	if evt != nil && !tx.done {
		tx.events = append(tx.events, evt)
	}
}

// Call runs fn as c: for its duration RequireComponent(c.Address()) rules pass.
func (tx *Tx) Call(c *Component, fn func() error) error {
	if err := tx.usable(); err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w: nil component", ErrNotFound)
	}
	tx.zone.actors = append(tx.zone.actors, c.address)
	defer func() { tx.zone.actors = tx.zone.actors[:len(tx.zone.actors)-1] }()
	return fn()
}

// Resource looks up a resource manager.
func (tx *Tx) Resource(addr ResourceAddress) (*ResourceManager, error) {
	rm, ok := tx.ledger.resources[addr]
	if !ok {
		return nil, fmt.Errorf("%w: resource %s", ErrNotFound, addr)
	}
	return rm, nil
}

// Component looks up an instantiated component.
func (tx *Tx) Component(addr ComponentAddress) (*Component, error) {
	c, ok := tx.ledger.components[addr]
	if !ok {
		return nil, fmt.Errorf("%w: component %s", ErrNotFound, addr)
	}
	return c, nil
}

// Account returns the account at addr, materializing it on first use.
func (tx *Tx) Account(addr AccountAddress) *Account {
	if acct, ok := tx.ledger.accounts[addr]; ok {
		return acct
	}
	acct := newAccount(addr)
	tx.ledger.accounts[addr] = acct
	tx.record(func() { delete(tx.ledger.accounts, addr) })
	return acct
}

func (tx *Tx) signerVault(from AccountAddress, resource ResourceAddress) (*Vault, error) {
	if err := tx.usable(); err != nil {
		return nil, err
	}
	if !tx.IsSigner(from) {
		return nil, fmt.Errorf("%w: %s", ErrNotSigner, from)
	}
	rm, err := tx.Resource(resource)
	if err != nil {
		return nil, err
	}
	return tx.Account(from).vault(tx, rm), nil
}

// Withdraw takes amount of resource from a signer's account.
func (tx *Tx) Withdraw(from AccountAddress, resource ResourceAddress, amount decimal.Decimal) (*Bucket, error) {
	v, err := tx.signerVault(from, resource)
	if err != nil {
		return nil, err
	}
	return v.Take(tx, amount)
}

// WithdrawNonFungibles takes the named units from a signer's account.
func (tx *Tx) WithdrawNonFungibles(from AccountAddress, resource ResourceAddress, ids []LocalID) (*Bucket, error) {
	v, err := tx.signerVault(from, resource)
	if err != nil {
		return nil, err
	}
	return v.TakeNonFungibles(tx, ids)
}

// Deposit puts the buckets into an account. Nil buckets are skipped.
func (tx *Tx) Deposit(to AccountAddress, buckets ...*Bucket) error {
	if err := tx.usable(); err != nil {
		return err
	}
	acct := tx.Account(to)
	for _, b := range buckets {
		if b == nil {
			continue
		}
		if err := acct.vault(tx, b.resource).Put(tx, b); err != nil {
			return err
		}
	}
	return nil
}

// CreateProofOfAmount proves a signer's account holds amount of resource.
func (tx *Tx) CreateProofOfAmount(from AccountAddress, resource ResourceAddress, amount decimal.Decimal) (*Proof, error) {
	v, err := tx.signerVault(from, resource)
	if err != nil {
		return nil, err
	}
	return v.CreateProofOfAmount(tx, amount)
}

// CreateProofOfNonFungibles proves a signer's account holds the named units.
func (tx *Tx) CreateProofOfNonFungibles(from AccountAddress, resource ResourceAddress, ids []LocalID) (*Proof, error) {
	v, err := tx.signerVault(from, resource)
	if err != nil {
		return nil, err
	}
	return v.CreateProofOfNonFungibles(tx, ids)
}

// NewComponent allocates a component address. Addresses come from a nonce that
// survives reverts, so an address is never handed out twice.
func (tx *Tx) NewComponent(blueprint string) (*Component, error) {
	if err := tx.usable(); err != nil {
		return nil, err
	}
	addr := ComponentAddress(tx.ledger.allocate("component"))
	c := &Component{address: addr, blueprint: blueprint}
	tx.ledger.components[addr] = c
	tx.record(func() { delete(tx.ledger.components, addr) })
	return c, nil
}

// NewVault creates an empty vault for a component to own.
func (tx *Tx) NewVault(rm *ResourceManager) *Vault {
	return newVault(rm)
}

// CreateResource registers a resource with no initial supply.
func (tx *Tx) CreateResource(cfg ResourceConfig) (*ResourceManager, error) {
	if err := tx.usable(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	addr := ResourceAddress(tx.ledger.allocate("resource"))
	rm := newResourceManager(addr, cfg)
	tx.ledger.resources[addr] = rm
	tx.record(func() { delete(tx.ledger.resources, addr) })
	return rm, nil
}

// CreateFungibleWithSupply registers a fungible resource and mints its initial
// supply regardless of the mint rule.
func (tx *Tx) CreateFungibleWithSupply(cfg ResourceConfig, supply decimal.Decimal) (*ResourceManager, *Bucket, error) {
	cfg.Kind = Fungible
	rm, err := tx.CreateResource(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := rm.CheckAmount(supply); err != nil {
		return nil, nil, err
	}
	return rm, rm.mintFungible(tx, supply), nil
}

// CreateNonFungibleWithSupply registers a non-fungible resource and mints the
// given units regardless of the mint rule.
func (tx *Tx) CreateNonFungibleWithSupply(cfg ResourceConfig, entries map[LocalID]Fields) (*ResourceManager, *Bucket, error) {
	cfg.Kind = NonFungible
	rm, err := tx.CreateResource(cfg)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]LocalID, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sortLocalIDs(ids)
	out := tx.newBucket(rm, decimal.Zero, nil)
	for _, id := range ids {
		if err := rm.checkMintable(id); err != nil {
			return nil, nil, err
		}
		if err := out.Put(rm.mintNonFungible(tx, id, entries[id])); err != nil {
			return nil, nil, err
		}
	}
	return rm, out, nil
}

func (tx *Tx) newBucket(rm *ResourceManager, amount decimal.Decimal, ids []LocalID) *Bucket {
	b := &Bucket{tx: tx, resource: rm, amount: amount, ids: make(map[LocalID]struct{}, len(ids))}
	for _, id := range ids {
		b.ids[id] = struct{}{}
	}
	tx.buckets = append(tx.buckets, b)
	return b
}

func (tx *Tx) usable() error {
	if tx == nil || tx.done {
		return ErrTxClosed
	}
	if err := tx.ctx.Err(); err != nil {
		return err
	}
	return nil
}

func (tx *Tx) checkBuckets() error {
	for _, b := range tx.buckets {
		if !b.IsEmpty() {
			return fmt.Errorf("%w: %s of %s", ErrDanglingBucket, b.Amount(), b.resource.address)
		}
	}
	return nil
}

func (tx *Tx) revert() {
	for i := len(tx.journal) - 1; i >= 0; i-- {
		tx.journal[i]()
	}
	tx.journal = nil
	tx.events = nil
}

func (tx *Tx) close() {
	tx.done = true
	tx.zone.Clear()
}
