package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Vault is a persistent container for a single resource. Vaults are owned by
// exactly one account or component; every mutation is journaled so a failed
// transaction leaves the holding untouched.
type Vault struct {
	resource *ResourceManager
	amount   decimal.Decimal
	ids      map[LocalID]struct{}
}

func newVault(rm *ResourceManager) *Vault {
	return &Vault{resource: rm, amount: decimal.Zero, ids: make(map[LocalID]struct{})}
}

// ResourceAddress returns the vault's resource.
func (v *Vault) ResourceAddress() ResourceAddress { return v.resource.address }

// Amount returns the quantity held. For non-fungibles this is the unit count.
func (v *Vault) Amount() decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	if v.resource.kind == NonFungible {
		return decimal.NewFromInt(int64(len(v.ids)))
	}
	return v.amount
}

// IsEmpty reports whether the vault holds nothing.
func (v *Vault) IsEmpty() bool { return v == nil || v.Amount().IsZero() }

// NonFungibleIDs returns the held units in canonical order.
func (v *Vault) NonFungibleIDs() []LocalID {
	if v == nil {
		return nil
	}
	return sortedIDs(v.ids)
}

// Contains reports whether the vault holds the unit.
func (v *Vault) Contains(id LocalID) bool {
	if v == nil {
		return false
	}
	_, ok := v.ids[id]
	return ok
}

// Put drains the bucket into the vault.
func (v *Vault) Put(tx *Tx, b *Bucket) error {
	if err := b.usable(); err != nil {
		return err
	}
	if b.tx != tx {
		return fmt.Errorf("%w: bucket belongs to another transaction", ErrTxClosed)
	}
	if b.resource != v.resource {
		return fmt.Errorf("%w: cannot put %s into %s vault", ErrWrongResource, b.resource.address, v.resource.address)
	}
	amount, ids := b.drain()
	prev := v.amount
	v.amount = v.amount.Add(amount)
	for _, id := range ids {
		v.ids[id] = struct{}{}
	}
	tx.record(func() {
		v.amount = prev
		for _, id := range ids {
			delete(v.ids, id)
		}
	})
	return nil
}

// Take withdraws amount into a new bucket. Non-fungible takes pick units in
// canonical order.
func (v *Vault) Take(tx *Tx, amount decimal.Decimal) (*Bucket, error) {
	if err := tx.usable(); err != nil {
		return nil, err
	}
	if err := v.resource.CheckAmount(amount); err != nil {
		return nil, err
	}
	if v.Amount().LessThan(amount) {
		return nil, fmt.Errorf("%w: vault holds %s, requested %s", ErrInsufficientBalance, v.Amount(), amount)
	}
	if v.resource.kind == NonFungible {
		return v.TakeNonFungibles(tx, sortedIDs(v.ids)[:amount.IntPart()])
	}
	prev := v.amount
	v.amount = v.amount.Sub(amount)
	tx.record(func() { v.amount = prev })
	return tx.newBucket(v.resource, amount, nil), nil
}

// TakeNonFungibles withdraws the named units into a new bucket.
func (v *Vault) TakeNonFungibles(tx *Tx, ids []LocalID) (*Bucket, error) {
	if err := tx.usable(); err != nil {
		return nil, err
	}
	if v.resource.kind != NonFungible {
		return nil, ErrWrongKind
	}
	seen := make(map[LocalID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := v.ids[id]; !ok {
			return nil, fmt.Errorf("%w: vault does not hold %s", ErrInsufficientBalance, id)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %s listed twice", ErrInvalidID, id)
		}
		seen[id] = struct{}{}
	}
	taken := append([]LocalID(nil), ids...)
	for _, id := range taken {
		delete(v.ids, id)
	}
	tx.record(func() {
		for _, id := range taken {
			v.ids[id] = struct{}{}
		}
	})
	return tx.newBucket(v.resource, decimal.Zero, taken), nil
}

// TakeAll withdraws the whole holding.
func (v *Vault) TakeAll(tx *Tx) (*Bucket, error) {
	if v.resource.kind == NonFungible {
		return v.TakeNonFungibles(tx, sortedIDs(v.ids))
	}
	return v.Take(tx, v.amount)
}

// CreateProofOfAmount proves the vault holds at least amount. The proof is
// pushed onto the transaction's auth zone.
func (v *Vault) CreateProofOfAmount(tx *Tx, amount decimal.Decimal) (*Proof, error) {
	if err := tx.usable(); err != nil {
		return nil, err
	}
	if err := v.resource.CheckAmount(amount); err != nil {
		return nil, err
	}
	if !amount.IsPositive() || v.Amount().LessThan(amount) {
		return nil, fmt.Errorf("%w: cannot prove %s of %s", ErrInsufficientBalance, amount, v.resource.address)
	}
	p := &Proof{tx: tx, source: v, amount: amount}
	tx.zone.Push(p)
	return p, nil
}

// CreateProofOfNonFungibles proves the vault holds the named units.
func (v *Vault) CreateProofOfNonFungibles(tx *Tx, ids []LocalID) (*Proof, error) {
	if err := tx.usable(); err != nil {
		return nil, err
	}
	if v.resource.kind != NonFungible {
		return nil, ErrWrongKind
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: proof needs at least one id", ErrInvalidID)
	}
	for _, id := range ids {
		if !v.Contains(id) {
			return nil, fmt.Errorf("%w: vault does not hold %s", ErrInsufficientBalance, id)
		}
	}
	p := &Proof{tx: tx, source: v, ids: append([]LocalID(nil), ids...)}
	tx.zone.Push(p)
	return p, nil
}
