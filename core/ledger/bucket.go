package ledger

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

// Bucket is a transient container that moves a quantity of one resource
// within a transaction. Every bucket must be emptied (deposited, put into a
// vault or burned) before the transaction commits.
type Bucket struct {
	tx       *Tx
	resource *ResourceManager
	amount   decimal.Decimal
	ids      map[LocalID]struct{}
}

// ResourceAddress returns the bucket's resource.
func (b *Bucket) ResourceAddress() ResourceAddress {
	if b == nil || b.resource == nil {
		return ResourceAddress{}
	}
	return b.resource.address
}

// Amount returns the quantity held. For non-fungibles this is the unit count.
func (b *Bucket) Amount() decimal.Decimal {
	if b == nil {
		return decimal.Zero
	}
	if b.resource.kind == NonFungible {
		return decimal.NewFromInt(int64(len(b.ids)))
	}
	return b.amount
}

// IsEmpty reports whether the bucket holds nothing.
func (b *Bucket) IsEmpty() bool {
	return b == nil || b.Amount().IsZero()
}

// NonFungibleIDs returns the held units in canonical order.
func (b *Bucket) NonFungibleIDs() []LocalID {
	if b == nil {
		return nil
	}
	return sortedIDs(b.ids)
}

// NonFungibleID returns the single held unit.
func (b *Bucket) NonFungibleID() (LocalID, error) {
	if b == nil || b.resource.kind != NonFungible || len(b.ids) != 1 {
		return "", fmt.Errorf("%w: bucket must hold exactly one non-fungible", ErrInvalidID)
	}
	for id := range b.ids {
		return id, nil
	}
	return "", ErrInvalidID
}

// Contains reports whether the bucket holds the unit.
func (b *Bucket) Contains(id LocalID) bool {
	if b == nil {
		return false
	}
	_, ok := b.ids[id]
	return ok
}

// Take splits amount off into a new bucket. Non-fungible takes pick units in
// canonical order.
func (b *Bucket) Take(amount decimal.Decimal) (*Bucket, error) {
	if err := b.usable(); err != nil {
		return nil, err
	}
	if err := b.resource.CheckAmount(amount); err != nil {
		return nil, err
	}
	if b.Amount().LessThan(amount) {
		return nil, fmt.Errorf("%w: bucket holds %s, requested %s", ErrInsufficientBalance, b.Amount(), amount)
	}
	if b.resource.kind == NonFungible {
		ids := sortedIDs(b.ids)[:amount.IntPart()]
		return b.TakeNonFungibles(ids)
	}
	b.amount = b.amount.Sub(amount)
	return b.tx.newBucket(b.resource, amount, nil), nil
}

// TakeNonFungibles splits the named units off into a new bucket.
func (b *Bucket) TakeNonFungibles(ids []LocalID) (*Bucket, error) {
	if err := b.usable(); err != nil {
		return nil, err
	}
	if b.resource.kind != NonFungible {
		return nil, ErrWrongKind
	}
	for _, id := range ids {
		if _, ok := b.ids[id]; !ok {
			return nil, fmt.Errorf("%w: bucket does not hold %s", ErrInsufficientBalance, id)
		}
	}
	for _, id := range ids {
		delete(b.ids, id)
	}
	return b.tx.newBucket(b.resource, decimal.Zero, ids), nil
}

// TakeAll moves the whole content into a new bucket.
func (b *Bucket) TakeAll() (*Bucket, error) {
	if err := b.usable(); err != nil {
		return nil, err
	}
	amount, ids := b.drain()
	return b.tx.newBucket(b.resource, amount, ids), nil
}

// Put drains other into b.
func (b *Bucket) Put(other *Bucket) error {
	if err := b.usable(); err != nil {
		return err
	}
	if err := other.usable(); err != nil {
		return err
	}
	if other.resource != b.resource {
		return fmt.Errorf("%w: cannot put %s into %s bucket", ErrWrongResource, other.resource.address, b.resource.address)
	}
	amount, ids := other.drain()
	b.amount = b.amount.Add(amount)
	for _, id := range ids {
		b.ids[id] = struct{}{}
	}
	return nil
}

func (b *Bucket) usable() error {
	if b == nil || b.resource == nil {
		return fmt.Errorf("%w: nil bucket", ErrNotFound)
	}
	return b.tx.usable()
}

func (b *Bucket) drain() (decimal.Decimal, []LocalID) {
	amount := b.amount
	ids := sortedIDs(b.ids)
	b.amount = decimal.Zero
	b.ids = make(map[LocalID]struct{})
	return amount, ids
}

func sortedIDs(set map[LocalID]struct{}) []LocalID {
	out := make([]LocalID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sortLocalIDs(out)
	return out
}

// sortLocalIDs orders integer ids numerically and everything else lexically.
func sortLocalIDs(ids []LocalID) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if a.Kind() == IDKindInteger && b.Kind() == IDKindInteger {
			an, _ := strconv.ParseUint(string(a[1:len(a)-1]), 10, 64)
			bn, _ := strconv.ParseUint(string(b[1:len(b)-1]), 10, 64)
			return an < bn
		}
		return a < b
	})
}
