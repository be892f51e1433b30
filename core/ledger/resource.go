package ledger

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/shopspring/decimal"
)

// ResourceKind distinguishes fungible from non-fungible resources.
type ResourceKind uint8

const (
	Fungible ResourceKind = iota + 1
	NonFungible
)

func (k ResourceKind) String() string {
	switch k {
	case Fungible:
		return "fungible"
	case NonFungible:
		return "non_fungible"
	default:
		return "unknown"
	}
}

// MaxDivisibility is the largest number of decimal places a fungible resource
// may use.
const MaxDivisibility = 18

// ResourceRules gates the privileged resource operations.
type ResourceRules struct {
	Mint       AccessRule
	Burn       AccessRule
	Recall     AccessRule
	UpdateData AccessRule
}

// ResourceConfig describes a resource at creation time.
type ResourceConfig struct {
	Kind          ResourceKind
	Divisibility  uint8
	IDKind        IDKind
	Metadata      map[string]string
	MutableFields []string
	Rules         ResourceRules
}

func (c ResourceConfig) validate() error {
	switch c.Kind {
	case Fungible:
		if c.Divisibility > MaxDivisibility {
			return fmt.Errorf("ledger: divisibility %d exceeds %d", c.Divisibility, MaxDivisibility)
		}
		if len(c.MutableFields) > 0 {
			return fmt.Errorf("%w: fungible resources carry no data", ErrWrongKind)
		}
	case NonFungible:
		switch c.IDKind {
		case IDKindInteger, IDKindRUID, IDKindString:
		default:
			return fmt.Errorf("ledger: unsupported id kind %d", c.IDKind)
		}
	default:
		return fmt.Errorf("ledger: unsupported resource kind %d", c.Kind)
	}
	return nil
}

// Fields holds the data of one non-fungible unit as rlp-encoded values keyed
// by field name.
type Fields map[string][]byte

// Set encodes v into the named field.
func (f Fields) Set(name string, v interface{}) error {
	encoded, err := rlp.EncodeToBytes(v)
	if err != nil {
		return fmt.Errorf("encode field %s: %w", name, err)
	}
	f[name] = encoded
	return nil
}

// Get decodes the named field into out.
func (f Fields) Get(name string, out interface{}) error {
	raw, ok := f[name]
	if !ok {
		return fmt.Errorf("%w: field %s", ErrNotFound, name)
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return fmt.Errorf("decode field %s: %w", name, err)
	}
	return nil
}

// SetDecimal stores a decimal in its exact string form.
func (f Fields) SetDecimal(name string, d decimal.Decimal) error {
	return f.Set(name, d.String())
}

// Decimal reads a decimal stored with SetDecimal.
func (f Fields) Decimal(name string) (decimal.Decimal, error) {
	var raw string
	if err := f.Get(name, &raw); err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode field %s: %w", name, err)
	}
	return d, nil
}

func (f Fields) clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

// ResourceManager owns the supply, the non-fungible data and the privileged
// operations of a single resource. Its methods are only safe inside
// Ledger.Execute or Ledger.View.
type ResourceManager struct {
	address      ResourceAddress
	kind         ResourceKind
	divisibility uint8
	idKind       IDKind
	metadata     map[string]string
	mutable      map[string]struct{}
	rules        ResourceRules
	supply       decimal.Decimal
	entries      map[LocalID]Fields
	burned       map[LocalID]struct{}
}

func newResourceManager(addr ResourceAddress, cfg ResourceConfig) *ResourceManager {
	rm := &ResourceManager{
		address:      addr,
		kind:         cfg.Kind,
		divisibility: cfg.Divisibility,
		idKind:       cfg.IDKind,
		metadata:     make(map[string]string, len(cfg.Metadata)),
		mutable:      make(map[string]struct{}, len(cfg.MutableFields)),
		rules:        cfg.Rules,
		supply:       decimal.Zero,
		entries:      make(map[LocalID]Fields),
		burned:       make(map[LocalID]struct{}),
	}
	if cfg.Kind == NonFungible {
		rm.divisibility = 0
	}
	for k, v := range cfg.Metadata {
		rm.metadata[k] = v
	}
	for _, name := range cfg.MutableFields {
		rm.mutable[strings.TrimSpace(name)] = struct{}{}
	}
	return rm
}

func (rm *ResourceManager) Address() ResourceAddress { return rm.address }

func (rm *ResourceManager) Kind() ResourceKind { return rm.kind }

func (rm *ResourceManager) Divisibility() uint8 { return rm.divisibility }

func (rm *ResourceManager) IDKind() IDKind { return rm.idKind }

func (rm *ResourceManager) TotalSupply() decimal.Decimal { return rm.supply }

// Metadata returns the metadata value stored under key.
func (rm *ResourceManager) Metadata(key string) string { return rm.metadata[key] }

// IsMutable reports whether the named non-fungible field may change after
// minting.
func (rm *ResourceManager) IsMutable(field string) bool {
	_, ok := rm.mutable[field]
	return ok
}

// Exists reports whether the unit is currently in circulation.
func (rm *ResourceManager) Exists(id LocalID) bool {
	_, ok := rm.entries[id]
	return ok
}

// Data returns a copy of the unit's fields.
func (rm *ResourceManager) Data(id LocalID) (Fields, error) {
	if rm.kind != NonFungible {
		return nil, ErrWrongKind
	}
	entry, ok := rm.entries[id]
	if !ok {
		if _, burned := rm.burned[id]; burned {
			return nil, fmt.Errorf("%w: %s", ErrBurned, id)
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return entry.clone(), nil
}

// CheckAmount validates that amount is non-negative and representable with the
// resource's divisibility.
func (rm *ResourceManager) CheckAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, amount)
	}
	if !amount.Equal(amount.Truncate(int32(rm.divisibility))) {
		return fmt.Errorf("%w: %s exceeds divisibility %d", ErrInvalidAmount, amount, rm.divisibility)
	}
	return nil
}

// MintFungible creates new supply of a fungible resource.
func (rm *ResourceManager) MintFungible(tx *Tx, amount decimal.Decimal) (*Bucket, error) {
	if err := tx.usable(); err != nil {
		return nil, err
	}
	if rm.kind != Fungible {
		return nil, ErrWrongKind
	}
	if err := rm.CheckAmount(amount); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: mint amount must be positive", ErrInvalidAmount)
	}
	if err := tx.Authorize(rm.rules.Mint); err != nil {
		return nil, fmt.Errorf("mint %s: %w", rm.address, err)
	}
	return rm.mintFungible(tx, amount), nil
}

func (rm *ResourceManager) mintFungible(tx *Tx, amount decimal.Decimal) *Bucket {
	prev := rm.supply
	rm.supply = rm.supply.Add(amount)
	tx.record(func() { rm.supply = prev })
	return tx.newBucket(rm, amount, nil)
}

// MintNonFungible creates the unit id carrying data.
func (rm *ResourceManager) MintNonFungible(tx *Tx, id LocalID, data Fields) (*Bucket, error) {
	if err := tx.usable(); err != nil {
		return nil, err
	}
	if err := rm.checkMintable(id); err != nil {
		return nil, err
	}
	if err := tx.Authorize(rm.rules.Mint); err != nil {
		return nil, fmt.Errorf("mint %s: %w", rm.address, err)
	}
	return rm.mintNonFungible(tx, id, data), nil
}

// MintRUID creates a unit under a freshly generated random id.
func (rm *ResourceManager) MintRUID(tx *Tx, data Fields) (*Bucket, error) {
	if rm.idKind != IDKindRUID {
		return nil, fmt.Errorf("%w: resource does not use ruid ids", ErrInvalidID)
	}
	id := NewRUID()
	for rm.known(id) {
		id = NewRUID()
	}
	return rm.MintNonFungible(tx, id, data)
}

func (rm *ResourceManager) known(id LocalID) bool {
	if _, ok := rm.entries[id]; ok {
		return true
	}
	_, ok := rm.burned[id]
	return ok
}

func (rm *ResourceManager) checkMintable(id LocalID) error {
	if rm.kind != NonFungible {
		return ErrWrongKind
	}
	if id.Kind() != rm.idKind {
		return fmt.Errorf("%w: %s is not a %s id", ErrInvalidID, id, rm.idKind)
	}
	if _, ok := rm.entries[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	if _, ok := rm.burned[id]; ok {
		return fmt.Errorf("%w: %s", ErrBurned, id)
	}
	return nil
}

func (rm *ResourceManager) mintNonFungible(tx *Tx, id LocalID, data Fields) *Bucket {
	if data == nil {
		data = Fields{}
	}
	rm.entries[id] = data.clone()
	prev := rm.supply
	rm.supply = rm.supply.Add(decimal.NewFromInt(1))
	tx.record(func() {
		delete(rm.entries, id)
		rm.supply = prev
	})
	return tx.newBucket(rm, decimal.Zero, []LocalID{id})
}

// Burn destroys the bucket's contents. Burned non-fungible ids are retired and
// can never be minted again.
func (rm *ResourceManager) Burn(tx *Tx, b *Bucket) error {
	if err := tx.usable(); err != nil {
		return err
	}
	if b == nil || b.resource != rm {
		return ErrWrongResource
	}
	if err := tx.Authorize(rm.rules.Burn); err != nil {
		return fmt.Errorf("burn %s: %w", rm.address, err)
	}
	amount, ids := b.drain()
	prevSupply := rm.supply
	for _, id := range ids {
		entry := rm.entries[id]
		delete(rm.entries, id)
		rm.burned[id] = struct{}{}
		id := id
		tx.record(func() {
			delete(rm.burned, id)
			rm.entries[id] = entry
		})
	}
	if rm.kind == NonFungible {
		amount = decimal.NewFromInt(int64(len(ids)))
	}
	rm.supply = rm.supply.Sub(amount)
	tx.record(func() { rm.supply = prevSupply })
	return nil
}

// RecallNonFungibles pulls units out of an account's vault without the
// holder's signature, subject to the recall rule.
func (rm *ResourceManager) RecallNonFungibles(tx *Tx, holder AccountAddress, ids []LocalID) (*Bucket, error) {
	if err := tx.usable(); err != nil {
		return nil, err
	}
	if err := tx.Authorize(rm.rules.Recall); err != nil {
		return nil, fmt.Errorf("recall %s: %w", rm.address, err)
	}
	acct, ok := tx.ledger.accounts[holder]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, holder)
	}
	vault, ok := acct.vaults[rm.address]
	if !ok {
		return nil, fmt.Errorf("%w: account holds no %s", ErrInsufficientBalance, rm.address)
	}
	return vault.TakeNonFungibles(tx, ids)
}

// UpdateField rewrites a single mutable field of a unit. Only fields declared
// mutable at creation may change.
func (rm *ResourceManager) UpdateField(tx *Tx, id LocalID, name string, value interface{}) error {
	if err := tx.usable(); err != nil {
		return err
	}
	if rm.kind != NonFungible {
		return ErrWrongKind
	}
	entry, ok := rm.entries[id]
	if !ok {
		if _, burned := rm.burned[id]; burned {
			return fmt.Errorf("%w: %s", ErrBurned, id)
		}
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !rm.IsMutable(name) {
		return fmt.Errorf("%w: %s", ErrImmutableField, name)
	}
	if err := tx.Authorize(rm.rules.UpdateData); err != nil {
		return fmt.Errorf("update %s %s: %w", rm.address, id, err)
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("encode field %s: %w", name, err)
	}
	prev, had := entry[name]
	entry[name] = encoded
	tx.record(func() {
		if had {
			entry[name] = prev
		} else {
			delete(entry, name)
		}
	})
	return nil
}
