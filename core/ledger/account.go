package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Account holds one vault per resource on behalf of an external key.
// Withdrawals and proofs from an account need the account's signature; deposits
// are open to everybody.
type Account struct {
	address AccountAddress
	vaults  map[ResourceAddress]*Vault
}

func newAccount(addr AccountAddress) *Account {
	return &Account{address: addr, vaults: make(map[ResourceAddress]*Vault)}
}

// Address returns the account address.
func (a *Account) Address() AccountAddress { return a.address }

// Balance returns the amount of the resource held.
func (a *Account) Balance(resource ResourceAddress) decimal.Decimal {
	if a == nil {
		return decimal.Zero
	}
	return a.vaults[resource].Amount()
}

// NonFungibleIDs returns the units of the resource held.
func (a *Account) NonFungibleIDs(resource ResourceAddress) []LocalID {
	if a == nil {
		return nil
	}
	return a.vaults[resource].NonFungibleIDs()
}

// Holds reports whether the account holds the unit.
func (a *Account) Holds(resource ResourceAddress, id LocalID) bool {
	if a == nil {
		return false
	}
	return a.vaults[resource].Contains(id)
}

// Resources lists the resources with a non-empty holding, ordered by address.
func (a *Account) Resources() []ResourceAddress {
	if a == nil {
		return nil
	}
	out := make([]ResourceAddress, 0, len(a.vaults))
	for addr, v := range a.vaults {
		if !v.IsEmpty() {
			out = append(out, addr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (a *Account) vault(tx *Tx, rm *ResourceManager) *Vault {
	if v, ok := a.vaults[rm.address]; ok {
		return v
	}
	v := newVault(rm)
	a.vaults[rm.address] = v
	tx.record(func() { delete(a.vaults, rm.address) })
	return v
}
