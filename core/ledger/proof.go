package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Proof is evidence that a vault currently holds a quantity or specific units
// of a resource. Creating a proof moves nothing; the holding is re-checked
// every time the proof is evaluated, so a proof never outlives the holding it
// describes or the transaction it was created in.
type Proof struct {
	tx      *Tx
	source  *Vault
	amount  decimal.Decimal
	ids     []LocalID
	dropped bool
}

// ResourceAddress returns the resource the proof refers to.
func (p *Proof) ResourceAddress() ResourceAddress {
	if p == nil || p.source == nil {
		return ResourceAddress{}
	}
	return p.source.resource.address
}

// Amount returns the proven quantity.
func (p *Proof) Amount() decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	if len(p.ids) > 0 {
		return decimal.NewFromInt(int64(len(p.ids)))
	}
	return p.amount
}

// NonFungibleIDs returns the proven units.
func (p *Proof) NonFungibleIDs() []LocalID {
	if p == nil {
		return nil
	}
	return append([]LocalID(nil), p.ids...)
}

// NonFungibleID returns the single proven unit, failing when the proof names
// zero or several units.
func (p *Proof) NonFungibleID() (LocalID, error) {
	if p == nil || len(p.ids) != 1 {
		return "", fmt.Errorf("%w: proof must name exactly one non-fungible", ErrInvalidID)
	}
	return p.ids[0], nil
}

// Valid reports whether the proven holding still exists.
func (p *Proof) Valid() bool {
	if p == nil || p.dropped || p.source == nil || p.tx == nil || p.tx.done {
		return false
	}
	if len(p.ids) > 0 {
		for _, id := range p.ids {
			if !p.source.Contains(id) {
				return false
			}
		}
		return true
	}
	return p.amount.IsPositive() && p.source.Amount().GreaterThanOrEqual(p.amount)
}

// Check verifies the proof is valid and refers to the expected resource.
func (p *Proof) Check(resource ResourceAddress) error {
	if !p.Valid() {
		return ErrProofInvalid
	}
	if p.ResourceAddress() != resource {
		return fmt.Errorf("%w: proof of %s, expected %s", ErrWrongResource, p.ResourceAddress(), resource)
	}
	return nil
}

// Drop invalidates the proof.
func (p *Proof) Drop() {
	if p != nil {
		p.dropped = true
	}
}

// AuthZone collects the proofs presented in a transaction together with the
// stack of components whose code is currently executing.
type AuthZone struct {
	proofs []*Proof
	actors []ComponentAddress
}

// Push adds a proof to the zone.
func (z *AuthZone) Push(p *Proof) {
	if z == nil || p == nil {
		return
	}
	z.proofs = append(z.proofs, p)
}

// Proofs returns the proofs currently in the zone.
func (z *AuthZone) Proofs() []*Proof {
	if z == nil {
		return nil
	}
	return append([]*Proof(nil), z.proofs...)
}

// Clear drops every proof in the zone.
func (z *AuthZone) Clear() {
	if z == nil {
		return
	}
	for _, p := range z.proofs {
		p.Drop()
	}
	z.proofs = nil
}

func (z *AuthZone) hasResource(resource ResourceAddress) bool {
	for _, p := range z.proofs {
		if p.ResourceAddress() == resource && p.Valid() {
			return true
		}
	}
	return false
}

func (z *AuthZone) hasNonFungible(resource ResourceAddress, id LocalID) bool {
	for _, p := range z.proofs {
		if p.ResourceAddress() != resource || !p.Valid() {
			continue
		}
		for _, held := range p.ids {
			if held == id {
				return true
			}
		}
	}
	return false
}

func (z *AuthZone) actor() ComponentAddress {
	if z == nil || len(z.actors) == 0 {
		return ComponentAddress{}
	}
	return z.actors[len(z.actors)-1]
}
