package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"fcgsales/core/ledger"
	"fcgsales/native/badges"
	"fcgsales/native/offers"
)

// RegistryInfo describes a hosted offer registry.
type RegistryInfo struct {
	Address       ledger.ComponentAddress `json:"address"`
	OfferResource ledger.ResourceAddress  `json:"offerResource"`
	OwnerBadge    ledger.ResourceAddress  `json:"ownerBadge"`
	AdminBadge    ledger.ResourceAddress  `json:"adminBadge"`
	ManagerBadge  ledger.ResourceAddress  `json:"managerBadge"`
	CustomerBadge ledger.ResourceAddress  `json:"customerBadge"`
	Managers      int                     `json:"managers"`
	Customers     int                     `json:"customers"`
}

// BadgeResult names a freshly issued role badge.
type BadgeResult struct {
	Resource  ledger.ResourceAddress `json:"resource"`
	ID        ledger.LocalID         `json:"id"`
	Recipient ledger.AccountAddress  `json:"recipient"`
}

// SendOfferRequest carries the terms of a new offer. The minted record goes to
// Recipient when set, to the signer otherwise.
type SendOfferRequest struct {
	Hash      string                `json:"hash"`
	Expiry    uint64                `json:"expiry"`
	Amount    decimal.Decimal       `json:"amount"`
	Recipient ledger.AccountAddress `json:"recipient,omitempty"`
}

func describeRegistry(r *offers.Registry) *RegistryInfo {
	return &RegistryInfo{
		Address:       r.Address(),
		OfferResource: r.OfferResource(),
		OwnerBadge:    r.OwnerBadge(),
		AdminBadge:    r.AdminBadge(),
		ManagerBadge:  r.Managers().Resource(),
		CustomerBadge: r.Customers().Resource(),
		Managers:      r.Managers().Count(),
		Customers:     r.Customers().Count(),
	}
}

func (n *Node) registry(addr ledger.ComponentAddress) (*offers.Registry, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	r, ok := n.registries[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRegistry, addr)
	}
	return r, nil
}

// proveBadges puts a proof of every registry badge the signer holds on the
// auth zone.
func proveBadges(tx *ledger.Tx, signer ledger.AccountAddress, r *offers.Registry) error {
	acct := tx.Account(signer)
	for _, res := range []ledger.ResourceAddress{r.OwnerBadge(), r.AdminBadge()} {
		if bal := acct.Balance(res); bal.IsPositive() {
			if _, err := tx.CreateProofOfAmount(signer, res, bal); err != nil {
				return err
			}
		}
	}
	for _, issuer := range []*badges.Issuer{r.Managers(), r.Customers()} {
		if ids := acct.NonFungibleIDs(issuer.Resource()); len(ids) > 0 {
			if _, err := tx.CreateProofOfNonFungibles(signer, issuer.Resource(), ids); err != nil {
				return err
			}
		}
	}
	return nil
}

// InstantiateRegistry creates an offer registry and hands the owner and admin
// badges to the signer.
func (n *Node) InstantiateRegistry(ctx context.Context, signer ledger.AccountAddress) (*RegistryInfo, *ledger.Receipt, error) {
	var (
		reg  *offers.Registry
		info *RegistryInfo
	)
	receipt, err := n.execute(ctx, signer, func(tx *ledger.Tx) error {
		r, owner, admin, err := offers.Instantiate(tx)
		if err != nil {
			return err
		}
		r.SetPauses(n.pauses)
		r.SetLogger(n.logger)
		if err := tx.Deposit(signer, owner, admin); err != nil {
			return err
		}
		reg, info = r, describeRegistry(r)
		return nil
	})
	if err != nil {
		return nil, receipt, err
	}
	n.mu.Lock()
	n.registries[reg.Address()] = reg
	n.mu.Unlock()
	return info, receipt, nil
}

// GetRegistry describes a hosted registry.
func (n *Node) GetRegistry(ctx context.Context, addr ledger.ComponentAddress) (*RegistryInfo, error) {
	r, err := n.registry(addr)
	if err != nil {
		return nil, err
	}
	var info *RegistryInfo
	err = n.ledger.View(ctx, func(*ledger.Tx) error {
		info = describeRegistry(r)
		return nil
	})
	return info, err
}

// IssueManagerBadge mints a manager badge for recipient, or the signer when
// recipient is zero. The signer proves whatever registry badges it holds.
func (n *Node) IssueManagerBadge(ctx context.Context, signer ledger.AccountAddress, registry ledger.ComponentAddress, name string, recipient ledger.AccountAddress) (*BadgeResult, *ledger.Receipt, error) {
	return n.issueBadge(ctx, signer, registry, name, recipient, (*offers.Registry).IssueManagerBadge)
}

// IssueCustomerBadge mints a customer badge for recipient, or the signer when
// recipient is zero.
func (n *Node) IssueCustomerBadge(ctx context.Context, signer ledger.AccountAddress, registry ledger.ComponentAddress, name string, recipient ledger.AccountAddress) (*BadgeResult, *ledger.Receipt, error) {
	return n.issueBadge(ctx, signer, registry, name, recipient, (*offers.Registry).IssueCustomerBadge)
}

func (n *Node) issueBadge(ctx context.Context, signer ledger.AccountAddress, registry ledger.ComponentAddress, name string, recipient ledger.AccountAddress,
	issue func(*offers.Registry, *ledger.Tx, string) (*ledger.Bucket, error)) (*BadgeResult, *ledger.Receipt, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil, fmt.Errorf("%w: badge name must be provided", ErrInvalidRequest)
	}
	r, err := n.registry(registry)
	if err != nil {
		return nil, nil, err
	}
	if recipient.IsZero() {
		recipient = signer
	}
	result := &BadgeResult{Recipient: recipient}
	receipt, err := n.execute(ctx, signer, func(tx *ledger.Tx) error {
		if err := proveBadges(tx, signer, r); err != nil {
			return err
		}
		bucket, err := issue(r, tx, name)
		if err != nil {
			return err
		}
		result.Resource = bucket.ResourceAddress()
		if result.ID, err = bucket.NonFungibleID(); err != nil {
			return err
		}
		return tx.Deposit(recipient, bucket)
	})
	if err != nil {
		return nil, receipt, err
	}
	return result, receipt, nil
}

// SendOffer mints an offer record and delivers it.
func (n *Node) SendOffer(ctx context.Context, signer ledger.AccountAddress, registry ledger.ComponentAddress, req SendOfferRequest) (*offers.Offer, *ledger.Receipt, error) {
	r, err := n.registry(registry)
	if err != nil {
		return nil, nil, err
	}
	holder := req.Recipient
	if holder.IsZero() {
		holder = signer
	}
	var offer *offers.Offer
	receipt, err := n.execute(ctx, signer, func(tx *ledger.Tx) error {
		if err := proveBadges(tx, signer, r); err != nil {
			return err
		}
		bucket, err := r.SendOffer(tx, req.Hash, req.Expiry, req.Amount, req.Recipient)
		if err != nil {
			return err
		}
		id, err := bucket.NonFungibleID()
		if err != nil {
			return err
		}
		if offer, err = r.Offer(id); err != nil {
			return err
		}
		return tx.Deposit(holder, bucket)
	})
	if err != nil {
		return nil, receipt, err
	}
	return offer, receipt, nil
}

// CancelOffer authorizes the signer and reports that cancellation is not
// available.
func (n *Node) CancelOffer(ctx context.Context, signer ledger.AccountAddress, registry ledger.ComponentAddress, id ledger.LocalID) (*ledger.Receipt, error) {
	r, err := n.registry(registry)
	if err != nil {
		return nil, err
	}
	return n.execute(ctx, signer, func(tx *ledger.Tx) error {
		if err := proveBadges(tx, signer, r); err != nil {
			return err
		}
		return r.CancelOffer(tx, id)
	})
}

// AcceptOffer resolves the signer's offer record as ACCEPTED.
func (n *Node) AcceptOffer(ctx context.Context, signer ledger.AccountAddress, registry ledger.ComponentAddress, id ledger.LocalID) (*offers.Offer, *ledger.Receipt, error) {
	return n.resolveOffer(ctx, signer, registry, id, (*offers.Registry).AcceptOffer)
}

// RefuseOffer resolves the signer's offer record as REFUSED.
func (n *Node) RefuseOffer(ctx context.Context, signer ledger.AccountAddress, registry ledger.ComponentAddress, id ledger.LocalID) (*offers.Offer, *ledger.Receipt, error) {
	return n.resolveOffer(ctx, signer, registry, id, (*offers.Registry).RefuseOffer)
}

func (n *Node) resolveOffer(ctx context.Context, signer ledger.AccountAddress, registry ledger.ComponentAddress, id ledger.LocalID,
	resolve func(*offers.Registry, *ledger.Tx, *ledger.Proof) error) (*offers.Offer, *ledger.Receipt, error) {
	r, err := n.registry(registry)
	if err != nil {
		return nil, nil, err
	}
	var offer *offers.Offer
	receipt, err := n.execute(ctx, signer, func(tx *ledger.Tx) error {
		if err := proveBadges(tx, signer, r); err != nil {
			return err
		}
		proof, err := tx.CreateProofOfNonFungibles(signer, r.OfferResource(), []ledger.LocalID{id})
		if err != nil {
			return err
		}
		if err := resolve(r, tx, proof); err != nil {
			return err
		}
		offer, err = r.Offer(id)
		return err
	})
	if err != nil {
		return nil, receipt, err
	}
	return offer, receipt, nil
}

// GetOffer reads an offer record.
func (n *Node) GetOffer(ctx context.Context, registry ledger.ComponentAddress, id ledger.LocalID) (*offers.Offer, error) {
	r, err := n.registry(registry)
	if err != nil {
		return nil, err
	}
	var offer *offers.Offer
	err = n.ledger.View(ctx, func(*ledger.Tx) error {
		var lookupErr error
		offer, lookupErr = r.Offer(id)
		return lookupErr
	})
	if err != nil {
		return nil, err
	}
	return offer, nil
}
