package offers

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"fcgsales/core/ledger"
	"fcgsales/native/badges"
	"fcgsales/native/common"
)

// ModuleName is the pause-guard key of the registry.
const ModuleName = "offers"

// Blueprint names the registry code on the ledger.
const Blueprint = "fcgsales"

var (
	ErrNotAcceptable     = errors.New("offers: offer is not acceptable anymore")
	ErrNotRefusable      = errors.New("offers: offer is not refusable anymore")
	ErrExpired           = errors.New("offers: offer is expired")
	ErrInvalidOfferProof = errors.New("offers: proof must name exactly one offer of this registry")
	ErrInvalidAmount     = errors.New("offers: offer amount must be non-negative")
	ErrNotImplemented    = errors.New("offers: cancel offer is not implemented")
	ErrOfferNotFound     = errors.New("offers: offer not found")

	errNilRegistry = errors.New("offers: registry not configured")
)

type roleRules struct {
	send         ledger.AccessRule
	resolve      ledger.AccessRule
	mintManager  ledger.AccessRule
	mintCustomer ledger.AccessRule
}

// Registry mints offer records and drives them from NEW to ACCEPTED or
// REFUSED. All mutations of a record go through the registry component, which
// alone holds mint, burn and update authority over the offer resource.
type Registry struct {
	component  *ledger.Component
	offers     *ledger.ResourceManager
	ownerBadge ledger.ResourceAddress
	adminBadge ledger.ResourceAddress
	managers   *badges.Issuer
	customers  *badges.Issuer
	rules      roleRules
	pauses     common.PauseView
	logger     *slog.Logger
}

// Instantiate creates a registry with its badge resources and returns the
// owner and admin badges alongside it.
func Instantiate(tx *ledger.Tx) (*Registry, *ledger.Bucket, *ledger.Bucket, error) {
	component, err := tx.NewComponent(Blueprint)
	if err != nil {
		return nil, nil, nil, err
	}
	self := ledger.RequireComponent(component.Address())

	owner, ownerBucket, err := tx.CreateFungibleWithSupply(ledger.ResourceConfig{
		Metadata: map[string]string{
			"name":        "FCG Sales Owner badge",
			"symbol":      "FCG Sales Owner",
			"description": "A badge to be used for some extra-special administrative function",
		},
	}, decimal.NewFromInt(1))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("offers: create owner badge: %w", err)
	}
	admin, adminBucket, err := tx.CreateFungibleWithSupply(ledger.ResourceConfig{
		Metadata: map[string]string{
			"name":        "FCG Sales Admin badge",
			"symbol":      "FCG Sales Admin",
			"description": "A badge to be used for some special administrative function",
		},
	}, decimal.NewFromInt(1))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("offers: create admin badge: %w", err)
	}
	isOwner := ledger.Require(owner.Address())
	isAdmin := ledger.Require(admin.Address())

	managers, err := badges.NewIssuer(tx, badges.Config{
		Role:        badges.RoleManager,
		Name:        "Fcgsales Manager Badge",
		Symbol:      "Fcgsales Manager",
		Description: "A badge to be used for some manager function",
		Issue:       ledger.AnyOf(isAdmin, isOwner),
		Authority:   ledger.AnyOf(self, isOwner, isAdmin),
	})
	if err != nil {
		return nil, nil, nil, err
	}
	isManager := ledger.Require(managers.Resource())

	customers, err := badges.NewIssuer(tx, badges.Config{
		Role:        badges.RoleCustomer,
		Name:        "Fcgsales Customer Badge",
		Symbol:      "Fcgsales Customer",
		Description: "A badge to be used for some customer function",
		Issue:       ledger.AnyOf(isManager, isAdmin, isOwner),
		Authority:   ledger.AnyOf(self, isAdmin, isManager),
	})
	if err != nil {
		return nil, nil, nil, err
	}

	offerResource, err := tx.CreateResource(ledger.ResourceConfig{
		Kind:   ledger.NonFungible,
		IDKind: ledger.IDKindRUID,
		Metadata: map[string]string{
			"name":        "FCG Sales OfferData NFT",
			"symbol":      "FCG Sales OfferData",
			"description": "An NFT containing information about an Offer",
		},
		MutableFields: mutableFields,
		Rules: ledger.ResourceRules{
			Mint:       self,
			Burn:       self,
			Recall:     ledger.AnyOf(self, isAdmin, isManager),
			UpdateData: self,
		},
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("offers: create offer resource: %w", err)
	}

	r := &Registry{
		component:  component,
		offers:     offerResource,
		ownerBadge: owner.Address(),
		adminBadge: admin.Address(),
		managers:   managers,
		customers:  customers,
		rules: roleRules{
			send:         ledger.AnyOf(isManager, isAdmin, isOwner),
			resolve:      ledger.Require(customers.Resource()),
			mintManager:  ledger.AnyOf(isAdmin, isOwner),
			mintCustomer: ledger.AnyOf(isManager, isAdmin, isOwner),
		},
		logger: slog.Default(),
	}
	return r, ownerBucket, adminBucket, nil
}

// SetPauses wires the pause view consulted before every operation.
func (r *Registry) SetPauses(p common.PauseView) { r.pauses = p }

// SetLogger overrides the registry logger, including its badge issuers.
func (r *Registry) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	r.logger = logger.With(slog.String("registry", r.component.Address().String()))
	r.managers.SetLogger(r.logger)
	r.customers.SetLogger(r.logger)
}

// Address returns the registry component address.
func (r *Registry) Address() ledger.ComponentAddress { return r.component.Address() }

// OfferResource returns the resource of the offer records.
func (r *Registry) OfferResource() ledger.ResourceAddress { return r.offers.Address() }

// OwnerBadge returns the owner badge resource.
func (r *Registry) OwnerBadge() ledger.ResourceAddress { return r.ownerBadge }

// AdminBadge returns the admin badge resource.
func (r *Registry) AdminBadge() ledger.ResourceAddress { return r.adminBadge }

// Managers returns the manager badge issuer.
func (r *Registry) Managers() *badges.Issuer { return r.managers }

// Customers returns the customer badge issuer.
func (r *Registry) Customers() *badges.Issuer { return r.customers }

func (r *Registry) enter(tx *ledger.Tx, rule ledger.AccessRule, op string) error {
	if r == nil || r.component == nil {
		return errNilRegistry
	}
	if err := common.Guard(r.pauses, ModuleName); err != nil {
		return err
	}
	if err := tx.Authorize(rule); err != nil {
		return fmt.Errorf("offers: %s: %w", op, err)
	}
	return nil
}

// SendOffer mints a NEW offer record and returns it. Delivering the record to
// recipient is left to the caller; recipient is only stored as a hint.
func (r *Registry) SendOffer(tx *ledger.Tx, hash string, expiry uint64, amount decimal.Decimal, recipient ledger.AccountAddress) (*ledger.Bucket, error) {
	if err := r.enter(tx, r.rules.send, "send offer"); err != nil {
		return nil, err
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	offer := &Offer{
		Hash:      hash,
		Expiry:    expiry,
		State:     StateNew,
		CreatedAt: tx.Epoch(),
		Amount:    amount,
		Recipient: recipient,
	}
	data, err := offer.fields()
	if err != nil {
		return nil, err
	}
	var bucket *ledger.Bucket
	err = tx.Call(r.component, func() error {
		var mintErr error
		bucket, mintErr = r.offers.MintRUID(tx, data)
		return mintErr
	})
	if err != nil {
		return nil, fmt.Errorf("offers: mint offer: %w", err)
	}
	if offer.ID, err = bucket.NonFungibleID(); err != nil {
		return nil, err
	}
	tx.Emit(offerEvent{evt: NewSentEvent(r.Address(), offer)})
	r.logger.Info("offer minted",
		slog.String("offer", string(offer.ID)),
		slog.String("hash", hash),
		slog.Uint64("expiry", expiry),
		slog.Uint64("epoch", offer.CreatedAt))
	return bucket, nil
}

// CancelOffer is reserved for a recall-and-invalidate path that has no agreed
// semantics yet. Authorized callers always get ErrNotImplemented.
func (r *Registry) CancelOffer(tx *ledger.Tx, id ledger.LocalID) error {
	if err := r.enter(tx, r.rules.send, "cancel offer"); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrNotImplemented, id)
}

// AcceptOffer resolves the offer named by proof as ACCEPTED.
func (r *Registry) AcceptOffer(tx *ledger.Tx, proof *ledger.Proof) error {
	return r.resolve(tx, proof, StateAccepted)
}

// RefuseOffer resolves the offer named by proof as REFUSED.
func (r *Registry) RefuseOffer(tx *ledger.Tx, proof *ledger.Proof) error {
	return r.resolve(tx, proof, StateRefused)
}

func (r *Registry) resolve(tx *ledger.Tx, proof *ledger.Proof, target State) error {
	op, notResolvable, marker, eventFn := "accept offer", ErrNotAcceptable, fieldAcceptedAt, NewAcceptedEvent
	if target == StateRefused {
		op, notResolvable, marker, eventFn = "refuse offer", ErrNotRefusable, fieldRefusedAt, NewRefusedEvent
	}
	if err := r.enter(tx, r.rules.resolve, op); err != nil {
		return err
	}
	if err := proof.Check(r.offers.Address()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOfferProof, err)
	}
	id, err := proof.NonFungibleID()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOfferProof, err)
	}
	offer, err := r.load(id)
	if err != nil {
		return err
	}
	epoch := tx.Epoch()
	if offer.State != StateNew {
		return fmt.Errorf("%w: %s is %s", notResolvable, id, offer.State)
	}
	if offer.Expired(epoch) {
		return fmt.Errorf("%w: %s expired at epoch %d, now %d", ErrExpired, id, offer.Expiry, epoch)
	}
	err = tx.Call(r.component, func() error {
		if err := r.offers.UpdateField(tx, id, fieldState, string(target)); err != nil {
			return err
		}
		return r.offers.UpdateField(tx, id, marker, epoch)
	})
	if err != nil {
		return fmt.Errorf("offers: %s: %w", op, err)
	}
	offer.State = target
	if target == StateAccepted {
		offer.AcceptedAt = epoch
	} else {
		offer.RefusedAt = epoch
	}
	tx.Emit(offerEvent{evt: eventFn(r.Address(), offer, epoch)})
	r.logger.Info("offer resolved",
		slog.String("offer", string(id)),
		slog.String("state", string(target)),
		slog.Uint64("epoch", epoch))
	return nil
}

// IssueManagerBadge mints a manager badge carrying name.
func (r *Registry) IssueManagerBadge(tx *ledger.Tx, name string) (*ledger.Bucket, error) {
	return r.issue(tx, r.managers, r.rules.mintManager, name)
}

// IssueCustomerBadge mints a customer badge carrying name.
func (r *Registry) IssueCustomerBadge(tx *ledger.Tx, name string) (*ledger.Bucket, error) {
	return r.issue(tx, r.customers, r.rules.mintCustomer, name)
}

func (r *Registry) issue(tx *ledger.Tx, issuer *badges.Issuer, rule ledger.AccessRule, name string) (*ledger.Bucket, error) {
	if err := r.enter(tx, rule, "issue "+string(issuer.Role())+" badge"); err != nil {
		return nil, err
	}
	var bucket *ledger.Bucket
	err := tx.Call(r.component, func() error {
		var issueErr error
		bucket, issueErr = issuer.Issue(tx, name)
		return issueErr
	})
	if err != nil {
		return nil, err
	}
	return bucket, nil
}

// Offer returns a snapshot of the record. Callers outside a transaction must
// go through Ledger.View.
func (r *Registry) Offer(id ledger.LocalID) (*Offer, error) {
	if r == nil || r.offers == nil {
		return nil, errNilRegistry
	}
	return r.load(id)
}

func (r *Registry) load(id ledger.LocalID) (*Offer, error) {
	data, err := r.offers.Data(id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrOfferNotFound, id)
		}
		return nil, err
	}
	return decodeOffer(id, data)
}
