package badges

import (
	"errors"
	"fmt"
	"log/slog"

	"fcgsales/core/ledger"
	"fcgsales/observability/logging"
)

var errNilIssuer = errors.New("badges: issuer not configured")

// Role names the population a badge identifies.
type Role string

const (
	RoleManager  Role = "manager"
	RoleCustomer Role = "customer"
)

// FieldUsername is the immutable display name carried by every badge.
const FieldUsername = "username"

// Config describes the badge resource an Issuer creates.
type Config struct {
	Role        Role
	Name        string
	Symbol      string
	Description string
	// Issue gates Issue itself.
	Issue ledger.AccessRule
	// Authority may mint, burn and recall badges directly on the resource.
	Authority ledger.AccessRule
}

// Issuer mints integer-keyed badges for one role. Keys start at 1 and grow by
// one per issued badge; the index is append-only so a key is never handed out
// twice, even after the badge behind it is burned.
type Issuer struct {
	role     Role
	resource *ledger.ResourceManager
	issue    ledger.AccessRule
	index    []ledger.LocalID
	logger   *slog.Logger
}

// NewIssuer creates the badge resource inside tx.
func NewIssuer(tx *ledger.Tx, cfg Config) (*Issuer, error) {
	rm, err := tx.CreateResource(ledger.ResourceConfig{
		Kind:   ledger.NonFungible,
		IDKind: ledger.IDKindInteger,
		Metadata: map[string]string{
			"name":        cfg.Name,
			"symbol":      cfg.Symbol,
			"description": cfg.Description,
		},
		Rules: ledger.ResourceRules{
			Mint:       cfg.Authority,
			Burn:       cfg.Authority,
			Recall:     cfg.Authority,
			UpdateData: ledger.DenyAll(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("badges: create %s resource: %w", cfg.Role, err)
	}
	return &Issuer{
		role:     cfg.Role,
		resource: rm,
		issue:    cfg.Issue,
		logger:   slog.Default(),
	}, nil
}

// SetLogger overrides the issuance logger.
func (i *Issuer) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	i.logger = logger
}

// Role returns the role the issuer serves.
func (i *Issuer) Role() Role { return i.role }

// Resource returns the badge resource address.
func (i *Issuer) Resource() ledger.ResourceAddress { return i.resource.Address() }

// Count returns the number of badges issued so far.
func (i *Issuer) Count() int { return len(i.index) }

// Lookup returns the badge issued under key.
func (i *Issuer) Lookup(key uint64) (ledger.LocalID, bool) {
	if key == 0 || key > uint64(len(i.index)) {
		return "", false
	}
	return i.index[key-1], true
}

// Issue mints the next badge carrying name and returns it for onward
// transfer.
func (i *Issuer) Issue(tx *ledger.Tx, name string) (*ledger.Bucket, error) {
	if i == nil || i.resource == nil {
		return nil, errNilIssuer
	}
	if err := tx.Authorize(i.issue); err != nil {
		return nil, fmt.Errorf("badges: issue %s: %w", i.role, err)
	}
	key := uint64(i.Count()) + 1
	id := ledger.IntegerID(key)
	data := ledger.Fields{}
	if err := data.Set(FieldUsername, name); err != nil {
		return nil, err
	}
	bucket, err := i.resource.MintNonFungible(tx, id, data)
	if err != nil {
		return nil, fmt.Errorf("badges: mint %s %s: %w", i.role, id, err)
	}
	i.index = append(i.index, id)
	tx.OnRevert(func() { i.index = i.index[:key-1] })
	i.logger.Info("badge issued",
		slog.String("role", string(i.role)),
		slog.Uint64("key", key),
		slog.String("id", string(id)),
		logging.MaskField(FieldUsername, name))
	return bucket, nil
}

// DisplayName returns the name recorded on a badge.
func (i *Issuer) DisplayName(id ledger.LocalID) (string, error) {
	data, err := i.resource.Data(id)
	if err != nil {
		return "", err
	}
	var name string
	if err := data.Get(FieldUsername, &name); err != nil {
		return "", err
	}
	return name, nil
}

// Recall pulls a badge back from its holder.
func (i *Issuer) Recall(tx *ledger.Tx, holder ledger.AccountAddress, id ledger.LocalID) (*ledger.Bucket, error) {
	bucket, err := i.resource.RecallNonFungibles(tx, holder, []ledger.LocalID{id})
	if err != nil {
		return nil, fmt.Errorf("badges: recall %s %s: %w", i.role, id, err)
	}
	return bucket, nil
}

// Burn destroys the badges in bucket. Their keys stay reserved.
func (i *Issuer) Burn(tx *ledger.Tx, bucket *ledger.Bucket) error {
	if err := i.resource.Burn(tx, bucket); err != nil {
		return fmt.Errorf("badges: burn %s: %w", i.role, err)
	}
	return nil
}
