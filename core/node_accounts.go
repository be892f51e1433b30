package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"fcgsales/core/ledger"
	"fcgsales/crypto"
)

// Balance is one resource held by an account.
type Balance struct {
	Resource ledger.ResourceAddress `json:"resource"`
	Symbol   string                 `json:"symbol,omitempty"`
	Amount   decimal.Decimal        `json:"amount"`
	IDs      []ledger.LocalID       `json:"ids,omitempty"`
}

// FungibleRequest describes a fixed-supply fungible resource.
type FungibleRequest struct {
	Name         string          `json:"name"`
	Symbol       string          `json:"symbol"`
	Description  string          `json:"description,omitempty"`
	Divisibility uint8           `json:"divisibility"`
	Supply       decimal.Decimal `json:"supply"`
}

// NonFungibleRequest describes a fixed set of non-fungible units.
type NonFungibleRequest struct {
	Name        string           `json:"name"`
	Symbol      string           `json:"symbol"`
	Description string           `json:"description,omitempty"`
	IDs         []ledger.LocalID `json:"ids"`
}

// CreateAccount registers the account controlled by pubkey and returns its
// address. Registering the same key twice returns the same address.
func (n *Node) CreateAccount(ctx context.Context, pubkey []byte) (ledger.AccountAddress, error) {
	key, err := crypto.PublicKeyFromBytes(pubkey)
	if err != nil {
		return ledger.AccountAddress{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	addr := ledger.AccountAddress(key.Address())
	if n.HasAccount(addr) {
		return addr, nil
	}
	if _, err := n.run(ctx, nil, func(tx *ledger.Tx) error {
		tx.Account(addr)
		return nil
	}); err != nil {
		return ledger.AccountAddress{}, err
	}
	n.mu.Lock()
	n.accounts[addr] = key
	n.mu.Unlock()
	return addr, nil
}

// HasAccount reports whether addr was registered.
func (n *Node) HasAccount(addr ledger.AccountAddress) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.accounts[addr]
	return ok
}

// AccountBalances lists every resource the account holds, in address order.
func (n *Node) AccountBalances(ctx context.Context, addr ledger.AccountAddress) ([]Balance, error) {
	var out []Balance
	err := n.ledger.View(ctx, func(tx *ledger.Tx) error {
		acct := tx.Account(addr)
		for _, res := range acct.Resources() {
			rm, err := tx.Resource(res)
			if err != nil {
				return err
			}
			b := Balance{Resource: res, Symbol: rm.Metadata("symbol"), Amount: acct.Balance(res)}
			if rm.Kind() == ledger.NonFungible {
				b.IDs = acct.NonFungibleIDs(res)
			}
			out = append(out, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateFungible creates a fixed-supply fungible resource and deposits the
// whole supply into the signer's account.
func (n *Node) CreateFungible(ctx context.Context, signer ledger.AccountAddress, req FungibleRequest) (ledger.ResourceAddress, *ledger.Receipt, error) {
	if strings.TrimSpace(req.Name) == "" {
		return ledger.ResourceAddress{}, nil, fmt.Errorf("%w: name must be provided", ErrInvalidRequest)
	}
	if !req.Supply.IsPositive() {
		return ledger.ResourceAddress{}, nil, fmt.Errorf("%w: supply must be positive", ErrInvalidRequest)
	}
	var addr ledger.ResourceAddress
	receipt, err := n.execute(ctx, signer, func(tx *ledger.Tx) error {
		rm, bucket, err := tx.CreateFungibleWithSupply(ledger.ResourceConfig{
			Divisibility: req.Divisibility,
			Metadata:     resourceMetadata(req.Name, req.Symbol, req.Description),
			Rules:        ledger.ResourceRules{Mint: ledger.DenyAll(), Burn: ledger.DenyAll()},
		}, req.Supply)
		if err != nil {
			return err
		}
		addr = rm.Address()
		return tx.Deposit(signer, bucket)
	})
	if err != nil {
		return ledger.ResourceAddress{}, receipt, err
	}
	return addr, receipt, nil
}

// CreateNonFungible creates a resource holding exactly ids and deposits them
// into the signer's account. All ids must share one format.
func (n *Node) CreateNonFungible(ctx context.Context, signer ledger.AccountAddress, req NonFungibleRequest) (ledger.ResourceAddress, *ledger.Receipt, error) {
	if strings.TrimSpace(req.Name) == "" {
		return ledger.ResourceAddress{}, nil, fmt.Errorf("%w: name must be provided", ErrInvalidRequest)
	}
	if len(req.IDs) == 0 {
		return ledger.ResourceAddress{}, nil, fmt.Errorf("%w: at least one id is required", ErrInvalidRequest)
	}
	kind := req.IDs[0].Kind()
	entries := make(map[ledger.LocalID]ledger.Fields, len(req.IDs))
	for _, id := range req.IDs {
		if id.Kind() == 0 || id.Kind() != kind {
			return ledger.ResourceAddress{}, nil, fmt.Errorf("%w: id %q does not match %s ids", ErrInvalidRequest, id, kind)
		}
		if _, dup := entries[id]; dup {
			return ledger.ResourceAddress{}, nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidRequest, id)
		}
		entries[id] = ledger.Fields{}
	}
	var addr ledger.ResourceAddress
	receipt, err := n.execute(ctx, signer, func(tx *ledger.Tx) error {
		rm, bucket, err := tx.CreateNonFungibleWithSupply(ledger.ResourceConfig{
			IDKind:   kind,
			Metadata: resourceMetadata(req.Name, req.Symbol, req.Description),
			Rules:    ledger.ResourceRules{Mint: ledger.DenyAll(), Burn: ledger.DenyAll()},
		}, entries)
		if err != nil {
			return err
		}
		addr = rm.Address()
		return tx.Deposit(signer, bucket)
	})
	if err != nil {
		return ledger.ResourceAddress{}, receipt, err
	}
	return addr, receipt, nil
}

func resourceMetadata(name, symbol, description string) map[string]string {
	md := map[string]string{"name": strings.TrimSpace(name)}
	if s := strings.TrimSpace(symbol); s != "" {
		md["symbol"] = s
	}
	if d := strings.TrimSpace(description); d != "" {
		md["description"] = d
	}
	return md
}
