package genesis

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"fcgsales/core/ledger"
)

// Result maps each genesis symbol to the resource created for it.
type Result struct {
	Resources map[string]ledger.ResourceAddress
}

// Apply creates the genesis resources in symbol order and deposits every
// allocation. It must run inside a single transaction so a bad allocation
// leaves the ledger untouched.
func Apply(tx *ledger.Tx, spec *Spec) (*Result, error) {
	if spec == nil {
		return nil, fmt.Errorf("genesis spec must not be nil")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction must not be nil")
	}

	resources := append([]ResourceSpec(nil), spec.Resources...)
	sort.Slice(resources, func(i, j int) bool {
		return normalizeSymbol(resources[i].Symbol) < normalizeSymbol(resources[j].Symbol)
	})

	result := &Result{Resources: make(map[string]ledger.ResourceAddress, len(resources))}
	buckets := make(map[string]*ledger.Bucket, len(resources))
	for _, res := range resources {
		key := normalizeSymbol(res.Symbol)
		metadata := map[string]string{"name": res.Name, "symbol": res.Symbol}
		if res.Description != "" {
			metadata["description"] = res.Description
		}
		rm, bucket, err := tx.CreateFungibleWithSupply(ledger.ResourceConfig{
			Kind:         ledger.Fungible,
			Divisibility: res.Divisibility,
			Metadata:     metadata,
			Rules:        ledger.ResourceRules{Mint: ledger.DenyAll(), Burn: ledger.DenyAll()},
		}, spec.Supply(key))
		if err != nil {
			return nil, fmt.Errorf("genesis: resource %s: %w", res.Symbol, err)
		}
		result.Resources[key] = rm.Address()
		buckets[key] = bucket
	}

	for _, account := range spec.sortedAccounts() {
		addr := spec.accounts[account]
		holdings := spec.amounts[account]
		symbols := make([]string, 0, len(holdings))
		for symbol := range holdings {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)
		for _, symbol := range symbols {
			part, err := buckets[symbol].Take(holdings[symbol])
			if err != nil {
				return nil, fmt.Errorf("genesis: alloc %s %s: %w", account, symbol, err)
			}
			if err := tx.Deposit(addr, part); err != nil {
				return nil, fmt.Errorf("genesis: deposit %s %s: %w", account, symbol, err)
			}
		}
	}
	return result, nil
}

// Balance reports the allocation of symbol to account in spec.
func (s *Spec) Balance(account ledger.AccountAddress, symbol string) decimal.Decimal {
	key := normalizeSymbol(symbol)
	for raw, addr := range s.accounts {
		if addr == account {
			return s.amounts[raw][key]
		}
	}
	return decimal.Zero
}
