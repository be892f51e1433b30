package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fcgsales/core/ledger"
)

// Spec seeds a fresh ledger with payment resources and their initial holders.
type Spec struct {
	GenesisTime string                       `json:"genesisTime"`
	Epoch       uint64                       `json:"epoch"`
	Resources   []ResourceSpec               `json:"resources"`
	Alloc       map[string]map[string]string `json:"alloc"` // account -> symbol -> amount

	genesisTimestamp time.Time
	accounts         map[string]ledger.AccountAddress
	amounts          map[string]map[string]decimal.Decimal
}

// ResourceSpec describes one fixed-supply fungible resource.
type ResourceSpec struct {
	Symbol       string `json:"symbol"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Divisibility uint8  `json:"divisibility"`
}

func (r *ResourceSpec) validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return fmt.Errorf("symbol must be provided")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name must be provided")
	}
	if r.Divisibility > ledger.MaxDivisibility {
		return fmt.Errorf("divisibility %d exceeds %d", r.Divisibility, ledger.MaxDivisibility)
	}
	return nil
}

// LoadSpec reads and validates the genesis file at path.
func LoadSpec(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseSpec decodes and validates a JSON genesis document. Unknown fields are
// rejected.
func ParseSpec(raw []byte) (*Spec, error) {
	var spec Spec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

// GenesisTimestamp returns the parsed genesis time.
func (s *Spec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

func (s *Spec) validate() error {
	parsedTime, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = parsedTime

	symbols := make(map[string]struct{}, len(s.Resources))
	for i := range s.Resources {
		if err := s.Resources[i].validate(); err != nil {
			return fmt.Errorf("resource[%d]: %w", i, err)
		}
		key := normalizeSymbol(s.Resources[i].Symbol)
		if _, exists := symbols[key]; exists {
			return fmt.Errorf("resource[%d]: duplicate symbol %q", i, s.Resources[i].Symbol)
		}
		symbols[key] = struct{}{}
	}

	s.accounts = make(map[string]ledger.AccountAddress, len(s.Alloc))
	s.amounts = make(map[string]map[string]decimal.Decimal, len(s.Alloc))
	for account, holdings := range s.Alloc {
		addr, err := ledger.ParseAccountAddress(account)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", account, err)
		}
		s.accounts[account] = addr
		parsed := make(map[string]decimal.Decimal, len(holdings))
		for symbol, amount := range holdings {
			key := normalizeSymbol(symbol)
			if _, ok := symbols[key]; !ok {
				return fmt.Errorf("alloc %q: unknown resource %q", account, symbol)
			}
			value, err := decimal.NewFromString(strings.TrimSpace(amount))
			if err != nil {
				return fmt.Errorf("alloc %q: %s amount: %w", account, symbol, err)
			}
			if !value.IsPositive() {
				return fmt.Errorf("alloc %q: %s amount must be positive", account, symbol)
			}
			parsed[key] = parsed[key].Add(value)
		}
		s.amounts[account] = parsed
	}
	return nil
}

// Supply returns the total allocation of symbol across all accounts.
func (s *Spec) Supply(symbol string) decimal.Decimal {
	key := normalizeSymbol(symbol)
	total := decimal.Zero
	for _, holdings := range s.amounts {
		total = total.Add(holdings[key])
	}
	return total
}

func (s *Spec) sortedAccounts() []string {
	keys := make([]string, 0, len(s.accounts))
	for k := range s.accounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func parseGenesisTime(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("genesisTime must be RFC3339: %w", err)
	}
	return ts.UTC(), nil
}
