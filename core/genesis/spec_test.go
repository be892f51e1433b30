package genesis

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"fcgsales/core/ledger"
)

func testAddress(b byte) ledger.AccountAddress {
	var addr ledger.AccountAddress
	addr[0] = b
	addr[19] = b
	return addr
}

func writeSpec(t *testing.T, spec map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("marshal spec: %v", err)
	}
	path := filepath.Join(t.TempDir(), "genesis.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write spec: %v", err)
	}
	return path
}

func TestLoadSpecAndApply(t *testing.T) {
	alice, bob := testAddress(1), testAddress(2)
	path := writeSpec(t, map[string]any{
		"genesisTime": "2024-01-01T00:00:00Z",
		"epoch":       1000,
		"resources": []map[string]any{
			{"symbol": "XRD", "name": "Radix", "divisibility": 18},
			{"symbol": "gbp", "name": "Pound", "divisibility": 2},
		},
		"alloc": map[string]map[string]string{
			alice.String(): {"XRD": "1000", "GBP": "12.50"},
			bob.String():   {"xrd": "250"},
		},
	})

	spec, err := LoadSpec(path)
	if err != nil {
		t.Fatalf("load spec: %v", err)
	}
	if spec.GenesisTimestamp().Year() != 2024 {
		t.Fatalf("unexpected genesis time: %v", spec.GenesisTimestamp())
	}
	if !spec.Supply("XRD").Equal(decimal.NewFromInt(1250)) {
		t.Fatalf("unexpected XRD supply: %s", spec.Supply("XRD"))
	}
	if !spec.Balance(alice, "gbp").Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected GBP balance: %s", spec.Balance(alice, "gbp"))
	}

	l := ledger.New()
	var result *Result
	receipt, err := l.Execute(context.Background(), nil, func(tx *ledger.Tx) error {
		var applyErr error
		result, applyErr = Apply(tx, spec)
		return applyErr
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !receipt.Committed() {
		t.Fatalf("receipt not committed: %+v", receipt)
	}

	xrd, gbp := result.Resources["XRD"], result.Resources["GBP"]
	err = l.View(context.Background(), func(tx *ledger.Tx) error {
		if got := tx.Account(alice).Balance(xrd); !got.Equal(decimal.NewFromInt(1000)) {
			t.Fatalf("alice XRD = %s", got)
		}
		if got := tx.Account(alice).Balance(gbp); !got.Equal(decimal.RequireFromString("12.5")) {
			t.Fatalf("alice GBP = %s", got)
		}
		if got := tx.Account(bob).Balance(xrd); !got.Equal(decimal.NewFromInt(250)) {
			t.Fatalf("bob XRD = %s", got)
		}
		rm, err := tx.Resource(xrd)
		if err != nil {
			return err
		}
		if !rm.TotalSupply().Equal(decimal.NewFromInt(1250)) {
			t.Fatalf("XRD supply = %s", rm.TotalSupply())
		}
		if _, err := rm.MintFungible(tx, decimal.NewFromInt(1)); !errors.Is(err, ledger.ErrUnauthorized) {
			t.Fatalf("genesis resources must be fixed supply, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestParseSpecRejectsInvalid(t *testing.T) {
	alice := testAddress(1).String()
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{"missing time", `{"resources":[]}`, "genesisTime"},
		{"bad time", `{"genesisTime":"yesterday"}`, "RFC3339"},
		{"unknown field", `{"genesisTime":"2024-01-01T00:00:00Z","chainId":1}`, "unknown field"},
		{"duplicate symbol", `{"genesisTime":"2024-01-01T00:00:00Z","resources":[{"symbol":"X","name":"a"},{"symbol":"x","name":"b"}]}`, "duplicate symbol"},
		{"divisibility", `{"genesisTime":"2024-01-01T00:00:00Z","resources":[{"symbol":"X","name":"a","divisibility":19}]}`, "divisibility"},
		{"unknown resource", `{"genesisTime":"2024-01-01T00:00:00Z","alloc":{"` + alice + `":{"Y":"1"}}}`, "unknown resource"},
		{"bad account", `{"genesisTime":"2024-01-01T00:00:00Z","resources":[{"symbol":"X","name":"a"}],"alloc":{"nope":{"X":"1"}}}`, "alloc"},
		{"non-positive", `{"genesisTime":"2024-01-01T00:00:00Z","resources":[{"symbol":"X","name":"a"}],"alloc":{"` + alice + `":{"X":"0"}}}`, "positive"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSpec([]byte(tc.doc))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestApplyRevertsOnDivisibilityViolation(t *testing.T) {
	alice := testAddress(1).String()
	spec, err := ParseSpec([]byte(`{"genesisTime":"2024-01-01T00:00:00Z","resources":[{"symbol":"X","name":"a","divisibility":0}],"alloc":{"` + alice + `":{"X":"1.5"}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	l := ledger.New()
	receipt, err := l.Execute(context.Background(), nil, func(tx *ledger.Tx) error {
		_, applyErr := Apply(tx, spec)
		return applyErr
	})
	if err == nil {
		t.Fatalf("expected divisibility failure")
	}
	if receipt.Committed() {
		t.Fatalf("receipt should be failed")
	}
}
