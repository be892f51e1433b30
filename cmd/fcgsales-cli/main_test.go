package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"fcgsales/core/ledger"
	"fcgsales/crypto"
	"fcgsales/rpc"
)

type recordedCall struct {
	method string
	params map[string]interface{}
	auth   *rpc.RequestAuth
	bearer bool
	raw    json.RawMessage
}

func stubRPC(t *testing.T, result string) *[]recordedCall {
	t.Helper()
	var calls []recordedCall
	originalCall, originalLoad, originalNow := rpcCall, loadKey, cliNow
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	loadKey = func(path string) (*crypto.PrivateKey, error) { return key, nil }
	cliNow = func() time.Time { return time.Unix(1_700_000_000, 0) }
	rpcCall = func(method string, params json.RawMessage, auth *rpc.RequestAuth, bearer bool) (json.RawMessage, *rpcError, error) {
		var decoded map[string]interface{}
		if err := json.Unmarshal(params, &decoded); err != nil {
			t.Fatalf("decode params: %v", err)
		}
		calls = append(calls, recordedCall{method: method, params: decoded, auth: auth, bearer: bearer, raw: params})
		return json.RawMessage(result), nil, nil
	}
	t.Cleanup(func() { rpcCall, loadKey, cliNow = originalCall, originalLoad, originalNow })
	return &calls
}

func TestArgValidation(t *testing.T) {
	calls := stubRPC(t, `{}`)
	account := ledger.AccountAddress{19: 1}.String()
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"no command", nil, "Usage"},
		{"unknown command", []string{"mint"}, "Unknown command"},
		{"unknown subcommand", []string{"offer", "withdraw"}, "Unknown offer subcommand"},
		{"bad account", []string{"account", "balances", "--account", "nope"}, "--account"},
		{"negative supply", []string{"resource", "fungible", "--keystore", "k", "--supply", "-1"}, "must not be negative"},
		{"bad ids", []string{"resource", "nonfungible", "--keystore", "k", "--ids", "1,2"}, "invalid id"},
		{"bad recipient", []string{"registry", "manager", "--keystore", "k", "--registry", ledger.ComponentAddress{1}.String(), "--recipient", "x"}, "--recipient"},
		{"escrow without deposit", []string{"escrow", "create", "--keystore", "k", "--requested-amount", "5"}, "--offered-amount or --offered-ids"},
		{"zero advance", []string{"epoch", "advance", "--by", "0"}, "--by must be positive"},
		{"missing sequence", []string{"receipt"}, "--sequence is required"},
		{"positional", []string{"account", "balances", "--account", account, "extra"}, "unexpected positional"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(tc.args, &stdout, &stderr); code != 1 {
				t.Fatalf("exit code %d", code)
			}
			if !strings.Contains(stderr.String(), tc.want) {
				t.Fatalf("stderr %q does not mention %q", stderr.String(), tc.want)
			}
		})
	}
	if len(*calls) != 0 {
		t.Fatalf("invalid input reached the node: %+v", *calls)
	}
}

func TestSendOfferSignsParams(t *testing.T) {
	calls := stubRPC(t, `{"result":{"state":"NEW"},"receipt":{"sequence":4}}`)
	registry := ledger.ComponentAddress{7}.String()
	customer := ledger.AccountAddress{9}.String()

	var stdout, stderr bytes.Buffer
	code := run([]string{"offer", "send", "--keystore", "k", "--registry", registry, "--hash", "QmDoc", "--expiry", "90", "--amount", "12.5", "--recipient", customer}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr.String())
	}
	if len(*calls) != 1 {
		t.Fatalf("expected one call, got %d", len(*calls))
	}
	call := (*calls)[0]
	if call.method != "fcg_sendOffer" || call.bearer {
		t.Fatalf("unexpected call %+v", call)
	}
	if call.params["registry"] != registry || call.params["recipient"] != customer || call.params["amount"] != "12.5" {
		t.Fatalf("unexpected params %+v", call.params)
	}
	if call.auth == nil || call.auth.Timestamp != 1_700_000_000 || call.auth.Nonce == "" {
		t.Fatalf("missing auth envelope: %+v", call.auth)
	}
	digest, err := rpc.RequestDigest(call.method, call.raw, call.auth.Timestamp, call.auth.Nonce)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(call.auth.Signature, "0x"))
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	signer, err := crypto.RecoverAddress(digest, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if ledger.AccountAddress(signer).String() != call.auth.Signer {
		t.Fatalf("signature does not match signer %s", call.auth.Signer)
	}
	if !strings.Contains(stdout.String(), `"sequence": 4`) {
		t.Fatalf("result not printed: %s", stdout.String())
	}
}

func TestAdvanceEpochUsesBearer(t *testing.T) {
	calls := stubRPC(t, `{"epoch":3}`)
	var stdout, stderr bytes.Buffer
	if code := run([]string{"epoch", "advance", "--by", "3"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr.String())
	}
	call := (*calls)[0]
	if call.method != "fcg_advanceEpoch" || !call.bearer || call.auth != nil {
		t.Fatalf("unexpected call %+v", call)
	}
	if call.params["by"] != float64(3) {
		t.Fatalf("unexpected params %+v", call.params)
	}
}

func TestRPCErrorExitCode(t *testing.T) {
	original := rpcCall
	rpcCall = func(string, json.RawMessage, *rpc.RequestAuth, bool) (json.RawMessage, *rpcError, error) {
		return nil, &rpcError{Code: -32009, Message: "offers: offer is expired"}, nil
	}
	defer func() { rpcCall = original }()

	var stdout, stderr bytes.Buffer
	if code := run([]string{"epoch"}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit code %d", code)
	}
	if !strings.Contains(stderr.String(), "-32009") {
		t.Fatalf("error code not reported: %s", stderr.String())
	}
}

func TestApplyGlobalFlags(t *testing.T) {
	original := rpcEndpoint
	defer func() { rpcEndpoint = original }()
	rest, err := applyGlobalFlags([]string{"--rpc", "http://node:9000/", "epoch"})
	if err != nil {
		t.Fatalf("apply flags: %v", err)
	}
	if len(rest) != 1 || rest[0] != "epoch" {
		t.Fatalf("unexpected args %v", rest)
	}
	if got := rpcURL(); got != "http://node:9000/rpc" {
		t.Fatalf("rpc url %s", got)
	}
	if _, err := applyGlobalFlags([]string{"--rpc"}); err == nil {
		t.Fatalf("expected error for missing value")
	}
}
