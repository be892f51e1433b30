package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"fcgsales/cmd/internal/passphrase"
	"fcgsales/crypto"
	"fcgsales/rpc"
)

const keystorePassEnv = "FCG_KEYSTORE_PASS"

var (
	rpcEndpoint  = defaultRPCEndpoint()
	rpcAuthToken = os.Getenv("FCG_RPC_TOKEN")

	cliNow       = time.Now
	rpcCall      = callRPC
	keystorePass = passphrase.NewSource(keystorePassEnv, "Enter keystore passphrase: ")
	loadKey      = loadKeystore
)

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(run(args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "account":
		return runAccountCommand(args[1:], stdout, stderr)
	case "resource":
		return runResourceCommand(args[1:], stdout, stderr)
	case "registry":
		return runRegistryCommand(args[1:], stdout, stderr)
	case "offer":
		return runOfferCommand(args[1:], stdout, stderr)
	case "escrow":
		return runEscrowCommand(args[1:], stdout, stderr)
	case "epoch":
		return runEpochCommand(args[1:], stdout, stderr)
	case "receipt":
		return runReceiptCommand(args[1:], stdout, stderr)
	case "events":
		return runEventsCommand(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.TrimSpace(`
Usage: fcgsales-cli [--rpc URL] <command> [flags]

Commands:
  keygen     --keystore PATH
  account    register|balances
  resource   fungible|nonfungible|genesis
  registry   create|get|manager|customer
  offer      send|accept|refuse|cancel|get
  escrow     create|exchange|withdraw|cancel|get
  epoch      [advance --by N]
  receipt    --sequence N
  events     [--from N] [--type TYPE] [--limit N]

Environment:
  RPC_URL            node endpoint (default http://localhost:8080)
  FCG_RPC_TOKEN      bearer token for operator methods
  FCG_KEYSTORE_PASS  keystore passphrase; prompted when unset`)
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func loadKeystore(path string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("--keystore is required")
	}
	pass, err := keystorePass.Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("load keystore %s: %w", path, err)
	}
	return key, nil
}

func rpcURL() string {
	endpoint := strings.TrimRight(strings.TrimSpace(rpcEndpoint), "/")
	if strings.HasSuffix(endpoint, "/rpc") {
		return endpoint
	}
	return endpoint + "/rpc"
}

// callRPC posts one JSON-RPC request. Signed requests carry auth; operator
// methods send the bearer token.
func callRPC(method string, params json.RawMessage, auth *rpc.RequestAuth, bearer bool) (json.RawMessage, *rpcError, error) {
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = []json.RawMessage{params}
	} else {
		payload["params"] = []interface{}{}
	}
	if auth != nil {
		payload["auth"] = auth
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequest(http.MethodPost, rpcURL(), bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer {
		if strings.TrimSpace(rpcAuthToken) == "" {
			return nil, nil, fmt.Errorf("operator RPC call requires FCG_RPC_TOKEN to be set")
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(rpcAuthToken))
	}
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("POST %s: %w", rpcURL(), err)
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode RPC response: %w", err)
	}
	return rpcResp.Result, rpcResp.Error, nil
}

// signedCall signs params with the keystore key and sends them.
func signedCall(stdout, stderr io.Writer, keystore, method string, params interface{}) int {
	key, err := loadKey(keystore)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return signWithKey(stdout, stderr, key, method, params)
}

func signWithKey(stdout, stderr io.Writer, key *crypto.PrivateKey, method string, params interface{}) int {
	raw, auth, err := rpc.SignRequest(key, method, params, cliNow())
	if err != nil {
		return printError(stderr, err.Error())
	}
	return finish(stdout, stderr, method, raw, auth, false)
}

// queryCall sends an unsigned read.
func queryCall(stdout, stderr io.Writer, method string, params interface{}, bearer bool) int {
	raw, err := json.Marshal(params)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return finish(stdout, stderr, method, raw, nil, bearer)
}

func finish(stdout, stderr io.Writer, method string, raw json.RawMessage, auth *rpc.RequestAuth, bearer bool) int {
	result, rpcErr, err := rpcCall(method, raw, auth, bearer)
	if err != nil {
		return printError(stderr, err.Error())
	}
	if rpcErr != nil {
		fmt.Fprintf(stderr, "Error %d: %s\n", rpcErr.Code, rpcErr.Message)
		if len(rpcErr.Data) > 0 {
			writeJSON(stderr, rpcErr.Data)
		}
		return 1
	}
	writeJSON(stdout, result)
	return 0
}

func writeJSON(w io.Writer, raw json.RawMessage) {
	if len(raw) == 0 {
		fmt.Fprintln(w, "No result.")
		return
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Fprintln(w, string(raw))
		return
	}
	fmt.Fprintln(w, buf.String())
}

func printError(stderr io.Writer, msg string) int {
	fmt.Fprintf(stderr, "Error: %s\n", msg)
	return 1
}
