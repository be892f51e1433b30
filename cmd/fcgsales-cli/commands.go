package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"fcgsales/core/ledger"
	"fcgsales/crypto"
)

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string, stderr io.Writer) bool {
	if err := fs.Parse(args); err != nil {
		return false
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return false
	}
	return true
}

func subcommand(group string, args []string, stderr io.Writer, subs map[string]func([]string) int) int {
	if len(args) == 0 {
		fmt.Fprintf(stderr, "Usage: fcgsales-cli %s <%s>\n", group, strings.Join(sortedKeys(subs), "|"))
		return 1
	}
	fn, ok := subs[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown %s subcommand: %s\n", group, args[0])
		return 1
	}
	return fn(args[1:])
}

func sortedKeys(m map[string]func([]string) int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	path := fs.String("keystore", "", "path of the keystore file to create")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(*path) == "" {
		return printError(stderr, "--keystore is required")
	}
	pass, err := keystorePass.Get()
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := crypto.GenerateKeystore(*path, pass)
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintf(stdout, "Account: %s\n", ledger.AccountAddress(key.PubKey().Address()))
	fmt.Fprintf(stdout, "Public key: 0x%s\n", hex.EncodeToString(key.PubKey().Bytes()))
	return 0
}

func runAccountCommand(args []string, stdout, stderr io.Writer) int {
	return subcommand("account", args, stderr, map[string]func([]string) int{
		"register": func(args []string) int {
			fs := newFlagSet("account register", stderr)
			keystore := fs.String("keystore", "", "keystore of the account to register")
			if !parseFlags(fs, args, stderr) {
				return 1
			}
			key, err := loadKey(*keystore)
			if err != nil {
				return printError(stderr, err.Error())
			}
			params := map[string]string{"pubkey": "0x" + hex.EncodeToString(key.PubKey().Bytes())}
			return signWithKey(stdout, stderr, key, "fcg_createAccount", params)
		},
		"balances": func(args []string) int {
			fs := newFlagSet("account balances", stderr)
			account := fs.String("account", "", "account bech32 address")
			if !parseFlags(fs, args, stderr) {
				return 1
			}
			if _, err := ledger.ParseAccountAddress(*account); err != nil {
				return printError(stderr, fmt.Sprintf("--account: %v", err))
			}
			return queryCall(stdout, stderr, "fcg_balances", map[string]string{"account": *account}, false)
		},
	})
}

func runResourceCommand(args []string, stdout, stderr io.Writer) int {
	return subcommand("resource", args, stderr, map[string]func([]string) int{
		"fungible": func(args []string) int {
			fs := newFlagSet("resource fungible", stderr)
			keystore := fs.String("keystore", "", "keystore of the creator")
			name := fs.String("name", "", "resource name")
			symbol := fs.String("symbol", "", "resource symbol")
			description := fs.String("description", "", "optional description")
			divisibility := fs.Uint("divisibility", 18, "decimal places, 0 to 18")
			supply := fs.String("supply", "", "initial supply deposited to the creator")
			if !parseFlags(fs, args, stderr) {
				return 1
			}
			amount, err := parseAmount("--supply", *supply)
			if err != nil {
				return printError(stderr, err.Error())
			}
			if *divisibility > ledger.MaxDivisibility {
				return printError(stderr, fmt.Sprintf("--divisibility must be <= %d", ledger.MaxDivisibility))
			}
			return signedCall(stdout, stderr, *keystore, "fcg_createFungible", map[string]interface{}{
				"name":         *name,
				"symbol":       *symbol,
				"description":  *description,
				"divisibility": *divisibility,
				"supply":       amount,
			})
		},
		"nonfungible": func(args []string) int {
			fs := newFlagSet("resource nonfungible", stderr)
			keystore := fs.String("keystore", "", "keystore of the creator")
			name := fs.String("name", "", "resource name")
			symbol := fs.String("symbol", "", "resource symbol")
			description := fs.String("description", "", "optional description")
			ids := fs.String("ids", "", "comma separated local ids, e.g. #1#,#2#")
			if !parseFlags(fs, args, stderr) {
				return 1
			}
			localIDs, err := parseLocalIDs(*ids)
			if err != nil {
				return printError(stderr, err.Error())
			}
			return signedCall(stdout, stderr, *keystore, "fcg_createNonFungible", map[string]interface{}{
				"name":        *name,
				"symbol":      *symbol,
				"description": *description,
				"ids":         localIDs,
			})
		},
		"genesis": func(args []string) int {
			fs := newFlagSet("resource genesis", stderr)
			if !parseFlags(fs, args, stderr) {
				return 1
			}
			return queryCall(stdout, stderr, "fcg_genesisResources", struct{}{}, false)
		},
	})
}

func runRegistryCommand(args []string, stdout, stderr io.Writer) int {
	badge := func(kind string) func([]string) int {
		return func(args []string) int {
			fs := newFlagSet("registry "+kind, stderr)
			keystore := fs.String("keystore", "", "keystore of the issuer")
			registry := fs.String("registry", "", "registry component address")
			name := fs.String("name", "", "badge holder name")
			recipient := fs.String("recipient", "", "account receiving the badge")
			if !parseFlags(fs, args, stderr) {
				return 1
			}
			if _, err := ledger.ParseComponentAddress(*registry); err != nil {
				return printError(stderr, fmt.Sprintf("--registry: %v", err))
			}
			if _, err := ledger.ParseAccountAddress(*recipient); err != nil {
				return printError(stderr, fmt.Sprintf("--recipient: %v", err))
			}
			method := "fcg_issueManagerBadge"
			if kind == "customer" {
				method = "fcg_issueCustomerBadge"
			}
			return signedCall(stdout, stderr, *keystore, method, map[string]string{
				"registry":  *registry,
				"name":      *name,
				"recipient": *recipient,
			})
		}
	}
	return subcommand("registry", args, stderr, map[string]func([]string) int{
		"create": func(args []string) int {
			fs := newFlagSet("registry create", stderr)
			keystore := fs.String("keystore", "", "keystore of the registry owner")
			if !parseFlags(fs, args, stderr) {
				return 1
			}
			return signedCall(stdout, stderr, *keystore, "fcg_instantiateRegistry", struct{}{})
		},
		"get": func(args []string) int {
			fs := newFlagSet("registry get", stderr)
			registry := fs.String("registry", "", "registry component address")
			if !parseFlags(fs, args, stderr) {
				return 1
			}
			return queryCall(stdout, stderr, "fcg_getRegistry", map[string]string{"registry": *registry}, false)
		},
		"manager":  badge("manager"),
		"customer": badge("customer"),
	})
}

func runOfferCommand(args []string, stdout, stderr io.Writer) int {
	resolve := func(name, method string, signed bool) func([]string) int {
		return func(args []string) int {
			fs := newFlagSet("offer "+name, stderr)
			keystore := fs.String("keystore", "", "keystore of the signer")
			registry := fs.String("registry", "", "registry component address")
			id := fs.String("id", "", "offer local id")
			if !parseFlags(fs, args, stderr) {
				return 1
			}
			if _, err := ledger.ParseLocalID(*id); err != nil {
				return printError(stderr, fmt.Sprintf("--id: %v", err))
			}
			params := map[string]string{"registry": *registry, "offerId": *id}
			if !signed {
				return queryCall(stdout, stderr, method, params, false)
			}
			return signedCall(stdout, stderr, *keystore, method, params)
		}
	}
	return subcommand("offer", args, stderr, map[string]func([]string) int{
		"send": func(args []string) int {
			fs := newFlagSet("offer send", stderr)
			keystore := fs.String("keystore", "", "keystore of a manager")
			registry := fs.String("registry", "", "registry component address")
			hash := fs.String("hash", "", "content hash of the offer document")
			expiry := fs.Uint64("expiry", 0, "last epoch at which the offer can be resolved")
			amount := fs.String("amount", "0", "offer amount")
			recipient := fs.String("recipient", "", "optional customer receiving the offer")
			if !parseFlags(fs, args, stderr) {
				return 1
			}
			value, err := parseAmount("--amount", *amount)
			if err != nil {
				return printError(stderr, err.Error())
			}
			params := map[string]interface{}{
				"registry": *registry,
				"hash":     *hash,
				"expiry":   *expiry,
				"amount":   value,
			}
			if strings.TrimSpace(*recipient) != "" {
				params["recipient"] = *recipient
			}
			return signedCall(stdout, stderr, *keystore, "fcg_sendOffer", params)
		},
		"accept": resolve("accept", "fcg_acceptOffer", true),
		"refuse": resolve("refuse", "fcg_refuseOffer", true),
		"cancel": resolve("cancel", "fcg_cancelOffer", true),
		"get":    resolve("get", "fcg_getOffer", false),
	})
}

func runEscrowCommand(args []string, stdout, stderr io.Writer) int {
	byAddress := func(name, method string) func([]string) int {
		return func(args []string) int {
			fs := newFlagSet("escrow "+name, stderr)
			keystore := fs.String("keystore", "", "keystore holding the escrow token")
			escrowAddr := fs.String("escrow", "", "escrow component address")
			if !parseFlags(fs, args, stderr) {
				return 1
			}
			if _, err := ledger.ParseComponentAddress(*escrowAddr); err != nil {
				return printError(stderr, fmt.Sprintf("--escrow: %v", err))
			}
			params := map[string]string{"escrow": *escrowAddr}
			if method == "fcg_getEscrow" {
				return queryCall(stdout, stderr, method, params, false)
			}
			return signedCall(stdout, stderr, *keystore, method, params)
		}
	}
	return subcommand("escrow", args, stderr, map[string]func([]string) int{
		"create": func(args []string) int {
			fs := newFlagSet("escrow create", stderr)
			keystore := fs.String("keystore", "", "keystore of the seller")
			requested := fs.String("requested", "", "requested resource address")
			requestedAmount := fs.String("requested-amount", "", "amount of the requested resource")
			offered := fs.String("offered", "", "offered resource address")
			offeredAmount := fs.String("offered-amount", "", "fungible amount to deposit")
			offeredIDs := fs.String("offered-ids", "", "comma separated non-fungible ids to deposit")
			if !parseFlags(fs, args, stderr) {
				return 1
			}
			reqAmount, err := parseAmount("--requested-amount", *requestedAmount)
			if err != nil {
				return printError(stderr, err.Error())
			}
			params := map[string]interface{}{
				"requestedResource": *requested,
				"requestedAmount":   reqAmount,
				"offeredResource":   *offered,
			}
			switch {
			case strings.TrimSpace(*offeredIDs) != "":
				ids, err := parseLocalIDs(*offeredIDs)
				if err != nil {
					return printError(stderr, err.Error())
				}
				params["offeredIds"] = ids
			case strings.TrimSpace(*offeredAmount) != "":
				amt, err := parseAmount("--offered-amount", *offeredAmount)
				if err != nil {
					return printError(stderr, err.Error())
				}
				params["offeredAmount"] = amt
			default:
				return printError(stderr, "--offered-amount or --offered-ids is required")
			}
			return signedCall(stdout, stderr, *keystore, "fcg_instantiateEscrow", params)
		},
		"exchange": func(args []string) int {
			fs := newFlagSet("escrow exchange", stderr)
			keystore := fs.String("keystore", "", "keystore of the buyer")
			escrowAddr := fs.String("escrow", "", "escrow component address")
			amount := fs.String("amount", "", "payment; defaults to the requested amount")
			if !parseFlags(fs, args, stderr) {
				return 1
			}
			params := map[string]interface{}{"escrow": *escrowAddr}
			if strings.TrimSpace(*amount) != "" {
				value, err := parseAmount("--amount", *amount)
				if err != nil {
					return printError(stderr, err.Error())
				}
				params["amount"] = value
			}
			return signedCall(stdout, stderr, *keystore, "fcg_exchange", params)
		},
		"withdraw": byAddress("withdraw", "fcg_withdrawResource"),
		"cancel":   byAddress("cancel", "fcg_cancelEscrow"),
		"get":      byAddress("get", "fcg_getEscrow"),
	})
}

func runEpochCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "advance" {
		fs := newFlagSet("epoch advance", stderr)
		by := fs.Uint64("by", 1, "number of epochs to advance")
		if !parseFlags(fs, args[1:], stderr) {
			return 1
		}
		if *by == 0 {
			return printError(stderr, "--by must be positive")
		}
		return queryCall(stdout, stderr, "fcg_advanceEpoch", map[string]uint64{"by": *by}, true)
	}
	fs := newFlagSet("epoch", stderr)
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	return queryCall(stdout, stderr, "fcg_epoch", struct{}{}, false)
}

func runReceiptCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("receipt", stderr)
	seq := fs.Uint64("sequence", 0, "receipt sequence number")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if *seq == 0 {
		return printError(stderr, "--sequence is required")
	}
	return queryCall(stdout, stderr, "fcg_getReceipt", map[string]uint64{"sequence": *seq}, false)
}

func runEventsCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("events", stderr)
	from := fs.Uint64("from", 0, "first receipt sequence to scan")
	eventType := fs.String("type", "", "only events of this type")
	limit := fs.Int("limit", 100, "maximum number of events")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	params := map[string]interface{}{"fromSequence": *from, "limit": *limit}
	if strings.TrimSpace(*eventType) != "" {
		params["type"] = strings.TrimSpace(*eventType)
	}
	return queryCall(stdout, stderr, "fcg_getEvents", params, false)
}

func parseAmount(flagName, value string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("%s is required", flagName)
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a decimal number", flagName)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", flagName)
	}
	return amount, nil
}

func parseLocalIDs(value string) ([]ledger.LocalID, error) {
	var ids []ledger.LocalID
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := ledger.ParseLocalID(part)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("at least one id is required")
	}
	return ids, nil
}
