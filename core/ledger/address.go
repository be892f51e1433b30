package ledger

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"fcgsales/crypto"
)

// ResourceAddress identifies a fungible or non-fungible resource.
type ResourceAddress [20]byte

// ComponentAddress identifies an instantiated component.
type ComponentAddress [20]byte

// AccountAddress identifies an account. Accounts are derived from the
// secp256k1 key that controls them.
type AccountAddress [20]byte

func (a ResourceAddress) String() string {
	return crypto.MustNewAddress(crypto.ResourcePrefix, a[:]).String()
}

func (a ComponentAddress) String() string {
	return crypto.MustNewAddress(crypto.ComponentPrefix, a[:]).String()
}

func (a AccountAddress) String() string {
	return crypto.MustNewAddress(crypto.AccountPrefix, a[:]).String()
}

// IsZero reports whether the address is unset.
func (a ResourceAddress) IsZero() bool { return a == ResourceAddress{} }

// IsZero reports whether the address is unset.
func (a ComponentAddress) IsZero() bool { return a == ComponentAddress{} }

// IsZero reports whether the address is unset.
func (a AccountAddress) IsZero() bool { return a == AccountAddress{} }

func decodeTyped(s string, prefix crypto.AddressPrefix) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(s))
	if err != nil {
		return out, err
	}
	if addr.Prefix() != prefix {
		return out, fmt.Errorf("expected %s address, got %s", prefix, addr.Prefix())
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

// ParseResourceAddress decodes the bech32 form of a resource address.
func ParseResourceAddress(s string) (ResourceAddress, error) {
	raw, err := decodeTyped(s, crypto.ResourcePrefix)
	return ResourceAddress(raw), err
}

// ParseComponentAddress decodes the bech32 form of a component address.
func ParseComponentAddress(s string) (ComponentAddress, error) {
	raw, err := decodeTyped(s, crypto.ComponentPrefix)
	return ComponentAddress(raw), err
}

// ParseAccountAddress decodes the bech32 form of an account address.
func ParseAccountAddress(s string) (AccountAddress, error) {
	raw, err := decodeTyped(s, crypto.AccountPrefix)
	return AccountAddress(raw), err
}

func deriveAddress(kind string, nonce uint64) [20]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	digest := ethcrypto.Keccak256([]byte(kind), buf[:])
	var out [20]byte
	copy(out[:], digest[12:])
	return out
}

// IDKind enumerates the supported non-fungible local id formats.
type IDKind uint8

const (
	IDKindInteger IDKind = iota + 1
	IDKindRUID
	IDKindString
)

func (k IDKind) String() string {
	switch k {
	case IDKindInteger:
		return "integer"
	case IDKindRUID:
		return "ruid"
	case IDKindString:
		return "string"
	default:
		return "unknown"
	}
}

// LocalID identifies a single non-fungible unit within its resource. The
// textual forms are `#n#` (integer), `{uuid}` (RUID) and `<name>` (string).
type LocalID string

// IntegerID returns the integer local id `#n#`.
func IntegerID(n uint64) LocalID {
	return LocalID("#" + strconv.FormatUint(n, 10) + "#")
}

// NewRUID returns a fresh random local id.
func NewRUID() LocalID {
	return LocalID("{" + uuid.NewString() + "}")
}

// StringID returns the string local id `<name>`.
func StringID(name string) LocalID {
	return LocalID("<" + name + ">")
}

// Kind reports the id format, or 0 when the id is malformed.
func (id LocalID) Kind() IDKind {
	s := string(id)
	if len(s) < 3 {
		return 0
	}
	inner := s[1 : len(s)-1]
	switch {
	case s[0] == '#' && s[len(s)-1] == '#':
		if _, err := strconv.ParseUint(inner, 10, 64); err != nil {
			return 0
		}
		return IDKindInteger
	case s[0] == '{' && s[len(s)-1] == '}':
		if _, err := uuid.Parse(inner); err != nil {
			return 0
		}
		return IDKindRUID
	case s[0] == '<' && s[len(s)-1] == '>':
		return IDKindString
	default:
		return 0
	}
}

// ParseLocalID validates the textual form of a local id.
func ParseLocalID(s string) (LocalID, error) {
	id := LocalID(strings.TrimSpace(s))
	if id.Kind() == 0 {
		return "", fmt.Errorf("%w: malformed local id %q", ErrInvalidID, s)
	}
	return id, nil
}

// GlobalID names a non-fungible unit across resources.
type GlobalID struct {
	Resource ResourceAddress
	ID       LocalID
}

func (g GlobalID) String() string {
	return g.Resource.String() + ":" + string(g.ID)
}

// MarshalText renders the bech32 form. The zero address renders empty.
func (a ResourceAddress) MarshalText() ([]byte, error) {
	if a.IsZero() {
		return []byte{}, nil
	}
	return []byte(a.String()), nil
}

// UnmarshalText parses the bech32 form; empty input yields the zero address.
func (a *ResourceAddress) UnmarshalText(text []byte) error {
	if len(strings.TrimSpace(string(text))) == 0 {
		*a = ResourceAddress{}
		return nil
	}
	parsed, err := ParseResourceAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalText renders the bech32 form. The zero address renders empty.
func (a ComponentAddress) MarshalText() ([]byte, error) {
	if a.IsZero() {
		return []byte{}, nil
	}
	return []byte(a.String()), nil
}

// UnmarshalText parses the bech32 form; empty input yields the zero address.
func (a *ComponentAddress) UnmarshalText(text []byte) error {
	if len(strings.TrimSpace(string(text))) == 0 {
		*a = ComponentAddress{}
		return nil
	}
	parsed, err := ParseComponentAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalText renders the bech32 form. The zero address renders empty.
func (a AccountAddress) MarshalText() ([]byte, error) {
	if a.IsZero() {
		return []byte{}, nil
	}
	return []byte(a.String()), nil
}

// UnmarshalText parses the bech32 form; empty input yields the zero address.
func (a *AccountAddress) UnmarshalText(text []byte) error {
	if len(strings.TrimSpace(string(text))) == 0 {
		*a = AccountAddress{}
		return nil
	}
	parsed, err := ParseAccountAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
