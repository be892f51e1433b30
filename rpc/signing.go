package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"fcgsales/core/ledger"
	"fcgsales/crypto"
)

var (
	errStaleRequest     = errors.New("rpc: request timestamp outside allowed skew")
	errSignerMismatch   = errors.New("rpc: signature does not match signer")
	errMissingAuth      = errors.New("rpc: signed request required")
	errReplayedRequest  = errors.New("rpc: request already processed")
	errMalformedAuthSig = errors.New("rpc: malformed signature")
)

// RequestAuth is the signed envelope carried by mutating requests. Nonce is
// chosen by the client so identical calls signed in the same second stay
// distinct; an envelope without one is accepted once per digest.
type RequestAuth struct {
	Signer    string `json:"signer"`
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce,omitempty"`
	Signature string `json:"signature"`
}

const maxNonceLength = 64

// canonicalParams compacts raw JSON so whitespace does not change the digest.
func canonicalParams(raw json.RawMessage) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RequestDigest is keccak256(method || 0x00 || params || 0x00 || timestamp),
// followed by 0x00 || nonce when a nonce is set.
func RequestDigest(method string, params json.RawMessage, timestamp int64, nonce string) ([]byte, error) {
	canonical, err := canonicalParams(params)
	if err != nil {
		return nil, fmt.Errorf("rpc: canonical params: %w", err)
	}
	parts := [][]byte{
		[]byte(method),
		{0},
		canonical,
		{0},
		[]byte(strconv.FormatInt(timestamp, 10)),
	}
	if nonce != "" {
		parts = append(parts, []byte{0}, []byte(nonce))
	}
	return ethcrypto.Keccak256(parts...), nil
}

// SignRequest marshals params and signs them for method at ts.
func SignRequest(key *crypto.PrivateKey, method string, params interface{}, ts time.Time) (json.RawMessage, *RequestAuth, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, nil, err
	}
	timestamp := ts.Unix()
	nonce := uuid.NewString()
	digest, err := RequestDigest(method, raw, timestamp, nonce)
	if err != nil {
		return nil, nil, err
	}
	sig, err := key.Sign(digest)
	if err != nil {
		return nil, nil, err
	}
	signer := ledger.AccountAddress(key.PubKey().Address())
	return raw, &RequestAuth{
		Signer:    signer.String(),
		Timestamp: timestamp,
		Nonce:     nonce,
		Signature: "0x" + hex.EncodeToString(sig),
	}, nil
}

// replayCache remembers accepted digests until they fall outside the skew
// window.
type replayCache struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
}

func newReplayCache(ttl time.Duration) *replayCache {
	return &replayCache{ttl: ttl, seen: make(map[string]time.Time)}
}

// remember returns false when digest was already accepted.
func (c *replayCache) remember(digest string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for d, seenAt := range c.seen {
		if now.Sub(seenAt) > c.ttl {
			delete(c.seen, d)
		}
	}
	if _, exists := c.seen[digest]; exists {
		return false
	}
	c.seen[digest] = now
	return true
}

// verify authenticates a signed request and returns the signer.
func (s *Server) verify(req *RPCRequest, params json.RawMessage) (ledger.AccountAddress, error) {
	auth := req.Auth
	if auth == nil {
		return ledger.AccountAddress{}, errMissingAuth
	}
	signer, err := ledger.ParseAccountAddress(auth.Signer)
	if err != nil {
		return ledger.AccountAddress{}, fmt.Errorf("%w: signer: %v", errSignerMismatch, err)
	}
	now := s.now()
	skew := now.Sub(time.Unix(auth.Timestamp, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > s.skew {
		return ledger.AccountAddress{}, fmt.Errorf("%w: %s", errStaleRequest, skew.Round(time.Second))
	}
	if len(auth.Nonce) > maxNonceLength {
		return ledger.AccountAddress{}, fmt.Errorf("%w: nonce longer than %d bytes", errMalformedAuthSig, maxNonceLength)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(auth.Signature), "0x"))
	if err != nil || len(sig) != 65 {
		return ledger.AccountAddress{}, errMalformedAuthSig
	}
	digest, err := RequestDigest(req.Method, params, auth.Timestamp, auth.Nonce)
	if err != nil {
		return ledger.AccountAddress{}, err
	}
	recovered, err := crypto.RecoverAddress(digest, sig)
	if err != nil {
		return ledger.AccountAddress{}, fmt.Errorf("%w: %v", errSignerMismatch, err)
	}
	if ledger.AccountAddress(recovered) != signer {
		return ledger.AccountAddress{}, errSignerMismatch
	}
	if !s.replays.remember(hex.EncodeToString(digest), now) {
		return ledger.AccountAddress{}, errReplayedRequest
	}
	return signer, nil
}
