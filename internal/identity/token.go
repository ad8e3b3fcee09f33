// Package identity implements the signed persistent-identity token: a
// compact, HMAC-signed carrier for a visitor_id that lets a returning
// browser re-introduce itself without a full fingerprint match.
package identity

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mowsen/fingerprint/internal/hashprim"
)

// SignatureHexLen is the length of the truncated hex signature carried in a token.
const SignatureHexLen = 16

// DefaultMaxAge is the default token lifetime, per spec.md §6.4 identity_max_age_ms.
const DefaultMaxAge = 365 * 24 * time.Hour

// ErrMalformed means the token string did not have the expected
// "visitor_id.signature.created_at_ms" shape.
var ErrMalformed = errors.New("identity: malformed token")

// ErrBadSignature means the signature did not verify against the server secret.
var ErrBadSignature = errors.New("identity: bad signature")

// Parsed is the decomposed form of a token string.
type Parsed struct {
	VisitorID    string
	Signature    string
	CreatedAtMs  int64
}

// Validation is the result of validating a token against the current time.
type Validation struct {
	Valid         bool
	VisitorID     string
	NeedsRefresh  bool
	RefreshedToken string
}

// Signer signs and verifies persistent-identity tokens under one process-wide
// secret. The secret is read-only after construction and is never logged.
type Signer struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewSigner builds a Signer over secret, with maxAge defaulting to
// DefaultMaxAge when zero.
func NewSigner(secret []byte, maxAge time.Duration) *Signer {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	cp := make([]byte, len(secret))
	copy(cp, secret)
	return &Signer{secret: cp, maxAge: maxAge, now: time.Now}
}

// Sign stamps "now" as created_at_ms and returns the token string.
func (s *Signer) Sign(visitorID string) string {
	now := s.now().UnixMilli()
	sig := s.signature(visitorID)
	return fmt.Sprintf("%s.%s.%d", visitorID, sig, now)
}

func (s *Signer) signature(visitorID string) string {
	full := hashprim.HMACSHA256Hex(s.secret, []byte(visitorID))
	return full[:SignatureHexLen]
}

// Parse splits a token string into its three components. It never fails the
// caller's request; callers treat ErrMalformed as "no token present".
func Parse(token string) (Parsed, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Parsed{}, ErrMalformed
	}
	visitorID, sig, tsRaw := parts[0], parts[1], parts[2]
	if visitorID == "" || sig == "" {
		return Parsed{}, ErrMalformed
	}
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return Parsed{}, ErrMalformed
	}
	return Parsed{VisitorID: visitorID, Signature: sig, CreatedAtMs: ts}, nil
}

// Verify reports whether signature is the correct signature for visitorID,
// using a constant-time comparison of the raw signature bytes.
func (s *Signer) Verify(visitorID, signature string) bool {
	want, err := hex.DecodeString(s.signature(visitorID))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	if len(want) != len(got) {
		return false
	}
	return subtle.ConstantTimeCompare(want, got) == 1
}

// Validate parses and verifies token, reporting whether it refreshes.
// Malformed tokens and bad signatures both return Valid=false; they never
// error, per the spec's "treated as absent" failure semantics.
func (s *Signer) Validate(token string) Validation {
	p, err := Parse(token)
	if err != nil {
		return Validation{Valid: false}
	}
	if !s.Verify(p.VisitorID, p.Signature) {
		return Validation{Valid: false}
	}
	age := s.now().Sub(time.UnixMilli(p.CreatedAtMs))
	if age < 0 {
		age = 0
	}
	v := Validation{Valid: true, VisitorID: p.VisitorID}
	if age > s.maxAge/2 || age > s.maxAge {
		v.NeedsRefresh = true
		v.RefreshedToken = s.Sign(p.VisitorID)
	}
	return v
}
