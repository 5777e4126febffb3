// Package urp implements the Unified Registration Protocol (spec §4.1):
// identity, token issuance, heartbeat, and registration event propagation.
// Every privileged action a component takes against the fabric carries a
// RegistrationToken minted at register time.
package urp

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tekton-fabric/core/errs"
	"github.com/tekton-fabric/core/internal/clock"
)

const component = "urp"

// DefaultTTL is the token lifetime applied when Manager.Register is not
// given an explicit one.
const DefaultTTL = time.Hour

// RegistrationToken is the signed claim binding a component_id to a
// lifetime (spec §3, §4.1). Tokens are symmetric secrets: out-of-band
// distribution of the shared secret is the deployment's responsibility.
type RegistrationToken struct {
	ComponentID string    `json:"component_id"`
	TokenID     string    `json:"token_id"`
	IssuedAt    time.Time `json:"iat"`
	ExpiresAt   time.Time `json:"exp"`
	Signature   string    `json:"signature"`
}

// claimPayload is the canonical JSON that gets signed. Field order is
// fixed by struct declaration order and json.Marshal's deterministic
// encoding of struct fields (unlike map[string]any, which would need
// explicit key sorting).
type claimPayload struct {
	ComponentID string `json:"component_id"`
	TokenID     string `json:"token_id"`
	IssuedAt    int64  `json:"iat"`
	ExpiresAt   int64  `json:"exp"`
}

func canonicalPayload(componentID, tokenID string, issuedAt, expiresAt time.Time) ([]byte, error) {
	payload := claimPayload{
		ComponentID: componentID,
		TokenID:     tokenID,
		IssuedAt:    issuedAt.Unix(),
		ExpiresAt:   expiresAt.Unix(),
	}
	return json.Marshal(payload)
}

func sign(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return fmt.Sprintf("%x", mac.Sum(nil))
}

// SecretSource supplies the HMAC shared secret used to mint and verify
// tokens. A process normally wires a single static secret, but the
// indirection lets secret rotation be layered on later without touching
// the Manager.
type SecretSource interface {
	Secret() []byte
}

// StaticSecret is the simplest SecretSource: a fixed byte slice set at
// construction time.
type StaticSecret []byte

// Secret returns the fixed secret.
func (s StaticSecret) Secret() []byte { return []byte(s) }

// mintToken signs a fresh RegistrationToken for componentID with the given
// ttl, using clk for issued_at so tests can control time deterministically.
func mintToken(secret SecretSource, clk clock.Clock, componentID string, ttl time.Duration) (*RegistrationToken, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	issuedAt := clk.Now()
	expiresAt := issuedAt.Add(ttl)
	tokenID := uuid.NewString()

	payload, err := canonicalPayload(componentID, tokenID, issuedAt, expiresAt)
	if err != nil {
		return nil, errs.New(component, "mint_token", errs.Internal, "encode token payload").WithCause(err)
	}

	return &RegistrationToken{
		ComponentID: componentID,
		TokenID:     tokenID,
		IssuedAt:    issuedAt,
		ExpiresAt:   expiresAt,
		Signature:   sign(secret.Secret(), payload),
	}, nil
}

// verifyToken recomputes the signature and checks expiry and the
// component_id binding. It never mutates state.
func verifyToken(secret SecretSource, clk clock.Clock, componentID string, token *RegistrationToken) error {
	if token == nil {
		return errs.New(component, "verify_token", errs.Unauthenticated, "token is nil")
	}
	if token.ComponentID != componentID {
		return errs.New(component, "verify_token", errs.Unauthenticated, "token component_id mismatch")
	}

	payload, err := canonicalPayload(token.ComponentID, token.TokenID, token.IssuedAt, token.ExpiresAt)
	if err != nil {
		return errs.New(component, "verify_token", errs.Internal, "encode token payload").WithCause(err)
	}
	expected := sign(secret.Secret(), payload)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(token.Signature)) != 1 {
		return errs.New(component, "verify_token", errs.Unauthenticated, "signature mismatch")
	}

	now := clk.Now()
	if now.After(token.ExpiresAt) {
		return errs.New(component, "verify_token", errs.Unauthenticated, "token expired")
	}
	return nil
}
