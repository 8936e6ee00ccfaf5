package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"codesign/pkg/interfaces"
	"codesign/pkg/types"
)

// claims is the signed body of a capability token.
type claims struct {
	UserID    string     `json:"user_id"`
	Name      string     `json:"name"`
	Role      types.Role `json:"role"`
	ExpiresAt int64      `json:"exp"`
}

// HMACVerifier verifies and mints capability tokens of the form
// base64url(claims JSON) + "." + base64url(HMAC-SHA256 signature).
// ARCHITECTURAL DISCOVERY: Tokens are self-contained so connection handling
// never needs an auth service round-trip on the connect path.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier creates a verifier with the shared signing secret.
func NewHMACVerifier(secret string) (*HMACVerifier, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("token secret must be at least 16 bytes")
	}
	return &HMACVerifier{secret: []byte(secret)}, nil
}

// Verify implements interfaces.TokenVerifier.
func (v *HMACVerifier) Verify(token string) (*types.Identity, error) {
	body, sig, found := strings.Cut(token, ".")
	if !found {
		return nil, interfaces.ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, interfaces.ErrInvalidToken
	}
	signature, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return nil, interfaces.ErrInvalidToken
	}

	if !hmac.Equal(signature, v.sign(payload)) {
		return nil, interfaces.ErrInvalidToken
	}

	var c claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, interfaces.ErrInvalidToken
	}

	if c.ExpiresAt > 0 && time.Now().Unix() > c.ExpiresAt {
		return nil, interfaces.ErrTokenExpired
	}

	identity := &types.Identity{
		UserID: c.UserID,
		Name:   c.Name,
		Role:   c.Role,
	}
	if err := identity.Validate(); err != nil {
		return nil, interfaces.ErrInvalidToken
	}
	return identity, nil
}

// Issue mints a token for an identity, valid for the given duration. Zero
// duration issues a token without expiry, used by long-running study setups.
func (v *HMACVerifier) Issue(identity *types.Identity, validFor time.Duration) (string, error) {
	if err := identity.Validate(); err != nil {
		return "", err
	}

	c := claims{
		UserID: identity.UserID,
		Name:   identity.Name,
		Role:   identity.Role,
	}
	if validFor > 0 {
		c.ExpiresAt = time.Now().Add(validFor).Unix()
	}

	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}

	body := base64.RawURLEncoding.EncodeToString(payload)
	sig := base64.RawURLEncoding.EncodeToString(v.sign(payload))
	return body + "." + sig, nil
}

func (v *HMACVerifier) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return mac.Sum(nil)
}
