// Package token issues and validates the signed capability tokens that gate
// every relay request. A token is self-contained: possession plus a valid
// signature plus non-expiry is the whole authorization check, so the relay
// needs no shared session state and scales horizontally.
//
// Tokens are replayable until expiry and cannot be revoked early. That is
// deliberate: adaptive-quality playback re-requests manifests and segments
// with the same token, and the short default lifetime bounds the exposure.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/famomatic/streamgate/internal/catalog"
)

var (
	// ErrMalformed indicates the token could not be decoded at all.
	ErrMalformed = errors.New("malformed token")
	// ErrBadSignature indicates the payload does not match its signature.
	ErrBadSignature = errors.New("bad token signature")
	// ErrExpired indicates a correctly signed token past its expiry.
	ErrExpired = errors.New("token expired")
)

// DefaultLifetime is the token validity window used when Config.Lifetime is
// zero.
const DefaultLifetime = 15 * time.Minute

// Payload is the signed content of a capability token.
type Payload struct {
	ContentType catalog.ContentType `json:"ct"`
	ContentID   int64               `json:"cid"`
	UserID      string              `json:"uid"`
	Expiry      int64               `json:"exp"`
}

// Ref returns the content reference the token grants access to.
func (p Payload) Ref() catalog.ContentRef {
	return catalog.ContentRef{Type: p.ContentType, ID: p.ContentID}
}

// Config holds codec construction parameters.
type Config struct {
	// Secret is the server-held signing key. Required.
	Secret []byte

	// Lifetime is the validity window of issued tokens.
	// If zero, DefaultLifetime is used.
	Lifetime time.Duration

	// Now overrides the clock. If nil, time.Now is used.
	Now func() time.Time
}

// Codec issues and validates capability tokens with a fixed secret.
type Codec struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

// NewCodec creates a Codec. The secret must be non-empty.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret must not be empty")
	}
	lifetime := cfg.Lifetime
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Codec{secret: cfg.Secret, lifetime: lifetime, now: now}, nil
}

// Issue mints a token granting userID access to ref until the configured
// lifetime elapses. Pure function of payload and secret; no state is touched.
func (c *Codec) Issue(ref catalog.ContentRef, userID string) (string, error) {
	payload := Payload{
		ContentType: ref.Type,
		ContentID:   ref.ID,
		UserID:      userID,
		Expiry:      c.now().Add(c.lifetime).Unix(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(raw)
	return encoded + "." + c.sign(raw), nil
}

// Validate decodes a token, verifies its signature in constant time and
// checks expiry. On success the original payload is returned.
func (c *Codec) Validate(tok string) (Payload, error) {
	encoded, sig, ok := strings.Cut(tok, ".")
	if !ok {
		return Payload{}, ErrMalformed
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Payload{}, ErrMalformed
	}
	if !hmac.Equal([]byte(c.sign(raw)), []byte(sig)) {
		return Payload{}, ErrBadSignature
	}
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Payload{}, ErrMalformed
	}
	if payload.Expiry < c.now().Unix() {
		return Payload{}, ErrExpired
	}
	return payload, nil
}

func (c *Codec) sign(raw []byte) string {
	h := hmac.New(sha256.New, c.secret)
	_, _ = h.Write(raw)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
