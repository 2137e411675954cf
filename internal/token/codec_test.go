package token

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/famomatic/streamgate/internal/catalog"
)

func newTestCodec(t *testing.T, now func() time.Time) *Codec {
	t.Helper()
	codec, err := NewCodec(Config{Secret: []byte("test-secret"), Now: now})
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	return codec
}

func TestIssueValidate_RoundTrip(t *testing.T) {
	codec := newTestCodec(t, nil)

	refs := []catalog.ContentRef{
		{Type: catalog.TypeMovie, ID: 1},
		{Type: catalog.TypeEpisode, ID: 42},
		{Type: catalog.TypeChannel, ID: 9000},
	}
	for _, ref := range refs {
		tok, err := codec.Issue(ref, "user-7")
		if err != nil {
			t.Fatalf("Issue(%v) error = %v", ref, err)
		}
		payload, err := codec.Validate(tok)
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if payload.Ref() != ref {
			t.Errorf("payload ref = %v, want %v", payload.Ref(), ref)
		}
		if payload.UserID != "user-7" {
			t.Errorf("payload user = %q, want %q", payload.UserID, "user-7")
		}
	}
}

func TestValidate_TamperedPayload(t *testing.T) {
	codec := newTestCodec(t, nil)

	tok, err := codec.Issue(catalog.ContentRef{Type: catalog.TypeMovie, ID: 5}, "u")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	encoded, sig, _ := strings.Cut(tok, ".")
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}

	// Flip one byte at every position; all variants must be rejected.
	for i := range raw {
		mutated := append([]byte(nil), raw...)
		mutated[i] ^= 0x01
		bad := base64.RawURLEncoding.EncodeToString(mutated) + "." + sig
		if _, err := codec.Validate(bad); !errors.Is(err, ErrBadSignature) {
			t.Fatalf("Validate(tampered byte %d) error = %v, want ErrBadSignature", i, err)
		}
	}
}

func TestValidate_Expired(t *testing.T) {
	clock := time.Now()
	codec := newTestCodec(t, func() time.Time { return clock })

	tok, err := codec.Issue(catalog.ContentRef{Type: catalog.TypeChannel, ID: 3}, "u")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	clock = clock.Add(DefaultLifetime + time.Minute)
	if _, err := codec.Validate(tok); !errors.Is(err, ErrExpired) {
		t.Fatalf("Validate(expired) error = %v, want ErrExpired", err)
	}
}

func TestValidate_Malformed(t *testing.T) {
	codec := newTestCodec(t, nil)

	for _, tok := range []string{"", "nodot", "a.b.c!", "%%%.sig"} {
		if _, err := codec.Validate(tok); !errors.Is(err, ErrMalformed) && !errors.Is(err, ErrBadSignature) {
			t.Errorf("Validate(%q) error = %v, want malformed or bad signature", tok, err)
		}
	}
}

func TestValidate_DifferentSecret(t *testing.T) {
	issuer := newTestCodec(t, nil)
	verifier, err := NewCodec(Config{Secret: []byte("other-secret")})
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	tok, err := issuer.Issue(catalog.ContentRef{Type: catalog.TypeMovie, ID: 1}, "u")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := verifier.Validate(tok); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("Validate(cross-secret) error = %v, want ErrBadSignature", err)
	}
}

func TestNewCodec_RequiresSecret(t *testing.T) {
	if _, err := NewCodec(Config{}); err == nil {
		t.Fatal("NewCodec(empty secret) error = nil, want error")
	}
}
