package security_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/angelmondragon/handmade-market/pkg/config"
	"github.com/angelmondragon/handmade-market/pkg/security"
)

var fastCost = config.PasswordConfig{
	ArgonMemoryKB:    8192,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := security.HashPassword("beeswax-candles", fastCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding %q", hash)
	}

	again, err := security.HashPassword("beeswax-candles", fastCost)
	if err != nil || again == hash {
		t.Fatalf("expected a fresh salt per hash (%v)", err)
	}

	if ok, err := security.VerifyPassword("beeswax-candles", hash); err != nil || !ok {
		t.Fatalf("expected match, got %v (%v)", ok, err)
	}
	if ok, err := security.VerifyPassword("beeswax-candle", hash); err != nil || ok {
		t.Fatalf("expected mismatch, got %v (%v)", ok, err)
	}
	if _, err := security.HashPassword("", fastCost); err == nil {
		t.Fatalf("expected error for empty password")
	}
}

func TestVerifyPasswordRejectsMalformedHashes(t *testing.T) {
	for _, encoded := range []string{
		"not-a-hash",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5",
		"$argon2id$v=16$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5",
		"$argon2id$v=19$m=8192,t=0,p=1$c2FsdHNhbHQ$a2V5a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$a2V5a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$",
	} {
		if _, err := security.VerifyPassword("irrelevant", encoded); !errors.Is(err, security.ErrInvalidHash) {
			t.Fatalf("expected ErrInvalidHash for %q, got %v", encoded, err)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	hash, err := security.HashPassword("beeswax-candles", fastCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if security.NeedsRehash(hash, fastCost) {
		t.Fatalf("hash made with the current cost should be kept")
	}
	stronger := fastCost
	stronger.ArgonTime = 2
	if !security.NeedsRehash(hash, stronger) {
		t.Fatalf("raising the cost should ask for a rehash")
	}
	if !security.NeedsRehash("legacy", fastCost) {
		t.Fatalf("unreadable hashes should be replaced")
	}
}

func TestValidatePassword(t *testing.T) {
	cases := map[string]bool{
		"":        false,
		"      ":  false,
		"abc12":   false,
		"abc123":  true,
		"хурдан1": true,
		"陶器陶器陶器":  true,
	}
	for input, ok := range cases {
		err := security.ValidatePassword(input)
		if ok && err != nil {
			t.Fatalf("ValidatePassword(%q) unexpected error: %v", input, err)
		}
		if !ok && err == nil {
			t.Fatalf("ValidatePassword(%q) expected error", input)
		}
	}
}
