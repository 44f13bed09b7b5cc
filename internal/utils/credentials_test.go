package utils

import (
	"errors"
	"strings"
	"testing"

	"idle_engine/internal/model"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestSealOpenCredentials(t *testing.T) {
	in := model.SessionCredentials{SID: "abc123", SLS: "76561198000000000%7C%7Ctoken", SMA: "machine"}
	sealed, err := SealCredentials(testKey, in)
	if err != nil {
		t.Fatalf("SealCredentials: %v", err)
	}
	if sealed.SID == in.SID || strings.Count(sealed.SLS, ":") != 2 {
		t.Fatalf("credentials not sealed: %+v", sealed)
	}
	out, err := OpenCredentials(testKey, sealed)
	if err != nil {
		t.Fatalf("OpenCredentials: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}
}

func TestOpenRejectsTamperedValue(t *testing.T) {
	sealed, err := Seal(testKey, "secret")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	parts := strings.Split(sealed, ":")
	parts[2] = strings.Repeat("0", len(parts[2]))
	if _, err := Open(testKey, strings.Join(parts, ":")); err == nil {
		t.Fatalf("expected authentication failure")
	}
	if _, err := Open(testKey, "nope"); err == nil {
		t.Fatalf("expected format error")
	}
}

func TestSealRequiresKey(t *testing.T) {
	if _, err := Seal("", "x"); !errors.Is(err, ErrNoCredentialsKey) {
		t.Fatalf("expected ErrNoCredentialsKey, got %v", err)
	}
}
