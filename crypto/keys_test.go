package crypto

import (
	"bytes"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	encoded := addr.String()
	if encoded == "" {
		t.Fatal("empty encoded address")
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Prefix() != GridPrefix {
		t.Fatalf("prefix %s, want %s", decoded.Prefix(), GridPrefix)
	}
	if !bytes.Equal(decoded.Bytes(), addr.Bytes()) {
		t.Fatal("decoded payload does not match original")
	}
}

func TestValidateAccountAddress(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	account := key.PubKey().Address().String()
	if err := ValidateAccountAddress(account); err != nil {
		t.Fatalf("valid account rejected: %v", err)
	}

	authority, err := NewAddress(AuthorityPrefix, addressBytes(t, key))
	if err != nil {
		t.Fatalf("build authority address: %v", err)
	}
	if err := ValidateAccountAddress(authority.String()); err == nil {
		t.Fatal("authority-prefixed address must not pass as settlement account")
	}

	if err := ValidateAccountAddress("garbage"); err == nil {
		t.Fatal("expected error for malformed address")
	}
	if err := ValidateAccountAddress(""); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func TestPrivateKeyBytesRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore key: %v", err)
	}
	if restored.PubKey().Address().String() != key.PubKey().Address().String() {
		t.Fatal("restored key derives a different address")
	}
}

func TestSignRequiresDigestLength(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if _, err := key.Sign(make([]byte, 31)); err == nil {
		t.Fatal("expected error for short digest")
	}
	sig, err := key.Sign(make([]byte, 32))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length %d, want 65", len(sig))
	}
}

func addressBytes(t *testing.T, key *PrivateKey) []byte {
	t.Helper()
	return key.PubKey().Address().Bytes()
}
