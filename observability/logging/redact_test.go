package logging

import "testing"

func TestMaskFieldRedactsSensitiveKeys(t *testing.T) {
	attr := MaskField("authority_key", "deadbeef")
	if attr.Value.String() != RedactedValue {
		t.Fatalf("sensitive key leaked: %s", attr.Value.String())
	}
	attr = MaskField("account", "grid1xyz")
	if attr.Value.String() != "grid1xyz" {
		t.Fatalf("allowlisted key masked: %s", attr.Value.String())
	}
	attr = MaskField("token", "")
	if attr.Value.String() != "" {
		t.Fatal("empty values should pass through unchanged")
	}
}

func TestRedactionAllowlistStable(t *testing.T) {
	keys := RedactionAllowlist()
	if len(keys) == 0 {
		t.Fatal("allowlist must not be empty")
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("allowlist not sorted at %d: %s >= %s", i, keys[i-1], keys[i])
		}
	}
	for _, key := range keys {
		if !IsAllowlisted(key) {
			t.Fatalf("allowlisted key %s not recognised", key)
		}
	}
}
