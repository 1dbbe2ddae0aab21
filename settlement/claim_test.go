package settlement

import (
	"math"
	"testing"

	"github.com/google/uuid"

	"gridsettle/crypto"
)

func testAddress(t *testing.T) string {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key.PubKey().Address().String()
}

func TestTokensForReading(t *testing.T) {
	cases := []struct {
		kwh  float64
		want uint64
	}{
		{0, 0},
		{1, UnitsPerKWh},
		{2.5, 2_500_000_000},
		{0.000000001, 1},
		{0.0000000019, 1}, // truncates, never rounds up
	}
	for _, tc := range cases {
		got, err := TokensForReading(tc.kwh)
		if err != nil {
			t.Fatalf("convert %v: %v", tc.kwh, err)
		}
		if got != tc.want {
			t.Fatalf("convert %v: got %d, want %d", tc.kwh, got, tc.want)
		}
	}
}

func TestTokensForReadingRejectsBadInput(t *testing.T) {
	for _, kwh := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1), 1e30} {
		if _, err := TokensForReading(kwh); err == nil {
			t.Fatalf("expected error for %v", kwh)
		}
	}
}

func TestClaimValidate(t *testing.T) {
	valid := MintClaim{ID: uuid.New(), Recipient: "meter-1", Account: testAddress(t), Amount: 10}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid claim rejected: %v", err)
	}

	missingID := valid
	missingID.ID = uuid.Nil
	if err := missingID.Validate(); err == nil {
		t.Fatal("expected error for missing id")
	}

	badAccount := valid
	badAccount.Account = "not-an-address"
	if err := badAccount.Validate(); err == nil {
		t.Fatal("expected error for malformed account")
	}

	zeroAmount := valid
	zeroAmount.Amount = 0
	if err := zeroAmount.Validate(); err != nil {
		t.Fatalf("zero amount should pass structural validation: %v", err)
	}
}
