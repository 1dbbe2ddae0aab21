package settled

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"gridsettle/crypto"
	"gridsettle/ledger"
	"gridsettle/settlement"
	"gridsettle/storage"
)

// stubLedger settles everything against an in-memory account set.
type stubLedger struct {
	submits atomic.Int64
}

func (s *stubLedger) AccountExists(context.Context, string) (bool, error) {
	return true, nil
}

func (s *stubLedger) CreateAccount(_ context.Context, addr string) (ledger.Account, error) {
	return ledger.Account{Address: addr, Created: true}, nil
}

func (s *stubLedger) SubmitTransaction(context.Context, *ledger.SignedTx) (string, error) {
	return fmt.Sprintf("0xtx%d", s.submits.Add(1)), nil
}

var serverTestSeq int

func newTestServer(t *testing.T) (*Server, *stubLedger) {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	client := &stubLedger{}
	engine, err := settlement.NewEngine(client, key, settlement.Config{
		MaxGroupItems:      64,
		MaxGroupAmount:     1_000_000_000,
		MaxBatchClaims:     4,
		BaseFee:            5000,
		AccountCreationFee: 1000,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	serverTestSeq++
	store, err := storage.Open(fmt.Sprintf("file:settled_api_test_%d?mode=memory&cache=shared", serverTestSeq))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewServer(engine, store, "test-token", nil), client
}

func apiRequest(t *testing.T, srv *Server, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func testClaims(t *testing.T, n int) []settlement.MintClaim {
	t.Helper()
	claims := make([]settlement.MintClaim, 0, n)
	for i := 0; i < n; i++ {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		claims = append(claims, settlement.MintClaim{
			ID:        uuid.New(),
			Recipient: fmt.Sprintf("meter-%d", i),
			Account:   key.PubKey().Address().String(),
			Amount:    uint64(100 * (i + 1)),
		})
	}
	return claims
}

func TestServerRequiresBearerToken(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := apiRequest(t, srv, http.MethodPost, "/v1/settlements", settleRequest{}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", rec.Code)
	}
	rec = apiRequest(t, srv, http.MethodPost, "/v1/settlements", settleRequest{}, "wrong-token")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", rec.Code)
	}
	// Health stays open.
	rec = apiRequest(t, srv, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status %d, want 200", rec.Code)
	}
}

func TestServerSettleAndFetchRun(t *testing.T) {
	srv, client := newTestServer(t)
	claims := testClaims(t, 2)

	rec := apiRequest(t, srv, http.MethodPost, "/v1/settlements", settleRequest{Claims: claims}, "test-token")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp settleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Outcomes) != 2 || resp.Settled != 2 || resp.Failed != 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if client.submits.Load() != 2 {
		t.Fatalf("submitted %d transactions, want 2", client.submits.Load())
	}
	if resp.Estimate.Groups != 2 {
		t.Fatalf("estimate groups %d, want 2", resp.Estimate.Groups)
	}

	rec = apiRequest(t, srv, http.MethodGet, "/v1/settlements/"+resp.RunID.String(), nil, "test-token")
	if rec.Code != http.StatusOK {
		t.Fatalf("fetch run status %d: %s", rec.Code, rec.Body.String())
	}
	var fetched runResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if fetched.Run.ClaimCount != 2 || fetched.Run.SettledClaims != 2 {
		t.Fatalf("unexpected run record: %+v", fetched.Run)
	}
	if len(fetched.Outcomes) != 2 {
		t.Fatalf("run outcomes %d, want 2", len(fetched.Outcomes))
	}
}

func TestServerSettleEmptyBatch(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := apiRequest(t, srv, http.MethodPost, "/v1/settlements", settleRequest{}, "test-token")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestServerSettleBatchTooLarge(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := apiRequest(t, srv, http.MethodPost, "/v1/settlements", settleRequest{Claims: testClaims(t, 5)}, "test-token")
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status %d, want 413", rec.Code)
	}
	var body struct {
		Size int `json:"size"`
		Max  int `json:"max"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Size != 5 || body.Max != 4 {
		t.Fatalf("unexpected bounds: %+v", body)
	}
}

func TestServerEstimate(t *testing.T) {
	srv, client := newTestServer(t)
	rec := apiRequest(t, srv, http.MethodPost, "/v1/settlements/estimate", settleRequest{Claims: testClaims(t, 2)}, "test-token")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var estimate settlement.FeeEstimate
	if err := json.Unmarshal(rec.Body.Bytes(), &estimate); err != nil {
		t.Fatalf("decode estimate: %v", err)
	}
	// (5000 + 1000*2) * 2
	if estimate.TotalFeeUnits != 14_000 {
		t.Fatalf("total %d, want 14000", estimate.TotalFeeUnits)
	}
	if client.submits.Load() != 0 {
		t.Fatal("estimate must not submit transactions")
	}
}

func TestServerRunNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := apiRequest(t, srv, http.MethodGet, "/v1/settlements/"+uuid.NewString(), nil, "test-token")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
	rec = apiRequest(t, srv, http.MethodGet, "/v1/settlements/not-a-uuid", nil, "test-token")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestServerClaimHistory(t *testing.T) {
	srv, _ := newTestServer(t)
	claims := testClaims(t, 1)
	rec := apiRequest(t, srv, http.MethodPost, "/v1/settlements", settleRequest{Claims: claims}, "test-token")
	if rec.Code != http.StatusOK {
		t.Fatalf("settle status %d", rec.Code)
	}
	rec = apiRequest(t, srv, http.MethodGet, "/v1/claims/"+claims[0].ID.String()+"/history", nil, "test-token")
	if rec.Code != http.StatusOK {
		t.Fatalf("history status %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Attempts []storage.OutcomeRecord `json:"attempts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(body.Attempts) != 1 || body.Attempts[0].ClaimID != claims[0].ID {
		t.Fatalf("unexpected history: %+v", body.Attempts)
	}
}

func TestServerStatistics(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := apiRequest(t, srv, http.MethodPost, "/v1/settlements", settleRequest{Claims: testClaims(t, 2)}, "test-token")
	if rec.Code != http.StatusOK {
		t.Fatalf("settle status %d", rec.Code)
	}
	rec = apiRequest(t, srv, http.MethodGet, "/v1/statistics", nil, "test-token")
	if rec.Code != http.StatusOK {
		t.Fatalf("statistics status %d: %s", rec.Code, rec.Body.String())
	}
	var stats storage.Statistics
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode statistics: %v", err)
	}
	if stats.TotalRuns != 1 || stats.SettledClaims != 2 {
		t.Fatalf("unexpected statistics: %+v", stats)
	}
}
