package ledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"gridsettle/observability"
)

// Ledger-side JSON-RPC error codes the client maps onto sentinel errors.
const (
	codeAccountExists = -32021
	codeUnconfirmed   = -32030
)

// RPCClient provides a thin JSON-RPC wrapper over the ledger node HTTP endpoint.
type RPCClient struct {
	url        string
	httpClient *http.Client
	nextID     atomic.Int64
}

// RPCConfig represents the client configuration.
type RPCConfig struct {
	URL     string
	Timeout time.Duration
}

// NewRPCClient constructs a JSON-RPC client targeting the supplied URL.
func NewRPCClient(cfg RPCConfig) *RPCClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RPCClient{
		url: strings.TrimSpace(cfg.URL),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// AccountExists reports whether the ledger holds an account for the address.
func (c *RPCClient) AccountExists(ctx context.Context, addr string) (bool, error) {
	var result struct {
		Exists bool `json:"exists"`
	}
	if err := c.call(ctx, "grid_accountExists", []interface{}{strings.TrimSpace(addr)}, &result); err != nil {
		return false, err
	}
	return result.Exists, nil
}

// CreateAccount provisions a settlement account signed by the node-side
// authority session. A concurrent creation surfaces as ErrAccountExists.
func (c *RPCClient) CreateAccount(ctx context.Context, addr string) (Account, error) {
	trimmed := strings.TrimSpace(addr)
	var result struct {
		Address string `json:"address"`
	}
	if err := c.call(ctx, "grid_createAccount", []interface{}{trimmed}, &result); err != nil {
		return Account{}, err
	}
	created := Account{Address: strings.TrimSpace(result.Address), Created: true}
	if created.Address == "" {
		created.Address = trimmed
	}
	return created, nil
}

// SubmitTransaction posts a signed mint transaction and awaits confirmation
// on the node side. When the node reports acceptance without confirmation the
// hash is returned alongside ErrUnconfirmed.
func (c *RPCClient) SubmitTransaction(ctx context.Context, tx *SignedTx) (string, error) {
	if tx == nil {
		return "", fmt.Errorf("ledger: signed transaction required")
	}
	payload := map[string]interface{}{
		"tx":  tx.Tx,
		"sig": hex.EncodeToString(tx.Signature),
	}
	var result struct {
		TxHash    string `json:"txHash"`
		Confirmed bool   `json:"confirmed"`
	}
	if err := c.call(ctx, "grid_submitMint", []interface{}{payload}, &result); err != nil {
		return "", err
	}
	hash := strings.TrimSpace(result.TxHash)
	if !result.Confirmed {
		return hash, ErrUnconfirmed
	}
	return hash, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, out interface{}) (err error) {
	if c == nil || c.httpClient == nil {
		return fmt.Errorf("ledger: client not configured")
	}
	defer func() { observability.Ledger().RecordCall(method, err) }()
	id := c.nextID.Add(1)
	reqBody := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	buf, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("ledger: decode response: %w", err)
	}
	if rpcResp.Error != nil {
		switch rpcResp.Error.Code {
		case codeAccountExists:
			return ErrAccountExists
		case codeUnconfirmed:
			return ErrUnconfirmed
		}
		return fmt.Errorf("ledger: error %d %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ledger: unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return fmt.Errorf("ledger: empty result")
	}
	return json.Unmarshal(rpcResp.Result, out)
}

var _ Client = (*RPCClient)(nil)
