package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// rpcRequest is a JSON-RPC 1.0 request frame, the dialect bitcoind's
// RPC server speaks.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// rpcError is the error object a JSON-RPC response carries on failure.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// rpcResponse is a JSON-RPC response frame.
type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	ID     uint64          `json:"id"`
}

// RPCClient is a minimal JSON-RPC 1.0 HTTP client for a Bitcoin node,
// authenticating either with a static username/password or a cookie
// file whose contents ("user:password") are re-read on each call so a
// node restart that rotates the cookie is transparently picked up.
type RPCClient struct {
	endpoint   string
	httpClient *http.Client

	user, pass string
	cookiePath string

	nextID atomic.Uint64
}

// NewRPCClient builds a client against endpoint using static
// credentials.
func NewRPCClient(endpoint, user, pass string, timeout time.Duration) *RPCClient {
	return &RPCClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		user:       user,
		pass:       pass,
	}
}

// NewRPCClientWithCookie builds a client against endpoint that resolves
// credentials from cookiePath on every request.
func NewRPCClientWithCookie(endpoint, cookiePath string, timeout time.Duration) *RPCClient {
	return &RPCClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		cookiePath: cookiePath,
	}
}

// EndpointLabel returns the configured endpoint, for status/log lines.
func (c *RPCClient) EndpointLabel() string {
	return c.endpoint
}

func (c *RPCClient) credentials() (string, string, error) {
	if c.cookiePath == "" {
		return c.user, c.pass, nil
	}

	raw, err := os.ReadFile(c.cookiePath)
	if err != nil {
		return "", "", fmt.Errorf("read rpc cookie %s: %w", c.cookiePath, err)
	}

	user, pass, ok := strings.Cut(strings.TrimSpace(string(raw)), ":")
	if !ok {
		return "", "", fmt.Errorf("malformed rpc cookie at %s", c.cookiePath)
	}
	return user, pass, nil
}

// callCtx issues a single JSON-RPC request and decodes result into out
// (which may be nil when the caller doesn't need the result).
func (c *RPCClient) callCtx(ctx context.Context, method string, params []any, out any) error {
	user, pass, err := c.credentials()
	if err != nil {
		return err
	}

	id := c.nextID.Add(1)
	body, err := fastJSONMarshal(rpcRequest{JSONRPC: "1.0", ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("encode rpc request %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build rpc request %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(user, pass)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpc %s: %w", method, err)
	}
	defer resp.Body.Close()

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode rpc response for %s (http %d): %w", method, resp.StatusCode, err)
	}

	if decoded.Error != nil {
		return decoded.Error
	}

	if out != nil && len(decoded.Result) > 0 {
		if err := fastJSONUnmarshal(decoded.Result, out); err != nil {
			return fmt.Errorf("decode rpc result for %s: %w", method, err)
		}
	}

	return nil
}

// GetBlockTemplate calls getblocktemplate with the standard Stratum pool
// capability/rule set.
func (c *RPCClient) GetBlockTemplate(ctx context.Context, rules []string) (*GetBlockTemplateResult, error) {
	params := map[string]any{
		"capabilities": []string{"coinbasetxn", "workid", "coinbase/append"},
		"rules":        rules,
	}

	var out GetBlockTemplateResult
	if err := c.callCtx(ctx, "getblocktemplate", []any{params}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitBlock calls submitblock with a fully serialized, hex-encoded
// block.
func (c *RPCClient) SubmitBlock(ctx context.Context, blockHex string) (string, error) {
	var out *string
	if err := c.callCtx(ctx, "submitblock", []any{blockHex}, &out); err != nil {
		return "", err
	}
	if out == nil {
		return "", nil
	}
	return *out, nil
}

// GetBestBlockHash calls getbestblockhash.
func (c *RPCClient) GetBestBlockHash(ctx context.Context) (string, error) {
	var out string
	if err := c.callCtx(ctx, "getbestblockhash", nil, &out); err != nil {
		return "", err
	}
	return out, nil
}

// GetBlockHeader calls getblockheader(hash, verbose=true) and returns
// the raw JSON for the caller to decode the fields it needs.
func (c *RPCClient) GetBlockHeader(ctx context.Context, hash string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.callCtx(ctx, "getblockheader", []any{hash, true}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetBlockchainInfo calls getblockchaininfo, used at startup to log the
// node's chain and to seed the initial network difficulty/height. The
// chain is not compared against the configured network.
func (c *RPCClient) GetBlockchainInfo(ctx context.Context) (*BlockchainInfo, error) {
	var out BlockchainInfo
	if err := c.callCtx(ctx, "getblockchaininfo", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BlockchainInfo mirrors the subset of getblockchaininfo's fields this
// process needs.
type BlockchainInfo struct {
	Chain                string  `json:"chain"`
	Blocks               int64   `json:"blocks"`
	BestBlockHash        string  `json:"bestblockhash"`
	Difficulty           float64 `json:"difficulty"`
	InitialBlockDownload bool    `json:"initialblockdownload"`
}

// gbtRules returns the getblocktemplate rule set, adjusting for signet.
func gbtRules(networkName string) []string {
	rules := []string{"segwit"}
	if networkName == "signet" {
		rules = append(rules, "signet")
	}
	return rules
}
