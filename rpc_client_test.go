package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestRPCClient_StaticAuth checks that static credentials are sent as
// basic auth and a successful response round trips through callCtx.
func TestRPCClient_StaticAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "secret" {
			t.Errorf("unexpected basic auth: user=%q pass=%q ok=%v", user, pass, ok)
		}
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		resp := rpcResponse{ID: req.ID, Result: json.RawMessage(`"deadbeef"`)}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewRPCClient(srv.URL, "alice", "secret", 5*time.Second)
	hash, err := client.GetBestBlockHash(context.Background())
	if err != nil {
		t.Fatalf("GetBestBlockHash: %v", err)
	}
	if hash != "deadbeef" {
		t.Fatalf("hash = %q, want deadbeef", hash)
	}
}

// TestRPCClient_CookieReReadPerCall checks that a cookie file's contents
// are re-read on every call, so a node restart that rotates the cookie is
// transparently picked up without restarting this process.
func TestRPCClient_CookieReReadPerCall(t *testing.T) {
	cookiePath := filepath.Join(t.TempDir(), ".cookie")
	if err := os.WriteFile(cookiePath, []byte("user1:pass1"), 0o600); err != nil {
		t.Fatalf("write cookie: %v", err)
	}

	var gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, _ := r.BasicAuth()
		gotUser = user
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(rpcResponse{ID: req.ID, Result: json.RawMessage(`"hash1"`)})
	}))
	defer srv.Close()

	client := NewRPCClientWithCookie(srv.URL, cookiePath, 5*time.Second)
	if _, err := client.GetBestBlockHash(context.Background()); err != nil {
		t.Fatalf("GetBestBlockHash: %v", err)
	}
	if gotUser != "user1" {
		t.Fatalf("first call user = %q, want user1", gotUser)
	}

	if err := os.WriteFile(cookiePath, []byte("user2:pass2"), 0o600); err != nil {
		t.Fatalf("rewrite cookie: %v", err)
	}
	if _, err := client.GetBestBlockHash(context.Background()); err != nil {
		t.Fatalf("GetBestBlockHash after rotation: %v", err)
	}
	if gotUser != "user2" {
		t.Fatalf("second call user = %q, want user2 after cookie rotation", gotUser)
	}
}

// TestRPCClient_PropagatesRPCError checks that a JSON-RPC error object in
// the response is surfaced as a Go error rather than silently ignored.
func TestRPCClient_PropagatesRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		resp := rpcResponse{ID: req.ID, Error: &rpcError{Code: -1, Message: "boom"}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewRPCClient(srv.URL, "u", "p", 5*time.Second)
	if _, err := client.GetBestBlockHash(context.Background()); err == nil {
		t.Fatalf("expected an error from an RPC error response")
	}
}

// TestGBTRules_SignetAddsRule checks the getblocktemplate rule set gains
// the signet rule only for the signet network.
func TestGBTRules_SignetAddsRule(t *testing.T) {
	mainnet := gbtRules("mainnet")
	if len(mainnet) != 1 || mainnet[0] != "segwit" {
		t.Fatalf("mainnet rules = %v, want [segwit]", mainnet)
	}

	signet := gbtRules("signet")
	if len(signet) != 2 || signet[1] != "signet" {
		t.Fatalf("signet rules = %v, want [segwit signet]", signet)
	}
}
