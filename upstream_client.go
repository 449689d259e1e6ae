package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// upstreamPendingLimit bounds outstanding upstream requests awaiting a
// response; beyond this, new submits are rejected rather than queued
// unboundedly against a slow or wedged upstream.
const upstreamPendingLimit = 4096

// upstreamVersionRollingMask is the mask this process asks an upstream
// pool to grant for version-rolling, matching the ASICBoost-compatible
// range most pools already support.
const upstreamVersionRollingMask = Version(0x1fffe000)

// UpstreamEventKind distinguishes the variants of UpstreamEvent.
type UpstreamEventKind int

const (
	UpstreamSetDifficulty UpstreamEventKind = iota
	UpstreamNotify
	UpstreamDisconnected
)

// UpstreamEvent is a server-initiated message from the upstream pool,
// or a synthetic disconnect signal.
type UpstreamEvent struct {
	Kind       UpstreamEventKind
	Difficulty Difficulty
	Notify     *UpstreamWorkbase
}

type pendingUpstreamRequest struct {
	result   chan rawUpstreamResult
	deadline time.Time
}

type rawUpstreamResult struct {
	result json.RawMessage
	err    *StratumError
}

// UpstreamClient is a persistent Stratum V1 client to an upstream pool,
// used in proxy mode. A reader goroutine owns the read side of the TCP
// connection; callers write requests through Configure/Subscribe/
// Authorize/Submit, serialized under a mutex, and receive
// server-initiated notifications on an Events channel.
type UpstreamClient struct {
	conn   net.Conn
	writer *bufio.Writer

	idCounter atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]*pendingUpstreamRequest

	Events chan UpstreamEvent

	enonce1     Extranonce
	enonce2Size int
	versionMask *Version

	currentDiff atomic.Value // Difficulty
}

// DialUpstream connects to address with the given timeout and starts the
// reader loop. The caller must still call Configure/Subscribe/Authorize
// before the connection is usable for work.
func DialUpstream(ctx context.Context, address string, timeout time.Duration) (*UpstreamClient, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial upstream %s: %w", address, err)
	}

	c := &UpstreamClient{
		conn:    conn,
		writer:  bufio.NewWriter(conn),
		pending: make(map[uint64]*pendingUpstreamRequest),
		Events:  make(chan UpstreamEvent, 64),
	}
	c.currentDiff.Store(DifficultyFromFloat(1.0))

	go c.readLoop()
	go c.evictExpiredLoop()

	return c, nil
}

// Difficulty returns the upstream's most recently announced session
// difficulty.
func (c *UpstreamClient) Difficulty() Difficulty {
	return c.currentDiff.Load().(Difficulty)
}

// Enonce1 and Enonce2Size return the values assigned by the upstream's
// mining.subscribe response.
func (c *UpstreamClient) Enonce1() Extranonce { return c.enonce1 }
func (c *UpstreamClient) Enonce2Size() int    { return c.enonce2Size }

func (c *UpstreamClient) readLoop() {
	defer close(c.Events)

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, maxStratumLineBytes), maxStratumLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var frame StratumRequest
		if err := fastJSONUnmarshal(line, &frame); err == nil && frame.Method != "" {
			c.handleServerFrame(frame)
			continue
		}

		var resp struct {
			ID     uint64          `json:"id"`
			Result json.RawMessage `json:"result"`
			Error  *[3]any         `json:"error"`
		}
		if err := fastJSONUnmarshal(line, &resp); err != nil {
			logger.Warn("upstream sent unparseable frame", "error", err)
			continue
		}

		c.mu.Lock()
		pending, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()

		if !ok {
			continue
		}

		result := rawUpstreamResult{result: resp.Result}
		if resp.Error != nil {
			code, _ := (*resp.Error)[0].(float64)
			msg, _ := (*resp.Error)[1].(string)
			se := newStratumError(int(code), msg)
			result.err = &se
		}
		pending.result <- result
	}

	c.Events <- UpstreamEvent{Kind: UpstreamDisconnected}
}

func (c *UpstreamClient) handleServerFrame(frame StratumRequest) {
	switch frame.Method {
	case "mining.set_difficulty":
		var params []float64
		if err := fastJSONUnmarshal(frame.Params, &params); err != nil || len(params) < 1 {
			return
		}
		diff := DifficultyFromFloat(params[0])
		c.currentDiff.Store(diff)
		c.Events <- UpstreamEvent{Kind: UpstreamSetDifficulty, Difficulty: diff}

	case "mining.notify":
		var params []json.RawMessage
		if err := fastJSONUnmarshal(frame.Params, &params); err != nil || len(params) < 9 {
			return
		}
		wb, err := parseUpstreamNotify(params)
		if err != nil {
			logger.Warn("upstream notify parse failed", "error", err)
			return
		}
		c.Events <- UpstreamEvent{Kind: UpstreamNotify, Notify: wb}
	}
}

func parseUpstreamNotify(params []json.RawMessage) (*UpstreamWorkbase, error) {
	var jobID, prevHash, coinb1, coinb2, versionHex, nbitsHex, ntimeHex string
	var branchHex []string
	var clean bool

	if err := fastJSONUnmarshal(params[0], &jobID); err != nil {
		return nil, err
	}
	if err := fastJSONUnmarshal(params[1], &prevHash); err != nil {
		return nil, err
	}
	if err := fastJSONUnmarshal(params[2], &coinb1); err != nil {
		return nil, err
	}
	if err := fastJSONUnmarshal(params[3], &coinb2); err != nil {
		return nil, err
	}
	if err := fastJSONUnmarshal(params[4], &branchHex); err != nil {
		return nil, err
	}
	if err := fastJSONUnmarshal(params[5], &versionHex); err != nil {
		return nil, err
	}
	if err := fastJSONUnmarshal(params[6], &nbitsHex); err != nil {
		return nil, err
	}
	if err := fastJSONUnmarshal(params[7], &ntimeHex); err != nil {
		return nil, err
	}
	if err := fastJSONUnmarshal(params[8], &clean); err != nil {
		return nil, err
	}

	version, err := VersionFromHex(versionHex)
	if err != nil {
		return nil, err
	}
	nbits, err := NbitsFromHex(nbitsHex)
	if err != nil {
		return nil, err
	}
	ntime, err := NtimeFromHex(ntimeHex)
	if err != nil {
		return nil, err
	}
	prevHashNode, err := prevHashFromStratumWire(prevHash)
	if err != nil {
		return nil, err
	}

	branches := make([]MerkleNode, len(branchHex))
	for i, h := range branchHex {
		node, err := chainhash.NewHashFromStr(h)
		if err != nil {
			return nil, err
		}
		branches[i] = *node
	}

	return &UpstreamWorkbase{
		JobIDHex:      jobID,
		Coinb1:        coinb1,
		Coinb2:        coinb2,
		Branches:      branches,
		WireVersion:   version,
		WireNbits:     nbits,
		WireNtime:     ntime,
		PrevBlockHash: prevHashNode,
		Clean:         clean,
	}, nil
}

func (c *UpstreamClient) send(method string, params []any) (uint64, chan rawUpstreamResult, error) {
	id := c.idCounter.Add(1)

	c.mu.Lock()
	if len(c.pending) >= upstreamPendingLimit {
		c.mu.Unlock()
		return 0, nil, fmt.Errorf("too many pending upstream requests")
	}
	resultCh := make(chan rawUpstreamResult, 1)
	c.pending[id] = &pendingUpstreamRequest{result: resultCh, deadline: time.Now().Add(30 * time.Second)}
	c.mu.Unlock()

	body, err := fastJSONMarshal(map[string]any{"id": id, "method": method, "params": params})
	if err != nil {
		return 0, nil, fmt.Errorf("encode %s: %w", method, err)
	}
	body = append(body, '\n')

	c.mu.Lock()
	_, werr := c.writer.Write(body)
	if werr == nil {
		werr = c.writer.Flush()
	}
	c.mu.Unlock()

	if werr != nil {
		return 0, nil, fmt.Errorf("write %s: %w", method, werr)
	}

	return id, resultCh, nil
}

func (c *UpstreamClient) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	_, resultCh, err := c.send(method, params)
	if err != nil {
		return nil, err
	}

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, res.err
		}
		return res.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Configure negotiates version-rolling with the upstream.
func (c *UpstreamClient) Configure(ctx context.Context) error {
	result, err := c.call(ctx, "mining.configure", []any{
		[]string{"version-rolling"},
		map[string]any{"version-rolling.mask": upstreamVersionRollingMask.Hex()},
	})
	if err != nil {
		return fmt.Errorf("upstream configure: %w", err)
	}

	var decoded struct {
		VersionRolling     bool   `json:"version-rolling"`
		VersionRollingMask string `json:"version-rolling.mask"`
	}
	if err := fastJSONUnmarshal(result, &decoded); err == nil && decoded.VersionRolling && decoded.VersionRollingMask != "" {
		if mask, err := VersionFromHex(decoded.VersionRollingMask); err == nil {
			c.versionMask = &mask
		}
	}

	return nil
}

// Subscribe performs mining.subscribe, recording the assigned enonce1
// and enonce2_size.
func (c *UpstreamClient) Subscribe(ctx context.Context, userAgent string) error {
	result, err := c.call(ctx, "mining.subscribe", []any{userAgent})
	if err != nil {
		return fmt.Errorf("upstream subscribe: %w", err)
	}

	var decoded [3]json.RawMessage
	if err := fastJSONUnmarshal(result, &decoded); err != nil {
		return fmt.Errorf("decode subscribe result: %w", err)
	}

	var enonce1Hex string
	if err := fastJSONUnmarshal(decoded[1], &enonce1Hex); err != nil {
		return fmt.Errorf("decode subscribe enonce1: %w", err)
	}
	enonce1, err := ExtranonceFromHex(enonce1Hex)
	if err != nil {
		return fmt.Errorf("decode subscribe enonce1 hex: %w", err)
	}

	var enonce2Size int
	if err := fastJSONUnmarshal(decoded[2], &enonce2Size); err != nil {
		return fmt.Errorf("decode subscribe enonce2_size: %w", err)
	}

	c.enonce1 = enonce1
	c.enonce2Size = enonce2Size
	return nil
}

// Authorize performs mining.authorize against the upstream.
func (c *UpstreamClient) Authorize(ctx context.Context, username, password string) error {
	if password == "" {
		password = "x"
	}
	_, err := c.call(ctx, "mining.authorize", []any{username, password})
	if err != nil {
		return fmt.Errorf("upstream authorize: %w", err)
	}
	return nil
}

// Submit forwards a share to the upstream fire-and-forget; a rejection is
// logged at debug level, responses are not counted, and nothing is
// propagated to the downstream miner.
func (c *UpstreamClient) Submit(username, jobIDHex string, enonce2 Extranonce, ntime Ntime, nonce Nonce, versionBits *Version) {
	params := []any{username, jobIDHex, enonce2.Hex(), ntime.Hex(), nonce.Hex()}
	if versionBits != nil {
		params = append(params, versionBits.Hex())
	}

	_, resultCh, err := c.send("mining.submit", params)
	if err != nil {
		logger.Warn("upstream submit failed to send", "error", err)
		return
	}

	go func() {
		select {
		case res := <-resultCh:
			if res.err != nil {
				logger.Debug("upstream rejected forwarded share", "error", res.err)
			}
		case <-time.After(30 * time.Second):
		}
	}()
}

func (c *UpstreamClient) evictExpiredLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()

		c.mu.Lock()
		for id, p := range c.pending {
			if now.After(p.deadline) {
				delete(c.pending, id)
				select {
				case p.result <- rawUpstreamResult{err: &StratumError{Code: -1, Message: "request expired"}}:
				default:
				}
			}
		}
		remaining := len(c.pending)
		c.mu.Unlock()

		if remaining == 0 && c.conn == nil {
			return
		}
	}
}

// Close terminates the upstream connection.
func (c *UpstreamClient) Close() error {
	return c.conn.Close()
}
