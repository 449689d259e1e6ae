package main

import (
	"bufio"
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ntimeForwardSlackSeconds bounds how far a miner may roll ntime forward
// from the job's own timestamp before a submitted share is rejected as
// out of range.
const ntimeForwardSlackSeconds = 7200

// PoolServices bundles the dependencies a connection needs that are
// shared across every session, independent of pool vs proxy mode.
type PoolServices struct {
	Metatron    *Metatron
	Extranonces Extranonces
	Feed        *WorkbaseFeed

	// Pool-mode only.
	RPC           *RPCClient
	Submissions   *SubmissionWorkerPool
	PayoutAddress btcutil.Address
	CoinbaseTag   string

	// Proxy-mode only.
	Upstream     *UpstreamClient
	UpstreamUser string

	NetworkDiff atomic.Value // Difficulty

	Cfg Config
}

// IsProxy reports whether these services are wired for proxy mode.
func (s *PoolServices) IsProxy() bool {
	return s.Extranonces.IsProxy()
}

// networkDifficulty returns the most recently observed network
// difficulty, used both as a vardiff ceiling and a submit-time
// network-target check.
func (s *PoolServices) networkDifficulty() Difficulty {
	if d, ok := s.NetworkDiff.Load().(Difficulty); ok {
		return d
	}
	return DifficultyFromFloat(1.0)
}

// connection owns one accepted TCP connection end to end: the Stratum
// handshake, the job-push goroutine fed by the shared WorkbaseFeed, and
// mining.submit evaluation.
type connection struct {
	svc  *PoolServices
	conn net.Conn

	writeMu sync.Mutex
	writer  *bufio.Writer

	session *Session

	diffChangePending atomic.Bool
	lastWorkbase      atomic.Value // Workbase
}

// handleConnection runs for the lifetime of one accepted connection. It
// always returns once the connection is closed or ctx is canceled.
func handleConnection(ctx context.Context, svc *PoolServices, conn net.Conn) {
	defer conn.Close()

	enonce1 := svc.Metatron.NextEnonce1()
	startDiff := DifficultyFromFloat(svc.Cfg.StartDifficulty)

	c := &connection{
		svc:     svc,
		conn:    conn,
		writer:  bufio.NewWriter(conn),
		session: NewSession(enonce1, startDiff, svc.Cfg.vardiffWindow(), svc.Cfg.vardiffPeriod()),
	}

	if svc.Cfg.MinDifficulty > 0 || svc.Cfg.MaxDifficulty > 0 {
		var min, max *Difficulty
		if svc.Cfg.MinDifficulty > 0 {
			d := DifficultyFromFloat(svc.Cfg.MinDifficulty)
			min = &d
		}
		if svc.Cfg.MaxDifficulty > 0 {
			d := DifficultyFromFloat(svc.Cfg.MaxDifficulty)
			max = &d
		}
		c.session.Vardiff.SetBounds(min, max)
	}

	svc.Metatron.RegisterSession(c.session)
	defer svc.Metatron.UnregisterSession(c.session)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.pushJobs(connCtx)
	}()

	c.readLoop(connCtx)
	cancel()
	wg.Wait()
}

func (c *connection) readLoop(ctx context.Context) {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, maxStratumLineBytes), maxStratumLineBytes)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req StratumRequest
		if err := fastJSONUnmarshal(line, &req); err != nil {
			logger.Debug("malformed stratum frame", "error", err)
			continue
		}

		c.dispatch(ctx, req)
	}
}

func (c *connection) dispatch(ctx context.Context, req StratumRequest) {
	switch req.Method {
	case "mining.configure":
		c.handleConfigure(req)
	case "mining.subscribe":
		c.handleSubscribe(req)
	case "mining.authorize":
		c.handleAuthorize(req)
	case "mining.submit":
		c.handleSubmit(req)
	default:
		if !req.IsNotification() {
			c.respondError(req.ID, ErrMethodNotAllowed)
		}
	}
}

func (c *connection) handleConfigure(req StratumRequest) {
	if err := c.session.transition("configure"); err != nil {
		c.respondError(req.ID, err.(StratumError))
		return
	}

	params, err := parseConfigureParams(req.Params)
	if err != nil {
		c.respondError(req.ID, err.(StratumError))
		return
	}

	result := map[string]any{}
	if params.VersionRollingMask != nil {
		effectiveMask := params.VersionRollingMask.And(upstreamVersionRollingMask)
		c.session.VersionMask = &effectiveMask
		result["version-rolling"] = true
		result["version-rolling.mask"] = effectiveMask.Hex()
	}
	if params.MinimumDifficulty != nil && *params.MinimumDifficulty > 0 {
		min := DifficultyFromFloat(float64(*params.MinimumDifficulty))
		c.session.Vardiff.SetBounds(&min, nil)
		result["minimum-difficulty"] = true
	}

	c.respondSuccess(req.ID, result)
}

func (c *connection) handleSubscribe(req StratumRequest) {
	if err := c.session.transition("subscribe"); err != nil {
		c.respondError(req.ID, err.(StratumError))
		return
	}

	var params []string
	_ = fastJSONUnmarshal(req.Params, &params)
	if len(params) >= 1 {
		c.session.UserAgent = params[0]
	}

	result := []any{
		[][2]string{{"mining.set_difficulty", "1"}, {"mining.notify", "1"}},
		c.session.Enonce1.Hex(),
		c.svc.Extranonces.Enonce2Size(),
	}
	c.respondSuccess(req.ID, result)
}

func (c *connection) handleAuthorize(req StratumRequest) {
	if err := c.session.transition("authorize"); err != nil {
		c.respondError(req.ID, err.(StratumError))
		return
	}

	var params []string
	if err := fastJSONUnmarshal(req.Params, &params); err != nil || len(params) < 1 {
		c.respondError(req.ID, ErrNoUsername)
		return
	}

	address, worker := parseAuthorizeUsername(params[0])
	if address == "" {
		c.respondError(req.ID, ErrNoUsername)
		return
	}

	decoded := decodeAddressBestEffort(address)
	if decoded == nil || !decoded.IsForNet(ChainParams()) {
		c.respondError(req.ID, ErrUnauthorized)
		return
	}

	c.session.Address = decoded
	c.session.Username = address
	c.session.WorkerName = worker
	c.session.AuthorizedAt = time.Now()

	c.respondSuccess(req.ID, true)

	if err := c.session.transition("first_notify"); err == nil {
		c.sendCurrentJob()
	}
}

func decodeAddressBestEffort(address string) btcutil.Address {
	decoded, err := btcutil.DecodeAddress(address, ChainParams())
	if err != nil {
		return nil
	}
	return decoded
}

func (c *connection) handleSubmit(req StratumRequest) {
	if err := c.session.transition("submit"); err != nil {
		c.respondError(req.ID, err.(StratumError))
		return
	}

	params, err := parseSubmitParams(req.Params)
	if err != nil {
		c.session.RecordRejected()
		c.respondError(req.ID, err.(StratumError))
		return
	}

	job, ok := c.session.Jobs.Get(params.JobID)
	if !ok {
		c.session.RecordRejected()
		c.respondError(req.ID, ErrInvalidJobId)
		return
	}

	if params.VersionBits != nil {
		if job.VersionMask == nil || params.VersionBits.And(job.VersionMask.Not()) != 0 {
			c.session.RecordRejected()
			c.respondError(req.ID, ErrInvalidVersionMask)
			return
		}
	}

	if params.Enonce2.Len() != c.svc.Extranonces.Enonce2Size() {
		c.session.RecordRejected()
		c.respondError(req.ID, ErrInvalidNonce2Length)
		return
	}

	jobNtime := uint32(job.Workbase.Ntime())
	if uint32(params.Ntime) < jobNtime || uint32(params.Ntime) > jobNtime+ntimeForwardSlackSeconds {
		c.session.RecordRejected()
		c.respondError(req.ID, ErrNtimeOutOfRange)
		return
	}

	poolDiff := c.session.Vardiff.PoolDiff(params.JobID)
	networkDiff := c.svc.networkDifficulty()

	result, err := EvaluateShare(job, params.Enonce2, params.Ntime, params.Nonce, params.VersionBits, poolDiff.Target(), networkDiff.Target())
	if err != nil {
		c.session.RecordRejected()
		c.respondError(req.ID, ErrInvalidJobId)
		return
	}

	if !result.MeetsPool {
		c.session.RecordRejected()
		c.respondError(req.ID, ErrAboveTarget)
		return
	}

	if c.session.Jobs.IsDuplicate(chainhash.Hash(result.Hash)) {
		c.session.RecordRejected()
		c.respondError(req.ID, ErrDuplicate)
		return
	}

	c.session.RecordAccepted(poolDiff)
	if c.session.Address != nil {
		c.svc.Metatron.UserFor(c.session.Username).RecordAccepted(poolDiff)
	}
	c.respondSuccess(req.ID, true)

	if result.MeetsNetwork {
		c.submitFoundBlock(job, params, result)
	}

	if c.svc.IsProxy() {
		c.forwardToUpstream(job, params, result)
	}

	var upstreamDiff *Difficulty
	if c.svc.IsProxy() {
		d := c.svc.Upstream.Difficulty()
		upstreamDiff = &d
	}
	if newDiff, changed := c.session.Vardiff.RecordShare(poolDiff, networkDiff, upstreamDiff); changed {
		c.diffChangePending.Store(true)
		c.sendSetDifficulty(newDiff)
	}
}

func (c *connection) submitFoundBlock(job *Job, params submitParams, result ShareResult) {
	pwb, ok := job.Workbase.(*PoolWorkbase)
	if !ok || c.svc.Submissions == nil {
		return
	}

	blockHex, err := assembleBlockHex(result.Header, job.Coinb1, job.Coinb2, job.Enonce1, params.Enonce2, pwb.NonCoinbaseTxHex)
	if err != nil {
		logger.Error("assemble found block failed", "error", err)
		return
	}

	c.svc.Submissions.Submit(blockHex, pwb.Height, func(reject string, err error) {
		if err == nil && reject == "" {
			c.svc.Metatron.RecordBlock()
			if c.session.Address != nil {
				c.svc.Metatron.UserFor(c.session.Username).RecordBlock()
			}
		}
	})
}

func (c *connection) forwardToUpstream(job *Job, params submitParams, result ShareResult) {
	uwb, ok := job.Workbase.(*UpstreamWorkbase)
	if !ok || c.svc.Upstream == nil {
		return
	}
	if result.ShareDiff.Float() < c.svc.Upstream.Difficulty().Float() {
		return
	}

	proxyPolicy, ok := c.svc.Extranonces.Proxy()
	if !ok {
		return
	}
	upstreamEnonce2 := proxyPolicy.ReconstructEnonce2ForUpstream(c.session.Enonce1, params.Enonce2)

	c.svc.Upstream.Submit(c.svc.UpstreamUser, uwb.JobIDHex, upstreamEnonce2, params.Ntime, params.Nonce, params.VersionBits)
}

// pushJobs watches the shared WorkbaseFeed and, once the session has
// received its first job via handleAuthorize, sends a fresh job (with a
// mining.notify) for every subsequent workbase the feed publishes. The
// very first job after authorize is sent synchronously by
// handleAuthorize so the miner doesn't have to wait for the next
// workbase refresh.
func (c *connection) pushJobs(ctx context.Context) {
	_, waitCh := c.svc.Feed.Subscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-waitCh:
		}

		wb, nextWaitCh := c.svc.Feed.Subscribe()
		waitCh = nextWaitCh

		if wb == nil {
			continue
		}

		state := c.session.State()
		if state != stateAuthorized && state != stateWorking {
			continue
		}

		c.sendWorkbase(wb)
	}
}

func (c *connection) sendCurrentJob() {
	wb, ok := c.svc.Feed.Latest()
	if !ok {
		return
	}
	c.sendWorkbase(wb)
}

// sendWorkbase builds and sends a job for wb, computing clean_jobs
// against whichever workbase this connection last sent.
func (c *connection) sendWorkbase(wb Workbase) {
	previous, _ := c.lastWorkbase.Load().(Workbase)
	clean := wb.CleanJobs(previous)
	c.buildAndSendJob(wb, clean)
	c.lastWorkbase.Store(wb)
}

func (c *connection) buildAndSendJob(wb Workbase, clean bool) {
	var coinb1, coinb2 string

	switch w := wb.(type) {
	case *PoolWorkbase:
		builder := NewCoinbaseBuilder(c.svc.PayoutAddress, c.session.Enonce1, c.svc.Extranonces.Enonce2Size(), w.Height, btcutil.Amount(w.CoinbaseValueSats), w.WitnessCommitment).
			WithPoolSig(c.svc.CoinbaseTag).
			WithRandomizer(true)
		_, b1, b2, err := builder.Build()
		if err != nil {
			logger.Error("build coinbase failed", "error", err)
			return
		}
		coinb1, coinb2 = b1, b2
	case *UpstreamWorkbase:
		coinb1, coinb2 = w.Coinb1, w.Coinb2
	default:
		return
	}

	job := NewJob(coinb1, coinb2, c.session.Enonce1, c.session.VersionMask, wb, clean)
	c.session.Jobs.Insert(job, clean)

	if c.diffChangePending.CompareAndSwap(true, false) {
		c.session.Vardiff.SetDiffChangeJobID(job.JobID)
	}

	frame, err := notifyNotification(job, stratumPrevHash(wb.PrevHash()))
	if err != nil {
		logger.Error("build mining.notify failed", "error", err)
		return
	}
	c.writeFrame(frame)
}

func (c *connection) sendSetDifficulty(diff Difficulty) {
	frame, err := setDifficultyNotification(diff)
	if err != nil {
		logger.Error("build mining.set_difficulty failed", "error", err)
		return
	}
	c.writeFrame(frame)
}

func (c *connection) respondSuccess(id []byte, result any) {
	c.writeFrame(newSuccessResponse(id, result))
}

func (c *connection) respondError(id []byte, stratumErr StratumError) {
	c.writeFrame(newErrorResponse(id, stratumErr))
}

func (c *connection) writeFrame(frame any) {
	encoded, err := fastJSONMarshal(frame)
	if err != nil {
		logger.Error("encode stratum frame failed", "error", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
	if _, err := c.writer.Write(encoded); err != nil {
		return
	}
	if _, err := c.writer.WriteString("\n"); err != nil {
		return
	}
	_ = c.writer.Flush()
}
