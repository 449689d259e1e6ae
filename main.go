package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/btcutil"
)

func main() {
	configPath := flag.String("config", "goPool.toml", "path to the TOML config file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fatal("load config", err, "path", *configPath)
	}

	setLogLevel(parseLogLevel(cfg.LogLevel))
	if cfg.LogFile != "" {
		configureFileLogging(cfg.LogFile, cfg.LogFile, cfg.LogFile, true)
	}
	setSha256Implementation(cfg.UseSIMDSHA)
	SetChainParams(cfg.Network)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Mode == "proxy" {
		runProxy(ctx, cfg)
		return
	}
	runPool(ctx, cfg)
}

func parseLogLevel(s string) logLevel {
	switch s {
	case "debug":
		return logLevelDebug
	case "warn":
		return logLevelWarn
	case "error":
		return logLevelError
	default:
		return logLevelInfo
	}
}

func runPool(ctx context.Context, cfg Config) {
	address, err := btcutil.DecodeAddress(cfg.PayoutAddress, ChainParams())
	if err != nil {
		fatal("decode payout address", err, "address", cfg.PayoutAddress)
	}

	var rpc *RPCClient
	if cfg.RPCCookiePath != "" {
		rpc = NewRPCClientWithCookie(cfg.RPCURL, cfg.RPCCookiePath, defaultRPCTimeout)
	} else {
		rpc = NewRPCClient(cfg.RPCURL, cfg.RPCUser, cfg.RPCPass, defaultRPCTimeout)
	}

	info, err := rpc.GetBlockchainInfo(ctx)
	if err != nil {
		fatal("connect to node", err, "endpoint", rpc.EndpointLabel())
	}
	logger.Info("connected to node", "chain", info.Chain, "height", info.Blocks)

	producer := NewPoolWorkbaseProducer(rpc, cfg.Network)
	go producer.Run(ctx, cfg.ZMQHashblock)

	metatron := NewMetatron(cfg.PoolEnonce1Size)
	defer metatron.Stop()

	extranonces, err := NewPoolExtranonces(cfg.PoolEnonce1Size, cfg.PoolEnonce2Size)
	if err != nil {
		fatal("build extranonce policy", err)
	}

	svc := &PoolServices{
		Metatron:      metatron,
		Extranonces:   ExtranoncesFromPool(extranonces),
		Feed:          producer.Feed(),
		RPC:           rpc,
		Submissions:   NewSubmissionWorkerPool(rpc, cfg.SubmissionWorkers),
		PayoutAddress: address,
		CoinbaseTag:   cfg.CoinbaseTag,
		Cfg:           cfg,
	}
	svc.NetworkDiff.Store(DifficultyFromFloat(info.Difficulty))

	go refreshNetworkDifficulty(ctx, rpc, svc)

	server := NewServer(cfg.ListenAddr, svc, cfg.MaxAcceptsPerSecond, cfg.MaxAcceptBurst)
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		fatal("stratum server exited", err)
	}
}

func runProxy(ctx context.Context, cfg Config) {
	producer, err := NewProxyWorkbaseProducer(ctx, cfg.UpstreamAddr, cfg.UpstreamUser, cfg.UpstreamPass, defaultUserAgent, defaultRPCTimeout)
	if err != nil {
		fatal("connect to upstream", err, "addr", cfg.UpstreamAddr)
	}
	go func() {
		if err := producer.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("upstream producer exited", "error", err)
		}
	}()

	upstream := producer.Upstream()
	proxyExtranonces, err := NewProxyExtranonces(upstream.Enonce1(), upstream.Enonce2Size(), cfg.ProxyExtension)
	if err != nil {
		fatal("build proxy extranonce policy", err)
	}

	metatron := NewMetatronProxy(upstream.Enonce1().Bytes(), cfg.ProxyExtension)
	defer metatron.Stop()

	svc := &PoolServices{
		Metatron:     metatron,
		Extranonces:  ExtranoncesFromProxy(proxyExtranonces),
		Feed:         producer.Feed(),
		Upstream:     upstream,
		UpstreamUser: cfg.UpstreamUser,
		Cfg:          cfg,
	}
	svc.NetworkDiff.Store(upstream.Difficulty())

	server := NewServer(cfg.ListenAddr, svc, cfg.MaxAcceptsPerSecond, cfg.MaxAcceptBurst)
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		fatal("stratum server exited", err)
	}
}

// refreshNetworkDifficulty periodically re-reads the node's current
// difficulty so the vardiff controller's network ceiling and the
// submit-time network-target check both track chain tip changes.
func refreshNetworkDifficulty(ctx context.Context, rpc *RPCClient, svc *PoolServices) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := rpc.GetBlockchainInfo(ctx)
			if err != nil {
				logger.Warn("refresh network difficulty failed", "error", err)
				continue
			}
			svc.NetworkDiff.Store(DifficultyFromFloat(info.Difficulty))
		}
	}
}
