package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml"
)

// defaultListenAddr, defaultRPCTimeout, etc. seed a Config before a
// config file is applied on top, matching the teacher's
// default-then-override convention.
const (
	defaultListenAddr        = ":3333"
	defaultRPCTimeout        = 10 * time.Second
	defaultVardiffWindow     = 10 * time.Minute
	defaultVardiffPeriod     = 15 * time.Second
	defaultStartDifficulty   = 1024.0
	defaultPoolEnonce1Size   = 4
	defaultPoolEnonce2Size   = 8
	defaultProxyExtension    = 2
	defaultUserAgent         = "goPool/1.0"
	defaultMaxAcceptsPerSec  = 500
	defaultMaxAcceptBurst    = 1000
	defaultSubmissionWorkers = 8
)

// Config is the top-level configuration this process loads from a TOML
// file, covering both pool mode (talking directly to a node) and proxy
// mode (relaying work from an upstream Stratum pool).
type Config struct {
	Mode string `toml:"mode"` // "pool" or "proxy"

	ListenAddr string `toml:"listen_addr"`
	Network    string `toml:"network"` // mainnet, testnet, regtest, signet

	// Pool-mode fields: talk to a Bitcoin node directly.
	RPCURL        string `toml:"rpc_url"`
	RPCUser       string `toml:"rpc_user"`
	RPCPass       string `toml:"rpc_pass"`
	RPCCookiePath string `toml:"rpc_cookie_path"`
	ZMQHashblock  string `toml:"zmq_hashblock_addr"`
	PayoutAddress string `toml:"payout_address"`
	CoinbaseTag   string `toml:"coinbase_tag"`

	// Proxy-mode fields: relay work from an upstream Stratum pool.
	UpstreamAddr     string `toml:"upstream_addr"`
	UpstreamUser     string `toml:"upstream_user"`
	UpstreamPass     string `toml:"upstream_pass"`
	ProxyExtension   int    `toml:"proxy_extension_size"`

	PoolEnonce1Size int     `toml:"pool_enonce1_size"`
	PoolEnonce2Size int     `toml:"pool_enonce2_size"`
	StartDifficulty float64 `toml:"start_difficulty"`
	MinDifficulty   float64 `toml:"min_difficulty"`
	MaxDifficulty   float64 `toml:"max_difficulty"`

	VardiffWindowSeconds int `toml:"vardiff_window_seconds"`
	VardiffPeriodSeconds int `toml:"vardiff_period_seconds"`

	MaxAcceptsPerSecond int `toml:"max_accepts_per_second"`
	MaxAcceptBurst      int `toml:"max_accept_burst"`

	SubmissionWorkers int `toml:"submission_workers"`

	LogLevel   string `toml:"log_level"`
	LogFile    string `toml:"log_file"`
	UseSIMDSHA bool   `toml:"use_simd_sha256"`
}

// defaultConfig returns a Config seeded with the process's defaults,
// before a config file is layered on top.
func defaultConfig() Config {
	return Config{
		Mode:                 "pool",
		ListenAddr:           defaultListenAddr,
		Network:              "mainnet",
		PoolEnonce1Size:      defaultPoolEnonce1Size,
		PoolEnonce2Size:      defaultPoolEnonce2Size,
		ProxyExtension:       defaultProxyExtension,
		StartDifficulty:      defaultStartDifficulty,
		VardiffWindowSeconds: int(defaultVardiffWindow.Seconds()),
		VardiffPeriodSeconds: int(defaultVardiffPeriod.Seconds()),
		MaxAcceptsPerSecond:  defaultMaxAcceptsPerSec,
		MaxAcceptBurst:       defaultMaxAcceptBurst,
		SubmissionWorkers:    defaultSubmissionWorkers,
		LogLevel:             "info",
		UseSIMDSHA:           true,
	}
}

// LoadConfig reads and parses a TOML config file at path, layering it
// over defaultConfig and validating the fields required by the
// configured mode.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Mode {
	case "pool":
		if c.RPCURL == "" {
			return fmt.Errorf("config: rpc_url is required in pool mode")
		}
		if c.RPCCookiePath == "" && (c.RPCUser == "" || c.RPCPass == "") {
			return fmt.Errorf("config: rpc_user/rpc_pass or rpc_cookie_path is required in pool mode")
		}
		if c.PayoutAddress == "" {
			return fmt.Errorf("config: payout_address is required in pool mode")
		}
	case "proxy":
		if c.UpstreamAddr == "" {
			return fmt.Errorf("config: upstream_addr is required in proxy mode")
		}
	default:
		return fmt.Errorf("config: mode must be \"pool\" or \"proxy\", got %q", c.Mode)
	}

	if c.PoolEnonce1Size < MinEnonceSize || c.PoolEnonce1Size > MaxEnonceSize {
		return fmt.Errorf("config: pool_enonce1_size %d out of range [%d,%d]", c.PoolEnonce1Size, MinEnonceSize, MaxEnonceSize)
	}
	if c.PoolEnonce2Size < MinEnonceSize || c.PoolEnonce2Size > MaxEnonceSize {
		return fmt.Errorf("config: pool_enonce2_size %d out of range [%d,%d]", c.PoolEnonce2Size, MinEnonceSize, MaxEnonceSize)
	}

	return nil
}

func (c Config) vardiffWindow() time.Duration {
	return time.Duration(c.VardiffWindowSeconds) * time.Second
}

func (c Config) vardiffPeriod() time.Duration {
	return time.Duration(c.VardiffPeriodSeconds) * time.Second
}
