package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"syscall"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// ZMQSubscriber listens to a bitcoind ZMQ publisher's "hashblock" topic
// and signals the caller on every new block so the pool-mode workbase
// producer can refresh its template immediately instead of waiting for
// the next polling interval.
type ZMQSubscriber struct {
	endpoint string
	notify   chan<- string
}

// NewZMQSubscriber builds a subscriber against endpoint (e.g.
// "tcp://127.0.0.1:28332"), delivering each new block's hash (hex) on
// notify.
func NewZMQSubscriber(endpoint string, notify chan<- string) *ZMQSubscriber {
	return &ZMQSubscriber{endpoint: endpoint, notify: notify}
}

// Run connects and processes hashblock messages until ctx is canceled.
// Every socket error is followed by a reconnect with backoff, so a
// bitcoind restart doesn't require restarting the pool.
func (z *ZMQSubscriber) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := z.runOnce(ctx); err != nil {
			logger.Warn("zmq subscriber disconnected", "endpoint", z.endpoint, "error", err, "retry_in", backoff.String())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}

		backoff = time.Second
	}
}

func (z *ZMQSubscriber) runOnce(ctx context.Context) error {
	sock, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		return fmt.Errorf("create zmq socket: %w", err)
	}
	defer sock.Close()

	if err := sock.Connect(z.endpoint); err != nil {
		return fmt.Errorf("connect zmq %s: %w", z.endpoint, err)
	}
	if err := sock.SetSubscribe("hashblock"); err != nil {
		return fmt.Errorf("zmq subscribe hashblock: %w", err)
	}
	if err := sock.SetRcvtimeo(time.Second); err != nil {
		return fmt.Errorf("zmq set recv timeout: %w", err)
	}

	logger.Info("zmq subscriber connected", "endpoint", z.endpoint)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		parts, err := sock.RecvMessageBytes(0)
		if err != nil {
			if errno, ok := err.(zmq.Errno); ok && errno == zmq.Errno(syscall.EAGAIN) {
				continue
			}
			return fmt.Errorf("zmq recv: %w", err)
		}
		if len(parts) < 2 {
			continue
		}

		hashHex := hex.EncodeToString(reverseBytes(parts[1]))

		select {
		case z.notify <- hashHex:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// Drop the notification rather than block: a missed hashblock
			// signal just means the next poll interval picks up the change.
			logger.Debug("zmq notify channel full, dropping hashblock signal", "hash", hashHex)
		}
	}
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
