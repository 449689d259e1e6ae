package main

import (
	"context"
	"fmt"
	"time"
)

// ProxyWorkbaseProducer drives a WorkbaseFeed from an upstream Stratum
// pool's mining.notify/mining.set_difficulty stream, the proxy-mode
// counterpart to PoolWorkbaseProducer.
type ProxyWorkbaseProducer struct {
	upstream *UpstreamClient
	feed     *WorkbaseFeed
}

// NewProxyWorkbaseProducer dials and handshakes with the upstream pool
// at address, then returns a producer ready to Run.
func NewProxyWorkbaseProducer(ctx context.Context, address, username, password, userAgent string, dialTimeout time.Duration) (*ProxyWorkbaseProducer, error) {
	client, err := DialUpstream(ctx, address, dialTimeout)
	if err != nil {
		return nil, err
	}

	if err := client.Configure(ctx); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.Subscribe(ctx, userAgent); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.Authorize(ctx, username, password); err != nil {
		client.Close()
		return nil, err
	}

	return &ProxyWorkbaseProducer{
		upstream: client,
		feed:     NewWorkbaseFeed(),
	}, nil
}

// Feed returns the producer's broadcast feed.
func (p *ProxyWorkbaseProducer) Feed() *WorkbaseFeed {
	return p.feed
}

// Upstream returns the underlying client, so a session handler can learn
// the assigned enonce1/enonce2_size and forward accepted shares.
func (p *ProxyWorkbaseProducer) Upstream() *UpstreamClient {
	return p.upstream
}

// Run consumes upstream events until the connection drops or ctx is
// canceled, publishing each mining.notify as an UpstreamWorkbase.
func (p *ProxyWorkbaseProducer) Run(ctx context.Context) error {
	defer p.upstream.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-p.upstream.Events:
			if !ok {
				return fmt.Errorf("upstream connection closed")
			}
			switch event.Kind {
			case UpstreamNotify:
				p.feed.Publish(event.Notify)
			case UpstreamSetDifficulty:
				logger.Info("upstream difficulty changed", "difficulty", event.Difficulty.Float())
			case UpstreamDisconnected:
				return fmt.Errorf("upstream disconnected")
			}
		}
	}
}
