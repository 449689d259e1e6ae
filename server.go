package main

import (
	"context"
	"net"
)

// Server accepts TCP connections on a listen address and spawns a
// connection handler for each, subject to the shared accept rate
// limiter.
type Server struct {
	listenAddr string
	svc        *PoolServices
	limiter    *acceptRateLimiter
}

// NewServer builds a Server bound to listenAddr, rate-limited per
// maxAcceptsPerSecond and maxAcceptBurst.
func NewServer(listenAddr string, svc *PoolServices, maxAcceptsPerSecond, maxAcceptBurst int) *Server {
	return &Server{
		listenAddr: listenAddr,
		svc:        svc,
		limiter:    newAcceptRateLimiter(maxAcceptsPerSecond, maxAcceptBurst),
	}
}

// Run listens and accepts connections until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.listenAddr)
	if err != nil {
		return err
	}
	defer ln.Close()

	logger.Info("stratum listener started", "addr", s.listenAddr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		if !s.limiter.wait(ctx) {
			return ctx.Err()
		}

		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("accept failed", "error", err)
			continue
		}

		go handleConnection(ctx, s.svc, conn)
	}
}
