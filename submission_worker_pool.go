package main

import (
	"context"
	"time"

	"github.com/remeh/sizedwaitgroup"
)

// SubmissionWorkerPool bounds the number of concurrent submitblock RPCs
// in flight, so a burst of simultaneously-found blocks across many
// sessions can't pile up unbounded goroutines or overwhelm the node.
type SubmissionWorkerPool struct {
	rpc *RPCClient
	wg  sizedwaitgroup.SizedWaitGroup
}

// NewSubmissionWorkerPool builds a pool dispatching block submissions
// against rpc, capped at size concurrent in-flight calls.
func NewSubmissionWorkerPool(rpc *RPCClient, size int) *SubmissionWorkerPool {
	if size <= 0 {
		size = 1
	}
	return &SubmissionWorkerPool{
		rpc: rpc,
		wg:  sizedwaitgroup.New(size),
	}
}

// Submit dispatches blockHex for submission asynchronously, reporting
// the outcome via onResult once the RPC completes. onResult is called
// from a pool worker goroutine, never from the caller's goroutine.
func (p *SubmissionWorkerPool) Submit(blockHex string, height int64, onResult func(rejectReason string, err error)) {
	p.wg.Add()
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		reject, err := p.rpc.SubmitBlock(ctx, blockHex)
		if err != nil {
			logger.Error("submitblock failed", "height", height, "error", err)
		} else if reject != "" {
			logger.Warn("submitblock rejected", "height", height, "reason", reject)
		} else {
			logger.Info("block accepted", "height", height)
		}

		if onResult != nil {
			onResult(reject, err)
		}
	}()
}

// Wait blocks until every dispatched submission has completed.
func (p *SubmissionWorkerPool) Wait() {
	p.wg.Wait()
}
