package main

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// poolTemplateRefreshInterval is the default polling period for
// getblocktemplate when no ZMQ hashblock notification arrives first.
const poolTemplateRefreshInterval = 10 * time.Second

// PoolWorkbaseProducer drives a WorkbaseFeed from a node's
// getblocktemplate, refreshed on a timer and on ZMQ hashblock
// notifications.
type PoolWorkbaseProducer struct {
	rpc         *RPCClient
	feed        *WorkbaseFeed
	zmqNotify   chan string
	networkName string
}

// NewPoolWorkbaseProducer builds a producer against rpc that publishes to
// a WorkbaseFeed of its own. The ZMQ endpoint, if any, is passed to Run.
func NewPoolWorkbaseProducer(rpc *RPCClient, networkName string) *PoolWorkbaseProducer {
	return &PoolWorkbaseProducer{
		rpc:         rpc,
		feed:        NewWorkbaseFeed(),
		zmqNotify:   make(chan string, 4),
		networkName: networkName,
	}
}

// Feed returns the producer's broadcast feed.
func (p *PoolWorkbaseProducer) Feed() *WorkbaseFeed {
	return p.feed
}

// Run polls getblocktemplate on a timer and on ZMQ signals until ctx is
// canceled. If zmqEndpoint is non-empty, it also starts a ZMQSubscriber.
func (p *PoolWorkbaseProducer) Run(ctx context.Context, zmqEndpoint string) {
	if zmqEndpoint != "" {
		sub := NewZMQSubscriber(zmqEndpoint, p.zmqNotify)
		go func() {
			if err := sub.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("zmq subscriber exited", "error", err)
			}
		}()
	}

	ticker := time.NewTicker(poolTemplateRefreshInterval)
	defer ticker.Stop()

	p.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		case hash := <-p.zmqNotify:
			logger.Debug("zmq hashblock triggered template refresh", "hash", hash)
			p.refresh(ctx)
		}
	}
}

func (p *PoolWorkbaseProducer) refresh(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tpl, err := p.rpc.GetBlockTemplate(rctx, gbtRules(p.networkName))
	if err != nil {
		logger.Error("getblocktemplate failed", "error", err)
		return
	}

	wb, err := workbaseFromTemplate(tpl)
	if err != nil {
		logger.Error("build workbase from template", "error", err)
		return
	}

	p.feed.Publish(wb)
}

// workbaseFromTemplate converts a raw getblocktemplate result into a
// PoolWorkbase, parsing each transaction's txid for merkle-branch
// computation.
func workbaseFromTemplate(tpl *GetBlockTemplateResult) (*PoolWorkbase, error) {
	txids := make([]chainhash.Hash, 0, len(tpl.Transactions))
	txHex := make([]string, 0, len(tpl.Transactions))

	for _, tx := range tpl.Transactions {
		idSrc := tx.Txid
		if idSrc == "" {
			idSrc = tx.Hash
		}
		h, err := chainhash.NewHashFromStr(idSrc)
		if err != nil {
			return nil, err
		}
		txids = append(txids, *h)
		txHex = append(txHex, tx.Data)
	}

	prevHash, err := chainhash.NewHashFromStr(tpl.Previous)
	if err != nil {
		return nil, err
	}

	nbits, err := NbitsFromHex(tpl.Bits)
	if err != nil {
		return nil, err
	}

	var witnessCommitment []byte
	if tpl.DefaultWitnessCommitment != "" {
		witnessCommitment, err = hex.DecodeString(tpl.DefaultWitnessCommitment)
		if err != nil {
			return nil, err
		}
	}

	return NewPoolWorkbase(
		tpl.Height,
		tpl.CoinbaseValue,
		*prevHash,
		txids,
		txHex,
		witnessCommitment,
		Version(uint32(tpl.Version)),
		nbits,
		Ntime(uint32(tpl.CurTime)),
	), nil
}
