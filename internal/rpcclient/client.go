/*
 * MIT License
 *
 * Copyright (c) 2026 sendrawtx contributors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package rpcclient

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-uuid"

	"github.com/rawtxgw/sendrawtx/internal/config"
	"github.com/rawtxgw/sendrawtx/internal/errkind"
)

// Client is the async RPC client: one backend per enabled chain, plus
// the fixed-priority routing its "mixed" network mode resolves to.
type Client struct {
	backends map[config.Chain]*backend
	order    []config.Chain // mainnet, testnet, signet, regtest, those enabled

	pending sync.Map // call id (string) -> context.CancelFunc
}

// New builds a Client from the enabled [rpc.<chain>] sections of cfg.
func New(cfg *config.Config) *Client {
	c := &Client{backends: make(map[config.Chain]*backend)}
	for _, chain := range cfg.EnabledChains() {
		c.backends[chain] = newBackend(chain, cfg.RPC[chain])
		c.order = append(c.order, chain)
	}
	return c
}

// Broadcast submits rawHex as a sendrawtransaction call. When chain is
// ChainMixed it tries each enabled backend in c.order, stopping at the
// first one that returns OK or a node-level rejection — an
// AUTH/connect/timeout failure on one backend still lets the next
// backend in line have a try, but a NODE rejection is authoritative and
// is returned immediately rather than masked by trying another node.
func (c *Client) Broadcast(ctx context.Context, chain config.Chain, rawHex string) Result {
	start := time.Now()

	callCtx, id := c.beginCall(ctx)
	defer c.endCall(id)

	if chain != config.ChainMixed {
		return c.broadcastOne(callCtx, chain, rawHex, start)
	}

	if len(c.order) == 0 {
		return Result{Outcome: OutcomeNoBackend, Elapsed: time.Since(start)}
	}

	var last Result
	for _, candidate := range c.order {
		last = c.broadcastOne(callCtx, candidate, rawHex, start)
		if last.Outcome == OutcomeOK || last.Outcome == OutcomeNodeRejected {
			return last
		}
		if callCtx.Err() != nil {
			return Result{Outcome: OutcomeCancelled, Elapsed: time.Since(start)}
		}
	}
	return last
}

func (c *Client) broadcastOne(ctx context.Context, chain config.Chain, rawHex string, start time.Time) Result {
	b, ok := c.backends[chain]
	if !ok {
		return Result{Outcome: OutcomeNoBackend, Chain: string(chain), Elapsed: time.Since(start)}
	}

	resp, err := b.call(ctx, "sendrawtransaction", []interface{}{rawHex})
	if err != nil {
		return Result{
			Outcome: classifyErr(err),
			Chain:   string(chain),
			RawErr:  err.Error(),
			Elapsed: time.Since(start),
		}
	}

	if resp.Error != nil {
		outcome := OutcomeParseFailed
		if isNodeRejection(resp.Error) {
			outcome = OutcomeNodeRejected
		}
		return Result{
			Outcome: outcome,
			Chain:   string(chain),
			RawErr:  resp.Error.Message,
			Elapsed: time.Since(start),
		}
	}

	txid, _ := resp.Result.(string)
	return Result{
		Outcome: OutcomeOK,
		Chain:   string(chain),
		TxID:    txid,
		Elapsed: time.Since(start),
	}
}

func classifyErr(err error) Outcome {
	var ek *errkind.Error
	if e, ok := err.(*errkind.Error); ok {
		ek = e
	}
	if ek == nil {
		return OutcomeConnectFailed
	}
	switch ek.Code {
	case errkind.RpcAuth, errkind.RpcCookie:
		return OutcomeAuthFailed
	case errkind.RpcTimeout:
		return OutcomeTimeout
	case errkind.RpcParse:
		return OutcomeParseFailed
	default:
		return OutcomeConnectFailed
	}
}

// beginCall registers a cancellable derivation of ctx so CancelAll can
// reach every in-flight call, tracked in the pending map by call id.
// The returned context is the one actual RPC calls must use; cancelling
// it is what CancelAll and Cancel act on.
func (c *Client) beginCall(ctx context.Context) (context.Context, string) {
	callCtx, cancel := context.WithCancel(ctx)
	id, err := uuid.GenerateUUID()
	if err != nil {
		id = randFallbackID()
	}
	c.pending.Store(id, cancel)
	return callCtx, id
}

// randFallbackID is only reached if go-uuid's crypto/rand read fails;
// uniqueness across the pending map is all that matters here.
func randFallbackID() string {
	return time.Now().Format("20060102T150405.000000000")
}

func (c *Client) endCall(id string) {
	if v, ok := c.pending.LoadAndDelete(id); ok {
		v.(context.CancelFunc)()
	}
}

// Cancel cancels one in-flight call by id, if still pending.
func (c *Client) Cancel(id string) bool {
	v, ok := c.pending.LoadAndDelete(id)
	if !ok {
		return false
	}
	v.(context.CancelFunc)()
	return true
}

// CancelAll cancels every in-flight call, used on worker drain.
func (c *Client) CancelAll() {
	c.pending.Range(func(key, value interface{}) bool {
		value.(context.CancelFunc)()
		c.pending.Delete(key)
		return true
	})
}

// Up reports whether chain has a configured, enabled backend.
func (c *Client) Up(chain config.Chain) bool {
	_, ok := c.backends[chain]
	return ok
}

// Chains returns the fixed-priority order of enabled backends.
func (c *Client) Chains() []config.Chain {
	return append([]config.Chain(nil), c.order...)
}
