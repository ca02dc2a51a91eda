package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/web3guy0/dexmatcher/internal/matchererr"
	"github.com/web3guy0/dexmatcher/types"
)

// handleCancelOrder resolves a cancel request against whichever of the
// three places an order can currently live: a command already in flight, an
// active order, or the historical record in OrderDB.
func (a *Actor) handleCancelOrder(m *CancelOrder) {
	id := m.ID

	if pc, ok := a.pendingCommands[id]; ok {
		if pc.IsPlacement {
			m.Reply <- CancelResult{Rejected: matchererr.OrderNotFound(id)}
		} else {
			m.Reply <- CancelResult{Rejected: matchererr.OrderCanceled(id)}
		}
		return
	}

	if ao, ok := a.activeOrders[id]; ok {
		if ao.IsMarket {
			m.Reply <- CancelResult{Rejected: matchererr.MarketOrderCancel(id)}
			return
		}
		a.pendingCommands[id] = PendingCommand{IsPlacement: false, CancelReply: m.Reply}
		a.publishStore(QueueEvent{Kind: EventCanceled, Pair: ao.Order.Pair, ID: id})
		return
	}

	// Not live anywhere in memory; consult the historical record. OrderDB is
	// treated as a fast local collaborator, unlike the balance oracle and
	// chain node, so this is a direct synchronous call rather than a
	// suspended computation.
	status, err := a.db.Status(context.Background(), id)
	if err != nil {
		m.Reply <- CancelResult{Rejected: matchererr.UnexpectedError(err)}
		return
	}
	switch status.Kind {
	case types.StatusCancelled:
		m.Reply <- CancelResult{Rejected: matchererr.OrderCanceled(id)}
	case types.StatusFilled:
		m.Reply <- CancelResult{Rejected: matchererr.OrderFull(id)}
	default:
		m.Reply <- CancelResult{Rejected: matchererr.OrderNotFound(id)}
	}
}

// batchCancel tracks a CancelAllOrders sub-actor: the set of ids it is still
// waiting on, the per-id outcomes gathered so far, and the deadline timer
// that forces completion if the matching engine never confirms in time.
// runID correlates this batch's log lines across its (possibly many)
// OrderCanceled confirmations and its eventual completion or timeout.
type batchCancel struct {
	runID   string
	pending map[types.OrderId]struct{}
	results map[types.OrderId]error
	reply   chan BatchCancelResult
	timer   *time.Timer
}

// handleCancelAllOrders delegates every matching non-market active order's
// cancellation to the store sink and registers a short-lived tracker that
// waits for the matching engine's OrderCanceled confirmations, up to
// BatchCancelTimeout.
func (a *Actor) handleCancelAllOrders(m *CancelAllOrders) {
	bc := &batchCancel{
		runID:   uuid.NewString(),
		pending: make(map[types.OrderId]struct{}),
		results: make(map[types.OrderId]error),
		reply:   m.Reply,
	}
	for _, ao := range a.activeOrders {
		if m.Pair != nil && ao.Order.Pair != *m.Pair {
			continue
		}
		if ao.IsMarket {
			continue
		}
		id := ao.ID()
		if _, already := a.pendingCommands[id]; already {
			continue
		}
		bc.pending[id] = struct{}{}
		a.pendingCommands[id] = PendingCommand{IsPlacement: false}
		a.publishStore(QueueEvent{Kind: EventCanceled, Pair: ao.Order.Pair, ID: id})
	}

	if len(bc.pending) == 0 {
		m.Reply <- BatchCancelResult{Canceled: map[types.OrderId]error{}}
		return
	}

	a.log.Info().Str("batch_run_id", bc.runID).Int("orders", len(bc.pending)).Msg("account actor: batch cancel started")
	a.batches = append(a.batches, bc)
	bc.timer = time.AfterFunc(a.cfg.BatchCancelTimeout, func() {
		a.send(&batchCancelDeadline{batch: bc})
	})
}

func (a *Actor) handleBatchCancelDeadline(bc *batchCancel) {
	a.log.Warn().Str("batch_run_id", bc.runID).Int("unconfirmed", len(bc.pending)).Msg("account actor: batch cancel deadline reached")
	for id := range bc.pending {
		bc.results[id] = errBatchCancelTimeout
	}
	bc.pending = map[types.OrderId]struct{}{}
	a.finishBatch(bc)
}

// resolveBatchForCanceled marks id resolved in every batch still waiting on
// it, completing and removing any batch that has nothing left pending.
func (a *Actor) resolveBatchForCanceled(id types.OrderId) {
	for _, bc := range a.batches {
		if _, waiting := bc.pending[id]; !waiting {
			continue
		}
		delete(bc.pending, id)
		bc.results[id] = nil
		a.log.Debug().Str("batch_run_id", bc.runID).Str("order_id", id.Hex()).Msg("account actor: batch cancel confirmation")
		if len(bc.pending) == 0 {
			bc.timer.Stop()
			a.finishBatch(bc)
		}
	}
}

func (a *Actor) finishBatch(bc *batchCancel) {
	a.log.Info().Str("batch_run_id", bc.runID).Int("results", len(bc.results)).Msg("account actor: batch cancel finished")
	bc.reply <- BatchCancelResult{Canceled: bc.results}
	for i, b := range a.batches {
		if b == bc {
			a.batches = append(a.batches[:i], a.batches[i+1:]...)
			break
		}
	}
}

var errBatchCancelTimeout = errors.New("batch cancel: order not confirmed cancelled before the deadline")
