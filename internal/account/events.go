package account

import (
	"context"

	"github.com/web3guy0/dexmatcher/types"
)

// handleOrderAdded reconciles the matching engine's confirmed figure for an
// order against whatever was optimistically reserved at place() time (the
// two differ for market orders, whose exact spend only the engine knows),
// persists the shell record, starts its expiry timer, clears the waiting
// placement command, and tells a waiting client it has been accepted.
func (a *Actor) handleOrderAdded(submitted types.AcceptedOrder) {
	id := submitted.ID()
	prevReservable := types.AssetMap{}
	if existing, ok := a.activeOrders[id]; ok {
		prevReservable = existing.ReservableBalance
	}
	delta := submitted.ReservableBalance.Sub(prevReservable)
	a.openVolume = a.openVolume.Add(delta)
	a.assertOpenVolumeNonNegative()
	a.activeOrders[id] = submitted
	a.speculativelyAdjustBalance(prevReservable, submitted.ReservableBalance)

	_ = a.db.SaveOrder(context.Background(), submitted)
	a.scheduleExpiry(submitted)
	a.stageOrderUpdate(submitted, submitted.Status())

	if pc, ok := a.pendingCommands[id]; ok && pc.IsPlacement {
		delete(a.pendingCommands, id)
		if pc.PlaceReply != nil {
			order := submitted.Order
			pc.PlaceReply <- PlaceResult{Accepted: &order}
		}
	}
}

// handleOrderExecuted processes a fill event for whichever side of the
// trade belongs to this actor (an event can in principle name this owner
// on both sides, e.g. self-trade, so both are checked independently).
func (a *Actor) handleOrderExecuted(m *OrderExecuted) {
	if m.Submitted.Order.Sender == a.owner {
		a.handleExecutedSide(m.Submitted, m.SubmittedRemaining)
	}
	if m.Counter.Order.Sender == a.owner {
		a.handleExecutedSide(m.Counter, m.CounterRemaining)
	}
}

func (a *Actor) handleExecutedSide(before, remaining types.AcceptedOrder) {
	if remaining.IsValid() {
		a.handleOrderAdded(remaining)
		return
	}
	if existing, ok := a.activeOrders[remaining.ID()]; ok {
		a.speculativelyAdjustBalance(existing.ReservableBalance, types.AssetMap{})
	}
	a.handleTerminated(remaining, types.OrderStatus{
		Kind:         types.StatusFilled,
		FilledAmount: remaining.FilledAmount,
		FilledFee:    remaining.FilledFee,
	})
}

// handleOrderCanceled resolves any client waiting on this cancellation,
// resolves it against every batch-cancel tracker waiting on it, and — if
// the order was still active — retires it.
func (a *Actor) handleOrderCanceled(m *OrderCanceled) {
	id := m.AO.ID()

	if pc, ok := a.pendingCommands[id]; ok {
		delete(a.pendingCommands, id)
		if !pc.IsPlacement && pc.CancelReply != nil {
			canceledID := id
			pc.CancelReply <- CancelResult{Canceled: &canceledID}
		}
	}
	a.resolveBatchForCanceled(id)

	if _, ok := a.activeOrders[id]; ok {
		a.handleTerminated(m.AO, types.OrderStatus{
			Kind:         types.StatusCancelled,
			FilledAmount: m.AO.FilledAmount,
			FilledFee:    m.AO.FilledFee,
		})
	}
}

// handleTerminated is the common tail of every path that removes an order
// from activeOrders for good: fill-to-completion or cancellation. It frees
// the order's reserved balance, persists the final status, and stages a
// last websocket update for it.
func (a *Actor) handleTerminated(ao types.AcceptedOrder, status types.OrderStatus) {
	id := ao.ID()
	ctx := context.Background()
	_ = a.db.SaveOrder(ctx, ao)
	_ = a.db.SaveOrderInfo(ctx, id, a.owner, status)
	a.cancelExpiryTimer(id)

	if existing, ok := a.activeOrders[id]; ok {
		a.openVolume = a.openVolume.Sub(existing.ReservableBalance)
		a.assertOpenVolumeNonNegative()
		delete(a.activeOrders, id)
	}
	a.stageOrderUpdate(ao, status)
}

// speculativelyAdjustBalance tells the balance oracle about a reserve drop
// before the underlying spend has actually settled on-chain, so a websocket
// subscriber's tradable figure doesn't briefly jump upward just because
// openVolume shrank ahead of the real balance doing the same.
func (a *Actor) speculativelyAdjustBalance(prev, next types.AssetMap) {
	drop := prev.Sub(next)
	if len(drop) == 0 {
		return
	}
	a.oracle.Subtract(a.owner, drop)
}

func (a *Actor) handleStartSchedules() {
	a.schedulingEnabled = true
	for _, ao := range a.activeOrders {
		a.scheduleExpiry(ao)
	}
}
