package account

import (
	"time"

	"github.com/web3guy0/dexmatcher/types"
)

// scheduleExpiry arms a one-shot timer for ao, unless scheduling hasn't been
// turned on yet (StartSchedules hasn't fired) or a timer for this id is
// already running. At most one timer per order is ever live.
func (a *Actor) scheduleExpiry(ao types.AcceptedOrder) {
	if !a.schedulingEnabled {
		return
	}
	id := ao.ID()
	if _, exists := a.expiryTimers[id]; exists {
		return
	}
	a.expiryTimers[id] = a.armExpiry(id, time.Until(ao.Order.Expiration))
}

func (a *Actor) armExpiry(id types.OrderId, d time.Duration) *time.Timer {
	if d < 0 {
		d = 0
	}
	return time.AfterFunc(d, func() {
		a.send(&cancelExpiredOrder{id: id})
	})
}

func (a *Actor) cancelExpiryTimer(id types.OrderId) {
	if t, ok := a.expiryTimers[id]; ok {
		t.Stop()
		delete(a.expiryTimers, id)
	}
}

// handleCancelExpiredOrderFired is reached whenever an expiry timer fires.
// Near the edge of its own precision a timer can fire slightly early; if
// the true remaining time is still above ExpirationThreshold, it is
// rearmed instead of cancelling a not-yet-expired order.
func (a *Actor) handleCancelExpiredOrderFired(id types.OrderId) {
	delete(a.expiryTimers, id)
	ao, ok := a.activeOrders[id]
	if !ok {
		return
	}
	remaining := time.Until(ao.Order.Expiration)
	if remaining <= a.cfg.ExpirationThreshold {
		a.publishStore(QueueEvent{Kind: EventCanceled, Pair: ao.Order.Pair, ID: id})
		return
	}
	a.expiryTimers[id] = a.armExpiry(id, remaining)
}
