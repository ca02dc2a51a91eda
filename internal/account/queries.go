package account

import (
	"context"

	"github.com/web3guy0/dexmatcher/types"
)

// handleGetOrderStatus answers from in-memory state when the order is
// still active, otherwise falls back to the historical record.
func (a *Actor) handleGetOrderStatus(m *GetOrderStatus) {
	if ao, ok := a.activeOrders[m.ID]; ok {
		m.Reply <- ao.Status()
		return
	}
	status, err := a.db.Status(context.Background(), m.ID)
	if err != nil {
		m.Reply <- types.OrderStatus{Kind: types.StatusNotFound}
		return
	}
	m.Reply <- status
}

// handleGetOrdersStatuses returns active orders oldest-first, optionally
// joined with whatever historical orders OrderDB still has for this pair.
func (a *Actor) handleGetOrdersStatuses(m *GetOrdersStatuses) {
	active := make([]types.AcceptedOrder, 0, len(a.activeOrders))
	for _, ao := range a.sortedActiveOrders() {
		if m.Pair != nil && ao.Order.Pair != *m.Pair {
			continue
		}
		active = append(active, ao)
	}
	if m.OnlyActive {
		m.Reply <- active
		return
	}

	known := make(map[types.OrderId]struct{}, len(a.activeOrders))
	for id := range a.activeOrders {
		known[id] = struct{}{}
	}
	historic, err := a.db.LoadRemainingOrders(context.Background(), a.owner, m.Pair, known)
	if err != nil {
		m.Reply <- active
		return
	}
	m.Reply <- append(active, historic...)
}
