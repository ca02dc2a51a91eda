// Websocket diff stream: every subscriber first receives a full snapshot,
// then periodic diffs carrying only what changed since the last tick. The
// actor never talks to a websocket connection directly — it only ever
// writes a types.WsFrame into the chan<- it was handed at subscribe time,
// mirroring the teacher's own broadcast-over-buffered-channel pattern in
// its market feed (feeds/polymarket_ws.go).
package account

import (
	"context"
	"time"

	"github.com/web3guy0/dexmatcher/types"
)

// wsState is the diff-stream subsystem's mutable state, owned exclusively
// by the actor goroutine like everything else in Actor.
type wsState struct {
	pending map[chan<- types.WsFrame]struct{} // subscribed, snapshot not yet delivered
	active  map[chan<- types.WsFrame]struct{} // receiving periodic diffs

	changedAssets map[types.Asset]struct{}
	orderUpdates  map[types.OrderId]types.WsOrderDelta
	trackedOrders map[types.OrderId]struct{} // ids that have already received one full-info update

	ticker *time.Timer
}

func newWsState() wsState {
	return wsState{
		pending:       make(map[chan<- types.WsFrame]struct{}),
		active:        make(map[chan<- types.WsFrame]struct{}),
		changedAssets: make(map[types.Asset]struct{}),
		orderUpdates:  make(map[types.OrderId]types.WsOrderDelta),
		trackedOrders: make(map[types.OrderId]struct{}),
	}
}

func (w *wsState) stopScheduler() {
	if w.ticker != nil {
		w.ticker.Stop()
	}
}

// startWsScheduler arms a tick; each tick rearms the next one while there
// are active subscribers, the same self-rescheduling shape the teacher uses
// for its window scanner. A tick that finds no active subscriber stops the
// scheduler, and the next delivered snapshot starts it again.
func (a *Actor) startWsScheduler() {
	a.ws.ticker = time.AfterFunc(a.cfg.WsMessagesInterval, func() {
		a.send(&wsTick{})
	})
}

func (a *Actor) rearmWsTicker() {
	a.ws.ticker = time.AfterFunc(a.cfg.WsMessagesInterval, func() {
		a.send(&wsTick{})
	})
}

// handleWsSubscribe registers a new subscriber and kicks off its snapshot
// fetch; the subscriber only starts receiving diffs once the snapshot has
// actually been delivered.
func (a *Actor) handleWsSubscribe(m *WsSubscribe) {
	a.ws.pending[m.Out] = struct{}{}
	out := m.Out
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.BalanceAskTimeout)
		defer cancel()
		snapshot, err := a.oracle.GetSnapshot(ctx, a.owner)
		a.send(&wsSnapshotReady{out: out, snapshot: snapshot, err: err})
	}()
}

func (a *Actor) handleWsSnapshotReady(m *wsSnapshotReady) {
	if _, stillPending := a.ws.pending[m.out]; !stillPending {
		return
	}
	delete(a.ws.pending, m.out)
	if m.err != nil {
		a.log.Warn().Err(m.err).Msg("account actor: ws snapshot fetch failed, dropping subscriber")
		return
	}

	assets := make(map[types.Asset]struct{}, len(m.snapshot))
	for asset := range m.snapshot {
		assets[asset] = struct{}{}
	}
	balances := make(map[types.Asset]types.WsBalanceEntry, len(assets))
	for asset := range assets {
		reserved := a.openVolume.Get(asset)
		balances[asset] = types.WsBalanceEntry{
			Tradable: m.snapshot.Get(asset).Sub(reserved),
			Reserved: reserved,
		}
	}

	orders := a.sortedActiveOrders()
	for _, ao := range orders {
		a.ws.trackedOrders[ao.ID()] = struct{}{}
	}

	frame := types.WsFrame{Snapshot: &types.WsSnapshot{Balances: balances, Orders: orders}}
	nonBlockingSend(m.out, frame)
	a.ws.active[m.out] = struct{}{}
	if a.ws.ticker == nil {
		a.startWsScheduler()
	}
}

func (a *Actor) handleWsTick() {
	if len(a.ws.active) == 0 {
		a.ws.ticker = nil
		return
	}
	defer a.rearmWsTicker()
	if len(a.ws.changedAssets) == 0 && len(a.ws.orderUpdates) == 0 {
		return
	}

	assets := make([]types.Asset, 0, len(a.ws.changedAssets))
	for asset := range a.ws.changedAssets {
		assets = append(assets, asset)
	}
	orderUpdates := a.ws.orderUpdates
	a.ws.changedAssets = make(map[types.Asset]struct{})
	a.ws.orderUpdates = make(map[types.OrderId]types.WsOrderDelta)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.BalanceAskTimeout)
		defer cancel()
		bal, err := a.oracle.Get(ctx, a.owner, assets)
		a.send(&wsDiffBalanceReady{assets: assets, balances: bal, orderUpdates: orderUpdates, err: err})
	}()
}

func (a *Actor) handleWsDiffBalanceReady(m *wsDiffBalanceReady) {
	if m.err != nil {
		a.log.Warn().Err(m.err).Msg("account actor: ws diff balance fetch failed, skipping this tick")
		return
	}
	balances := make(map[types.Asset]types.WsBalanceEntry, len(m.assets))
	for _, asset := range m.assets {
		reserved := a.openVolume.Get(asset)
		balances[asset] = types.WsBalanceEntry{
			Tradable: m.balances.Get(asset).Sub(reserved),
			Reserved: reserved,
		}
	}
	orders := make([]types.WsOrderDelta, 0, len(m.orderUpdates))
	for _, delta := range m.orderUpdates {
		orders = append(orders, delta)
	}
	frame := types.WsFrame{Diff: &types.WsDiff{Balances: balances, Orders: orders}}
	for out := range a.ws.active {
		nonBlockingSend(out, frame)
	}
}

// stageOrderUpdate buffers an order's latest state for the next diff tick,
// deciding whether this update needs to carry the full order (the first
// time a subscriber would ever see this id) or just the delta fields.
func (a *Actor) stageOrderUpdate(ao types.AcceptedOrder, status types.OrderStatus) {
	id := ao.ID()
	_, seen := a.ws.trackedOrders[id]

	full := false
	switch status.Kind {
	case types.StatusAccepted, types.StatusPartiallyFilled, types.StatusFilled:
		full = !seen
	case types.StatusCancelled:
		full = false
	}
	a.ws.trackedOrders[id] = struct{}{}

	delta := types.WsOrderDelta{
		OrderID:      id,
		FullInfo:     full,
		Status:       status.Kind,
		FilledAmount: status.FilledAmount,
		FilledFee:    status.FilledFee,
	}
	if full {
		order := ao.Order
		delta.Order = &order
	}
	a.ws.orderUpdates[id] = delta
	a.ws.changedAssets[ao.Order.SpendAsset()] = struct{}{}
	a.ws.changedAssets[ao.Order.FeeAsset] = struct{}{}
}

func nonBlockingSend(out chan<- types.WsFrame, frame types.WsFrame) {
	select {
	case out <- frame:
	default:
	}
}
