package account

import (
	"time"

	"github.com/web3guy0/dexmatcher/internal/matchererr"
	"github.com/web3guy0/dexmatcher/types"
)

// accountMessage is the marker interface for everything that can land in an
// AccountActor's mailbox: client commands/queries, matcher events, and the
// actor's own self-sent suspension results.
type accountMessage interface {
	isAccountMessage()
}

type baseMsg struct{}

func (baseMsg) isAccountMessage() {}

// ── Commands ────────────────────────────────────────────────────────────

type PlaceOrder struct {
	baseMsg
	Order    types.Order
	IsMarket bool
	Reply    chan PlaceResult
}

type PlaceResult struct {
	Accepted          *types.Order
	Rejected          *matchererr.MatcherError
	WavesNodeUnavail  *matchererr.MatcherError
	CanNotPersist     *matchererr.MatcherError
}

type CancelOrder struct {
	baseMsg
	ID    types.OrderId
	Reply chan CancelResult
}

type CancelResult struct {
	Canceled *types.OrderId
	Rejected *matchererr.MatcherError
}

type CancelAllOrders struct {
	baseMsg
	Pair  *types.Pair // nil = all pairs
	Reply chan BatchCancelResult
}

type BatchCancelResult struct {
	Canceled map[types.OrderId]error
}

type CancelNotEnoughCoinsOrders struct {
	baseMsg
	NewBalance types.AssetMap // only assets that actually changed
}

// ── Queries ─────────────────────────────────────────────────────────────

type GetReservedBalance struct {
	baseMsg
	Reply chan types.AssetMap
}

type GetTradableBalance struct {
	baseMsg
	Assets []types.Asset
	Reply  chan TradableBalanceResult
}

type TradableBalanceResult struct {
	Balance types.AssetMap
	Err     error
}

type GetOrderStatus struct {
	baseMsg
	ID    types.OrderId
	Reply chan types.OrderStatus
}

type GetOrdersStatuses struct {
	baseMsg
	Pair       *types.Pair
	OnlyActive bool
	Reply      chan []types.AcceptedOrder
}

// ── Notifications ───────────────────────────────────────────────────────

type WsSubscribe struct {
	baseMsg
	Out chan<- types.WsFrame
}

// StartSchedules is broadcast once by the Directory after history has been
// restored, turning on expiry scheduling for every currently active order.
type StartSchedules struct{ baseMsg }

// ── Matching-engine events ──────────────────────────────────────────────

type OrderAdded struct {
	baseMsg
	Submitted types.AcceptedOrder
}

type OrderExecuted struct {
	baseMsg
	Submitted          types.AcceptedOrder
	Counter            types.AcceptedOrder
	Timestamp          time.Time
	SubmittedRemaining types.AcceptedOrder
	CounterRemaining   types.AcceptedOrder
}

type OrderCanceled struct {
	baseMsg
	AO             types.AcceptedOrder
	IsSystemCancel bool
}

// ── Self-sent suspension results ────────────────────────────────────────

type validationPassed struct {
	baseMsg
	ao types.AcceptedOrder
}

type validationFailed struct {
	baseMsg
	id  types.OrderId
	err *matchererr.MatcherError
}

type storeFailed struct {
	baseMsg
	id  types.OrderId
	err *matchererr.MatcherError
}

type wsSnapshotReady struct {
	baseMsg
	out      chan<- types.WsFrame
	snapshot types.AssetMap
	err      error
}

type wsDiffBalanceReady struct {
	baseMsg
	assets       []types.Asset
	balances     types.AssetMap
	orderUpdates map[types.OrderId]types.WsOrderDelta
	err          error
}

type wsTick struct{ baseMsg }

type cancelExpiredOrder struct {
	baseMsg
	id types.OrderId
}

// tradableBalanceReady folds an async GetTradableBalance oracle call back
// into the actor; the openVolume subtraction happens here, inside the
// actor's own goroutine, never in the spawned goroutine that did the ask.
type tradableBalanceReady struct {
	baseMsg
	reply   chan TradableBalanceResult
	assets  []types.Asset
	balance types.AssetMap
	err     error
}

// batchCancelDeadline fires once a CancelAllOrders sub-actor's timeout
// elapses; any order still unresolved at that point is reported as timed
// out rather than left to answer forever.
type batchCancelDeadline struct {
	baseMsg
	batch *batchCancel
}
