// Package account implements the AccountActor: the per-address order
// lifecycle actor described by the component design. One goroutine owns one
// account's entire mutable state and processes its mailbox strictly
// sequentially, following the select-driven mainLoop pattern the teacher
// uses for its own single-threaded engine loop (core/engine.go).
package account

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/dexmatcher/types"
)

// Config carries every tunable the actor itself consults.
type Config struct {
	MaxActiveOrders     int
	WsMessagesInterval  time.Duration
	BatchCancelTimeout  time.Duration
	ExpirationThreshold time.Duration
	BalanceAskTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxActiveOrders:     200,
		WsMessagesInterval:  100 * time.Millisecond,
		BatchCancelTimeout:  20 * time.Second,
		ExpirationThreshold: 50 * time.Millisecond,
		BalanceAskTimeout:   5 * time.Second,
	}
}

// Actor is a single account's lifecycle actor.
type Actor struct {
	owner types.Address
	cfg   Config
	log   zerolog.Logger

	oracle    BalanceOracle
	chainNode ChainNode
	store     StoreSink
	db        OrderDB
	book      OrderBookSnapshot
	notifier  Notifier

	mailbox chan accountMessage
	stopCh  chan struct{}

	// AccountState, exclusively owned by the goroutine running Run.
	activeOrders      map[types.OrderId]types.AcceptedOrder
	openVolume        types.AssetMap
	placementQueue    []types.OrderId
	pendingCommands   map[types.OrderId]PendingCommand
	expiryTimers      map[types.OrderId]*time.Timer
	schedulingEnabled bool
	validating        bool // true iff the head of placementQueue has a validation goroutine in flight
	batches           []*batchCancel

	ws wsState
}

// Deps bundles every collaborator the actor talks to.
type Deps struct {
	Oracle    BalanceOracle
	ChainNode ChainNode
	Store     StoreSink
	DB        OrderDB
	Book      OrderBookSnapshot
	Notifier  Notifier
}

// New constructs an Actor. Call Run in its own goroutine to start it.
func New(owner types.Address, cfg Config, deps Deps) *Actor {
	if deps.Book == nil {
		deps.Book = noopOrderBook{}
	}
	if deps.Notifier == nil {
		deps.Notifier = NoopNotifier{}
	}
	a := &Actor{
		owner:           owner,
		cfg:             cfg,
		log:             log.With().Str("component", "account_actor").Str("owner", owner.Hex()).Logger(),
		oracle:          deps.Oracle,
		chainNode:       deps.ChainNode,
		store:           deps.Store,
		db:              deps.DB,
		book:            deps.Book,
		notifier:        deps.Notifier,
		mailbox:         make(chan accountMessage, 256),
		stopCh:          make(chan struct{}),
		activeOrders:    make(map[types.OrderId]types.AcceptedOrder),
		openVolume:      types.AssetMap{},
		pendingCommands: make(map[types.OrderId]PendingCommand),
		expiryTimers:    make(map[types.OrderId]*time.Timer),
	}
	a.ws = newWsState()
	a.startWsScheduler()
	return a
}

// Owner returns the address this actor serves.
func (a *Actor) Owner() types.Address { return a.owner }

// Run is the actor's mailbox loop. It must be invoked from its own
// goroutine and returns when Stop is called.
func (a *Actor) Run() {
	defer a.shutdown()
	for {
		select {
		case <-a.stopCh:
			return
		case msg := <-a.mailbox:
			a.dispatch(msg)
		}
	}
}

// Stop terminates the actor and cancels every timer it owns.
func (a *Actor) Stop() {
	select {
	case <-a.stopCh:
	default:
		close(a.stopCh)
	}
}

func (a *Actor) shutdown() {
	for _, t := range a.expiryTimers {
		t.Stop()
	}
	a.ws.stopScheduler()
}

// send posts a message into the actor's own mailbox; used by suspended
// computations to fold their result back into the single message loop
// instead of mutating state from another goroutine.
func (a *Actor) send(msg accountMessage) {
	select {
	case a.mailbox <- msg:
	case <-a.stopCh:
	}
}

// Tell delivers a message from outside the actor. It never blocks the
// caller beyond the mailbox buffer.
func (a *Actor) Tell(msg accountMessage) {
	a.send(msg)
}

func (a *Actor) dispatch(msg accountMessage) {
	defer a.recoverFatal()

	switch m := msg.(type) {
	case *PlaceOrder:
		a.handlePlaceOrder(m)
	case *CancelOrder:
		a.handleCancelOrder(m)
	case *CancelAllOrders:
		a.handleCancelAllOrders(m)
	case *CancelNotEnoughCoinsOrders:
		a.handleCancelNotEnoughCoinsOrders(m)
	case *GetReservedBalance:
		m.Reply <- a.openVolume
	case *GetTradableBalance:
		a.handleGetTradableBalance(m)
	case *GetOrderStatus:
		a.handleGetOrderStatus(m)
	case *GetOrdersStatuses:
		a.handleGetOrdersStatuses(m)
	case *WsSubscribe:
		a.handleWsSubscribe(m)
	case *StartSchedules:
		a.handleStartSchedules()
	case *OrderAdded:
		a.handleOrderAdded(m.Submitted)
	case *OrderExecuted:
		a.handleOrderExecuted(m)
	case *OrderCanceled:
		a.handleOrderCanceled(m)
	case *validationPassed:
		a.handleValidationPassed(m)
	case *validationFailed:
		a.handleValidationFailed(m)
	case *storeFailed:
		a.handleStoreFailed(m)
	case *wsSnapshotReady:
		a.handleWsSnapshotReady(m)
	case *wsDiffBalanceReady:
		a.handleWsDiffBalanceReady(m)
	case *wsTick:
		a.handleWsTick()
	case *cancelExpiredOrder:
		a.handleCancelExpiredOrderFired(m.id)
	case *tradableBalanceReady:
		a.handleTradableBalanceReady(m)
	case *batchCancelDeadline:
		a.handleBatchCancelDeadline(m.batch)
	default:
		a.log.Error().Type("msg", msg).Msg("account actor: unhandled message type")
	}
}

// recoverFatal enforces the two documented fatal invariants: a negative
// openVolume value, or an illegal placement-queue-head state. Both panic
// from deep inside the relevant mutation; this is the only place the panic
// is allowed to surface, and it is never swallowed-and-retried.
func (a *Actor) recoverFatal() {
	if r := recover(); r != nil {
		a.log.Error().Interface("panic", r).Str("owner", a.owner.Hex()).Msg("account actor: fatal invariant violation, actor terminating")
		a.notifier.Notify("fatal", fmt.Sprintf("account actor %s terminated: %v", a.owner.Hex(), r))
		a.Stop()
	}
}

func (a *Actor) assertOpenVolumeNonNegative() {
	if a.openVolume.HasAnyNegative() {
		panic(fmt.Sprintf("openVolume went negative for %s: %+v", a.owner.Hex(), a.openVolume))
	}
}

// askTimeoutCtx returns a context bounded by the balance-ask timeout,
// mirroring the 5s ask timeout named in the concurrency model.
func (a *Actor) askTimeoutCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, a.cfg.BalanceAskTimeout)
}

// sortedActiveOrders returns active orders ordered oldest-first, the
// iteration order every consumer of activeOrders that cares about age uses
// (forced cancellation, GetOrdersStatuses).
func (a *Actor) sortedActiveOrders() []types.AcceptedOrder {
	out := make([]types.AcceptedOrder, 0, len(a.activeOrders))
	for _, ao := range a.activeOrders {
		out = append(out, ao)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Order.Timestamp.Before(out[j].Order.Timestamp)
	})
	return out
}
