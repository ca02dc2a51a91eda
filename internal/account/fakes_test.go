package account

import (
	"context"
	"sync"
	"time"

	"github.com/web3guy0/dexmatcher/types"
)

// fakeOracle is an in-memory BalanceOracle double: Get/GetSnapshot answer
// from a fixed balance map, Subtract is recorded but otherwise a no-op
// (tests that care about it inspect subtractions directly).
type fakeOracle struct {
	mu          sync.Mutex
	balances    types.AssetMap
	subtracted  []types.AssetMap
	getErr      error
	snapshotErr error
}

func newFakeOracle(balances types.AssetMap) *fakeOracle {
	return &fakeOracle{balances: balances}
}

func (f *fakeOracle) Get(ctx context.Context, addr types.Address, assets []types.Asset) (types.AssetMap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.balances.Restrict(assets), nil
}

func (f *fakeOracle) GetSnapshot(ctx context.Context, addr types.Address) (types.AssetMap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	out := make(types.AssetMap, len(f.balances))
	for k, v := range f.balances {
		out[k] = v
	}
	return out, nil
}

func (f *fakeOracle) Subtract(addr types.Address, delta types.AssetMap) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subtracted = append(f.subtracted, delta)
}

// fakeChainNode is a ChainNode double whose HasOrder answer is fixed.
type fakeChainNode struct {
	hasOrder bool
	err      error
}

func (f *fakeChainNode) HasOrder(ctx context.Context, id types.OrderId) (bool, error) {
	return f.hasOrder, f.err
}

// fakeStore is a StoreSink double that always reports success unless told
// otherwise, recording every event it was asked to persist. Once wired to an
// actor, it also stands in for the matching engine's confirmation of a
// placement: every persisted Placed/PlacedMarket event is echoed back as
// OrderAdded, the way matchengine.Stub does in production. Cancellations are
// never echoed, so tests confirm them explicitly with OrderCanceled.
type fakeStore struct {
	mu        sync.Mutex
	events    []QueueEvent
	persisted bool
	err       error
	actor     *Actor
}

func newFakeStore() *fakeStore { return &fakeStore{persisted: true} }

func (f *fakeStore) Store(ctx context.Context, event QueueEvent) (bool, error) {
	f.mu.Lock()
	f.events = append(f.events, event)
	persisted, err, actor := f.persisted, f.err, f.actor
	f.mu.Unlock()
	if persisted && err == nil && actor != nil && event.Order != nil {
		actor.Tell(&OrderAdded{Submitted: *event.Order})
	}
	return persisted, err
}

func (f *fakeStore) recorded() []QueueEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]QueueEvent, len(f.events))
	copy(out, f.events)
	return out
}

// fakeDB is an OrderDB double backed by a plain map.
type fakeDB struct {
	mu     sync.Mutex
	orders map[types.OrderId]types.AcceptedOrder
	status map[types.OrderId]types.OrderStatus
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		orders: make(map[types.OrderId]types.AcceptedOrder),
		status: make(map[types.OrderId]types.OrderStatus),
	}
}

func (f *fakeDB) SaveOrder(ctx context.Context, ao types.AcceptedOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[ao.ID()] = ao
	return nil
}

func (f *fakeDB) SaveOrderInfo(ctx context.Context, id types.OrderId, owner types.Address, status types.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[id] = status
	return nil
}

func (f *fakeDB) Status(ctx context.Context, id types.OrderId) (types.OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.status[id]; ok {
		return s, nil
	}
	return types.OrderStatus{Kind: types.StatusNotFound}, nil
}

func (f *fakeDB) ContainsInfo(ctx context.Context, id types.OrderId) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.status[id]
	return ok, nil
}

func (f *fakeDB) LoadRemainingOrders(ctx context.Context, owner types.Address, pair *types.Pair, knownActive map[types.OrderId]struct{}) ([]types.AcceptedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.AcceptedOrder
	for id, ao := range f.orders {
		if _, known := knownActive[id]; known {
			continue
		}
		if ao.Order.Sender != owner {
			continue
		}
		out = append(out, ao)
	}
	return out, nil
}

// fakeOrderBook is an OrderBookSnapshot double whose Exists answer is fixed
// per pair.
type fakeOrderBook struct {
	mu     sync.Mutex
	booked map[types.Pair]bool
}

func newFakeOrderBook(booked map[types.Pair]bool) *fakeOrderBook {
	return &fakeOrderBook{booked: booked}
}

func (f *fakeOrderBook) Exists(pair types.Pair) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.booked[pair]
}

// fakeNotifier is a Notifier double that records every call it receives.
type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeNotifier) Notify(level, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, level+": "+message)
}

func (f *fakeNotifier) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func newTestActor(owner types.Address, oracle BalanceOracle, node ChainNode, store StoreSink, db OrderDB) *Actor {
	return newTestActorWithConfig(owner, DefaultConfig(), oracle, node, store, db)
}

func newTestActorWithConfig(owner types.Address, cfg Config, oracle BalanceOracle, node ChainNode, store StoreSink, db OrderDB) *Actor {
	return newTestActorWithDeps(owner, cfg, Deps{Oracle: oracle, ChainNode: node, Store: store, DB: db})
}

func newTestActorWithDeps(owner types.Address, cfg Config, deps Deps) *Actor {
	cfg.BalanceAskTimeout = 2 * time.Second // generous for fakes that never block
	a := New(owner, cfg, deps)
	if fs, ok := deps.Store.(*fakeStore); ok {
		fs.mu.Lock()
		fs.actor = a
		fs.mu.Unlock()
	}
	go a.Run()
	return a
}
