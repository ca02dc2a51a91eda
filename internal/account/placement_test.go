package account

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/dexmatcher/internal/matchererr"
	"github.com/web3guy0/dexmatcher/types"
)

var (
	owner      = common.HexToAddress("0x0000000000000000000000000000000000000001")
	usdAsset   = types.IssuedAsset(common.HexToAddress("0x0000000000000000000000000000000000000002"))
	tokenAsset = types.IssuedAsset(common.HexToAddress("0x0000000000000000000000000000000000000003"))
)

func limitBuyOrder(id byte, amount, price string) types.Order {
	var oid types.OrderId
	oid[0] = id
	return types.Order{
		ID:         oid,
		Sender:     owner,
		Pair:       types.Pair{AmountAsset: tokenAsset, PriceAsset: usdAsset},
		Side:       types.Buy,
		Price:      decimal.RequireFromString(price),
		Amount:     decimal.RequireFromString(amount),
		MatcherFee: decimal.Zero,
		FeeAsset:   usdAsset,
		Timestamp:  time.Now(),
		Expiration: time.Now().Add(time.Hour),
	}
}

func placeAndAwait(t *testing.T, a *Actor, order types.Order, isMarket bool) PlaceResult {
	t.Helper()
	reply := make(chan PlaceResult, 1)
	a.Tell(&PlaceOrder{Order: order, IsMarket: isMarket, Reply: reply})
	select {
	case res := <-reply:
		return res
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for PlaceOrder reply")
		return PlaceResult{}
	}
}

func TestPlaceOrder_AcceptsAndReservesBalance(t *testing.T) {
	oracle := newFakeOracle(types.AssetMap{usdAsset: decimal.NewFromInt(1000)})
	node := &fakeChainNode{hasOrder: false}
	store := newFakeStore()
	db := newFakeDB()
	a := newTestActor(owner, oracle, node, store, db)
	defer a.Stop()

	order := limitBuyOrder(1, "10", "2") // spends 20 usdAsset
	res := placeAndAwait(t, a, order, false)

	require.NotNil(t, res.Accepted)
	assert.Equal(t, order.ID, res.Accepted.ID)

	reservedCh := make(chan types.AssetMap, 1)
	a.Tell(&GetReservedBalance{Reply: reservedCh})
	reserved := <-reservedCh
	assert.True(t, decimal.NewFromInt(20).Equal(reserved.Get(usdAsset)))
}

func TestPlaceOrder_RejectsDuplicateID(t *testing.T) {
	oracle := newFakeOracle(types.AssetMap{usdAsset: decimal.NewFromInt(1000)})
	node := &fakeChainNode{hasOrder: false}
	store := newFakeStore()
	db := newFakeDB()
	a := newTestActor(owner, oracle, node, store, db)
	defer a.Stop()

	order := limitBuyOrder(2, "10", "2")
	first := placeAndAwait(t, a, order, false)
	require.NotNil(t, first.Accepted)

	second := placeAndAwait(t, a, order, false)
	require.NotNil(t, second.Rejected)
	assert.Equal(t, matchererr.CodeOrderDuplicate, second.Rejected.Code)
}

func TestPlaceOrder_RejectsAlreadyOnChain(t *testing.T) {
	oracle := newFakeOracle(types.AssetMap{usdAsset: decimal.NewFromInt(1000)})
	node := &fakeChainNode{hasOrder: true}
	store := newFakeStore()
	db := newFakeDB()
	a := newTestActor(owner, oracle, node, store, db)
	defer a.Stop()

	order := limitBuyOrder(3, "10", "2")
	res := placeAndAwait(t, a, order, false)
	require.NotNil(t, res.Rejected)
	assert.Equal(t, matchererr.CodeOrderDuplicate, res.Rejected.Code)
}

func TestPlaceOrder_RejectsWhenOrderDBAlreadyHasInfo(t *testing.T) {
	oracle := newFakeOracle(types.AssetMap{usdAsset: decimal.NewFromInt(1000)})
	node := &fakeChainNode{hasOrder: false}
	store := newFakeStore()
	db := newFakeDB()
	order := limitBuyOrder(4, "10", "2")
	// Simulate a restart: OrderDB already recorded this id (e.g. from a
	// prior process) even though the chain node and in-memory state don't
	// know about it yet.
	require.NoError(t, db.SaveOrderInfo(nil, order.ID, owner, types.OrderStatus{Kind: types.StatusAccepted}))

	a := newTestActor(owner, oracle, node, store, db)
	defer a.Stop()

	res := placeAndAwait(t, a, order, false)
	require.NotNil(t, res.Rejected)
	assert.Equal(t, matchererr.CodeOrderDuplicate, res.Rejected.Code)
}

func TestPlaceOrder_NegativeBalanceSanityErrorReportsBookState(t *testing.T) {
	oracle := newFakeOracle(types.AssetMap{usdAsset: decimal.NewFromInt(-5)})
	node := &fakeChainNode{hasOrder: false}
	store := newFakeStore()
	db := newFakeDB()
	book := newFakeOrderBook(map[types.Pair]bool{{AmountAsset: tokenAsset, PriceAsset: usdAsset}: true})
	a := newTestActorWithDeps(owner, DefaultConfig(), Deps{Oracle: oracle, ChainNode: node, Store: store, DB: db, Book: book})
	defer a.Stop()

	order := limitBuyOrder(5, "10", "2")
	res := placeAndAwait(t, a, order, false)
	require.NotNil(t, res.Rejected)
	assert.Equal(t, matchererr.CodeUnexpectedError, res.Rejected.Code)
	assert.Contains(t, res.Rejected.Error(), "booked=true")
}

func TestPlaceOrder_RejectsAtActiveOrdersLimit(t *testing.T) {
	oracle := newFakeOracle(types.AssetMap{usdAsset: decimal.NewFromInt(100000)})
	node := &fakeChainNode{hasOrder: false}
	store := newFakeStore()
	db := newFakeDB()
	cfg := DefaultConfig()
	cfg.MaxActiveOrders = 1
	a := newTestActorWithConfig(owner, cfg, oracle, node, store, db)
	defer a.Stop()

	first := placeAndAwait(t, a, limitBuyOrder(10, "1", "1"), false)
	require.NotNil(t, first.Accepted)

	second := placeAndAwait(t, a, limitBuyOrder(11, "1", "1"), false)
	require.NotNil(t, second.Rejected)
	assert.Equal(t, matchererr.CodeActiveOrdersLimitReached, second.Rejected.Code)
}

func TestPlaceOrder_MarketOrderCapsAtTradableBalance(t *testing.T) {
	oracle := newFakeOracle(types.AssetMap{usdAsset: decimal.NewFromInt(15)})
	node := &fakeChainNode{hasOrder: false}
	store := newFakeStore()
	db := newFakeDB()
	a := newTestActor(owner, oracle, node, store, db)
	defer a.Stop()

	order := limitBuyOrder(4, "10", "2") // wants to spend 20, only 15 available
	res := placeAndAwait(t, a, order, true)

	require.NotNil(t, res.Accepted)
	reservedCh := make(chan types.AssetMap, 1)
	a.Tell(&GetReservedBalance{Reply: reservedCh})
	reserved := <-reservedCh
	assert.True(t, decimal.NewFromInt(15).Equal(reserved.Get(usdAsset)))
}

func TestPlaceOrder_SecondOrderSeesFirstsReservationViaTradableBalance(t *testing.T) {
	oracle := newFakeOracle(types.AssetMap{usdAsset: decimal.NewFromInt(30)})
	node := &fakeChainNode{hasOrder: false}
	store := newFakeStore()
	db := newFakeDB()
	a := newTestActor(owner, oracle, node, store, db)
	defer a.Stop()

	first := placeAndAwait(t, a, limitBuyOrder(5, "10", "2"), false) // reserves 20
	require.NotNil(t, first.Accepted)

	// second market order should only see 10 remaining tradable, not 30
	second := placeAndAwait(t, a, limitBuyOrder(6, "10", "2"), true)
	require.NotNil(t, second.Accepted)

	reservedCh := make(chan types.AssetMap, 1)
	a.Tell(&GetReservedBalance{Reply: reservedCh})
	reserved := <-reservedCh
	assert.True(t, decimal.NewFromInt(30).Equal(reserved.Get(usdAsset)))
}
