package account

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/dexmatcher/internal/matchererr"
	"github.com/web3guy0/dexmatcher/types"
)

func cancelAndAwait(t *testing.T, a *Actor, id types.OrderId) CancelResult {
	t.Helper()
	reply := make(chan CancelResult, 1)
	a.Tell(&CancelOrder{ID: id, Reply: reply})
	select {
	case res := <-reply:
		return res
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for CancelOrder reply")
		return CancelResult{}
	}
}

func TestCancelOrder_UnknownIDIsNotFound(t *testing.T) {
	oracle := newFakeOracle(types.AssetMap{})
	a := newTestActor(owner, oracle, &fakeChainNode{}, newFakeStore(), newFakeDB())
	defer a.Stop()

	var id types.OrderId
	id[0] = 0xFF
	res := cancelAndAwait(t, a, id)
	require.NotNil(t, res.Rejected)
	assert.Equal(t, matchererr.CodeOrderNotFound, res.Rejected.Code)
}

func TestCancelOrder_MarketOrderRejected(t *testing.T) {
	oracle := newFakeOracle(types.AssetMap{usdAsset: decimal.NewFromInt(100)})
	a := newTestActor(owner, oracle, &fakeChainNode{}, newFakeStore(), newFakeDB())
	defer a.Stop()

	order := limitBuyOrder(20, "1", "1")
	placed := placeAndAwait(t, a, order, true)
	require.NotNil(t, placed.Accepted)

	res := cancelAndAwait(t, a, order.ID)
	require.NotNil(t, res.Rejected)
	assert.Equal(t, matchererr.CodeMarketOrderCancel, res.Rejected.Code)
}

func TestCancelOrder_ActiveLimitOrderPublishesCancelEventAndWaitsOnConfirmation(t *testing.T) {
	oracle := newFakeOracle(types.AssetMap{usdAsset: decimal.NewFromInt(100)})
	store := newFakeStore()
	a := newTestActor(owner, oracle, &fakeChainNode{}, store, newFakeDB())
	defer a.Stop()

	order := limitBuyOrder(21, "1", "1")
	placed := placeAndAwait(t, a, order, false)
	require.NotNil(t, placed.Accepted)

	reply := make(chan CancelResult, 1)
	a.Tell(&CancelOrder{ID: order.ID, Reply: reply})

	// the cancel reply is only sent once the matching engine confirms via
	// OrderCanceled, so nothing should arrive yet.
	select {
	case <-reply:
		t.Fatal("cancel reply arrived before OrderCanceled confirmation")
	case <-time.After(150 * time.Millisecond):
	}

	a.Tell(&OrderCanceled{AO: types.AcceptedOrder{Order: *placed.Accepted}})

	select {
	case res := <-reply:
		require.NotNil(t, res.Canceled)
		assert.Equal(t, order.ID, *res.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for cancel confirmation")
	}
}

func TestCancelAllOrders_NoActiveOrdersReturnsEmpty(t *testing.T) {
	oracle := newFakeOracle(types.AssetMap{})
	a := newTestActor(owner, oracle, &fakeChainNode{}, newFakeStore(), newFakeDB())
	defer a.Stop()

	reply := make(chan BatchCancelResult, 1)
	a.Tell(&CancelAllOrders{Reply: reply})
	select {
	case res := <-reply:
		assert.Empty(t, res.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for CancelAllOrders reply")
	}
}

func TestCancelAllOrders_UnconfirmedOrdersTimeOut(t *testing.T) {
	oracle := newFakeOracle(types.AssetMap{usdAsset: decimal.NewFromInt(100)})
	store := newFakeStore()
	cfg := DefaultConfig()
	cfg.BatchCancelTimeout = 20 * time.Millisecond
	a := newTestActorWithConfig(owner, cfg, oracle, &fakeChainNode{}, store, newFakeDB())
	defer a.Stop()

	order := limitBuyOrder(70, "1", "1")
	placed := placeAndAwait(t, a, order, false)
	require.NotNil(t, placed.Accepted)

	reply := make(chan BatchCancelResult, 1)
	a.Tell(&CancelAllOrders{Reply: reply})

	select {
	case res := <-reply:
		require.Contains(t, res.Canceled, order.ID)
		assert.Equal(t, errBatchCancelTimeout, res.Canceled[order.ID])
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the batch cancel's own deadline to resolve it")
	}
}

func TestCancelAllOrders_ConfirmedByMatchingEngineBeforeDeadline(t *testing.T) {
	oracle := newFakeOracle(types.AssetMap{usdAsset: decimal.NewFromInt(100)})
	store := newFakeStore()
	a := newTestActor(owner, oracle, &fakeChainNode{}, store, newFakeDB())
	defer a.Stop()

	order := limitBuyOrder(71, "1", "1")
	placed := placeAndAwait(t, a, order, false)
	require.NotNil(t, placed.Accepted)

	reply := make(chan BatchCancelResult, 1)
	a.Tell(&CancelAllOrders{Reply: reply})

	a.Tell(&OrderCanceled{AO: types.AcceptedOrder{Order: *placed.Accepted}})

	select {
	case res := <-reply:
		require.Contains(t, res.Canceled, order.ID)
		assert.NoError(t, res.Canceled[order.ID])
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for batch cancel to resolve after matching-engine confirmation")
	}
}
