package account

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/dexmatcher/types"
)

func awaitFrame(t *testing.T, out chan types.WsFrame) types.WsFrame {
	t.Helper()
	select {
	case f := <-out:
		return f
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a ws frame")
		return types.WsFrame{}
	}
}

func TestWsSubscribe_DeliversSnapshotFirst(t *testing.T) {
	oracle := newFakeOracle(types.AssetMap{usdAsset: decimal.NewFromInt(100)})
	a := newTestActor(owner, oracle, &fakeChainNode{}, newFakeStore(), newFakeDB())
	defer a.Stop()

	order := limitBuyOrder(50, "1", "1")
	placed := placeAndAwait(t, a, order, false)
	require.NotNil(t, placed.Accepted)

	out := make(chan types.WsFrame, 4)
	a.Tell(&WsSubscribe{Out: out})

	frame := awaitFrame(t, out)
	require.NotNil(t, frame.Snapshot)
	require.Len(t, frame.Snapshot.Orders, 1)
	assert.Equal(t, order.ID, frame.Snapshot.Orders[0].ID())

	entry := frame.Snapshot.Balances[usdAsset]
	assert.True(t, decimal.NewFromInt(1).Equal(entry.Reserved))
	assert.True(t, decimal.NewFromInt(99).Equal(entry.Tradable))
}

func TestWsDiff_FirstUpdateCarriesFullOrderThenDeltaOnly(t *testing.T) {
	oracle := newFakeOracle(types.AssetMap{usdAsset: decimal.NewFromInt(100)})
	store := newFakeStore()
	cfg := DefaultConfig()
	cfg.WsMessagesInterval = 10 * time.Millisecond
	a := newTestActorWithConfig(owner, cfg, oracle, &fakeChainNode{}, store, newFakeDB())
	defer a.Stop()

	order := limitBuyOrder(51, "1", "1")
	placed := placeAndAwait(t, a, order, false)
	require.NotNil(t, placed.Accepted)

	out := make(chan types.WsFrame, 8)
	a.Tell(&WsSubscribe{Out: out})
	snapshot := awaitFrame(t, out)
	require.NotNil(t, snapshot.Snapshot)

	// the subscriber already saw this order in the snapshot, via
	// trackedOrders, so the matching engine's first fill notification
	// should stage a delta-only update, never a second full order.
	ao := types.AcceptedOrder{
		Order:             order,
		ReservableBalance: types.AssetMap{usdAsset: decimal.NewFromInt(1)},
		RequiredBalance:   types.AssetMap{usdAsset: decimal.NewFromInt(1)},
	}
	a.Tell(&OrderExecuted{
		Submitted:          ao,
		Counter:            ao,
		Timestamp:          time.Now(),
		SubmittedRemaining: ao,
		CounterRemaining:   ao,
	})

	diff := awaitFrame(t, out)
	require.NotNil(t, diff.Diff)
	require.Len(t, diff.Diff.Orders, 1)
	assert.False(t, diff.Diff.Orders[0].FullInfo, "order already tracked via snapshot should not resend full info")
}
