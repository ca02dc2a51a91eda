package account

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/dexmatcher/types"
)

func TestExpiry_FiresCancelAfterExpirationThreshold(t *testing.T) {
	oracle := newFakeOracle(types.AssetMap{})
	store := newFakeStore()
	cfg := DefaultConfig()
	cfg.ExpirationThreshold = 10 * time.Millisecond
	a := newTestActorWithConfig(owner, cfg, oracle, &fakeChainNode{}, store, newFakeDB())
	defer a.Stop()

	a.Tell(&StartSchedules{})

	order := limitBuyOrder(30, "1", "1")
	order.Expiration = time.Now().Add(30 * time.Millisecond)
	ao := types.AcceptedOrder{
		Order:             order,
		ReservableBalance: types.AssetMap{usdAsset: decimal.NewFromInt(1)},
		RequiredBalance:   types.AssetMap{usdAsset: decimal.NewFromInt(1)},
	}
	a.Tell(&OrderAdded{Submitted: ao})

	require.Eventually(t, func() bool {
		for _, ev := range store.recorded() {
			if ev.Kind == EventCanceled && ev.ID == order.ID {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "expected an expiry-driven cancel store event")
}

func TestExpiry_RearmsWhenFiredEarly(t *testing.T) {
	oracle := newFakeOracle(types.AssetMap{})
	store := newFakeStore()
	cfg := DefaultConfig()
	cfg.ExpirationThreshold = 1 * time.Millisecond
	a := newTestActorWithConfig(owner, cfg, oracle, &fakeChainNode{}, store, newFakeDB())
	defer a.Stop()

	a.Tell(&StartSchedules{})

	order := limitBuyOrder(31, "1", "1")
	order.Expiration = time.Now().Add(200 * time.Millisecond)
	ao := types.AcceptedOrder{
		Order:             order,
		ReservableBalance: types.AssetMap{usdAsset: decimal.NewFromInt(1)},
		RequiredBalance:   types.AssetMap{usdAsset: decimal.NewFromInt(1)},
	}
	a.Tell(&OrderAdded{Submitted: ao})

	// simulate the timer firing early: the order still has about 200ms left,
	// well above the 1ms threshold, so this must rearm rather than cancel.
	a.Tell(&cancelExpiredOrder{id: order.ID})

	// well before expiration: no cancel event should have been published yet.
	time.Sleep(50 * time.Millisecond)
	for _, ev := range store.recorded() {
		assert.NotEqual(t, EventCanceled, ev.Kind, "order cancelled before its expiration")
	}

	require.Eventually(t, func() bool {
		for _, ev := range store.recorded() {
			if ev.Kind == EventCanceled && ev.ID == order.ID {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "expected the rearmed timer to eventually fire the cancel")
}
