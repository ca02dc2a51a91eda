package account

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/dexmatcher/types"
)

// handleCancelNotEnoughCoinsOrders is fired when the balance oracle reports
// that an address's real balance has dropped below what is currently
// reserved for one or more assets (a withdrawal elsewhere on the chain, for
// instance). It folds over active limit orders oldest-first but cancels
// newest-first, so the orders placed most recently are the ones sacrificed
// to bring reserved volume back within the real balance.
func (a *Actor) handleCancelNotEnoughCoinsOrders(m *CancelNotEnoughCoinsOrders) {
	deficits := types.AssetMap{}
	for asset, newBalance := range m.NewBalance {
		reserved := a.openVolume.Get(asset)
		if newBalance.LessThan(reserved) {
			deficits[asset] = reserved.Sub(newBalance)
		}
	}
	if len(deficits) == 0 {
		return
	}

	cancelledAssets := map[types.Asset]struct{}{}
	cancelledCount := 0

	ordered := a.sortedActiveOrders() // oldest-first
	for i := len(ordered) - 1; i >= 0 && len(deficits) > 0; i-- {
		ao := ordered[i]
		if ao.IsMarket {
			continue
		}
		if _, pending := a.pendingCommands[ao.ID()]; pending {
			continue
		}
		if !touchesAny(ao.ReservableBalance, deficits) {
			continue
		}

		// reportAsset/reportOwed track the largest shortfall this order
		// contributed to, the one figure the published event can carry.
		var (
			reportAsset types.Asset
			reportOwed  decimal.Decimal
		)
		for asset, owed := range deficits {
			contribution := ao.ReservableBalance.Get(asset)
			if contribution.IsZero() {
				continue
			}
			if owed.GreaterThan(reportOwed) {
				reportAsset = asset
				reportOwed = owed
			}
			remaining := owed.Sub(contribution)
			if remaining.IsNegative() {
				remaining = decimal.Zero
			}
			if remaining.IsZero() {
				delete(deficits, asset)
			} else {
				deficits[asset] = remaining
			}
		}

		id := ao.ID()
		a.pendingCommands[id] = PendingCommand{IsPlacement: false}
		a.publishStore(QueueEvent{
			Kind:               EventCanceled,
			Pair:               ao.Order.Pair,
			ID:                 id,
			InsufficientAmount: reportOwed,
			AssetId:            reportAsset,
		})
		cancelledAssets[reportAsset] = struct{}{}
		cancelledCount++
	}

	if cancelledCount == 0 {
		return
	}
	assets := make([]string, 0, len(cancelledAssets))
	for asset := range cancelledAssets {
		assets = append(assets, asset.String())
	}
	a.notifier.Notify("forced_cancel", fmt.Sprintf(
		"forced cancellation of %d order(s) for %s: reserved balance exceeded real balance for asset(s) %s",
		cancelledCount, a.owner.Hex(), strings.Join(assets, ",")))
}

func touchesAny(reservable, deficits types.AssetMap) bool {
	for asset := range deficits {
		if reservable.Get(asset).IsPositive() {
			return true
		}
	}
	return false
}
