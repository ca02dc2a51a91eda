package account

import (
	"fmt"

	"github.com/web3guy0/dexmatcher/internal/matchererr"
	"github.com/web3guy0/dexmatcher/types"
)

// validatorInput is everything accountStateValidator needs, gathered by the
// validation goroutine from the oracle and chain node before it folds the
// result back in. Kept as a plain value so the validation rule itself stays
// a pure function, independent of the actor's mutable state and easy to
// exercise directly in tests.
type validatorInput struct {
	orderID           types.OrderId
	alreadyKnown      bool // chain node already has this id
	containsInfo      bool // OrderDB already has a record for this id
	activeOrdersCount int
	maxActiveOrders   int
	tradableBalance   types.AssetMap
	spendAsset        types.Asset
	feeAsset          types.Asset
	pair              types.Pair
	bookExists        bool // order-book snapshot reports the pair as currently booked
}

// accountStateValidator is the pure placement rule: duplicate detection
// (activeOrders membership is checked by the caller before the order ever
// reaches here; this combines the chain node and OrderDB's independent
// views of the same id), the active-orders ceiling, and a sanity check that
// the order's spend and fee assets aren't already in the red. Price/amount
// arithmetic beyond this is the matching engine's job, not the account
// actor's.
func accountStateValidator(in validatorInput) *matchererr.MatcherError {
	if in.alreadyKnown || in.containsInfo {
		return matchererr.OrderDuplicate(in.orderID)
	}
	if in.activeOrdersCount >= in.maxActiveOrders {
		return matchererr.ActiveOrdersLimitReached()
	}
	if in.tradableBalance.Get(in.spendAsset).IsNegative() {
		return matchererr.UnexpectedError(fmt.Errorf(
			"negative tradable balance for %s (pair %s booked=%t)", in.spendAsset, in.pair, in.bookExists))
	}
	if in.tradableBalance.Get(in.feeAsset).IsNegative() {
		return matchererr.UnexpectedError(fmt.Errorf(
			"negative tradable balance for fee asset %s (pair %s booked=%t)", in.feeAsset, in.pair, in.bookExists))
	}
	return nil
}
