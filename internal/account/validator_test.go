package account

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/dexmatcher/internal/matchererr"
	"github.com/web3guy0/dexmatcher/types"
)

func assetMapOf(asset types.Asset, v decimal.Decimal) types.AssetMap {
	return types.AssetMap{asset: v}
}

func TestAccountStateValidator_DuplicateRejected(t *testing.T) {
	in := validatorInput{alreadyKnown: true, maxActiveOrders: 10}
	err := accountStateValidator(in)
	require.NotNil(t, err)
	assert.Equal(t, matchererr.CodeOrderDuplicate, err.Code)
}

func TestAccountStateValidator_OrderDBDuplicateRejected(t *testing.T) {
	in := validatorInput{containsInfo: true, maxActiveOrders: 10}
	err := accountStateValidator(in)
	require.NotNil(t, err)
	assert.Equal(t, matchererr.CodeOrderDuplicate, err.Code)
}

func TestAccountStateValidator_AtLimitRejected(t *testing.T) {
	in := validatorInput{activeOrdersCount: 5, maxActiveOrders: 5}
	err := accountStateValidator(in)
	require.NotNil(t, err)
	assert.Equal(t, matchererr.CodeActiveOrdersLimitReached, err.Code)
}

func TestAccountStateValidator_NegativeSpendAssetRejected(t *testing.T) {
	in := validatorInput{
		activeOrdersCount: 0,
		maxActiveOrders:   10,
		tradableBalance:   assetMapOf(usdAsset, decimal.NewFromInt(-1)),
		spendAsset:        usdAsset,
		feeAsset:          usdAsset,
	}
	err := accountStateValidator(in)
	require.NotNil(t, err)
	assert.Equal(t, matchererr.CodeUnexpectedError, err.Code)
	assert.Contains(t, err.Error(), "booked=false")
}

func TestAccountStateValidator_NegativeSpendAssetMentionsBookedPair(t *testing.T) {
	in := validatorInput{
		activeOrdersCount: 0,
		maxActiveOrders:   10,
		tradableBalance:   assetMapOf(usdAsset, decimal.NewFromInt(-1)),
		spendAsset:        usdAsset,
		feeAsset:          usdAsset,
		pair:              types.Pair{AmountAsset: tokenAsset, PriceAsset: usdAsset},
		bookExists:        true,
	}
	err := accountStateValidator(in)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "booked=true")
}

func TestAccountStateValidator_PassesWhenEverythingHealthy(t *testing.T) {
	in := validatorInput{
		activeOrdersCount: 0,
		maxActiveOrders:   10,
		tradableBalance:   assetMapOf(usdAsset, decimal.NewFromInt(100)),
		spendAsset:        usdAsset,
		feeAsset:          usdAsset,
	}
	assert.Nil(t, accountStateValidator(in))
}
