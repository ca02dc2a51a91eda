package types

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Address identifies a trading account. Reuses the 20-byte EVM address shape.
type Address = common.Address

// OrderId is an opaque fixed-width identifier of an order.
type OrderId [32]byte

func (id OrderId) Hex() string {
	return "0x" + hex.EncodeToString(id[:])
}

func (id OrderId) String() string {
	return id.Hex()
}

func (id OrderId) IsZero() bool {
	return id == OrderId{}
}

func OrderIdFromHex(s string) (OrderId, error) {
	var id OrderId
	b, err := hex.DecodeString(trimHexPrefix(s))
	if err != nil {
		return id, err
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("order id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// Asset is either the chain's native asset or an issued asset identified by
// an opaque id. The zero value is the native asset.
type Asset struct {
	issued bool
	id     common.Address
}

var NativeAsset = Asset{}

func IssuedAsset(id common.Address) Asset {
	return Asset{issued: true, id: id}
}

func (a Asset) IsNative() bool { return !a.issued }

func (a Asset) String() string {
	if a.IsNative() {
		return "NATIVE"
	}
	return a.id.Hex()
}

// Side of an order.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// Pair is the (amount asset, price asset) traded by an order.
type Pair struct {
	AmountAsset Asset
	PriceAsset  Asset
}

func (p Pair) String() string {
	return p.AmountAsset.String() + "/" + p.PriceAsset.String()
}

// Order is the signed placement directive submitted by a client.
type Order struct {
	ID         OrderId
	Sender     Address
	Pair       Pair
	Side       Side
	Price      decimal.Decimal
	Amount     decimal.Decimal
	MatcherFee decimal.Decimal
	FeeAsset   Asset
	Timestamp  time.Time
	Expiration time.Time
}

// SpendAsset is the asset the order spends: the amount asset when selling,
// the price asset when buying.
func (o Order) SpendAsset() Asset {
	if o.Side == Sell {
		return o.Pair.AmountAsset
	}
	return o.Pair.PriceAsset
}

// AssetMap is a sparse mapping over assets. Reservation maps stay
// non-negative; differences built with Sub may hold negative values. The
// zero value is usable (a nil map reads as "all zero").
type AssetMap map[Asset]decimal.Decimal

// Clean returns a copy with all zero-valued entries dropped, the "cleaning
// semigroup" used whenever reservableBalance-shaped maps are combined.
func (m AssetMap) Clean() AssetMap {
	out := make(AssetMap, len(m))
	for k, v := range m {
		if !v.IsZero() {
			out[k] = v
		}
	}
	return out
}

// Add returns the pointwise sum of m and other, cleaned.
func (m AssetMap) Add(other AssetMap) AssetMap {
	out := make(AssetMap, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = out[k].Add(v)
	}
	return out.Clean()
}

// Sub returns the pointwise difference m - other, cleaned. It does not clamp
// at zero; callers that require non-negativity must check explicitly.
func (m AssetMap) Sub(other AssetMap) AssetMap {
	out := make(AssetMap, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = out[k].Sub(v)
	}
	return out.Clean()
}

// Get returns the value for an asset, defaulting to zero.
func (m AssetMap) Get(a Asset) decimal.Decimal {
	if v, ok := m[a]; ok {
		return v
	}
	return decimal.Zero
}

// HasAnyNegative reports whether any value in m is strictly negative.
func (m AssetMap) HasAnyNegative() bool {
	for _, v := range m {
		if v.IsNegative() {
			return true
		}
	}
	return false
}

// Restrict returns the submap of m restricted to keys, missing keys default
// to zero.
func (m AssetMap) Restrict(keys []Asset) AssetMap {
	out := make(AssetMap, len(keys))
	for _, k := range keys {
		out[k] = m.Get(k)
	}
	return out
}

// IntersectKeys returns m restricted to the keys also present in other.
func (m AssetMap) IntersectKeys(other AssetMap) AssetMap {
	out := make(AssetMap, len(m))
	for k, v := range m {
		if _, ok := other[k]; ok {
			out[k] = v
		}
	}
	return out
}

// StatusKind discriminates OrderStatus.
type StatusKind int

const (
	StatusAccepted StatusKind = iota
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusNotFound
)

func (k StatusKind) Terminal() bool {
	return k == StatusFilled || k == StatusCancelled
}

// OrderStatus is the externally observable status of an order.
type OrderStatus struct {
	Kind         StatusKind
	FilledAmount decimal.Decimal
	FilledFee    decimal.Decimal
}

// AcceptedOrder is an Order plus filling state and the derived balance maps
// used by the reserved-volume ledger.
type AcceptedOrder struct {
	Order             Order
	FilledAmount      decimal.Decimal
	FilledFee         decimal.Decimal
	IsMarket          bool
	ReservableBalance AssetMap // funds locked while the order is active
	RequiredBalance   AssetMap // funds needed to fill the remaining amount
}

func (ao AcceptedOrder) ID() OrderId { return ao.Order.ID }

func (ao AcceptedOrder) RemainingAmount() decimal.Decimal {
	return ao.Order.Amount.Sub(ao.FilledAmount)
}

// IsValid mirrors the matching engine's notion of a still-live remainder:
// strictly positive amount left to fill.
func (ao AcceptedOrder) IsValid() bool {
	return ao.RemainingAmount().IsPositive()
}

func (ao AcceptedOrder) Status() OrderStatus {
	kind := StatusAccepted
	if ao.FilledAmount.IsPositive() {
		kind = StatusPartiallyFilled
	}
	return OrderStatus{Kind: kind, FilledAmount: ao.FilledAmount, FilledFee: ao.FilledFee}
}

// WsOrderDelta is the order-side payload of a websocket diff frame.
type WsOrderDelta struct {
	OrderID      OrderId
	FullInfo     bool
	Status       StatusKind
	FilledAmount decimal.Decimal
	FilledFee    decimal.Decimal
	Order        *Order // only set when FullInfo is true
}

// WsBalanceEntry is one asset's (tradable, reserved) pair in a snapshot/diff.
type WsBalanceEntry struct {
	Tradable decimal.Decimal
	Reserved decimal.Decimal
}

// WsSnapshot is the first message delivered to a new subscriber.
type WsSnapshot struct {
	Balances map[Asset]WsBalanceEntry
	Orders   []AcceptedOrder
}

// WsDiff is every subsequent message delivered to an active subscriber.
type WsDiff struct {
	Balances map[Asset]WsBalanceEntry
	Orders   []WsOrderDelta
}

// WsFrame is the union of the two payload kinds an AccountActor ever writes
// to a subscriber channel.
type WsFrame struct {
	Snapshot *WsSnapshot
	Diff     *WsDiff
}
