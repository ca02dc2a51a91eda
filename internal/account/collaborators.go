package account

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/dexmatcher/internal/chainnode"
	"github.com/web3guy0/dexmatcher/internal/matchererr"
	"github.com/web3guy0/dexmatcher/types"
)

// BalanceOracle is the subset of internal/balance.Oracle the actor needs.
// Declared as an interface so tests can supply a fake.
type BalanceOracle interface {
	Get(ctx context.Context, addr types.Address, assets []types.Asset) (types.AssetMap, error)
	GetSnapshot(ctx context.Context, addr types.Address) (types.AssetMap, error)
	Subtract(addr types.Address, delta types.AssetMap)
}

// ChainNode is the subset of internal/chainnode.Client the placement
// validator needs.
type ChainNode interface {
	HasOrder(ctx context.Context, id types.OrderId) (bool, error)
}

// QueueEvent is what the actor publishes to the store sink.
type QueueEvent struct {
	Kind  QueueEventKind
	Order *types.AcceptedOrder // set for Placed/PlacedMarket
	Pair  types.Pair           // set for Canceled
	ID    types.OrderId

	// InsufficientAmount and AssetId are set for a Canceled event raised by
	// a forced cancellation (CancelNotEnoughCoinsOrders): the shortfall this
	// order's reservation was asked to cover for that asset, and the asset
	// itself. Both are the zero value for every other cancellation path.
	InsufficientAmount decimal.Decimal
	AssetId            types.Asset
}

type QueueEventKind int

const (
	EventPlaced QueueEventKind = iota
	EventPlacedMarket
	EventCanceled
)

// StoreSink is the append-only event log collaborator. Store returns
// (persisted=true, nil) on success, (persisted=false, nil) when
// persistence is disabled (FeatureDisabled), or a non-nil err on a
// transient failure (CanNotPersistEvent).
type StoreSink interface {
	Store(ctx context.Context, event QueueEvent) (persisted bool, err error)
}

// OrderDB is the simple key/value persistence collaborator.
type OrderDB interface {
	SaveOrder(ctx context.Context, ao types.AcceptedOrder) error
	SaveOrderInfo(ctx context.Context, id types.OrderId, owner types.Address, status types.OrderStatus) error
	Status(ctx context.Context, id types.OrderId) (types.OrderStatus, error)
	ContainsInfo(ctx context.Context, id types.OrderId) (bool, error)
	LoadRemainingOrders(ctx context.Context, owner types.Address, pair *types.Pair, knownActive map[types.OrderId]struct{}) ([]types.AcceptedOrder, error)
}

// OrderBookSnapshot is the minimal view of the book the validator consults.
// The matching engine itself is out of scope; this is a narrow read-only
// collaborator interface.
type OrderBookSnapshot interface {
	// Exists reports whether the pair currently has any orders booked,
	// used only as a best-effort sanity signal; price/amount arithmetic
	// beyond trivial subtraction is explicitly out of scope.
	Exists(pair types.Pair) bool
}

// Notifier is the operational alerting collaborator (forced cancellations,
// fatal invariant violations).
type Notifier interface {
	Notify(level string, message string)
}

// NoopNotifier discards everything; used when no notifier is configured.
type NoopNotifier struct{}

func (NoopNotifier) Notify(string, string) {}

// noopOrderBook reports no pair ever exists; a safe default for tests and
// for deployments that haven't wired a real book indexer yet.
type noopOrderBook struct{}

func (noopOrderBook) Exists(types.Pair) bool { return false }

// PendingCommand tracks a placement or cancellation awaiting resolution.
// At most one of PlaceReply/CancelReply is set, mirroring IsPlacement;
// cancels raised by CancelAllOrders or a forced cancellation set neither.
type PendingCommand struct {
	IsPlacement bool
	Order       types.Order // only meaningful when IsPlacement
	IsMarket    bool        // only meaningful when IsPlacement
	PlaceReply  chan PlaceResult
	CancelReply chan CancelResult // nil for a batch-cancel-initiated cancel
}

// validationError maps an error surfaced by the chain node / balance oracle
// into the taxonomy the placement pipeline understands: a broken connection
// to the chain node is reported distinctly so a caller can tell "try again"
// apart from "something is actually wrong".
func validationError(err error) *matchererr.MatcherError {
	if err == nil {
		return nil
	}
	if errors.Is(err, chainnode.ErrConnectionLost) {
		return matchererr.WavesNodeConnectionBroken(err)
	}
	return matchererr.UnexpectedError(err)
}
