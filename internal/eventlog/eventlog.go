// Package eventlog is the StoreSink collaborator: an append-only log of
// queue events (Placed, PlacedMarket, Canceled) backed by raw database/sql
// against lib/pq, grounded on the teacher's own persistence layer
// (storage/database.go) including its "DATABASE_URL unset -> disabled,
// every call becomes a no-op" behavior, which maps directly onto the
// Store sink's persisted=false / FeatureDisabled contract.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rs/zerolog/log"

	_ "github.com/lib/pq"

	"github.com/web3guy0/dexmatcher/internal/account"
)

// Log is the append-only StoreSink.
type Log struct {
	db      *sql.DB
	enabled bool
}

// New opens a connection against dsn. An empty dsn yields a disabled sink
// whose Store calls always report persisted=false, matching the teacher's
// "no DATABASE_URL, run without persistence" fallback.
func New(dsn string) (*Log, error) {
	if dsn == "" {
		log.Warn().Msg("📪 event log DSN not set, running without persistence")
		return &Log{enabled: false}, nil
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	l := &Log{db: db, enabled: true}
	if err := l.migrate(); err != nil {
		return nil, err
	}
	log.Info().Msg("📒 event log connected")
	return l, nil
}

func (l *Log) migrate() error {
	_, err := l.db.Exec(`
	CREATE TABLE IF NOT EXISTS queue_events (
		seq         BIGSERIAL PRIMARY KEY,
		order_id    TEXT NOT NULL,
		kind        SMALLINT NOT NULL,
		payload     JSONB,
		created_at  TIMESTAMP DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_queue_events_order ON queue_events(order_id);
	`)
	return err
}

// eventPayload is what actually gets stored for a Placed/PlacedMarket
// event; Canceled events carry no order snapshot, just the pair. Every
// field is flattened to its string form rather than relying on
// decimal.Decimal/common.Address's default JSON encoding.
type eventPayload struct {
	Pair               string `json:"pair,omitempty"`
	Sender             string `json:"sender,omitempty"`
	Side               string `json:"side,omitempty"`
	Price              string `json:"price,omitempty"`
	Amount             string `json:"amount,omitempty"`
	MatcherFee         string `json:"matcher_fee,omitempty"`
	FeeAsset           string `json:"fee_asset,omitempty"`
	IsMarket           bool   `json:"is_market,omitempty"`
	InsufficientAmount string `json:"insufficient_amount,omitempty"`
	AssetId            string `json:"asset_id,omitempty"`
}

// Store persists event. It reports persisted=false without error when the
// sink is disabled, matching the FeatureDisabled branch of the StoreSink
// contract; any database-level failure is returned as an error, mapped by
// the caller to CanNotPersistEvent.
func (l *Log) Store(ctx context.Context, event account.QueueEvent) (bool, error) {
	if !l.enabled {
		return false, nil
	}

	payload := eventPayload{Pair: event.Pair.String()}
	if event.Order != nil {
		o := event.Order.Order
		payload.Sender = o.Sender.Hex()
		payload.Side = o.Side.String()
		payload.Price = o.Price.String()
		payload.Amount = o.Amount.String()
		payload.MatcherFee = o.MatcherFee.String()
		payload.FeeAsset = o.FeeAsset.String()
		payload.IsMarket = event.Order.IsMarket
	}
	if event.Kind == account.EventCanceled && event.InsufficientAmount.IsPositive() {
		payload.InsufficientAmount = event.InsufficientAmount.String()
		payload.AssetId = event.AssetId.String()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO queue_events (order_id, kind, payload) VALUES ($1, $2, $3)
	`, event.ID.Hex(), int(event.Kind), body)
	if err != nil {
		return false, err
	}
	return true, nil
}
