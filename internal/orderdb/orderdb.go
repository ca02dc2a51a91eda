// Package orderdb is the OrderDB collaborator: per-order and per-order-info
// persistence backed by gorm, the same "PostgreSQL if given a connection
// string, SQLite otherwise" setup the teacher's own database layer uses
// (internal/database/database.go), auto-migrated the same way.
package orderdb

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/dexmatcher/types"
)

// orderRow is the persisted shell of an AcceptedOrder.
type orderRow struct {
	ID                string `gorm:"column:id;primaryKey"`
	Sender            string `gorm:"column:sender;index"`
	AmountAsset       string `gorm:"column:amount_asset"`
	PriceAsset        string `gorm:"column:price_asset"`
	Side              int    `gorm:"column:side"`
	Price             decimal.Decimal `gorm:"column:price;type:decimal(36,18)"`
	Amount            decimal.Decimal `gorm:"column:amount;type:decimal(36,18)"`
	MatcherFee        decimal.Decimal `gorm:"column:matcher_fee;type:decimal(36,18)"`
	FeeAsset          string          `gorm:"column:fee_asset"`
	Timestamp         time.Time       `gorm:"column:timestamp"`
	Expiration        time.Time       `gorm:"column:expiration"`
	IsMarket          bool            `gorm:"column:is_market"`
	FilledAmount      decimal.Decimal `gorm:"column:filled_amount;type:decimal(36,18)"`
	FilledFee         decimal.Decimal `gorm:"column:filled_fee;type:decimal(36,18)"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (orderRow) TableName() string { return "orders" }

// orderInfoRow is the terminal/point-in-time status record, kept separate
// from orderRow the same way the teacher keeps Trade and Alert as distinct
// tables rather than one wide one.
type orderInfoRow struct {
	OrderID      string `gorm:"column:order_id;primaryKey"`
	Owner        string `gorm:"column:owner;index"`
	Status       int    `gorm:"column:status"`
	FilledAmount decimal.Decimal `gorm:"column:filled_amount;type:decimal(36,18)"`
	FilledFee    decimal.Decimal `gorm:"column:filled_fee;type:decimal(36,18)"`
	UpdatedAt    time.Time
}

func (orderInfoRow) TableName() string { return "order_info" }

// DB is the gorm-backed OrderDB.
type DB struct {
	db *gorm.DB
}

func New(dsn string) (*DB, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("🗄️  order database connected (PostgreSQL)")
	} else {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dsn).Msg("🗄️  order database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&orderRow{}, &orderInfoRow{}); err != nil {
		return nil, err
	}
	return &DB{db: db}, nil
}

func (d *DB) SaveOrder(ctx context.Context, ao types.AcceptedOrder) error {
	row := toOrderRow(ao)
	return d.db.WithContext(ctx).Save(&row).Error
}

func (d *DB) SaveOrderInfo(ctx context.Context, id types.OrderId, owner types.Address, status types.OrderStatus) error {
	row := orderInfoRow{
		OrderID:      id.Hex(),
		Owner:        strings.ToLower(owner.Hex()),
		Status:       int(status.Kind),
		FilledAmount: status.FilledAmount,
		FilledFee:    status.FilledFee,
	}
	return d.db.WithContext(ctx).Save(&row).Error
}

func (d *DB) Status(ctx context.Context, id types.OrderId) (types.OrderStatus, error) {
	var row orderInfoRow
	err := d.db.WithContext(ctx).First(&row, "order_id = ?", id.Hex()).Error
	if err == gorm.ErrRecordNotFound {
		return types.OrderStatus{Kind: types.StatusNotFound}, nil
	}
	if err != nil {
		return types.OrderStatus{}, err
	}
	return types.OrderStatus{
		Kind:         types.StatusKind(row.Status),
		FilledAmount: row.FilledAmount,
		FilledFee:    row.FilledFee,
	}, nil
}

func (d *DB) ContainsInfo(ctx context.Context, id types.OrderId) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&orderInfoRow{}).Where("order_id = ?", id.Hex()).Count(&count).Error
	return count > 0, err
}

// LoadRemainingOrders returns every persisted order for owner (optionally
// restricted to pair) whose id is not already in knownActive, joined with
// its latest status.
func (d *DB) LoadRemainingOrders(ctx context.Context, owner types.Address, pair *types.Pair, knownActive map[types.OrderId]struct{}) ([]types.AcceptedOrder, error) {
	q := d.db.WithContext(ctx).Where("sender = ?", strings.ToLower(owner.Hex()))
	if pair != nil {
		q = q.Where("amount_asset = ? AND price_asset = ?", pair.AmountAsset.String(), pair.PriceAsset.String())
	}
	var rows []orderRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]types.AcceptedOrder, 0, len(rows))
	for _, row := range rows {
		id, err := types.OrderIdFromHex(row.ID)
		if err != nil {
			continue
		}
		if _, active := knownActive[id]; active {
			continue
		}
		out = append(out, fromOrderRow(row))
	}
	return out, nil
}

func toOrderRow(ao types.AcceptedOrder) orderRow {
	o := ao.Order
	return orderRow{
		ID:           o.ID.Hex(),
		Sender:       strings.ToLower(o.Sender.Hex()),
		AmountAsset:  o.Pair.AmountAsset.String(),
		PriceAsset:   o.Pair.PriceAsset.String(),
		Side:         int(o.Side),
		Price:        o.Price,
		Amount:       o.Amount,
		MatcherFee:   o.MatcherFee,
		FeeAsset:     o.FeeAsset.String(),
		Timestamp:    o.Timestamp,
		Expiration:   o.Expiration,
		IsMarket:     ao.IsMarket,
		FilledAmount: ao.FilledAmount,
		FilledFee:    ao.FilledFee,
	}
}

func fromOrderRow(row orderRow) types.AcceptedOrder {
	id, _ := types.OrderIdFromHex(row.ID)
	order := types.Order{
		ID:         id,
		Sender:     parseAddress(row.Sender),
		Pair:       types.Pair{AmountAsset: parseAsset(row.AmountAsset), PriceAsset: parseAsset(row.PriceAsset)},
		Side:       types.Side(row.Side),
		Price:      row.Price,
		Amount:     row.Amount,
		MatcherFee: row.MatcherFee,
		FeeAsset:   parseAsset(row.FeeAsset),
		Timestamp:  row.Timestamp,
		Expiration: row.Expiration,
	}
	return types.AcceptedOrder{
		Order:        order,
		FilledAmount: row.FilledAmount,
		FilledFee:    row.FilledFee,
		IsMarket:     row.IsMarket,
	}
}

func parseAsset(s string) types.Asset {
	if s == "NATIVE" || s == "" {
		return types.NativeAsset
	}
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(b) != 20 {
		return types.NativeAsset
	}
	var addr types.Address
	copy(addr[:], b)
	return types.IssuedAsset(addr)
}

func parseAddress(s string) types.Address {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	var addr types.Address
	if err == nil && len(b) == 20 {
		copy(addr[:], b)
	}
	return addr
}
