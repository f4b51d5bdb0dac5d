package seeder

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/procure/internal/database"
	"github.com/Additional-Code/procure/internal/entity"
)

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger}
}

// Orders seeds demo users and draft orders if they are missing.
func (s *Seeder) Orders(ctx context.Context) error {
	now := time.Now().UTC()

	users := []entity.User{
		{Name: "Alice Admin", Email: "alice@example.com", CreatedAt: now, UpdatedAt: now},
		{Name: "Bob Buyer", Email: "bob@example.com", CreatedAt: now, UpdatedAt: now},
	}
	for _, sample := range users {
		user := sample
		if _, err := s.db.NewInsert().Model(&user).
			On("CONFLICT (email) DO NOTHING").
			Exec(ctx); err != nil {
			return err
		}
	}

	var creator entity.User
	if err := s.db.NewSelect().Model(&creator).
		Where("email = ?", "bob@example.com").
		Scan(ctx); err != nil {
		return err
	}

	date := now.Format("20060102")
	samples := []struct {
		number string
		notes  string
		items  []*entity.OrderItem
	}{
		{
			number: "ORD-" + date + "-9001",
			notes:  "office starter kit",
			items: []*entity.OrderItem{
				entity.NewOrderItem("Laptop", "14 inch", 1, decimal.RequireFromString("899.00")),
				entity.NewOrderItem("Mouse", "", 2, decimal.RequireFromString("25.50")),
			},
		},
		{
			number: "ORD-" + date + "-9002",
			notes:  "meeting room refresh",
			items: []*entity.OrderItem{
				entity.NewOrderItem("Conference display", "75 inch", 1, decimal.RequireFromString("1899.00")),
			},
		},
	}

	seeded := 0
	for _, sample := range samples {
		order, err := entity.NewOrder(sample.number, sample.notes, sample.items, creator.ID, now)
		if err != nil {
			return err
		}

		res, err := s.db.NewInsert().Model(order).
			On("CONFLICT (order_number) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, err := res.RowsAffected(); err != nil || affected == 0 {
			continue
		}

		for _, item := range order.Items {
			item.OrderID = order.ID
		}
		if _, err := s.db.NewInsert().Model(&order.Items).Exec(ctx); err != nil {
			return err
		}

		entry := entity.NewHistoryEntry(order.ID, nil, entity.StatusDraft, creator.ID, "", now)
		if _, err := s.db.NewInsert().Model(entry).Exec(ctx); err != nil {
			return err
		}
		seeded++
	}

	if s.logger != nil {
		s.logger.Info("seeded orders", zap.Int("count", seeded))
	}
	return nil
}
