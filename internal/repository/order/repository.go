package order

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/procure/internal/database"
	"github.com/Additional-Code/procure/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/procure/repository/order")

// ErrNotFound is returned when an order is missing or soft-deleted.
var ErrNotFound = errors.New("order not found")

// ErrDuplicateNumber is returned when the unique index on order_number
// rejects a write. The constraint is the authoritative backstop for the
// probe-then-insert number generation.
var ErrDuplicateNumber = errors.New("order number already exists")

// ErrStatusConflict is returned when a guarded write matched no row because
// the order's status changed (or the order was deleted) after it was loaded.
var ErrStatusConflict = errors.New("order status changed concurrently")

// Repository encapsulates read/write access for orders, their items, and the
// status history ledger.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// GetByID fetches an order with its items. Soft-deleted orders are excluded.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order := new(entity.Order)
	err := r.reader.NewSelect().Model(order).
		Relation("Items").
		Where("o.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

// GetDetailed fetches an order with items, ledger, and resolved identities.
func (r *Repository) GetDetailed(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetDetailed", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order := new(entity.Order)
	err := r.reader.NewSelect().Model(order).
		Relation("Items").
		Relation("History", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("created_at ASC").Order("id ASC")
		}).
		Relation("History.Actor").
		Relation("Creator").
		Relation("Approver").
		Where("o.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

// List returns non-deleted orders with items, newest first.
func (r *Repository) List(ctx context.Context) ([]*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.List")
	defer span.End()

	var orders []*entity.Order
	err := r.reader.NewSelect().Model(&orders).
		Relation("Items").
		Order("created_at DESC").
		Order("id DESC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

// Count returns the number of orders, soft-deleted included. Deletion does
// not free an order number, so the generator must see the full set.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Count")
	defer span.End()

	n, err := r.reader.NewSelect().Model((*entity.Order)(nil)).
		WhereAllWithDeleted().
		Count(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count failed")
		return 0, err
	}
	return int64(n), nil
}

// ExistsByNumber probes a candidate order number, soft-deleted included.
func (r *Repository) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ExistsByNumber", trace.WithAttributes(attribute.String("order.number", number)))
	defer span.End()

	exists, err := r.reader.NewSelect().Model((*entity.Order)(nil)).
		WhereAllWithDeleted().
		Where("order_number = ?", number).
		Exists(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "exists failed")
		return false, err
	}
	return exists, nil
}

// CreateWithHistory inserts the order, its items, and the creation ledger
// entry as one transaction. A unique-index violation on the order number is
// surfaced as ErrDuplicateNumber so the caller can regenerate and retry.
func (r *Repository) CreateWithHistory(ctx context.Context, order *entity.Order, entry *entity.OrderStatusHistory) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.CreateWithHistory", trace.WithAttributes(attribute.String("order.number", order.OrderNumber)))
	defer span.End()

	err := r.writer.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return err
		}
		for _, item := range order.Items {
			item.OrderID = order.ID
		}
		if _, err := tx.NewInsert().Model(&order.Items).Exec(ctx); err != nil {
			return err
		}
		entry.OrderID = order.ID
		_, err := tx.NewInsert().Model(entry).Exec(ctx)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			span.SetStatus(codes.Error, "duplicate order number")
			return ErrDuplicateNumber
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	return nil
}

// Update rewrites the order row and replaces the full item set in one
// transaction. Content edits are not audited, so no ledger entry is written.
// The write is guarded against a concurrent approval: once a row reaches
// approved it is immutable, so a racing edit must lose.
func (r *Repository) Update(ctx context.Context, order *entity.Order) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Update", trace.WithAttributes(attribute.Int64("order.id", order.ID)))
	defer span.End()

	err := r.writer.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := updateOrderRow(ctx, tx, order, func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.Where("status != ?", entity.StatusApproved)
		}); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*entity.OrderItem)(nil)).
			Where("order_id = ?", order.ID).
			Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&order.Items).Exec(ctx)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	return nil
}

// UpdateWithHistory commits a status transition and its ledger entry as one
// transaction. Exactly one entry is appended per successful transition. The
// row update carries the originating status as a predicate, so of two racing
// mutually exclusive transitions only the first matches; the loser gets
// ErrStatusConflict and writes nothing.
func (r *Repository) UpdateWithHistory(ctx context.Context, order *entity.Order, entry *entity.OrderStatusHistory, from entity.Status) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.UpdateWithHistory", trace.WithAttributes(
		attribute.Int64("order.id", order.ID),
		attribute.String("order.status", order.Status.String()),
	))
	defer span.End()

	err := r.writer.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := updateOrderRow(ctx, tx, order, func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.Where("status = ?", from)
		}); err != nil {
			return err
		}
		entry.OrderID = order.ID
		_, err := tx.NewInsert().Model(entry).Exec(ctx)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	return nil
}

// ListHistory returns the ledger for an order in commit order, with the
// acting identity resolved for display.
func (r *Repository) ListHistory(ctx context.Context, orderID int64) ([]*entity.OrderStatusHistory, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListHistory", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	var entries []*entity.OrderStatusHistory
	err := r.reader.NewSelect().Model(&entries).
		Relation("Actor").
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return entries, nil
}

// SoftDelete marks an order deleted. The row and its ledger remain; the
// order number stays claimed.
func (r *Repository) SoftDelete(ctx context.Context, id int64) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.SoftDelete", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	res, err := r.writer.NewDelete().Model((*entity.Order)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return err
	}
	return requireAffected(res)
}

// Restore clears the soft-deletion marker.
func (r *Repository) Restore(ctx context.Context, id int64) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Restore", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.Order)(nil)).
		Set("deleted_at = NULL").
		Where("id = ?", id).
		WhereAllWithDeleted().
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "restore failed")
		return err
	}
	return requireAffected(res)
}

func updateOrderRow(ctx context.Context, tx bun.Tx, order *entity.Order, guard func(*bun.UpdateQuery) *bun.UpdateQuery) error {
	q := tx.NewUpdate().Model(order).
		Column("order_number", "status", "total_amount", "notes", "approved_by", "approved_at", "updated_at").
		WherePK()
	if guard != nil {
		q = guard(q)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation recognises duplicate-key errors from the supported
// drivers (postgres 23505, mysql 1062).
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return false
}
