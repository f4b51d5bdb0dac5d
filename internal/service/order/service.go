package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/procure/internal/cache"
	"github.com/Additional-Code/procure/internal/config"
	"github.com/Additional-Code/procure/internal/entity"
	"github.com/Additional-Code/procure/internal/identity"
	"github.com/Additional-Code/procure/internal/messaging"
	repo "github.com/Additional-Code/procure/internal/repository/order"
	"github.com/Additional-Code/procure/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/procure/service/order")

// createAttempts bounds the whole-operation retry when the order number
// unique index rejects a commit. Generation is re-run on every attempt.
const createAttempts = 3

// Service is the order lifecycle engine. Every operation loads the current
// aggregate, delegates to its guards, and commits the resulting order, item,
// and ledger writes as one atomic unit.
type Service struct {
	store     Repository
	actors    identity.Resolver
	cache     cache.Store
	cacheTTL  time.Duration
	logger    *zap.Logger
	publisher messaging.Client
	messaging messagingConfig
	threshold decimal.Decimal
}

// messagingConfig contains messaging specific knobs we care about.
type messagingConfig struct {
	enabled bool
	topic   string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Actors     identity.Resolver
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
	Publisher  messaging.Client
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		store:     p.Repository,
		actors:    p.Actors,
		cache:     p.Cache,
		cacheTTL:  p.Config.Cache.DefaultTTL,
		logger:    p.Logger,
		publisher: p.Publisher,
		messaging: messagingConfig{
			enabled: p.Config.Messaging.Enabled,
			topic:   p.Config.Messaging.Kafka.Topic,
		},
		threshold: p.Config.Approval.Threshold,
	}
}

// ItemInput is one requested product line.
type ItemInput struct {
	ProductName string
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// CreateInput carries the payload for Create.
type CreateInput struct {
	Notes   string
	Items   []ItemInput
	ActorID int64
}

// UpdateInput carries the payload for Update.
type UpdateInput struct {
	OrderID int64
	Notes   string
	Items   []ItemInput
	ActorID int64
}

// Get retrieves an order with items, ledger, and resolved identities,
// consulting cache when available.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if order, err := s.getFromCache(ctx, id); err == nil {
		return order, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("orders cache read failed", zap.Int64("id", id), zap.Error(err))
	}

	order, err := s.store.GetDetailed(ctx, id)
	if err != nil {
		return nil, s.storeError(span, err)
	}

	if err := s.storeInCache(ctx, order); err != nil {
		s.logger.Warn("orders cache write failed", zap.Int64("id", id), zap.Error(err))
	}

	return order, nil
}

// List returns all active orders, newest first.
func (s *Service) List(ctx context.Context) ([]*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.List")
	defer span.End()

	orders, err := s.store.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list orders", errorbank.WithCause(err))
	}
	return orders, nil
}

// Create builds a draft order with a freshly generated order number and
// commits it together with its items and the creation ledger entry. The
// storage-level unique index backstops the generator; on a duplicate-number
// conflict the whole operation is retried with a new number.
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Create", trace.WithAttributes(attribute.Int64("actor.id", in.ActorID)))
	defer span.End()

	if _, err := s.resolveActor(ctx, in.ActorID); err != nil {
		return nil, err
	}
	if len(in.Items) == 0 {
		return nil, mapDomainError(entity.ErrEmptyOrder)
	}

	now := time.Now().UTC()
	var order *entity.Order
	for attempt := 1; attempt <= createAttempts; attempt++ {
		number, err := s.generateOrderNumber(ctx, now)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "number generation failed")
			return nil, errorbank.Internal("failed to generate order number", errorbank.WithCause(err))
		}

		candidate, err := entity.NewOrder(number, in.Notes, buildItems(in.Items), in.ActorID, now)
		if err != nil {
			return nil, mapDomainError(err)
		}

		entry := entity.NewHistoryEntry(0, nil, entity.StatusDraft, in.ActorID, "", now)
		err = s.store.CreateWithHistory(ctx, candidate, entry)
		if err == nil {
			order = candidate
			break
		}
		if errors.Is(err, repo.ErrDuplicateNumber) {
			s.logger.Warn("order number collided at commit, retrying",
				zap.String("number", number),
				zap.Int("attempt", attempt),
			)
			continue
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create order", errorbank.WithCause(err))
	}
	if order == nil {
		span.SetStatus(codes.Error, "order number conflict")
		return nil, errorbank.Conflict("order number conflict, retry the request",
			errorbank.WithDetail("code", "order_number_conflict"))
	}

	span.SetAttributes(attribute.String("order.number", order.OrderNumber))
	s.publishStatusChanged(ctx, order, nil, in.ActorID)

	return s.refresh(ctx, order.ID)
}

// Update replaces the notes and full item set of a modifiable order and
// recomputes the total. Content edits are not recorded in the ledger.
func (s *Service) Update(ctx context.Context, in UpdateInput) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Update", trace.WithAttributes(attribute.Int64("order.id", in.OrderID)))
	defer span.End()

	if _, err := s.resolveActor(ctx, in.ActorID); err != nil {
		return nil, err
	}

	order, err := s.store.GetByID(ctx, in.OrderID)
	if err != nil {
		return nil, s.storeError(span, err)
	}

	if err := order.ReplaceItems(buildItems(in.Items), in.Notes, time.Now().UTC()); err != nil {
		return nil, mapDomainError(err)
	}

	if err := s.store.Update(ctx, order); err != nil {
		return nil, s.storeError(span, err)
	}

	s.invalidate(ctx, order.ID)
	return s.refresh(ctx, order.ID)
}

// Submit moves a draft order into the approval pipeline, auto-approving
// below-threshold totals.
func (s *Service) Submit(ctx context.Context, orderID, actorID int64) (*entity.Order, error) {
	return s.transition(ctx, "OrderService.Submit", orderID, actorID,
		func(order *entity.Order, now time.Time) (entity.Status, string, error) {
			from, err := order.Submit(actorID, s.threshold, now)
			return from, "", err
		})
}

// Approve marks a pending order approved by the acting user.
func (s *Service) Approve(ctx context.Context, orderID, actorID int64, comment string) (*entity.Order, error) {
	return s.transition(ctx, "OrderService.Approve", orderID, actorID,
		func(order *entity.Order, now time.Time) (entity.Status, string, error) {
			from, err := order.Approve(actorID, now)
			return from, comment, err
		})
}

// Reject sends a pending order back for rework; the comment is mandatory.
func (s *Service) Reject(ctx context.Context, orderID, actorID int64, comment string) (*entity.Order, error) {
	return s.transition(ctx, "OrderService.Reject", orderID, actorID,
		func(order *entity.Order, now time.Time) (entity.Status, string, error) {
			from, err := order.Reject(comment, now)
			return from, comment, err
		})
}

// transition runs one guarded status change: load, guard, commit order plus
// exactly one ledger entry atomically, then return the refreshed aggregate.
func (s *Service) transition(
	ctx context.Context,
	spanName string,
	orderID, actorID int64,
	fire func(order *entity.Order, now time.Time) (entity.Status, string, error),
) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.Int64("actor.id", actorID),
	))
	defer span.End()

	if _, err := s.resolveActor(ctx, actorID); err != nil {
		return nil, err
	}

	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, s.storeError(span, err)
	}

	now := time.Now().UTC()
	from, comment, err := fire(order, now)
	if err != nil {
		return nil, mapDomainError(err)
	}

	entry := entity.NewHistoryEntry(order.ID, &from, order.Status, actorID, comment, now)
	if err := s.store.UpdateWithHistory(ctx, order, entry, from); err != nil {
		return nil, s.storeError(span, err)
	}

	span.SetAttributes(attribute.String("order.status", order.Status.String()))
	s.invalidate(ctx, order.ID)
	s.publishStatusChanged(ctx, order, &from, actorID)

	return s.refresh(ctx, order.ID)
}

// History returns the append-only ledger for an order in commit order.
func (s *Service) History(ctx context.Context, orderID int64) ([]*entity.OrderStatusHistory, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.History", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	if _, err := s.store.GetByID(ctx, orderID); err != nil {
		return nil, s.storeError(span, err)
	}

	entries, err := s.store.ListHistory(ctx, orderID)
	if err != nil {
		return nil, s.storeError(span, err)
	}
	return entries, nil
}

// Delete marks an order deleted. It disappears from default retrieval but
// stays recoverable; its order number remains claimed.
func (s *Service) Delete(ctx context.Context, orderID int64) error {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Delete", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	if err := s.store.SoftDelete(ctx, orderID); err != nil {
		return s.storeError(span, err)
	}
	s.invalidate(ctx, orderID)
	return nil
}

// Restore clears the soft-deletion marker of an order.
func (s *Service) Restore(ctx context.Context, orderID int64) error {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Restore", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	if err := s.store.Restore(ctx, orderID); err != nil {
		return s.storeError(span, err)
	}
	return nil
}

func (s *Service) resolveActor(ctx context.Context, actorID int64) (*entity.User, error) {
	user, err := s.actors.Resolve(ctx, actorID)
	if errors.Is(err, identity.ErrUnknownActor) {
		return nil, errorbank.BadRequest("unknown actor",
			errorbank.WithDetail("code", "unknown_actor"),
			errorbank.WithDetail("actor_id", actorID),
		)
	}
	if err != nil {
		return nil, errorbank.Internal("failed to resolve actor", errorbank.WithCause(err))
	}
	return user, nil
}

func (s *Service) refresh(ctx context.Context, orderID int64) (*entity.Order, error) {
	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, errorbank.Internal("failed to reload order", errorbank.WithCause(err))
	}
	return order, nil
}

func (s *Service) storeError(span trace.Span, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return errorbank.NotFound("order not found")
	}
	if errors.Is(err, repo.ErrStatusConflict) {
		return errorbank.Conflict("order was modified concurrently",
			errorbank.WithDetail("code", "invalid_transition"))
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "repository error")
	return errorbank.Internal("repository failure", errorbank.WithCause(err))
}

// mapDomainError translates aggregate guard failures into stable error kinds.
func mapDomainError(err error) error {
	switch {
	case errors.Is(err, entity.ErrEmptyOrder):
		return errorbank.Unprocessable("order must have at least one item",
			errorbank.WithDetail("code", "order_empty"))
	case errors.Is(err, entity.ErrImmutableState):
		return errorbank.Conflict("approved orders cannot be modified",
			errorbank.WithDetail("code", "order_immutable"))
	case errors.Is(err, entity.ErrMissingComment):
		return errorbank.BadRequest("rejection requires a comment",
			errorbank.WithDetail("code", "comment_required"))
	case entity.IsInvalidTransition(err):
		return errorbank.Conflict(err.Error(),
			errorbank.WithDetail("code", "invalid_transition"))
	}
	return errorbank.Internal("order operation failed", errorbank.WithCause(err))
}

func buildItems(inputs []ItemInput) []*entity.OrderItem {
	items := make([]*entity.OrderItem, 0, len(inputs))
	for _, in := range inputs {
		items = append(items, entity.NewOrderItem(in.ProductName, in.Description, in.Quantity, in.UnitPrice))
	}
	return items
}

func (s *Service) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, s.cacheKey(id)); err != nil {
		s.logger.Warn("orders cache invalidation failed", zap.Int64("id", id), zap.Error(err))
	}
}

func (s *Service) publishStatusChanged(ctx context.Context, order *entity.Order, from *entity.Status, actorID int64) {
	if !s.messaging.enabled || s.publisher == nil {
		return
	}
	event := StatusChangedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		From:        from,
		To:          order.Status,
		ActorID:     actorID,
		TotalAmount: order.TotalAmount.StringFixed(2),
		ChangedAt:   order.UpdatedAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal status changed event", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, []byte(fmt.Sprintf("order-%d", order.ID)), payload); err != nil {
		s.logger.Error("publish status changed event", zap.Error(err))
	}
}

func (s *Service) cacheKey(id int64) string {
	return fmt.Sprintf("orders:%d", id)
}

func (s *Service) getFromCache(ctx context.Context, id int64) (*entity.Order, error) {
	if s.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	bytes, err := s.cache.Get(ctx, s.cacheKey(id))
	if err != nil {
		return nil, err
	}
	var order entity.Order
	if err := json.Unmarshal(bytes, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Service) storeInCache(ctx context.Context, order *entity.Order) error {
	if s.cache == nil || order == nil {
		return nil
	}
	bytes, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, s.cacheKey(order.ID), bytes, s.cacheTTL)
}

// StatusChangedEvent is emitted after every committed status transition,
// including creation (From is nil).
type StatusChangedEvent struct {
	OrderID     int64          `json:"order_id"`
	OrderNumber string         `json:"order_number"`
	From        *entity.Status `json:"from_status"`
	To          entity.Status  `json:"to_status"`
	ActorID     int64          `json:"actor_id"`
	TotalAmount string         `json:"total_amount"`
	ChangedAt   time.Time      `json:"changed_at"`
}
