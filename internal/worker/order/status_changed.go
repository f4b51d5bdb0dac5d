package order

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/procure/internal/config"
	"github.com/Additional-Code/procure/internal/messaging"
	ordersvc "github.com/Additional-Code/procure/internal/service/order"
	"github.com/Additional-Code/procure/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/procure/worker/order")

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(
			NewStatusChangedHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewStatusChangedHandler sets up a worker handler that reacts to committed
// status transitions, the hook point for downstream notifications.
func NewStatusChangedHandler(logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.orders.statusChanged", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var event ordersvc.StatusChangedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode status changed event", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}

		from := "none"
		if event.From != nil {
			from = event.From.String()
		}
		logger.Info("order status changed",
			zap.Int64("order_id", event.OrderID),
			zap.String("number", event.OrderNumber),
			zap.String("from", from),
			zap.String("to", event.To.String()),
			zap.Int64("actor_id", event.ActorID),
			zap.String("total", event.TotalAmount),
		)

		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}
}
