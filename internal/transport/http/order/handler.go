package order

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/procure/internal/dto"
	"github.com/Additional-Code/procure/internal/presentation/http/response"
	service "github.com/Additional-Code/procure/internal/service/order"
	"github.com/Additional-Code/procure/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/procure/transport/http/order")

// Handler exposes the order lifecycle over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo group.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders")
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.getByID)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.remove)
	g.POST("/:id/restore", h.restore)
	g.POST("/:id/submit", h.submit)
	g.POST("/:id/approve", h.approve)
	g.POST("/:id/reject", h.reject)
	g.GET("/:id/history", h.history)
}

type itemPayload struct {
	ProductName string          `json:"product_name"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type orderPayload struct {
	Notes  string        `json:"notes"`
	Items  []itemPayload `json:"items"`
	UserID int64         `json:"user_id"`
}

type actionPayload struct {
	UserID  int64  `json:"user_id"`
	Comment string `json:"comment"`
}

func (h *Handler) list(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.list")
	defer span.End()

	orders, err := h.svc.List(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrders(orders)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload orderPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if err := validateOrderPayload(payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create", trace.WithAttributes(attribute.Int64("actor.id", payload.UserID)))
	defer span.End()

	order, err := h.svc.Create(ctx, service.CreateInput{
		Notes:   payload.Notes,
		Items:   toItemInputs(payload.Items),
		ActorID: payload.UserID,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) update(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	var payload orderPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if err := validateOrderPayload(payload); err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.update", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Update(ctx, service.UpdateInput{
		OrderID: id,
		Notes:   payload.Notes,
		Items:   toItemInputs(payload.Items),
		ActorID: payload.UserID,
	})
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) submit(c echo.Context) error {
	b := response.New(c)

	id, payload, err := bindAction(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.submit", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Submit(ctx, id, payload.UserID)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) approve(c echo.Context) error {
	b := response.New(c)

	id, payload, err := bindAction(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.approve", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Approve(ctx, id, payload.UserID, payload.Comment)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) reject(c echo.Context) error {
	b := response.New(c)

	id, payload, err := bindAction(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.reject", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Reject(ctx, id, payload.UserID, payload.Comment)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromOrder(order)).Build()
}

func (h *Handler) history(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.history", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	entries, err := h.svc.History(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromHistoryList(entries)).Build()
}

func (h *Handler) remove(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.delete", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if err := h.svc.Delete(ctx, id); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithMeta("deleted", true).Build()
}

func (h *Handler) restore(c echo.Context) error {
	b := response.New(c)

	id, err := orderID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.restore", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if err := h.svc.Restore(ctx, id); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithMeta("restored", true).Build()
}

func bindAction(c echo.Context) (int64, actionPayload, error) {
	id, err := orderID(c)
	if err != nil {
		return 0, actionPayload{}, err
	}
	var payload actionPayload
	if err := c.Bind(&payload); err != nil {
		return 0, actionPayload{}, errorbank.BadRequest("invalid payload", errorbank.WithCause(err))
	}
	if payload.UserID <= 0 {
		return 0, actionPayload{}, errorbank.Unprocessable("validation failed", errorbank.WithDetail("errors", []string{"user_id is required"}))
	}
	return id, payload, nil
}

func orderID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errorbank.BadRequest("invalid id", errorbank.WithCause(err))
	}
	return id, nil
}

func toItemInputs(items []itemPayload) []service.ItemInput {
	inputs := make([]service.ItemInput, 0, len(items))
	for _, item := range items {
		inputs = append(inputs, service.ItemInput{
			ProductName: item.ProductName,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return inputs
}

// validateOrderPayload enforces boundary validation for create and update;
// the lifecycle engine assumes well-typed input past this point.
func validateOrderPayload(payload orderPayload) error {
	var problems []string
	if payload.UserID <= 0 {
		problems = append(problems, "user_id is required")
	}
	if len(payload.Items) == 0 {
		problems = append(problems, "items must contain at least one entry")
	}
	for i, item := range payload.Items {
		if item.ProductName == "" {
			problems = append(problems, fmt.Sprintf("items[%d].product_name is required", i))
		}
		if item.Quantity < 1 {
			problems = append(problems, fmt.Sprintf("items[%d].quantity must be at least 1", i))
		}
		if !item.UnitPrice.IsPositive() {
			problems = append(problems, fmt.Sprintf("items[%d].unit_price must be greater than 0", i))
		}
	}
	if len(problems) > 0 {
		return errorbank.Unprocessable("validation failed", errorbank.WithDetail("errors", problems))
	}
	return nil
}
