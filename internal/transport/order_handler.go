package transport

import (
	"net/http"

	"shop-admin/internal/domain"
	"shop-admin/internal/middleware"
	"shop-admin/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CheckoutLine is one product of a checkout request
type CheckoutLine struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
}

// CheckoutRequest is what a device sends to place an order
type CheckoutRequest struct {
	GuestUserID string          `json:"guestUserId" validate:"required"`
	TotalPrice  decimal.Decimal `json:"totalPrice" validate:"gte=0"`
	Products    []CheckoutLine  `json:"products" validate:"required,min=1,dive"`
}

// OrderActionRequest names the order an admin acts on
type OrderActionRequest struct {
	OrderID string `json:"orderId" validate:"required"`
	Reason  string `json:"reason" validate:"max=1000"`
}

// orderPages maps the page slug of /orders/{page} to its status filter
var orderPages = map[string]domain.OrderStatus{
	"pending":    domain.OrderPending,
	"processing": domain.OrderProcessing,
	"completed":  domain.OrderCompleted,
	"canceled":   domain.OrderCanceled,
}

// OrderHandler serves checkout and the admin order workflow
type OrderHandler struct {
	orders  service.OrderService
	pages   *Pages
	respond responder
	logger  *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orders service.OrderService, pages *Pages, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, pages: pages, respond: responder{logger: logger}, logger: logger}
}

// RegisterPublicRoutes mounts the checkout route
func (h *OrderHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/orders/order-checkout", h.Checkout)
}

// RegisterAdminRoutes mounts the order pages and status actions
func (h *OrderHandler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/orders/accept", h.Accept)
	r.Post("/orders/complete", h.Complete)
	r.Post("/orders/reject", h.Reject)
	r.Get("/orders/{page}", h.Page)
}

// Checkout places an order with all its lines
func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	const fallback = "Error while placing order"

	var req CheckoutRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.WriteError(w, r, h.logger, err, fallback)
		return
	}

	lines := make([]domain.OrderLine, 0, len(req.Products))
	for _, p := range req.Products {
		lines = append(lines, domain.OrderLine{ProductID: p.ProductID, Quantity: p.Quantity})
	}

	order, err := h.orders.CreateOrder(r.Context(), service.CheckoutInput{
		GuestUserID: req.GuestUserID,
		TotalPrice:  req.TotalPrice,
		Lines:       lines,
	})
	if err != nil {
		middleware.WriteError(w, r, h.logger, err, fallback)
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, "Order created successfully!", order)
}

// Page renders the orders of one status
func (h *OrderHandler) Page(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "page")
	status, ok := orderPages[slug]
	if !ok {
		middleware.RespondWithError(w, http.StatusNotFound, "page not found")
		return
	}

	orders, err := h.orders.FetchOrders(r.Context(), &status)
	if err != nil {
		h.logger.Error("Render orders page failed", zap.Error(err), zap.String("page", slug))
		orders = []*domain.OrderSummary{}
	}
	h.pages.Render(w, r, "order-pages/"+slug+"-orders", map[string]any{"orders": orders})
}

func (h *OrderHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "Order accepted.", func(req OrderActionRequest) (*domain.Order, error) {
		return h.orders.AcceptOrder(r.Context(), req.OrderID)
	})
}

func (h *OrderHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "Order completed.", func(req OrderActionRequest) (*domain.Order, error) {
		return h.orders.CompleteOrder(r.Context(), req.OrderID)
	})
}

func (h *OrderHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "Order rejected.", func(req OrderActionRequest) (*domain.Order, error) {
		return h.orders.RejectOrder(r.Context(), req.OrderID, req.Reason)
	})
}

func (h *OrderHandler) act(w http.ResponseWriter, r *http.Request, message string, fn func(OrderActionRequest) (*domain.Order, error)) {
	const fallback = "Error while updating order"
	index := "/orders/pending"

	var req OrderActionRequest
	if err := decodeRequest(r, &req); err != nil {
		h.respond.fail(w, r, err, fallback, index)
		return
	}
	order, err := fn(req)
	if err != nil {
		h.respond.fail(w, r, err, fallback, index)
		return
	}
	h.respond.done(w, r, http.StatusOK, message, order, index)
}
