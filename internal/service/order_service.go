package service

import (
	"context"
	"strings"

	"shop-admin/internal/domain"
	"shop-admin/internal/repository"
	"shop-admin/internal/storage"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CheckoutInput is a guest's order request. A zero TotalPrice is replaced by
// the sum of the line prices.
type CheckoutInput struct {
	GuestUserID string
	TotalPrice  decimal.Decimal
	Lines       []domain.OrderLine
}

func (in CheckoutInput) validate() error {
	var fields []domain.FieldError
	if strings.TrimSpace(in.GuestUserID) == "" {
		fields = append(fields, domain.FieldError{Field: "guestUserId", Message: "guestUserId is required"})
	}
	if in.TotalPrice.IsNegative() {
		fields = append(fields, domain.FieldError{Field: "totalPrice", Message: "totalPrice must not be negative"})
	}
	if len(in.Lines) == 0 {
		fields = append(fields, domain.FieldError{Field: "products", Message: "at least one product is required"})
	}
	for _, l := range in.Lines {
		if strings.TrimSpace(l.ProductID) == "" {
			fields = append(fields, domain.FieldError{Field: "products.productId", Message: "productId is required"})
			break
		}
		if l.Quantity < 0 {
			fields = append(fields, domain.FieldError{Field: "products.quantity", Message: "quantity must be at least 1"})
			break
		}
	}
	if len(fields) > 0 {
		return domain.NewValidationError(fields...)
	}
	return nil
}

// OrderService defines checkout and the admin order workflow
type OrderService interface {
	CreateOrder(ctx context.Context, in CheckoutInput) (*domain.Order, error)
	FetchOrders(ctx context.Context, status *domain.OrderStatus) ([]*domain.OrderSummary, error)
	AcceptOrder(ctx context.Context, id string) (*domain.Order, error)
	CompleteOrder(ctx context.Context, id string) (*domain.Order, error)
	RejectOrder(ctx context.Context, id, reason string) (*domain.Order, error)
}

type orderService struct {
	store    repository.Store
	assets   storage.Assets
	notifier Notifier
	logger   *zap.Logger
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(store repository.Store, assets storage.Assets, notifier Notifier, logger *zap.Logger) OrderService {
	return &orderService{store: store, assets: assets, notifier: orNoop(notifier), logger: logger}
}

// CreateOrder persists the order, one line per distinct product and the
// order.created event in a single transaction.
func (s *orderService) CreateOrder(ctx context.Context, in CheckoutInput) (*domain.Order, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	lines := domain.MergeLines(in.Lines)
	order := &domain.Order{
		GuestUserID: in.GuestUserID,
		TotalPrice:  in.TotalPrice,
		Status:      domain.OrderPending,
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		guest, err := repos.GuestUsers.FindByID(ctx, in.GuestUserID)
		if err != nil {
			return err
		}

		ids := make([]string, len(lines))
		for i, l := range lines {
			ids[i] = l.ProductID
		}
		products, err := repos.Products.FindByIDs(ctx, ids)
		if err != nil {
			return err
		}

		computed := decimal.Zero
		order.Lines = make([]*domain.OrderedProduct, 0, len(lines))
		for _, l := range lines {
			p, ok := products[l.ProductID]
			if !ok {
				return domain.NotFoundf("product %s not found", l.ProductID)
			}
			computed = computed.Add(p.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
			order.Lines = append(order.Lines, &domain.OrderedProduct{
				ProductID: l.ProductID,
				Quantity:  l.Quantity,
				Status:    domain.OrderPending,
			})
		}
		if order.TotalPrice.IsZero() {
			order.TotalPrice = computed
		}

		if err := repos.Orders.Create(ctx, order); err != nil {
			return err
		}

		return recordEvent(ctx, repos.Outbox, domain.ChannelOrders, domain.EventOrderCreated, domain.OrderCreatedPayload{
			OrderID:    order.ID,
			Customer:   guest.Name(),
			TotalPrice: order.TotalPrice,
			Status:     order.Status,
			Image:      s.assets.URL(products[lines[0].ProductID].ImagePath()),
		})
	})
	if err != nil {
		return nil, surface(s.logger, err, "Create order failed", zap.String("guest_id", in.GuestUserID))
	}

	s.notifier.Notify()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("guest_id", order.GuestUserID),
		zap.Int("lines", len(order.Lines)),
	)
	return order, nil
}

// FetchOrders lists orders newest first; nil status lists all of them
func (s *orderService) FetchOrders(ctx context.Context, status *domain.OrderStatus) ([]*domain.OrderSummary, error) {
	if status != nil && !status.Valid() {
		return nil, domain.Invalid("status", "unknown order status")
	}
	orders, err := s.store.Repos().Orders.ListSummaries(ctx, status)
	if err != nil {
		return nil, surface(s.logger, err, "Fetch orders failed")
	}
	return orders, nil
}

// AcceptOrder moves a pending order to processing
func (s *orderService) AcceptOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.transition(ctx, id, domain.OrderProcessing, nil)
}

// CompleteOrder moves a processing order to completed
func (s *orderService) CompleteOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.transition(ctx, id, domain.OrderCompleted, nil)
}

// RejectOrder cancels a pending order and records reason on its lines
func (s *orderService) RejectOrder(ctx context.Context, id, reason string) (*domain.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.Invalid("reason", "a reason is required to reject an order")
	}
	return s.transition(ctx, id, domain.OrderCanceled, &reason)
}

func (s *orderService) transition(ctx context.Context, id string, next domain.OrderStatus, reason *string) (*domain.Order, error) {
	var order *domain.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		current, err := repos.Orders.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !current.Status.CanTransitionTo(next) {
			return domain.InvalidTransition(id, current.Status, next)
		}

		current.Status = next
		if err := repos.Orders.UpdateStatus(ctx, current); err != nil {
			return err
		}
		if err := repos.Orders.UpdateLineStatus(ctx, id, next, reason); err != nil {
			return err
		}
		order = current

		return recordEvent(ctx, repos.Outbox, domain.ChannelOrders, domain.EventOrderUpdated, domain.OrderUpdatedPayload{
			OrderID: current.ID,
			Status:  current.Status,
		})
	})
	if err != nil {
		return nil, surface(s.logger, err, "Order status change failed",
			zap.String("order_id", id),
			zap.String("status", string(next)),
		)
	}

	s.notifier.Notify()
	s.logger.Info("Order status changed", zap.String("order_id", id), zap.String("status", string(next)))
	return order, nil
}
