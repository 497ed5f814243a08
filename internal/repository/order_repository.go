package repository

import (
	"context"
	"database/sql"
	"time"

	"shop-admin/internal/domain"
	"shop-admin/internal/identifier"

	"github.com/cockroachdb/errors"
)

var (
	ErrOrderNotFound = errors.Mark(errors.New("order not found"), domain.ErrNotFound)
)

const orderColumns = `id, guest_user_id, total_price, status, created_at, updated_at`

const orderedProductColumns = `id, order_id, product_id, quantity, status, reason_of_cancelation, created_at, updated_at`

// OrderRepository defines the interface for order and line item data access
type OrderRepository interface {
	// Create inserts the order and every line in order.Lines, assigning ids
	// to all of them. Callers run it inside a transaction.
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	// FindByIDForUpdate locks the order row until the transaction ends
	FindByIDForUpdate(ctx context.Context, id string) (*domain.Order, error)
	Lines(ctx context.Context, orderID string) ([]*domain.OrderedProduct, error)
	ListSummaries(ctx context.Context, status *domain.OrderStatus) ([]*domain.OrderSummary, error)
	UpdateStatus(ctx context.Context, order *domain.Order) error
	UpdateLineStatus(ctx context.Context, orderID string, status domain.OrderStatus, reason *string) error
	CountByStatus(ctx context.Context) (map[domain.OrderStatus]int, error)
}

type orderRepository struct {
	db        DBTX
	sequences identifier.Counter
	ids       *identifier.Generator
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db DBTX, sequences identifier.Counter, ids *identifier.Generator) OrderRepository {
	return &orderRepository{db: db, sequences: sequences, ids: ids}
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	if len(order.Lines) == 0 {
		return domain.Invalid("lines", "an order needs at least one line")
	}

	query := `
		INSERT INTO orders (id, guest_user_id, total_price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
		RETURNING id
	`

	now := time.Now().UTC()
	if order.Status == "" {
		order.Status = domain.OrderPending
	}

	id, err := r.ids.Assign(ctx, r.sequences, identifier.Order, func(ctx context.Context, id string) (bool, error) {
		return insertReturning(ctx, r.db, query, id, order.GuestUserID, order.TotalPrice, order.Status, now, now)
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.NotFoundf("guest user %s not found", order.GuestUserID)
		}
		return domain.StorageError(err, "failed to create order")
	}

	order.ID = id
	order.CreatedAt = now
	order.UpdatedAt = now

	for _, line := range order.Lines {
		line.OrderID = order.ID
		if line.Status == "" {
			line.Status = domain.OrderPending
		}
		if err := r.createLine(ctx, line, now); err != nil {
			return err
		}
	}

	return nil
}

func (r *orderRepository) createLine(ctx context.Context, line *domain.OrderedProduct, now time.Time) error {
	query := `
		INSERT INTO ordered_products (id, order_id, product_id, quantity, status, reason_of_cancelation, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
		RETURNING id
	`

	id, err := r.ids.Assign(ctx, r.sequences, identifier.OrderedProduct, func(ctx context.Context, id string) (bool, error) {
		return insertReturning(ctx, r.db, query,
			id, line.OrderID, line.ProductID, line.Quantity, line.Status, line.ReasonOfCancelation, now, now)
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return errors.Mark(errors.Newf("product %s not found", line.ProductID), domain.ErrNotFound)
		}
		return domain.StorageError(err, "failed to create ordered product")
	}

	line.ID = id
	line.CreatedAt = now
	line.UpdatedAt = now
	return nil
}

// insertReturning runs an INSERT ... ON CONFLICT DO NOTHING RETURNING query
// and reports whether a row was written.
func insertReturning(ctx context.Context, db DBTX, query string, args ...any) (bool, error) {
	var id string
	err := db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *orderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.findOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *orderRepository) FindByIDForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return r.findOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *orderRepository) findOrder(ctx context.Context, query, id string) (*domain.Order, error) {
	order := &domain.Order{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.GuestUserID,
		&order.TotalPrice,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, domain.StorageError(err, "failed to find order by ID")
	}
	return order, nil
}

// Lines returns the order's line items in creation order
func (r *orderRepository) Lines(ctx context.Context, orderID string) ([]*domain.OrderedProduct, error) {
	query := `SELECT ` + orderedProductColumns + ` FROM ordered_products WHERE order_id = $1 ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, domain.StorageError(err, "failed to list ordered products")
	}
	defer rows.Close()

	lines := []*domain.OrderedProduct{}
	for rows.Next() {
		line := &domain.OrderedProduct{}
		err := rows.Scan(
			&line.ID,
			&line.OrderID,
			&line.ProductID,
			&line.Quantity,
			&line.Status,
			&line.ReasonOfCancelation,
			&line.CreatedAt,
			&line.UpdatedAt,
		)
		if err != nil {
			return nil, domain.StorageError(err, "failed to scan ordered product")
		}
		lines = append(lines, line)
	}

	if err = rows.Err(); err != nil {
		return nil, domain.StorageError(err, "error iterating ordered products")
	}

	return lines, nil
}

// ListSummaries returns the admin order rows, newest first, optionally
// restricted to one status.
func (r *orderRepository) ListSummaries(ctx context.Context, status *domain.OrderStatus) ([]*domain.OrderSummary, error) {
	query := `
		SELECT o.id, COALESCE(g.customer_name, ''), o.total_price, o.status, o.created_at
		FROM orders o
		JOIN guest_users g ON g.id = o.guest_user_id
	`
	args := []any{}
	if status != nil {
		query += ` WHERE o.status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY o.created_at DESC, o.id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.StorageError(err, "failed to list orders")
	}
	defer rows.Close()

	summaries := []*domain.OrderSummary{}
	for rows.Next() {
		s := &domain.OrderSummary{}
		if err := rows.Scan(&s.OrderID, &s.Customer, &s.TotalPrice, &s.Status, &s.CreatedAt); err != nil {
			return nil, domain.StorageError(err, "failed to scan order")
		}
		summaries = append(summaries, s)
	}

	if err = rows.Err(); err != nil {
		return nil, domain.StorageError(err, "error iterating orders")
	}

	return summaries, nil
}

// UpdateStatus persists order.Status and refreshes order.UpdatedAt
func (r *orderRepository) UpdateStatus(ctx context.Context, order *domain.Order) error {
	query := `UPDATE orders SET status = $2 WHERE id = $1 RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query, order.ID, order.Status).Scan(&order.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return domain.StorageError(err, "failed to update order status")
	}
	return nil
}

// UpdateLineStatus moves every line of the order to status. A nil reason
// leaves reason_of_cancelation as it was.
func (r *orderRepository) UpdateLineStatus(ctx context.Context, orderID string, status domain.OrderStatus, reason *string) error {
	query := `
		UPDATE ordered_products
		SET status = $2, reason_of_cancelation = COALESCE($3, reason_of_cancelation)
		WHERE order_id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, orderID, status, reason); err != nil {
		return domain.StorageError(err, "failed to update ordered products")
	}
	return nil
}

// CountByStatus returns the number of orders per status. Every declared
// status is present in the result, with zero when no order has it.
func (r *orderRepository) CountByStatus(ctx context.Context) (map[domain.OrderStatus]int, error) {
	counts := make(map[domain.OrderStatus]int, len(domain.OrderStatuses))
	for _, s := range domain.OrderStatuses {
		counts[s] = 0
	}

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, domain.StorageError(err, "failed to count orders")
	}
	defer rows.Close()

	for rows.Next() {
		var status domain.OrderStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, domain.StorageError(err, "failed to scan order count")
		}
		counts[status] = n
	}

	if err = rows.Err(); err != nil {
		return nil, domain.StorageError(err, "error iterating order counts")
	}

	return counts, nil
}
