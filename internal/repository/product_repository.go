package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"shop-admin/internal/domain"
	"shop-admin/internal/identifier"

	"github.com/cockroachdb/errors"
)

var (
	ErrProductNotFound = errors.Mark(errors.New("product not found"), domain.ErrNotFound)
)

const productColumns = `id, name, category, description, price, status, image, created_at, updated_at`

// ProductRepository defines the interface for product data access
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*domain.Product, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*domain.Product, error)
	List(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, error)
	Count(ctx context.Context) (int, error)
}

type productRepository struct {
	db        DBTX
	sequences identifier.Counter
	ids       *identifier.Generator
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db DBTX, sequences identifier.Counter, ids *identifier.Generator) ProductRepository {
	return &productRepository{db: db, sequences: sequences, ids: ids}
}

// Create assigns the next PRD id and inserts the product. An id that is
// already taken is skipped rather than overwritten.
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (id, name, category, description, price, status, image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at, updated_at
	`

	now := time.Now().UTC()
	id, err := r.ids.Assign(ctx, r.sequences, identifier.Product, func(ctx context.Context, id string) (bool, error) {
		err := r.db.QueryRowContext(
			ctx,
			query,
			id,
			product.Name,
			product.Category,
			product.Description,
			product.Price,
			product.Status,
			product.Image,
			now,
			now,
		).Scan(&product.CreatedAt, &product.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, domain.StorageError(err, "failed to create product")
		}
		return true, nil
	})
	if err != nil {
		return domain.StorageError(err, "failed to assign product id")
	}

	product.ID = id
	return nil
}

// Update overwrites every mutable field of an existing product
func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	query := `
		UPDATE products
		SET name = $2, category = $3, description = $4, price = $5,
		    status = $6, image = $7
		WHERE id = $1
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Category,
		product.Description,
		product.Price,
		product.Status,
		product.Image,
	).Scan(&product.CreatedAt, &product.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return ErrProductNotFound
	}
	if err != nil {
		return domain.StorageError(err, "failed to update product")
	}

	return nil
}

// Delete removes a product; its ordered_products rows go with it
func (r *productRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM products WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return domain.StorageError(err, "failed to delete product")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return domain.StorageError(err, "failed to get rows affected")
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// FindByID retrieves a product by ID
func (r *productRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, domain.StorageError(err, "failed to find product by ID")
	}

	return product, nil
}

// FindByIDs loads the products with the given ids, keyed by id. Unknown ids
// are simply absent from the result.
func (r *productRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	found := make(map[string]*domain.Product, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE id IN (` + strings.Join(placeholders, ", ") + `)`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.StorageError(err, "failed to find products by ID")
	}
	defer rows.Close()

	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, domain.StorageError(err, "failed to scan product")
		}
		found[product.ID] = product
	}

	if err = rows.Err(); err != nil {
		return nil, domain.StorageError(err, "error iterating products")
	}

	return found, nil
}

// List returns products matching filter, newest first. Search is a
// case-insensitive substring match on name or category.
func (r *productRepository) List(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, error) {
	conditions := []string{}
	args := []any{}

	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.Search != nil && strings.TrimSpace(*filter.Search) != "" {
		add("(name ILIKE $%[1]d OR category ILIKE $%[1]d)", "%"+escapeLike(*filter.Search)+"%")
	}
	if filter.ID != nil {
		add("id = $%d", *filter.ID)
	}
	if filter.Status != nil {
		add("status = $%d", *filter.Status)
	}
	if filter.Category != nil {
		add("category = $%d", *filter.Category)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := `SELECT ` + productColumns + ` FROM products ` + whereClause + ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.StorageError(err, "failed to list products")
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, domain.StorageError(err, "failed to scan product")
		}
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, domain.StorageError(err, "error iterating products")
	}

	return products, nil
}

// Count returns the number of products in the catalog
func (r *productRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total); err != nil {
		return 0, domain.StorageError(err, "failed to count products")
	}
	return total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	product := &domain.Product{}
	err := row.Scan(
		&product.ID,
		&product.Name,
		&product.Category,
		&product.Description,
		&product.Price,
		&product.Status,
		&product.Image,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return product, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes user input match literally inside an ILIKE pattern
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
