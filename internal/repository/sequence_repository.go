package repository

import (
	"context"
	"fmt"
	"regexp"

	"shop-admin/internal/domain"
	"shop-admin/internal/identifier"

	"github.com/cockroachdb/errors"
)

// SequenceRepository hands out per-entity id counter values. Inside a
// transaction the counter row stays locked until commit, so concurrent
// creators of the same entity type are serialized.
type SequenceRepository interface {
	identifier.Counter
	identifier.Syncer
	Current(ctx context.Context, name string) (int64, error)
}

type sequenceRepository struct {
	db DBTX
}

// NewSequenceRepository creates a new instance of SequenceRepository
func NewSequenceRepository(db DBTX) SequenceRepository {
	return &sequenceRepository{db: db}
}

// Next increments and returns the named counter, starting at 1
func (r *sequenceRepository) Next(ctx context.Context, name string) (int64, error) {
	query := `
		INSERT INTO id_sequences (name, last_value)
		VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET last_value = id_sequences.last_value + 1
		RETURNING last_value
	`

	var value int64
	if err := r.db.QueryRowContext(ctx, query, name).Scan(&value); err != nil {
		return 0, domain.StorageError(err, "failed to advance id sequence "+name)
	}
	return value, nil
}

// sequenceTables maps a counter name to the table holding its ids
var sequenceTables = map[string]string{
	identifier.Product.Name:        "products",
	identifier.Order.Name:          "orders",
	identifier.OrderedProduct.Name: "ordered_products",
}

// Sync raises the counter of k to the highest numeric suffix stored in its
// table, so rows inserted without the counter are never drawn again.
func (r *sequenceRepository) Sync(ctx context.Context, k identifier.Kind) error {
	table, ok := sequenceTables[k.Name]
	if !ok {
		return errors.Newf("no table for id sequence %q", k.Name)
	}

	query := fmt.Sprintf(`
		INSERT INTO id_sequences (name, last_value)
		SELECT $1::varchar, COALESCE(MAX(substring(id FROM $2::int)::bigint), 0)
		FROM %s
		WHERE id ~ $3::text
		ON CONFLICT (name) DO UPDATE
		SET last_value = GREATEST(id_sequences.last_value, EXCLUDED.last_value)
	`, table)

	pattern := "^" + regexp.QuoteMeta(k.Prefix) + "[0-9]{1,18}$"
	if _, err := r.db.ExecContext(ctx, query, k.Name, len(k.Prefix)+1, pattern); err != nil {
		return domain.StorageError(err, "failed to sync id sequence "+k.Name)
	}
	return nil
}

// Current returns the last handed out value, 0 for an unused counter
func (r *sequenceRepository) Current(ctx context.Context, name string) (int64, error) {
	query := `SELECT COALESCE(MAX(last_value), 0) FROM id_sequences WHERE name = $1`

	var value int64
	if err := r.db.QueryRowContext(ctx, query, name).Scan(&value); err != nil {
		return 0, domain.StorageError(err, "failed to read id sequence "+name)
	}
	return value, nil
}
