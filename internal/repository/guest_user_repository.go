package repository

import (
	"context"
	"database/sql"
	"time"

	"shop-admin/internal/domain"

	"github.com/cockroachdb/errors"
)

var (
	ErrGuestUserNotFound = errors.Mark(errors.New("guest user not found"), domain.ErrNotFound)
	ErrGuestUserExists   = errors.Mark(errors.New("guest user already registered"), domain.ErrConflict)
)

const guestUserColumns = `id, customer_name, customer_email, customer_phone, customer_address,
	device_info, last_seen_at, created_at, updated_at`

// GuestUserRepository defines the interface for guest user data access
type GuestUserRepository interface {
	Create(ctx context.Context, guest *domain.GuestUser) error
	FindByID(ctx context.Context, id string) (*domain.GuestUser, error)
	List(ctx context.Context, filter domain.GuestUserFilter) ([]*domain.GuestUser, error)
	UpdateProfile(ctx context.Context, id string, profile domain.GuestProfile, seenAt time.Time) (*domain.GuestUser, error)
	Count(ctx context.Context) (int, error)
}

type guestUserRepository struct {
	db DBTX
}

// NewGuestUserRepository creates a new instance of GuestUserRepository
func NewGuestUserRepository(db DBTX) GuestUserRepository {
	return &guestUserRepository{db: db}
}

// Create registers a guest under its caller supplied id. A second
// registration of the same id fails with ErrGuestUserExists and leaves the
// stored row untouched.
func (r *guestUserRepository) Create(ctx context.Context, guest *domain.GuestUser) error {
	query := `
		INSERT INTO guest_users (id, customer_name, customer_email, customer_phone, customer_address,
			device_info, last_seen_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	now := time.Now().UTC()
	guest.CreatedAt = now
	guest.UpdatedAt = now

	_, err := r.db.ExecContext(
		ctx,
		query,
		guest.ID,
		guest.CustomerName,
		guest.CustomerEmail,
		guest.CustomerPhone,
		guest.CustomerAddress,
		guest.DeviceInfo,
		guest.LastSeenAt,
		guest.CreatedAt,
		guest.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrGuestUserExists
	}
	if err != nil {
		return domain.StorageError(err, "failed to create guest user")
	}

	return nil
}

// FindByID retrieves a guest user by ID
func (r *guestUserRepository) FindByID(ctx context.Context, id string) (*domain.GuestUser, error) {
	query := `SELECT ` + guestUserColumns + ` FROM guest_users WHERE id = $1`

	guest, err := scanGuestUser(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGuestUserNotFound
	}
	if err != nil {
		return nil, domain.StorageError(err, "failed to find guest user by ID")
	}

	return guest, nil
}

// List returns guest users, optionally narrowed to one id, newest first
func (r *guestUserRepository) List(ctx context.Context, filter domain.GuestUserFilter) ([]*domain.GuestUser, error) {
	query := `SELECT ` + guestUserColumns + ` FROM guest_users`
	args := []any{}
	if filter.ID != nil {
		query += ` WHERE id = $1`
		args = append(args, *filter.ID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.StorageError(err, "failed to list guest users")
	}
	defer rows.Close()

	guests := []*domain.GuestUser{}
	for rows.Next() {
		guest, err := scanGuestUser(rows)
		if err != nil {
			return nil, domain.StorageError(err, "failed to scan guest user")
		}
		guests = append(guests, guest)
	}

	if err = rows.Err(); err != nil {
		return nil, domain.StorageError(err, "error iterating guest users")
	}

	return guests, nil
}

// UpdateProfile overwrites the customer fields and last_seen_at
func (r *guestUserRepository) UpdateProfile(ctx context.Context, id string, profile domain.GuestProfile, seenAt time.Time) (*domain.GuestUser, error) {
	query := `
		UPDATE guest_users
		SET customer_name = $2, customer_email = $3, customer_phone = $4,
		    customer_address = $5, last_seen_at = $6
		WHERE id = $1
		RETURNING ` + guestUserColumns

	guest, err := scanGuestUser(r.db.QueryRowContext(
		ctx,
		query,
		id,
		profile.Name,
		profile.Email,
		profile.Phone,
		profile.Address,
		seenAt.UTC(),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGuestUserNotFound
	}
	if err != nil {
		return nil, domain.StorageError(err, "failed to update guest user")
	}

	return guest, nil
}

// Count returns the number of registered guests
func (r *guestUserRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guest_users`).Scan(&total); err != nil {
		return 0, domain.StorageError(err, "failed to count guest users")
	}
	return total, nil
}

func scanGuestUser(row rowScanner) (*domain.GuestUser, error) {
	guest := &domain.GuestUser{}
	err := row.Scan(
		&guest.ID,
		&guest.CustomerName,
		&guest.CustomerEmail,
		&guest.CustomerPhone,
		&guest.CustomerAddress,
		&guest.DeviceInfo,
		&guest.LastSeenAt,
		&guest.CreatedAt,
		&guest.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return guest, nil
}
