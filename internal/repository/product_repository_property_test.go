package repository

import (
	"context"
	"fmt"
	"testing"

	"shop-admin/internal/domain"
	"shop-admin/internal/identifier"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProduct(name, category string) *domain.Product {
	return &domain.Product{
		Name:        name,
		Category:    category,
		Description: "<p>" + name + "</p>",
		Price:       decimal.RequireFromString("12.50"),
		Status:      domain.ProductAvailable,
	}
}

// Feature: shop-admin, Property 1: Product ids are sequential per creation
// Validates: sequential PRD ids with three digit padding
func TestProperty_ProductIDsAreSequential(t *testing.T) {
	store := newTestStore()

	properties := gopter.NewProperties(nil)

	properties.Property("N creations yield PRD-001 ... PRD-00N in order", prop.ForAll(
		func(n int) bool {
			resetTables(t)
			ctx := context.Background()

			for i := 1; i <= n; i++ {
				p := newProduct(fmt.Sprintf("Product %d", i), "Cakes")
				if err := store.Repos().Products.Create(ctx, p); err != nil {
					t.Logf("FAIL: Failed to create product: %v", err)
					return false
				}
				if want := identifier.Format(identifier.Product, int64(i)); p.ID != want {
					t.Logf("FAIL: ID mismatch. Expected %s, got %s", want, p.ID)
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 25),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: shop-admin, Property 2: Product creation preserves attributes
// Validates: product round trip through the store
func TestProperty_ProductCreationPreservesAttributes(t *testing.T) {
	resetTables(t)
	repo := newTestStore().Repos().Products

	properties := gopter.NewProperties(nil)

	properties.Property("creating and retrieving a product preserves all attributes", prop.ForAll(
		func(name, category, description string, cents int64, available bool) bool {
			ctx := context.Background()

			status := domain.ProductUnavailable
			if available {
				status = domain.ProductAvailable
			}
			image := "products/" + name + ".png"
			product := &domain.Product{
				Name:        name,
				Category:    category,
				Description: description,
				Price:       decimal.New(cents, -2),
				Status:      status,
				Image:       &image,
			}

			if err := repo.Create(ctx, product); err != nil {
				t.Logf("FAIL: Failed to create product: %v", err)
				return false
			}

			retrieved, err := repo.FindByID(ctx, product.ID)
			if err != nil {
				t.Logf("FAIL: Failed to retrieve product: %v", err)
				return false
			}

			if retrieved.Name != name || retrieved.Category != category || retrieved.Description != description {
				t.Logf("FAIL: text fields mismatch: %+v", retrieved)
				return false
			}
			if !retrieved.Price.Equal(product.Price) {
				t.Logf("FAIL: Price mismatch. Expected %s, got %s", product.Price, retrieved.Price)
				return false
			}
			if retrieved.Status != status || retrieved.ImagePath() != image {
				t.Logf("FAIL: status/image mismatch: %+v", retrieved)
				return false
			}
			if retrieved.CreatedAt.IsZero() || retrieved.UpdatedAt.IsZero() {
				t.Logf("FAIL: timestamps not set")
				return false
			}
			return true
		},
		gen.RegexMatch(`[A-Za-z0-9 ]{3,50}`),       // name
		gen.RegexMatch(`[A-Za-z]{3,20}`),           // category
		gen.RegexMatch(`[A-Za-z0-9 .,!?]{10,200}`), // description
		gen.Int64Range(0, 999999),                  // price in cents
		gen.Bool(),                                 // available
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProductRepository_SkipsTakenIDs(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := newTestStore().Repos().Products

	// a row imported outside the counter
	_, err := testDB.Exec(`INSERT INTO products (id, name, category, price) VALUES ('PRD-002', 'Imported', 'Misc', 1)`)
	require.NoError(t, err)

	first := newProduct("First", "Cakes")
	require.NoError(t, repo.Create(ctx, first))
	second := newProduct("Second", "Cakes")
	require.NoError(t, repo.Create(ctx, second))

	assert.Equal(t, "PRD-001", first.ID)
	assert.Equal(t, "PRD-003", second.ID)
}

func TestProductRepository_PaddingWidens(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := newTestStore().Repos().Products

	_, err := testDB.Exec(`INSERT INTO id_sequences (name, last_value) VALUES ('products', 999)`)
	require.NoError(t, err)

	p := newProduct("Thousandth", "Cakes")
	require.NoError(t, repo.Create(ctx, p))
	assert.Equal(t, "PRD-1000", p.ID)
}

func TestProductRepository_SearchMatchesNameOrCategory(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := newTestStore().Repos().Products

	require.NoError(t, repo.Create(ctx, newProduct("Chocolate Cake", "Cakes")))
	require.NoError(t, repo.Create(ctx, newProduct("Truffle Box", "Chocolates")))
	require.NoError(t, repo.Create(ctx, newProduct("Lemon Tart", "Tarts")))

	search := "choc"
	products, err := repo.List(ctx, domain.ProductFilter{Search: &search})
	require.NoError(t, err)

	names := []string{}
	for _, p := range products {
		names = append(names, p.Name)
	}
	assert.ElementsMatch(t, []string{"Chocolate Cake", "Truffle Box"}, names)

	// newest first
	all, err := repo.List(ctx, domain.ProductFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Lemon Tart", all[0].Name)
}

func TestProductRepository_ExactFilters(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := newTestStore().Repos().Products

	hidden := newProduct("Hidden", "Cakes")
	hidden.Status = domain.ProductUnavailable
	require.NoError(t, repo.Create(ctx, hidden))
	require.NoError(t, repo.Create(ctx, newProduct("Shown", "Cakes")))
	require.NoError(t, repo.Create(ctx, newProduct("Other", "Tarts")))

	status := domain.ProductUnavailable
	got, err := repo.List(ctx, domain.ProductFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Hidden", got[0].Name)

	category := "Cakes"
	got, err = repo.List(ctx, domain.ProductFilter{Category: &category})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	id := hidden.ID
	got, err = repo.List(ctx, domain.ProductFilter{ID: &id})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, hidden.ID, got[0].ID)

	// LIKE wildcards in the search term match literally
	wildcard := "%"
	got, err = repo.List(ctx, domain.ProductFilter{Search: &wildcard})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestProductRepository_UpdateAndDeleteUnknown(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := newTestStore().Repos().Products

	ghost := newProduct("Ghost", "Cakes")
	ghost.ID = "PRD-404"

	err := repo.Update(ctx, ghost)
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, "PRD-404"), domain.ErrNotFound)

	_, err = repo.FindByID(ctx, "PRD-404")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProductRepository_UpdateOverwritesFields(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := newTestStore().Repos().Products

	p := newProduct("Before", "Cakes")
	require.NoError(t, repo.Create(ctx, p))

	p.Name = "After"
	p.Category = "Tarts"
	p.Price = decimal.RequireFromString("3.75")
	p.Status = domain.ProductUnavailable
	p.Image = nil
	require.NoError(t, repo.Update(ctx, p))

	got, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "After", got.Name)
	assert.Equal(t, "Tarts", got.Category)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("3.75")))
	assert.Equal(t, domain.ProductUnavailable, got.Status)
	assert.Nil(t, got.Image)
}

func TestProductRepository_CatchesUpWithRowsWrittenWithoutCounter(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	store := newTestStore()

	// restored data: 20 products and a fresh counter
	for i := 1; i <= 20; i++ {
		_, err := testDB.Exec(`INSERT INTO products (id, name, category, price) VALUES ($1, 'Restored', 'Misc', 1)`,
			fmt.Sprintf("PRD-%03d", i))
		require.NoError(t, err)
	}

	for _, want := range []string{"PRD-021", "PRD-022", "PRD-023"} {
		p := newProduct("Fresh", "Cakes")
		require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, repos *Repositories) error {
			return repos.Products.Create(ctx, p)
		}))
		assert.Equal(t, want, p.ID)
	}

	current, err := store.Repos().Sequences.Current(ctx, identifier.Product.Name)
	require.NoError(t, err)
	assert.Equal(t, int64(23), current)
}
