package service

import (
	"context"
	"io"
	"strings"

	"shop-admin/internal/domain"
	"shop-admin/internal/repository"
	"shop-admin/internal/storage"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ImageUpload is an image file attached to a product write
type ImageUpload struct {
	Filename string
	Content  io.Reader
}

// ProductInput carries the writable product fields. An empty Status means
// Available on create and "unchanged" on alter.
type ProductInput struct {
	Name        string
	Category    string
	Description string
	Price       decimal.Decimal
	Status      domain.ProductStatus
	Image       *ImageUpload
}

func (in ProductInput) validate() error {
	var fields []domain.FieldError
	if strings.TrimSpace(in.Name) == "" {
		fields = append(fields, domain.FieldError{Field: "name", Message: "name is required"})
	}
	if strings.TrimSpace(in.Category) == "" {
		fields = append(fields, domain.FieldError{Field: "category", Message: "category is required"})
	}
	if in.Price.IsNegative() {
		fields = append(fields, domain.FieldError{Field: "price", Message: "price must not be negative"})
	}
	if in.Status != "" && !in.Status.Valid() {
		fields = append(fields, domain.FieldError{Field: "status", Message: "status must be Available or Unavailable"})
	}
	if len(fields) > 0 {
		return domain.NewValidationError(fields...)
	}
	return nil
}

// ProductService defines the catalog use cases
type ProductService interface {
	CreateProduct(ctx context.Context, in ProductInput) (*domain.Product, error)
	AlterProduct(ctx context.Context, id string, in ProductInput) (*domain.Product, error)
	DropProduct(ctx context.Context, id string) error
	FetchProducts(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, error)
}

type productService struct {
	store    repository.Store
	assets   storage.Assets
	notifier Notifier
	logger   *zap.Logger
}

// NewProductService creates a new instance of ProductService
func NewProductService(store repository.Store, assets storage.Assets, notifier Notifier, logger *zap.Logger) ProductService {
	return &productService{store: store, assets: assets, notifier: orNoop(notifier), logger: logger}
}

// CreateProduct stores the image first, then the row and its
// product.created event in one transaction.
func (s *productService) CreateProduct(ctx context.Context, in ProductInput) (*domain.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	product := &domain.Product{
		Name:        in.Name,
		Category:    in.Category,
		Description: in.Description,
		Price:       in.Price,
		Status:      in.Status,
	}
	if product.Status == "" {
		product.Status = domain.ProductAvailable
	}

	newImage, err := s.storeImage(ctx, in.Image)
	if err != nil {
		return nil, err
	}
	product.Image = newImage

	err = s.store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		if err := repos.Products.Create(ctx, product); err != nil {
			return err
		}
		return recordEvent(ctx, repos.Outbox, domain.ChannelProducts, domain.EventProductCreated, domain.ProductCreatedPayload{
			ProductID: product.ID,
			Name:      product.Name,
			Category:  product.Category,
			Price:     product.Price,
			Status:    product.Status,
		})
	})
	if err != nil {
		s.discardImage(ctx, newImage)
		return nil, surface(s.logger, err, "Create product failed", zap.String("name", in.Name))
	}

	s.notifier.Notify()
	s.logger.Info("Product created", zap.String("product_id", product.ID))
	return product, nil
}

// AlterProduct overwrites the mutable fields of an existing product. A new
// image replaces the old one, which is deleted once the change committed.
func (s *productService) AlterProduct(ctx context.Context, id string, in ProductInput) (*domain.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	// fail before touching storage when the product does not exist
	if _, err := s.store.Repos().Products.FindByID(ctx, id); err != nil {
		return nil, surface(s.logger, err, "Alter product failed", zap.String("product_id", id))
	}

	newImage, err := s.storeImage(ctx, in.Image)
	if err != nil {
		return nil, err
	}

	var (
		product  *domain.Product
		oldImage string
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		current, err := repos.Products.FindByID(ctx, id)
		if err != nil {
			return err
		}

		product = current
		product.Name = in.Name
		product.Category = in.Category
		product.Description = in.Description
		product.Price = in.Price
		if in.Status != "" {
			product.Status = in.Status
		}
		if newImage != nil {
			oldImage = current.ImagePath()
			product.Image = newImage
		}

		if err := repos.Products.Update(ctx, product); err != nil {
			return err
		}
		return recordEvent(ctx, repos.Outbox, domain.ChannelProducts, domain.EventProductUpdated, domain.ProductUpdatedPayload{
			ProductID:   product.ID,
			Name:        product.Name,
			Category:    product.Category,
			Description: product.Description,
			Price:       product.Price,
			Status:      product.Status,
			Image:       product.Image,
		})
	})
	if err != nil {
		s.discardImage(ctx, newImage)
		return nil, surface(s.logger, err, "Alter product failed", zap.String("product_id", id))
	}

	s.notifier.Notify()
	if oldImage != "" && oldImage != product.ImagePath() {
		s.deleteAsset(ctx, oldImage, id)
	}
	return product, nil
}

// DropProduct deletes the row, cascading to its order lines, and then its
// image. Image deletion failures are logged only.
func (s *productService) DropProduct(ctx context.Context, id string) error {
	var image string
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		product, err := repos.Products.FindByID(ctx, id)
		if err != nil {
			return err
		}
		image = product.ImagePath()

		if err := repos.Products.Delete(ctx, id); err != nil {
			return err
		}
		return recordEvent(ctx, repos.Outbox, domain.ChannelProducts, domain.EventProductDeleted, domain.ProductDeletedPayload{
			ProductID: id,
		})
	})
	if err != nil {
		return surface(s.logger, err, "Drop product failed", zap.String("product_id", id))
	}

	s.notifier.Notify()
	if image != "" {
		s.deleteAsset(ctx, image, id)
	}
	return nil
}

func (s *productService) FetchProducts(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, error) {
	products, err := s.store.Repos().Products.List(ctx, filter)
	if err != nil {
		return nil, surface(s.logger, err, "Fetch products failed")
	}
	return products, nil
}

func (s *productService) storeImage(ctx context.Context, img *ImageUpload) (*string, error) {
	if img == nil || img.Content == nil {
		return nil, nil
	}
	ref, err := s.assets.Put(ctx, storage.ProductImagesDir, img.Filename, img.Content)
	if err != nil {
		err = domain.StorageError(err, "failed to store product image")
		s.logger.Error("Store product image failed", zap.Error(err), zap.String("filename", img.Filename))
		return nil, err
	}
	return &ref, nil
}

// discardImage removes an image stored for a write that did not commit
func (s *productService) discardImage(ctx context.Context, ref *string) {
	if ref == nil {
		return
	}
	s.deleteAsset(ctx, *ref, "")
}

func (s *productService) deleteAsset(ctx context.Context, ref, productID string) {
	if err := s.assets.Delete(context.WithoutCancel(ctx), ref); err != nil {
		s.logger.Warn("Failed to delete product image",
			zap.Error(err),
			zap.String("image", ref),
			zap.String("product_id", productID),
		)
	}
}
