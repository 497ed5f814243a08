package transport

import (
	"net/http"
	"time"

	"shop-admin/internal/domain"
	"shop-admin/internal/middleware"
	"shop-admin/internal/service"
	"shop-admin/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const productsIndex = "/products"

// ProductForm is the body of product submit and edit requests
type ProductForm struct {
	ID          string           `json:"id"`
	Name        string           `json:"name" validate:"required,max=255"`
	Category    string           `json:"category" validate:"required,max=255"`
	Description string           `json:"description" validate:"max=10000"`
	Price       *decimal.Decimal `json:"price" validate:"required,gte=0"`
	Status      string           `json:"status" validate:"omitempty,oneof=Available Unavailable"`
}

func (f ProductForm) input(img *service.ImageUpload) service.ProductInput {
	var price decimal.Decimal
	if f.Price != nil {
		price = *f.Price
	}
	return service.ProductInput{
		Name:        f.Name,
		Category:    f.Category,
		Description: f.Description,
		Price:       price,
		Status:      domain.ProductStatus(f.Status),
		Image:       img,
	}
}

// ProductView is the wire projection of a product. Image is either the
// stored reference or its public URL depending on the audience.
type ProductView struct {
	ProductID   string          `json:"productId"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Image       *string         `json:"image"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// ProductHandler serves the catalog for admins and devices
type ProductHandler struct {
	products service.ProductService
	assets   storage.Assets
	pages    *Pages
	respond  responder
	logger   *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(products service.ProductService, assets storage.Assets, pages *Pages, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		products: products,
		assets:   assets,
		pages:    pages,
		respond:  responder{logger: logger},
		logger:   logger,
	}
}

// RegisterAdminRoutes mounts the admin panel product routes
func (h *ProductHandler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/products", h.Page)
	r.Get("/products/fetch", h.FetchRaw)
	r.Post("/products/submit", h.Submit)
	r.Post("/products/edit", h.Edit)
	r.Delete("/products/delete/{id}", h.Delete)
}

// RegisterPublicRoutes mounts the device facing product routes
func (h *ProductHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/products/fetch", h.FetchResolved)
}

func (h *ProductHandler) project(p *domain.Product, resolve bool) ProductView {
	image := p.Image
	if resolve && p.Image != nil {
		url := h.assets.URL(*p.Image)
		image = &url
	}
	return ProductView{
		ProductID:   p.ID,
		Name:        p.Name,
		Category:    p.Category,
		Price:       p.Price,
		Description: p.Description,
		Image:       image,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (h *ProductHandler) list(r *http.Request, resolve bool) ([]ProductView, error) {
	products, err := h.products.FetchProducts(r.Context(), productFilter(r))
	if err != nil {
		return nil, err
	}
	views := make([]ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, h.project(p, resolve))
	}
	return views, nil
}

func productFilter(r *http.Request) domain.ProductFilter {
	q := r.URL.Query()
	var f domain.ProductFilter
	if q.Has("search") {
		v := q.Get("search")
		f.Search = &v
	}
	if q.Has("id") {
		v := q.Get("id")
		f.ID = &v
	}
	if q.Has("status") {
		v := domain.ProductStatus(q.Get("status"))
		f.Status = &v
	}
	if q.Has("category") {
		v := q.Get("category")
		f.Category = &v
	}
	return f
}

// Page renders the admin product list
func (h *ProductHandler) Page(w http.ResponseWriter, r *http.Request) {
	views, err := h.list(r, true)
	if err != nil {
		h.logger.Error("Render products page failed", zap.Error(err))
		views = []ProductView{}
	}
	h.pages.Render(w, r, "products", map[string]any{"products": views})
}

// FetchRaw lists products with stored image references
func (h *ProductHandler) FetchRaw(w http.ResponseWriter, r *http.Request) {
	h.fetch(w, r, false)
}

// FetchResolved lists products with public image URLs
func (h *ProductHandler) FetchResolved(w http.ResponseWriter, r *http.Request) {
	h.fetch(w, r, true)
}

func (h *ProductHandler) fetch(w http.ResponseWriter, r *http.Request, resolve bool) {
	views, err := h.list(r, resolve)
	if err != nil {
		middleware.WriteError(w, r, h.logger, err, "Error while fetching products")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, "", views)
}

// Submit creates a product from JSON or a multipart form with an optional image
func (h *ProductHandler) Submit(w http.ResponseWriter, r *http.Request) {
	const fallback = "Error while submitting product"

	var form ProductForm
	if err := decodeRequest(r, &form); err != nil {
		h.respond.fail(w, r, err, fallback, productsIndex)
		return
	}
	img, closer, err := readImage(r)
	if err != nil {
		h.respond.fail(w, r, err, fallback, productsIndex)
		return
	}
	if closer != nil {
		defer closer.Close()
	}

	product, err := h.products.CreateProduct(r.Context(), form.input(img))
	if err != nil {
		h.respond.fail(w, r, err, fallback, productsIndex)
		return
	}
	h.respond.done(w, r, http.StatusCreated, "Product added successfully!", h.project(product, false), productsIndex)
}

// Edit alters the product named by the id field
func (h *ProductHandler) Edit(w http.ResponseWriter, r *http.Request) {
	const fallback = "Error while updating product"

	var form ProductForm
	if err := decodeRequest(r, &form); err != nil {
		h.respond.fail(w, r, err, fallback, productsIndex)
		return
	}
	if form.ID == "" {
		h.respond.fail(w, r, domain.Invalid("id", "This field is required"), fallback, productsIndex)
		return
	}
	img, closer, err := readImage(r)
	if err != nil {
		h.respond.fail(w, r, err, fallback, productsIndex)
		return
	}
	if closer != nil {
		defer closer.Close()
	}

	product, err := h.products.AlterProduct(r.Context(), form.ID, form.input(img))
	if err != nil {
		h.respond.fail(w, r, err, fallback, productsIndex)
		return
	}
	h.respond.done(w, r, http.StatusOK, "Product updated successfully!", h.project(product, false), productsIndex)
}

// Delete removes a product, its order lines and its image
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.products.DropProduct(r.Context(), id); err != nil {
		h.respond.fail(w, r, err, "Error while deleting product", productsIndex)
		return
	}
	h.respond.done(w, r, http.StatusOK, "Product deleted successfully!", map[string]string{"productId": id}, productsIndex)
}
