package service

import (
	"context"

	"inventory-audit/internal/domain"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const productEntityType = "Product"

type ProductRepository interface {
	ListProducts(ctx context.Context, limit, offset int) ([]domain.Product, error)
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	Create(ctx context.Context, req domain.CreateProductRequest) (*domain.Product, error)
	Update(ctx context.Context, id string, req domain.UpdateProductRequest) (*domain.Product, error)
	Delete(ctx context.Context, id string) error
}

type productService struct {
	productRepo ProductRepository
	audit       *AuditLogger
}

// NewProductService wires product persistence to the audit trail. audit may be nil.
func NewProductService(productRepo ProductRepository, audit *AuditLogger) *productService {
	return &productService{
		productRepo: productRepo,
		audit:       audit,
	}
}

func (s *productService) ListProducts(ctx context.Context, limit, offset int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > domain.MaxListLimit {
		limit = domain.MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	products, err := s.productRepo.ListProducts(ctx, limit, offset)
	if err != nil {
		log.WithError(err).Error("Failed to list products")
		return nil, err
	}
	return products, nil
}

func (s *productService) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrInvalidUUID
	}
	return s.productRepo.GetByID(ctx, id)
}

func (s *productService) CreateProduct(ctx context.Context, req domain.CreateProductRequest) (*domain.Product, error) {
	if err := domain.ValidateProductName(req.Name); err != nil {
		return nil, err
	}
	if err := domain.ValidateProductPrice(req.Price); err != nil {
		return nil, err
	}
	if err := domain.ValidateProductQuantity(req.Quantity); err != nil {
		return nil, err
	}

	product, err := s.productRepo.Create(ctx, req)
	if err != nil {
		log.WithError(err).WithField("name", req.Name).Error("Failed to create product")
		return nil, err
	}

	s.audit.LogCreate(ctx, productEntityType, product.ID, product.Name, product.Snapshot())
	return product, nil
}

func (s *productService) UpdateProduct(ctx context.Context, id string, req domain.UpdateProductRequest) (*domain.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrInvalidUUID
	}
	if req.Name != nil {
		if err := domain.ValidateProductName(*req.Name); err != nil {
			return nil, err
		}
	}
	if req.Price != nil {
		if err := domain.ValidateProductPrice(*req.Price); err != nil {
			return nil, err
		}
	}
	if req.Quantity != nil {
		if err := domain.ValidateProductQuantity(*req.Quantity); err != nil {
			return nil, err
		}
	}

	before, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	product, err := s.productRepo.Update(ctx, id, req)
	if err != nil {
		log.WithError(err).WithField("product_id", id).Error("Failed to update product")
		return nil, err
	}

	s.audit.LogUpdate(ctx, productEntityType, product.ID, product.Name, before.Snapshot(), product.Snapshot())
	return product, nil
}

func (s *productService) DeleteProduct(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrInvalidUUID
	}

	before, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.productRepo.Delete(ctx, id); err != nil {
		log.WithError(err).WithField("product_id", id).Error("Failed to delete product")
		return err
	}

	s.audit.LogDelete(ctx, productEntityType, before.ID, before.Name, before.Snapshot())
	return nil
}
