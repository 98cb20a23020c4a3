package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"inventory-audit/internal/domain"

	"github.com/google/uuid"
)

type memoryProductRepository struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

func NewMemoryProductRepository() *memoryProductRepository {
	return &memoryProductRepository{products: make(map[string]domain.Product)}
}

func (r *memoryProductRepository) ListProducts(_ context.Context, limit, offset int) ([]domain.Product, error) {
	r.mu.RLock()
	products := make([]domain.Product, 0, len(r.products))
	for _, p := range r.products {
		products = append(products, p)
	}
	r.mu.RUnlock()

	sort.Slice(products, func(i, j int) bool {
		if !products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].CreatedAt.After(products[j].CreatedAt)
		}
		return products[i].ID < products[j].ID
	})

	if offset >= len(products) {
		return []domain.Product{}, nil
	}
	end := min(offset+limit, len(products))
	return products[offset:end], nil
}

func (r *memoryProductRepository) GetByID(_ context.Context, id string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

func (r *memoryProductRepository) Create(_ context.Context, req domain.CreateProductRequest) (*domain.Product, error) {
	now := time.Now().UTC()
	p := domain.Product{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Quantity:    req.Quantity,
		Price:       req.Price,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	r.mu.Lock()
	r.products[p.ID] = p
	r.mu.Unlock()

	return &p, nil
}

func (r *memoryProductRepository) Update(_ context.Context, id string, req domain.UpdateProductRequest) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Quantity != nil {
		p.Quantity = *req.Quantity
	}
	if req.Price != nil {
		p.Price = *req.Price
	}
	p.UpdatedAt = time.Now().UTC()
	r.products[id] = p

	return &p, nil
}

func (r *memoryProductRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[id]; !ok {
		return domain.ErrProductNotFound
	}
	delete(r.products, id)
	return nil
}
