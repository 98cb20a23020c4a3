package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"inventory-audit/internal/domain"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// ProductService is the inventory collaborator whose mutations feed the audit trail.
type ProductService interface {
	ListProducts(ctx context.Context, limit, offset int) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, req domain.CreateProductRequest) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id string, req domain.UpdateProductRequest) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

type productServer struct {
	productService ProductService
}

func NewProductServer(productService ProductService) *productServer {
	return &productServer{
		productService: productService,
	}
}

func handleProductError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound, "product not found"
	case errors.Is(err, domain.ErrInvalidProductName):
		return http.StatusBadRequest, "product name is required"
	case errors.Is(err, domain.ErrInvalidPrice):
		return http.StatusBadRequest, "price must not be negative"
	case errors.Is(err, domain.ErrInvalidQuantity):
		return http.StatusBadRequest, "quantity must not be negative"
	case errors.Is(err, domain.ErrInvalidUUID):
		return http.StatusBadRequest, "invalid product id"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// respondProductError logs server faults at error level and client mistakes at debug.
func respondProductError(c echo.Context, err error, msg, productID string) error {
	statusCode, errorMsg := handleProductError(err)

	entry := log.WithError(err)
	if productID != "" {
		entry = entry.WithField("product_id", productID)
	}
	if statusCode >= http.StatusInternalServerError {
		entry.Error(msg)
	} else {
		entry.Debug(msg)
	}

	return c.JSON(statusCode, map[string]string{
		"error": errorMsg,
	})
}

func (s *productServer) ListProducts(c echo.Context) error {
	limit := 10
	offset := 0

	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if offsetStr := c.QueryParam("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	products, err := s.productService.ListProducts(c.Request().Context(), limit, offset)
	if err != nil {
		return respondProductError(c, err, "Failed to list products", "")
	}

	return c.JSON(http.StatusOK, products)
}

func (s *productServer) GetProductByID(c echo.Context) error {
	id := c.Param("id")

	product, err := s.productService.GetProductByID(c.Request().Context(), id)
	if err != nil {
		return respondProductError(c, err, "Failed to get product", id)
	}

	return c.JSON(http.StatusOK, product)
}

func (s *productServer) CreateProduct(c echo.Context) error {
	var req domain.CreateProductRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	product, err := s.productService.CreateProduct(c.Request().Context(), req)
	if err != nil {
		return respondProductError(c, err, "Failed to create product", "")
	}

	return c.JSON(http.StatusCreated, product)
}

func (s *productServer) UpdateProduct(c echo.Context) error {
	id := c.Param("id")

	var req domain.UpdateProductRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	product, err := s.productService.UpdateProduct(c.Request().Context(), id, req)
	if err != nil {
		return respondProductError(c, err, "Failed to update product", id)
	}

	return c.JSON(http.StatusOK, product)
}

func (s *productServer) DeleteProduct(c echo.Context) error {
	id := c.Param("id")

	if err := s.productService.DeleteProduct(c.Request().Context(), id); err != nil {
		return respondProductError(c, err, "Failed to delete product", id)
	}

	return c.NoContent(http.StatusNoContent)
}
