package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"inventory-audit/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var productRowColumns = []string{"id", "name", "description", "quantity", "price", "created_at", "updated_at"}

func TestPostgresProductRepository_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresProductRepository(db)
	now := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO products (.+) RETURNING (.+)").
		WithArgs("Widget", "blue", int64(5), 10.0).
		WillReturnRows(sqlmock.NewRows(productRowColumns).
			AddRow("p-1", "Widget", "blue", 5, 10.0, now, now))

	product, err := repo.Create(context.Background(), domain.CreateProductRequest{
		Name: "Widget", Description: "blue", Quantity: 5, Price: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, "p-1", product.ID)
	assert.Equal(t, int64(5), product.Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresProductRepository_GetByID(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewPostgresProductRepository(db)

		mock.ExpectQuery("SELECT (.+) FROM products WHERE id = \\$1").
			WithArgs("p-9").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(context.Background(), "p-9")
		assert.ErrorIs(t, err, domain.ErrProductNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("null description", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewPostgresProductRepository(db)
		now := time.Now()

		mock.ExpectQuery("SELECT (.+) FROM products WHERE id = \\$1").
			WithArgs("p-1").
			WillReturnRows(sqlmock.NewRows(productRowColumns).
				AddRow("p-1", "Widget", nil, 1, 2.5, now, now))

		product, err := repo.GetByID(context.Background(), "p-1")
		require.NoError(t, err)
		assert.Empty(t, product.Description)
		assert.Equal(t, 2.5, product.Price)
	})
}

func TestPostgresProductRepository_Update(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresProductRepository(db)
	now := time.Now()
	price := 12.5

	mock.ExpectQuery(`UPDATE products SET price = \$1, updated_at = NOW\(\) WHERE id = \$2 RETURNING (.+)`).
		WithArgs(12.5, "p-1").
		WillReturnRows(sqlmock.NewRows(productRowColumns).
			AddRow("p-1", "Widget", "", 5, 12.5, now, now))

	product, err := repo.Update(context.Background(), "p-1", domain.UpdateProductRequest{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, 12.5, product.Price)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresProductRepository_Delete(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostgresProductRepository(db)

	mock.ExpectExec("DELETE FROM products WHERE id = \\$1").
		WithArgs("p-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "p-1"), domain.ErrProductNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryProductRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryProductRepository()

	first, err := repo.Create(ctx, domain.CreateProductRequest{Name: "First", Price: 1})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	second, err := repo.Create(ctx, domain.CreateProductRequest{Name: "Second", Price: 2})
	require.NoError(t, err)

	list, err := repo.ListProducts(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	name := "Renamed"
	updated, err := repo.Update(ctx, first.ID, domain.UpdateProductRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, 1.0, updated.Price)

	require.NoError(t, repo.Delete(ctx, first.ID))
	_, err = repo.GetByID(ctx, first.ID)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	list, err = repo.ListProducts(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, list)
}
