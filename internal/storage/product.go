package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/linemk/rcon-shop/internal/domain/models"
)

var ErrProductNotFound = errors.New("product not found")

// ProductStorage: чтение каталога. Запись каталога живёт вне конвейера заказов.
type ProductStorage interface {
	// GetProductByID возвращает товар вместе с шаблоном команды, включая неактивные
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	// ListActiveProducts возвращает витрину
	ListActiveProducts(ctx context.Context) ([]*models.Product, error)
}

type productRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) ProductStorage {
	return &productRepository{db: db}
}

const productColumns = "id, name, price, command, image, active, stock, description"

func scanProduct(row interface{ Scan(dest ...any) error }) (*models.Product, error) {
	p := &models.Product{}
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Command, &p.Image, &p.Active, &p.Stock, &p.Description); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *productRepository) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

func (r *productRepository) ListActiveProducts(ctx context.Context) ([]*models.Product, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+productColumns+" FROM products WHERE active = TRUE ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}
