package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/linemk/rcon-shop/internal/domain/models"
)

var ErrCartItemNotFound = errors.New("cart item not found")

// CartStorage описывает методы для работы с корзиной игрока.
type CartStorage interface {
	// GetCartItems возвращает строки корзины вместе с товарами (LEFT JOIN).
	GetCartItems(ctx context.Context, userID int64) ([]*models.CartItem, error)
	AddItem(ctx context.Context, userID, productID int64, quantity int) (*models.CartItem, error)
	UpdateQuantity(ctx context.Context, userID, itemID int64, quantity int) (*models.CartItem, error)
	RemoveItem(ctx context.Context, userID, itemID int64) error
	// ClearCart удаляет корзину в той же транзакции, что создаёт группу заказов.
	ClearCart(ctx context.Context, tx *sql.Tx, userID int64) error
	// RemoveLines вычитает из корзины оплаченные количества; строки, ушедшие в ноль, удаляются.
	RemoveLines(ctx context.Context, tx *sql.Tx, userID int64, lines []models.CartLine) error
}

type cartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) CartStorage {
	return &cartRepository{db: db}
}

func (r *cartRepository) GetCartItems(ctx context.Context, userID int64) ([]*models.CartItem, error) {
	query := `
		SELECT ci.id, ci.user_id, ci.product_id, ci.quantity,
		       p.id, p.name, p.price, p.command, p.image, p.active, p.stock, p.description
		FROM cart_items ci
		LEFT JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.CartItem
	for rows.Next() {
		item := &models.CartItem{}
		var (
			pID                            sql.NullInt64
			pName, pCommand, pImage, pDesc sql.NullString
			pPrice                         sql.NullString
			pActive                        sql.NullBool
			pStock                         sql.NullInt64
		)
		if err := rows.Scan(&item.ID, &item.UserID, &item.ProductID, &item.Quantity,
			&pID, &pName, &pPrice, &pCommand, &pImage, &pActive, &pStock, &pDesc); err != nil {
			return nil, err
		}
		if pID.Valid {
			p := &models.Product{
				ID:          pID.Int64,
				Name:        pName.String,
				Command:     pCommand.String,
				Image:       pImage.String,
				Active:      pActive.Bool,
				Stock:       int(pStock.Int64),
				Description: pDesc.String,
			}
			if err := p.Price.Scan(pPrice.String); err != nil {
				return nil, fmt.Errorf("failed to parse product price: %w", err)
			}
			item.Product = p
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *cartRepository) AddItem(ctx context.Context, userID, productID int64, quantity int) (*models.CartItem, error) {
	item := &models.CartItem{UserID: userID, ProductID: productID, Quantity: quantity}
	err := r.db.QueryRowContext(ctx,
		"INSERT INTO cart_items (user_id, product_id, quantity) VALUES ($1, $2, $3) RETURNING id",
		userID, productID, quantity,
	).Scan(&item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}
	return item, nil
}

func (r *cartRepository) UpdateQuantity(ctx context.Context, userID, itemID int64, quantity int) (*models.CartItem, error) {
	item := &models.CartItem{}
	err := r.db.QueryRowContext(ctx,
		"UPDATE cart_items SET quantity = $1 WHERE id = $2 AND user_id = $3 RETURNING id, user_id, product_id, quantity",
		quantity, itemID, userID,
	).Scan(&item.ID, &item.UserID, &item.ProductID, &item.Quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartItemNotFound
		}
		return nil, fmt.Errorf("failed to update cart item: %w", err)
	}
	return item, nil
}

func (r *cartRepository) RemoveItem(ctx context.Context, userID, itemID int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM cart_items WHERE id = $1 AND user_id = $2", itemID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

func (r *cartRepository) ClearCart(ctx context.Context, tx *sql.Tx, userID int64) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

type cartRow struct {
	id        int64
	productID int64
	quantity  int
}

func (r *cartRepository) RemoveLines(ctx context.Context, tx *sql.Tx, userID int64, lines []models.CartLine) error {
	remaining := make(map[int64]int, len(lines))
	for _, l := range lines {
		remaining[l.Product.ID] += l.Quantity
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT id, product_id, quantity FROM cart_items WHERE user_id = $1 ORDER BY id FOR UPDATE", userID)
	if err != nil {
		return fmt.Errorf("failed to lock cart: %w", err)
	}
	var current []cartRow
	for rows.Next() {
		var c cartRow
		if err := rows.Scan(&c.id, &c.productID, &c.quantity); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan cart item: %w", err)
		}
		current = append(current, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	// у одного товара может быть несколько строк: списываем по порядку id
	for _, c := range current {
		take := min(c.quantity, remaining[c.productID])
		if take == 0 {
			continue
		}
		remaining[c.productID] -= take
		if take == c.quantity {
			if _, err := tx.ExecContext(ctx, "DELETE FROM cart_items WHERE id = $1", c.id); err != nil {
				return fmt.Errorf("failed to remove cart item: %w", err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, "UPDATE cart_items SET quantity = quantity - $1 WHERE id = $2", take, c.id); err != nil {
			return fmt.Errorf("failed to update cart item: %w", err)
		}
	}
	return nil
}
