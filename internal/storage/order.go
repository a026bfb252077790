package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/linemk/rcon-shop/internal/domain/models"
)

var (
	ErrGroupNotFound        = errors.New("order group not found")
	ErrItemNotFound         = errors.New("order item not found")
	ErrItemNotPending       = errors.New("order item is not pending")
	ErrDuplicateExternalRef = errors.New("order group for external reference already exists")
)

// OrderStorage описывает методы для работы с группами заказов и их позициями.
type OrderStorage interface {
	// CreateGroup вставляет группу и по одной позиции на каждую купленную единицу в рамках транзакции.
	CreateGroup(ctx context.Context, tx *sql.Tx, group *models.OrderGroup, lines []models.CartLine) (*models.OrderGroup, error)
	// AttachProof меняет только группу, позиции не трогает.
	AttachProof(ctx context.Context, tx *sql.Tx, groupID string, proofRef string) error
	GetGroup(ctx context.Context, groupID string) (*models.OrderGroup, error)
	// FindGroupByExternalRef нужен асинхронным колбэкам, которые не знают внутреннего id группы.
	FindGroupByExternalRef(ctx context.Context, method models.PaymentMethod, externalRef string) (*models.OrderGroup, error)
	ListGroupsByUser(ctx context.Context, userID int64) ([]*models.OrderGroup, error)
	ListGroups(ctx context.Context) ([]*models.OrderGroup, error)
	GetItem(ctx context.Context, itemID int64) (*models.OrderLineItem, error)
	// ApproveItem и RejectItem делают одну условную запись; ErrItemNotPending значит, что переход выиграл кто-то другой.
	ApproveItem(ctx context.Context, itemID int64) (*models.OrderLineItem, error)
	RejectItem(ctx context.Context, itemID int64) (*models.OrderLineItem, error)
	// RecordCommandResult сохраняет ответ RCON или текст ошибки, статус не меняется.
	RecordCommandResult(ctx context.Context, itemID int64, result *string, cmdErr *string) error
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт новый репозиторий заказов.
func NewOrderRepository(db *sql.DB) OrderStorage {
	return &orderRepository{db: db}
}

const groupColumns = "id, user_id, player_id, contact_handle, payment_method, external_ref, currency, amount, proof_ref, created_at"

const itemSelect = `
		SELECT oi.id, oi.group_id, oi.user_id, oi.player_id, oi.product_id, COALESCE(p.name, ''), oi.unit_price,
		       oi.status, oi.approved_at, oi.command_result, oi.command_error, oi.command_attempted_at, oi.created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanGroup(row scanner) (*models.OrderGroup, error) {
	g := &models.OrderGroup{}
	var method string
	if err := row.Scan(&g.ID, &g.UserID, &g.PlayerID, &g.ContactHandle, &method, &g.ExternalRef,
		&g.Currency, &g.Amount, &g.ProofRef, &g.CreatedAt); err != nil {
		return nil, err
	}
	g.PaymentMethod = models.PaymentMethod(method)
	return g, nil
}

func scanItem(row scanner) (*models.OrderLineItem, error) {
	it := &models.OrderLineItem{}
	var status string
	if err := row.Scan(&it.ID, &it.GroupID, &it.UserID, &it.PlayerID, &it.ProductID, &it.ProductName, &it.UnitPrice,
		&status, &it.ApprovedAt, &it.CommandResult, &it.CommandError, &it.CommandAttemptedAt, &it.CreatedAt); err != nil {
		return nil, err
	}
	it.Status = models.ItemStatus(status)
	return it, nil
}

// CreateGroup разворачивает (товар, количество) в quantity позиций со статусом pending.
// Атомарность обеспечивает транзакция вызывающего: либо группа со всеми позициями, либо ничего.
func (r *orderRepository) CreateGroup(ctx context.Context, tx *sql.Tx, group *models.OrderGroup, lines []models.CartLine) (*models.OrderGroup, error) {
	query := `INSERT INTO order_groups (id, user_id, player_id, contact_handle, payment_method, external_ref, currency, amount, proof_ref, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW()) RETURNING created_at`
	err := tx.QueryRowContext(ctx, query,
		group.ID, group.UserID, group.PlayerID, group.ContactHandle, string(group.PaymentMethod),
		group.ExternalRef, group.Currency, group.Amount, group.ProofRef,
	).Scan(&group.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return nil, ErrDuplicateExternalRef
		}
		return nil, fmt.Errorf("failed to create order group: %w", err)
	}

	itemQuery := `INSERT INTO order_items (group_id, user_id, player_id, product_id, unit_price, status, created_at)
	              VALUES ($1, $2, $3, $4, $5, 'pending', NOW()) RETURNING id, created_at`
	group.Items = make([]*models.OrderLineItem, 0, models.Units(lines))
	for _, line := range lines {
		for i := 0; i < line.Quantity; i++ {
			item := &models.OrderLineItem{
				GroupID:     group.ID,
				UserID:      group.UserID,
				PlayerID:    group.PlayerID,
				ProductID:   line.Product.ID,
				ProductName: line.Product.Name,
				UnitPrice:   line.Product.Price,
				Status:      models.StatusPending,
			}
			err := tx.QueryRowContext(ctx, itemQuery,
				item.GroupID, item.UserID, item.PlayerID, item.ProductID, item.UnitPrice,
			).Scan(&item.ID, &item.CreatedAt)
			if err != nil {
				return nil, fmt.Errorf("failed to create order item: %w", err)
			}
			group.Items = append(group.Items, item)
		}
	}
	return group, nil
}

func (r *orderRepository) AttachProof(ctx context.Context, tx *sql.Tx, groupID string, proofRef string) error {
	res, err := tx.ExecContext(ctx, "UPDATE order_groups SET proof_ref = $1 WHERE id = $2", proofRef, groupID)
	if err != nil {
		return fmt.Errorf("failed to attach proof: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (r *orderRepository) GetGroup(ctx context.Context, groupID string) (*models.OrderGroup, error) {
	// id в БД типа uuid: произвольная строка из URL дала бы ошибку синтаксиса вместо "не найдено"
	if _, err := uuid.Parse(groupID); err != nil {
		return nil, ErrGroupNotFound
	}
	row := r.db.QueryRowContext(ctx, "SELECT "+groupColumns+" FROM order_groups WHERE id = $1", groupID)
	return r.loadGroup(ctx, row)
}

func (r *orderRepository) FindGroupByExternalRef(ctx context.Context, method models.PaymentMethod, externalRef string) (*models.OrderGroup, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+groupColumns+" FROM order_groups WHERE payment_method = $1 AND external_ref = $2",
		string(method), externalRef)
	return r.loadGroup(ctx, row)
}

func (r *orderRepository) loadGroup(ctx context.Context, row *sql.Row) (*models.OrderGroup, error) {
	g, err := scanGroup(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to get order group: %w", err)
	}
	if err := r.attachItems(ctx, []*models.OrderGroup{g}); err != nil {
		return nil, err
	}
	return g, nil
}

func (r *orderRepository) ListGroupsByUser(ctx context.Context, userID int64) ([]*models.OrderGroup, error) {
	return r.listGroups(ctx, "SELECT "+groupColumns+" FROM order_groups WHERE user_id = $1 ORDER BY created_at DESC", userID)
}

func (r *orderRepository) ListGroups(ctx context.Context) ([]*models.OrderGroup, error) {
	return r.listGroups(ctx, "SELECT "+groupColumns+" FROM order_groups ORDER BY created_at DESC")
}

func (r *orderRepository) listGroups(ctx context.Context, query string, args ...any) ([]*models.OrderGroup, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*models.OrderGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachItems(ctx, groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// attachItems догружает позиции одним запросом на все группы
func (r *orderRepository) attachItems(ctx context.Context, groups []*models.OrderGroup) error {
	if len(groups) == 0 {
		return nil
	}
	ids := make([]string, 0, len(groups))
	byID := make(map[string]*models.OrderGroup, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
		byID[g.ID] = g
		g.Items = []*models.OrderLineItem{}
	}

	query := itemSelect + `
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.group_id = ANY($1)
		ORDER BY oi.id`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return err
		}
		if g, ok := byID[it.GroupID]; ok {
			g.Items = append(g.Items, it)
		}
	}
	return rows.Err()
}

func (r *orderRepository) GetItem(ctx context.Context, itemID int64) (*models.OrderLineItem, error) {
	query := itemSelect + `
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.id = $1`
	it, err := scanItem(r.db.QueryRowContext(ctx, query, itemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get order item: %w", err)
	}
	return it, nil
}

func (r *orderRepository) ApproveItem(ctx context.Context, itemID int64) (*models.OrderLineItem, error) {
	return r.transition(ctx, itemID, "status = 'approved', approved_at = NOW()")
}

func (r *orderRepository) RejectItem(ctx context.Context, itemID int64) (*models.OrderLineItem, error) {
	return r.transition(ctx, itemID, "status = 'rejected'")
}

// transition: условный UPDATE ... WHERE status = 'pending'; из двух конкурентных запросов строку получит только один
func (r *orderRepository) transition(ctx context.Context, itemID int64, set string) (*models.OrderLineItem, error) {
	query := `
		WITH upd AS (
			UPDATE order_items SET ` + set + `
			WHERE id = $1 AND status = 'pending'
			RETURNING *
		)` + itemSelect + `
		FROM upd oi
		LEFT JOIN products p ON p.id = oi.product_id`
	it, err := scanItem(r.db.QueryRowContext(ctx, query, itemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItemNotPending
		}
		return nil, fmt.Errorf("failed to update order item status: %w", err)
	}
	return it, nil
}

func (r *orderRepository) RecordCommandResult(ctx context.Context, itemID int64, result *string, cmdErr *string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE order_items SET command_result = $1, command_error = $2, command_attempted_at = NOW() WHERE id = $3",
		result, cmdErr, itemID)
	if err != nil {
		return fmt.Errorf("failed to record command result: %w", err)
	}
	return nil
}
