package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linemk/rcon-shop/internal/domain/models"
	"github.com/linemk/rcon-shop/internal/storage"
)

// ItemDecider: ручные решения администратора по одной позиции
type ItemDecider interface {
	ApproveItem(ctx context.Context, itemID int64) (*models.OrderLineItem, FulfillmentOutcome, error)
	RejectItem(ctx context.Context, itemID int64) (*models.OrderLineItem, error)
}

var _ ItemDecider = (*Reconciler)(nil)

// Reconciler проводит группу заказов через общие шаги всех способов оплаты:
// создание группы с очисткой корзины и одобрение позиций с выдачей.
type Reconciler struct {
	log       *slog.Logger
	db        *sql.DB
	orderRepo storage.OrderStorage
	cartRepo  storage.CartStorage
	fulfiller *Fulfiller
}

func NewReconciler(log *slog.Logger, db *sql.DB, orderRepo storage.OrderStorage, cartRepo storage.CartStorage, fulfiller *Fulfiller) *Reconciler {
	return &Reconciler{
		log:       log,
		db:        db,
		orderRepo: orderRepo,
		cartRepo:  cartRepo,
		fulfiller: fulfiller,
	}
}

// PlaceGroup создаёт группу со всеми позициями, прикрепляет подтверждение (если есть)
// и очищает корзину в одной транзакции. Падение до коммита оставляет корзину нетронутой.
// Снимок должен быть снят с корзины в этом же запросе.
func (r *Reconciler) PlaceGroup(ctx context.Context, group *models.OrderGroup, lines []models.CartLine, proofRef *string) (*models.OrderGroup, error) {
	return r.place(ctx, "service.Reconciler.PlaceGroup", group, lines, proofRef, func(tx *sql.Tx) error {
		return r.cartRepo.ClearCart(ctx, tx, group.UserID)
	})
}

// PlaceSnapshotGroup создаёт группу по снимку, который хранился у провайдера (metadata Stripe, custom_id PayPal).
// Корзина могла измениться после оплаты, поэтому из неё вычитаются только оплаченные количества.
func (r *Reconciler) PlaceSnapshotGroup(ctx context.Context, group *models.OrderGroup, lines []models.CartLine) (*models.OrderGroup, error) {
	return r.place(ctx, "service.Reconciler.PlaceSnapshotGroup", group, lines, nil, func(tx *sql.Tx) error {
		return r.cartRepo.RemoveLines(ctx, tx, group.UserID, lines)
	})
}

func (r *Reconciler) place(ctx context.Context, op string, group *models.OrderGroup, lines []models.CartLine, proofRef *string, settleCart func(tx *sql.Tx) error) (*models.OrderGroup, error) {
	logger := r.log.With(
		slog.String("op", op),
		slog.Int64("userID", group.UserID),
		slog.String("paymentMethod", string(group.PaymentMethod)),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	created, err := r.orderRepo.CreateGroup(ctx, tx, group, lines)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		if errors.Is(err, storage.ErrDuplicateExternalRef) {
			logger.Info("order group for external reference already exists")
		} else {
			logger.Error("failed to create order group", slog.Any("error", err))
		}
		return nil, fmt.Errorf("%s: failed to create order group: %w", op, err)
	}

	if proofRef != nil {
		if err := r.orderRepo.AttachProof(ctx, tx, created.ID, *proofRef); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Error("transaction rollback failed", slog.Any("error", rbErr))
			}
			logger.Error("failed to attach proof", slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to attach proof: %w", op, err)
		}
		created.ProofRef = proofRef
	}

	if err := settleCart(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		logger.Error("failed to update cart", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to update cart: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	logger.Info("order group created", slog.String("groupID", created.ID), slog.Int("items", len(created.Items)))
	return created, nil
}

// ApproveGroup одобряет и выдаёт все ещё pending позиции группы.
// Уже решённые позиции пропускаются, поэтому повторная доставка колбэка ничего не выдаёт второй раз.
func (r *Reconciler) ApproveGroup(ctx context.Context, group *models.OrderGroup) ([]FulfillmentOutcome, error) {
	const op = "service.Reconciler.ApproveGroup"
	logger := r.log.With(slog.String("op", op), slog.String("groupID", group.ID))

	outcomes := make([]FulfillmentOutcome, 0, len(group.Items))
	for i, it := range group.Items {
		approved, err := r.orderRepo.ApproveItem(ctx, it.ID)
		if err != nil {
			if errors.Is(err, storage.ErrItemNotPending) {
				logger.Info("order item already decided, skipping", slog.Int64("itemID", it.ID))
				continue
			}
			logger.Error("failed to approve order item", slog.Int64("itemID", it.ID), slog.Any("error", err))
			return outcomes, fmt.Errorf("%s: failed to approve item %d: %w", op, it.ID, err)
		}
		group.Items[i] = approved
		outcomes = append(outcomes, r.fulfiller.Fulfill(ctx, approved))
	}

	logger.Info("order group approved", slog.Int("fulfilled", len(outcomes)))
	return outcomes, nil
}

// ApproveItem: ручное одобрение одной позиции администратором
func (r *Reconciler) ApproveItem(ctx context.Context, itemID int64) (*models.OrderLineItem, FulfillmentOutcome, error) {
	const op = "service.Reconciler.ApproveItem"
	logger := r.log.With(slog.String("op", op), slog.Int64("itemID", itemID))

	item, err := r.orderRepo.ApproveItem(ctx, itemID)
	if err != nil {
		err = r.classify(ctx, itemID, err)
		logger.Warn("order item was not approved", slog.Any("error", err))
		return nil, FulfillmentOutcome{}, fmt.Errorf("%s: %w", op, err)
	}

	out := r.fulfiller.Fulfill(ctx, item)
	logger.Info("order item approved")
	return item, out, nil
}

// RejectItem: отклонение позиции, без побочных эффектов
func (r *Reconciler) RejectItem(ctx context.Context, itemID int64) (*models.OrderLineItem, error) {
	const op = "service.Reconciler.RejectItem"
	logger := r.log.With(slog.String("op", op), slog.Int64("itemID", itemID))

	item, err := r.orderRepo.RejectItem(ctx, itemID)
	if err != nil {
		err = r.classify(ctx, itemID, err)
		logger.Warn("order item was not rejected", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("order item rejected")
	return item, nil
}

// classify объясняет проигранный условный переход: позиции нет или она уже в конечном статусе
func (r *Reconciler) classify(ctx context.Context, itemID int64, err error) error {
	if !errors.Is(err, storage.ErrItemNotPending) {
		return err
	}
	item, getErr := r.orderRepo.GetItem(ctx, itemID)
	if getErr != nil {
		if errors.Is(getErr, storage.ErrItemNotFound) {
			return ErrOrderNotFound
		}
		return getErr
	}
	switch item.Status {
	case models.StatusApproved:
		return ErrAlreadyApproved
	case models.StatusRejected:
		return ErrAlreadyRejected
	}
	return err
}

// AttachProof обновляет только группу в отдельной транзакции
func (r *Reconciler) AttachProof(ctx context.Context, groupID, proofRef string) error {
	const op = "service.Reconciler.AttachProof"
	logger := r.log.With(slog.String("op", op), slog.String("groupID", groupID))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	if err := r.orderRepo.AttachProof(ctx, tx, groupID, proofRef); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("transaction rollback failed", slog.Any("error", rbErr))
		}
		if errors.Is(err, storage.ErrGroupNotFound) {
			return fmt.Errorf("%s: %w", op, ErrOrderNotFound)
		}
		return fmt.Errorf("%s: failed to attach proof: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}
	return nil
}
