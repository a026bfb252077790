package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/linemk/rcon-shop/internal/domain/models"
	"github.com/linemk/rcon-shop/internal/lib/currency"
	"github.com/linemk/rcon-shop/internal/storage"
)

// CheckoutRequest: ручное оформление: игрок платит вне системы и прикладывает подтверждение
type CheckoutRequest struct {
	ContactHandle *string
	ProofRef      *string
	PaymentMethod string
}

type CheckoutService interface {
	Checkout(ctx context.Context, player *models.Player, req CheckoutRequest) (*models.OrderGroup, error)
	// UploadProof сохраняет файл подтверждения и возвращает его публичный адрес
	UploadProof(ctx context.Context, filename string, r io.Reader) (string, error)
	// AttachProof прикрепляет подтверждение к своей группе игрока; позиции не меняются
	AttachProof(ctx context.Context, player *models.Player, groupID, proofRef string) (*models.OrderGroup, error)
}

type checkoutService struct {
	log        *slog.Logger
	cart       CartService
	reconciler *Reconciler
	orderRepo  storage.OrderStorage
	proofs     storage.ProofStore
	conv       *currency.Converter
}

func NewCheckoutService(log *slog.Logger, cart CartService, reconciler *Reconciler, orderRepo storage.OrderStorage, proofs storage.ProofStore, conv *currency.Converter) CheckoutService {
	return &checkoutService{
		log:        log,
		cart:       cart,
		reconciler: reconciler,
		orderRepo:  orderRepo,
		proofs:     proofs,
		conv:       conv,
	}
}

// Checkout создаёт pending-группу из корзины. Одобряет позиции только администратор.
func (s *checkoutService) Checkout(ctx context.Context, player *models.Player, req CheckoutRequest) (*models.OrderGroup, error) {
	const op = "service.CheckoutService.Checkout"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", player.UserID))

	method := models.PaymentMethod(req.PaymentMethod)
	if method == "" {
		method = models.PaymentManual
	}
	// Провайдерские способы создают группу только после подтверждения провайдером
	if method != models.PaymentManual {
		logger.Warn("payment method is not allowed for manual checkout", slog.String("paymentMethod", req.PaymentMethod))
		return nil, fmt.Errorf("%s: %w: %s", op, ErrUnsupportedPaymentMethod, req.PaymentMethod)
	}

	lines, err := s.cart.Snapshot(ctx, player.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	group := &models.OrderGroup{
		ID:            uuid.NewString(),
		UserID:        player.UserID,
		PlayerID:      player.PlayerID,
		ContactHandle: req.ContactHandle,
		PaymentMethod: method,
		Currency:      s.conv.Base(),
		Amount:        models.CartTotal(lines),
	}
	created, err := s.reconciler.PlaceGroup(ctx, group, lines, req.ProofRef)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("manual checkout placed", slog.String("groupID", created.ID), slog.Int("units", models.Units(lines)))
	return created, nil
}

func (s *checkoutService) UploadProof(ctx context.Context, filename string, r io.Reader) (string, error) {
	const op = "service.CheckoutService.UploadProof"

	url, err := s.proofs.Save(ctx, filename, r)
	if err != nil {
		s.log.Error("failed to save proof", slog.String("op", op), slog.Any("error", err))
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return url, nil
}

func (s *checkoutService) AttachProof(ctx context.Context, player *models.Player, groupID, proofRef string) (*models.OrderGroup, error) {
	const op = "service.CheckoutService.AttachProof"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", player.UserID), slog.String("groupID", groupID))

	group, err := s.orderRepo.GetGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, storage.ErrGroupNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrOrderNotFound)
		}
		logger.Error("failed to get order group", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if group.UserID != player.UserID {
		return nil, fmt.Errorf("%s: %w", op, ErrOrderNotFound)
	}

	if err := s.reconciler.AttachProof(ctx, groupID, proofRef); err != nil {
		logger.Error("failed to attach proof", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	group.ProofRef = &proofRef
	logger.Info("proof attached")
	return group, nil
}
