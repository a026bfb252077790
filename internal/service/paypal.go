package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/linemk/rcon-shop/internal/domain/models"
	"github.com/linemk/rcon-shop/internal/lib/currency"
	"github.com/linemk/rcon-shop/internal/payment"
	"github.com/linemk/rcon-shop/internal/storage"
	"github.com/shopspring/decimal"
)

// PaymentResult: итог синхронного подтверждения: группа и результаты выдачи
type PaymentResult struct {
	Group    *models.OrderGroup   `json:"group"`
	Outcomes []FulfillmentOutcome `json:"outcomes"`
	// Replayed: группа уже была создана раньше по той же ссылке провайдера, выдачи не было
	Replayed bool `json:"replayed"`
}

// PayPalConfigView: публичные настройки для клиентского SDK
type PayPalConfigView struct {
	ClientID string `json:"clientId"`
	Mode     string `json:"mode"`
	Currency string `json:"currency"`
}

// PayPalOrder: созданный у PayPal заказ
type PayPalOrder struct {
	ID       string          `json:"id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type PayPalService interface {
	Config() PayPalConfigView
	CreateOrder(ctx context.Context, player *models.Player) (*PayPalOrder, error)
	CaptureOrder(ctx context.Context, player *models.Player, orderID string, contact *string) (*PaymentResult, error)
}

type payPalService struct {
	log        *slog.Logger
	provider   *payment.PayPal
	cart       CartService
	reconciler *Reconciler
	orderRepo  storage.OrderStorage
	conv       *currency.Converter
}

func NewPayPalService(log *slog.Logger, provider *payment.PayPal, cart CartService, reconciler *Reconciler, orderRepo storage.OrderStorage, conv *currency.Converter) PayPalService {
	return &payPalService{
		log:        log,
		provider:   provider,
		cart:       cart,
		reconciler: reconciler,
		orderRepo:  orderRepo,
		conv:       conv,
	}
}

func (s *payPalService) Config() PayPalConfigView {
	return PayPalConfigView{
		ClientID: s.provider.ClientID(),
		Mode:     s.provider.Mode(),
		Currency: s.provider.Currency(),
	}
}

// CreateOrder создаёт заказ PayPal на сумму корзины в валюте PayPal. Группа пока не создаётся.
func (s *payPalService) CreateOrder(ctx context.Context, player *models.Player) (*PayPalOrder, error) {
	const op = "service.PayPalService.CreateOrder"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", player.UserID))

	lines, err := s.cart.Snapshot(ctx, player.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	amount, err := s.conv.Convert(models.CartTotal(lines), s.provider.Currency())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	id, err := s.provider.CreateOrder(ctx, amount, payPalReference(player.UserID, lines))
	if err != nil {
		logger.Error("failed to create paypal order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("paypal order created", slog.String("orderID", id), slog.String("amount", amount.String()))
	return &PayPalOrder{ID: id, Amount: amount, Currency: s.provider.Currency()}, nil
}

// CaptureOrder: захват -> COMPLETED -> группа из корзины, закреплённой в custom_id -> одобрение и выдача.
// Ошибка провайдера, неподтверждённый статус или расхождение суммы не меняют ни заказов, ни корзины.
func (s *payPalService) CaptureOrder(ctx context.Context, player *models.Player, orderID string, contact *string) (*PaymentResult, error) {
	const op = "service.PayPalService.CaptureOrder"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", player.UserID), slog.String("orderID", orderID))

	existing, err := s.existing(ctx, player, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if existing != nil {
		logger.Info("paypal order already reconciled", slog.String("groupID", existing.Group.ID))
		return existing, nil
	}

	conf, err := s.provider.Capture(ctx, orderID)
	if err != nil {
		logger.Error("paypal capture failed", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !conf.Confirmed {
		logger.Warn("paypal capture not completed", slog.String("status", conf.Status))
		return nil, fmt.Errorf("%s: %w: status %s", op, ErrNotConfirmed, conf.Status)
	}

	buyerID, snapshot, err := parsePayPalReference(conf.Reference)
	if err != nil {
		logger.Error("paypal capture has no cart reference", slog.String("customID", conf.Reference), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if buyerID != player.UserID {
		logger.Warn("paypal order belongs to another buyer", slog.Int64("buyerID", buyerID))
		return nil, fmt.Errorf("%s: %w", op, ErrBuyerMismatch)
	}
	lines, err := s.cart.Resolve(ctx, snapshot)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	expected, err := s.conv.Convert(models.CartTotal(lines), s.provider.Currency())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if conf.Currency != s.provider.Currency() || s.provider.FormatAmount(expected) != s.provider.FormatAmount(conf.Amount) {
		// деньги списаны, но группа не создаётся: нужен ручной разбор и возврат
		logger.Error("paypal captured amount does not match cart",
			slog.String("paid", conf.Amount.String()+" "+conf.Currency),
			slog.String("expected", expected.String()+" "+s.provider.Currency()))
		return nil, fmt.Errorf("%s: %w", op, ErrAmountMismatch)
	}

	ref := orderID
	group := &models.OrderGroup{
		ID:            uuid.NewString(),
		UserID:        player.UserID,
		PlayerID:      player.PlayerID,
		ContactHandle: contact,
		PaymentMethod: models.PaymentPayPal,
		ExternalRef:   &ref,
		Currency:      conf.Currency,
		Amount:        conf.Amount,
	}
	created, err := s.reconciler.PlaceSnapshotGroup(ctx, group, lines)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateExternalRef) {
			// параллельный запрос с тем же orderID успел раньше
			res, findErr := s.existing(ctx, player, orderID)
			if findErr != nil || res == nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			return res, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	outcomes, err := s.reconciler.ApproveGroup(ctx, created)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("paypal payment reconciled", slog.String("groupID", created.ID))
	return &PaymentResult{Group: created, Outcomes: outcomes}, nil
}

// payPalReference кодирует покупателя и снимок корзины в custom_id заказа: "userID|productID:qty,..."
func payPalReference(userID int64, lines []models.CartLine) string {
	return strconv.FormatInt(userID, 10) + "|" + EncodeSnapshot(lines)
}

func parsePayPalReference(ref string) (int64, string, error) {
	idStr, snapshot, ok := strings.Cut(ref, "|")
	if !ok {
		return 0, "", fmt.Errorf("%w: %q", ErrInvalidSnapshot, ref)
	}
	userID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %q", ErrInvalidSnapshot, ref)
	}
	return userID, snapshot, nil
}

func (s *payPalService) existing(ctx context.Context, player *models.Player, orderID string) (*PaymentResult, error) {
	return existingGroup(ctx, s.orderRepo, player, models.PaymentPayPal, orderID)
}

// existingGroup ищет группу, уже созданную по ссылке провайдера. Если группы нет, возвращает nil, nil.
func existingGroup(ctx context.Context, orderRepo storage.OrderStorage, player *models.Player, method models.PaymentMethod, ref string) (*PaymentResult, error) {
	group, err := orderRepo.FindGroupByExternalRef(ctx, method, ref)
	if err != nil {
		if errors.Is(err, storage.ErrGroupNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if player != nil && group.UserID != player.UserID {
		return nil, ErrBuyerMismatch
	}
	return &PaymentResult{Group: group, Outcomes: []FulfillmentOutcome{}, Replayed: true}, nil
}
