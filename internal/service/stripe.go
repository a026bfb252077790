package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/linemk/rcon-shop/internal/domain/models"
	"github.com/linemk/rcon-shop/internal/lib/currency"
	"github.com/linemk/rcon-shop/internal/payment"
	"github.com/linemk/rcon-shop/internal/storage"
	"github.com/shopspring/decimal"
)

// ключи metadata PaymentIntent
const (
	stripeMetaUserID   = "user_id"
	stripeMetaPlayerID = "player_id"
	stripeMetaContact  = "contact"
	stripeMetaCart     = "cart"
)

type StripeConfigView struct {
	PublishableKey string `json:"publishableKey"`
}

// StripeIntent: ответ клиенту для stripe.js
type StripeIntent struct {
	ID           string          `json:"paymentIntentId"`
	ClientSecret string          `json:"clientSecret"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
}

type StripeService interface {
	Config() StripeConfigView
	CreateIntent(ctx context.Context, player *models.Player, currencyCode string, contact *string) (*StripeIntent, error)
	// Confirm перечитывает intent у Stripe. При player == nil (возврат после редиректа) покупатель берётся из metadata.
	Confirm(ctx context.Context, player *models.Player, intentID string, contact *string) (*PaymentResult, error)
}

type stripeService struct {
	log        *slog.Logger
	provider   *payment.Stripe
	cart       CartService
	reconciler *Reconciler
	orderRepo  storage.OrderStorage
	conv       *currency.Converter
}

func NewStripeService(log *slog.Logger, provider *payment.Stripe, cart CartService, reconciler *Reconciler, orderRepo storage.OrderStorage, conv *currency.Converter) StripeService {
	return &stripeService{
		log:        log,
		provider:   provider,
		cart:       cart,
		reconciler: reconciler,
		orderRepo:  orderRepo,
		conv:       conv,
	}
}

func (s *stripeService) Config() StripeConfigView {
	return StripeConfigView{PublishableKey: s.provider.PublishableKey()}
}

// CreateIntent создаёт PaymentIntent на сумму корзины. Снимок корзины и покупатель
// уезжают в metadata, чтобы подтверждение не зависело от текущего содержимого корзины.
func (s *stripeService) CreateIntent(ctx context.Context, player *models.Player, currencyCode string, contact *string) (*StripeIntent, error) {
	const op = "service.StripeService.CreateIntent"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", player.UserID))

	code, err := s.conv.Normalize(currencyCode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	lines, err := s.cart.Snapshot(ctx, player.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	amount, err := s.conv.Convert(models.CartTotal(lines), code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metadata := map[string]string{
		stripeMetaUserID:   strconv.FormatInt(player.UserID, 10),
		stripeMetaPlayerID: player.PlayerID,
		stripeMetaCart:     EncodeSnapshot(lines),
	}
	if contact != nil && *contact != "" {
		metadata[stripeMetaContact] = *contact
	}

	intent, err := s.provider.CreateIntent(ctx, amount, code, metadata)
	if err != nil {
		if errors.Is(err, payment.ErrBelowMinimum) {
			logger.Warn("amount below stripe minimum", slog.String("amount", amount.String()), slog.String("currency", code))
		} else {
			logger.Error("failed to create payment intent", slog.Any("error", err))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("payment intent created", slog.String("intentID", intent.ID))
	return &StripeIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Currency:     intent.Currency,
	}, nil
}

func (s *stripeService) Confirm(ctx context.Context, player *models.Player, intentID string, contact *string) (*PaymentResult, error) {
	const op = "service.StripeService.Confirm"
	logger := s.log.With(slog.String("op", op), slog.String("intentID", intentID))

	existing, err := existingGroup(ctx, s.orderRepo, player, models.PaymentStripe, intentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if existing != nil {
		logger.Info("payment intent already reconciled", slog.String("groupID", existing.Group.ID))
		return existing, nil
	}

	conf, intent, err := s.provider.Confirm(ctx, intentID)
	if err != nil {
		logger.Error("failed to retrieve payment intent", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !conf.Confirmed {
		logger.Warn("payment intent not succeeded", slog.String("status", conf.Status))
		return nil, fmt.Errorf("%s: %w: status %s", op, ErrNotConfirmed, conf.Status)
	}

	buyer, err := buyerFromMetadata(intent.Metadata)
	if err != nil {
		logger.Error("payment intent has no buyer", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if player != nil && player.UserID != buyer.UserID {
		logger.Warn("payment intent belongs to another buyer", slog.Int64("userID", player.UserID), slog.Int64("buyerID", buyer.UserID))
		return nil, fmt.Errorf("%s: %w", op, ErrBuyerMismatch)
	}
	if contact == nil {
		if c, ok := intent.Metadata[stripeMetaContact]; ok && c != "" {
			contact = &c
		}
	}

	lines, err := s.cart.Resolve(ctx, intent.Metadata[stripeMetaCart])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// Цена могла поменяться после создания intent; платёж уже прошёл, поэтому только предупреждаем
	if expected, err := s.conv.Convert(models.CartTotal(lines), intent.Currency); err == nil {
		if currency.MinorUnits(expected, 2) != currency.MinorUnits(intent.Amount, 2) {
			logger.Warn("paid amount differs from current cart price",
				slog.String("paid", intent.Amount.String()), slog.String("expected", expected.String()))
		}
	}

	ref := intent.ID
	group := &models.OrderGroup{
		ID:            uuid.NewString(),
		UserID:        buyer.UserID,
		PlayerID:      buyer.PlayerID,
		ContactHandle: contact,
		PaymentMethod: models.PaymentStripe,
		ExternalRef:   &ref,
		Currency:      intent.Currency,
		Amount:        intent.Amount,
	}
	created, err := s.reconciler.PlaceSnapshotGroup(ctx, group, lines)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateExternalRef) {
			existing, err := existingGroup(ctx, s.orderRepo, player, models.PaymentStripe, intentID)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	outcomes, err := s.reconciler.ApproveGroup(ctx, created)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("stripe payment reconciled", slog.String("groupID", created.ID))
	return &PaymentResult{Group: created, Outcomes: outcomes}, nil
}

func buyerFromMetadata(meta map[string]string) (*models.Player, error) {
	uid, err := strconv.ParseInt(meta[stripeMetaUserID], 10, 64)
	if err != nil || uid <= 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidSnapshot, stripeMetaUserID)
	}
	playerID := meta[stripeMetaPlayerID]
	if playerID == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidSnapshot, stripeMetaPlayerID)
	}
	return &models.Player{UserID: uid, PlayerID: playerID}, nil
}
