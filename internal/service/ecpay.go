package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/linemk/rcon-shop/internal/domain/models"
	"github.com/linemk/rcon-shop/internal/lib/currency"
	"github.com/linemk/rcon-shop/internal/payment"
	"github.com/linemk/rcon-shop/internal/storage"
	"github.com/shopspring/decimal"
)

// ECPay принимает только целые тайваньские доллары
const ecpayCurrency = "TWD"

type ECPayConfigView struct {
	MerchantID string `json:"merchantId"`
	Endpoint   string `json:"endpoint"`
}

// ECPayCheckout: pending-группа и подписанная форма для перехода на кассу
type ECPayCheckout struct {
	GroupID string                `json:"groupId"`
	TradeNo string                `json:"merchantTradeNo"`
	Form    *payment.CheckoutForm `json:"form"`
}

type ECPayService interface {
	Config() ECPayConfigView
	CreatePayment(ctx context.Context, player *models.Player, paymentType string, contact *string) (*ECPayCheckout, error)
	// HandleCallback обрабатывает ReturnURL. nil означает, что колбэк принят (даже если это не оплата).
	HandleCallback(ctx context.Context, form url.Values) error
	// HandlePaymentInfo обрабатывает PaymentInfoURL: реквизиты ATM/CVS прикрепляются к группе.
	HandlePaymentInfo(ctx context.Context, form url.Values) error
}

type ecpayService struct {
	log        *slog.Logger
	provider   *payment.ECPay
	cart       CartService
	reconciler *Reconciler
	orderRepo  storage.OrderStorage
	replay     storage.ReplayGuard
	conv       *currency.Converter
}

func NewECPayService(log *slog.Logger, provider *payment.ECPay, cart CartService, reconciler *Reconciler, orderRepo storage.OrderStorage, replay storage.ReplayGuard, conv *currency.Converter) ECPayService {
	return &ecpayService{
		log:        log,
		provider:   provider,
		cart:       cart,
		reconciler: reconciler,
		orderRepo:  orderRepo,
		replay:     replay,
		conv:       conv,
	}
}

func (s *ecpayService) Config() ECPayConfigView {
	return ECPayConfigView{MerchantID: s.provider.MerchantID(), Endpoint: s.provider.Endpoint()}
}

// CreatePayment заранее создаёт pending-группу с MerchantTradeNo в external_ref:
// колбэк придёт без сессии игрока и найдёт группу по этому номеру.
func (s *ecpayService) CreatePayment(ctx context.Context, player *models.Player, paymentType string, contact *string) (*ECPayCheckout, error) {
	const op = "service.ECPayService.CreatePayment"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", player.UserID))

	if !s.provider.Configured() {
		return nil, fmt.Errorf("%s: %w", op, payment.ErrNotConfigured)
	}

	var (
		method models.PaymentMethod
		pt     payment.ECPayPaymentType
	)
	switch strings.ToUpper(paymentType) {
	case string(payment.ECPayATM):
		method, pt = models.PaymentECPayATM, payment.ECPayATM
	case string(payment.ECPayCVS):
		method, pt = models.PaymentECPayCVS, payment.ECPayCVS
	default:
		return nil, fmt.Errorf("%s: %w: %s", op, ErrUnsupportedPaymentMethod, paymentType)
	}

	lines, err := s.cart.Snapshot(ctx, player.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	converted, err := s.conv.Convert(models.CartTotal(lines), ecpayCurrency)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	amount := converted.Round(0).IntPart()

	tradeNo := s.provider.NewTradeNo()
	group := &models.OrderGroup{
		ID:            uuid.NewString(),
		UserID:        player.UserID,
		PlayerID:      player.PlayerID,
		ContactHandle: contact,
		PaymentMethod: method,
		ExternalRef:   &tradeNo,
		Currency:      ecpayCurrency,
		Amount:        decimal.NewFromInt(amount),
	}
	created, err := s.reconciler.PlaceGroup(ctx, group, lines, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	names := make([]string, 0, len(lines))
	for _, l := range lines {
		names = append(names, fmt.Sprintf("%s x %d", l.Product.Name, l.Quantity))
	}
	form := s.provider.CheckoutForm(tradeNo, amount, pt, names)

	logger.Info("ecpay payment created", slog.String("groupID", created.ID), slog.String("tradeNo", tradeNo), slog.Int64("amount", amount))
	return &ECPayCheckout{GroupID: created.ID, TradeNo: tradeNo, Form: form}, nil
}

func (s *ecpayService) HandleCallback(ctx context.Context, form url.Values) error {
	const op = "service.ECPayService.HandleCallback"
	logger := s.log.With(slog.String("op", op), slog.String("merchantTradeNo", form.Get("MerchantTradeNo")))

	cb, err := s.provider.ParseCallback(form)
	if err != nil {
		logger.Error("rejected ecpay callback", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	group, err := s.findGroup(ctx, cb)
	if err != nil {
		logger.Error("order group for callback not found", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	// Валидная подпись с кодом неудачи не является оплатой
	if !cb.Paid() {
		logger.Info("ecpay callback is not a payment", slog.Int("rtnCode", cb.RtnCode), slog.String("rtnMsg", cb.RtnMsg))
		return nil
	}

	if cb.TradeAmt != group.Amount.IntPart() {
		logger.Error("ecpay paid amount mismatch",
			slog.Int64("tradeAmt", cb.TradeAmt), slog.String("groupAmount", group.Amount.String()))
		return fmt.Errorf("%s: %w", op, ErrAmountMismatch)
	}

	key := storage.ECPayCallbackKey(cb.MerchantTradeNo, cb.TradeNo)
	first, err := s.replay.FirstSeen(ctx, key)
	if err != nil {
		// Redis недоступен: решает условный UPDATE в БД
		logger.Warn("replay guard unavailable", slog.Any("error", err))
		first = true
	}
	if !first {
		logger.Info("duplicate ecpay callback ignored")
		return nil
	}

	outcomes, err := s.reconciler.ApproveGroup(ctx, group)
	if err != nil {
		if fErr := s.replay.Forget(context.WithoutCancel(ctx), key); fErr != nil {
			logger.Warn("failed to reset replay guard", slog.Any("error", fErr))
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("ecpay payment reconciled", slog.String("groupID", group.ID), slog.Int("fulfilled", len(outcomes)))
	return nil
}

func (s *ecpayService) HandlePaymentInfo(ctx context.Context, form url.Values) error {
	const op = "service.ECPayService.HandlePaymentInfo"
	logger := s.log.With(slog.String("op", op), slog.String("merchantTradeNo", form.Get("MerchantTradeNo")))

	cb, err := s.provider.ParseCallback(form)
	if err != nil {
		logger.Error("rejected ecpay payment info", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}
	group, err := s.findGroup(ctx, cb)
	if err != nil {
		logger.Error("order group for payment info not found", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if !cb.InstructionsIssued() {
		logger.Warn("ecpay payment instructions were not issued", slog.Int("rtnCode", cb.RtnCode), slog.String("rtnMsg", cb.RtnMsg))
		return nil
	}

	proof, err := json.Marshal(cb.Instructions())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.reconciler.AttachProof(ctx, group.ID, string(proof)); err != nil {
		logger.Error("failed to attach payment instructions", slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("ecpay payment instructions attached", slog.String("groupID", group.ID))
	return nil
}

// findGroup ищет группу по MerchantTradeNo. Тип оплаты в колбэке вида ATM_TAISHIN / CVS_CVS
// подсказывает метод, но номер уникален, поэтому проверяем оба.
func (s *ecpayService) findGroup(ctx context.Context, cb *payment.Callback) (*models.OrderGroup, error) {
	methods := []models.PaymentMethod{models.PaymentECPayATM, models.PaymentECPayCVS}
	if strings.HasPrefix(strings.ToUpper(cb.PaymentType), string(payment.ECPayCVS)) {
		methods[0], methods[1] = methods[1], methods[0]
	}
	for _, m := range methods {
		group, err := s.orderRepo.FindGroupByExternalRef(ctx, m, cb.MerchantTradeNo)
		if err == nil {
			return group, nil
		}
		if !errors.Is(err, storage.ErrGroupNotFound) {
			return nil, err
		}
	}
	return nil, ErrOrderNotFound
}
