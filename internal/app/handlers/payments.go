package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/linemk/rcon-shop/internal/payment"
	"github.com/linemk/rcon-shop/internal/service"
)

// PaymentResponse: ответ синхронного подтверждения оплаты
type PaymentResponse struct {
	Success  bool          `json:"success"`
	Replayed bool          `json:"replayed"`
	Group    GroupView     `json:"group"`
	Outcomes []OutcomeView `json:"outcomes"`
}

// OutcomeView: итог выдачи по одной позиции
type OutcomeView struct {
	ItemID     int64   `json:"itemId"`
	RconResult *string `json:"rconResult,omitempty"`
	RconError  string  `json:"rconError,omitempty"`
}

func newPaymentResponse(res *service.PaymentResult) PaymentResponse {
	outcomes := make([]OutcomeView, 0, len(res.Outcomes))
	for _, out := range res.Outcomes {
		v := OutcomeView{ItemID: out.ItemID, RconResult: out.Result}
		if out.Err != nil {
			v.RconError = out.Err.Error()
		}
		outcomes = append(outcomes, v)
	}
	return PaymentResponse{
		Success:  true,
		Replayed: res.Replayed,
		Group:    newGroupView(res.Group),
		Outcomes: outcomes,
	}
}

type PayPalCaptureRequest struct {
	OrderID   string `json:"orderID" validate:"required,max=64"`
	DiscordID string `json:"discordId" validate:"max=64"`
}

// PayPalConfigHandler обрабатывает GET /api/paypal/config
func PayPalConfigHandler(log *slog.Logger, paypalService service.PayPalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", "handlers.PayPalConfigHandler"))
		writeJSON(w, logger, http.StatusOK, paypalService.Config())
	}
}

// PayPalCreateOrderHandler обрабатывает POST /api/paypal/create-order
func PayPalCreateOrderHandler(log *slog.Logger, paypalService service.PayPalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.PayPalCreateOrderHandler"
		logger := log.With(slog.String("op", op))

		p, ok := player(w, r, logger)
		if !ok {
			return
		}
		order, err := paypalService.CreateOrder(r.Context(), p)
		if err != nil {
			writeError(w, logger, "failed to create paypal order", err)
			return
		}
		writeJSON(w, logger, http.StatusOK, order)
	}
}

// PayPalCaptureHandler обрабатывает POST /api/paypal/capture-order
func PayPalCaptureHandler(log *slog.Logger, paypalService service.PayPalService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.PayPalCaptureHandler"
		logger := log.With(slog.String("op", op))

		p, ok := player(w, r, logger)
		if !ok {
			return
		}
		var req PayPalCaptureRequest
		if !decodeJSON(w, r, logger, &req) {
			return
		}

		res, err := paypalService.CaptureOrder(r.Context(), p, req.OrderID, optional(req.DiscordID))
		if err != nil {
			writeError(w, logger, "paypal capture failed", err)
			return
		}
		writeJSON(w, logger, http.StatusOK, newPaymentResponse(res))
	}
}

type StripeIntentRequest struct {
	Currency  string `json:"currency" validate:"omitempty,len=3"`
	DiscordID string `json:"discordId" validate:"max=64"`
}

type StripeConfirmRequest struct {
	PaymentIntentID string `json:"paymentIntentId" validate:"required,max=255"`
	DiscordID       string `json:"discordId" validate:"max=64"`
}

// StripeConfigHandler обрабатывает GET /api/stripe/config
func StripeConfigHandler(log *slog.Logger, stripeService service.StripeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", "handlers.StripeConfigHandler"))
		writeJSON(w, logger, http.StatusOK, stripeService.Config())
	}
}

// StripeCreateIntentHandler обрабатывает POST /api/stripe/create-payment-intent
func StripeCreateIntentHandler(log *slog.Logger, stripeService service.StripeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.StripeCreateIntentHandler"
		logger := log.With(slog.String("op", op))

		p, ok := player(w, r, logger)
		if !ok {
			return
		}
		var req StripeIntentRequest
		if !decodeJSON(w, r, logger, &req) {
			return
		}

		intent, err := stripeService.CreateIntent(r.Context(), p, req.Currency, optional(req.DiscordID))
		if err != nil {
			writeError(w, logger, "failed to create payment intent", err)
			return
		}
		writeJSON(w, logger, http.StatusOK, intent)
	}
}

// StripeConfirmHandler обрабатывает POST /api/stripe/confirm-payment
func StripeConfirmHandler(log *slog.Logger, stripeService service.StripeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.StripeConfirmHandler"
		logger := log.With(slog.String("op", op))

		p, ok := player(w, r, logger)
		if !ok {
			return
		}
		var req StripeConfirmRequest
		if !decodeJSON(w, r, logger, &req) {
			return
		}

		res, err := stripeService.Confirm(r.Context(), p, req.PaymentIntentID, optional(req.DiscordID))
		if err != nil {
			writeError(w, logger, "stripe confirmation failed", err)
			return
		}
		writeJSON(w, logger, http.StatusOK, newPaymentResponse(res))
	}
}

// StripeReturnHandler обрабатывает GET /api/stripe/return?payment_intent=...
// Сессии игрока нет: покупатель берётся из metadata intent.
func StripeReturnHandler(log *slog.Logger, stripeService service.StripeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.StripeReturnHandler"
		logger := log.With(slog.String("op", op))

		intentID := r.URL.Query().Get("payment_intent")
		if intentID == "" {
			http.Error(w, "payment_intent is required", http.StatusBadRequest)
			return
		}

		res, err := stripeService.Confirm(r.Context(), nil, intentID, nil)
		if err != nil {
			writeError(w, logger, "stripe confirmation failed", err)
			return
		}
		writeJSON(w, logger, http.StatusOK, newPaymentResponse(res))
	}
}

type ECPayCreateRequest struct {
	PaymentType string `json:"paymentType" validate:"required,oneof=ATM CVS atm cvs"`
	DiscordID   string `json:"discordId" validate:"max=64"`
}

// ECPayConfigHandler обрабатывает GET /api/ecpay/config
func ECPayConfigHandler(log *slog.Logger, ecpayService service.ECPayService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", "handlers.ECPayConfigHandler"))
		writeJSON(w, logger, http.StatusOK, ecpayService.Config())
	}
}

// ECPayCreatePaymentHandler обрабатывает POST /api/ecpay/create-payment
func ECPayCreatePaymentHandler(log *slog.Logger, ecpayService service.ECPayService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ECPayCreatePaymentHandler"
		logger := log.With(slog.String("op", op))

		p, ok := player(w, r, logger)
		if !ok {
			return
		}
		var req ECPayCreateRequest
		if !decodeJSON(w, r, logger, &req) {
			return
		}

		checkout, err := ecpayService.CreatePayment(r.Context(), p, req.PaymentType, optional(req.DiscordID))
		if err != nil {
			writeError(w, logger, "failed to create ecpay payment", err)
			return
		}
		writeJSON(w, logger, http.StatusCreated, checkout)
	}
}

// ECPayCallbackHandler обрабатывает POST /api/ecpay/callback (ReturnURL)
func ECPayCallbackHandler(log *slog.Logger, ecpayService service.ECPayService) http.HandlerFunc {
	return ecpayNotification(log, "handlers.ECPayCallbackHandler", ecpayService.HandleCallback)
}

// ECPayPaymentInfoHandler обрабатывает POST /api/ecpay/payment-info (PaymentInfoURL)
func ECPayPaymentInfoHandler(log *slog.Logger, ecpayService service.ECPayService) http.HandlerFunc {
	return ecpayNotification(log, "handlers.ECPayPaymentInfoHandler", ecpayService.HandlePaymentInfo)
}

// ecpayNotification отвечает в формате ECPay: "1|OK" или "0|причина".
// Любой другой ответ ECPay считает недоставкой и повторяет колбэк.
func ecpayNotification(log *slog.Logger, op string, handle func(ctx context.Context, form url.Values) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", op))

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := r.ParseForm(); err != nil {
			logger.Error("invalid ecpay form", slog.Any("error", err))
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("0|invalid form"))
			return
		}

		if err := handle(r.Context(), r.PostForm); err != nil {
			_, _ = w.Write([]byte(ecpayAck(err)))
			return
		}
		_, _ = w.Write([]byte("1|OK"))
	}
}

func ecpayAck(err error) string {
	switch {
	case errors.Is(err, payment.ErrSignatureVerification):
		return "0|CheckMacValue Error"
	case errors.Is(err, service.ErrOrderNotFound):
		return "0|order not found"
	case errors.Is(err, service.ErrAmountMismatch):
		return "0|amount mismatch"
	case errors.Is(err, payment.ErrPaymentProvider):
		return "0|invalid parameters"
	}
	return "0|internal error"
}
