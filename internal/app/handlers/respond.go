package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/linemk/rcon-shop/internal/domain/models"
	"github.com/linemk/rcon-shop/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/rcon-shop/internal/lib/currency"
	"github.com/linemk/rcon-shop/internal/payment"
	"github.com/linemk/rcon-shop/internal/service"
	"github.com/linemk/rcon-shop/internal/storage"
)

var validate = validator.New()

// writeJSON отправляет ответ в JSON
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", slog.Any("error", err))
	}
}

// decodeJSON читает и валидирует тело запроса; при ошибке ответ уже записан
func decodeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logger.Error("invalid request: decoding error", slog.Any("error", err))
		http.Error(w, "invalid request", http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(v); err != nil {
		logger.Error("invalid request: validation error", slog.Any("error", err))
		http.Error(w, "validation error", http.StatusBadRequest)
		return false
	}
	return true
}

// player извлекает игрока из контекста (установлен JWT middleware); при отсутствии отвечает 401
func player(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*models.Player, bool) {
	p, ok := jwtmiddleware.FromContext(r.Context())
	if !ok {
		logger.Error("player not found in context")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	return p, true
}

// errorStatus сопоставляет доменные ошибки с HTTP-статусами
func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrProductUnavailable),
		errors.Is(err, service.ErrUnsupportedPaymentMethod),
		errors.Is(err, service.ErrInvalidSnapshot),
		errors.Is(err, currency.ErrUnsupportedCurrency),
		errors.Is(err, payment.ErrBelowMinimum),
		errors.Is(err, payment.ErrReferenceTooLong):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrNotConfirmed):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrBuyerMismatch):
		return http.StatusForbidden
	case errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, storage.ErrCartItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyApproved),
		errors.Is(err, service.ErrAlreadyRejected),
		errors.Is(err, service.ErrAmountMismatch):
		return http.StatusConflict
	case errors.Is(err, payment.ErrPaymentProvider):
		return http.StatusBadGateway
	case errors.Is(err, payment.ErrNotConfigured):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError пишет ответ по ошибке сервиса; текст внутренних ошибок наружу не отдаётся
func writeError(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, slog.Any("error", err))
		http.Error(w, http.StatusText(status), status)
		return
	}
	logger.Warn(msg, slog.Any("error", err))
	http.Error(w, publicMessage(err), status)
}

var publicErrors = []error{
	service.ErrEmptyCart,
	service.ErrInvalidQuantity,
	service.ErrProductUnavailable,
	service.ErrUnsupportedPaymentMethod,
	service.ErrInvalidSnapshot,
	currency.ErrUnsupportedCurrency,
	payment.ErrBelowMinimum,
	payment.ErrReferenceTooLong,
	service.ErrInvalidCredentials,
	service.ErrNotConfirmed,
	service.ErrBuyerMismatch,
	service.ErrOrderNotFound,
	storage.ErrCartItemNotFound,
	service.ErrAlreadyApproved,
	service.ErrAlreadyRejected,
	service.ErrAmountMismatch,
	payment.ErrPaymentProvider,
}

func publicMessage(err error) string {
	for _, e := range publicErrors {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	return "request failed"
}
