package handlers

import (
	"log/slog"
	"net/http"

	"github.com/linemk/rcon-shop/internal/domain/models"
	"github.com/linemk/rcon-shop/internal/service"
)

// ProductsHandler обрабатывает GET /api/products
func ProductsHandler(log *slog.Logger, infoService service.InfoService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ProductsHandler"
		logger := log.With(slog.String("op", op))

		products, err := infoService.ListProducts(r.Context())
		if err != nil {
			writeError(w, logger, "failed to list products", err)
			return
		}
		writeJSON(w, logger, http.StatusOK, products)
	}
}

// CurrencyConfigHandler обрабатывает GET /api/currency/config
func CurrencyConfigHandler(log *slog.Logger, infoService service.InfoService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", "handlers.CurrencyConfigHandler"))
		writeJSON(w, logger, http.StatusOK, infoService.CurrencyConfig())
	}
}

type PaymentMethodsResponse struct {
	Methods []models.PaymentMethod `json:"methods"`
}

// PaymentMethodsHandler обрабатывает GET /api/payment-methods
func PaymentMethodsHandler(log *slog.Logger, infoService service.InfoService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", "handlers.PaymentMethodsHandler"))
		writeJSON(w, logger, http.StatusOK, PaymentMethodsResponse{Methods: infoService.PaymentMethods()})
	}
}

// HealthHandler обрабатывает GET /health
func HealthHandler(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, log, http.StatusOK, map[string]string{"status": "ok"})
	}
}
