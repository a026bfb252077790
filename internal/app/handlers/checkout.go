package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linemk/rcon-shop/internal/service"
)

// CheckoutRequest: ручное оформление заказа
type CheckoutRequest struct {
	DiscordID     string `json:"discordId" validate:"max=64"`
	Proof         string `json:"proof" validate:"max=512"`
	PaymentMethod string `json:"paymentMethod" validate:"max=32"`
}

type UploadResponse struct {
	URL string `json:"url"`
}

// CheckoutHandler обрабатывает POST /api/orders/checkout
func CheckoutHandler(log *slog.Logger, checkoutService service.CheckoutService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CheckoutHandler"
		logger := log.With(slog.String("op", op))

		p, ok := player(w, r, logger)
		if !ok {
			return
		}
		var req CheckoutRequest
		if !decodeJSON(w, r, logger, &req) {
			return
		}

		group, err := checkoutService.Checkout(r.Context(), p, service.CheckoutRequest{
			ContactHandle: optional(req.DiscordID),
			ProofRef:      optional(req.Proof),
			PaymentMethod: req.PaymentMethod,
		})
		if err != nil {
			writeError(w, logger, "checkout failed", err)
			return
		}
		writeJSON(w, logger, http.StatusCreated, newGroupView(group))
	}
}

// UploadProofHandler обрабатывает POST /api/uploads/payment-proof (multipart, поле file)
func UploadProofHandler(log *slog.Logger, checkoutService service.CheckoutService, maxSize int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UploadProofHandler"
		logger := log.With(slog.String("op", op))

		url, ok := saveUpload(w, r, logger, checkoutService, maxSize)
		if !ok {
			return
		}
		writeJSON(w, logger, http.StatusCreated, UploadResponse{URL: url})
	}
}

// AttachProofHandler обрабатывает POST /api/orders/{groupID}/proof
func AttachProofHandler(log *slog.Logger, checkoutService service.CheckoutService, maxSize int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.AttachProofHandler"
		logger := log.With(slog.String("op", op))

		p, ok := player(w, r, logger)
		if !ok {
			return
		}
		groupID := chi.URLParam(r, "groupID")
		if groupID == "" {
			http.Error(w, "groupID parameter is required", http.StatusBadRequest)
			return
		}

		url, ok := saveUpload(w, r, logger, checkoutService, maxSize)
		if !ok {
			return
		}
		group, err := checkoutService.AttachProof(r.Context(), p, groupID, url)
		if err != nil {
			writeError(w, logger, "failed to attach proof", err)
			return
		}
		writeJSON(w, logger, http.StatusOK, newGroupView(group))
	}
}

func saveUpload(w http.ResponseWriter, r *http.Request, logger *slog.Logger, checkoutService service.CheckoutService, maxSize int64) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		logger.Error("invalid upload", slog.Any("error", err))
		http.Error(w, "invalid upload", http.StatusBadRequest)
		return "", false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		logger.Error("file field is missing", slog.Any("error", err))
		http.Error(w, "file is required", http.StatusBadRequest)
		return "", false
	}
	defer file.Close()

	url, err := checkoutService.UploadProof(r.Context(), header.Filename, file)
	if err != nil {
		writeError(w, logger, "failed to store upload", err)
		return "", false
	}
	return url, true
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
