package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/linemk/rcon-shop/internal/domain/models"
	"github.com/linemk/rcon-shop/internal/service"
)

type CartAddRequest struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"omitempty,gt=0"`
}

type CartUpdateRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

// CartHandler обрабатывает GET /api/cart
func CartHandler(log *slog.Logger, cartService service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CartHandler"
		logger := log.With(slog.String("op", op))

		p, ok := player(w, r, logger)
		if !ok {
			return
		}
		items, err := cartService.List(r.Context(), p.UserID)
		if err != nil {
			writeError(w, logger, "failed to list cart", err)
			return
		}
		if items == nil {
			items = []*models.CartItem{}
		}
		writeJSON(w, logger, http.StatusOK, items)
	}
}

// CartAddHandler обрабатывает POST /api/cart; количество по умолчанию 1
func CartAddHandler(log *slog.Logger, cartService service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CartAddHandler"
		logger := log.With(slog.String("op", op))

		p, ok := player(w, r, logger)
		if !ok {
			return
		}
		var req CartAddRequest
		if !decodeJSON(w, r, logger, &req) {
			return
		}
		if req.Quantity == 0 {
			req.Quantity = 1
		}

		item, err := cartService.Add(r.Context(), p.UserID, req.ProductID, req.Quantity)
		if err != nil {
			writeError(w, logger, "failed to add cart item", err)
			return
		}
		writeJSON(w, logger, http.StatusCreated, item)
	}
}

// CartUpdateHandler обрабатывает PUT /api/cart/{id}
func CartUpdateHandler(log *slog.Logger, cartService service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CartUpdateHandler"
		logger := log.With(slog.String("op", op))

		p, ok := player(w, r, logger)
		if !ok {
			return
		}
		itemID, ok := idParam(w, r, logger)
		if !ok {
			return
		}
		var req CartUpdateRequest
		if !decodeJSON(w, r, logger, &req) {
			return
		}

		item, err := cartService.Update(r.Context(), p.UserID, itemID, req.Quantity)
		if err != nil {
			writeError(w, logger, "failed to update cart item", err)
			return
		}
		writeJSON(w, logger, http.StatusOK, item)
	}
}

// CartRemoveHandler обрабатывает DELETE /api/cart/{id}
func CartRemoveHandler(log *slog.Logger, cartService service.CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CartRemoveHandler"
		logger := log.With(slog.String("op", op))

		p, ok := player(w, r, logger)
		if !ok {
			return
		}
		itemID, ok := idParam(w, r, logger)
		if !ok {
			return
		}

		if err := cartService.Remove(r.Context(), p.UserID, itemID); err != nil {
			writeError(w, logger, "failed to remove cart item", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// idParam разбирает числовой {id} из URL
func idParam(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		logger.Error("invalid id parameter", slog.String("id", raw))
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
