package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linemk/rcon-shop/internal/service"
)

// DecisionResponse: результат решения администратора по позиции
type DecisionResponse struct {
	Item       ItemView `json:"item"`
	RconResult *string  `json:"rconResult,omitempty"`
	RconError  string   `json:"rconError,omitempty"`
}

// PlayerOrdersHandler обрабатывает GET /api/orders
func PlayerOrdersHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.PlayerOrdersHandler"
		logger := log.With(slog.String("op", op))

		p, ok := player(w, r, logger)
		if !ok {
			return
		}
		groups, err := orderService.ListForPlayer(r.Context(), p.UserID)
		if err != nil {
			writeError(w, logger, "failed to list orders", err)
			return
		}
		writeJSON(w, logger, http.StatusOK, newGroupViews(groups))
	}
}

// PlayerOrderHandler обрабатывает GET /api/orders/{groupID}
func PlayerOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.PlayerOrderHandler"
		logger := log.With(slog.String("op", op))

		p, ok := player(w, r, logger)
		if !ok {
			return
		}
		group, err := orderService.GetForPlayer(r.Context(), p.UserID, chi.URLParam(r, "groupID"))
		if err != nil {
			writeError(w, logger, "failed to get order", err)
			return
		}
		writeJSON(w, logger, http.StatusOK, newGroupView(group))
	}
}

// AdminOrdersHandler обрабатывает GET /api/admin/orders
func AdminOrdersHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.AdminOrdersHandler"
		logger := log.With(slog.String("op", op))

		groups, err := orderService.ListAll(r.Context())
		if err != nil {
			writeError(w, logger, "failed to list orders", err)
			return
		}
		writeJSON(w, logger, http.StatusOK, newGroupViews(groups))
	}
}

// AdminOrderHandler обрабатывает GET /api/admin/orders/{groupID}
func AdminOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.AdminOrderHandler"
		logger := log.With(slog.String("op", op))

		group, err := orderService.Get(r.Context(), chi.URLParam(r, "groupID"))
		if err != nil {
			writeError(w, logger, "failed to get order", err)
			return
		}
		writeJSON(w, logger, http.StatusOK, newGroupView(group))
	}
}

// ApproveItemHandler обрабатывает POST /api/admin/items/{id}/approve.
// Сбой выдачи не меняет ответ 200: позиция одобрена, ошибка RCON возвращается в теле.
func ApproveItemHandler(log *slog.Logger, decider service.ItemDecider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ApproveItemHandler"
		logger := log.With(slog.String("op", op))

		itemID, ok := idParam(w, r, logger)
		if !ok {
			return
		}
		item, out, err := decider.ApproveItem(r.Context(), itemID)
		if err != nil {
			writeError(w, logger, "failed to approve item", err)
			return
		}

		resp := DecisionResponse{Item: newItemView(item), RconResult: out.Result}
		if out.Err != nil {
			resp.RconError = out.Err.Error()
		}
		writeJSON(w, logger, http.StatusOK, resp)
	}
}

// RejectItemHandler обрабатывает POST /api/admin/items/{id}/reject
func RejectItemHandler(log *slog.Logger, decider service.ItemDecider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.RejectItemHandler"
		logger := log.With(slog.String("op", op))

		itemID, ok := idParam(w, r, logger)
		if !ok {
			return
		}
		item, err := decider.RejectItem(r.Context(), itemID)
		if err != nil {
			writeError(w, logger, "failed to reject item", err)
			return
		}
		writeJSON(w, logger, http.StatusOK, DecisionResponse{Item: newItemView(item)})
	}
}
