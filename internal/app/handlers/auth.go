package handlers

import (
	"log/slog"
	"net/http"

	"github.com/linemk/rcon-shop/internal/service"
)

// AuthRequest: вход администратора по паролю
type AuthRequest struct {
	Password string `json:"password" validate:"required"`
}

// AuthResponse представляет структуру ответа с JWT-токеном
type AuthResponse struct {
	Token string `json:"token"`
}

// AuthHandler обрабатывает POST /api/admin/login
func AuthHandler(log *slog.Logger, authService service.AuthServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.AuthHandler"
		logger := log.With(slog.String("op", op))

		var req AuthRequest
		if !decodeJSON(w, r, logger, &req) {
			return
		}

		token, err := authService.Login(r.Context(), req.Password)
		if err != nil {
			logger.Warn("login failed", slog.Any("error", err))
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}

		writeJSON(w, logger, http.StatusOK, AuthResponse{Token: token})
	}
}
