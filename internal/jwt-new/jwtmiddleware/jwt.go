package jwtmiddleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/linemk/rcon-shop/internal/domain/models"
	security "github.com/linemk/rcon-shop/internal/jwt-new"
)

type contextKey string

const PlayerKey contextKey = "player"

// NewPlayerMiddleware проверяет токен игрока: claims uid и playerid кладутся в контекст.
func NewPlayerMiddleware(secret string) func(http.Handler) http.Handler {
	if secret == "" {
		panic("player jwt secret is not set")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := parseBearer(w, r, secret)
			if !ok {
				return
			}

			// В MapClaims числа приходят как float64
			uid, ok := claims["uid"].(float64)
			if !ok || uid <= 0 {
				http.Error(w, "invalid token claims: uid not found", http.StatusUnauthorized)
				return
			}
			playerID, ok := claims["playerid"].(string)
			if !ok || playerID == "" {
				http.Error(w, "invalid token claims: playerid not found", http.StatusUnauthorized)
				return
			}

			player := &models.Player{UserID: int64(uid), PlayerID: playerID}
			ctx := context.WithValue(r.Context(), PlayerKey, player)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewAdminMiddleware пропускает только токены с role=admin
func NewAdminMiddleware(secret string) func(http.Handler) http.Handler {
	if secret == "" {
		panic("admin jwt secret is not set")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := parseBearer(w, r, secret)
			if !ok {
				return
			}
			if role, _ := claims["role"].(string); role != security.AdminRole {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// parseBearer достаёт и проверяет токен из заголовка Authorization (формат: "Bearer <token>").
// При ошибке ответ уже записан.
func parseBearer(w http.ResponseWriter, r *http.Request, secret string) (jwt.MapClaims, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return nil, false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		http.Error(w, "invalid token format", http.StatusUnauthorized)
		return nil, false
	}

	token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
		// Проверка алгоритма
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return nil, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		http.Error(w, "invalid token claims", http.StatusUnauthorized)
		return nil, false
	}
	return claims, true
}

// FromContext извлекает игрока из контекста.
func FromContext(ctx context.Context) (*models.Player, bool) {
	p, ok := ctx.Value(PlayerKey).(*models.Player)
	return p, ok
}

// WithPlayer кладёт игрока в контекст; нужен тестам обработчиков
func WithPlayer(ctx context.Context, p *models.Player) context.Context {
	return context.WithValue(ctx, PlayerKey, p)
}
