package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	security "github.com/linemk/rcon-shop/internal/jwt-new"
	"golang.org/x/crypto/bcrypt"
)

type AuthService struct {
	log          *slog.Logger
	passwordHash string
	secret       string
	tokenTTL     time.Duration
}

func NewAuthService(log *slog.Logger, passwordHash, secret string, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		log:          log,
		passwordHash: passwordHash,
		secret:       secret,
		tokenTTL:     tokenTTL,
	}
}

type AuthServiceInterface interface {
	Login(ctx context.Context, password string) (string, error)
}

// Login проверяет пароль администратора по bcrypt-хэшу из конфигурации и выдаёт admin JWT.
// Без настроенного хэша вход закрыт.
func (a *AuthService) Login(ctx context.Context, password string) (string, error) {
	const op = "service.AuthService.Login"
	logger := a.log.With(slog.String("op", op))

	if a.passwordHash == "" {
		logger.Warn("admin password hash is not configured")
		return "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password)); err != nil {
		logger.Warn("invalid admin password")
		return "", fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	token, err := security.NewAdminToken(a.secret, a.tokenTTL)
	if err != nil {
		logger.Error("failed to generate token", slog.Any("error", err))
		return "", fmt.Errorf("%s: failed to generate token: %w", op, err)
	}

	logger.Info("admin logged in")
	return token, nil
}
