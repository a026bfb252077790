package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AdminRole: значение claim "role" в токене администратора
const AdminRole = "admin"

// NewAdminToken генерирует JWT администратора с заданным временем жизни.
// Токены игроков выпускает внешняя система входа, здесь они только проверяются.
func NewAdminToken(secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("admin jwt secret is not set")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"role": AdminRole,
		"exp":  now.Add(ttl).Unix(),
		"iat":  now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
