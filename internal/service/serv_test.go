package service_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/linemk/rcon-shop/internal/domain/models"
	"github.com/linemk/rcon-shop/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAuthService_Login_CorrectPassword(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	authSvc := service.NewAuthService(logger, string(hashed), "adminsecret", 60*time.Minute)

	token, err := authSvc.Login(context.Background(), "password123")
	assert.NoError(t, err, "Login should succeed with correct password")
	assert.NotEmpty(t, token, "Token should be returned")

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) { return []byte("adminsecret"), nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "admin", claims["role"])
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	authSvc := service.NewAuthService(logger, string(hashed), "adminsecret", 60*time.Minute)

	token, err := authSvc.Login(context.Background(), "wrongpassword")
	assert.True(t, errors.Is(err, service.ErrInvalidCredentials), "Login should fail with incorrect password")
	assert.Empty(t, token, "Token should be empty on failed login")
}

func TestAuthService_Login_NotConfigured(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	authSvc := service.NewAuthService(logger, "", "adminsecret", 60*time.Minute)

	_, err := authSvc.Login(context.Background(), "")
	assert.True(t, errors.Is(err, service.ErrInvalidCredentials))
}

func TestInfoService(t *testing.T) {
	e := newEnv(t)
	hidden := &models.Product{ID: 3, Name: "Hidden", Price: decimal.NewFromInt(1)}
	e.products.products[hidden.ID] = hidden
	svc := service.NewInfoService(e.log, e.products, e.conv, []models.PaymentMethod{models.PaymentManual, models.PaymentStripe})

	products, err := svc.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Diamond", products[0].Name)

	cfg := svc.CurrencyConfig()
	assert.Equal(t, "TWD", cfg.Base)
	assert.Equal(t, []string{"HKD", "TWD", "USD"}, cfg.Supported)
	assert.Equal(t, "0.2", cfg.Rates["HKD"])
	assert.Equal(t, map[string]string{"TWD": "20"}, cfg.StripeMinimum)

	assert.Equal(t, []models.PaymentMethod{models.PaymentManual, models.PaymentStripe}, svc.PaymentMethods())
}

func TestOrderService_Ownership(t *testing.T) {
	e := newEnv(t)
	group := placeManual(t, e)
	svc := service.NewOrderService(e.log, e.orders)

	got, err := svc.GetForPlayer(context.Background(), steve.UserID, group.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 3)

	_, err = svc.GetForPlayer(context.Background(), 8, group.ID)
	assert.True(t, errors.Is(err, service.ErrOrderNotFound))

	_, err = svc.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, service.ErrOrderNotFound))

	mine, err := svc.ListForPlayer(context.Background(), steve.UserID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	others, err := svc.ListForPlayer(context.Background(), 8)
	require.NoError(t, err)
	assert.NotNil(t, others)
	assert.Empty(t, others)

	all, err := svc.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCartService(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	item, err := e.cart.Add(ctx, steve.UserID, productA.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, "Diamond", item.Product.Name)

	_, err = e.cart.Add(ctx, steve.UserID, productA.ID, 0)
	assert.True(t, errors.Is(err, service.ErrInvalidQuantity))

	_, err = e.cart.Add(ctx, steve.UserID, 99, 1)
	assert.True(t, errors.Is(err, service.ErrProductUnavailable))

	updated, err := e.cart.Update(ctx, steve.UserID, item.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Quantity)

	lines, err := e.cart.Snapshot(ctx, steve.UserID)
	require.NoError(t, err)
	assert.Equal(t, 5, models.Units(lines))
	assert.True(t, decimal.NewFromInt(500).Equal(models.CartTotal(lines)))

	require.NoError(t, e.cart.Remove(ctx, steve.UserID, item.ID))
	_, err = e.cart.Snapshot(ctx, steve.UserID)
	assert.True(t, errors.Is(err, service.ErrEmptyCart))
}
