package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/linemk/rcon-shop/internal/domain/models"
	"github.com/linemk/rcon-shop/internal/lib/currency"
	"github.com/linemk/rcon-shop/internal/storage"
)

// InfoService отдаёт витрину и публичные настройки магазина.
type InfoService interface {
	ListProducts(ctx context.Context) ([]*models.Product, error)
	CurrencyConfig() *CurrencyConfigResponse
	PaymentMethods() []models.PaymentMethod
}

// infoService: конкретная реализация InfoService.
type infoService struct {
	log         *slog.Logger
	productRepo storage.ProductStorage
	conv        *currency.Converter
	methods     []models.PaymentMethod
}

// NewInfoService принимает способы оплаты, включённые конфигурацией; ручная оплата доступна всегда.
func NewInfoService(log *slog.Logger, productRepo storage.ProductStorage, conv *currency.Converter, methods []models.PaymentMethod) InfoService {
	return &infoService{
		log:         log,
		productRepo: productRepo,
		conv:        conv,
		methods:     methods,
	}
}

// CurrencyConfigResponse: курсы и минимумы для отображения цен на клиенте
type CurrencyConfigResponse struct {
	Base          string            `json:"base"`
	Default       string            `json:"default"`
	Supported     []string          `json:"supported"`
	Symbols       map[string]string `json:"symbols"`
	Rates         map[string]string `json:"rates"`
	StripeMinimum map[string]string `json:"stripeMinimum"`
}

func (s *infoService) ListProducts(ctx context.Context) ([]*models.Product, error) {
	const op = "service.InfoService.ListProducts"

	products, err := s.productRepo.ListActiveProducts(ctx)
	if err != nil {
		s.log.Error("failed to list products", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if products == nil {
		products = []*models.Product{}
	}
	return products, nil
}

func (s *infoService) CurrencyConfig() *CurrencyConfigResponse {
	supported := s.conv.Supported()
	minimum := make(map[string]string, len(supported))
	for _, code := range supported {
		if m := s.conv.StripeMinimum(code); !m.IsZero() {
			minimum[code] = m.String()
		}
	}
	return &CurrencyConfigResponse{
		Base:          s.conv.Base(),
		Default:       s.conv.Default(),
		Supported:     supported,
		Symbols:       s.conv.Symbols(),
		Rates:         s.conv.Rates(),
		StripeMinimum: minimum,
	}
}

func (s *infoService) PaymentMethods() []models.PaymentMethod {
	return s.methods
}
