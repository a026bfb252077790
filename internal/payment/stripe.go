package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/linemk/rcon-shop/internal/lib/currency"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// валюты Stripe без дробной части
var stripeZeroDecimal = map[string]bool{"JPY": true, "KRW": true, "VND": true}

// StripeAPI: методы PaymentIntent, нужные адаптеру
type StripeAPI interface {
	NewPaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	GetPaymentIntent(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// stripeClient оборачивает client.API: ключ живёт в экземпляре, а не в глобальном stripe.Key
type stripeClient struct {
	sc *client.API
}

func NewStripeClient(secretKey string) StripeAPI {
	return &stripeClient{sc: client.New(secretKey, nil)}
}

func (c *stripeClient) NewPaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return c.sc.PaymentIntents.New(params)
}

func (c *stripeClient) GetPaymentIntent(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return c.sc.PaymentIntents.Get(id, params)
}

// Intent: то, что сервису нужно знать о PaymentIntent
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       decimal.Decimal // в основных единицах
	Currency     string
	Metadata     map[string]string
}

// Stripe: синхронный протокол: клиент подтверждает intent, сервер перечитывает его статус
type Stripe struct {
	api            StripeAPI
	conv           *currency.Converter
	publishableKey string
}

func NewStripe(api StripeAPI, conv *currency.Converter, publishableKey string) *Stripe {
	return &Stripe{api: api, conv: conv, publishableKey: publishableKey}
}

func (s *Stripe) PublishableKey() string { return s.publishableKey }

func stripeExponent(code string) int32 {
	if stripeZeroDecimal[code] {
		return 0
	}
	return 2
}

// CreateIntent создаёт PaymentIntent; metadata несёт покупателя и снимок корзины
func (s *Stripe) CreateIntent(ctx context.Context, amount decimal.Decimal, code string, metadata map[string]string) (*Intent, error) {
	if s.api == nil {
		return nil, ErrNotConfigured
	}
	code = strings.ToUpper(code)
	if minimum := s.conv.StripeMinimum(code); amount.LessThan(minimum) {
		return nil, fmt.Errorf("%w: %s %s < %s", ErrBelowMinimum, amount.StringFixed(2), code, minimum.String())
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(currency.MinorUnits(amount, stripeExponent(code))),
		Currency: stripe.String(strings.ToLower(code)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := s.api.NewPaymentIntent(params)
	if err != nil {
		return nil, providerError("stripe", "create payment intent", err)
	}
	return toIntent(pi)
}

// Retrieve перечитывает intent у Stripe; клиентскому утверждению об оплате не верим
func (s *Stripe) Retrieve(ctx context.Context, intentID string) (*Intent, error) {
	if s.api == nil {
		return nil, ErrNotConfigured
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.api.GetPaymentIntent(intentID, params)
	if err != nil {
		return nil, providerError("stripe", "retrieve payment intent", err)
	}
	return toIntent(pi)
}

// Confirm: Confirmed только при статусе succeeded
func (s *Stripe) Confirm(ctx context.Context, intentID string) (*Confirmation, *Intent, error) {
	intent, err := s.Retrieve(ctx, intentID)
	if err != nil {
		return nil, nil, err
	}
	return &Confirmation{
		Confirmed: intent.Status == string(stripe.PaymentIntentStatusSucceeded),
		Status:    intent.Status,
		Ref:       intent.ID,
	}, intent, nil
}

func toIntent(pi *stripe.PaymentIntent) (*Intent, error) {
	if pi == nil || pi.ID == "" {
		return nil, providerError("stripe", "payment intent", errors.New("empty payment intent"))
	}
	code := strings.ToUpper(string(pi.Currency))
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       currency.FromMinorUnits(pi.Amount, stripeExponent(code)),
		Currency:     code,
		Metadata:     pi.Metadata,
	}, nil
}
