package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/linemk/rcon-shop/internal/config"
	"github.com/plutov/paypal/v4"
	"github.com/shopspring/decimal"
)

// PayPalCaptureCompleted: единственный статус захвата, считающийся оплатой
const PayPalCaptureCompleted = "COMPLETED"

// PayPalCustomIDMax: ограничение PayPal на длину custom_id
const PayPalCustomIDMax = 127

// валюты без дробной части в PayPal
var paypalZeroDecimal = map[string]bool{"TWD": true, "JPY": true, "HUF": true}

// PayPalAPI: часть клиента plutov/paypal, которой пользуется адаптер
type PayPalAPI interface {
	CreateOrder(ctx context.Context, intent string, purchaseUnits []paypal.PurchaseUnitRequest, payer *paypal.CreateOrderPayer, appContext *paypal.ApplicationContext) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID string, captureOrderRequest paypal.CaptureOrderRequest) (*paypal.CaptureOrderResponse, error)
}

// NewPayPalClient создаёт клиент SDK и получает первый access token
func NewPayPalClient(ctx context.Context, cfg config.PayPalConfig) (*paypal.Client, error) {
	base := paypal.APIBaseSandBox
	if cfg.Mode == "live" {
		base = paypal.APIBaseLive
	}
	c, err := paypal.NewClient(cfg.ClientID, cfg.Secret, base)
	if err != nil {
		return nil, providerError("paypal", "new client", err)
	}
	if _, err := c.GetAccessToken(ctx); err != nil {
		return nil, providerError("paypal", "get access token", err)
	}
	return c, nil
}

// PayPal: синхронный протокол "создать заказ, редирект, захват"
type PayPal struct {
	api      PayPalAPI
	currency string
	clientID string
	mode     string
}

func NewPayPal(api PayPalAPI, cfg config.PayPalConfig) *PayPal {
	return &PayPal{
		api:      api,
		currency: strings.ToUpper(cfg.Currency),
		clientID: cfg.ClientID,
		mode:     cfg.Mode,
	}
}

func (p *PayPal) Currency() string { return p.currency }
func (p *PayPal) ClientID() string { return p.clientID }
func (p *PayPal) Mode() string     { return p.mode }

// FormatAmount приводит сумму к строке, которую принимает PayPal
func (p *PayPal) FormatAmount(amount decimal.Decimal) string {
	if paypalZeroDecimal[p.currency] {
		return amount.Round(0).StringFixed(0)
	}
	return amount.StringFixed(2)
}

// CreateOrder создаёт заказ с intent CAPTURE на сумму в валюте PayPal.
// customID возвращается PayPal в ответе на захват и закрепляет за заказом оплаченную корзину.
func (p *PayPal) CreateOrder(ctx context.Context, amount decimal.Decimal, customID string) (string, error) {
	if p.api == nil {
		return "", ErrNotConfigured
	}
	if len(customID) > PayPalCustomIDMax {
		return "", fmt.Errorf("%w: custom_id is %d characters", ErrReferenceTooLong, len(customID))
	}
	units := []paypal.PurchaseUnitRequest{{
		CustomID: customID,
		Amount: &paypal.PurchaseUnitAmount{
			Currency: p.currency,
			Value:    p.FormatAmount(amount),
		},
	}}
	order, err := p.api.CreateOrder(ctx, paypal.OrderIntentCapture, units, nil, nil)
	if err != nil {
		return "", providerError("paypal", "create order", err)
	}
	if order == nil || order.ID == "" {
		return "", providerError("paypal", "create order", errors.New("empty order id"))
	}
	return order.ID, nil
}

// Capture захватывает платёж. Confirmed только при статусе COMPLETED;
// для подтверждённого захвата сумма, валюта и custom_id берутся из первого capture.
func (p *PayPal) Capture(ctx context.Context, orderID string) (*Confirmation, error) {
	if p.api == nil {
		return nil, ErrNotConfigured
	}
	resp, err := p.api.CaptureOrder(ctx, orderID, paypal.CaptureOrderRequest{})
	if err != nil {
		return nil, providerError("paypal", "capture order", err)
	}
	if resp == nil {
		return nil, providerError("paypal", "capture order", errors.New("empty capture response"))
	}
	conf := &Confirmation{
		Confirmed: resp.Status == PayPalCaptureCompleted,
		Status:    resp.Status,
		Ref:       orderID,
	}
	if !conf.Confirmed {
		return conf, nil
	}

	capture := firstCapture(resp)
	if capture == nil || capture.Amount == nil {
		return nil, providerError("paypal", "capture order", errors.New("capture has no amount"))
	}
	amount, err := decimal.NewFromString(capture.Amount.Value)
	if err != nil {
		return nil, providerError("paypal", "parse capture amount", err)
	}
	conf.Amount = amount
	conf.Currency = strings.ToUpper(capture.Amount.Currency)
	conf.Reference = capture.CustomID
	return conf, nil
}

func firstCapture(resp *paypal.CaptureOrderResponse) *paypal.CaptureAmount {
	for _, unit := range resp.PurchaseUnits {
		if unit.Payments != nil && len(unit.Payments.Captures) > 0 {
			return &unit.Payments.Captures[0]
		}
	}
	return nil
}
