// Package payment содержит адаптеры проверки оплаты: PayPal, Stripe и ECPay.
// Ручная оплата адаптера не имеет: подтверждает администратор.
package payment

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrPaymentProvider: вызов провайдера упал или вернул неожиданный ответ; состояние заказов не меняется.
	ErrPaymentProvider = errors.New("payment provider error")
	// ErrSignatureVerification: подпись колбэка не сошлась.
	ErrSignatureVerification = errors.New("signature verification failed")
	ErrBelowMinimum          = errors.New("amount is below provider minimum")
	ErrNotConfigured         = errors.New("payment provider is not configured")
	// ErrReferenceTooLong: снимок корзины не помещается в поле провайдера.
	ErrReferenceTooLong = errors.New("cart is too large for provider reference")
)

func providerError(provider, action string, err error) error {
	return fmt.Errorf("%w: %w", ErrPaymentProvider, pkgerrors.Wrapf(err, "%s: %s", provider, action))
}

// Confirmation: ответ синхронного протокола подтверждения
type Confirmation struct {
	Confirmed bool
	Status    string // статус провайдера как есть
	Ref       string
	// Amount, Currency и Reference заполняются, если провайдер сообщает фактически списанную сумму
	Amount    decimal.Decimal
	Currency  string
	Reference string
}
