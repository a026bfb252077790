package service

import "errors"

var (
	// ErrEmptyCart: в корзине нет ни одного активного товара; состояние не меняется.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNotConfirmed: провайдер ответил, но оплата не подтверждена.
	ErrNotConfirmed             = errors.New("payment is not confirmed")
	ErrAlreadyApproved          = errors.New("order item is already approved")
	ErrAlreadyRejected          = errors.New("order item is already rejected")
	ErrOrderNotFound            = errors.New("order not found")
	ErrUnsupportedPaymentMethod = errors.New("unsupported payment method")
	// ErrBuyerMismatch: подтверждение пришло не от того игрока, который создавал платёж.
	ErrBuyerMismatch      = errors.New("payment belongs to another buyer")
	ErrAmountMismatch     = errors.New("paid amount does not match order amount")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrProductUnavailable = errors.New("product is not available")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSnapshot    = errors.New("invalid cart snapshot")
)
