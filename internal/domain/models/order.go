package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod: тег способа оплаты группы заказов
type PaymentMethod string

const (
	PaymentManual   PaymentMethod = "manual"
	PaymentPayPal   PaymentMethod = "paypal"
	PaymentStripe   PaymentMethod = "stripe"
	PaymentECPayATM PaymentMethod = "ecpay_atm"
	PaymentECPayCVS PaymentMethod = "ecpay_cvs"
)

// Valid проверяет, что тег входит в закрытый набор
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentManual, PaymentPayPal, PaymentStripe, PaymentECPayATM, PaymentECPayCVS:
		return true
	}
	return false
}

// ItemStatus: статус позиции заказа. Переходы только pending -> approved и pending -> rejected.
type ItemStatus string

const (
	StatusPending  ItemStatus = "pending"
	StatusApproved ItemStatus = "approved"
	StatusRejected ItemStatus = "rejected"
)

// DeliveryState разделяет "оплата не подтверждена" и "оплачено, но выдача не удалась"
type DeliveryState string

const (
	DeliveryAwaitingPayment DeliveryState = "awaiting_payment"
	DeliveryRejected        DeliveryState = "rejected"
	DeliveryNotAttempted    DeliveryState = "not_attempted"
	DeliveryDelivered       DeliveryState = "delivered"
	DeliveryFailed          DeliveryState = "delivery_failed"
)

// OrderGroup представляет одну попытку оформления/оплаты
type OrderGroup struct {
	ID            string           `json:"id"`
	UserID        int64            `json:"userId"`
	PlayerID      string           `json:"playerid"`
	ContactHandle *string          `json:"discordId,omitempty"`
	PaymentMethod PaymentMethod    `json:"paymentMethod"`
	ExternalRef   *string          `json:"externalRef,omitempty"` // id заказа PayPal / intent Stripe / MerchantTradeNo ECPay
	Currency      string           `json:"currency"`
	Amount        decimal.Decimal  `json:"amount"` // сумма, выставленная провайдеру
	ProofRef      *string          `json:"proofUrl,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	Items         []*OrderLineItem `json:"items"`
}

// Total: сумма позиций группы в базовой валюте
func (g *OrderGroup) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range g.Items {
		total = total.Add(it.UnitPrice)
	}
	return total
}

// OrderLineItem: одна купленная единица одного товара
type OrderLineItem struct {
	ID                 int64           `json:"id"`
	GroupID            string          `json:"groupId"`
	UserID             int64           `json:"userId"`
	PlayerID           string          `json:"playerid"`
	ProductID          int64           `json:"productId"`
	ProductName        string          `json:"productName,omitempty"` // заполняется через JOIN с products
	UnitPrice          decimal.Decimal `json:"unitPrice"`
	Status             ItemStatus      `json:"status"`
	ApprovedAt         *time.Time      `json:"approvedAt,omitempty"`
	CommandResult      *string         `json:"rconResult"`
	CommandError       *string         `json:"rconError,omitempty"`
	CommandAttemptedAt *time.Time      `json:"rconAttemptedAt,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// Delivery вычисляет состояние выдачи для админки
func (i *OrderLineItem) Delivery() DeliveryState {
	switch i.Status {
	case StatusPending:
		return DeliveryAwaitingPayment
	case StatusRejected:
		return DeliveryRejected
	}
	if i.CommandError != nil {
		return DeliveryFailed
	}
	if i.CommandAttemptedAt == nil {
		return DeliveryNotAttempted
	}
	return DeliveryDelivered
}
