package handlers

import (
	"time"

	"github.com/linemk/rcon-shop/internal/domain/models"
	"github.com/shopspring/decimal"
)

// ItemView: позиция заказа с вычисленным состоянием выдачи
type ItemView struct {
	*models.OrderLineItem
	Delivery models.DeliveryState `json:"delivery"`
}

// GroupView: группа заказов для ответа API
type GroupView struct {
	ID            string               `json:"id"`
	UserID        int64                `json:"userId"`
	PlayerID      string               `json:"playerid"`
	ContactHandle *string              `json:"discordId,omitempty"`
	PaymentMethod models.PaymentMethod `json:"paymentMethod"`
	ExternalRef   *string              `json:"externalRef,omitempty"`
	Currency      string               `json:"currency"`
	Amount        decimal.Decimal      `json:"amount"`
	Total         decimal.Decimal      `json:"total"` // сумма позиций в базовой валюте
	ProofRef      *string              `json:"proofUrl,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
	Items         []ItemView           `json:"items"`
}

func newItemView(it *models.OrderLineItem) ItemView {
	return ItemView{OrderLineItem: it, Delivery: it.Delivery()}
}

func newGroupView(g *models.OrderGroup) GroupView {
	items := make([]ItemView, 0, len(g.Items))
	for _, it := range g.Items {
		items = append(items, newItemView(it))
	}
	return GroupView{
		ID:            g.ID,
		UserID:        g.UserID,
		PlayerID:      g.PlayerID,
		ContactHandle: g.ContactHandle,
		PaymentMethod: g.PaymentMethod,
		ExternalRef:   g.ExternalRef,
		Currency:      g.Currency,
		Amount:        g.Amount,
		Total:         g.Total(),
		ProofRef:      g.ProofRef,
		CreatedAt:     g.CreatedAt,
		Items:         items,
	}
}

func newGroupViews(groups []*models.OrderGroup) []GroupView {
	out := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		out = append(out, newGroupView(g))
	}
	return out
}
