package models

import "github.com/shopspring/decimal"

// CartItem: строка корзины игрока
type CartItem struct {
	ID        int64    `json:"id"`
	UserID    int64    `json:"-"`
	ProductID int64    `json:"productId"`
	Quantity  int      `json:"quantity"`
	Product   *Product `json:"product,omitempty"`
}

// CartLine: позиция снимка корзины на момент оформления
type CartLine struct {
	Product  *Product
	Quantity int
}

// Subtotal возвращает стоимость позиции в базовой валюте
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartTotal суммирует стоимость всех позиций снимка
func CartTotal(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Units возвращает общее количество единиц товара в снимке
func Units(lines []CartLine) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}
