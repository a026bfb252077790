package models

import "github.com/shopspring/decimal"

// PlayerIDPlaceholder подставляется в шаблон команды товара
const PlayerIDPlaceholder = "{playerid}"

// Product представляет товар каталога. Для конвейера заказов только для чтения.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"` // цена в базовой валюте
	Command     string          `json:"-"`     // шаблон RCON-команды с {playerid}
	Image       string          `json:"image,omitempty"`
	Active      bool            `json:"active"`
	Stock       int             `json:"stock"` // справочно, не списывается при выдаче
	Description string          `json:"description,omitempty"`
}
