// Package currency переводит суммы из базовой валюты в валюту провайдера.
package currency

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/linemk/rcon-shop/internal/config"
	"github.com/shopspring/decimal"
)

var ErrUnsupportedCurrency = errors.New("unsupported currency")

// Converter не хранит состояния курсов: курсы приходят из конфигурации при старте
type Converter struct {
	base          string
	def           string
	rates         map[string]decimal.Decimal
	symbols       map[string]string
	stripeMinimum map[string]decimal.Decimal
}

func NewConverter(cfg config.CurrencyConfig) *Converter {
	c := &Converter{
		base:          strings.ToUpper(cfg.Base),
		def:           strings.ToUpper(cfg.Default),
		rates:         make(map[string]decimal.Decimal, len(cfg.Rates)+1),
		symbols:       make(map[string]string, len(cfg.Symbols)),
		stripeMinimum: make(map[string]decimal.Decimal, len(cfg.StripeMinimum)),
	}
	for code, rate := range cfg.Rates {
		c.rates[strings.ToUpper(code)] = decimal.NewFromFloat(rate)
	}
	c.rates[c.base] = decimal.NewFromInt(1)
	if c.def == "" {
		c.def = c.base
	}
	for code, sym := range cfg.Symbols {
		c.symbols[strings.ToUpper(code)] = sym
	}
	for code, min := range cfg.StripeMinimum {
		c.stripeMinimum[strings.ToUpper(code)] = decimal.NewFromFloat(min)
	}
	return c
}

func (c *Converter) Base() string    { return c.base }
func (c *Converter) Default() string { return c.def }

// Normalize возвращает код валюты в верхнем регистре; пустой код означает валюту по умолчанию
func (c *Converter) Normalize(code string) (string, error) {
	if code == "" {
		return c.def, nil
	}
	code = strings.ToUpper(code)
	if _, ok := c.rates[code]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedCurrency, code)
	}
	return code, nil
}

// Convert переводит сумму из базовой валюты в указанную
func (c *Converter) Convert(amount decimal.Decimal, code string) (decimal.Decimal, error) {
	code, err := c.Normalize(code)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(c.rates[code]), nil
}

// StripeMinimum: минимальная сумма Stripe в основных единицах, ноль если не задана
func (c *Converter) StripeMinimum(code string) decimal.Decimal {
	return c.stripeMinimum[strings.ToUpper(code)]
}

// Supported возвращает отсортированный список валют
func (c *Converter) Supported() []string {
	codes := make([]string, 0, len(c.rates))
	for code := range c.rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (c *Converter) Symbols() map[string]string {
	return c.symbols
}

// Rates возвращает курсы относительно базовой валюты
func (c *Converter) Rates() map[string]string {
	out := make(map[string]string, len(c.rates))
	for code, r := range c.rates {
		out[code] = r.String()
	}
	return out
}

// MinorUnits переводит сумму в минимальные единицы (центы) с округлением
func MinorUnits(amount decimal.Decimal, exponent int32) int64 {
	return amount.Shift(exponent).Round(0).IntPart()
}

// FromMinorUnits: обратная операция к MinorUnits
func FromMinorUnits(units int64, exponent int32) decimal.Decimal {
	return decimal.NewFromInt(units).Shift(-exponent)
}
