// Package money переводит суммы между минимальными единицами (int64) и
// десятичными строками API ("10.00").
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale — число знаков после запятой в минимальных единицах.
const Scale = 2

// Format возвращает сумму в виде десятичной строки с двумя знаками.
func Format(minor int64) string {
	return decimal.New(minor, -Scale).StringFixed(Scale)
}

// Parse разбирает десятичную строку в минимальные единицы.
// Дробные копейки ("1.005") отклоняются, а не округляются.
func Parse(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	shifted := d.Shift(Scale)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("amount %q has more than %d fractional digits", s, Scale)
	}
	if !shifted.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %q out of range", s)
	}
	return shifted.IntPart(), nil
}

// Subtotal считает quantity * unitPrice в десятичной арифметике и
// проверяет, что результат помещается в int64.
func Subtotal(unitPriceMinor int64, quantity int) (int64, error) {
	total := decimal.NewFromInt(unitPriceMinor).Mul(decimal.NewFromInt(int64(quantity)))
	if !total.BigInt().IsInt64() {
		return 0, fmt.Errorf("subtotal overflow: %d x %d", unitPriceMinor, quantity)
	}
	return total.IntPart(), nil
}
