package valueobject

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

// MoneyScale задаёт количество знаков после запятой для всех денежных сумм.
const MoneyScale int32 = 2

var hundred = decimal.NewFromInt(100)

// RoundMoney округляет сумму до копеек (half-up для положительных значений).
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// ParseAmount разбирает строковую сумму и проверяет масштаб.
func ParseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperror.Wrap(err, apperror.ErrCodeValidation, fmt.Sprintf("некорректная сумма %q", raw))
	}
	if !d.Equal(RoundMoney(d)) {
		return decimal.Zero, apperror.New(apperror.ErrCodeValidation, "сумма не может содержать больше двух знаков после запятой")
	}
	return d, nil
}

// RequirePositive проверяет, что сумма строго больше нуля и укладывается в масштаб.
func RequirePositive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperror.New(apperror.ErrCodeValidation, "сумма должна быть положительной")
	}
	if !amount.Equal(RoundMoney(amount)) {
		return apperror.New(apperror.ErrCodeValidation, "сумма не может содержать больше двух знаков после запятой")
	}
	return nil
}

// ValidatePercentage проверяет процент комиссии: 0..100, не больше двух знаков.
func ValidatePercentage(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return apperror.New(apperror.ErrCodeValidation, "процент комиссии должен быть в диапазоне 0..100")
	}
	if !pct.Equal(RoundMoney(pct)) {
		return apperror.New(apperror.ErrCodeValidation, "процент комиссии не может содержать больше двух знаков после запятой")
	}
	return nil
}

// PercentOf возвращает amount * pct / 100, округлённое до копеек.
func PercentOf(amount, pct decimal.Decimal) decimal.Decimal {
	return RoundMoney(amount.Mul(pct).Div(hundred))
}

// Split делит сумму на комиссию платформы и долю получателя.
// Доля получателя считается вычитанием, поэтому commission + rest == total без дрейфа.
type Split struct {
	Commission decimal.Decimal
	Rest       decimal.Decimal
}

func NewSplit(total, pct decimal.Decimal) Split {
	commission := PercentOf(total, pct)
	return Split{
		Commission: commission,
		Rest:       total.Sub(commission),
	}
}
