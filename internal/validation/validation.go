// Package validation содержит проверки входных данных на границах сервиса.
// Некорректная конфигурация отклоняется здесь и не попадает в расчёт
// стоимости.
package validation

import (
	"errors"
	"unicode"

	"github.com/mmeshcher/pos-system/internal/model"
)

// Ошибки валидации настроек и уровней скидок.
var (
	ErrTaxRateOutOfRange      = errors.New("tax rate must be between 0 and 100")
	ErrEarnRateNotPositive    = errors.New("points earn rate must be positive")
	ErrRedeemRateNotPositive  = errors.New("points redeem rate must be positive")
	ErrRedeemValueNotPositive = errors.New("points redeem value must be positive")
	ErrDiscountOutOfRange     = errors.New("discount percent must be between 0 and 100")
	ErrMinPurchaseNegative    = errors.New("min purchase must not be negative")
	ErrDiscountNameEmpty      = errors.New("discount name must not be empty")
)

// IsValidMemberCode проверяет формат кода участника: от 1 до 32 символов,
// только буквы и цифры. Код вводится вручную на кассе.
func IsValidMemberCode(code string) bool {
	if code == "" || len(code) > 32 {
		return false
	}

	for _, ch := range code {
		if !unicode.IsLetter(ch) && !unicode.IsDigit(ch) {
			return false
		}
	}

	return true
}

// ValidateStoreSettings проверяет настройки магазина перед сохранением.
// Нулевые знаменатели и отрицательные ставки отклоняются на этой границе.
func ValidateStoreSettings(s model.StoreSettings) error {
	if s.TaxRate < 0 || s.TaxRate > 100 {
		return ErrTaxRateOutOfRange
	}
	if s.PointsEarnRate <= 0 {
		return ErrEarnRateNotPositive
	}
	if s.PointsRedeemRate <= 0 {
		return ErrRedeemRateNotPositive
	}
	if s.PointsRedeemValue <= 0 {
		return ErrRedeemValueNotPositive
	}
	return nil
}

// ValidateDiscount проверяет уровень скидки перед сохранением.
func ValidateDiscount(d model.MemberDiscount) error {
	if d.Name == "" {
		return ErrDiscountNameEmpty
	}
	if d.DiscountPercent < 0 || d.DiscountPercent > 100 {
		return ErrDiscountOutOfRange
	}
	if d.MinPurchase < 0 {
		return ErrMinPurchaseNegative
	}
	return nil
}
