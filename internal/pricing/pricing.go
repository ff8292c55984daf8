// Package pricing реализует расчёт стоимости продажи: скидки, списание
// баллов, налог и начисление баллов. Расчёт чистый, без побочных эффектов.
package pricing

import (
	"math"

	"github.com/mmeshcher/pos-system/internal/model"
)

// Breakdown содержит разбивку стоимости одной корзины в один момент времени.
// После вычисления значения не изменяются; при правке корзины разбивка
// вычисляется заново целиком.
type Breakdown struct {
	OriginalSubtotal       float64 `json:"original_subtotal"`
	DiscountAmount         float64 `json:"discount_amount"`
	PointsRedemptionAmount float64 `json:"points_redemption_amount"`
	Subtotal               float64 `json:"subtotal"`
	Tax                    float64 `json:"tax"`
	Total                  float64 `json:"total"`
	PointsEarned           int     `json:"points_earned"`
	PointsUsed             int     `json:"points_used"`
}

// PointValue возвращает денежную стоимость одного балла: списание
// PointsRedeemRate баллов даёт скидку PointsRedeemValue бат, частичное
// списание масштабируется линейно.
func PointValue(s model.StoreSettings) float64 {
	if s.PointsRedeemRate <= 0 {
		return 0
	}
	return s.PointsRedeemValue / s.PointsRedeemRate
}

// ComputeBreakdown вычисляет разбивку стоимости корзины.
//
// Порядок шагов фиксирован и влияет на результат из-за последовательного
// вычитания: сумма позиций, процентная скидка, списание баллов, налог.
// Баллы начисляются от суммы до скидок, а не от фактически оплаченной.
// Функция не возвращает ошибок: некорректные значения приводятся к нулю
// или к ближайшей допустимой границе.
func ComputeBreakdown(lines []model.CartLine, settings model.StoreSettings, discount *model.MemberDiscount, member *model.Member, pointsRequested int) Breakdown {
	var original float64
	for _, l := range lines {
		price := l.Price
		if price < 0 {
			price = 0
		}
		qty := l.Quantity
		if qty < 0 {
			qty = 0
		}
		original += price * float64(qty)
	}

	// Скидка применяется только при достижении порога минимальной покупки.
	// Выбранный, но неприменимый уровень считается отсутствующим.
	var discountAmount float64
	if discount != nil && original >= discount.MinPurchase {
		discountAmount = original * (discount.DiscountPercent / 100)
	}

	pointsUsed := clampRedeemPoints(original, discountAmount, settings, member, pointsRequested)
	redemption := float64(pointsUsed) * PointValue(settings)

	subtotal := original - discountAmount - redemption
	if subtotal < 0 {
		subtotal = 0
	}

	tax := subtotal * (settings.TaxRate / 100)
	total := subtotal + tax

	earned := 0
	if settings.PointsEarnRate > 0 {
		earned = int(math.Floor(original / settings.PointsEarnRate))
	}

	return Breakdown{
		OriginalSubtotal:       original,
		DiscountAmount:         discountAmount,
		PointsRedemptionAmount: redemption,
		Subtotal:               subtotal,
		Tax:                    tax,
		Total:                  total,
		PointsEarned:           earned,
		PointsUsed:             pointsUsed,
	}
}

// clampRedeemPoints ограничивает запрошенное списание балансом участника и
// стоимостью чека. Лимит по стоимости считается от предварительной суммы с
// налогом до учёта самого списания — исторически сложившееся правило,
// которое сохранено для воспроизводимости расчёта.
func clampRedeemPoints(original, discountAmount float64, settings model.StoreSettings, member *model.Member, requested int) int {
	if member == nil || requested <= 0 {
		return 0
	}

	perPoint := PointValue(settings)
	if perPoint <= 0 {
		return 0
	}

	provisional := (original - discountAmount) * (1 + settings.TaxRate/100)
	if provisional < 0 {
		provisional = 0
	}

	maxByTotal := int(math.Floor(provisional / perPoint))

	points := requested
	if points > member.Points {
		points = member.Points
	}
	if points > maxByTotal {
		points = maxByTotal
	}
	if points < 0 {
		points = 0
	}
	return points
}
