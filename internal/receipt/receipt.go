// Package receipt строит структурированное содержимое чека по завершённой
// продаже. Отрисовка и печать выполняются внешним сервисом, здесь только
// детерминированная проекция данных.
package receipt

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/pos-system/internal/model"
)

// ItemLine — строка товара в чеке. Суммы отформатированы до двух знаков,
// это единственное место, где денежные значения округляются.
type ItemLine struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Amount    string `json:"amount"`
}

// MemberBlock — сводка по участнику: начислено, списано и остаток баллов.
// Остаток считается от снимка участника, переданного на момент продажи, а
// не от перечитанной записи.
type MemberBlock struct {
	Name          string `json:"name"`
	Code          string `json:"code"`
	PointsEarned  int    `json:"points_earned"`
	PointsUsed    int    `json:"points_used"`
	PointsBalance int    `json:"points_balance"`
}

// Document — содержимое чека, передаваемое сервису печати. Строки скидки и
// списания баллов присутствуют только если соответствующие суммы ненулевые.
type Document struct {
	StoreName string    `json:"store_name"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	SaleID    string    `json:"sale_id"`
	Date      time.Time `json:"date"`

	PaymentMethod model.PaymentMethod `json:"payment_method"`

	Items []ItemLine `json:"items"`

	Subtotal string `json:"subtotal"`
	// DiscountName и Discount заполнены только при применённой скидке.
	DiscountName string `json:"discount_name,omitempty"`
	Discount     string `json:"discount,omitempty"`
	// PointsUsed и PointsDiscount заполнены только при списании баллов.
	PointsUsed     int    `json:"points_used,omitempty"`
	PointsDiscount string `json:"points_discount,omitempty"`
	TaxRate        string `json:"tax_rate"`
	Tax            string `json:"tax"`
	Total          string `json:"total"`

	Member *MemberBlock `json:"member,omitempty"`
}

// Compose строит содержимое чека по продаже, настройкам магазина и снимку
// участника до применения продажи. Проекция чистая: ни продажа, ни участник
// не изменяются.
func Compose(sale model.Sale, settings model.StoreSettings, member *model.Member) Document {
	doc := Document{
		StoreName:     settings.StoreName,
		Address:       settings.Address,
		Phone:         settings.Phone,
		SaleID:        sale.ID,
		Date:          sale.Date,
		PaymentMethod: sale.PaymentMethod,
		Subtotal:      money(sale.OriginalSubtotal),
		TaxRate:       decimal.NewFromFloat(settings.TaxRate).String(),
		Tax:           money(sale.Tax),
		Total:         money(sale.Total),
	}

	for _, it := range sale.Items {
		doc.Items = append(doc.Items, ItemLine{
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: money(it.Price),
			Amount:    money(it.Price * float64(it.Quantity)),
		})
	}

	if sale.DiscountAmount > 0 {
		doc.DiscountName = sale.DiscountName
		doc.Discount = money(sale.DiscountAmount)
	}

	if sale.PointsUsed > 0 {
		doc.PointsUsed = sale.PointsUsed
		doc.PointsDiscount = money(sale.PointsRedemptionAmount)
	}

	if member != nil {
		doc.Member = &MemberBlock{
			Name:          member.Name,
			Code:          member.MemberCode,
			PointsEarned:  sale.PointsEarned,
			PointsUsed:    sale.PointsUsed,
			PointsBalance: member.Points + sale.PointsEarned - sale.PointsUsed,
		}
	}

	return doc
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
