// Package model содержит доменные сущности POS-сервиса.
package model

import "time"

// Role определяет роль сотрудника магазина.
type Role string

const (
	RoleCashier Role = "cashier"
	RoleAdmin   Role = "admin"
)

// User представляет сотрудника магазина, работающего с кассой.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	Role         Role
	CreatedAt    time.Time
}

// Category описывает категорию товаров.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Product описывает товар каталога. Остаток носит информационный характер
// и при продаже не списывается: отчёты по продажам считаются из истории
// транзакций.
type Product struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	CategoryID int64   `json:"category_id"`
	Stock      int     `json:"stock"`
}

// CartLine — позиция корзины активной продажи.
type CartLine struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// StoreSettings содержит настройки магазина: налог и правила программы
// лояльности. Единственная запись, изменяется администратором.
type StoreSettings struct {
	StoreName string `json:"store_name"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	// TaxRate — ставка налога в процентах (0–100).
	TaxRate float64 `json:"tax_rate"`
	// PointsEarnRate — сумма в батах, за которую начисляется 1 балл.
	PointsEarnRate float64 `json:"points_earn_rate"`
	// PointsRedeemRate — количество баллов в одной единице списания.
	PointsRedeemRate float64 `json:"points_redeem_rate"`
	// PointsRedeemValue — скидка в батах за одну единицу списания.
	PointsRedeemValue float64 `json:"points_redeem_value"`
}

// MemberDiscount — именованный уровень скидки с порогом минимальной покупки.
type MemberDiscount struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	DiscountPercent float64 `json:"discount_percent"`
	MinPurchase     float64 `json:"min_purchase"`
}

// Member представляет участника программы лояльности. Баллы и накопленная
// сумма покупок изменяются только через применение завершённой продажи.
type Member struct {
	ID         int64     `json:"id"`
	MemberCode string    `json:"member_code"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	Points     int       `json:"points"`
	TotalSpent float64   `json:"total_spent"`
	JoinDate   time.Time `json:"join_date"`
	LastVisit  time.Time `json:"last_visit"`
}

// PaymentMethod описывает способ оплаты продажи.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentMobile PaymentMethod = "mobile"
)

// SaleItem — снимок позиции на момент продажи. Изменение товара задним
// числом не влияет на историю.
type SaleItem struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Sale — завершённая продажа. Запись создаётся ровно один раз и никогда не
// изменяется и не удаляется. Скидка хранится снимком (имя и процент), чтобы
// правка уровней скидок не переписывала историю чеков.
type Sale struct {
	ID                     string        `json:"id"`
	Date                   time.Time     `json:"date"`
	Items                  []SaleItem    `json:"items"`
	OriginalSubtotal       float64       `json:"original_subtotal"`
	DiscountAmount         float64       `json:"discount_amount"`
	DiscountName           string        `json:"discount_name,omitempty"`
	DiscountPercent        float64       `json:"discount_percent,omitempty"`
	PointsRedemptionAmount float64       `json:"points_redemption_amount"`
	Subtotal               float64       `json:"subtotal"`
	Tax                    float64       `json:"tax"`
	Total                  float64       `json:"total"`
	PaymentMethod          PaymentMethod `json:"payment_method"`
	MemberID               *int64        `json:"member_id,omitempty"`
	PointsEarned           int           `json:"points_earned"`
	PointsUsed             int           `json:"points_used"`
	// PointsBalance — баллы участника сразу после применения продажи.
	// Снимок нужен для восстановления чека при отложенной печати.
	PointsBalance  *int `json:"points_balance,omitempty"`
	ReceiptPrinted bool `json:"receipt_printed"`
}
