// Package service реализует бизнес-логику POS-сервиса.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/pos-system/internal/loyalty"
	"github.com/mmeshcher/pos-system/internal/model"
	"github.com/mmeshcher/pos-system/internal/pricing"
	"github.com/mmeshcher/pos-system/internal/printer"
	"github.com/mmeshcher/pos-system/internal/receipt"
	"github.com/mmeshcher/pos-system/internal/repository"
	"github.com/mmeshcher/pos-system/internal/validation"
)

// Ошибки бизнес-логики.
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidRole          = errors.New("unknown role")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrInvalidPaymentMethod = errors.New("unknown payment method")
	ErrInvalidSaleID        = errors.New("sale id must be a valid uuid")
	ErrInvalidMemberCode    = errors.New("invalid member code")
	ErrInvalidProduct       = errors.New("product name must not be empty and price must not be negative")
	ErrInsufficientPayment  = errors.New("cash received is less than total")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, login string, passwordHash []byte, role model.Role) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)

	ListCategories(ctx context.Context) ([]model.Category, error)
	CreateCategory(ctx context.Context, name string) (int64, error)
	UpdateCategory(ctx context.Context, c model.Category) error
	DeleteCategory(ctx context.Context, id int64) error

	ListProducts(ctx context.Context) ([]model.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error)
	CreateProduct(ctx context.Context, p model.Product) (int64, error)
	UpdateProduct(ctx context.Context, p model.Product) error
	DeleteProduct(ctx context.Context, id int64) error

	GetStoreSettings(ctx context.Context) (*model.StoreSettings, error)
	UpdateStoreSettings(ctx context.Context, s model.StoreSettings) error

	ListDiscounts(ctx context.Context) ([]model.MemberDiscount, error)
	GetDiscount(ctx context.Context, id int64) (*model.MemberDiscount, error)
	CreateDiscount(ctx context.Context, d model.MemberDiscount) (int64, error)
	UpdateDiscount(ctx context.Context, d model.MemberDiscount) error
	DeleteDiscount(ctx context.Context, id int64) error

	CreateMember(ctx context.Context, m model.Member) (int64, error)
	ListMembers(ctx context.Context) ([]model.Member, error)
	GetMemberByID(ctx context.Context, id int64) (*model.Member, error)
	GetMemberByCode(ctx context.Context, code string) (*model.Member, error)
	UpdateMemberProfile(ctx context.Context, id int64, code, name, phone string) error
	DeleteMember(ctx context.Context, id int64) error

	CommitSale(ctx context.Context, sale *model.Sale) error
	GetSale(ctx context.Context, id string) (*model.Sale, error)
	ListSales(ctx context.Context, from, to time.Time) ([]model.Sale, error)
	GetSalesForPrinting(ctx context.Context, limit int) ([]model.Sale, error)
	MarkReceiptPrinted(ctx context.Context, saleID string) error
}

// Service содержит бизнес-логику POS-сервиса.
type Service struct {
	repo          Repository
	printerClient *printer.Client
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом сервиса печати.
func NewService(repo Repository, printerClient *printer.Client) *Service {
	return &Service{
		repo:          repo,
		printerClient: printerClient,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового сотрудника. Пустая роль означает кассира.
func (s *Service) RegisterUser(ctx context.Context, login, password string, role model.Role) (int64, error) {
	if role == "" {
		role = model.RoleCashier
	}
	if role != model.RoleCashier && role != model.RoleAdmin {
		return 0, ErrInvalidRole
	}

	hashed := hashPassword(login, password)
	id, err := s.repo.CreateUser(ctx, login, hashed, role)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль сотрудника и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return 0, ErrInvalidCredentials
	}

	return u.ID, nil
}

// GetUserByID возвращает сотрудника по идентификатору.
func (s *Service) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// ListCategories возвращает категории каталога.
func (s *Service) ListCategories(ctx context.Context) ([]model.Category, error) {
	return s.repo.ListCategories(ctx)
}

// CreateCategory создаёт категорию каталога.
func (s *Service) CreateCategory(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, ErrInvalidProduct
	}
	return s.repo.CreateCategory(ctx, name)
}

// UpdateCategory переименовывает категорию каталога.
func (s *Service) UpdateCategory(ctx context.Context, c model.Category) error {
	if c.Name == "" {
		return ErrInvalidProduct
	}
	return s.repo.UpdateCategory(ctx, c)
}

// DeleteCategory удаляет категорию, если в ней нет товаров.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	return s.repo.DeleteCategory(ctx, id)
}

// ListProducts возвращает товары каталога.
func (s *Service) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.repo.ListProducts(ctx)
}

// CreateProduct создаёт товар каталога.
func (s *Service) CreateProduct(ctx context.Context, p model.Product) (int64, error) {
	if p.Name == "" || p.Price < 0 || p.Stock < 0 {
		return 0, ErrInvalidProduct
	}
	return s.repo.CreateProduct(ctx, p)
}

// UpdateProduct обновляет товар каталога. Прошлые продажи хранят снимки
// позиций и не меняются.
func (s *Service) UpdateProduct(ctx context.Context, p model.Product) error {
	if p.Name == "" || p.Price < 0 || p.Stock < 0 {
		return ErrInvalidProduct
	}
	return s.repo.UpdateProduct(ctx, p)
}

// DeleteProduct удаляет товар каталога.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	return s.repo.DeleteProduct(ctx, id)
}

// GetStoreSettings возвращает настройки магазина.
func (s *Service) GetStoreSettings(ctx context.Context) (*model.StoreSettings, error) {
	return s.repo.GetStoreSettings(ctx)
}

// UpdateStoreSettings сохраняет настройки магазина после валидации.
// Изменение ставок влияет только на будущие продажи.
func (s *Service) UpdateStoreSettings(ctx context.Context, settings model.StoreSettings) error {
	if err := validation.ValidateStoreSettings(settings); err != nil {
		return err
	}
	return s.repo.UpdateStoreSettings(ctx, settings)
}

// ListDiscounts возвращает уровни скидок.
func (s *Service) ListDiscounts(ctx context.Context) ([]model.MemberDiscount, error) {
	return s.repo.ListDiscounts(ctx)
}

// CreateDiscount создаёт уровень скидки.
func (s *Service) CreateDiscount(ctx context.Context, d model.MemberDiscount) (int64, error) {
	if err := validation.ValidateDiscount(d); err != nil {
		return 0, err
	}
	return s.repo.CreateDiscount(ctx, d)
}

// UpdateDiscount обновляет уровень скидки.
func (s *Service) UpdateDiscount(ctx context.Context, d model.MemberDiscount) error {
	if err := validation.ValidateDiscount(d); err != nil {
		return err
	}
	return s.repo.UpdateDiscount(ctx, d)
}

// DeleteDiscount удаляет уровень скидки.
func (s *Service) DeleteDiscount(ctx context.Context, id int64) error {
	return s.repo.DeleteDiscount(ctx, id)
}

// CreateMember регистрирует участника программы лояльности с нулевым балансом.
func (s *Service) CreateMember(ctx context.Context, code, name, phone string) (*model.Member, error) {
	if !validation.IsValidMemberCode(code) {
		return nil, ErrInvalidMemberCode
	}
	if name == "" {
		return nil, errors.New("member name must not be empty")
	}

	now := time.Now()
	m := model.Member{
		MemberCode: code,
		Name:       name,
		Phone:      phone,
		JoinDate:   now,
		LastVisit:  now,
	}

	id, err := s.repo.CreateMember(ctx, m)
	if err != nil {
		return nil, err
	}
	m.ID = id

	return &m, nil
}

// ListMembers возвращает участников программы лояльности.
func (s *Service) ListMembers(ctx context.Context) ([]model.Member, error) {
	return s.repo.ListMembers(ctx)
}

// GetMemberByCode возвращает участника по коду.
func (s *Service) GetMemberByCode(ctx context.Context, code string) (*model.Member, error) {
	if !validation.IsValidMemberCode(code) {
		return nil, repository.ErrMemberNotFound
	}
	return s.repo.GetMemberByCode(ctx, code)
}

// UpdateMemberProfile обновляет профиль участника. Баланс баллов через
// профиль не изменяется.
func (s *Service) UpdateMemberProfile(ctx context.Context, id int64, code, name, phone string) error {
	if !validation.IsValidMemberCode(code) {
		return ErrInvalidMemberCode
	}
	if name == "" {
		return errors.New("member name must not be empty")
	}
	return s.repo.UpdateMemberProfile(ctx, id, code, name, phone)
}

// DeleteMember удаляет участника, если на него не ссылается история продаж.
func (s *Service) DeleteMember(ctx context.Context, id int64) error {
	return s.repo.DeleteMember(ctx, id)
}

// CheckoutItem — позиция корзины в запросе на оплату. Имя и цена берутся из
// каталога на сервере, клиентским значениям не доверяем.
type CheckoutItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// CheckoutRequest — запрос на фиксацию продажи. SaleID задаёт идемпотентность:
// повторная отправка с тем же идентификатором не создаст вторую продажу.
type CheckoutRequest struct {
	SaleID         string              `json:"sale_id,omitempty"`
	Items          []CheckoutItem      `json:"items"`
	PaymentMethod  model.PaymentMethod `json:"payment_method"`
	DiscountID     *int64              `json:"discount_id,omitempty"`
	MemberCode     string              `json:"member_code,omitempty"`
	PointsToRedeem int                 `json:"points_to_redeem,omitempty"`
	CashReceived   *float64            `json:"cash_received,omitempty"`
}

// CheckoutResult — результат фиксации продажи.
type CheckoutResult struct {
	Sale    model.Sale       `json:"sale"`
	Receipt receipt.Document `json:"receipt"`
	Change  float64          `json:"change"`
	Member  *model.Member    `json:"member,omitempty"`
}

// Checkout выполняет оплату корзины: рассчитывает стоимость, атомарно
// фиксирует продажу вместе с изменением баланса участника и строит чек.
//
// Неизвестный код участника не прерывает продажу: она проходит без
// программы лояльности. Ошибка возвращается только на некорректный запрос
// или сбой хранилища.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}

	switch req.PaymentMethod {
	case model.PaymentCash, model.PaymentCard, model.PaymentMobile:
	default:
		return nil, ErrInvalidPaymentMethod
	}

	saleID := req.SaleID
	if saleID == "" {
		saleID = uuid.NewString()
	} else if err := uuid.Validate(saleID); err != nil {
		return nil, ErrInvalidSaleID
	}

	settings, err := s.repo.GetStoreSettings(ctx)
	if err != nil {
		return nil, err
	}

	lines, err := s.resolveCart(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	var discount *model.MemberDiscount
	if req.DiscountID != nil {
		discount, err = s.repo.GetDiscount(ctx, *req.DiscountID)
		if err != nil {
			return nil, err
		}
	}

	var member *model.Member
	if req.MemberCode != "" && validation.IsValidMemberCode(req.MemberCode) {
		member, err = s.repo.GetMemberByCode(ctx, req.MemberCode)
		if err != nil && !errors.Is(err, repository.ErrMemberNotFound) {
			return nil, err
		}
	}

	bd := pricing.ComputeBreakdown(lines, *settings, discount, member, req.PointsToRedeem)

	var change float64
	if req.PaymentMethod == model.PaymentCash && req.CashReceived != nil {
		if *req.CashReceived < bd.Total {
			return nil, ErrInsufficientPayment
		}
		change = *req.CashReceived - bd.Total
	}

	now := time.Now()
	sale := model.Sale{
		ID:                     saleID,
		Date:                   now,
		OriginalSubtotal:       bd.OriginalSubtotal,
		DiscountAmount:         bd.DiscountAmount,
		PointsRedemptionAmount: bd.PointsRedemptionAmount,
		Subtotal:               bd.Subtotal,
		Tax:                    bd.Tax,
		Total:                  bd.Total,
		PaymentMethod:          req.PaymentMethod,
		PointsEarned:           bd.PointsEarned,
		PointsUsed:             bd.PointsUsed,
	}

	for _, l := range lines {
		sale.Items = append(sale.Items, model.SaleItem{
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     l.Price,
			Quantity:  l.Quantity,
		})
	}

	if bd.DiscountAmount > 0 && discount != nil {
		sale.DiscountName = discount.Name
		sale.DiscountPercent = discount.DiscountPercent
	}

	var updated *model.Member
	if member != nil {
		sale.MemberID = &member.ID

		u := loyalty.ApplySale(*member, bd.PointsEarned, bd.PointsUsed, bd.Total, now)
		updated = &u
		sale.PointsBalance = &u.Points
	}

	if err := s.repo.CommitSale(ctx, &sale); err != nil {
		return nil, err
	}

	return &CheckoutResult{
		Sale:    sale,
		Receipt: receipt.Compose(sale, *settings, member),
		Change:  change,
		Member:  updated,
	}, nil
}

// resolveCart собирает позиции корзины по каталогу. Имя и цена фиксируются
// снимком на момент продажи.
func (s *Service) resolveCart(ctx context.Context, items []CheckoutItem) ([]model.CartLine, error) {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		ids = append(ids, it.ProductID)
	}

	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	lines := make([]model.CartLine, 0, len(items))
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			return nil, repository.ErrProductNotFound
		}
		lines = append(lines, model.CartLine{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  it.Quantity,
		})
	}

	return lines, nil
}

// GetSale возвращает продажу вместе с позициями чека.
func (s *Service) GetSale(ctx context.Context, id string) (*model.Sale, error) {
	return s.repo.GetSale(ctx, id)
}

// ListSales возвращает продажи за период.
func (s *Service) ListSales(ctx context.Context, from, to time.Time) ([]model.Sale, error) {
	return s.repo.ListSales(ctx, from, to)
}

// StartReceiptDispatch запускает фоновую отправку ненапечатанных чеков
// сервису печати.
func (s *Service) StartReceiptDispatch(ctx context.Context) {
	if s.printerClient == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processPrintBatch(ctx)
			}
		}
	}()
}

func (s *Service) processPrintBatch(ctx context.Context) {
	sales, err := s.repo.GetSalesForPrinting(ctx, 100)
	if err != nil || len(sales) == 0 {
		return
	}

	settings, err := s.repo.GetStoreSettings(ctx)
	if err != nil {
		return
	}

	for _, sale := range sales {
		member, err := s.memberSnapshotForSale(ctx, sale)
		if err != nil {
			continue
		}

		doc := receipt.Compose(sale, *settings, member)

		statusCode, retryAfter, err := s.printerClient.PrintReceipt(ctx, doc)
		if err != nil {
			continue
		}

		if statusCode == 429 {
			if retryAfter > 0 {
				timer := time.NewTimer(retryAfter)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			continue
		}

		_ = s.repo.MarkReceiptPrinted(ctx, sale.ID)
	}
}

// memberSnapshotForSale восстанавливает состояние участника на момент
// продажи. Текущий баланс мог уйти вперёд из-за последующих покупок, поэтому
// баллы берутся из снимка, сохранённого при фиксации продажи.
func (s *Service) memberSnapshotForSale(ctx context.Context, sale model.Sale) (*model.Member, error) {
	if sale.MemberID == nil {
		return nil, nil
	}

	m, err := s.repo.GetMemberByID(ctx, *sale.MemberID)
	if err != nil {
		return nil, err
	}

	snapshot := *m
	if sale.PointsBalance != nil {
		snapshot.Points = *sale.PointsBalance - sale.PointsEarned + sale.PointsUsed
	}

	return &snapshot, nil
}
