package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/mmeshcher/pos-system/internal/model"
	"github.com/mmeshcher/pos-system/internal/repository"
	"github.com/mmeshcher/pos-system/internal/validation"
)

func TestHashPasswordDeterministic(t *testing.T) {
	a := hashPassword("user", "pass")
	b := hashPassword("user", "pass")
	c := hashPassword("user", "other")

	if string(a) != string(b) {
		t.Fatalf("hashPassword must be deterministic, got %x and %x", a, b)
	}
	if string(a) == string(c) {
		t.Fatalf("different passwords must produce different hashes")
	}
}

type stubRepo struct {
	createUserID  int64
	createUserErr error

	getUser    *model.User
	getUserErr error

	settings    *model.StoreSettings
	settingsErr error

	products map[int64]model.Product

	discount    *model.MemberDiscount
	discountErr error

	member    *model.Member
	memberErr error

	commitErr     error
	committedSale *model.Sale

	salesForPrinting []model.Sale
	printedIDs       []string
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, login string, passwordHash []byte, role model.Role) (int64, error) {
	return s.createUserID, s.createUserErr
}

func (s *stubRepo) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return s.getUser, s.getUserErr
}

func (s *stubRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return s.getUser, s.getUserErr
}

func (s *stubRepo) ListCategories(ctx context.Context) ([]model.Category, error) { return nil, nil }

func (s *stubRepo) CreateCategory(ctx context.Context, name string) (int64, error) { return 0, nil }

func (s *stubRepo) UpdateCategory(ctx context.Context, c model.Category) error { return nil }

func (s *stubRepo) DeleteCategory(ctx context.Context, id int64) error { return nil }

func (s *stubRepo) ListProducts(ctx context.Context) ([]model.Product, error) { return nil, nil }

func (s *stubRepo) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error) {
	return s.products, nil
}

func (s *stubRepo) CreateProduct(ctx context.Context, p model.Product) (int64, error) {
	return 0, nil
}

func (s *stubRepo) UpdateProduct(ctx context.Context, p model.Product) error { return nil }

func (s *stubRepo) DeleteProduct(ctx context.Context, id int64) error { return nil }

func (s *stubRepo) GetStoreSettings(ctx context.Context) (*model.StoreSettings, error) {
	return s.settings, s.settingsErr
}

func (s *stubRepo) UpdateStoreSettings(ctx context.Context, settings model.StoreSettings) error {
	return nil
}

func (s *stubRepo) ListDiscounts(ctx context.Context) ([]model.MemberDiscount, error) {
	return nil, nil
}

func (s *stubRepo) GetDiscount(ctx context.Context, id int64) (*model.MemberDiscount, error) {
	return s.discount, s.discountErr
}

func (s *stubRepo) CreateDiscount(ctx context.Context, d model.MemberDiscount) (int64, error) {
	return 0, nil
}

func (s *stubRepo) UpdateDiscount(ctx context.Context, d model.MemberDiscount) error { return nil }

func (s *stubRepo) DeleteDiscount(ctx context.Context, id int64) error { return nil }

func (s *stubRepo) CreateMember(ctx context.Context, m model.Member) (int64, error) { return 0, nil }

func (s *stubRepo) ListMembers(ctx context.Context) ([]model.Member, error) { return nil, nil }

func (s *stubRepo) GetMemberByID(ctx context.Context, id int64) (*model.Member, error) {
	return s.member, s.memberErr
}

func (s *stubRepo) GetMemberByCode(ctx context.Context, code string) (*model.Member, error) {
	return s.member, s.memberErr
}

func (s *stubRepo) UpdateMemberProfile(ctx context.Context, id int64, code, name, phone string) error {
	return nil
}

func (s *stubRepo) DeleteMember(ctx context.Context, id int64) error { return nil }

func (s *stubRepo) CommitSale(ctx context.Context, sale *model.Sale) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	s.committedSale = sale
	return nil
}

func (s *stubRepo) GetSale(ctx context.Context, id string) (*model.Sale, error) {
	return nil, repository.ErrSaleNotFound
}

func (s *stubRepo) ListSales(ctx context.Context, from, to time.Time) ([]model.Sale, error) {
	return nil, nil
}

func (s *stubRepo) GetSalesForPrinting(ctx context.Context, limit int) ([]model.Sale, error) {
	return s.salesForPrinting, nil
}

func (s *stubRepo) MarkReceiptPrinted(ctx context.Context, saleID string) error {
	s.printedIDs = append(s.printedIDs, saleID)
	return nil
}

func defaultSettings() *model.StoreSettings {
	return &model.StoreSettings{
		StoreName:         "Test Store",
		TaxRate:           7,
		PointsEarnRate:    25,
		PointsRedeemRate:  100,
		PointsRedeemValue: 10,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRegisterUser_PropagatesDuplicateError(t *testing.T) {
	repo := &stubRepo{
		createUserErr: repository.ErrUserExists,
	}
	svc := NewService(repo, nil)

	_, err := svc.RegisterUser(context.Background(), "login", "pass", model.RoleCashier)
	if !errors.Is(err, repository.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestRegisterUser_UnknownRole(t *testing.T) {
	svc := NewService(&stubRepo{}, nil)

	_, err := svc.RegisterUser(context.Background(), "login", "pass", model.Role("owner"))
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestAuthenticateUser_InvalidCredentials(t *testing.T) {
	hashed := hashPassword("user", "correct")
	repo := &stubRepo{
		getUser: &model.User{
			ID:           1,
			Login:        "user",
			PasswordHash: hashed,
		},
	}

	svc := NewService(repo, nil)

	_, err := svc.AuthenticateUser(context.Background(), "user", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateUser_UnknownLogin(t *testing.T) {
	repo := &stubRepo{getUserErr: repository.ErrUserNotFound}
	svc := NewService(repo, nil)

	_, err := svc.AuthenticateUser(context.Background(), "ghost", "pass")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestUpdateStoreSettings_RejectsInvalid(t *testing.T) {
	svc := NewService(&stubRepo{}, nil)

	err := svc.UpdateStoreSettings(context.Background(), model.StoreSettings{
		TaxRate:           150,
		PointsEarnRate:    25,
		PointsRedeemRate:  100,
		PointsRedeemValue: 10,
	})
	if !errors.Is(err, validation.ErrTaxRateOutOfRange) {
		t.Fatalf("expected ErrTaxRateOutOfRange, got %v", err)
	}
}

func TestCheckout_EmptyCart(t *testing.T) {
	svc := NewService(&stubRepo{}, nil)

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		PaymentMethod: model.PaymentCash,
	})
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestCheckout_UnknownPaymentMethod(t *testing.T) {
	svc := NewService(&stubRepo{}, nil)

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		Items:         []CheckoutItem{{ProductID: 1, Quantity: 1}},
		PaymentMethod: "barter",
	})
	if !errors.Is(err, ErrInvalidPaymentMethod) {
		t.Fatalf("expected ErrInvalidPaymentMethod, got %v", err)
	}
}

func TestCheckout_UnknownProduct(t *testing.T) {
	repo := &stubRepo{
		settings: defaultSettings(),
		products: map[int64]model.Product{},
	}
	svc := NewService(repo, nil)

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		Items:         []CheckoutItem{{ProductID: 99, Quantity: 1}},
		PaymentMethod: model.PaymentCard,
	})
	if !errors.Is(err, repository.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestCheckout_DiscountAndEarnedPoints(t *testing.T) {
	vip := int64(2)
	repo := &stubRepo{
		settings: defaultSettings(),
		products: map[int64]model.Product{
			1: {ID: 1, Name: "Rice", Price: 300, CategoryID: 1},
		},
		discount: &model.MemberDiscount{ID: 2, Name: "VIP Member", DiscountPercent: 10, MinPurchase: 500},
		member:   &model.Member{ID: 7, MemberCode: "M001", Name: "Somchai", Points: 100},
	}
	svc := NewService(repo, nil)

	res, err := svc.Checkout(context.Background(), CheckoutRequest{
		Items:         []CheckoutItem{{ProductID: 1, Quantity: 2}},
		PaymentMethod: model.PaymentCard,
		DiscountID:    &vip,
		MemberCode:    "M001",
	})
	if err != nil {
		t.Fatalf("Checkout error: %v", err)
	}

	sale := res.Sale
	if !almostEqual(sale.OriginalSubtotal, 600) {
		t.Fatalf("OriginalSubtotal = %v, want 600", sale.OriginalSubtotal)
	}
	if !almostEqual(sale.DiscountAmount, 60) {
		t.Fatalf("DiscountAmount = %v, want 60", sale.DiscountAmount)
	}
	if sale.DiscountName != "VIP Member" {
		t.Fatalf("DiscountName = %q, want VIP Member", sale.DiscountName)
	}
	if !almostEqual(sale.Total, 577.8) {
		t.Fatalf("Total = %v, want 577.8", sale.Total)
	}
	if sale.PointsEarned != 24 {
		t.Fatalf("PointsEarned = %d, want 24", sale.PointsEarned)
	}

	if res.Member == nil || res.Member.Points != 124 {
		t.Fatalf("member points = %+v, want 124", res.Member)
	}
	if sale.PointsBalance == nil || *sale.PointsBalance != 124 {
		t.Fatalf("PointsBalance = %v, want 124", sale.PointsBalance)
	}

	if repo.committedSale == nil {
		t.Fatalf("sale was not committed")
	}
	if len(repo.committedSale.Items) != 1 || repo.committedSale.Items[0].Name != "Rice" {
		t.Fatalf("unexpected committed items: %+v", repo.committedSale.Items)
	}
}

func TestCheckout_RedeemClampedToBalance(t *testing.T) {
	repo := &stubRepo{
		settings: defaultSettings(),
		products: map[int64]model.Product{
			1: {ID: 1, Name: "Noodles", Price: 100, CategoryID: 1},
		},
		member: &model.Member{ID: 3, MemberCode: "M002", Name: "Nok", Points: 50},
	}
	svc := NewService(repo, nil)

	res, err := svc.Checkout(context.Background(), CheckoutRequest{
		Items:          []CheckoutItem{{ProductID: 1, Quantity: 1}},
		PaymentMethod:  model.PaymentCash,
		MemberCode:     "M002",
		PointsToRedeem: 1000,
	})
	if err != nil {
		t.Fatalf("Checkout error: %v", err)
	}

	if res.Sale.PointsUsed != 50 {
		t.Fatalf("PointsUsed = %d, want 50", res.Sale.PointsUsed)
	}
	if !almostEqual(res.Sale.PointsRedemptionAmount, 5) {
		t.Fatalf("PointsRedemptionAmount = %v, want 5", res.Sale.PointsRedemptionAmount)
	}
}

func TestCheckout_UnknownMemberProceedsWithoutLoyalty(t *testing.T) {
	repo := &stubRepo{
		settings: defaultSettings(),
		products: map[int64]model.Product{
			1: {ID: 1, Name: "Milk", Price: 100, CategoryID: 1},
		},
		memberErr: repository.ErrMemberNotFound,
	}
	svc := NewService(repo, nil)

	res, err := svc.Checkout(context.Background(), CheckoutRequest{
		Items:          []CheckoutItem{{ProductID: 1, Quantity: 1}},
		PaymentMethod:  model.PaymentCash,
		MemberCode:     "GHOST",
		PointsToRedeem: 10,
	})
	if err != nil {
		t.Fatalf("Checkout error: %v", err)
	}

	if res.Sale.MemberID != nil {
		t.Fatalf("MemberID = %v, want nil", res.Sale.MemberID)
	}
	if res.Sale.PointsUsed != 0 || res.Sale.PointsEarned == 0 {
		t.Fatalf("points: used=%d earned=%d, want used=0 earned>0", res.Sale.PointsUsed, res.Sale.PointsEarned)
	}
	if !almostEqual(res.Sale.Total, 107) {
		t.Fatalf("Total = %v, want 107", res.Sale.Total)
	}
}

func TestCheckout_InsufficientCash(t *testing.T) {
	cash := 100.0
	repo := &stubRepo{
		settings: defaultSettings(),
		products: map[int64]model.Product{
			1: {ID: 1, Name: "Milk", Price: 100, CategoryID: 1},
		},
	}
	svc := NewService(repo, nil)

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		Items:         []CheckoutItem{{ProductID: 1, Quantity: 1}},
		PaymentMethod: model.PaymentCash,
		CashReceived:  &cash,
	})
	if !errors.Is(err, ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}
}

func TestCheckout_CashChange(t *testing.T) {
	cash := 120.0
	repo := &stubRepo{
		settings: defaultSettings(),
		products: map[int64]model.Product{
			1: {ID: 1, Name: "Milk", Price: 100, CategoryID: 1},
		},
	}
	svc := NewService(repo, nil)

	res, err := svc.Checkout(context.Background(), CheckoutRequest{
		Items:         []CheckoutItem{{ProductID: 1, Quantity: 1}},
		PaymentMethod: model.PaymentCash,
		CashReceived:  &cash,
	})
	if err != nil {
		t.Fatalf("Checkout error: %v", err)
	}

	if !almostEqual(res.Change, 13) {
		t.Fatalf("Change = %v, want 13", res.Change)
	}
}

func TestCheckout_DuplicateSaleID(t *testing.T) {
	repo := &stubRepo{
		settings: defaultSettings(),
		products: map[int64]model.Product{
			1: {ID: 1, Name: "Milk", Price: 100, CategoryID: 1},
		},
		commitErr: repository.ErrSaleExists,
	}
	svc := NewService(repo, nil)

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		SaleID:        "0b5c8f2e-9f9a-4c5a-8d37-2f0a4d1c9e11",
		Items:         []CheckoutItem{{ProductID: 1, Quantity: 1}},
		PaymentMethod: model.PaymentCard,
	})
	if !errors.Is(err, repository.ErrSaleExists) {
		t.Fatalf("expected ErrSaleExists, got %v", err)
	}
}

func TestCheckout_MalformedSaleID(t *testing.T) {
	repo := &stubRepo{
		settings: defaultSettings(),
		products: map[int64]model.Product{
			1: {ID: 1, Name: "Milk", Price: 100, CategoryID: 1},
		},
	}
	svc := NewService(repo, nil)

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		SaleID:        "not-a-uuid",
		Items:         []CheckoutItem{{ProductID: 1, Quantity: 1}},
		PaymentMethod: model.PaymentCard,
	})
	if !errors.Is(err, ErrInvalidSaleID) {
		t.Fatalf("expected ErrInvalidSaleID, got %v", err)
	}
}

func TestCreateMember_InvalidCode(t *testing.T) {
	svc := NewService(&stubRepo{}, nil)

	_, err := svc.CreateMember(context.Background(), "bad code!", "Name", "")
	if !errors.Is(err, ErrInvalidMemberCode) {
		t.Fatalf("expected ErrInvalidMemberCode, got %v", err)
	}
}

func TestMemberSnapshotForSale_RestoresBalance(t *testing.T) {
	memberID := int64(5)
	balance := 124
	repo := &stubRepo{
		member: &model.Member{ID: 5, MemberCode: "M001", Name: "Somchai", Points: 500},
	}
	svc := NewService(repo, nil)

	snapshot, err := svc.memberSnapshotForSale(context.Background(), model.Sale{
		MemberID:      &memberID,
		PointsEarned:  24,
		PointsUsed:    0,
		PointsBalance: &balance,
	})
	if err != nil {
		t.Fatalf("memberSnapshotForSale error: %v", err)
	}

	if snapshot.Points != 100 {
		t.Fatalf("snapshot points = %d, want 100", snapshot.Points)
	}
}

func TestStartReceiptDispatch_NoClient(t *testing.T) {
	svc := &Service{}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})

	go func() {
		svc.StartReceiptDispatch(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("StartReceiptDispatch did not return without client")
	}
}
