// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/pos-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать сотрудника с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если сотрудник не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrCategoryNotFound возвращается, если категория не найдена.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrCategoryReferenced возвращается при попытке удалить категорию, в которой есть товары.
	ErrCategoryReferenced = errors.New("category referenced by products")
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrDiscountNotFound возвращается, если уровень скидки не найден.
	ErrDiscountNotFound = errors.New("discount not found")
	// ErrMemberNotFound возвращается, если участник программы лояльности не найден.
	ErrMemberNotFound = errors.New("member not found")
	// ErrMemberCodeExists возвращается при попытке создать участника с занятым кодом.
	ErrMemberCodeExists = errors.New("member code already exists")
	// ErrMemberReferenced возвращается при попытке удалить участника, на которого ссылаются продажи.
	ErrMemberReferenced = errors.New("member referenced by sales history")
	// ErrSaleExists возвращается при повторной фиксации продажи с тем же идентификатором.
	ErrSaleExists = errors.New("sale already committed")
	// ErrSaleNotFound возвращается, если продажа не найдена.
	ErrSaleNotFound = errors.New("sale not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Повторяем только сериализационные сбои, дедлоки и сетевые ошибки.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового сотрудника.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, passwordHash []byte, role model.Role) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash, role) VALUES ($1, $2, $3) RETURNING id`,
		login, passwordHash, string(role),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает сотрудника по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, role, created_at FROM users WHERE login = $1`,
		login,
	)

	var u model.User
	var role string
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = model.Role(role)

	return &u, nil
}

// GetUserByID возвращает сотрудника по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, role, created_at FROM users WHERE id = $1`,
		id,
	)

	var u model.User
	var role string
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = model.Role(role)

	return &u, nil
}

// ListCategories возвращает список категорий товаров.
func (r *PostgresRepository) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer rows.Close()

	var res []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateCategory создаёт категорию товаров.
func (r *PostgresRepository) CreateCategory(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO categories (name) VALUES ($1) RETURNING id`,
		name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create category: %w", err)
	}
	return id, nil
}

// UpdateCategory переименовывает категорию.
func (r *PostgresRepository) UpdateCategory(ctx context.Context, c model.Category) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE categories SET name = $2 WHERE id = $1`,
		c.ID, c.Name,
	)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

// DeleteCategory удаляет категорию. Категория с товарами не удаляется.
func (r *PostgresRepository) DeleteCategory(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return ErrCategoryReferenced
		}
		return fmt.Errorf("delete category: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

// ListProducts возвращает список товаров каталога.
func (r *PostgresRepository) ListProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, price, category_id, stock FROM products ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var res []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.CategoryID, &p.Stock); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetProductsByIDs возвращает товары по набору идентификаторов.
func (r *PostgresRepository) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, price, category_id, stock FROM products WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	res := make(map[int64]model.Product, len(ids))
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.CategoryID, &p.Stock); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		res[p.ID] = p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateProduct создаёт товар и возвращает его идентификатор.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p model.Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO products (name, price, category_id, stock) VALUES ($1, $2, $3, $4) RETURNING id`,
		p.Name, p.Price, p.CategoryID, p.Stock,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create product: %w", err)
	}
	return id, nil
}

// UpdateProduct обновляет товар.
func (r *PostgresRepository) UpdateProduct(ctx context.Context, p model.Product) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE products SET name = $2, price = $3, category_id = $4, stock = $5 WHERE id = $1`,
		p.ID, p.Name, p.Price, p.CategoryID, p.Stock,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// DeleteProduct удаляет товар. История продаж хранит снимки позиций и от
// каталога не зависит.
func (r *PostgresRepository) DeleteProduct(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// GetStoreSettings возвращает настройки магазина.
func (r *PostgresRepository) GetStoreSettings(ctx context.Context) (*model.StoreSettings, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT store_name, address, phone, tax_rate, points_earn_rate, points_redeem_rate, points_redeem_value
		 FROM store_settings WHERE id = 1`,
	)

	var s model.StoreSettings
	err := row.Scan(&s.StoreName, &s.Address, &s.Phone, &s.TaxRate, &s.PointsEarnRate, &s.PointsRedeemRate, &s.PointsRedeemValue)
	if err != nil {
		return nil, fmt.Errorf("get store settings: %w", err)
	}

	return &s, nil
}

// UpdateStoreSettings сохраняет настройки магазина.
func (r *PostgresRepository) UpdateStoreSettings(ctx context.Context, s model.StoreSettings) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE store_settings
		 SET store_name = $1, address = $2, phone = $3, tax_rate = $4,
		     points_earn_rate = $5, points_redeem_rate = $6, points_redeem_value = $7
		 WHERE id = 1`,
		s.StoreName, s.Address, s.Phone, s.TaxRate, s.PointsEarnRate, s.PointsRedeemRate, s.PointsRedeemValue,
	)
	if err != nil {
		return fmt.Errorf("update store settings: %w", err)
	}
	return nil
}

// ListDiscounts возвращает уровни скидок.
func (r *PostgresRepository) ListDiscounts(ctx context.Context) ([]model.MemberDiscount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, discount_percent, min_purchase FROM member_discounts ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select discounts: %w", err)
	}
	defer rows.Close()

	var res []model.MemberDiscount
	for rows.Next() {
		var d model.MemberDiscount
		if err := rows.Scan(&d.ID, &d.Name, &d.DiscountPercent, &d.MinPurchase); err != nil {
			return nil, fmt.Errorf("scan discount: %w", err)
		}
		res = append(res, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetDiscount возвращает уровень скидки по идентификатору.
func (r *PostgresRepository) GetDiscount(ctx context.Context, id int64) (*model.MemberDiscount, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, discount_percent, min_purchase FROM member_discounts WHERE id = $1`,
		id,
	)

	var d model.MemberDiscount
	err := row.Scan(&d.ID, &d.Name, &d.DiscountPercent, &d.MinPurchase)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDiscountNotFound
		}
		return nil, fmt.Errorf("get discount: %w", err)
	}

	return &d, nil
}

// CreateDiscount создаёт уровень скидки.
func (r *PostgresRepository) CreateDiscount(ctx context.Context, d model.MemberDiscount) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO member_discounts (name, discount_percent, min_purchase) VALUES ($1, $2, $3) RETURNING id`,
		d.Name, d.DiscountPercent, d.MinPurchase,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create discount: %w", err)
	}
	return id, nil
}

// UpdateDiscount обновляет уровень скидки. Исторические чеки хранят имя и
// процент снимком и не меняются.
func (r *PostgresRepository) UpdateDiscount(ctx context.Context, d model.MemberDiscount) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE member_discounts SET name = $2, discount_percent = $3, min_purchase = $4 WHERE id = $1`,
		d.ID, d.Name, d.DiscountPercent, d.MinPurchase,
	)
	if err != nil {
		return fmt.Errorf("update discount: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrDiscountNotFound
	}
	return nil
}

// DeleteDiscount удаляет уровень скидки.
func (r *PostgresRepository) DeleteDiscount(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM member_discounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete discount: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrDiscountNotFound
	}
	return nil
}

// CreateMember создаёт участника программы лояльности.
func (r *PostgresRepository) CreateMember(ctx context.Context, m model.Member) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO members (member_code, name, phone, points, total_spent, join_date, last_visit)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		m.MemberCode, m.Name, m.Phone, m.Points, m.TotalSpent, m.JoinDate, m.LastVisit,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrMemberCodeExists, m.MemberCode)
		}
		return 0, fmt.Errorf("create member: %w", err)
	}
	return id, nil
}

// ListMembers возвращает список участников.
func (r *PostgresRepository) ListMembers(ctx context.Context) ([]model.Member, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, member_code, name, phone, points, total_spent, join_date, last_visit
		 FROM members ORDER BY join_date`,
	)
	if err != nil {
		return nil, fmt.Errorf("select members: %w", err)
	}
	defer rows.Close()

	var res []model.Member
	for rows.Next() {
		var m model.Member
		if err := rows.Scan(&m.ID, &m.MemberCode, &m.Name, &m.Phone, &m.Points, &m.TotalSpent, &m.JoinDate, &m.LastVisit); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		res = append(res, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanMember(row pgx.Row) (*model.Member, error) {
	var m model.Member
	err := row.Scan(&m.ID, &m.MemberCode, &m.Name, &m.Phone, &m.Points, &m.TotalSpent, &m.JoinDate, &m.LastVisit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return &m, nil
}

// GetMemberByID возвращает участника по идентификатору.
func (r *PostgresRepository) GetMemberByID(ctx context.Context, id int64) (*model.Member, error) {
	return scanMember(r.pool.QueryRow(ctx,
		`SELECT id, member_code, name, phone, points, total_spent, join_date, last_visit
		 FROM members WHERE id = $1`,
		id,
	))
}

// GetMemberByCode возвращает участника по коду.
func (r *PostgresRepository) GetMemberByCode(ctx context.Context, code string) (*model.Member, error) {
	return scanMember(r.pool.QueryRow(ctx,
		`SELECT id, member_code, name, phone, points, total_spent, join_date, last_visit
		 FROM members WHERE member_code = $1`,
		code,
	))
}

// UpdateMemberProfile обновляет профильные поля участника. Баллы и
// накопленная сумма изменяются только фиксацией продажи.
func (r *PostgresRepository) UpdateMemberProfile(ctx context.Context, id int64, code, name, phone string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE members SET member_code = $2, name = $3, phone = $4 WHERE id = $1`,
		id, code, name, phone,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrMemberCodeExists, code)
		}
		return fmt.Errorf("update member: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// DeleteMember удаляет участника. Участник, на которого ссылается история
// продаж, не удаляется.
func (r *PostgresRepository) DeleteMember(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM members WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return ErrMemberReferenced
		}
		return fmt.Errorf("delete member: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// CommitSale атомарно фиксирует продажу: вставляет запись и позиции чека и
// применяет изменения к балансу участника в одной транзакции. Повторная
// фиксация с тем же идентификатором отклоняется, поэтому баланс не может
// быть применён дважды. Строка участника блокируется на время транзакции,
// что сериализует параллельные продажи одному участнику.
func (r *PostgresRepository) CommitSale(ctx context.Context, sale *model.Sale) error {
	return r.withRetry(ctx, func() error {
		return r.commitSale(ctx, sale)
	})
}

func (r *PostgresRepository) commitSale(ctx context.Context, sale *model.Sale) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx,
		`INSERT INTO sales (id, date, original_subtotal, discount_amount, discount_name, discount_percent,
		                    points_redemption_amount, subtotal, tax, total, payment_method,
		                    member_id, points_earned, points_used, points_balance)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (id) DO NOTHING`,
		sale.ID, sale.Date, sale.OriginalSubtotal, sale.DiscountAmount, sale.DiscountName, sale.DiscountPercent,
		sale.PointsRedemptionAmount, sale.Subtotal, sale.Tax, sale.Total, string(sale.PaymentMethod),
		sale.MemberID, sale.PointsEarned, sale.PointsUsed, sale.PointsBalance,
	)
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrSaleExists, sale.ID)
	}

	for _, it := range sale.Items {
		_, err := tx.Exec(ctx,
			`INSERT INTO sale_items (sale_id, product_id, name, price, quantity) VALUES ($1, $2, $3, $4, $5)`,
			sale.ID, it.ProductID, it.Name, it.Price, it.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert sale item: %w", err)
		}
	}

	if sale.MemberID != nil {
		var points int
		err := tx.QueryRow(ctx,
			`SELECT points FROM members WHERE id = $1 FOR UPDATE`,
			*sale.MemberID,
		).Scan(&points)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrMemberNotFound
			}
			return fmt.Errorf("lock member for update: %w", err)
		}

		// То же правило, что и в loyalty.ApplySale: списание не больше
		// доступного баланса, баллы не уходят в минус.
		_, err = tx.Exec(ctx,
			`UPDATE members
			 SET points = GREATEST(0, points - $2) + $3,
			     total_spent = total_spent + $4,
			     last_visit = $5
			 WHERE id = $1`,
			*sale.MemberID, sale.PointsUsed, sale.PointsEarned, sale.Total, sale.Date,
		)
		if err != nil {
			return fmt.Errorf("apply sale to member: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func (r *PostgresRepository) loadSaleItems(ctx context.Context, saleID string) ([]model.SaleItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT product_id, name, price, quantity FROM sale_items WHERE sale_id = $1 ORDER BY id`,
		saleID,
	)
	if err != nil {
		return nil, fmt.Errorf("select sale items: %w", err)
	}
	defer rows.Close()

	var items []model.SaleItem
	for rows.Next() {
		var it model.SaleItem
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Price, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

const saleColumns = `id, date, original_subtotal, discount_amount, discount_name, discount_percent,
	points_redemption_amount, subtotal, tax, total, payment_method,
	member_id, points_earned, points_used, points_balance, receipt_printed`

func scanSale(row pgx.Row) (*model.Sale, error) {
	var s model.Sale
	var paymentMethod string
	err := row.Scan(&s.ID, &s.Date, &s.OriginalSubtotal, &s.DiscountAmount, &s.DiscountName, &s.DiscountPercent,
		&s.PointsRedemptionAmount, &s.Subtotal, &s.Tax, &s.Total, &paymentMethod,
		&s.MemberID, &s.PointsEarned, &s.PointsUsed, &s.PointsBalance, &s.ReceiptPrinted)
	if err != nil {
		return nil, err
	}
	s.PaymentMethod = model.PaymentMethod(paymentMethod)
	return &s, nil
}

// GetSale возвращает продажу вместе с позициями чека.
func (r *PostgresRepository) GetSale(ctx context.Context, id string) (*model.Sale, error) {
	s, err := scanSale(r.pool.QueryRow(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSaleNotFound
		}
		return nil, fmt.Errorf("get sale: %w", err)
	}

	s.Items, err = r.loadSaleItems(ctx, s.ID)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// ListSales возвращает продажи за период. Нулевые границы означают
// отсутствие ограничения.
func (r *PostgresRepository) ListSales(ctx context.Context, from, to time.Time) ([]model.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales`
	var args []any
	var conds []string

	if !from.IsZero() {
		args = append(args, from)
		conds = append(conds, fmt.Sprintf("date >= $%d", len(args)))
	}
	if !to.IsZero() {
		args = append(args, to)
		conds = append(conds, fmt.Sprintf("date <= $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select sales: %w", err)
	}
	defer rows.Close()

	var res []model.Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		res = append(res, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetSalesForPrinting возвращает продажи с ненапечатанными чеками.
func (r *PostgresRepository) GetSalesForPrinting(ctx context.Context, limit int) ([]model.Sale, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE NOT receipt_printed ORDER BY date LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select sales for printing: %w", err)
	}
	defer rows.Close()

	var res []model.Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		res = append(res, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for i := range res {
		res[i].Items, err = r.loadSaleItems(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
	}

	return res, nil
}

// MarkReceiptPrinted помечает чек продажи напечатанным.
func (r *PostgresRepository) MarkReceiptPrinted(ctx context.Context, saleID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sales SET receipt_printed = TRUE WHERE id = $1`,
		saleID,
	)
	if err != nil {
		return fmt.Errorf("mark receipt printed: %w", err)
	}
	return nil
}
