package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"stocklane/backend/internal/domain"
	"stocklane/backend/internal/oid"
	"stocklane/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error) {
	branch.Name = strings.TrimSpace(branch.Name)
	if branch.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if branch.ID == "" {
		branch.ID = oid.New()
	}
	now := time.Now().UTC()
	branch.CreatedAt = now
	branch.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (id, name, address, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)
	`, branch.ID, branch.Name, branch.Address, branch.CreatedAt, branch.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	saved := branch
	return &saved, nil
}

func (s *Store) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(address,''), created_at, updated_at
		FROM branches
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	branches := make([]domain.Branch, 0, 16)
	for rows.Next() {
		var b domain.Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Address, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.CreatedAt = b.CreatedAt.UTC()
		b.UpdatedAt = b.UpdatedAt.UTC()
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return branches, nil
}

func (s *Store) UpdateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error) {
	branch.Name = strings.TrimSpace(branch.Name)
	if branch.Name == "" {
		return nil, store.ErrInvalidInput
	}
	branch.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE branches
		SET name = $2, address = $3, updated_at = $4
		WHERE id = $1
	`, branch.ID, branch.Name, branch.Address, branch.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := branch
	return &updated, nil
}

func (s *Store) DeleteBranch(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "branches", id)
}

func (s *Store) CreateBrand(ctx context.Context, brand domain.Brand) (*domain.Brand, error) {
	brand.Name = strings.TrimSpace(brand.Name)
	if brand.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if brand.ID == "" {
		brand.ID = oid.New()
	}
	now := time.Now().UTC()
	brand.CreatedAt = now
	brand.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO brands (id, name, created_at, updated_at)
		VALUES ($1,$2,$3,$4)
	`, brand.ID, brand.Name, brand.CreatedAt, brand.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	saved := brand
	return &saved, nil
}

func (s *Store) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, updated_at
		FROM brands
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	brands := make([]domain.Brand, 0, 32)
	for rows.Next() {
		var b domain.Brand
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.CreatedAt = b.CreatedAt.UTC()
		b.UpdatedAt = b.UpdatedAt.UTC()
		brands = append(brands, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return brands, nil
}

func (s *Store) UpdateBrand(ctx context.Context, brand domain.Brand) (*domain.Brand, error) {
	brand.Name = strings.TrimSpace(brand.Name)
	if brand.Name == "" {
		return nil, store.ErrInvalidInput
	}
	brand.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE brands
		SET name = $2, updated_at = $3
		WHERE id = $1
	`, brand.ID, brand.Name, brand.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := brand
	return &updated, nil
}

func (s *Store) DeleteBrand(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "brands", id)
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if category.ID == "" {
		category.ID = oid.New()
	}
	now := time.Now().UTC()
	category.CreatedAt = now
	category.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, created_at, updated_at)
		VALUES ($1,$2,$3,$4)
	`, category.ID, category.Name, category.CreatedAt, category.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	saved := category
	return &saved, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, updated_at
		FROM categories
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 32)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		c.UpdatedAt = c.UpdatedAt.UTC()
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	category.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE categories
		SET name = $2, updated_at = $3
		WHERE id = $1
	`, category.ID, category.Name, category.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := category
	return &updated, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "categories", id)
}

func (s *Store) CreateTaxRate(ctx context.Context, rate domain.TaxRate) (*domain.TaxRate, error) {
	rate.Name = strings.TrimSpace(rate.Name)
	if rate.Name == "" || rate.Rate.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if rate.ID == "" {
		rate.ID = oid.New()
	}
	now := time.Now().UTC()
	rate.CreatedAt = now
	rate.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tax_rates (id, name, rate, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)
	`, rate.ID, rate.Name, rate.Rate, rate.CreatedAt, rate.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	saved := rate
	return &saved, nil
}

func (s *Store) ListTaxRates(ctx context.Context) ([]domain.TaxRate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, rate, created_at, updated_at
		FROM tax_rates
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rates := make([]domain.TaxRate, 0, 8)
	for rows.Next() {
		var r domain.TaxRate
		if err := rows.Scan(&r.ID, &r.Name, &r.Rate, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.CreatedAt = r.CreatedAt.UTC()
		r.UpdatedAt = r.UpdatedAt.UTC()
		rates = append(rates, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rates, nil
}

func (s *Store) UpdateTaxRate(ctx context.Context, rate domain.TaxRate) (*domain.TaxRate, error) {
	rate.Name = strings.TrimSpace(rate.Name)
	if rate.Name == "" || rate.Rate.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	rate.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE tax_rates
		SET name = $2, rate = $3, updated_at = $4
		WHERE id = $1
	`, rate.ID, rate.Name, rate.Rate, rate.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := rate
	return &updated, nil
}

func (s *Store) DeleteTaxRate(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "tax_rates", id)
}

func (s *Store) CreateExpenseCategory(ctx context.Context, category domain.ExpenseCategory) (*domain.ExpenseCategory, error) {
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if category.ID == "" {
		category.ID = oid.New()
	}
	now := time.Now().UTC()
	category.CreatedAt = now
	category.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expense_categories (id, name, created_at, updated_at)
		VALUES ($1,$2,$3,$4)
	`, category.ID, category.Name, category.CreatedAt, category.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	saved := category
	return &saved, nil
}

func (s *Store) ListExpenseCategories(ctx context.Context) ([]domain.ExpenseCategory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, updated_at
		FROM expense_categories
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.ExpenseCategory, 0, 16)
	for rows.Next() {
		var c domain.ExpenseCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		c.UpdatedAt = c.UpdatedAt.UTC()
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) UpdateExpenseCategory(ctx context.Context, category domain.ExpenseCategory) (*domain.ExpenseCategory, error) {
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	category.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE expense_categories
		SET name = $2, updated_at = $3
		WHERE id = $1
	`, category.ID, category.Name, category.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := category
	return &updated, nil
}

func (s *Store) DeleteExpenseCategory(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "expense_categories", id)
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	product.SKU = strings.ToUpper(strings.TrimSpace(product.SKU))
	if product.Name == "" || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = oid.New()
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (
			id, name, sku, branch_id, brand_id, category_id, tax_rate_id,
			stock, exc_tax, inc_tax, selling_price, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, product.ID, product.Name, nullIfEmpty(product.SKU), product.BranchID, product.BrandID,
		product.CategoryID, nullIfEmpty(product.TaxRateID), product.Stock, product.ExcTax,
		product.IncTax, product.SellingPrice, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	saved := product
	return &saved, nil
}

func (s *Store) ListProducts(ctx context.Context, query domain.ListQuery) ([]domain.Product, int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint
		FROM products
		WHERE ($1 = '' OR branch_id = $1)
	`, query.BranchID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(sku,''), branch_id, brand_id, category_id, COALESCE(tax_rate_id,''),
			stock, exc_tax, inc_tax, selling_price, created_at, updated_at
		FROM products
		WHERE ($1 = '' OR branch_id = $1)
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`, query.BranchID, query.PageLimit(), query.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, query.PageLimit())
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.BranchID, &p.BrandID, &p.CategoryID, &p.TaxRateID,
			&p.Stock, &p.ExcTax, &p.IncTax, &p.SellingPrice, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		p.UpdatedAt = p.UpdatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(sku,''), branch_id, brand_id, category_id, COALESCE(tax_rate_id,''),
			stock, exc_tax, inc_tax, selling_price, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.SKU, &p.BranchID, &p.BrandID, &p.CategoryID, &p.TaxRateID,
		&p.Stock, &p.ExcTax, &p.IncTax, &p.SellingPrice, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	product.SKU = strings.ToUpper(strings.TrimSpace(product.SKU))
	if product.Name == "" || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	product.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, sku = $3, brand_id = $4, category_id = $5, tax_rate_id = $6,
			stock = $7, exc_tax = $8, inc_tax = $9, selling_price = $10, updated_at = $11
		WHERE id = $1
	`, product.ID, product.Name, nullIfEmpty(product.SKU), product.BrandID, product.CategoryID,
		nullIfEmpty(product.TaxRateID), product.Stock, product.ExcTax, product.IncTax,
		product.SellingPrice, product.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "products", id)
}

func (s *Store) ProductDropdown(ctx context.Context, branchID string) ([]domain.ProductOption, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, stock, selling_price
		FROM products
		WHERE ($1 = '' OR branch_id = $1)
		ORDER BY name ASC
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	options := make([]domain.ProductOption, 0, 128)
	for rows.Next() {
		var opt domain.ProductOption
		if err := rows.Scan(&opt.ID, &opt.Name, &opt.Stock, &opt.SellingPrice); err != nil {
			return nil, err
		}
		options = append(options, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return options, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	customer.Name = strings.TrimSpace(customer.Name)
	customer.Phone = strings.TrimSpace(customer.Phone)
	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = oid.New()
	}
	now := time.Now().UTC()
	customer.CreatedAt = now
	customer.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (
			id, name, phone, address, opening_balance, sales_due, sales_return_due, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone), customer.Address,
		customer.OpeningBalance, customer.SalesDue, customer.SalesReturnDue,
		customer.CreatedAt, customer.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	saved := customer
	return &saved, nil
}

func (s *Store) ListCustomers(ctx context.Context, query domain.ListQuery) ([]domain.Customer, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)::bigint FROM customers`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone,''), COALESCE(address,''),
			opening_balance, sales_due, sales_return_due, created_at, updated_at
		FROM customers
		ORDER BY created_at ASC, id ASC
		LIMIT $1 OFFSET $2
	`, query.PageLimit(), query.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, query.PageLimit())
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Address,
			&c.OpeningBalance, &c.SalesDue, &c.SalesReturnDue, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		c.UpdatedAt = c.UpdatedAt.UTC()
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return customers, total, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone,''), COALESCE(address,''),
			opening_balance, sales_due, sales_return_due, created_at, updated_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Address,
		&c.OpeningBalance, &c.SalesDue, &c.SalesReturnDue, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	customer.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET name = $2, phone = $3, address = $4, updated_at = $5
		WHERE id = $1
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone), customer.Address, customer.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "customers", id)
}

func (s *Store) CustomerDropdown(ctx context.Context) ([]domain.PartyOption, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, sales_due
		FROM customers
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	options := make([]domain.PartyOption, 0, 64)
	for rows.Next() {
		var opt domain.PartyOption
		if err := rows.Scan(&opt.ID, &opt.Name, &opt.Due); err != nil {
			return nil, err
		}
		options = append(options, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return options, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	supplier.Phone = strings.TrimSpace(supplier.Phone)
	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if supplier.ID == "" {
		supplier.ID = oid.New()
	}
	now := time.Now().UTC()
	supplier.CreatedAt = now
	supplier.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (
			id, name, phone, address, opening_balance, purchase_due, purchase_return_due, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, supplier.ID, supplier.Name, nullIfEmpty(supplier.Phone), supplier.Address,
		supplier.OpeningBalance, supplier.PurchaseDue, supplier.PurchaseReturnDue,
		supplier.CreatedAt, supplier.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	saved := supplier
	return &saved, nil
}

func (s *Store) ListSuppliers(ctx context.Context, query domain.ListQuery) ([]domain.Supplier, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)::bigint FROM suppliers`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone,''), COALESCE(address,''),
			opening_balance, purchase_due, purchase_return_due, created_at, updated_at
		FROM suppliers
		ORDER BY created_at ASC, id ASC
		LIMIT $1 OFFSET $2
	`, query.PageLimit(), query.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, query.PageLimit())
	for rows.Next() {
		var sup domain.Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.Phone, &sup.Address,
			&sup.OpeningBalance, &sup.PurchaseDue, &sup.PurchaseReturnDue, &sup.CreatedAt, &sup.UpdatedAt); err != nil {
			return nil, 0, err
		}
		sup.CreatedAt = sup.CreatedAt.UTC()
		sup.UpdatedAt = sup.UpdatedAt.UTC()
		suppliers = append(suppliers, sup)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return suppliers, total, nil
}

func (s *Store) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	var sup domain.Supplier
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone,''), COALESCE(address,''),
			opening_balance, purchase_due, purchase_return_due, created_at, updated_at
		FROM suppliers
		WHERE id = $1
	`, id).Scan(&sup.ID, &sup.Name, &sup.Phone, &sup.Address,
		&sup.OpeningBalance, &sup.PurchaseDue, &sup.PurchaseReturnDue, &sup.CreatedAt, &sup.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sup.CreatedAt = sup.CreatedAt.UTC()
	sup.UpdatedAt = sup.UpdatedAt.UTC()
	return &sup, nil
}

func (s *Store) UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	supplier.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE suppliers
		SET name = $2, phone = $3, address = $4, updated_at = $5
		WHERE id = $1
	`, supplier.ID, supplier.Name, nullIfEmpty(supplier.Phone), supplier.Address, supplier.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := supplier
	return &updated, nil
}

func (s *Store) DeleteSupplier(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "suppliers", id)
}

func (s *Store) SupplierDropdown(ctx context.Context) ([]domain.PartyOption, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, purchase_due
		FROM suppliers
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	options := make([]domain.PartyOption, 0, 32)
	for rows.Next() {
		var opt domain.PartyOption
		if err := rows.Scan(&opt.ID, &opt.Name, &opt.Due); err != nil {
			return nil, err
		}
		options = append(options, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return options, nil
}

func (s *Store) deleteByID(ctx context.Context, table string, id string) error {
	switch table {
	case "branches", "brands", "categories", "tax_rates", "expense_categories", "products", "customers", "suppliers":
	default:
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTimePtr(val *time.Time) any {
	if val == nil {
		return nil
	}
	return val.UTC()
}
