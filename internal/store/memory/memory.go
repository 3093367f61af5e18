// Package memory is an in-memory Repository used for dev mode and as the
// test double behind the service tests. Semantics mirror the postgres store,
// including the single-transaction balance payment application (here a
// single critical section).
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"stocklane/backend/internal/domain"
	"stocklane/backend/internal/oid"
	"stocklane/backend/internal/store"
)

// Seed identifiers, fixed so tests can reference the seeded rows.
const (
	SeedBranchID          = "b0a1b2c3d4e5f60718290001"
	SeedBrandID           = "b0a1b2c3d4e5f60718290002"
	SeedCategoryID        = "b0a1b2c3d4e5f60718290003"
	SeedTaxRateID         = "b0a1b2c3d4e5f60718290004"
	SeedExpenseCategoryID = "b0a1b2c3d4e5f60718290005"
	SeedProductID         = "b0a1b2c3d4e5f60718290006"
	SeedCustomerID        = "b0a1b2c3d4e5f60718290007"
	SeedSupplierID        = "b0a1b2c3d4e5f60718290008"
)

type Store struct {
	mu                sync.RWMutex
	branches          map[string]domain.Branch
	brands            map[string]domain.Brand
	categories        map[string]domain.Category
	taxRates          map[string]domain.TaxRate
	expenseCategories map[string]domain.ExpenseCategory
	products          map[string]domain.Product
	customers         map[string]domain.Customer
	suppliers         map[string]domain.Supplier
	purchases         map[string]domain.Purchase
	sales             map[string]domain.Sale
	purchaseReturns   map[string]domain.PurchaseReturn
	salesReturns      map[string]domain.SalesReturn
	payments          map[string]domain.BalancePayment
	expenses          map[string]domain.Expense
	users             map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		branches:          map[string]domain.Branch{},
		brands:            map[string]domain.Brand{},
		categories:        map[string]domain.Category{},
		taxRates:          map[string]domain.TaxRate{},
		expenseCategories: map[string]domain.ExpenseCategory{},
		products:          map[string]domain.Product{},
		customers:         map[string]domain.Customer{},
		suppliers:         map[string]domain.Supplier{},
		purchases:         map[string]domain.Purchase{},
		sales:             map[string]domain.Sale{},
		purchaseReturns:   map[string]domain.PurchaseReturn{},
		salesReturns:      map[string]domain.SalesReturn{},
		payments:          map[string]domain.BalancePayment{},
		expenses:          map[string]domain.Expense{},
		users:             map[string]domain.UserAccount{},
	}
}

// NewSeeded returns a store pre-populated with one of each lookup entity, a
// product, a customer, a supplier, and the two dev user accounts.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	s.branches[SeedBranchID] = domain.Branch{ID: SeedBranchID, Name: "Main Branch", Address: "Jl. Merdeka 1", CreatedAt: now, UpdatedAt: now}
	s.brands[SeedBrandID] = domain.Brand{ID: SeedBrandID, Name: "Generic", CreatedAt: now, UpdatedAt: now}
	s.categories[SeedCategoryID] = domain.Category{ID: SeedCategoryID, Name: "Grocery", CreatedAt: now, UpdatedAt: now}
	s.taxRates[SeedTaxRateID] = domain.TaxRate{ID: SeedTaxRateID, Name: "VAT 11%", Rate: decimal.NewFromInt(11), CreatedAt: now, UpdatedAt: now}
	s.expenseCategories[SeedExpenseCategoryID] = domain.ExpenseCategory{ID: SeedExpenseCategoryID, Name: "Utilities", CreatedAt: now, UpdatedAt: now}
	s.products[SeedProductID] = domain.Product{
		ID:           SeedProductID,
		Name:         "Rice 5kg",
		SKU:          "SKU-RICE-05",
		BranchID:     SeedBranchID,
		BrandID:      SeedBrandID,
		CategoryID:   SeedCategoryID,
		TaxRateID:    SeedTaxRateID,
		Stock:        50,
		ExcTax:       decimal.NewFromInt(60),
		IncTax:       decimal.RequireFromString("66.6"),
		SellingPrice: decimal.NewFromInt(75),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.customers[SeedCustomerID] = domain.Customer{ID: SeedCustomerID, Name: "Walk-in Customer", CreatedAt: now, UpdatedAt: now}
	s.suppliers[SeedSupplierID] = domain.Supplier{ID: SeedSupplierID, Name: "PT Sumber Pangan", CreatedAt: now, UpdatedAt: now}

	for _, u := range []struct {
		username string
		password string
		role     string
		branch   string
	}{
		{"admin", "admin123", domain.RoleAdmin, ""},
		{"staff", "staff123", domain.RoleStaff, SeedBranchID},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			continue
		}
		s.users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Branch:    u.branch,
			Active:    true,
			CreatedAt: now,
		}
	}
	return s
}

// ---- branches -------------------------------------------------------------

func (s *Store) CreateBranch(_ context.Context, branch domain.Branch) (*domain.Branch, error) {
	if strings.TrimSpace(branch.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	branch = stampNew(branch.ID, func(id string, now time.Time) domain.Branch {
		branch.ID = id
		branch.CreatedAt = now
		branch.UpdatedAt = now
		return branch
	})
	s.branches[branch.ID] = branch
	return &branch, nil
}

func (s *Store) ListBranches(_ context.Context) ([]domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Branch, 0, len(s.branches))
	for _, b := range s.branches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return byAge(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out, nil
}

func (s *Store) UpdateBranch(_ context.Context, branch domain.Branch) (*domain.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.branches[branch.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	branch.CreatedAt = existing.CreatedAt
	branch.UpdatedAt = time.Now().UTC()
	s.branches[branch.ID] = branch
	return &branch, nil
}

func (s *Store) DeleteBranch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.branches[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.branches, id)
	return nil
}

// ---- brands ---------------------------------------------------------------

func (s *Store) CreateBrand(_ context.Context, brand domain.Brand) (*domain.Brand, error) {
	if strings.TrimSpace(brand.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	brand = stampNew(brand.ID, func(id string, now time.Time) domain.Brand {
		brand.ID = id
		brand.CreatedAt = now
		brand.UpdatedAt = now
		return brand
	})
	s.brands[brand.ID] = brand
	return &brand, nil
}

func (s *Store) ListBrands(_ context.Context) ([]domain.Brand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Brand, 0, len(s.brands))
	for _, b := range s.brands {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return byAge(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out, nil
}

func (s *Store) UpdateBrand(_ context.Context, brand domain.Brand) (*domain.Brand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.brands[brand.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	brand.CreatedAt = existing.CreatedAt
	brand.UpdatedAt = time.Now().UTC()
	s.brands[brand.ID] = brand
	return &brand, nil
}

func (s *Store) DeleteBrand(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.brands[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.brands, id)
	return nil
}

// ---- categories -----------------------------------------------------------

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	category = stampNew(category.ID, func(id string, now time.Time) domain.Category {
		category.ID = id
		category.CreatedAt = now
		category.UpdatedAt = now
		return category
	})
	s.categories[category.ID] = category
	return &category, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return byAge(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out, nil
}

func (s *Store) UpdateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.categories[category.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	category.CreatedAt = existing.CreatedAt
	category.UpdatedAt = time.Now().UTC()
	s.categories[category.ID] = category
	return &category, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.categories, id)
	return nil
}

// ---- tax rates ------------------------------------------------------------

func (s *Store) CreateTaxRate(_ context.Context, rate domain.TaxRate) (*domain.TaxRate, error) {
	if strings.TrimSpace(rate.Name) == "" || rate.Rate.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rate = stampNew(rate.ID, func(id string, now time.Time) domain.TaxRate {
		rate.ID = id
		rate.CreatedAt = now
		rate.UpdatedAt = now
		return rate
	})
	s.taxRates[rate.ID] = rate
	return &rate, nil
}

func (s *Store) ListTaxRates(_ context.Context) ([]domain.TaxRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TaxRate, 0, len(s.taxRates))
	for _, r := range s.taxRates {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return byAge(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out, nil
}

func (s *Store) UpdateTaxRate(_ context.Context, rate domain.TaxRate) (*domain.TaxRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.taxRates[rate.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if rate.Rate.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	rate.CreatedAt = existing.CreatedAt
	rate.UpdatedAt = time.Now().UTC()
	s.taxRates[rate.ID] = rate
	return &rate, nil
}

func (s *Store) DeleteTaxRate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.taxRates[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.taxRates, id)
	return nil
}

// ---- expense categories ---------------------------------------------------

func (s *Store) CreateExpenseCategory(_ context.Context, category domain.ExpenseCategory) (*domain.ExpenseCategory, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	category = stampNew(category.ID, func(id string, now time.Time) domain.ExpenseCategory {
		category.ID = id
		category.CreatedAt = now
		category.UpdatedAt = now
		return category
	})
	s.expenseCategories[category.ID] = category
	return &category, nil
}

func (s *Store) ListExpenseCategories(_ context.Context) ([]domain.ExpenseCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ExpenseCategory, 0, len(s.expenseCategories))
	for _, c := range s.expenseCategories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return byAge(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out, nil
}

func (s *Store) UpdateExpenseCategory(_ context.Context, category domain.ExpenseCategory) (*domain.ExpenseCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.expenseCategories[category.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	category.CreatedAt = existing.CreatedAt
	category.UpdatedAt = time.Now().UTC()
	s.expenseCategories[category.ID] = category
	return &category, nil
}

func (s *Store) DeleteExpenseCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenseCategories[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.expenseCategories, id)
	return nil
}

// ---- products -------------------------------------------------------------

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.branches[product.BranchID]; !ok {
		return nil, store.ErrInvalidInput
	}
	product = stampNew(product.ID, func(id string, now time.Time) domain.Product {
		product.ID = id
		product.CreatedAt = now
		product.UpdatedAt = now
		return product
	})
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) ListProducts(_ context.Context, query domain.ListQuery) ([]domain.Product, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if query.BranchID != "" && p.BranchID != query.BranchID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return byAge(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	page, total := paginate(out, query)
	return page, total, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) ProductDropdown(_ context.Context, branchID string) ([]domain.ProductOption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ProductOption, 0, len(s.products))
	for _, p := range s.products {
		if branchID != "" && p.BranchID != branchID {
			continue
		}
		out = append(out, domain.ProductOption{ID: p.ID, Name: p.Name, Stock: p.Stock, SellingPrice: p.SellingPrice})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ---- customers ------------------------------------------------------------

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	customer = stampNew(customer.ID, func(id string, now time.Time) domain.Customer {
		customer.ID = id
		customer.CreatedAt = now
		customer.UpdatedAt = now
		return customer
	})
	s.customers[customer.ID] = customer
	return &customer, nil
}

func (s *Store) ListCustomers(_ context.Context, query domain.ListQuery) ([]domain.Customer, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return byAge(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	page, total := paginate(out, query)
	return page, total, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.customers[customer.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	customer.CreatedAt = existing.CreatedAt
	customer.UpdatedAt = time.Now().UTC()
	s.customers[customer.ID] = customer
	return &customer, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.customers, id)
	return nil
}

func (s *Store) CustomerDropdown(_ context.Context) ([]domain.PartyOption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PartyOption, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, domain.PartyOption{ID: c.ID, Name: c.Name, Due: c.SalesDue})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ---- suppliers ------------------------------------------------------------

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if strings.TrimSpace(supplier.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	supplier = stampNew(supplier.ID, func(id string, now time.Time) domain.Supplier {
		supplier.ID = id
		supplier.CreatedAt = now
		supplier.UpdatedAt = now
		return supplier
	})
	s.suppliers[supplier.ID] = supplier
	return &supplier, nil
}

func (s *Store) ListSuppliers(_ context.Context, query domain.ListQuery) ([]domain.Supplier, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		out = append(out, sup)
	}
	sort.Slice(out, func(i, j int) bool { return byAge(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	page, total := paginate(out, query)
	return page, total, nil
}

func (s *Store) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sup, ok := s.suppliers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sup, nil
}

func (s *Store) UpdateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.suppliers[supplier.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	supplier.CreatedAt = existing.CreatedAt
	supplier.UpdatedAt = time.Now().UTC()
	s.suppliers[supplier.ID] = supplier
	return &supplier, nil
}

func (s *Store) DeleteSupplier(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.suppliers[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.suppliers, id)
	return nil
}

func (s *Store) SupplierDropdown(_ context.Context) ([]domain.PartyOption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PartyOption, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		out = append(out, domain.PartyOption{ID: sup.ID, Name: sup.Name, Due: sup.PurchaseDue})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ---- purchases ------------------------------------------------------------

func (s *Store) CreatePurchase(_ context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if len(purchase.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier, ok := s.suppliers[purchase.SupplierID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, item := range purchase.Items {
		if _, ok := s.products[item.ProductID]; !ok {
			return nil, store.ErrNotFound
		}
	}

	purchase = stampNew(purchase.ID, func(id string, now time.Time) domain.Purchase {
		purchase.ID = id
		purchase.CreatedAt = now
		purchase.UpdatedAt = now
		return purchase
	})

	for _, item := range purchase.Items {
		p := s.products[item.ProductID]
		p.Stock += item.Qty
		p.UpdatedAt = time.Now().UTC()
		s.products[item.ProductID] = p
	}
	supplier.PurchaseDue = supplier.PurchaseDue.Add(purchase.DueAmount)
	supplier.UpdatedAt = time.Now().UTC()
	s.suppliers[supplier.ID] = supplier

	s.purchases[purchase.ID] = purchase
	return &purchase, nil
}

func (s *Store) ListPurchases(_ context.Context, query domain.ListQuery) ([]domain.Purchase, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Purchase, 0, len(s.purchases))
	for _, p := range s.purchases {
		if query.BranchID != "" && p.BranchID != query.BranchID {
			continue
		}
		if query.PartyID != "" && p.SupplierID != query.PartyID {
			continue
		}
		if !inRange(p.Date, query.From, query.To) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return byAge(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	page, total := paginate(out, query)
	return page, total, nil
}

func (s *Store) GetPurchase(_ context.Context, id string) (*domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.purchases[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) DeletePurchase(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.purchases[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.purchases, id)
	return nil
}

func (s *Store) ListOpenPurchases(_ context.Context, supplierID string) ([]domain.OpenBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.OpenBalance, 0, 8)
	for _, p := range s.purchases {
		if p.SupplierID != supplierID || !p.DueAmount.IsPositive() {
			continue
		}
		out = append(out, domain.OpenBalance{ID: p.ID, DueAmount: p.DueAmount, CreatedAt: p.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return byAge(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out, nil
}

// ---- sales ----------------------------------------------------------------

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customers[sale.CustomerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, item := range sale.Items {
		p, ok := s.products[item.ProductID]
		if !ok {
			return nil, store.ErrNotFound
		}
		if p.Stock < item.Qty {
			return nil, store.ErrConflict
		}
	}

	sale = stampNew(sale.ID, func(id string, now time.Time) domain.Sale {
		sale.ID = id
		sale.CreatedAt = now
		sale.UpdatedAt = now
		return sale
	})

	for _, item := range sale.Items {
		p := s.products[item.ProductID]
		p.Stock -= item.Qty
		p.UpdatedAt = time.Now().UTC()
		s.products[item.ProductID] = p
	}
	customer.SalesDue = customer.SalesDue.Add(sale.DueAmount)
	customer.UpdatedAt = time.Now().UTC()
	s.customers[customer.ID] = customer

	s.sales[sale.ID] = sale
	return &sale, nil
}

func (s *Store) ListSales(_ context.Context, query domain.ListQuery) ([]domain.Sale, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Sale, 0, len(s.sales))
	for _, sl := range s.sales {
		if query.BranchID != "" && sl.BranchID != query.BranchID {
			continue
		}
		if query.PartyID != "" && sl.CustomerID != query.PartyID {
			continue
		}
		if !inRange(sl.Date, query.From, query.To) {
			continue
		}
		out = append(out, sl)
	}
	sort.Slice(out, func(i, j int) bool { return byAge(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	page, total := paginate(out, query)
	return page, total, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sl, nil
}

func (s *Store) DeleteSale(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sales[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.sales, id)
	return nil
}

func (s *Store) ListOpenSales(_ context.Context, customerID string) ([]domain.OpenBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.OpenBalance, 0, 8)
	for _, sl := range s.sales {
		if sl.CustomerID != customerID || !sl.DueAmount.IsPositive() {
			continue
		}
		out = append(out, domain.OpenBalance{ID: sl.ID, DueAmount: sl.DueAmount, CreatedAt: sl.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return byAge(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out, nil
}

// ---- returns --------------------------------------------------------------

func (s *Store) CreatePurchaseReturn(_ context.Context, ret domain.PurchaseReturn) (*domain.PurchaseReturn, error) {
	if len(ret.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier, ok := s.suppliers[ret.SupplierID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, item := range ret.Items {
		p, ok := s.products[item.ProductID]
		if !ok {
			return nil, store.ErrNotFound
		}
		if p.Stock < item.Qty {
			return nil, store.ErrConflict
		}
	}

	ret = stampNew(ret.ID, func(id string, now time.Time) domain.PurchaseReturn {
		ret.ID = id
		ret.CreatedAt = now
		return ret
	})

	for _, item := range ret.Items {
		p := s.products[item.ProductID]
		p.Stock -= item.Qty
		p.UpdatedAt = time.Now().UTC()
		s.products[item.ProductID] = p
	}
	supplier.PurchaseReturnDue = supplier.PurchaseReturnDue.Add(ret.GrandTotal)
	supplier.UpdatedAt = time.Now().UTC()
	s.suppliers[supplier.ID] = supplier

	s.purchaseReturns[ret.ID] = ret
	return &ret, nil
}

func (s *Store) ListPurchaseReturns(_ context.Context, query domain.ListQuery) ([]domain.PurchaseReturn, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PurchaseReturn, 0, len(s.purchaseReturns))
	for _, r := range s.purchaseReturns {
		if query.BranchID != "" && r.BranchID != query.BranchID {
			continue
		}
		if !inRange(r.Date, query.From, query.To) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return byAge(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	page, total := paginate(out, query)
	return page, total, nil
}

func (s *Store) CreateSalesReturn(_ context.Context, ret domain.SalesReturn) (*domain.SalesReturn, error) {
	if len(ret.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customers[ret.CustomerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, item := range ret.Items {
		if _, ok := s.products[item.ProductID]; !ok {
			return nil, store.ErrNotFound
		}
	}

	ret = stampNew(ret.ID, func(id string, now time.Time) domain.SalesReturn {
		ret.ID = id
		ret.CreatedAt = now
		return ret
	})

	for _, item := range ret.Items {
		p := s.products[item.ProductID]
		p.Stock += item.Qty
		p.UpdatedAt = time.Now().UTC()
		s.products[item.ProductID] = p
	}
	customer.SalesReturnDue = customer.SalesReturnDue.Add(ret.GrandTotal)
	customer.UpdatedAt = time.Now().UTC()
	s.customers[customer.ID] = customer

	s.salesReturns[ret.ID] = ret
	return &ret, nil
}

func (s *Store) ListSalesReturns(_ context.Context, query domain.ListQuery) ([]domain.SalesReturn, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SalesReturn, 0, len(s.salesReturns))
	for _, r := range s.salesReturns {
		if query.BranchID != "" && r.BranchID != query.BranchID {
			continue
		}
		if !inRange(r.Date, query.From, query.To) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return byAge(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	page, total := paginate(out, query)
	return page, total, nil
}

// ---- balance payments -----------------------------------------------------

func (s *Store) CreateBalancePayment(_ context.Context, payment domain.BalancePayment, delta store.BalanceDelta, allocations []domain.PaymentAllocation) (*domain.BalancePayment, error) {
	if !payment.Amount.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch payment.Party.Kind {
	case domain.PartySupplier:
		supplier, ok := s.suppliers[payment.Party.ID]
		if !ok {
			return nil, store.ErrNotFound
		}
		for _, alloc := range allocations {
			p, ok := s.purchases[alloc.TransactionID]
			if !ok {
				return nil, store.ErrNotFound
			}
			if p.DueAmount.Cmp(alloc.Amount) < 0 {
				return nil, store.ErrConflict
			}
		}
		supplier.OpeningBalance = supplier.OpeningBalance.Add(delta.Opening)
		supplier.PurchaseDue = supplier.PurchaseDue.Add(delta.Due)
		supplier.PurchaseReturnDue = supplier.PurchaseReturnDue.Add(delta.ReturnDue)
		supplier.UpdatedAt = time.Now().UTC()
		s.suppliers[supplier.ID] = supplier
		for _, alloc := range allocations {
			p := s.purchases[alloc.TransactionID]
			p.DueAmount = p.DueAmount.Sub(alloc.Amount)
			p.PaidAmount = p.PaidAmount.Add(alloc.Amount)
			p.UpdatedAt = time.Now().UTC()
			s.purchases[p.ID] = p
		}
	case domain.PartyCustomer:
		customer, ok := s.customers[payment.Party.ID]
		if !ok {
			return nil, store.ErrNotFound
		}
		for _, alloc := range allocations {
			sl, ok := s.sales[alloc.TransactionID]
			if !ok {
				return nil, store.ErrNotFound
			}
			if sl.DueAmount.Cmp(alloc.Amount) < 0 {
				return nil, store.ErrConflict
			}
		}
		customer.OpeningBalance = customer.OpeningBalance.Add(delta.Opening)
		customer.SalesDue = customer.SalesDue.Add(delta.Due)
		customer.SalesReturnDue = customer.SalesReturnDue.Add(delta.ReturnDue)
		customer.UpdatedAt = time.Now().UTC()
		s.customers[customer.ID] = customer
		for _, alloc := range allocations {
			sl := s.sales[alloc.TransactionID]
			sl.DueAmount = sl.DueAmount.Sub(alloc.Amount)
			sl.PaidAmount = sl.PaidAmount.Add(alloc.Amount)
			sl.UpdatedAt = time.Now().UTC()
			s.sales[sl.ID] = sl
		}
	default:
		return nil, store.ErrInvalidInput
	}

	payment = stampNew(payment.ID, func(id string, now time.Time) domain.BalancePayment {
		payment.ID = id
		payment.CreatedAt = now
		return payment
	})
	s.payments[payment.ID] = payment
	return &payment, nil
}

func (s *Store) ListBalancePayments(_ context.Context, query domain.ListQuery) ([]domain.BalancePayment, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.BalancePayment, 0, len(s.payments))
	for _, p := range s.payments {
		if query.PartyID != "" && p.Party.ID != query.PartyID {
			continue
		}
		if !inRange(p.Date, query.From, query.To) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return byAge(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	page, total := paginate(out, query)
	return page, total, nil
}

// ---- expenses -------------------------------------------------------------

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	if !expense.Amount.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenseCategories[expense.CategoryID]; !ok {
		return nil, store.ErrNotFound
	}
	expense = stampNew(expense.ID, func(id string, now time.Time) domain.Expense {
		expense.ID = id
		expense.CreatedAt = now
		expense.UpdatedAt = now
		return expense
	})
	s.expenses[expense.ID] = expense
	return &expense, nil
}

func (s *Store) GetExpense(_ context.Context, id string) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.expenses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

func (s *Store) ListExpenses(_ context.Context, query domain.ListQuery) ([]domain.Expense, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Expense, 0, len(s.expenses))
	for _, e := range s.expenses {
		if !inRange(e.Date, query.From, query.To) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return byAge(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	page, total := paginate(out, query)
	return page, total, nil
}

func (s *Store) UpdateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.expenses[expense.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !expense.Amount.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	expense.CreatedAt = existing.CreatedAt
	expense.UpdatedAt = time.Now().UTC()
	s.expenses[expense.ID] = expense
	return &expense, nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.expenses, id)
	return nil
}

// ---- report inputs --------------------------------------------------------

func (s *Store) DashboardStats(_ context.Context, branchID string) (domain.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.DashboardStats{
		Customers: int64(len(s.customers)),
		Suppliers: int64(len(s.suppliers)),
	}
	for _, p := range s.products {
		if branchID != "" && p.BranchID != branchID {
			continue
		}
		stats.Products++
	}
	for _, sl := range s.sales {
		if branchID != "" && sl.BranchID != branchID {
			continue
		}
		stats.TotalSales = stats.TotalSales.Add(sl.GrandTotal)
	}
	for _, p := range s.purchases {
		if branchID != "" && p.BranchID != branchID {
			continue
		}
		stats.TotalPurchases = stats.TotalPurchases.Add(p.GrandTotal)
	}
	for _, e := range s.expenses {
		stats.TotalExpenses = stats.TotalExpenses.Add(e.Amount)
	}
	for _, c := range s.customers {
		stats.SalesDue = stats.SalesDue.Add(c.SalesDue)
	}
	for _, sup := range s.suppliers {
		stats.PurchaseDue = stats.PurchaseDue.Add(sup.PurchaseDue)
	}
	return stats, nil
}

func (s *Store) MonthlyTotals(_ context.Context, year int, branchID string) ([]domain.MonthlyTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make([]domain.MonthlyTotal, 12)
	for i := range totals {
		totals[i].Month = i + 1
	}
	for _, sl := range s.sales {
		if sl.Date.UTC().Year() != year {
			continue
		}
		if branchID != "" && sl.BranchID != branchID {
			continue
		}
		m := int(sl.Date.UTC().Month()) - 1
		totals[m].Sales = totals[m].Sales.Add(sl.GrandTotal)
	}
	for _, p := range s.purchases {
		if p.Date.UTC().Year() != year {
			continue
		}
		if branchID != "" && p.BranchID != branchID {
			continue
		}
		m := int(p.Date.UTC().Month()) - 1
		totals[m].Purchases = totals[m].Purchases.Add(p.GrandTotal)
	}
	return totals, nil
}

func (s *Store) StockProductRows(_ context.Context, branchID string) ([]domain.StockProductRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.StockProductRow, 0, len(s.products))
	for _, p := range s.products {
		if branchID != "" && p.BranchID != branchID {
			continue
		}
		row := domain.StockProductRow{
			ProductID:    p.ID,
			Name:         p.Name,
			Stock:        p.Stock,
			ExcTax:       p.ExcTax,
			SellingPrice: p.SellingPrice,
		}
		if b, ok := s.brands[p.BrandID]; ok {
			row.BrandName = b.Name
		}
		if c, ok := s.categories[p.CategoryID]; ok {
			row.CategoryName = c.Name
		}
		if b, ok := s.branches[p.BranchID]; ok {
			row.BranchName = b.Name
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) SoldQtyByProduct(_ context.Context, branchID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sums := map[string]int{}
	for _, sl := range s.sales {
		if branchID != "" && sl.BranchID != branchID {
			continue
		}
		for _, item := range sl.Items {
			sums[item.ProductID] += item.Qty
		}
	}
	return sums, nil
}

func (s *Store) ReturnedQtyByProduct(_ context.Context, branchID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sums := map[string]int{}
	for _, r := range s.salesReturns {
		if branchID != "" && r.BranchID != branchID {
			continue
		}
		for _, item := range r.Items {
			sums[item.ProductID] += item.Qty
		}
	}
	return sums, nil
}

func (s *Store) TradeTotals(_ context.Context, from, to time.Time) (domain.TradeTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var totals domain.TradeTotals
	fromPtr, toPtr := &from, &to
	for _, sl := range s.sales {
		if inRange(sl.Date, fromPtr, toPtr) {
			totals.Sales = totals.Sales.Add(sl.GrandTotal)
		}
	}
	for _, r := range s.salesReturns {
		if inRange(r.Date, fromPtr, toPtr) {
			totals.SalesReturns = totals.SalesReturns.Add(r.GrandTotal)
		}
	}
	for _, p := range s.purchases {
		if inRange(p.Date, fromPtr, toPtr) {
			totals.Purchases = totals.Purchases.Add(p.GrandTotal)
		}
	}
	for _, r := range s.purchaseReturns {
		if inRange(r.Date, fromPtr, toPtr) {
			totals.PurchaseReturns = totals.PurchaseReturns.Add(r.GrandTotal)
		}
	}
	for _, e := range s.expenses {
		if inRange(e.Date, fromPtr, toPtr) {
			totals.Expenses = totals.Expenses.Add(e.Amount)
		}
	}
	return totals, nil
}

// ---- auth accounts --------------------------------------------------------

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	s.users[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}

// ---- helpers --------------------------------------------------------------

// stampNew assigns a fresh id and creation timestamps via fill unless the
// caller already supplied an id (integration fixtures do).
func stampNew[T any](existingID string, fill func(id string, now time.Time) T) T {
	id := existingID
	if id == "" {
		id = oid.New()
	}
	return fill(id, time.Now().UTC())
}

func byAge(t1 time.Time, id1 string, t2 time.Time, id2 string) bool {
	if t1.Equal(t2) {
		return id1 < id2
	}
	return t1.Before(t2)
}

func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}

func paginate[T any](items []T, query domain.ListQuery) ([]T, int64) {
	total := int64(len(items))
	offset := query.Offset()
	if offset >= len(items) {
		return []T{}, total
	}
	end := offset + query.PageLimit()
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end], total
}
