package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"stocklane/backend/internal/domain"
)

// Closed error kinds every repository implementation maps its failures to.
// Handlers translate these to HTTP statuses; anything else is a store
// failure surfaced as a generic envelope.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)

// BalanceDelta carries signed adjustments applied atomically to a party's
// aggregate balance fields. Zero-value fields leave the column untouched.
type BalanceDelta struct {
	Opening   decimal.Decimal
	Due       decimal.Decimal
	ReturnDue decimal.Decimal
}

type Repository interface {
	// Branches
	CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error)
	ListBranches(ctx context.Context) ([]domain.Branch, error)
	UpdateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error)
	DeleteBranch(ctx context.Context, id string) error

	// Brands
	CreateBrand(ctx context.Context, brand domain.Brand) (*domain.Brand, error)
	ListBrands(ctx context.Context) ([]domain.Brand, error)
	UpdateBrand(ctx context.Context, brand domain.Brand) (*domain.Brand, error)
	DeleteBrand(ctx context.Context, id string) error

	// Categories
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	// Tax rates
	CreateTaxRate(ctx context.Context, rate domain.TaxRate) (*domain.TaxRate, error)
	ListTaxRates(ctx context.Context) ([]domain.TaxRate, error)
	UpdateTaxRate(ctx context.Context, rate domain.TaxRate) (*domain.TaxRate, error)
	DeleteTaxRate(ctx context.Context, id string) error

	// Expense categories
	CreateExpenseCategory(ctx context.Context, category domain.ExpenseCategory) (*domain.ExpenseCategory, error)
	ListExpenseCategories(ctx context.Context) ([]domain.ExpenseCategory, error)
	UpdateExpenseCategory(ctx context.Context, category domain.ExpenseCategory) (*domain.ExpenseCategory, error)
	DeleteExpenseCategory(ctx context.Context, id string) error

	// Products
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListProducts(ctx context.Context, query domain.ListQuery) ([]domain.Product, int64, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	ProductDropdown(ctx context.Context, branchID string) ([]domain.ProductOption, error)

	// Customers
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	ListCustomers(ctx context.Context, query domain.ListQuery) ([]domain.Customer, int64, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
	CustomerDropdown(ctx context.Context) ([]domain.PartyOption, error)

	// Suppliers
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context, query domain.ListQuery) ([]domain.Supplier, int64, error)
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	DeleteSupplier(ctx context.Context, id string) error
	SupplierDropdown(ctx context.Context) ([]domain.PartyOption, error)

	// Purchases. CreatePurchase also increments product stock and the
	// supplier's purchase due inside one transaction.
	CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error)
	ListPurchases(ctx context.Context, query domain.ListQuery) ([]domain.Purchase, int64, error)
	GetPurchase(ctx context.Context, id string) (*domain.Purchase, error)
	DeletePurchase(ctx context.Context, id string) error
	// ListOpenPurchases returns purchases with due > 0 for the supplier,
	// oldest first. The allocator depends on that ordering.
	ListOpenPurchases(ctx context.Context, supplierID string) ([]domain.OpenBalance, error)

	// Sales. CreateSale decrements stock and increments the customer's
	// sales due inside one transaction.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	ListSales(ctx context.Context, query domain.ListQuery) ([]domain.Sale, int64, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id string) error
	ListOpenSales(ctx context.Context, customerID string) ([]domain.OpenBalance, error)

	// Returns
	CreatePurchaseReturn(ctx context.Context, ret domain.PurchaseReturn) (*domain.PurchaseReturn, error)
	ListPurchaseReturns(ctx context.Context, query domain.ListQuery) ([]domain.PurchaseReturn, int64, error)
	CreateSalesReturn(ctx context.Context, ret domain.SalesReturn) (*domain.SalesReturn, error)
	ListSalesReturns(ctx context.Context, query domain.ListQuery) ([]domain.SalesReturn, int64, error)

	// Balance payments. CreateBalancePayment persists the payment, adjusts
	// the party's aggregate balances, and applies every allocation in a
	// single transaction; an allocation that would drive a due below zero
	// aborts the whole operation with ErrConflict.
	CreateBalancePayment(ctx context.Context, payment domain.BalancePayment, delta BalanceDelta, allocations []domain.PaymentAllocation) (*domain.BalancePayment, error)
	ListBalancePayments(ctx context.Context, query domain.ListQuery) ([]domain.BalancePayment, int64, error)

	// Expenses
	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	GetExpense(ctx context.Context, id string) (*domain.Expense, error)
	ListExpenses(ctx context.Context, query domain.ListQuery) ([]domain.Expense, int64, error)
	UpdateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, id string) error

	// Report inputs
	DashboardStats(ctx context.Context, branchID string) (domain.DashboardStats, error)
	MonthlyTotals(ctx context.Context, year int, branchID string) ([]domain.MonthlyTotal, error)
	StockProductRows(ctx context.Context, branchID string) ([]domain.StockProductRow, error)
	SoldQtyByProduct(ctx context.Context, branchID string) (map[string]int, error)
	ReturnedQtyByProduct(ctx context.Context, branchID string) (map[string]int, error)
	TradeTotals(ctx context.Context, from, to time.Time) (domain.TradeTotals, error)

	// Auth accounts
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
