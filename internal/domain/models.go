package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Roles carried in access-token claims. Admin sees every branch; staff is
// scoped to the branch claim on its token.
const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

type Actor struct {
	Username string
	Role     string
	Branch   string
}

// IsAdmin reports whether the actor may read across all branches.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

type Branch struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Brand struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TaxRate struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Rate      decimal.Decimal `json:"rate"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type ExpenseCategory struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Product struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	SKU          string          `json:"sku,omitempty"`
	BranchID     string          `json:"branch_id"`
	BrandID      string          `json:"brand_id"`
	CategoryID   string          `json:"category_id"`
	TaxRateID    string          `json:"tax_rate_id,omitempty"`
	Stock        int             `json:"stock"`
	ExcTax       decimal.Decimal `json:"exc_tax"`
	IncTax       decimal.Decimal `json:"inc_tax"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type Customer struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Phone          string          `json:"phone,omitempty"`
	Address        string          `json:"address,omitempty"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	SalesDue       decimal.Decimal `json:"sales_due"`
	SalesReturnDue decimal.Decimal `json:"sales_return_due"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type Supplier struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Phone             string          `json:"phone,omitempty"`
	Address           string          `json:"address,omitempty"`
	OpeningBalance    decimal.Decimal `json:"opening_balance"`
	PurchaseDue       decimal.Decimal `json:"purchase_due"`
	PurchaseReturnDue decimal.Decimal `json:"purchase_return_due"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// LineItem is one product line on a purchase, sale, or return.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type Purchase struct {
	ID          string          `json:"id"`
	SupplierID  string          `json:"supplier_id"`
	BranchID    string          `json:"branch_id"`
	Date        time.Time       `json:"date"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	GrandTotal  decimal.Decimal `json:"grand_total"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	DueAmount   decimal.Decimal `json:"due_amount"`
	Items       []LineItem      `json:"items"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type Sale struct {
	ID          string          `json:"id"`
	CustomerID  string          `json:"customer_id"`
	BranchID    string          `json:"branch_id"`
	Date        time.Time       `json:"date"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	GrandTotal  decimal.Decimal `json:"grand_total"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	DueAmount   decimal.Decimal `json:"due_amount"`
	Items       []LineItem      `json:"items"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type PurchaseReturn struct {
	ID         string          `json:"id"`
	SupplierID string          `json:"supplier_id"`
	PurchaseID string          `json:"purchase_id,omitempty"`
	BranchID   string          `json:"branch_id"`
	Date       time.Time       `json:"date"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	Items      []LineItem      `json:"items"`
	CreatedAt  time.Time       `json:"created_at"`
}

type SalesReturn struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customer_id"`
	SaleID     string          `json:"sale_id,omitempty"`
	BranchID   string          `json:"branch_id"`
	Date       time.Time       `json:"date"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	Items      []LineItem      `json:"items"`
	CreatedAt  time.Time       `json:"created_at"`
}

// PartyKind discriminates the party a balance payment settles against.
type PartyKind string

const (
	PartyCustomer PartyKind = "customer"
	PartySupplier PartyKind = "supplier"
)

// PartyRef is a tagged reference to exactly one customer or supplier. A
// payment always carries one of these, never two optional ids.
type PartyRef struct {
	Kind PartyKind `json:"kind"`
	ID   string    `json:"id"`
}

type BalancePayment struct {
	ID        string          `json:"id"`
	Party     PartyRef        `json:"party"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Date      time.Time       `json:"date"`
	Note      string          `json:"note,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type Expense struct {
	ID         string          `json:"id"`
	CategoryID string          `json:"category_id"`
	Amount     decimal.Decimal `json:"amount"`
	Date       time.Time       `json:"date"`
	Note       string          `json:"note,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// OpenBalance is the projection of an unpaid purchase or sale the allocator
// walks: id, what is still due, and the creation time that fixes FIFO order.
type OpenBalance struct {
	ID        string
	DueAmount decimal.Decimal
	CreatedAt time.Time
}

// PaymentAllocation is one slice of a payment applied to a single
// transaction's due balance.
type PaymentAllocation struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
}

// ---- request shapes -------------------------------------------------------

type BranchCreateRequest struct {
	Name    string `json:"name" validate:"required"`
	Address string `json:"address"`
}

type BranchUpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	Address *string `json:"address,omitempty"`
}

type BrandCreateRequest struct {
	Name string `json:"name" validate:"required"`
}

type BrandUpdateRequest struct {
	Name *string `json:"name,omitempty"`
}

type CategoryCreateRequest struct {
	Name string `json:"name" validate:"required"`
}

type CategoryUpdateRequest struct {
	Name *string `json:"name,omitempty"`
}

type TaxRateCreateRequest struct {
	Name string          `json:"name" validate:"required"`
	Rate decimal.Decimal `json:"rate"`
}

type TaxRateUpdateRequest struct {
	Name *string          `json:"name,omitempty"`
	Rate *decimal.Decimal `json:"rate,omitempty"`
}

type ExpenseCategoryCreateRequest struct {
	Name string `json:"name" validate:"required"`
}

type ExpenseCategoryUpdateRequest struct {
	Name *string `json:"name,omitempty"`
}

type ProductCreateRequest struct {
	Name         string          `json:"name" validate:"required"`
	SKU          string          `json:"sku"`
	BranchID     string          `json:"branch_id" validate:"required,len=24,hexadecimal"`
	BrandID      string          `json:"brand_id" validate:"required,len=24,hexadecimal"`
	CategoryID   string          `json:"category_id" validate:"required,len=24,hexadecimal"`
	TaxRateID    string          `json:"tax_rate_id" validate:"omitempty,len=24,hexadecimal"`
	Stock        int             `json:"stock" validate:"min=0"`
	ExcTax       decimal.Decimal `json:"exc_tax"`
	IncTax       decimal.Decimal `json:"inc_tax"`
	SellingPrice decimal.Decimal `json:"selling_price"`
}

type ProductUpdateRequest struct {
	Name         *string          `json:"name,omitempty"`
	SKU          *string          `json:"sku,omitempty"`
	BrandID      *string          `json:"brand_id,omitempty"`
	CategoryID   *string          `json:"category_id,omitempty"`
	TaxRateID    *string          `json:"tax_rate_id,omitempty"`
	Stock        *int             `json:"stock,omitempty"`
	ExcTax       *decimal.Decimal `json:"exc_tax,omitempty"`
	IncTax       *decimal.Decimal `json:"inc_tax,omitempty"`
	SellingPrice *decimal.Decimal `json:"selling_price,omitempty"`
}

type CustomerCreateRequest struct {
	Name           string          `json:"name" validate:"required"`
	Phone          string          `json:"phone"`
	Address        string          `json:"address"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

type CustomerUpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
}

type SupplierCreateRequest struct {
	Name           string          `json:"name" validate:"required"`
	Phone          string          `json:"phone"`
	Address        string          `json:"address"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

type SupplierUpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
}

type LineItemRequest struct {
	ProductID string          `json:"product_id" validate:"required,len=24,hexadecimal"`
	Qty       int             `json:"qty" validate:"min=1"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
}

type PurchaseCreateRequest struct {
	SupplierID string            `json:"supplier_id" validate:"required,len=24,hexadecimal"`
	BranchID   string            `json:"branch_id" validate:"required,len=24,hexadecimal"`
	Date       string            `json:"date"`
	PaidAmount decimal.Decimal   `json:"paid_amount"`
	Items      []LineItemRequest `json:"items" validate:"required,min=1,dive"`
}

type SaleCreateRequest struct {
	CustomerID string            `json:"customer_id" validate:"required,len=24,hexadecimal"`
	BranchID   string            `json:"branch_id" validate:"required,len=24,hexadecimal"`
	Date       string            `json:"date"`
	PaidAmount decimal.Decimal   `json:"paid_amount"`
	Items      []LineItemRequest `json:"items" validate:"required,min=1,dive"`
}

type PurchaseReturnCreateRequest struct {
	SupplierID string            `json:"supplier_id" validate:"required,len=24,hexadecimal"`
	PurchaseID string            `json:"purchase_id" validate:"omitempty,len=24,hexadecimal"`
	BranchID   string            `json:"branch_id" validate:"required,len=24,hexadecimal"`
	Date       string            `json:"date"`
	Items      []LineItemRequest `json:"items" validate:"required,min=1,dive"`
}

type SalesReturnCreateRequest struct {
	CustomerID string            `json:"customer_id" validate:"required,len=24,hexadecimal"`
	SaleID     string            `json:"sale_id" validate:"omitempty,len=24,hexadecimal"`
	BranchID   string            `json:"branch_id" validate:"required,len=24,hexadecimal"`
	Date       string            `json:"date"`
	Items      []LineItemRequest `json:"items" validate:"required,min=1,dive"`
}

// BalancePaymentCreateRequest accepts the legacy two-optional-field shape on
// the wire; exactly one of CustomerID/SupplierID must be set, and the service
// folds it into a PartyRef before anything touches the store.
type BalancePaymentCreateRequest struct {
	CustomerID string          `json:"customer_id" validate:"omitempty,len=24,hexadecimal"`
	SupplierID string          `json:"supplier_id" validate:"omitempty,len=24,hexadecimal"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	Date       string          `json:"date"`
	Note       string          `json:"note"`
}

type ExpenseCreateRequest struct {
	CategoryID string          `json:"category_id" validate:"required,len=24,hexadecimal"`
	Amount     decimal.Decimal `json:"amount"`
	Date       string          `json:"date"`
	Note       string          `json:"note"`
}

type ExpenseUpdateRequest struct {
	CategoryID *string          `json:"category_id,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Date       *string          `json:"date,omitempty"`
	Note       *string          `json:"note,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	Branch      string `json:"branch,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Branch   string `json:"branch"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Branch    string    `json:"branch,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is the persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Branch    string
	Active    bool
	CreatedAt time.Time
}

// ---- query shapes ---------------------------------------------------------

// ListQuery carries pagination and the optional filters every listing action
// understands. Zero values mean "default" (page 1, limit 10, no filter).
type ListQuery struct {
	Page     int
	Limit    int
	BranchID string
	PartyID  string
	From     *time.Time
	To       *time.Time
}

// Offset returns the row offset for the query's page/limit.
func (q ListQuery) Offset() int {
	page := q.Page
	if page < 1 {
		page = 1
	}
	return (page - 1) * q.PageLimit()
}

// PageLimit returns the effective page size.
func (q ListQuery) PageLimit() int {
	if q.Limit < 1 {
		return 10
	}
	return q.Limit
}

// Option is the minimal projection dropdown queries return.
type Option struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PartyOption extends Option with the party's outstanding due balance.
type PartyOption struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Due  decimal.Decimal `json:"due"`
}

// ProductOption is the dropdown projection for sale/purchase entry forms.
type ProductOption struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Stock        int             `json:"stock"`
	SellingPrice decimal.Decimal `json:"selling_price"`
}

// ---- report shapes --------------------------------------------------------

type DashboardStats struct {
	Products       int64           `json:"products"`
	Customers      int64           `json:"customers"`
	Suppliers      int64           `json:"suppliers"`
	TotalSales     decimal.Decimal `json:"total_sales"`
	TotalPurchases decimal.Decimal `json:"total_purchases"`
	TotalExpenses  decimal.Decimal `json:"total_expenses"`
	SalesDue       decimal.Decimal `json:"sales_due"`
	PurchaseDue    decimal.Decimal `json:"purchase_due"`
}

type MonthlyTotal struct {
	Month     int             `json:"month"`
	Sales     decimal.Decimal `json:"sales"`
	Purchases decimal.Decimal `json:"purchases"`
}

type MonthlyReport struct {
	Year   int            `json:"year"`
	Totals []MonthlyTotal `json:"totals"`
}

// StockProductRow is the joined product row the stock report is computed
// from: product fields plus resolved brand/category/branch names.
type StockProductRow struct {
	ProductID    string
	Name         string
	BrandName    string
	CategoryName string
	BranchName   string
	Stock        int
	ExcTax       decimal.Decimal
	SellingPrice decimal.Decimal
}

type StockReportRow struct {
	ProductID       string          `json:"product_id"`
	Name            string          `json:"name"`
	BrandName       string          `json:"brand_name"`
	CategoryName    string          `json:"category_name"`
	BranchName      string          `json:"branch_name"`
	Stock           int             `json:"stock"`
	StockValueCost  decimal.Decimal `json:"stock_value_cost"`
	StockValueSale  decimal.Decimal `json:"stock_value_sale"`
	PotentialProfit decimal.Decimal `json:"potential_profit"`
	TotalUnitSold   int             `json:"total_unit_sold"`
}

// TradeTotals is the set of period sums the profit-and-loss report derives
// from.
type TradeTotals struct {
	Sales           decimal.Decimal
	SalesReturns    decimal.Decimal
	Purchases       decimal.Decimal
	PurchaseReturns decimal.Decimal
	Expenses        decimal.Decimal
}

type ProfitLossReport struct {
	From                string          `json:"from"`
	To                  string          `json:"to"`
	TotalSales          decimal.Decimal `json:"total_sales"`
	TotalSalesReturn    decimal.Decimal `json:"total_sales_return"`
	TotalPurchases      decimal.Decimal `json:"total_purchases"`
	TotalPurchaseReturn decimal.Decimal `json:"total_purchase_return"`
	TotalExpenses       decimal.Decimal `json:"total_expenses"`
	GrossProfit         decimal.Decimal `json:"gross_profit"`
	NetProfit           decimal.Decimal `json:"net_profit"`
}
