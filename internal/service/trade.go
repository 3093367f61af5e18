package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stocklane/backend/internal/domain"
	"stocklane/backend/internal/oid"
	"stocklane/backend/internal/store"
)

// allocateFIFO splits a payment across open balances oldest first. Each
// transaction absorbs as much of the remainder as its due allows; settled
// rows get no allocation. The walk stops once the payment is exhausted, so
// an overpayment simply leaves the tail untouched.
func allocateFIFO(amount decimal.Decimal, open []domain.OpenBalance) []domain.PaymentAllocation {
	allocations := make([]domain.PaymentAllocation, 0, len(open))
	remaining := amount
	for _, balance := range open {
		if !remaining.IsPositive() {
			break
		}
		if !balance.DueAmount.IsPositive() {
			continue
		}
		slice := decimal.Min(remaining, balance.DueAmount)
		allocations = append(allocations, domain.PaymentAllocation{
			TransactionID: balance.ID,
			Amount:        slice,
		})
		remaining = remaining.Sub(slice)
	}
	return allocations
}

func (s *Service) requireOwnBranch(ctx context.Context, branchID string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return ErrForbidden
	}
	if actor.IsAdmin() {
		return nil
	}
	if actor.Branch != branchID {
		return ErrForbidden
	}
	return nil
}

func buildLineItems(reqs []domain.LineItemRequest) ([]domain.LineItem, decimal.Decimal, error) {
	items := make([]domain.LineItem, 0, len(reqs))
	total := decimal.Zero
	for _, r := range reqs {
		if r.Qty < 1 || r.UnitPrice.IsNegative() || r.Discount.IsNegative() {
			return nil, decimal.Zero, store.ErrInvalidInput
		}
		subtotal := r.UnitPrice.Mul(decimal.NewFromInt(int64(r.Qty))).Sub(r.Discount)
		if subtotal.IsNegative() {
			return nil, decimal.Zero, store.ErrInvalidInput
		}
		items = append(items, domain.LineItem{
			ProductID: r.ProductID,
			Qty:       r.Qty,
			UnitPrice: r.UnitPrice,
			Discount:  r.Discount,
			Subtotal:  subtotal,
		})
		total = total.Add(subtotal)
	}
	return items, total, nil
}

// parseDate accepts the date formats the admin UI sends. An empty string
// means "now" and is resolved by the store.
func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, store.ErrInvalidInput
	}
	return t.UTC(), nil
}

// ---- purchases ------------------------------------------------------------

func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseCreateRequest) (domain.Purchase, error) {
	if err := s.checkRequest(req); err != nil {
		return domain.Purchase{}, err
	}
	if err := s.requireOwnBranch(ctx, req.BranchID); err != nil {
		return domain.Purchase{}, err
	}
	if req.PaidAmount.IsNegative() {
		return domain.Purchase{}, store.ErrInvalidInput
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return domain.Purchase{}, err
	}

	items, total, err := buildLineItems(req.Items)
	if err != nil {
		return domain.Purchase{}, err
	}
	if req.PaidAmount.Cmp(total) > 0 {
		return domain.Purchase{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreatePurchase(ctx, domain.Purchase{
		SupplierID:  req.SupplierID,
		BranchID:    req.BranchID,
		Date:        date,
		TotalAmount: total,
		GrandTotal:  total,
		PaidAmount:  req.PaidAmount,
		DueAmount:   total.Sub(req.PaidAmount),
		Items:       items,
	})
	if err != nil {
		return domain.Purchase{}, err
	}
	s.invalidate(ctx, "products")
	s.invalidate(ctx, "suppliers")
	return *created, nil
}

func (s *Service) ListPurchases(ctx context.Context, query domain.ListQuery) ([]domain.Purchase, int64, error) {
	query.BranchID = s.scopeBranch(ctx, query.BranchID)
	return s.repo.ListPurchases(ctx, query)
}

func (s *Service) GetPurchase(ctx context.Context, id string) (*domain.Purchase, error) {
	if !oid.Valid(id) {
		return nil, store.ErrNotFound
	}
	return s.repo.GetPurchase(ctx, id)
}

func (s *Service) DeletePurchase(ctx context.Context, id string) (bool, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return false, err
	}
	if !oid.Valid(id) {
		return false, nil
	}
	if err := s.repo.DeletePurchase(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ---- sales ----------------------------------------------------------------

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	if err := s.checkRequest(req); err != nil {
		return domain.Sale{}, err
	}
	if err := s.requireOwnBranch(ctx, req.BranchID); err != nil {
		return domain.Sale{}, err
	}
	if req.PaidAmount.IsNegative() {
		return domain.Sale{}, store.ErrInvalidInput
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return domain.Sale{}, err
	}

	items, total, err := buildLineItems(req.Items)
	if err != nil {
		return domain.Sale{}, err
	}
	if req.PaidAmount.Cmp(total) > 0 {
		return domain.Sale{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateSale(ctx, domain.Sale{
		CustomerID:  req.CustomerID,
		BranchID:    req.BranchID,
		Date:        date,
		TotalAmount: total,
		GrandTotal:  total,
		PaidAmount:  req.PaidAmount,
		DueAmount:   total.Sub(req.PaidAmount),
		Items:       items,
	})
	if err != nil {
		return domain.Sale{}, err
	}
	s.invalidate(ctx, "products")
	s.invalidate(ctx, "customers")
	return *created, nil
}

func (s *Service) ListSales(ctx context.Context, query domain.ListQuery) ([]domain.Sale, int64, error) {
	query.BranchID = s.scopeBranch(ctx, query.BranchID)
	return s.repo.ListSales(ctx, query)
}

func (s *Service) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	if !oid.Valid(id) {
		return nil, store.ErrNotFound
	}
	return s.repo.GetSale(ctx, id)
}

func (s *Service) DeleteSale(ctx context.Context, id string) (bool, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return false, err
	}
	if !oid.Valid(id) {
		return false, nil
	}
	if err := s.repo.DeleteSale(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ---- returns --------------------------------------------------------------

func (s *Service) CreatePurchaseReturn(ctx context.Context, req domain.PurchaseReturnCreateRequest) (domain.PurchaseReturn, error) {
	if err := s.checkRequest(req); err != nil {
		return domain.PurchaseReturn{}, err
	}
	if err := s.requireOwnBranch(ctx, req.BranchID); err != nil {
		return domain.PurchaseReturn{}, err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return domain.PurchaseReturn{}, err
	}

	items, total, err := buildLineItems(req.Items)
	if err != nil {
		return domain.PurchaseReturn{}, err
	}

	created, err := s.repo.CreatePurchaseReturn(ctx, domain.PurchaseReturn{
		SupplierID: req.SupplierID,
		PurchaseID: req.PurchaseID,
		BranchID:   req.BranchID,
		Date:       date,
		GrandTotal: total,
		Items:      items,
	})
	if err != nil {
		return domain.PurchaseReturn{}, err
	}
	s.invalidate(ctx, "products")
	s.invalidate(ctx, "suppliers")
	return *created, nil
}

func (s *Service) ListPurchaseReturns(ctx context.Context, query domain.ListQuery) ([]domain.PurchaseReturn, int64, error) {
	query.BranchID = s.scopeBranch(ctx, query.BranchID)
	return s.repo.ListPurchaseReturns(ctx, query)
}

func (s *Service) CreateSalesReturn(ctx context.Context, req domain.SalesReturnCreateRequest) (domain.SalesReturn, error) {
	if err := s.checkRequest(req); err != nil {
		return domain.SalesReturn{}, err
	}
	if err := s.requireOwnBranch(ctx, req.BranchID); err != nil {
		return domain.SalesReturn{}, err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return domain.SalesReturn{}, err
	}

	items, total, err := buildLineItems(req.Items)
	if err != nil {
		return domain.SalesReturn{}, err
	}

	created, err := s.repo.CreateSalesReturn(ctx, domain.SalesReturn{
		CustomerID: req.CustomerID,
		SaleID:     req.SaleID,
		BranchID:   req.BranchID,
		Date:       date,
		GrandTotal: total,
		Items:      items,
	})
	if err != nil {
		return domain.SalesReturn{}, err
	}
	s.invalidate(ctx, "products")
	s.invalidate(ctx, "customers")
	return *created, nil
}

func (s *Service) ListSalesReturns(ctx context.Context, query domain.ListQuery) ([]domain.SalesReturn, int64, error) {
	query.BranchID = s.scopeBranch(ctx, query.BranchID)
	return s.repo.ListSalesReturns(ctx, query)
}

// ---- balance payments -----------------------------------------------------

// CreateBalancePayment settles a party's outstanding balance. The payment
// amount always moves the party aggregates; whatever portion matches open
// transaction dues is spread across them oldest first, and the store applies
// payment, aggregates, and allocations as one transaction.
//
// Direction differs by party: paying a supplier clears debt we owe, so the
// opening balance and purchase due both shrink. Receiving from a customer
// grows the opening balance we have collected while shrinking sales due.
func (s *Service) CreateBalancePayment(ctx context.Context, req domain.BalancePaymentCreateRequest) (domain.BalancePayment, error) {
	if err := s.checkRequest(req); err != nil {
		return domain.BalancePayment{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.BalancePayment{}, store.ErrInvalidInput
	}

	party, err := foldParty(req.CustomerID, req.SupplierID)
	if err != nil {
		return domain.BalancePayment{}, err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return domain.BalancePayment{}, err
	}

	var open []domain.OpenBalance
	var delta store.BalanceDelta
	switch party.Kind {
	case domain.PartySupplier:
		open, err = s.repo.ListOpenPurchases(ctx, party.ID)
		delta = store.BalanceDelta{
			Opening: req.Amount.Neg(),
			Due:     req.Amount.Neg(),
		}
	case domain.PartyCustomer:
		open, err = s.repo.ListOpenSales(ctx, party.ID)
		delta = store.BalanceDelta{
			Opening: req.Amount,
			Due:     req.Amount.Neg(),
		}
	}
	if err != nil {
		return domain.BalancePayment{}, err
	}

	allocations := allocateFIFO(req.Amount, open)

	method := strings.TrimSpace(req.Method)
	if method == "" {
		method = "cash"
	}
	created, err := s.repo.CreateBalancePayment(ctx, domain.BalancePayment{
		Party:  party,
		Amount: req.Amount,
		Method: method,
		Date:   date,
		Note:   req.Note,
	}, delta, allocations)
	if err != nil {
		return domain.BalancePayment{}, err
	}
	s.invalidate(ctx, "customers")
	s.invalidate(ctx, "suppliers")
	return *created, nil
}

func (s *Service) ListBalancePayments(ctx context.Context, query domain.ListQuery) ([]domain.BalancePayment, int64, error) {
	return s.repo.ListBalancePayments(ctx, query)
}

// foldParty collapses the wire shape's two optional ids into a tagged
// reference, rejecting none or both.
func foldParty(customerID, supplierID string) (domain.PartyRef, error) {
	switch {
	case customerID != "" && supplierID != "":
		return domain.PartyRef{}, store.ErrInvalidInput
	case customerID != "":
		if !oid.Valid(customerID) {
			return domain.PartyRef{}, store.ErrInvalidInput
		}
		return domain.PartyRef{Kind: domain.PartyCustomer, ID: customerID}, nil
	case supplierID != "":
		if !oid.Valid(supplierID) {
			return domain.PartyRef{}, store.ErrInvalidInput
		}
		return domain.PartyRef{Kind: domain.PartySupplier, ID: supplierID}, nil
	default:
		return domain.PartyRef{}, store.ErrInvalidInput
	}
}

// ---- expenses -------------------------------------------------------------

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	if err := s.checkRequest(req); err != nil {
		return domain.Expense{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.Expense{}, store.ErrInvalidInput
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return domain.Expense{}, err
	}

	created, err := s.repo.CreateExpense(ctx, domain.Expense{
		CategoryID: req.CategoryID,
		Amount:     req.Amount,
		Date:       date,
		Note:       req.Note,
	})
	if err != nil {
		return domain.Expense{}, err
	}
	return *created, nil
}

func (s *Service) ListExpenses(ctx context.Context, query domain.ListQuery) ([]domain.Expense, int64, error) {
	return s.repo.ListExpenses(ctx, query)
}

func (s *Service) UpdateExpense(ctx context.Context, id string, req domain.ExpenseUpdateRequest) (*domain.Expense, error) {
	if !oid.Valid(id) {
		return nil, store.ErrNotFound
	}

	existing, err := s.repo.GetExpense(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if req.CategoryID != nil {
		if !oid.Valid(*req.CategoryID) {
			return nil, store.ErrInvalidInput
		}
		updated.CategoryID = *req.CategoryID
	}
	if req.Amount != nil {
		if !req.Amount.IsPositive() {
			return nil, store.ErrInvalidInput
		}
		updated.Amount = *req.Amount
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			return nil, err
		}
		if !date.IsZero() {
			updated.Date = date
		}
	}
	if req.Note != nil {
		updated.Note = *req.Note
	}

	return s.repo.UpdateExpense(ctx, updated)
}

func (s *Service) DeleteExpense(ctx context.Context, id string) (bool, error) {
	if !oid.Valid(id) {
		return false, nil
	}
	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
