package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stocklane/backend/internal/cache"
	"stocklane/backend/internal/domain"
	"stocklane/backend/internal/store"
	"stocklane/backend/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	svc := New(repo, cache.NoopListingCache{}, 30*time.Second, nil)
	return svc, repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func staffCtx(branch string) context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "staff", Role: domain.RoleStaff, Branch: branch})
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func createPurchaseWithDue(t *testing.T, svc *Service, due int64) domain.Purchase {
	t.Helper()
	purchase, err := svc.CreatePurchase(adminCtx(), domain.PurchaseCreateRequest{
		SupplierID: memory.SeedSupplierID,
		BranchID:   memory.SeedBranchID,
		Items: []domain.LineItemRequest{
			{ProductID: memory.SeedProductID, Qty: 1, UnitPrice: dec(due)},
		},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	return purchase
}

func TestAllocateFIFOSplitsOldestFirst(t *testing.T) {
	base := time.Now().UTC()
	open := []domain.OpenBalance{
		{ID: "a", DueAmount: dec(30), CreatedAt: base},
		{ID: "b", DueAmount: dec(50), CreatedAt: base.Add(time.Second)},
		{ID: "c", DueAmount: dec(20), CreatedAt: base.Add(2 * time.Second)},
	}

	allocations := allocateFIFO(dec(70), open)
	if len(allocations) != 2 {
		t.Fatalf("expected 2 allocations, got %d", len(allocations))
	}
	if allocations[0].TransactionID != "a" || !allocations[0].Amount.Equal(dec(30)) {
		t.Fatalf("first allocation wrong: %+v", allocations[0])
	}
	if allocations[1].TransactionID != "b" || !allocations[1].Amount.Equal(dec(40)) {
		t.Fatalf("second allocation wrong: %+v", allocations[1])
	}
}

func TestAllocateFIFOExhaustsEverythingOnOverpayment(t *testing.T) {
	open := []domain.OpenBalance{
		{ID: "a", DueAmount: dec(10)},
		{ID: "b", DueAmount: dec(5)},
	}
	allocations := allocateFIFO(dec(100), open)
	if len(allocations) != 2 {
		t.Fatalf("expected both balances allocated, got %d", len(allocations))
	}
	total := allocations[0].Amount.Add(allocations[1].Amount)
	if !total.Equal(dec(15)) {
		t.Fatalf("expected total allocation 15, got %s", total)
	}
}

func TestBalancePaymentSettlesSupplierPurchasesOldestFirst(t *testing.T) {
	svc, repo := newTestService()

	ids := []string{
		createPurchaseWithDue(t, svc, 30).ID,
		createPurchaseWithDue(t, svc, 50).ID,
		createPurchaseWithDue(t, svc, 20).ID,
	}

	_, err := svc.CreateBalancePayment(adminCtx(), domain.BalancePaymentCreateRequest{
		SupplierID: memory.SeedSupplierID,
		Amount:     dec(70),
	})
	if err != nil {
		t.Fatalf("create balance payment: %v", err)
	}

	wantDue := []int64{0, 10, 20}
	wantPaid := []int64{30, 40, 0}
	for i, id := range ids {
		p, err := repo.GetPurchase(context.Background(), id)
		if err != nil {
			t.Fatalf("get purchase %d: %v", i, err)
		}
		if !p.DueAmount.Equal(dec(wantDue[i])) {
			t.Fatalf("purchase %d: expected due %d, got %s", i, wantDue[i], p.DueAmount)
		}
		if !p.PaidAmount.Equal(dec(wantPaid[i])) {
			t.Fatalf("purchase %d: expected paid %d, got %s", i, wantPaid[i], p.PaidAmount)
		}
	}

	supplier, err := repo.GetSupplier(context.Background(), memory.SeedSupplierID)
	if err != nil {
		t.Fatalf("get supplier: %v", err)
	}
	if !supplier.PurchaseDue.Equal(dec(30)) {
		t.Fatalf("expected supplier purchase due 30, got %s", supplier.PurchaseDue)
	}
	if !supplier.OpeningBalance.Equal(dec(-70)) {
		t.Fatalf("expected supplier opening balance -70, got %s", supplier.OpeningBalance)
	}
}

func TestBalancePaymentWithoutOpenSalesOnlyMovesAggregates(t *testing.T) {
	svc, repo := newTestService()

	payment, err := svc.CreateBalancePayment(adminCtx(), domain.BalancePaymentCreateRequest{
		CustomerID: memory.SeedCustomerID,
		Amount:     dec(40),
	})
	if err != nil {
		t.Fatalf("create balance payment: %v", err)
	}
	if payment.Party.Kind != domain.PartyCustomer {
		t.Fatalf("expected customer party, got %s", payment.Party.Kind)
	}

	customer, err := repo.GetCustomer(context.Background(), memory.SeedCustomerID)
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if !customer.OpeningBalance.Equal(dec(40)) {
		t.Fatalf("expected opening balance 40, got %s", customer.OpeningBalance)
	}
	if !customer.SalesDue.Equal(dec(-40)) {
		t.Fatalf("expected sales due -40, got %s", customer.SalesDue)
	}
}

func TestBalancePaymentRejectsAmbiguousParty(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateBalancePayment(adminCtx(), domain.BalancePaymentCreateRequest{
		CustomerID: memory.SeedCustomerID,
		SupplierID: memory.SeedSupplierID,
		Amount:     dec(10),
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for both parties set, got %v", err)
	}

	_, err = svc.CreateBalancePayment(adminCtx(), domain.BalancePaymentCreateRequest{Amount: dec(10)})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for no party set, got %v", err)
	}
}

func TestDeleteWithMalformedIDIsNoOp(t *testing.T) {
	svc, repo := newTestService()

	deleted, err := svc.DeleteBrand(adminCtx(), "not-an-id")
	if err != nil {
		t.Fatalf("delete brand: %v", err)
	}
	if deleted {
		t.Fatalf("expected malformed id delete to be a no-op")
	}

	brands, err := repo.ListBrands(context.Background())
	if err != nil {
		t.Fatalf("list brands: %v", err)
	}
	if len(brands) != 1 {
		t.Fatalf("expected seeded brand untouched, got %d brands", len(brands))
	}
}

func TestSaleRejectsOversell(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateSale(adminCtx(), domain.SaleCreateRequest{
		CustomerID: memory.SeedCustomerID,
		BranchID:   memory.SeedBranchID,
		Items: []domain.LineItemRequest{
			{ProductID: memory.SeedProductID, Qty: 999, UnitPrice: dec(75)},
		},
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on oversell, got %v", err)
	}
}

func TestStockReportNetsSoldAgainstReturned(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	_, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		CustomerID: memory.SeedCustomerID,
		BranchID:   memory.SeedBranchID,
		PaidAmount: dec(150),
		Items: []domain.LineItemRequest{
			{ProductID: memory.SeedProductID, Qty: 2, UnitPrice: dec(75)},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	_, err = svc.CreateSalesReturn(ctx, domain.SalesReturnCreateRequest{
		CustomerID: memory.SeedCustomerID,
		BranchID:   memory.SeedBranchID,
		Items: []domain.LineItemRequest{
			{ProductID: memory.SeedProductID, Qty: 1, UnitPrice: dec(75)},
		},
	})
	if err != nil {
		t.Fatalf("create sales return: %v", err)
	}

	rows, err := svc.StockReport(ctx, "")
	if err != nil {
		t.Fatalf("stock report: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row.TotalUnitSold != 1 {
		t.Fatalf("expected total unit sold 1, got %d", row.TotalUnitSold)
	}
	// Seeded 50, sold 2, returned 1.
	if row.Stock != 49 {
		t.Fatalf("expected stock 49, got %d", row.Stock)
	}
	wantProfit := dec(49).Mul(dec(75).Sub(dec(60)))
	if !row.PotentialProfit.Equal(wantProfit) {
		t.Fatalf("expected potential profit %s, got %s", wantProfit, row.PotentialProfit)
	}
}

func TestProfitLossNetsReturnsBeforeExpenses(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	report := buildProfitLoss(from, to, domain.TradeTotals{
		Sales:           dec(600),
		SalesReturns:    dec(50),
		Purchases:       dec(400),
		PurchaseReturns: dec(25),
		Expenses:        dec(75),
	})
	if !report.GrossProfit.Equal(dec(175)) {
		t.Fatalf("expected gross profit 175, got %s", report.GrossProfit)
	}
	if !report.NetProfit.Equal(dec(100)) {
		t.Fatalf("expected net profit 100, got %s", report.NetProfit)
	}
	if report.From != "2026-01-01" || report.To != "2026-01-31" {
		t.Fatalf("unexpected period formatting: %s..%s", report.From, report.To)
	}
}

func TestMonthlyReportAlwaysHasTwelveRows(t *testing.T) {
	svc, _ := newTestService()

	report, err := svc.MonthlyReport(adminCtx(), 2026, "")
	if err != nil {
		t.Fatalf("monthly report: %v", err)
	}
	if len(report.Totals) != 12 {
		t.Fatalf("expected 12 monthly rows, got %d", len(report.Totals))
	}
	for i, row := range report.Totals {
		if row.Month != i+1 {
			t.Fatalf("row %d: expected month %d, got %d", i, i+1, row.Month)
		}
	}
}

func TestStaffScopedToOwnBranch(t *testing.T) {
	svc, _ := newTestService()

	otherBranch, err := svc.CreateBranch(adminCtx(), domain.BranchCreateRequest{Name: "Second Branch"})
	if err != nil {
		t.Fatalf("create branch: %v", err)
	}

	_, err = svc.CreateSale(staffCtx(memory.SeedBranchID), domain.SaleCreateRequest{
		CustomerID: memory.SeedCustomerID,
		BranchID:   otherBranch.ID,
		Items: []domain.LineItemRequest{
			{ProductID: memory.SeedProductID, Qty: 1, UnitPrice: dec(75)},
		},
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for cross-branch sale, got %v", err)
	}

	// Staff listings ignore the requested filter and stay on their branch.
	products, _, err := svc.ListProducts(staffCtx(memory.SeedBranchID), domain.ListQuery{BranchID: otherBranch.ID})
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	for _, p := range products {
		if p.BranchID != memory.SeedBranchID {
			t.Fatalf("staff listing leaked product from branch %s", p.BranchID)
		}
	}
}

func TestCatalogMutationsRequireAdmin(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateBrand(staffCtx(memory.SeedBranchID), domain.BrandCreateRequest{Name: "Staff Brand"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for staff brand create, got %v", err)
	}
}

func TestListingIsRepeatable(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	first, total1, err := svc.ListProducts(ctx, domain.ListQuery{})
	if err != nil {
		t.Fatalf("first list: %v", err)
	}
	second, total2, err := svc.ListProducts(ctx, domain.ListQuery{})
	if err != nil {
		t.Fatalf("second list: %v", err)
	}
	if total1 != total2 || len(first) != len(second) {
		t.Fatalf("listing changed between identical reads")
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("listing order changed between identical reads")
		}
	}
}

func TestUpdateExpenseFindsRowsBeyondFirstListingPages(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	var newest *domain.Expense
	for i := 0; i < 1001; i++ {
		created, err := repo.CreateExpense(ctx, domain.Expense{
			CategoryID: memory.SeedExpenseCategoryID,
			Amount:     dec(5),
			Date:       time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("create expense %d: %v", i, err)
		}
		newest = created
	}

	amount := dec(42)
	updated, err := svc.UpdateExpense(adminCtx(), newest.ID, domain.ExpenseUpdateRequest{Amount: &amount})
	if err != nil {
		t.Fatalf("update newest expense: %v", err)
	}
	if !updated.Amount.Equal(amount) {
		t.Fatalf("expected amount 42, got %s", updated.Amount)
	}

	got, err := repo.GetExpense(ctx, newest.ID)
	if err != nil {
		t.Fatalf("get expense: %v", err)
	}
	if !got.Amount.Equal(amount) {
		t.Fatalf("expected stored amount 42, got %s", got.Amount)
	}
}

func TestPurchaseCreateAdjustsStockAndSupplierDue(t *testing.T) {
	svc, repo := newTestService()

	_, err := svc.CreatePurchase(adminCtx(), domain.PurchaseCreateRequest{
		SupplierID: memory.SeedSupplierID,
		BranchID:   memory.SeedBranchID,
		PaidAmount: dec(100),
		Items: []domain.LineItemRequest{
			{ProductID: memory.SeedProductID, Qty: 10, UnitPrice: dec(30)},
		},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	product, err := repo.GetProduct(context.Background(), memory.SeedProductID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 60 {
		t.Fatalf("expected stock 60 after purchase, got %d", product.Stock)
	}
	supplier, err := repo.GetSupplier(context.Background(), memory.SeedSupplierID)
	if err != nil {
		t.Fatalf("get supplier: %v", err)
	}
	if !supplier.PurchaseDue.Equal(dec(200)) {
		t.Fatalf("expected supplier due 200, got %s", supplier.PurchaseDue)
	}
}
