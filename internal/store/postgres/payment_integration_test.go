package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stocklane/backend/internal/domain"
	"stocklane/backend/internal/oid"
	"stocklane/backend/internal/store"
)

func TestBalancePaymentSettlesOldestPurchasesFirst(t *testing.T) {
	databaseURL := os.Getenv("STOCKLANE_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set STOCKLANE_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	supplierID := oid.New()
	branchID := oid.New()
	purchaseIDs := []string{oid.New(), oid.New()}

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM balance_payments WHERE party_id = $1`, supplierID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM purchases WHERE supplier_id = $1`, supplierID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM suppliers WHERE id = $1`, supplierID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM branches WHERE id = $1`, branchID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (id, name, created_at, updated_at)
		VALUES ($1, 'Payment IT Branch', now(), now())
	`, branchID); err != nil {
		t.Fatalf("insert branch: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, opening_balance, purchase_due, purchase_return_due, created_at, updated_at)
		VALUES ($1, 'Payment IT Supplier', 0, 80, 0, now(), now())
	`, supplierID); err != nil {
		t.Fatalf("insert supplier: %v", err)
	}
	for i, id := range purchaseIDs {
		due := 30
		if i == 1 {
			due = 50
		}
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO purchases (
				id, supplier_id, branch_id, date, total_amount, grand_total,
				paid_amount, due_amount, created_at, updated_at
			)
			VALUES ($1, $2, $3, now(), $4, $4, 0, $4, now() + ($5 || ' seconds')::interval, now())
		`, id, supplierID, branchID, due, i); err != nil {
			t.Fatalf("insert purchase %d: %v", i, err)
		}
	}

	payment := domain.BalancePayment{
		Party:  domain.PartyRef{Kind: domain.PartySupplier, ID: supplierID},
		Amount: decimal.NewFromInt(70),
		Method: "cash",
		Date:   time.Now().UTC(),
	}
	delta := store.BalanceDelta{
		Opening: decimal.NewFromInt(-70),
		Due:     decimal.NewFromInt(-70),
	}
	allocations := []domain.PaymentAllocation{
		{TransactionID: purchaseIDs[0], Amount: decimal.NewFromInt(30)},
		{TransactionID: purchaseIDs[1], Amount: decimal.NewFromInt(40)},
	}

	if _, err := s.CreateBalancePayment(ctx, payment, delta, allocations); err != nil {
		t.Fatalf("create balance payment: %v", err)
	}

	for i, want := range []int64{0, 10} {
		var due decimal.Decimal
		if err := s.db.QueryRowContext(ctx, `
			SELECT due_amount FROM purchases WHERE id = $1
		`, purchaseIDs[i]).Scan(&due); err != nil {
			t.Fatalf("query purchase %d due: %v", i, err)
		}
		if !due.Equal(decimal.NewFromInt(want)) {
			t.Fatalf("purchase %d: expected due %d, got %s", i, want, due)
		}
	}

	var supplierDue decimal.Decimal
	if err := s.db.QueryRowContext(ctx, `
		SELECT purchase_due FROM suppliers WHERE id = $1
	`, supplierID).Scan(&supplierDue); err != nil {
		t.Fatalf("query supplier due: %v", err)
	}
	if !supplierDue.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected supplier due 10, got %s", supplierDue)
	}

	// A second over-allocation against the now settled purchase must abort
	// without touching the supplier row.
	over := []domain.PaymentAllocation{
		{TransactionID: purchaseIDs[0], Amount: decimal.NewFromInt(5)},
	}
	_, err = s.CreateBalancePayment(ctx, payment, delta, over)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on over-allocation, got %v", err)
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT purchase_due FROM suppliers WHERE id = $1
	`, supplierID).Scan(&supplierDue); err != nil {
		t.Fatalf("requery supplier due: %v", err)
	}
	if !supplierDue.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("supplier due changed after aborted payment: %s", supplierDue)
	}
}
