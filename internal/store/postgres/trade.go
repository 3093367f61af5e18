package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"stocklane/backend/internal/domain"
	"stocklane/backend/internal/oid"
	"stocklane/backend/internal/store"
)

func (s *Store) CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if len(purchase.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if purchase.ID == "" {
		purchase.ID = oid.New()
	}
	now := time.Now().UTC()
	purchase.CreatedAt = now
	purchase.UpdatedAt = now
	if purchase.Date.IsZero() {
		purchase.Date = now
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var supplierID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM suppliers WHERE id = $1 FOR UPDATE
	`, purchase.SupplierID).Scan(&supplierID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchases (
			id, supplier_id, branch_id, date, total_amount, grand_total,
			paid_amount, due_amount, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, purchase.ID, purchase.SupplierID, purchase.BranchID, purchase.Date,
		purchase.TotalAmount, purchase.GrandTotal, purchase.PaidAmount, purchase.DueAmount,
		purchase.CreatedAt, purchase.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	for _, item := range purchase.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO purchase_items (purchase_id, product_id, qty, unit_price, discount, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, purchase.ID, item.ProductID, item.Qty, item.UnitPrice, item.Discount, item.Subtotal)
		if err != nil {
			if isForeignKeyViolation(err) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock + $1, updated_at = now()
			WHERE id = $2
		`, item.Qty, item.ProductID)
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
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE suppliers
		SET purchase_due = purchase_due + $1, updated_at = now()
		WHERE id = $2
	`, purchase.DueAmount, purchase.SupplierID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	saved := purchase
	return &saved, nil
}

func (s *Store) ListPurchases(ctx context.Context, query domain.ListQuery) ([]domain.Purchase, int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint
		FROM purchases
		WHERE ($1 = '' OR branch_id = $1)
			AND ($2 = '' OR supplier_id = $2)
			AND ($3::timestamptz IS NULL OR date >= $3)
			AND ($4::timestamptz IS NULL OR date <= $4)
	`, query.BranchID, query.PartyID, nullTimePtr(query.From), nullTimePtr(query.To)).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, supplier_id, branch_id, date, total_amount, grand_total,
			paid_amount, due_amount, created_at, updated_at
		FROM purchases
		WHERE ($1 = '' OR branch_id = $1)
			AND ($2 = '' OR supplier_id = $2)
			AND ($3::timestamptz IS NULL OR date >= $3)
			AND ($4::timestamptz IS NULL OR date <= $4)
		ORDER BY created_at ASC, id ASC
		LIMIT $5 OFFSET $6
	`, query.BranchID, query.PartyID, nullTimePtr(query.From), nullTimePtr(query.To),
		query.PageLimit(), query.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0, query.PageLimit())
	ids := make([]string, 0, query.PageLimit())
	for rows.Next() {
		var p domain.Purchase
		if err := rows.Scan(&p.ID, &p.SupplierID, &p.BranchID, &p.Date, &p.TotalAmount,
			&p.GrandTotal, &p.PaidAmount, &p.DueAmount, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		p.Date = p.Date.UTC()
		p.CreatedAt = p.CreatedAt.UTC()
		p.UpdatedAt = p.UpdatedAt.UTC()
		purchases = append(purchases, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	itemMap, err := s.lineItemsByParent(ctx, "purchase_items", "purchase_id", ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range purchases {
		purchases[i].Items = itemMap[purchases[i].ID]
	}
	return purchases, total, nil
}

func (s *Store) GetPurchase(ctx context.Context, id string) (*domain.Purchase, error) {
	var p domain.Purchase
	err := s.db.QueryRowContext(ctx, `
		SELECT id, supplier_id, branch_id, date, total_amount, grand_total,
			paid_amount, due_amount, created_at, updated_at
		FROM purchases
		WHERE id = $1
	`, id).Scan(&p.ID, &p.SupplierID, &p.BranchID, &p.Date, &p.TotalAmount,
		&p.GrandTotal, &p.PaidAmount, &p.DueAmount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.Date = p.Date.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()

	itemMap, err := s.lineItemsByParent(ctx, "purchase_items", "purchase_id", []string{p.ID})
	if err != nil {
		return nil, err
	}
	p.Items = itemMap[p.ID]
	return &p, nil
}

func (s *Store) DeletePurchase(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `DELETE FROM purchase_items WHERE purchase_id = $1`, id)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM purchases WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) ListOpenPurchases(ctx context.Context, supplierID string) ([]domain.OpenBalance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, due_amount, created_at
		FROM purchases
		WHERE supplier_id = $1 AND due_amount > 0
		ORDER BY created_at ASC, id ASC
	`, supplierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := make([]domain.OpenBalance, 0, 16)
	for rows.Next() {
		var b domain.OpenBalance
		if err := rows.Scan(&b.ID, &b.DueAmount, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.CreatedAt = b.CreatedAt.UTC()
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return balances, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = oid.New()
	}
	now := time.Now().UTC()
	sale.CreatedAt = now
	sale.UpdatedAt = now
	if sale.Date.IsZero() {
		sale.Date = now
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var customerID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM customers WHERE id = $1 FOR UPDATE
	`, sale.CustomerID).Scan(&customerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, customer_id, branch_id, date, total_amount, grand_total,
			paid_amount, due_amount, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, sale.ID, sale.CustomerID, sale.BranchID, sale.Date,
		sale.TotalAmount, sale.GrandTotal, sale.PaidAmount, sale.DueAmount,
		sale.CreatedAt, sale.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	for _, item := range sale.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, qty, unit_price, discount, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sale.ID, item.ProductID, item.Qty, item.UnitPrice, item.Discount, item.Subtotal)
		if err != nil {
			if isForeignKeyViolation(err) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		// The stock guard lives in the WHERE clause so an oversell aborts
		// the whole transaction instead of racing a check-then-write.
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $1, updated_at = now()
			WHERE id = $2 AND stock >= $1
		`, item.Qty, item.ProductID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrConflict
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE customers
		SET sales_due = sales_due + $1, updated_at = now()
		WHERE id = $2
	`, sale.DueAmount, sale.CustomerID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	saved := sale
	return &saved, nil
}

func (s *Store) ListSales(ctx context.Context, query domain.ListQuery) ([]domain.Sale, int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint
		FROM sales
		WHERE ($1 = '' OR branch_id = $1)
			AND ($2 = '' OR customer_id = $2)
			AND ($3::timestamptz IS NULL OR date >= $3)
			AND ($4::timestamptz IS NULL OR date <= $4)
	`, query.BranchID, query.PartyID, nullTimePtr(query.From), nullTimePtr(query.To)).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, branch_id, date, total_amount, grand_total,
			paid_amount, due_amount, created_at, updated_at
		FROM sales
		WHERE ($1 = '' OR branch_id = $1)
			AND ($2 = '' OR customer_id = $2)
			AND ($3::timestamptz IS NULL OR date >= $3)
			AND ($4::timestamptz IS NULL OR date <= $4)
		ORDER BY created_at ASC, id ASC
		LIMIT $5 OFFSET $6
	`, query.BranchID, query.PartyID, nullTimePtr(query.From), nullTimePtr(query.To),
		query.PageLimit(), query.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, query.PageLimit())
	ids := make([]string, 0, query.PageLimit())
	for rows.Next() {
		var sl domain.Sale
		if err := rows.Scan(&sl.ID, &sl.CustomerID, &sl.BranchID, &sl.Date, &sl.TotalAmount,
			&sl.GrandTotal, &sl.PaidAmount, &sl.DueAmount, &sl.CreatedAt, &sl.UpdatedAt); err != nil {
			return nil, 0, err
		}
		sl.Date = sl.Date.UTC()
		sl.CreatedAt = sl.CreatedAt.UTC()
		sl.UpdatedAt = sl.UpdatedAt.UTC()
		sales = append(sales, sl)
		ids = append(ids, sl.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	itemMap, err := s.lineItemsByParent(ctx, "sale_items", "sale_id", ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range sales {
		sales[i].Items = itemMap[sales[i].ID]
	}
	return sales, total, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	var sl domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, branch_id, date, total_amount, grand_total,
			paid_amount, due_amount, created_at, updated_at
		FROM sales
		WHERE id = $1
	`, id).Scan(&sl.ID, &sl.CustomerID, &sl.BranchID, &sl.Date, &sl.TotalAmount,
		&sl.GrandTotal, &sl.PaidAmount, &sl.DueAmount, &sl.CreatedAt, &sl.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sl.Date = sl.Date.UTC()
	sl.CreatedAt = sl.CreatedAt.UTC()
	sl.UpdatedAt = sl.UpdatedAt.UTC()

	itemMap, err := s.lineItemsByParent(ctx, "sale_items", "sale_id", []string{sl.ID})
	if err != nil {
		return nil, err
	}
	sl.Items = itemMap[sl.ID]
	return &sl, nil
}

func (s *Store) DeleteSale(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, id)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) ListOpenSales(ctx context.Context, customerID string) ([]domain.OpenBalance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, due_amount, created_at
		FROM sales
		WHERE customer_id = $1 AND due_amount > 0
		ORDER BY created_at ASC, id ASC
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := make([]domain.OpenBalance, 0, 16)
	for rows.Next() {
		var b domain.OpenBalance
		if err := rows.Scan(&b.ID, &b.DueAmount, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.CreatedAt = b.CreatedAt.UTC()
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return balances, nil
}

func (s *Store) CreatePurchaseReturn(ctx context.Context, ret domain.PurchaseReturn) (*domain.PurchaseReturn, error) {
	if len(ret.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if ret.ID == "" {
		ret.ID = oid.New()
	}
	ret.CreatedAt = time.Now().UTC()
	if ret.Date.IsZero() {
		ret.Date = ret.CreatedAt
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchase_returns (id, supplier_id, purchase_id, branch_id, date, grand_total, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, ret.ID, ret.SupplierID, nullIfEmpty(ret.PurchaseID), ret.BranchID, ret.Date, ret.GrandTotal, ret.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	for _, item := range ret.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO purchase_return_items (return_id, product_id, qty, unit_price, discount, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, ret.ID, item.ProductID, item.Qty, item.UnitPrice, item.Discount, item.Subtotal)
		if err != nil {
			if isForeignKeyViolation(err) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $1, updated_at = now()
			WHERE id = $2 AND stock >= $1
		`, item.Qty, item.ProductID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrConflict
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE suppliers
		SET purchase_return_due = purchase_return_due + $1, updated_at = now()
		WHERE id = $2
	`, ret.GrandTotal, ret.SupplierID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	saved := ret
	return &saved, nil
}

func (s *Store) ListPurchaseReturns(ctx context.Context, query domain.ListQuery) ([]domain.PurchaseReturn, int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint
		FROM purchase_returns
		WHERE ($1 = '' OR branch_id = $1)
			AND ($2::timestamptz IS NULL OR date >= $2)
			AND ($3::timestamptz IS NULL OR date <= $3)
	`, query.BranchID, nullTimePtr(query.From), nullTimePtr(query.To)).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, supplier_id, COALESCE(purchase_id,''), branch_id, date, grand_total, created_at
		FROM purchase_returns
		WHERE ($1 = '' OR branch_id = $1)
			AND ($2::timestamptz IS NULL OR date >= $2)
			AND ($3::timestamptz IS NULL OR date <= $3)
		ORDER BY created_at ASC, id ASC
		LIMIT $4 OFFSET $5
	`, query.BranchID, nullTimePtr(query.From), nullTimePtr(query.To),
		query.PageLimit(), query.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	returns := make([]domain.PurchaseReturn, 0, query.PageLimit())
	ids := make([]string, 0, query.PageLimit())
	for rows.Next() {
		var r domain.PurchaseReturn
		if err := rows.Scan(&r.ID, &r.SupplierID, &r.PurchaseID, &r.BranchID, &r.Date, &r.GrandTotal, &r.CreatedAt); err != nil {
			return nil, 0, err
		}
		r.Date = r.Date.UTC()
		r.CreatedAt = r.CreatedAt.UTC()
		returns = append(returns, r)
		ids = append(ids, r.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	itemMap, err := s.lineItemsByParent(ctx, "purchase_return_items", "return_id", ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range returns {
		returns[i].Items = itemMap[returns[i].ID]
	}
	return returns, total, nil
}

func (s *Store) CreateSalesReturn(ctx context.Context, ret domain.SalesReturn) (*domain.SalesReturn, error) {
	if len(ret.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if ret.ID == "" {
		ret.ID = oid.New()
	}
	ret.CreatedAt = time.Now().UTC()
	if ret.Date.IsZero() {
		ret.Date = ret.CreatedAt
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales_returns (id, customer_id, sale_id, branch_id, date, grand_total, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, ret.ID, ret.CustomerID, nullIfEmpty(ret.SaleID), ret.BranchID, ret.Date, ret.GrandTotal, ret.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	for _, item := range ret.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sales_return_items (return_id, product_id, qty, unit_price, discount, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, ret.ID, item.ProductID, item.Qty, item.UnitPrice, item.Discount, item.Subtotal)
		if err != nil {
			if isForeignKeyViolation(err) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock + $1, updated_at = now()
			WHERE id = $2
		`, item.Qty, item.ProductID)
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
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE customers
		SET sales_return_due = sales_return_due + $1, updated_at = now()
		WHERE id = $2
	`, ret.GrandTotal, ret.CustomerID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	saved := ret
	return &saved, nil
}

func (s *Store) ListSalesReturns(ctx context.Context, query domain.ListQuery) ([]domain.SalesReturn, int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint
		FROM sales_returns
		WHERE ($1 = '' OR branch_id = $1)
			AND ($2::timestamptz IS NULL OR date >= $2)
			AND ($3::timestamptz IS NULL OR date <= $3)
	`, query.BranchID, nullTimePtr(query.From), nullTimePtr(query.To)).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, COALESCE(sale_id,''), branch_id, date, grand_total, created_at
		FROM sales_returns
		WHERE ($1 = '' OR branch_id = $1)
			AND ($2::timestamptz IS NULL OR date >= $2)
			AND ($3::timestamptz IS NULL OR date <= $3)
		ORDER BY created_at ASC, id ASC
		LIMIT $4 OFFSET $5
	`, query.BranchID, nullTimePtr(query.From), nullTimePtr(query.To),
		query.PageLimit(), query.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	returns := make([]domain.SalesReturn, 0, query.PageLimit())
	ids := make([]string, 0, query.PageLimit())
	for rows.Next() {
		var r domain.SalesReturn
		if err := rows.Scan(&r.ID, &r.CustomerID, &r.SaleID, &r.BranchID, &r.Date, &r.GrandTotal, &r.CreatedAt); err != nil {
			return nil, 0, err
		}
		r.Date = r.Date.UTC()
		r.CreatedAt = r.CreatedAt.UTC()
		returns = append(returns, r)
		ids = append(ids, r.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	itemMap, err := s.lineItemsByParent(ctx, "sales_return_items", "return_id", ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range returns {
		returns[i].Items = itemMap[returns[i].ID]
	}
	return returns, total, nil
}

func (s *Store) CreateBalancePayment(ctx context.Context, payment domain.BalancePayment, delta store.BalanceDelta, allocations []domain.PaymentAllocation) (*domain.BalancePayment, error) {
	if !payment.Amount.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	if payment.ID == "" {
		payment.ID = oid.New()
	}
	payment.CreatedAt = time.Now().UTC()
	if payment.Date.IsZero() {
		payment.Date = payment.CreatedAt
	}

	var partyTable, transactionTable, dueColumn, returnDueColumn string
	switch payment.Party.Kind {
	case domain.PartySupplier:
		partyTable, transactionTable = "suppliers", "purchases"
		dueColumn, returnDueColumn = "purchase_due", "purchase_return_due"
	case domain.PartyCustomer:
		partyTable, transactionTable = "customers", "sales"
		dueColumn, returnDueColumn = "sales_due", "sales_return_due"
	default:
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var partyID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM `+partyTable+` WHERE id = $1 FOR UPDATE
	`, payment.Party.ID).Scan(&partyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE `+partyTable+`
		SET opening_balance = opening_balance + $1,
			`+dueColumn+` = `+dueColumn+` + $2,
			`+returnDueColumn+` = `+returnDueColumn+` + $3,
			updated_at = now()
		WHERE id = $4
	`, delta.Opening, delta.Due, delta.ReturnDue, payment.Party.ID)
	if err != nil {
		return nil, err
	}

	for _, alloc := range allocations {
		// The due guard is part of the UPDATE so a stale allocation never
		// drives a transaction's balance negative.
		res, err := tx.ExecContext(ctx, `
			UPDATE `+transactionTable+`
			SET due_amount = due_amount - $1,
				paid_amount = paid_amount + $1,
				updated_at = now()
			WHERE id = $2 AND due_amount >= $1
		`, alloc.Amount, alloc.TransactionID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrConflict
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO balance_payments (id, party_kind, party_id, amount, method, date, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, payment.ID, string(payment.Party.Kind), payment.Party.ID, payment.Amount,
		payment.Method, payment.Date, payment.Note, payment.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	saved := payment
	return &saved, nil
}

func (s *Store) ListBalancePayments(ctx context.Context, query domain.ListQuery) ([]domain.BalancePayment, int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint
		FROM balance_payments
		WHERE ($1 = '' OR party_id = $1)
			AND ($2::timestamptz IS NULL OR date >= $2)
			AND ($3::timestamptz IS NULL OR date <= $3)
	`, query.PartyID, nullTimePtr(query.From), nullTimePtr(query.To)).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, party_kind, party_id, amount, method, COALESCE(note,''), date, created_at
		FROM balance_payments
		WHERE ($1 = '' OR party_id = $1)
			AND ($2::timestamptz IS NULL OR date >= $2)
			AND ($3::timestamptz IS NULL OR date <= $3)
		ORDER BY created_at ASC, id ASC
		LIMIT $4 OFFSET $5
	`, query.PartyID, nullTimePtr(query.From), nullTimePtr(query.To),
		query.PageLimit(), query.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	payments := make([]domain.BalancePayment, 0, query.PageLimit())
	for rows.Next() {
		var p domain.BalancePayment
		var kind string
		if err := rows.Scan(&p.ID, &kind, &p.Party.ID, &p.Amount, &p.Method, &p.Note, &p.Date, &p.CreatedAt); err != nil {
			return nil, 0, err
		}
		p.Party.Kind = domain.PartyKind(kind)
		p.Date = p.Date.UTC()
		p.CreatedAt = p.CreatedAt.UTC()
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if !expense.Amount.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	if expense.ID == "" {
		expense.ID = oid.New()
	}
	now := time.Now().UTC()
	expense.CreatedAt = now
	expense.UpdatedAt = now
	if expense.Date.IsZero() {
		expense.Date = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, category_id, amount, date, note, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, expense.ID, expense.CategoryID, expense.Amount, expense.Date, expense.Note,
		expense.CreatedAt, expense.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	saved := expense
	return &saved, nil
}

func (s *Store) GetExpense(ctx context.Context, id string) (*domain.Expense, error) {
	var e domain.Expense
	err := s.db.QueryRowContext(ctx, `
		SELECT id, category_id, amount, date, COALESCE(note,''), created_at, updated_at
		FROM expenses
		WHERE id = $1
	`, id).Scan(&e.ID, &e.CategoryID, &e.Amount, &e.Date, &e.Note, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	e.Date = e.Date.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

func (s *Store) ListExpenses(ctx context.Context, query domain.ListQuery) ([]domain.Expense, int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint
		FROM expenses
		WHERE ($1::timestamptz IS NULL OR date >= $1)
			AND ($2::timestamptz IS NULL OR date <= $2)
	`, nullTimePtr(query.From), nullTimePtr(query.To)).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category_id, amount, date, COALESCE(note,''), created_at, updated_at
		FROM expenses
		WHERE ($1::timestamptz IS NULL OR date >= $1)
			AND ($2::timestamptz IS NULL OR date <= $2)
		ORDER BY created_at ASC, id ASC
		LIMIT $3 OFFSET $4
	`, nullTimePtr(query.From), nullTimePtr(query.To), query.PageLimit(), query.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, query.PageLimit())
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.CategoryID, &e.Amount, &e.Date, &e.Note, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, 0, err
		}
		e.Date = e.Date.UTC()
		e.CreatedAt = e.CreatedAt.UTC()
		e.UpdatedAt = e.UpdatedAt.UTC()
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return expenses, total, nil
}

func (s *Store) UpdateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if !expense.Amount.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	expense.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE expenses
		SET category_id = $2, amount = $3, date = $4, note = $5, updated_at = $6
		WHERE id = $1
	`, expense.ID, expense.CategoryID, expense.Amount, expense.Date, expense.Note, expense.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
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
	updated := expense
	return &updated, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
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

func (s *Store) DashboardStats(ctx context.Context, branchID string) (domain.DashboardStats, error) {
	var stats domain.DashboardStats

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*)::bigint FROM products WHERE ($1 = '' OR branch_id = $1)),
			(SELECT COUNT(*)::bigint FROM customers),
			(SELECT COUNT(*)::bigint FROM suppliers),
			(SELECT COALESCE(SUM(grand_total),0) FROM sales WHERE ($1 = '' OR branch_id = $1)),
			(SELECT COALESCE(SUM(grand_total),0) FROM purchases WHERE ($1 = '' OR branch_id = $1)),
			(SELECT COALESCE(SUM(amount),0) FROM expenses),
			(SELECT COALESCE(SUM(sales_due),0) FROM customers),
			(SELECT COALESCE(SUM(purchase_due),0) FROM suppliers)
	`, branchID).Scan(
		&stats.Products,
		&stats.Customers,
		&stats.Suppliers,
		&stats.TotalSales,
		&stats.TotalPurchases,
		&stats.TotalExpenses,
		&stats.SalesDue,
		&stats.PurchaseDue,
	)
	if err != nil {
		return stats, err
	}
	return stats, nil
}

func (s *Store) MonthlyTotals(ctx context.Context, year int, branchID string) ([]domain.MonthlyTotal, error) {
	totals := make([]domain.MonthlyTotal, 12)
	for i := range totals {
		totals[i].Month = i + 1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT EXTRACT(MONTH FROM date)::int, COALESCE(SUM(grand_total),0)
		FROM sales
		WHERE EXTRACT(YEAR FROM date)::int = $1 AND ($2 = '' OR branch_id = $2)
		GROUP BY 1
	`, year, branchID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var month int
		var sum decimal.Decimal
		if err := rows.Scan(&month, &sum); err != nil {
			_ = rows.Close()
			return nil, err
		}
		if month >= 1 && month <= 12 {
			totals[month-1].Sales = sum
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT EXTRACT(MONTH FROM date)::int, COALESCE(SUM(grand_total),0)
		FROM purchases
		WHERE EXTRACT(YEAR FROM date)::int = $1 AND ($2 = '' OR branch_id = $2)
		GROUP BY 1
	`, year, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var month int
		var sum decimal.Decimal
		if err := rows.Scan(&month, &sum); err != nil {
			return nil, err
		}
		if month >= 1 && month <= 12 {
			totals[month-1].Purchases = sum
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return totals, nil
}

func (s *Store) StockProductRows(ctx context.Context, branchID string) ([]domain.StockProductRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, COALESCE(b.name,''), COALESCE(c.name,''), COALESCE(br.name,''),
			p.stock, p.exc_tax, p.selling_price
		FROM products p
		LEFT JOIN brands b ON b.id = p.brand_id
		LEFT JOIN categories c ON c.id = p.category_id
		LEFT JOIN branches br ON br.id = p.branch_id
		WHERE ($1 = '' OR p.branch_id = $1)
		ORDER BY p.name ASC
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.StockProductRow, 0, 128)
	for rows.Next() {
		var row domain.StockProductRow
		if err := rows.Scan(&row.ProductID, &row.Name, &row.BrandName, &row.CategoryName,
			&row.BranchName, &row.Stock, &row.ExcTax, &row.SellingPrice); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) SoldQtyByProduct(ctx context.Context, branchID string) (map[string]int, error) {
	return s.qtyByProduct(ctx, `
		SELECT si.product_id, COALESCE(SUM(si.qty),0)::int
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		WHERE ($1 = '' OR s.branch_id = $1)
		GROUP BY si.product_id
	`, branchID)
}

func (s *Store) ReturnedQtyByProduct(ctx context.Context, branchID string) (map[string]int, error) {
	return s.qtyByProduct(ctx, `
		SELECT ri.product_id, COALESCE(SUM(ri.qty),0)::int
		FROM sales_return_items ri
		JOIN sales_returns r ON r.id = ri.return_id
		WHERE ($1 = '' OR r.branch_id = $1)
		GROUP BY ri.product_id
	`, branchID)
}

func (s *Store) qtyByProduct(ctx context.Context, query string, branchID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, query, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sums := make(map[string]int, 128)
	for rows.Next() {
		var productID string
		var qty int
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		sums[productID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sums, nil
}

func (s *Store) TradeTotals(ctx context.Context, from, to time.Time) (domain.TradeTotals, error) {
	var totals domain.TradeTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COALESCE(SUM(grand_total),0) FROM sales WHERE date >= $1 AND date <= $2),
			(SELECT COALESCE(SUM(grand_total),0) FROM sales_returns WHERE date >= $1 AND date <= $2),
			(SELECT COALESCE(SUM(grand_total),0) FROM purchases WHERE date >= $1 AND date <= $2),
			(SELECT COALESCE(SUM(grand_total),0) FROM purchase_returns WHERE date >= $1 AND date <= $2),
			(SELECT COALESCE(SUM(amount),0) FROM expenses WHERE date >= $1 AND date <= $2)
	`, from.UTC(), to.UTC()).Scan(
		&totals.Sales,
		&totals.SalesReturns,
		&totals.Purchases,
		&totals.PurchaseReturns,
		&totals.Expenses,
	)
	if err != nil {
		return totals, err
	}
	return totals, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, branch_id, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, user.Username, user.Password, user.Role, nullIfEmpty(user.Branch), user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, COALESCE(branch_id,''), active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Branch, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	if username == "" || password == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
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

func (s *Store) lineItemsByParent(ctx context.Context, table string, parentColumn string, ids []string) (map[string][]domain.LineItem, error) {
	result := make(map[string][]domain.LineItem, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	switch table {
	case "purchase_items", "sale_items", "purchase_return_items", "sales_return_items":
	default:
		return nil, store.ErrInvalidInput
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+parentColumn+`, product_id, qty, unit_price, discount, subtotal
		FROM `+table+`
		WHERE `+parentColumn+` = ANY($1)
		ORDER BY id ASC
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var parentID string
		var item domain.LineItem
		if err := rows.Scan(&parentID, &item.ProductID, &item.Qty, &item.UnitPrice, &item.Discount, &item.Subtotal); err != nil {
			return nil, err
		}
		result[parentID] = append(result[parentID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
