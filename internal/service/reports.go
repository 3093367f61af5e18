package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"stocklane/backend/internal/domain"
	"stocklane/backend/internal/store"
)

func (s *Service) DashboardStats(ctx context.Context, branchID string) (domain.DashboardStats, error) {
	branchID = s.scopeBranch(ctx, branchID)
	return s.repo.DashboardStats(ctx, branchID)
}

func (s *Service) MonthlyReport(ctx context.Context, year int, branchID string) (domain.MonthlyReport, error) {
	if year < 2000 || year > 2200 {
		return domain.MonthlyReport{}, store.ErrInvalidInput
	}
	branchID = s.scopeBranch(ctx, branchID)

	totals, err := s.repo.MonthlyTotals(ctx, year, branchID)
	if err != nil {
		return domain.MonthlyReport{}, err
	}
	return domain.MonthlyReport{Year: year, Totals: totals}, nil
}

// StockReport values every product at cost and at sale price and nets sold
// units against returned units. Potential profit is what the remaining stock
// would earn if sold at the current selling price.
func (s *Service) StockReport(ctx context.Context, branchID string) ([]domain.StockReportRow, error) {
	branchID = s.scopeBranch(ctx, branchID)

	products, err := s.repo.StockProductRows(ctx, branchID)
	if err != nil {
		return nil, err
	}
	sold, err := s.repo.SoldQtyByProduct(ctx, branchID)
	if err != nil {
		return nil, err
	}
	returned, err := s.repo.ReturnedQtyByProduct(ctx, branchID)
	if err != nil {
		return nil, err
	}

	return buildStockReport(products, sold, returned), nil
}

func buildStockReport(products []domain.StockProductRow, sold, returned map[string]int) []domain.StockReportRow {
	rows := make([]domain.StockReportRow, 0, len(products))
	for _, p := range products {
		stock := decimal.NewFromInt(int64(p.Stock))
		rows = append(rows, domain.StockReportRow{
			ProductID:       p.ProductID,
			Name:            p.Name,
			BrandName:       p.BrandName,
			CategoryName:    p.CategoryName,
			BranchName:      p.BranchName,
			Stock:           p.Stock,
			StockValueCost:  stock.Mul(p.ExcTax),
			StockValueSale:  stock.Mul(p.SellingPrice),
			PotentialProfit: stock.Mul(p.SellingPrice.Sub(p.ExcTax)),
			TotalUnitSold:   sold[p.ProductID] - returned[p.ProductID],
		})
	}
	return rows
}

// ProfitLoss nets the period's trade: returns reduce their side before the
// sides are compared, and operating expenses come off last.
func (s *Service) ProfitLoss(ctx context.Context, from, to time.Time) (domain.ProfitLossReport, error) {
	if to.Before(from) {
		return domain.ProfitLossReport{}, store.ErrInvalidInput
	}

	totals, err := s.repo.TradeTotals(ctx, from, to)
	if err != nil {
		return domain.ProfitLossReport{}, err
	}
	return buildProfitLoss(from, to, totals), nil
}

func buildProfitLoss(from, to time.Time, totals domain.TradeTotals) domain.ProfitLossReport {
	netSales := totals.Sales.Sub(totals.SalesReturns)
	netPurchases := totals.Purchases.Sub(totals.PurchaseReturns)
	gross := netSales.Sub(netPurchases)

	return domain.ProfitLossReport{
		From:                from.UTC().Format("2006-01-02"),
		To:                  to.UTC().Format("2006-01-02"),
		TotalSales:          totals.Sales,
		TotalSalesReturn:    totals.SalesReturns,
		TotalPurchases:      totals.Purchases,
		TotalPurchaseReturn: totals.PurchaseReturns,
		TotalExpenses:       totals.Expenses,
		GrossProfit:         gross,
		NetProfit:           gross.Sub(totals.Expenses),
	}
}
