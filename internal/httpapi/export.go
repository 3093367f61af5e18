package httpapi

import (
	"encoding/csv"
	"fmt"
	"net/http"

	"github.com/xuri/excelize/v2"
)

// handleStockExport streams the stock report as an XLSX workbook.
func (a *API) handleStockExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	rows, err := a.service.StockReport(r.Context(), r.URL.Query().Get("branch_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Sheet1"

	headers := []string{"Product", "Brand", "Category", "Branch", "Stock", "Stock Value (Cost)", "Stock Value (Sale)", "Potential Profit", "Units Sold"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
	}
	for i, row := range rows {
		values := []any{
			row.Name,
			row.BrandName,
			row.CategoryName,
			row.BranchName,
			row.Stock,
			row.StockValueCost.InexactFloat64(),
			row.StockValueSale.InexactFloat64(),
			row.PotentialProfit.InexactFloat64(),
			row.TotalUnitSold,
		}
		for j, value := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			f.SetCellValue(sheet, cell, value)
		}
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="stock-report.xlsx"`)
	if err := f.Write(w); err != nil {
		a.log.WithError(err).Error("write stock export")
	}
}

// handleProfitLossExport streams the profit and loss report as CSV.
func (a *API) handleProfitLossExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	from, to, err := parseReportRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	report, err := a.service.ProfitLoss(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="profit-loss-%s-%s.csv"`, report.From, report.To))
	writer := csv.NewWriter(w)
	records := [][]string{
		{"key", "value"},
		{"from", report.From},
		{"to", report.To},
		{"total_sales", report.TotalSales.String()},
		{"total_sales_return", report.TotalSalesReturn.String()},
		{"total_purchases", report.TotalPurchases.String()},
		{"total_purchase_return", report.TotalPurchaseReturn.String()},
		{"total_expenses", report.TotalExpenses.String()},
		{"gross_profit", report.GrossProfit.String()},
		{"net_profit", report.NetProfit.String()},
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			a.log.WithError(err).Error("write profit loss export")
			return
		}
	}
	writer.Flush()
}
