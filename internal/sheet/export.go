package sheet

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"watson/internal"
)

const resultsSheet = "Results"

// ExportSummary is written to the Summary sheet of a result workbook.
type ExportSummary struct {
	RunID             string
	Source            string
	RunAt             time.Time
	Lines             int
	Acceptable        int
	Unacceptable      int
	AverageConfidence float64
	TotalDiff         string
	ByStatus          map[string]int
}

var resultHeaders = []string{
	"Row", "Invoice No", "Store", "Item Code", "Item Description", "Date", "Qty", "Total Cost Exclusive",
	"QtyBuy1", "PriceBuy1_Invoice_Formula", "PriceBuy1_Com_Calculate",
	"QtyPro", "PricePro_Invoice_Formula", "PricePro_Com_Calculate",
	"Remark", "FMProductCode", "ReportRunDateTime",
	"Status", "Expected Price", "Price Match", "Period Start", "Matched Period",
	"Std Qty", "Promo Qty", "Allocation", "Calc Amt", "Diff", "Confidence",
	"PL Name", "PL Remark", "PL Full Price", "PL Comm Price", "PL Invoice62 IncV",
	"Total Comm", "Calc Log",
}

// ExportResults writes the per-line results and a summary sheet to
// outputPath, creating its directory.
func ExportResults(rows []internal.ResultExportRow, summary ExportSummary, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), resultsSheet); err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return err
	}
	percentStyle, err := f.NewStyle(&excelize.Style{NumFmt: 10})
	if err != nil {
		return err
	}
	wrapStyle, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
	if err != nil {
		return err
	}

	for i, h := range resultHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(resultsSheet, cell, h)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(resultHeaders), 1)
	_ = f.SetCellStyle(resultsSheet, "A1", lastHeader, headerStyle)

	runAt := ""
	if !summary.RunAt.IsZero() {
		runAt = summary.RunAt.Format("2006-01-02 15:04:05")
	}

	for i, row := range rows {
		r := i + 2
		col := 0
		set := func(value any) {
			col++
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(resultsSheet, cell, value)
		}

		set(row.RowNo)
		set(row.InvoiceNo)
		set(row.Store)
		set(row.ItemCode)
		set(row.Description)
		set(row.InvoiceDate)
		set(row.Qty)
		set(number(row.ReportedAmount))
		set(optionalInt(row.QtyBuy1))
		set(number(row.PriceBuy1Invoice))
		set(number(row.PriceBuy1Comm))
		set(optionalInt(row.QtyPro))
		set(number(row.PriceProInvoice))
		set(number(row.PriceProComm))
		set(dash(row.Remark))
		set(row.FMProductCode)
		set(runAt)
		set(row.Status)
		set(dash(row.ExpectedPrice))
		set(row.PriceMatch)
		set(dash(row.PeriodStart))
		set(tiers(row.Tiers))
		set(dash(row.StdQty))
		set(dash(row.PromoQty))
		set(dash(row.Allocation))
		set(number(row.CalcAmount))
		set(dash(row.Diff))
		confidenceCol := col + 1
		set(row.Confidence)
		set(dash(row.PLName))
		set(dash(row.PLRemark))
		set(number(row.PLFullPrice))
		set(number(row.PLCommPrice))
		set(number(row.PLInvoice62))
		set(number(row.TotalCommission))
		set(row.CalcLog)

		cell, _ := excelize.CoordinatesToCellName(confidenceCol, r)
		_ = f.SetCellStyle(resultsSheet, cell, cell, percentStyle)
		logCell, _ := excelize.CoordinatesToCellName(col, r)
		_ = f.SetCellStyle(resultsSheet, logCell, logCell, wrapStyle)
	}

	_ = f.SetPanes(resultsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	logColumn, _ := excelize.ColumnNumberToName(len(resultHeaders))
	_ = f.SetColWidth(resultsSheet, logColumn, logColumn, 80)

	if err := writeSummarySheet(f, summary, runAt); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func writeSummarySheet(f *excelize.File, s ExportSummary, runAt string) error {
	const name = "Summary"
	if _, err := f.NewSheet(name); err != nil {
		return err
	}
	pairs := [][2]any{
		{"Run", s.RunID},
		{"Source", s.Source},
		{"Run at", runAt},
		{"Lines", s.Lines},
		{"Acceptable", s.Acceptable},
		{"Unacceptable", s.Unacceptable},
		{"Average confidence", fmt.Sprintf("%.1f%%", s.AverageConfidence*100)},
		{"Total diff", number(s.TotalDiff)},
	}
	statuses := make([]string, 0, len(s.ByStatus))
	for status := range s.ByStatus {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		pairs = append(pairs, [2]any{status, s.ByStatus[status]})
	}

	for i, p := range pairs {
		_ = f.SetCellValue(name, fmt.Sprintf("A%d", i+1), p[0])
		_ = f.SetCellValue(name, fmt.Sprintf("B%d", i+1), p[1])
	}
	return f.SetColWidth(name, "A", "A", 22)
}

func number(s string) any {
	if s == "" {
		return ""
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	return v
}

func optionalInt(v int) any {
	if v == 0 {
		return ""
	}
	return v
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func tiers(n int) string {
	if n == 0 {
		return "-"
	}
	return fmt.Sprintf("%d tiers", n)
}
