package sheet

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"watson/internal"
	"watson/internal/util"
)

var vatFactor = decimal.RequireFromString("1.07")

// ReadPriceList reads the first sheet that carries a price list header.
// Cells that cannot be read are reported per row; the row is kept when the
// problem is not fatal for it.
func ReadPriceList(r io.Reader) ([]internal.PriceListRow, []internal.RowIssue, error) {
	sheets, err := readWorkbook(r)
	if err != nil {
		return nil, nil, err
	}
	for _, s := range sheets {
		rows, issues, err := ParsePriceListRows(s.rows)
		if err == ErrNoHeader {
			continue
		}
		return rows, issues, err
	}
	return nil, nil, ErrNoHeader
}

// ParsePriceListRows maps a grid of cells (header row included) to price list
// rows. RowNo is the 1-based spreadsheet row.
func ParsePriceListRows(grid [][]string) ([]internal.PriceListRow, []internal.RowIssue, error) {
	headerIdx, cols, err := findHeader(grid, priceListAliases, fItemCode, fStartDate)
	if err != nil {
		return nil, nil, err
	}

	var out []internal.PriceListRow
	var issues []internal.RowIssue
	for i := headerIdx + 1; i < len(grid); i++ {
		cells := grid[i]
		if blankRow(cells) {
			continue
		}
		rowNo := i + 1
		code := util.NormalizeCode(cols.cell(cells, fItemCode))
		flag := func(format string, args ...any) {
			issues = append(issues, internal.RowIssue{RowNo: rowNo, ItemCode: code, Reason: fmt.Sprintf(format, args...)})
		}

		row := internal.PriceListRow{
			RowNo:    rowNo,
			ItemCode: code,
			ProdCode: cols.cell(cells, fProdCode),
			ProdName: cols.cell(cells, fProdName),
			Remark:   cols.cell(cells, fRemark),
		}

		row.StartDate = dateCell(cols.cell(cells, fStartDate), "start date", flag)
		row.EndDate = dateCell(cols.cell(cells, fEndDate), "end date", flag)

		money := func(f field, label string) decimal.Decimal {
			raw := cols.cell(cells, f)
			if raw == "" || raw == "-" {
				return decimal.Zero
			}
			v, err := util.ParseDecimal(raw)
			if err != nil {
				flag("%s: %v", label, err)
				return decimal.Zero
			}
			return v
		}
		row.StandardPrice = money(fStandard, "standard price")
		commission := money(fCommission, "comm price")
		row.Invoice62IncV = money(fInvoice62In, "invoice 62% IncV")
		excV := money(fInvoice62Ex, "invoice 62% ExcV")

		if commission.IsPositive() {
			row.CommissionPrice = decimal.NewNullDecimal(commission)
			row.IncVatPrice = commission
		} else {
			row.IncVatPrice = row.StandardPrice
		}
		row.ExtVatPrice = excV
		if !row.ExtVatPrice.IsPositive() && row.IncVatPrice.IsPositive() {
			row.ExtVatPrice = row.IncVatPrice.DivRound(vatFactor, 4)
		}

		out = append(out, row)
	}
	return out, issues, nil
}

func dateCell(raw, label string, flag func(string, ...any)) *time.Time {
	if raw == "" || raw == "-" {
		return nil
	}
	t, ok := util.ParseDate(raw)
	if !ok {
		flag("%s: unreadable %q", label, raw)
		return nil
	}
	return &t
}
