package reconcile

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"watson/internal"
	"watson/internal/optimizer"
	"watson/internal/pricehistory"
	"watson/internal/util"
)

const stdLabel = "Std"

// ExportRow flattens a result into the workbook columns. The buy-one and promo
// columns carry per-unit prices (Invoice 62% IncV when the price list has it,
// otherwise the matched ext-VAT price) and the per-unit commission.
func ExportRow(res LineResult) internal.ResultExportRow {
	line := res.Line
	calc := res.Calculation
	row := internal.ResultExportRow{
		RowNo:          line.RowNo,
		InvoiceNo:      line.InvoiceNo,
		Store:          line.Store,
		ItemCode:       line.ItemCode,
		Description:    line.Description,
		Qty:            line.Quantity,
		ReportedAmount: line.ReportedAmount.StringFixed(2),
		Status:         string(res.Status),
		PriceMatch:     priceMatch(res),
		Tiers:          len(res.Tiers),
		Confidence:     calc.ConfidenceScore,
		Acceptable:     res.Acceptable(),
		FMProductCode:  res.ProductCode,
		CalcLog:        strings.Join(res.Trace, "\n"),
	}
	if !line.InvoiceDate.IsZero() {
		row.InvoiceDate = util.FormatDate(line.InvoiceDate)
	}
	if res.TotalCommission.Valid {
		row.TotalCommission = res.TotalCommission.Decimal.StringFixed(2)
	}

	p := res.Period
	if p != nil {
		row.ExpectedPrice = p.ExtVatPrice.StringFixed(2)
		row.PeriodStart = util.FormatDate(p.StartDate)
		row.PLName = p.ProdName
		row.PLRemark = p.Remark
		row.PLFullPrice = nonZero(p.StandardPrice)
		row.PLCommPrice = nullable(pricehistory.CommissionPrice(*p))
		row.PLInvoice62 = nonZero(p.Invoice62IncV)
		row.Remark = p.Remark
	}

	switch res.Status {
	case StatusReturn, StatusInvalidInput, StatusItemNotFound:
		return row
	case StatusSingleUnit:
		row.StdQty, row.PromoQty = "1", "0"
		row.QtyBuy1 = 1
		row.CalcAmount = line.ReportedAmount.StringFixed(2)
		row.PriceBuy1Invoice = line.ReportedAmount.StringFixed(2)
		if p != nil {
			if inv := nonZero(p.Invoice62IncV); inv != "" {
				row.PriceBuy1Invoice = inv
			}
			row.PriceBuy1Comm = nullable(pricehistory.CommissionPrice(*p))
		}
		return row
	}

	if len(calc.ChosenPrices) == 0 {
		return row
	}

	row.Allocation = optimizer.FormatAllocation(calc.ChosenPrices)
	row.CalcAmount = calc.ComputedAmount.StringFixed(2)
	row.Diff = optimizer.FormatDiff(calc.Difference, calc.IsAcceptable)

	var promos []optimizer.Allocation
	var remarks []string
	for _, a := range calc.ChosenPrices {
		if a.Label == stdLabel {
			row.QtyBuy1 = a.Qty
			row.PriceBuy1Invoice = unitInvoice(p, a)
			row.PriceBuy1Comm = nullable(a.CommissionPrice)
		} else {
			promos = append(promos, a)
			row.QtyPro += a.Qty
			row.PriceProInvoice = unitInvoice(p, a)
			row.PriceProComm = nullable(a.CommissionPrice)
		}
		if a.Remark != "" {
			remarks = append(remarks, a.Remark)
		}
	}
	row.StdQty = strconv.Itoa(row.QtyBuy1)
	row.PromoQty = "0"
	if len(promos) > 0 {
		row.PromoQty = optimizer.FormatAllocation(promos)
	}
	if len(remarks) > 0 {
		row.Remark = strings.Join(remarks, "; ")
	}

	// The price list columns describe the tier that carries most of the units.
	dominant := calc.ChosenPrices[0]
	for _, a := range calc.ChosenPrices[1:] {
		if a.Qty > dominant.Qty {
			dominant = a
		}
	}
	if dominant.Remark != "" {
		row.PLRemark = dominant.Remark
	}
	if c := nullable(dominant.CommissionPrice); c != "" {
		row.PLCommPrice = c
	}
	if s := nullable(dominant.StandardPrice); s != "" {
		row.PLFullPrice = s
	}
	return row
}

func ExportRows(results []LineResult) []internal.ResultExportRow {
	out := make([]internal.ResultExportRow, 0, len(results))
	for _, res := range results {
		out = append(out, ExportRow(res))
	}
	return out
}

func priceMatch(res LineResult) string {
	switch res.Status {
	case StatusOK:
		return "OK"
	case StatusLowConfidence:
		diff := res.Calculation.Difference
		if diff.IsPositive() {
			return "+" + diff.StringFixed(2)
		}
		return diff.StringFixed(2)
	case StatusNoPeriod:
		return "No period"
	case StatusItemNotFound:
		return "Not found"
	case StatusReturn:
		return "Return"
	case StatusSingleUnit:
		return "Qty=1"
	default:
		return "Invalid"
	}
}

func unitInvoice(p *internal.PricePeriod, a optimizer.Allocation) string {
	if p != nil && p.Invoice62IncV.IsPositive() {
		return p.Invoice62IncV.StringFixed(2)
	}
	return a.Price.StringFixed(2)
}

func nonZero(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return d.StringFixed(2)
}

func nullable(d decimal.NullDecimal) string {
	if !d.Valid || d.Decimal.IsZero() {
		return ""
	}
	return d.Decimal.StringFixed(2)
}
