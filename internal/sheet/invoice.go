package sheet

import (
	"fmt"
	"io"

	"watson/internal"
	"watson/internal/util"
)

// ReadInvoice reads the first sheet that carries a Watson invoice header.
func ReadInvoice(r io.Reader) ([]internal.InvoiceLine, error) {
	sheets, err := readWorkbook(r)
	if err != nil {
		return nil, err
	}
	for _, s := range sheets {
		lines, err := ParseInvoiceRows(s.rows)
		if err == ErrNoHeader {
			continue
		}
		return lines, err
	}
	return nil, ErrNoHeader
}

// ParseInvoiceRows maps a grid of cells to invoice lines. Unreadable cells
// are recorded in InvoiceLine.Problems and never stop the sheet.
func ParseInvoiceRows(grid [][]string) ([]internal.InvoiceLine, error) {
	headerIdx, cols, err := findHeader(grid, invoiceAliases, fItemCode, fQty, fTotalCost)
	if err != nil {
		return nil, err
	}

	var out []internal.InvoiceLine
	for i := headerIdx + 1; i < len(grid); i++ {
		cells := grid[i]
		if blankRow(cells) {
			continue
		}
		line := internal.InvoiceLine{
			RowNo:       i + 1,
			InvoiceNo:   cols.cell(cells, fInvoiceNo),
			Store:       cols.cell(cells, fStore),
			ItemCode:    util.NormalizeCode(cols.cell(cells, fItemCode)),
			Description: cols.cell(cells, fDescription),
		}
		problem := func(format string, args ...any) {
			line.Problems = append(line.Problems, fmt.Sprintf(format, args...))
		}

		if line.ItemCode == "" {
			problem("missing item code")
		}

		if raw := cols.cell(cells, fQty); raw == "" {
			problem("missing qty")
		} else if qty, err := util.ParseQuantity(raw); err != nil {
			problem("qty: %v", err)
		} else {
			line.Quantity = qty
		}

		if raw := cols.cell(cells, fTotalCost); raw == "" {
			problem("missing total cost exclusive")
		} else if amount, err := util.ParseDecimal(raw); err != nil {
			problem("total cost exclusive: %v", err)
		} else {
			line.ReportedAmount = amount
		}

		if raw := cols.cell(cells, fDate); raw == "" {
			problem("missing date")
		} else if date, ok := util.ParseDate(raw); !ok {
			problem("date: unreadable %q", raw)
		} else {
			line.InvoiceDate = date
		}

		out = append(out, line)
	}
	return out, nil
}

// ParseInvoiceTables tries each table (as found in a mail body) and returns
// the lines of every table that has an invoice header.
func ParseInvoiceTables(tables [][][]string) []internal.InvoiceLine {
	var out []internal.InvoiceLine
	for _, t := range tables {
		lines, err := ParseInvoiceRows(t)
		if err != nil {
			continue
		}
		out = append(out, lines...)
	}
	return out
}
