package sheet

import (
	"errors"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"watson/internal/util"
)

// ErrNoHeader means no row in the scanned range looked like a header.
var ErrNoHeader = errors.New("sheet: header row not found")

const headerScanRows = 20

type field string

const (
	fItemCode    field = "item_code"
	fProdCode    field = "prod_code"
	fProdName    field = "prod_name"
	fStartDate   field = "start_date"
	fEndDate     field = "end_date"
	fStandard    field = "standard_price"
	fCommission  field = "commission_price"
	fInvoice62In field = "invoice62_incv"
	fInvoice62Ex field = "invoice62_excv"
	fRemark      field = "remark"

	fInvoiceNo   field = "invoice_no"
	fStore       field = "store"
	fDate        field = "date"
	fDescription field = "description"
	fQty         field = "qty"
	fTotalCost   field = "total_cost_exclusive"
)

type alias struct {
	field field
	names []string
}

// Alias order matters: the first field to claim a column keeps it.
var priceListAliases = []alias{
	{fItemCode, []string{"Item Code", "ItemCode", "Material", "Piece", "Piece No", "Part Number", "Watson Code", "Barcode"}},
	{fProdCode, []string{"Product Code", "ProdCode", "Article", "Prod Code"}},
	{fProdName, []string{"Description", "Item Name", "Material Description", "ItemName", "Prod Name", "ProdName"}},
	{fStartDate, []string{"Valid From", "Start Date", "StartDate", "ValidFrom", "Start"}},
	{fEndDate, []string{"Valid To", "End Date", "EndDate", "ValidTo", "End"}},
	{fInvoice62In, []string{"Invoice 62% (Inc.V)", "Invoice 62% IncV", "Invoice62IncV", "Invoce62% IncV"}},
	{fInvoice62Ex, []string{"Invoice 62% ExcV", "Invoice 62% ExV", "Invoice62ExcV", "Incoice 62% ExV"}},
	{fCommission, []string{"Comm. Price (Inc.V)", "Comm Price Inc", "Comm Price IncV", "CommPriceIncV", "Comm Price", "Price Inc VAT"}},
	{fStandard, []string{"Standard Price (Inc.V)", "Std Price Inc", "StandardPriceIncV", "Standard Price IncV", "Standard Price", "Price"}},
	{fRemark, []string{"Remark", "Remark1"}},
}

var invoiceAliases = []alias{
	{fItemCode, []string{"Item Code", "ItemCode"}},
	{fInvoiceNo, []string{"Invoice No", "Invoice No.", "Invoice Number", "InvoiceNo"}},
	{fStore, []string{"Store", "Store Code"}},
	{fDate, []string{"Date", "Invoice Date"}},
	{fDescription, []string{"Item Description", "Description"}},
	{fQty, []string{"Qty", "Quantity"}},
	{fTotalCost, []string{"Total Cost Exclusive", "Total Cost (Exclusive)", "TotalCostExclusive"}},
}

type columns map[field]int

func (c columns) has(f field) bool {
	_, ok := c[f]
	return ok
}

func (c columns) cell(row []string, f field) string {
	idx, ok := c[f]
	if !ok || idx >= len(row) {
		return ""
	}
	return util.NormalizeSpaces(strings.ReplaceAll(row[idx], "\u00A0", " "))
}

// mapColumns matches header cells to fields: exact normalized names first,
// then multi-word names contained in a longer header.
func mapColumns(header []string, aliases []alias) columns {
	norm := make([]string, len(header))
	for i, h := range header {
		norm[i] = util.NormalizeHeader(h)
	}

	cols := columns{}
	claimed := map[int]bool{}
	claim := func(f field, match func(h, name string) bool, multiWordOnly bool) {
		if cols.has(f) {
			return
		}
		for _, a := range aliases {
			if a.field != f {
				continue
			}
			for _, name := range a.names {
				n := util.NormalizeHeader(name)
				if multiWordOnly && !strings.Contains(n, " ") {
					continue
				}
				for i, h := range norm {
					if h == "" || claimed[i] {
						continue
					}
					if match(h, n) {
						cols[f] = i
						claimed[i] = true
						return
					}
				}
			}
		}
	}

	exact := func(h, n string) bool { return h == n }
	contains := func(h, n string) bool { return strings.Contains(h, n) }
	for _, a := range aliases {
		claim(a.field, exact, false)
	}
	for _, a := range aliases {
		claim(a.field, contains, true)
	}
	return cols
}

// findHeader returns the index of the first row within the scan range whose
// mapped columns include every required field.
func findHeader(rows [][]string, aliases []alias, required ...field) (int, columns, error) {
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		cols := mapColumns(rows[i], aliases)
		ok := true
		for _, f := range required {
			if !cols.has(f) {
				ok = false
				break
			}
		}
		if ok {
			return i, cols, nil
		}
	}
	return -1, nil, ErrNoHeader
}

type workbookSheet struct {
	name string
	rows [][]string
}

// readWorkbook returns every sheet's rows with raw cell values, so dates come
// back as Excel serials instead of locale formatted text.
func readWorkbook(r io.Reader) ([]workbookSheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []workbookSheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			continue
		}
		if len(rows) == 0 {
			continue
		}
		out = append(out, workbookSheet{name: name, rows: rows})
	}
	return out, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
