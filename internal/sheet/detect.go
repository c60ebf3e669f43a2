package sheet

import (
	"io"

	"watson/internal"
)

// DetectSheetKind classifies a header row.
func DetectSheetKind(header []string) internal.SheetKind {
	if cols := mapColumns(header, invoiceAliases); cols.has(fItemCode) && cols.has(fQty) && cols.has(fTotalCost) {
		return internal.SheetInvoice
	}
	cols := mapColumns(header, priceListAliases)
	if cols.has(fItemCode) && cols.has(fStartDate) &&
		(cols.has(fInvoice62Ex) || cols.has(fCommission) || cols.has(fStandard)) {
		return internal.SheetPriceList
	}
	return internal.SheetUnknown
}

// Detect scans the header range of every sheet and reports the first kind
// recognised.
func Detect(r io.Reader) (internal.SheetKind, error) {
	sheets, err := readWorkbook(r)
	if err != nil {
		return internal.SheetUnknown, err
	}
	for _, s := range sheets {
		for i := 0; i < len(s.rows) && i < headerScanRows; i++ {
			if kind := DetectSheetKind(s.rows[i]); kind != internal.SheetUnknown {
				return kind, nil
			}
		}
	}
	return internal.SheetUnknown, nil
}
