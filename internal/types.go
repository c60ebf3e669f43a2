package internal

import (
	"time"

	"github.com/shopspring/decimal"
)

type SheetKind string

const (
	SheetPriceList SheetKind = "price_list"
	SheetInvoice   SheetKind = "invoice"
	SheetUnknown   SheetKind = "unknown"
)

// PriceListRow is one flat row of an imported price list.
type PriceListRow struct {
	RowNo           int
	ItemCode        string
	ProdCode        string
	ProdName        string
	StartDate       *time.Time
	EndDate         *time.Time
	StandardPrice   decimal.Decimal
	CommissionPrice decimal.NullDecimal
	ExtVatPrice     decimal.Decimal
	IncVatPrice     decimal.Decimal
	Invoice62IncV   decimal.Decimal
	Remark          string
}

// PricePeriod is one validity window of an item's pricing. EndDate nil means
// the period is still open.
type PricePeriod struct {
	ItemCode        string
	ProdCode        string
	ProdName        string
	StartDate       time.Time
	EndDate         *time.Time
	StandardPrice   decimal.Decimal
	CommissionPrice decimal.NullDecimal
	ExtVatPrice     decimal.Decimal
	IncVatPrice     decimal.Decimal
	Invoice62IncV   decimal.Decimal
	Remark          string
}

// RowIssue flags a single input row that was skipped or could not be read.
type RowIssue struct {
	RowNo    int    `json:"rowNo"`
	ItemCode string `json:"itemCode"`
	Reason   string `json:"reason"`
}

type InvoiceLine struct {
	RowNo          int
	InvoiceNo      string
	Store          string
	ItemCode       string
	Description    string
	Quantity       int
	ReportedAmount decimal.Decimal
	InvoiceDate    time.Time
	Problems       []string
}

type PriceImport struct {
	ID         string
	SourceName string
	RowCount   int
	IssueCount int
	CreatedAt  string
}

type RunRow struct {
	ID                string
	SourceName        string
	TotalItems        int
	AcceptableCount   int
	UnacceptableCount int
	AverageConfidence float64
	TotalDiff         string
	CreatedAt         string
}

// ResultExportRow is the flattened per-line outcome written to workbooks and
// stored with a run. Money columns are preformatted with two decimals; empty
// means "not applicable".
type ResultExportRow struct {
	RowNo          int
	InvoiceNo      string
	Store          string
	ItemCode       string
	Description    string
	InvoiceDate    string
	Qty            int
	ReportedAmount string

	Status        string
	PriceMatch    string
	ExpectedPrice string
	PeriodStart   string
	Tiers         int
	StdQty        string
	PromoQty      string
	Allocation    string
	CalcAmount    string
	Diff          string
	Confidence    float64
	Acceptable    bool

	QtyBuy1          int
	PriceBuy1Invoice string
	PriceBuy1Comm    string
	QtyPro           int
	PriceProInvoice  string
	PriceProComm     string

	PLName          string
	PLRemark        string
	PLFullPrice     string
	PLCommPrice     string
	PLInvoice62     string
	TotalCommission string
	Remark          string
	FMProductCode   string
	CalcLog         string
}

// FetchedMail is one raw message pulled from a mail source.
type FetchedMail struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
	// Name is the file name when the source is a plain workbook rather than
	// a mail message.
	Name string
}

type MessageRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
	Error      string
}

const (
	MessageFetched   = "fetched"
	MessageProcessed = "processed"
	MessageFailed    = "failed"
	MessageSkipped   = "skipped"
)
