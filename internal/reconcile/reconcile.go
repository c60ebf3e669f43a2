// Package reconcile checks Watson invoice lines against the price history:
// it resolves the tiers active on the invoice date, asks the optimizer for the
// best quantity split and adds the commission owed on that split.
package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"watson/internal"
	"watson/internal/codemap"
	"watson/internal/optimizer"
	"watson/internal/pricehistory"
	"watson/internal/util"
)

type Status string

const (
	StatusOK            = Status(optimizer.StatusOK)
	StatusLowConfidence = Status(optimizer.StatusLowConfidence)
	StatusNoPeriod      = Status(optimizer.StatusNoPeriod)
	StatusInvalidInput  = Status(optimizer.StatusInvalidInput)
	StatusItemNotFound  Status = "ITEM_NOT_FOUND"
	StatusReturn        Status = "RETURN"
	StatusSingleUnit    Status = "SINGLE_UNIT"
)

type Options struct {
	Optimizer  optimizer.Options
	Candidates pricehistory.CandidateOptions
	// SkipSingleUnit accepts one-unit lines as charged: a single item's price
	// legitimately varies and there is nothing to split.
	SkipSingleUnit bool
	Workers        int
}

func DefaultOptions() Options {
	return Options{Optimizer: optimizer.DefaultOptions(), SkipSingleUnit: true, Workers: 1}
}

type LineResult struct {
	Line            internal.InvoiceLine
	Status          Status
	ProductCode     string
	Period          *internal.PricePeriod
	Tiers           []internal.PricePeriod
	Calculation     optimizer.CalculationResult
	TotalCommission decimal.NullDecimal
	Trace           []string
}

// Acceptable reports whether the line needs no follow-up. Returns are not
// judged and never acceptable.
func (r LineResult) Acceptable() bool {
	return r.Calculation.IsAcceptable
}

type Summary struct {
	Lines    int
	ByStatus map[Status]int
	// Checked aggregates every line except returns.
	Checked optimizer.BatchSummary
}

type Reconciler struct {
	index   *pricehistory.Index
	mapping *codemap.Mapping
	opts    Options
}

// New wires a reconciler. A nil mapping leaves item codes untranslated.
func New(index *pricehistory.Index, mapping *codemap.Mapping, opts Options) *Reconciler {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if index == nil {
		index, _ = pricehistory.Build(nil)
	}
	return &Reconciler{index: index, mapping: mapping, opts: opts}
}

// Line reconciles a single invoice line.
func (r *Reconciler) Line(line internal.InvoiceLine) LineResult {
	res, prices, search := r.prepare(line)
	if search {
		r.finish(&res, optimizer.FindBestPriceCombination(prices, line.Quantity, line.ReportedAmount, r.opts.Optimizer))
	}
	return res
}

// Lines reconciles lines in order, running the searches on up to
// Options.Workers goroutines.
func (r *Reconciler) Lines(ctx context.Context, lines []internal.InvoiceLine) ([]LineResult, Summary, error) {
	results := make([]LineResult, len(lines))
	var items []optimizer.BatchItem
	var slots []int

	for i, line := range lines {
		res, prices, search := r.prepare(line)
		results[i] = res
		if !search {
			continue
		}
		items = append(items, optimizer.BatchItem{
			ID:             fmt.Sprintf("%d", line.RowNo),
			ItemCode:       res.Line.ItemCode,
			Quantity:       line.Quantity,
			ReportedAmount: line.ReportedAmount,
			Prices:         prices,
		})
		slots = append(slots, i)
	}

	calculated, err := optimizer.CalculateBatchParallel(ctx, items, r.opts.Optimizer, r.opts.Workers)
	if err != nil {
		return nil, Summary{}, err
	}
	for j, calc := range calculated {
		r.finish(&results[slots[j]], calc.CalculationResult)
	}
	return results, Summarize(results), nil
}

func Summarize(results []LineResult) Summary {
	s := Summary{Lines: len(results), ByStatus: map[Status]int{}}
	checked := make([]optimizer.BatchResult, 0, len(results))
	for _, res := range results {
		s.ByStatus[res.Status]++
		if res.Status == StatusReturn {
			continue
		}
		checked = append(checked, optimizer.BatchResult{
			ID:                fmt.Sprintf("%d", res.Line.RowNo),
			ItemCode:          res.Line.ItemCode,
			CalculationResult: res.Calculation,
		})
	}
	s.Checked = optimizer.SummarizeBatch(checked)
	return s
}

// prepare settles every line that needs no search and returns the candidate
// prices for the rest.
func (r *Reconciler) prepare(line internal.InvoiceLine) (LineResult, []optimizer.PriceOption, bool) {
	line.ItemCode = util.NormalizeCode(line.ItemCode)
	res := LineResult{
		Line:        line,
		ProductCode: r.mapping.ProductCode(line.ItemCode),
	}
	res.Trace = append(res.Trace, fmt.Sprintf("item %s date %s qty %d amount %s",
		line.ItemCode, util.FormatDate(line.InvoiceDate), line.Quantity, line.ReportedAmount.StringFixed(2)))

	switch {
	case len(line.Problems) > 0:
		msg := strings.Join(line.Problems, "; ")
		res.Status = StatusInvalidInput
		res.Calculation = flat(optimizer.StatusInvalidInput, line.ReportedAmount, msg)
		res.Trace = append(res.Trace, "invalid input: "+msg)
		return res, nil, false

	case line.ItemCode == "":
		res.Status = StatusInvalidInput
		res.Calculation = flat(optimizer.StatusInvalidInput, line.ReportedAmount, "missing item code")
		res.Trace = append(res.Trace, "invalid input: missing item code")
		return res, nil, false

	case line.Quantity < 0 || line.ReportedAmount.IsNegative():
		res.Status = StatusReturn
		res.Period = r.referencePeriod(line)
		res.Calculation = flat(optimizer.StatusOK, decimal.Zero, "return")
		res.Trace = append(res.Trace, "return: negative quantity or amount, no price check")
		return res, nil, false

	case line.Quantity == 1 && r.opts.SkipSingleUnit:
		res.Status = StatusSingleUnit
		res.Period = r.referencePeriod(line)
		res.Calculation = optimizer.CalculationResult{
			MatchedPeriod:   res.Period,
			ComputedAmount:  line.ReportedAmount,
			Difference:      decimal.Zero,
			RelativeDiff:    decimal.Zero,
			ConfidenceScore: 1,
			IsAcceptable:    true,
			Status:          optimizer.StatusOK,
			TotalQty:        1,
		}
		if res.Period != nil {
			if c := pricehistory.CommissionPrice(*res.Period); c.Valid {
				res.TotalCommission = c
			}
		}
		res.Trace = append(res.Trace, "single unit: accepted as charged")
		return res, nil, false

	case !r.index.Has(line.ItemCode):
		res.Status = StatusItemNotFound
		res.Calculation = flat(optimizer.StatusNoPeriod, line.ReportedAmount, "item not in price list")
		res.Trace = append(res.Trace, fmt.Sprintf("item %s not found in price list", line.ItemCode))
		return res, nil, false
	}

	prices, tiers := r.index.Candidates(line.ItemCode, line.InvoiceDate, r.opts.Candidates)
	res.Tiers = tiers
	if period, ok := r.index.FindPeriod(line.ItemCode, line.InvoiceDate); ok {
		res.Period = &period
		res.Trace = append(res.Trace, fmt.Sprintf("period %s, %d tier(s)", periodRange(period), len(tiers)))
		for i, p := range tiers {
			res.Trace = append(res.Trace, fmt.Sprintf("tier %d: %s ext-VAT, remark %s", i+1, p.ExtVatPrice.StringFixed(2), orDash(p.Remark)))
		}
	} else {
		periods := r.index.Periods(line.ItemCode)
		res.Trace = append(res.Trace, fmt.Sprintf("no period covers %s; item has %d period(s):", util.FormatDate(line.InvoiceDate), len(periods)))
		for i, p := range periods {
			res.Trace = append(res.Trace, fmt.Sprintf("  %d. %s %s %s", i+1, periodRange(p), p.ExtVatPrice.StringFixed(2), orDash(p.Remark)))
		}
	}
	return res, prices, true
}

func (r *Reconciler) finish(res *LineResult, calc optimizer.CalculationResult) {
	calc.MatchedPeriod = res.Period
	res.Calculation = calc
	res.Status = Status(calc.Status)
	res.Trace = append(res.Trace, calc.ExplanationTrace...)

	total := decimal.Zero
	found := false
	for _, a := range calc.ChosenPrices {
		if !a.CommissionPrice.Valid || a.Qty == 0 {
			continue
		}
		comm := a.CommissionPrice.Decimal.Mul(decimal.NewFromInt(int64(a.Qty)))
		total = total.Add(comm)
		found = true
		res.Trace = append(res.Trace, fmt.Sprintf("commission %s: %s x %d = %s",
			displayLabel(a), a.CommissionPrice.Decimal.StringFixed(2), a.Qty, comm.StringFixed(2)))
	}
	if found {
		res.TotalCommission = decimal.NewNullDecimal(total)
		res.Trace = append(res.Trace, "commission total: "+total.StringFixed(2))
	}
}

// referencePeriod is the period shown for lines that skip the search: the one
// active on the invoice date, else the item's first.
func (r *Reconciler) referencePeriod(line internal.InvoiceLine) *internal.PricePeriod {
	if p, ok := r.index.FindPeriod(line.ItemCode, line.InvoiceDate); ok {
		return &p
	}
	periods := r.index.Periods(line.ItemCode)
	if len(periods) == 0 {
		return nil
	}
	return &periods[0]
}

func flat(status optimizer.Status, diff decimal.Decimal, msg string) optimizer.CalculationResult {
	return optimizer.CalculationResult{
		ComputedAmount: decimal.Zero,
		Difference:     diff,
		RelativeDiff:   decimal.NewFromInt(1),
		Status:         status,
		Message:        msg,
	}
}

func periodRange(p internal.PricePeriod) string {
	end := "open"
	if p.EndDate != nil {
		end = util.FormatDate(*p.EndDate)
	}
	return util.FormatDate(p.StartDate) + ".." + end
}

func displayLabel(a optimizer.Allocation) string {
	if a.Label != "" {
		return a.Label
	}
	return "@" + a.Price.StringFixed(2)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
