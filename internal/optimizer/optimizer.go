// Package optimizer finds the integer split of an invoice quantity across
// candidate unit prices whose total best explains the invoiced amount.
//
// The search is guided rather than exhaustive: every single price, every pair
// of prices solved analytically, and every triple with one count enumerated.
// Bundle prices ("2 For 599") only ever contribute whole bundles. See
// search.go for the pruning rules.
package optimizer

import (
	"fmt"

	"github.com/shopspring/decimal"

	"watson/internal"
)

type Status string

const (
	StatusOK            Status = "OK"
	StatusLowConfidence Status = "LOW_CONFIDENCE"
	StatusNoPeriod      Status = "NO_PERIOD"
	StatusInvalidInput  Status = "INVALID_INPUT"
)

const (
	DefaultConfidenceThreshold = 0.95
	DefaultMaxPrices           = 10
	DefaultExhaustiveLimit     = 500
	DefaultNearMisses          = 3
)

// Bundle is a non-linear price: Size units sell together for Total.
type Bundle struct {
	Size  int
	Total decimal.Decimal
}

type PriceOption struct {
	Price           decimal.Decimal
	Label           string
	Remark          string
	CommissionPrice decimal.NullDecimal
	StandardPrice   decimal.NullDecimal
	Bundle          *Bundle
}

type Allocation struct {
	Price           decimal.Decimal
	Qty             int
	Amount          decimal.Decimal
	Label           string
	Remark          string
	CommissionPrice decimal.NullDecimal
	StandardPrice   decimal.NullDecimal
	Bundles         int
}

// Options tunes the search. Start from DefaultOptions: the zero value of a
// field is taken literally where it means something (ConfidenceThreshold 0
// accepts every split, NearMisses 0 keeps only the winner) and only
// MaxPrices and ExhaustiveLimit, which have no useful zero, fall back to
// their defaults.
type Options struct {
	ConfidenceThreshold float64
	// NotExceedReported rejects splits whose total is above the reported amount.
	NotExceedReported bool
	MaxPrices         int
	// ExhaustiveLimit bounds the remainder quantity for which one count of a
	// three price split is enumerated value by value.
	ExhaustiveLimit int
	NearMisses      int
}

func DefaultOptions() Options {
	return Options{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		MaxPrices:           DefaultMaxPrices,
		ExhaustiveLimit:     DefaultExhaustiveLimit,
		NearMisses:          DefaultNearMisses,
	}
}

func (o Options) withDefaults() Options {
	if o.ConfidenceThreshold < 0 {
		o.ConfidenceThreshold = 0
	}
	if o.ConfidenceThreshold > 1 {
		o.ConfidenceThreshold = 1
	}
	if o.MaxPrices <= 0 {
		o.MaxPrices = DefaultMaxPrices
	}
	if o.ExhaustiveLimit <= 0 {
		o.ExhaustiveLimit = DefaultExhaustiveLimit
	}
	if o.NearMisses < 0 {
		o.NearMisses = 0
	}
	return o
}

type CalculationResult struct {
	// MatchedPeriod is filled in by callers that resolved a price period; the
	// optimizer itself only sees prices.
	MatchedPeriod    *internal.PricePeriod
	ChosenPrices     []Allocation
	ComputedAmount   decimal.Decimal
	Difference       decimal.Decimal
	RelativeDiff     decimal.Decimal
	ConfidenceScore  float64
	IsAcceptable     bool
	Status           Status
	Message          string
	TotalQty         int
	ExplanationTrace []string
}

var one = decimal.NewFromInt(1)

// FindBestPriceCombination searches splits of quantity over prices and returns
// the one with the smallest relative difference to reportedAmount. It never
// panics on bad input; malformed arguments come back as StatusInvalidInput.
func FindBestPriceCombination(prices []PriceOption, quantity int, reportedAmount decimal.Decimal, opts Options) CalculationResult {
	opts = opts.withDefaults()
	trace := []string{
		fmt.Sprintf("input: qty=%d reported=%s prices=%d threshold=%s", quantity, money(reportedAmount), len(prices), percent(opts.ConfidenceThreshold)),
	}

	if msg := validate(prices, quantity); msg != "" {
		trace = append(trace, "invalid input: "+msg)
		return CalculationResult{
			ComputedAmount:   decimal.Zero,
			Difference:       reportedAmount,
			RelativeDiff:     one,
			Status:           StatusInvalidInput,
			Message:          msg,
			ExplanationTrace: trace,
		}
	}

	if quantity == 0 {
		trace = append(trace, "quantity is 0: nothing to split, computed amount 0.00")
		res := scored(nil, decimal.Zero, reportedAmount, opts)
		res.ExplanationTrace = append(trace, decisionLine(res, opts))
		return res
	}

	if len(prices) == 0 {
		trace = append(trace, fmt.Sprintf("no period matched: no candidate prices to split qty=%d", quantity))
		return CalculationResult{
			ComputedAmount:   decimal.Zero,
			Difference:       reportedAmount,
			RelativeDiff:     one,
			Status:           StatusNoPeriod,
			Message:          "no period matched",
			ExplanationTrace: trace,
		}
	}

	for i, p := range prices {
		trace = append(trace, fmt.Sprintf("price %d: %s", i+1, describeOption(p)))
	}

	s := newSearcher(prices, quantity, reportedAmount, opts)
	s.run()
	trace = append(trace, s.notes...)

	if len(s.ranked) == 0 {
		trace = append(trace, "no valid split found")
		res := CalculationResult{
			ComputedAmount: decimal.Zero,
			Difference:     reportedAmount,
			RelativeDiff:   one,
			Status:         StatusLowConfidence,
			Message:        "no valid split found",
		}
		res.ExplanationTrace = append(trace, decisionLine(res, opts))
		return res
	}

	best := s.ranked[0]
	allocations := s.allocations(best)
	res := scored(allocations, best.total, reportedAmount, opts)
	trace = append(trace, "best: "+s.describe(best))
	for i, miss := range s.ranked[1:] {
		trace = append(trace, fmt.Sprintf("near miss %d: %s", i+1, s.describe(miss)))
	}
	res.ExplanationTrace = append(trace, decisionLine(res, opts))
	return res
}

func validate(prices []PriceOption, quantity int) string {
	if quantity < 0 {
		return fmt.Sprintf("quantity must not be negative (got %d)", quantity)
	}
	for i, p := range prices {
		if p.Price.IsNegative() {
			return fmt.Sprintf("price %d is negative (%s)", i+1, money(p.Price))
		}
		if p.Bundle != nil {
			if p.Bundle.Size < 1 {
				return fmt.Sprintf("price %d has bundle size %d", i+1, p.Bundle.Size)
			}
			if p.Bundle.Total.IsNegative() {
				return fmt.Sprintf("price %d has negative bundle total (%s)", i+1, money(p.Bundle.Total))
			}
		}
	}
	return ""
}

func scored(allocations []Allocation, computed, reported decimal.Decimal, opts Options) CalculationResult {
	diff := reported.Sub(computed)
	rel := relativeDiff(reported, computed)
	confidence := one.Sub(rel)
	if confidence.IsNegative() {
		confidence = decimal.Zero
	}
	if confidence.GreaterThan(one) {
		confidence = one
	}
	score := confidence.InexactFloat64()

	totalQty := 0
	for _, a := range allocations {
		totalQty += a.Qty
	}

	res := CalculationResult{
		ChosenPrices:    allocations,
		ComputedAmount:  computed,
		Difference:      diff,
		RelativeDiff:    rel,
		ConfidenceScore: score,
		IsAcceptable:    score >= opts.ConfidenceThreshold,
		TotalQty:        totalQty,
	}
	if res.IsAcceptable {
		res.Status = StatusOK
	} else {
		res.Status = StatusLowConfidence
		res.Message = fmt.Sprintf("confidence %s below threshold %s", percent(score), percent(opts.ConfidenceThreshold))
	}
	return res
}

// relativeDiff scales the gap by the larger of the two amounts so the ratio
// stays within [0,1]. The search ranks splits by it as well.
func relativeDiff(reported, computed decimal.Decimal) decimal.Decimal {
	return reported.Sub(computed).Abs().Div(decimal.Max(reported.Abs(), computed.Abs(), one))
}

func decisionLine(res CalculationResult, opts Options) string {
	verdict := "no"
	if res.IsAcceptable {
		verdict = "yes"
	}
	return fmt.Sprintf("result: computed=%s diff=%s confidence=%s threshold=%s acceptable=%s",
		money(res.ComputedAmount), money(res.Difference), percent(res.ConfidenceScore), percent(opts.ConfidenceThreshold), verdict)
}

func describeOption(p PriceOption) string {
	out := displayLabel(p.Label, p.Price) + " " + money(p.Price)
	if p.Bundle != nil {
		out = fmt.Sprintf("%s bundle %d for %s", displayLabel(p.Label, p.Price), p.Bundle.Size, money(p.Bundle.Total))
	}
	if p.Remark != "" {
		out += " (" + p.Remark + ")"
	}
	return out
}

func displayLabel(label string, price decimal.Decimal) string {
	if label != "" {
		return label
	}
	return "@" + money(price)
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}
