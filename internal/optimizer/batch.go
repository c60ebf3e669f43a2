package optimizer

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type BatchItem struct {
	ID             string
	ItemCode       string
	Quantity       int
	ReportedAmount decimal.Decimal
	Prices         []PriceOption
}

type BatchResult struct {
	ID       string
	ItemCode string
	CalculationResult
}

type BatchSummary struct {
	TotalItems        int
	AcceptableCount   int
	UnacceptableCount int
	AverageConfidence float64
	// TotalDiff is the sum of absolute differences.
	TotalDiff decimal.Decimal
}

// CalculateBatch runs FindBestPriceCombination per item. Results keep the
// input order and a bad item never stops the rest.
func CalculateBatch(items []BatchItem, opts Options) []BatchResult {
	out := make([]BatchResult, len(items))
	for i, item := range items {
		out[i] = calculateItem(item, opts)
	}
	return out
}

// CalculateBatchParallel produces the same results as CalculateBatch using at
// most workers goroutines. It stops early only when ctx is cancelled.
func CalculateBatchParallel(ctx context.Context, items []BatchItem, opts Options, workers int) ([]BatchResult, error) {
	if workers <= 1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return CalculateBatch(items, opts), nil
	}

	out := make([]BatchResult, len(items))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = calculateItem(items[i], opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func calculateItem(item BatchItem, opts Options) BatchResult {
	if strings.TrimSpace(item.ItemCode) == "" {
		return BatchResult{
			ID: item.ID,
			CalculationResult: CalculationResult{
				ComputedAmount:   decimal.Zero,
				Difference:       item.ReportedAmount,
				RelativeDiff:     one,
				Status:           StatusInvalidInput,
				Message:          "missing item code",
				ExplanationTrace: []string{"invalid input: missing item code"},
			},
		}
	}
	return BatchResult{
		ID:                item.ID,
		ItemCode:          item.ItemCode,
		CalculationResult: FindBestPriceCombination(item.Prices, item.Quantity, item.ReportedAmount, opts),
	}
}

func SummarizeBatch(results []BatchResult) BatchSummary {
	summary := BatchSummary{TotalItems: len(results), TotalDiff: decimal.Zero}
	if len(results) == 0 {
		return summary
	}

	confidence := 0.0
	for _, r := range results {
		if r.IsAcceptable {
			summary.AcceptableCount++
		}
		confidence += r.ConfidenceScore
		summary.TotalDiff = summary.TotalDiff.Add(r.Difference.Abs())
	}
	summary.UnacceptableCount = summary.TotalItems - summary.AcceptableCount
	summary.AverageConfidence = confidence / float64(summary.TotalItems)
	return summary
}
