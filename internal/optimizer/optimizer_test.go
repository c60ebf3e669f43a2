package optimizer

import (
	"context"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func linear(values ...string) []PriceOption {
	out := make([]PriceOption, 0, len(values))
	for _, v := range values {
		out = append(out, PriceOption{Price: d(v)})
	}
	return out
}

type split struct {
	price string
	qty   int
}

func assertSplit(t *testing.T, got []Allocation, want []split) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("split = %+v, want %+v", got, want)
	}
	for i := range want {
		if !got[i].Price.Equal(d(want[i].price)) || got[i].Qty != want[i].qty {
			t.Fatalf("split[%d] = %s x %d, want %s x %d", i, got[i].Price, got[i].Qty, want[i].price, want[i].qty)
		}
	}
}

func TestFindBestPriceCombinationScenarios(t *testing.T) {
	cases := []struct {
		name       string
		prices     []PriceOption
		qty        int
		reported   string
		split      []split
		confidence float64
		acceptable bool
		status     Status
	}{
		{"single price exact", linear("100"), 10, "1000", []split{{"100", 10}}, 1, true, StatusOK},
		{"two prices half and half", linear("100", "90"), 10, "950", []split{{"100", 5}, {"90", 5}}, 1, true, StatusOK},
		{"single price short", linear("100"), 10, "800", []split{{"100", 10}}, 0.8, false, StatusLowConfidence},
		{"three prices", linear("100", "70", "50"), 3, "220", []split{{"100", 1}, {"70", 1}, {"50", 1}}, 1, true, StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := FindBestPriceCombination(tc.prices, tc.qty, d(tc.reported), DefaultOptions())
			assertSplit(t, res.ChosenPrices, tc.split)
			if math.Abs(res.ConfidenceScore-tc.confidence) > 1e-9 {
				t.Fatalf("confidence = %v, want %v", res.ConfidenceScore, tc.confidence)
			}
			if res.IsAcceptable != tc.acceptable || res.Status != tc.status {
				t.Fatalf("acceptable=%v status=%s, want %v %s", res.IsAcceptable, res.Status, tc.acceptable, tc.status)
			}
			if res.TotalQty != tc.qty {
				t.Fatalf("total qty = %d, want %d", res.TotalQty, tc.qty)
			}
		})
	}
}

func TestShortAmountRelativeDiff(t *testing.T) {
	opts := DefaultOptions()
	opts.ConfidenceThreshold = 0.95
	res := FindBestPriceCombination(linear("100"), 10, d("800"), opts)
	if !res.RelativeDiff.Equal(d("0.2")) {
		t.Fatalf("relative diff = %s, want 0.2", res.RelativeDiff)
	}
	if !res.Difference.Equal(d("-200")) || !res.ComputedAmount.Equal(d("1000")) {
		t.Fatalf("difference=%s computed=%s", res.Difference, res.ComputedAmount)
	}
}

func TestNoPrices(t *testing.T) {
	res := FindBestPriceCombination(nil, 5, d("500"), DefaultOptions())
	if res.MatchedPeriod != nil || res.ConfidenceScore != 0 || res.IsAcceptable {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Status != StatusNoPeriod {
		t.Fatalf("status = %s", res.Status)
	}
	if !strings.Contains(strings.Join(res.ExplanationTrace, "\n"), "no period") {
		t.Fatalf("trace missing no period: %v", res.ExplanationTrace)
	}
}

func TestZeroQuantity(t *testing.T) {
	res := FindBestPriceCombination(linear("59"), 0, decimal.Zero, DefaultOptions())
	if res.ConfidenceScore != 1 || !res.IsAcceptable || len(res.ChosenPrices) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	res = FindBestPriceCombination(linear("59"), 0, d("59"), DefaultOptions())
	if res.ConfidenceScore != 0 || res.IsAcceptable {
		t.Fatalf("zero quantity with amount should not be acceptable: %+v", res)
	}
}

func TestInvalidInput(t *testing.T) {
	cases := map[string]struct {
		prices []PriceOption
		qty    int
	}{
		"negative quantity": {linear("10"), -1},
		"negative price":    {linear("10", "-5"), 2},
		"empty bundle":      {[]PriceOption{{Price: d("10"), Bundle: &Bundle{Size: 0, Total: d("10")}}}, 2},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res := FindBestPriceCombination(tc.prices, tc.qty, d("20"), DefaultOptions())
			if res.Status != StatusInvalidInput || res.ConfidenceScore != 0 || res.Message == "" {
				t.Fatalf("unexpected result: %+v", res)
			}
		})
	}
}

func TestConfidenceAlwaysInRange(t *testing.T) {
	prices := linear("35.50", "42", "59.75")
	for _, qty := range []int{0, 1, 3, 17, 120} {
		for _, reported := range []string{"0", "0.01", "13", "250", "7000", "1000000"} {
			res := FindBestPriceCombination(prices, qty, d(reported), DefaultOptions())
			if res.ConfidenceScore < 0 || res.ConfidenceScore > 1 {
				t.Fatalf("qty=%d reported=%s confidence=%v", qty, reported, res.ConfidenceScore)
			}
		}
	}
}

func TestIdempotent(t *testing.T) {
	prices := []PriceOption{
		{Price: d("329"), Label: "Std"},
		{Price: d("299.50"), Label: "Pro1(2 For 599)", Bundle: &Bundle{Size: 2, Total: d("599")}},
		{Price: d("279"), Label: "Pro2(Member)"},
	}
	a := FindBestPriceCombination(prices, 11, d("3300"), DefaultOptions())
	b := FindBestPriceCombination(prices, 11, d("3300"), DefaultOptions())
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("results differ:\n%+v\n%+v", a, b)
	}
}

func TestConfidenceMonotonic(t *testing.T) {
	prices := linear("100")
	prev := 2.0
	for _, reported := range []string{"1000", "1010", "1100", "1500", "3000"} {
		res := FindBestPriceCombination(prices, 10, d(reported), DefaultOptions())
		if res.ConfidenceScore > prev {
			t.Fatalf("confidence rose to %v at reported=%s", res.ConfidenceScore, reported)
		}
		prev = res.ConfidenceScore
	}
	prev = 2.0
	for _, reported := range []string{"1000", "990", "900", "500", "0"} {
		res := FindBestPriceCombination(prices, 10, d(reported), DefaultOptions())
		if res.ConfidenceScore > prev {
			t.Fatalf("confidence rose to %v at reported=%s", res.ConfidenceScore, reported)
		}
		prev = res.ConfidenceScore
	}
}

func TestWinnerHasHighestConfidence(t *testing.T) {
	prices := linear("160", "45")
	res := FindBestPriceCombination(prices, 1, d("100"), DefaultOptions())
	assertSplit(t, res.ChosenPrices, []split{{"160", 1}})
	if math.Abs(res.ConfidenceScore-0.625) > 1e-9 {
		t.Fatalf("confidence = %v, want 0.625", res.ConfidenceScore)
	}

	for reported := 0; reported <= 300; reported += 7 {
		res := FindBestPriceCombination(prices, 1, decimal.NewFromInt(int64(reported)), DefaultOptions())
		for _, p := range prices {
			alt := scored(nil, p.Price, decimal.NewFromInt(int64(reported)), DefaultOptions())
			if alt.ConfidenceScore > res.ConfidenceScore {
				t.Fatalf("reported=%d: chose %s at %v, %s scores %v", reported, res.ComputedAmount, res.ConfidenceScore, p.Price, alt.ConfidenceScore)
			}
		}
	}
}

func TestConfidenceMonotonicMultiPrice(t *testing.T) {
	prices := linear("160", "45")
	for _, walk := range [][]string{
		{"160", "170", "250", "1000"},
		{"45", "40", "20", "0"},
	} {
		prev := 2.0
		for _, reported := range walk {
			res := FindBestPriceCombination(prices, 1, d(reported), DefaultOptions())
			if res.ConfidenceScore > prev {
				t.Fatalf("confidence rose to %v at reported=%s", res.ConfidenceScore, reported)
			}
			prev = res.ConfidenceScore
		}
	}
}

func TestSinglePriceRoundTrip(t *testing.T) {
	prices := linear("35.50", "42", "59")
	for i, p := range prices {
		for _, qty := range []int{1, 7, 48} {
			reported := p.Price.Mul(decimal.NewFromInt(int64(qty)))
			res := FindBestPriceCombination(prices, qty, reported, DefaultOptions())
			if res.ConfidenceScore != 1 {
				t.Fatalf("price %d qty %d: confidence %v", i, qty, res.ConfidenceScore)
			}
			assertSplit(t, res.ChosenPrices, []split{{p.Price.String(), qty}})
		}
	}
}

func TestBundleWithRemainder(t *testing.T) {
	prices := []PriceOption{
		{Price: d("329"), Label: "Std"},
		{Price: d("299.50"), Label: "Pro1(2 For 599)", Bundle: &Bundle{Size: 2, Total: d("599")}},
	}
	res := FindBestPriceCombination(prices, 5, d("1527"), DefaultOptions())
	if !res.Difference.IsZero() || res.Status != StatusOK {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.ChosenPrices) != 2 {
		t.Fatalf("split = %+v", res.ChosenPrices)
	}
	std, bundle := res.ChosenPrices[0], res.ChosenPrices[1]
	if std.Label != "Std" || std.Qty != 1 {
		t.Fatalf("std allocation = %+v", std)
	}
	if bundle.Bundles != 2 || bundle.Qty != 4 || !bundle.Amount.Equal(d("1198")) {
		t.Fatalf("bundle allocation = %+v", bundle)
	}
	if !res.ComputedAmount.Equal(d("1527")) {
		t.Fatalf("computed = %s", res.ComputedAmount)
	}
}

func TestBundleContextsKeepTriplesBounded(t *testing.T) {
	prices := append(linear("299.99", "289.50", "279", "265.25", "250.10"),
		PriceOption{Price: d("299.515"), Bundle: &Bundle{Size: 2, Total: d("599.03")}})
	s := newSearcher(prices, 480, d("137123.477"), DefaultOptions())
	if len(s.contexts) != 241 {
		t.Fatalf("contexts = %d, want 241", len(s.contexts))
	}
	s.run()
	if s.evaluated > 100000 {
		t.Fatalf("evaluated %d splits", s.evaluated)
	}
	if len(s.ranked) == 0 {
		t.Fatalf("no split found")
	}
}

func TestBundleNeverSplit(t *testing.T) {
	prices := []PriceOption{
		{Price: d("299.50"), Label: "Pro1", Bundle: &Bundle{Size: 2, Total: d("599")}},
	}
	res := FindBestPriceCombination(prices, 3, d("898.50"), DefaultOptions())
	if res.Difference.IsZero() {
		t.Fatalf("half a bundle must not explain the amount: %+v", res)
	}
}

func TestNotExceedReported(t *testing.T) {
	prices := linear("100", "90")
	res := FindBestPriceCombination(prices, 10, d("958"), DefaultOptions())
	if !res.ComputedAmount.Equal(d("960")) {
		t.Fatalf("computed = %s, want 960", res.ComputedAmount)
	}

	opts := DefaultOptions()
	opts.NotExceedReported = true
	res = FindBestPriceCombination(prices, 10, d("958"), opts)
	if !res.ComputedAmount.Equal(d("950")) {
		t.Fatalf("computed = %s, want 950", res.ComputedAmount)
	}
}

func TestTieBreakPrefersFewerPrices(t *testing.T) {
	// 5 x 60 and 3 x 100 + 2 x 0 both hit 300 exactly.
	prices := linear("100", "60", "0")
	res := FindBestPriceCombination(prices, 5, d("300"), DefaultOptions())
	assertSplit(t, res.ChosenPrices, []split{{"60", 5}})
}

func TestZeroOptionsTakenLiterally(t *testing.T) {
	opts := DefaultOptions()
	opts.ConfidenceThreshold = 0
	opts.NearMisses = 0
	res := FindBestPriceCombination(linear("100", "90"), 10, d("2000"), opts)
	if !res.IsAcceptable || res.Status != StatusOK {
		t.Fatalf("threshold 0 should accept: %+v", res)
	}
	if strings.Contains(strings.Join(res.ExplanationTrace, "\n"), "near miss") {
		t.Fatalf("near misses listed with NearMisses=0: %v", res.ExplanationTrace)
	}

	res = FindBestPriceCombination(linear("100", "90"), 10, d("958"), DefaultOptions())
	if !strings.Contains(strings.Join(res.ExplanationTrace, "\n"), "near miss 1") {
		t.Fatalf("default options should list near misses: %v", res.ExplanationTrace)
	}
}

func TestTraceMentionsDecision(t *testing.T) {
	res := FindBestPriceCombination(linear("100", "90"), 10, d("950"), DefaultOptions())
	trace := strings.Join(res.ExplanationTrace, "\n")
	for _, want := range []string{"input: qty=10", "best:", "acceptable=yes"} {
		if !strings.Contains(trace, want) {
			t.Fatalf("trace missing %q:\n%s", want, trace)
		}
	}
}

func TestBatch(t *testing.T) {
	items := []BatchItem{
		{ID: "r1", ItemCode: "A", Quantity: 10, ReportedAmount: d("1000"), Prices: linear("100")},
		{ID: "r2", ItemCode: "B", Quantity: 10, ReportedAmount: d("800"), Prices: linear("100")},
		{ID: "r3", ItemCode: "", Quantity: 1, ReportedAmount: d("10"), Prices: linear("10")},
		{ID: "r4", ItemCode: "C", Quantity: 5, ReportedAmount: d("500")},
	}
	results := CalculateBatch(items, DefaultOptions())
	if len(results) != len(items) {
		t.Fatalf("got %d results", len(results))
	}
	for i, r := range results {
		if r.ID != items[i].ID {
			t.Fatalf("result %d id = %s", i, r.ID)
		}
	}
	if results[2].Status != StatusInvalidInput {
		t.Fatalf("missing item code status = %s", results[2].Status)
	}

	summary := SummarizeBatch(results)
	if summary.TotalItems != 4 || summary.AcceptableCount != 1 || summary.AcceptableCount+summary.UnacceptableCount != summary.TotalItems {
		t.Fatalf("summary = %+v", summary)
	}
	if !summary.TotalDiff.Equal(d("710")) {
		t.Fatalf("total diff = %s, want 710", summary.TotalDiff)
	}
	if math.Abs(summary.AverageConfidence-0.45) > 1e-9 {
		t.Fatalf("average confidence = %v", summary.AverageConfidence)
	}

	parallel, err := CalculateBatchParallel(context.Background(), items, DefaultOptions(), 3)
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}
	if !reflect.DeepEqual(results, parallel) {
		t.Fatalf("parallel results differ")
	}

	empty := SummarizeBatch(nil)
	if empty.TotalItems != 0 || empty.AverageConfidence != 0 {
		t.Fatalf("empty summary = %+v", empty)
	}
}

func TestBatchParallelCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	items := []BatchItem{{ID: "r1", ItemCode: "A", Quantity: 1, ReportedAmount: d("1"), Prices: linear("1")}}
	if _, err := CalculateBatchParallel(ctx, items, DefaultOptions(), 4); err == nil {
		t.Fatal("expected context error")
	}
}

func TestFormat(t *testing.T) {
	allocs := []Allocation{{Price: d("329"), Qty: 3, Label: "Std"}, {Price: d("299.5"), Qty: 4}}
	if got := FormatAllocation(allocs); got != "Std: 3, ฿299.50: 4" {
		t.Fatalf("FormatAllocation = %q", got)
	}
	if got := FormatAllocation(nil); got != "-" {
		t.Fatalf("FormatAllocation(nil) = %q", got)
	}
	if got := FormatDiff(d("0"), true); got != "✓ +0.00" {
		t.Fatalf("FormatDiff = %q", got)
	}
	if got := FormatDiff(d("-12.5"), false); got != "⚠ -12.50" {
		t.Fatalf("FormatDiff = %q", got)
	}
}
