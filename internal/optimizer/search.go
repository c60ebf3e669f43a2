package optimizer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Pruning rules:
//   - linear prices are deduplicated and capped at MaxPrices;
//   - bundle prices are tried as whole bundle counts only (every count when the
//     quantity allows at most ExhaustiveLimit bundles, otherwise the counts
//     implied by reported/bundleTotal plus 0 and the maximum), the remainder
//     being split across linear prices;
//   - singles are exact, pairs are solved in closed form (total is linear in
//     the count of either price and the relative difference only grows away
//     from the reported amount, so floor/ceil of the real solution is
//     optimal), triples enumerate one count and solve the other two;
//   - the enumerated triple count covers every value only for the plain
//     remainder; under a bundle count it is limited to 1, r-1 and the
//     quotient neighbours of each price, so bundles multiply contexts but not
//     the enumeration;
//   - the search stops after the first stage that produces an exact match.
//
// Ranking: smaller relative difference (the measure confidence is derived
// from), then smaller absolute difference, then fewer distinct prices, then
// the split found first. Stages run singles, pairs, triples; within a stage the
// plain remainder comes before bundle contexts, and prices in list order.

type priceRef struct {
	index  int
	option PriceOption
}

type candidate struct {
	counts      []int
	bundle      int
	bundleCount int
	total       decimal.Decimal
	diff        decimal.Decimal
	rel         decimal.Decimal
	distinct    int
	order       int
}

type searchContext struct {
	bundle      int
	bundleCount int
	remainder   int
	amount      decimal.Decimal
	fixedTotal  decimal.Decimal
}

type searcher struct {
	options  []PriceOption
	linear   []priceRef
	bundles  []priceRef
	quantity int
	reported decimal.Decimal
	opts     Options

	contexts  []searchContext
	ranked    []candidate
	seen      map[string]struct{}
	evaluated int
	pruned    int
	notes     []string
}

func newSearcher(prices []PriceOption, quantity int, reported decimal.Decimal, opts Options) *searcher {
	s := &searcher{
		options:  prices,
		quantity: quantity,
		reported: reported,
		opts:     opts,
		seen:     map[string]struct{}{},
	}

	dropped := 0
	for i, p := range prices {
		if p.Bundle != nil {
			s.bundles = append(s.bundles, priceRef{index: i, option: p})
			continue
		}
		duplicate := false
		for _, existing := range s.linear {
			if existing.option.Price.Equal(p.Price) {
				duplicate = true
				break
			}
		}
		if duplicate {
			dropped++
			continue
		}
		if len(s.linear) >= opts.MaxPrices {
			s.notes = append(s.notes, fmt.Sprintf("prune: price %d ignored, max %d linear prices", i+1, opts.MaxPrices))
			continue
		}
		s.linear = append(s.linear, priceRef{index: i, option: p})
	}
	if dropped > 0 {
		s.notes = append(s.notes, fmt.Sprintf("prune: %d duplicate price(s) dropped", dropped))
	}

	s.contexts = append(s.contexts, searchContext{bundle: -1, remainder: quantity, amount: reported, fixedTotal: decimal.Zero})
	for bi, b := range s.bundles {
		for _, m := range s.bundleCounts(b.option.Bundle) {
			fixed := b.option.Bundle.Total.Mul(decimal.NewFromInt(int64(m)))
			s.contexts = append(s.contexts, searchContext{
				bundle:      bi,
				bundleCount: m,
				remainder:   quantity - m*b.option.Bundle.Size,
				amount:      reported.Sub(fixed),
				fixedTotal:  fixed,
			})
		}
	}
	return s
}

func (s *searcher) bundleCounts(b *Bundle) []int {
	maxCount := s.quantity / b.Size
	if maxCount == 0 {
		return nil
	}
	if maxCount <= s.opts.ExhaustiveLimit {
		out := make([]int, 0, maxCount)
		for m := 1; m <= maxCount; m++ {
			out = append(out, m)
		}
		return out
	}
	values := []int{maxCount}
	if b.Total.IsPositive() {
		q := s.reported.Div(b.Total)
		values = append(values, floorInt(q, 0, maxCount), ceilInt(q, 0, maxCount))
	}
	return uniqueSorted(values, 1, maxCount)
}

func (s *searcher) run() {
	stages := []struct {
		name string
		size int
		fn   func(searchContext)
	}{
		{"singles", 1, s.singles},
		{"pairs", 2, s.pairs},
		{"triples", 3, s.triples},
	}

	for _, stage := range stages {
		if stage.size > 1 && len(s.linear) < stage.size {
			break
		}
		before := s.evaluated
		for _, ctx := range s.contexts {
			stage.fn(ctx)
		}
		s.notes = append(s.notes, fmt.Sprintf("search: %s evaluated=%d", stage.name, s.evaluated-before))
		if len(s.ranked) > 0 && s.ranked[0].diff.IsZero() {
			s.notes = append(s.notes, "search: exact match, stopping after "+stage.name)
			break
		}
	}
	if s.pruned > 0 {
		s.notes = append(s.notes, fmt.Sprintf("prune: %d split(s) above reported amount skipped", s.pruned))
	}
}

func (s *searcher) singles(ctx searchContext) {
	if ctx.remainder == 0 {
		s.evaluate(ctx, make([]int, len(s.linear)))
		return
	}
	for i := range s.linear {
		counts := make([]int, len(s.linear))
		counts[i] = ctx.remainder
		s.evaluate(ctx, counts)
	}
}

func (s *searcher) pairs(ctx searchContext) {
	if ctx.remainder == 0 {
		return
	}
	for i := 0; i < len(s.linear); i++ {
		for j := i + 1; j < len(s.linear); j++ {
			s.solvePair(ctx, make([]int, len(s.linear)), i, j, ctx.remainder, ctx.amount)
		}
	}
}

func (s *searcher) triples(ctx searchContext) {
	if ctx.remainder == 0 {
		return
	}
	n := len(s.linear)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				for _, ni := range s.tripleCounts(ctx, i, j, k) {
					counts := make([]int, n)
					counts[i] = ni
					rest := ctx.remainder - ni
					amount := ctx.amount.Sub(s.linear[i].option.Price.Mul(decimal.NewFromInt(int64(ni))))
					s.solvePair(ctx, counts, j, k, rest, amount)
				}
			}
		}
	}
}

func (s *searcher) tripleCounts(ctx searchContext, idx ...int) []int {
	r := ctx.remainder
	if ctx.bundle < 0 && r <= s.opts.ExhaustiveLimit {
		out := make([]int, 0, r-1)
		for v := 1; v < r; v++ {
			out = append(out, v)
		}
		return out
	}
	values := []int{1, r - 1}
	for _, i := range idx {
		price := s.linear[i].option.Price
		if !price.IsPositive() {
			continue
		}
		q := ctx.amount.Div(price)
		values = append(values, floorInt(q, 1, r-1), ceilInt(q, 1, r-1))
	}
	return uniqueSorted(values, 1, r-1)
}

// solvePair fills counts[i] and counts[j] so that they sum to r and their
// total approaches amount.
func (s *searcher) solvePair(ctx searchContext, base []int, i, j, r int, amount decimal.Decimal) {
	if r < 0 {
		return
	}
	pi := s.linear[i].option.Price
	pj := s.linear[j].option.Price
	rd := decimal.NewFromInt(int64(r))
	exact := amount.Sub(pj.Mul(rd)).Div(pi.Sub(pj))

	for _, ni := range uniqueSorted([]int{floorInt(exact, 0, r), ceilInt(exact, 0, r)}, 0, r) {
		counts := append([]int(nil), base...)
		counts[i] = ni
		counts[j] = r - ni
		s.evaluate(ctx, counts)
	}
}

func (s *searcher) evaluate(ctx searchContext, counts []int) {
	key := s.key(ctx, counts)
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}

	total := ctx.fixedTotal
	distinct := 0
	for i, c := range counts {
		if c == 0 {
			continue
		}
		distinct++
		total = total.Add(s.linear[i].option.Price.Mul(decimal.NewFromInt(int64(c))))
	}
	if ctx.bundleCount > 0 {
		distinct++
	}

	if s.opts.NotExceedReported && total.GreaterThan(s.reported) {
		s.pruned++
		return
	}

	c := candidate{
		counts:      counts,
		bundle:      ctx.bundle,
		bundleCount: ctx.bundleCount,
		total:       total,
		diff:        s.reported.Sub(total).Abs(),
		rel:         relativeDiff(s.reported, total),
		distinct:    distinct,
		order:       s.evaluated,
	}
	s.evaluated++
	s.rank(c)
}

func (s *searcher) rank(c candidate) {
	limit := s.opts.NearMisses + 1
	pos := len(s.ranked)
	for pos > 0 && better(c, s.ranked[pos-1]) {
		pos--
	}
	if pos >= limit {
		return
	}
	s.ranked = append(s.ranked, candidate{})
	copy(s.ranked[pos+1:], s.ranked[pos:])
	s.ranked[pos] = c
	if len(s.ranked) > limit {
		s.ranked = s.ranked[:limit]
	}
}

func better(a, b candidate) bool {
	if cmp := a.rel.Cmp(b.rel); cmp != 0 {
		return cmp < 0
	}
	if cmp := a.diff.Cmp(b.diff); cmp != 0 {
		return cmp < 0
	}
	if a.distinct != b.distinct {
		return a.distinct < b.distinct
	}
	return a.order < b.order
}

func (s *searcher) key(ctx searchContext, counts []int) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(ctx.bundle))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(ctx.bundleCount))
	for _, c := range counts {
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(c))
	}
	return b.String()
}

// allocations lists the split in the caller's price order, zero counts omitted.
func (s *searcher) allocations(c candidate) []Allocation {
	byIndex := map[int]Allocation{}
	for i, count := range c.counts {
		if count == 0 {
			continue
		}
		ref := s.linear[i]
		byIndex[ref.index] = Allocation{
			Price:           ref.option.Price,
			Qty:             count,
			Amount:          ref.option.Price.Mul(decimal.NewFromInt(int64(count))),
			Label:           ref.option.Label,
			Remark:          ref.option.Remark,
			CommissionPrice: ref.option.CommissionPrice,
			StandardPrice:   ref.option.StandardPrice,
		}
	}
	if c.bundleCount > 0 {
		ref := s.bundles[c.bundle]
		b := ref.option.Bundle
		units := c.bundleCount * b.Size
		byIndex[ref.index] = Allocation{
			Price:           b.Total.DivRound(decimal.NewFromInt(int64(b.Size)), 4),
			Qty:             units,
			Amount:          b.Total.Mul(decimal.NewFromInt(int64(c.bundleCount))),
			Label:           ref.option.Label,
			Remark:          ref.option.Remark,
			CommissionPrice: ref.option.CommissionPrice,
			StandardPrice:   ref.option.StandardPrice,
			Bundles:         c.bundleCount,
		}
	}

	out := make([]Allocation, 0, len(byIndex))
	for i := range s.options {
		if a, ok := byIndex[i]; ok {
			out = append(out, a)
		}
	}
	return out
}

func (s *searcher) describe(c candidate) string {
	parts := []string{}
	for _, a := range s.allocations(c) {
		label := displayLabel(a.Label, a.Price)
		if a.Bundles > 0 {
			parts = append(parts, fmt.Sprintf("%s %d x bundle = %s", label, a.Bundles, money(a.Amount)))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %d x %s", label, a.Qty, money(a.Price)))
	}
	if len(parts) == 0 {
		parts = append(parts, "nothing")
	}
	return fmt.Sprintf("%s = %s diff %s", strings.Join(parts, " + "), money(c.total), money(c.diff))
}

func floorInt(d decimal.Decimal, lo, hi int) int {
	return clampInt(d.Floor(), lo, hi)
}

func ceilInt(d decimal.Decimal, lo, hi int) int {
	return clampInt(d.Ceil(), lo, hi)
}

func clampInt(d decimal.Decimal, lo, hi int) int {
	if d.LessThan(decimal.NewFromInt(int64(lo))) {
		return lo
	}
	if d.GreaterThan(decimal.NewFromInt(int64(hi))) {
		return hi
	}
	return int(d.IntPart())
}

func uniqueSorted(values []int, lo, hi int) []int {
	seen := map[int]struct{}{}
	out := make([]int, 0, len(values))
	for _, v := range values {
		if v < lo || v > hi {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
