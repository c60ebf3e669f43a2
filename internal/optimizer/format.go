package optimizer

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatAllocation renders a split for a spreadsheet cell, e.g.
// "Std: 3, Pro1(2 For 599): 4". An empty split renders as "-".
func FormatAllocation(allocations []Allocation) string {
	if len(allocations) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(allocations))
	for _, a := range allocations {
		label := a.Label
		if label == "" {
			label = "฿" + money(a.Price)
		}
		parts = append(parts, fmt.Sprintf("%s: %d", label, a.Qty))
	}
	return strings.Join(parts, ", ")
}

// FormatDiff renders a difference with an acceptance marker: "✓ +0.00" or
// "⚠ -12.50".
func FormatDiff(diff decimal.Decimal, acceptable bool) string {
	mark := "⚠"
	if acceptable {
		mark = "✓"
	}
	sign := ""
	if !diff.IsNegative() {
		sign = "+"
	}
	return fmt.Sprintf("%s %s%s", mark, sign, money(diff))
}
