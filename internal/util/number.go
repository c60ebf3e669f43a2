package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	reThousandsComma = regexp.MustCompile(`^-?\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)
	reCurrency       = regexp.MustCompile(`[฿$€£\s]`)
)

// ParseDecimal reads spreadsheet money cells: "1,234.50", "฿ 99", "(12.00)"
// for negatives, and plain numbers.
func ParseDecimal(input string) (decimal.Decimal, error) {
	s := reCurrency.ReplaceAllString(strings.ReplaceAll(input, "\u00A0", ""), "")
	if s == "" || s == "-" {
		return decimal.Zero, fmt.Errorf("empty number")
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	if reThousandsComma.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	} else if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number: %q", input)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseQuantity accepts whole numbers only; "12.0" is fine, "1.5" is not.
func ParseQuantity(input string) (int, error) {
	d, err := ParseDecimal(input)
	if err != nil {
		return 0, err
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("quantity is not a whole number: %q", input)
	}
	n, err := strconv.Atoi(d.Truncate(0).String())
	if err != nil {
		return 0, fmt.Errorf("quantity out of range: %q", input)
	}
	return n, nil
}
