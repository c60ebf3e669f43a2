package pricehistory

import (
	"regexp"
	"strconv"
	"strings"

	"watson/internal/util"
)

var (
	reForPrice = regexp.MustCompile(`(?i)^(\d+)\s*for\s*([\d.,]+)`)
	reBuyGet   = regexp.MustCompile(`(?i)^buy\s*(\d+)\s*get\s*(\d+)`)
)

// BundleRemark is a promotion read from a price list remark: Size units are
// handed over and Paid of them are charged.
type BundleRemark struct {
	Size int
	Paid int
}

// ParseBundleRemark recognises "2 For 599" and "Buy2Get1" style remarks.
// "Buy1" and free text are not bundles.
func ParseBundleRemark(remark string) (BundleRemark, bool) {
	s := util.NormalizeSpaces(remark)

	if m := reForPrice.FindStringSubmatch(s); m != nil {
		size, _ := strconv.Atoi(m[1])
		if _, err := util.ParseDecimal(m[2]); size < 2 || err != nil {
			return BundleRemark{}, false
		}
		return BundleRemark{Size: size, Paid: size}, true
	}

	if m := reBuyGet.FindStringSubmatch(strings.ReplaceAll(s, " ", "")); m != nil {
		buy, _ := strconv.Atoi(m[1])
		free, _ := strconv.Atoi(m[2])
		if buy < 1 || free < 1 {
			return BundleRemark{}, false
		}
		return BundleRemark{Size: buy + free, Paid: buy}, true
	}
	return BundleRemark{}, false
}
