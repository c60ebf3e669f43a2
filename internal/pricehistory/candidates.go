package pricehistory

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"watson/internal"
	"watson/internal/optimizer"
)

type CandidateOptions struct {
	// IncludeVariants adds the standard, inc-VAT and Invoice 62% IncV prices
	// of the standard tier as extra linear candidates.
	IncludeVariants bool
	// Bundles turns promotion tiers whose remark names a bundle ("2 For 599")
	// into whole-bundle options instead of per-unit prices.
	Bundles bool
}

// Candidates turns the tiers active on date into optimizer prices: one per
// distinct ext-VAT price, highest first, labelled "Std", "Pro1(remark)", ...
// The returned tiers are the periods behind the prices, in the same order.
func (idx *Index) Candidates(itemCode string, date time.Time, opts CandidateOptions) ([]optimizer.PriceOption, []internal.PricePeriod) {
	tiers := uniqueTiers(idx.FindAllPeriods(itemCode, date))
	if len(tiers) == 0 {
		return nil, nil
	}

	prices := make([]optimizer.PriceOption, 0, len(tiers)+3)
	for i, p := range tiers {
		opt := optimizer.PriceOption{
			Price:           p.ExtVatPrice,
			Label:           tierLabel(i, p.Remark),
			Remark:          p.Remark,
			CommissionPrice: CommissionPrice(p),
			StandardPrice:   decimal.NewNullDecimal(p.StandardPrice),
		}
		if i == 0 && opt.Remark == "" {
			opt.Remark = "Buy1"
		}
		if opts.Bundles && i > 0 {
			if b, ok := ParseBundleRemark(p.Remark); ok {
				// The quoted "For" total is a shelf price; the bundle is
				// billed at the tier's ext-VAT price for each paid unit.
				opt.Bundle = &optimizer.Bundle{
					Size:  b.Size,
					Total: p.ExtVatPrice.Mul(decimal.NewFromInt(int64(b.Paid))),
				}
			}
		}
		prices = append(prices, opt)
	}

	if opts.IncludeVariants {
		std := tiers[0]
		variants := []struct {
			label string
			price decimal.Decimal
		}{
			{"Std IncV", std.StandardPrice},
			{"Comm IncV", std.IncVatPrice},
			{"Inv62 IncV", std.Invoice62IncV},
		}
		for _, v := range variants {
			if !v.price.IsPositive() || hasPrice(prices, v.price) {
				continue
			}
			prices = append(prices, optimizer.PriceOption{
				Price:           v.price,
				Label:           v.label,
				Remark:          std.Remark,
				CommissionPrice: CommissionPrice(std),
				StandardPrice:   decimal.NewNullDecimal(std.StandardPrice),
			})
		}
	}
	return prices, tiers
}

// CommissionPrice is the per-unit commission of a tier: the explicit
// commission column when present, otherwise the inc-VAT price.
func CommissionPrice(p internal.PricePeriod) decimal.NullDecimal {
	if p.CommissionPrice.Valid {
		return p.CommissionPrice
	}
	if p.IncVatPrice.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(p.IncVatPrice)
}

func uniqueTiers(periods []internal.PricePeriod) []internal.PricePeriod {
	out := make([]internal.PricePeriod, 0, len(periods))
	for _, p := range periods {
		dup := false
		for _, seen := range out {
			if seen.ExtVatPrice.Equal(p.ExtVatPrice) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExtVatPrice.GreaterThan(out[j].ExtVatPrice)
	})
	return out
}

func tierLabel(i int, remark string) string {
	switch {
	case i == 0:
		return "Std"
	case remark != "":
		return fmt.Sprintf("Pro%d(%s)", i, remark)
	default:
		return fmt.Sprintf("Pro%d", i)
	}
}

func hasPrice(prices []optimizer.PriceOption, price decimal.Decimal) bool {
	for _, p := range prices {
		if p.Bundle == nil && p.Price.Equal(price) {
			return true
		}
	}
	return false
}
