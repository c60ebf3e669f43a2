package pricehistory

import (
	"sort"
	"time"

	"watson/internal"
	"watson/internal/util"
)

// Index holds every item's price periods, sorted by start date ascending and
// ext-VAT price descending so the standard tier of a period comes first. It is
// read-only once built.
type Index struct {
	byItem   map[string][]internal.PricePeriod
	itemKeys []string
	periods  int
}

type Summary struct {
	Items    int
	Periods  int
	Earliest *time.Time
	Latest   *time.Time
}

// Build groups rows by item code. Rows that cannot become a period are
// reported as issues and skipped; they never fail the whole import.
func Build(rows []internal.PriceListRow) (*Index, []internal.RowIssue) {
	idx := &Index{byItem: map[string][]internal.PricePeriod{}}
	var issues []internal.RowIssue

	for _, row := range rows {
		code := util.NormalizeCode(row.ItemCode)
		flag := func(reason string) {
			issues = append(issues, internal.RowIssue{RowNo: row.RowNo, ItemCode: code, Reason: reason})
		}
		switch {
		case code == "":
			flag("missing item code")
			continue
		case row.StartDate == nil:
			flag("missing start date")
			continue
		case !row.ExtVatPrice.IsPositive():
			flag("ext-VAT price must be positive")
			continue
		}

		start := util.DateOnly(*row.StartDate)
		var end *time.Time
		if row.EndDate != nil {
			e := util.DateOnly(*row.EndDate)
			if e.Before(start) {
				flag("end date before start date")
				continue
			}
			end = &e
		}

		if _, ok := idx.byItem[code]; !ok {
			idx.itemKeys = append(idx.itemKeys, code)
		}
		idx.byItem[code] = append(idx.byItem[code], internal.PricePeriod{
			ItemCode:        code,
			ProdCode:        row.ProdCode,
			ProdName:        row.ProdName,
			StartDate:       start,
			EndDate:         end,
			StandardPrice:   row.StandardPrice,
			CommissionPrice: row.CommissionPrice,
			ExtVatPrice:     row.ExtVatPrice,
			IncVatPrice:     row.IncVatPrice,
			Invoice62IncV:   row.Invoice62IncV,
			Remark:          row.Remark,
		})
		idx.periods++
	}

	for _, periods := range idx.byItem {
		sort.SliceStable(periods, func(i, j int) bool {
			if !periods[i].StartDate.Equal(periods[j].StartDate) {
				return periods[i].StartDate.Before(periods[j].StartDate)
			}
			return periods[i].ExtVatPrice.GreaterThan(periods[j].ExtVatPrice)
		})
	}
	sort.Strings(idx.itemKeys)
	return idx, issues
}

func (idx *Index) Has(itemCode string) bool {
	_, ok := idx.byItem[util.NormalizeCode(itemCode)]
	return ok
}

// Periods returns a copy of every period known for the item.
func (idx *Index) Periods(itemCode string) []internal.PricePeriod {
	periods := idx.byItem[util.NormalizeCode(itemCode)]
	return append([]internal.PricePeriod(nil), periods...)
}

// Items lists item codes in ascending order.
func (idx *Index) Items() []string {
	return append([]string(nil), idx.itemKeys...)
}

// FindAllPeriods returns every period (price tier) active on date, in index
// order. Only the calendar date is compared; both ends are inclusive.
func (idx *Index) FindAllPeriods(itemCode string, date time.Time) []internal.PricePeriod {
	day := util.DateOnly(date)
	var out []internal.PricePeriod
	for _, p := range idx.byItem[util.NormalizeCode(itemCode)] {
		if covers(p, day) {
			out = append(out, p)
		}
	}
	return out
}

// FindPeriod returns the single period that governs date. When several
// overlap the one that started last wins; equal starts keep index order, which
// puts the highest ext-VAT price (the standard tier) first.
func (idx *Index) FindPeriod(itemCode string, date time.Time) (internal.PricePeriod, bool) {
	matches := idx.FindAllPeriods(itemCode, date)
	if len(matches) == 0 {
		return internal.PricePeriod{}, false
	}
	best := matches[0]
	for _, p := range matches[1:] {
		if p.StartDate.After(best.StartDate) {
			best = p
		}
	}
	return best, true
}

func (idx *Index) Summary() Summary {
	s := Summary{Items: len(idx.byItem), Periods: idx.periods}
	for _, periods := range idx.byItem {
		for _, p := range periods {
			start := p.StartDate
			if s.Earliest == nil || start.Before(*s.Earliest) {
				s.Earliest = util.TimePtr(start)
			}
			if s.Latest == nil || start.After(*s.Latest) {
				s.Latest = util.TimePtr(start)
			}
		}
	}
	return s
}

func covers(p internal.PricePeriod, day time.Time) bool {
	if day.Before(p.StartDate) {
		return false
	}
	return p.EndDate == nil || !day.After(*p.EndDate)
}
