package pricehistory

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"watson/internal"
	"watson/internal/util"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func row(no int, code, start, end, extVat, remark string) internal.PriceListRow {
	r := internal.PriceListRow{
		RowNo:         no,
		ItemCode:      code,
		ExtVatPrice:   decimal.RequireFromString(extVat),
		IncVatPrice:   decimal.RequireFromString(extVat).Mul(decimal.RequireFromString("1.07")),
		StandardPrice: decimal.RequireFromString("599"),
		Remark:        remark,
	}
	if start != "" {
		r.StartDate = util.TimePtr(day(start))
	}
	if end != "" {
		r.EndDate = util.TimePtr(day(end))
	}
	return r
}

func TestFindPeriodAfterClosedPeriod(t *testing.T) {
	idx, issues := Build([]internal.PriceListRow{
		row(1, "100200", "2026-01-01", "2026-01-15", "300", ""),
		row(2, "100200", "2026-01-16", "", "280", ""),
	})
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %+v", issues)
	}

	p, ok := idx.FindPeriod("100200", day("2026-01-20"))
	if !ok || !p.StartDate.Equal(day("2026-01-16")) || p.EndDate != nil {
		t.Fatalf("got %+v ok=%v", p, ok)
	}

	cases := []struct {
		date  string
		start string
		found bool
	}{
		{"2025-12-31", "", false},
		{"2026-01-01", "2026-01-01", true},
		{"2026-01-15", "2026-01-01", true},
		{"2026-01-16", "2026-01-16", true},
		{"2030-06-01", "2026-01-16", true},
	}
	for _, tc := range cases {
		t.Run(tc.date, func(t *testing.T) {
			p, ok := idx.FindPeriod("100200", day(tc.date))
			if ok != tc.found {
				t.Fatalf("found=%v want %v", ok, tc.found)
			}
			if ok && !p.StartDate.Equal(day(tc.start)) {
				t.Fatalf("start=%s want %s", util.FormatDate(p.StartDate), tc.start)
			}
		})
	}
}

func TestFindPeriodIgnoresClock(t *testing.T) {
	idx, _ := Build([]internal.PriceListRow{row(1, "A1", "2026-01-01", "2026-01-15", "10", "")})
	late := time.Date(2026, time.January, 15, 23, 59, 0, 0, time.FixedZone("ICT", 7*3600))
	if _, ok := idx.FindPeriod("A1", late); !ok {
		t.Fatal("end date should be inclusive regardless of clock time")
	}
}

func TestOverlappingPeriodsPreferLatestStart(t *testing.T) {
	idx, _ := Build([]internal.PriceListRow{
		row(1, "A1", "2026-01-01", "", "100", ""),
		row(2, "A1", "2026-02-01", "2026-02-28", "80", "2 For 599"),
		row(3, "A1", "2026-02-01", "2026-02-28", "90", ""),
	})
	p, ok := idx.FindPeriod("A1", day("2026-02-10"))
	if !ok || !p.ExtVatPrice.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("got %+v", p)
	}
	if got := len(idx.FindAllPeriods("A1", day("2026-02-10"))); got != 3 {
		t.Fatalf("tiers = %d, want 3", got)
	}
	if got := len(idx.FindAllPeriods("A1", day("2026-03-01"))); got != 1 {
		t.Fatalf("tiers after promo = %d, want 1", got)
	}
}

func TestBuildFlagsBadRows(t *testing.T) {
	rows := []internal.PriceListRow{
		row(2, "", "2026-01-01", "", "10", ""),
		row(3, "B1", "", "", "10", ""),
		row(4, "B1", "2026-01-01", "", "0", ""),
		row(5, "B1", "2026-02-01", "2026-01-01", "10", ""),
		row(6, "B1 ", "2026-01-01", "", "10", ""),
	}
	idx, issues := Build(rows)
	if len(issues) != 4 {
		t.Fatalf("issues = %+v", issues)
	}
	for i, want := range []int{2, 3, 4, 5} {
		if issues[i].RowNo != want {
			t.Fatalf("issue %d row = %d, want %d", i, issues[i].RowNo, want)
		}
	}
	if !idx.Has("b1") || len(idx.Periods("B1")) != 1 {
		t.Fatalf("valid row should survive: %+v", idx.Periods("B1"))
	}
}

func TestSummary(t *testing.T) {
	idx, _ := Build([]internal.PriceListRow{
		row(1, "A1", "2026-01-05", "", "10", ""),
		row(2, "A1", "2026-03-01", "", "9", ""),
		row(3, "B2", "2025-12-01", "", "20", ""),
	})
	s := idx.Summary()
	if s.Items != 2 || s.Periods != 3 {
		t.Fatalf("summary = %+v", s)
	}
	if !s.Earliest.Equal(day("2025-12-01")) || !s.Latest.Equal(day("2026-03-01")) {
		t.Fatalf("range = %s..%s", s.Earliest, s.Latest)
	}
	if items := idx.Items(); len(items) != 2 || items[0] != "A1" {
		t.Fatalf("items = %v", items)
	}

	empty, _ := Build(nil)
	if s := empty.Summary(); s.Items != 0 || s.Earliest != nil {
		t.Fatalf("empty summary = %+v", s)
	}
}
