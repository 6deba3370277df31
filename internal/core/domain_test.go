package core

import (
	"errors"
	"testing"
	"time"
)

func TestSaleValidate(t *testing.T) {
	good := Sale{
		ID:        "s-1",
		ClientID:  "c-1",
		CreatedAt: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		Total:     Money{Cents: 1200},
		Items: []LineItem{
			{ProductID: "p-1", ProductName: "Coffee", Quantity: 2, UnitPrice: Money{Cents: 600}},
		},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name string
		mut  func(s *Sale)
		want error
	}{
		{"empty id", func(s *Sale) { s.ID = " " }, ErrEmptySaleID},
		{"zero date", func(s *Sale) { s.CreatedAt = time.Time{} }, ErrInvalidDate},
		{"negative total", func(s *Sale) { s.Total = Money{Cents: -1} }, ErrInvalidAmount},
		{"zero quantity", func(s *Sale) { s.Items = []LineItem{{ProductID: "p", Quantity: 0}} }, ErrInvalidQuantity},
		{"missing product", func(s *Sale) { s.Items = []LineItem{{Quantity: 1}} }, ErrEmptyProductID},
		{"negative price", func(s *Sale) {
			s.Items = []LineItem{{ProductID: "p", Quantity: 1, UnitPrice: Money{Cents: -5}}}
		}, ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := good
			s.Items = append([]LineItem(nil), good.Items...)
			tc.mut(&s)
			if err := s.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestYearMonthAddMonths(t *testing.T) {
	cases := []struct {
		from YearMonth
		n    int
		want YearMonth
	}{
		{YearMonth{2025, time.March}, 0, YearMonth{2025, time.March}},
		{YearMonth{2025, time.March}, -5, YearMonth{2024, time.October}},
		{YearMonth{2025, time.January}, -1, YearMonth{2024, time.December}},
		{YearMonth{2024, time.December}, 1, YearMonth{2025, time.January}},
		{YearMonth{2024, time.June}, -18, YearMonth{2022, time.December}},
	}
	for _, tc := range cases {
		if got := tc.from.AddMonths(tc.n); got != tc.want {
			t.Errorf("%v.AddMonths(%d) = %v, want %v", tc.from, tc.n, got, tc.want)
		}
	}
}

func TestYearMonthOfUsesLocation(t *testing.T) {
	rome := time.FixedZone("CET", 3600)
	// 23:30 UTC on Jan 31 is already February in Rome.
	ts := time.Date(2025, 1, 31, 23, 30, 0, 0, time.UTC)
	if got := YearMonthOf(ts, rome); got != (YearMonth{2025, time.February}) {
		t.Fatalf("YearMonthOf = %v, want 2025-02", got)
	}
	if got := YearMonthOf(ts, nil); got != (YearMonth{2025, time.January}) {
		t.Fatalf("YearMonthOf(nil loc) = %v, want 2025-01", got)
	}
}
