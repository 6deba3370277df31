package core

import (
	"slices"
	"strings"
	"time"
)

const (
	// DefaultHistoryMonths is the width of the trailing spend window.
	DefaultHistoryMonths = 6
	// TopProductsLimit is the length cap of the product ranking.
	TopProductsLimit = 3
)

// MonthBucket is the spend total of one calendar month.
type MonthBucket struct {
	Year  int
	Month time.Month
	Label string
	Total Money
}

// ProductRanking is a product's cumulative purchased quantity.
type ProductRanking struct {
	ProductID   string
	ProductName string
	Quantity    int
}

// History is the derived view of a client's purchases.
type History struct {
	ClientID     string
	GeneratedAt  time.Time
	Months       []MonthBucket
	TopProducts  []ProductRanking
	SalesCount   int
	SkippedItems int
}

// HasSpend reports whether any bucket has a non-zero total.
func (h History) HasSpend() bool {
	for _, b := range h.Months {
		if b.Total.Cents != 0 {
			return true
		}
	}
	return false
}

// WindowTotal sums all bucket totals.
func (h History) WindowTotal() Money {
	var total Money
	for _, b := range h.Months {
		total = total.Add(b.Total)
	}
	return total
}

// MonthlySpend returns exactly n buckets for the trailing n months ending at the
// month of now, oldest first. Sales are keyed by their month in now's location;
// sales outside the window and sales without a timestamp are ignored.
func MonthlySpend(sales []Sale, now time.Time, n int, label LabelFunc) []MonthBucket {
	if n <= 0 {
		n = DefaultHistoryMonths
	}
	if label == nil {
		label = MonthLabeler()
	}
	loc := now.Location()
	current := YearMonthOf(now, loc)
	first := current.AddMonths(-(n - 1))

	buckets := make([]MonthBucket, n)
	index := make(map[YearMonth]int, n)
	for i := 0; i < n; i++ {
		ym := first.AddMonths(i)
		buckets[i] = MonthBucket{Year: ym.Year, Month: ym.Month, Label: label(ym)}
		index[ym] = i
	}

	for _, s := range sales {
		if s.CreatedAt.IsZero() {
			continue
		}
		if i, ok := index[YearMonthOf(s.CreatedAt, loc)]; ok {
			buckets[i].Total = buckets[i].Total.Add(s.Total)
		}
	}
	return buckets
}

// TopProducts ranks products by cumulative quantity across all line items and
// keeps the first limit entries. Ties keep first-seen order. Line items without a
// product id or with a non-positive quantity are skipped; their count is returned.
func TopProducts(sales []Sale, limit int) ([]ProductRanking, int) {
	if limit <= 0 {
		limit = TopProductsLimit
	}
	var (
		ranking []ProductRanking
		skipped int
	)
	pos := make(map[string]int)
	for _, s := range sales {
		for _, li := range s.Items {
			id := strings.TrimSpace(li.ProductID)
			if id == "" || li.Quantity <= 0 {
				skipped++
				continue
			}
			if i, ok := pos[id]; ok {
				ranking[i].Quantity += li.Quantity
				continue
			}
			pos[id] = len(ranking)
			ranking = append(ranking, ProductRanking{
				ProductID:   id,
				ProductName: li.ProductName,
				Quantity:    li.Quantity,
			})
		}
	}

	slices.SortStableFunc(ranking, func(a, b ProductRanking) int {
		return b.Quantity - a.Quantity
	})
	if len(ranking) > limit {
		ranking = ranking[:limit]
	}
	if ranking == nil {
		ranking = []ProductRanking{}
	}
	return ranking, skipped
}

// BuildHistory derives the monthly spend window and the top products ranking.
// It is a pure function of its arguments.
func BuildHistory(clientID string, sales []Sale, now time.Time, months int, label LabelFunc) History {
	top, skipped := TopProducts(sales, TopProductsLimit)
	return History{
		ClientID:     clientID,
		GeneratedAt:  now,
		Months:       MonthlySpend(sales, now, months, label),
		TopProducts:  top,
		SalesCount:   len(sales),
		SkippedItems: skipped,
	}
}
