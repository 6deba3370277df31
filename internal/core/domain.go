package core

import (
	"errors"
	"strings"
	"time"
)

type (
	Money struct {
		Cents int64
	}

	LineItem struct {
		ProductID   string
		ProductName string
		Quantity    int
		UnitPrice   Money
	}

	// Sale is a completed transaction as returned by the sales API.
	// It is read-only for this service.
	Sale struct {
		ID        string
		ClientID  string
		CreatedAt time.Time
		Total     Money
		Items     []LineItem
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrEmptyProductID  = errors.New("empty product id")
	ErrEmptySaleID     = errors.New("empty sale id")
	ErrInvalidDate     = errors.New("invalid sale date")
)

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Add returns the sum of two amounts.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (li LineItem) Validate() error {
	if strings.TrimSpace(li.ProductID) == "" {
		return ErrEmptyProductID
	}
	if li.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if err := li.UnitPrice.Validate(); err != nil {
		return err
	}
	return nil
}

func (s Sale) Validate() error {
	if err := s.ValidateHeader(); err != nil {
		return err
	}
	for _, li := range s.Items {
		if err := li.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateHeader checks the sale fields without looking at its line items.
// Stores use it so that malformed items are kept and later skipped by the
// aggregator instead of rejecting the whole sale.
func (s Sale) ValidateHeader() error {
	if strings.TrimSpace(s.ID) == "" {
		return ErrEmptySaleID
	}
	if s.CreatedAt.IsZero() {
		return ErrInvalidDate
	}
	return s.Total.Validate()
}

// YearMonth identifies a calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

// YearMonthOf returns the calendar month of t in loc. A nil loc keeps t's location.
func YearMonthOf(t time.Time, loc *time.Location) YearMonth {
	if loc != nil {
		t = t.In(loc)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// AddMonths moves the month forward (or backward for negative n).
func (ym YearMonth) AddMonths(n int) YearMonth {
	idx := ym.Year*12 + int(ym.Month) - 1 + n
	return YearMonth{Year: idx / 12, Month: time.Month(idx%12 + 1)}
}
