package domain

import (
	"fmt"
	"time"
)

// FiscalYearSelector picks the fiscal year a dashboard is built for
type FiscalYearSelector string

const (
	FiscalYearCurrent  FiscalYearSelector = "current"
	FiscalYearPrevious FiscalYearSelector = "previous"
)

// IsValid reports whether the selector is a known value
func (s FiscalYearSelector) IsValid() bool {
	return s == FiscalYearCurrent || s == FiscalYearPrevious
}

// ParseFiscalYearSelector parses a query parameter, defaulting to the current year
func ParseFiscalYearSelector(raw string) (FiscalYearSelector, error) {
	if raw == "" {
		return FiscalYearCurrent, nil
	}
	s := FiscalYearSelector(raw)
	if !s.IsValid() {
		return "", fmt.Errorf("fiscal_year must be %q or %q", FiscalYearCurrent, FiscalYearPrevious)
	}
	return s, nil
}

// Resolve returns the fiscal year window the selector refers to at time now
func (s FiscalYearSelector) Resolve(now time.Time, startMonth int) Period {
	fy := FiscalYearFor(now, startMonth)
	if s == FiscalYearPrevious {
		return FiscalYearFor(fy.Start.AddDate(0, 0, -1), startMonth)
	}
	return fy
}

// OrderStatusFilter selects which client orders are reported
type OrderStatusFilter string

const (
	OrderStatusActive OrderStatusFilter = "active"
	OrderStatusAll    OrderStatusFilter = "all"
)

// ParseOrderStatusFilter parses a query parameter, defaulting to active orders
func ParseOrderStatusFilter(raw string) (OrderStatusFilter, error) {
	switch OrderStatusFilter(raw) {
	case "", OrderStatusActive:
		return OrderStatusActive, nil
	case OrderStatusAll:
		return OrderStatusAll, nil
	}
	return "", fmt.Errorf("order_status must be %q or %q", OrderStatusActive, OrderStatusAll)
}

// Period is a half-open reporting window [Start, End)
type Period struct {
	Label string
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// DTO renders the window with an inclusive last day
func (p Period) DTO() PeriodDTO {
	return PeriodDTO{
		Label: p.Label,
		Start: p.Start.Format(time.DateOnly),
		End:   p.End.AddDate(0, 0, -1).Format(time.DateOnly),
	}
}

// FiscalYearFor returns the fiscal year containing now. A fiscal year starts on
// the first day of startMonth (March for the sales department) and lasts twelve
// months, so February 29 is covered automatically.
func FiscalYearFor(now time.Time, startMonth int) Period {
	year := now.Year()
	if int(now.Month()) < startMonth {
		year--
	}
	start := time.Date(year, time.Month(startMonth), 1, 0, 0, 0, 0, now.Location())
	end := start.AddDate(1, 0, 0)

	label := fmt.Sprintf("FY %d", year)
	if startMonth != 1 {
		label = fmt.Sprintf("FY %d/%02d", year, (year+1)%100)
	}
	return Period{Label: label, Start: start, End: end}
}

// QuarterOf returns the calendar quarter containing now
func QuarterOf(now time.Time) Period {
	q := (int(now.Month()) - 1) / 3
	start := time.Date(now.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, now.Location())
	return Period{
		Label: fmt.Sprintf("Q%d %d", q+1, now.Year()),
		Start: start,
		End:   start.AddDate(0, 3, 0),
	}
}

// PreviousQuarter returns the calendar quarter before the one containing now
func PreviousQuarter(now time.Time) Period {
	return QuarterOf(QuarterOf(now).Start.AddDate(0, 0, -1))
}
