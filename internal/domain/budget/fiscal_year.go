package budget

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/gryphon/budget-core/internal/domain/shared"
)

// FiscalYearStartMonth is the first month of the April to March accounting cycle.
const FiscalYearStartMonth = time.April

var fiscalYearPattern = regexp.MustCompile(`^\d{2}-\d{2}$`)

// FiscalYear is a "YY-YY" label such as "25-26" for 1 April 2025 to 31 March 2026.
type FiscalYear string

// CurrentFiscalYear returns the fiscal year containing now.
// January to March belong to the fiscal year that started the previous calendar year.
func CurrentFiscalYear(now time.Time) FiscalYear {
	startYear := now.Year()
	if now.Month() < FiscalYearStartMonth {
		startYear--
	}
	return fiscalYearStartingIn(startYear)
}

func fiscalYearStartingIn(year int) FiscalYear {
	first := year % 100
	second := (first + 1) % 100
	return FiscalYear(fmt.Sprintf("%02d-%02d", first, second))
}

// ParseFiscalYear validates s and returns it as a FiscalYear
func ParseFiscalYear(s string) (FiscalYear, error) {
	fy := FiscalYear(s)
	if err := fy.Validate(); err != nil {
		return "", err
	}
	return fy, nil
}

// Validate checks the "YY-YY" shape and that the second fragment follows the first
func (fy FiscalYear) Validate() error {
	s := string(fy)
	if !fiscalYearPattern.MatchString(s) {
		return shared.NewValidationError(fmt.Sprintf("malformed fiscal year %q, expected YY-YY", s))
	}
	first, _ := strconv.Atoi(s[:2])
	second, _ := strconv.Atoi(s[3:])
	if second != (first+1)%100 {
		return shared.NewValidationError(fmt.Sprintf("malformed fiscal year %q, years are not consecutive", s))
	}
	return nil
}

// String returns the "YY-YY" label
func (fy FiscalYear) String() string {
	return string(fy)
}

// StartYear returns the four digit calendar year the fiscal year starts in.
// Two digit years are read as 20YY.
func (fy FiscalYear) StartYear() int {
	first, _ := strconv.Atoi(string(fy)[:2])
	return 2000 + first
}

// Start returns midnight of 1 April in loc
func (fy FiscalYear) Start(loc *time.Location) time.Time {
	return time.Date(fy.StartYear(), FiscalYearStartMonth, 1, 0, 0, 0, 0, loc)
}

// End returns the last nanosecond of 31 March in loc
func (fy FiscalYear) End(loc *time.Location) time.Time {
	return fy.Start(loc).AddDate(1, 0, 0).Add(-time.Nanosecond)
}

// Contains reports whether t falls inside the fiscal year
func (fy FiscalYear) Contains(t time.Time) bool {
	return CurrentFiscalYear(t) == fy
}
