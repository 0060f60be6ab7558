// Package deadline validates free-text deadlines against the fixed
// "day, month-name, year" grammar used throughout taskintake.
//
// Month names are matched against the Russian month table. English month
// names are rejected with a distinct reason so callers can tell the user
// to switch languages rather than guess at a typo.
package deadline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Reason classifies why an input failed validation.
type Reason string

const (
	ReasonMalformedFormat Reason = "malformed_format"
	ReasonInvalidDay      Reason = "invalid_day"
	ReasonInvalidMonth    Reason = "invalid_month"
	ReasonWrongLanguage   Reason = "wrong_language"
	ReasonYearTooLarge    Reason = "year_too_large"
	ReasonDayOutOfRange   Reason = "day_out_of_range"
)

// RejectionError describes a failed validation. It is safe to show
// Error() directly to the user as correction guidance.
type RejectionError struct {
	Reason  Reason
	Message string

	// MaxDays and Month are set only for ReasonDayOutOfRange.
	MaxDays int
	Month   string
}

// Error returns the user-facing rejection message.
func (e *RejectionError) Error() string {
	return e.Message
}

// Date is a deadline that passed validation. Month keeps the case the
// user typed; nothing is normalized beyond separator collapsing.
type Date struct {
	Day   int
	Month string
	Year  int
}

// String renders the canonical stored form: "day, month, year".
func (d Date) String() string {
	return fmt.Sprintf("%d, %s, %d", d.Day, d.Month, d.Year)
}

// MaxYear is the upper bound on accepted years. There is no lower bound.
const MaxYear = 2099

var russianMonths = [12]string{
	"январь", "февраль", "март", "апрель", "май", "июнь",
	"июль", "август", "сентябрь", "октябрь", "ноябрь", "декабрь",
}

var englishMonths = map[string]bool{
	"january": true, "february": true, "march": true, "april": true,
	"may": true, "june": true, "july": true, "august": true,
	"september": true, "october": true, "november": true, "december": true,
}

// Non-February day bounds; February is resolved from the leap-year rule.
var daysInMonth = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

var separators = regexp.MustCompile(`[,\s]+`)

// Validate parses input as "day, month, year" (comma and/or whitespace
// separated) and checks it against Gregorian calendar bounds. On failure
// the returned error is a *RejectionError.
func Validate(input string) (Date, error) {
	var parts []string
	for _, p := range separators.Split(input, -1) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) != 3 {
		return Date{}, &RejectionError{
			Reason:  ReasonMalformedFormat,
			Message: "invalid format: expected day, month, year (separated by commas or spaces)",
		}
	}

	day, err := strconv.Atoi(parts[0])
	if err != nil || day < 1 || day > 31 {
		return Date{}, &RejectionError{
			Reason:  ReasonInvalidDay,
			Message: "day must be a whole number between 1 and 31",
		}
	}

	monthLower := strings.ToLower(parts[1])
	monthIdx := -1
	for i, m := range russianMonths {
		if m == monthLower {
			monthIdx = i
			break
		}
	}
	if monthIdx < 0 {
		if englishMonths[monthLower] {
			return Date{}, &RejectionError{
				Reason:  ReasonWrongLanguage,
				Message: "please use the Russian month name",
			}
		}
		return Date{}, &RejectionError{
			Reason:  ReasonInvalidMonth,
			Message: "unrecognized month: use a Russian month name",
		}
	}

	year, err := strconv.Atoi(parts[2])
	if err != nil {
		return Date{}, &RejectionError{
			Reason:  ReasonMalformedFormat,
			Message: "year must be a whole number",
		}
	}
	if year > MaxYear {
		return Date{}, &RejectionError{
			Reason:  ReasonYearTooLarge,
			Message: fmt.Sprintf("year cannot be later than %d", MaxYear),
		}
	}

	maxDays := daysInMonth[monthIdx]
	if monthIdx == 1 {
		if isLeapYear(year) {
			maxDays = 29
		} else {
			maxDays = 28
		}
	}
	if day > maxDays {
		monthName := russianMonths[monthIdx]
		return Date{}, &RejectionError{
			Reason:  ReasonDayOutOfRange,
			Message: fmt.Sprintf("%s does not have %d days (at most %d)", monthName, day, maxDays),
			MaxDays: maxDays,
			Month:   monthName,
		}
	}

	return Date{Day: day, Month: parts[1], Year: year}, nil
}

func isLeapYear(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}
