package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuantityScale is the fixed precision of billed quantities and prices.
const QuantityScale = 7

var (
	one = decimal.NewFromInt(1)
	two = decimal.NewFromInt(2)
)

// Quantize rounds half-up at the configured scale. All quantity and price
// math funnels through here so repeated computation is bit-for-bit stable.
func Quantize(d decimal.Decimal) decimal.Decimal {
	return d.Round(QuantityScale)
}

// ProratedQuantity converts the usage window [start, end) into a billed
// quantity for time-based units.
//
// Hourly and daily units bill every started hour or day. Monthly units bill
// the covered fraction of the month: exact coverage of day 1 through the
// last day is 1. Half-month units split the month into day 1-15 and day
// 16-end; exact coverage of a half is 1, of the whole month 2, and partial
// spans are measured against half the month's day count.
//
// UnitQuantity is not time-prorated; callers keep the externally reported
// quantity. For symmetry this function treats it like UnitPerMonth, matching
// the behaviour of the fallthrough branch it replaces.
func ProratedQuantity(unit Unit, start, end time.Time) decimal.Decimal {
	start, end = start.UTC(), end.UTC()
	monthDays := MonthDays(start)

	switch unit {
	case UnitPerHour:
		return decimal.NewFromInt(FullHours(start, end))
	case UnitPerDay:
		return decimal.NewFromInt(FullDays(start, end))
	case UnitPerHalfMonth:
		return halfMonthQuantity(start, end, monthDays)
	default:
		if start.Day() == 1 && end.Day() == monthDays {
			return one
		}
		useDays := int64(end.Sub(start)/(24*time.Hour)) + 1
		return Quantize(decimal.NewFromInt(useDays).Div(decimal.NewFromInt(int64(monthDays))))
	}
}

func halfMonthQuantity(start, end time.Time, monthDays int) decimal.Decimal {
	startDay, endDay := start.Day(), end.Day()
	halfDays := decimal.NewFromInt(int64(monthDays)).Div(two)

	switch {
	case (startDay == 1 && endDay == 15) || (startDay == 16 && endDay == monthDays):
		return one
	case startDay == 1 && endDay == monthDays:
		return two
	case startDay == 1 && endDay > 15:
		// First half fully covered plus a slice of the second.
		over := decimal.NewFromInt(int64(endDay - 15))
		return Quantize(one.Add(over.Div(halfDays)))
	case startDay < 16 && endDay == monthDays:
		// Second half fully covered plus a slice of the first.
		over := decimal.NewFromInt(int64(16 - startDay))
		return Quantize(one.Add(over.Div(halfDays)))
	default:
		span := decimal.NewFromInt(int64(endDay - startDay + 1))
		return Quantize(span.Div(halfDays))
	}
}
