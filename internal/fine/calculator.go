// Package fine computes late-return penalties for loans. All functions are
// pure; the ledger calls them inside its transactions and reporting calls
// them for projected amounts.
package fine

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyRate is the penalty charged per whole calendar day of delay.
var DailyRate = decimal.RequireFromString("2.00")

// Compute returns the fine owed for a loan due on dueDate when the book
// comes back (or is evaluated) on asOf. The fine is DailyRate per whole
// calendar day of delay, never negative, with two decimal places.
func Compute(dueDate, asOf time.Time) decimal.Decimal {
	late := DaysLate(dueDate, asOf)
	if late <= 0 {
		return decimal.Zero.Round(2)
	}
	return DailyRate.Mul(decimal.NewFromInt(int64(late))).Round(2)
}

// Projected returns the fine an open loan would accrue if returned today.
func Projected(dueDate, today time.Time) decimal.Decimal {
	return Compute(dueDate, today)
}

// DaysLate returns the number of whole calendar days asOf lies after
// dueDate. Time-of-day and time zone offsets are ignored; only the civil
// date counts. The result is never negative.
func DaysLate(dueDate, asOf time.Time) int {
	due := civilDate(dueDate)
	at := civilDate(asOf)
	days := int(at.Sub(due).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
