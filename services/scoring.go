package services

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Percentage returns 100*correct/total rounded to two decimals; 0 when total is 0.
func Percentage(correct, total int) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(correct)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(total))).
		Round(2)
}

// RemainingSeconds is the whole number of seconds left before expiry, never negative.
func RemainingSeconds(expiresAt, now time.Time) int {
	left := expiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}

// ElapsedSeconds is the whole number of seconds between from and to, never negative.
func ElapsedSeconds(from, to time.Time) int {
	d := to.Sub(from)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}
