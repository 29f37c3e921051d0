package http

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"

	"piggybank/internal/core"
)

var templateFuncs = template.FuncMap{
	"dollars": formatDollars,
	"percent": formatPercent,
}

// formatDollars formats an amount as US dollars with thousands separators,
// e.g. "$1,234.50" or "-$3.00".
func formatDollars(d decimal.Decimal) string {
	cents := core.Cents(d)
	neg := cents < 0
	if neg {
		cents = -cents
	}
	whole := decimal.NewFromInt(cents / 100).String()
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	s := "$" + b.String() + fmt.Sprintf(".%02d", cents%100)
	if neg {
		return "-" + s
	}
	return s
}

// formatPercent rounds a percentage to a whole number.
func formatPercent(d decimal.Decimal) string {
	return d.Round(0).String() + "%"
}

// sanitizeInput removes control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
