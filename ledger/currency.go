package ledger

import (
	"math"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code drawn from the closed set a wallet may hold.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	CAD Currency = "CAD"
	MXN Currency = "MXN"
	COP Currency = "COP"
	ARS Currency = "ARS"
	CLP Currency = "CLP"
	PEN Currency = "PEN"
	BRL Currency = "BRL"
)

var supportedCurrencies = []Currency{USD, EUR, GBP, CAD, MXN, COP, ARS, CLP, PEN, BRL}

// SupportedCurrencies returns a copy of the wallet currency enumeration.
func SupportedCurrencies() []Currency {
	out := make([]Currency, len(supportedCurrencies))
	copy(out, supportedCurrencies)
	return out
}

// Supported reports whether c is in the enumeration and known to go-money.
func (c Currency) Supported() bool {
	for _, s := range supportedCurrencies {
		if s == c {
			return money.GetCurrency(string(c)) != nil
		}
	}
	return false
}

// ParseCurrency normalizes and validates a currency code.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Supported() {
		return "", invalid("unsupported currency %q", s)
	}
	return c, nil
}

// FormatAmount renders amount in c using the currency's minor unit and
// display template, e.g. "$1,000.00" or "-€90.00".
func FormatAmount(amount decimal.Decimal, c Currency) string {
	cur := money.GetCurrency(string(c))
	if cur == nil {
		return amount.String() + " " + string(c)
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		// beyond what go-money can hold
		return amount.StringFixed(int32(cur.Fraction)) + " " + cur.Code
	}
	return money.New(minor.IntPart(), cur.Code).Display()
}

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)
