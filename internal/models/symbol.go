package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ISTZone is the exchange timezone. Option expiries cut off at 15:30 IST.
var ISTZone = time.FixedZone("IST", 5*3600+30*60)

// SymbolMeta is the option metadata decoded from a trading symbol.
type SymbolMeta struct {
	Underlying string
	Strike     int
	OptionType OptionType
	Expiry     time.Time
}

var monthAbbrev = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// weeklyMonthCode is the NSE single-character month code used in weekly
// option symbols: 1-9 for Jan-Sep, then O, N, D.
func weeklyMonthCode(m time.Month) string {
	switch m {
	case time.October:
		return "O"
	case time.November:
		return "N"
	case time.December:
		return "D"
	default:
		return strconv.Itoa(int(m))
	}
}

func monthFromWeeklyCode(c byte) (time.Month, bool) {
	switch {
	case c >= '1' && c <= '9':
		return time.Month(c - '0'), true
	case c == 'O':
		return time.October, true
	case c == 'N':
		return time.November, true
	case c == 'D':
		return time.December, true
	default:
		return 0, false
	}
}

// lastThursday returns the monthly expiry date for the given year and month.
func lastThursday(year int, month time.Month) time.Time {
	d := time.Date(year, month+1, 0, 0, 0, 0, 0, ISTZone) // last day of month
	for d.Weekday() != time.Thursday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// EncodeSymbol builds an NSE option trading symbol. The last weekly expiry of
// a month uses the monthly form NIFTY{YY}{MON}{STRIKE}{CE|PE}; every other
// Thursday uses the weekly form NIFTY{YY}{M}{DD}{STRIKE}{CE|PE}.
func EncodeSymbol(underlying string, strike int, optionType OptionType, expiry time.Time) string {
	yy := expiry.Year() % 100
	monthly := lastThursday(expiry.Year(), expiry.Month())
	if expiry.Day() == monthly.Day() && expiry.Month() == monthly.Month() {
		mon := strings.ToUpper(expiry.Month().String()[:3])
		return fmt.Sprintf("%s%02d%s%d%s", underlying, yy, mon, strike, optionType)
	}
	return fmt.Sprintf("%s%02d%s%02d%d%s",
		underlying, yy, weeklyMonthCode(expiry.Month()), expiry.Day(), strike, optionType)
}

// ParseSymbol decodes an NSE option trading symbol in either the weekly or
// the monthly form. The expiry carries the 15:30 IST cutoff; monthly symbols
// resolve to the last Thursday of their month.
func ParseSymbol(symbol string) (SymbolMeta, error) {
	var meta SymbolMeta

	switch {
	case strings.HasSuffix(symbol, string(Call)):
		meta.OptionType = Call
	case strings.HasSuffix(symbol, string(Put)):
		meta.OptionType = Put
	default:
		return SymbolMeta{}, fmt.Errorf("symbol %q has no CE/PE suffix", symbol)
	}
	body := symbol[:len(symbol)-2]

	i := 0
	for i < len(body) && body[i] >= 'A' && body[i] <= 'Z' {
		i++
	}
	if i == 0 || i+2 > len(body) {
		return SymbolMeta{}, fmt.Errorf("symbol %q has no underlying/year", symbol)
	}
	meta.Underlying = body[:i]
	yy, err := strconv.Atoi(body[i : i+2])
	if err != nil {
		return SymbolMeta{}, fmt.Errorf("symbol %q has invalid year: %w", symbol, err)
	}
	year := 2000 + yy
	rest := body[i+2:]

	var (
		month    time.Month
		day      int
		strikeAt int
	)
	if len(rest) >= 3 {
		if m, ok := monthAbbrev[rest[:3]]; ok {
			// Monthly form: expiry is the last Thursday of the month.
			month = m
			exp := lastThursday(year, month)
			day = exp.Day()
			strikeAt = 3
		}
	}
	if strikeAt == 0 {
		if len(rest) < 3 {
			return SymbolMeta{}, fmt.Errorf("symbol %q too short for expiry", symbol)
		}
		m, ok := monthFromWeeklyCode(rest[0])
		if !ok {
			return SymbolMeta{}, fmt.Errorf("symbol %q has invalid month code %q", symbol, rest[0])
		}
		month = m
		day, err = strconv.Atoi(rest[1:3])
		if err != nil || day < 1 || day > 31 {
			return SymbolMeta{}, fmt.Errorf("symbol %q has invalid expiry day", symbol)
		}
		strikeAt = 3
	}

	strike, err := strconv.Atoi(rest[strikeAt:])
	if err != nil || strike <= 0 {
		return SymbolMeta{}, fmt.Errorf("symbol %q has invalid strike", symbol)
	}
	meta.Strike = strike
	meta.Expiry = time.Date(year, month, day, 15, 30, 0, 0, ISTZone)
	return meta, nil
}
