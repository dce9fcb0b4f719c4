package models

import (
	"testing"
	"time"
)

func TestEncodeSymbol(t *testing.T) {
	tests := []struct {
		name     string
		strike   int
		ot       OptionType
		expiry   time.Time
		expected string
	}{
		{
			name:     "weekly call",
			strike:   21000,
			ot:       Call,
			expiry:   time.Date(2026, time.September, 3, 15, 30, 0, 0, ISTZone),
			expected: "NIFTY2690321000CE",
		},
		{
			name:     "weekly put october uses O code",
			strike:   18950,
			ot:       Put,
			expiry:   time.Date(2026, time.October, 8, 15, 30, 0, 0, ISTZone),
			expected: "NIFTY26O0818950PE",
		},
		{
			name:     "monthly expiry uses month abbreviation",
			strike:   21000,
			ot:       Call,
			expiry:   time.Date(2026, time.September, 24, 15, 30, 0, 0, ISTZone), // last Thursday
			expected: "NIFTY26SEP21000CE",
		},
		{
			name:     "december weekly uses D code",
			strike:   22000,
			ot:       Call,
			expiry:   time.Date(2026, time.December, 10, 15, 30, 0, 0, ISTZone),
			expected: "NIFTY26D1022000CE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeSymbol("NIFTY", tt.strike, tt.ot, tt.expiry)
			if got != tt.expected {
				t.Errorf("EncodeSymbol = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestParseSymbol(t *testing.T) {
	tests := []struct {
		name       string
		symbol     string
		wantStrike int
		wantType   OptionType
		wantExpiry time.Time
	}{
		{
			name:       "weekly call",
			symbol:     "NIFTY2690321000CE",
			wantStrike: 21000,
			wantType:   Call,
			wantExpiry: time.Date(2026, time.September, 3, 15, 30, 0, 0, ISTZone),
		},
		{
			name:       "weekly october put",
			symbol:     "NIFTY26O0818950PE",
			wantStrike: 18950,
			wantType:   Put,
			wantExpiry: time.Date(2026, time.October, 8, 15, 30, 0, 0, ISTZone),
		},
		{
			name:       "monthly resolves to last thursday",
			symbol:     "NIFTY26SEP21000CE",
			wantStrike: 21000,
			wantType:   Call,
			wantExpiry: time.Date(2026, time.September, 24, 15, 30, 0, 0, ISTZone),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := ParseSymbol(tt.symbol)
			if err != nil {
				t.Fatalf("ParseSymbol(%q): %v", tt.symbol, err)
			}
			if meta.Underlying != "NIFTY" {
				t.Errorf("Underlying = %q", meta.Underlying)
			}
			if meta.Strike != tt.wantStrike {
				t.Errorf("Strike = %d, expected %d", meta.Strike, tt.wantStrike)
			}
			if meta.OptionType != tt.wantType {
				t.Errorf("OptionType = %v, expected %v", meta.OptionType, tt.wantType)
			}
			if !meta.Expiry.Equal(tt.wantExpiry) {
				t.Errorf("Expiry = %v, expected %v", meta.Expiry, tt.wantExpiry)
			}
		})
	}
}

func TestParseSymbolErrors(t *testing.T) {
	for _, symbol := range []string{
		"",
		"RELIANCE",
		"NIFTY26CE",
		"NIFTYXXSEP21000CE",
		"NIFTY26Z0321000CE",
		"NIFTY26SEPCE",
	} {
		if _, err := ParseSymbol(symbol); err == nil {
			t.Errorf("ParseSymbol(%q) should fail", symbol)
		}
	}
}

func TestSymbolRoundTrip(t *testing.T) {
	// Every Thursday for a year must encode and parse back to the same
	// strike, type, and expiry date.
	d := time.Date(2026, time.January, 1, 15, 30, 0, 0, ISTZone)
	for d.Weekday() != time.Thursday {
		d = d.AddDate(0, 0, 1)
	}
	for i := 0; i < 52; i++ {
		expiry := d.AddDate(0, 0, i*7)
		for _, ot := range []OptionType{Call, Put} {
			symbol := EncodeSymbol("NIFTY", 21000, ot, expiry)
			meta, err := ParseSymbol(symbol)
			if err != nil {
				t.Fatalf("ParseSymbol(%q): %v", symbol, err)
			}
			if meta.Strike != 21000 || meta.OptionType != ot || !meta.Expiry.Equal(expiry) {
				t.Fatalf("round trip of %q = %+v, expected expiry %v", symbol, meta, expiry)
			}
		}
	}
}
