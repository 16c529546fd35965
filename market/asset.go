package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetClass buckets assets for class-level risk caps.
type AssetClass string

const (
	ClassEquity AssetClass = "equity"
	ClassCrypto AssetClass = "crypto"
)

// Calendar answers whether an asset trades at a given instant.
type Calendar interface {
	IsOpen(t time.Time) bool
}

// AlwaysOpen is the 24/7 calendar used by crypto-like assets.
type AlwaysOpen struct{}

func (AlwaysOpen) IsOpen(time.Time) bool { return true }

// Weekdays trades Monday through Friday, full day UTC.
// Session times are a refinement the simulated fills do not need yet.
type Weekdays struct{}

func (Weekdays) IsOpen(t time.Time) bool {
	wd := t.UTC().Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// Asset is immutable reference data for a tradable instrument.
type Asset struct {
	Symbol            string
	Class             AssetClass
	MinOrderIncrement decimal.Decimal
	PricePrecision    int32
	Calendar          Calendar
}

// NewAsset fills in the calendar appropriate for the asset class.
func NewAsset(symbol string, class AssetClass, minIncrement string, precision int32) Asset {
	var cal Calendar = Weekdays{}
	if class == ClassCrypto {
		cal = AlwaysOpen{}
	}
	return Asset{
		Symbol:            symbol,
		Class:             class,
		MinOrderIncrement: decimal.RequireFromString(minIncrement),
		PricePrecision:    precision,
		Calendar:          cal,
	}
}

// Universe is an immutable symbol->Asset lookup.
type Universe map[string]Asset

func (u Universe) Symbols() []string {
	syms := make([]string, 0, len(u))
	for s := range u {
		syms = append(syms, s)
	}
	return syms
}
