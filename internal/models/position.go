package models

import "time"

// Position is a net holding per symbol, rebuilt wholesale from the gateway's
// position snapshot each sync cycle. Quantity is always the absolute value of
// the net quantity; Side carries the sign.
type Position struct {
	Symbol       string      `json:"symbol"`
	Exchange     string      `json:"exchange"`
	Quantity     int         `json:"quantity"`
	AveragePrice float64     `json:"average_price"`
	Side         Side        `json:"side"`
	Product      ProductType `json:"product"`
	OptionType   OptionType  `json:"option_type,omitempty"`
	Strike       int         `json:"strike,omitempty"`
	Expiry       time.Time   `json:"expiry,omitempty"`
	IsHedge      bool        `json:"is_hedge,omitempty"`
	IsMartingale bool        `json:"is_martingale,omitempty"`
	PnL          float64     `json:"pnl"`
}

// PositionFromNet builds a Position from a raw gateway record. Side is
// inferred from the sign of netQuantity and the option metadata is parsed
// from the trading symbol when it decodes.
func PositionFromNet(symbol, exchange string, netQuantity int, averagePrice float64, product ProductType, pnl float64) Position {
	side := Sell
	if netQuantity > 0 {
		side = Buy
	}
	p := Position{
		Symbol:       symbol,
		Exchange:     exchange,
		Quantity:     abs(netQuantity),
		AveragePrice: averagePrice,
		Side:         side,
		Product:      product,
		PnL:          pnl,
	}
	if meta, err := ParseSymbol(symbol); err == nil {
		p.OptionType = meta.OptionType
		p.Strike = meta.Strike
		p.Expiry = meta.Expiry
	}
	// Long option legs are hedges in this strategy; the flag is refined by
	// the ledger when order history carries an explicit tag.
	p.IsHedge = side == Buy && p.OptionType != ""
	return p
}

// UpdatePnL recomputes the mark-to-market P/L from the last traded price.
// Short legs profit as the premium decays, long legs as it rises.
func (p *Position) UpdatePnL(lastPrice float64) {
	if p.Side == Sell {
		p.PnL = (p.AveragePrice - lastPrice) * float64(p.Quantity)
	} else {
		p.PnL = (lastPrice - p.AveragePrice) * float64(p.Quantity)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
