package models

import (
	"sort"
	"time"
)

// OptionContract is one strike/type/expiry's live quote. Immutable snapshot.
type OptionContract struct {
	Symbol        string     `json:"symbol"`
	Strike        int        `json:"strike"`
	OptionType    OptionType `json:"option_type"`
	Expiry        time.Time  `json:"expiry"`
	LastPrice     float64    `json:"last_price"`
	ChangePercent float64    `json:"change_percent"`
	Volume        int64      `json:"volume"`
	OpenInterest  int64      `json:"open_interest"`
	BidPrice      float64    `json:"bid_price"`
	AskPrice      float64    `json:"ask_price"`
}

// OptionChain is the spot price plus a strike → {call, put} quote table for
// one expiry.
type OptionChain struct {
	Expiry    time.Time                            `json:"expiry"`
	SpotPrice float64                              `json:"spot_price"`
	Contracts map[int]map[OptionType]OptionContract `json:"contracts"`
}

// NewOptionChain returns an empty chain for the given expiry.
func NewOptionChain(expiry time.Time, spotPrice float64) *OptionChain {
	return &OptionChain{
		Expiry:    expiry,
		SpotPrice: spotPrice,
		Contracts: make(map[int]map[OptionType]OptionContract),
	}
}

// Add inserts a contract under its strike and option type.
func (c *OptionChain) Add(contract OptionContract) {
	byType, ok := c.Contracts[contract.Strike]
	if !ok {
		byType = make(map[OptionType]OptionContract, 2)
		c.Contracts[contract.Strike] = byType
	}
	byType[contract.OptionType] = contract
}

// Contract looks up the quote for a strike and option type.
func (c *OptionChain) Contract(strike int, optionType OptionType) (OptionContract, bool) {
	byType, ok := c.Contracts[strike]
	if !ok {
		return OptionContract{}, false
	}
	contract, ok := byType[optionType]
	return contract, ok
}

// Strikes returns all strikes in the chain in ascending order.
func (c *OptionChain) Strikes() []int {
	strikes := make([]int, 0, len(c.Contracts))
	for strike := range c.Contracts {
		strikes = append(strikes, strike)
	}
	sort.Ints(strikes)
	return strikes
}
