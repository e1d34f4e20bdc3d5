package model

// BookDepth is the number of price levels per side in a book update.
const BookDepth = 5

// BookUpdate is a top-of-book snapshot. Index 0 is the best level;
// empty levels carry price 0.
type BookUpdate struct {
	Instrument Instrument       `json:"instrument"`
	Sequence   uint64           `json:"sequence"`
	AskPrices  [BookDepth]int64 `json:"ask_prices"`
	AskVolumes [BookDepth]int64 `json:"ask_volumes"`
	BidPrices  [BookDepth]int64 `json:"bid_prices"`
	BidVolumes [BookDepth]int64 `json:"bid_volumes"`
}

// BestBid returns the top bid price, 0 when the side is empty.
func (b *BookUpdate) BestBid() int64 { return b.BidPrices[0] }

// BestAsk returns the top ask price, 0 when the side is empty.
func (b *BookUpdate) BestAsk() int64 { return b.AskPrices[0] }

// Mid returns the midpoint of the top of book, or 0 if either side is empty.
func (b *BookUpdate) Mid() int64 {
	if b.BidPrices[0] == 0 || b.AskPrices[0] == 0 {
		return 0
	}
	return (b.BidPrices[0] + b.AskPrices[0]) / 2
}

// TradeTicks aggregates trades that happened since the previous tick message.
type TradeTicks struct {
	Instrument Instrument       `json:"instrument"`
	Sequence   uint64           `json:"sequence"`
	AskPrices  [BookDepth]int64 `json:"ask_prices"`
	AskVolumes [BookDepth]int64 `json:"ask_volumes"`
	BidPrices  [BookDepth]int64 `json:"bid_prices"`
	BidVolumes [BookDepth]int64 `json:"bid_volumes"`
}
