package domain

// TradeInfo identifies one counterparty's side of a trade: which order,
// at what price (that order's own stored limit price), for how much.
type TradeInfo struct {
	OrderID  uint64
	Price    int64
	Quantity int64
}

// Trade is a single match between a resting bid and a resting/incoming
// ask (or vice versa). Each leg records its own order's stored price,
// not a single shared execution price: a marketable buy at 155 hitting
// a resting ask at 150 produces Bid.Price == 155, Ask.Price == 150.
type Trade struct {
	Bid TradeInfo
	Ask TradeInfo
}

// NewTrade builds a trade from the two filled orders and the quantity
// exchanged between them.
func NewTrade(bid, ask *Order, quantity int64) Trade {
	return Trade{
		Bid: TradeInfo{OrderID: bid.ID, Price: bid.Price, Quantity: quantity},
		Ask: TradeInfo{OrderID: ask.ID, Price: ask.Price, Quantity: quantity},
	}
}
