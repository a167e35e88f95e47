package orderbook

import "container/list"

// priceLevel holds every resting order at one price, in strict FIFO
// (time-priority) order, plus the running sum of their remaining
// quantity so depth projection never has to walk the queue.
type priceLevel struct {
	price  int64
	orders *list.List
	volume int64
}

func newPriceLevel(price int64) *priceLevel {
	return &priceLevel{price: price, orders: list.New()}
}

// LevelInfo is one row of depth-of-book: a price and the total
// resting quantity at that price.
type LevelInfo struct {
	Price    int64
	Quantity int64
}

// OrderBookLevelInfos is a point-in-time depth projection, best-first
// on both sides.
type OrderBookLevelInfos struct {
	Bids []LevelInfo
	Asks []LevelInfo
}
