// Package orderbook implements the price-time-priority limit order
// book: two price-ordered maps (bids descending, asks ascending) of
// FIFO queues, an id index for O(1) cancellation, and the incremental
// match loop that keeps the book crossing-free after every mutation.
//
// Price ordering is backed directly by github.com/emirpasic/gods/v2's
// red-black tree, the same library the teacher uses to order its price
// buckets, giving O(log P) insert/remove on the number of distinct
// price levels — the bound spec.md's data model calls for.
package orderbook

import (
	"container/list"

	rbt "github.com/emirpasic/gods/v2/trees/redblacktree"

	"limitbook/domain"
)

// ReleaseFunc is invoked whenever an order permanently leaves the book
// (fully filled, or cancelled). Pool-backed engines use it to return
// the order's slot; heap-backed engines pass nil.
type ReleaseFunc func(*domain.Order)

type indexEntry struct {
	order *domain.Order
	level *priceLevel
}

// OrderBook is not safe for concurrent use. The matching engine
// serializes every access with a mutex in both modes (in queued mode
// only the matching goroutine mutates it, while depth projections may
// come from other goroutines) — the book itself holds no lock.
type OrderBook struct {
	bids    *rbt.Tree[int64, *priceLevel] // descending: best bid first
	asks    *rbt.Tree[int64, *priceLevel] // ascending: best ask first
	index   map[uint64]indexEntry
	release ReleaseFunc
}

// New creates an empty order book. release may be nil.
func New(release ReleaseFunc) *OrderBook {
	return &OrderBook{
		bids:    rbt.NewWith[int64, *priceLevel](descending),
		asks:    rbt.NewWith[int64, *priceLevel](ascending),
		index:   make(map[uint64]indexEntry),
		release: release,
	}
}

func descending(a, b int64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}

func ascending(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Size reports the number of currently resting orders.
func (ob *OrderBook) Size() int { return len(ob.index) }

// Lookup returns the resting order for id, if any.
func (ob *OrderBook) Lookup(id uint64) (*domain.Order, bool) {
	e, ok := ob.index[id]
	if !ok {
		return nil, false
	}
	return e.order, true
}

// BestBid returns the highest resting buy price and whether one exists.
func (ob *OrderBook) BestBid() (int64, bool) {
	n := ob.bids.Left()
	if n == nil {
		return 0, false
	}
	return n.Value.price, true
}

// BestAsk returns the lowest resting sell price and whether one exists.
func (ob *OrderBook) BestAsk() (int64, bool) {
	n := ob.asks.Left()
	if n == nil {
		return 0, false
	}
	return n.Value.price, true
}

// AddOrder inserts order and runs the match loop, returning any trades
// it produces.
//
// Validation errors (non-positive quantity, negative price, an
// unsupported order type) are returned as errors — these are
// client-protocol violations. A duplicate order id, or an unmatchable
// FillAndKill/FillOrKill, is rejected silently: nil trades, nil error,
// no state change (spec.md §7).
//
// Every path that rejects order without resting it releases it first:
// a rejected order never enters the id index, so nothing else will
// ever call release on it, and a pool-backed caller needs its slot
// back regardless of why the order didn't rest.
func (ob *OrderBook) AddOrder(order *domain.Order) ([]domain.Trade, error) {
	if order.InitialQty <= 0 || order.RemainingQty <= 0 {
		ob.reject(order)
		return nil, ErrInvalidQuantity
	}
	if order.Price < 0 {
		ob.reject(order)
		return nil, ErrInvalidPrice
	}
	if !order.Type.Supported() {
		ob.reject(order)
		return nil, ErrUnsupportedOrderType
	}
	if _, exists := ob.index[order.ID]; exists {
		ob.reject(order)
		return nil, nil
	}

	switch order.Type {
	case domain.FillAndKill:
		if !ob.canMatch(order.Side, order.Price) {
			ob.reject(order)
			return nil, nil
		}
	case domain.FillOrKill:
		if !ob.canFillAll(order.Side, order.Price, order.RemainingQty) {
			ob.reject(order)
			return nil, nil
		}
	}

	ob.insert(order)
	trades := ob.match()

	// A FillAndKill that crossed on entry (the canMatch check above) can
	// still come out of match() partially filled, if available
	// opposing liquidity ran out first. Check the order itself rather
	// than the level's front: it names exactly the order AddOrder is
	// responsible for, regardless of where match() left it.
	if order.Type == domain.FillAndKill {
		if _, stillResting := ob.index[order.ID]; stillResting {
			ob.CancelOrder(order.ID)
		}
	}

	return trades, nil
}

// reject releases an order that AddOrder is about to turn away before
// it ever entered the index or a price level.
func (ob *OrderBook) reject(order *domain.Order) {
	if ob.release != nil {
		ob.release(order)
	}
}

func (ob *OrderBook) treeFor(side domain.Side) *rbt.Tree[int64, *priceLevel] {
	if side == domain.SideBuy {
		return ob.bids
	}
	return ob.asks
}

func (ob *OrderBook) insert(order *domain.Order) {
	tree := ob.treeFor(order.Side)
	level, found := tree.Get(order.Price)
	if !found {
		level = newPriceLevel(order.Price)
		tree.Put(order.Price, level)
	}
	elem := level.orders.PushBack(order)
	order.SetElem(elem)
	level.volume += order.RemainingQty
	ob.index[order.ID] = indexEntry{order: order, level: level}
}

// CancelOrder removes id from the book. Unknown ids are a no-op
// (idempotent: Cancel(id); Cancel(id) == Cancel(id)).
func (ob *OrderBook) CancelOrder(id uint64) {
	entry, ok := ob.index[id]
	if !ok {
		return
	}
	delete(ob.index, id)
	ob.removeFromLevel(entry.order, entry.level)
	if ob.release != nil {
		ob.release(entry.order)
	}
}

// removeFromLevel detaches order from its price level's FIFO queue,
// dropping the level entirely if it becomes empty, and clears the
// order's queue-position handle. It does not touch the id index or
// invoke release — callers with different index/release needs (cancel
// vs. a match-loop fill) do that themselves.
func (ob *OrderBook) removeFromLevel(order *domain.Order, level *priceLevel) {
	level.orders.Remove(order.Elem())
	level.volume -= order.RemainingQty
	order.SetElem(nil)
	if level.orders.Len() == 0 {
		ob.treeFor(order.Side).Remove(level.price)
	}
}

// ModifyOrder replaces the resting order id with replacement, which
// must carry the same id. This is defined as Cancel(id) followed by
// Add(replacement): the replaced order loses time priority even if its
// price is unchanged, and a replacement with an unknown id is a no-op
// (spec.md §4.2, §8 "Modify = Cancel+Add").
func (ob *OrderBook) ModifyOrder(id uint64, replacement *domain.Order) ([]domain.Trade, error) {
	if _, ok := ob.index[id]; !ok {
		return nil, nil
	}
	ob.CancelOrder(id)
	return ob.AddOrder(replacement)
}

// GetOrderInfos projects the book into best-first depth-of-book. It
// never blocks and never mutates, so it is safe to call from the same
// goroutine that is mutating the book between match-loop invocations.
func (ob *OrderBook) GetOrderInfos() OrderBookLevelInfos {
	var infos OrderBookLevelInfos

	it := ob.bids.Iterator()
	for it.Next() {
		lvl := it.Value()
		infos.Bids = append(infos.Bids, LevelInfo{Price: lvl.price, Quantity: lvl.volume})
	}
	it = ob.asks.Iterator()
	for it.Next() {
		lvl := it.Value()
		infos.Asks = append(infos.Asks, LevelInfo{Price: lvl.price, Quantity: lvl.volume})
	}
	return infos
}

func (ob *OrderBook) canMatch(side domain.Side, price int64) bool {
	if side == domain.SideBuy {
		n := ob.asks.Left()
		return n != nil && price >= n.Value.price
	}
	n := ob.bids.Left()
	return n != nil && price <= n.Value.price
}

// canFillAll sums resting quantity on the opposing side at prices that
// would cross, stopping as soon as the requested quantity is covered.
// Used by FillOrKill's all-or-nothing pre-check (spec.md §9 open
// question #1).
func (ob *OrderBook) canFillAll(side domain.Side, price, qty int64) bool {
	var sum int64
	if side == domain.SideBuy {
		it := ob.asks.Iterator()
		for it.Next() {
			lvl := it.Value()
			if lvl.price > price {
				break
			}
			sum += lvl.volume
			if sum >= qty {
				return true
			}
		}
		return false
	}
	it := ob.bids.Iterator()
	for it.Next() {
		lvl := it.Value()
		if lvl.price < price {
			break
		}
		sum += lvl.volume
		if sum >= qty {
			return true
		}
	}
	return false
}

// match repeatedly crosses the best bid against the best ask until one
// side empties or the top of book no longer crosses, recording a Trade
// per fill. It does not special-case FillAndKill/FillOrKill: both
// behave like any other order here, and it is AddOrder's job to cancel
// a FillAndKill that comes out of match with quantity still left over.
func (ob *OrderBook) match() []domain.Trade {
	var trades []domain.Trade

	for {
		bidNode := ob.bids.Left()
		askNode := ob.asks.Left()
		if bidNode == nil || askNode == nil {
			break
		}
		bidLevel, askLevel := bidNode.Value, askNode.Value
		if bidLevel.price < askLevel.price {
			break
		}

		for bidLevel.orders.Len() > 0 && askLevel.orders.Len() > 0 {
			bElem := bidLevel.orders.Front()
			aElem := askLevel.orders.Front()
			bid := bElem.Value.(*domain.Order)
			ask := aElem.Value.(*domain.Order)

			qty := min(bid.RemainingQty, ask.RemainingQty)
			bid.Fill(qty)
			ask.Fill(qty)
			bidLevel.volume -= qty
			askLevel.volume -= qty
			trades = append(trades, domain.NewTrade(bid, ask, qty))

			if ask.IsFilled() {
				ob.finishFill(ask, askLevel, aElem)
			}
			if bid.IsFilled() {
				ob.finishFill(bid, bidLevel, bElem)
			}
		}

		if bidLevel.orders.Len() == 0 {
			ob.bids.Remove(bidLevel.price)
		}
		if askLevel.orders.Len() == 0 {
			ob.asks.Remove(askLevel.price)
		}
	}

	return trades
}

// finishFill removes a fully-filled order from its level's queue and
// the id index, and releases it. volume was already decremented by the
// caller as part of the fill itself.
func (ob *OrderBook) finishFill(order *domain.Order, level *priceLevel, elem *list.Element) {
	level.orders.Remove(elem)
	order.SetElem(nil)
	delete(ob.index, order.ID)
	if ob.release != nil {
		ob.release(order)
	}
}
