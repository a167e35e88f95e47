// Package domain defines the value types shared by the order book, the
// matching engine, and the ingress decoder: orders, trades, and their
// enums.
package domain

import "container/list"

// Side is which side of the book an order rests on.
type Side uint8

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideSell {
		return "sell"
	}
	return "buy"
}

// OrderType is the order's time-in-force / execution behavior.
type OrderType uint8

const (
	GoodTillCancel OrderType = iota
	FillAndKill
	FillOrKill
	Market
	GoodForDay
)

func (t OrderType) String() string {
	switch t {
	case GoodTillCancel:
		return "GTC"
	case FillAndKill:
		return "FAK"
	case FillOrKill:
		return "FOK"
	case Market:
		return "Market"
	case GoodForDay:
		return "GoodForDay"
	default:
		return "unknown"
	}
}

// Supported reports whether the order book has fully specified match
// behavior for this type. Market and GoodForDay are recognized wire
// values with no defined behavior here; the book rejects rather than
// guesses at them.
func (t OrderType) Supported() bool {
	return t == GoodTillCancel || t == FillAndKill || t == FillOrKill
}

// Order is a single resting or in-flight limit order. It is owned
// exclusively by the FIFO queue it sits in; the book's id index holds
// only a non-owning reference plus the queue position needed for O(1)
// cancellation.
//
// Invariant: 0 <= RemainingQty <= InitialQty.
type Order struct {
	ID           uint64
	Side         Side
	Type         OrderType
	Price        int64
	InitialQty   int64
	RemainingQty int64

	// PoolIdx is the order's slot index in the engine's pool.FixedPool,
	// or -1 if the order was heap-allocated. The order book never reads
	// this field; it exists so an engine's ReleaseFunc closure can map a
	// released order back to the slot it must return.
	PoolIdx int32

	// elem is the order's position within its price level's FIFO list.
	// Set by the order book on insertion; a stable handle that survives
	// unrelated insertions/removals in the same list.
	elem *list.Element
}

// NewOrder constructs a heap-allocated order with RemainingQty ==
// InitialQty and PoolIdx == -1.
func NewOrder(id uint64, side Side, typ OrderType, price, qty int64) *Order {
	return &Order{
		ID:           id,
		Side:         side,
		Type:         typ,
		Price:        price,
		InitialQty:   qty,
		RemainingQty: qty,
		PoolIdx:      -1,
	}
}

// Reset reinitializes an order in place, for reuse from a pool. poolIdx
// should be the slot's own index so a later release can find its way
// back; callers not using a pool pass -1.
func (o *Order) Reset(id uint64, side Side, typ OrderType, price, qty int64, poolIdx int32) {
	o.ID = id
	o.Side = side
	o.Type = typ
	o.Price = price
	o.InitialQty = qty
	o.RemainingQty = qty
	o.PoolIdx = poolIdx
	o.elem = nil
}

// IsFilled reports whether the order has no quantity left to fill.
func (o *Order) IsFilled() bool {
	return o.RemainingQty == 0
}

// Fill reduces RemainingQty by qty. qty must not exceed RemainingQty.
func (o *Order) Fill(qty int64) {
	o.RemainingQty -= qty
}

// Elem returns the order's stable position handle within its price
// level's FIFO queue, or nil if the order isn't currently resting.
func (o *Order) Elem() *list.Element {
	return o.elem
}

// SetElem records the order's position handle. Called only by the
// order book on insertion/removal.
func (o *Order) SetElem(e *list.Element) {
	o.elem = e
}
