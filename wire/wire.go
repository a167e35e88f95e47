// Package wire decodes the packed little-endian frame formats clients
// stream over TCP: fixed-size NewOrder and CancelOrder records, with no
// padding between fields (see original_source/Protocol.h).
package wire

import "github.com/pkg/errors"

// MessageType is the wire record discriminator (offset 0, 1 byte).
type MessageType uint8

const (
	TypeNewOrder    MessageType = 1
	TypeCancelOrder MessageType = 2
)

const (
	// NewOrderSize is the exact byte length of a NewOrder record:
	// type(1) + timestamp(8) + order_id(8) + price(4) + quantity(4) +
	// side(1) + symbol(8).
	NewOrderSize = 34
	// CancelOrderSize is the exact byte length of a CancelOrder record:
	// type(1) + order_id(8).
	CancelOrderSize = 9

	symbolLen = 8
)

// NewOrderMessage is a decoded NewOrder wire record.
type NewOrderMessage struct {
	Timestamp uint64
	OrderID   uint64
	Price     int64 // decoded from an unsigned 32-bit wire field
	Quantity  int64 // decoded from an unsigned 32-bit wire field
	Side      uint8 // 0 = Buy, 1 = Sell, per the wire schema
	Symbol    [symbolLen]byte
}

// CancelOrderMessage is a decoded CancelOrder wire record.
type CancelOrderMessage struct {
	OrderID uint64
}

// Message is either a NewOrderMessage or a CancelOrderMessage. Exactly
// one of the two pointer fields is non-nil.
type Message struct {
	NewOrder    *NewOrderMessage
	CancelOrder *CancelOrderMessage
}

// ErrUnknownType is returned when a record's type byte names neither
// NewOrder nor CancelOrder. Per spec, this aborts the connection.
var ErrUnknownType = errors.New("wire: unknown record type")
