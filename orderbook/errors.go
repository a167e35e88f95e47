package orderbook

import "github.com/pkg/errors"

// Validation errors: these are client-protocol violations and are
// returned, not swallowed (spec.md §9 open question #5).
var (
	ErrInvalidQuantity      = errors.New("orderbook: quantity must be positive")
	ErrInvalidPrice         = errors.New("orderbook: price must be non-negative")
	ErrUnsupportedOrderType = errors.New("orderbook: order type has no defined matching behavior")
)
