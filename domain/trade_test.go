package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTradeRecordsOwnLegPrices(t *testing.T) {
	bid := NewOrder(3, SideBuy, GoodTillCancel, 155, 200)
	ask := NewOrder(1, SideSell, GoodTillCancel, 150, 100)

	trade := NewTrade(bid, ask, 100)

	require.Equal(t, uint64(3), trade.Bid.OrderID)
	require.Equal(t, int64(155), trade.Bid.Price)
	require.Equal(t, uint64(1), trade.Ask.OrderID)
	require.Equal(t, int64(150), trade.Ask.Price)
	require.Equal(t, int64(100), trade.Bid.Quantity)
	require.Equal(t, int64(100), trade.Ask.Quantity)
}
