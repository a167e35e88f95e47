package domain

import (
	"container/list"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrderFillAndIsFilled(t *testing.T) {
	o := NewOrder(1, SideBuy, GoodTillCancel, 150, 100)
	require.False(t, o.IsFilled())

	o.Fill(40)
	require.Equal(t, int64(60), o.RemainingQty)
	require.False(t, o.IsFilled())

	o.Fill(60)
	require.True(t, o.IsFilled())
	require.Equal(t, int64(0), o.RemainingQty)
	require.Equal(t, int64(100), o.InitialQty)
}

func TestOrderResetClearsElem(t *testing.T) {
	o := NewOrder(1, SideBuy, GoodTillCancel, 150, 100)
	o.SetElem(list.New().PushBack(o)) // give it a queue position for Reset to clear
	require.NotNil(t, o.Elem())
	o.Reset(2, SideSell, FillAndKill, 200, 50, 7)

	require.Equal(t, uint64(2), o.ID)
	require.Equal(t, SideSell, o.Side)
	require.Equal(t, FillAndKill, o.Type)
	require.Equal(t, int64(200), o.Price)
	require.Equal(t, int64(50), o.InitialQty)
	require.Equal(t, int64(50), o.RemainingQty)
	require.Equal(t, int32(7), o.PoolIdx)
	require.Nil(t, o.Elem())
}

func TestOrderTypeSupported(t *testing.T) {
	require.True(t, GoodTillCancel.Supported())
	require.True(t, FillAndKill.Supported())
	require.True(t, FillOrKill.Supported())
	require.False(t, Market.Supported())
	require.False(t, GoodForDay.Supported())
}

func TestSideString(t *testing.T) {
	require.Equal(t, "buy", SideBuy.String())
	require.Equal(t, "sell", SideSell.String())
}
