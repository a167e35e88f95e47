package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"limitbook/orderbook"
	"limitbook/wire"
)

func newOrderMsg(id uint64, side uint8, price, qty int64) *wire.NewOrderMessage {
	return &wire.NewOrderMessage{OrderID: id, Price: price, Quantity: qty, Side: side}
}

func drainTrades(t *testing.T, e *Engine, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-e.Trades():
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for trade %d/%d", i+1, n)
		}
	}
}

func TestSyncHeapCrossesImmediately(t *testing.T) {
	e := New(Config{Threading: Sync, Memory: Heap})
	e.Start()
	defer e.Stop()

	require.NoError(t, e.SubmitNewOrder(newOrderMsg(1, 1, 150, 100))) // sell
	require.NoError(t, e.SubmitNewOrder(newOrderMsg(2, 0, 150, 100))) // buy, crosses

	drainTrades(t, e, 1)
	require.Equal(t, uint64(2), e.EngineCount())
}

func TestQueuedPoolCrossesAfterHandoff(t *testing.T) {
	e := New(Config{Threading: Queued, Memory: Pool, PoolCapacity: 4, HandoffCapacity: 8})
	e.Start()
	defer e.Stop()

	require.NoError(t, e.SubmitNewOrder(newOrderMsg(1, 1, 150, 100)))
	require.NoError(t, e.SubmitNewOrder(newOrderMsg(2, 0, 150, 100)))

	drainTrades(t, e, 1)

	infos := e.OrderBookLevelInfos()
	require.Empty(t, infos.Bids)
	require.Empty(t, infos.Asks)
}

func TestCancelDispatchesInBothModes(t *testing.T) {
	for _, threading := range []Threading{Sync, Queued} {
		e := New(Config{Threading: threading, Memory: Heap, HandoffCapacity: 8})
		e.Start()

		require.NoError(t, e.SubmitNewOrder(newOrderMsg(1, 0, 150, 100)))
		require.NoError(t, e.SubmitCancel(&wire.CancelOrderMessage{OrderID: 1}))

		require.Eventually(t, func() bool {
			infos := e.OrderBookLevelInfos()
			return len(infos.Bids) == 0
		}, time.Second, time.Millisecond)

		e.Stop()
	}
}

func TestPoolExhaustionStopsTheEngine(t *testing.T) {
	e := New(Config{Threading: Sync, Memory: Pool, PoolCapacity: 1})
	e.Start()
	defer e.Stop()

	require.NoError(t, e.SubmitNewOrder(newOrderMsg(1, 0, 150, 100)))
	err := e.SubmitNewOrder(newOrderMsg(2, 0, 151, 100))
	require.ErrorIs(t, err, ErrPoolExhausted)

	err = e.SubmitCancel(&wire.CancelOrderMessage{OrderID: 1})
	require.ErrorIs(t, err, ErrEngineStopped)
}

func TestQueuedFatalPoolExhaustionStopsConsumerAndClosesFatal(t *testing.T) {
	e := New(Config{Threading: Queued, Memory: Pool, PoolCapacity: 1, HandoffCapacity: 8})
	e.Start()
	defer e.Stop()

	require.NoError(t, e.SubmitNewOrder(newOrderMsg(1, 0, 150, 100)))
	require.NoError(t, e.SubmitNewOrder(newOrderMsg(2, 0, 151, 100))) // dispatching this exhausts the pool

	select {
	case <-e.Fatal():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Fatal to close")
	}

	require.Equal(t, uint64(1), e.EngineCount(), "the message that exhausted the pool must not be counted as processed")
	require.ErrorIs(t, e.SubmitCancel(&wire.CancelOrderMessage{OrderID: 1}), ErrEngineStopped,
		"submits after fatal pool exhaustion must be refused")
}

func TestSnapshotCallbackFiresOnCadence(t *testing.T) {
	var snapshots []orderbook.OrderBookLevelInfos
	e := New(Config{
		Threading:     Sync,
		Memory:        Heap,
		SnapshotEvery: 2,
		OnSnapshot: func(infos orderbook.OrderBookLevelInfos) {
			snapshots = append(snapshots, infos)
		},
	})
	e.Start()
	defer e.Stop()

	require.NoError(t, e.SubmitNewOrder(newOrderMsg(1, 1, 150, 100)))
	require.Empty(t, snapshots, "cadence is 2, should not fire after 1 processed message")

	require.NoError(t, e.SubmitNewOrder(newOrderMsg(2, 0, 150, 100)))
	drainTrades(t, e, 1)
	require.Len(t, snapshots, 1)
}

func TestStopRefusesLaterQueuedSubmitsAndIsIdempotent(t *testing.T) {
	e := New(Config{Threading: Queued, Memory: Heap, HandoffCapacity: 2})
	e.Start()

	require.NoError(t, e.SubmitNewOrder(newOrderMsg(1, 0, 150, 100)))
	e.Stop()
	require.NotPanics(t, func() { e.Stop() })

	err := e.SubmitNewOrder(newOrderMsg(2, 0, 150, 100))
	require.ErrorIs(t, err, ErrEngineStopped)
}
