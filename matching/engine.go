// Package matching orchestrates the single-symbol order book: decoded
// wire messages come in through Submit, the book is mutated either
// directly (sync mode) or by a dedicated goroutine draining a handoff
// queue (queued mode), and resulting trades are published on the
// Trades channel (the trade log).
package matching

import (
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"limitbook/domain"
	"limitbook/orderbook"
	"limitbook/pool"
	"limitbook/queue"
	"limitbook/wire"
)

// Threading selects how incoming messages reach the book.
type Threading uint8

const (
	// Sync calls AddOrder/CancelOrder directly from the submitting
	// goroutine, serialized by a mutex guarding the book.
	Sync Threading = iota
	// Queued pushes the message onto a bounded handoff ring; a single
	// matching goroutine is the only one that mutates the book.
	Queued
)

// Memory selects how Order records backing NewOrder submissions are
// allocated.
type Memory uint8

const (
	// Heap allocates a fresh domain.Order per NewOrder, left to the
	// garbage collector on release.
	Heap Memory = iota
	// Pool acquires from a fixed-capacity lock-free free list.
	Pool
)

// Config parameterizes a new Engine. Logger defaults to zap.NewNop()
// if nil.
type Config struct {
	Threading       Threading
	Memory          Memory
	PoolCapacity    int
	HandoffCapacity int

	// SnapshotEvery, if non-zero, invokes OnSnapshot every SnapshotEvery
	// processed messages with the current book projection. Both must be
	// set together, or neither.
	SnapshotEvery uint64
	OnSnapshot    func(orderbook.OrderBookLevelInfos)

	Logger *zap.Logger
}

// Engine is the single-symbol matching engine: one order book, one
// concurrency discipline, one trade log.
type Engine struct {
	threading Threading
	memory    Memory

	book *orderbook.OrderBook
	mu   sync.Mutex // guards book in both modes (see OrderBookLevelInfos)

	slots *pool.FixedPool[domain.Order]

	handoff *queue.Ring[wire.Message]
	trades  chan domain.Trade

	running   atomic.Bool
	done      chan struct{}
	fatal     chan struct{}
	fatalOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup

	ingressCount atomic.Uint64
	engineCount  atomic.Uint64
	seq          atomic.Uint64

	snapshotEvery uint64
	onSnapshot    func(orderbook.OrderBookLevelInfos)

	log *zap.Logger
}

// New constructs an Engine. It does not start any goroutines; call
// Start.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		threading:     cfg.Threading,
		memory:        cfg.Memory,
		done:          make(chan struct{}),
		fatal:         make(chan struct{}),
		trades:        make(chan domain.Trade, 4096),
		snapshotEvery: cfg.SnapshotEvery,
		onSnapshot:    cfg.OnSnapshot,
		log:           logger,
	}
	e.running.Store(true)

	if cfg.Memory == Pool {
		e.slots = pool.New[domain.Order](cfg.PoolCapacity)
	}
	if cfg.Threading == Queued {
		e.handoff = queue.New[wire.Message](cfg.HandoffCapacity)
	}
	e.book = orderbook.New(e.release)
	return e
}

// Trades returns the channel onto which matched trades are published.
// Consumers must keep up; a full channel causes the engine to log and
// drop the trade rather than block the matching path.
func (e *Engine) Trades() <-chan domain.Trade { return e.trades }

// IngressCount is the total number of messages accepted via Submit*.
func (e *Engine) IngressCount() uint64 { return e.ingressCount.Load() }

// EngineCount is the total number of messages the book has processed.
func (e *Engine) EngineCount() uint64 { return e.engineCount.Load() }

// Fatal is closed exactly once, the moment dispatch hits pool
// exhaustion and stops the engine on its own (as opposed to a caller
// calling Stop). Drivers select on it to shut down and exit non-zero
// instead of idling forever behind a book that has stopped accepting
// work.
func (e *Engine) Fatal() <-chan struct{} { return e.fatal }

// OrderBookLevelInfos returns a depth-of-book snapshot. Safe to call
// from any goroutine in either mode: dispatch holds the same mutex
// while mutating the book, so a concurrent projection never observes a
// partially-updated price level, even in Queued mode where the mutex
// otherwise sees no contention (only the matching goroutine mutates).
func (e *Engine) OrderBookLevelInfos() orderbook.OrderBookLevelInfos {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.GetOrderInfos()
}

// Start launches the matching goroutine in Queued mode. It is a no-op
// in Sync mode, where there is no dedicated consumer.
func (e *Engine) Start() {
	if e.threading != Queued {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		for {
			msg, ok := e.handoff.Pop(e.done)
			if !ok {
				return
			}
			e.dispatch(msg)
			if !e.running.Load() {
				// Fatal pool exhaustion: stop draining the handoff
				// ring rather than keep dispatching everything
				// already queued behind the message that tripped it.
				return
			}
		}
	}()
}

// Stop signals shutdown, unblocks any goroutine spin-waiting on the
// handoff queue, and joins the matching goroutine if one was started.
// Callers must ensure every in-flight Submit* call has returned before
// calling Stop in Sync mode, since dispatch there runs on the
// submitter's own goroutine rather than one Stop can join.
//
// Idempotent, and safe to call after the engine has already stopped
// itself on fatal pool exhaustion (running is already false in that
// case, but the handoff ring and trade channel still need tearing
// down) — so teardown runs exactly once regardless of who or what
// flipped running first.
//
// Once joined, Trades is closed: it is safe to range over after Stop
// returns, and doing so drains whatever trades were published but not
// yet consumed.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.running.Store(false)
		close(e.done)
		e.wg.Wait()
		close(e.trades)
	})
}

// SubmitNewOrder admits a decoded NewOrder record. Every wire-sourced
// order is GoodTillCancel: the wire schema (spec.md §6) carries no
// lifetime field, matching original_source/main.cpp, which always
// constructs OrderType::GoodTillCancel off the network; FillAndKill and
// FillOrKill exist in the type system but are only ever reachable
// internally (e.g. via ModifyOrder, or a future richer wire schema).
func (e *Engine) SubmitNewOrder(msg *wire.NewOrderMessage) error {
	return e.submit(wire.Message{NewOrder: msg})
}

// SubmitCancel admits a decoded CancelOrder record.
func (e *Engine) SubmitCancel(msg *wire.CancelOrderMessage) error {
	return e.submit(wire.Message{CancelOrder: msg})
}

func (e *Engine) submit(msg wire.Message) error {
	if !e.running.Load() {
		return ErrEngineStopped
	}
	e.ingressCount.Add(1)

	if e.threading == Sync {
		return e.dispatch(msg)
	}
	if !e.handoff.Push(msg, e.done) {
		return ErrEngineStopped
	}
	return nil
}

// dispatch applies one message to the book and fans out its trades. In
// Sync mode it is called from any submitting goroutine, serialized by
// the book mutex; in Queued mode it is called only from the matching
// goroutine, so the same mutex sees no contention there — it exists
// only to keep a concurrent OrderBookLevelInfos caller from observing
// the book mid-mutation.
func (e *Engine) dispatch(msg wire.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	seq := e.seq.Add(1)

	var trades []domain.Trade
	var err error
	switch {
	case msg.NewOrder != nil:
		var order *domain.Order
		order, err = e.acquireOrder(msg.NewOrder)
		if err != nil {
			e.log.Error("fatal: order pool exhausted, stopping engine", zap.Uint64("seq", seq))
			e.running.Store(false)
			e.fatalOnce.Do(func() { close(e.fatal) })
			return err
		}
		trades, err = e.book.AddOrder(order)
	case msg.CancelOrder != nil:
		e.book.CancelOrder(msg.CancelOrder.OrderID)
	}
	if err != nil {
		e.log.Warn("rejected order", zap.Uint64("seq", seq), zap.Error(err))
		return err
	}

	e.engineCount.Add(1)
	for _, t := range trades {
		select {
		case e.trades <- t:
		default:
			e.log.Warn("trade log full, dropping trade", zap.Uint64("bidOrderId", t.Bid.OrderID), zap.Uint64("askOrderId", t.Ask.OrderID))
		}
	}

	if e.snapshotEvery > 0 && e.onSnapshot != nil {
		if n := e.engineCount.Load(); n%e.snapshotEvery == 0 {
			e.onSnapshot(e.book.GetOrderInfos())
		}
	}
	return nil
}

func (e *Engine) acquireOrder(msg *wire.NewOrderMessage) (*domain.Order, error) {
	side := domain.SideBuy
	if msg.Side == 1 {
		side = domain.SideSell
	}

	if e.memory == Heap {
		return domain.NewOrder(msg.OrderID, side, domain.GoodTillCancel, msg.Price, msg.Quantity), nil
	}

	idx, ok := e.slots.Acquire()
	if !ok {
		return nil, ErrPoolExhausted
	}
	order := e.slots.Get(idx)
	order.Reset(msg.OrderID, side, domain.GoodTillCancel, msg.Price, msg.Quantity, idx)
	return order, nil
}

// release returns a fully-filled or cancelled order's slot to the pool.
// Heap-allocated orders (PoolIdx == -1) are simply dropped for the
// garbage collector.
func (e *Engine) release(order *domain.Order) {
	if e.memory == Pool && order.PoolIdx >= 0 {
		e.slots.Release(order.PoolIdx)
	}
}
