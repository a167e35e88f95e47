// Command engine runs the single-symbol matching engine: engine
// <mode> <threading> <memory>, where mode selects live TCP ingress or
// a synthetic batch-generated test feed, threading selects sync vs
// queued handoff to the book, and memory selects pool vs heap order
// allocation.
package main

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"limitbook/matching"
	"limitbook/orderbook"
	"limitbook/snapshot"
	"limitbook/telemetry"
	"limitbook/wire"
)

const defaultPort = 8080

// errEngineFatal is returned by runLive/runTest when the engine stopped
// itself (pool exhaustion) rather than being shut down by a signal or
// test duration elapsing. main exits non-zero on it.
var errEngineFatal = errors.New("engine: stopped itself on fatal pool exhaustion")

type options struct {
	mode      string
	threading string
	memory    string

	port            int
	poolCapacity    int
	handoffCapacity int
	snapshotEvery   uint64
	snapshotPath    string
	metricsPath     string
	metricsAddr     string
	logPath         string

	testDuration time.Duration
}

func main() {
	opts := &options{}

	root := &cobra.Command{
		Use:   "engine <mode> <threading> <memory>",
		Short: "Single-symbol limit order matching engine",
		Long: `Runs the matching engine in one of two modes:

  live  - bind a TCP port and accept NewOrder/CancelOrder frames indefinitely
  test  - feed a synthetic batch of orders directly, then report and exit

threading selects queue (handoff ring + dedicated matching goroutine)
or sync (direct calls serialized by a mutex). memory selects mempool
(fixed-capacity lock-free pool) or os (plain heap allocation).`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.mode, opts.threading, opts.memory = args[0], args[1], args[2]
			if _, err := parseThreading(opts.threading); err != nil {
				return err
			}
			if _, err := parseMemory(opts.memory); err != nil {
				return err
			}
			if opts.mode != "live" && opts.mode != "test" {
				return fmt.Errorf("invalid mode %q: must be live or test", opts.mode)
			}
			// Arguments are valid: later errors are runtime failures, not
			// misuse, so cobra prints no usage for them.
			cmd.SilenceUsage = true
			return run(opts)
		},
	}

	flags := root.Flags()
	flags.IntVar(&opts.port, "port", defaultPort, "TCP port to bind in live mode")
	flags.IntVar(&opts.poolCapacity, "pool-capacity", 1<<20, "order pool capacity in mempool mode")
	flags.IntVar(&opts.handoffCapacity, "handoff-capacity", 65000, "handoff ring capacity in queue mode")
	flags.Uint64Var(&opts.snapshotEvery, "snapshot-every", 10000, "write a book snapshot every N processed messages (0 disables)")
	flags.StringVar(&opts.snapshotPath, "snapshot-path", "", "snapshot output path (default: ./book_state.json)")
	flags.StringVar(&opts.metricsPath, "metrics-path", "", "metrics output path (default: ./metrics.json)")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "optional Prometheus /metrics debug listen address")
	flags.StringVar(&opts.logPath, "log-path", "", "log file path (default: stderr only)")
	flags.DurationVar(&opts.testDuration, "test-duration", 5*time.Second, "synthetic feed duration in test mode")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(opts *options) error {
	threading, err := parseThreading(opts.threading)
	if err != nil {
		return err
	}
	memory, err := parseMemory(opts.memory)
	if err != nil {
		return err
	}
	if opts.mode != "live" && opts.mode != "test" {
		return fmt.Errorf("invalid mode %q: must be live or test", opts.mode)
	}

	logger := buildLogger(opts.logPath)
	defer logger.Sync()

	snapshotPath := opts.snapshotPath
	if snapshotPath == "" {
		snapshotPath = snapshot.DefaultPath(".")
	}
	metricsPath := opts.metricsPath
	if metricsPath == "" {
		metricsPath = filepath.Join(".", "metrics.json")
	}
	snapWriter := snapshot.New(snapshotPath, logger)

	eng := matching.New(matching.Config{
		Threading:       threading,
		Memory:          memory,
		PoolCapacity:    opts.poolCapacity,
		HandoffCapacity: opts.handoffCapacity,
		SnapshotEvery:   opts.snapshotEvery,
		OnSnapshot: func(infos orderbook.OrderBookLevelInfos) {
			if err := snapWriter.Write(infos); err != nil {
				logger.Error("snapshot write failed", zap.Error(err))
			}
		},
		Logger: logger,
	})
	eng.Start()

	tradeDrain := make(chan struct{})
	var tradesSeen atomic.Uint64
	go func() {
		defer close(tradeDrain)
		for range eng.Trades() {
			tradesSeen.Add(1)
		}
	}()

	publisher := telemetry.New(eng, metricsPath, opts.metricsAddr, logger)
	publisher.Start()

	if opts.mode == "live" {
		err = runLive(eng, opts.port, logger)
	} else {
		err = runTest(eng, opts.testDuration, logger)
	}

	publisher.Stop()
	eng.Stop()
	<-tradeDrain
	logger.Info("engine stopped",
		zap.Uint64("ingress_count", eng.IngressCount()),
		zap.Uint64("engine_count", eng.EngineCount()),
		zap.Uint64("trades_seen", tradesSeen.Load()))
	return err
}

func parseThreading(s string) (matching.Threading, error) {
	switch s {
	case "queue":
		return matching.Queued, nil
	case "sync":
		return matching.Sync, nil
	default:
		return 0, fmt.Errorf("invalid threading %q: must be queue or sync", s)
	}
}

func parseMemory(s string) (matching.Memory, error) {
	switch s {
	case "mempool":
		return matching.Pool, nil
	case "os":
		return matching.Heap, nil
	default:
		return 0, fmt.Errorf("invalid memory %q: must be mempool or os", s)
	}
}

func buildLogger(logPath string) *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.Lock(os.Stderr), zap.InfoLevel),
	}
	if logPath != "" {
		rotator := &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(rotator), zap.InfoLevel))
	}
	return zap.New(zapcore.NewTee(cores...))
}

// runLive binds port, accepts connections indefinitely (one worker
// goroutine per connection), and blocks until SIGINT/SIGTERM or the
// engine stops itself on fatal pool exhaustion. In the latter case it
// tears the listener down the same way a signal would and reports
// errEngineFatal so the process exits non-zero instead of idling
// behind a book that has stopped accepting work.
func runLive(eng *matching.Engine, port int, logger *zap.Logger) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	logger.Info("listening", zap.Int("port", port))

	var workers sync.WaitGroup
	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			workers.Add(1)
			go func() {
				defer workers.Done()
				serveConn(conn, eng, logger)
			}()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var fatal bool
	select {
	case <-sigCh:
	case <-eng.Fatal():
		fatal = true
		logger.Error("engine stopped itself, shutting down listener")
	}

	ln.Close()
	<-acceptDone
	workers.Wait()
	if fatal {
		return errEngineFatal
	}
	return nil
}

func serveConn(conn net.Conn, eng *matching.Engine, logger *zap.Logger) {
	defer conn.Close()
	connID := uuid.New().String()
	logger = logger.With(zap.String("conn_id", connID), zap.String("remote", conn.RemoteAddr().String()))
	logger.Info("client connected")

	dec := wire.NewDecoder(conn)
	for {
		msg, err := dec.Next()
		if err != nil {
			logger.Debug("connection closed", zap.Error(err))
			return
		}
		switch {
		case msg.NewOrder != nil:
			if err := eng.SubmitNewOrder(msg.NewOrder); err != nil {
				logger.Warn("order rejected", zap.Error(err))
			}
		case msg.CancelOrder != nil:
			if err := eng.SubmitCancel(msg.CancelOrder); err != nil {
				logger.Warn("cancel rejected", zap.Error(err))
			}
		}
	}
}

// runTest feeds synthetic crossing orders directly to the engine from
// NumCPU-2 producer goroutines for duration, folding in the teacher's
// cmd/benchmark load-shape. Each order is built inside the producer
// loop as it is submitted; no batch is generated ahead of time, so
// order construction is part of the measured run. It reports errEngineFatal if
// the engine stopped itself on pool exhaustion before duration elapsed.
func runTest(eng *matching.Engine, duration time.Duration, logger *zap.Logger) error {
	var ordersSent atomic.Uint64

	numWorkers := runtime.NumCPU() - 2
	if numWorkers < 1 {
		numWorkers = 1
	}
	logger.Info("starting synthetic feed", zap.Int("workers", numWorkers), zap.Duration("duration", duration))

	stop := make(chan struct{})
	var producers sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		producers.Add(1)
		go func(worker int) {
			defer producers.Done()
			rng := rand.New(rand.NewSource(int64(worker) + 1))
			var seq uint64
			for {
				select {
				case <-stop:
					return
				default:
				}
				side := uint8(seq % 2)
				price := int64(150 + rng.Intn(20))
				orderID := uint64(worker)<<48 | seq
				if err := eng.SubmitNewOrder(&wire.NewOrderMessage{
					OrderID:  orderID,
					Price:    price,
					Quantity: 1,
					Side:     side,
				}); err != nil {
					return
				}
				ordersSent.Add(1)
				seq++
			}
		}(w)
	}

	var fatal bool
	select {
	case <-time.After(duration):
	case <-eng.Fatal():
		fatal = true
		logger.Error("engine stopped itself, ending synthetic feed early")
	}
	close(stop)
	producers.Wait()

	logger.Info("synthetic feed complete",
		zap.Uint64("orders_sent", ordersSent.Load()),
		zap.Uint64("ingress_count", eng.IngressCount()),
		zap.Uint64("engine_count", eng.EngineCount()))
	if fatal {
		return errEngineFatal
	}
	return nil
}
