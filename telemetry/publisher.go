// Package telemetry samples the engine's ingress/engine counters once a
// second, writes their deltas and totals to metrics.json, and mirrors
// the same totals as Prometheus CounterFuncs servable over promhttp.
package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Counters is the minimal surface the publisher needs from the engine.
type Counters interface {
	IngressCount() uint64
	EngineCount() uint64
}

// Document is the full metrics.json payload (spec.md §6).
type Document struct {
	NetworkOps   uint64 `json:"network_ops"`
	EngineOps    uint64 `json:"engine_ops"`
	TotalNetwork uint64 `json:"total_network"`
	TotalEngine  uint64 `json:"total_engine"`
}

// Publisher samples Counters at 1 Hz until Stop is called.
type Publisher struct {
	source Counters
	path   string
	log    *zap.Logger

	registry    *prometheus.Registry
	server      *http.Server
	lastNetwork uint64
	lastEngine  uint64

	stop chan struct{}
	done chan struct{}
}

// New constructs a Publisher writing to path. debugAddr, if non-empty,
// serves /metrics on that address via promhttp; pass "" to disable.
func New(source Counters, path, debugAddr string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := prometheus.NewRegistry()
	p := &Publisher{
		source:   source,
		path:     path,
		log:      logger,
		registry: registry,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "matching_ingress_total",
			Help: "Total messages accepted into the engine.",
		}, func() float64 { return float64(p.source.IngressCount()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "matching_engine_total",
			Help: "Total messages processed by the order book.",
		}, func() float64 { return float64(p.source.EngineCount()) }),
	)

	if debugAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		p.server = &http.Server{Addr: debugAddr, Handler: mux}
	}
	return p
}

// Start launches the 1 Hz sampling loop, and the debug HTTP server if
// one was configured.
func (p *Publisher) Start() {
	if p.server != nil {
		go func() {
			if err := p.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				p.log.Error("telemetry: debug server error", zap.Error(err))
			}
		}()
	}

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				p.sample()
			}
		}
	}()
}

// Stop halts sampling and the debug server, and joins the sampling
// goroutine.
func (p *Publisher) Stop() {
	close(p.stop)
	<-p.done
	if p.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.server.Shutdown(ctx); err != nil {
			p.log.Error("telemetry: debug server shutdown error", zap.Error(err))
		}
	}
}

func (p *Publisher) sample() {
	network := p.source.IngressCount()
	engine := p.source.EngineCount()

	doc := Document{
		NetworkOps:   network - p.lastNetwork,
		EngineOps:    engine - p.lastEngine,
		TotalNetwork: network,
		TotalEngine:  engine,
	}
	p.lastNetwork = network
	p.lastEngine = engine

	data, err := json.Marshal(doc)
	if err != nil {
		p.log.Error("telemetry: marshal failed", zap.Error(err))
		return
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		p.log.Error("telemetry: write temp file failed", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, p.path); err != nil {
		p.log.Error("telemetry: rename failed", zap.Error(err))
	}
}
