package telemetry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeCounters struct {
	ingress atomic.Uint64
	engine  atomic.Uint64
}

func (f *fakeCounters) IngressCount() uint64 { return f.ingress.Load() }
func (f *fakeCounters) EngineCount() uint64  { return f.engine.Load() }

func TestPublisherWritesDeltasAndTotals(t *testing.T) {
	counters := &fakeCounters{}
	path := filepath.Join(t.TempDir(), "metrics.json")
	p := New(counters, path, "", nil)
	p.Start()
	defer p.Stop()

	counters.ingress.Store(10)
	counters.engine.Store(8)

	var doc Document
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		if err != nil {
			return false
		}
		if json.Unmarshal(data, &doc) != nil {
			return false
		}
		return doc.TotalNetwork == 10
	}, 3*time.Second, 20*time.Millisecond)

	require.Equal(t, uint64(10), doc.NetworkOps, "first sample's delta is against a zero baseline")
	require.Equal(t, uint64(8), doc.EngineOps)
	require.Equal(t, uint64(10), doc.TotalNetwork)
	require.Equal(t, uint64(8), doc.TotalEngine)
}

func TestPublisherStopJoinsCleanly(t *testing.T) {
	counters := &fakeCounters{}
	path := filepath.Join(t.TempDir(), "metrics.json")
	p := New(counters, path, "", nil)
	p.Start()
	require.NotPanics(t, func() { p.Stop() })
}
