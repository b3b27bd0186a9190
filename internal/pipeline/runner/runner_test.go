package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/prometheus"
)

func newRunner(concurrency int) *Runner {
	return New("test", concurrency, 16, logging.NewNopLogger(), prometheus.NewNop())
}

func TestRun_CountsOutcomes(t *testing.T) {
	r := newRunner(3)
	report := r.Run(context.Background(), []string{"a", "b", "c", "d"}, func(_ context.Context, key string) error {
		if key == "b" || key == "d" {
			return fmt.Errorf("broken %s", key)
		}
		return nil
	})

	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 2, report.Succeeded)
	require.Len(t, report.Failed, 2)
	// failures sorted by key for deterministic re-runs
	assert.Equal(t, "b", report.Failed[0].Key)
	assert.Equal(t, "d", report.Failed[1].Key)
	assert.False(t, report.Ok())
}

func TestRun_BoundsConcurrency(t *testing.T) {
	r := newRunner(2)
	var active, peak int32
	var mu sync.Mutex

	keys := make([]string, 20)
	for i := range keys {
		keys[i] = fmt.Sprintf("k%02d", i)
	}

	report := r.Run(context.Background(), keys, func(_ context.Context, _ string) error {
		n := atomic.AddInt32(&active, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		defer atomic.AddInt32(&active, -1)
		return nil
	})

	assert.Equal(t, 20, report.Succeeded)
	assert.LessOrEqual(t, peak, int32(2))
}

func TestRun_MaxCapsConcurrency(t *testing.T) {
	r := New("test", 50, 4, logging.NewNopLogger(), prometheus.NewNop())
	assert.Equal(t, 4, r.concurrency)
}

func TestWriteJSONAtomic_Deterministic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "doc.json")
	v := map[string]interface{}{"b": 1, "a": []string{"x"}}

	require.NoError(t, WriteJSONAtomic(path, v))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, WriteJSONAtomic(path, v))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, byte('\n'), first[len(first)-1])

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReadJSON_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, WriteJSONAtomic(path, map[string]string{"humId": "hum0001"}))

	var out map[string]string
	require.NoError(t, ReadJSON(path, &out))
	assert.Equal(t, "hum0001", out["humId"])
}
