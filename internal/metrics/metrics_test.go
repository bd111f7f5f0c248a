package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_Counts(t *testing.T) {
	d := NewDispatch()

	done := d.CallStarted("openai")
	assert.Equal(t, 1.0, testutil.ToFloat64(d.inFlight))
	done(nil)
	d.CallStarted("openai")(errors.New("boom"))
	d.Retry("openai")
	d.CacheHit()
	d.Record("complex", true)

	assert.Equal(t, 0.0, testutil.ToFloat64(d.inFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.calls.WithLabelValues("openai", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.calls.WithLabelValues("openai", OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.retries.WithLabelValues("openai")))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.records.WithLabelValues("complex", "failed")))
}

func TestDispatch_NilIsNoop(t *testing.T) {
	var d *Dispatch
	d.CallStarted("x")(nil)
	d.Retry("x")
	d.CacheHit()
	d.Record("simple", false)
	assert.Nil(t, d.Registry())
	assert.NoError(t, d.WriteTextfile(filepath.Join(t.TempDir(), "m.prom")))
}

func TestDispatch_WriteTextfile(t *testing.T) {
	d := NewDispatch()
	d.CacheHit()

	path := filepath.Join(t.TempDir(), "creatorcheck.prom")
	require.NoError(t, d.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "creatorcheck_extractor_cache_hits_total 1"))
}
