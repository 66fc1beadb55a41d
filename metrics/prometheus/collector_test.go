package prometheus

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/knnlm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ knnlm.MetricsCollector = (*Collector)(nil)

func TestCollector(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	c, err := NewCollector(reg, "knnlm")
	require.NoError(t, err)

	c.RecordSearch(8, 4, time.Millisecond, nil)
	c.RecordSearch(8, 4, time.Millisecond, errors.New("boom"))
	c.RecordScore(2, 10, time.Millisecond, nil)
	c.RecordSweepPoint(2.5, 8, -1.25, time.Second)

	assert.InDelta(t, 8, testutil.ToFloat64(c.queries), 1e-9)
	assert.InDelta(t, 10, testutil.ToFloat64(c.tokens), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(c.sweepPoints), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(c.operations.WithLabelValues("search", "error")), 1e-9)
	assert.InDelta(t, -1.25, testutil.ToFloat64(c.sweepMean.WithLabelValues("2.5")), 1e-9)

	expected := `
# HELP knnlm_sweep_points_total Total persisted sweep temperatures
# TYPE knnlm_sweep_points_total counter
knnlm_sweep_points_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "knnlm_sweep_points_total"))
}

func TestCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollector(reg, "knnlm")
	require.NoError(t, err)

	_, err = NewCollector(reg, "knnlm")
	assert.Error(t, err)
}
