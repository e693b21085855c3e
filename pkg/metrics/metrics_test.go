package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordJob(t *testing.T) {
	r := NewRecorder()

	r.RecordJob("echo", OutcomeSuccess, 20*time.Millisecond)
	r.RecordJob("echo", OutcomeSuccess, 30*time.Millisecond)
	r.RecordJob("exec", OutcomeUnavailable, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.jobsTotal.WithLabelValues("echo", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobsTotal.WithLabelValues("exec", OutcomeUnavailable)))
	assert.Equal(t, 1, testutil.CollectAndCount(r.jobDuration))
}

func TestRecordProbe(t *testing.T) {
	r := NewRecorder()

	r.RecordProbe(ProbeGPU, time.Millisecond, true)
	r.RecordProbe(ProbeGPU, time.Millisecond, false)
	r.RecordProbe(ProbeCPU, time.Millisecond, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.probeFailures.WithLabelValues(ProbeGPU)))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.probeFailures.WithLabelValues(ProbeCPU)))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RecordJob("echo", OutcomeFailed, time.Second)
		r.RecordProbe(ProbeLocation, time.Second, true)
		r.RecordPlacement("output")
	})
}

func TestHandlerServesMetrics(t *testing.T) {
	r := NewRecorder()
	r.RecordPlacement("output")

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `worker_metadata_placements_total{placement="output"} 1`)
}
