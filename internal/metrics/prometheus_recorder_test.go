package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveStageDuration("export_base", 150*time.Millisecond)
	pr.ObserveRunDuration(2 * time.Second)
	pr.IncStageResult("build", ResultRecoverable)
	pr.IncRunOutcome(RunDelivered)
	pr.IncExportCache(true)
	pr.IncExportCache(false)
	pr.IncExportCache(false)
	pr.SetPDFPages(42)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, mfs, 6)

	assert.InDelta(t, 1, testutil.ToFloat64(pr.exportCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(pr.exportCache.WithLabelValues("miss")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.stageResults.WithLabelValues("build", "recoverable")), 0)
	assert.InDelta(t, 42, testutil.ToFloat64(pr.pdfPages), 0)
	assert.Same(t, reg, pr.Registry())
}

func TestWriteTextfile(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.IncRunOutcome(RunNoPDF)
	path := filepath.Join(t.TempDir(), "textfile", "tdrdiff.prom")
	require.NoError(t, pr.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `tdrdiff_run_outcomes_total{outcome="no_pdf"} 1`)
	assert.Contains(t, string(data), "# TYPE tdrdiff_run_outcomes_total counter")
}

func TestNilRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	assert.NotPanics(t, func() {
		pr.ObserveStageDuration("x", time.Second)
		pr.IncExportCache(true)
		pr.SetPDFPages(1)
	})
	var r Recorder = NoopRecorder{}
	assert.NotPanics(t, func() { r.IncRunOutcome(RunFailed) })
}
