package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg           *prom.Registry
	stageDuration *prom.HistogramVec
	runDuration   prom.Histogram
	stageResults  *prom.CounterVec
	runOutcome    *prom.CounterVec
	exportCache   *prom.CounterVec
	pdfPages      prom.Gauge
}

// NewPrometheusRecorder constructs and registers the tdrdiff metrics on reg,
// or on a fresh registry when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	// latexmk runs take minutes; the default buckets stop at 10s.
	buckets := prom.ExponentialBuckets(0.1, 2.5, 10)
	pr := &PrometheusRecorder{
		reg: reg,
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "tdrdiff",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual workflow stages",
			Buckets:   buckets,
		}, []string{"stage"}),
		runDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "tdrdiff",
			Name:      "run_duration_seconds",
			Help:      "Total duration of a diff run",
			Buckets:   buckets,
		}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "tdrdiff",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		runOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "tdrdiff",
			Name:      "run_outcomes_total",
			Help:      "Diff runs by final status",
		}, []string{"outcome"}),
		exportCache: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "tdrdiff",
			Name:      "export_cache_lookups_total",
			Help:      "Export cache lookups by result",
		}, []string{"result"}),
		pdfPages: prom.NewGauge(prom.GaugeOpts{
			Namespace: "tdrdiff",
			Name:      "diff_pdf_pages",
			Help:      "Page count of the last delivered diff PDF",
		}),
	}
	reg.MustRegister(pr.stageDuration, pr.runDuration, pr.stageResults, pr.runOutcome, pr.exportCache, pr.pdfPages)
	return pr
}

// Registry returns the registry the metrics are registered on.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.reg }

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncRunOutcome(outcome RunOutcomeLabel) {
	if p == nil || p.runOutcome == nil {
		return
	}
	p.runOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncExportCache(hit bool) {
	if p == nil || p.exportCache == nil {
		return
	}
	res := "miss"
	if hit {
		res = "hit"
	}
	p.exportCache.WithLabelValues(res).Inc()
}

func (p *PrometheusRecorder) SetPDFPages(n int) {
	if p == nil || p.pdfPages == nil {
		return
	}
	p.pdfPages.Set(float64(n))
}

// WriteTextfile writes every registered metric to path in the Prometheus
// text exposition format. The file is replaced atomically.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prom.WriteToTextfile(path, p.reg); err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}
	return nil
}
