package metrics

import "time"

// ResultLabel enumerates step outcome categories for counters.
type ResultLabel string

const (
	ResultOK          ResultLabel = "ok"
	ResultRecoverable ResultLabel = "recoverable"
	ResultFatal       ResultLabel = "fatal"
	ResultSkipped     ResultLabel = "skipped"
)

// RunOutcomeLabel enumerates final run states.
type RunOutcomeLabel string

const (
	RunDelivered RunOutcomeLabel = "delivered" // PDF copied to its destination
	RunNoPDF     RunOutcomeLabel = "no_pdf"    // finished, but nothing to deliver
	RunFailed    RunOutcomeLabel = "failed"    // stopped by a fatal error
	RunCanceled  RunOutcomeLabel = "canceled"
)

// Recorder defines observability hooks for a diff run.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveRunDuration(d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncRunOutcome(outcome RunOutcomeLabel)
	IncExportCache(hit bool)
	SetPDFPages(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveRunDuration(time.Duration)           {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) IncRunOutcome(RunOutcomeLabel)              {}
func (NoopRecorder) IncExportCache(bool)                        {}
func (NoopRecorder) SetPDFPages(int)                            {}
