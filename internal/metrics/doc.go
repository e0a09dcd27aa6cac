// Package metrics records how a diff run went: stage durations, step
// outcomes and export cache hits.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so nothing needs a nil check. The CLI swaps in a
// PrometheusRecorder when --metrics-file is set and writes the registry in
// the Prometheus text format once the run finishes, for node_exporter's
// textfile collector or a CI artifact.
package metrics
