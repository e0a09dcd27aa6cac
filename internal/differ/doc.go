// Package differ runs the tdr diff workflow: prepare the clone, resolve both
// revisions, export each through the export cache, run latexdiff and latexmk
// in the selected export directory and deliver the PDF.
//
// Every step runs with an explicit directory; the process working directory
// is never changed. Git failures stop the run. Export, diff and build
// failures are recorded in the Report and the run continues to delivery.
//
// Two runs against the same workspace at the same time are not supported.
package differ
