// Package rca turns an analysis payload into a structured root cause
// analysis report.
//
// Analyzer serializes the payload, trims it to the model's token budget and
// asks an llm.Provider for a bare JSON report. Whatever the model returns is
// run through ParseReport, which repairs the JSON, normalizes key names and
// coerces the result into the fixed Report shape. Failures are reported as a
// Result with Status "error"; Analyze never returns a Go error.
package rca
