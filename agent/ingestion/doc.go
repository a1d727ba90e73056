/*
Package ingestion reduces raw trace records into representative summaries and
detects AI-specific signals over them.

# Reduction

Reducer collapses interaction traces into fixed time windows (one
SynthesizedInteraction per window), log traces into windows keyed by the most
severe entry, and metric traces into one sample per name when the series moved
more than the configured threshold.

# Signals

Detector reports hallucination candidates (reference mismatches, capability
claims), prompt drift between adjacent prompt template versions, data drift
between baseline windows, and session context bundles that lead up to the
first error of a session. Drift scoring is pluggable through DriftScorer and
DistributionScorer; NeutralScorer never fires, LexicalScorer compares
vocabularies.

# Agent

Agent lists a user's traces from a TraceStore, decodes them, runs the reducers
and detectors and returns ProcessedData. Passes for the same user are
serialized with a distributed Locker and coalesced in-process.
*/
package ingestion
