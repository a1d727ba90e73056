/*
Package types holds the shared types of the echosys backend.

# Overview

types is the lowest package in the tree and imports no internal package. It
defines the trace data model consumed by the ingestion, evaluation and RCA
agents, and the structured error type every layer returns.

# Core types

  - TraceRecord       — one stored event (id, user, timestamp, content)
  - TraceContent      — closed tagged union over interaction/log/metric payloads
  - InteractionData   — prompt, response, model, retrieval context, template version
  - LogData           — level, message, environment
  - MetricData        — name, value, unit, tags
  - Error / ErrorCode — structured error with HTTP status and retryable flag

# Decoding

DecodeTraceContent validates content at the store boundary. Records that fail
decoding carry ErrMalformedTrace (or ErrUnknownTraceType) and are skipped by
the pipeline rather than aborting a batch.
*/
package types
