// Package ingest feeds traces into the store from a Kafka topic.
//
// Each record value is a JSON TraceMessage. Records that fail validation are
// committed and counted as skipped; store failures end the consumer session so
// the record is redelivered after the group rebalances.
package ingest
