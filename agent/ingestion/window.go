package ingestion

import (
	"sort"
	"time"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

// sortedByTime returns a copy of records in creation order. Records with
// equal timestamps keep their input order.
func sortedByTime(records []types.TraceRecord) []types.TraceRecord {
	out := make([]types.TraceRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// splitWindows partitions time-ordered records in a single pass. A record
// joins the open window while it is at most span after the window's first
// record; otherwise it opens the next window.
func splitWindows(records []types.TraceRecord, span time.Duration) [][]types.TraceRecord {
	if len(records) == 0 {
		return nil
	}
	var (
		out     [][]types.TraceRecord
		start   = records[0].CreatedAt
		current []types.TraceRecord
	)
	for _, rec := range records {
		if rec.CreatedAt.Sub(start) > span {
			out = append(out, current)
			current = nil
			start = rec.CreatedAt
		}
		current = append(current, rec)
	}
	return append(out, current)
}
