package mocks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

// TraceStore 是内存中的 trace 存储，满足 ingestion.TraceStore
type TraceStore struct {
	mu     sync.RWMutex
	traces []types.RawTrace
	err    error
	delay  time.Duration
	lists  atomic.Int32

	annotations map[uint]map[string]any
}

// NewTraceStore 创建包含 traces 的存储
func NewTraceStore(traces ...types.RawTrace) *TraceStore {
	return &TraceStore{traces: traces, annotations: make(map[uint]map[string]any)}
}

// WithError 使 List 返回 err
func (s *TraceStore) WithError(err error) *TraceStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// WithDelay 使 List 阻塞 d
func (s *TraceStore) WithDelay(d time.Duration) *TraceStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
	return s
}

// List 返回属于 userID 的 trace，userID 为 nil 时返回全部
func (s *TraceStore) List(ctx context.Context, userID *uint) ([]types.RawTrace, error) {
	s.lists.Add(1)
	s.mu.RLock()
	delay, err := s.delay, s.err
	s.mu.RUnlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.RawTrace, 0, len(s.traces))
	for _, t := range s.traces {
		if userID != nil && (t.UserID == nil || *t.UserID != *userID) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Annotate 合并分析结果
func (s *TraceStore) Annotate(_ context.Context, traceID uint, results map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.annotations[traceID] == nil {
		s.annotations[traceID] = make(map[string]any)
	}
	for k, v := range results {
		s.annotations[traceID][k] = v
	}
	return nil
}

// Annotations 返回某条 trace 的分析结果
func (s *TraceStore) Annotations(traceID uint) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.annotations[traceID]
}

// ListCalls 返回 List 被调用的次数
func (s *TraceStore) ListCalls() int {
	return int(s.lists.Load())
}
