// =============================================================================
// 📋 Trace 测试数据
// =============================================================================
// 构造已解码的 TraceRecord 与原始 RawTrace，内容通过 DecodeTraceContent
// 校验，保证与存储层读出的数据形态一致。
// =============================================================================
package fixtures

import (
	"encoding/json"
	"time"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

// Epoch 是测试中的基准时间
var Epoch = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

// At 返回 Epoch 之后 seconds 秒的时间
func At(seconds int) time.Time {
	return Epoch.Add(time.Duration(seconds) * time.Second)
}

// Content 构造 {"type": kind, "data": data} 内容并解码，失败时 panic
func Content(kind types.TraceType, data map[string]any) types.TraceContent {
	raw, err := json.Marshal(map[string]any{"type": kind, "data": data})
	if err != nil {
		panic(err)
	}
	content, err := types.DecodeTraceContent(raw)
	if err != nil {
		panic(err)
	}
	return content
}

// Record 构造一条已解码的 TraceRecord
func Record(id uint, at time.Time, kind types.TraceType, data map[string]any) types.TraceRecord {
	return types.TraceRecord{ID: id, CreatedAt: at, Content: Content(kind, data)}
}

// Interaction 构造交互记录
func Interaction(id uint, at time.Time, data map[string]any) types.TraceRecord {
	return Record(id, at, types.TraceTypeInteraction, data)
}

// Log 构造日志记录
func Log(id uint, at time.Time, level, message string) types.TraceRecord {
	return Record(id, at, types.TraceTypeLog, map[string]any{"level": level, "message": message})
}

// Metric 构造指标记录
func Metric(id uint, at time.Time, name string, value float64) types.TraceRecord {
	return Record(id, at, types.TraceTypeMetric, map[string]any{"name": name, "value": value})
}

// WithDuration 设置记录耗时
func WithDuration(rec types.TraceRecord, seconds float64) types.TraceRecord {
	rec.Duration = &seconds
	return rec
}

// WithUser 设置记录所属用户
func WithUser(rec types.TraceRecord, userID uint) types.TraceRecord {
	rec.UserID = &userID
	return rec
}

// Raw 将记录转换为存储层的 RawTrace
func Raw(rec types.TraceRecord) types.RawTrace {
	content, err := json.Marshal(rec.Content)
	if err != nil {
		panic(err)
	}
	return types.RawTrace{
		ID:        rec.ID,
		UserID:    rec.UserID,
		CreatedAt: rec.CreatedAt,
		Status:    rec.Status,
		Duration:  rec.Duration,
		Content:   content,
	}
}

// RawBlob 用任意内容构造 RawTrace，用于畸形数据场景
func RawBlob(id uint, at time.Time, content string) types.RawTrace {
	return types.RawTrace{ID: id, CreatedAt: at, Content: json.RawMessage(content)}
}
