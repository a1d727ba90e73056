// =============================================================================
// 💬 LLM 响应测试数据
// =============================================================================
package fixtures

import (
	"time"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/llm"
)

// SimpleResponse 返回只含一条文本的响应
func SimpleResponse(content string) *llm.ChatResponse {
	return ResponseWithUsage(content, 10, 20)
}

// ResponseWithUsage 返回带 token 用量的响应
func ResponseWithUsage(content string, promptTokens, completionTokens int) *llm.ChatResponse {
	return &llm.ChatResponse{
		ID:       "resp-test",
		Provider: "mock",
		Model:    "mock-model",
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: "stop",
			Message:      llm.Message{Role: llm.RoleAssistant, Content: content},
		}},
		Usage: llm.ChatUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		CreatedAt: time.Now(),
	}
}

// RCAReportJSON 是一份结构完整的 RCA 报告
const RCAReportJSON = `{
  "summary": "Checkout agent returned stale prices",
  "root_cause": "Pricing tool cache was not invalidated after deploy",
  "contributing_factors": [
    {"title": "Cache TTL", "details": "TTL set to 24h", "trace_id": "12", "impact": "high"}
  ],
  "replay": [
    {"step": "1", "title": "User asks for price", "details": "trace 12"}
  ],
  "resolution": [
    {"action": "Invalidate cache on deploy", "priority": "high", "details": "hook into CI"}
  ]
}`

// RCAReportWithProse 在 JSON 前后夹杂说明文字
const RCAReportWithProse = "Here is the analysis you asked for:\n" +
	"{\"summary\": \"Timeouts {under load}\", \"root_cause\": \"DB pool exhausted\"}\n" +
	"Let me know if you need more."
