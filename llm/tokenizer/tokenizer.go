package tokenizer

import (
	"fmt"
	"unicode/utf8"
)

// Tokenizer 统一的 token 计数接口
type Tokenizer interface {
	// CountTokens 返回文本的 token 数
	CountTokens(text string) (int, error)

	// Truncate 截断文本使其不超过 maxTokens 个 token
	Truncate(text string, maxTokens int) (string, error)

	// MaxTokens 返回模型上下文长度
	MaxTokens() int

	// Name 返回分词器名称
	Name() string
}

// ForModel 返回模型对应的 tiktoken 分词器；编码表加载失败时退回估算器。
func ForModel(model string) Tokenizer {
	t := NewTiktokenTokenizer(model)
	if err := t.init(); err != nil {
		return NewEstimatorTokenizer(model, t.maxTokens)
	}
	return t
}

// FitsBudget 判断文本是否在 token 预算之内
func FitsBudget(t Tokenizer, text string, budget int) (bool, int, error) {
	n, err := t.CountTokens(text)
	if err != nil {
		return false, 0, fmt.Errorf("count tokens with %s: %w", t.Name(), err)
	}
	return n <= budget, n, nil
}

// truncateRunes 按 rune 截断，避免切断多字节字符
func truncateRunes(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}
