package tokenizer

import "unicode/utf8"

// EstimatorTokenizer 按字符数估算 token，区分 CJK 与 ASCII。
// tiktoken 编码表不可用（如离线环境）时使用。
type EstimatorTokenizer struct {
	model     string
	maxTokens int
}

// NewEstimatorTokenizer 创建估算器
func NewEstimatorTokenizer(model string, maxTokens int) *EstimatorTokenizer {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &EstimatorTokenizer{model: model, maxTokens: maxTokens}
}

// CountTokens CJK 约 1.5 字符/token，其他约 4 字符/token
func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	total := utf8.RuneCountInString(text)
	cjk := 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		}
	}
	estimated := int(float64(cjk)/1.5 + float64(total-cjk)/4.0)
	if estimated == 0 {
		estimated = 1
	}
	return estimated, nil
}

// Truncate 按 4 字符/token 近似截断，结果再校验一次计数
func (e *EstimatorTokenizer) Truncate(text string, maxTokens int) (string, error) {
	out := truncateRunes(text, maxTokens*4)
	for {
		n, _ := e.CountTokens(out)
		if n <= maxTokens || out == "" {
			return out, nil
		}
		out = truncateRunes(out, utf8.RuneCountInString(out)*maxTokens/n)
	}
}

func (e *EstimatorTokenizer) MaxTokens() int { return e.maxTokens }

func (e *EstimatorTokenizer) Name() string { return "estimator" }

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x3000 && r <= 0x303F) ||
		(r >= 0xFF00 && r <= 0xFFEF)
}
