package evaluation

import (
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"am": {}, "do": {}, "does": {}, "did": {}, "to": {}, "of": {}, "in": {}, "on": {}, "at": {},
	"for": {}, "by": {}, "with": {}, "and": {}, "or": {}, "but": {}, "if": {}, "it": {}, "its": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "i": {}, "you": {}, "we": {}, "our": {},
	"your": {}, "my": {}, "me": {}, "what": {}, "which": {}, "who": {}, "how": {}, "when": {},
	"where": {}, "why": {}, "can": {}, "could": {}, "should": {}, "would": {}, "will": {},
	"please": {}, "as": {}, "so": {}, "from": {}, "about": {}, "into": {}, "any": {}, "there": {},
}

// tokens 小写切词，去除停用词并做轻量词干化
func tokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, stem(f))
	}
	return out
}

func stem(word string) string {
	if len(word) > 3 && strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") {
		return word[:len(word)-1]
	}
	return word
}

func vocab(texts ...string) map[string]struct{} {
	v := make(map[string]struct{})
	for _, text := range texts {
		for _, tok := range tokens(text) {
			v[tok] = struct{}{}
		}
	}
	return v
}

// sentences 按句末标点和换行切分
func sentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// containsAny 判断 text 是否包含逗号分隔的任意词（不区分大小写）
func containsAny(text, csv string) (matched bool, considered bool) {
	lowered := strings.ToLower(text)
	for _, term := range strings.Split(csv, ",") {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		considered = true
		if strings.Contains(lowered, term) {
			return true, true
		}
	}
	return false, considered
}
