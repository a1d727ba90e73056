package evaluation

// DefaultThreshold 未配置阈值时使用的通过线
const DefaultThreshold = 0.7

// Criteria 单个指标的评估标准
//
// EvaluationRules 的每条规则是逗号分隔的关键词，回答命中任意一个即满足该规则；
// DetectionRules 的每条规则是逗号分隔的禁用词，回答命中任意一个即违反该规则。
// 最终分数 = 基础分 × 满足比例 × (1 - 违反比例)。
type Criteria struct {
	Threshold       *float64          `json:"threshold,omitempty"`
	EvaluationRules map[string]string `json:"evaluation_rules,omitempty"`
	DetectionRules  map[string]string `json:"detection_rules,omitempty"`
}

// NewCriteria 创建只带阈值的评估标准
func NewCriteria(threshold float64) Criteria {
	return Criteria{Threshold: &threshold}
}

// ThresholdOr 返回配置的阈值，未配置时返回 def
func (c Criteria) ThresholdOr(def float64) float64 {
	if c.Threshold == nil {
		return def
	}
	return *c.Threshold
}

// Adjust 按规则调整分数，结果是回答文本的确定性函数
func (c Criteria) Adjust(score float64, response string) float64 {
	if n, satisfied := countRules(c.EvaluationRules, response); n > 0 {
		score *= float64(satisfied) / float64(n)
	}
	if n, violated := countRules(c.DetectionRules, response); n > 0 {
		score *= 1 - float64(violated)/float64(n)
	}
	return score
}

// countRules 返回有效规则数与命中数
func countRules(rules map[string]string, response string) (considered, matched int) {
	for _, terms := range rules {
		hit, ok := containsAny(response, terms)
		if !ok {
			continue
		}
		considered++
		if hit {
			matched++
		}
	}
	return considered, matched
}

func (c Criteria) clone() Criteria {
	out := Criteria{}
	if c.Threshold != nil {
		t := *c.Threshold
		out.Threshold = &t
	}
	out.EvaluationRules = cloneRules(c.EvaluationRules)
	out.DetectionRules = cloneRules(c.DetectionRules)
	return out
}

func cloneRules(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
