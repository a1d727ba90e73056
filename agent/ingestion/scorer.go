package ingestion

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

// DriftScorer compares the responses of two prompt template versions.
// Implementations must be symmetric and bounded to [0, 1]; 0 means no
// observed drift.
type DriftScorer interface {
	ScoreDrift(oldResponses, newResponses []string) float64
}

// DistributionScorer compares a completed window of interactions against the
// baseline window under the same contract as DriftScorer.
type DistributionScorer interface {
	ScoreDistribution(baseline, current []types.TraceRecord) float64
}

// Scorer implements both drift seams.
type Scorer interface {
	DriftScorer
	DistributionScorer
}

// Scorer names accepted by NewScorer.
const (
	ScorerNeutral = "neutral"
	ScorerLexical = "lexical"
)

// NewScorer returns the scorer registered under name. An empty name selects
// the neutral scorer.
func NewScorer(name string) (Scorer, error) {
	switch strings.ToLower(name) {
	case "", ScorerNeutral:
		return NeutralScorer{}, nil
	case ScorerLexical:
		return LexicalScorer{}, nil
	default:
		return nil, fmt.Errorf("unknown drift scorer %q", name)
	}
}

// NeutralScorer never reports drift.
type NeutralScorer struct{}

func (NeutralScorer) ScoreDrift(_, _ []string) float64 { return 0 }

func (NeutralScorer) ScoreDistribution(_, _ []types.TraceRecord) float64 { return 0 }

// LexicalScorer is the Jaccard distance between the vocabularies of the two
// sides. Two empty sides score 0.
type LexicalScorer struct{}

func (LexicalScorer) ScoreDrift(oldResponses, newResponses []string) float64 {
	return jaccardDistance(vocabulary(oldResponses), vocabulary(newResponses))
}

func (LexicalScorer) ScoreDistribution(baseline, current []types.TraceRecord) float64 {
	return jaccardDistance(vocabulary(interactionTexts(baseline)), vocabulary(interactionTexts(current)))
}

func vocabulary(texts []string) map[string]struct{} {
	vocab := make(map[string]struct{})
	for _, text := range texts {
		for _, tok := range strings.FieldsFunc(strings.ToLower(text), isSeparator) {
			vocab[tok] = struct{}{}
		}
	}
	return vocab
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsNumber(r)
}

func jaccardDistance(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	shared := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	return 1 - float64(shared)/float64(union)
}

// interactionTexts collects prompt and response text of interaction records.
func interactionTexts(records []types.TraceRecord) []string {
	texts := make([]string, 0, 2*len(records))
	for _, rec := range records {
		data := rec.Content.Interaction
		if data == nil {
			continue
		}
		texts = append(texts, data.Prompt)
		if text, ok := responseText(data.Response); ok {
			texts = append(texts, text)
		}
	}
	return texts
}

// responseText is the comparable text of a response: the text field, or the
// raw object when the response carries no text.
func responseText(r *types.Response) (string, bool) {
	if r == nil {
		return "", false
	}
	if r.Text != "" {
		return r.Text, true
	}
	return string(r.Raw), len(r.Raw) > 0
}
