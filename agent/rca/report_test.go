package rca

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCoerce_MinimalInput(t *testing.T) {
	r := Coerce(map[string]any{"summary": "x"})

	assert.Equal(t, "x", r.Summary)
	assert.Equal(t, NoDetails, r.RootCause)
	assert.Equal(t, []ContributingFactor{{
		Title:   "Contributing Factor",
		Details: NoDetails,
	}}, r.ContributingFactors)
	assert.Equal(t, []ReplayStep{{Step: 1, Title: DefaultStepTitle, Details: NoDetails}}, r.Replay)
	assert.Equal(t, []ResolutionAction{{Action: DefaultAction, Status: DefaultActionStatus, Details: NoDetails}}, r.Resolution)
}

func TestCoerce_BareStrings(t *testing.T) {
	r := Coerce(map[string]any{
		"summary":              "s",
		"root_cause":           "rc",
		"contributing_factors": "memory leak in worker",
		"replay":               "user retried twice",
		"resolution":           "restart workers",
	})

	require.Len(t, r.ContributingFactors, 1)
	assert.Equal(t, ContributingFactor{Title: DefaultFactorTitle, Details: "memory leak in worker"}, r.ContributingFactors[0])
	require.Len(t, r.Replay, 1)
	assert.Equal(t, "user retried twice", r.Replay[0].Details)
	require.Len(t, r.Resolution, 1)
	assert.Equal(t, "restart workers", r.Resolution[0].Details)
	assert.Equal(t, DefaultAction, r.Resolution[0].Action)
}

func TestCoerce_ListElements(t *testing.T) {
	r := Coerce(map[string]any{
		"contributing_factors": []any{
			"plain string",
			map[string]any{"title": "Timeout", "trace_id": 42.0, "extra": "dropped"},
			nil,
		},
		"replay": []any{
			map[string]any{"title": "first"},
			map[string]any{"step": "7", "title": "explicit"},
			map[string]any{"step": 2.5, "title": "fractional"},
		},
		"resolution": []any{},
	})

	require.Len(t, r.ContributingFactors, 2)
	assert.Equal(t, "plain string", r.ContributingFactors[0].Details)
	assert.Equal(t, ContributingFactor{Title: "Timeout", Details: NoDetails, TraceID: "42"}, r.ContributingFactors[1])

	require.Len(t, r.Replay, 3)
	assert.Equal(t, 1, r.Replay[0].Step)
	assert.Equal(t, 7, r.Replay[1].Step)
	assert.Equal(t, 3, r.Replay[2].Step)

	require.Len(t, r.Resolution, 1, "empty list gets a default entry")
}

func TestCoerce_NullFields(t *testing.T) {
	r := Coerce(map[string]any{"summary": nil, "root_cause": "  ", "replay": nil})
	assert.Equal(t, NoDetails, r.Summary)
	assert.Equal(t, NoDetails, r.RootCause)
	assert.Len(t, r.Replay, 1)
}

func TestCoerce_Idempotent(t *testing.T) {
	once := Coerce(map[string]any{
		"summary":              "Checkout failed",
		"contributing_factors": []any{"a", map[string]any{"title": "b", "log_id": "9"}},
		"replay":               "one step",
	})
	twice := Coerce(once.Map())
	assert.Equal(t, once, twice)
}

func TestCoerce_IdempotentProperty(t *testing.T) {
	value := rapid.OneOf(
		rapid.Just[any](nil),
		rapid.String().AsAny(),
		rapid.Float64().AsAny(),
		rapid.Map(rapid.SliceOf(rapid.String()), func(ss []string) any {
			out := make([]any, len(ss))
			for i, s := range ss {
				out[i] = s
			}
			return out
		}),
	)
	step := rapid.OneOf(
		rapid.Float64().AsAny(),
		rapid.SampledFrom([]any{1e20, -1e20, 2.5, 0.0, float64(math.MaxInt32) + 1, "12", "99999999999999999999"}),
	)
	replay := rapid.Map(rapid.SliceOfN(step, 1, 4), func(steps []any) any {
		out := make([]any, len(steps))
		for i, s := range steps {
			out[i] = map[string]any{"step": s, "title": "t"}
		}
		return out
	})
	keys := []string{"summary", "root_cause", "contributing_factors", "replay", "resolution"}

	rapid.Check(t, func(t *rapid.T) {
		m := make(map[string]any)
		for _, k := range keys {
			if rapid.Bool().Draw(t, "present_"+k) {
				m[k] = value.Draw(t, k)
			}
		}
		if rapid.Bool().Draw(t, "structured_replay") {
			m["replay"] = replay.Draw(t, "replay_entries")
		}
		once := Coerce(m)
		if twice := Coerce(once.Map()); !assert.ObjectsAreEqual(once, twice) {
			t.Fatalf("not idempotent:\n%#v\n%#v", once, twice)
		}
		if len(once.ContributingFactors) == 0 || len(once.Replay) == 0 || len(once.Resolution) == 0 {
			t.Fatalf("empty list field: %#v", once)
		}
	})
}

func TestCoerce_OutOfRangeStep(t *testing.T) {
	m := map[string]any{"replay": []any{
		map[string]any{"step": 1e20},
		map[string]any{"step": 3.0},
	}}

	once := Coerce(m)
	require.Len(t, once.Replay, 2)
	assert.Equal(t, 1, once.Replay[0].Step)
	assert.Equal(t, 3, once.Replay[1].Step)
	assert.Equal(t, once, Coerce(once.Map()))
}
