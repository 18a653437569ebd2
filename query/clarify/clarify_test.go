package clarify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usorama/engg-context-gateway/query/classifier"
)

func ambiguousResult() classifier.Result {
	return classifier.Result{Clarity: classifier.ClarityAmbiguous, Confidence: 0.6, SuggestedMode: classifier.ModeConversational}
}

func TestGenerateReturnsNoneForClearQuery(t *testing.T) {
	r := classifier.Result{Clarity: classifier.ClarityClear}
	got := New().Generate("implement a retry wrapper", r)
	assert.Empty(t, got)
}

func TestGenerateInjectsDomainAspectQuestion(t *testing.T) {
	got := New().Generate("fix the auth thing", ambiguousResult())

	require.NotEmpty(t, got)
	assert.Equal(t, "aspect", got[0].Key)
	assert.True(t, got[0].Required)
}

func TestGenerateFallsBackToScopeAndGoal(t *testing.T) {
	got := New().Generate("fix this thing", ambiguousResult())

	require.Len(t, got, 2)
	assert.Equal(t, "scope", got[0].Key)
	assert.Equal(t, "goal", got[1].Key)
}

func TestGenerateCapsAtThreeQuestions(t *testing.T) {
	got := New().Generate("fix the auth, cache, database, api, and deploy issues", ambiguousResult())
	assert.LessOrEqual(t, len(got), 3)
}

func TestGenerateIsDeterministic(t *testing.T) {
	q := "fix the cache thing"
	r := ambiguousResult()
	g := New()
	assert.Equal(t, g.Generate(q, r), g.Generate(q, r))
}

func TestGenerateRequiredQuestionsPrecedeOptional(t *testing.T) {
	got := New().Generate("fix this thing", ambiguousResult())
	require.Len(t, got, 2)
	for i := 0; i < len(got)-1; i++ {
		if !got[i].Required {
			assert.False(t, got[i+1].Required, "optional question must not precede required")
		}
	}
}
