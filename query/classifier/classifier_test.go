package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyClearQueryIsOneShot(t *testing.T) {
	r := New().Classify("implement a retry wrapper for the database client")

	assert.Equal(t, ClarityClear, r.Clarity)
	assert.Equal(t, ModeOneShot, r.SuggestedMode)
	assert.InDelta(t, 0.9, r.Confidence, 1e-9)
	assert.Equal(t, IntentCode, r.Intent)
}

func TestClassifyAmbiguousQueryIsConversational(t *testing.T) {
	r := New().Classify("can you fix this the same way as before")

	assert.Equal(t, ClarityAmbiguous, r.Clarity)
	assert.Equal(t, ModeConversational, r.SuggestedMode)
	assert.InDelta(t, 0.6, r.Confidence, 1e-9)
	assert.NotEmpty(t, r.AmbiguityReasons)
}

func TestClassifyHighlyAmbiguousRequiresContext(t *testing.T) {
	r := New().Classify("fix those things similar to the same ones, it should work like that")

	assert.Equal(t, ClarityRequiresContext, r.Clarity)
	assert.Equal(t, ModeConversational, r.SuggestedMode)
	assert.InDelta(t, 0.3, r.Confidence, 1e-9)
}

func TestClassifyIntentLocation(t *testing.T) {
	r := New().Classify("where is the retry logic implemented")
	assert.Equal(t, IntentLocation, r.Intent)
}

func TestClassifyIntentRelationship(t *testing.T) {
	r := New().Classify("what calls the Embed function")
	assert.Equal(t, IntentRelationship, r.Intent)
}

func TestClassifyIntentExplanationAndCode(t *testing.T) {
	r := New().Classify("explain how to fix the connection pool bug")
	assert.Equal(t, IntentBoth, r.Intent)
}

func TestClassifyDeterministic(t *testing.T) {
	q := "how does it handle retries for those cases"
	c := New()
	assert.Equal(t, c.Classify(q), c.Classify(q))
}
