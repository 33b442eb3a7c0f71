package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultClassifier_AffirmativeReply(t *testing.T) {
	c := DefaultClassifier()

	res := c.Classify("shun 10.6.6.6", "Shun 10.6.6.6 successful")
	assert.True(t, res.OK)
	assert.Equal(t, "Shun 10.6.6.6 successful", res.Raw)
}

func TestDefaultClassifier_NegativeReply(t *testing.T) {
	c := DefaultClassifier()

	for _, raw := range []string{
		"ERROR: % Invalid input detected",
		"Command failed",
		"% incomplete command",
	} {
		res := c.Classify("shun 10.6.6.6", raw)
		assert.False(t, res.OK, "reply %q should be a failure", raw)
		assert.Equal(t, raw, res.Raw, "raw reply must be preserved")
	}
}

func TestDefaultClassifier_NegativeWinsOverAffirmative(t *testing.T) {
	c := DefaultClassifier()

	res := c.Classify("shun 10.6.6.6", "ERROR: shun was not successful")
	assert.False(t, res.OK)
}

func TestDefaultClassifier_EmptyReply(t *testing.T) {
	c := DefaultClassifier()

	res := c.Classify("no shun 10.6.6.6", "")
	assert.True(t, res.OK, "silent acknowledgement counts as success")

	strict := &PatternClassifier{Affirmative: []string{"successful"}}
	res = strict.Classify("no shun 10.6.6.6", "")
	assert.False(t, res.OK, "EmptyOK off: silence is a failure")
}

func TestDefaultClassifier_UnrecognizedReplyIsFailure(t *testing.T) {
	c := DefaultClassifier()

	res := c.Classify("shun 10.6.6.6", "something entirely unexpected")
	assert.False(t, res.OK)
}
