package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAssessmentKeyRoundTrip(t *testing.T) {
	key := AssessmentKey{ExamID: "e1", ClassID: "c1", SubjectID: "s1"}

	parsed, err := ParseAssessmentKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)
}

func TestParseAssessmentKeyMalformed(t *testing.T) {
	for _, raw := range []string{"", "e1", "e1_c1", "e1_c1_", "_c1_s1", "e1__s1"} {
		_, err := ParseAssessmentKey(raw)
		assert.Error(t, err, "raw %q", raw)
	}
}

func TestDOSStatusTerminal(t *testing.T) {
	assert.False(t, DOSStatusPending.Terminal())
	assert.True(t, DOSStatusApproved.Terminal())
	assert.True(t, DOSStatusRejected.Terminal())
}
