package anomaly

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func grades(scores ...interface{}) []Grade {
	out := make([]Grade, 0, len(scores))
	for i, raw := range scores {
		g := Grade{StudentID: string(rune('a' + i))}
		if v, ok := raw.(float64); ok {
			g.Score = ptr(v)
		} else if v, ok := raw.(int); ok {
			g.Score = ptr(float64(v))
		}
		out = append(out, g)
	}
	return out
}

func classify(t *testing.T, in Input) Result {
	t.Helper()
	result, err := NewRuleClassifier(DefaultConfig()).Classify(context.Background(), in)
	require.NoError(t, err)
	return result
}

func hasExplanation(result Result, fragment string) bool {
	for _, a := range result.Anomalies {
		if strings.Contains(a.Explanation, fragment) {
			return true
		}
	}
	return false
}

func TestClassifyCleanBatch(t *testing.T) {
	result := classify(t, Input{
		MaxMarks: 100,
		Grades:   grades(40, 45, 55, 60, 65, 70, 75, 85),
	})
	assert.False(t, result.HasAnomalies)
	assert.NotNil(t, result.Anomalies)
	assert.Empty(t, result.Anomalies)
}

func TestClassifyUniformScores(t *testing.T) {
	result := classify(t, Input{
		MaxMarks: 100,
		Grades:   grades(75, 75, 75, 75, 75, 75),
	})
	require.True(t, result.HasAnomalies)
	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, GeneralStudentID, result.Anomalies[0].StudentID)
	assert.Contains(t, result.Anomalies[0].Explanation, "identical")
}

func TestClassifyUniformScoresSmallCohortTolerated(t *testing.T) {
	result := classify(t, Input{
		MaxMarks: 100,
		Grades:   grades(70, 70, 70, 70, 70),
	})
	assert.False(t, result.HasAnomalies)
}

func TestClassifyStatisticalOutlier(t *testing.T) {
	result := classify(t, Input{
		MaxMarks: 100,
		Grades:   grades(60, 62, 58, 61, 59, 99),
	})
	require.True(t, result.HasAnomalies)
	require.Len(t, result.Anomalies, 1)
	// student index 5 holds the 99.
	assert.Equal(t, "f", result.Anomalies[0].StudentID)
	assert.Contains(t, result.Anomalies[0].Explanation, "deviates")
}

func TestClassifyOutlierAmongTightCohort(t *testing.T) {
	// The extreme value must not mask itself by inflating the cohort's
	// deviation: 99 against five scores near 50 is still flagged.
	result := classify(t, Input{
		MaxMarks: 100,
		Grades:   grades(50, 52, 48, 51, 49, 99),
	})
	require.True(t, result.HasAnomalies)
	found := false
	for _, a := range result.Anomalies {
		if a.StudentID == "f" {
			found = true
		}
	}
	assert.True(t, found, "the 99 score should be flagged as an outlier")
}

func TestClassifyHistoricalDrift(t *testing.T) {
	result := classify(t, Input{
		MaxMarks:          100,
		Grades:            grades(80, 80, 80, 80),
		HistoricalAverage: ptr(60),
	})
	require.True(t, result.HasAnomalies)
	require.Len(t, result.Anomalies, 1)
	assert.Contains(t, result.Anomalies[0].Explanation, "historical average")
}

func TestClassifyHistoricalDriftWithinTolerance(t *testing.T) {
	result := classify(t, Input{
		MaxMarks:          100,
		Grades:            grades(75, 75, 75, 75),
		HistoricalAverage: ptr(60),
	})
	assert.False(t, result.HasAnomalies)
}

func TestClassifyMissingScores(t *testing.T) {
	batch := grades(40, 45, 55, 60, 65, 70, 75, 85)
	batch = append(batch, Grade{StudentID: "i"}, Grade{StudentID: "j"})
	result := classify(t, Input{MaxMarks: 100, Grades: batch})
	require.True(t, result.HasAnomalies)
	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, GeneralStudentID, result.Anomalies[0].StudentID)
	assert.Contains(t, result.Anomalies[0].Explanation, "missing")
}

func TestClassifyFewMissingScoresTolerated(t *testing.T) {
	batch := grades(40, 45, 55, 60, 65, 70, 75, 85, 30)
	batch = append(batch, Grade{StudentID: "j"})
	result := classify(t, Input{MaxMarks: 100, Grades: batch})
	assert.False(t, hasExplanation(result, "missing"))
}

func TestClassifyMaxMarkCluster(t *testing.T) {
	result := classify(t, Input{
		MaxMarks: 100,
		Grades:   grades(100, 100, 100, 100),
	})
	require.True(t, result.HasAnomalies)
	assert.True(t, hasExplanation(result, "maximum mark"))
}

func TestClassifyZeroCluster(t *testing.T) {
	result := classify(t, Input{
		MaxMarks: 100,
		Grades:   grades(0, 0, 40, 50, 60),
	})
	require.True(t, result.HasAnomalies)
	require.Len(t, result.Anomalies, 1)
	assert.Contains(t, result.Anomalies[0].Explanation, "zero")
}

func TestClassifyJustAbovePassCluster(t *testing.T) {
	result := classify(t, Input{
		MaxMarks: 100,
		Grades:   grades(50, 52, 51, 53),
	})
	require.True(t, result.HasAnomalies)
	require.Len(t, result.Anomalies, 1)
	assert.Contains(t, result.Anomalies[0].Explanation, "pass mark")
}

func TestClassifyPercentagesRespectMaxMarks(t *testing.T) {
	// 40/50 is 80%; against a historical 60% the drift rule fires even
	// though the raw scores are small.
	result := classify(t, Input{
		MaxMarks:          50,
		Grades:            grades(40, 40, 40, 40),
		HistoricalAverage: ptr(60),
	})
	require.True(t, result.HasAnomalies)
	assert.True(t, hasExplanation(result, "historical average"))
}

func TestClassifyEmptyBatch(t *testing.T) {
	result := classify(t, Input{MaxMarks: 100, Grades: nil})
	assert.False(t, result.HasAnomalies)
	assert.NotNil(t, result.Anomalies)
}
