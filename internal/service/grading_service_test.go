package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shulepro/shulepro-api/internal/models"
	appErrors "github.com/shulepro/shulepro-api/pkg/errors"
)

func ptrFloat(v float64) *float64 { return &v }

func standardScale() []models.GradingScaleItem {
	return []models.GradingScaleItem{
		{Grade: "A", MinScore: 80, MaxScore: 100},
		{Grade: "B", MinScore: 70, MaxScore: 79.99},
		{Grade: "C", MinScore: 60, MaxScore: 69.99},
		{Grade: "D", MinScore: 50, MaxScore: 59.99},
		{Grade: "E", MinScore: 0, MaxScore: 49.99},
	}
}

func TestResolveGrade(t *testing.T) {
	scale := standardScale()

	tests := []struct {
		name     string
		score    *float64
		maxMarks float64
		scale    []models.GradingScaleItem
		want     string
	}{
		{"top band", ptrFloat(85), 100, scale, "A"},
		{"boundary inclusive", ptrFloat(80), 100, scale, "A"},
		{"bottom band", ptrFloat(10), 100, scale, "E"},
		{"scaled max marks", ptrFloat(42.5), 50, scale, "A"},
		{"nil score", nil, 100, scale, "N/A"},
		{"zero max marks", ptrFloat(50), 0, scale, "N/A"},
		{"empty scale", ptrFloat(50), 100, nil, "N/A"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ResolveGrade(tc.score, tc.maxMarks, tc.scale))
		})
	}
}

func TestResolveGradeGapYieldsUngraded(t *testing.T) {
	gappy := []models.GradingScaleItem{
		{Grade: "A", MinScore: 80, MaxScore: 100},
		{Grade: "C", MinScore: 0, MaxScore: 59.99},
	}
	assert.Equal(t, "Ungraded", ResolveGrade(ptrFloat(65), 100, gappy))
}

func TestResolveGradeOverlapFirstMatchWins(t *testing.T) {
	overlapping := []models.GradingScaleItem{
		{Grade: "Merit", MinScore: 60, MaxScore: 100},
		{Grade: "Pass", MinScore: 50, MaxScore: 100},
	}
	assert.Equal(t, "Merit", ResolveGrade(ptrFloat(75), 100, overlapping))
	assert.Equal(t, "Pass", ResolveGrade(ptrFloat(55), 100, overlapping))
}

type mockPolicyRepo struct {
	policies map[string]*models.GradingPolicy
	saved    *models.GradingPolicy
	deleted  []string
}

func (m *mockPolicyRepo) List(ctx context.Context) ([]models.GradingPolicy, error) {
	out := make([]models.GradingPolicy, 0, len(m.policies))
	for _, p := range m.policies {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockPolicyRepo) FindByID(ctx context.Context, id string) (*models.GradingPolicy, error) {
	if p, ok := m.policies[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPolicyRepo) FindDefault(ctx context.Context) (*models.GradingPolicy, error) {
	for _, p := range m.policies {
		if p.IsDefault {
			return p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockPolicyRepo) Save(ctx context.Context, policy *models.GradingPolicy) error {
	m.saved = policy
	return nil
}

func (m *mockPolicyRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func TestGradingServiceSaveRejectsInvertedRange(t *testing.T) {
	svc := NewGradingService(&mockPolicyRepo{}, nil, nil)
	_, err := svc.Save(context.Background(), SavePolicyRequest{
		Name:  "broken",
		Items: []ScaleItemRequest{{Grade: "A", MinScore: 90, MaxScore: 80}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidScale.Code, appErrors.FromError(err).Code)
}

func TestGradingServiceSaveRejectsOutOfRangeBounds(t *testing.T) {
	svc := NewGradingService(&mockPolicyRepo{}, nil, nil)
	_, err := svc.Save(context.Background(), SavePolicyRequest{
		Name:  "broken",
		Items: []ScaleItemRequest{{Grade: "A", MinScore: 0, MaxScore: 120}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGradingServiceSaveAssignsPositions(t *testing.T) {
	repo := &mockPolicyRepo{}
	svc := NewGradingService(repo, nil, nil)
	policy, err := svc.Save(context.Background(), SavePolicyRequest{
		Name: "standard",
		Items: []ScaleItemRequest{
			{Grade: "A", MinScore: 80, MaxScore: 100},
			{Grade: "B", MinScore: 0, MaxScore: 79.99},
		},
	})
	require.NoError(t, err)
	require.Len(t, policy.Items, 2)
	assert.Equal(t, 0, policy.Items[0].Position)
	assert.Equal(t, 1, policy.Items[1].Position)
	assert.Same(t, policy, repo.saved)
}

func TestGradingServiceDeleteDefaultRefused(t *testing.T) {
	repo := &mockPolicyRepo{policies: map[string]*models.GradingPolicy{
		"p1": {ID: "p1", Name: "default", IsDefault: true},
	}}
	svc := NewGradingService(repo, nil, nil)
	err := svc.Delete(context.Background(), "p1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestGradingServiceActiveScaleFallsBackToDefault(t *testing.T) {
	repo := &mockPolicyRepo{policies: map[string]*models.GradingPolicy{
		"p1": {ID: "p1", IsDefault: true, Items: standardScale()},
	}}
	svc := NewGradingService(repo, nil, nil)

	scale, err := svc.ActiveScale(context.Background(), &models.Exam{})
	require.NoError(t, err)
	assert.Len(t, scale, 5)

	// An exam pinned to a missing policy still resolves via the default.
	missing := "gone"
	scale, err = svc.ActiveScale(context.Background(), &models.Exam{GradingPolicyID: &missing})
	require.NoError(t, err)
	assert.Len(t, scale, 5)
}

func TestGradingServiceActiveScaleNoDefault(t *testing.T) {
	svc := NewGradingService(&mockPolicyRepo{}, nil, nil)
	scale, err := svc.ActiveScale(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, scale)
}
