package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/shulepro/shulepro-api/internal/models"
)

// GradingPolicyRepository handles grading policy persistence.
type GradingPolicyRepository struct {
	db *sqlx.DB
}

// NewGradingPolicyRepository creates a new grading policy repository.
func NewGradingPolicyRepository(db *sqlx.DB) *GradingPolicyRepository {
	return &GradingPolicyRepository{db: db}
}

// List returns all policies with their scale items.
func (r *GradingPolicyRepository) List(ctx context.Context) ([]models.GradingPolicy, error) {
	var policies []models.GradingPolicy
	const query = `SELECT id, name, is_default, created_at, updated_at FROM grading_policies ORDER BY name ASC`
	if err := r.db.SelectContext(ctx, &policies, query); err != nil {
		return nil, fmt.Errorf("list grading policies: %w", err)
	}
	for i := range policies {
		items, err := r.listItems(ctx, policies[i].ID)
		if err != nil {
			return nil, err
		}
		policies[i].Items = items
	}
	return policies, nil
}

// FindByID returns one policy with its scale items in declaration order.
func (r *GradingPolicyRepository) FindByID(ctx context.Context, id string) (*models.GradingPolicy, error) {
	var policy models.GradingPolicy
	const query = `SELECT id, name, is_default, created_at, updated_at FROM grading_policies WHERE id = $1`
	if err := r.db.GetContext(ctx, &policy, query, id); err != nil {
		return nil, err
	}
	items, err := r.listItems(ctx, policy.ID)
	if err != nil {
		return nil, err
	}
	policy.Items = items
	return &policy, nil
}

// FindDefault returns the policy flagged default, if any.
func (r *GradingPolicyRepository) FindDefault(ctx context.Context) (*models.GradingPolicy, error) {
	var policy models.GradingPolicy
	const query = `SELECT id, name, is_default, created_at, updated_at FROM grading_policies WHERE is_default = TRUE LIMIT 1`
	if err := r.db.GetContext(ctx, &policy, query); err != nil {
		return nil, err
	}
	items, err := r.listItems(ctx, policy.ID)
	if err != nil {
		return nil, err
	}
	policy.Items = items
	return &policy, nil
}

// Save upserts a policy and replaces its scale items in one transaction.
// Item position preserves declaration order, which is the resolver's
// tie-break rule.
func (r *GradingPolicyRepository) Save(ctx context.Context, policy *models.GradingPolicy) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if policy.ID == "" {
		policy.ID = uuid.NewString()
		policy.CreatedAt = time.Now().UTC()
	}
	policy.UpdatedAt = time.Now().UTC()

	const upsert = `INSERT INTO grading_policies (id, name, is_default, created_at, updated_at)
        VALUES (:id, :name, :is_default, :created_at, :updated_at)
        ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, is_default = EXCLUDED.is_default, updated_at = EXCLUDED.updated_at`
	if _, err := tx.NamedExecContext(ctx, upsert, policy); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("save grading policy: %w", err)
	}

	if policy.IsDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE grading_policies SET is_default = FALSE WHERE id <> $1`, policy.ID); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("clear default flags: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM grading_scale_items WHERE policy_id = $1`, policy.ID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear scale items: %w", err)
	}
	const insertItem = `INSERT INTO grading_scale_items (id, policy_id, grade, min_score, max_score, position)
        VALUES (:id, :policy_id, :grade, :min_score, :max_score, :position)`
	for i := range policy.Items {
		policy.Items[i].PolicyID = policy.ID
		policy.Items[i].Position = i
		if policy.Items[i].ID == "" {
			policy.Items[i].ID = uuid.NewString()
		}
		if _, err := tx.NamedExecContext(ctx, insertItem, policy.Items[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert scale item: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grading policy: %w", err)
	}
	return nil
}

// Delete removes a policy and its items.
func (r *GradingPolicyRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM grading_policies WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete grading policy: %w", err)
	}
	return nil
}

func (r *GradingPolicyRepository) listItems(ctx context.Context, policyID string) ([]models.GradingScaleItem, error) {
	var items []models.GradingScaleItem
	const query = `SELECT id, policy_id, grade, min_score, max_score, position FROM grading_scale_items WHERE policy_id = $1 ORDER BY position ASC`
	if err := r.db.SelectContext(ctx, &items, query, policyID); err != nil {
		return nil, fmt.Errorf("list scale items: %w", err)
	}
	return items, nil
}
