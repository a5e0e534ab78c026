package models

import "time"

// GradingScaleItem maps a percentage range to a grade symbol. Ranges are
// inclusive on both ends and expressed as 0-100 percentages.
type GradingScaleItem struct {
	ID       string  `db:"id" json:"id,omitempty"`
	PolicyID string  `db:"policy_id" json:"-"`
	Grade    string  `db:"grade" json:"grade"`
	MinScore float64 `db:"min_score" json:"min_score"`
	MaxScore float64 `db:"max_score" json:"max_score"`
	Position int     `db:"position" json:"-"`
}

// GradingPolicy is an ordered set of scale items. Item order is the
// declaration order and is the tie-break when ranges ever overlap.
type GradingPolicy struct {
	ID        string             `db:"id" json:"id"`
	Name      string             `db:"name" json:"name"`
	IsDefault bool               `db:"is_default" json:"is_default"`
	Items     []GradingScaleItem `json:"items"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt time.Time          `db:"updated_at" json:"updated_at"`
}

// GeneralSettings is the singleton system configuration row.
type GeneralSettings struct {
	ID            int       `db:"id" json:"-"`
	SchoolName    string    `db:"school_name" json:"school_name"`
	Motto         *string   `db:"motto" json:"motto,omitempty"`
	CurrentTermID *string   `db:"current_term_id" json:"current_term_id,omitempty"`
	NextTermBegin *string   `db:"next_term_begin" json:"next_term_begin,omitempty"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// TemplateSchoolName is the placeholder the settings row is seeded with.
const TemplateSchoolName = "Your School Name"

// IsTemplate reports whether settings are still the not-yet-configured
// seed. Computations treat this as "configuration missing", a soft state.
func (s GeneralSettings) IsTemplate() bool {
	return s.SchoolName == "" || s.SchoolName == TemplateSchoolName
}
