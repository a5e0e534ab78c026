package anomaly

import (
	"context"
	"fmt"
	"math"

	"github.com/shulepro/shulepro-api/internal/models"
)

// GeneralStudentID marks batch-level findings that are not attributable to
// a single student.
const GeneralStudentID = "GENERAL"

// Grade is one student's raw score. A nil score means no mark was entered.
type Grade struct {
	StudentID string   `json:"student_id"`
	Score     *float64 `json:"score"`
}

// Input is one mark batch to screen.
type Input struct {
	Subject           string   `json:"subject"`
	Exam              string   `json:"exam"`
	MaxMarks          float64  `json:"max_marks"`
	Grades            []Grade  `json:"grades"`
	HistoricalAverage *float64 `json:"historical_average,omitempty"`
}

// Result is the strict output schema consumed by the submission flow.
// Anomalies is always a non-nil slice and HasAnomalies is true iff it is
// non-empty.
type Result struct {
	HasAnomalies bool             `json:"has_anomalies"`
	Anomalies    []models.Anomaly `json:"anomalies"`
}

// Classifier screens a mark batch. Implementations are advisory: a failed
// classification must never block the submission write path.
type Classifier interface {
	Classify(ctx context.Context, in Input) (Result, error)
}

// Config holds the rule thresholds. Zero values fall back to defaults.
type Config struct {
	// UniformMinCohort: a uniform batch is flagged only when the scored
	// cohort is strictly larger than this.
	UniformMinCohort int
	// OutlierStdDevs: a score is an outlier when it deviates from the
	// rest of the cohort by more than this many standard deviations.
	OutlierStdDevs float64
	// HistoricalDriftPts: max tolerated distance between the cohort mean
	// and the historical average, in percentage points.
	HistoricalDriftPts float64
	// MissingRatio: missing-score fraction at or above which the batch is
	// flagged.
	MissingRatio float64
	// PassMarkPercent anchors the just-above-pass clustering band.
	PassMarkPercent float64
	// ClusterBandWidthPct is the width of the band starting at the pass
	// mark.
	ClusterBandWidthPct float64
	// ClusterShare: fraction of scored students inside one cluster at or
	// above which the batch is flagged.
	ClusterShare float64
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		UniformMinCohort:    5,
		OutlierStdDevs:      2.5,
		HistoricalDriftPts:  17.5,
		MissingRatio:        0.2,
		PassMarkPercent:     50,
		ClusterBandWidthPct: 5,
		ClusterShare:        0.4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.UniformMinCohort <= 0 {
		c.UniformMinCohort = d.UniformMinCohort
	}
	if c.OutlierStdDevs <= 0 {
		c.OutlierStdDevs = d.OutlierStdDevs
	}
	if c.HistoricalDriftPts <= 0 {
		c.HistoricalDriftPts = d.HistoricalDriftPts
	}
	if c.MissingRatio <= 0 {
		c.MissingRatio = d.MissingRatio
	}
	if c.PassMarkPercent <= 0 {
		c.PassMarkPercent = d.PassMarkPercent
	}
	if c.ClusterBandWidthPct <= 0 {
		c.ClusterBandWidthPct = d.ClusterBandWidthPct
	}
	if c.ClusterShare <= 0 {
		c.ClusterShare = d.ClusterShare
	}
	return c
}

// RuleClassifier is the deterministic rule engine.
type RuleClassifier struct {
	cfg Config
}

// NewRuleClassifier builds a classifier with the given thresholds.
func NewRuleClassifier(cfg Config) *RuleClassifier {
	return &RuleClassifier{cfg: cfg.withDefaults()}
}

// Classify runs all rules over the batch. It never returns an error; the
// error in the signature exists for pluggable remote implementations.
func (r *RuleClassifier) Classify(_ context.Context, in Input) (Result, error) {
	anomalies := []models.Anomaly{}

	scored := make([]scoredGrade, 0, len(in.Grades))
	missing := 0
	for _, g := range in.Grades {
		if g.Score == nil {
			missing++
			continue
		}
		scored = append(scored, scoredGrade{studentID: g.StudentID, pct: toPercent(*g.Score, in.MaxMarks)})
	}

	anomalies = append(anomalies, r.uniformCheck(scored)...)
	anomalies = append(anomalies, r.outlierCheck(scored)...)
	anomalies = append(anomalies, r.historicalCheck(scored, in.HistoricalAverage)...)
	anomalies = append(anomalies, r.missingCheck(missing, len(in.Grades))...)
	anomalies = append(anomalies, r.clusterCheck(scored)...)

	return Result{HasAnomalies: len(anomalies) > 0, Anomalies: anomalies}, nil
}

type scoredGrade struct {
	studentID string
	pct       float64
}

func toPercent(score, maxMarks float64) float64 {
	if maxMarks > 0 {
		return score / maxMarks * 100
	}
	return score
}

func (r *RuleClassifier) uniformCheck(scored []scoredGrade) []models.Anomaly {
	if len(scored) <= r.cfg.UniformMinCohort {
		return nil
	}
	first := scored[0].pct
	for _, g := range scored[1:] {
		if g.pct != first {
			return nil
		}
	}
	return []models.Anomaly{{
		StudentID:   GeneralStudentID,
		Explanation: fmt.Sprintf("all %d recorded scores are identical (%.1f%%)", len(scored), first),
	}}
}

// outlierCheck uses leave-one-out statistics: each score is compared to
// the mean and deviation of the remaining cohort, so a single extreme
// value cannot mask itself by inflating the deviation.
func (r *RuleClassifier) outlierCheck(scored []scoredGrade) []models.Anomaly {
	if len(scored) < 4 {
		return nil
	}
	var out []models.Anomaly
	for i, g := range scored {
		others := make([]float64, 0, len(scored)-1)
		for j, o := range scored {
			if j != i {
				others = append(others, o.pct)
			}
		}
		mean, std := meanStd(others)
		dev := math.Abs(g.pct - mean)
		flagged := false
		if std > 0 {
			flagged = dev > r.cfg.OutlierStdDevs*std
		} else {
			// The rest of the cohort is perfectly uniform; any distinct
			// score stands out.
			flagged = dev > 0 && len(others) >= 3
		}
		if flagged {
			out = append(out, models.Anomaly{
				StudentID:   g.studentID,
				Explanation: fmt.Sprintf("score %.1f%% deviates %.1f points from the rest of the cohort (mean %.1f%%, >%.1f SD)", g.pct, dev, mean, r.cfg.OutlierStdDevs),
			})
		}
	}
	return out
}

func (r *RuleClassifier) historicalCheck(scored []scoredGrade, historical *float64) []models.Anomaly {
	if historical == nil || len(scored) == 0 {
		return nil
	}
	values := make([]float64, len(scored))
	for i, g := range scored {
		values[i] = g.pct
	}
	mean, _ := meanStd(values)
	drift := math.Abs(mean - *historical)
	if drift <= r.cfg.HistoricalDriftPts {
		return nil
	}
	return []models.Anomaly{{
		StudentID:   GeneralStudentID,
		Explanation: fmt.Sprintf("cohort average %.1f%% differs from the historical average %.1f%% by %.1f points", mean, *historical, drift),
	}}
}

func (r *RuleClassifier) missingCheck(missing, total int) []models.Anomaly {
	if total == 0 || missing == 0 {
		return nil
	}
	ratio := float64(missing) / float64(total)
	if ratio < r.cfg.MissingRatio {
		return nil
	}
	return []models.Anomaly{{
		StudentID:   GeneralStudentID,
		Explanation: fmt.Sprintf("%d of %d scores are missing (%.0f%%)", missing, total, ratio*100),
	}}
}

func (r *RuleClassifier) clusterCheck(scored []scoredGrade) []models.Anomaly {
	if len(scored) < 4 {
		return nil
	}
	atMax, atZero, abovePass := 0, 0, 0
	for _, g := range scored {
		switch {
		case g.pct >= 100:
			atMax++
		case g.pct == 0:
			atZero++
		case g.pct >= r.cfg.PassMarkPercent && g.pct < r.cfg.PassMarkPercent+r.cfg.ClusterBandWidthPct:
			abovePass++
		}
	}

	var out []models.Anomaly
	total := len(scored)
	if share := float64(atMax) / float64(total); share >= r.cfg.ClusterShare {
		out = append(out, models.Anomaly{
			StudentID:   GeneralStudentID,
			Explanation: fmt.Sprintf("%d of %d scores sit at the maximum mark", atMax, total),
		})
	}
	if share := float64(atZero) / float64(total); share >= r.cfg.ClusterShare {
		out = append(out, models.Anomaly{
			StudentID:   GeneralStudentID,
			Explanation: fmt.Sprintf("%d of %d scores are zero", atZero, total),
		})
	}
	if share := float64(abovePass) / float64(total); share >= r.cfg.ClusterShare {
		out = append(out, models.Anomaly{
			StudentID:   GeneralStudentID,
			Explanation: fmt.Sprintf("%d of %d scores cluster just above the pass mark (%.0f%%-%.0f%%)", abovePass, total, r.cfg.PassMarkPercent, r.cfg.PassMarkPercent+r.cfg.ClusterBandWidthPct),
		})
	}
	return out
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}
