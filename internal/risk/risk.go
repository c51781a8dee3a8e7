// Package risk turns a waterbody's recent water tests into a 0-100 risk score
// and a bounded, severity-tagged contamination timeline.
//
// Inputs are ordered most recent first and are expected to be capped by the
// caller (HistoryWindow for health cards).
package risk

import (
	"math"

	"github.com/stanstork/waterwatch-api/internal/models"
)

const (
	HistoryWindow          = 20
	MaxContaminationEvents = 10

	// DefaultScore is returned for an empty history and used as the base for
	// unrecognized qualities.
	DefaultScore = 50

	minScore = 0
	maxScore = 100
)

var baseScores = map[models.Quality]int{
	models.QualityGood:    20,
	models.QualityMedium:  60,
	models.QualityHigh:    90,
	models.QualityDisease: 100,
}

var severities = map[models.Quality]models.Severity{
	models.QualityMedium:  models.SeverityMedium,
	models.QualityHigh:    models.SeverityHigh,
	models.QualityDisease: models.SeverityCritical,
}

func BaseScore(q models.Quality) int {
	if s, ok := baseScores[q]; ok {
		return s
	}
	return DefaultScore
}

// Weight is the linear recency weight of position i in a history of n.
func Weight(i, n int) int {
	if w := n - i; w > 1 {
		return w
	}
	return 1
}

// Score is the recency-weighted mean base score, or DefaultScore when tests is empty.
func Score(tests []models.WaterTest) int {
	score, _ := Evaluate(tests)
	return score
}

// Evaluate is Score with an explicit flag that is false when there was no data.
func Evaluate(tests []models.WaterTest) (int, bool) {
	n := len(tests)
	if n == 0 {
		return DefaultScore, false
	}

	var weighted, total int
	for i, t := range tests {
		w := Weight(i, n)
		weighted += w * BaseScore(t.Quality)
		total += w
	}

	score := int(math.Round(float64(weighted) / float64(total)))
	if score < minScore {
		score = minScore
	}
	if score > maxScore {
		score = maxScore
	}
	return score, true
}

// ContaminationHistory keeps the first MaxContaminationEvents non-good tests
// in input order, tagged with their severity.
func ContaminationHistory(tests []models.WaterTest) []models.ContaminationEvent {
	events := make([]models.ContaminationEvent, 0, MaxContaminationEvents)
	for _, t := range tests {
		if len(events) == MaxContaminationEvents {
			break
		}
		severity, ok := severities[t.Quality]
		if !ok {
			continue
		}
		events = append(events, models.ContaminationEvent{
			Date:     t.DateTime,
			Quality:  t.Quality,
			Location: t.Location,
			Notes:    t.Notes,
			Severity: severity,
		})
	}
	return events
}

// Level is the display band for a score.
func Level(score int) string {
	switch {
	case score <= 30:
		return "Low"
	case score <= 60:
		return "Medium"
	case score <= 85:
		return "High"
	default:
		return "Critical"
	}
}
