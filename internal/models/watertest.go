package models

import (
	"strings"
	"time"
)

type Quality string

const (
	QualityGood   Quality = "good"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
	// QualityDisease is scored by the health card read path but never accepted at ingestion.
	QualityDisease Quality = "disease"
)

// ParseQuality lower-cases raw and reports whether it is an ingestible quality.
func ParseQuality(raw string) (Quality, bool) {
	q := Quality(strings.ToLower(strings.TrimSpace(raw)))
	switch q {
	case QualityGood, QualityMedium, QualityHigh:
		return q, true
	}
	return q, false
}

// WaterTest is one submitted water-quality observation.
type WaterTest struct {
	ID            string    `json:"id"`
	WaterbodyName string    `json:"waterbodyName"`
	WaterbodyID   *string   `json:"waterbodyId,omitempty"`
	DateTime      time.Time `json:"dateTime"`
	Location      string    `json:"location"`
	Latitude      *float64  `json:"latitude,omitempty"`
	Longitude     *float64  `json:"longitude,omitempty"`
	PhotoURL      string    `json:"photoUrl"`
	Notes         string    `json:"notes"`
	Quality       Quality   `json:"quality"`
	ASHAID        string    `json:"ashaId"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
