package models

import "time"

type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type ContaminationEvent struct {
	Date     time.Time `json:"date"`
	Quality  Quality   `json:"quality"`
	Location string    `json:"location,omitempty"`
	Notes    string    `json:"notes,omitempty"`
	Severity Severity  `json:"severity"`
}

// HealthCard is the shareable per-waterbody aggregate. It is derived from
// the water tests of the same waterbody name and can be rebuilt at any time.
type HealthCard struct {
	ID                   string               `json:"id"`
	WaterbodyName        string               `json:"waterbodyName"`
	WaterbodyID          string               `json:"waterbodyId"`
	Location             string               `json:"location"`
	Latitude             *float64             `json:"latitude,omitempty"`
	Longitude            *float64             `json:"longitude,omitempty"`
	RiskScore            int                  `json:"riskScore"`
	RiskLevel            string               `json:"riskLevel"`
	LastTestedDate       *time.Time           `json:"lastTestedDate"`
	ContaminationHistory []ContaminationEvent `json:"contaminationHistory"`
	QRCode               string               `json:"qrCode"`
	CreatedAt            time.Time            `json:"createdAt"`
	UpdatedAt            time.Time            `json:"updatedAt"`
	IsDemo               bool                 `json:"isDemo,omitempty"`
}

// HasData is false when no water test contributed to the card.
func (c HealthCard) HasData() bool {
	return c.LastTestedDate != nil
}
