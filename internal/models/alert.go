package models

import "time"

type AlertKind string

const (
	// AlertKindLeader is addressed to a single leader.
	AlertKindLeader AlertKind = "leader"
	// AlertKindGlobal is a single system-wide notice.
	AlertKindGlobal AlertKind = "global"
)

type Alert struct {
	ID          string    `json:"id"`
	Kind        AlertKind `json:"kind"`
	LeaderID    *string   `json:"leaderId,omitempty"`
	Message     string    `json:"message"`
	WaterTestID string    `json:"waterTestId"`
	CreatedAt   time.Time `json:"createdAt"`
}

type AlertStats struct {
	TotalLeaderAlerts int `json:"totalLeaderAlerts"`
	TotalGlobalAlerts int `json:"totalGlobalAlerts"`
	TotalAlerts       int `json:"totalAlerts"`
	RecentAlerts      int `json:"recentAlerts"`
}
