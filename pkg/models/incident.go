// Package models holds the data types shared across the integrity engine
// and its external adapters.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Risk classifies the severity/kind of an Incident.
type Risk string

const (
	RiskInit     Risk = "INIT"
	RiskCreated  Risk = "CREATED"
	RiskModified Risk = "MODIFIED"
	RiskMoved    Risk = "MOVED"
	RiskDeleted  Risk = "DELETED"
	RiskRecovery Risk = "RECOVERY"
	RiskWarning  Risk = "WARNING"
)

// Severity buckets a Risk for sinks that want a coarser signal (e.g. a
// notifier that only wants to page on RECOVERY/WARNING).
func (r Risk) Severity() string {
	switch r {
	case RiskRecovery, RiskWarning:
		return "critical"
	case RiskModified, RiskMoved, RiskDeleted:
		return "warning"
	default:
		return "info"
	}
}

// Incident is an append-only record of something the engine observed or
// did. Path is the absolute path the incident concerns; it may be empty
// for incidents that aren't about a single file.
type Incident struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Risk      Risk      `json:"risk"`
	Details   string    `json:"details"`
	Path      string    `json:"path,omitempty"`
}

// NewIncident stamps a fresh Incident with a generated ID and the current
// time.
func NewIncident(risk Risk, path, details string) Incident {
	return Incident{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Risk:      risk,
		Details:   details,
		Path:      path,
	}
}
