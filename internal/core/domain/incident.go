package domain

import "time"

type IncidentSeverity string

const (
	SeverityLow      IncidentSeverity = "low"
	SeverityMedium   IncidentSeverity = "medium"
	SeverityHigh     IncidentSeverity = "high"
	SeverityCritical IncidentSeverity = "critical"
)

type IncidentStatus string

const (
	IncidentDetected      IncidentStatus = "detected"
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentResponding    IncidentStatus = "responding"
	IncidentResolved      IncidentStatus = "resolved"
	IncidentPostMortem    IncidentStatus = "post_mortem"
)

var incidentOrder = []IncidentStatus{
	IncidentDetected,
	IncidentInvestigating,
	IncidentResponding,
	IncidentResolved,
	IncidentPostMortem,
}

func incidentIndex(s IncidentStatus) int {
	for i, st := range incidentOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// IncidentCanTransition permits only forward movement through the incident
// lifecycle; reopening is an explicit separate operation.
func IncidentCanTransition(from, to IncidentStatus) bool {
	fi, ti := incidentIndex(from), incidentIndex(to)
	return fi >= 0 && ti > fi
}

type TimelineEntry struct {
	At     time.Time `json:"at"`
	Event  string    `json:"event"`
	Actor  string    `json:"actor,omitempty"`
	Action string    `json:"action,omitempty"`
}

type Resolution struct {
	RootCause string   `json:"root_cause"`
	Fixes     []string `json:"fixes,omitempty"`
}

// Incident tracks an operational failure. The timeline is append-only;
// acknowledgedAt and resolvedAt are each set at most once.
type Incident struct {
	ID             string           `json:"id"`
	OrgID          string           `json:"org_id"`
	Type           string           `json:"type"`
	Summary        string           `json:"summary,omitempty"`
	Severity       IncidentSeverity `json:"severity"`
	Status         IncidentStatus   `json:"status"`
	Timeline       []TimelineEntry  `json:"timeline"`
	Resolution     *Resolution      `json:"resolution,omitempty"`
	DetectedAt     time.Time        `json:"detected_at"`
	AcknowledgedAt *time.Time       `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time       `json:"resolved_at,omitempty"`
}
