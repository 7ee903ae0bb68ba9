package domain

import "time"

// RootCauseType is a closed enumeration of diagnosable root causes.
// The fallback rule table and the resolution strategy table both key on it.
type RootCauseType string

const (
	RootCauseConnectionExhaustion RootCauseType = "database_connection_exhaustion"
	RootCauseMemoryLeak           RootCauseType = "memory_leak"
	RootCauseElevatedErrorRate    RootCauseType = "elevated_error_rate"
	RootCauseCPUSpike             RootCauseType = "cpu_spike"
	RootCauseDiskExhaustion       RootCauseType = "disk_space_exhaustion"
	RootCauseSlowQuery            RootCauseType = "slow_database_query"
	RootCauseRateLimitBreach      RootCauseType = "api_rate_limit_breach"
	RootCauseFailedDeployment     RootCauseType = "failed_deployment"
	RootCauseUnknown              RootCauseType = "unknown_anomaly"
)

// DiagnosisSource records which path produced the root cause
type DiagnosisSource string

const (
	DiagnosisSourceAI    DiagnosisSource = "ai"
	DiagnosisSourceRules DiagnosisSource = "rules"
)

// RootCause is the diagnosed explanation for an incident's anomalies
type RootCause struct {
	Type              RootCauseType `json:"type"`
	Description       string        `json:"description"`
	AffectedComponent string        `json:"affected_component"`
	Evidence          []string      `json:"evidence"`
}

// Impact describes the assessed blast radius of an incident
type Impact struct {
	AffectedServices       []string `json:"affected_services"`
	EstimatedUsersAffected int      `json:"estimated_users_affected"`
	BusinessImpact         string   `json:"business_impact"`
	SLABreach              bool     `json:"sla_breach"`
}

// SimilarIncident is a past-incident match from the similarity search
type SimilarIncident struct {
	IncidentID     string    `json:"incident_id"`
	Similarity     float64   `json:"similarity"`
	RootCause      RootCause `json:"root_cause"`
	ResolutionHint string    `json:"resolution_hint,omitempty"`
}

// Diagnosis is produced exactly once per incident by the diagnosis engine
// and is immutable once attached to the incident.
type Diagnosis struct {
	IncidentID       string            `json:"incident_id"`
	RootCause        RootCause         `json:"root_cause"`
	Impact           Impact            `json:"impact"`
	Confidence       int               `json:"confidence"`
	SimilarIncidents []SimilarIncident `json:"similar_incidents"`
	Source           DiagnosisSource   `json:"source"`
	DiagnosedAt      time.Time         `json:"diagnosed_at"`
}

func (d *Diagnosis) clone() *Diagnosis {
	if d == nil {
		return nil
	}
	out := *d
	out.RootCause.Evidence = append([]string(nil), d.RootCause.Evidence...)
	out.Impact.AffectedServices = append([]string(nil), d.Impact.AffectedServices...)
	out.SimilarIncidents = append([]SimilarIncident(nil), d.SimilarIncidents...)
	for i := range out.SimilarIncidents {
		out.SimilarIncidents[i].RootCause.Evidence = append([]string(nil), out.SimilarIncidents[i].RootCause.Evidence...)
	}
	return &out
}
