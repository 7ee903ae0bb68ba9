package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Incident severity levels
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Incident pipeline phases
type Phase string

const (
	PhaseDetected      Phase = "detected"
	PhaseDiagnosing    Phase = "diagnosing"
	PhaseDiagnosed     Phase = "diagnosed"
	PhaseResolving     Phase = "resolving"
	PhaseResolved      Phase = "resolved"
	PhaseCommunicating Phase = "communicating"
	PhaseCompleted     Phase = "completed"
	PhaseFailed        Phase = "failed"
)

// phaseOrder defines the forward progression of the pipeline.
// PhaseFailed sits outside the order and is reachable from any non-terminal phase.
var phaseOrder = map[Phase]int{
	PhaseDetected:      0,
	PhaseDiagnosing:    1,
	PhaseDiagnosed:     2,
	PhaseResolving:     3,
	PhaseResolved:      4,
	PhaseCommunicating: 5,
	PhaseCompleted:     6,
}

// IsTerminal reports whether the phase ends the incident lifecycle.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// CanTransition reports whether a phase change is legal: strictly forward
// along the pipeline, or sideways into failed from any non-terminal phase.
func CanTransition(from, to Phase) bool {
	if from.IsTerminal() {
		return false
	}
	if to == PhaseFailed {
		return true
	}
	fromIdx, ok := phaseOrder[from]
	if !ok {
		return false
	}
	toIdx, ok := phaseOrder[to]
	if !ok {
		return false
	}
	return toIdx > fromIdx
}

// Resource identifies the infrastructure unit affected by an incident
type Resource struct {
	Type string `json:"type" binding:"required"`
	ID   string `json:"id" binding:"required"`
	Name string `json:"name"`
}

// Anomaly is a single metric threshold breach
type Anomaly struct {
	Metric    string   `json:"metric" binding:"required"`
	Value     float64  `json:"value"`
	Threshold float64  `json:"threshold"`
	Severity  Severity `json:"severity"`
}

// Incident is the root aggregate tracked through the pipeline
type Incident struct {
	ID            string      `json:"id"`
	Resource      Resource    `json:"resource"`
	Anomalies     []Anomaly   `json:"anomalies"`
	Severity      Severity    `json:"severity"`
	Phase         Phase       `json:"phase"`
	Diagnosis     *Diagnosis  `json:"diagnosis,omitempty"`
	Resolution    *Resolution `json:"resolution,omitempty"`
	FailureReason string      `json:"failure_reason,omitempty"`
	DetectedAt    time.Time   `json:"detected_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
}

// NewIncident builds an incident in the detected phase. The ID is
// time-ordered (UTC timestamp prefix) with a short random suffix for
// uniqueness within a second.
func NewIncident(resource Resource, anomalies []Anomaly) *Incident {
	now := time.Now().UTC()
	return &Incident{
		ID:         fmt.Sprintf("INC-%s-%s", now.Format("20060102150405"), uuid.New().String()[:8]),
		Resource:   resource,
		Anomalies:  anomalies,
		Severity:   ClassifySeverity(anomalies),
		Phase:      PhaseDetected,
		DetectedAt: now,
	}
}

// Validate checks that an incident is actionable
func (i *Incident) Validate() error {
	if strings.TrimSpace(i.Resource.Type) == "" || strings.TrimSpace(i.Resource.ID) == "" {
		return fmt.Errorf("%w: resource type and id are required", ErrValidation)
	}
	if len(i.Anomalies) == 0 {
		return fmt.Errorf("%w: at least one anomaly is required", ErrValidation)
	}
	for _, a := range i.Anomalies {
		if strings.TrimSpace(a.Metric) == "" {
			return fmt.Errorf("%w: anomaly metric is required", ErrValidation)
		}
	}
	return nil
}

// Clone returns a deep copy of the incident. Accessors that hand
// incidents outside the pipeline return clones so callers never share
// memory with an incident still being mutated by a stage.
func (i *Incident) Clone() *Incident {
	if i == nil {
		return nil
	}
	out := *i
	out.Anomalies = append([]Anomaly(nil), i.Anomalies...)
	if i.CompletedAt != nil {
		completed := *i.CompletedAt
		out.CompletedAt = &completed
	}
	out.Diagnosis = i.Diagnosis.clone()
	out.Resolution = i.Resolution.clone()
	return &out
}

// Advance moves the incident to the next phase, enforcing forward-only
// transitions. Terminal phases stamp CompletedAt exactly once.
func (i *Incident) Advance(to Phase) error {
	if !CanTransition(i.Phase, to) {
		return fmt.Errorf("%w: illegal transition %s -> %s for %s", ErrValidation, i.Phase, to, i.ID)
	}
	i.Phase = to
	if to.IsTerminal() && i.CompletedAt == nil {
		now := time.Now().UTC()
		i.CompletedAt = &now
	}
	return nil
}
