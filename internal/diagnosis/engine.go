// Package diagnosis determines incident root causes: context extraction,
// similarity search over recent incidents, AI inference with a rule-based
// fallback, and confidence scoring.
package diagnosis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
	"github.com/Waryjustice/azure-incident-resolver/internal/reasoner"
)

// Confidence model constants, preserved from the original heuristics.
const (
	baseConfidence     = 60
	similarBoost       = 20
	evidenceBoost      = 20
	evidenceBoostCount = 3
	confidenceCap      = 95
)

// Engine runs the diagnosis stage. Stateless per invocation except for the
// bounded incident history used by the similarity search. Reentrant across
// incidents.
type Engine struct {
	reasoner reasoner.Reasoner
	history  *History
}

// NewEngine creates a diagnosis engine. A nil reasoner means every diagnosis
// takes the rule-based path.
func NewEngine(r reasoner.Reasoner, history *History) *Engine {
	if history == nil {
		history = NewHistory(DefaultHistorySize)
	}
	return &Engine{reasoner: r, history: history}
}

// Diagnose produces the diagnosis for an incident. AI inference failures and
// timeouts degrade to the rule table; only a malformed incident aborts.
func (e *Engine) Diagnose(ctx context.Context, incident *domain.Incident) (*domain.Diagnosis, error) {
	if err := incident.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDiagnosisFailed, err)
	}

	diagCtx := ExtractContext(incident)
	similar := e.history.Search(diagCtx)
	analysis := AnalyzePatterns(incident)

	rootCause, source := e.determineRootCause(ctx, incident, diagCtx, similar, analysis)

	diagnosis := &domain.Diagnosis{
		IncidentID:       incident.ID,
		RootCause:        *rootCause,
		Impact:           assessImpact(incident, rootCause),
		Confidence:       ScoreConfidence(*rootCause, similar),
		SimilarIncidents: similar,
		Source:           source,
		DiagnosedAt:      time.Now().UTC(),
	}

	e.history.Append(incident.ID, *rootCause, diagCtx)

	log.Printf("Diagnosis complete for %s: %s (confidence %d%%, source %s)",
		incident.ID, rootCause.Description, diagnosis.Confidence, source)
	return diagnosis, nil
}

func (e *Engine) determineRootCause(
	ctx context.Context,
	incident *domain.Incident,
	diagCtx Context,
	similar []domain.SimilarIncident,
	analysis PatternAnalysis,
) (*domain.RootCause, domain.DiagnosisSource) {
	if e.reasoner != nil {
		prompt := BuildPrompt(incident, diagCtx, similar, analysis)
		rc, err := e.reasoner.Infer(ctx, prompt)
		if err == nil {
			return rc, domain.DiagnosisSourceAI
		}
		log.Printf("AI inference failed for %s, using rule fallback: %v", incident.ID, err)
	}

	rc := RuleBasedRootCause(incident)
	return &rc, domain.DiagnosisSourceRules
}

// ScoreConfidence computes diagnosis confidence: 60 base, +20 when similar
// incidents exist, +20 when the root cause carries three or more evidence
// items, capped at 95. Pure function.
func ScoreConfidence(rootCause domain.RootCause, similar []domain.SimilarIncident) int {
	confidence := baseConfidence
	if len(similar) > 0 {
		confidence += similarBoost
	}
	if len(rootCause.Evidence) >= evidenceBoostCount {
		confidence += evidenceBoost
	}
	if confidence > confidenceCap {
		confidence = confidenceCap
	}
	return confidence
}

// assessImpact derives the impact record from incident severity and the
// diagnosed component.
func assessImpact(incident *domain.Incident, rootCause *domain.RootCause) domain.Impact {
	services := []string{rootCause.AffectedComponent}
	if incident.Resource.Name != "" && incident.Resource.Name != rootCause.AffectedComponent {
		services = append(services, incident.Resource.Name)
	}
	return domain.Impact{
		AffectedServices: services,
		BusinessImpact:   string(incident.Severity),
		SLABreach:        incident.Severity == domain.SeverityCritical,
	}
}
