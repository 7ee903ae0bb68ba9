// Package comms handles stakeholder notifications across the incident
// lifecycle and produces post-mortems for resolved incidents.
package comms

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
	"github.com/Waryjustice/azure-incident-resolver/internal/notify"
	"github.com/Waryjustice/azure-incident-resolver/internal/observability"
)

// KnowledgeStore persists post-mortems for later retrieval.
type KnowledgeStore interface {
	SavePostMortem(ctx context.Context, pm *PostMortem) error
}

// Engine sends lifecycle notifications. Delivery is best effort: a
// failed send is logged and never fails the pipeline stage.
type Engine struct {
	notifier  notify.Notifier
	knowledge KnowledgeStore
	metrics   *observability.Metrics
}

func NewEngine(notifier notify.Notifier, knowledge KnowledgeStore, metrics *observability.Metrics) *Engine {
	return &Engine{notifier: notifier, knowledge: knowledge, metrics: metrics}
}

// HandlePhase dispatches the notification appropriate to the incident's
// current phase. Resolved incidents additionally get a post-mortem.
func (e *Engine) HandlePhase(ctx context.Context, incident *domain.Incident) {
	switch incident.Phase {
	case domain.PhaseDetected:
		e.send(ctx, formatDetection(incident))
	case domain.PhaseDiagnosed:
		e.send(ctx, formatDiagnosis(incident))
	case domain.PhaseResolved:
		e.send(ctx, formatResolution(incident))
	case domain.PhaseCommunicating:
		e.generatePostMortem(ctx, incident)
	case domain.PhaseFailed:
		e.Escalate(ctx, incident)
	}
}

// Escalate notifies the on-call channel that automation gave up.
func (e *Engine) Escalate(ctx context.Context, incident *domain.Incident) {
	log.Printf("[comms] escalating incident %s to on-call", incident.ID)
	e.send(ctx, formatEscalation(incident))
}

func (e *Engine) send(ctx context.Context, msg notify.Message) {
	if e.notifier == nil {
		log.Printf("[comms] no notifier configured, skipping %q", msg.Title)
		return
	}
	if err := e.notifier.Send(ctx, msg); err != nil {
		log.Printf("[comms] send %q failed: %v", msg.Title, err)
		e.recordNotification("failed")
		return
	}
	e.recordNotification("sent")
}

func (e *Engine) recordNotification(status string) {
	if e.metrics != nil {
		e.metrics.RecordNotification(status)
	}
}

func (e *Engine) generatePostMortem(ctx context.Context, incident *domain.Incident) {
	pm := BuildPostMortem(incident)

	if e.knowledge != nil {
		if err := e.knowledge.SavePostMortem(ctx, pm); err != nil {
			log.Printf("[comms] save post-mortem for %s failed: %v", incident.ID, err)
		}
	}

	e.send(ctx, formatPostMortem(pm))
}

func formatDetection(incident *domain.Incident) notify.Message {
	return notify.Message{
		Title: fmt.Sprintf("Incident Detected: %s", incident.ID),
		Body: fmt.Sprintf(
			"Severity: %s\nResource: %s\nAnomalies Detected: %d\n\nAutomated diagnosis in progress...",
			strings.ToUpper(string(incident.Severity)),
			incident.Resource.Type,
			len(incident.Anomalies),
		),
		Color: notify.ColorWarning,
	}
}

func formatDiagnosis(incident *domain.Incident) notify.Message {
	diag := incident.Diagnosis
	if diag == nil {
		return notify.Message{
			Title: fmt.Sprintf("Diagnosis Complete: %s", incident.ID),
			Body:  "No diagnosis details available.",
			Color: notify.ColorInfo,
		}
	}
	return notify.Message{
		Title: fmt.Sprintf("Diagnosis Complete: %s", incident.ID),
		Body: fmt.Sprintf(
			"Root Cause Identified\n\nIssue: %s\nConfidence: %d%%\nAffected Services: %s\n\nAutomated resolution in progress...",
			diag.RootCause.Description,
			diag.Confidence,
			strings.Join(diag.Impact.AffectedServices, ", "),
		),
		Color: notify.ColorInfo,
	}
}

func formatResolution(incident *domain.Incident) notify.Message {
	res := incident.Resolution
	if res == nil {
		return notify.Message{
			Title: fmt.Sprintf("Resolution Failed: %s", incident.ID),
			Body:  "No resolution details available.",
			Color: notify.ColorDanger,
		}
	}

	outcome := "Complete"
	color := notify.ColorGood
	if res.Status != domain.ResolutionResolved {
		outcome = "Failed"
		color = notify.ColorDanger
	}

	prURL := "Not created"
	if res.PR != nil {
		prURL = res.PR.URL
	}

	return notify.Message{
		Title: fmt.Sprintf("Resolution %s: %s", outcome, incident.ID),
		Body: fmt.Sprintf(
			"Status: %s\n\nImmediate Fix: %s\nPermanent Fix PR: %s\n\nPost-mortem will be generated shortly.",
			strings.ToUpper(string(res.Status)),
			res.ImmediateFix.Action,
			prURL,
		),
		Color: color,
	}
}

func formatEscalation(incident *domain.Incident) notify.Message {
	rootCause := "Unknown"
	impact := "Unknown"
	if incident.Diagnosis != nil {
		rootCause = incident.Diagnosis.RootCause.Description
		impact = incident.Diagnosis.Impact.BusinessImpact
	}
	attempted := "None"
	if incident.Resolution != nil {
		attempted = string(incident.Resolution.ImmediateFix.Action)
	}

	return notify.Message{
		Title: fmt.Sprintf("ESCALATION REQUIRED: %s", incident.ID),
		Body: fmt.Sprintf(
			"Automated resolution failed - manual intervention needed\n\n"+
				"Root Cause: %s\nImpact: %s\nAttempted Actions: %s\nStatus: %s\n\n"+
				"Please investigate immediately.",
			rootCause,
			impact,
			attempted,
			strings.ToUpper(string(incident.Phase)),
		),
		Color:    notify.ColorDanger,
		Priority: "high",
	}
}

func formatPostMortem(pm *PostMortem) notify.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n\nTimeline:\n", pm.Title)
	for _, event := range pm.Timeline {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", event.Time.Format("15:04:05"), event.Event, event.Stage)
	}
	if len(pm.LessonsLearned) > 0 {
		b.WriteString("\nLessons Learned:\n")
		for _, lesson := range pm.LessonsLearned {
			fmt.Fprintf(&b, "- %s\n", lesson)
		}
	}
	if len(pm.ActionItems) > 0 {
		b.WriteString("\nAction Items:\n")
		for _, item := range pm.ActionItems {
			fmt.Fprintf(&b, "- [%s] %s (%s)\n", item.Priority, item.Action, item.Owner)
		}
	}

	return notify.Message{
		Title: fmt.Sprintf("Post-Mortem: %s", pm.IncidentID),
		Body:  b.String(),
		Color: notify.ColorInfo,
	}
}
