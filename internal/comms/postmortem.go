package comms

import (
	"fmt"
	"time"

	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
)

// TimelineEvent is one entry in a post-mortem timeline.
type TimelineEvent struct {
	Time  time.Time `json:"time"`
	Event string    `json:"event"`
	Stage string    `json:"stage"`
}

// ActionItem is a follow-up task derived from an incident.
type ActionItem struct {
	Action   string `json:"action"`
	Owner    string `json:"owner"`
	Priority string `json:"priority"`
}

// PostMortem is the report assembled once an incident resolves.
type PostMortem struct {
	IncidentID     string             `json:"incident_id"`
	Title          string             `json:"title"`
	Timeline       []TimelineEvent    `json:"timeline"`
	RootCause      domain.RootCause   `json:"root_cause"`
	Impact         domain.Impact      `json:"impact"`
	Resolution     *domain.Resolution `json:"resolution,omitempty"`
	LessonsLearned []string           `json:"lessons_learned"`
	ActionItems    []ActionItem       `json:"action_items"`
	GeneratedAt    time.Time          `json:"generated_at"`
}

// BuildPostMortem assembles the report from whatever stages completed.
func BuildPostMortem(incident *domain.Incident) *PostMortem {
	pm := &PostMortem{
		IncidentID:  incident.ID,
		Title:       "Unknown issue",
		Timeline:    buildTimeline(incident),
		Resolution:  incident.Resolution,
		GeneratedAt: time.Now().UTC(),
	}
	if incident.Diagnosis != nil {
		pm.Title = incident.Diagnosis.RootCause.Description
		pm.RootCause = incident.Diagnosis.RootCause
		pm.Impact = incident.Diagnosis.Impact
	}
	pm.LessonsLearned = lessonsLearned(incident)
	pm.ActionItems = actionItems(incident)
	return pm
}

func buildTimeline(incident *domain.Incident) []TimelineEvent {
	timeline := []TimelineEvent{
		{Time: incident.DetectedAt, Event: "Incident detected", Stage: "detection"},
	}
	if incident.Diagnosis != nil {
		timeline = append(timeline, TimelineEvent{
			Time: incident.Diagnosis.DiagnosedAt, Event: "Root cause identified", Stage: "diagnosis",
		})
	}
	if incident.Resolution != nil {
		timeline = append(timeline, TimelineEvent{
			Time: incident.Resolution.ResolvedAt, Event: "Incident resolved", Stage: "resolution",
		})
	}
	return timeline
}

func lessonsLearned(incident *domain.Incident) []string {
	var lessons []string
	if len(incident.Anomalies) > 0 {
		first := incident.Anomalies[0]
		if first.Threshold > 0 {
			lessons = append(lessons, fmt.Sprintf(
				"%s reached %.1fx its threshold before detection fired", first.Metric, first.Value/first.Threshold))
		}
	}
	if incident.Severity == domain.SeverityCritical {
		lessons = append(lessons, "Monitoring alerts should trigger earlier for this resource")
	}
	if incident.Diagnosis != nil && len(incident.Diagnosis.SimilarIncidents) > 0 {
		lessons = append(lessons, fmt.Sprintf(
			"%d similar past incidents found - recurring pattern emerging", len(incident.Diagnosis.SimilarIncidents)))
	}
	return lessons
}

func actionItems(incident *domain.Incident) []ActionItem {
	if incident.Resolution == nil {
		return []ActionItem{{
			Action:   "Review incident manually and document findings",
			Owner:    "SRE Team",
			Priority: "high",
		}}
	}

	items := make([]ActionItem, 0, 2)
	switch incident.Resolution.Strategy.Permanent {
	case domain.PermanentConnectionPooling:
		items = append(items,
			ActionItem{Action: "Review and increase connection pool limits", Owner: "Backend Team", Priority: "high"},
			ActionItem{Action: "Implement connection pool monitoring dashboard", Owner: "SRE Team", Priority: "medium"},
		)
	case domain.PermanentFixMemoryLeak:
		items = append(items,
			ActionItem{Action: "Profile service memory usage and fix the leak", Owner: "Backend Team", Priority: "high"},
		)
	case domain.PermanentBackoffRetry:
		items = append(items,
			ActionItem{Action: "Add exponential backoff to upstream API clients", Owner: "Backend Team", Priority: "high"},
		)
	case domain.PermanentFixDeployment:
		items = append(items,
			ActionItem{Action: "Audit the deployment pipeline configuration", Owner: "Platform Team", Priority: "high"},
		)
	default:
		items = append(items,
			ActionItem{Action: "Create incident report and assign an owner", Owner: "SRE Team", Priority: "high"},
		)
	}

	if incident.Resolution.PR != nil {
		items = append(items, ActionItem{
			Action:   fmt.Sprintf("Review and merge fix PR %s", incident.Resolution.PR.URL),
			Owner:    "Backend Team",
			Priority: "high",
		})
	}
	return items
}
