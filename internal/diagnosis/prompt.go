package diagnosis

import (
	"fmt"
	"strings"

	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
)

// BuildPrompt assembles the structured inference prompt from the incident,
// its normalized context, the anomaly analysis and any similar incidents.
func BuildPrompt(incident *domain.Incident, ctx Context, similar []domain.SimilarIncident, analysis PatternAnalysis) string {
	var b strings.Builder

	fmt.Fprintf(&b, "INCIDENT: %s\n", incident.ID)
	fmt.Fprintf(&b, "SEVERITY: %s\n", strings.ToUpper(string(incident.Severity)))
	fmt.Fprintf(&b, "RESOURCE: %s - %s\n\n", ctx.ResourceType, ctx.ResourceName)

	b.WriteString("ANOMALIES DETECTED:\n")
	for _, p := range analysis.ErrorPatterns {
		fmt.Fprintf(&b, "  - %s\n", p)
	}

	b.WriteString("\nPEAK VALUES vs THRESHOLDS:\n")
	for _, metric := range ctx.AnomalyMetrics {
		fmt.Fprintf(&b, "  %s: %g (threshold %g)\n", metric, ctx.PeakValues[metric], ctx.Thresholds[metric])
	}

	if len(similar) > 0 {
		b.WriteString("\nSIMILAR PAST INCIDENTS:\n")
		limit := len(similar)
		if limit > 2 {
			limit = 2
		}
		for _, s := range similar[:limit] {
			fmt.Fprintf(&b, "  - %s (similarity: %.0f%%)\n", s.RootCause.Description, s.Similarity*100)
		}
	}

	b.WriteString("\nBased on this data, identify the root cause.")
	return b.String()
}
