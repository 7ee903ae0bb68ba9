package diagnosis

import (
	"fmt"

	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
)

// Context is the normalized incident summary used for similarity search
// and prompt construction.
type Context struct {
	ResourceType   string             `json:"resource_type"`
	ResourceName   string             `json:"resource_name"`
	AnomalyCount   int                `json:"anomaly_count"`
	AnomalyMetrics []string           `json:"anomaly_metrics"`
	PeakValues     map[string]float64 `json:"peak_values"`
	Thresholds     map[string]float64 `json:"thresholds"`
}

// ExtractContext derives the normalized summary from an incident. Pure and
// deterministic.
func ExtractContext(incident *domain.Incident) Context {
	c := Context{
		ResourceType: incident.Resource.Type,
		ResourceName: incident.Resource.Name,
		AnomalyCount: len(incident.Anomalies),
		PeakValues:   make(map[string]float64, len(incident.Anomalies)),
		Thresholds:   make(map[string]float64, len(incident.Anomalies)),
	}
	for _, a := range incident.Anomalies {
		c.AnomalyMetrics = append(c.AnomalyMetrics, a.Metric)
		if a.Value > c.PeakValues[a.Metric] {
			c.PeakValues[a.Metric] = a.Value
		}
		c.Thresholds[a.Metric] = a.Threshold
	}
	return c
}

// PatternAnalysis summarizes anomaly magnitudes for the prompt and evidence
type PatternAnalysis struct {
	ErrorPatterns    []string
	SuspiciousEvents []string
	CorrelationID    string
}

// AnalyzePatterns renders each anomaly as a threshold-ratio statement and
// flags critical/high metrics as suspicious.
func AnalyzePatterns(incident *domain.Incident) PatternAnalysis {
	analysis := PatternAnalysis{CorrelationID: incident.ID}
	for _, a := range incident.Anomalies {
		ratio := 0.0
		if a.Threshold > 0 {
			ratio = a.Value / a.Threshold
		}
		analysis.ErrorPatterns = append(analysis.ErrorPatterns,
			fmt.Sprintf("%s at %g (%.1fx threshold of %g)", a.Metric, a.Value, ratio, a.Threshold))
		if a.Severity == domain.SeverityCritical || a.Severity == domain.SeverityHigh {
			analysis.SuspiciousEvents = append(analysis.SuspiciousEvents, a.Metric)
		}
	}
	return analysis
}
