// Package detection turns metric samples into incidents via a simple
// threshold classifier.
package detection

import (
	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
)

// Ratio boundaries mapping threshold breach magnitude to anomaly severity.
const (
	criticalRatio = 3.0
	highRatio     = 1.5
)

// Sample is a single metric observation for a resource
type Sample struct {
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// Detector classifies metric samples against their thresholds
type Detector struct{}

// NewDetector creates a Detector
func NewDetector() *Detector {
	return &Detector{}
}

// Classify returns an anomaly for each sample exceeding its threshold,
// tagged with a severity derived from the breach ratio.
func (d *Detector) Classify(samples []Sample) []domain.Anomaly {
	var anomalies []domain.Anomaly
	for _, s := range samples {
		if s.Threshold <= 0 || s.Value <= s.Threshold {
			continue
		}
		ratio := s.Value / s.Threshold
		sev := domain.SeverityMedium
		switch {
		case ratio >= criticalRatio:
			sev = domain.SeverityCritical
		case ratio >= highRatio:
			sev = domain.SeverityHigh
		}
		anomalies = append(anomalies, domain.Anomaly{
			Metric:    s.Metric,
			Value:     s.Value,
			Threshold: s.Threshold,
			Severity:  sev,
		})
	}
	return anomalies
}

// Detect builds an incident for the resource if any sample breaches its
// threshold. Returns nil when everything is within bounds.
func (d *Detector) Detect(resource domain.Resource, samples []Sample) *domain.Incident {
	anomalies := d.Classify(samples)
	if len(anomalies) == 0 {
		return nil
	}
	return domain.NewIncident(resource, anomalies)
}
