package detection

import (
	"context"
	"log"
	"time"

	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
)

// SampleSource supplies current metric readings for monitored resources.
// Concrete implementations query a metrics backend; tests supply fakes.
type SampleSource interface {
	Resources(ctx context.Context) ([]domain.Resource, error)
	Samples(ctx context.Context, resource domain.Resource) ([]Sample, error)
}

// Pipeline accepts detected incidents for processing
type Pipeline interface {
	Submit(ctx context.Context, incident *domain.Incident) error
}

// Monitor polls a sample source on an interval and submits incidents
// for resources with threshold breaches.
type Monitor struct {
	detector *Detector
	source   SampleSource
	pipeline Pipeline
	interval time.Duration
}

// NewMonitor creates a Monitor
func NewMonitor(detector *Detector, source SampleSource, pipeline Pipeline, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Monitor{
		detector: detector,
		source:   source,
		pipeline: pipeline,
		interval: interval,
	}
}

// Run polls until the context is cancelled
func (m *Monitor) Run(ctx context.Context) {
	log.Printf("Detection monitor starting (interval: %s)", m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Detection monitor stopped")
			return
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

func (m *Monitor) checkAll(ctx context.Context) {
	resources, err := m.source.Resources(ctx)
	if err != nil {
		log.Printf("Failed to list monitored resources: %v", err)
		return
	}

	for _, res := range resources {
		samples, err := m.source.Samples(ctx, res)
		if err != nil {
			log.Printf("Failed to sample %s %s: %v", res.Type, res.ID, err)
			continue
		}
		incident := m.detector.Detect(res, samples)
		if incident == nil {
			continue
		}
		log.Printf("Incident detected: %s (%s %s, %d anomalies, severity %s)",
			incident.ID, res.Type, res.ID, len(incident.Anomalies), incident.Severity)
		if err := m.pipeline.Submit(ctx, incident); err != nil {
			log.Printf("Failed to submit incident %s: %v", incident.ID, err)
		}
	}
}
