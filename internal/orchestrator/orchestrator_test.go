package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Waryjustice/azure-incident-resolver/internal/bus"
	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDiagnoser struct {
	err   error
	calls int
}

func (s *stubDiagnoser) Diagnose(_ context.Context, incident *domain.Incident) (*domain.Diagnosis, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Diagnosis{
		IncidentID: incident.ID,
		RootCause: domain.RootCause{
			Type:        domain.RootCauseConnectionExhaustion,
			Description: "pool exhausted",
		},
		Confidence:  80,
		Source:      domain.DiagnosisSourceRules,
		DiagnosedAt: time.Now().UTC(),
	}, nil
}

type stubResolver struct {
	err     error
	success bool
	calls   int
}

func (s *stubResolver) Resolve(_ context.Context, incident *domain.Incident) (*domain.Resolution, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	res := &domain.Resolution{
		IncidentID:   incident.ID,
		Strategy:     domain.Strategy{Immediate: domain.ActionScaleDatabaseTier, Permanent: domain.PermanentConnectionPooling},
		ImmediateFix: domain.ImmediateFix{Success: s.success, Action: domain.ActionScaleDatabaseTier},
		Status:       domain.ResolutionFailed,
		ResolvedAt:   time.Now().UTC(),
	}
	if s.success {
		res.Status = domain.ResolutionResolved
	} else {
		res.ImmediateFix.Error = "scaling API unavailable"
	}
	return res, nil
}

type stubComms struct {
	mu          sync.Mutex
	phases      []domain.Phase
	escalations int
}

func (s *stubComms) HandlePhase(_ context.Context, incident *domain.Incident) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phases = append(s.phases, incident.Phase)
}

func (s *stubComms) Escalate(_ context.Context, _ *domain.Incident) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escalations++
}

func criticalIncident() *domain.Incident {
	return domain.NewIncident(
		domain.Resource{Type: "Database", ID: "db-orders", Name: "orders-db"},
		[]domain.Anomaly{{Metric: "CONNECTION_COUNT", Value: 500, Threshold: 100, Severity: domain.SeverityCritical}},
	)
}

func TestHandleIncidentCompletesSuccessfully(t *testing.T) {
	comms := &stubComms{}
	orch := New(&stubDiagnoser{}, &stubResolver{success: true}, comms, nil, nil)

	inc := criticalIncident()
	require.NoError(t, orch.HandleIncident(context.Background(), inc))

	assert.Equal(t, domain.PhaseCompleted, inc.Phase)
	assert.Equal(t, domain.SeverityCritical, inc.Severity)
	require.NotNil(t, inc.Diagnosis)
	assert.Equal(t, domain.RootCauseConnectionExhaustion, inc.Diagnosis.RootCause.Type)
	require.NotNil(t, inc.Resolution)
	assert.Equal(t, domain.ResolutionResolved, inc.Resolution.Status)
	require.NotNil(t, inc.CompletedAt)

	assert.Empty(t, orch.Active())
	require.Len(t, orch.History(0), 1)
	assert.Equal(t, 0, comms.escalations)
	assert.Equal(t, []domain.Phase{
		domain.PhaseDetected, domain.PhaseDiagnosed, domain.PhaseResolved, domain.PhaseCommunicating,
	}, comms.phases)
}

func TestHandleIncidentDiagnosisFailureEscalatesOnce(t *testing.T) {
	comms := &stubComms{}
	resolver := &stubResolver{success: true}
	orch := New(&stubDiagnoser{err: domain.ErrDiagnosisFailed}, resolver, comms, nil, nil)

	inc := criticalIncident()
	err := orch.HandleIncident(context.Background(), inc)
	require.Error(t, err)

	assert.Equal(t, domain.PhaseFailed, inc.Phase)
	assert.Contains(t, inc.FailureReason, "diagnosis_failed")
	assert.Equal(t, 1, comms.escalations)
	assert.Equal(t, 0, resolver.calls)
	assert.Empty(t, orch.Active())
	assert.Len(t, orch.History(0), 1)
	require.NotNil(t, inc.CompletedAt)
}

func TestHandleIncidentFailedImmediateFixEscalatesOnce(t *testing.T) {
	comms := &stubComms{}
	orch := New(&stubDiagnoser{}, &stubResolver{success: false}, comms, nil, nil)

	inc := criticalIncident()
	err := orch.HandleIncident(context.Background(), inc)
	require.Error(t, err)

	assert.Equal(t, domain.PhaseFailed, inc.Phase)
	assert.Contains(t, inc.FailureReason, "resolution_failed")
	assert.Equal(t, 1, comms.escalations)
	// the failed resolution attempt stays attached for the escalation context
	require.NotNil(t, inc.Resolution)
	assert.Equal(t, domain.ResolutionFailed, inc.Resolution.Status)
	assert.Len(t, orch.History(0), 1)
}

func TestHandleIncidentDuplicateIDIsIgnored(t *testing.T) {
	diagnoser := &stubDiagnoser{}
	orch := New(diagnoser, &stubResolver{success: true}, &stubComms{}, nil, nil)

	inc := criticalIncident()
	require.NoError(t, orch.HandleIncident(context.Background(), inc))
	require.NoError(t, orch.HandleIncident(context.Background(), inc))

	assert.Equal(t, 1, diagnoser.calls)
	assert.Len(t, orch.History(0), 1)
}

func TestGetFindsActiveAndHistoricalIncidents(t *testing.T) {
	orch := New(&stubDiagnoser{}, &stubResolver{success: true}, &stubComms{}, nil, nil)

	inc := criticalIncident()
	require.NoError(t, orch.HandleIncident(context.Background(), inc))

	found, err := orch.Get(inc.ID)
	require.NoError(t, err)
	assert.Equal(t, inc.ID, found.ID)

	_, err = orch.Get("INC-missing")
	assert.ErrorIs(t, err, domain.ErrIncidentNotFound)
}

func TestStats(t *testing.T) {
	orch := New(&stubDiagnoser{}, &stubResolver{success: true}, &stubComms{}, nil, nil)

	require.NoError(t, orch.HandleIncident(context.Background(), criticalIncident()))

	stats := orch.Stats()
	assert.Equal(t, 0, stats.ActiveIncidents)
	assert.Equal(t, 1, stats.TotalIncidents)
	assert.Equal(t, 1, stats.ResolvedIncidents)
	assert.InDelta(t, 100.0, stats.ResolutionRate, 0.01)
}

func TestStatsCountsFailuresAgainstRate(t *testing.T) {
	orch := New(&stubDiagnoser{err: errors.New("boom")}, &stubResolver{}, &stubComms{}, nil, nil)

	_ = orch.HandleIncident(context.Background(), criticalIncident())

	stats := orch.Stats()
	assert.Equal(t, 1, stats.TotalIncidents)
	assert.Equal(t, 0, stats.ResolvedIncidents)
	assert.InDelta(t, 0.0, stats.ResolutionRate, 0.01)
}

func TestHistoryLimit(t *testing.T) {
	orch := New(&stubDiagnoser{}, &stubResolver{success: true}, &stubComms{}, nil, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, orch.HandleIncident(context.Background(), criticalIncident()))
	}

	assert.Len(t, orch.History(3), 3)
	assert.Len(t, orch.History(0), 5)
	assert.Len(t, orch.History(100), 5)
}

func TestQueuePipelineCompletesIncident(t *testing.T) {
	comms := &stubComms{}
	core := New(&stubDiagnoser{}, &stubResolver{success: true}, comms, nil, nil)
	pipeline := NewQueuePipeline(core, bus.NewChannelBus())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pipeline.Run(ctx)

	inc := criticalIncident()
	require.NoError(t, pipeline.Submit(ctx, inc))

	require.Eventually(t, func() bool {
		return len(core.History(0)) == 1
	}, 3*time.Second, 20*time.Millisecond)

	done := core.History(0)[0]
	assert.Equal(t, domain.PhaseCompleted, done.Phase)
	require.NotNil(t, done.Resolution)
	assert.Equal(t, domain.ResolutionResolved, done.Resolution.Status)
}

func TestQueuePipelineDuplicateSubmitIsIdempotent(t *testing.T) {
	diagnoser := &stubDiagnoser{}
	core := New(diagnoser, &stubResolver{success: true}, &stubComms{}, nil, nil)
	pipeline := NewQueuePipeline(core, bus.NewChannelBus())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pipeline.Run(ctx)

	inc := criticalIncident()
	require.NoError(t, pipeline.Submit(ctx, inc))
	require.NoError(t, pipeline.Submit(ctx, inc))

	require.Eventually(t, func() bool {
		return len(core.History(0)) == 1
	}, 3*time.Second, 20*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, diagnoser.calls)
	assert.Len(t, core.History(0), 1)
}

func TestQueuePipelineFailureEscalates(t *testing.T) {
	comms := &stubComms{}
	core := New(&stubDiagnoser{}, &stubResolver{success: false}, comms, nil, nil)
	pipeline := NewQueuePipeline(core, bus.NewChannelBus())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pipeline.Run(ctx)

	require.NoError(t, pipeline.Submit(ctx, criticalIncident()))

	require.Eventually(t, func() bool {
		return len(core.History(0)) == 1
	}, 3*time.Second, 20*time.Millisecond)

	done := core.History(0)[0]
	assert.Equal(t, domain.PhaseFailed, done.Phase)
	comms.mu.Lock()
	assert.Equal(t, 1, comms.escalations)
	comms.mu.Unlock()
}

// flakyBus fails the first publishes to one topic and delegates the
// rest, simulating a broker outage between stage output and ack.
type flakyBus struct {
	bus.Bus
	mu       sync.Mutex
	topic    string
	failures int
}

func (f *flakyBus) Publish(ctx context.Context, topic, incidentID string, payload any) error {
	f.mu.Lock()
	if topic == f.topic && f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return errors.New("broker unavailable")
	}
	f.mu.Unlock()
	return f.Bus.Publish(ctx, topic, incidentID, payload)
}

func TestQueuePipelineRecoversWhenHandOffPublishFails(t *testing.T) {
	core := New(&stubDiagnoser{}, &stubResolver{success: true}, &stubComms{}, nil, nil)
	flaky := &flakyBus{Bus: bus.NewChannelBus(), topic: bus.TopicIncidentDiagnosed, failures: 1}
	pipeline := NewQueuePipeline(core, flaky)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pipeline.Run(ctx)

	require.NoError(t, pipeline.Submit(ctx, criticalIncident()))

	// the redelivered detected message must re-forward the diagnosed
	// hand-off instead of acking the duplicate away
	require.Eventually(t, func() bool {
		return len(core.History(0)) == 1
	}, 3*time.Second, 20*time.Millisecond)

	done := core.History(0)[0]
	assert.Equal(t, domain.PhaseCompleted, done.Phase)
	assert.Empty(t, core.Active())
}

func TestQueuePipelineResumesDiagnosedHandOffFromPayload(t *testing.T) {
	resolver := &stubResolver{success: true}
	core := New(&stubDiagnoser{}, resolver, &stubComms{}, nil, nil)
	b := bus.NewChannelBus()
	pipeline := NewQueuePipeline(core, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pipeline.Run(ctx)

	// a diagnosed hand-off produced by another worker process; this
	// core has never seen the incident
	inc := criticalIncident()
	require.NoError(t, inc.Advance(domain.PhaseDiagnosing))
	inc.Diagnosis = &domain.Diagnosis{
		IncidentID:  inc.ID,
		RootCause:   domain.RootCause{Type: domain.RootCauseConnectionExhaustion, Description: "pool exhausted"},
		Confidence:  80,
		Source:      domain.DiagnosisSourceRules,
		DiagnosedAt: time.Now().UTC(),
	}
	require.NoError(t, inc.Advance(domain.PhaseDiagnosed))
	require.NoError(t, b.Publish(ctx, bus.TopicIncidentDiagnosed, inc.ID, inc))

	require.Eventually(t, func() bool {
		return len(core.History(0)) == 1
	}, 3*time.Second, 20*time.Millisecond)

	done := core.History(0)[0]
	assert.Equal(t, domain.PhaseCompleted, done.Phase)
	require.NotNil(t, done.Resolution)
	assert.Equal(t, 1, resolver.calls)
}

// blockingDiagnoser parks the pipeline inside the diagnosis stage until
// released, keeping the incident in the active table.
type blockingDiagnoser struct {
	inner   stubDiagnoser
	started chan struct{}
	release chan struct{}
}

func (b *blockingDiagnoser) Diagnose(ctx context.Context, incident *domain.Incident) (*domain.Diagnosis, error) {
	close(b.started)
	<-b.release
	return b.inner.Diagnose(ctx, incident)
}

func TestAccessorsReturnDetachedCopies(t *testing.T) {
	diagnoser := &blockingDiagnoser{started: make(chan struct{}), release: make(chan struct{})}
	orch := New(diagnoser, &stubResolver{success: true}, &stubComms{}, nil, nil)

	inc := criticalIncident()
	require.NoError(t, orch.Submit(context.Background(), inc))
	<-diagnoser.started

	active := orch.Active()
	require.Len(t, active, 1)
	assert.NotSame(t, inc, active[0])

	// mutating the copy must not leak into the pipeline's incident
	active[0].Phase = domain.PhaseFailed
	active[0].Anomalies[0].Metric = "TAMPERED"

	got, err := orch.Get(inc.ID)
	require.NoError(t, err)
	assert.NotSame(t, inc, got)
	assert.Equal(t, domain.PhaseDiagnosing, got.Phase)
	assert.Equal(t, "CONNECTION_COUNT", got.Anomalies[0].Metric)

	close(diagnoser.release)
	require.Eventually(t, func() bool {
		return len(orch.History(0)) == 1
	}, 3*time.Second, 20*time.Millisecond)

	done := orch.History(0)[0]
	require.NotNil(t, done.Resolution)
	done.Resolution.Status = domain.ResolutionFailed
	again, err := orch.Get(inc.ID)
	require.NoError(t, err)
	require.NotNil(t, again.Resolution)
	assert.Equal(t, domain.ResolutionResolved, again.Resolution.Status)
}

func TestConcurrentReadsWhileIncidentsProgress(t *testing.T) {
	orch := New(&stubDiagnoser{}, &stubResolver{success: true}, &stubComms{}, nil, nil)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for _, incident := range orch.Active() {
					if _, err := json.Marshal(incident); err != nil {
						t.Error(err)
						return
					}
				}
				if _, err := json.Marshal(orch.History(0)); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}

	const total = 20
	for i := 0; i < total; i++ {
		require.NoError(t, orch.Submit(context.Background(), criticalIncident()))
	}
	require.Eventually(t, func() bool {
		return len(orch.History(0)) == total
	}, 5*time.Second, 20*time.Millisecond)

	close(stop)
	wg.Wait()
}

func TestSubmitRejectsInvalidIncident(t *testing.T) {
	orch := New(&stubDiagnoser{}, &stubResolver{success: true}, &stubComms{}, nil, nil)

	err := orch.Submit(context.Background(), &domain.Incident{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
