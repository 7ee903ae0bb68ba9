package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/Waryjustice/azure-incident-resolver/internal/bus"
	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
)

// QueuePipeline runs the pipeline stages as independent bus consumers
// so each stage can scale separately. It shares the orchestrator's
// incident bookkeeping and satisfies the same submission contract as
// the direct pipeline.
type QueuePipeline struct {
	core *Orchestrator
	bus  bus.Bus
}

func NewQueuePipeline(core *Orchestrator, b bus.Bus) *QueuePipeline {
	return &QueuePipeline{core: core, bus: b}
}

// Submit validates the incident and enqueues it for the diagnosis worker.
func (q *QueuePipeline) Submit(ctx context.Context, incident *domain.Incident) error {
	if err := incident.Validate(); err != nil {
		return err
	}
	return q.bus.Publish(ctx, bus.TopicIncidentDetected, incident.ID, incident)
}

// Run starts one consumer per stage and blocks until ctx is done.
func (q *QueuePipeline) Run(ctx context.Context) error {
	errCh := make(chan error, 3)
	go func() { errCh <- q.bus.Consume(ctx, bus.TopicIncidentDetected, q.handleDetected) }()
	go func() { errCh <- q.bus.Consume(ctx, bus.TopicIncidentDiagnosed, q.handleDiagnosed) }()
	go func() { errCh <- q.bus.Consume(ctx, bus.TopicIncidentResolved, q.handleResolved) }()

	<-ctx.Done()
	return ctx.Err()
}

// handleDetected admits the incident and runs the diagnosis stage. A
// message is only acked after the diagnosed hand-off has been published,
// so a redelivery for an already-tracked incident re-forwards whatever
// hand-off is still pending instead of acking it away.
func (q *QueuePipeline) handleDetected(ctx context.Context, env bus.Envelope) error {
	var incident domain.Incident
	if err := json.Unmarshal(env.Payload, &incident); err != nil {
		log.Printf("[orchestrator] dropping malformed incident message %s: %v", env.ID, err)
		return nil
	}

	if !q.core.admit(&incident) {
		return q.forwardPending(ctx, incident.ID)
	}
	if q.core.metrics != nil {
		q.core.metrics.RecordIncidentStart()
	}
	q.core.persist(ctx, &incident)
	q.core.comms.HandlePhase(ctx, &incident)

	if err := q.core.advance(&incident, domain.PhaseDiagnosing); err != nil {
		q.core.fail(ctx, &incident, "diagnosis", err)
		return nil
	}
	diag, err := q.core.diagnoser.Diagnose(ctx, &incident)
	if err != nil {
		q.core.fail(ctx, &incident, "diagnosis", err)
		return nil
	}
	q.core.attachDiagnosis(&incident, diag)
	if err := q.core.advance(&incident, domain.PhaseDiagnosed); err != nil {
		q.core.fail(ctx, &incident, "diagnosis", err)
		return nil
	}
	q.core.persist(ctx, &incident)
	q.core.comms.HandlePhase(ctx, &incident)

	return q.bus.Publish(ctx, bus.TopicIncidentDiagnosed, incident.ID, incident)
}

// forwardPending republishes the hand-off for an incident whose stage
// output was produced but whose publish failed before the ack. Incidents
// that are mid-stage or already terminal need nothing, so the duplicate
// is acked.
func (q *QueuePipeline) forwardPending(ctx context.Context, id string) error {
	incident, err := q.core.Get(id)
	if err != nil {
		return nil
	}
	switch incident.Phase {
	case domain.PhaseDiagnosed:
		log.Printf("[orchestrator] incident %s waiting on diagnosed hand-off, re-forwarding", id)
		return q.bus.Publish(ctx, bus.TopicIncidentDiagnosed, id, incident)
	case domain.PhaseResolved:
		log.Printf("[orchestrator] incident %s waiting on resolved hand-off, re-forwarding", id)
		return q.bus.Publish(ctx, bus.TopicIncidentResolved, id, incident)
	}
	return nil
}

// claim resolves the envelope to the live tracked incident. When this
// process has never seen the incident the full state is rebuilt from
// the message payload, so stage workers can run as separate processes
// over a durable bus. Returns nil for terminal or malformed messages.
func (q *QueuePipeline) claim(env bus.Envelope) (*domain.Incident, domain.Phase) {
	if incident, phase, ok := q.core.tracked(env.IncidentID); ok {
		return incident, phase
	}
	var incident domain.Incident
	if err := json.Unmarshal(env.Payload, &incident); err != nil {
		log.Printf("[orchestrator] dropping malformed message %s on %s: %v", env.ID, env.Topic, err)
		return nil, ""
	}
	if !q.core.admit(&incident) {
		// already in history, ack the duplicate
		return nil, ""
	}
	if q.core.metrics != nil {
		q.core.metrics.RecordIncidentStart()
	}
	log.Printf("[orchestrator] rebuilt incident %s from %s hand-off", incident.ID, env.Topic)
	return &incident, incident.Phase
}

// handleDiagnosed runs the resolution stage. Incidents unknown to this
// process are rebuilt from the payload; a redelivery for an incident
// that already moved past diagnosed re-forwards any pending hand-off.
func (q *QueuePipeline) handleDiagnosed(ctx context.Context, env bus.Envelope) error {
	incident, phase := q.claim(env)
	if incident == nil {
		return nil
	}
	if phase != domain.PhaseDiagnosed {
		return q.forwardPending(ctx, env.IncidentID)
	}

	if err := q.core.advance(incident, domain.PhaseResolving); err != nil {
		q.core.fail(ctx, incident, "resolution", err)
		return nil
	}
	res, err := q.core.resolver.Resolve(ctx, incident)
	if err != nil {
		q.core.fail(ctx, incident, "resolution", err)
		return nil
	}
	q.core.attachResolution(incident, res)
	if res.Status != domain.ResolutionResolved {
		q.core.fail(ctx, incident, "resolution", fmt.Errorf("immediate fix failed: %s", res.ImmediateFix.Error))
		return nil
	}
	if err := q.core.advance(incident, domain.PhaseResolved); err != nil {
		q.core.fail(ctx, incident, "resolution", err)
		return nil
	}
	q.core.persist(ctx, incident)
	q.core.comms.HandlePhase(ctx, incident)

	return q.bus.Publish(ctx, bus.TopicIncidentResolved, incident.ID, incident)
}

// handleResolved runs the communication stage and completes the incident.
func (q *QueuePipeline) handleResolved(ctx context.Context, env bus.Envelope) error {
	incident, phase := q.claim(env)
	if incident == nil {
		return nil
	}
	if phase != domain.PhaseResolved {
		return q.forwardPending(ctx, env.IncidentID)
	}

	if err := q.core.advance(incident, domain.PhaseCommunicating); err != nil {
		q.core.fail(ctx, incident, "communication", err)
		return nil
	}
	q.core.comms.HandlePhase(ctx, incident)

	if err := q.core.advance(incident, domain.PhaseCompleted); err != nil {
		q.core.fail(ctx, incident, "communication", err)
		return nil
	}
	q.core.persist(ctx, incident)
	q.core.moveToHistory(incident)
	q.core.recordEnd(incident, "completed")
	log.Printf("[orchestrator] incident workflow completed: %s", incident.ID)
	return nil
}
