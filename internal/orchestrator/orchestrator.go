// Package orchestrator drives incidents through the pipeline phases and
// owns the active-incident table and the append-only history log.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
	"github.com/Waryjustice/azure-incident-resolver/internal/observability"
)

// Diagnoser produces a diagnosis for a detected incident.
type Diagnoser interface {
	Diagnose(ctx context.Context, incident *domain.Incident) (*domain.Diagnosis, error)
}

// Resolver produces a resolution for a diagnosed incident.
type Resolver interface {
	Resolve(ctx context.Context, incident *domain.Incident) (*domain.Resolution, error)
}

// Communicator sends lifecycle notifications and escalations.
type Communicator interface {
	HandlePhase(ctx context.Context, incident *domain.Incident)
	Escalate(ctx context.Context, incident *domain.Incident)
}

// Store persists incident state transitions. A nil store disables
// persistence without changing pipeline behavior.
type Store interface {
	SaveIncident(ctx context.Context, incident *domain.Incident) error
}

// Stats summarizes pipeline throughput.
type Stats struct {
	ActiveIncidents   int     `json:"active_incidents"`
	TotalIncidents    int     `json:"total_incidents"`
	ResolvedIncidents int     `json:"resolved_incidents"`
	ResolutionRate    float64 `json:"resolution_rate"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// Orchestrator runs the direct in-process pipeline. The queue-backed
// variant in workers.go satisfies the same stage semantics.
type Orchestrator struct {
	diagnoser Diagnoser
	resolver  Resolver
	comms     Communicator
	store     Store
	metrics   *observability.Metrics

	mu        sync.Mutex
	active    map[string]*domain.Incident
	history   []*domain.Incident
	startedAt time.Time
}

func New(diagnoser Diagnoser, resolver Resolver, comms Communicator, store Store, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{
		diagnoser: diagnoser,
		resolver:  resolver,
		comms:     comms,
		store:     store,
		metrics:   metrics,
		active:    make(map[string]*domain.Incident),
		startedAt: time.Now().UTC(),
	}
}

// Submit admits a detected incident and runs the pipeline in the
// background. Duplicate IDs are ignored. Satisfies the detection
// monitor's pipeline contract.
func (o *Orchestrator) Submit(ctx context.Context, incident *domain.Incident) error {
	if err := incident.Validate(); err != nil {
		return err
	}
	go func() {
		if err := o.HandleIncident(context.WithoutCancel(ctx), incident); err != nil {
			log.Printf("[orchestrator] incident %s failed: %v", incident.ID, err)
		}
	}()
	return nil
}

// HandleIncident runs one incident through every phase. Any stage
// failure short-circuits to failed and escalates exactly once; the
// orchestrator never retries a stage.
func (o *Orchestrator) HandleIncident(ctx context.Context, incident *domain.Incident) error {
	if !o.admit(incident) {
		log.Printf("[orchestrator] incident %s already tracked, skipping", incident.ID)
		return nil
	}
	log.Printf("[orchestrator] incident workflow started: %s severity=%s", incident.ID, incident.Severity)
	if o.metrics != nil {
		o.metrics.RecordIncidentStart()
	}

	o.persist(ctx, incident)
	o.comms.HandlePhase(ctx, incident)

	// Diagnosis
	if err := o.advance(incident, domain.PhaseDiagnosing); err != nil {
		return o.fail(ctx, incident, "diagnosis", err)
	}
	diag, err := o.diagnoser.Diagnose(ctx, incident)
	if err != nil {
		return o.fail(ctx, incident, "diagnosis", err)
	}
	o.attachDiagnosis(incident, diag)
	if err := o.advance(incident, domain.PhaseDiagnosed); err != nil {
		return o.fail(ctx, incident, "diagnosis", err)
	}
	o.persist(ctx, incident)
	o.comms.HandlePhase(ctx, incident)

	// Resolution
	if err := o.advance(incident, domain.PhaseResolving); err != nil {
		return o.fail(ctx, incident, "resolution", err)
	}
	res, err := o.resolver.Resolve(ctx, incident)
	if err != nil {
		return o.fail(ctx, incident, "resolution", err)
	}
	o.attachResolution(incident, res)
	if res.Status != domain.ResolutionResolved {
		return o.fail(ctx, incident, "resolution", fmt.Errorf("immediate fix failed: %s", res.ImmediateFix.Error))
	}
	if err := o.advance(incident, domain.PhaseResolved); err != nil {
		return o.fail(ctx, incident, "resolution", err)
	}
	o.persist(ctx, incident)
	o.comms.HandlePhase(ctx, incident)

	// Communication
	if err := o.advance(incident, domain.PhaseCommunicating); err != nil {
		return o.fail(ctx, incident, "communication", err)
	}
	o.comms.HandlePhase(ctx, incident)

	if err := o.advance(incident, domain.PhaseCompleted); err != nil {
		return o.fail(ctx, incident, "communication", err)
	}
	o.persist(ctx, incident)
	o.moveToHistory(incident)
	o.recordEnd(incident, "completed")

	log.Printf("[orchestrator] incident workflow completed: %s", incident.ID)
	return nil
}

// admit registers the incident in the active table. Returns false when
// the ID is already active or already in history.
func (o *Orchestrator) admit(incident *domain.Incident) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.active[incident.ID]; ok {
		return false
	}
	for _, past := range o.history {
		if past.ID == incident.ID {
			return false
		}
	}
	o.active[incident.ID] = incident
	return true
}

// tracked returns the live pointer for an incident still in the active
// table, plus a consistent snapshot of its phase. Only the queue workers
// use it; everything handed outside the package is a Clone.
func (o *Orchestrator) tracked(id string) (*domain.Incident, domain.Phase, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	incident, ok := o.active[id]
	if !ok {
		return nil, "", false
	}
	return incident, incident.Phase, true
}

// advance moves the incident forward under the orchestrator lock so
// readers cloning it never observe a torn update.
func (o *Orchestrator) advance(incident *domain.Incident, to domain.Phase) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return incident.Advance(to)
}

func (o *Orchestrator) attachDiagnosis(incident *domain.Incident, diag *domain.Diagnosis) {
	o.mu.Lock()
	defer o.mu.Unlock()
	incident.Diagnosis = diag
}

func (o *Orchestrator) attachResolution(incident *domain.Incident, res *domain.Resolution) {
	o.mu.Lock()
	defer o.mu.Unlock()
	incident.Resolution = res
}

func (o *Orchestrator) fail(ctx context.Context, incident *domain.Incident, stage string, cause error) error {
	log.Printf("[orchestrator] %s stage failed for %s: %v", stage, incident.ID, cause)
	if o.metrics != nil {
		o.metrics.RecordStageFailure(stage)
	}

	o.mu.Lock()
	incident.FailureReason = fmt.Sprintf("%s_failed: %v", stage, cause)
	err := incident.Advance(domain.PhaseFailed)
	o.mu.Unlock()
	if err != nil {
		// already terminal, never escalate twice
		return cause
	}
	o.persist(ctx, incident)
	o.comms.Escalate(ctx, incident)
	o.moveToHistory(incident)
	o.recordEnd(incident, "failed")
	return cause
}

// moveToHistory removes the incident from the active table and appends
// it to history. The append happens at most once per incident.
func (o *Orchestrator) moveToHistory(incident *domain.Incident) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.active[incident.ID]; !ok {
		return
	}
	delete(o.active, incident.ID)
	o.history = append(o.history, incident)
}

func (o *Orchestrator) recordEnd(incident *domain.Incident, status string) {
	if o.metrics == nil {
		return
	}
	duration := 0.0
	if incident.CompletedAt != nil {
		duration = incident.CompletedAt.Sub(incident.DetectedAt).Seconds()
	}
	o.metrics.RecordIncidentEnd(string(incident.Severity), status, duration)
}

func (o *Orchestrator) persist(ctx context.Context, incident *domain.Incident) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveIncident(ctx, incident); err != nil {
		log.Printf("[orchestrator] persist incident %s failed: %v", incident.ID, err)
	}
}

// Active returns copies of the incidents currently in the pipeline.
// Clones keep API readers decoupled from incidents a stage goroutine is
// still mutating.
func (o *Orchestrator) Active() []*domain.Incident {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*domain.Incident, 0, len(o.active))
	for _, incident := range o.active {
		out = append(out, incident.Clone())
	}
	return out
}

// History returns copies of the most recent limit terminal incidents,
// oldest first.
func (o *Orchestrator) History(limit int) []*domain.Incident {
	o.mu.Lock()
	defer o.mu.Unlock()
	if limit <= 0 || limit > len(o.history) {
		limit = len(o.history)
	}
	out := make([]*domain.Incident, 0, limit)
	for _, incident := range o.history[len(o.history)-limit:] {
		out = append(out, incident.Clone())
	}
	return out
}

// Get finds an incident by ID in the active table or history and
// returns a copy.
func (o *Orchestrator) Get(id string) (*domain.Incident, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if incident, ok := o.active[id]; ok {
		return incident.Clone(), nil
	}
	for _, incident := range o.history {
		if incident.ID == id {
			return incident.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrIncidentNotFound, id)
}

// Stats reports pipeline throughput counters.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	resolved := 0
	for _, incident := range o.history {
		if incident.Phase == domain.PhaseCompleted {
			resolved++
		}
	}
	total := len(o.history) + len(o.active)
	rate := 0.0
	if total > 0 {
		rate = float64(resolved) / float64(total) * 100
	}
	return Stats{
		ActiveIncidents:   len(o.active),
		TotalIncidents:    total,
		ResolvedIncidents: resolved,
		ResolutionRate:    rate,
		UptimeSeconds:     time.Since(o.startedAt).Seconds(),
	}
}
