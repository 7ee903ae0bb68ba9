package cloud

import (
	"context"
	"log"
	"sync"

	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
)

// Executor performs one category of immediate mitigation.
type Executor interface {
	Execute(ctx context.Context, incident *domain.Incident) domain.ImmediateFix
}

// Registry dispatches immediate actions to registered executors.
// Actions with no registered executor report "no automated fix available"
// rather than erroring, so manual-investigation incidents flow through.
type Registry struct {
	mu        sync.RWMutex
	executors map[domain.ImmediateAction]Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[domain.ImmediateAction]Executor)}
}

func (r *Registry) Register(action domain.ImmediateAction, executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[action] = executor
}

func (r *Registry) Execute(ctx context.Context, action domain.ImmediateAction, incident *domain.Incident) domain.ImmediateFix {
	r.mu.RLock()
	executor, ok := r.executors[action]
	r.mu.RUnlock()

	if !ok {
		log.Printf("[cloud] no executor registered for action %s", action)
		return domain.ImmediateFix{
			Success: false,
			Action:  action,
			Error:   "no automated fix available",
		}
	}

	fix := executor.Execute(ctx, incident)
	fix.Action = action
	return fix
}

// TypeDispatcher routes a single action to a different executor per
// resource type, with a fallback for unlisted types. Lets restart_service
// reboot VM-backed resources while container services get a rolling
// pod restart.
type TypeDispatcher struct {
	byType   map[string]Executor
	fallback Executor
}

func NewTypeDispatcher(fallback Executor) *TypeDispatcher {
	return &TypeDispatcher{byType: make(map[string]Executor), fallback: fallback}
}

func (d *TypeDispatcher) Route(resourceType string, executor Executor) *TypeDispatcher {
	d.byType[resourceType] = executor
	return d
}

func (d *TypeDispatcher) Execute(ctx context.Context, incident *domain.Incident) domain.ImmediateFix {
	if executor, ok := d.byType[incident.Resource.Type]; ok {
		return executor.Execute(ctx, incident)
	}
	if d.fallback == nil {
		return domain.ImmediateFix{
			Success: false,
			Error:   "no automated fix available",
		}
	}
	return d.fallback.Execute(ctx, incident)
}
