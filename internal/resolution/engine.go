package resolution

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
)

// FixExecutor runs one immediate mitigation against live infrastructure.
// Implementations live in the cloud package; the engine only dispatches.
type FixExecutor interface {
	Execute(ctx context.Context, action domain.ImmediateAction, incident *domain.Incident) domain.ImmediateFix
}

// PullRequester opens a source-control PR carrying a permanent fix.
type PullRequester interface {
	OpenPullRequest(ctx context.Context, branch, title, body string) (*domain.PullRequest, error)
}

// Engine selects a strategy for a diagnosed incident, dispatches the
// immediate fix, requests a permanent fix, and opens a PR when one exists.
// Every collaborator is optional; a nil one degrades rather than fails.
type Engine struct {
	executor FixExecutor
	codeFix  CodeFixer
	scm      PullRequester
}

func NewEngine(executor FixExecutor, codeFix CodeFixer, scm PullRequester) *Engine {
	return &Engine{executor: executor, codeFix: codeFix, scm: scm}
}

// Resolve produces the incident's Resolution. The returned status is
// resolved only when the immediate fix reports success; permanent fixes
// and PRs never rescue a failed mitigation.
func (e *Engine) Resolve(ctx context.Context, incident *domain.Incident) (*domain.Resolution, error) {
	if incident == nil || incident.Diagnosis == nil {
		return nil, fmt.Errorf("%w: incident has no diagnosis: %w", domain.ErrResolutionFailed, domain.ErrValidation)
	}
	diag := incident.Diagnosis

	strategy := SelectStrategy(diag.RootCause.Type)
	if strategy == defaultStrategy && diag.RootCause.Type != domain.RootCauseUnknown {
		log.Printf("[resolution] no strategy mapped for root cause %q, defaulting to manual investigation", diag.RootCause.Type)
	}

	immediate := e.executeImmediate(ctx, strategy.Immediate, incident)
	permanent := e.generatePermanent(ctx, strategy, diag)

	resolution := &domain.Resolution{
		IncidentID:   incident.ID,
		Strategy:     strategy,
		ImmediateFix: immediate,
		PermanentFix: permanent,
		Status:       domain.ResolutionFailed,
		ResolvedAt:   time.Now().UTC(),
	}
	if immediate.Success {
		resolution.Status = domain.ResolutionResolved
	}

	if permanent != nil && permanent.Patch != "" && e.scm != nil {
		branch := "fix/" + strings.ToLower(incident.ID)
		title := "Fix: " + diag.RootCause.Description
		pr, err := e.scm.OpenPullRequest(ctx, branch, title, permanent.Patch)
		if err != nil {
			log.Printf("[resolution] PR creation failed for %s: %v", incident.ID, err)
		} else {
			resolution.PR = pr
		}
	}

	log.Printf("[resolution] incident %s: action=%s success=%t status=%s",
		incident.ID, immediate.Action, immediate.Success, resolution.Status)
	return resolution, nil
}

func (e *Engine) executeImmediate(ctx context.Context, action domain.ImmediateAction, incident *domain.Incident) domain.ImmediateFix {
	if e.executor == nil {
		return domain.ImmediateFix{
			Success: false,
			Action:  action,
			Error:   "no automated fix available",
		}
	}
	return e.executor.Execute(ctx, action, incident)
}

func (e *Engine) generatePermanent(ctx context.Context, strategy domain.Strategy, diag *domain.Diagnosis) *domain.PermanentFix {
	if e.codeFix != nil {
		req := FixRequest{
			Action:            strategy.Permanent,
			RootCauseType:     diag.RootCause.Type,
			Description:       MaskSensitive(diag.RootCause.Description),
			AffectedComponent: diag.RootCause.AffectedComponent,
			Evidence:          MaskEvidence(diag.RootCause.Evidence),
		}
		fix, err := e.codeFix.GenerateFix(ctx, req)
		if err == nil && fix != nil {
			fix.Action = strategy.Permanent
			fix.Source = domain.FixSourceAI
			return fix
		}
		if err != nil {
			log.Printf("[resolution] code fix generation failed: %v, using static fallback", err)
		}
	}
	return StaticFix(strategy.Permanent)
}
