package domain

import "time"

// ImmediateAction identifies an automated mitigation handler
type ImmediateAction string

const (
	ActionScaleDatabaseTier    ImmediateAction = "scale_database_tier"
	ActionRestartService       ImmediateAction = "restart_service"
	ActionEnableCircuitBreaker ImmediateAction = "enable_circuit_breaker"
	ActionRollbackDeployment   ImmediateAction = "rollback_deployment"
	ActionManualInvestigation  ImmediateAction = "manual_investigation_required"
)

// PermanentAction identifies the long-term fix to pursue
type PermanentAction string

const (
	PermanentConnectionPooling PermanentAction = "implement_connection_pooling"
	PermanentFixMemoryLeak     PermanentAction = "fix_memory_leak_code"
	PermanentBackoffRetry      PermanentAction = "implement_backoff_retry"
	PermanentFixDeployment     PermanentAction = "fix_deployment_config"
	PermanentIncidentReport    PermanentAction = "create_incident_report"
)

// Strategy pairs an immediate mitigation with a permanent fix
type Strategy struct {
	Immediate ImmediateAction `json:"immediate_action"`
	Permanent PermanentAction `json:"permanent_action"`
}

// FixSource records which path produced a permanent fix
type FixSource string

const (
	FixSourceAI     FixSource = "ai"
	FixSourceStatic FixSource = "static"
)

// ImmediateFix is the outcome of an automated mitigation attempt
type ImmediateFix struct {
	Success bool            `json:"success"`
	Action  ImmediateAction `json:"action"`
	Details string          `json:"details,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// PermanentFix is a proposed code change addressing the root cause
type PermanentFix struct {
	Action        PermanentAction `json:"action"`
	Patch         string          `json:"patch,omitempty"`
	FilesModified []string        `json:"files_modified"`
	Source        FixSource       `json:"source"`
}

// PullRequest references a source-control PR carrying the permanent fix
type PullRequest struct {
	URL    string `json:"url"`
	Number int    `json:"number,omitempty"`
	Branch string `json:"branch"`
	Title  string `json:"title"`
}

// ResolutionStatus is the terminal outcome of the resolution stage
type ResolutionStatus string

const (
	ResolutionResolved ResolutionStatus = "resolved"
	ResolutionFailed   ResolutionStatus = "failed"
)

// Resolution is produced once per incident by the resolution engine.
// Status is resolved iff the immediate fix succeeded; a permanent fix or PR
// does not rescue a failed mitigation.
type Resolution struct {
	IncidentID   string           `json:"incident_id"`
	Strategy     Strategy         `json:"strategy"`
	ImmediateFix ImmediateFix     `json:"immediate_fix"`
	PermanentFix *PermanentFix    `json:"permanent_fix,omitempty"`
	PR           *PullRequest     `json:"pr,omitempty"`
	Status       ResolutionStatus `json:"status"`
	ResolvedAt   time.Time        `json:"resolved_at"`
}

func (r *Resolution) clone() *Resolution {
	if r == nil {
		return nil
	}
	out := *r
	if r.PermanentFix != nil {
		fix := *r.PermanentFix
		fix.FilesModified = append([]string(nil), r.PermanentFix.FilesModified...)
		out.PermanentFix = &fix
	}
	if r.PR != nil {
		pr := *r.PR
		out.PR = &pr
	}
	return &out
}
