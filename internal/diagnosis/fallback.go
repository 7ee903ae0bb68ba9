package diagnosis

import (
	"fmt"

	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
)

// fallbackRule maps an anomaly metric to a deterministic root cause
type fallbackRule struct {
	Type        domain.RootCauseType
	Description string
	Component   string
}

// fallbackRules is the rule table used when AI inference is unavailable or
// returns a malformed response. An empty Component means "use the resource
// type of the incident".
var fallbackRules = map[string]fallbackRule{
	"CONNECTION_COUNT":      {domain.RootCauseConnectionExhaustion, "Database connection pool exhausted", "Database"},
	"MEMORY_USAGE":          {domain.RootCauseMemoryLeak, "Service memory usage critical, likely memory leak", "Application Service"},
	"ERROR_RATE":            {domain.RootCauseElevatedErrorRate, "Error rate spike detected", "API Gateway"},
	"CPU_USAGE":             {domain.RootCauseCPUSpike, "CPU utilization exceeded safe threshold", ""},
	"DISK_USAGE":            {domain.RootCauseDiskExhaustion, "Disk space critically low", ""},
	"QUERY_DURATION":        {domain.RootCauseSlowQuery, "Database query performance degraded", "Database"},
	"RATE_LIMIT_ERRORS":     {domain.RootCauseRateLimitBreach, "Third-party API rate limit exceeded", "API Gateway"},
	"DEPLOYMENT_ERROR_RATE": {domain.RootCauseFailedDeployment, "Recent deployment causing elevated error rate", "Deployment"},
}

// RuleBasedRootCause produces an always-available root cause keyed on the
// incident's first anomaly metric.
func RuleBasedRootCause(incident *domain.Incident) domain.RootCause {
	metric := "UNKNOWN"
	var value, threshold float64
	if len(incident.Anomalies) > 0 {
		metric = incident.Anomalies[0].Metric
		value = incident.Anomalies[0].Value
		threshold = incident.Anomalies[0].Threshold
	}

	rule, ok := fallbackRules[metric]
	if !ok {
		rule = fallbackRule{
			Type:        domain.RootCauseUnknown,
			Description: fmt.Sprintf("Anomaly detected in %s: %s", incident.Resource.Type, metric),
			Component:   incident.Resource.Type,
		}
	}
	component := rule.Component
	if component == "" {
		component = incident.Resource.Type
	}

	if threshold <= 0 {
		threshold = 1
	}
	breachPct := (value/threshold - 1) * 100

	return domain.RootCause{
		Type:              rule.Type,
		Description:       rule.Description,
		AffectedComponent: component,
		Evidence: []string{
			fmt.Sprintf("%s exceeded threshold by %.0f%%", metric, breachPct),
			fmt.Sprintf("Severity: %s", incident.Severity),
			fmt.Sprintf("Incident ID: %s", incident.ID),
		},
	}
}
