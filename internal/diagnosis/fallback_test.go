package diagnosis

import (
	"testing"

	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleBasedRootCauseKnownMetrics(t *testing.T) {
	cases := []struct {
		metric    string
		wantType  domain.RootCauseType
		component string
	}{
		{"CONNECTION_COUNT", domain.RootCauseConnectionExhaustion, "Database"},
		{"MEMORY_USAGE", domain.RootCauseMemoryLeak, "Application Service"},
		{"ERROR_RATE", domain.RootCauseElevatedErrorRate, "API Gateway"},
		{"QUERY_DURATION", domain.RootCauseSlowQuery, "Database"},
		{"RATE_LIMIT_ERRORS", domain.RootCauseRateLimitBreach, "API Gateway"},
		{"DEPLOYMENT_ERROR_RATE", domain.RootCauseFailedDeployment, "Deployment"},
	}
	for _, tc := range cases {
		t.Run(tc.metric, func(t *testing.T) {
			inc := newTestIncident(tc.metric, domain.SeverityHigh)
			rc := RuleBasedRootCause(inc)
			assert.Equal(t, tc.wantType, rc.Type)
			assert.Equal(t, tc.component, rc.AffectedComponent)
			assert.Len(t, rc.Evidence, 3)
		})
	}
}

func TestRuleBasedRootCauseComponentDefaultsToResourceType(t *testing.T) {
	inc := newTestIncident("CPU_USAGE", domain.SeverityHigh)
	rc := RuleBasedRootCause(inc)
	assert.Equal(t, domain.RootCauseCPUSpike, rc.Type)
	assert.Equal(t, inc.Resource.Type, rc.AffectedComponent)
}

func TestRuleBasedRootCauseUnknownMetric(t *testing.T) {
	inc := newTestIncident("SOMETHING_NOVEL", domain.SeverityMedium)
	rc := RuleBasedRootCause(inc)
	assert.Equal(t, domain.RootCauseUnknown, rc.Type)
	require.Len(t, rc.Evidence, 3)
	assert.Contains(t, rc.Evidence[0], "SOMETHING_NOVEL")
}

func newTestIncident(metric string, sev domain.Severity) *domain.Incident {
	return domain.NewIncident(
		domain.Resource{Type: "AppService", ID: "app-1", Name: "orders-api"},
		[]domain.Anomaly{{Metric: metric, Value: 95, Threshold: 50, Severity: sev}},
	)
}
