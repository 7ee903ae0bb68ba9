package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAnomalies() []Anomaly {
	return []Anomaly{
		{Metric: "CONNECTION_COUNT", Value: 500, Threshold: 100, Severity: SeverityCritical},
	}
}

func TestNewIncidentDefaults(t *testing.T) {
	inc := NewIncident(Resource{Type: "Database", ID: "db-prod-001", Name: "Production Database"}, testAnomalies())

	assert.True(t, strings.HasPrefix(inc.ID, "INC-"))
	assert.Equal(t, PhaseDetected, inc.Phase)
	assert.Equal(t, SeverityCritical, inc.Severity)
	assert.False(t, inc.DetectedAt.IsZero())
	assert.Nil(t, inc.CompletedAt)
}

func TestIncidentIDsAreTimeOrdered(t *testing.T) {
	a := NewIncident(Resource{Type: "Database", ID: "db-1"}, testAnomalies())
	b := NewIncident(Resource{Type: "Database", ID: "db-2"}, testAnomalies())

	// Timestamp prefixes sort with creation order
	assert.LessOrEqual(t, a.ID[:18], b.ID[:18])
	assert.NotEqual(t, a.ID, b.ID)
}

func TestValidateRejectsMissingResource(t *testing.T) {
	inc := NewIncident(Resource{}, testAnomalies())
	err := inc.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidateRejectsEmptyAnomalies(t *testing.T) {
	inc := NewIncident(Resource{Type: "Database", ID: "db-1"}, nil)
	err := inc.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAdvanceForward(t *testing.T) {
	inc := NewIncident(Resource{Type: "Database", ID: "db-1"}, testAnomalies())

	require.NoError(t, inc.Advance(PhaseDiagnosing))
	require.NoError(t, inc.Advance(PhaseDiagnosed))
	require.NoError(t, inc.Advance(PhaseResolving))
	require.NoError(t, inc.Advance(PhaseResolved))
	require.NoError(t, inc.Advance(PhaseCommunicating))
	require.NoError(t, inc.Advance(PhaseCompleted))

	assert.True(t, inc.Phase.IsTerminal())
	require.NotNil(t, inc.CompletedAt)
}

func TestAdvanceNeverRegresses(t *testing.T) {
	inc := NewIncident(Resource{Type: "Database", ID: "db-1"}, testAnomalies())
	require.NoError(t, inc.Advance(PhaseDiagnosed))

	err := inc.Advance(PhaseDetected)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, PhaseDiagnosed, inc.Phase)
}

func TestAdvanceFailedFromAnyNonTerminal(t *testing.T) {
	for _, from := range []Phase{PhaseDetected, PhaseDiagnosing, PhaseDiagnosed, PhaseResolving, PhaseResolved, PhaseCommunicating} {
		assert.True(t, CanTransition(from, PhaseFailed), "from %s", from)
	}
}

func TestAdvanceOutOfTerminal(t *testing.T) {
	assert.False(t, CanTransition(PhaseCompleted, PhaseFailed))
	assert.False(t, CanTransition(PhaseFailed, PhaseDetected))
	assert.False(t, CanTransition(PhaseFailed, PhaseCompleted))
}

func TestCloneDetachesNestedState(t *testing.T) {
	inc := NewIncident(Resource{Type: "Database", ID: "db-1"}, testAnomalies())
	require.NoError(t, inc.Advance(PhaseDiagnosing))
	inc.Diagnosis = &Diagnosis{
		IncidentID: inc.ID,
		RootCause:  RootCause{Type: RootCauseConnectionExhaustion, Evidence: []string{"CONNECTION_COUNT at 500"}},
		Impact:     Impact{AffectedServices: []string{"orders-api"}},
		SimilarIncidents: []SimilarIncident{
			{IncidentID: "INC-past", Similarity: 0.6, RootCause: RootCause{Evidence: []string{"pool exhausted"}}},
		},
	}
	inc.Resolution = &Resolution{
		IncidentID:   inc.ID,
		ImmediateFix: ImmediateFix{Success: true},
		PermanentFix: &PermanentFix{Patch: "+ pool.max = 20", FilesModified: []string{"src/db.js"}},
		PR:           &PullRequest{URL: "https://github.com/acme/orders/pull/9", Number: 9},
		Status:       ResolutionResolved,
	}

	clone := inc.Clone()
	require.NotSame(t, inc, clone)

	clone.Phase = PhaseFailed
	clone.Anomalies[0].Metric = "TAMPERED"
	clone.Diagnosis.RootCause.Evidence[0] = "tampered"
	clone.Diagnosis.Impact.AffectedServices[0] = "tampered"
	clone.Diagnosis.SimilarIncidents[0].RootCause.Evidence[0] = "tampered"
	clone.Resolution.PermanentFix.FilesModified[0] = "tampered"
	clone.Resolution.PR.Number = 0

	assert.Equal(t, PhaseDiagnosing, inc.Phase)
	assert.Equal(t, "CONNECTION_COUNT", inc.Anomalies[0].Metric)
	assert.Equal(t, "CONNECTION_COUNT at 500", inc.Diagnosis.RootCause.Evidence[0])
	assert.Equal(t, "orders-api", inc.Diagnosis.Impact.AffectedServices[0])
	assert.Equal(t, "pool exhausted", inc.Diagnosis.SimilarIncidents[0].RootCause.Evidence[0])
	assert.Equal(t, "src/db.js", inc.Resolution.PermanentFix.FilesModified[0])
	assert.Equal(t, 9, inc.Resolution.PR.Number)
}

func TestCloneNilPointers(t *testing.T) {
	inc := NewIncident(Resource{Type: "Database", ID: "db-1"}, testAnomalies())
	clone := inc.Clone()
	assert.Nil(t, clone.Diagnosis)
	assert.Nil(t, clone.Resolution)
	assert.Nil(t, clone.CompletedAt)
}

func TestAdvanceToFailedStampsCompletedOnce(t *testing.T) {
	inc := NewIncident(Resource{Type: "Database", ID: "db-1"}, testAnomalies())
	require.NoError(t, inc.Advance(PhaseFailed))
	require.NotNil(t, inc.CompletedAt)

	first := *inc.CompletedAt
	require.Error(t, inc.Advance(PhaseCompleted))
	assert.Equal(t, first, *inc.CompletedAt)
}
