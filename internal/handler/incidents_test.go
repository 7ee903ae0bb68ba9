package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Waryjustice/azure-incident-resolver/internal/comms"
	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
	"github.com/Waryjustice/azure-incident-resolver/internal/observability"
	"github.com/Waryjustice/azure-incident-resolver/internal/orchestrator"
)

type stubDiagnoser struct{}

func (stubDiagnoser) Diagnose(_ context.Context, incident *domain.Incident) (*domain.Diagnosis, error) {
	return &domain.Diagnosis{
		IncidentID: incident.ID,
		RootCause: domain.RootCause{
			Type:        domain.RootCauseConnectionExhaustion,
			Description: "Database connection pool exhausted",
		},
		Confidence:  80,
		Source:      domain.DiagnosisSourceRules,
		DiagnosedAt: time.Now().UTC(),
	}, nil
}

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, incident *domain.Incident) (*domain.Resolution, error) {
	return &domain.Resolution{
		IncidentID:   incident.ID,
		ImmediateFix: domain.ImmediateFix{Success: true, Action: domain.ActionScaleDatabaseTier},
		Status:       domain.ResolutionResolved,
		ResolvedAt:   time.Now().UTC(),
	}, nil
}

type stubComms struct{}

func (stubComms) HandlePhase(context.Context, *domain.Incident) {}
func (stubComms) Escalate(context.Context, *domain.Incident)    {}

type stubKnowledge struct {
	pm  *comms.PostMortem
	err error
}

func (s *stubKnowledge) GetPostMortem(context.Context, string) (*comms.PostMortem, error) {
	return s.pm, s.err
}

// one shared instance, prometheus registration is process-global
var testMetrics = observability.NewMetrics()

func setupTestRouter(knowledge PostMortemReader) (*gin.Engine, *orchestrator.Orchestrator) {
	gin.SetMode(gin.TestMode)
	tracker := orchestrator.New(stubDiagnoser{}, stubResolver{}, stubComms{}, nil, nil)
	h := NewIncidentHandler(tracker, tracker, knowledge)
	return SetupRouter(h, testMetrics, "*"), tracker
}

func submitBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"resource": map[string]string{"type": "Database", "id": "db-orders", "name": "orders-db"},
		"anomalies": []map[string]any{
			{"metric": "CONNECTION_COUNT", "value": 500, "threshold": 100, "severity": "critical"},
		},
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestSubmitIncident(t *testing.T) {
	r, tracker := setupTestRouter(nil)

	req := httptest.NewRequest("POST", "/api/incidents", submitBody(t))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["incident_id"])
	assert.Equal(t, "critical", resp["severity"])
	assert.Equal(t, "detected", resp["phase"])

	// pipeline runs in the background
	require.Eventually(t, func() bool {
		return tracker.Stats().ResolvedIncidents == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSubmitIncident_MissingResource(t *testing.T) {
	r, _ := setupTestRouter(nil)

	body, err := json.Marshal(map[string]any{
		"anomalies": []map[string]any{{"metric": "CPU_PERCENT", "value": 99}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/incidents", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetIncident_NotFound(t *testing.T) {
	r, _ := setupTestRouter(nil)

	req := httptest.NewRequest("GET", "/api/incidents/INC-19700101000000-deadbeef", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Incident not found", body["detail"])
}

func TestGetIncident_AfterCompletion(t *testing.T) {
	r, tracker := setupTestRouter(nil)

	req := httptest.NewRequest("POST", "/api/incidents", submitBody(t))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	id := resp["incident_id"]

	require.Eventually(t, func() bool {
		return tracker.Stats().ResolvedIncidents == 1
	}, 3*time.Second, 10*time.Millisecond)

	req = httptest.NewRequest("GET", "/api/incidents/"+id, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var incident domain.Incident
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &incident))
	assert.Equal(t, id, incident.ID)
	assert.Equal(t, domain.PhaseCompleted, incident.Phase)
	require.NotNil(t, incident.Resolution)
	assert.Equal(t, domain.ResolutionResolved, incident.Resolution.Status)
}

func TestListActive_Empty(t *testing.T) {
	r, _ := setupTestRouter(nil)

	req := httptest.NewRequest("GET", "/api/incidents/active", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
}

func TestListHistory_InvalidLimit(t *testing.T) {
	r, _ := setupTestRouter(nil)

	req := httptest.NewRequest("GET", "/api/incidents/history?limit=abc", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetStats(t *testing.T) {
	r, _ := setupTestRouter(nil)

	req := httptest.NewRequest("GET", "/api/stats", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var stats orchestrator.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 0, stats.TotalIncidents)
	assert.GreaterOrEqual(t, stats.UptimeSeconds, 0.0)
}

func TestGetPostMortem_NoStore(t *testing.T) {
	r, _ := setupTestRouter(nil)

	req := httptest.NewRequest("GET", "/api/incidents/INC-19700101000000-deadbeef/postmortem", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Knowledge store not available", body["detail"])
}

func TestGetPostMortem(t *testing.T) {
	pm := &comms.PostMortem{IncidentID: "INC-19700101000000-deadbeef", Title: "Pool exhausted"}
	r, _ := setupTestRouter(&stubKnowledge{pm: pm})

	req := httptest.NewRequest("GET", "/api/incidents/INC-19700101000000-deadbeef/postmortem", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got comms.PostMortem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, pm.IncidentID, got.IncidentID)
	assert.Equal(t, pm.Title, got.Title)
}
