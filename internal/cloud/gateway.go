package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
)

// CircuitBreakerExecutor flips the circuit breaker for the affected
// component via the API gateway's admin endpoint.
type CircuitBreakerExecutor struct {
	gatewayURL string
	httpClient *http.Client
	dryRun     bool
}

func NewCircuitBreakerExecutor(gatewayURL string, dryRun bool) *CircuitBreakerExecutor {
	return &CircuitBreakerExecutor{
		gatewayURL: gatewayURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		dryRun:     dryRun,
	}
}

func (e *CircuitBreakerExecutor) Execute(ctx context.Context, incident *domain.Incident) domain.ImmediateFix {
	component := incident.Resource.Name
	if incident.Diagnosis != nil && incident.Diagnosis.RootCause.AffectedComponent != "" {
		component = incident.Diagnosis.RootCause.AffectedComponent
	}

	if e.dryRun {
		log.Printf("[cloud] dry run: would enable circuit breaker for %s", component)
		return domain.ImmediateFix{
			Success: true,
			Details: fmt.Sprintf("dry run: would enable circuit breaker for %s", component),
		}
	}

	body, err := json.Marshal(map[string]any{
		"enabled":   true,
		"component": component,
		"reason":    "incident " + incident.ID,
	})
	if err != nil {
		return failedFix(fmt.Errorf("marshal body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.gatewayURL+"/admin/circuit-breaker", bytes.NewReader(body))
	if err != nil {
		return failedFix(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return failedFix(fmt.Errorf("gateway request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return failedFix(fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(respBody)))
	}
	log.Printf("[cloud] circuit breaker enabled for %s", component)

	return domain.ImmediateFix{
		Success: true,
		Details: fmt.Sprintf("circuit breaker activated for %s", component),
	}
}
