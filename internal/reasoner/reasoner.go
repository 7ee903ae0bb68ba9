// Package reasoner provides the AI root-cause inference collaborator.
package reasoner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
)

// SystemPrompt frames the inference request. The model must answer with a
// bare JSON object matching the root-cause shape.
const SystemPrompt = `You are an expert Site Reliability Engineer diagnosing production incidents in cloud environments.
Analyze the incident data provided and identify the root cause.
Respond with ONLY a valid JSON object in this exact format (no markdown, no explanation):
{
  "type": "snake_case_type",
  "description": "Clear one-sentence description of the root cause",
  "affected_component": "Component name",
  "evidence": ["Evidence point 1", "Evidence point 2", "Evidence point 3"]
}`

// Reasoner infers a root cause from an incident prompt
type Reasoner interface {
	Infer(ctx context.Context, prompt string) (*domain.RootCause, error)
}

// ParseRootCause extracts a root cause from a model response, tolerating
// markdown code fences around the JSON body.
func ParseRootCause(raw string) (*domain.RootCause, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		parts := strings.SplitN(trimmed, "```", 3)
		if len(parts) >= 2 {
			trimmed = parts[1]
		}
		trimmed = strings.TrimPrefix(strings.TrimSpace(trimmed), "json")
		trimmed = strings.TrimSpace(trimmed)
	}

	var rc domain.RootCause
	if err := json.Unmarshal([]byte(trimmed), &rc); err != nil {
		return nil, fmt.Errorf("%w: parse root cause: %v", domain.ErrCollaboratorFailed, err)
	}
	if rc.Type == "" || rc.Description == "" {
		return nil, fmt.Errorf("%w: root cause missing type or description", domain.ErrCollaboratorFailed)
	}
	return &rc, nil
}
