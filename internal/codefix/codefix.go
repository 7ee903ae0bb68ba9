// Package codefix generates permanent-fix patches from masked incident
// evidence using the reasoning model.
package codefix

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
	"github.com/Waryjustice/azure-incident-resolver/internal/resolution"
)

const systemPrompt = `You are a senior engineer proposing a minimal code fix for a production incident.
Respond ONLY with valid JSON in this exact format (no markdown, no code fences):
{"patch": "unified diff text", "files_modified": ["path/one", "path/two"]}`

// Completer produces raw text from a system instruction and a prompt.
// The Anthropic reasoner satisfies it.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Generator implements the resolution engine's code-fix collaborator.
type Generator struct {
	completer Completer
}

func NewGenerator(completer Completer) *Generator {
	return &Generator{completer: completer}
}

func (g *Generator) GenerateFix(ctx context.Context, req resolution.FixRequest) (*domain.PermanentFix, error) {
	if g.completer == nil {
		return nil, fmt.Errorf("%w: no completer configured", domain.ErrCollaboratorFailed)
	}

	raw, err := g.completer.Complete(ctx, systemPrompt, buildPrompt(req))
	if err != nil {
		return nil, err
	}
	return parseFix(raw, req.Action)
}

func buildPrompt(req resolution.FixRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "GOAL: %s\n", req.Action)
	fmt.Fprintf(&b, "ROOT CAUSE: %s\n", req.RootCauseType)
	fmt.Fprintf(&b, "DESCRIPTION: %s\n", req.Description)
	fmt.Fprintf(&b, "AFFECTED COMPONENT: %s\n", req.AffectedComponent)
	if len(req.Evidence) > 0 {
		b.WriteString("EVIDENCE:\n")
		for _, item := range req.Evidence {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}
	b.WriteString("\nPropose the smallest safe change that addresses the root cause.")
	return b.String()
}

func parseFix(raw string, action domain.PermanentAction) (*domain.PermanentFix, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var parsed struct {
		Patch         string   `json:"patch"`
		FilesModified []string `json:"files_modified"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed fix response: %v", domain.ErrCollaboratorFailed, err)
	}
	if parsed.Patch == "" {
		return nil, fmt.Errorf("%w: fix response missing patch", domain.ErrCollaboratorFailed)
	}

	return &domain.PermanentFix{
		Action:        action,
		Patch:         parsed.Patch,
		FilesModified: parsed.FilesModified,
		Source:        domain.FixSourceAI,
	}, nil
}
