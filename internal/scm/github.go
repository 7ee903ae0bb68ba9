// Package scm opens pull requests carrying permanent fixes against the
// service's source repository.
package scm

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

const defaultBaseURL = "https://api.github.com"

// GitHubConfig configures the pull-request client.
type GitHubConfig struct {
	Owner   string
	Repo    string
	Token   string
	BaseURL string
	Base    string
}

// GitHubClient creates pull requests via the GitHub REST API.
type GitHubClient struct {
	config     GitHubConfig
	httpClient *http.Client
}

func NewGitHubClient(cfg GitHubConfig) *GitHubClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Base == "" {
		cfg.Base = "main"
	}
	return &GitHubClient{
		config:     cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// OpenPullRequest creates a PR from branch onto the configured base branch.
func (c *GitHubClient) OpenPullRequest(ctx context.Context, branch, title, body string) (*domain.PullRequest, error) {
	payload, err := json.Marshal(map[string]string{
		"title": title,
		"head":  branch,
		"base":  c.config.Base,
		"body":  body,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal PR payload: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/%s/pulls", c.config.BaseURL, c.config.Owner, c.config.Repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build PR request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: PR request: %v", domain.ErrCollaboratorFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read PR response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("%w: github returned %d: %s", domain.ErrCollaboratorFailed, resp.StatusCode, string(respBody))
	}

	var created struct {
		HTMLURL string `json:"html_url"`
		Number  int    `json:"number"`
	}
	if err := json.Unmarshal(respBody, &created); err != nil {
		return nil, fmt.Errorf("parse PR response: %w", err)
	}
	log.Printf("[scm] opened PR #%d: %s", created.Number, created.HTMLURL)

	return &domain.PullRequest{
		URL:    created.HTMLURL,
		Number: created.Number,
		Branch: branch,
		Title:  title,
	}, nil
}
