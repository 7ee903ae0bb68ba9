package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
)

// MetricQuery maps one monitored metric to the PromQL expression that
// produces its current value.
type MetricQuery struct {
	Metric    string  `json:"metric"`
	Query     string  `json:"query"`
	Threshold float64 `json:"threshold"`
}

// MonitorTarget is one resource under observation with its metric queries
type MonitorTarget struct {
	Resource domain.Resource `json:"resource"`
	Queries  []MetricQuery   `json:"queries"`
}

// PrometheusSource implements SampleSource against a Prometheus
// query endpoint. Each poll runs every target's queries and returns
// the instant-vector values as samples.
type PrometheusSource struct {
	endpoint string
	targets  []MonitorTarget
	client   *http.Client
}

// NewPrometheusSource creates a Prometheus-backed sample source
func NewPrometheusSource(endpoint string, targets []MonitorTarget, timeout time.Duration) *PrometheusSource {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &PrometheusSource{
		endpoint: strings.TrimRight(endpoint, "/"),
		targets:  targets,
		client:   &http.Client{Timeout: timeout},
	}
}

// LoadTargets reads monitor targets from a JSON file
func LoadTargets(path string) ([]MonitorTarget, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	var targets []MonitorTarget
	if err := json.Unmarshal(raw, &targets); err != nil {
		return nil, fmt.Errorf("parse targets file: %w", err)
	}
	return targets, nil
}

// Resources lists the monitored resources
func (s *PrometheusSource) Resources(_ context.Context) ([]domain.Resource, error) {
	resources := make([]domain.Resource, 0, len(s.targets))
	for _, t := range s.targets {
		resources = append(resources, t.Resource)
	}
	return resources, nil
}

// Samples runs the configured queries for one resource. A query that
// returns no data points is skipped rather than treated as a breach.
func (s *PrometheusSource) Samples(ctx context.Context, resource domain.Resource) ([]Sample, error) {
	var target *MonitorTarget
	for i := range s.targets {
		if s.targets[i].Resource.ID == resource.ID {
			target = &s.targets[i]
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("resource %s is not monitored", resource.ID)
	}

	samples := make([]Sample, 0, len(target.Queries))
	for _, q := range target.Queries {
		value, ok, err := s.query(ctx, q.Query)
		if err != nil {
			return nil, fmt.Errorf("query %s for %s: %w", q.Metric, resource.ID, err)
		}
		if !ok {
			continue
		}
		samples = append(samples, Sample{
			Metric:    q.Metric,
			Value:     value,
			Threshold: q.Threshold,
		})
	}
	return samples, nil
}

// query executes one instant query and returns the first result value
func (s *PrometheusSource) query(ctx context.Context, promQL string) (float64, bool, error) {
	queryURL := fmt.Sprintf("%s/api/v1/query?query=%s", s.endpoint, url.QueryEscape(promQL))
	req, err := http.NewRequestWithContext(ctx, "GET", queryURL, nil)
	if err != nil {
		return 0, false, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("prometheus request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("prometheus returned %d", resp.StatusCode)
	}

	var body struct {
		Data struct {
			Result []struct {
				Value [2]json.RawMessage `json:"value"`
			} `json:"result"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, false, fmt.Errorf("decode response: %w", err)
	}

	if len(body.Data.Result) == 0 {
		return 0, false, nil
	}

	// Index 1 of the value pair is the sample value
	var valStr string
	if err := json.Unmarshal(body.Data.Result[0].Value[1], &valStr); err != nil {
		return 0, false, fmt.Errorf("parse value: %w", err)
	}
	value, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse float value: %w", err)
	}
	return value, true, nil
}
