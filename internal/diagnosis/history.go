package diagnosis

import (
	"sort"
	"strings"
	"sync"

	"github.com/Waryjustice/azure-incident-resolver/internal/domain"
)

// Similarity scoring constants.
const (
	scoreResourceTypeMatch = 2
	scoreMetricMatch       = 1
	similarityPerPoint     = 0.3
	similarityCap          = 0.95
	maxSimilarMatches      = 3

	// DefaultHistorySize bounds the in-memory incident corpus
	DefaultHistorySize = 20
)

// historyEntry is a diagnosed incident retained for similarity lookups
type historyEntry struct {
	IncidentID string
	RootCause  domain.RootCause
	Context    Context
}

// History is a size-bounded ring of recently diagnosed incidents, owned by
// the diagnosis engine. Safe for concurrent use.
type History struct {
	mu       sync.Mutex
	entries  []historyEntry
	capacity int
}

// NewHistory creates a History bounded to capacity entries
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{capacity: capacity}
}

// Append records a diagnosed incident, evicting the oldest entry beyond
// the capacity bound.
func (h *History) Append(incidentID string, rootCause domain.RootCause, ctx Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, historyEntry{
		IncidentID: incidentID,
		RootCause:  rootCause,
		Context:    ctx,
	})
	if len(h.entries) > h.capacity {
		h.entries = h.entries[len(h.entries)-h.capacity:]
	}
}

// Len returns the number of retained entries
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Search scores past incidents against the context: +2 for a resource-type
// match, +1 per anomaly metric appearing in a past root cause's type or
// description. Scores normalize to min(score*0.3, 0.95); the top 3 matches
// return in descending similarity order.
func (h *History) Search(ctx Context) []domain.SimilarIncident {
	h.mu.Lock()
	entries := make([]historyEntry, len(h.entries))
	copy(entries, h.entries)
	h.mu.Unlock()

	resourceType := strings.ToLower(ctx.ResourceType)
	metrics := make([]string, 0, len(ctx.AnomalyMetrics))
	for _, m := range ctx.AnomalyMetrics {
		if m != "" {
			metrics = append(metrics, strings.ToLower(m))
		}
	}

	var matches []domain.SimilarIncident
	for _, past := range entries {
		score := 0
		if resourceType != "" && strings.ToLower(past.Context.ResourceType) == resourceType {
			score += scoreResourceTypeMatch
		}
		rcType := strings.ToLower(string(past.RootCause.Type))
		rcDesc := strings.ToLower(past.RootCause.Description)
		for _, metric := range metrics {
			if strings.Contains(rcType, metric) || strings.Contains(rcDesc, metric) {
				score += scoreMetricMatch
			}
		}
		if score == 0 {
			continue
		}
		similarity := float64(score) * similarityPerPoint
		if similarity > similarityCap {
			similarity = similarityCap
		}
		matches = append(matches, domain.SimilarIncident{
			IncidentID:     past.IncidentID,
			Similarity:     similarity,
			RootCause:      past.RootCause,
			ResolutionHint: string(past.RootCause.Type),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > maxSimilarMatches {
		matches = matches[:maxSimilarMatches]
	}
	return matches
}
