package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/alvmarrod/opportunity-finder/internal/storage"
)

// History holds analysis runs in memory for the lifetime of the process
type History struct {
	runs map[key]*storage.Run // (publisher name, publisher id) -> run
	mu   sync.RWMutex
}

type key struct {
	name string
	id   string
}

// NewHistory creates an empty in-memory history
func NewHistory() *History {
	return &History{
		runs: make(map[key]*storage.Run),
	}
}

// SaveRun stores a copy of run, overwriting any run with the same publisher name and id
func (h *History) SaveRun(run *storage.Run) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = time.Now()
	}
	h.runs[key{run.PublisherName, run.PublisherID}] = copyRun(run)
	return nil
}

// LoadRun retrieves a run by publisher name and id
func (h *History) LoadRun(publisherName, publisherID string) (*storage.Run, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if run, exists := h.runs[key{publisherName, publisherID}]; exists {
		// Return a copy to prevent external modifications
		return copyRun(run), nil
	}

	return nil, nil // Not found (matches storage behavior)
}

// ListRuns returns a summary of every run, most recently updated first
func (h *History) ListRuns() ([]storage.RunSummary, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]storage.RunSummary, 0, len(h.runs))
	for _, run := range h.runs {
		out = append(out, storage.RunSummary{
			RunID:         run.RunID,
			PublisherName: run.PublisherName,
			PublisherID:   run.PublisherID,
			Opportunities: len(run.Results),
			Skipped:       len(run.Skipped),
			UpdatedAt:     run.UpdatedAt,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Close is a no-op so History can stand in for the SQLite store
func (h *History) Close() error {
	return nil
}

func copyRun(run *storage.Run) *storage.Run {
	c := *run
	c.Results = append([]storage.Opportunity(nil), run.Results...)
	c.Skipped = append([]storage.Skip(nil), run.Skipped...)
	return &c
}
