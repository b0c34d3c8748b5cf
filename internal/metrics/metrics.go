package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/alvmarrod/opportunity-finder/internal/storage"
)

// Tracker holds and manages run metrics
type Tracker struct {
	mu               sync.Mutex
	data             storage.Metrics
	totalFetchTimeMs int64
	fetchCount       int
}

// NewTracker creates a new metrics tracker
func NewTracker() *Tracker {
	return &Tracker{
		data: storage.Metrics{
			StartTime: time.Now(),
		},
	}
}

// AddDomainsDiscovered adds to the candidate domain counter
func (t *Tracker) AddDomainsDiscovered(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.DomainsDiscovered += n
}

// IncrementDomainsChecked increments the evaluated domains counter
func (t *Tracker) IncrementDomainsChecked() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.DomainsChecked++
}

// IncrementOpportunities increments the qualifying domains counter
func (t *Tracker) IncrementOpportunities() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.OpportunitiesFound++
}

// IncrementSkipped increments the skipped domains counter
func (t *Tracker) IncrementSkipped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.DomainsSkipped++
}

// IncrementFetchesFailed increments the failed fetch counter
func (t *Tracker) IncrementFetchesFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.FetchesFailed++
}

// RecordFetchTime records an ads.txt fetch duration
func (t *Tracker) RecordFetchTime(duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalFetchTimeMs += duration.Milliseconds()
	t.fetchCount++
}

// GetSnapshot returns a copy of current metrics
func (t *Tracker) GetSnapshot() storage.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := t.data
	snapshot.TotalFetchTimeMs = t.totalFetchTimeMs

	// Calculate average fetch time
	if t.fetchCount > 0 {
		snapshot.AvgFetchTimeMs = t.totalFetchTimeMs / int64(t.fetchCount)
	}

	return snapshot
}

// WriteToFile exports metrics to a JSON file
func (t *Tracker) WriteToFile(path, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Finalize metrics
	t.data.EndTime = time.Now()
	t.data.TerminationReason = reason
	t.data.TotalFetchTimeMs = t.totalFetchTimeMs

	if t.fetchCount > 0 {
		t.data.AvgFetchTimeMs = t.totalFetchTimeMs / int64(t.fetchCount)
	}

	jsonData, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// LogProgress formats current metrics for periodic console updates
func (t *Tracker) LogProgress() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return fmt.Sprintf("Domains: %d/%d checked | %d opportunities, %d skipped | %d fetches failed",
		t.data.DomainsChecked,
		t.data.DomainsDiscovered,
		t.data.OpportunitiesFound,
		t.data.DomainsSkipped,
		t.data.FetchesFailed,
	)
}
