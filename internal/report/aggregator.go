// Package report maintains the result table and skip log of a run and exports them.
package report

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/alvmarrod/opportunity-finder/internal/storage"
)

var (
	// ErrNotSkipped is returned when a recheck targets a domain that is not in the skip log
	ErrNotSkipped = errors.New("domain is not in the skip log")
	// ErrNotFound is returned when annotating a domain that is not in the results
	ErrNotFound = errors.New("domain is not in the results")
)

// Summary holds the headline counts of a run
type Summary struct {
	Scanned   int
	Found     int
	Skipped   int
	OrgBuying int
	Owners    int
	Managers  int
}

func (s Summary) String() string {
	return fmt.Sprintf("%d domains scanned | %d opportunities found | %d skipped | %d already bought by the org",
		s.Scanned, s.Found, s.Skipped, s.OrgBuying)
}

// Aggregator mutates a run while keeping each domain in at most one of results and skipped.
// Results stay sorted by rank, then domain; skips keep insertion order.
type Aggregator struct {
	run *storage.Run
}

// NewAggregator wraps run
func NewAggregator(run *storage.Run) *Aggregator {
	a := &Aggregator{run: run}
	a.sortResults()
	return a
}

// Run returns the wrapped run
func (a *Aggregator) Run() *storage.Run {
	return a.run
}

// AddResult inserts or replaces an opportunity, removing any skip for the same domain
func (a *Aggregator) AddResult(o storage.Opportunity) {
	o.Domain = key(o.Domain)
	a.removeSkip(o.Domain)
	if i := a.resultIndex(o.Domain); i >= 0 {
		if o.Note == "" {
			o.Note = a.run.Results[i].Note
		}
		a.run.Results = append(a.run.Results[:i], a.run.Results[i+1:]...)
	}

	i := sort.Search(len(a.run.Results), func(i int) bool {
		return less(o, a.run.Results[i])
	})
	a.run.Results = append(a.run.Results, storage.Opportunity{})
	copy(a.run.Results[i+1:], a.run.Results[i:])
	a.run.Results[i] = o
}

// AddSkip records a skip, replacing any earlier entry for the domain in either list
func (a *Aggregator) AddSkip(s storage.Skip) {
	s.Domain = key(s.Domain)
	if i := a.resultIndex(s.Domain); i >= 0 {
		a.run.Results = append(a.run.Results[:i], a.run.Results[i+1:]...)
	}
	if i := a.skipIndex(s.Domain); i >= 0 {
		a.run.Skipped[i] = s
		return
	}
	a.run.Skipped = append(a.run.Skipped, s)
}

// Promote moves a skipped domain into the results
func (a *Aggregator) Promote(o storage.Opportunity) error {
	if a.skipIndex(key(o.Domain)) < 0 {
		return fmt.Errorf("%s: %w", o.Domain, ErrNotSkipped)
	}
	a.AddResult(o)
	return nil
}

// Demote updates the reason of a domain that failed again
func (a *Aggregator) Demote(s storage.Skip) error {
	i := a.skipIndex(key(s.Domain))
	if i < 0 {
		return fmt.Errorf("%s: %w", s.Domain, ErrNotSkipped)
	}
	s.Domain = key(s.Domain)
	a.run.Skipped[i] = s
	return nil
}

// Annotate sets the free-text note of a result
func (a *Aggregator) Annotate(domain, note string) error {
	i := a.resultIndex(key(domain))
	if i < 0 {
		return fmt.Errorf("%s: %w", domain, ErrNotFound)
	}
	a.run.Results[i].Note = strings.TrimSpace(note)
	return nil
}

// Skip returns the skip entry for domain
func (a *Aggregator) Skip(domain string) (storage.Skip, bool) {
	i := a.skipIndex(key(domain))
	if i < 0 {
		return storage.Skip{}, false
	}
	return a.run.Skipped[i], true
}

// Summary counts the current results and skips
func (a *Aggregator) Summary() Summary {
	return Summarize(a.run)
}

// Summarize counts the results and skips of run
func Summarize(run *storage.Run) Summary {
	s := Summary{
		Found:   len(run.Results),
		Skipped: len(run.Skipped),
	}
	s.Scanned = s.Found + s.Skipped
	for _, o := range run.Results {
		if o.OrgBuying {
			s.OrgBuying++
		}
		switch o.Role {
		case storage.RoleOwner:
			s.Owners++
		case storage.RoleManager:
			s.Managers++
		}
	}
	return s
}

func (a *Aggregator) sortResults() {
	sort.SliceStable(a.run.Results, func(i, j int) bool {
		return less(a.run.Results[i], a.run.Results[j])
	})
}

func (a *Aggregator) resultIndex(domain string) int {
	for i, o := range a.run.Results {
		if o.Domain == domain {
			return i
		}
	}
	return -1
}

func (a *Aggregator) skipIndex(domain string) int {
	for i, s := range a.run.Skipped {
		if s.Domain == domain {
			return i
		}
	}
	return -1
}

func (a *Aggregator) removeSkip(domain string) {
	if i := a.skipIndex(domain); i >= 0 {
		a.run.Skipped = append(a.run.Skipped[:i], a.run.Skipped[i+1:]...)
	}
}

func less(a, b storage.Opportunity) bool {
	if a.Rank != b.Rank {
		return a.Rank < b.Rank
	}
	return a.Domain < b.Domain
}

func key(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}
