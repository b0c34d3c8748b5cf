package report

import (
	"errors"
	"testing"

	"github.com/alvmarrod/opportunity-finder/internal/storage"
)

func domainsOf(run *storage.Run) (results, skipped []string) {
	for _, o := range run.Results {
		results = append(results, o.Domain)
	}
	for _, s := range run.Skipped {
		skipped = append(skipped, s.Domain)
	}
	return results, skipped
}

func assertDisjoint(t *testing.T, run *storage.Run) {
	t.Helper()
	seen := make(map[string]bool)
	for _, o := range run.Results {
		seen[o.Domain] = true
	}
	for _, s := range run.Skipped {
		if seen[s.Domain] {
			t.Errorf("%s is both a result and a skip", s.Domain)
		}
	}
}

func TestAggregator_SortOrder(t *testing.T) {
	a := NewAggregator(&storage.Run{})
	a.AddResult(storage.Opportunity{Domain: "c.com", Rank: 300})
	a.AddResult(storage.Opportunity{Domain: "b.com", Rank: 100})
	a.AddResult(storage.Opportunity{Domain: "a.com", Rank: 300})
	a.AddResult(storage.Opportunity{Domain: "d.com", Rank: 5})

	got, _ := domainsOf(a.Run())
	want := []string{"d.com", "b.com", "a.com", "c.com"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestAggregator_NewSortsExistingResults(t *testing.T) {
	run := &storage.Run{Results: []storage.Opportunity{
		{Domain: "late.com", Rank: 900},
		{Domain: "early.com", Rank: 9},
	}}
	NewAggregator(run)
	if run.Results[0].Domain != "early.com" {
		t.Errorf("got %v", run.Results)
	}
}

func TestAggregator_Disjoint(t *testing.T) {
	a := NewAggregator(&storage.Run{})
	a.AddSkip(storage.Skip{Domain: "x.com", Reason: storage.ReasonHTTPError})
	a.AddResult(storage.Opportunity{Domain: "X.com", Rank: 1})
	assertDisjoint(t, a.Run())

	a.AddSkip(storage.Skip{Domain: "x.com", Reason: storage.ReasonNoDirectLine})
	assertDisjoint(t, a.Run())
	results, skipped := domainsOf(a.Run())
	if len(results) != 0 || len(skipped) != 1 {
		t.Errorf("got results %v, skipped %v", results, skipped)
	}

	a.AddSkip(storage.Skip{Domain: "x.com", Reason: storage.ReasonNotRanked})
	if len(a.Run().Skipped) != 1 || a.Run().Skipped[0].Reason != storage.ReasonNotRanked {
		t.Errorf("repeat skip should replace in place, got %+v", a.Run().Skipped)
	}
}

func TestAggregator_PromoteDemote(t *testing.T) {
	a := NewAggregator(&storage.Run{})
	a.AddResult(storage.Opportunity{Domain: "keep.com", Rank: 50})
	a.AddSkip(storage.Skip{Domain: "first.com", Reason: storage.ReasonRequestError})
	a.AddSkip(storage.Skip{Domain: "retry.com", Reason: storage.ReasonRequestError})

	if err := a.Demote(storage.Skip{Domain: "retry.com", Reason: storage.ReasonHTTPError, Detail: "503"}); err != nil {
		t.Fatalf("Demote: %v", err)
	}
	s, ok := a.Skip("retry.com")
	if !ok || s.Message() != "HTTP error (503)" {
		t.Errorf("after Demote: got %+v", s)
	}

	if err := a.Promote(storage.Opportunity{Domain: "retry.com", Rank: 10}); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	assertDisjoint(t, a.Run())
	if _, ok := a.Skip("retry.com"); ok {
		t.Error("promoted domain still skipped")
	}
	if a.Run().Results[0].Domain != "retry.com" {
		t.Errorf("promoted result should sort first, got %v", a.Run().Results)
	}
	if a.Run().Skipped[0].Domain != "first.com" {
		t.Errorf("remaining skip order: got %+v", a.Run().Skipped)
	}

	if err := a.Promote(storage.Opportunity{Domain: "keep.com"}); !errors.Is(err, ErrNotSkipped) {
		t.Errorf("Promote non-skipped: got %v", err)
	}
	if err := a.Demote(storage.Skip{Domain: "nope.com"}); !errors.Is(err, ErrNotSkipped) {
		t.Errorf("Demote unknown: got %v", err)
	}
}

func TestAggregator_Annotate(t *testing.T) {
	a := NewAggregator(&storage.Run{})
	a.AddResult(storage.Opportunity{Domain: "a.com", Rank: 1})

	if err := a.Annotate("A.com", "  contact sales  "); err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if a.Run().Results[0].Note != "contact sales" {
		t.Errorf("Note: got %q", a.Run().Results[0].Note)
	}

	// Re-adding the result keeps the note
	a.AddResult(storage.Opportunity{Domain: "a.com", Rank: 2})
	if a.Run().Results[0].Note != "contact sales" || a.Run().Results[0].Rank != 2 {
		t.Errorf("after re-add: got %+v", a.Run().Results[0])
	}

	if err := a.Annotate("missing.com", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Annotate missing: got %v", err)
	}
}

func TestAggregator_Summary(t *testing.T) {
	a := NewAggregator(&storage.Run{})
	a.AddResult(storage.Opportunity{Domain: "a.com", Rank: 1, OrgBuying: true, Role: storage.RoleOwner})
	a.AddResult(storage.Opportunity{Domain: "b.com", Rank: 2, Role: storage.RoleManager})
	a.AddSkip(storage.Skip{Domain: "c.com", Reason: storage.ReasonNotRanked})

	got := a.Summary()
	want := Summary{Scanned: 3, Found: 2, Skipped: 1, OrgBuying: 1, Owners: 1, Managers: 1}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
