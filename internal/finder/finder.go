// Package finder runs the discovery, evaluation and aggregation pipeline for one publisher
// and keeps the outcome in a history keyed by publisher name and id.
package finder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alvmarrod/opportunity-finder/internal/config"
	"github.com/alvmarrod/opportunity-finder/internal/evaluator"
	"github.com/alvmarrod/opportunity-finder/internal/fetch"
	"github.com/alvmarrod/opportunity-finder/internal/rank"
	"github.com/alvmarrod/opportunity-finder/internal/report"
	"github.com/alvmarrod/opportunity-finder/internal/sellers"
	"github.com/alvmarrod/opportunity-finder/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoCandidates is returned when discovery and manual input yield nothing to check
	ErrNoCandidates = errors.New("no valid domains found to check")
	// ErrRunNotFound is returned when no run is stored for a publisher name and id
	ErrRunNotFound = errors.New("no stored run for this publisher")
)

// History stores one run per (publisher name, publisher id); saving replaces the previous run
type History interface {
	SaveRun(run *storage.Run) error
	LoadRun(publisherName, publisherID string) (*storage.Run, error)
	ListRuns() ([]storage.RunSummary, error)
	Close() error
}

// Request is the input of one analysis run
type Request struct {
	PublisherDomain  string
	PublisherName    string
	PublisherID      string
	SampleDirectLine string
	ManualDomains    string // newline/comma list or pasted sellers.json; skips discovery when set
}

func (r Request) validate() error {
	if strings.TrimSpace(r.PublisherID) == "" {
		return errors.New("publisher id is required")
	}
	if strings.TrimSpace(r.SampleDirectLine) == "" {
		return errors.New("sample direct line is required")
	}
	if strings.TrimSpace(r.PublisherDomain) == "" && strings.TrimSpace(r.ManualDomains) == "" {
		return errors.New("publisher domain is required unless domains are supplied manually")
	}
	return nil
}

// MetricsCallback receives counter deltas as the run progresses
type MetricsCallback func(discovered, checked, opportunities, skipped, fetchesFailed int, fetchTime time.Duration)

// Finder orchestrates a run
type Finder struct {
	history         History
	discoverer      *sellers.Discoverer
	evaluator       *evaluator.Evaluator
	metricsCallback MetricsCallback
	now             func() time.Time
}

// NewFinder creates a finder whose evaluation rules come from cfg
func NewFinder(cfg *config.Config, fetcher *fetch.Fetcher, table *rank.Table, history History, metricsCallback MetricsCallback) *Finder {
	rules := evaluator.Rules{
		OrgDomain:              cfg.OrgDomain,
		CountResellerAsBuying:  cfg.CountResellerAsBuying,
		SkipAlreadyBuyingCheck: cfg.SkipAlreadyBuyingCheck,
		AcceptManagerDomain:    cfg.AcceptManagerDomain,
	}

	return &Finder{
		history:         history,
		discoverer:      &sellers.Discoverer{Fetcher: fetcher},
		evaluator:       evaluator.New(fetcher, table, rules),
		metricsCallback: metricsCallback,
		now:             time.Now,
	}
}

// History returns the run store
func (f *Finder) History() History {
	return f.history
}

// Candidates resolves the domains to evaluate for req
func (f *Finder) Candidates(ctx context.Context, req Request) ([]string, error) {
	if strings.TrimSpace(req.ManualDomains) != "" {
		candidates, err := sellers.ParseManual(req.ManualDomains, req.PublisherDomain)
		if err != nil {
			return nil, fmt.Errorf("failed to parse manual domains: %w", err)
		}
		logrus.Infof("Using %d manually supplied domains", len(candidates))
		return candidates, nil
	}

	candidates, err := f.discoverer.Discover(ctx, req.PublisherDomain)
	if err != nil {
		return nil, fmt.Errorf("seller discovery failed: %w", err)
	}
	return candidates, nil
}

// Run evaluates every candidate in sorted order and saves the run. Per-domain failures
// become skips. If ctx is canceled between domains, the partial run is saved and
// returned together with the context error.
func (f *Finder) Run(ctx context.Context, req Request) (*storage.Run, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	candidates, err := f.Candidates(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	f.notify(len(candidates), 0, 0, 0, 0, 0)

	now := f.now()
	run := &storage.Run{
		RunID:            uuid.NewString(),
		PublisherName:    strings.TrimSpace(req.PublisherName),
		PublisherID:      strings.TrimSpace(req.PublisherID),
		PublisherDomain:  strings.ToLower(strings.TrimSpace(req.PublisherDomain)),
		SampleDirectLine: strings.TrimSpace(req.SampleDirectLine),
		Manual:           strings.TrimSpace(req.ManualDomains) != "",
		CreatedAt:        now,
	}
	agg := report.NewAggregator(run)
	evalReq := evaluationRequest(run)

	logrus.Infof("Run %s: checking %d domains for %s (%s)", run.RunID, len(candidates), run.PublisherName, run.PublisherID)

	var runErr error
	for i, domain := range candidates {
		if err := ctx.Err(); err != nil {
			logrus.Warnf("Run %s interrupted after %d/%d domains", run.RunID, i, len(candidates))
			runErr = err
			break
		}

		out := f.evaluator.Evaluate(ctx, domain, evalReq)
		if out.FetchFailed && ctx.Err() != nil {
			// Aborted mid-request; the domain was never evaluated
			logrus.Warnf("Run %s interrupted while checking %s", run.RunID, domain)
			runErr = ctx.Err()
			break
		}

		f.record(agg, out)
		logrus.Infof("[%d/%d] %s", i+1, len(candidates), describe(out))
	}

	run.UpdatedAt = f.now()
	if err := f.history.SaveRun(run); err != nil {
		return run, fmt.Errorf("failed to save run: %w", err)
	}

	logrus.Infof("Run %s: %s", run.RunID, agg.Summary())
	return run, runErr
}

// Recheck re-evaluates one skipped domain of a stored run. A domain that now qualifies
// moves into the results; otherwise its skip reason is updated. The run is saved either way.
func (f *Finder) Recheck(ctx context.Context, publisherName, publisherID, domain string) (*storage.Run, evaluator.Outcome, error) {
	run, err := f.load(publisherName, publisherID)
	if err != nil {
		return nil, evaluator.Outcome{}, err
	}

	agg := report.NewAggregator(run)
	if _, ok := agg.Skip(domain); !ok {
		return run, evaluator.Outcome{}, fmt.Errorf("%s: %w", domain, report.ErrNotSkipped)
	}

	out := f.evaluator.Evaluate(ctx, domain, evaluationRequest(run))
	if out.FetchFailed && ctx.Err() != nil {
		return run, out, ctx.Err()
	}

	if out.Opportunity != nil {
		err = agg.Promote(*out.Opportunity)
	} else {
		err = agg.Demote(*out.Skip)
	}
	if err != nil {
		return run, out, err
	}
	f.notify(0, 1, boolInt(out.Opportunity != nil), boolInt(out.Skip != nil), boolInt(out.FetchFailed), out.FetchDuration)

	run.UpdatedAt = f.now()
	if err := f.history.SaveRun(run); err != nil {
		return run, out, fmt.Errorf("failed to save run: %w", err)
	}

	logrus.Infof("Recheck %s", describe(out))
	return run, out, nil
}

// Annotate attaches a free-text note to a result of a stored run
func (f *Finder) Annotate(publisherName, publisherID, domain, note string) (*storage.Run, error) {
	run, err := f.load(publisherName, publisherID)
	if err != nil {
		return nil, err
	}

	if err := report.NewAggregator(run).Annotate(domain, note); err != nil {
		return run, err
	}

	run.UpdatedAt = f.now()
	if err := f.history.SaveRun(run); err != nil {
		return run, fmt.Errorf("failed to save run: %w", err)
	}
	return run, nil
}

// Load returns the stored run for a publisher
func (f *Finder) Load(publisherName, publisherID string) (*storage.Run, error) {
	return f.load(publisherName, publisherID)
}

func (f *Finder) load(publisherName, publisherID string) (*storage.Run, error) {
	run, err := f.history.LoadRun(strings.TrimSpace(publisherName), strings.TrimSpace(publisherID))
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("%s (%s): %w", publisherName, publisherID, ErrRunNotFound)
	}
	return run, nil
}

func (f *Finder) record(agg *report.Aggregator, out evaluator.Outcome) {
	switch {
	case out.Opportunity != nil:
		agg.AddResult(*out.Opportunity)
		f.notify(0, 1, 1, 0, boolInt(out.FetchFailed), out.FetchDuration)
	case out.Skip != nil:
		agg.AddSkip(*out.Skip)
		f.notify(0, 1, 0, 1, boolInt(out.FetchFailed), out.FetchDuration)
	}
}

func (f *Finder) notify(discovered, checked, opportunities, skipped, fetchesFailed int, fetchTime time.Duration) {
	if f.metricsCallback != nil {
		f.metricsCallback(discovered, checked, opportunities, skipped, fetchesFailed, fetchTime)
	}
}

func evaluationRequest(run *storage.Run) evaluator.Request {
	return evaluator.Request{
		PublisherDomain:  run.PublisherDomain,
		PublisherID:      run.PublisherID,
		SampleDirectLine: run.SampleDirectLine,
	}
}

func describe(out evaluator.Outcome) string {
	if o := out.Opportunity; o != nil {
		msg := fmt.Sprintf("%s: opportunity at rank %d", o.Domain, o.Rank)
		if o.OrgBuying {
			msg += ", org already buying"
		}
		if o.Role != storage.RoleNone {
			msg += ", " + string(o.Role)
		}
		return msg
	}
	if s := out.Skip; s != nil {
		return fmt.Sprintf("%s: skipped, %s", s.Domain, s.Message())
	}
	return "empty outcome"
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
