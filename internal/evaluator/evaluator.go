// Package evaluator classifies candidate domains from their ads.txt.
package evaluator

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/alvmarrod/opportunity-finder/internal/adstxt"
	"github.com/alvmarrod/opportunity-finder/internal/domains"
	"github.com/alvmarrod/opportunity-finder/internal/fetch"
	"github.com/alvmarrod/opportunity-finder/internal/rank"
	"github.com/alvmarrod/opportunity-finder/internal/storage"
	"github.com/sirupsen/logrus"
)

// Rules holds the business-rule options
type Rules struct {
	OrgDomain              string
	CountResellerAsBuying  bool // a RESELLER line under the org exchange also counts as buying
	SkipAlreadyBuyingCheck bool
	AcceptManagerDomain    bool // a MANAGERDOMAIN naming the publisher satisfies the direct check
}

// Request identifies the publisher a candidate is evaluated for
type Request struct {
	PublisherDomain  string
	PublisherID      string
	SampleDirectLine string
}

// Outcome is exactly one of an opportunity or a skip
type Outcome struct {
	Opportunity *storage.Opportunity
	Skip        *storage.Skip

	// Fetch bookkeeping for metrics
	FetchDuration time.Duration
	FetchFailed   bool
}

// Domain returns the candidate the outcome is about
func (o Outcome) Domain() string {
	if o.Opportunity != nil {
		return o.Opportunity.Domain
	}
	if o.Skip != nil {
		return o.Skip.Domain
	}
	return ""
}

// Evaluator fetches and classifies one candidate at a time
type Evaluator struct {
	fetcher *fetch.Fetcher
	table   *rank.Table
	rules   Rules
	now     func() time.Time
}

// New creates an Evaluator. A nil table behaves as an empty ranking.
func New(fetcher *fetch.Fetcher, table *rank.Table, rules Rules) *Evaluator {
	if table == nil {
		table = rank.NewTable(0)
	}
	rules.OrgDomain = strings.ToLower(strings.TrimSpace(rules.OrgDomain))
	return &Evaluator{
		fetcher: fetcher,
		table:   table,
		rules:   rules,
		now:     time.Now,
	}
}

// Evaluate fetches https://{domain}/ads.txt and classifies it. Fetch failures
// become skips; Evaluate never returns an error.
func (e *Evaluator) Evaluate(ctx context.Context, domain string, req Request) Outcome {
	domain = domains.Normalize(domain)
	url := fetch.URL(domain, "ads.txt")

	resp, err := e.fetcher.Get(ctx, url)
	if err != nil {
		out := Outcome{FetchFailed: true}
		if resp != nil {
			out.FetchDuration = resp.Duration
		}

		var statusErr *fetch.StatusError
		if errors.As(err, &statusErr) {
			logrus.Warnf("%s: ads.txt returned HTTP %d", domain, statusErr.Code)
			out.Skip = e.skip(domain, storage.ReasonHTTPError, strconv.Itoa(statusErr.Code))
			return out
		}

		logrus.Warnf("%s: ads.txt request failed: %v", domain, err)
		out.Skip = e.skip(domain, storage.ReasonRequestError, errorDetail(err))
		return out
	}

	out := e.Classify(domain, resp.Body, req)
	out.FetchDuration = resp.Duration
	return out
}

// Classify applies the rules to an already fetched ads.txt body
func (e *Evaluator) Classify(domain string, body []byte, req Request) Outcome {
	domain = domains.Normalize(domain)
	file := adstxt.Parse(body)
	listing := adstxt.ListingDomain(req.SampleDirectLine)
	publisher := domains.Normalize(req.PublisherDomain)

	qualifier := ""
	if hasDirect(file, listing) {
		qualifier = storage.QualifierDirect
	} else if e.rules.AcceptManagerDomain && publisher != "" && declares(file, adstxt.VarManagerDomain, publisher) {
		qualifier = storage.QualifierManagerDomain
	}
	if qualifier == "" {
		logrus.Debugf("%s: no DIRECT line for %s", domain, listing)
		return Outcome{Skip: e.skip(domain, storage.ReasonNoDirectLine, "")}
	}

	orgBuying := false
	if e.rules.OrgDomain != "" {
		for _, rec := range file.Records {
			if !strings.Contains(rec.ExchangeDomain, e.rules.OrgDomain) {
				continue
			}
			if rec.AccountID == req.PublisherID {
				if e.rules.SkipAlreadyBuyingCheck {
					continue
				}
				if rec.Relationship == adstxt.Direct || (e.rules.CountResellerAsBuying && rec.Relationship == adstxt.Reseller) {
					logrus.Debugf("%s: line %d already buys for account %s", domain, rec.Line, rec.AccountID)
					return Outcome{Skip: e.skip(domain, storage.ReasonAlreadyBuying, "")}
				}
				continue
			}
			if rec.Relationship == adstxt.Direct {
				orgBuying = true
			}
		}
	}

	r, ok := e.table.Lookup(domain)
	if !ok {
		return Outcome{Skip: e.skip(domain, storage.ReasonNotRanked, "")}
	}

	return Outcome{Opportunity: &storage.Opportunity{
		Domain:    domain,
		Rank:      r,
		OrgBuying: orgBuying,
		Role:      role(file, publisher),
		Qualifier: qualifier,
		CheckedAt: e.now(),
	}}
}

func (e *Evaluator) skip(domain, reason, detail string) *storage.Skip {
	return &storage.Skip{
		Domain:    domain,
		Reason:    reason,
		Detail:    detail,
		CheckedAt: e.now(),
	}
}

func hasDirect(file *adstxt.File, listing string) bool {
	if listing == "" {
		return false
	}
	for _, rec := range file.Records {
		if rec.ExchangeDomain == listing && rec.Relationship == adstxt.Direct {
			return true
		}
	}
	return false
}

func declares(file *adstxt.File, key, publisher string) bool {
	for _, v := range file.VariablesNamed(key) {
		if strings.Contains(strings.ToLower(v.Value), publisher) {
			return true
		}
	}
	return false
}

// role reports the ownership declared towards publisher; OWNERDOMAIN wins over MANAGERDOMAIN.
// Both variables name a registrable domain, so the publisher is matched by its eTLD+1.
func role(file *adstxt.File, publisher string) storage.Role {
	if publisher == "" {
		return storage.RoleNone
	}
	publisher = domains.RootDomain(publisher)
	if declares(file, adstxt.VarOwnerDomain, publisher) {
		return storage.RoleOwner
	}
	if declares(file, adstxt.VarManagerDomain, publisher) {
		return storage.RoleManager
	}
	return storage.RoleNone
}

func errorDetail(err error) string {
	var netErr *fetch.NetworkError
	if errors.As(err, &netErr) && netErr.Err != nil {
		err = netErr.Err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return err.Error()
}
