package evaluator

import (
	"context"
	"strings"
	"testing"

	"github.com/alvmarrod/opportunity-finder/internal/fetch/fetchtest"
	"github.com/alvmarrod/opportunity-finder/internal/rank"
	"github.com/alvmarrod/opportunity-finder/internal/storage"
)

var publisher = Request{
	PublisherDomain:  "example.com",
	PublisherID:      "12345",
	SampleDirectLine: "example.com, 12345, DIRECT",
}

func testTable(t *testing.T, threshold int) *rank.Table {
	t.Helper()
	table, err := rank.Parse(strings.NewReader(
		"rank,domain\n10000,partner.com\n20000,partner2.com\n30000,partner3.com\n250000,deep.com\n40000,owned.com\n",
	), threshold)
	if err != nil {
		t.Fatalf("rank.Parse: %v", err)
	}
	return table
}

func testEvaluator(t *testing.T, rules Rules) *Evaluator {
	t.Helper()
	if rules.OrgDomain == "" {
		rules.OrgDomain = "org.com"
	}
	return New(nil, testTable(t, 210000), rules)
}

func TestClassify_Scenarios(t *testing.T) {
	e := testEvaluator(t, Rules{})

	out := e.Classify("partner.com", []byte("example.com, 12345, DIRECT\n"), publisher)
	if out.Opportunity == nil {
		t.Fatalf("partner.com: expected opportunity, got skip %+v", out.Skip)
	}
	if out.Opportunity.Rank != 10000 || out.Opportunity.OrgBuying {
		t.Errorf("partner.com: got %+v", out.Opportunity)
	}
	if out.Opportunity.Qualifier != storage.QualifierDirect {
		t.Errorf("qualifier: got %q", out.Opportunity.Qualifier)
	}

	out = e.Classify("partner2.com", []byte("analyticsbuyer.com, 12345, DIRECT\n"), publisher)
	if out.Skip == nil || out.Skip.Reason != storage.ReasonNoDirectLine {
		t.Errorf("partner2.com: got %+v", out)
	}

	out = e.Classify("partner3.com", []byte("example.com, 12345, DIRECT\norg.com, 12345, DIRECT\n"), publisher)
	if out.Skip == nil || out.Skip.Reason != storage.ReasonAlreadyBuying {
		t.Errorf("partner3.com: got %+v", out)
	}
}

func TestClassify_NotRanked(t *testing.T) {
	e := testEvaluator(t, Rules{})

	for _, domain := range []string{"unknown.com", "deep.com"} {
		out := e.Classify(domain, []byte("example.com, 12345, DIRECT"), publisher)
		if out.Skip == nil || out.Skip.Reason != storage.ReasonNotRanked {
			t.Errorf("%s: got %+v", domain, out)
		}
	}
}

func TestClassify_OrgBuying(t *testing.T) {
	e := testEvaluator(t, Rules{})
	body := "example.com, 12345, DIRECT\nssp.org.com, 999, DIRECT\n"

	out := e.Classify("partner.com", []byte(body), publisher)
	if out.Opportunity == nil || !out.Opportunity.OrgBuying {
		t.Errorf("got %+v", out)
	}

	// A reseller line under another account does not flag buying
	out = e.Classify("partner.com", []byte("example.com, 12345, DIRECT\norg.com, 999, RESELLER\n"), publisher)
	if out.Opportunity == nil || out.Opportunity.OrgBuying {
		t.Errorf("reseller: got %+v", out)
	}
}

func TestClassify_ResellerOptions(t *testing.T) {
	body := []byte("example.com, 12345, DIRECT\norg.com, 12345, RESELLER\n")

	out := testEvaluator(t, Rules{}).Classify("partner.com", body, publisher)
	if out.Opportunity == nil {
		t.Errorf("default rules: RESELLER should not count as buying, got %+v", out.Skip)
	}

	out = testEvaluator(t, Rules{CountResellerAsBuying: true}).Classify("partner.com", body, publisher)
	if out.Skip == nil || out.Skip.Reason != storage.ReasonAlreadyBuying {
		t.Errorf("CountResellerAsBuying: got %+v", out)
	}
}

func TestClassify_SkipAlreadyBuyingCheck(t *testing.T) {
	e := testEvaluator(t, Rules{SkipAlreadyBuyingCheck: true})
	out := e.Classify("partner3.com", []byte("example.com, 12345, DIRECT\norg.com, 12345, DIRECT\n"), publisher)
	if out.Opportunity == nil {
		t.Fatalf("expected opportunity, got %+v", out.Skip)
	}
	if out.Opportunity.OrgBuying {
		t.Error("the publisher's own account must not flag org buying")
	}
}

func TestClassify_Ownership(t *testing.T) {
	e := testEvaluator(t, Rules{})
	cases := []struct {
		name string
		body string
		want storage.Role
	}{
		{"owner", "example.com, 12345, DIRECT\nOWNERDOMAIN=example.com\n", storage.RoleOwner},
		{"manager", "example.com, 12345, DIRECT\nmanagerdomain=Example.com\n", storage.RoleManager},
		{"owner wins", "example.com, 12345, DIRECT\nMANAGERDOMAIN=example.com\nOWNERDOMAIN=example.com\n", storage.RoleOwner},
		{"other owner", "example.com, 12345, DIRECT\nOWNERDOMAIN=someone.com\n", storage.RoleNone},
		{"none", "example.com, 12345, DIRECT\n", storage.RoleNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := e.Classify("owned.com", []byte(tc.body), publisher)
			if out.Opportunity == nil {
				t.Fatalf("expected opportunity, got %+v", out.Skip)
			}
			if out.Opportunity.Role != tc.want {
				t.Errorf("role: got %q, want %q", out.Opportunity.Role, tc.want)
			}
		})
	}
}

func TestClassify_OwnershipMatchesRegistrableDomain(t *testing.T) {
	e := testEvaluator(t, Rules{})
	req := publisher
	req.PublisherDomain = "www.example.com"

	out := e.Classify("owned.com", []byte("example.com, 12345, DIRECT\nOWNERDOMAIN=example.com\n"), req)
	if out.Opportunity == nil || out.Opportunity.Role != storage.RoleOwner {
		t.Errorf("got %+v", out)
	}
}

func TestClassify_AcceptManagerDomain(t *testing.T) {
	body := []byte("other.com, 1, DIRECT\nMANAGERDOMAIN=example.com\n")

	out := testEvaluator(t, Rules{}).Classify("partner.com", body, publisher)
	if out.Skip == nil || out.Skip.Reason != storage.ReasonNoDirectLine {
		t.Errorf("default rules: got %+v", out)
	}

	out = testEvaluator(t, Rules{AcceptManagerDomain: true}).Classify("partner.com", body, publisher)
	if out.Opportunity == nil || out.Opportunity.Qualifier != storage.QualifierManagerDomain {
		t.Errorf("AcceptManagerDomain: got %+v", out)
	}
}

func TestClassify_RobustParsing(t *testing.T) {
	e := testEvaluator(t, Rules{})
	body := "# only a comment\n\nexample.com\nexample.com, 12345\n, , DIRECT\nEXAMPLE.COM , 12345 , direct # trailing\n"

	out := e.Classify("partner.com", []byte(body), publisher)
	if out.Opportunity == nil {
		t.Errorf("expected the well-formed line to qualify, got %+v", out.Skip)
	}

	out = e.Classify("partner.com", []byte("# nothing\nexample.com, 12345\n"), publisher)
	if out.Skip == nil || out.Skip.Reason != storage.ReasonNoDirectLine {
		t.Errorf("short lines only: got %+v", out)
	}
}

func TestClassify_Idempotent(t *testing.T) {
	e := testEvaluator(t, Rules{})
	body := []byte("example.com, 12345, DIRECT\nssp.org.com, 7, DIRECT\nOWNERDOMAIN=example.com\n")

	first := e.Classify("partner.com", body, publisher)
	second := e.Classify("partner.com", body, publisher)
	if first.Opportunity == nil || second.Opportunity == nil {
		t.Fatal("expected opportunities")
	}
	a, b := *first.Opportunity, *second.Opportunity
	a.CheckedAt = b.CheckedAt
	if a != b {
		t.Errorf("classification changed: %+v vs %+v", a, b)
	}
}

// Included iff a DIRECT line from the listing domain exists, nothing already buys, and the domain is ranked
func TestClassify_InclusionRule(t *testing.T) {
	e := testEvaluator(t, Rules{})
	bodies := map[string]struct {
		body     string
		included bool
	}{
		"direct":          {"example.com, 12345, DIRECT", true},
		"reseller only":   {"example.com, 12345, RESELLER", false},
		"wrong exchange":  {"sample.com, 12345, DIRECT", false},
		"already buying":  {"example.com, 12345, DIRECT\norg.com, 12345, DIRECT", false},
		"other org buyer": {"example.com, 12345, DIRECT\norg.com, 1, DIRECT", true},
	}
	for name, tc := range bodies {
		for _, domain := range []string{"partner.com", "unranked.com"} {
			out := e.Classify(domain, []byte(tc.body), publisher)
			want := tc.included && domain == "partner.com"
			if (out.Opportunity != nil) != want {
				t.Errorf("%s/%s: included=%v, want %v", name, domain, out.Opportunity != nil, want)
			}
			if (out.Opportunity == nil) == (out.Skip == nil) {
				t.Errorf("%s/%s: outcome must be exactly one of result or skip", name, domain)
			}
		}
	}
}

func TestClassify_ThresholdMonotonic(t *testing.T) {
	body := []byte("example.com, 12345, DIRECT")
	candidates := []string{"partner.com", "partner2.com", "partner3.com", "owned.com", "deep.com"}

	included := func(threshold int) map[string]bool {
		e := New(nil, testTable(t, threshold), Rules{OrgDomain: "org.com"})
		set := make(map[string]bool)
		for _, d := range candidates {
			if e.Classify(d, body, publisher).Opportunity != nil {
				set[d] = true
			}
		}
		return set
	}

	prev := included(5000)
	for _, threshold := range []int{15000, 35000, 210000, 300000} {
		next := included(threshold)
		for d := range prev {
			if !next[d] {
				t.Errorf("raising threshold to %d dropped %s", threshold, d)
			}
		}
		prev = next
	}
	if len(prev) != len(candidates) {
		t.Errorf("threshold 300000: got %d included, want %d", len(prev), len(candidates))
	}
}

func TestEvaluate_Fetch(t *testing.T) {
	tr := fetchtest.NewTransport()
	tr.File("partner.com", "/ads.txt", "example.com, 12345, DIRECT\n")
	tr.Status("partner2.com", 404)

	e := New(fetchtest.NewFetcher(tr), testTable(t, 210000), Rules{OrgDomain: "org.com"})
	ctx := context.Background()

	out := e.Evaluate(ctx, "Partner.com", publisher)
	if out.Opportunity == nil || out.Opportunity.Domain != "partner.com" || out.FetchFailed {
		t.Errorf("partner.com: got %+v", out)
	}

	out = e.Evaluate(ctx, "partner2.com", publisher)
	if out.Skip == nil || out.Skip.Reason != storage.ReasonHTTPError || out.Skip.Detail != "404" {
		t.Errorf("partner2.com: got %+v", out.Skip)
	}
	if !out.FetchFailed {
		t.Error("HTTP error should count as a failed fetch")
	}

	out = e.Evaluate(ctx, "partner3.com", publisher)
	if out.Skip == nil || out.Skip.Reason != storage.ReasonRequestError {
		t.Errorf("partner3.com: got %+v", out.Skip)
	}
	if out.Domain() != "partner3.com" {
		t.Errorf("Domain: got %q", out.Domain())
	}

	want := []string{"https://partner.com/ads.txt", "https://partner2.com/ads.txt", "https://partner3.com/ads.txt"}
	got := tr.Requests()
	if len(got) != len(want) {
		t.Fatalf("requests: got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("request %d: got %s, want %s", i, got[i], want[i])
		}
	}
}
