package storage

import "time"

// Role is the ownership relationship an ads.txt declares with the publisher
type Role string

const (
	RoleNone    Role = ""
	RoleOwner   Role = "Owner"
	RoleManager Role = "Manager"
)

// Qualifier records which rule let a domain through the "has direct" check
const (
	QualifierDirect        = "direct"
	QualifierManagerDomain = "managerdomain"
)

// Skip reasons
const (
	ReasonHTTPError     = "HTTP error"
	ReasonRequestError  = "request error"
	ReasonNoDirectLine  = "no direct line"
	ReasonAlreadyBuying = "already buying"
	ReasonNotRanked     = "not in ranked list"
)

// Opportunity is one qualifying candidate domain
type Opportunity struct {
	Domain    string    `json:"domain"`
	Rank      int       `json:"rank"`
	OrgBuying bool      `json:"org_buying"`
	Role      Role      `json:"role,omitempty"`
	Qualifier string    `json:"qualifier"`
	Note      string    `json:"note,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Skip is a candidate domain excluded by a rule or a fetch failure
type Skip struct {
	Domain    string    `json:"domain"`
	Reason    string    `json:"reason"`
	Detail    string    `json:"detail,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Message renders the reason together with its detail, if any
func (s Skip) Message() string {
	if s.Detail == "" {
		return s.Reason
	}
	return s.Reason + " (" + s.Detail + ")"
}

// Run is the complete outcome of one analysis, keyed by publisher name and id
type Run struct {
	RunID            string        `json:"run_id"`
	PublisherName    string        `json:"publisher_name"`
	PublisherID      string        `json:"publisher_id"`
	PublisherDomain  string        `json:"publisher_domain"`
	SampleDirectLine string        `json:"sample_direct_line"`
	Manual           bool          `json:"manual"`
	Results          []Opportunity `json:"results"`
	Skipped          []Skip        `json:"skipped"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// RunSummary is a lightweight listing entry for stored runs
type RunSummary struct {
	RunID         string
	PublisherName string
	PublisherID   string
	Opportunities int
	Skipped       int
	UpdatedAt     time.Time
}

// Metrics tracks run statistics for export on exit
type Metrics struct {
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
	DomainsDiscovered  int       `json:"domains_discovered"`
	DomainsChecked     int       `json:"domains_checked"`
	OpportunitiesFound int       `json:"opportunities_found"`
	DomainsSkipped     int       `json:"domains_skipped"`
	FetchesFailed      int       `json:"fetches_failed"`
	TotalFetchTimeMs   int64     `json:"total_fetch_time_ms"`
	AvgFetchTimeMs     int64     `json:"avg_fetch_time_ms"`
	TerminationReason  string    `json:"termination_reason"`
}
