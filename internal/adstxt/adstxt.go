// Package adstxt parses IAB ads.txt files into seller records and variable declarations.
package adstxt

import (
	"strings"
)

// Relationship is the third field of an ads.txt record
type Relationship string

const (
	Direct   Relationship = "DIRECT"
	Reseller Relationship = "RESELLER"
	Unknown  Relationship = "UNKNOWN"
)

// Well-known variable names
const (
	VarOwnerDomain   = "OWNERDOMAIN"
	VarManagerDomain = "MANAGERDOMAIN"
	VarContact       = "CONTACT"
	VarSubdomain     = "SUBDOMAIN"
)

// Record is one "exchange, account, relationship[, certification]" declaration
type Record struct {
	ExchangeDomain  string
	AccountID       string
	Relationship    Relationship
	CertificationID string
	Line            int
}

// Variable is a KEY=VALUE declaration such as OWNERDOMAIN=example.com
type Variable struct {
	Key   string
	Value string
	Line  int
}

// File holds everything parsed from one ads.txt body
type File struct {
	Records   []Record
	Variables []Variable
}

// Parse reads an ads.txt body. Comments are stripped, lines with fewer than
// three comma-separated fields are dropped silently, and parsing never fails.
func Parse(body []byte) *File {
	f := &File{}

	text := strings.TrimPrefix(string(body), "\uFEFF")
	for i, raw := range strings.Split(text, "\n") {
		line := raw
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if !strings.Contains(line, ",") {
			if key, value, ok := strings.Cut(line, "="); ok {
				f.Variables = append(f.Variables, Variable{
					Key:   strings.ToUpper(strings.TrimSpace(key)),
					Value: strings.TrimSpace(value),
					Line:  i + 1,
				})
			}
			continue
		}

		fields := strings.SplitN(line, ",", 4)
		if len(fields) < 3 {
			continue
		}
		for j := range fields {
			fields[j] = strings.TrimSpace(fields[j])
		}
		if fields[0] == "" || fields[1] == "" {
			continue
		}

		rec := Record{
			ExchangeDomain: strings.ToLower(fields[0]),
			AccountID:      fields[1],
			Relationship:   parseRelationship(fields[2]),
			Line:           i + 1,
		}
		if len(fields) == 4 {
			// Extension data after ';' is not part of the certification id
			cert, _, _ := strings.Cut(fields[3], ";")
			rec.CertificationID = strings.TrimSpace(cert)
		}
		f.Records = append(f.Records, rec)
	}

	return f
}

func parseRelationship(s string) Relationship {
	switch Relationship(strings.ToUpper(s)) {
	case Direct:
		return Direct
	case Reseller:
		return Reseller
	default:
		return Unknown
	}
}

// VariablesNamed returns the variables with key, in file order
func (f *File) VariablesNamed(key string) []Variable {
	key = strings.ToUpper(key)
	var out []Variable
	for _, v := range f.Variables {
		if v.Key == key {
			out = append(out, v)
		}
	}
	return out
}

// ListingDomain derives the exchange domain from a sample direct line such as
// "example.com, 12345, DIRECT"
func ListingDomain(sampleLine string) string {
	first, _, _ := strings.Cut(sampleLine, ",")
	return strings.ToLower(strings.TrimSpace(first))
}
