// Package sellers discovers candidate partner domains from a publisher's sellers.json
// or from a manually supplied list.
package sellers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/alvmarrod/opportunity-finder/internal/domains"
	"github.com/alvmarrod/opportunity-finder/internal/fetch"
	"github.com/sirupsen/logrus"
)

var (
	// ErrMalformed is returned for a body that is not a JSON object with a sellers array
	ErrMalformed = errors.New("malformed sellers.json")
	// ErrMissingSellers is returned when the document has no "sellers" field
	ErrMissingSellers = errors.New(`sellers.json has no "sellers" field`)
)

var manualSeparators = regexp.MustCompile(`[\s,;]+`)

// Seller is one entry of the sellers array
type Seller struct {
	SellerID     string
	Name         string
	Domain       string
	SellerType   string // PUBLISHER, INTERMEDIARY or BOTH
	Confidential bool
}

// Document is a decoded sellers.json
type Document struct {
	ContactEmail string
	Version      string
	Sellers      []Seller
}

// Decode parses a sellers.json body. Entries with unexpected shapes are
// skipped rather than failing the whole document.
func Decode(data []byte) (*Document, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	raw, ok := top["sellers"]
	if !ok {
		return nil, ErrMissingSellers
	}

	var entries []map[string]any
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: sellers is not an array of objects: %v", ErrMalformed, err)
	}

	doc := &Document{}
	json.Unmarshal(top["contact_email"], &doc.ContactEmail)
	json.Unmarshal(top["version"], &doc.Version)

	for _, e := range entries {
		if e == nil {
			continue
		}
		doc.Sellers = append(doc.Sellers, Seller{
			SellerID:     stringField(e, "seller_id"),
			Name:         stringField(e, "name"),
			Domain:       stringField(e, "domain"),
			SellerType:   strings.ToUpper(stringField(e, "seller_type")),
			Confidential: boolField(e, "is_confidential"),
		})
	}
	return doc, nil
}

// Candidates returns the sorted, de-duplicated, valid seller domains,
// excluding the publisher's own domain
func (d *Document) Candidates(publisherDomain string) []string {
	raw := make([]string, 0, len(d.Sellers))
	for _, s := range d.Sellers {
		if s.Domain != "" {
			raw = append(raw, s.Domain)
		}
	}
	return domains.SortedSet(raw, publisherDomain)
}

// ParseDocument decodes a sellers.json body and returns its candidate domains
func ParseDocument(data []byte, publisherDomain string) ([]string, error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return doc.Candidates(publisherDomain), nil
}

// ParseManual accepts a comma/newline separated domain list or a pasted
// sellers.json document
func ParseManual(blob, publisherDomain string) ([]string, error) {
	blob = strings.TrimSpace(blob)
	if blob == "" {
		return nil, nil
	}

	if strings.HasPrefix(blob, "{") {
		return ParseDocument([]byte(blob), publisherDomain)
	}

	return domains.SortedSet(manualSeparators.Split(blob, -1), publisherDomain), nil
}

// Discoverer fetches sellers.json files
type Discoverer struct {
	Fetcher *fetch.Fetcher
}

// Discover fetches https://{publisherDomain}/sellers.json and returns its candidates.
// Any failure yields an empty set together with the error.
func (d *Discoverer) Discover(ctx context.Context, publisherDomain string) ([]string, error) {
	publisherDomain = domains.Normalize(publisherDomain)
	if publisherDomain == "" {
		return nil, errors.New("publisher domain is required")
	}

	url := fetch.URL(publisherDomain, "sellers.json")
	resp, err := d.Fetcher.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("could not fetch %s: %w", url, err)
	}

	candidates, err := ParseDocument(bytes.TrimSpace(resp.Body), publisherDomain)
	if err != nil {
		return nil, fmt.Errorf("invalid sellers.json at %s: %w", url, err)
	}

	logrus.Infof("sellers.json for %s lists %d candidate domains", publisherDomain, len(candidates))
	return candidates, nil
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func boolField(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v == "1" || strings.EqualFold(v, "true")
	default:
		return false
	}
}
