package rank

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var (
	// ErrMalformed is returned when no row of a ranking CSV could be parsed
	ErrMalformed = errors.New("malformed ranking data")
	// ErrNoRows is returned when a ranking CSV holds no rows at all
	ErrNoRows = errors.New("ranking list has no rows")
)

// Table maps normalized domains to their popularity rank.
// It is immutable once built; refreshes build a new Table.
type Table struct {
	ranks     map[string]int
	threshold int
	dropped   int
}

// NewTable returns an empty table
func NewTable(threshold int) *Table {
	return &Table{ranks: make(map[string]int), threshold: threshold}
}

// Parse reads "rank,domain" rows. A leading header row is skipped, malformed rows
// are dropped one by one, and rows ranked above threshold are left out.
// The returned table is never nil.
func Parse(r io.Reader, threshold int) (*Table, error) {
	t := NewTable(threshold)

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true
	reader.TrimLeadingSpace = true

	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				t.dropped++
				continue
			}
			return t, fmt.Errorf("failed to read ranking CSV: %w", err)
		}

		rows++
		if len(record) < 2 {
			t.dropped++
			continue
		}

		rank, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			if rows == 1 {
				// Header row
				continue
			}
			t.dropped++
			continue
		}

		domain := strings.ToLower(strings.TrimSpace(record[1]))
		if rank < 1 || domain == "" {
			t.dropped++
			continue
		}
		if rank > threshold {
			continue
		}

		if existing, ok := t.ranks[domain]; !ok || rank < existing {
			t.ranks[domain] = rank
		}
	}

	if rows == 0 {
		return t, ErrNoRows
	}
	if len(t.ranks) == 0 && t.dropped > 0 {
		return t, fmt.Errorf("%w: %d rows dropped", ErrMalformed, t.dropped)
	}
	return t, nil
}

// Lookup returns the rank of domain
func (t *Table) Lookup(domain string) (int, bool) {
	rank, ok := t.ranks[strings.ToLower(strings.TrimSpace(domain))]
	return rank, ok
}

// Len returns the number of ranked domains
func (t *Table) Len() int {
	return len(t.ranks)
}

// Threshold returns the highest rank kept in the table
func (t *Table) Threshold() int {
	return t.threshold
}

// Dropped returns how many malformed rows were skipped while parsing
func (t *Table) Dropped() int {
	return t.dropped
}
