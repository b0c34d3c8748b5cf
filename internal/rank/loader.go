package rank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/alvmarrod/opportunity-finder/internal/fetch"
	"github.com/sirupsen/logrus"
)

var (
	listURLPattern  = regexp.MustCompile(`/(?:list|download)/([A-Za-z0-9]{5,})(?:/|$)`)
	listIDPattern   = regexp.MustCompile(`^[A-Za-z0-9]{5,}$`)
	recentIDPattern = regexp.MustCompile(`/list/([A-Z0-9]{5,})`)
)

// Meta records which list is cached and when it was fetched
type Meta struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// Status describes the local cache
type Status struct {
	Exists    bool
	Fresh     bool
	UpdatedAt time.Time
	ListID    string
}

// Loader manages the cached Tranco ranking list
type Loader struct {
	ListPath      string
	MetaPath      string
	Threshold     int
	FreshnessDays int
	SourceURL     string // e.g. https://tranco-list.eu
	MaxBytes      int
	Fetcher       *fetch.Fetcher

	now func() time.Time
}

func (l *Loader) clock() time.Time {
	if l.now != nil {
		return l.now()
	}
	return time.Now()
}

// Load reads the cached list. It never returns a nil table: on any failure the
// table is empty and the error should be surfaced to the user as a warning.
func (l *Loader) Load() (*Table, error) {
	f, err := os.Open(l.ListPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewTable(l.Threshold), fmt.Errorf("ranking list not found at %s, refresh it first", l.ListPath)
		}
		return NewTable(l.Threshold), fmt.Errorf("failed to open ranking list: %w", err)
	}
	defer f.Close()

	table, err := Parse(f, l.Threshold)
	if err != nil {
		return NewTable(l.Threshold), fmt.Errorf("failed to load ranking list %s: %w", l.ListPath, err)
	}

	if table.Dropped() > 0 {
		logrus.Warnf("Ranking list: dropped %d malformed rows", table.Dropped())
	}
	logrus.Infof("Ranking list loaded: %d domains ranked <= %d", table.Len(), l.Threshold)
	return table, nil
}

// Meta returns the cached metadata record, or nil if none was written yet
func (l *Loader) Meta() (*Meta, error) {
	data, err := os.ReadFile(l.MetaPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ranking metadata: %w", err)
	}

	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse ranking metadata: %w", err)
	}
	return &meta, nil
}

// SaveMeta writes the metadata record for list id, stamped with the current time
func (l *Loader) SaveMeta(id string) (*Meta, error) {
	meta := &Meta{ID: id, Timestamp: l.clock().UTC()}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ranking metadata: %w", err)
	}
	if err := os.WriteFile(l.MetaPath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write ranking metadata: %w", err)
	}
	return meta, nil
}

// Status reports whether the cache exists and is within the freshness window.
// Stale data is still usable; it is only flagged.
func (l *Loader) Status() Status {
	var st Status

	info, err := os.Stat(l.ListPath)
	if err != nil {
		return st
	}
	st.Exists = true
	st.UpdatedAt = info.ModTime()

	fetchedAt := info.ModTime()
	if meta, err := l.Meta(); err == nil && meta != nil {
		st.ListID = meta.ID
		fetchedAt = meta.Timestamp
	}

	window := time.Duration(l.FreshnessDays) * 24 * time.Hour
	st.Fresh = l.clock().Sub(fetchedAt) < window
	return st
}

// ParseListID extracts a list id from a Tranco URL such as
// https://tranco-list.eu/list/X5QNN/1000000, or accepts a bare id
func ParseListID(source string) (string, error) {
	source = strings.TrimSpace(source)
	if listIDPattern.MatchString(source) {
		return source, nil
	}
	if m := listURLPattern.FindStringSubmatch(source); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("invalid Tranco list URL %q", source)
}

// LatestListID scrapes the "recent" page of the list source for the newest list id
func (l *Loader) LatestListID(ctx context.Context) (string, error) {
	page := strings.TrimSuffix(l.SourceURL, "/") + "/recent"
	resp, err := l.Fetcher.Get(ctx, page)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", page, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", page, err)
	}

	var id string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if m := recentIDPattern.FindStringSubmatch(href); m != nil {
			id = m[1]
			return false
		}
		return true
	})

	if id == "" {
		return "", fmt.Errorf("could not extract list id from %s", page)
	}
	return id, nil
}

// Refresh downloads the full list identified by source (a URL or an id; empty
// means the latest list), replaces the cached CSV and updates the metadata.
func (l *Loader) Refresh(ctx context.Context, source string) (*Meta, error) {
	var id string
	var err error
	if strings.TrimSpace(source) == "" {
		id, err = l.LatestListID(ctx)
	} else {
		id, err = ParseListID(source)
	}
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/download/%s/full", strings.TrimSuffix(l.SourceURL, "/"), id)
	logrus.Infof("Downloading ranking list %s from %s", id, url)

	resp, err := l.Fetcher.GetLarge(ctx, url, l.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to download ranking list: %w", err)
	}

	// Refuse to replace a working cache with something unusable
	check, err := Parse(bytes.NewReader(resp.Body), math.MaxInt)
	if err != nil {
		return nil, fmt.Errorf("downloaded ranking list is unusable: %w", err)
	}

	if err := writeAtomic(l.ListPath, resp.Body); err != nil {
		return nil, err
	}

	meta, err := l.SaveMeta(id)
	if err != nil {
		return nil, err
	}

	logrus.Infof("Ranking list %s saved to %s (%d domains)", id, l.ListPath, check.Len())
	return meta, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ranking list: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close ranking list: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace ranking list: %w", err)
	}
	return nil
}
