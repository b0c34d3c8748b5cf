package rank

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alvmarrod/opportunity-finder/internal/fetch/fetchtest"
)

func testLoader(t *testing.T, tr *fetchtest.Transport) *Loader {
	t.Helper()
	dir := t.TempDir()
	l := &Loader{
		ListPath:      filepath.Join(dir, "top-1m.csv"),
		MetaPath:      filepath.Join(dir, "tranco_meta.json"),
		Threshold:     210000,
		FreshnessDays: 14,
		SourceURL:     "https://tranco-list.eu",
	}
	if tr != nil {
		l.Fetcher = fetchtest.NewFetcher(tr)
	}
	return l
}

func TestLoad_MissingFileDegradesToEmpty(t *testing.T) {
	l := testLoader(t, nil)
	table, err := l.Load()
	if err == nil {
		t.Error("expected a warning for a missing list")
	}
	if table == nil || table.Len() != 0 {
		t.Fatalf("expected empty non-nil table, got %v", table)
	}
}

func TestLoad_MalformedFileDegradesToEmpty(t *testing.T) {
	l := testLoader(t, nil)
	os.WriteFile(l.ListPath, []byte("rank,domain\nnot,numbers\n"), 0644)

	table, err := l.Load()
	if err == nil {
		t.Error("expected a warning for an unusable list")
	}
	if table == nil || table.Len() != 0 {
		t.Fatalf("expected empty non-nil table")
	}
}

func TestLoad_ReadsCache(t *testing.T) {
	l := testLoader(t, nil)
	os.WriteFile(l.ListPath, []byte("1,google.com\n10000,partner.com\n250000,tail.com\n"), 0644)

	table, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if table.Len() != 2 {
		t.Errorf("Len: got %d, want 2", table.Len())
	}
}

func TestStatus_Freshness(t *testing.T) {
	l := testLoader(t, nil)

	if st := l.Status(); st.Exists {
		t.Fatalf("status before download: %+v", st)
	}

	os.WriteFile(l.ListPath, []byte("1,google.com\n"), 0644)
	fetched := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fetched }
	if _, err := l.SaveMeta("X5QNN"); err != nil {
		t.Fatalf("SaveMeta: %v", err)
	}

	l.now = func() time.Time { return fetched.Add(13 * 24 * time.Hour) }
	st := l.Status()
	if !st.Exists || !st.Fresh || st.ListID != "X5QNN" {
		t.Errorf("13 days old should be fresh: %+v", st)
	}

	l.now = func() time.Time { return fetched.Add(15 * 24 * time.Hour) }
	if st := l.Status(); st.Fresh {
		t.Errorf("15 days old should be stale: %+v", st)
	}

	// Stale lists stay usable
	if table, err := l.Load(); err != nil || table.Len() != 1 {
		t.Errorf("stale list should still load: %v", err)
	}
}

func TestParseListID(t *testing.T) {
	valid := map[string]string{
		"https://tranco-list.eu/list/X5QNN/1000000":  "X5QNN",
		"https://tranco-list.eu/list/KJ94W":          "KJ94W",
		"https://tranco-list.eu/download/abc12/full": "abc12",
		"  LJ8Y4 ":                                   "LJ8Y4",
	}
	for in, want := range valid {
		got, err := ParseListID(in)
		if err != nil || got != want {
			t.Errorf("ParseListID(%q) = %q, %v; want %q", in, got, err, want)
		}
	}

	for _, in := range []string{"", "https://tranco-list.eu/", "abc", "https://tranco-list.eu/list/ab/"} {
		if _, err := ParseListID(in); err == nil {
			t.Errorf("ParseListID(%q) should fail", in)
		}
	}
}

const recentPage = `<html><body>
<a href="/about">About</a>
<a href="/list/Z7K2Q/1000000">Latest list</a>
<a href="/list/AAAAA/1000000">Older list</a>
</body></html>`

func TestRefresh_Latest(t *testing.T) {
	tr := fetchtest.NewTransport()
	tr.Files("tranco-list.eu", map[string]string{
		"/recent":              recentPage,
		"/download/Z7K2Q/full": "1,google.com\n2,example.com\n",
	})
	l := testLoader(t, tr)

	meta, err := l.Refresh(context.Background(), "")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if meta.ID != "Z7K2Q" {
		t.Errorf("ID: got %q, want Z7K2Q", meta.ID)
	}

	table, err := l.Load()
	if err != nil || table.Len() != 2 {
		t.Fatalf("Load after refresh: len=%d err=%v", table.Len(), err)
	}

	stored, err := l.Meta()
	if err != nil || stored == nil || stored.ID != "Z7K2Q" {
		t.Errorf("Meta after refresh: %+v, %v", stored, err)
	}
}

func TestRefresh_FromURL(t *testing.T) {
	tr := fetchtest.NewTransport()
	tr.File("tranco-list.eu", "/download/X5QNN/full", "1,google.com\n")
	l := testLoader(t, tr)

	meta, err := l.Refresh(context.Background(), "https://tranco-list.eu/list/X5QNN/1000000")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if meta.ID != "X5QNN" {
		t.Errorf("ID: got %q", meta.ID)
	}
}

func TestRefresh_FailureKeepsCache(t *testing.T) {
	tr := fetchtest.NewTransport()
	tr.Status("tranco-list.eu", 500)
	l := testLoader(t, tr)
	os.WriteFile(l.ListPath, []byte("1,google.com\n"), 0644)

	if _, err := l.Refresh(context.Background(), "X5QNN"); err == nil {
		t.Fatal("expected error on HTTP 500")
	}

	data, _ := os.ReadFile(l.ListPath)
	if !strings.Contains(string(data), "google.com") {
		t.Error("failed refresh must not overwrite the cache")
	}
}

func TestRefresh_RejectsUnusableDownload(t *testing.T) {
	tr := fetchtest.NewTransport()
	tr.File("tranco-list.eu", "/download/X5QNN/full", "<html>maintenance</html>")
	l := testLoader(t, tr)

	if _, err := l.Refresh(context.Background(), "X5QNN"); err == nil {
		t.Fatal("expected error for a download with no usable rows")
	}
	if _, err := os.Stat(l.ListPath); !os.IsNotExist(err) {
		t.Error("unusable download must not be written")
	}
}
