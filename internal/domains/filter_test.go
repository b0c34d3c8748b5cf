package domains

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Example.com":                       "example.com",
		"  partner.COM  ":                   "partner.com",
		"https://Example.com/ads.txt":       "example.com",
		"http://news.example.org:8080/path": "news.example.org",
		"//cdn.example.net/x":               "cdn.example.net",
		"example.com.":                      "example.com",
		"":                                  "",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsValid(t *testing.T) {
	valid := []string{"example.com", "news.example.co.uk", "a-b.example.io"}
	for _, d := range valid {
		if !IsValid(d) {
			t.Errorf("IsValid(%q) = false, want true", d)
		}
	}

	invalid := []string{"", "com", "localhost", "-bad.com", "bad-.com", "white space.com", "under_score.com"}
	for _, d := range invalid {
		if IsValid(d) {
			t.Errorf("IsValid(%q) = true, want false", d)
		}
	}
}

func TestRootDomain(t *testing.T) {
	cases := map[string]string{
		"blog.example.com":  "example.com",
		"a.b.example.co.uk": "example.co.uk",
		"example.com":       "example.com",
	}
	for in, want := range cases {
		if got := RootDomain(in); got != want {
			t.Errorf("RootDomain(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSortedSet(t *testing.T) {
	raw := []string{"Zeta.com", "alpha.com", "ALPHA.com", "example.com", "not a domain", "", "beta.org"}
	got := SortedSet(raw, "Example.com")
	want := []string{"alpha.com", "beta.org", "zeta.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SortedSet = %v, want %v", got, want)
	}
}
