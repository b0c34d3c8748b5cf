// Package fetchtest serves canned responses per host so pipeline tests never touch the network.
package fetchtest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/alvmarrod/opportunity-finder/internal/fetch"
)

// Transport is an http.RoundTripper that dispatches on the request host.
// Unknown hosts fail like a DNS lookup would.
type Transport struct {
	mu       sync.Mutex
	handlers map[string]http.Handler
	requests []string
}

// NewTransport returns an empty Transport
func NewTransport() *Transport {
	return &Transport{handlers: make(map[string]http.Handler)}
}

// Handle registers a handler for host
func (t *Transport) Handle(host string, h http.Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[host] = h
}

// File serves body with status 200 at host/path
func (t *Transport) File(host, path, body string) {
	t.Handle(host, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
}

// Files serves several paths on host; other paths get 404
func (t *Transport) Files(host string, files map[string]string) {
	t.Handle(host, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
}

// Status answers every request to host with code
func (t *Transport) Status(host string, code int) {
	t.Handle(host, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	}))
}

// Requests returns the URLs requested so far, in order
func (t *Transport) Requests() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.requests))
	copy(out, t.requests)
	return out
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	h, ok := t.handlers[req.URL.Hostname()]
	t.requests = append(t.requests, req.URL.String())
	t.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("dial tcp: lookup %s: no such host", req.URL.Hostname())
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}

// NewFetcher returns a fetcher without pacing that uses t
func NewFetcher(t *Transport) *fetch.Fetcher {
	return fetch.New(fetch.Config{Transport: t})
}
