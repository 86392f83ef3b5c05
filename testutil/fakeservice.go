package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tonimelisma/fissurewatch/internal/fissure"
)

// DefaultHold is how long the fake service holds a long-poll whose known
// ids are still current.
const DefaultHold = 30 * time.Second

// FakeService is an in-memory fissure service. Immediate requests answer
// at once; long-poll requests are held while the caller's known ids match
// the current result, and released by Set or after Hold.
type FakeService struct {
	Hold time.Duration

	mu       sync.Mutex
	fissures []fissure.Fissure
	changed  chan struct{}
	failures []int
	requests []Request

	srv *httptest.Server
}

// Request is one request seen by the fake service.
type Request struct {
	Path         string
	MissionTypes []string
	IsHard       string
	KnownIDs     []string
}

// NewFakeService starts a fake service with the given fissures. Call Close
// when done.
func NewFakeService(initial ...fissure.Fissure) *FakeService {
	f := &FakeService{
		Hold:     DefaultHold,
		fissures: slices.Clone(initial),
		changed:  make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Get("/fissures/immediate", f.handleImmediate)
	r.Get("/fissures", f.handlePoll)

	f.srv = httptest.NewServer(r)

	return f
}

// URL returns the base URL of the service.
func (f *FakeService) URL() string {
	return f.srv.URL
}

// Close shuts the server down, releasing held polls.
func (f *FakeService) Close() {
	f.srv.CloseClientConnections()
	f.srv.Close()
}

// Set replaces the fissures and releases every held long-poll.
func (f *FakeService) Set(fissures ...fissure.Fissure) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fissures = slices.Clone(fissures)
	close(f.changed)
	f.changed = make(chan struct{})
}

// FailNext makes the next requests answer with the given status codes, in
// order.
func (f *FakeService) FailNext(statuses ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failures = append(f.failures, statuses...)
}

// Requests returns a copy of every request seen so far.
func (f *FakeService) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()

	return slices.Clone(f.requests)
}

func (f *FakeService) handleImmediate(w http.ResponseWriter, r *http.Request) {
	if f.record(w, r) {
		return
	}

	f.writeMatches(w, r)
}

func (f *FakeService) handlePoll(w http.ResponseWriter, r *http.Request) {
	if f.record(w, r) {
		return
	}

	known := knownIDs(r)
	slices.Sort(known)

	hold := time.NewTimer(f.Hold)
	defer hold.Stop()

	for {
		ids, changed := f.matchState(r)
		if !slices.Equal(ids, known) {
			break
		}

		select {
		case <-changed:
			continue
		case <-hold.C:
		case <-r.Context().Done():
			return
		}

		break
	}

	f.writeMatches(w, r)
}

// record logs the request and answers with a queued failure if there is
// one. It reports whether the response has been written.
func (f *FakeService) record(w http.ResponseWriter, r *http.Request) bool {
	q := r.URL.Query()

	f.mu.Lock()
	f.requests = append(f.requests, Request{
		Path:         r.URL.Path,
		MissionTypes: q["missionTypes"],
		IsHard:       q.Get("isHard"),
		KnownIDs:     knownIDs(r),
	})

	status := 0
	if len(f.failures) > 0 {
		status = f.failures[0]
		f.failures = f.failures[1:]
	}
	f.mu.Unlock()

	if status == 0 {
		return false
	}

	http.Error(w, http.StatusText(status), status)

	return true
}

// knownIDs splits the comma-joined knownIds parameter.
func knownIDs(r *http.Request) []string {
	v := r.URL.Query().Get("knownIds")
	if v == "" {
		return nil
	}

	return strings.Split(v, ",")
}

// matchState returns the sorted ids matching r and the channel closed on
// the next Set.
func (f *FakeService) matchState(r *http.Request) ([]string, <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ids []string
	for _, fi := range f.filter(r) {
		ids = append(ids, fi.ID)
	}

	slices.Sort(ids)

	return ids, f.changed
}

func (f *FakeService) writeMatches(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	matches := f.filter(r)
	f.mu.Unlock()

	ids := make([]string, 0, len(matches))
	for _, fi := range matches {
		ids = append(ids, fi.ID)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"fissures":   matches,
		"fissureIds": ids,
	})
}

// filter applies the query's filter to the current fissures. Callers hold
// f.mu.
func (f *FakeService) filter(r *http.Request) []fissure.Fissure {
	q := r.URL.Query()
	types := q["missionTypes"]

	var hard *bool
	if v := q.Get("isHard"); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			hard = &b
		}
	}

	out := make([]fissure.Fissure, 0, len(f.fissures))

	for _, fi := range f.fissures {
		if len(types) > 0 && !slices.Contains(types, fi.MissionType) {
			continue
		}

		if hard != nil && fi.IsHard != *hard {
			continue
		}

		out = append(out, fi)
	}

	return out
}
