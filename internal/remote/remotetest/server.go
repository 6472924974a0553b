// Package remotetest provides an in-memory json-server look-alike for tests.
package remotetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// Server serves collections of JSON records with equality filters and
// PATCH merge semantics. Records keep insertion order.
type Server struct {
	URL string

	srv *httptest.Server

	mu      sync.Mutex
	data    map[string][]map[string]any
	nextID  int
	counts  map[string]int
	down    bool
	failing map[string]int
	delay   time.Duration
	slow    map[string]time.Duration
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		data:    make(map[string][]map[string]any),
		counts:  make(map[string]int),
		failing: make(map[string]int),
		slow:    make(map[string]time.Duration),
	}

	r := chi.NewRouter()
	r.Use(s.middleware)
	r.Get("/{collection}", s.list)
	r.Post("/{collection}", s.create)
	r.Get("/{collection}/{id}", s.get)
	r.Patch("/{collection}/{id}", s.patch)
	r.Delete("/{collection}/{id}", s.remove)

	s.srv = httptest.NewServer(r)
	s.URL = s.srv.URL
	t.Cleanup(s.srv.Close)
	return s
}

// Seed stores records in a collection. Records are JSON-encoded first so
// typed structs can be passed.
func (s *Server) Seed(collection string, records ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		obj := toObject(rec)
		if _, ok := obj["id"]; !ok {
			s.nextID++
			obj["id"] = strconv.Itoa(s.nextID)
		}
		s.data[collection] = append(s.data[collection], obj)
	}
}

// Records decodes every record of a collection into out, a pointer to a slice.
func (s *Server) Records(collection string, out any) error {
	s.mu.Lock()
	raw, err := json.Marshal(s.data[collection])
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// Record decodes one record into out and reports whether it exists.
func (s *Server) Record(collection, id string, out any) bool {
	s.mu.Lock()
	obj, _ := s.find(collection, id)
	raw, _ := json.Marshal(obj)
	s.mu.Unlock()
	if obj == nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// Count returns how many requests hit "METHOD /collection", e.g.
// Count("PATCH", "messages").
func (s *Server) Count(method, collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[method+" "+collection]
}

// ResetCounts clears request counters.
func (s *Server) ResetCounts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[string]int)
}

// SetDown makes every request answer 503 until cleared.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// FailNext makes the next n requests matching method and collection answer 503.
func (s *Server) FailNext(method, collection string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[method+" "+collection] += n
}

// SetDelay delays every response.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// DelayNext holds back only the next request matching method and
// collection, so later requests can overtake it.
func (s *Server) DelayNext(method, collection string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slow[method+" "+collection] = d
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		collection := strings.Split(strings.Trim(r.URL.Path, "/"), "/")[0]
		key := r.Method + " " + collection

		s.mu.Lock()
		s.counts[key]++
		fail := s.down
		if !fail && s.failing[key] > 0 {
			s.failing[key]--
			fail = true
		}
		delay := s.delay
		if d, ok := s.slow[key]; ok {
			delay += d
			delete(s.slow, key)
		}
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if fail {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	query := r.URL.Query()

	s.mu.Lock()
	out := []map[string]any{}
	for _, obj := range s.data[collection] {
		if matches(obj, query) {
			out = append(out, obj)
		}
	}
	writeJSON(w, http.StatusOK, out)
	s.mu.Unlock()
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, _ := s.find(chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if obj == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	var obj map[string]any
	if err := json.NewDecoder(r.Body).Decode(&obj); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := obj["id"]; ok {
		if existing, _ := s.find(collection, fmt.Sprint(id)); existing != nil {
			http.Error(w, "duplicate id", http.StatusConflict)
			return
		}
	} else {
		s.nextID++
		obj["id"] = strconv.Itoa(s.nextID)
	}
	s.data[collection] = append(s.data[collection], obj)
	writeJSON(w, http.StatusCreated, obj)
}

func (s *Server) patch(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	obj, _ := s.find(chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if obj == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{})
		return
	}
	for k, v := range fields {
		if k == "id" {
			continue
		}
		obj[k] = v
	}
	writeJSON(w, http.StatusOK, obj)
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	s.mu.Lock()
	defer s.mu.Unlock()
	_, idx := s.find(collection, chi.URLParam(r, "id"))
	if idx < 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{})
		return
	}
	s.data[collection] = append(s.data[collection][:idx], s.data[collection][idx+1:]...)
	writeJSON(w, http.StatusOK, map[string]any{})
}

// find must be called with s.mu held.
func (s *Server) find(collection, id string) (map[string]any, int) {
	for i, obj := range s.data[collection] {
		if fmt.Sprint(obj["id"]) == id {
			return obj, i
		}
	}
	return nil, -1
}

func matches(obj map[string]any, query map[string][]string) bool {
	for field, values := range query {
		if strings.HasPrefix(field, "_") {
			continue
		}
		v, ok := obj[field]
		if !ok {
			return false
		}
		got := format(v)
		found := false
		for _, want := range values {
			if got == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func format(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		raw, _ := json.Marshal(x)
		return string(raw)
	}
}

func toObject(rec any) map[string]any {
	raw, err := json.Marshal(rec)
	if err != nil {
		panic(fmt.Sprintf("remotetest: encode record: %v", err))
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		panic(fmt.Sprintf("remotetest: record is not an object: %v", err))
	}
	return obj
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
