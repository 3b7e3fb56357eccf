package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// MockStravaServer simulates the Strava API surface the mirror consumes:
// the paginated activity list and per-activity streams, plus a request
// counter that can start rejecting with 429 after a set number of calls.
type MockStravaServer struct {
	server *httptest.Server

	mu         sync.Mutex
	activities []map[string]interface{}
	streams    map[int64]map[string]interface{}
	perPageMax int

	requestCount  int32
	rejectAfter   int32 // 0 means never reject
	activityCalls int32
	streamCalls   int32
}

// NewMockStravaServer creates a mock serving the given activity payloads
// newest first, the way the real API orders them.
func NewMockStravaServer(activities []map[string]interface{}) *MockStravaServer {
	m := &MockStravaServer{
		activities: activities,
		streams:    make(map[int64]map[string]interface{}),
		perPageMax: 200,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/athlete/activities", m.handleActivities)
	mux.HandleFunc("/api/v3/activities/", m.handleStreams)

	m.server = httptest.NewServer(mux)
	return m
}

// URL returns the API base URL to point the client at.
func (m *MockStravaServer) URL() string {
	return m.server.URL + "/api/v3"
}

// Close shuts the server down.
func (m *MockStravaServer) Close() {
	m.server.Close()
}

// RejectAfter makes every request past n answer 429.
func (m *MockStravaServer) RejectAfter(n int) {
	atomic.StoreInt32(&m.rejectAfter, int32(n))
}

// Requests returns the total number of API requests served.
func (m *MockStravaServer) Requests() int {
	return int(atomic.LoadInt32(&m.requestCount))
}

// SetStreams registers the streams payload answered for one activity.
func (m *MockStravaServer) SetStreams(activityID int64, payload map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[activityID] = payload
}

func (m *MockStravaServer) overBudget() bool {
	n := atomic.AddInt32(&m.requestCount, 1)
	limit := atomic.LoadInt32(&m.rejectAfter)
	return limit > 0 && n > limit
}

func (m *MockStravaServer) handleActivities(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.activityCalls, 1)

	if r.Header.Get("Authorization") == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if m.overBudget() {
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > m.perPageMax {
		perPage = 30
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	start := (page - 1) * perPage
	if start >= len(m.activities) {
		fmt.Fprint(w, "[]")
		return
	}
	end := start + perPage
	if end > len(m.activities) {
		end = len(m.activities)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.activities[start:end])
}

func (m *MockStravaServer) handleStreams(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.streamCalls, 1)

	if m.overBudget() {
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}

	// Path: /api/v3/activities/{id}/streams
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 5 || parts[4] != "streams" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	m.mu.Lock()
	payload, ok := m.streams[id]
	m.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// mockActivity builds one activity payload with realistic extra fields.
func mockActivity(id int64, name, activityType, startDate string) map[string]interface{} {
	return map[string]interface{}{
		"id":                   id,
		"name":                 name,
		"type":                 activityType,
		"sport_type":           activityType,
		"start_date":           startDate,
		"distance":             25000.5,
		"moving_time":          3600,
		"elapsed_time":         3720,
		"total_elevation_gain": 240.0,
		"average_speed":        6.9,
		"kudos_count":          3,
		"gear_id":              "b1234",
	}
}
