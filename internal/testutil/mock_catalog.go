// Package testutil provides a configurable mock of the DTN symbol search
// service for tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
)

// MockPage describes one page the mock serves for a cursor.
type MockPage struct {
	Symbols    []map[string]any
	NextKey    string
	HasMore    bool
	TotalFound int
}

// MockFailure injects failing responses before a cursor's page is served.
type MockFailure struct {
	// Count is how many requests fail before the real page is returned.
	Count int

	// StatusCode of the injected failure (e.g. 500, 429).
	StatusCode int

	// ErrorMessage, when set, is returned inside a 200 response's errors
	// payload instead of an HTTP error.
	ErrorMessage string
}

// MockCatalog is a scriptable symbol search server. Pages are keyed by the
// cursor that requests them; the empty cursor is the first page.
type MockCatalog struct {
	server *httptest.Server

	mu       sync.Mutex
	pages    map[string]MockPage
	failures map[string]*MockFailure
	raw      map[string]func(w http.ResponseWriter, r *http.Request)

	categories map[string][]string

	// RequestCount counts QuerySymbolsDD requests.
	RequestCount int

	// CursorHits counts requests per cursor value.
	CursorHits map[string]int
}

// NewMockCatalog creates a mock with no pages configured.
func NewMockCatalog() *MockCatalog {
	mock := &MockCatalog{
		pages:      make(map[string]MockPage),
		failures:   make(map[string]*MockFailure),
		raw:        make(map[string]func(w http.ResponseWriter, r *http.Request)),
		categories: map[string][]string{"exchange": nil, "securityType": nil},
		CursorHits: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/SymbolSearch/QuerySymbolsDD", mock.handleQuery)
	mux.HandleFunc("/SymbolSearch/GetSymbolCategories", mock.handleCategories)
	mock.server = httptest.NewServer(mux)

	return mock
}

// URL returns the mock server base URL.
func (m *MockCatalog) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// SetPage configures the page served for a cursor.
func (m *MockCatalog) SetPage(cursor string, page MockPage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[cursor] = page
}

// SetFailures injects failures before the page at cursor is served.
func (m *MockCatalog) SetFailures(cursor string, failure MockFailure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[cursor] = &failure
}

// SetCategories configures the categories payload.
func (m *MockCatalog) SetCategories(exchanges, securityTypes []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories["exchange"] = exchanges
	m.categories["securityType"] = securityTypes
}

// SetQueryHandler replaces the QuerySymbolsDD handler entirely, for
// malformed-payload tests.
func (m *MockCatalog) SetQueryHandler(handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw["/SymbolSearch/QuerySymbolsDD"] = handler
}

func (m *MockCatalog) handleQuery(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("nextKey")

	m.mu.Lock()
	m.RequestCount++
	m.CursorHits[cursor]++

	if custom := m.raw["/SymbolSearch/QuerySymbolsDD"]; custom != nil {
		m.mu.Unlock()
		custom(w, r)
		return
	}

	if failure := m.failures[cursor]; failure != nil && failure.Count > 0 {
		failure.Count--
		m.mu.Unlock()

		if failure.ErrorMessage != "" {
			writeJSON(w, http.StatusOK, map[string]any{
				"errors": []string{failure.ErrorMessage},
			})
			return
		}
		w.WriteHeader(failure.StatusCode)
		return
	}

	page, ok := m.pages[cursor]
	m.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	symbols := page.Symbols
	if symbols == nil {
		symbols = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"symbolList": symbols,
			"totalFound": page.TotalFound,
			"hasMore":    page.HasMore,
			"nextKey":    page.NextKey,
		},
	})
}

func (m *MockCatalog) handleCategories(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	payload := map[string]any{
		"exchange":     m.categories["exchange"],
		"securityType": m.categories["securityType"],
	}
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"data": payload})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Symbol builds a catalog record for test pages.
func Symbol(symbol, description, exchange, securityType string) map[string]any {
	return map[string]any{
		"symbol":       symbol,
		"description":  description,
		"exchange":     exchange,
		"securityType": securityType,
	}
}
