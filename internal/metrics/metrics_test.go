package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Alsamah-Store.com/product/1", "alsamah-store.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if httpRequestsTotal == nil || httpRequestDurationSeconds == nil || edgeRequestsTotal == nil ||
		upstreamFetchSeconds == nil || handlerPanicsTotal == nil || renderBudgetRejections == nil ||
		catalogLookupSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveEdgeCollectors(t *testing.T) {
	ObserveEdgeDecision("", "pass_through", "not_applicable")
	if val := testutil.ToFloat64(edgeRequestsTotal.WithLabelValues("none", "pass_through", "not_applicable")); val != 1 {
		t.Errorf("expected unnamed handler to be labeled none, got %f", val)
	}

	ObserveHandlerPanic("preview")
	if val := testutil.ToFloat64(handlerPanicsTotal.WithLabelValues("preview")); val != 1 {
		t.Errorf("expected one recovered panic, got %f", val)
	}

	ObserveBudgetRejection("https://Shop.Example/about")
	if val := testutil.ToFloat64(renderBudgetRejections.WithLabelValues("shop.example")); val != 1 {
		t.Errorf("expected one budget rejection, got %f", val)
	}

	ObserveUpstreamFetch("prerender.io", "ok", 150*time.Millisecond)
	ObserveCatalogLookup("rest", "found", 20*time.Millisecond)
	if n := testutil.CollectAndCount(upstreamFetchSeconds); n != 1 {
		t.Errorf("expected one upstream series, got %d", n)
	}
	if n := testutil.CollectAndCount(catalogLookupSeconds); n != 1 {
		t.Errorf("expected one catalog series, got %d", n)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://alsamah-store.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
