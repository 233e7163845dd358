package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func newItemServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/items/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/items/")
		json.NewEncoder(w).Encode(&RemoteCatalogItem{ID: id, Title: "Track " + id, Visible: true, Approved: true})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestGetItemByID(t *testing.T) {
	server := newItemServer(t)
	client := NewClientWithHTTP(server.URL, server.Client())

	item, err := client.GetItem(context.Background(), "song-9")
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if item.ID != "song-9" {
		t.Errorf("item.ID = %q, want song-9", item.ID)
	}
}

// Request metrics must be labeled with the route shape, never the concrete
// path: one time series per id would grow the registry without bound.
func TestRequestMetricsUseNormalizedRouteLabels(t *testing.T) {
	server := newItemServer(t)
	client := NewClientWithHTTP(server.URL, server.Client())

	for _, id := range []string{"song-1", "song-2", "song-3"} {
		if _, err := client.GetItem(context.Background(), id); err != nil {
			t.Fatalf("GetItem(%s) error = %v", id, err)
		}
	}

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	sawRoute := false
	for _, family := range families {
		if family.GetName() != "tunecache_catalog_requests_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() != "endpoint" {
					continue
				}
				value := label.GetValue()
				if strings.Contains(value, "song-") {
					t.Errorf("endpoint label %q carries a concrete item id", value)
				}
				if value == "/items/:id" {
					sawRoute = true
				}
			}
		}
	}
	if !sawRoute {
		t.Error("no /items/:id endpoint label recorded")
	}
}
