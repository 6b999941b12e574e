package geo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mbarkhau/stammtischbot/core/cache"
)

func nominatimStub(t *testing.T, answers map[string][]nominatimResult, calls *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		*calls = append(*calls, q)
		results := answers[q]
		if results == nil {
			results = []nominatimResult{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(results)
	}))
}

func TestGeocodePLZ(t *testing.T) {
	var calls []string
	srv := nominatimStub(t, map[string][]nominatimResult{
		"60594, Deutschland": {{
			DisplayName: "Sachsenhausen, Frankfurt am Main",
			Lat:         "50.1025", Lon: "8.6880",
			AddressType: "postcode",
			Address:     map[string]string{"ISO3166-2-lvl4": "DE-HE"},
		}},
	}, &calls)
	defer srv.Close()

	c := New(Options{Endpoint: srv.URL, UserAgent: "test", MinInterval: time.Millisecond})

	loc, err := c.GeocodePLZ(context.Background(), "60594")
	if err != nil {
		t.Fatal(err)
	}
	if loc == nil {
		t.Fatal("no location")
	}
	if loc.Lat != 50.1025 || loc.Lon != 8.6880 {
		t.Errorf("coords = %v, %v", loc.Lat, loc.Lon)
	}
	if loc.State != "DE-HE" {
		t.Errorf("state = %q", loc.State)
	}
}

func TestSearchPathWithConfiguredEndpoints(t *testing.T) {
	// The endpoint setting may name the base URL or the documented
	// /search URL; both must produce requests against /search.
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	for _, endpoint := range []string{srv.URL, srv.URL + "/search", srv.URL + "/search/"} {
		c := New(Options{Endpoint: endpoint, MinInterval: time.Millisecond})
		if _, err := c.GeocodePLZ(context.Background(), "00000"); err != nil {
			t.Fatalf("endpoint %q: %v", endpoint, err)
		}
	}
	for i, p := range paths {
		if p != "/search" {
			t.Errorf("request %d path = %q, want /search", i, p)
		}
	}
}

func TestGeocodePLZNotFound(t *testing.T) {
	var calls []string
	srv := nominatimStub(t, nil, &calls)
	defer srv.Close()

	c := New(Options{Endpoint: srv.URL, MinInterval: time.Millisecond})
	loc, err := c.GeocodePLZ(context.Background(), "00000")
	if err != nil {
		t.Fatal(err)
	}
	if loc != nil {
		t.Errorf("loc = %+v, expected nil for no results", loc)
	}
}

func TestGeocodeCityRetriesWithUmlauts(t *testing.T) {
	var calls []string
	srv := nominatimStub(t, map[string][]nominatimResult{
		"Koeln, Deutschland": {{
			DisplayName: "irgendein Laden in Koeln",
			Lat:         "50.9", Lon: "6.9",
			AddressType: "shop",
		}},
		"Köln, Deutschland": {{
			DisplayName: "Köln",
			Lat:         "50.9375", Lon: "6.9603",
			AddressType: "city",
		}},
	}, &calls)
	defer srv.Close()

	c := New(Options{Endpoint: srv.URL, MinInterval: time.Millisecond})
	loc, err := c.GeocodeCity(context.Background(), "Koeln")
	if err != nil {
		t.Fatal(err)
	}
	if loc == nil || loc.DisplayName != "Köln" {
		t.Fatalf("loc = %+v, expected the umlaut retry result", loc)
	}
	if len(calls) != 2 {
		t.Errorf("calls = %v, expected ascii attempt then umlaut retry", calls)
	}
}

func TestGeocodePLZUsesCache(t *testing.T) {
	var calls []string
	srv := nominatimStub(t, map[string][]nominatimResult{
		"60594, Deutschland": {{
			DisplayName: "Sachsenhausen",
			Lat:         "50.1", Lon: "8.7",
			AddressType: "postcode",
		}},
	}, &calls)
	defer srv.Close()

	memo := cache.New(t.TempDir(), "v1")
	c := New(Options{Endpoint: srv.URL, MinInterval: time.Millisecond, Cache: memo})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		loc, err := c.GeocodePLZ(ctx, "60594")
		if err != nil {
			t.Fatal(err)
		}
		if loc == nil || loc.DisplayName != "Sachsenhausen" {
			t.Fatalf("call %d: %+v", i, loc)
		}
	}
	if len(calls) != 1 {
		t.Errorf("upstream called %d times, expected 1", len(calls))
	}
}
