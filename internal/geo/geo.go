// Package geo resolves postal codes and city names to coordinates via
// Nominatim. Lookups are rate-limited per the provider's usage policy and
// memoized on disk so re-runs do not re-query the service.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mbarkhau/stammtischbot/core/cache"
	"github.com/mbarkhau/stammtischbot/core/logger"
	"github.com/mbarkhau/stammtischbot/core/ratelimit"
)

// Location is a geocoding result. A nil *Location is the "geocoded to
// nothing" sentinel and is cached like any other value.
type Location struct {
	DisplayName string  `json:"display_name"`
	State       string  `json:"state"` // ISO3166-2 code, e.g. DE-HE
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

// Client geocodes against one Nominatim endpoint.
type Client struct {
	endpoint   string
	userAgent  string
	httpClient *http.Client
	limiter    *ratelimit.Limiter

	geocodePLZ  func(ctx context.Context, plz string) (*Location, error)
	geocodeCity func(ctx context.Context, city string) (*Location, error)
}

// Options configure a geocoding client.
type Options struct {
	Endpoint    string // defaults to the public Nominatim instance
	UserAgent   string // required by the provider's usage policy
	MinInterval time.Duration
	Cache       *cache.Cache // nil disables memoization
}

// New builds a geocoding client. The rate limiter is owned by the client;
// concurrent callers serialize on it.
func New(opts Options) *Client {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = "https://nominatim.openstreetmap.org"
	}
	interval := opts.MinInterval
	if interval <= 0 {
		interval = 1500 * time.Millisecond
	}
	// Accept both the base URL and the documented /search URL; the
	// request path is appended by the client.
	endpoint = strings.TrimRight(endpoint, "/")
	endpoint = strings.TrimSuffix(endpoint, "/search")
	c := &Client{
		endpoint:   endpoint,
		userAgent:  opts.UserAgent,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    ratelimit.New(interval),
	}
	c.geocodePLZ = func(ctx context.Context, plz string) (*Location, error) {
		return c.searchPLZ(ctx, plz)
	}
	c.geocodeCity = func(ctx context.Context, city string) (*Location, error) {
		return c.searchCity(ctx, city)
	}
	if opts.Cache != nil {
		c.geocodePLZ = cache.Memoize(opts.Cache, "geolocate", c.geocodePLZ)
		c.geocodeCity = cache.Memoize(opts.Cache, "geolocate_city", c.geocodeCity)
	}
	return c
}

// GeocodePLZ resolves a German postal code. Returns (nil, nil) when the
// provider finds nothing; callers must treat that as a cached negative,
// not an error.
func (c *Client) GeocodePLZ(ctx context.Context, plz string) (*Location, error) {
	return c.geocodePLZ(ctx, plz)
}

// GeocodeCity resolves a German city name. Names written with oe/ae/ue
// digraphs are retried with proper umlauts when the first attempt does
// not hit a populated place.
func (c *Client) GeocodeCity(ctx context.Context, city string) (*Location, error) {
	return c.geocodeCity(ctx, city)
}

func (c *Client) searchPLZ(ctx context.Context, plz string) (*Location, error) {
	results, err := c.search(ctx, plz+", Deutschland")
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		logger.GEO.LogAttrs(ctx, slog.LevelWarn, "geo.not_found",
			slog.String("plz", plz),
		)
		return nil, nil
	}
	loc := results[0].toLocation()
	logger.GEO.LogAttrs(ctx, slog.LevelInfo, "geo.resolved",
		slog.String("plz", plz),
		slog.String("name", loc.DisplayName),
	)
	return loc, nil
}

func (c *Client) searchCity(ctx context.Context, city string) (*Location, error) {
	results, err := c.search(ctx, city+", Deutschland")
	if err != nil {
		return nil, err
	}
	if len(results) > 0 {
		switch results[0].AddressType {
		case "city", "town", "village":
			return results[0].toLocation(), nil
		}
	}
	if strings.Contains(city, "oe") || strings.Contains(city, "ae") || strings.Contains(city, "ue") {
		cleaned := strings.NewReplacer("oe", "ö", "ae", "ä", "ue", "ü").Replace(city)
		if cleaned != city {
			return c.searchCity(ctx, cleaned)
		}
	}
	return nil, nil
}

type nominatimResult struct {
	DisplayName string            `json:"display_name"`
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	AddressType string            `json:"addresstype"`
	PlaceRank   int               `json:"place_rank"`
	Address     map[string]string `json:"address"`
}

func (r nominatimResult) toLocation() *Location {
	lat, _ := strconv.ParseFloat(r.Lat, 64)
	lon, _ := strconv.ParseFloat(r.Lon, 64)
	return &Location{
		DisplayName: r.DisplayName,
		State:       r.Address["ISO3166-2-lvl4"],
		Lat:         lat,
		Lon:         lon,
	}
}

func (c *Client) search(ctx context.Context, query string) ([]nominatimResult, error) {
	var results []nominatimResult
	err := c.limiter.Do(ctx, "nominatim.search", func(ctx context.Context) error {
		var err error
		results, err = c.searchOnce(ctx, query)
		return err
	})
	return results, err
}

func (c *Client) searchOnce(ctx context.Context, query string) ([]nominatimResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("geo: build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geo: search: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("geo: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geo: search status %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("geo: decode: %w", err)
	}
	logger.GEO.LogAttrs(ctx, slog.LevelDebug, "geo.search",
		slog.String("query", query),
		slog.Int("results", len(results)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return results, nil
}
