package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrGeocodeFailed marks a location that could not be resolved in either
// language. Callers must surface this as a creation-time input problem, not a
// duplicate-detection failure.
var ErrGeocodeFailed = errors.New("geocoding failed for both languages")

// ResolvedPlace is one geocoder candidate for a place name.
type ResolvedPlace struct {
	Lat     float64
	Lon     float64
	Quality float64
	Label   string
}

// Resolver turns a bilingual place name into coordinate candidates.
type Resolver interface {
	Resolve(ctx context.Context, placeName, adminDivision, language string) ([]ResolvedPlace, error)
}

// ClientOptions controls HTTP behavior for the geocoding client.
type ClientOptions struct {
	BaseURL    string
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
}

const (
	defaultGeocodeTimeout = 8 * time.Second
	defaultGeocodeBaseURL = "https://nominatim.openstreetmap.org/search"
	defaultUserAgent      = "violations-tracker/1.0 (+https://github.com/modullar/violations-tracker-backend)"
)

// Client is a Nominatim-style search client implementing Resolver.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = defaultGeocodeBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultGeocodeTimeout
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    baseURL,
		userAgent:  userAgent,
		httpClient: httpClient,
	}
}

type nominatimResult struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	Importance  float64 `json:"importance"`
	DisplayName string  `json:"display_name"`
}

// Resolve queries the geocoder for a place name in one language. An empty
// result slice is not an error; it means the place is unknown to the geocoder.
func (c *Client) Resolve(ctx context.Context, placeName, adminDivision, language string) ([]ResolvedPlace, error) {
	query := strings.TrimSpace(placeName)
	if query == "" {
		return nil, nil
	}
	if admin := strings.TrimSpace(adminDivision); admin != "" {
		query = query + ", " + admin
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", "3")
	if lang := strings.TrimSpace(strings.ToLower(language)); lang != "" {
		params.Set("accept-language", lang)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build geocode request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read geocode response: %w", err)
	}

	var results []nominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}

	places := make([]ResolvedPlace, 0, len(results))
	for _, r := range results {
		lat, latErr := strconv.ParseFloat(r.Lat, 64)
		lon, lonErr := strconv.ParseFloat(r.Lon, 64)
		if latErr != nil || lonErr != nil || !ValidCoordinates(lat, lon) {
			continue
		}
		places = append(places, ResolvedPlace{
			Lat:     lat,
			Lon:     lon,
			Quality: r.Importance,
			Label:   r.DisplayName,
		})
	}
	return places, nil
}

// ResolveBilingual tries the English and Arabic names of a location and picks
// the highest-quality candidate across whichever lookups succeeded. When both
// lookups come back empty or fail it returns ErrGeocodeFailed.
func ResolveBilingual(ctx context.Context, resolver Resolver, nameEN, nameAR, adminEN, adminAR string) (ResolvedPlace, error) {
	var (
		best     ResolvedPlace
		haveBest bool
		lastErr  error
	)

	attempts := []struct {
		name  string
		admin string
		lang  string
	}{
		{name: nameEN, admin: adminEN, lang: "en"},
		{name: nameAR, admin: adminAR, lang: "ar"},
	}

	for _, attempt := range attempts {
		if strings.TrimSpace(attempt.name) == "" {
			continue
		}
		places, err := resolver.Resolve(ctx, attempt.name, attempt.admin, attempt.lang)
		if err != nil {
			lastErr = err
			continue
		}
		for _, place := range places {
			if !haveBest || place.Quality > best.Quality {
				best = place
				haveBest = true
			}
		}
	}

	if !haveBest {
		if lastErr != nil {
			return ResolvedPlace{}, fmt.Errorf("%w: %v", ErrGeocodeFailed, lastErr)
		}
		return ResolvedPlace{}, ErrGeocodeFailed
	}
	return best, nil
}
