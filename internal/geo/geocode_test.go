package geo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubResolver struct {
	byLang map[string][]ResolvedPlace
	errs   map[string]error
}

func (s *stubResolver) Resolve(_ context.Context, _, _ string, language string) ([]ResolvedPlace, error) {
	if err, ok := s.errs[language]; ok {
		return nil, err
	}
	return s.byLang[language], nil
}

func TestResolveBilingual_PicksHigherQuality(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{byLang: map[string][]ResolvedPlace{
		"en": {{Lat: 36.2, Lon: 37.1, Quality: 0.6, Label: "Aleppo"}},
		"ar": {{Lat: 36.21, Lon: 37.12, Quality: 0.9, Label: "حلب"}},
	}}

	place, err := ResolveBilingual(context.Background(), resolver, "Aleppo", "حلب", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if place.Label != "حلب" {
		t.Fatalf("expected higher-quality Arabic result, got %q", place.Label)
	}
}

func TestResolveBilingual_OneLanguageFailing(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{
		byLang: map[string][]ResolvedPlace{
			"ar": {{Lat: 33.5, Lon: 36.3, Quality: 0.4, Label: "دمشق"}},
		},
		errs: map[string]error{"en": errors.New("upstream 502")},
	}

	place, err := ResolveBilingual(context.Background(), resolver, "Damascus", "دمشق", "", "")
	if err != nil {
		t.Fatalf("one failed language should not fail the lookup: %v", err)
	}
	if place.Lat != 33.5 {
		t.Fatalf("unexpected result: %+v", place)
	}
}

func TestResolveBilingual_BothFail(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{errs: map[string]error{
		"en": errors.New("timeout"),
		"ar": errors.New("timeout"),
	}}

	_, err := ResolveBilingual(context.Background(), resolver, "Nowhere", "لامكان", "", "")
	if !errors.Is(err, ErrGeocodeFailed) {
		t.Fatalf("expected ErrGeocodeFailed, got %v", err)
	}
}

func TestResolveBilingual_EmptyNames(t *testing.T) {
	t.Parallel()

	resolver := &stubResolver{}
	_, err := ResolveBilingual(context.Background(), resolver, "", "", "", "")
	if !errors.Is(err, ErrGeocodeFailed) {
		t.Fatalf("expected ErrGeocodeFailed for empty names, got %v", err)
	}
}

func TestClientResolve_ParsesResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "" {
			t.Errorf("expected q parameter")
		}
		fmt.Fprint(w, `[{"lat":"36.2021","lon":"37.1343","importance":0.74,"display_name":"Aleppo, Syria"}]`)
	}))
	defer srv.Close()

	client := NewClient(ClientOptions{BaseURL: srv.URL})
	places, err := client.Resolve(context.Background(), "Aleppo", "Aleppo Governorate", "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(places) != 1 || places[0].Lat != 36.2021 {
		t.Fatalf("unexpected places: %+v", places)
	}
}

func TestClientResolve_EmptyName(t *testing.T) {
	t.Parallel()

	client := NewClient(ClientOptions{})
	places, err := client.Resolve(context.Background(), "  ", "", "en")
	if err != nil || places != nil {
		t.Fatalf("expected nil result for blank name, got %v %v", places, err)
	}
}
