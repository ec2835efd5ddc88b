package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/modullar/violations-tracker-backend/internal/db"
	"github.com/modullar/violations-tracker-backend/internal/geo"
)

type stubStore struct {
	violations []db.Violation
	merges     []db.ViolationMerge
	saved      []db.Violation
	inserted   []db.Violation
	nextID     int64
}

func (s *stubStore) Ping(_ context.Context) error { return nil }

func (s *stubStore) QueryTrackerStats(_ context.Context) (*db.TrackerStats, error) {
	return &db.TrackerStats{ActiveViolations: int64(len(s.violations))}, nil
}

func (s *stubStore) ListViolations(_ context.Context, opts db.ViolationListOptions) ([]db.Violation, int64, error) {
	return s.violations, int64(len(s.violations)), nil
}

func (s *stubStore) GetViolationByUUID(_ context.Context, violationUUID string) (*db.Violation, error) {
	for i := range s.violations {
		if s.violations[i].ViolationUUID == violationUUID {
			return &s.violations[i], nil
		}
	}
	return nil, db.ErrNoRows
}

func (s *stubStore) ListMergesInto(_ context.Context, canonicalUUID string) ([]db.ViolationMerge, error) {
	return s.merges, nil
}

func (s *stubStore) InsertViolation(_ context.Context, violation *db.Violation) error {
	for i := range s.violations {
		if s.violations[i].ContentHash == violation.ContentHash {
			return db.ErrDuplicateContent
		}
	}
	s.nextID++
	violation.ViolationID = s.nextID
	violation.ViolationUUID = "00000000-0000-0000-0000-00000000000" + string(rune('0'+s.nextID%10))
	s.inserted = append(s.inserted, *violation)
	s.violations = append(s.violations, *violation)
	return nil
}

func (s *stubStore) SaveViolation(_ context.Context, violation *db.Violation) error {
	s.saved = append(s.saved, *violation)
	return nil
}

func (s *stubStore) FindCandidates(_ context.Context, _ db.CandidateWindow) ([]db.Violation, error) {
	return s.violations, nil
}

func (s *stubStore) FindByContentHash(_ context.Context, hash string) (*db.Violation, error) {
	for i := range s.violations {
		if s.violations[i].ContentHash == hash {
			return &s.violations[i], nil
		}
	}
	return nil, db.ErrNoRows
}

func (s *stubStore) CountActive(_ context.Context) (int64, error) {
	return int64(len(s.violations)), nil
}

func (s *stubStore) ListCorpus(_ context.Context, _ db.CorpusFilter) ([]db.Violation, error) {
	return s.violations, nil
}

func (s *stubStore) ApplyMerge(_ context.Context, _ db.MergeApplication) error {
	return nil
}

func newTestServer(store *stubStore, mergeOnCreation bool) *Server {
	return NewServer(store, nil, zerolog.Nop(), Options{
		MergeOnCreation: mergeOnCreation,
	})
}

func postViolation(t *testing.T, srv *Server, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/violations", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.buildEcho().ServeHTTP(rec, req)
	return rec
}

// similarVariantPayload rephrases the seed submission and reports a higher
// death toll: same event, different wording, so it lands in the
// similarity class rather than the content-hash fast path.
func similarVariantPayload() string {
	variant := strings.Replace(
		submissionPayload,
		"Airstrike hit the central market killing five civilians",
		"Airstrike struck the central market area and killed several civilians",
		1,
	)
	return strings.Replace(variant, `"deaths":5`, `"deaths":8`, 1)
}

const submissionPayload = `{
	"payload_version":"v1",
	"type":"airstrike",
	"occurred_at":"2024-03-15T10:00:00Z",
	"location":{
		"name":{"en":"Aleppo","ar":"حلب"},
		"latitude":36.2021,
		"longitude":37.1343
	},
	"description":{"en":"Airstrike hit the central market killing five civilians"},
	"perpetrator":"government",
	"casualties":{"deaths":5},
	"reported_by":"field-office"
}`

func TestCreateViolation_Created(t *testing.T) {
	store := &stubStore{}
	srv := newTestServer(store, false)

	rec := postViolation(t, srv, submissionPayload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.inserted) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(store.inserted))
	}
	if store.inserted[0].ContentHash == "" {
		t.Fatal("inserted record carries no content hash")
	}

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Outcome string `json:"outcome"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "success" || resp.Data.Outcome != "created" {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}
}

func TestCreateViolation_ExactDuplicateMerged(t *testing.T) {
	store := &stubStore{}
	srv := newTestServer(store, false)

	first := postViolation(t, srv, submissionPayload)
	if first.Code != http.StatusCreated {
		t.Fatalf("seed create failed: %d %s", first.Code, first.Body.String())
	}

	second := postViolation(t, srv, submissionPayload)
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200 merged, got %d: %s", second.Code, second.Body.String())
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected 1 merge save, got %d", len(store.saved))
	}
	if len(store.violations) != 1 {
		t.Fatalf("duplicate submission must not add a record, have %d", len(store.violations))
	}

	var resp struct {
		Data struct {
			Outcome string `json:"outcome"`
			Match   *struct {
				Kind string `json:"kind"`
			} `json:"match"`
		} `json:"data"`
	}
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.Outcome != "merged" {
		t.Fatalf("expected merged outcome, got %s", second.Body.String())
	}
	if resp.Data.Match == nil || resp.Data.Match.Kind != "exact" {
		t.Fatalf("expected exact match evidence, got %s", second.Body.String())
	}
}

func TestCreateViolation_SimilarityConflictWithoutAutoMerge(t *testing.T) {
	store := &stubStore{}
	srv := newTestServer(store, false)

	first := postViolation(t, srv, submissionPayload)
	if first.Code != http.StatusCreated {
		t.Fatalf("seed create failed: %d %s", first.Code, first.Body.String())
	}

	second := postViolation(t, srv, similarVariantPayload())
	if second.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", second.Code, second.Body.String())
	}
	if len(store.violations) != 1 {
		t.Fatalf("conflicting submission must not be created, have %d", len(store.violations))
	}
}

func TestCreateViolation_SimilarityAutoMerge(t *testing.T) {
	store := &stubStore{}
	srv := newTestServer(store, true)

	first := postViolation(t, srv, submissionPayload)
	if first.Code != http.StatusCreated {
		t.Fatalf("seed create failed: %d %s", first.Code, first.Body.String())
	}

	second := postViolation(t, srv, similarVariantPayload())
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200 merged, got %d: %s", second.Code, second.Body.String())
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected 1 merge save, got %d", len(store.saved))
	}
	if store.saved[0].Deaths != 8 {
		t.Fatalf("merge must keep the higher death toll, got %d", store.saved[0].Deaths)
	}
}

func TestCreateViolation_InvalidPayload(t *testing.T) {
	srv := newTestServer(&stubStore{}, false)

	rec := postViolation(t, srv, `{"payload_version":"v1","type":"meteor","occurred_at":"2024-03-15T10:00:00Z","description":{"en":"x"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestViolationDetail_NotFound(t *testing.T) {
	srv := newTestServer(&stubStore{}, false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/violations/11111111-1111-1111-1111-111111111111", nil)
	rec := httptest.NewRecorder()
	srv.buildEcho().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestViolationList_RejectsBadPage(t *testing.T) {
	srv := newTestServer(&stubStore{}, false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/violations?page=zero", nil)
	rec := httptest.NewRecorder()
	srv.buildEcho().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestParseTimeFilter(t *testing.T) {
	t.Parallel()

	got, err := parseTimeFilter("2024-03-15", true)
	if err != nil {
		t.Fatalf("parseTimeFilter: %v", err)
	}
	want := time.Date(2024, 3, 15, 23, 59, 59, 999999999, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected end of day %v, got %v", want, got)
	}

	if _, err := parseTimeFilter("not-a-date", false); err == nil {
		t.Fatal("expected error for invalid time")
	}
}

type stubResolver struct {
	places []geo.ResolvedPlace
	err    error
}

func (r *stubResolver) Resolve(_ context.Context, _, _, _ string) ([]geo.ResolvedPlace, error) {
	return r.places, r.err
}

const nameOnlyPayload = `{
	"payload_version":"v1",
	"type":"shelling",
	"occurred_at":"2024-03-15T10:00:00Z",
	"location":{"name":{"en":"Douma","ar":"دوما"}},
	"description":{"en":"Artillery shelling struck a residential block"},
	"reported_by":"field-office"
}`

func TestCreateViolation_GeocodeFailureRejected(t *testing.T) {
	store := &stubStore{}
	geocoder := &stubResolver{err: errors.New("upstream timed out")}
	srv := NewServer(store, geocoder, zerolog.Nop(), Options{})

	rec := postViolation(t, srv, nameOnlyPayload)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.inserted) != 0 {
		t.Fatalf("expected no insert after geocode failure, got %d", len(store.inserted))
	}
}

func TestCreateViolation_GeocodeFillsCoordinates(t *testing.T) {
	store := &stubStore{}
	geocoder := &stubResolver{places: []geo.ResolvedPlace{{Lat: 33.5718, Lon: 36.4032, Quality: 0.9}}}
	srv := NewServer(store, geocoder, zerolog.Nop(), Options{})

	rec := postViolation(t, srv, nameOnlyPayload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.inserted) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(store.inserted))
	}
	created := store.inserted[0]
	if !created.HasCoordinates() {
		t.Fatal("expected geocoded coordinates on the created record")
	}
	if *created.Latitude != 33.5718 || *created.Longitude != 36.4032 {
		t.Fatalf("unexpected coordinates: %v %v", *created.Latitude, *created.Longitude)
	}
}
