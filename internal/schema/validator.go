package reportschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/modullar/violations-tracker-backend/internal/db"
	"github.com/modullar/violations-tracker-backend/internal/geo"
	"github.com/modullar/violations-tracker-backend/internal/text"
)

//go:embed violation_report.schema.json
var violationReportSchemaJSON string

// ReportPayload is the submission format for a single violation report.
type ReportPayload struct {
	PayloadVersion string           `json:"payload_version"`
	Type           string           `json:"type"`
	OccurredAt     string           `json:"occurred_at"`
	ReportedAt     *string          `json:"reported_at,omitempty"`
	Location       *ReportLocation  `json:"location,omitempty"`
	Description    db.LocalizedText `json:"description"`
	// DescriptionText is the single free-text alternative to the bilingual
	// description; language detection routes it into the en or ar slot.
	DescriptionText string `json:"description_text,omitempty"`
	Perpetrator    string           `json:"perpetrator,omitempty"`
	Casualties     *ReportCounts    `json:"casualties,omitempty"`
	Victims        []db.Victim      `json:"victims,omitempty"`
	Source         db.LocalizedText `json:"source,omitempty"`
	SourceURL      db.LocalizedText `json:"source_url,omitempty"`
	Verification   db.LocalizedText `json:"verification_method,omitempty"`
	Verified       bool             `json:"verified,omitempty"`
	CertaintyLevel string           `json:"certainty_level,omitempty"`
	MediaLinks     []string         `json:"media_links,omitempty"`
	Tags           []db.Tag         `json:"tags,omitempty"`
	RelatedUUIDs   []string         `json:"related_uuids,omitempty"`
	ReportedBy     string           `json:"reported_by,omitempty"`
}

type ReportLocation struct {
	Name          db.LocalizedText `json:"name"`
	AdminDivision db.LocalizedText `json:"admin_division"`
	Latitude      *float64         `json:"latitude,omitempty"`
	Longitude     *float64         `json:"longitude,omitempty"`
}

type ReportCounts struct {
	Deaths    int `json:"deaths"`
	Kidnapped int `json:"kidnapped"`
	Detained  int `json:"detained"`
	Injured   int `json:"injured"`
	Displaced int `json:"displaced"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateReportPayload checks a raw submission against the embedded JSON
// Schema plus the semantic rules the schema cannot express, and returns the
// typed payload.
func ValidateReportPayload(payload json.RawMessage) (*ReportPayload, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var report ReportPayload
	if err := json.Unmarshal(normalized, &report); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&report, time.Now().UTC()); err != nil {
		return nil, err
	}

	return &report, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("violation_report.schema.json", strings.NewReader(violationReportSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("violation_report.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

// reportedAtGrace bounds how far ahead of wall-clock time a reported_at
// stamp may sit; reporting pipelines in other timezones routinely run a few
// hours ahead.
const reportedAtGrace = 24 * time.Hour

func validateSemantics(report *ReportPayload, now time.Time) error {
	if report == nil {
		return fmt.Errorf("payload is nil")
	}

	if report.Description.Empty() && strings.TrimSpace(report.DescriptionText) == "" {
		return fmt.Errorf("description must carry at least one language")
	}

	occurredAt, err := time.Parse(time.RFC3339, strings.TrimSpace(report.OccurredAt))
	if err != nil {
		return fmt.Errorf("occurred_at must be RFC3339: %w", err)
	}
	if occurredAt.After(now) {
		return fmt.Errorf("occurred_at must not be in the future")
	}

	if report.ReportedAt != nil {
		reportedAt, err := time.Parse(time.RFC3339, strings.TrimSpace(*report.ReportedAt))
		if err != nil {
			return fmt.Errorf("reported_at must be RFC3339: %w", err)
		}
		if reportedAt.After(now.Add(reportedAtGrace)) {
			return fmt.Errorf("reported_at is too far in the future")
		}
		if reportedAt.Before(occurredAt) {
			return fmt.Errorf("reported_at must not precede occurred_at")
		}
	}

	if loc := report.Location; loc != nil {
		if (loc.Latitude == nil) != (loc.Longitude == nil) {
			return fmt.Errorf("location coordinates must carry both latitude and longitude")
		}
		if loc.Latitude != nil && !geo.ValidCoordinates(*loc.Latitude, *loc.Longitude) {
			return fmt.Errorf("location coordinates are out of range")
		}
	}

	for i, link := range report.MediaLinks {
		if err := validateURI(fmt.Sprintf("media_links[%d]", i), link); err != nil {
			return err
		}
	}
	if report.SourceURL.EN != "" {
		if err := validateURI("source_url.en", report.SourceURL.EN); err != nil {
			return err
		}
	}
	if report.SourceURL.AR != "" {
		if err := validateURI("source_url.ar", report.SourceURL.AR); err != nil {
			return err
		}
	}

	for i, victim := range report.Victims {
		if victim.DeathDate != nil && victim.DeathDate.After(now) {
			return fmt.Errorf("victims[%d].death_date must not be in the future", i)
		}
	}

	return nil
}

func validateURI(fieldName, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("%s must not be empty", fieldName)
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return fmt.Errorf("%s is not a valid URI: %w", fieldName, err)
	}
	return nil
}

// ToViolation converts a validated payload into a persistence record. The
// caller fills the content hash and any geocoded coordinates afterwards.
func (r *ReportPayload) ToViolation() (*db.Violation, error) {
	occurredAt, err := time.Parse(time.RFC3339, strings.TrimSpace(r.OccurredAt))
	if err != nil {
		return nil, fmt.Errorf("occurred_at must be RFC3339: %w", err)
	}

	description := r.Description
	if freeText := strings.TrimSpace(r.DescriptionText); freeText != "" {
		// English is the working default when the detector cannot decide.
		if text.DetectLanguage(freeText) == "ar" {
			description.AR = freeText
		} else {
			description.EN = freeText
		}
	}

	violation := &db.Violation{
		Type:               db.ViolationType(r.Type),
		OccurredAt:         occurredAt.UTC(),
		Description:        description,
		Source:             r.Source,
		SourceURL:          r.SourceURL,
		VerificationMethod: r.Verification,
		Verified:           r.Verified,
		Victims:            r.Victims,
		MediaLinks:         r.MediaLinks,
		Tags:               r.Tags,
		RelatedUUIDs:       r.RelatedUUIDs,
		CreatedBy:          r.ReportedBy,
		UpdatedBy:          r.ReportedBy,
		Perpetrator:        db.PerpUnknown,
		CertaintyLevel:     db.CertaintyPossible,
	}

	if r.Perpetrator != "" {
		violation.Perpetrator = db.PerpetratorAffiliation(r.Perpetrator)
	}
	if r.CertaintyLevel != "" {
		violation.CertaintyLevel = db.CertaintyLevel(r.CertaintyLevel)
	}

	if r.ReportedAt != nil {
		reportedAt, err := time.Parse(time.RFC3339, strings.TrimSpace(*r.ReportedAt))
		if err != nil {
			return nil, fmt.Errorf("reported_at must be RFC3339: %w", err)
		}
		reportedAtUTC := reportedAt.UTC()
		violation.ReportedAt = &reportedAtUTC
	}

	if loc := r.Location; loc != nil {
		violation.LocationName = loc.Name
		violation.AdminDivision = loc.AdminDivision
		if loc.Latitude != nil && loc.Longitude != nil {
			lat, lon := *loc.Latitude, *loc.Longitude
			violation.Latitude = &lat
			violation.Longitude = &lon
		}
	}

	if r.Casualties != nil {
		violation.SetCounts(db.CasualtyCounts{
			Deaths:    r.Casualties.Deaths,
			Kidnapped: r.Casualties.Kidnapped,
			Detained:  r.Casualties.Detained,
			Injured:   r.Casualties.Injured,
			Displaced: r.Casualties.Displaced,
		})
	}

	return violation, nil
}
