package reportschema

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/modullar/violations-tracker-backend/internal/db"
)

func TestValidateReportPayload_Valid(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"type":"airstrike",
		"occurred_at":"2024-03-15T10:00:00Z",
		"reported_at":"2024-03-15T16:00:00Z",
		"location":{
			"name":{"en":"Aleppo","ar":"حلب"},
			"latitude":36.2021,
			"longitude":37.1343
		},
		"description":{"en":"Airstrike hit the central market killing five civilians"},
		"perpetrator":"government",
		"casualties":{"deaths":5,"injured":12},
		"source":{"en":"SOHR"},
		"source_url":{"en":"https://example.org/report/1"},
		"certainty_level":"probable"
	}`)

	report, err := ValidateReportPayload(payload)
	if err != nil {
		t.Fatalf("expected payload to be valid, got error: %v", err)
	}

	if report.Type != "airstrike" {
		t.Fatalf("expected type=airstrike, got %q", report.Type)
	}
	if report.Location == nil || report.Location.Latitude == nil {
		t.Fatal("expected location coordinates to survive decoding")
	}
}

func TestValidateReportPayload_UnknownType(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"type":"meteor_strike",
		"occurred_at":"2024-03-15T10:00:00Z",
		"description":{"en":"Something fell from the sky"}
	}`)

	_, err := ValidateReportPayload(payload)
	if err == nil {
		t.Fatal("expected validation to fail for unknown violation type")
	}
}

func TestValidateReportPayload_EmptyDescription(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"type":"shelling",
		"occurred_at":"2024-03-15T10:00:00Z",
		"description":{}
	}`)

	_, err := ValidateReportPayload(payload)
	if err == nil {
		t.Fatal("expected validation to fail for empty description")
	}
	if !strings.Contains(err.Error(), "description") {
		t.Fatalf("expected description semantic error, got: %v", err)
	}
}

func TestValidateReportPayload_FutureOccurredAt(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"type":"detention",
		"occurred_at":"2099-01-01T00:00:00Z",
		"description":{"en":"Mass arrests reported"}
	}`)

	_, err := ValidateReportPayload(payload)
	if err == nil {
		t.Fatal("expected validation to fail for future occurred_at")
	}
}

func TestValidateReportPayload_HalfCoordinates(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"type":"shelling",
		"occurred_at":"2024-03-15T10:00:00Z",
		"description":{"en":"Shelling of a residential district"},
		"location":{"name":{"en":"Homs"},"latitude":34.73}
	}`)

	_, err := ValidateReportPayload(payload)
	if err == nil {
		t.Fatal("expected validation to fail when only latitude is present")
	}
}

func TestValidateReportPayload_TrailingContent(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"type":"shelling",
		"occurred_at":"2024-03-15T10:00:00Z",
		"description":{"en":"Shelling"}
	}{"extra":true}`)

	_, err := ValidateReportPayload(payload)
	if err == nil {
		t.Fatal("expected validation to fail for trailing content")
	}
}

func TestValidateReportPayload_ReportedBeforeOccurred(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"type":"execution",
		"occurred_at":"2024-03-15T10:00:00Z",
		"reported_at":"2024-03-14T10:00:00Z",
		"description":{"en":"Field execution reported"}
	}`)

	_, err := ValidateReportPayload(payload)
	if err == nil {
		t.Fatal("expected validation to fail when reported_at precedes occurred_at")
	}
}

func TestReportPayload_ToViolation(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"type":"airstrike",
		"occurred_at":"2024-03-15T10:00:00Z",
		"location":{
			"name":{"en":"Aleppo"},
			"admin_division":{"en":"Aleppo Governorate"},
			"latitude":36.2021,
			"longitude":37.1343
		},
		"description":{"en":"Airstrike hit the central market"},
		"perpetrator":"government",
		"casualties":{"deaths":5,"injured":12},
		"verified":true,
		"certainty_level":"confirmed",
		"reported_by":"field-office-aleppo"
	}`)

	report, err := ValidateReportPayload(payload)
	if err != nil {
		t.Fatalf("ValidateReportPayload: %v", err)
	}

	violation, err := report.ToViolation()
	if err != nil {
		t.Fatalf("ToViolation: %v", err)
	}

	if violation.Type != db.TypeAirstrike {
		t.Fatalf("expected airstrike, got %q", violation.Type)
	}
	if violation.Perpetrator != db.PerpGovernment {
		t.Fatalf("expected government perpetrator, got %q", violation.Perpetrator)
	}
	if violation.CertaintyLevel != db.CertaintyConfirmed {
		t.Fatalf("expected confirmed certainty, got %q", violation.CertaintyLevel)
	}
	if !violation.HasCoordinates() {
		t.Fatal("expected coordinates to be carried over")
	}
	if violation.Deaths != 5 || violation.InjuredCount != 12 {
		t.Fatalf("unexpected counts: deaths=%d injured=%d", violation.Deaths, violation.InjuredCount)
	}
	if violation.CreatedBy != "field-office-aleppo" {
		t.Fatalf("unexpected created_by %q", violation.CreatedBy)
	}
}

func TestReportPayload_ToViolationDefaults(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"type":"other",
		"occurred_at":"2024-03-15T10:00:00Z",
		"description":{"en":"Unverified violation report from the area"}
	}`)

	report, err := ValidateReportPayload(payload)
	if err != nil {
		t.Fatalf("ValidateReportPayload: %v", err)
	}

	violation, err := report.ToViolation()
	if err != nil {
		t.Fatalf("ToViolation: %v", err)
	}

	if violation.Perpetrator != db.PerpUnknown {
		t.Fatalf("expected unknown perpetrator default, got %q", violation.Perpetrator)
	}
	if violation.CertaintyLevel != db.CertaintyPossible {
		t.Fatalf("expected possible certainty default, got %q", violation.CertaintyLevel)
	}
	if violation.HasCoordinates() {
		t.Fatal("expected no coordinates")
	}
}

func TestValidateReportPayload_ArabicOnlyDescriptionRejected(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"type":"shelling",
		"occurred_at":"2024-03-15T10:00:00Z",
		"description":{"ar":"قصف مدفعي على حي سكني في المدينة"}
	}`)

	_, err := ValidateReportPayload(payload)
	if err == nil {
		t.Fatal("expected validation to fail when description lacks English")
	}
}

func TestValidateReportPayload_ShortDescriptionRejected(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"type":"shelling",
		"occurred_at":"2024-03-15T10:00:00Z",
		"description":{"en":"hit"}
	}`)

	_, err := ValidateReportPayload(payload)
	if err == nil {
		t.Fatal("expected validation to fail for a description below minimum length")
	}
}

func TestValidateReportPayload_BothDescriptionFormsRejected(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"type":"shelling",
		"occurred_at":"2024-03-15T10:00:00Z",
		"description":{"en":"Artillery shelling of a residential district"},
		"description_text":"Artillery shelling of a residential district"
	}`)

	_, err := ValidateReportPayload(payload)
	if err == nil {
		t.Fatal("expected validation to fail when both description forms are present")
	}
}

func TestReportPayload_FreeTextDescriptionRoutedToArabic(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"type":"shelling",
		"occurred_at":"2024-03-15T10:00:00Z",
		"description_text":"قصف مدفعي استهدف حياً سكنياً في مدينة حلب وأدى إلى سقوط ضحايا"
	}`)

	report, err := ValidateReportPayload(payload)
	if err != nil {
		t.Fatalf("ValidateReportPayload: %v", err)
	}

	violation, err := report.ToViolation()
	if err != nil {
		t.Fatalf("ToViolation: %v", err)
	}

	if violation.Description.AR == "" {
		t.Fatal("expected Arabic free text in the ar slot")
	}
	if violation.Description.EN != "" {
		t.Fatalf("expected empty en slot, got %q", violation.Description.EN)
	}
}

func TestReportPayload_FreeTextDescriptionRoutedToEnglish(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"type":"airstrike",
		"occurred_at":"2024-03-15T10:00:00Z",
		"description_text":"An airstrike destroyed two apartment buildings in the eastern district"
	}`)

	report, err := ValidateReportPayload(payload)
	if err != nil {
		t.Fatalf("ValidateReportPayload: %v", err)
	}

	violation, err := report.ToViolation()
	if err != nil {
		t.Fatalf("ToViolation: %v", err)
	}

	if violation.Description.EN == "" {
		t.Fatal("expected English free text in the en slot")
	}
	if violation.Description.AR != "" {
		t.Fatalf("expected empty ar slot, got %q", violation.Description.AR)
	}
}
