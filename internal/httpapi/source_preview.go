package httpapi

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/modullar/violations-tracker-backend/internal/db"
	"github.com/modullar/violations-tracker-backend/internal/reader"
)

const (
	defaultPreviewMaxChars = 1000
	minPreviewMaxChars     = 200
	maxPreviewMaxChars     = 4000
)

type sourcePreview struct {
	ViolationUUID string  `json:"violation_uuid"`
	SourceURL     string  `json:"source_url"`
	PreviewText   string  `json:"preview_text"`
	Origin        string  `json:"origin"`
	CharCount     int     `json:"char_count"`
	Truncated     bool    `json:"truncated"`
	PreviewError  *string `json:"preview_error,omitempty"`
}

// handleSourcePreview extracts readable text from a violation's source URL so
// reviewers can compare the claim against its source without leaving the
// tracker.
func (s *Server) handleSourcePreview(c echo.Context) error {
	violationUUID := strings.TrimSpace(c.Param("violation_uuid"))
	if violationUUID == "" {
		return failValidation(c, map[string]string{"violation_uuid": "is required"})
	}

	maxChars, err := parsePositiveInt(
		c.QueryParam("max_chars"),
		defaultPreviewMaxChars,
		minPreviewMaxChars,
		maxPreviewMaxChars,
	)
	if err != nil {
		return failValidation(c, map[string]string{"max_chars": err.Error()})
	}

	violation, err := s.store.GetViolationByUUID(c.Request().Context(), violationUUID)
	if err != nil {
		if db.IsNoRows(err) {
			return failNotFound(c, "Violation not found")
		}
		s.logger.Error().Err(err).Str("violation_uuid", violationUUID).Msg("get violation for preview failed")
		return internalError(c, "Failed to load violation")
	}

	preview := s.buildSourcePreview(c.Request().Context(), violation, maxChars)
	return success(c, preview)
}

func (s *Server) buildSourcePreview(ctx context.Context, violation *db.Violation, maxChars int) *sourcePreview {
	sourceURL := strings.TrimSpace(violation.SourceURL.EN)
	if sourceURL == "" {
		sourceURL = strings.TrimSpace(violation.SourceURL.AR)
	}

	resp := &sourcePreview{
		ViolationUUID: violation.ViolationUUID,
		SourceURL:     sourceURL,
	}

	raw := ""
	origin := "none"
	var previewErr error
	if sourceURL != "" {
		raw, previewErr = reader.FetchText(ctx, sourceURL, violation.Description.EN)
		if previewErr == nil && strings.TrimSpace(raw) != "" {
			origin = "reader"
		} else {
			raw = ""
		}
	}
	if raw == "" {
		if fallback := strings.TrimSpace(violation.Description.EN); fallback != "" {
			raw = fallback
			origin = "description"
		} else if fallback := strings.TrimSpace(violation.Description.AR); fallback != "" {
			raw = fallback
			origin = "description"
		}
	}

	text, truncated := reader.TruncateText(raw, maxChars)
	resp.PreviewText = text
	resp.Origin = origin
	resp.CharCount = utf8.RuneCountInString(text)
	resp.Truncated = truncated

	if previewErr != nil {
		msg := previewErr.Error()
		resp.PreviewError = &msg
		s.logger.Warn().
			Err(previewErr).
			Str("violation_uuid", violation.ViolationUUID).
			Str("origin", origin).
			Msg("source preview fallback used")
	}

	return resp
}
