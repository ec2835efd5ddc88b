package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/modullar/violations-tracker-backend/internal/db"
	"github.com/modullar/violations-tracker-backend/internal/dedup"
	"github.com/modullar/violations-tracker-backend/internal/geo"
	reportschema "github.com/modullar/violations-tracker-backend/internal/schema"
)

const maxSubmissionBytes = 1 << 20

type submissionOutcome struct {
	Outcome   string         `json:"outcome"`
	Violation *db.Violation  `json:"violation"`
	Match     *matchEvidence `json:"match,omitempty"`
}

type matchEvidence struct {
	ViolationUUID string                 `json:"violation_uuid"`
	Kind          string                 `json:"kind"`
	Breakdown     dedup.SimilarityResult `json:"breakdown"`
}

// handleCreateViolation runs the submission flow: schema validation, optional
// geocoding, the blocking duplicate check, then create or merge. A
// similarity-class match with merging disabled is rejected with 409 so a human
// can review it.
func (s *Server) handleCreateViolation(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxSubmissionBytes))
	if err != nil {
		return failValidation(c, map[string]string{"body": "could not read request body"})
	}

	report, err := reportschema.ValidateReportPayload(json.RawMessage(body))
	if err != nil {
		return failValidation(c, map[string]string{"payload": err.Error()})
	}

	incoming, err := report.ToViolation()
	if err != nil {
		return failValidation(c, map[string]string{"payload": err.Error()})
	}

	ctx := c.Request().Context()

	if !incoming.HasCoordinates() && !incoming.LocationName.Empty() {
		if err := s.geocodeLocation(ctx, incoming); err != nil {
			return fail(c, http.StatusUnprocessableEntity, "Location could not be geocoded", map[string]any{
				"location": incoming.LocationName,
			})
		}
	}

	incoming.ContentHash = dedup.ContentHash(incoming)

	check, err := s.checker.Check(ctx, incoming)
	if err != nil {
		s.logger.Error().Err(err).Msg("creation duplicate check failed")
		return internalError(c, "Duplicate check failed")
	}

	switch check.Kind {
	case dedup.MatchExact:
		return s.mergeIntoExisting(c, check, incoming)
	case dedup.MatchSimilarity:
		if s.opts.MergeOnCreation {
			return s.mergeIntoExisting(c, check, incoming)
		}
		return failConflict(c, dedup.ErrAmbiguousDuplicates.Error(), map[string]any{
			"match": matchEvidenceFrom(check),
		})
	}

	if err := s.store.InsertViolation(ctx, incoming); err != nil {
		if errors.Is(err, db.ErrDuplicateContent) {
			// Lost a race against an identical submission; retry as a merge.
			existing, lookupErr := s.store.FindByContentHash(ctx, incoming.ContentHash)
			if lookupErr == nil && existing != nil {
				retry := dedup.CheckResult{Kind: dedup.MatchExact, Match: existing}
				return s.mergeIntoExisting(c, retry, incoming)
			}
			return failConflict(c, "Identical record already exists", nil)
		}
		s.logger.Error().Err(err).Msg("insert violation failed")
		return internalError(c, "Failed to create violation")
	}

	return successCreated(c, submissionOutcome{
		Outcome:   "created",
		Violation: incoming,
	})
}

// mergeIntoExisting folds the never-persisted submission into the matched
// record. No audit row is written: nothing is deleted, the submission simply
// enriches what already exists.
func (s *Server) mergeIntoExisting(c echo.Context, check dedup.CheckResult, incoming *db.Violation) error {
	ctx := c.Request().Context()
	canonical := check.Match

	dedup.Merge(canonical, []db.Violation{*incoming}, dedup.MergePolicy{PreferNew: true}, time.Now().UTC(), incoming.CreatedBy)
	canonical.ContentHash = dedup.ContentHash(canonical)

	if err := s.store.SaveViolation(ctx, canonical); err != nil {
		s.logger.Error().Err(err).Str("violation_uuid", canonical.ViolationUUID).Msg("merge save failed")
		return internalError(c, "Failed to merge into existing violation")
	}

	s.logger.Info().
		Str("violation_uuid", canonical.ViolationUUID).
		Str("match_kind", check.Kind.String()).
		Msg("submission merged into existing record")

	return c.JSON(http.StatusOK, jsendResponse{
		Status: "success",
		Data: submissionOutcome{
			Outcome:   "merged",
			Violation: canonical,
			Match:     matchEvidenceFrom(check),
		},
	})
}

// geocodeLocation fills coordinates from the bilingual place name. A
// both-language failure is a creation-time error, kept apart from duplicate
// detection errors so the caller can correct the location and resubmit. A
// deployment without a geocoder skips the lookup entirely.
func (s *Server) geocodeLocation(ctx context.Context, violation *db.Violation) error {
	if s.geocoder == nil {
		return nil
	}

	place, err := geo.ResolveBilingual(
		ctx,
		s.geocoder,
		violation.LocationName.EN,
		violation.LocationName.AR,
		violation.AdminDivision.EN,
		violation.AdminDivision.AR,
	)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("location_en", violation.LocationName.EN).
			Msg("geocoding failed, rejecting submission")
		return err
	}

	violation.Latitude = &place.Lat
	violation.Longitude = &place.Lon
	return nil
}

func matchEvidenceFrom(check dedup.CheckResult) *matchEvidence {
	if check.Match == nil {
		return nil
	}
	return &matchEvidence{
		ViolationUUID: check.Match.ViolationUUID,
		Kind:          check.Kind.String(),
		Breakdown:     check.Result,
	}
}
