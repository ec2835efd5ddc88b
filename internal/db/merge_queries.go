package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// MergeApplication is one cluster's worth of mutations, applied as a single
// transaction: update the canonical, write one audit row per absorbed record,
// then mark the absorbed records deleted. The ordering matters: if anything
// fails the transaction rolls back and no duplicate has been deleted.
type MergeApplication struct {
	Canonical *Violation
	Absorbed  []MergeAbsorption
	MergedBy  string
}

// MergeAbsorption pairs an absorbed record with the similarity evidence that
// justified the merge.
type MergeAbsorption struct {
	Violation      *Violation
	CompositeScore float64
	Breakdown      []byte
}

// ApplyMerge executes a merge-then-delete unit. Deletions never precede the
// canonical update.
func (p *Pool) ApplyMerge(ctx context.Context, app MergeApplication) error {
	if app.Canonical == nil {
		return fmt.Errorf("canonical violation is required")
	}
	if len(app.Absorbed) == 0 {
		return fmt.Errorf("at least one absorbed violation is required")
	}

	now := time.Now().UTC()

	return p.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Save(app.Canonical).Error; err != nil {
			return fmt.Errorf("update canonical %s: %w", app.Canonical.ViolationUUID, err)
		}

		for _, absorption := range app.Absorbed {
			if absorption.Violation == nil {
				return fmt.Errorf("absorbed violation is nil")
			}

			mergeRow := ViolationMerge{
				AbsorbedUUID:   absorption.Violation.ViolationUUID,
				CanonicalUUID:  app.Canonical.ViolationUUID,
				CompositeScore: absorption.CompositeScore,
				Breakdown:      absorption.Breakdown,
				MergedBy:       app.MergedBy,
				CreatedAt:      now,
			}
			if err := tx.Create(&mergeRow).Error; err != nil {
				return fmt.Errorf("insert merge audit row for %s: %w", absorption.Violation.ViolationUUID, err)
			}

			res := tx.Model(&Violation{}).
				Where("violation_id = ? AND deleted_at IS NULL", absorption.Violation.ViolationID).
				Update("deleted_at", now)
			if res.Error != nil {
				return fmt.Errorf("delete absorbed %s: %w", absorption.Violation.ViolationUUID, res.Error)
			}
			if res.RowsAffected != 1 {
				return fmt.Errorf("absorbed %s was already deleted by a concurrent run", absorption.Violation.ViolationUUID)
			}
		}
		return nil
	})
}
