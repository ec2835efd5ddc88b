package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CandidateWindow bounds the cheap pre-filter used before pairwise scoring:
// same type, occurred_at inside [Center-Span, Center+Span].
type CandidateWindow struct {
	Type   ViolationType
	Center time.Time
	Span   time.Duration
	Limit  int
}

// FindCandidates returns active violations matching the indexed type and
// time-window pre-filter, ordered by creation for deterministic downstream
// scoring. This bound is a deliberate recall/precision trade-off: records
// outside the window are never compared.
func (p *Pool) FindCandidates(ctx context.Context, window CandidateWindow) ([]Violation, error) {
	if window.Limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	if window.Span <= 0 {
		return nil, fmt.Errorf("span must be > 0")
	}

	from := window.Center.UTC().Add(-window.Span)
	to := window.Center.UTC().Add(window.Span)

	var candidates []Violation
	err := p.gdb.WithContext(ctx).
		Where("deleted_at IS NULL").
		Where("type = ?", window.Type).
		Where("occurred_at >= ? AND occurred_at <= ?", from, to).
		Order("created_at ASC, violation_id ASC").
		Limit(window.Limit).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("query dedup candidates: %w", err)
	}
	return candidates, nil
}

// CorpusFilter narrows the full-corpus listing used by the batch
// consolidation pass.
type CorpusFilter struct {
	Type ViolationType
	From time.Time
	To   time.Time
}

// ListCorpus returns all active violations matching the filter in stable
// creation order. The consolidation run depends on this ordering for
// reproducible clustering.
func (p *Pool) ListCorpus(ctx context.Context, filter CorpusFilter) ([]Violation, error) {
	q := p.gdb.WithContext(ctx).Where("deleted_at IS NULL")
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if !filter.From.IsZero() {
		q = q.Where("occurred_at >= ?", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		q = q.Where("occurred_at < ?", filter.To.UTC())
	}

	var violations []Violation
	if err := q.Order("created_at ASC, violation_id ASC").Find(&violations).Error; err != nil {
		return nil, fmt.Errorf("list corpus: %w", err)
	}
	return violations, nil
}

// CountActive counts non-deleted violations.
func (p *Pool) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := p.gdb.WithContext(ctx).
		Model(&Violation{}).
		Where("deleted_at IS NULL").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count active violations: %w", err)
	}
	return count, nil
}

// GetViolationByUUID loads one active violation.
func (p *Pool) GetViolationByUUID(ctx context.Context, violationUUID string) (*Violation, error) {
	trimmed := strings.TrimSpace(violationUUID)
	if trimmed == "" {
		return nil, fmt.Errorf("violation UUID is required")
	}

	var violation Violation
	err := p.gdb.WithContext(ctx).
		Where("violation_uuid = ? AND deleted_at IS NULL", trimmed).
		First(&violation).Error
	if err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("get violation %s: %w", trimmed, err)
	}
	return &violation, nil
}

// FindByContentHash looks up an active violation by its content fingerprint.
func (p *Pool) FindByContentHash(ctx context.Context, contentHash string) (*Violation, error) {
	if strings.TrimSpace(contentHash) == "" {
		return nil, ErrNoRows
	}

	var violation Violation
	err := p.gdb.WithContext(ctx).
		Where("content_hash = ? AND deleted_at IS NULL", contentHash).
		First(&violation).Error
	if err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("find violation by content hash: %w", err)
	}
	return &violation, nil
}

// InsertViolation persists a new record. A content-hash collision surfaces as
// ErrDuplicateContent so the caller can retry the create as a merge. The UUID
// is assigned client-side so callers can reference the record before the
// insert round-trip completes.
func (p *Pool) InsertViolation(ctx context.Context, violation *Violation) error {
	if violation == nil {
		return fmt.Errorf("violation is nil")
	}
	if violation.ViolationUUID == "" {
		violation.ViolationUUID = uuid.NewString()
	}
	if err := p.gdb.WithContext(ctx).Create(violation).Error; err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicateContent
		}
		return fmt.Errorf("insert violation: %w", err)
	}
	return nil
}

// SaveViolation writes back a mutated record.
func (p *Pool) SaveViolation(ctx context.Context, violation *Violation) error {
	if violation == nil || violation.ViolationID == 0 {
		return fmt.Errorf("violation must be persisted before save")
	}
	if err := p.gdb.WithContext(ctx).Save(violation).Error; err != nil {
		return fmt.Errorf("save violation %s: %w", violation.ViolationUUID, err)
	}
	return nil
}

// ViolationListOptions controls the list endpoint query.
type ViolationListOptions struct {
	Type     ViolationType
	From     time.Time
	To       time.Time
	Verified *bool
	Page     int
	PageSize int
}

// ListViolations pages through active violations, most recent occurrence
// first.
func (p *Pool) ListViolations(ctx context.Context, opts ViolationListOptions) ([]Violation, int64, error) {
	if opts.Page <= 0 {
		opts.Page = 1
	}
	if opts.PageSize <= 0 {
		return nil, 0, fmt.Errorf("page size must be > 0")
	}

	q := p.gdb.WithContext(ctx).Model(&Violation{}).Where("deleted_at IS NULL")
	if opts.Type != "" {
		q = q.Where("type = ?", opts.Type)
	}
	if !opts.From.IsZero() {
		q = q.Where("occurred_at >= ?", opts.From.UTC())
	}
	if !opts.To.IsZero() {
		q = q.Where("occurred_at < ?", opts.To.UTC())
	}
	if opts.Verified != nil {
		q = q.Where("verified = ?", *opts.Verified)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count violations: %w", err)
	}

	var violations []Violation
	err := q.Order("occurred_at DESC, violation_id DESC").
		Offset((opts.Page - 1) * opts.PageSize).
		Limit(opts.PageSize).
		Find(&violations).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list violations: %w", err)
	}
	return violations, total, nil
}

// ListMergesInto returns the merge audit rows for a canonical record, newest
// first.
func (p *Pool) ListMergesInto(ctx context.Context, canonicalUUID string) ([]ViolationMerge, error) {
	var merges []ViolationMerge
	err := p.gdb.WithContext(ctx).
		Where("canonical_uuid = ?", strings.TrimSpace(canonicalUUID)).
		Order("created_at DESC, merge_id DESC").
		Find(&merges).Error
	if err != nil {
		return nil, fmt.Errorf("list merges for %s: %w", canonicalUUID, err)
	}
	return merges, nil
}
