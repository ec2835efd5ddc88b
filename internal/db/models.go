package db

import (
	"time"
)

// ViolationType enumerates the recorded violation categories.
type ViolationType string

const (
	TypeAirstrike      ViolationType = "airstrike"
	TypeShelling       ViolationType = "shelling"
	TypeDetention      ViolationType = "detention"
	TypeExecution      ViolationType = "execution"
	TypeKidnapping     ViolationType = "kidnapping"
	TypeTorture        ViolationType = "torture"
	TypeDisplacement   ViolationType = "displacement"
	TypeMurder         ViolationType = "murder"
	TypeChemicalAttack ViolationType = "chemical_attack"
	TypeLandmine       ViolationType = "landmine"
	TypeSiege          ViolationType = "siege"
	TypeOther          ViolationType = "other"
)

// KnownViolationTypes lists every accepted violation type.
var KnownViolationTypes = []ViolationType{
	TypeAirstrike, TypeShelling, TypeDetention, TypeExecution, TypeKidnapping,
	TypeTorture, TypeDisplacement, TypeMurder, TypeChemicalAttack,
	TypeLandmine, TypeSiege, TypeOther,
}

// PerpetratorAffiliation enumerates the actor attribution values.
type PerpetratorAffiliation string

const (
	PerpGovernment PerpetratorAffiliation = "government"
	PerpOpposition PerpetratorAffiliation = "opposition"
	PerpISIS       PerpetratorAffiliation = "isis"
	PerpSDF        PerpetratorAffiliation = "sdf"
	PerpRussia     PerpetratorAffiliation = "russia"
	PerpCoalition  PerpetratorAffiliation = "international_coalition"
	PerpTurkey     PerpetratorAffiliation = "turkey"
	PerpIsrael     PerpetratorAffiliation = "israel"
	PerpUnknown    PerpetratorAffiliation = "unknown"
)

// CertaintyLevel is the ordered confidence scale for a record.
type CertaintyLevel string

const (
	CertaintyPossible  CertaintyLevel = "possible"
	CertaintyProbable  CertaintyLevel = "probable"
	CertaintyConfirmed CertaintyLevel = "confirmed"
)

// Rank orders certainty levels: possible < probable < confirmed. Unknown
// values rank lowest.
func (c CertaintyLevel) Rank() int {
	switch c {
	case CertaintyPossible:
		return 1
	case CertaintyProbable:
		return 2
	case CertaintyConfirmed:
		return 3
	default:
		return 0
	}
}

// MaxCertainty returns the higher of two certainty levels.
func MaxCertainty(a, b CertaintyLevel) CertaintyLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// LocalizedText holds an English/Arabic value pair.
type LocalizedText struct {
	EN string `json:"en"`
	AR string `json:"ar"`
}

// Empty reports whether both language slots are blank.
func (t LocalizedText) Empty() bool {
	return t.EN == "" && t.AR == ""
}

// Victim is one affected person inside a violation record.
type Victim struct {
	Age               *int          `json:"age,omitempty"`
	Gender            string        `json:"gender,omitempty"`
	Status            string        `json:"status,omitempty"`
	GroupAffiliation  LocalizedText `json:"group_affiliation"`
	SectarianIdentity LocalizedText `json:"sectarian_identity"`
	DeathDate         *time.Time    `json:"death_date,omitempty"`
}

// Tag is a bilingual label pair attached to a violation.
type Tag struct {
	EN string `json:"en"`
	AR string `json:"ar"`
}

// CasualtyCounts groups the non-negative count fields of a record.
type CasualtyCounts struct {
	Deaths    int `json:"deaths"`
	Kidnapped int `json:"kidnapped"`
	Detained  int `json:"detained"`
	Injured   int `json:"injured"`
	Displaced int `json:"displaced"`
}

// Total sums all count fields.
func (c CasualtyCounts) Total() int {
	return c.Deaths + c.Kidnapped + c.Detained + c.Injured + c.Displaced
}

// Violation maps tracker.violations, the unit being deduplicated.
type Violation struct {
	ViolationID   int64         `gorm:"column:violation_id;primaryKey;autoIncrement"`
	ViolationUUID string        `gorm:"column:violation_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Type          ViolationType `gorm:"column:type;type:text;not null;index:idx_violations_type_occurred,priority:1"`

	OccurredAt time.Time  `gorm:"column:occurred_at;type:timestamptz;not null;index:idx_violations_type_occurred,priority:2"`
	ReportedAt *time.Time `gorm:"column:reported_at;type:timestamptz"`

	Latitude      *float64      `gorm:"column:latitude;type:double precision"`
	Longitude     *float64      `gorm:"column:longitude;type:double precision"`
	LocationName  LocalizedText `gorm:"column:location_name;type:jsonb;serializer:json"`
	AdminDivision LocalizedText `gorm:"column:admin_division;type:jsonb;serializer:json"`

	Description        LocalizedText `gorm:"column:description;type:jsonb;serializer:json;not null"`
	Source             LocalizedText `gorm:"column:source;type:jsonb;serializer:json"`
	SourceURL          LocalizedText `gorm:"column:source_url;type:jsonb;serializer:json"`
	VerificationMethod LocalizedText `gorm:"column:verification_method;type:jsonb;serializer:json"`

	Perpetrator PerpetratorAffiliation `gorm:"column:perpetrator;type:text;not null;default:unknown"`

	Deaths         int `gorm:"column:deaths;type:integer;not null;default:0"`
	KidnappedCount int `gorm:"column:kidnapped_count;type:integer;not null;default:0"`
	DetainedCount  int `gorm:"column:detained_count;type:integer;not null;default:0"`
	InjuredCount   int `gorm:"column:injured_count;type:integer;not null;default:0"`
	DisplacedCount int `gorm:"column:displaced_count;type:integer;not null;default:0"`

	Victims    []Victim `gorm:"column:victims;type:jsonb;serializer:json"`
	MediaLinks []string `gorm:"column:media_links;type:jsonb;serializer:json"`
	Tags       []Tag    `gorm:"column:tags;type:jsonb;serializer:json"`

	// Weak references to other violations; identifiers only, never
	// followed by the dedup engine.
	RelatedUUIDs []string `gorm:"column:related_uuids;type:jsonb;serializer:json"`

	Verified       bool           `gorm:"column:verified;type:boolean;not null;default:false"`
	CertaintyLevel CertaintyLevel `gorm:"column:certainty_level;type:text;not null;default:possible"`

	ContentHash string `gorm:"column:content_hash;type:text;not null;uniqueIndex:idx_violations_content_hash"`

	CreatedBy string     `gorm:"column:created_by;type:text;not null;default:''"`
	UpdatedBy string     `gorm:"column:updated_by;type:text;not null;default:''"`
	DeletedAt *time.Time `gorm:"column:deleted_at;type:timestamptz"`
	CreatedAt time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Violation) TableName() string { return "tracker.violations" }

// Counts assembles the casualty count fields as one value.
func (v *Violation) Counts() CasualtyCounts {
	return CasualtyCounts{
		Deaths:    v.Deaths,
		Kidnapped: v.KidnappedCount,
		Detained:  v.DetainedCount,
		Injured:   v.InjuredCount,
		Displaced: v.DisplacedCount,
	}
}

// SetCounts writes a CasualtyCounts value back onto the record.
func (v *Violation) SetCounts(c CasualtyCounts) {
	v.Deaths = c.Deaths
	v.KidnappedCount = c.Kidnapped
	v.DetainedCount = c.Detained
	v.InjuredCount = c.Injured
	v.DisplacedCount = c.Displaced
}

// HasCoordinates reports whether both latitude and longitude are present.
func (v *Violation) HasCoordinates() bool {
	return v.Latitude != nil && v.Longitude != nil
}

// ViolationMerge maps tracker.violation_merges, the audit trail row written
// for every absorbed duplicate.
type ViolationMerge struct {
	MergeID        int64     `gorm:"column:merge_id;primaryKey;autoIncrement"`
	MergeUUID      string    `gorm:"column:merge_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	AbsorbedUUID   string    `gorm:"column:absorbed_uuid;type:uuid;not null;index"`
	CanonicalUUID  string    `gorm:"column:canonical_uuid;type:uuid;not null;index"`
	CompositeScore float64   `gorm:"column:composite_score;type:double precision;not null"`
	Breakdown      []byte    `gorm:"column:breakdown;type:jsonb"`
	MergedBy       string    `gorm:"column:merged_by;type:text;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (ViolationMerge) TableName() string { return "tracker.violation_merges" }

func autoMigrateModels() []any {
	return []any{
		&Violation{},
		&ViolationMerge{},
	}
}
