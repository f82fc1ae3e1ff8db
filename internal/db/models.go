// internal/db/models.go
package db

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the processing state of a source file. Values match the
// seeded FileStatus lookup rows; only Success is terminal.
type Status int

const (
	StatusUnknown    Status = 0
	StatusNew        Status = 1
	StatusInProgress Status = 2
	StatusSuccess    Status = 3
	StatusFailed     Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "New"
	case StatusInProgress:
		return "InProgress"
	case StatusSuccess:
		return "Success"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// file_statuses (lookup, seeded by Migrate)
type FileStatus struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:50;uniqueIndex"`
}

// process_files — one row per source locator (container + file name),
// never deleted; doubles as the audit log of every attempt outcome.
type ProcessFile struct {
	ID          uint   `gorm:"primaryKey"`
	Container   string `gorm:"size:256;uniqueIndex:uniq_process_file_locator,priority:1"`
	FileName    string `gorm:"size:512;uniqueIndex:uniq_process_file_locator,priority:2"`
	StatusID    int    `gorm:"index"`
	LastError   string `gorm:"type:text"`
	BlobSize    int64
	ContentType string    `gorm:"size:128"`
	ProcessDt   time.Time // last attempt transition
	CreatedDt   time.Time `gorm:"autoCreateTime"`
	UpdatedDt   time.Time `gorm:"autoUpdateTime"`
}

// staging_providers
type StagingProvider struct {
	ID        uint   `gorm:"primaryKey"`
	BatchGUID string `gorm:"size:36;index"`
	NameKey   string `gorm:"size:255"`
	Name      string `gorm:"size:255"`
}

// staging_products
type StagingProduct struct {
	ID               uint                `gorm:"primaryKey"`
	BatchGUID        string              `gorm:"size:36;index"`
	DescriptionKey   string              `gorm:"size:512"`
	RawDescription   string              `gorm:"type:text"`
	CleanDescription string              `gorm:"type:text"`
	Measure          decimal.NullDecimal `gorm:"type:decimal(18,2)"`
	UnitAcronym      string              `gorm:"size:10"`
	PackageUnits     int
	Price            decimal.NullDecimal `gorm:"type:decimal(18,2)"`
	IsValidPrice     bool
}

// staging_provider_products — links by natural key; ids resolved at merge time.
type StagingProviderProduct struct {
	ID             uint   `gorm:"primaryKey"`
	BatchGUID      string `gorm:"size:36;index"`
	ProviderKey    string `gorm:"size:255"`
	DescriptionKey string `gorm:"size:512"`
	UnitAcronym    string `gorm:"size:10"`
	PackageUnits   int
	Price          decimal.NullDecimal `gorm:"type:decimal(18,2)"`
	IVA            decimal.NullDecimal `gorm:"type:decimal(18,2)"`
	RawLastReview  string              `gorm:"size:50"`
	LastReviewDt   *time.Time
	IsValidated    bool
}

// providers (fact)
type Provider struct {
	ID             uint      `gorm:"primaryKey"`
	NameKey        string    `gorm:"size:255;uniqueIndex"`
	Name           string    `gorm:"size:255"`
	FirstBatchGUID string    `gorm:"size:36"`
	CreatedDt      time.Time `gorm:"autoCreateTime"`
	UpdatedDt      time.Time `gorm:"autoUpdateTime"`
}

// unit_of_measures (fact, lazily created, never mutated within a run)
type UnitOfMeasure struct {
	ID      uint   `gorm:"primaryKey"`
	Acronym string `gorm:"size:10;uniqueIndex"`
	Name    string `gorm:"size:50"`
}

// unit_of_measure_acronyms — alias spellings mapped to a canonical unit ("gr" -> "g").
type UnitOfMeasureAcronym struct {
	ID              uint   `gorm:"primaryKey"`
	Acronym         string `gorm:"size:50;uniqueIndex"`
	UnitOfMeasureID uint   `gorm:"index"`
}

// provider_synonyms — alternative provider spellings mapped to the canonical clean name.
type ProviderSynonym struct {
	ID           uint   `gorm:"primaryKey"`
	Synonym      string `gorm:"size:255;uniqueIndex"`
	ProviderName string `gorm:"size:255"`
}

// products (fact); natural key = (description_key, unit_acronym, package_units).
// Key columns are kept non-null (empty string / zero when absent) so the
// composite unique index compares them reliably across drivers.
type Product struct {
	ID               uint                `gorm:"primaryKey"`
	DescriptionKey   string              `gorm:"size:512;uniqueIndex:uniq_product_key,priority:1"`
	UnitAcronym      string              `gorm:"size:10;uniqueIndex:uniq_product_key,priority:2"`
	PackageUnits     int                 `gorm:"uniqueIndex:uniq_product_key,priority:3"`
	RawDescription   string              `gorm:"type:text"`
	CleanDescription string              `gorm:"type:text"`
	Measure          decimal.NullDecimal `gorm:"type:decimal(18,2)"`
	UnitOfMeasureID  *uint               `gorm:"index"`
	Price            decimal.NullDecimal `gorm:"type:decimal(18,2)"`
	IsValidPrice     bool
	CreatedDt        time.Time `gorm:"autoCreateTime"`
	UpdatedDt        time.Time `gorm:"autoUpdateTime"`
}

// provider_products (fact); at most one row per (provider, product).
type ProviderProduct struct {
	ID           uint                `gorm:"primaryKey"`
	ProviderID   uint                `gorm:"uniqueIndex:uniq_provider_product,priority:1"`
	ProductID    uint                `gorm:"uniqueIndex:uniq_provider_product,priority:2"`
	Price        decimal.NullDecimal `gorm:"type:decimal(18,2)"`
	IVA          decimal.NullDecimal `gorm:"type:decimal(18,2)"`
	PackageUnits int
	LastReviewDt *time.Time
	IsValidated  bool
	CreatedDt    time.Time `gorm:"autoCreateTime"`
	UpdatedDt    time.Time `gorm:"autoUpdateTime"`
}
