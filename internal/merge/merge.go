// Package merge reconciles one batch's staging rows against the fact
// tables with upsert semantics. Tables merge in dependency order
// Unit → Provider → Product → Link, each in its own transaction; a crash
// between tables is recoverable because the natural keys are idempotent
// and replaying the batch simply continues the merge. Deletions of fact
// rows never happen here.
package merge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/provider24/ingest/internal/db"
)

type TableCounts struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}

type Counts struct {
	Units     TableCounts `json:"units"`
	Providers TableCounts `json:"providers"`
	Products  TableCounts `json:"products"`
	Links     TableCounts `json:"links"`
}

type Engine struct {
	run *db.Runner
	log zerolog.Logger
}

func New(run *db.Runner, log zerolog.Logger) *Engine {
	return &Engine{run: run, log: log}
}

// MergeBatch applies the staging rows tagged with batch to the fact
// tables and deletes them afterwards. Per-table counts are returned even
// on partial failure so callers can log what landed.
func (e *Engine) MergeBatch(ctx context.Context, batch string) (Counts, error) {
	var counts Counts

	steps := []struct {
		name string
		fn   func(tx *gorm.DB, batch string) (TableCounts, error)
	}{
		{"units", e.mergeUnits},
		{"providers", e.mergeProviders},
		{"products", e.mergeProducts},
		{"links", e.mergeLinks},
	}

	for _, step := range steps {
		var tc TableCounts
		err := e.run.Do(ctx, "merge "+step.name, func(gdb *gorm.DB) error {
			return gdb.Transaction(func(tx *gorm.DB) error {
				var err error
				tc, err = step.fn(tx, batch)
				return err
			})
		})
		switch step.name {
		case "units":
			counts.Units = tc
		case "providers":
			counts.Providers = tc
		case "products":
			counts.Products = tc
		case "links":
			counts.Links = tc
		}
		if err != nil {
			return counts, fmt.Errorf("merge %s: %w", step.name, err)
		}
		e.log.Info().Str("batch", batch).Str("table", step.name).
			Int("inserted", tc.Inserted).Int("updated", tc.Updated).Int("unchanged", tc.Unchanged).
			Msg("table merged")
	}

	return counts, nil
}

// mergeUnits inserts any unit acronym referenced by the batch that the
// fact table does not know yet. Units are never updated.
func (e *Engine) mergeUnits(tx *gorm.DB, batch string) (TableCounts, error) {
	var tc TableCounts

	var acs []string
	if err := tx.Model(&db.StagingProduct{}).
		Where("batch_guid = ? AND unit_acronym <> ''", batch).
		Distinct("unit_acronym").Pluck("unit_acronym", &acs).Error; err != nil {
		return tc, err
	}

	for _, ac := range acs {
		var existing db.UnitOfMeasure
		err := tx.Where("acronym = ?", ac).Take(&existing).Error
		switch {
		case err == nil:
			tc.Unchanged++
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&db.UnitOfMeasure{Acronym: ac, Name: ac}).Error; err != nil {
				return tc, err
			}
			tc.Inserted++
		default:
			return tc, err
		}
	}
	return tc, nil
}

func (e *Engine) mergeProviders(tx *gorm.DB, batch string) (TableCounts, error) {
	var tc TableCounts

	var staged []db.StagingProvider
	if err := tx.Where("batch_guid = ?", batch).Find(&staged).Error; err != nil {
		return tc, err
	}

	for _, sp := range staged {
		var existing db.Provider
		err := tx.Where("name_key = ?", sp.NameKey).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec := db.Provider{NameKey: sp.NameKey, Name: sp.Name, FirstBatchGUID: batch}
			if err := tx.Create(&rec).Error; err != nil {
				return tc, err
			}
			tc.Inserted++
		case err != nil:
			return tc, err
		case existing.Name != sp.Name:
			if err := tx.Model(&existing).Updates(map[string]interface{}{
				"name":       sp.Name,
				"updated_dt": time.Now(),
			}).Error; err != nil {
				return tc, err
			}
			tc.Updated++
		default:
			tc.Unchanged++
		}
	}

	if err := tx.Where("batch_guid = ?", batch).Delete(&db.StagingProvider{}).Error; err != nil {
		return tc, err
	}
	return tc, nil
}

func (e *Engine) mergeProducts(tx *gorm.DB, batch string) (TableCounts, error) {
	var tc TableCounts

	unitIDs, err := unitIDByAcronym(tx)
	if err != nil {
		return tc, err
	}

	var staged []db.StagingProduct
	if err := tx.Where("batch_guid = ?", batch).Find(&staged).Error; err != nil {
		return tc, err
	}

	for _, sp := range staged {
		var unitID *uint
		if sp.UnitAcronym != "" {
			id, ok := unitIDs[sp.UnitAcronym]
			if !ok {
				return tc, fmt.Errorf("unit %q missing from fact table for batch %s", sp.UnitAcronym, batch)
			}
			unitID = &id
		}

		var existing db.Product
		err := tx.Where("description_key = ? AND unit_acronym = ? AND package_units = ?",
			sp.DescriptionKey, sp.UnitAcronym, sp.PackageUnits).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec := db.Product{
				DescriptionKey:   sp.DescriptionKey,
				UnitAcronym:      sp.UnitAcronym,
				PackageUnits:     sp.PackageUnits,
				RawDescription:   sp.RawDescription,
				CleanDescription: sp.CleanDescription,
				Measure:          sp.Measure,
				UnitOfMeasureID:  unitID,
				Price:            sp.Price,
				IsValidPrice:     sp.IsValidPrice,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return tc, err
			}
			tc.Inserted++
		case err != nil:
			return tc, err
		default:
			changed := !eqDecimal(existing.Price, sp.Price) ||
				existing.IsValidPrice != sp.IsValidPrice ||
				!eqDecimal(existing.Measure, sp.Measure) ||
				existing.CleanDescription != sp.CleanDescription
			if changed {
				if err := tx.Model(&existing).Updates(map[string]interface{}{
					"price":             sp.Price,
					"is_valid_price":    sp.IsValidPrice,
					"measure":           sp.Measure,
					"clean_description": sp.CleanDescription,
					"updated_dt":        time.Now(),
				}).Error; err != nil {
					return tc, err
				}
				tc.Updated++
			} else {
				tc.Unchanged++
			}
		}
	}

	if err := tx.Where("batch_guid = ?", batch).Delete(&db.StagingProduct{}).Error; err != nil {
		return tc, err
	}
	return tc, nil
}

func (e *Engine) mergeLinks(tx *gorm.DB, batch string) (TableCounts, error) {
	var tc TableCounts

	var staged []db.StagingProviderProduct
	if err := tx.Where("batch_guid = ?", batch).Find(&staged).Error; err != nil {
		return tc, err
	}

	for _, sl := range staged {
		var provider db.Provider
		if err := tx.Where("name_key = ?", sl.ProviderKey).Take(&provider).Error; err != nil {
			return tc, fmt.Errorf("provider %q not in fact table for batch %s: %w", sl.ProviderKey, batch, err)
		}
		var product db.Product
		if err := tx.Where("description_key = ? AND unit_acronym = ? AND package_units = ?",
			sl.DescriptionKey, sl.UnitAcronym, sl.PackageUnits).Take(&product).Error; err != nil {
			return tc, fmt.Errorf("product %q not in fact table for batch %s: %w", sl.DescriptionKey, batch, err)
		}

		var existing db.ProviderProduct
		err := tx.Where("provider_id = ? AND product_id = ?", provider.ID, product.ID).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec := db.ProviderProduct{
				ProviderID:   provider.ID,
				ProductID:    product.ID,
				Price:        sl.Price,
				IVA:          sl.IVA,
				PackageUnits: sl.PackageUnits,
				LastReviewDt: sl.LastReviewDt,
				IsValidated:  sl.IsValidated,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return tc, err
			}
			tc.Inserted++
		case err != nil:
			return tc, err
		default:
			changed := !eqDecimal(existing.Price, sl.Price) ||
				!eqDecimal(existing.IVA, sl.IVA) ||
				existing.PackageUnits != sl.PackageUnits ||
				!eqTime(existing.LastReviewDt, sl.LastReviewDt)
			if changed {
				if err := tx.Model(&existing).Updates(map[string]interface{}{
					"price":          sl.Price,
					"iva":            sl.IVA,
					"package_units":  sl.PackageUnits,
					"last_review_dt": sl.LastReviewDt,
					"updated_dt":     time.Now(),
				}).Error; err != nil {
					return tc, err
				}
				tc.Updated++
			} else {
				tc.Unchanged++
			}
		}
	}

	if err := tx.Where("batch_guid = ?", batch).Delete(&db.StagingProviderProduct{}).Error; err != nil {
		return tc, err
	}
	return tc, nil
}

func unitIDByAcronym(tx *gorm.DB) (map[string]uint, error) {
	var units []db.UnitOfMeasure
	if err := tx.Find(&units).Error; err != nil {
		return nil, err
	}
	out := make(map[string]uint, len(units))
	for _, u := range units {
		out[u.Acronym] = u.ID
	}
	return out, nil
}

// eqDecimal is value equality on nullable decimals: two nulls are equal,
// 2.50 equals 2.5.
func eqDecimal(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	if !a.Valid {
		return true
	}
	return a.Decimal.Equal(b.Decimal)
}

func eqTime(a, b *time.Time) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return a.Equal(*b)
}
