package db

import (
	"fmt"
)

// Migrate creates/updates the schema and seeds the FileStatus lookup.
func (h *Handle) Migrate() error {
	gdb := h.DB

	if err := gdb.AutoMigrate(
		&FileStatus{},
		&ProcessFile{},
		&StagingProvider{},
		&StagingProduct{},
		&StagingProviderProduct{},
		&Provider{},
		&UnitOfMeasure{},
		&UnitOfMeasureAcronym{},
		&ProviderSynonym{},
		&Product{},
		&ProviderProduct{},
	); err != nil {
		return fmt.Errorf("AutoMigrate error: %w", err)
	}

	// Seed status lookup with fixed ids; re-running is a no-op.
	for _, st := range []Status{StatusNew, StatusInProgress, StatusSuccess, StatusFailed} {
		var n int64
		if err := gdb.Model(&FileStatus{}).Where("id = ?", int(st)).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			if err := gdb.Create(&FileStatus{ID: uint(st), Name: st.String()}).Error; err != nil {
				return fmt.Errorf("seed file_statuses %s: %w", st, err)
			}
		}
	}

	return nil
}
