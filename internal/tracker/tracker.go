// Package tracker owns the per-file processing state machine:
// Unknown → New → InProgress → {Success, Failed}. Failed re-enters
// InProgress on the next attempt; only Success is terminal and triggers
// the skip rule.
package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/provider24/ingest/internal/db"
)

// ErrAlreadyProcessed signals that the locator already reached Success.
// Callers must skip, not retry.
var ErrAlreadyProcessed = errors.New("file already processed")

type Tracker struct {
	run *db.Runner
	log zerolog.Logger
}

// Meta carries the blob attributes recorded on first sight of a file.
type Meta struct {
	BlobSize    int64
	ContentType string
}

func New(run *db.Runner, log zerolog.Logger) *Tracker {
	return &Tracker{run: run, log: log}
}

// CheckStatus is read-only; StatusUnknown when no record exists.
func (t *Tracker) CheckStatus(ctx context.Context, container, fileName string) (db.Status, error) {
	var rec db.ProcessFile
	err := t.run.Do(ctx, "check status", func(gdb *gorm.DB) error {
		return gdb.Where("container = ? AND file_name = ?", container, fileName).Take(&rec).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.StatusUnknown, nil
	}
	if err != nil {
		return db.StatusUnknown, err
	}
	return db.Status(rec.StatusID), nil
}

// BeginProcessing moves the locator to InProgress, creating the record on
// first sight. The check-then-act is a single conditional upsert: the
// conflict update is guarded by status_id <> Success, so two concurrent
// triggers for the same file cannot both pass the check, and a Success
// row is never touched.
func (t *Tracker) BeginProcessing(ctx context.Context, container, fileName string, meta Meta) (*db.ProcessFile, error) {
	now := time.Now()
	rec := db.ProcessFile{
		Container:   container,
		FileName:    fileName,
		StatusID:    int(db.StatusInProgress),
		BlobSize:    meta.BlobSize,
		ContentType: meta.ContentType,
		ProcessDt:   now,
	}

	err := t.run.Do(ctx, "begin processing", func(gdb *gorm.DB) error {
		if err := gdb.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "container"}, {Name: "file_name"}},
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Neq{Column: clause.Column{Name: "status_id"}, Value: int(db.StatusSuccess)},
			}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"status_id":  int(db.StatusInProgress),
				"process_dt": now,
				"last_error": "",
				"updated_dt": now,
			}),
		}).Create(&rec).Error; err != nil {
			return err
		}
		// Re-read to learn whether the guard blocked the update.
		return gdb.Where("container = ? AND file_name = ?", container, fileName).Take(&rec).Error
	})
	if err != nil {
		return nil, err
	}

	if db.Status(rec.StatusID) == db.StatusSuccess {
		t.log.Info().Str("container", container).Str("file", fileName).
			Msg("file already processed successfully, skipping")
		return nil, ErrAlreadyProcessed
	}
	return &rec, nil
}

// Finish records the attempt outcome. Success clears any prior error;
// Failed stores the message. A failed write propagates so the caller
// treats the whole run as failed and relies on the next trigger.
func (t *Tracker) Finish(ctx context.Context, container, fileName string, outcome db.Status, errMsg string) error {
	if outcome != db.StatusSuccess && outcome != db.StatusFailed {
		return errors.New("finish outcome must be Success or Failed")
	}
	lastError := ""
	if outcome == db.StatusFailed {
		lastError = errMsg
	}
	return t.run.Do(ctx, "finish processing", func(gdb *gorm.DB) error {
		res := gdb.Model(&db.ProcessFile{}).
			Where("container = ? AND file_name = ?", container, fileName).
			Updates(map[string]interface{}{
				"status_id":  int(outcome),
				"last_error": lastError,
				"process_dt": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.New("no process_files record to finish")
		}
		return nil
	})
}
