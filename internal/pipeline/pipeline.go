// Package pipeline orchestrates one file-processing attempt:
// tracker → normalizer → staging load → merge → tracker finalize.
// Once a file is InProgress the attempt runs to Success or Failed before
// returning, so the audit trail never dangles by design of this path (a
// crash leaves InProgress until the next trigger re-enters it).
package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/provider24/ingest/internal/db"
	"github.com/provider24/ingest/internal/merge"
	"github.com/provider24/ingest/internal/normalizer"
	"github.com/provider24/ingest/internal/source"
	"github.com/provider24/ingest/internal/tracker"
)

const (
	StatusSuccess = "Success"
	StatusFailed  = "Failed"
	StatusSkipped = "Skipped"
)

// Result is the only contract callers see: one of the three statuses plus
// the merge tallies. Skipped is not an error.
type Result struct {
	Status   string       `json:"status"`
	Counts   merge.Counts `json:"counts"`
	Rejected int          `json:"rejected"`
	Err      string       `json:"error,omitempty"`
}

type Pipeline struct {
	log       zerolog.Logger
	run       *db.Runner
	tracker   *tracker.Tracker
	engine    *merge.Engine
	container string
}

func New(log zerolog.Logger, run *db.Runner, container string) *Pipeline {
	return &Pipeline{
		log:       log,
		run:       run,
		tracker:   tracker.New(run, log),
		engine:    merge.New(run, log),
		container: container,
	}
}

// Tracker exposes the file status tracker for callers that only need a
// status probe.
func (p *Pipeline) Tracker() *tracker.Tracker { return p.tracker }

// ProcessBatch runs one attempt for the given locator. Rows must already
// be decoded (see internal/source); image sources arrive here after the
// external vision step produced their rows.
func (p *Pipeline) ProcessBatch(ctx context.Context, fileName string, rows []source.RawRow, meta tracker.Meta) Result {
	log := p.log.With().Str("container", p.container).Str("file", fileName).Logger()

	if _, err := p.tracker.BeginProcessing(ctx, p.container, fileName, meta); err != nil {
		if errors.Is(err, tracker.ErrAlreadyProcessed) {
			return Result{Status: StatusSkipped}
		}
		log.Error().Err(err).Msg("begin processing failed")
		return Result{Status: StatusFailed, Err: err.Error()}
	}

	batch := uuid.NewString()
	log = log.With().Str("batch", batch).Logger()

	lookups, err := p.loadLookups(ctx)
	if err != nil {
		return p.fail(ctx, log, fileName, Result{}, err)
	}

	norm := normalizer.Normalize(log, rows, batch, lookups)

	if err := p.loadStaging(ctx, norm); err != nil {
		return p.fail(ctx, log, fileName, Result{Rejected: norm.Rejected}, err)
	}

	counts, err := p.engine.MergeBatch(ctx, batch)
	if err != nil {
		return p.fail(ctx, log, fileName, Result{Counts: counts, Rejected: norm.Rejected}, err)
	}

	if err := p.tracker.Finish(ctx, p.container, fileName, db.StatusSuccess, ""); err != nil {
		// The merge landed but the outcome write did not; the run counts
		// as failed and the next trigger replays the idempotent merge.
		log.Error().Err(err).Msg("finalizing success status failed")
		return Result{Status: StatusFailed, Counts: counts, Rejected: norm.Rejected, Err: err.Error()}
	}

	log.Info().Int("rejected", norm.Rejected).Msg("file processed")
	return Result{Status: StatusSuccess, Counts: counts, Rejected: norm.Rejected}
}

func (p *Pipeline) fail(ctx context.Context, log zerolog.Logger, fileName string, partial Result, cause error) Result {
	log.Error().Err(cause).Msg("processing failed")
	if err := p.tracker.Finish(ctx, p.container, fileName, db.StatusFailed, cause.Error()); err != nil {
		log.Error().Err(err).Msg("recording failed status also failed")
	}
	partial.Status = StatusFailed
	partial.Err = cause.Error()
	return partial
}

// loadLookups reads the reference tables consulted by the normalizer.
func (p *Pipeline) loadLookups(ctx context.Context) (normalizer.Lookups, error) {
	lk := normalizer.Lookups{
		ProviderSynonyms: map[string]string{},
		UnitAcronyms:     map[string]string{},
		KnownUnits:       map[string]struct{}{},
	}
	err := p.run.Do(ctx, "load lookups", func(gdb *gorm.DB) error {
		var units []db.UnitOfMeasure
		if err := gdb.Find(&units).Error; err != nil {
			return err
		}
		byID := make(map[uint]string, len(units))
		for _, u := range units {
			lk.KnownUnits[u.Acronym] = struct{}{}
			byID[u.ID] = u.Acronym
		}

		var aliases []db.UnitOfMeasureAcronym
		if err := gdb.Find(&aliases).Error; err != nil {
			return err
		}
		for _, a := range aliases {
			if canonical, ok := byID[a.UnitOfMeasureID]; ok {
				lk.UnitAcronyms[strings.ToLower(a.Acronym)] = canonical
			}
		}

		var synonyms []db.ProviderSynonym
		if err := gdb.Find(&synonyms).Error; err != nil {
			return err
		}
		for _, s := range synonyms {
			lk.ProviderSynonyms[strings.ToLower(s.Synonym)] = s.ProviderName
		}
		return nil
	})
	return lk, err
}

const stagingBatchSize = 500

// loadStaging writes the normalized record sets to the staging tables,
// batched inside one transaction. Every row carries the batch id as its
// correlation column.
func (p *Pipeline) loadStaging(ctx context.Context, norm normalizer.Result) error {
	return p.run.Do(ctx, "load staging", func(gdb *gorm.DB) error {
		return gdb.Transaction(func(tx *gorm.DB) error {
			providers := make([]db.StagingProvider, 0, len(norm.Providers))
			for _, pr := range norm.Providers {
				providers = append(providers, db.StagingProvider{
					BatchGUID: norm.Batch,
					NameKey:   pr.NameKey,
					Name:      pr.Name,
				})
			}
			if len(providers) > 0 {
				if err := tx.CreateInBatches(&providers, stagingBatchSize).Error; err != nil {
					return err
				}
			}

			products := make([]db.StagingProduct, 0, len(norm.Products))
			for _, pr := range norm.Products {
				products = append(products, db.StagingProduct{
					BatchGUID:        norm.Batch,
					DescriptionKey:   pr.DescriptionKey,
					RawDescription:   pr.RawDescription,
					CleanDescription: pr.CleanDescription,
					Measure:          pr.Measure,
					UnitAcronym:      pr.UnitAcronym,
					PackageUnits:     pr.PackageUnits,
					Price:            pr.Price,
					IsValidPrice:     pr.IsValidPrice,
				})
			}
			if len(products) > 0 {
				if err := tx.CreateInBatches(&products, stagingBatchSize).Error; err != nil {
					return err
				}
			}

			links := make([]db.StagingProviderProduct, 0, len(norm.Links))
			for _, ln := range norm.Links {
				links = append(links, db.StagingProviderProduct{
					BatchGUID:      norm.Batch,
					ProviderKey:    ln.ProviderKey,
					DescriptionKey: ln.DescriptionKey,
					UnitAcronym:    ln.UnitAcronym,
					PackageUnits:   ln.PackageUnits,
					Price:          ln.Price,
					IVA:            ln.IVA,
					RawLastReview:  ln.RawLastReview,
					LastReviewDt:   ln.LastReviewDt,
					IsValidated:    ln.IsValidated,
				})
			}
			if len(links) > 0 {
				if err := tx.CreateInBatches(&links, stagingBatchSize).Error; err != nil {
					return err
				}
			}
			return nil
		})
	})
}
