package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/provider24/ingest/internal/db"
	"github.com/provider24/ingest/internal/source"
	"github.com/provider24/ingest/internal/tracker"
)

func testPipeline(t *testing.T) (*Pipeline, *gorm.DB) {
	t.Helper()
	h, err := db.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, h.Migrate())
	run := db.NewRunner(h, zerolog.Nop(), 1, time.Millisecond)
	return New(zerolog.Nop(), run, "products-dev"), h.DB
}

func sampleRows() []source.RawRow {
	return []source.RawRow{
		{
			Description:  "Arroz 1kg",
			ProviderName: "distribuidoraSanJuan",
			LastReviewDt: "15/03/2024",
			Price:        "2.500,00",
			IVA:          "21",
		},
		{
			Description:  "Fideos 500g x12",
			ProviderName: "Acme Foods",
			LastReviewDt: "2024-03-16",
			Price:        "1.200,50",
			IVA:          "10,5",
		},
	}
}

func TestProcessBatchSuccess(t *testing.T) {
	pipe, gdb := testPipeline(t)

	res := pipe.ProcessBatch(context.Background(), "lista.csv", sampleRows(), tracker.Meta{})
	require.Equal(t, StatusSuccess, res.Status, "error: %s", res.Err)
	assert.Empty(t, res.Err)

	assert.Equal(t, 2, res.Counts.Providers.Inserted)
	assert.Equal(t, 2, res.Counts.Products.Inserted)
	assert.Equal(t, 2, res.Counts.Links.Inserted)
	assert.Equal(t, 2, res.Counts.Units.Inserted) // kg, g
	assert.Zero(t, res.Rejected)

	var prov db.Provider
	require.NoError(t, gdb.Where("name_key = ?", "distribuidora san juan").Take(&prov).Error)
	assert.Equal(t, "Distribuidora San Juan", prov.Name)
	assert.NotEmpty(t, prov.FirstBatchGUID)

	// staging is drained after the merge
	var n int64
	gdb.Model(&db.StagingProduct{}).Count(&n)
	assert.Zero(t, n)

	st, err := pipe.Tracker().CheckStatus(context.Background(), "products-dev", "lista.csv")
	require.NoError(t, err)
	assert.Equal(t, db.StatusSuccess, st)
}

func TestProcessBatchThenSkipped(t *testing.T) {
	pipe, gdb := testPipeline(t)
	ctx := context.Background()

	res := pipe.ProcessBatch(ctx, "lista.csv", sampleRows(), tracker.Meta{})
	require.Equal(t, StatusSuccess, res.Status, "error: %s", res.Err)

	var before int64
	gdb.Model(&db.Product{}).Count(&before)

	res = pipe.ProcessBatch(ctx, "lista.csv", sampleRows(), tracker.Meta{})
	assert.Equal(t, StatusSkipped, res.Status)

	// zero table mutations on the skipped run
	var after int64
	gdb.Model(&db.Product{}).Count(&after)
	assert.Equal(t, before, after)
	gdb.Model(&db.StagingProduct{}).Count(&after)
	assert.Zero(t, after)
}

func TestProcessBatchReingestIsIdempotent(t *testing.T) {
	pipe, gdb := testPipeline(t)
	ctx := context.Background()

	res := pipe.ProcessBatch(ctx, "lista-v1.csv", sampleRows(), tracker.Meta{})
	require.Equal(t, StatusSuccess, res.Status, "error: %s", res.Err)

	// same content under a new locator: nothing new inserted
	res = pipe.ProcessBatch(ctx, "lista-v2.csv", sampleRows(), tracker.Meta{})
	require.Equal(t, StatusSuccess, res.Status, "error: %s", res.Err)
	assert.Zero(t, res.Counts.Providers.Inserted)
	assert.Zero(t, res.Counts.Products.Inserted)
	assert.Zero(t, res.Counts.Links.Inserted)

	var n int64
	gdb.Model(&db.Provider{}).Count(&n)
	assert.EqualValues(t, 2, n)
}

func TestProcessBatchRejectedRows(t *testing.T) {
	pipe, _ := testPipeline(t)

	rows := append(sampleRows(), source.RawRow{ProviderName: "Acme", Price: "100"})
	res := pipe.ProcessBatch(context.Background(), "con-basura.csv", rows, tracker.Meta{})
	require.Equal(t, StatusSuccess, res.Status, "error: %s", res.Err)
	assert.Equal(t, 1, res.Rejected)
}

func TestProcessBatchEmptyInput(t *testing.T) {
	pipe, _ := testPipeline(t)

	res := pipe.ProcessBatch(context.Background(), "vacio.csv", nil, tracker.Meta{})
	require.Equal(t, StatusSuccess, res.Status, "error: %s", res.Err)
	assert.Zero(t, res.Counts.Products.Inserted)
}

func TestProcessBatchFailureRecordsStatus(t *testing.T) {
	pipe, gdb := testPipeline(t)
	ctx := context.Background()

	// sabotage the staging table so the load step fails
	require.NoError(t, gdb.Migrator().DropTable(&db.StagingProduct{}))

	res := pipe.ProcessBatch(ctx, "roto.csv", sampleRows(), tracker.Meta{})
	assert.Equal(t, StatusFailed, res.Status)
	assert.NotEmpty(t, res.Err)

	st, err := pipe.Tracker().CheckStatus(ctx, "products-dev", "roto.csv")
	require.NoError(t, err)
	assert.Equal(t, db.StatusFailed, st)

	var rec db.ProcessFile
	require.NoError(t, gdb.Where("file_name = ?", "roto.csv").Take(&rec).Error)
	assert.NotEmpty(t, rec.LastError)

	// Failed is not terminal: repair and retry succeeds
	require.NoError(t, gdb.Migrator().CreateTable(&db.StagingProduct{}))
	res = pipe.ProcessBatch(ctx, "roto.csv", sampleRows(), tracker.Meta{})
	assert.Equal(t, StatusSuccess, res.Status, "error: %s", res.Err)
}

func TestProcessBatchUsesUnitAliases(t *testing.T) {
	pipe, gdb := testPipeline(t)
	ctx := context.Background()

	require.NoError(t, gdb.Create(&db.UnitOfMeasure{Acronym: "g", Name: "gram"}).Error)
	var unit db.UnitOfMeasure
	require.NoError(t, gdb.Where("acronym = ?", "g").Take(&unit).Error)
	require.NoError(t, gdb.Create(&db.UnitOfMeasureAcronym{Acronym: "gr", UnitOfMeasureID: unit.ID}).Error)

	rows := []source.RawRow{
		{Description: "Azúcar 500gr", ProviderName: "Acme", Price: "900"},
	}
	res := pipe.ProcessBatch(ctx, "azucar.csv", rows, tracker.Meta{})
	require.Equal(t, StatusSuccess, res.Status, "error: %s", res.Err)
	assert.Zero(t, res.Counts.Units.Inserted) // gr resolved to the known g

	var prod db.Product
	require.NoError(t, gdb.Take(&prod).Error)
	assert.Equal(t, "g", prod.UnitAcronym)
}
