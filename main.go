package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	conf "github.com/provider24/ingest/internal/config"
	"github.com/provider24/ingest/internal/db"
	"github.com/provider24/ingest/internal/logs"
	"github.com/provider24/ingest/internal/pipeline"
	"github.com/provider24/ingest/internal/source"
	"github.com/provider24/ingest/internal/tracker"
	"github.com/rs/zerolog"
)

// version can be overridden with: -ldflags "-X 'main.ver=1.0.1'"
var ver = "1.0.0"

func main() {
	var (
		configPath = flag.String("config", "config.json", "path to config file")
		oneFile    = flag.String("file", "", "process a single CSV file and exit")
		once       = flag.Bool("once", false, "scan the watch directory once and exit")
		kind       = flag.String("kind", "csv", "source kind of -file (csv|image)")
	)
	flag.Parse()

	log := logs.New("ingestd.log", true)
	log.Info().Str("version", ver).Msg("ingestd starting")

	cfg, created, err := conf.LoadOrCreate(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if created {
		log.Info().Str("path", *configPath).Msg("default config written, adjust database settings before production use")
	}

	h, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("database open failed")
	}
	if err := h.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("database migrate failed")
	}

	run := db.NewRunner(h, log, cfg.Retry.MaxAttempts, time.Duration(cfg.Retry.BaseDelayMs)*time.Millisecond)
	pipe := pipeline.New(log, run, cfg.Container)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *oneFile != "" {
		res := processFile(ctx, log, pipe, *kind, *oneFile)
		if res.Status == pipeline.StatusFailed {
			os.Exit(1)
		}
		return
	}

	scanOnce(ctx, log, pipe, cfg.WatchDir)
	if *once {
		return
	}

	ticker := time.NewTicker(time.Duration(cfg.PollSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("ingestd stopping")
			return
		case <-ticker.C:
			scanOnce(ctx, log, pipe, cfg.WatchDir)
		}
	}
}

// scanOnce processes every CSV drop in the watch directory. Files stay in
// place after processing; the status table is the dedup, so re-seeing a
// processed file is a cheap Skipped.
func scanOnce(ctx context.Context, log zerolog.Logger, pipe *pipeline.Pipeline, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("cannot read watch directory")
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		processFile(ctx, log, pipe, "csv", filepath.Join(dir, e.Name()))
	}
}

func processFile(ctx context.Context, log zerolog.Logger, pipe *pipeline.Pipeline, kind, path string) pipeline.Result {
	name := filepath.Base(path)

	dec, ok := source.Get(kind)
	if !ok {
		log.Error().Str("kind", kind).Msg("unknown source kind")
		return pipeline.Result{Status: pipeline.StatusFailed, Err: fmt.Sprintf("unknown source kind %q", kind)}
	}

	f, err := os.Open(path)
	if err != nil {
		log.Error().Err(err).Str("file", name).Msg("cannot open file")
		return pipeline.Result{Status: pipeline.StatusFailed, Err: err.Error()}
	}
	defer f.Close()

	fi, _ := f.Stat()
	meta := tracker.Meta{ContentType: "text/csv"}
	if fi != nil {
		meta.BlobSize = fi.Size()
	}

	rows, err := dec.Decode(f)
	if err != nil {
		log.Error().Err(err).Str("file", name).Msg("decode failed")
		return pipeline.Result{Status: pipeline.StatusFailed, Err: err.Error()}
	}

	res := pipe.ProcessBatch(ctx, name, rows, meta)
	switch res.Status {
	case pipeline.StatusSkipped:
		log.Debug().Str("file", name).Msg("already processed, skipped")
	case pipeline.StatusSuccess:
		log.Info().Str("file", name).
			Int("providers_inserted", res.Counts.Providers.Inserted).
			Int("products_inserted", res.Counts.Products.Inserted).
			Int("links_inserted", res.Counts.Links.Inserted).
			Int("rejected", res.Rejected).
			Msg("processed OK")
	case pipeline.StatusFailed:
		log.Error().Str("file", name).Str("error", res.Err).Msg("processing failed")
	}
	return res
}
