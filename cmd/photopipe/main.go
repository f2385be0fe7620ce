// Command photopipe runs the differential-photometry pipeline: it ingests
// the photometry stage's measurement files into a LEMONdB, computes a
// light curve for every (star, filter) pair and optionally serves the
// viewer API over the result.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/meridian-astro/photopipe/internal/api"
	"github.com/meridian-astro/photopipe/internal/config"
	"github.com/meridian-astro/photopipe/internal/ingest"
	"github.com/meridian-astro/photopipe/internal/lemondb"
	"github.com/meridian-astro/photopipe/internal/monitoring"
	"github.com/meridian-astro/photopipe/internal/photom"
	"github.com/meridian-astro/photopipe/internal/pipeline"
)

var (
	dbPath     = flag.String("db", "lemon.db", "Path to the LEMONdB sqlite file")
	catalog    = flag.String("catalog", "", "Star catalogue CSV (required with image files)")
	configPath = flag.String("config", "", "Optional tuning config (JSON)")
	listen     = flag.String("listen", "", "Serve the viewer API on this address after the run (e.g. :8080)")
	serveOnly  = flag.Bool("serve-only", false, "Skip ingestion and reduction; only serve the viewer API")
	verbose    = flag.Bool("verbose", false, "Log per-unit progress")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Resolve(*configPath)
	if err != nil {
		return err
	}
	monitoring.SetVerbose(*verbose || cfg.IsVerbose())

	db, err := lemondb.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if !*serveOnly {
		if err := reduce(db, cfg); err != nil {
			return err
		}
	}

	if *listen != "" {
		return serve(db)
	}
	return nil
}

func reduce(db *lemondb.DB, cfg *config.Config) error {
	images := flag.Args()
	if *catalog == "" || len(images) == 0 {
		return errors.New("need -catalog and at least one image file (or -serve-only)")
	}

	store := photom.NewStore()
	res, err := ingest.Run(store, db, *catalog, images)
	if err != nil {
		return err
	}
	if res.Measurements == 0 {
		return errors.New("no measurements ingested")
	}

	var units []pipeline.Unit
	for _, pb := range store.Passbands() {
		for _, star := range store.StarsObservedIn(pb) {
			units = append(units, pipeline.Unit{Star: star, Filter: pb})
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := pipeline.Run(ctx, store, db, units, cfg.PipelineOptions())
	if err := db.RecordRun(result); err != nil {
		return err
	}
	for _, f := range result.Failed {
		monitoring.Debugf("failed: %s: %v", f.Unit, f.Err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run interrupted: %w", err)
	}
	return nil
}

func serve(db *lemondb.DB) error {
	server := api.NewServer(db)
	log.Printf("serving viewer API on %s", *listen)
	return http.ListenAndServe(*listen, api.LoggingMiddleware(server.ServeMux()))
}
