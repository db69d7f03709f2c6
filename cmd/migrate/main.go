package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/dvloznov/ledger-categorizer/internal/config"
	"github.com/dvloznov/ledger-categorizer/internal/infra/bigquery"
	"github.com/dvloznov/ledger-categorizer/internal/jobs/sqlite"
	"github.com/dvloznov/ledger-categorizer/internal/store/boltdb"
)

// migrate prepares every configured store so the API and worker start against a current schema:
// the entity database gets its buckets, the job database its SQL migrations and the
// warehouse its tables.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	projectID := flag.String("project", cfg.BigQueryProject, "GCP project ID of the warehouse (empty skips it)")
	datasetID := flag.String("dataset", cfg.BigQueryDataset, "BigQuery dataset ID")
	skipEntities := flag.Bool("skip-entities", false, "Do not touch the entity database (e.g. while the API holds its lock)")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if !*skipEntities {
		store, err := boltdb.Open(cfg.BoltPath)
		if err != nil {
			log.Fatalf("Failed to open entity database: %v", err)
		}
		store.Close()
		log.Printf("  [OK]   entity database %s", cfg.BoltPath)
	}

	jobStore, err := sqlite.Open(cfg.JobDBPath)
	if err != nil {
		log.Fatalf("Failed to migrate job database: %v", err)
	}
	version, dirty, err := jobStore.SchemaVersion(ctx)
	jobStore.Close()
	if err != nil {
		log.Fatalf("Failed to read job database version: %v", err)
	}
	if dirty {
		log.Fatalf("Job database %s is dirty at version %d; fix it by hand before retrying", cfg.JobDBPath, version)
	}
	log.Printf("  [OK]   job database %s at version %d", cfg.JobDBPath, version)

	if *projectID == "" {
		log.Println("  [SKIP] warehouse (no project configured)")
		return
	}
	wh, err := bigquery.New(ctx, *projectID, *datasetID)
	if err != nil {
		log.Fatalf("Failed to create BigQuery client: %v", err)
	}
	defer wh.Close()
	if err := wh.EnsureTables(ctx); err != nil {
		log.Fatalf("Failed to create warehouse tables: %v", err)
	}
	log.Printf("  [OK]   warehouse %s.%s", *projectID, *datasetID)
}
