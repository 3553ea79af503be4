// Command migrate applies or rolls back the schema migrations for the
// card_state and review_events tables against the configured database.
//
// Flags:
//
//	--down  roll back the most recently applied migration instead of
//	        applying pending ones
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"path/filepath"
	"runtime"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/pressly/goose/v3"

	"github.com/avolkov/srscore/internal/config"
)

func main() {
	downFlag := flag.Bool("down", false, "roll back the most recently applied migration")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("db ping: %v", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, db, os.DirFS(migrationsPath()))
	if err != nil {
		log.Fatalf("goose new provider: %v", err)
	}

	if *downFlag {
		result, err := provider.Down(ctx)
		if err != nil {
			log.Fatalf("goose down: %v", err)
		}
		log.Printf("rolled back migration: %s", result.Source.Path)
		return
	}

	results, err := provider.Up(ctx)
	if err != nil {
		log.Fatalf("goose up: %v", err)
	}
	for _, r := range results {
		log.Printf("applied migration: %s", r.Source.Path)
	}
	if len(results) == 0 {
		log.Print("no pending migrations")
	}
}

// migrationsPath resolves the absolute path to the postgres adapter's
// migrations/ directory relative to this source file.
func migrationsPath() string {
	_, currentFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(currentFile), "..", "..", "internal", "adapter", "postgres", "migrations")
}
