// Command rehash-content-hashes backfills content_hash for prompt versions
// saved before content hashing existed, and repairs any hash that no longer
// matches its row after a manual edit.
//
// Usage:
//
//	DATABASE_URL=postgres://... go run ./scripts/rehash-content-hashes
//
// Safe to run multiple times: once every hash matches it reports 0 updates.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/kaiwa/internal/secret"
	"github.com/ashita-ai/kaiwa/internal/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Hashing never touches credentials; the key only keeps storage.New quiet.
	var box *secret.Box
	if key := os.Getenv("KAIWA_SECRET_KEY"); key != "" {
		var err error
		if box, err = secret.ParseKey(key); err != nil {
			return err
		}
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	db, err := storage.New(ctx, dbURL, box, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	scanned, updated, err := db.RehashPromptVersions(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("scanned %d prompt versions, updated %d hashes\n", scanned, updated)
	return nil
}
