package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"tokensentry/internal/infrastructure/storage"
)

// auditcheck verifies the checksum chain of every audit log entry and
// reports tampered rows.
func main() {
	dbPath := flag.String("db", "tokensentry.db", "path to sqlite database")
	limit := flag.Int("limit", 100000, "maximum entries to verify")
	flag.Parse()

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Printf("Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	entries, err := store.ListAudit(context.Background(), *limit)
	if err != nil {
		fmt.Printf("Failed to read audit log: %v\n", err)
		os.Exit(1)
	}

	tampered := 0
	for _, e := range entries {
		if !e.Verify() {
			tampered++
			fmt.Printf("TAMPERED %s  %s  actor=%s  created=%s\n",
				e.ID, e.Action, e.Actor, e.CreatedAt.Format("2006-01-02 15:04:05"))
		}
	}

	fmt.Printf("Checked %d entries, %d tampered\n", len(entries), tampered)
	if tampered > 0 {
		os.Exit(2)
	}
}
