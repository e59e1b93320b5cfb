// cmd/orphanscan/main.go
//
// Operator tool: lists uploads stuck in pending/processing beyond a
// cutoff (lost or crashed jobs), and optionally reports per-workspace
// storage totals. Stuck rows are surfaced, never auto-cancelled.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/shopcraft/media-pipeline/internal/ledger"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	var (
		dbPath    = flag.String("db", envOr("DATABASE_PATH", "./data/media.db"), "ledger database path")
		olderThan = flag.Duration("older-than", 24*time.Hour, "report uploads stuck longer than this")
		workspace = flag.String("totals", "", "instead of scanning, print storage totals for the workspace")
		uploader  = flag.String("uploader", "", "narrow -totals to one uploader")
	)
	flag.Parse()

	db, err := gorm.Open(sqlite.Open(*dbPath), &gorm.Config{})
	if err != nil {
		logger.Error("open database", "db", *dbPath, "err", err)
		os.Exit(1)
	}
	repo, err := ledger.NewGormRepository(db)
	if err != nil {
		logger.Error("migrate ledger", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *workspace != "" {
		reportTotals(ctx, repo, *workspace, *uploader, logger)
		return
	}

	cutoff := time.Now().Add(-*olderThan)
	orphans, err := repo.FindOrphaned(ctx, cutoff)
	if err != nil {
		logger.Error("orphan scan failed", "err", err)
		os.Exit(1)
	}
	if len(orphans) == 0 {
		fmt.Println("no orphaned uploads")
		return
	}
	for _, u := range orphans {
		fmt.Printf("%s\t%s\t%s\t%s\tstuck_since=%s\n",
			u.ID, u.WorkspaceID, u.MediaKind, u.Status, u.CreatedAt.Format(time.RFC3339))
	}
	logger.Info("scan complete", "orphans", len(orphans), "cutoff", cutoff.Format(time.RFC3339))
}

func reportTotals(ctx context.Context, repo ledger.Repository, workspace, uploader string, logger *slog.Logger) {
	totals, err := repo.WorkspaceTotals(ctx, workspace, uploader)
	if err != nil {
		logger.Error("storage totals failed", "workspace", workspace, "err", err)
		os.Exit(1)
	}
	var sum int64
	for _, t := range totals {
		fmt.Printf("%s\t%s\tcount=%d\tbytes=%d\n", t.WorkspaceID, t.MediaKind, t.Count, t.TotalBytes)
		sum += t.TotalBytes
	}
	fmt.Printf("total\t%d bytes\n", sum)
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
