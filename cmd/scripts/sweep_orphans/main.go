package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/studiofolio/portfolio/backend/internal/config"
	"github.com/studiofolio/portfolio/backend/internal/services"
	"github.com/studiofolio/portfolio/backend/internal/store"
	"github.com/studiofolio/portfolio/backend/pkg/logger"
)

// Removes upload files that no media record references. Subdirectories and
// dotfiles are skipped. Run it while the server is stopped: the server's own
// index is not locked from here.
func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config.yaml")
	apply := flag.Bool("apply", false, "delete the files instead of only listing them")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Log.Level)

	ctx := context.Background()
	writer := store.NewWriter(store.Options{
		Attempts:   cfg.Storage.WriteRetries,
		RetryDelay: cfg.Storage.RetryDelay(),
		Timeout:    cfg.Storage.Timeout(),
		Logger:     logger.Component("store"),
	})
	table, err := services.OpenMediaIndex(ctx, cfg.MediaFile(), writer, logger.Component("store"))
	if err != nil {
		fmt.Printf("Failed to open media index: %v\n", err)
		os.Exit(1)
	}
	media, err := services.NewMediaService(table, services.MediaOptions{
		UploadDir:    cfg.Storage.UploadDir,
		PublicPrefix: cfg.Storage.PublicPrefix,
		Logger:       logger.Component("media"),
	})
	if err != nil {
		fmt.Printf("Failed to open upload directory: %v\n", err)
		os.Exit(1)
	}

	report, err := media.CleanOrphanedFiles(ctx, !*apply)
	if err != nil {
		fmt.Printf("Sweep failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Upload directory: %s\n", media.UploadDir())
	fmt.Printf("Files scanned: %d, referenced by the index: %d\n", report.Scanned, report.Referenced)
	fmt.Println("Subdirectories and dotfiles are not scanned.")
	fmt.Println()

	if len(report.Restored) > 0 {
		verb := "Would restore"
		if !report.DryRun {
			verb = "Restored"
		}
		fmt.Printf("%s %d file(s) from an unfinished delete:\n", verb, len(report.Restored))
		for _, name := range report.Restored {
			fmt.Printf("  %s\n", name)
		}
		fmt.Println()
	}

	sort.Strings(report.Removed)
	verb := "Would remove"
	if !report.DryRun {
		verb = "Removed"
	}
	fmt.Printf("%s %d orphaned file(s):\n", verb, len(report.Removed))
	fmt.Println("--------------------------------------------------------------")
	for _, name := range report.Removed {
		fmt.Printf("  %s\n", name)
	}

	if len(report.Failed) > 0 {
		fmt.Printf("\nFailed to remove %d file(s):\n", len(report.Failed))
		for name, reason := range report.Failed {
			fmt.Printf("  %-50s %s\n", name, reason)
		}
		os.Exit(1)
	}

	if report.DryRun && len(report.Removed) > 0 {
		fmt.Println("\nRe-run with -apply to delete them.")
	}
}
