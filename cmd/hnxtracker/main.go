// Package main is the hnxtracker entrypoint.
//
// Architecture overview:
//   - Extraction: internal/scraper renders the HNX restricted-securities page in a chromedp session, locates the
//     listing table with goquery and parses its rows; a regex text scan is the fallback when no table matches.
//   - Refresh: internal/refresh runs scrape, persist, archive and publish. It is reached synchronously from
//     POST /api/stocks/refresh-hnx and the scrape command, or through the bounded queue, worker pool and scheduler.
//   - Storage: stocks, watchlist items and refresh runs live in memory, Postgres (pgx) or SQLite (sqlx), with an
//     optional Redis read-through cache and a bleve search index in front.
//   - Configuration & plumbing: Viper populates config from HNX_* env vars and a YAML file; zap provides structured
//     logging; Prometheus metrics are exported on /metrics.
//
// Quick checklist:
//   - Run locally: go run ./cmd/hnxtracker serve --config config.yaml
//   - One-off extraction: go run ./cmd/hnxtracker scrape --format yaml
//   - Schema: go run ./cmd/hnxtracker migrate up (storage.backend postgres or sqlite)
package main

import "github.com/JakeFAU/hnx-restricted-tracker/cmd"

func main() {
	cmd.Execute()
}
