// Package api hosts the HTTP server, middleware and REST handlers. Every JSON
// body uses the {success, data, error, message} envelope. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - /api/stocks for listing, search, statistics and the synchronous HNX
//     refresh.
//   - /api/refresh/jobs for queued refreshes and their run records.
//   - /api/watchlist for the default user's watchlist.
//   - /api/financial/{symbol} for aggregated financial reports.
package api
