// Package scraper extracts restricted and suspended tickers from the HNX
// listing page.
//
// The pipeline is strictly sequential: a Fetcher renders the page, every
// <table> is mapped into a typed Table, LocateTables keeps the ones whose
// header looks like a stock listing, ParseRow turns each body row into a
// Record, and ExtractFromText recovers ticker-shaped tokens from the visible
// page text when the structured path produced nothing.
//
// Only the fetch stage can fail a run. Malformed rows and unrecognised tables
// shrink the result instead of aborting it.
package scraper
