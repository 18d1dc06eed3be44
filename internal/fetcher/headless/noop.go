package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/hnx-restricted-tracker/internal/scraper"
)

// ErrDisabled is returned by Noop for every fetch.
var ErrDisabled = errors.New("headless browser disabled")

// Noop stands in for Session when the browser is disabled in configuration.
type Noop struct{}

// NewNoop creates a new Noop session.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always fails with ErrDisabled.
func (Noop) Fetch(_ context.Context, _ scraper.FetchRequest) (scraper.FetchResponse, error) {
	return scraper.FetchResponse{}, ErrDisabled
}

// Close does nothing.
func (Noop) Close() {}
