package scraper

import (
	"context"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Session is a reusable rendering session that must be released explicitly.
type Session interface {
	Fetcher
	Close()
}

// PromotionDetector decides whether a static probe needs a browser render.
type PromotionDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}
