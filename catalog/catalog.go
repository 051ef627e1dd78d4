// Package catalog talks to the App Store search and search-hint endpoints.
//
// The scoring engine depends only on the Client interface. ITunesClient is the
// production adapter; CachedClient decorates any Client with a response cache.
package catalog

import "context"

// App is one ranked search result.
type App struct {
	ID          int64   `json:"trackId"`
	Name        string  `json:"trackName"`
	Developer   string  `json:"artistName"`
	Rating      float64 `json:"averageUserRating"`
	RatingCount int64   `json:"userRatingCount"`
}

// Hint is one autocomplete suggestion in the order the store returned it.
type Hint struct {
	Keyword  string `json:"keyword"`
	Priority int    `json:"priority"`
}

// Client is the app catalog contract consumed by scoring.
type Client interface {
	Search(ctx context.Context, term, country string, limit int) ([]App, error)
	Autocomplete(ctx context.Context, term, country string) ([]Hint, error)
}
