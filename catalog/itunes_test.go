package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/kwpulse/errors"
	"github.com/teranos/kwpulse/internal/httpclient"
)

const searchFixture = `{
  "resultCount": 2,
  "results": [
    {"trackId": 1091189122, "trackName": "Bear", "artistName": "Shiny Frog Ltd.", "averageUserRating": 4.7, "userRatingCount": 31250},
    {"trackId": 1232780281, "trackName": "Notion", "artistName": "Notion Labs", "averageUserRating": 4.8, "userRatingCount": 92011}
  ]
}`

const hintsFixture = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
  <key>title</key><string>Suggestions</string>
  <key>hints</key>
  <array>
    <dict><key>term</key><string>notes app</string><key>priority</key><integer>90</integer></dict>
    <dict><key>term</key><string>notes</string><key>priority</key><integer>80</integer></dict>
    <dict><key>term</key><string>  </string><key>priority</key><integer>10</integer></dict>
  </array>
</dict>
</plist>`

func newTestClient(t *testing.T, handler http.HandlerFunc) *ITunesClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return newITunesClient(ITunesConfig{
		SearchURL: server.URL + "/search",
		HintsURL:  server.URL + "/hints",
	}, httpclient.WrapClient(server.Client()))
}

func TestSearch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "notes", r.URL.Query().Get("term"))
		assert.Equal(t, "gb", r.URL.Query().Get("country"))
		assert.Equal(t, "software", r.URL.Query().Get("entity"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "text/javascript")
		_, _ = w.Write([]byte(searchFixture))
	})

	apps, err := client.Search(context.Background(), "notes", "GB", 10)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, App{
		ID:          1091189122,
		Name:        "Bear",
		Developer:   "Shiny Frog Ltd.",
		Rating:      4.7,
		RatingCount: 31250,
	}, apps[0])
	assert.Equal(t, int64(92011), apps[1].RatingCount)
}

func TestSearch_TruncatesToLimit(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(searchFixture))
	})

	apps, err := client.Search(context.Background(), "notes", "us", 1)
	require.NoError(t, err)
	assert.Len(t, apps, 1)
}

func TestSearch_HTTPError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.Search(context.Background(), "notes", "us", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestSearch_EmptyTerm(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.Search(context.Background(), "   ", "us", 10)
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestAutocomplete(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/hints", r.URL.Path)
		assert.Equal(t, "Software", r.URL.Query().Get("clientApplication"))
		assert.Equal(t, "notes", r.URL.Query().Get("term"))
		assert.Equal(t, "143441-1,29", r.Header.Get("X-Apple-Store-Front"))
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(hintsFixture))
	})

	hints, err := client.Autocomplete(context.Background(), "notes", "us")
	require.NoError(t, err)
	assert.Equal(t, []Hint{
		{Keyword: "notes app", Priority: 90},
		{Keyword: "notes", Priority: 80},
	}, hints)
}

func TestAutocomplete_UnknownStorefront(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.Autocomplete(context.Background(), "notes", "zz")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestAutocomplete_MalformedPlist(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not a plist"))
	})

	_, err := client.Autocomplete(context.Background(), "notes", "us")
	assert.Error(t, err)
}

func TestNewITunesClient_BlocksLoopback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(searchFixture))
	}))
	defer server.Close()

	client := NewITunesClient(ITunesConfig{SearchURL: server.URL})
	_, err := client.Search(context.Background(), "notes", "us", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SSRF")
}

func TestStorefrontHeader(t *testing.T) {
	h, ok := StorefrontHeader(" DE ")
	assert.True(t, ok)
	assert.Equal(t, "143443-1,29", h)

	_, ok = StorefrontHeader("")
	assert.False(t, ok)
}
