package feeds

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Test Podcast</title>
<item>
  <title>Episode 2</title>
  <link>https://example.com/ep2</link>
  <pubDate>Mon, 10 Aug 2026 10:00:00 GMT</pubDate>
</item>
<item>
  <title>Episode 1</title>
  <enclosure url="https://example.com/ep1.mp3" type="audio/mpeg" length="1"/>
  <pubDate>Mon, 03 Aug 2026 10:00:00 GMT</pubDate>
</item>
</channel>
</rss>`

func TestFetcher_ParsesItems(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, testRSS)
	}))
	defer srv.Close()

	fetcher := NewFetcher(srv.Client(), "recap-test/1.0")
	title, items, err := fetcher.Fetch(context.Background(), srv.URL, "Bearer tok")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if title != "Test Podcast" {
		t.Errorf("Expected feed title, got %q", title)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization header not forwarded, got %q", gotAuth)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	if items[0].URL != "https://example.com/ep2" {
		t.Errorf("Unexpected item URL: %q", items[0].URL)
	}
	// An item without a link falls back to its enclosure URL.
	if items[1].URL != "https://example.com/ep1.mp3" {
		t.Errorf("Expected enclosure fallback, got %q", items[1].URL)
	}
	if items[0].PublishedAt.IsZero() {
		t.Errorf("Published timestamp not parsed")
	}
}

func TestFetcher_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	fetcher := NewFetcher(srv.Client(), "recap-test/1.0")
	if _, _, err := fetcher.Fetch(context.Background(), srv.URL, ""); err == nil {
		t.Error("Expected error for non-200 response")
	}
}
