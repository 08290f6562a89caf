/*
Package utils provides feed preview support for the add-feed flow.

PreviewFeed fetches and parses a candidate feed URL locally so a feed can
be validated before it is submitted to the backend via POST /feeds/batch.

Dependencies:
  - Uses the `gofeed` library for RSS/Atom parsing.
*/
package utils

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedPreview summarizes a parsed candidate feed.
type FeedPreview struct {
	URL           string     `json:"url"`
	Title         string     `json:"title"`
	SiteURL       string     `json:"site_url,omitempty"`
	Description   string     `json:"description,omitempty"`
	Language      string     `json:"language,omitempty"`
	ItemCount     int        `json:"item_count"`
	LatestEntryAt *time.Time `json:"latest_entry_at,omitempty"`
}

// Validate checks that the preview describes a usable feed.
func (p *FeedPreview) Validate() error {
	var errors []string

	if strings.TrimSpace(p.URL) == "" {
		errors = append(errors, "url cannot be empty")
	} else if _, err := url.ParseRequestURI(p.URL); err != nil {
		errors = append(errors, "url must be a valid URL")
	}

	if strings.TrimSpace(p.Title) == "" {
		errors = append(errors, "feed has no title")
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation failed: %s", strings.Join(errors, ", "))
	}

	return nil
}

// PreviewFeed fetches and parses the feed at the given URL.
//
// Returns a FeedPreview describing the feed, or an error when the URL is
// unreachable or does not parse as RSS/Atom.
func PreviewFeed(ctx context.Context, feedURL string) (*FeedPreview, error) {
	parser := gofeed.NewParser()
	feed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %q: %w", feedURL, err)
	}

	preview := &FeedPreview{
		URL:         feedURL,
		Title:       strings.TrimSpace(feed.Title),
		SiteURL:     strings.TrimSpace(feed.Link),
		Description: strings.TrimSpace(feed.Description),
		Language:    strings.TrimSpace(feed.Language),
		ItemCount:   len(feed.Items),
	}

	for _, item := range feed.Items {
		published := item.PublishedParsed
		if published == nil {
			published = item.UpdatedParsed
		}
		if published == nil {
			continue
		}
		if preview.LatestEntryAt == nil || published.After(*preview.LatestEntryAt) {
			t := *published
			preview.LatestEntryAt = &t
		}
	}

	if err := preview.Validate(); err != nil {
		return nil, err
	}

	return preview, nil
}
