package client

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/kjstillabower/sensor-event-correlator/internal/models"
)

// listingTimeLayout is the <time> text format on listing pages.
const listingTimeLayout = "02/01/2006, 15:04"

// ListingCrawler walks a paginated news listing (<base>/page-N) newest
// first and collects links published on the requested days.
type ListingCrawler struct {
	caller
	baseURL  string
	siteRoot string
	maxPages int
	logger   *zap.Logger
}

// NewListingCrawler creates a crawler for baseURL. maxPages bounds the walk
// when the listing never reaches the earliest requested day.
func NewListingCrawler(baseURL string, timeout time.Duration, maxPages int, logger *zap.Logger) (*ListingCrawler, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid listing URL %q", baseURL)
	}
	if maxPages <= 0 {
		maxPages = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListingCrawler{
		caller:   newCaller("listing", timeout),
		baseURL:  u.String(),
		siteRoot: u.Scheme + "://" + u.Host,
		maxPages: maxPages,
		logger:   logger,
	}, nil
}

// List returns the links published on any of days, in listing order.
// Crawling stops at an empty page, at a page whose last article predates
// the earliest day, or at a failed fetch. A failure on the first page is
// returned; later failures end the walk with what was collected.
func (c *ListingCrawler) List(ctx context.Context, days []time.Time) ([]models.Listing, error) {
	if len(days) == 0 {
		return nil, nil
	}
	wanted := make(map[string]struct{}, len(days))
	earliest := days[0]
	for _, d := range days {
		wanted[d.Format("2006-01-02")] = struct{}{}
		if d.Before(earliest) {
			earliest = d
		}
	}
	earliestDay := earliest.Format("2006-01-02")

	var collected []models.Listing
	seen := make(map[string]struct{})
	for page := 1; page <= c.maxPages; page++ {
		pageURL := fmt.Sprintf("%s/page-%d", c.baseURL, page)
		c.logger.Info("processing listing page", zap.String("url", pageURL))

		doc, err := c.fetchDocument(ctx, pageURL)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			c.logger.Error("listing page fetch failed", zap.String("url", pageURL), zap.Error(err))
			break
		}

		found, lastDay, hasArticles := c.extractListings(doc, wanted)
		if !hasArticles {
			c.logger.Info("no more articles on listing page", zap.Int("page", page))
			break
		}
		for _, l := range found {
			if _, dup := seen[l.URL]; dup {
				continue
			}
			seen[l.URL] = struct{}{}
			collected = append(collected, l)
		}
		if lastDay != "" && lastDay < earliestDay {
			c.logger.Info("reached articles before requested range", zap.Int("page", page))
			break
		}
	}
	return collected, nil
}

func (c *ListingCrawler) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, err := c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	})
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// extractListings reads the <article> entries of a listing page. It reports
// the day of the last dated entry and whether the page had any articles.
func (c *ListingCrawler) extractListings(doc *goquery.Document, wanted map[string]struct{}) ([]models.Listing, string, bool) {
	doc.Find("aside.lg-pl-15").Remove()
	articles := doc.Find("article")
	if articles.Length() == 0 {
		return nil, "", false
	}

	var (
		found   []models.Listing
		lastDay string
	)
	articles.Each(func(_ int, s *goquery.Selection) {
		timeTag := s.Find("time").First()
		if timeTag.Length() == 0 {
			return
		}
		published, err := time.ParseInLocation(listingTimeLayout, strings.TrimSpace(timeTag.Text()), time.UTC)
		if err != nil {
			c.logger.Warn("unparsable listing time", zap.String("text", timeTag.Text()))
			return
		}
		day := published.Format("2006-01-02")
		lastDay = day
		if _, ok := wanted[day]; !ok {
			return
		}
		href, ok := s.Find("a[href]").First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		found = append(found, models.Listing{URL: c.absolute(strings.TrimSpace(href)), Published: published})
	})
	return found, lastDay, true
}

func (c *ListingCrawler) absolute(href string) string {
	if strings.HasPrefix(href, "/") {
		return c.siteRoot + href
	}
	return href
}
