package client

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// newsNowMarker starts the "latest news" trailer appended to article bodies.
const newsNowMarker = "Ειδήσεις τώρα"

var newsNowKey = foldKey(newsNowMarker)

// ArticleExtractor fetches an article page and returns its title and the
// cleaned body text.
type ArticleExtractor struct {
	caller
}

// NewArticleExtractor creates an extractor with a per-page timeout.
func NewArticleExtractor(timeout time.Duration) *ArticleExtractor {
	return &ArticleExtractor{caller: newCaller("article", timeout)}
}

// Extract fetches url and extracts its content. The body comes from the
// site's article-content block when present, otherwise from all paragraphs.
func (e *ArticleExtractor) Extract(ctx context.Context, url string) (string, string, error) {
	body, err := e.do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
	if err != nil {
		return "", "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("parse document: %w", err)
	}
	title, text := ExtractDocument(doc)
	return title, text, nil
}

// ExtractDocument returns the title and cleaned body text of a parsed page.
func ExtractDocument(doc *goquery.Document) (string, string) {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title, _ = doc.Find(`meta[property="og:title"]`).Attr("content")
		title = strings.TrimSpace(title)
	}

	var text string
	if content := doc.Find("div.article-content").First(); content.Length() > 0 {
		text = contentText(content)
	} else {
		text = fallbackText(doc)
	}
	return title, cutAtNewsNow(tidyLines(text))
}

// contentText joins the lead paragraph with the body parts, skipping promo
// blocks and link-only or trailer paragraphs.
func contentText(content *goquery.Selection) string {
	parts := []string{strings.TrimSpace(content.Find("p.h4").First().Text())}

	content.Find(`div[class*="bodypart-text"]`).Each(func(_ int, div *goquery.Selection) {
		if div.HasClass("mt-3") && div.Find("a").Length() >= 3 {
			return
		}
		paragraphs := div.Find("p")
		trailer := false
		paragraphs.EachWithBreak(func(_ int, p *goquery.Selection) bool {
			trailer = foldKey(p.Text()) == newsNowKey
			return !trailer
		})
		if trailer {
			return
		}

		paragraphs.Each(func(_ int, p *goquery.Selection) {
			text := strings.TrimSpace(p.Text())
			if a := p.Find("a").First(); a.Length() > 0 && text == strings.TrimSpace(a.Text()) {
				p.Remove()
				return
			}
			if strings.HasPrefix(foldKey(text), newsNowKey) {
				p.Remove()
				return
			}
			p.Find("a").Each(func(_ int, a *goquery.Selection) {
				href, _ := a.Attr("href")
				if strings.Contains(strings.ToLower(href+a.Text()), "sportin.gr") {
					a.Remove()
				}
			})
			if strings.TrimSpace(p.Text()) == "" {
				p.Remove()
			}
		})
		parts = append(parts, joinedText(div, " "))
	})
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func fallbackText(doc *goquery.Document) string {
	scope := doc.Find("article").First()
	if scope.Length() == 0 {
		scope = doc.Find("body")
	}
	var lines []string
	scope.Find("p").Each(func(_ int, p *goquery.Selection) {
		lines = append(lines, joinedText(p, " "))
	})
	return strings.Join(lines, "\n")
}

// joinedText concatenates the trimmed text nodes under sel with sep,
// ignoring script and style content.
func joinedText(sel *goquery.Selection, sep string) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, sep)
}

func tidyLines(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// cutAtNewsNow drops everything from the first line that contains the
// trailer marker, compared without accents or case.
func cutAtNewsNow(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.Contains(foldKey(line), newsNowKey) {
			return strings.TrimSpace(strings.Join(lines[:i], "\n"))
		}
	}
	return text
}

// foldKey reduces s to lowercase letters and digits with accents removed,
// so "Ειδήσεις τώρα:" and "ΕΙΔΗΣΕΙΣ ΤΩΡΑ" compare equal.
func foldKey(s string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(s) {
		switch {
		case r == 'ς':
			b.WriteRune('σ')
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
