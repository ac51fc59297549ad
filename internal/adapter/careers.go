package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/amishk599/jobdigest/internal/model"
)

const defaultLinkSelector = `a[href*="job"], a[href*="career"], a[href*="position"]`

type careersParams struct {
	ListingURL    string   `mapstructure:"listing_url"`
	LinkSelector  string   `mapstructure:"link_selector"`
	TitleContains []string `mapstructure:"title_contains"`
}

// CareersPageAdapter scrapes job links from a company's own careers page.
// It has no stable job ids, so postings are keyed by canonical URL.
type CareersPageAdapter struct {
	listingURL    string
	linkSelector  string
	titleContains []string
	companyName   string
	client        *http.Client
}

// NewCareersPageAdapter creates an adapter for an HTML careers listing.
func NewCareersPageAdapter(listingURL, linkSelector, companyName string, titleContains []string, client *http.Client) *CareersPageAdapter {
	if linkSelector == "" {
		linkSelector = defaultLinkSelector
	}
	return &CareersPageAdapter{
		listingURL:    listingURL,
		linkSelector:  linkSelector,
		titleContains: titleContains,
		companyName:   companyName,
		client:        client,
	}
}

func newCareersPage(src model.SourceConfig, client *http.Client) (model.PostingFetcher, error) {
	var p careersParams
	if err := decodeParams(src, &p, "listing_url"); err != nil {
		return nil, err
	}
	return NewCareersPageAdapter(p.ListingURL, p.LinkSelector, src.Company, p.TitleContains, client), nil
}

// FetchPostings downloads the listing page and returns one posting per
// distinct job link.
func (a *CareersPageAdapter) FetchPostings(ctx context.Context) ([]model.Posting, error) {
	label := "careers fetch for " + a.listingURL

	base, err := url.Parse(a.listingURL)
	if err != nil {
		return nil, &paramsError{err: fmt.Errorf("%s: %w", label, err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.listingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("%s: unexpected status %d", label, resp.StatusCode),
		}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &decodeError{err: fmt.Errorf("%s: parse html: %w", label, err)}
	}

	seen := make(map[string]bool)
	var postings []model.Posting
	doc.Find(a.linkSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := model.CanonicalURL(base.ResolveReference(ref).String())
		if abs == "" || seen[abs] || abs == model.CanonicalURL(a.listingURL) {
			return
		}

		title := strings.Join(strings.Fields(s.Text()), " ")
		if title == "" {
			title, _ = s.Attr("title")
		}
		if title == "" || !a.titleAllowed(title) {
			return
		}
		seen[abs] = true

		location := ""
		if loc := s.Closest("li, tr, div").Find("[class*=location]").First(); loc.Length() > 0 {
			location = strings.TrimSpace(loc.Text())
		}

		postings = append(postings, model.Posting{
			Provider: "careers",
			Company:  a.companyName,
			Title:    title,
			Location: location,
			URL:      abs,
		})
	})

	return postings, nil
}

func (a *CareersPageAdapter) titleAllowed(title string) bool {
	if len(a.titleContains) == 0 {
		return true
	}
	lower := strings.ToLower(title)
	for _, needle := range a.titleContains {
		if strings.Contains(lower, strings.ToLower(needle)) {
			return true
		}
	}
	return false
}
