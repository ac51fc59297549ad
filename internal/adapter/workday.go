package adapter

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/jobdigest/internal/model"
)

const (
	workdayPageSize        = 20
	workdayDefaultMaxPages = 10
)

type workdayListingResponse struct {
	Total       int              `json:"total"`
	JobPostings []workdayListing `json:"jobPostings"`
}

type workdayListing struct {
	Title         string   `json:"title"`
	ExternalPath  string   `json:"externalPath"`
	LocationsText string   `json:"locationsText"`
	PostedOn      string   `json:"postedOn"`
	BulletFields  []string `json:"bulletFields"`
}

type workdayListingRequest struct {
	AppliedFacets map[string]any `json:"appliedFacets"`
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
	SearchText    string         `json:"searchText"`
}

type workdayParams struct {
	SiteURL    string `mapstructure:"site_url"`   // cxs API base, e.g. https://acme.wd5.myworkdayjobs.com/wday/cxs/acme/External
	PublicURL  string `mapstructure:"public_url"` // optional, derived from site_url when empty
	SearchText string `mapstructure:"search_text"`
	MaxPages   int    `mapstructure:"max_pages"`
}

// WorkdayAdapter pages through a Workday career site's listing endpoint.
// Listings carry enough for filtering, so no per-job detail calls are made.
type WorkdayAdapter struct {
	siteURL     string
	publicURL   string
	searchText  string
	maxPages    int
	companyName string
	client      *http.Client
	now         func() time.Time
}

// NewWorkdayAdapter creates a new adapter for a Workday career site.
func NewWorkdayAdapter(siteURL, publicURL, companyName string, client *http.Client) *WorkdayAdapter {
	siteURL = strings.TrimRight(siteURL, "/")
	if publicURL == "" {
		publicURL = derivePublicURL(siteURL)
	}
	return &WorkdayAdapter{
		siteURL:     siteURL,
		publicURL:   strings.TrimRight(publicURL, "/"),
		maxPages:    workdayDefaultMaxPages,
		companyName: companyName,
		client:      client,
		now:         time.Now,
	}
}

func newWorkday(src model.SourceConfig, client *http.Client) (model.PostingFetcher, error) {
	var p workdayParams
	if err := decodeParams(src, &p, "site_url"); err != nil {
		return nil, err
	}
	a := NewWorkdayAdapter(p.SiteURL, p.PublicURL, src.Company, client)
	a.searchText = p.SearchText
	if p.MaxPages > 0 {
		a.maxPages = p.MaxPages
	}
	return a, nil
}

// derivePublicURL maps .../wday/cxs/<tenant>/<site> to https://host/<site>.
func derivePublicURL(siteURL string) string {
	u, err := url.Parse(siteURL)
	if err != nil || u.Host == "" {
		return siteURL
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	site := segments[len(segments)-1]
	return u.Scheme + "://" + u.Host + "/" + site
}

// FetchPostings retrieves up to maxPages pages of listings.
func (a *WorkdayAdapter) FetchPostings(ctx context.Context) ([]model.Posting, error) {
	var postings []model.Posting
	label := "workday listing fetch for " + a.companyName

	for page, offset := 0, 0; page < a.maxPages; page++ {
		body := workdayListingRequest{
			AppliedFacets: map[string]any{},
			Limit:         workdayPageSize,
			Offset:        offset,
			SearchText:    a.searchText,
		}

		var listResp workdayListingResponse
		if err := doJSON(ctx, a.client, http.MethodPost, a.siteURL+"/jobs", body, &listResp, label); err != nil {
			return nil, err
		}

		for _, l := range listResp.JobPostings {
			postings = append(postings, a.postingFromListing(l))
		}

		offset += workdayPageSize
		if len(listResp.JobPostings) == 0 || offset >= listResp.Total {
			break
		}
	}

	return postings, nil
}

func (a *WorkdayAdapter) postingFromListing(l workdayListing) model.Posting {
	p := model.Posting{
		Provider:   "workday",
		ExternalID: l.ExternalPath,
		Company:    a.companyName,
		Title:      l.Title,
		Location:   l.LocationsText,
		URL:        a.publicURL + l.ExternalPath,
		Tags:       l.BulletFields,
	}
	if isAmbiguousLocation(l.LocationsText) {
		p.Location = ""
	}
	p.PostedAt = parsePostedOn(l.PostedOn, a.now())
	return p
}

var ambiguousLocationRegex = regexp.MustCompile(`^\d+ Locations?$`)

// isAmbiguousLocation returns true for Workday location strings like
// "2 Locations" where the actual location is unknown.
func isAmbiguousLocation(loc string) bool {
	return ambiguousLocationRegex.MatchString(loc)
}

var daysAgoRegex = regexp.MustCompile(`^Posted (\d+)\+? Days? Ago$`)

// parsePostedOn converts a Workday relative date string to an approximate
// timestamp relative to now.
func parsePostedOn(postedOn string, now time.Time) *time.Time {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch postedOn {
	case "Posted Today":
		return &today
	case "Posted Yesterday":
		t := today.AddDate(0, 0, -1)
		return &t
	}

	matches := daysAgoRegex.FindStringSubmatch(postedOn)
	if matches == nil {
		return nil
	}
	n, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil
	}
	t := today.AddDate(0, 0, -n)
	return &t
}
