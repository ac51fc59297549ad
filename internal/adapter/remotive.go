package adapter

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/amishk599/jobdigest/internal/model"
)

const remotiveURL = "https://remotive.com/api/remote-jobs"

type remotiveJob struct {
	ID                        int64    `json:"id"`
	URL                       string   `json:"url"`
	Title                     string   `json:"title"`
	CompanyName               string   `json:"company_name"`
	Category                  string   `json:"category"`
	JobType                   string   `json:"job_type"`
	PublicationDate           string   `json:"publication_date"`
	CandidateRequiredLocation string   `json:"candidate_required_location"`
	Description               string   `json:"description"`
	Tags                      []string `json:"tags"`
}

type remotiveResponse struct {
	Jobs []remotiveJob `json:"jobs"`
}

type remotiveParams struct {
	APIURL   string `mapstructure:"api_url"`
	Category string `mapstructure:"category"`
	Search   string `mapstructure:"search"`
}

// RemotiveAdapter fetches the Remotive aggregator feed.
type RemotiveAdapter struct {
	apiURL   string
	category string
	search   string
	client   *http.Client
}

// NewRemotiveAdapter creates an adapter for the Remotive API.
func NewRemotiveAdapter(apiURL, category, search string, client *http.Client) *RemotiveAdapter {
	if apiURL == "" {
		apiURL = remotiveURL
	}
	return &RemotiveAdapter{apiURL: apiURL, category: category, search: search, client: client}
}

func newRemotive(src model.SourceConfig, client *http.Client) (model.PostingFetcher, error) {
	var p remotiveParams
	if err := decodeParams(src, &p); err != nil {
		return nil, err
	}
	return NewRemotiveAdapter(p.APIURL, p.Category, p.Search, client), nil
}

// FetchPostings retrieves the feed, optionally narrowed by category or search.
func (a *RemotiveAdapter) FetchPostings(ctx context.Context) ([]model.Posting, error) {
	u := a.apiURL
	q := url.Values{}
	if a.category != "" {
		q.Set("category", a.category)
	}
	if a.search != "" {
		q.Set("search", a.search)
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var resp remotiveResponse
	if err := doJSON(ctx, a.client, http.MethodGet, u, nil, &resp, "remotive fetch"); err != nil {
		return nil, err
	}

	postings := make([]model.Posting, 0, len(resp.Jobs))
	for _, rj := range resp.Jobs {
		p := model.Posting{
			Provider:    "remotive",
			Company:     rj.CompanyName,
			Title:       rj.Title,
			Location:    remoteLocation(rj.CandidateRequiredLocation),
			URL:         rj.URL,
			Description: rj.Description,
			Tags:        append(append([]string{}, rj.Tags...), rj.Category, rj.JobType),
		}
		if rj.ID != 0 {
			p.ExternalID = strconv.FormatInt(rj.ID, 10)
		}
		if t, err := time.Parse("2006-01-02T15:04:05", rj.PublicationDate); err == nil {
			p.PostedAt = &t
		} else {
			p.PostedAt = parseRFC3339(rj.PublicationDate)
		}
		postings = append(postings, p)
	}
	return postings, nil
}
