package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/amishk599/jobdigest/internal/model"
)

const remoteOKURL = "https://remoteok.com/api"

type remoteOKJob struct {
	ID          json.RawMessage `json:"id"` // string or number depending on the listing age
	Position    string          `json:"position"`
	Company     string          `json:"company"`
	Location    string          `json:"location"`
	URL         string          `json:"url"`
	Description string          `json:"description"`
	Tags        []string        `json:"tags"`
	Date        string          `json:"date"`
}

type remoteOKParams struct {
	APIURL string   `mapstructure:"api_url"`
	Tags   []string `mapstructure:"tags"`
}

// RemoteOKAdapter fetches the RemoteOK aggregator feed. Company names come
// from each posting, not from source config.
type RemoteOKAdapter struct {
	apiURL string
	tags   []string
	client *http.Client
}

// NewRemoteOKAdapter creates an adapter for the RemoteOK API. An empty
// apiURL uses the public endpoint.
func NewRemoteOKAdapter(apiURL string, tags []string, client *http.Client) *RemoteOKAdapter {
	if apiURL == "" {
		apiURL = remoteOKURL
	}
	return &RemoteOKAdapter{apiURL: apiURL, tags: tags, client: client}
}

func newRemoteOK(src model.SourceConfig, client *http.Client) (model.PostingFetcher, error) {
	var p remoteOKParams
	if err := decodeParams(src, &p); err != nil {
		return nil, err
	}
	return NewRemoteOKAdapter(p.APIURL, p.Tags, client), nil
}

// FetchPostings retrieves the feed. The first array element is legal
// metadata, not a job, and is skipped along with anything lacking an id.
func (a *RemoteOKAdapter) FetchPostings(ctx context.Context) ([]model.Posting, error) {
	url := a.apiURL
	if len(a.tags) > 0 {
		url += "?tags=" + strings.Join(a.tags, ",")
	}

	var items []remoteOKJob
	if err := doJSON(ctx, a.client, http.MethodGet, url, nil, &items, "remoteok fetch"); err != nil {
		return nil, err
	}

	postings := make([]model.Posting, 0, len(items))
	for _, item := range items {
		id := strings.Trim(string(item.ID), `"`)
		if id == "" || id == "null" || item.Position == "" {
			continue
		}
		postings = append(postings, model.Posting{
			Provider:    "remoteok",
			ExternalID:  id,
			Company:     item.Company,
			Title:       item.Position,
			Location:    remoteLocation(item.Location),
			URL:         item.URL,
			Description: item.Description,
			Tags:        item.Tags,
			PostedAt:    parseRFC3339(item.Date),
		})
	}
	return postings, nil
}

// remoteLocation marks aggregator postings as remote while keeping any
// geographic restriction they carry.
func remoteLocation(loc string) string {
	loc = strings.TrimSpace(loc)
	if loc == "" {
		return "Remote"
	}
	if strings.Contains(strings.ToLower(loc), "remote") {
		return loc
	}
	return "Remote, " + loc
}
