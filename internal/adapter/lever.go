package adapter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/amishk599/jobdigest/internal/model"
)

const leverBaseURL = "https://api.lever.co/v0/postings"

type leverCategories struct {
	Team         string   `json:"team"`
	Department   string   `json:"department"`
	Location     string   `json:"location"`
	Commitment   string   `json:"commitment"`
	AllLocations []string `json:"allLocations"`
}

type leverJob struct {
	ID               string          `json:"id"`
	Text             string          `json:"text"`
	DescriptionPlain string          `json:"descriptionPlain"`
	Categories       leverCategories `json:"categories"`
	CreatedAt        int64           `json:"createdAt"`
	WorkplaceType    string          `json:"workplaceType"`
	HostedURL        string          `json:"hostedUrl"`
}

type leverParams struct {
	CompanySlug string `mapstructure:"company_slug"`
}

// LeverAdapter fetches postings from the Lever public postings API.
type LeverAdapter struct {
	companySlug string
	companyName string
	client      *http.Client
}

// NewLeverAdapter creates a new adapter for a Lever board.
func NewLeverAdapter(companySlug string, companyName string, client *http.Client) *LeverAdapter {
	return &LeverAdapter{
		companySlug: companySlug,
		companyName: companyName,
		client:      client,
	}
}

func newLever(src model.SourceConfig, client *http.Client) (model.PostingFetcher, error) {
	var p leverParams
	if err := decodeParams(src, &p, "company_slug"); err != nil {
		return nil, err
	}
	return NewLeverAdapter(p.CompanySlug, src.Company, client), nil
}

// FetchPostings retrieves all postings on the Lever board.
func (a *LeverAdapter) FetchPostings(ctx context.Context) ([]model.Posting, error) {
	url := fmt.Sprintf("%s/%s?mode=json", leverBaseURL, a.companySlug)

	var leverJobs []leverJob
	if err := doJSON(ctx, a.client, http.MethodGet, url, nil, &leverJobs, "lever fetch for "+a.companySlug); err != nil {
		return nil, err
	}

	postings := make([]model.Posting, 0, len(leverJobs))
	for _, lj := range leverJobs {
		location := lj.Categories.Location
		if len(lj.Categories.AllLocations) > 0 {
			location = strings.Join(lj.Categories.AllLocations, ", ")
		}
		// workplaceType is the only explicit remote signal Lever gives.
		if lj.WorkplaceType != "" && !strings.Contains(strings.ToLower(location), lj.WorkplaceType) {
			location = strings.TrimSpace(location + " (" + lj.WorkplaceType + ")")
		}

		var postedAt *time.Time
		if lj.CreatedAt > 0 {
			t := time.UnixMilli(lj.CreatedAt)
			postedAt = &t
		}

		var tags []string
		for _, tag := range []string{lj.Categories.Team, lj.Categories.Department, lj.Categories.Commitment} {
			if tag != "" {
				tags = append(tags, tag)
			}
		}

		postings = append(postings, model.Posting{
			Provider:    "lever",
			ExternalID:  lj.ID,
			Company:     a.companyName,
			Title:       lj.Text,
			Location:    location,
			URL:         lj.HostedURL,
			Description: lj.DescriptionPlain,
			Tags:        tags,
			PostedAt:    postedAt,
		})
	}

	return postings, nil
}
