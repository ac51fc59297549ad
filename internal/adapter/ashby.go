package adapter

import (
	"context"
	"fmt"
	"net/http"

	"github.com/amishk599/jobdigest/internal/model"
)

const ashbyBaseURL = "https://api.ashbyhq.com/posting-api/job-board"

type ashbyJob struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Department       string `json:"department"`
	Location         string `json:"location"`
	IsRemote         bool   `json:"isRemote"`
	JobURL           string `json:"jobUrl"`
	PublishedAt      string `json:"publishedAt"`
	IsListed         bool   `json:"isListed"`
	DescriptionPlain string `json:"descriptionPlain"`
}

type ashbyResponse struct {
	Jobs []ashbyJob `json:"jobs"`
}

type ashbyParams struct {
	BoardToken string `mapstructure:"board_token"`
}

// AshbyAdapter fetches postings from the Ashby public job board API.
type AshbyAdapter struct {
	boardToken  string
	companyName string
	client      *http.Client
}

// NewAshbyAdapter creates a new adapter for an Ashby job board.
func NewAshbyAdapter(boardToken string, companyName string, client *http.Client) *AshbyAdapter {
	return &AshbyAdapter{
		boardToken:  boardToken,
		companyName: companyName,
		client:      client,
	}
}

func newAshby(src model.SourceConfig, client *http.Client) (model.PostingFetcher, error) {
	var p ashbyParams
	if err := decodeParams(src, &p, "board_token"); err != nil {
		return nil, err
	}
	return NewAshbyAdapter(p.BoardToken, src.Company, client), nil
}

// FetchPostings retrieves listed jobs from the Ashby board. Unlisted jobs
// are internal-only and skipped.
func (a *AshbyAdapter) FetchPostings(ctx context.Context) ([]model.Posting, error) {
	url := fmt.Sprintf("%s/%s", ashbyBaseURL, a.boardToken)

	var ashbyResp ashbyResponse
	if err := doJSON(ctx, a.client, http.MethodGet, url, nil, &ashbyResp, "ashby fetch for "+a.boardToken); err != nil {
		return nil, err
	}

	postings := make([]model.Posting, 0, len(ashbyResp.Jobs))
	for _, aj := range ashbyResp.Jobs {
		if !aj.IsListed {
			continue
		}

		location := aj.Location
		if aj.IsRemote && location == "" {
			location = "Remote"
		}

		p := model.Posting{
			Provider:    "ashby",
			ExternalID:  aj.ID,
			Company:     a.companyName,
			Title:       aj.Title,
			Location:    location,
			URL:         aj.JobURL,
			Description: aj.DescriptionPlain,
			PostedAt:    parseRFC3339(aj.PublishedAt),
		}
		if aj.Department != "" {
			p.Tags = []string{aj.Department}
		}
		postings = append(postings, p)
	}

	return postings, nil
}
