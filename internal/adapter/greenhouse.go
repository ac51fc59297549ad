package adapter

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/amishk599/jobdigest/internal/model"
)

const greenhouseBaseURL = "https://boards-api.greenhouse.io/v1/boards"

type greenhouseJob struct {
	ID             int64              `json:"id"`
	Title          string             `json:"title"`
	Location       greenhouseLocation `json:"location"`
	AbsoluteURL    string             `json:"absolute_url"`
	UpdatedAt      string             `json:"updated_at"`
	FirstPublished string             `json:"first_published"`
	Content        string             `json:"content"`
	Departments    []struct {
		Name string `json:"name"`
	} `json:"departments"`
}

type greenhouseLocation struct {
	Name string `json:"name"`
}

type greenhouseResponse struct {
	Jobs []greenhouseJob `json:"jobs"`
}

type greenhouseParams struct {
	BoardToken string `mapstructure:"board_token"`
}

// GreenhouseAdapter fetches postings from the Greenhouse public boards API.
type GreenhouseAdapter struct {
	boardToken  string
	companyName string
	client      *http.Client
}

// NewGreenhouseAdapter creates a new adapter for a Greenhouse board.
func NewGreenhouseAdapter(boardToken string, companyName string, client *http.Client) *GreenhouseAdapter {
	return &GreenhouseAdapter{
		boardToken:  boardToken,
		companyName: companyName,
		client:      client,
	}
}

func newGreenhouse(src model.SourceConfig, client *http.Client) (model.PostingFetcher, error) {
	var p greenhouseParams
	if err := decodeParams(src, &p, "board_token"); err != nil {
		return nil, err
	}
	return NewGreenhouseAdapter(p.BoardToken, src.Company, client), nil
}

// FetchPostings retrieves all jobs on the board, with content, as postings.
func (a *GreenhouseAdapter) FetchPostings(ctx context.Context) ([]model.Posting, error) {
	url := fmt.Sprintf("%s/%s/jobs?content=true", greenhouseBaseURL, a.boardToken)

	var ghResp greenhouseResponse
	if err := doJSON(ctx, a.client, http.MethodGet, url, nil, &ghResp, "greenhouse fetch for "+a.boardToken); err != nil {
		return nil, err
	}

	postings := make([]model.Posting, 0, len(ghResp.Jobs))
	for _, gj := range ghResp.Jobs {
		p := model.Posting{
			Provider:    "greenhouse",
			ExternalID:  strconv.FormatInt(gj.ID, 10),
			Company:     a.companyName,
			Title:       gj.Title,
			Location:    gj.Location.Name,
			URL:         gj.AbsoluteURL,
			Description: gj.Content,
		}
		for _, d := range gj.Departments {
			p.Tags = append(p.Tags, d.Name)
		}

		p.PostedAt = parseRFC3339(gj.FirstPublished)
		if p.PostedAt == nil {
			p.PostedAt = parseRFC3339(gj.UpdatedAt)
		}

		postings = append(postings, p)
	}

	return postings, nil
}
