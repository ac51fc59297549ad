package adapter

import (
	"context"
	"fmt"
	"net/http"

	"github.com/amishk599/jobdigest/internal/model"
)

const gemBaseURL = "https://api.gem.com/job_board/v0"

type gemJob struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Location       gemLocation `json:"location"`
	AbsoluteURL    string      `json:"absolute_url"`
	FirstPublished string      `json:"first_published_at"`
	UpdatedAt      string      `json:"updated_at"`
	Content        string      `json:"content"`
	ContentPlain   string      `json:"content_plain"`
}

type gemLocation struct {
	Name string `json:"name"`
}

type gemParams struct {
	BoardToken string `mapstructure:"board_token"`
}

// GemAdapter fetches postings from the Gem public job board API.
type GemAdapter struct {
	boardToken  string
	companyName string
	client      *http.Client
}

// NewGemAdapter creates a new adapter for a Gem job board.
func NewGemAdapter(boardToken string, companyName string, client *http.Client) *GemAdapter {
	return &GemAdapter{
		boardToken:  boardToken,
		companyName: companyName,
		client:      client,
	}
}

func newGem(src model.SourceConfig, client *http.Client) (model.PostingFetcher, error) {
	var p gemParams
	if err := decodeParams(src, &p, "board_token"); err != nil {
		return nil, err
	}
	return NewGemAdapter(p.BoardToken, src.Company, client), nil
}

// FetchPostings retrieves all posts on the Gem board.
func (a *GemAdapter) FetchPostings(ctx context.Context) ([]model.Posting, error) {
	url := fmt.Sprintf("%s/%s/job_posts/", gemBaseURL, a.boardToken)

	var gemJobs []gemJob
	if err := doJSON(ctx, a.client, http.MethodGet, url, nil, &gemJobs, "gem fetch for "+a.boardToken); err != nil {
		return nil, err
	}

	postings := make([]model.Posting, 0, len(gemJobs))
	for _, gj := range gemJobs {
		desc := gj.ContentPlain
		if desc == "" {
			desc = gj.Content
		}
		p := model.Posting{
			Provider:    "gem",
			ExternalID:  gj.ID,
			Company:     a.companyName,
			Title:       gj.Title,
			Location:    gj.Location.Name,
			URL:         gj.AbsoluteURL,
			Description: desc,
			PostedAt:    parseRFC3339(gj.FirstPublished),
		}
		if p.PostedAt == nil {
			p.PostedAt = parseRFC3339(gj.UpdatedAt)
		}
		postings = append(postings, p)
	}

	return postings, nil
}
