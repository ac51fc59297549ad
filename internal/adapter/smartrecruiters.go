package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/amishk599/jobdigest/internal/model"
)

const (
	smartRecruitersBaseURL = "https://api.smartrecruiters.com/v1/companies"
	smartRecruitersPage    = 100
	smartRecruitersMax     = 1000
)

type smartRecruitersLabel struct {
	Label string `json:"label"`
}

type smartRecruitersPosting struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ReleasedDate string `json:"releasedDate"`
	Location     struct {
		City    string `json:"city"`
		Region  string `json:"region"`
		Country string `json:"country"`
		Remote  bool   `json:"remote"`
	} `json:"location"`
	Department       smartRecruitersLabel `json:"department"`
	TypeOfEmployment smartRecruitersLabel `json:"typeOfEmployment"`
	Function         smartRecruitersLabel `json:"function"`
}

type smartRecruitersResponse struct {
	Content    []smartRecruitersPosting `json:"content"`
	TotalFound int                      `json:"totalFound"`
}

type smartRecruitersParams struct {
	CompanySlug string `mapstructure:"company_slug"`
}

// SmartRecruitersAdapter pages through a company's public SmartRecruiters
// postings.
type SmartRecruitersAdapter struct {
	companySlug string
	companyName string
	client      *http.Client
}

// NewSmartRecruitersAdapter creates an adapter for one SmartRecruiters company.
func NewSmartRecruitersAdapter(companySlug, companyName string, client *http.Client) *SmartRecruitersAdapter {
	return &SmartRecruitersAdapter{companySlug: companySlug, companyName: companyName, client: client}
}

func newSmartRecruiters(src model.SourceConfig, client *http.Client) (model.PostingFetcher, error) {
	var p smartRecruitersParams
	if err := decodeParams(src, &p, "company_slug"); err != nil {
		return nil, err
	}
	return NewSmartRecruitersAdapter(p.CompanySlug, src.Company, client), nil
}

// FetchPostings walks the paged postings endpoint until totalFound is reached.
func (a *SmartRecruitersAdapter) FetchPostings(ctx context.Context) ([]model.Posting, error) {
	base := fmt.Sprintf("%s/%s/postings", smartRecruitersBaseURL, url.PathEscape(a.companySlug))

	var postings []model.Posting
	for offset := 0; offset < smartRecruitersMax; offset += smartRecruitersPage {
		u := fmt.Sprintf("%s?limit=%d&offset=%d", base, smartRecruitersPage, offset)
		var resp smartRecruitersResponse
		label := fmt.Sprintf("smartrecruiters fetch for %s (offset %d)", a.companySlug, offset)
		if err := doJSON(ctx, a.client, http.MethodGet, u, nil, &resp, label); err != nil {
			return nil, err
		}

		for _, sp := range resp.Content {
			postings = append(postings, a.posting(sp))
		}
		if len(resp.Content) < smartRecruitersPage || offset+smartRecruitersPage >= resp.TotalFound {
			break
		}
	}
	return postings, nil
}

func (a *SmartRecruitersAdapter) posting(sp smartRecruitersPosting) model.Posting {
	var parts []string
	for _, v := range []string{sp.Location.City, sp.Location.Region, sp.Location.Country} {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	location := strings.Join(parts, ", ")
	if sp.Location.Remote {
		location = strings.TrimSpace(location + " (remote)")
	}

	var tags []string
	for _, l := range []smartRecruitersLabel{sp.Department, sp.Function, sp.TypeOfEmployment} {
		if l.Label != "" {
			tags = append(tags, l.Label)
		}
	}

	return model.Posting{
		Provider:   "smartrecruiters",
		ExternalID: sp.ID,
		Company:    a.companyName,
		Title:      sp.Name,
		Location:   location,
		URL:        fmt.Sprintf("https://jobs.smartrecruiters.com/%s/%s", a.companySlug, sp.ID),
		Tags:       tags,
		PostedAt:   parseRFC3339(sp.ReleasedDate),
	}
}
