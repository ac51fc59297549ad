package adapter

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/jobdigest/internal/model"
)

// recruiteeTimeLayout is the published_at format of the offers API.
const recruiteeTimeLayout = "2006-01-02 15:04:05 MST"

type recruiteeOffer struct {
	ID             int64    `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Requirements   string   `json:"requirements"`
	Location       string   `json:"location"`
	City           string   `json:"city"`
	Country        string   `json:"country"`
	Remote         bool     `json:"remote"`
	Department     string   `json:"department"`
	EmploymentType string   `json:"employment_type_code"`
	CareersURL     string   `json:"careers_url"`
	PublishedAt    string   `json:"published_at"`
	Tags           []string `json:"tags"`
}

type recruiteeResponse struct {
	Offers []recruiteeOffer `json:"offers"`
}

type recruiteeParams struct {
	CompanySlug string `mapstructure:"company_slug"`
	BaseURL     string `mapstructure:"base_url"`
}

// RecruiteeAdapter fetches published offers from a Recruitee careers site.
type RecruiteeAdapter struct {
	offersURL   string
	companyName string
	client      *http.Client
}

// NewRecruiteeAdapter creates an adapter. baseURL overrides the default
// https://<slug>.recruitee.com for companies on a custom domain.
func NewRecruiteeAdapter(companySlug, baseURL, companyName string, client *http.Client) *RecruiteeAdapter {
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.recruitee.com", companySlug)
	}
	return &RecruiteeAdapter{
		offersURL:   strings.TrimRight(baseURL, "/") + "/api/offers/",
		companyName: companyName,
		client:      client,
	}
}

func newRecruitee(src model.SourceConfig, client *http.Client) (model.PostingFetcher, error) {
	var p recruiteeParams
	if err := decodeParams(src, &p); err != nil {
		return nil, err
	}
	if p.CompanySlug == "" && p.BaseURL == "" {
		return nil, &paramsError{err: fmt.Errorf("recruitee params: one of %q or %q is required", "company_slug", "base_url")}
	}
	return NewRecruiteeAdapter(p.CompanySlug, p.BaseURL, src.Company, client), nil
}

// FetchPostings retrieves every published offer.
func (a *RecruiteeAdapter) FetchPostings(ctx context.Context) ([]model.Posting, error) {
	var resp recruiteeResponse
	if err := doJSON(ctx, a.client, http.MethodGet, a.offersURL, nil, &resp, "recruitee fetch for "+a.offersURL); err != nil {
		return nil, err
	}

	postings := make([]model.Posting, 0, len(resp.Offers))
	for _, o := range resp.Offers {
		location := o.Location
		if location == "" {
			location = strings.Trim(o.City+", "+o.Country, ", ")
		}
		if o.Remote && !strings.Contains(strings.ToLower(location), "remote") {
			location = strings.TrimSpace(location + " (remote)")
		}

		tags := append([]string{}, o.Tags...)
		for _, v := range []string{o.Department, o.EmploymentType} {
			if v != "" {
				tags = append(tags, v)
			}
		}

		p := model.Posting{
			Provider:    "recruitee",
			Company:     a.companyName,
			Title:       o.Title,
			Location:    location,
			URL:         o.CareersURL,
			Description: strings.TrimSpace(o.Description + " " + o.Requirements),
			Tags:        tags,
		}
		if o.ID != 0 {
			p.ExternalID = strconv.FormatInt(o.ID, 10)
		}
		if t, err := time.Parse(recruiteeTimeLayout, o.PublishedAt); err == nil {
			p.PostedAt = &t
		}
		postings = append(postings, p)
	}
	return postings, nil
}
