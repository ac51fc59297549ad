package adapter

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"github.com/amishk599/jobdigest/internal/model"
)

type personioDescription struct {
	Name  string `xml:"name"`
	Value string `xml:"value"`
}

type personioPosition struct {
	ID                 string                `xml:"id"`
	Name               string                `xml:"name"`
	Office             string                `xml:"office"`
	AdditionalOffices  []string              `xml:"additionalOffices>office"`
	Department         string                `xml:"department"`
	RecruitingCategory string                `xml:"recruitingCategory"`
	EmploymentType     string                `xml:"employmentType"`
	Seniority          string                `xml:"seniority"`
	Keywords           string                `xml:"keywords"`
	CreatedAt          string                `xml:"createdAt"`
	Descriptions       []personioDescription `xml:"jobDescriptions>jobDescription"`
}

type personioFeed struct {
	XMLName   xml.Name           `xml:"workzag-jobs"`
	Positions []personioPosition `xml:"position"`
}

type personioParams struct {
	CompanySlug string `mapstructure:"company_slug"`
	Language    string `mapstructure:"language"`
}

// PersonioAdapter reads a company's public Personio XML job feed.
type PersonioAdapter struct {
	companySlug string
	companyName string
	language    string
	client      *http.Client
}

// NewPersonioAdapter creates an adapter for <slug>.jobs.personio.com.
func NewPersonioAdapter(companySlug, companyName, language string, client *http.Client) *PersonioAdapter {
	return &PersonioAdapter{companySlug: companySlug, companyName: companyName, language: language, client: client}
}

func newPersonio(src model.SourceConfig, client *http.Client) (model.PostingFetcher, error) {
	var p personioParams
	if err := decodeParams(src, &p, "company_slug"); err != nil {
		return nil, err
	}
	return NewPersonioAdapter(p.CompanySlug, src.Company, p.Language, client), nil
}

// FetchPostings retrieves the XML feed.
func (a *PersonioAdapter) FetchPostings(ctx context.Context) ([]model.Posting, error) {
	host := fmt.Sprintf("https://%s.jobs.personio.com", a.companySlug)
	u := host + "/xml"
	if a.language != "" {
		u += "?language=" + a.language
	}

	var feed personioFeed
	if err := doXML(ctx, a.client, u, &feed, "personio fetch for "+a.companySlug); err != nil {
		return nil, err
	}

	postings := make([]model.Posting, 0, len(feed.Positions))
	for _, pos := range feed.Positions {
		offices := []string{pos.Office}
		for _, o := range pos.AdditionalOffices {
			if o != "" && o != pos.Office {
				offices = append(offices, o)
			}
		}

		var desc []string
		for _, d := range pos.Descriptions {
			desc = append(desc, d.Value)
		}

		var tags []string
		for _, v := range []string{pos.Department, pos.RecruitingCategory, pos.EmploymentType, pos.Seniority} {
			if v != "" {
				tags = append(tags, v)
			}
		}
		for _, k := range strings.Split(pos.Keywords, ",") {
			if k = strings.TrimSpace(k); k != "" {
				tags = append(tags, k)
			}
		}

		postings = append(postings, model.Posting{
			Provider:    "personio",
			ExternalID:  strings.TrimSpace(pos.ID),
			Company:     a.companyName,
			Title:       pos.Name,
			Location:    strings.Trim(strings.Join(offices, ", "), ", "),
			URL:         fmt.Sprintf("%s/job/%s", host, strings.TrimSpace(pos.ID)),
			Description: strings.Join(desc, "\n"),
			Tags:        tags,
			PostedAt:    parseRFC3339(pos.CreatedAt),
		})
	}
	return postings, nil
}
