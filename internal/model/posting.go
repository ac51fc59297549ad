package model

import (
	"context"
	"time"
)

// Posting is a normalized job listing from any provider. Postings are
// transient: only their job keys are persisted.
type Posting struct {
	SourceID           string // SourceConfig.ID the posting was fetched from
	Provider           string // provider family, e.g. "greenhouse"
	ExternalID         string // stable id within the provider, may be empty
	Title              string
	Company            string
	Location           string // raw location text
	NormalizedLocation string
	RemoteMode         RemoteMode
	URL                string
	Description        string // plain text
	Tags               []string
	PostedAt           *time.Time // nullable (not all APIs provide this)
}

// Key returns the posting's dedup key.
func (p Posting) Key() JobKey {
	return NewJobKey(p.Provider, p.ExternalID, p.URL)
}

// RemoteMode is the work arrangement a posting advertises.
type RemoteMode string

const (
	RemoteUnknown RemoteMode = "unknown"
	RemoteFull    RemoteMode = "remote"
	RemoteHybrid  RemoteMode = "hybrid"
	RemoteOnsite  RemoteMode = "onsite"
)

// PostingFetcher fetches postings from one configured source.
type PostingFetcher interface {
	FetchPostings(ctx context.Context) ([]Posting, error)
}
