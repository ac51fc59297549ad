package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SourceState is the onboarding lifecycle stage of a configured source.
type SourceState string

const (
	SourceCandidate SourceState = "candidate"
	SourceActive    SourceState = "active"
	SourcePaused    SourceState = "paused"
	SourceError     SourceState = "error"
	SourceNoJobs    SourceState = "no_jobs"
)

// AllSourceStates lists states in report order.
var AllSourceStates = []SourceState{SourceActive, SourceCandidate, SourceNoJobs, SourceError, SourcePaused}

// ParseSourceState converts a string to a SourceState.
func ParseSourceState(s string) (SourceState, error) {
	st := SourceState(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllSourceStates {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown source state %q", s)
}

// SourceConfig is one externally configured candidate source.
type SourceConfig struct {
	ID       string
	Provider string
	Company  string
	Priority int // lower ranks first when scores tie
	Paused   bool
	Params   map[string]any
}

// ConfigHash fingerprints the provider and connection parameters. Map keys
// are sorted by encoding/json, so equal configs hash equally.
func (s SourceConfig) ConfigHash() string {
	b, err := json.Marshal(struct {
		Provider string         `json:"provider"`
		Company  string         `json:"company"`
		Params   map[string]any `json:"params"`
	}{s.Provider, s.Company, s.Params})
	if err != nil {
		b = []byte(fmt.Sprintf("%s|%s|%v", s.Provider, s.Company, s.Params))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

// SourceStatus is the persisted validation state of a source.
type SourceStatus struct {
	SourceID            string
	State               SourceState
	ConfigHash          string
	LastValidatedAt     *time.Time // nil means never probed
	LastResult          string
	PostingCount        int
	ConsecutiveFailures int
	LastError           string
	UpdatedAt           time.Time
}

// Probed reports whether the source has ever been validated.
func (s SourceStatus) Probed() bool {
	return s.LastValidatedAt != nil
}
