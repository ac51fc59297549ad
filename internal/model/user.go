package model

import "time"

// User is a digest recipient. Users are owned by the account collaborator.
type User struct {
	ID       string
	Email    string
	Timezone string
	Active   bool
}

// Preference drives filtering and relevance selection for one user.
type Preference struct {
	Keyword          string
	TargetRoles      []string
	TechStackTags    []string
	NegativeKeywords []string
	RemoteOnly       bool
	StrictSeniorOnly bool
	ExperienceLevel  string   // entry, mid or senior; empty disables the bias
	Sources          []string // provider types or source ids; empty means all
	LLMInputLimit    int      // cap on the relevance batch, 0 uses the default
	MaxBullets       int      // cap on relevance selections, 0 uses the default
	AlertFrequency   AlertFrequency
}

// AlertFrequency gates how often scheduled runs may produce a digest.
type AlertFrequency string

const (
	AlertAlways AlertFrequency = "always"
	AlertDaily  AlertFrequency = "daily"
	AlertWeekly AlertFrequency = "weekly"
)

// MinInterval is the minimum time between scheduled runs for the frequency.
func (f AlertFrequency) MinInterval() time.Duration {
	switch f {
	case AlertDaily:
		return 24 * time.Hour
	case AlertWeekly:
		return 7 * 24 * time.Hour
	}
	return 0
}
