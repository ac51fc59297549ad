package normalize

import (
	"regexp"
	"strings"

	"github.com/amishk599/jobdigest/internal/model"
)

// Location is a parsed posting location.
type Location struct {
	Mode      model.RemoteMode
	Country   string
	Region    string
	City      string
	Canonical string
}

type alias struct {
	name    string
	country string
	region  string
	re      *regexp.Regexp
}

func wordRegex(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|[^a-z])` + regexp.QuoteMeta(name) + `(?:$|[^a-z])`)
}

func countryAlias(name, country string) alias {
	return alias{name: name, country: country, re: wordRegex(name)}
}

func cityAlias(name, country, region string) alias {
	return alias{name: name, country: country, region: region, re: wordRegex(name)}
}

// Order matters: the first match wins.
var countryAliases = []alias{
	countryAlias("united states", "United States"),
	countryAlias("usa", "United States"),
	countryAlias("u.s.", "United States"),
	countryAlias("us", "United States"),
	countryAlias("united kingdom", "United Kingdom"),
	countryAlias("uk", "United Kingdom"),
	countryAlias("u.k.", "United Kingdom"),
	countryAlias("england", "United Kingdom"),
	countryAlias("india", "India"),
	countryAlias("canada", "Canada"),
	countryAlias("germany", "Germany"),
	countryAlias("france", "France"),
	countryAlias("spain", "Spain"),
	countryAlias("italy", "Italy"),
	countryAlias("netherlands", "Netherlands"),
	countryAlias("poland", "Poland"),
	countryAlias("ireland", "Ireland"),
	countryAlias("singapore", "Singapore"),
	countryAlias("australia", "Australia"),
	countryAlias("new zealand", "New Zealand"),
	countryAlias("japan", "Japan"),
	countryAlias("south korea", "South Korea"),
	countryAlias("korea", "South Korea"),
	countryAlias("united arab emirates", "United Arab Emirates"),
	countryAlias("uae", "United Arab Emirates"),
}

var cityAliases = []alias{
	cityAlias("bangalore", "India", "Karnataka"),
	cityAlias("bengaluru", "India", "Karnataka"),
	cityAlias("hyderabad", "India", "Telangana"),
	cityAlias("pune", "India", "Maharashtra"),
	cityAlias("mumbai", "India", "Maharashtra"),
	cityAlias("gurgaon", "India", "Haryana"),
	cityAlias("gurugram", "India", "Haryana"),
	cityAlias("noida", "India", "Uttar Pradesh"),
	cityAlias("delhi", "India", "Delhi"),
	cityAlias("chennai", "India", "Tamil Nadu"),
	cityAlias("san francisco", "United States", "California"),
	cityAlias("new york", "United States", "New York"),
	cityAlias("seattle", "United States", "Washington"),
	cityAlias("austin", "United States", "Texas"),
	cityAlias("london", "United Kingdom", ""),
	cityAlias("berlin", "Germany", ""),
	cityAlias("amsterdam", "Netherlands", ""),
	cityAlias("dublin", "Ireland", ""),
	cityAlias("singapore", "Singapore", ""),
	cityAlias("tokyo", "Japan", ""),
	cityAlias("sydney", "Australia", "New South Wales"),
}

var countryLikeRegex = regexp.MustCompile(`^[A-Za-z .()-]+$`)

// NormalizeLocation infers remote mode and geography from the raw location,
// falling back to the title and description for hints.
func NormalizeLocation(raw, title, description string) Location {
	raw = CleanText(raw)
	if len(description) > 1200 {
		description = description[:1200]
	}
	combined := strings.ToLower(strings.Join([]string{raw, title, description}, " "))

	loc := Location{Mode: InferRemoteMode(combined)}
	loc.Country, loc.Region, loc.City = inferGeo(raw, combined)

	var parts []string
	for _, p := range []string{loc.City, loc.Region, loc.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	loc.Canonical = strings.Join(parts, ", ")
	switch {
	case loc.Mode == model.RemoteFull && loc.Country != "":
		loc.Canonical = "Remote (" + loc.Country + ")"
	case loc.Mode == model.RemoteFull && loc.Canonical == "":
		loc.Canonical = "Remote"
	case loc.Canonical == "":
		loc.Canonical = raw
	}
	return loc
}

// InferRemoteMode classifies lowercased text. Hybrid wins over onsite, which
// wins over remote, since "remote" often appears inside hybrid wording.
func InferRemoteMode(text string) model.RemoteMode {
	text = strings.ToLower(text)
	switch {
	case containsAny(text, "hybrid", "remote +", "remote/hybrid"):
		return model.RemoteHybrid
	case containsAny(text, "onsite", "on-site", "on site", "in office", "in-office"):
		return model.RemoteOnsite
	case containsAny(text, "remote", "work from home", "wfh", "distributed", "anywhere"):
		return model.RemoteFull
	}
	return model.RemoteUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func inferGeo(raw, combined string) (country, region, city string) {
	lower := strings.ToLower(raw)

	for _, a := range countryAliases {
		text := combined
		if len(a.name) <= 3 {
			// Short aliases like "us" only count inside the location itself.
			text = lower
		}
		if a.re.MatchString(text) {
			country = a.country
			break
		}
	}
	for _, a := range cityAliases {
		if a.re.MatchString(lower) {
			city = titleCase(a.name)
			if country == "" {
				country = a.country
			}
			region = a.region
			break
		}
	}

	var parts []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 0 && city == "" && len(parts[0]) > 1 && !looksRemoteOnly(parts[0]) {
		city = parts[0]
	}
	if len(parts) >= 2 && region == "" && len(parts[1]) <= 24 && !isCountryAlias(parts[1]) {
		region = parts[1]
	}
	if len(parts) >= 2 && country == "" {
		last := parts[len(parts)-1]
		if len(last) <= 32 && countryLikeRegex.MatchString(last) {
			country = last
		}
	}
	return country, region, city
}

func isCountryAlias(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, a := range countryAliases {
		if a.name == s {
			return true
		}
	}
	return false
}

func looksRemoteOnly(s string) bool {
	return containsAny(strings.ToLower(s), "remote", "anywhere", "hybrid", "onsite", "on-site")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
