package model

import (
	"net/url"
	"sort"
	"strings"
)

// JobKey identifies a posting for dedup purposes. It is stable across runs
// for the same live posting.
type JobKey string

// NewJobKey builds "<provider>:<external id>" when the provider exposes an id,
// otherwise "url:<canonical url>". It returns "" when neither is available.
func NewJobKey(provider, externalID, rawURL string) JobKey {
	if id := strings.TrimSpace(externalID); id != "" && provider != "" {
		return JobKey(strings.ToLower(provider) + ":" + id)
	}
	if u := CanonicalURL(rawURL); u != "" {
		return JobKey("url:" + u)
	}
	return ""
}

var trackingParams = map[string]bool{
	"gclid":  true,
	"fbclid": true,
	"ref":    true,
	"source": true,
}

// CanonicalURL normalizes a posting URL so that tracking decorations do not
// change its identity. Unparseable input is returned trimmed.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || trackingParams[lk] {
			q.Del(k)
		}
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		vals := q[k]
		sort.Strings(vals)
		for _, v := range vals {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	u.RawQuery = b.String()

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String()
}
