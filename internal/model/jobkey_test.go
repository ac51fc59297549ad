package model

import "testing"

func TestNewJobKey(t *testing.T) {
	tests := []struct {
		name       string
		provider   string
		externalID string
		url        string
		want       JobKey
	}{
		{"external id wins", "Greenhouse", "42", "https://boards.greenhouse.io/acme/jobs/42", "greenhouse:42"},
		{"url fallback", "careers", "", "https://Acme.com/jobs/7/?utm_source=x", "url:https://acme.com/jobs/7"},
		{"nothing", "lever", "", "", ""},
		{"blank id", "lever", "  ", "https://jobs.lever.co/acme/abc", "url:https://jobs.lever.co/acme/abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewJobKey(tt.provider, tt.externalID, tt.url); got != tt.want {
				t.Errorf("NewJobKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://example.com/a/b/", "https://example.com/a/b"},
		{"HTTPS://EXAMPLE.com:443/a#frag", "https://example.com/a"},
		{"https://example.com/a?b=2&a=1&utm_medium=email&gclid=z", "https://example.com/a?a=1&b=2"},
		{"http://example.com:8080/x?ref=feed", "http://example.com:8080/x"},
		{"not a url", "not a url"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CanonicalURL(tt.in); got != tt.want {
			t.Errorf("CanonicalURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPostingKeyStableAcrossTrackingParams(t *testing.T) {
	a := Posting{Provider: "careers", URL: "https://acme.com/jobs/1?utm_campaign=a"}
	b := Posting{Provider: "careers", URL: "https://acme.com/jobs/1/?fbclid=b"}
	if a.Key() != b.Key() {
		t.Errorf("keys differ: %q vs %q", a.Key(), b.Key())
	}
}
