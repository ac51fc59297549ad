package ai

import (
	"strings"
	"testing"
)

func TestCleanOutput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		max  int
		want []string
	}{
		{"none", "  NONE \n", 8, nil},
		{"no bullets", "Here are some thoughts.", 8, nil},
		{
			"normalizes bullets",
			"• A — X — https://x.io/1\n* B — Y — https://y.io/2\n3) C — Z — https://z.io/3",
			8,
			[]string{"- A — X — https://x.io/1", "- B — Y — https://y.io/2", "- C — Z — https://z.io/3"},
		},
		{
			"keeps fenced content",
			"```markdown\n- A — X — https://x.io/1\n```",
			8,
			[]string{"- A — X — https://x.io/1"},
		},
		{
			"dedupes by url",
			"- A — X — https://x.io/1\n- A again — X — https://x.io/1).",
			8,
			[]string{"- A — X — https://x.io/1"},
		},
		{
			"dedupes by canonical url",
			"- A — X — https://x.io/1\n- A — X — https://X.io/1/?utm_source=llm",
			8,
			[]string{"- A — X — https://x.io/1"},
		},
		{
			"dedupes lines without url",
			"- A at X\n- A at X",
			8,
			[]string{"- A at X"},
		},
		{"unescapes html", "- R&amp;D Engineer — X", 8, []string{"- R&D Engineer — X"}},
		{"caps bullets", "- a\n- b\n- c", 2, []string{"- a", "- b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanOutput(tt.raw, tt.max)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("CleanOutput() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLineKey(t *testing.T) {
	if got := LineKey("- A — X — https://X.io/jobs/1/?utm_source=feed"); got != "url:https://x.io/jobs/1" {
		t.Errorf("url key = %q", got)
	}
	a := LineKey("- Staff   Engineer at Acme")
	b := LineKey("- staff engineer at acme")
	if a != b || !strings.HasPrefix(string(a), "line:") {
		t.Errorf("line keys %q and %q should match", a, b)
	}
}
