package ai

import (
	_ "embed"
	"text/template"
)

//go:embed prompts/relevance.md
var relevancePromptRaw string

// RelevanceTemplate is the parsed prompt for relevance selection.
var RelevanceTemplate = template.Must(template.New("relevance").Parse(relevancePromptRaw))
