// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package generate produces blog post Markdown from paper text and a figure
// manifest. The pipeline treats the generator as a black box behind the
// Generator interface; this package also ships the production backend for
// OpenAI-compatible chat APIs.
package generate

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/paperblog/pkg/types"
)

// blogStage is the prompt stage used for post generation.
const blogStage = "blog"

// Generator turns paper text plus the figure manifest into blog post
// Markdown containing id-keyed figure placeholders. Implementations must
// not reference figures outside the manifest (the assembler strips anything
// they invent anyway).
type Generator interface {
	Generate(ctx context.Context, paper string, manifest types.Manifest) (string, error)
}

// markdownFenceRe extracts the fenced Markdown block a well-behaved model
// response wraps the post in.
var markdownFenceRe = regexp.MustCompile("(?s)```markdown\\s*(.*?)```")

// ExtractMarkdown pulls the blog post out of a raw model response. Returns
// an empty string when the response carries no ```markdown fence.
func ExtractMarkdown(response string) string {
	m := markdownFenceRe.FindStringSubmatch(response)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// FigureList renders the manifest as the bulleted figure list interpolated
// into the generation prompt: one "- id: caption" line per entry. Ids, not
// paths — path layout stays the pipeline's business.
func FigureList(m types.Manifest) string {
	if len(m.Entries) == 0 {
		return "(no figures available)"
	}
	var b strings.Builder
	for _, e := range m.Entries {
		fmt.Fprintf(&b, "- %s: %s\n", e.ID, e.Caption)
	}
	return strings.TrimRight(b.String(), "\n")
}
