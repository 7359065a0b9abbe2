// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package assemble merges generated blog text with the figure manifest into
// the final Markdown document. It is the last stage that can catch a broken
// image reference, so it validates every path it rewrites or passes through.
package assemble

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pdiddy/paperblog/pkg/types"
)

// DocumentFile is the assembled Markdown filename under the working directory.
const DocumentFile = "document.md"

// placeholderRe matches id-keyed figure placeholders the content generator
// emits: {{figure:fig1}} or {{ figure:fig1_p0 }}.
var placeholderRe = regexp.MustCompile(`\{\{\s*figure:([A-Za-z0-9][A-Za-z0-9._-]*)\s*\}\}`)

// imageRefRe matches Markdown image references so the validation pass can
// check paths the generator wrote directly.
var imageRefRe = regexp.MustCompile(`!\[[^\]\n]*\]\(([^)\n]+)\)`)

// Assemble performs a single deterministic rewrite pass over the generated
// text: every known placeholder becomes a Markdown image reference using the
// manifest's resolved path, then every image path in the result is verified
// to exist under workDir. Unknown placeholders stay verbatim and image
// references whose files vanished are stripped; both are warnings, never
// hard failures — a partial document must still be deliverable.
func Assemble(text string, m types.Manifest, workDir string) (markdown string, warnings []string) {
	byID := make(map[string]types.ManifestEntry, len(m.Entries))
	for _, e := range m.Entries {
		byID[e.ID] = e
	}

	seen := make(map[string]bool)
	markdown = placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		id := placeholderRe.FindStringSubmatch(match)[1]
		entry, ok := byID[id]
		if !ok {
			if !seen["unresolved:"+id] {
				seen["unresolved:"+id] = true
				warnings = append(warnings, fmt.Sprintf("unresolved placeholder: no figure %q in manifest", id))
			}
			return match
		}
		return fmt.Sprintf("![%s](%s)", entry.Caption, entry.Path)
	})

	// Final validation: everything the document shows must exist under the
	// working directory at write time. References that fail the check are
	// stripped rather than shipped broken.
	markdown = imageRefRe.ReplaceAllStringFunc(markdown, func(match string) string {
		path := imageRefRe.FindStringSubmatch(match)[1]
		if isRemote(path) {
			return match
		}
		if !pathSafe(path) {
			warnings = append(warnings, fmt.Sprintf("stripped image reference outside working directory: %s", path))
			return ""
		}
		if _, err := os.Stat(filepath.Join(workDir, path)); err != nil {
			warnings = append(warnings, fmt.Sprintf("stripped image reference to missing file: %s", path))
			return ""
		}
		return match
	})

	return markdown, warnings
}

// WriteDocument writes the assembled Markdown to workDir/document.md and
// returns its path.
func WriteDocument(workDir, markdown string) (string, error) {
	path := filepath.Join(workDir, DocumentFile)
	if err := os.WriteFile(path, []byte(markdown), 0o644); err != nil {
		return "", fmt.Errorf("writing document: %w", err)
	}
	return path, nil
}

// isRemote reports whether the reference is a URL rather than a local path.
func isRemote(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// pathSafe rejects absolute paths and traversal out of the working directory:
// the document must stay portable with its asset subdirectory.
func pathSafe(path string) bool {
	if filepath.IsAbs(path) {
		return false
	}
	clean := filepath.Clean(path)
	return clean != ".." && !strings.HasPrefix(clean, ".."+string(filepath.Separator))
}
