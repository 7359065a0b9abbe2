// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package figures

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paperblog/pkg/types"
)

// manifestFile is the on-disk copy of the manifest, written beside the
// figures it describes for debugging and downstream tooling.
const manifestFile = "manifest.yaml"

// BuildManifest turns the registry into the ordered, captioned figure list
// handed to the content generator. Every entry's path is re-verified on disk
// immediately before inclusion; a file deleted since scanning drops only its
// own entry, with a warning — a post with fewer figures beats no post.
func BuildManifest(reg *Registry, workDir string) (types.Manifest, []string) {
	var m types.Manifest
	var warnings []string
	for _, a := range reg.Assets() {
		path, err := reg.Resolve(a.ID)
		if err != nil {
			// Unreachable with a registry we just snapshotted; guard anyway.
			warnings = append(warnings, fmt.Sprintf("%s: %v", a.ID, err))
			continue
		}
		if _, err := os.Stat(filepath.Join(workDir, path)); err != nil {
			warnings = append(warnings, fmt.Sprintf("%v: %s (excluded from manifest)", ErrMissingAssetFile, path))
			continue
		}
		m.Entries = append(m.Entries, types.ManifestEntry{
			ID:      a.ID,
			Path:    path,
			Caption: captionHint(a.ID),
		})
	}
	return m, warnings
}

// WriteManifest persists the manifest to workDir/figures/manifest.yaml.
func WriteManifest(m types.Manifest, workDir string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	path := filepath.Join(workDir, Dir, manifestFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// captionHint derives a human caption from an asset id: per-page ids name
// their page, everything else is just "Figure <id>".
func captionHint(id string) string {
	if base, page, ok := SplitPageID(id); ok {
		return fmt.Sprintf("Figure %s, page %d", base, page+1)
	}
	return fmt.Sprintf("Figure %s", id)
}
