// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package figures tracks a paper's figure files from discovery through
// format conversion. It owns the figures/ subdirectory of a working
// directory and the id-to-path registry that downstream stages cite.
package figures

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdiddy/paperblog/pkg/types"
)

// Dir is the asset subdirectory under a working directory. Originals and
// converted renditions live side by side in it.
const Dir = "figures"

// Sentinel errors for the figure pipeline. Callers distinguish structural
// faults from per-asset ones with errors.Is.
var (
	// ErrDirectoryNotFound means the figures subdirectory does not exist.
	ErrDirectoryNotFound = errors.New("figures directory not found")

	// ErrPathCollision means two distinct assets would occupy the same
	// rendered path or id. It indicates a naming-scheme bug and aborts
	// the registry build.
	ErrPathCollision = errors.New("rendered path collision")

	// ErrUnknownAsset means an id was resolved that no asset carries.
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrMissingAssetFile means a registered path no longer exists on disk.
	ErrMissingAssetFile = errors.New("asset file missing")
)

// sourceExtensions are the figure file formats the scanner picks up.
// PDF and EPS sources need rasterizing before a browser can show them;
// the rest are web-native.
var sourceExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".svg":  true,
	".webp": true,
	".pdf":  true,
	".eps":  true,
}

// renderedSuffix marks converted renditions so a rescan does not treat
// them as fresh sources alongside their original.
const renderedSuffix = ".png"

// NeedsConversion reports whether path points at a source format that must
// be rasterized before it can appear in a blog post.
func NeedsConversion(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".eps":
		return true
	}
	return false
}

// Scan enumerates candidate figure sources under workDir/figures and returns
// them as unconverted Assets in lexicographic filename order, so captioning
// and citation order is reproducible across runs. Paths in the returned
// Assets are relative to workDir. Scanning is read-only.
//
// A missing figures directory is an error; an existing but empty one yields
// an empty result.
func Scan(workDir string) ([]*types.Asset, error) {
	dir := filepath.Join(workDir, Dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, dir)
		}
		return nil, fmt.Errorf("reading figures directory %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !sourceExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	// A PNG sibling of a convertible source is that source's prior
	// rendition, not an independent figure. Index the convertible base
	// names first so the second pass can skip them.
	converted := make(map[string]bool)
	for _, name := range names {
		if NeedsConversion(name) {
			converted[baseID(name)] = true
		}
	}

	var assets []*types.Asset
	for _, name := range names {
		if !NeedsConversion(name) && strings.HasSuffix(strings.ToLower(name), renderedSuffix) {
			if isRendition(baseID(name), converted) {
				continue
			}
		}
		assets = append(assets, &types.Asset{
			ID:         baseID(name),
			SourcePath: filepath.Join(Dir, name),
			Status:     types.AssetDiscovered,
			Order:      len(assets),
		})
	}
	return assets, nil
}

// baseID strips the extension from a figure filename, yielding the stable
// logical id.
func baseID(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// isRendition reports whether id names a rendition of a convertible source:
// either the source's own base id or a per-page derivative of it.
func isRendition(id string, convertible map[string]bool) bool {
	if convertible[id] {
		return true
	}
	if base, _, ok := SplitPageID(id); ok && convertible[base] {
		return true
	}
	return false
}
