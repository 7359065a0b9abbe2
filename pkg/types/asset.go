// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// AssetStatus tracks a figure through discovery and conversion.
type AssetStatus string

const (
	// AssetDiscovered means the source file was found during scanning and
	// either has not been converted yet or never needs conversion.
	AssetDiscovered AssetStatus = "discovered"

	// AssetConverted means a web-renderable rendition was produced and
	// RenderedPath points at it.
	AssetConverted AssetStatus = "converted"

	// AssetConversionFailed means conversion was attempted and failed;
	// downstream consumers fall back to SourcePath.
	AssetConversionFailed AssetStatus = "failed"
)

// Asset is one figure belonging to a paper, tracked from discovery through
// optional format conversion. All paths are relative to the working
// directory root so the assembled document stays portable.
type Asset struct {
	// ID is the stable logical name, derived from the source filename
	// without extension. Page renditions of a multi-page source carry
	// a _p<N> suffix (e.g. "fig1_p0").
	ID string `json:"id" yaml:"id"`

	// SourcePath is the original file under the figures subdirectory,
	// relative to the working directory.
	SourcePath string `json:"source_path" yaml:"source_path"`

	// RenderedPath is the converted web-renderable file, relative to the
	// working directory. Empty unless Status is AssetConverted.
	RenderedPath string `json:"rendered_path,omitempty" yaml:"rendered_path,omitempty"`

	// Status records the conversion state.
	Status AssetStatus `json:"status" yaml:"status"`

	// Order is the position used for captioning and citation, assigned
	// during scanning so runs are reproducible.
	Order int `json:"order" yaml:"order"`
}

// Path returns the best available reference for the asset: the rendered
// file when conversion succeeded, otherwise the original source file.
func (a *Asset) Path() string {
	if a.RenderedPath != "" {
		return a.RenderedPath
	}
	return a.SourcePath
}

// ManifestEntry is one row of the ordered figure list handed to the content
// generator: a stable id, a path verified to exist at build time, and a
// caption hint the generator may use verbatim.
type ManifestEntry struct {
	ID      string `json:"id" yaml:"id"`
	Path    string `json:"path" yaml:"path"`
	Caption string `json:"caption" yaml:"caption"`
}

// Manifest is the finalized, path-verified, ordered list of figures for one
// paper. It is the only view of the filesystem the content generator sees.
type Manifest struct {
	Entries []ManifestEntry `json:"entries" yaml:"entries"`
}

// IDs returns the entry ids in manifest order.
func (m Manifest) IDs() []string {
	ids := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		ids[i] = e.ID
	}
	return ids
}
