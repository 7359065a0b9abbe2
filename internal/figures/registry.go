// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package figures

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pdiddy/paperblog/pkg/types"
)

// Registry is the single source of truth mapping each logical figure id to
// its current on-disk relative path. It is rebuilt from scratch on every
// pipeline run; nothing persists beyond the files already on disk.
//
// Upsert is safe for concurrent use so conversion workers can publish
// results directly. Assets themselves are owned by exactly one worker at a
// time and are never mutated through the registry.
type Registry struct {
	mu     sync.Mutex
	assets map[string]*types.Asset
	byPath map[string]string // renderedPath -> id
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		assets: make(map[string]*types.Asset),
		byPath: make(map[string]string),
	}
}

// Upsert inserts or replaces the asset keyed by its id. It fails with
// ErrPathCollision when a different id already claims the same rendered
// path; two sources mapping to one output file is a naming-scheme bug, not
// a recoverable per-asset fault.
func (r *Registry) Upsert(a *types.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.RenderedPath != "" {
		if owner, ok := r.byPath[a.RenderedPath]; ok && owner != a.ID {
			return fmt.Errorf("%w: %s claimed by both %q and %q",
				ErrPathCollision, a.RenderedPath, owner, a.ID)
		}
	}

	// Replacing an asset releases its previous rendered path claim.
	if prev, ok := r.assets[a.ID]; ok && prev.RenderedPath != "" && prev.RenderedPath != a.RenderedPath {
		delete(r.byPath, prev.RenderedPath)
	}

	r.assets[a.ID] = a
	if a.RenderedPath != "" {
		r.byPath[a.RenderedPath] = a.ID
	}
	return nil
}

// Remove drops the asset keyed by id, releasing any rendered path claim.
// Removing an unknown id is a no-op. The conversion stage uses this when a
// multi-page source is replaced by its per-page renditions.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assets[id]
	if !ok {
		return
	}
	if a.RenderedPath != "" {
		delete(r.byPath, a.RenderedPath)
	}
	delete(r.assets, id)
}

// Resolve returns the best available path for id: the rendered path when
// conversion succeeded, otherwise the original source path. Consumers never
// learn whether conversion happened. Fails with ErrUnknownAsset for ids the
// registry does not hold.
func (r *Registry) Resolve(id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assets[id]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAsset, id)
	}
	return a.Path(), nil
}

// Get returns the asset for id, or nil when absent.
func (r *Registry) Get(id string) *types.Asset {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.assets[id]
}

// Len returns the number of registered assets.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.assets)
}

// Assets returns a snapshot of all registered assets sorted by Order.
// Ties are broken by id, comparing page renditions of one source by page
// number so they stay in page order.
func (r *Registry) Assets() []*types.Asset {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*types.Asset, 0, len(r.assets))
	for _, a := range r.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return lessByPage(out[i].ID, out[j].ID)
	})
	return out
}

// lessByPage orders page renditions of one source by page number, so
// fig1_p2 precedes fig1_p10. Unrelated ids compare lexicographically.
func lessByPage(a, b string) bool {
	aBase, aPage, aOK := SplitPageID(a)
	bBase, bPage, bOK := SplitPageID(b)
	if aOK && bOK && aBase == bBase {
		return aPage < bPage
	}
	return a < b
}
