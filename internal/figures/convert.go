// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package figures

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pdiddy/paperblog/pkg/types"
)

// BatchResult holds the outcome of a batch conversion run. Failures carries
// one message per failed source so callers can surface them as warnings.
type BatchResult struct {
	Converted int
	Skipped   int
	Failed    int
	Failures  []string
}

// Total returns the total number of sources processed.
func (r BatchResult) Total() int {
	return r.Converted + r.Skipped + r.Failed
}

// HasFailures reports whether any sources failed conversion.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// outcome is the tagged per-source result a worker publishes. Per-source
// faults are aggregated without short-circuiting the batch; only structural
// faults (path collisions, cancelled context) surface as batch errors.
type outcome struct {
	id      string
	status  types.AssetStatus
	skipped bool
	err     error
}

// PageID derives the id of page n (zero-based) of a multi-page source.
func PageID(base string, n int) string {
	return fmt.Sprintf("%s_p%d", base, n)
}

// SplitPageID splits a per-page id into its base id and page index.
// ok is false when id carries no _p<N> suffix.
func SplitPageID(id string) (base string, page int, ok bool) {
	i := strings.LastIndex(id, "_p")
	if i <= 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[i+2:])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return id[:i], n, true
}

// ConvertAll registers the scanned assets and rasterizes every source that
// is not web-renderable, writing PNG renditions next to their originals
// under workDir/figures. Conversion is attempted independently per source:
// one corrupt file marks only its own asset failed, and downstream stages
// fall back to that asset's source path. Originals are never deleted.
//
// A nil renderer (no raster tool installed) fails each convertible asset
// individually rather than aborting; already web-renderable assets are
// unaffected. Batch-level errors are reserved for id or rendered-path
// collisions and for caller cancellation — on cancellation the completed
// portion of the batch is already in reg and the summary reflects it.
//
// Re-running is safe: an asset whose rendition already exists on disk is
// skipped, not reconverted.
//
// Conversions run on a bounded worker pool (cfg.MaxParallel); the registry
// is the only shared mutable state and synchronizes internally.
func ConvertAll(ctx context.Context, r Renderer, workDir string, assets []*types.Asset, reg *Registry, cfg types.RenderConfig, w io.Writer) (BatchResult, error) {
	cfg = cfg.Normalize()

	// Register everything up front so resolve works even for assets that
	// never convert. Duplicate base ids from different sources (fig1.pdf
	// next to fig1.svg) are a collision, not a precedence question.
	for _, a := range assets {
		if prev := reg.Get(a.ID); prev != nil && prev.SourcePath != a.SourcePath {
			return BatchResult{}, fmt.Errorf("%w: id %q produced by both %s and %s",
				ErrPathCollision, a.ID, prev.SourcePath, a.SourcePath)
		}
		if err := reg.Upsert(a); err != nil {
			return BatchResult{}, err
		}
	}

	var convertible []*types.Asset
	for _, a := range assets {
		if NeedsConversion(a.SourcePath) {
			convertible = append(convertible, a)
		}
	}
	if len(convertible) == 0 {
		return BatchResult{Skipped: len(assets)}, nil
	}

	jobs := make(chan *types.Asset)
	results := make(chan outcome, len(convertible))

	var wg sync.WaitGroup
	workers := cfg.MaxParallel
	if workers > len(convertible) {
		workers = len(convertible)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := range jobs {
				results <- convertOne(ctx, r, workDir, a, reg, cfg)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, a := range convertible {
			select {
			case jobs <- a:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	result := BatchResult{Skipped: len(assets) - len(convertible)}
	var batchErr error
	for out := range results {
		switch {
		case out.err != nil && errors.Is(out.err, ErrPathCollision):
			batchErr = out.err
			fmt.Fprintf(w, "failed:  %s (%v)\n", out.id, out.err)
			result.Failed++
		case out.err != nil:
			fmt.Fprintf(w, "failed:  %s (%v)\n", out.id, out.err)
			result.Failed++
			result.Failures = append(result.Failures,
				fmt.Sprintf("conversion failed for %s, falling back to original file: %v", out.id, out.err))
		case out.skipped:
			fmt.Fprintf(w, "skipped: %s (already converted)\n", out.id)
			result.Skipped++
		default:
			fmt.Fprintf(w, "converted: %s\n", out.id)
			result.Converted++
		}
	}

	if batchErr != nil {
		return result, batchErr
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// convertOne rasterizes a single source and publishes the per-page assets
// to the registry. The asset is owned by this call for its duration.
func convertOne(ctx context.Context, r Renderer, workDir string, a *types.Asset, reg *Registry, cfg types.RenderConfig) outcome {
	if err := ctx.Err(); err != nil {
		markFailed(a, reg)
		return outcome{id: a.ID, status: types.AssetConversionFailed, err: err}
	}

	figDir := filepath.Join(workDir, Dir)

	// Idempotence: a rendition already on disk stands.
	if existing := existingRendition(figDir, a.ID); len(existing) > 0 {
		if err := publishPages(a, existing, reg); err != nil {
			markFailed(a, reg)
			return outcome{id: a.ID, status: types.AssetConversionFailed, err: err}
		}
		return outcome{id: a.ID, status: types.AssetConverted, skipped: true}
	}

	if r == nil {
		markFailed(a, reg)
		return outcome{id: a.ID, status: types.AssetConversionFailed,
			err: errors.New("no raster tool available")}
	}

	renderCtx, cancel := context.WithTimeout(ctx, cfg.TimeoutPerFile)
	defer cancel()

	// Render under a dot-prefixed temp name so a concurrent or aborted run
	// never leaves half-written files with final names.
	tmpPrefix := filepath.Join(figDir, "."+a.ID)
	pages, err := r.Render(renderCtx, filepath.Join(workDir, a.SourcePath), tmpPrefix, cfg.Scale)
	if err != nil {
		removeByPrefix(tmpPrefix)
		markFailed(a, reg)
		return outcome{id: a.ID, status: types.AssetConversionFailed,
			err: fmt.Errorf("rendering %s: %w", a.SourcePath, err)}
	}

	finals, err := renamePages(figDir, a.ID, pages)
	if err != nil {
		removeByPrefix(tmpPrefix)
		markFailed(a, reg)
		return outcome{id: a.ID, status: types.AssetConversionFailed, err: err}
	}

	if err := publishPages(a, finals, reg); err != nil {
		markFailed(a, reg)
		return outcome{id: a.ID, status: types.AssetConversionFailed, err: err}
	}
	return outcome{id: a.ID, status: types.AssetConverted}
}

// renamePages moves temp render output to the final naming scheme:
// a lone page becomes <base>.png, multiple pages become <base>_p<N>.png
// with N counted from zero. It returns the final names, relative to figDir.
func renamePages(figDir, base string, tmpPages []string) ([]string, error) {
	finals := make([]string, len(tmpPages))
	for i, tmp := range tmpPages {
		name := base + ".png"
		if len(tmpPages) > 1 {
			name = PageID(base, i) + ".png"
		}
		if err := os.Rename(tmp, filepath.Join(figDir, name)); err != nil {
			return nil, fmt.Errorf("placing rendition %s: %w", name, err)
		}
		finals[i] = name
	}
	return finals, nil
}

// publishPages replaces the source asset in the registry with its converted
// renditions. A multi-page source is dropped in favor of one asset per page,
// all inheriting the source's Order (ids keep the pages sorted).
func publishPages(a *types.Asset, pageNames []string, reg *Registry) error {
	if len(pageNames) == 1 {
		a.RenderedPath = filepath.Join(Dir, pageNames[0])
		a.Status = types.AssetConverted
		return reg.Upsert(a)
	}

	reg.Remove(a.ID)
	for i, name := range pageNames {
		page := &types.Asset{
			ID:           PageID(a.ID, i),
			SourcePath:   a.SourcePath,
			RenderedPath: filepath.Join(Dir, name),
			Status:       types.AssetConverted,
			Order:        a.Order,
		}
		if err := reg.Upsert(page); err != nil {
			return err
		}
	}
	a.Status = types.AssetConverted
	return nil
}

// markFailed records a conversion failure; the asset stays registered so
// resolve falls back to its source path.
func markFailed(a *types.Asset, reg *Registry) {
	a.Status = types.AssetConversionFailed
	a.RenderedPath = ""
	reg.Upsert(a) //nolint:errcheck // no rendered path, cannot collide
}

// existingRendition returns the on-disk rendition names for base, if any:
// either the single <base>.png or the contiguous <base>_p0.png.. run.
func existingRendition(figDir, base string) []string {
	single := base + ".png"
	if _, err := os.Stat(filepath.Join(figDir, single)); err == nil {
		return []string{single}
	}

	var pages []string
	for n := 0; ; n++ {
		name := PageID(base, n) + ".png"
		if _, err := os.Stat(filepath.Join(figDir, name)); err != nil {
			break
		}
		pages = append(pages, name)
	}
	return pages
}

// removeByPrefix clears temp render output after a failed conversion.
// Enumerates the directory rather than globbing: asset ids may contain
// glob metacharacters.
func removeByPrefix(prefix string) {
	dir := filepath.Dir(prefix)
	stem := filepath.Base(prefix) + "-"

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, stem) || !strings.HasSuffix(name, ".png") {
			continue
		}
		os.Remove(filepath.Join(dir, name))
	}
}
