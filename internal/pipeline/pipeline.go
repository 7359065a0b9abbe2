// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline wires the figure stages and the content generator into
// the paper-to-blog run: scan, convert, build the manifest, generate text,
// assemble the document. Per-figure faults degrade to warnings; only
// structural faults fail the run.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pdiddy/paperblog/internal/assemble"
	"github.com/pdiddy/paperblog/internal/figures"
	"github.com/pdiddy/paperblog/internal/generate"
	"github.com/pdiddy/paperblog/pkg/types"
)

// Result is what a pipeline run hands back: the best-effort document plus
// an explicit list of warnings. Callers decide whether warnings are
// acceptable.
type Result struct {
	// DocumentPath is the assembled Markdown file under the working directory.
	DocumentPath string

	// Markdown is the assembled document text.
	Markdown string

	// Manifest is the figure list that was handed to the generator.
	Manifest types.Manifest

	// Conversion summarizes the format conversion batch.
	Conversion figures.BatchResult

	// Warnings lists every non-fatal fault: failed conversions, dropped
	// manifest entries, unresolved placeholders, stripped references.
	Warnings []string
}

// detectRenderer is a seam for tests, which must not depend on the raster
// tools installed on the host.
var detectRenderer = figures.DetectRenderer

// Run executes the full pipeline for one paper. workDir is the per-paper
// working directory (it must contain a figures/ subdirectory, possibly
// empty is an error — see figures.Scan); paper is the text payload handed
// to the generator. Progress lines go to w.
//
// Cancellation via ctx abandons pending conversions and fails the run; work
// already written to disk is kept so a re-run resumes cheaply.
func Run(ctx context.Context, gen generate.Generator, workDir, paper string, cfg types.RenderConfig, w io.Writer) (*Result, error) {
	assets, err := figures.Scan(workDir)
	if err != nil {
		return nil, fmt.Errorf("scanning figures: %w", err)
	}

	res := &Result{}

	renderer, err := detectRenderer()
	if err != nil {
		// Not fatal: convertible sources degrade to their original paths.
		fmt.Fprintf(w, "warning: %v\n", err)
		res.Warnings = append(res.Warnings, err.Error())
		renderer = nil
	}

	reg := figures.NewRegistry()
	res.Conversion, err = figures.ConvertAll(ctx, renderer, workDir, assets, reg, cfg, w)
	if err != nil {
		return res, fmt.Errorf("converting figures: %w", err)
	}
	res.Warnings = append(res.Warnings, res.Conversion.Failures...)

	manifest, warns := figures.BuildManifest(reg, workDir)
	for _, warn := range warns {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	res.Warnings = append(res.Warnings, warns...)
	res.Manifest = manifest

	if err := figures.WriteManifest(manifest, workDir); err != nil {
		return res, err
	}

	text, err := gen.Generate(ctx, paper, manifest)
	if err != nil {
		return res, fmt.Errorf("generating content: %w", err)
	}

	markdown, warns := assemble.Assemble(text, manifest, workDir)
	for _, warn := range warns {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	res.Warnings = append(res.Warnings, warns...)

	path, err := assemble.WriteDocument(workDir, markdown)
	if err != nil {
		return res, fmt.Errorf("assembling document: %w", err)
	}
	res.DocumentPath = path
	res.Markdown = markdown
	return res, nil
}

// PrepareWorkDir creates the working directory for a paper under blogDir,
// including the figures subdirectory, and returns its path.
func PrepareWorkDir(blogDir, paperID string) (string, error) {
	workDir := filepath.Join(blogDir, paperID)
	if err := os.MkdirAll(filepath.Join(workDir, figures.Dir), 0o755); err != nil {
		return "", fmt.Errorf("creating working directory: %w", err)
	}
	return workDir, nil
}
