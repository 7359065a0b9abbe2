// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package figures

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	binPdftoppm    = "pdftoppm"
	binMutool      = "mutool"
	binGhostscript = "gs"

	// baseDPI is the PDF unit resolution; render DPI is baseDPI times the
	// configured scale.
	baseDPI = 72
)

// Renderer rasterizes a document source (PDF, EPS) into one PNG per page.
// Implementations shell out to an external tool.
type Renderer interface {
	// Name returns the tool name ("pdftoppm", "mutool", or "gs").
	Name() string

	// Available reports whether the tool binary exists on PATH and
	// responds to a version probe.
	Available() bool

	// Render rasterizes src at the given scale, writing page images named
	// <outPrefix>-<page>.png. It returns the produced file paths in page
	// order. Respects ctx cancellation and deadlines.
	Render(ctx context.Context, src, outPrefix string, scale float64) ([]string, error)
}

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	RunSilent(name string, args ...string) error
	RunContext(ctx context.Context, name string, args ...string) error
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) RunSilent(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

func (o *osExecutor) RunContext(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// toolRenderer implements Renderer for a specific rasterizer binary.
// The tools share the logic; they differ in binary name, version probe,
// and argument layout.
type toolRenderer struct {
	bin       string
	probeArgs []string
	buildArgs func(src, outPrefix string, dpi int) []string
	exec      executor
}

func (t *toolRenderer) Name() string { return t.bin }

func (t *toolRenderer) Available() bool {
	if _, err := t.exec.LookPath(t.bin); err != nil {
		return false
	}
	return t.exec.RunSilent(t.bin, t.probeArgs...) == nil
}

func (t *toolRenderer) Render(ctx context.Context, src, outPrefix string, scale float64) ([]string, error) {
	if scale <= 0 {
		scale = 1
	}
	dpi := int(baseDPI * scale)

	args := t.buildArgs(src, outPrefix, dpi)
	if err := t.exec.RunContext(ctx, t.bin, args...); err != nil {
		return nil, fmt.Errorf("running %s on %s: %w", t.bin, src, err)
	}

	pages, err := collectPages(outPrefix)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%s produced no pages for %s", t.bin, src)
	}
	return pages, nil
}

// collectPages finds the <outPrefix>-<page>.png files a render run produced
// and returns them sorted by page number. Both tools number pages from 1;
// pdftoppm zero-pads, mutool does not, so sorting is numeric.
func collectPages(outPrefix string) ([]string, error) {
	dir := filepath.Dir(outPrefix)
	stem := filepath.Base(outPrefix) + "-"

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading render output directory: %w", err)
	}

	type page struct {
		n    int
		path string
	}
	var pages []page
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, stem) || !strings.HasSuffix(name, ".png") {
			continue
		}
		num := strings.TrimSuffix(strings.TrimPrefix(name, stem), ".png")
		n, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		pages = append(pages, page{n: n, path: filepath.Join(dir, name)})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].n < pages[j].n })

	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.path
	}
	return out, nil
}

func newPdftoppmRenderer(exec executor) *toolRenderer {
	return &toolRenderer{
		bin:       binPdftoppm,
		probeArgs: []string{"-v"},
		buildArgs: func(src, outPrefix string, dpi int) []string {
			return []string{"-png", "-r", strconv.Itoa(dpi), src, outPrefix}
		},
		exec: exec,
	}
}

func newMutoolRenderer(exec executor) *toolRenderer {
	return &toolRenderer{
		bin:       binMutool,
		probeArgs: []string{"-v"},
		buildArgs: func(src, outPrefix string, dpi int) []string {
			return []string{"draw", "-q", "-r", strconv.Itoa(dpi), "-o", outPrefix + "-%d.png", src}
		},
		exec: exec,
	}
}

func newGhostscriptRenderer(exec executor) *toolRenderer {
	return &toolRenderer{
		bin:       binGhostscript,
		probeArgs: []string{"--version"},
		buildArgs: func(src, outPrefix string, dpi int) []string {
			return []string{
				"-q", "-dSAFER", "-dBATCH", "-dNOPAUSE",
				"-sDEVICE=png16m", "-r" + strconv.Itoa(dpi),
				"-sOutputFile=" + outPrefix + "-%d.png", src,
			}
		},
		exec: exec,
	}
}

// formatRenderer routes each source to a tool that accepts its format:
// PDF to the preferred rasterizer, EPS to ghostscript, the only tool of
// the three that reads PostScript. eps is nil when ghostscript is not
// installed; EPS sources then fail individually instead of shipping a
// browser-unrenderable reference silently.
type formatRenderer struct {
	pdf Renderer
	eps Renderer
}

func (f *formatRenderer) Name() string    { return f.pdf.Name() }
func (f *formatRenderer) Available() bool { return true }

func (f *formatRenderer) Render(ctx context.Context, src, outPrefix string, scale float64) ([]string, error) {
	if strings.EqualFold(filepath.Ext(src), ".eps") {
		if f.eps == nil {
			return nil, fmt.Errorf("rendering %s: eps sources require %s", src, binGhostscript)
		}
		return f.eps.Render(ctx, src, outPrefix, scale)
	}
	return f.pdf.Render(ctx, src, outPrefix, scale)
}

var defaultExec executor = &osExecutor{}

// DetectRenderer picks the PDF rasterizer in preference order pdftoppm,
// mutool, ghostscript, and wires ghostscript for EPS when present. Returns
// an error if no tool is available at all; the pipeline then ships original
// source paths instead of rasterized figures.
func DetectRenderer() (Renderer, error) {
	return detectRenderer(defaultExec)
}

func detectRenderer(exec executor) (Renderer, error) {
	gs := newGhostscriptRenderer(exec)

	var pdf Renderer
	for _, r := range []Renderer{newPdftoppmRenderer(exec), newMutoolRenderer(exec), gs} {
		if r.Available() {
			pdf = r
			break
		}
	}
	if pdf == nil {
		return nil, fmt.Errorf(
			"no raster tool available: none of %s, %s, %s found or operational",
			binPdftoppm, binMutool, binGhostscript,
		)
	}

	var eps Renderer
	if gs.Available() {
		eps = gs
	}
	return &formatRenderer{pdf: pdf, eps: eps}, nil
}
