// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package assemble

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdiddy/paperblog/pkg/types"
)

// setupFigures creates a working directory with a figures subdirectory
// containing the named files, and returns a manifest over them.
func setupFigures(t *testing.T, names ...string) (string, types.Manifest) {
	t.Helper()
	workDir := t.TempDir()
	figDir := filepath.Join(workDir, "figures")
	if err := os.MkdirAll(figDir, 0o755); err != nil {
		t.Fatal(err)
	}

	var m types.Manifest
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(figDir, name), []byte("png"), 0o644); err != nil {
			t.Fatal(err)
		}
		id := strings.TrimSuffix(name, filepath.Ext(name))
		m.Entries = append(m.Entries, types.ManifestEntry{
			ID:      id,
			Path:    filepath.Join("figures", name),
			Caption: "Figure " + id,
		})
	}
	return workDir, m
}

func TestAssembleRewritesPlaceholders(t *testing.T) {
	workDir, m := setupFigures(t, "fig1_p0.png", "fig1_p1.png", "fig2.png")

	text := "Intro.\n\n{{figure:fig1_p0}}\n\nMiddle.\n\n{{ figure:fig1_p1 }}\n\n{{figure:fig2}}\n"
	markdown, warnings := Assemble(text, m, workDir)

	if len(warnings) != 0 {
		t.Fatalf("warnings = %v, want none", warnings)
	}
	for _, want := range []string{
		"![Figure fig1_p0](figures/fig1_p0.png)",
		"![Figure fig1_p1](figures/fig1_p1.png)",
		"![Figure fig2](figures/fig2.png)",
	} {
		if !strings.Contains(markdown, want) {
			t.Errorf("document missing %q:\n%s", want, markdown)
		}
	}
	if strings.Contains(markdown, "{{figure:") || strings.Contains(markdown, "{{ figure:") {
		t.Errorf("unrewritten placeholder left in document:\n%s", markdown)
	}
}

func TestAssembleRewritesRepeatedPlaceholder(t *testing.T) {
	workDir, m := setupFigures(t, "fig1.png")

	markdown, warnings := Assemble("{{figure:fig1}} and again {{figure:fig1}}", m, workDir)
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v", warnings)
	}
	if got := strings.Count(markdown, "![Figure fig1](figures/fig1.png)"); got != 2 {
		t.Errorf("rewrote %d occurrences, want 2", got)
	}
}

func TestAssembleUnknownPlaceholderIsWarningNotFailure(t *testing.T) {
	workDir, m := setupFigures(t, "fig1.png")

	text := "{{figure:fig1}}\n\n{{figure:made_up}}\n"
	markdown, warnings := Assemble(text, m, workDir)

	// The unknown placeholder stays verbatim; the document still ships.
	if !strings.Contains(markdown, "{{figure:made_up}}") {
		t.Error("unknown placeholder should be left unresolved")
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "made_up") {
		t.Fatalf("warnings = %v, want one naming made_up", warnings)
	}
}

func TestAssembleStripsVanishedFiles(t *testing.T) {
	workDir, m := setupFigures(t, "fig1.png", "fig2.png")

	// fig2 vanishes between manifest build and assembly.
	if err := os.Remove(filepath.Join(workDir, "figures", "fig2.png")); err != nil {
		t.Fatal(err)
	}

	markdown, warnings := Assemble("{{figure:fig1}}\n{{figure:fig2}}\n", m, workDir)

	if !strings.Contains(markdown, "figures/fig1.png") {
		t.Error("surviving reference stripped")
	}
	if strings.Contains(markdown, "fig2.png") {
		t.Errorf("broken reference shipped:\n%s", markdown)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "fig2.png") {
		t.Fatalf("warnings = %v, want one naming fig2.png", warnings)
	}
}

func TestAssembleValidatesDirectImageRefs(t *testing.T) {
	workDir, m := setupFigures(t, "fig1.png")

	// The generator wrote paths directly instead of placeholders: existing
	// ones pass through, dead and escaping ones are stripped, remote ones
	// are left alone.
	text := strings.Join([]string{
		"![ok](figures/fig1.png)",
		"![dead](figures/nothing.png)",
		"![escape](../../etc/passwd)",
		"![remote](https://example.com/x.png)",
	}, "\n")

	markdown, warnings := Assemble(text, m, workDir)

	if !strings.Contains(markdown, "![ok](figures/fig1.png)") {
		t.Error("valid direct reference stripped")
	}
	if !strings.Contains(markdown, "https://example.com/x.png") {
		t.Error("remote reference stripped")
	}
	if strings.Contains(markdown, "nothing.png") || strings.Contains(markdown, "passwd") {
		t.Errorf("invalid reference shipped:\n%s", markdown)
	}
	if len(warnings) != 2 {
		t.Fatalf("warnings = %v, want 2", warnings)
	}
}

func TestWriteDocument(t *testing.T) {
	workDir := t.TempDir()

	path, err := WriteDocument(workDir, "# Post\n")
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(workDir, DocumentFile) {
		t.Errorf("path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "# Post\n" {
		t.Errorf("content = %q", data)
	}
}
