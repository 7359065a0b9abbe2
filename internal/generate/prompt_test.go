// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPromptManagerEmbeddedDefault(t *testing.T) {
	pm, err := NewPromptManager("")
	require.NoError(t, err)

	system, err := pm.SystemMessage(blogStage)
	require.NoError(t, err)
	assert.NotEmpty(t, system)

	prompt, err := pm.RenderPrompt(blogStage, map[string]string{
		"Paper":   "paper body",
		"Figures": "- fig1: Figure fig1",
	})
	require.NoError(t, err)
	assert.Contains(t, prompt, "paper body")
	assert.Contains(t, prompt, "- fig1: Figure fig1")
	// Placeholder syntax is spelled out literally for the model.
	assert.Contains(t, prompt, "{{figure:ID}}")
	// The default language comes from the defaults block.
	assert.Contains(t, prompt, "zh")
}

func TestRenderPromptOverridesDefaults(t *testing.T) {
	pm, err := NewPromptManager("")
	require.NoError(t, err)

	prompt, err := pm.RenderPrompt(blogStage, map[string]string{
		"Paper":    "p",
		"Figures":  "f",
		"Language": "en",
	})
	require.NoError(t, err)
	assert.Contains(t, prompt, "Target language: en")
}

func TestNewPromptManagerFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	cfg := strings.Join([]string{
		"defaults:",
		"  Tone: dry",
		"stages:",
		"  blog:",
		"    system: custom system",
		"    template: \"tone={{.Tone}} paper={{.Paper}}\"",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))

	pm, err := NewPromptManager(path)
	require.NoError(t, err)

	system, err := pm.SystemMessage("blog")
	require.NoError(t, err)
	assert.Equal(t, "custom system", system)

	prompt, err := pm.RenderPrompt("blog", map[string]string{"Paper": "x"})
	require.NoError(t, err)
	assert.Equal(t, "tone=dry paper=x", prompt)
}

func TestPromptManagerErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := NewPromptManager(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("no stages", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompts.yaml")
		require.NoError(t, os.WriteFile(path, []byte("defaults: {}\n"), 0o644))
		_, err := NewPromptManager(path)
		assert.ErrorContains(t, err, "no stages")
	})

	t.Run("unknown stage", func(t *testing.T) {
		pm, err := NewPromptManager("")
		require.NoError(t, err)
		_, err = pm.SystemMessage("revise")
		assert.ErrorContains(t, err, `"revise"`)
		_, err = pm.RenderPrompt("revise", nil)
		assert.ErrorContains(t, err, `"revise"`)
	})

	t.Run("missing template variable", func(t *testing.T) {
		pm, err := NewPromptManager("")
		require.NoError(t, err)
		// Paper and Figures are not defaulted, so omitting them fails.
		_, err = pm.RenderPrompt(blogStage, nil)
		assert.Error(t, err)
	})
}
