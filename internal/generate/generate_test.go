// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperblog/pkg/types"
)

func TestExtractMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "fenced block",
			response: "Sure, here is the post:\n```markdown\n# Title\n\nBody.\n```\nHope it helps!",
			want:     "# Title\n\nBody.",
		},
		{
			name:     "no fence",
			response: "# Title\n\nBody.",
			want:     "",
		},
		{
			name:     "empty fence",
			response: "```markdown\n```",
			want:     "",
		},
		{
			name:     "first of several fences wins",
			response: "```markdown\nfirst\n```\n```markdown\nsecond\n```",
			want:     "first",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractMarkdown(tt.response))
		})
	}
}

func TestFigureList(t *testing.T) {
	assert.Equal(t, "(no figures available)", FigureList(types.Manifest{}))

	m := types.Manifest{Entries: []types.ManifestEntry{
		{ID: "fig1_p0", Path: "figures/fig1_p0.png", Caption: "Figure fig1, page 1"},
		{ID: "fig2", Path: "figures/fig2.png", Caption: "Figure fig2"},
	}}
	assert.Equal(t, "- fig1_p0: Figure fig1, page 1\n- fig2: Figure fig2", FigureList(m))
}

// chatServer fakes an OpenAI-compatible endpoint, serving canned message
// contents in call order (the last one repeats).
func chatServer(t *testing.T, calls *int32, contents ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(calls, 1)
		require.Equal(t, "/chat/completions", r.URL.Path)

		idx := int(n) - 1
		if idx >= len(contents) {
			idx = len(contents) - 1
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": contents[idx]}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func backendFor(t *testing.T, url string) *OpenAIBackend {
	t.Helper()
	b, err := NewOpenAIBackend(types.GenerationConfig{
		BaseURL:   url,
		Model:     "test-model",
		APIKey:    "sk-test",
		MaxRechat: 2,
	}, nil)
	require.NoError(t, err)
	return b
}

func TestOpenAIBackendGenerate(t *testing.T) {
	var calls int32
	ts := chatServer(t, &calls, "```markdown\n# Post\n\n{{figure:fig1}}\n```")
	defer ts.Close()

	b := backendFor(t, ts.URL)
	md, err := b.Generate(context.Background(), "paper text", types.Manifest{
		Entries: []types.ManifestEntry{{ID: "fig1", Path: "figures/fig1.png", Caption: "Figure fig1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "# Post\n\n{{figure:fig1}}", md)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestOpenAIBackendRechatsOnMissingFence(t *testing.T) {
	var calls int32
	ts := chatServer(t, &calls,
		"forgot the fence entirely",
		"```markdown\n# Second try\n```",
	)
	defer ts.Close()

	b := backendFor(t, ts.URL)
	md, err := b.Generate(context.Background(), "paper", types.Manifest{})
	require.NoError(t, err)
	assert.Equal(t, "# Second try", md)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenAIBackendExhaustsRechat(t *testing.T) {
	var calls int32
	ts := chatServer(t, &calls, "never a fence")
	defer ts.Close()

	b := backendFor(t, ts.URL)
	_, err := b.Generate(context.Background(), "paper", types.Manifest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no markdown block")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenAIBackendSendsAuthAndModel(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Contains(t, req.Messages[1].Content, "paper body")
		assert.Contains(t, req.Messages[1].Content, "- fig1: Figure fig1")

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "```markdown\nok\n```"}},
			},
		})
	}))
	defer ts.Close()

	b := backendFor(t, ts.URL)
	_, err := b.Generate(context.Background(), "paper body", types.Manifest{
		Entries: []types.ManifestEntry{{ID: "fig1", Path: "figures/fig1.png", Caption: "Figure fig1"}},
	})
	require.NoError(t, err)
}

func TestOpenAIBackendAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": "model overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	b := backendFor(t, ts.URL)
	_, err := b.Generate(context.Background(), "paper", types.Manifest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestNewOpenAIBackendValidation(t *testing.T) {
	_, err := NewOpenAIBackend(types.GenerationConfig{Model: "m"}, nil)
	assert.ErrorContains(t, err, "base_url")

	_, err = NewOpenAIBackend(types.GenerationConfig{BaseURL: "http://x"}, nil)
	assert.ErrorContains(t, err, "model")
}
