// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package generate

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"go.yaml.in/yaml/v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// stageConfig is one named prompt stage: a system message plus a user
// prompt template.
type stageConfig struct {
	System   string `yaml:"system"`
	Template string `yaml:"template"`
}

// promptsConfig is the YAML prompt configuration: per-stage prompts and
// default template variables merged under any caller-supplied ones.
type promptsConfig struct {
	Defaults map[string]string      `yaml:"defaults"`
	Stages   map[string]stageConfig `yaml:"stages"`
}

// PromptManager loads prompt templates from a YAML configuration file and
// renders them with per-call variables.
type PromptManager struct {
	config promptsConfig
	parsed map[string]*template.Template
}

// NewPromptManager reads the prompt configuration at path, or the embedded
// default configuration when path is empty.
func NewPromptManager(path string) (*PromptManager, error) {
	data := defaultPrompts
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading prompt configuration: %w", err)
		}
	}

	var cfg promptsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing prompt configuration: %w", err)
	}
	if len(cfg.Stages) == 0 {
		return nil, fmt.Errorf("prompt configuration defines no stages")
	}

	parsed := make(map[string]*template.Template, len(cfg.Stages))
	for name, stage := range cfg.Stages {
		t, err := template.New(name).Option("missingkey=error").Parse(stage.Template)
		if err != nil {
			return nil, fmt.Errorf("parsing template for stage %q: %w", name, err)
		}
		parsed[name] = t
	}

	return &PromptManager{config: cfg, parsed: parsed}, nil
}

// SystemMessage returns the system message for a stage.
func (p *PromptManager) SystemMessage(stage string) (string, error) {
	s, ok := p.config.Stages[stage]
	if !ok {
		return "", fmt.Errorf("prompt stage %q not found (available: %v)", stage, p.stageNames())
	}
	return s.System, nil
}

// RenderPrompt renders the user prompt template for a stage, merging the
// configuration defaults under vars.
func (p *PromptManager) RenderPrompt(stage string, vars map[string]string) (string, error) {
	t, ok := p.parsed[stage]
	if !ok {
		return "", fmt.Errorf("prompt stage %q not found (available: %v)", stage, p.stageNames())
	}

	ctx := make(map[string]string, len(p.config.Defaults)+len(vars))
	for k, v := range p.config.Defaults {
		ctx[k] = v
	}
	for k, v := range vars {
		ctx[k] = v
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("rendering prompt for stage %q: %w", stage, err)
	}
	return buf.String(), nil
}

func (p *PromptManager) stageNames() []string {
	names := make([]string, 0, len(p.config.Stages))
	for name := range p.config.Stages {
		names = append(names, name)
	}
	return names
}
