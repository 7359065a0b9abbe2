package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "paperblog/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// RenderConfig holds settings for figure format conversion.
type RenderConfig struct {
	// Scale is the upscaling multiplier applied when rasterizing vector
	// or document sources (default 2.0, i.e. 144 dpi over the 72 dpi base).
	Scale float64 `json:"scale" yaml:"scale"`

	// TimeoutPerFile bounds the conversion of a single source file.
	// A file that exceeds it is marked failed rather than stalling the
	// batch (default 60s).
	TimeoutPerFile time.Duration `json:"timeout_per_file" yaml:"timeout_per_file"`

	// MaxParallel is the conversion worker pool size (default 4).
	// A value of 1 runs the batch sequentially.
	MaxParallel int `json:"max_parallel" yaml:"max_parallel"`
}

// DefaultRenderScale matches the 2x zoom the pipeline has always used for
// readable figure raster output.
const DefaultRenderScale = 2.0

// Normalize fills zero-valued fields with documented defaults.
func (c RenderConfig) Normalize() RenderConfig {
	if c.Scale <= 0 {
		c.Scale = DefaultRenderScale
	}
	if c.TimeoutPerFile <= 0 {
		c.TimeoutPerFile = 60 * time.Second
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = 4
	}
	return c
}

// GenerationConfig holds settings for the blog content generation stage.
type GenerationConfig struct {
	HTTPConfig `yaml:",inline"`

	// BaseURL is the OpenAI-compatible API endpoint
	// (e.g. "https://api-inference.modelscope.cn/v1").
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Model is the model identifier (e.g. "deepseek-ai/DeepSeek-V3.2").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxTokens caps the completion length (default 4000).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// MaxRetries is the number of retry attempts for rate-limited calls
	// (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// MaxRechat is the number of fresh completions requested when a
	// response carries no usable Markdown block (default 2).
	MaxRechat int `json:"max_rechat" yaml:"max_rechat"`

	// PromptsPath is the YAML prompt configuration file. Empty selects
	// the embedded default prompts.
	PromptsPath string `json:"prompts_path" yaml:"prompts_path"`

	// Language selects the blog post language: "zh" or "en" (default "zh").
	Language string `json:"language" yaml:"language"`
}

// PublishConfig holds settings for the WeChat media upload stage.
type PublishConfig struct {
	HTTPConfig `yaml:",inline"`

	// Enabled controls whether assembled documents are rewritten to
	// reference uploaded media URLs.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// AppID and Secret authenticate against the WeChat official account API.
	AppID  string `json:"app_id,omitempty" yaml:"app_id,omitempty"`
	Secret string `json:"secret,omitempty" yaml:"secret,omitempty"`

	// CacheDir is the directory for the upload cache database
	// (default "cache").
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	// BlogDir is the base directory for per-paper working directories
	// (default "blog"; the pipeline writes to BlogDir/<paper-id>/).
	BlogDir string `json:"blog_dir" yaml:"blog_dir"`

	Render     RenderConfig     `json:"render" yaml:"render"`
	Generation GenerationConfig `json:"generation" yaml:"generation"`
	Publish    PublishConfig    `json:"publish" yaml:"publish"`
}
