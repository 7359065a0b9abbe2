package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paperblog/internal/generate"
	"github.com/pdiddy/paperblog/internal/pipeline"
	"github.com/pdiddy/paperblog/internal/secrets"
	"github.com/pdiddy/paperblog/pkg/types"
)

var generateCmd = &cobra.Command{
	Use:   "generate <paper-id>",
	Short: "Generate an illustrated blog post from a prepared paper",
	Long: `Generate runs the full pipeline for one paper: it scans and converts the
figures under <blog-dir>/<paper-id>/figures/, builds the figure manifest,
sends the paper text and manifest to the model, and assembles the result
into <blog-dir>/<paper-id>/document.md.

The paper text payload is read from <blog-dir>/<paper-id>/paper.md unless
--paper points elsewhere. Figures and paper text must already be on disk;
fetching them is a separate concern.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paperID := args[0]
		blogDir := viper.GetString("blog_dir")

		workDir, err := pipeline.PrepareWorkDir(blogDir, paperID)
		if err != nil {
			return err
		}

		paperPath, _ := cmd.Flags().GetString("paper")
		if paperPath == "" {
			paperPath = filepath.Join(workDir, "paper.md")
		}
		payload, err := os.ReadFile(paperPath)
		if err != nil {
			return fmt.Errorf("reading paper text: %w", err)
		}

		genCfg := generationConfig(cmd)
		backend, err := generate.NewOpenAIBackend(genCfg, nil)
		if err != nil {
			return fmt.Errorf("configuring generator: %w", err)
		}

		res, err := pipeline.Run(cmd.Context(), backend, workDir, string(payload), renderConfig(cmd), os.Stderr)
		if err != nil {
			return err
		}

		for _, warn := range res.Warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", warn)
		}
		fmt.Println(res.DocumentPath)
		return nil
	},
}

// renderConfig assembles the conversion settings from config and flags.
func renderConfig(cmd *cobra.Command) types.RenderConfig {
	cfg := types.RenderConfig{
		Scale:          viper.GetFloat64("render.scale"),
		TimeoutPerFile: viper.GetDuration("render.timeout_per_file"),
		MaxParallel:    viper.GetInt("render.max_parallel"),
	}
	if cmd.Flags().Changed("scale") {
		cfg.Scale, _ = cmd.Flags().GetFloat64("scale")
	}
	if cmd.Flags().Changed("timeout-per-file") {
		cfg.TimeoutPerFile, _ = cmd.Flags().GetDuration("timeout-per-file")
	}
	if cmd.Flags().Changed("max-parallel") {
		cfg.MaxParallel, _ = cmd.Flags().GetInt("max-parallel")
	}
	return cfg.Normalize()
}

// generationConfig assembles the generator settings from config, flags,
// and loaded secrets.
func generationConfig(cmd *cobra.Command) types.GenerationConfig {
	apiKey, _ := cmd.Flags().GetString("api-key")
	apiKey = secrets.Default(loadedSecrets, "modelscope-api-key", apiKey)
	if apiKey == "" {
		apiKey = secrets.Default(loadedSecrets, "openai-api-key", "")
	}

	cfg := types.GenerationConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   10 * time.Minute,
			UserAgent: "paperblog/" + version,
		},
		BaseURL:     viper.GetString("generation.base_url"),
		Model:       viper.GetString("generation.model"),
		APIKey:      apiKey,
		MaxTokens:   viper.GetInt("generation.max_tokens"),
		MaxRetries:  viper.GetInt("generation.max_retries"),
		MaxRechat:   viper.GetInt("generation.max_rechat"),
		PromptsPath: viper.GetString("generation.prompts_path"),
		Language:    viper.GetString("generation.language"),
	}
	if v, _ := cmd.Flags().GetString("model"); v != "" {
		cfg.Model = v
	}
	if v, _ := cmd.Flags().GetString("base-url"); v != "" {
		cfg.BaseURL = v
	}
	if v, _ := cmd.Flags().GetString("language"); v != "" {
		cfg.Language = v
	}
	if v, _ := cmd.Flags().GetString("prompts"); v != "" {
		cfg.PromptsPath = v
	}
	return cfg
}

// newHTTPClient is shared by commands that talk to external APIs.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func init() {
	generateCmd.Flags().String("paper", "", "paper text file (default: <blog-dir>/<paper-id>/paper.md)")
	generateCmd.Flags().String("api-key", "", "API key (overrides .secrets/)")
	generateCmd.Flags().String("model", "", "model identifier")
	generateCmd.Flags().String("base-url", "", "OpenAI-compatible API base URL")
	generateCmd.Flags().String("language", "", "blog post language: zh or en")
	generateCmd.Flags().String("prompts", "", "prompt configuration YAML (default: embedded)")
	generateCmd.Flags().Float64("scale", 0, "render upscaling multiplier")
	generateCmd.Flags().Duration("timeout-per-file", 0, "per-figure conversion timeout")
	generateCmd.Flags().Int("max-parallel", 0, "conversion worker pool size")

	rootCmd.AddCommand(generateCmd)
}
