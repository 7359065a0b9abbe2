// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the paperblog CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paperblog/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the paperblog CLI.
var rootCmd = &cobra.Command{
	Use:   "paperblog",
	Short: "Convert academic papers to illustrated Markdown blog posts",
	Long: `paperblog turns a paper's text and figure files into a WeChat-style
Markdown blog post. It rasterizes PDF figures, builds a path-verified figure
manifest, hands paper text and manifest to a language model, and assembles
the generated text into a document whose every image reference resolves.

Stages are subcommands: figures prepares the asset directory, generate runs
the full pipeline, publish uploads figures to the WeChat material API.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./paperblog.yaml or ~/.config/paperblog/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("paperblog")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "paperblog"))
		}
	}

	viper.SetDefault("blog_dir", "blog")
	viper.SetDefault("render.scale", 2.0)
	viper.SetDefault("render.timeout_per_file", "60s")
	viper.SetDefault("render.max_parallel", 4)
	viper.SetDefault("generation.base_url", "https://api-inference.modelscope.cn/v1")
	viper.SetDefault("generation.model", "deepseek-ai/DeepSeek-V3.2")
	viper.SetDefault("generation.language", "zh")
	viper.SetDefault("publish.cache_dir", "cache")

	viper.SetEnvPrefix("PAPERBLOG")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
