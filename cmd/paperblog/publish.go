package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paperblog/internal/assemble"
	"github.com/pdiddy/paperblog/internal/publish"
	"github.com/pdiddy/paperblog/internal/secrets"
	"github.com/pdiddy/paperblog/pkg/types"
)

var publishCmd = &cobra.Command{
	Use:   "publish <workdir>",
	Short: "Upload figures to the WeChat material API and rewrite the document",
	Long: `Publish uploads every local figure referenced by <workdir>/document.md
to the WeChat official account material API and rewrites the document to use
the hosted URLs. Uploads are cached by content hash, so re-publishing an
unchanged post performs no network writes. Failed uploads keep their local
paths and surface as warnings.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workDir := args[0]
		docPath := filepath.Join(workDir, assemble.DocumentFile)

		markdown, err := os.ReadFile(docPath)
		if err != nil {
			return fmt.Errorf("reading document: %w", err)
		}

		cfg := types.PublishConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   60 * time.Second,
				UserAgent: "paperblog/" + version,
			},
			AppID:    secrets.Default(loadedSecrets, "weixin-appid", viper.GetString("publish.app_id")),
			Secret:   secrets.Default(loadedSecrets, "weixin-secret", viper.GetString("publish.secret")),
			CacheDir: viper.GetString("publish.cache_dir"),
		}

		cache, err := publish.OpenMediaCache(cfg.CacheDir)
		if err != nil {
			return fmt.Errorf("opening upload cache: %w", err)
		}
		defer cache.Close()

		client, err := publish.NewClient(cfg, cache, newHTTPClient(cfg.Timeout))
		if err != nil {
			return fmt.Errorf("configuring publisher: %w", err)
		}

		rewritten, warnings := publish.RewriteForPublish(cmd.Context(), client, string(markdown), workDir, os.Stderr)
		for _, warn := range warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", warn)
		}

		if _, err := assemble.WriteDocument(workDir, rewritten); err != nil {
			return fmt.Errorf("publishing document: %w", err)
		}
		fmt.Println(docPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
}
