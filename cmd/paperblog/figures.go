package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paperblog/internal/figures"
)

var figuresCmd = &cobra.Command{
	Use:   "figures <workdir>",
	Short: "Convert figure files and write the manifest for a working directory",
	Long: `Figures runs the asset stages alone: it scans <workdir>/figures/,
rasterizes PDF and EPS sources to PNG siblings, and writes the ordered,
path-verified manifest to <workdir>/figures/manifest.yaml. Useful for
inspecting what the generator would be offered before spending model calls.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workDir := args[0]

		assets, err := figures.Scan(workDir)
		if err != nil {
			return fmt.Errorf("scanning figures: %w", err)
		}

		renderer, err := figures.DetectRenderer()
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			renderer = nil
		}

		reg := figures.NewRegistry()
		result, err := figures.ConvertAll(cmd.Context(), renderer, workDir, assets, reg, renderConfig(cmd), os.Stderr)
		if err != nil {
			return fmt.Errorf("converting figures: %w", err)
		}

		manifest, warns := figures.BuildManifest(reg, workDir)
		for _, warn := range warns {
			fmt.Fprintf(os.Stderr, "warning: %s\n", warn)
		}
		if err := figures.WriteManifest(manifest, workDir); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "\nBatch summary: %d converted, %d skipped, %d failed (total: %d)\n",
			result.Converted, result.Skipped, result.Failed, result.Total())
		fmt.Printf("%d manifest entries\n", len(manifest.Entries))
		return nil
	},
}

func init() {
	figuresCmd.Flags().Float64("scale", 0, "render upscaling multiplier")
	figuresCmd.Flags().Duration("timeout-per-file", 0, "per-figure conversion timeout")
	figuresCmd.Flags().Int("max-parallel", 0, "conversion worker pool size")

	rootCmd.AddCommand(figuresCmd)
}
