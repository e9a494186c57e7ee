// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

package main

import (
	"context"
	"encoding/json"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/sluice-dl/sluice/internal/config"
	"github.com/sluice-dl/sluice/internal/format"
	"github.com/sluice-dl/sluice/internal/plugin"
	"github.com/sluice-dl/sluice/internal/postproc"
	"github.com/sluice-dl/sluice/pkg/extractor"
)

// NewFormatsCmd creates the formats command group.
func NewFormatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "formats",
		Short: "Work with extracted media formats",
	}
	cmd.AddCommand(NewFormatsPickCmd())
	return cmd
}

// pickConfig holds flags for the formats pick command.
type pickConfig struct {
	selector string
	jsonOut  bool
}

// NewFormatsPickCmd creates the formats pick subcommand.
func NewFormatsPickCmd() *cobra.Command {
	cfg := &pickConfig{}

	cmd := &cobra.Command{
		Use:   "pick <url>",
		Short: "Extract a URL and pick one format",
		Long: `Run the matching extractor over the URL, apply the postprocessor
chain, and pick one format with the selector expression.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runFormatsPick(cmd.Context(), appCfg, cfg, cmd, args[0], nil)
		},
	}

	cmd.Flags().StringVarP(&cfg.selector, "format", "f", "", "format selector (default from config)")
	cmd.Flags().BoolVar(&cfg.jsonOut, "json", false, "output the picked format as JSON")

	return cmd
}

// runFormatsPick executes the formats pick command.
func runFormatsPick(ctx context.Context, appCfg *config.Config, cfg *pickConfig, cmd *cobra.Command, url string, deps *PluginDeps) error {
	rt, err := setupRuntime(appCfg, deps)
	if err != nil {
		return err
	}
	defer rt.Close()

	reg := extractor.DefaultRegistry()
	ies, err := rt.LoadPlugins(ctx, plugin.CategoryExtractor, reg)
	if err != nil {
		return err
	}
	rt.RegisterExtractors(ies, reg)

	chain := postproc.DefaultChain()
	pps, err := rt.LoadPlugins(ctx, plugin.CategoryPostprocessor, chain)
	if err != nil {
		return err
	}
	rt.RegisterPostprocessors(pps, chain)

	ex, ok := reg.Match(url)
	if !ok {
		return oops.In("cli").
			With("url", url).
			Code("no_extractor").
			Errorf("no extractor accepts %q", url)
	}

	info, err := ex.Extract(ctx, url)
	if err != nil {
		return err
	}
	if err := chain.Run(ctx, info); err != nil {
		return err
	}

	selector := cfg.selector
	if selector == "" {
		selector = appCfg.Format
	}
	picked, err := format.Select(selector, info.Formats)
	if err != nil {
		return err
	}

	if cfg.jsonOut {
		data, err := json.MarshalIndent(picked, "", "  ")
		if err != nil {
			return oops.In("cli").Wrapf(err, "marshaling format")
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("%s: %s\n", ex.Name(), info.Title)
	cmd.Printf("format %s", picked.ID)
	if picked.Height > 0 {
		cmd.Printf(" %dp", picked.Height)
	}
	if picked.Ext != "" {
		cmd.Printf(" %s", picked.Ext)
	}
	cmd.Println()
	cmd.Println(picked.URL)
	return nil
}
