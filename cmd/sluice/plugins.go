// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/sluice-dl/sluice/internal/config"
	"github.com/sluice-dl/sluice/internal/logging"
	"github.com/sluice-dl/sluice/internal/plugin"
	"github.com/sluice-dl/sluice/internal/postproc"
	"github.com/sluice-dl/sluice/pkg/extractor"
)

// PluginDeps contains injectable dependencies for commands that drive the
// plugin runtime. Nil fields use their default implementations.
type PluginDeps struct {
	// Environ supplies the discovery environment.
	// Default: plugin.OSEnviron with the configured plugin dirs prepended.
	Environ func(cfg *config.Config) plugin.Environ

	// Logger receives load diagnostics.
	// Default: the process logger configured from cfg.LogFormat.
	Logger *slog.Logger
}

// NewPluginsCmd creates the plugins command group.
func NewPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect the plugin namespace",
		Long: `Discover, load, and inspect sluice plugin modules across every
search location, including plugin archives.`,
	}

	cmd.PersistentFlags().StringSlice("plugin-dir", nil, "extra plugin search roots")
	cmd.PersistentFlags().StringSlice("only", nil, "collect only classes matching these globs")
	cmd.PersistentFlags().StringSlice("exclude", nil, "drop classes matching these globs")

	cmd.AddCommand(NewPluginsListCmd())
	cmd.AddCommand(NewPluginsDirsCmd())
	cmd.AddCommand(NewPluginsCheckCmd())

	return cmd
}

// setupRuntime builds a plugin runtime from the effective configuration.
func setupRuntime(cfg *config.Config, deps *PluginDeps) (*plugin.Runtime, error) {
	if deps == nil {
		deps = &PluginDeps{}
	}

	logger := deps.Logger
	if logger == nil {
		logging.SetDefault("sluice", version, cfg.LogFormat)
		logger = slog.Default()
	}

	env := plugin.OSEnviron()
	env.SearchPath = append(append([]string{}, cfg.Plugins.Dirs...), env.SearchPath...)
	if deps.Environ != nil {
		env = deps.Environ(cfg)
	}

	return plugin.NewRuntime(plugin.Options{
		Env:         env,
		HostVersion: hostVersion(),
		Only:        cfg.Plugins.Only,
		Exclude:     cfg.Plugins.Exclude,
		Logger:      logger,
	})
}

// listConfig holds flags for the plugins list command.
type listConfig struct {
	match string
}

// NewPluginsListCmd creates the plugins list subcommand.
func NewPluginsListCmd() *cobra.Command {
	cfg := &listConfig{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loadable plugin classes",
		Long:  `Load every plugin category and print the harvested classes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appCfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runPluginsList(cmd.Context(), appCfg, cfg, cmd, nil)
		},
	}

	cmd.Flags().StringVar(&cfg.match, "match", "", "show only classes matching this glob")

	return cmd
}

// runPluginsList executes the plugins list command.
func runPluginsList(ctx context.Context, appCfg *config.Config, cfg *listConfig, cmd *cobra.Command, deps *PluginDeps) error {
	rt, err := setupRuntime(appCfg, deps)
	if err != nil {
		return err
	}
	defer rt.Close()

	var match glob.Glob
	if cfg.match != "" {
		match, err = glob.Compile(cfg.match)
		if err != nil {
			return oops.In("cli").With("match", cfg.match).Wrapf(err, "compiling --match pattern")
		}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tNAME\tMODULE")
	for _, cat := range []plugin.Category{plugin.CategoryExtractor, plugin.CategoryPostprocessor} {
		classes, err := rt.LoadPlugins(ctx, cat, builtinNames(cat))
		if err != nil {
			return err
		}
		for _, c := range classes.All() {
			if match != nil && !match.Match(c.Name) {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", cat.Name, c.Name, c.Module)
		}
	}
	return w.Flush()
}

// builtinNames returns the pre-existing namespace a category's plugin
// classes must not collide with.
func builtinNames(cat plugin.Category) plugin.Lookup {
	if cat == plugin.CategoryPostprocessor {
		return postproc.DefaultChain()
	}
	return extractor.DefaultRegistry()
}

// NewPluginsDirsCmd creates the plugins dirs subcommand.
func NewPluginsDirsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dirs",
		Short: "Print the plugin namespace locations",
		Long:  `Print every physical location currently backing the plugin namespace.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appCfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runPluginsDirs(cmd.Context(), appCfg, cmd, nil)
		},
	}
	return cmd
}

// runPluginsDirs executes the plugins dirs command.
func runPluginsDirs(ctx context.Context, appCfg *config.Config, cmd *cobra.Command, deps *PluginDeps) error {
	rt, err := setupRuntime(appCfg, deps)
	if err != nil {
		return err
	}
	defer rt.Close()

	locs, err := rt.Directories(ctx)
	if err != nil {
		return err
	}
	if len(locs) == 0 {
		cmd.Println("no plugin directories found")
		return nil
	}
	for _, loc := range locs {
		if loc.IsArchive() {
			cmd.Printf("%s (archive %s)\n", loc.Sub, loc.Archive)
			continue
		}
		cmd.Println(loc.Path)
	}
	return nil
}

// checkConfig holds flags for the plugins check command.
type checkConfig struct {
	watch bool
}

// NewPluginsCheckCmd creates the plugins check subcommand.
func NewPluginsCheckCmd() *cobra.Command {
	cfg := &checkConfig{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Load every plugin and report the result",
		Long: `Load both plugin categories, registering classes the way startup
does, and report counts. Module failures are diagnostics, not errors. With
--watch, re-scan whenever plugin files change.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appCfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runPluginsCheck(cmd.Context(), appCfg, cfg, cmd, nil)
		},
	}

	cmd.Flags().BoolVar(&cfg.watch, "watch", false, "re-scan when plugin files change")

	return cmd
}

// runPluginsCheck executes the plugins check command.
func runPluginsCheck(ctx context.Context, appCfg *config.Config, cfg *checkConfig, cmd *cobra.Command, deps *PluginDeps) error {
	rt, err := setupRuntime(appCfg, deps)
	if err != nil {
		return err
	}
	defer rt.Close()

	scan := func() error {
		reg := extractor.DefaultRegistry()
		chain := postproc.DefaultChain()

		ies, err := rt.LoadPlugins(ctx, plugin.CategoryExtractor, reg)
		if err != nil {
			return err
		}
		rt.RegisterExtractors(ies, reg)

		pps, err := rt.LoadPlugins(ctx, plugin.CategoryPostprocessor, chain)
		if err != nil {
			return err
		}
		rt.RegisterPostprocessors(pps, chain)

		locs, err := rt.Directories(ctx)
		if err != nil {
			return err
		}

		cmd.Printf("locations: %d\n", len(locs))
		cmd.Printf("extractors: %d plugin, %d total\n", ies.Len(), reg.Len())
		cmd.Printf("postprocessors: %d plugin, %d total\n", pps.Len(), chain.Len())
		return nil
	}

	if err := scan(); err != nil {
		return err
	}
	if !cfg.watch {
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := rt.Watch(func() {
		cmd.Println("change detected, re-scanning")
		if err := scan(); err != nil {
			cmd.PrintErrln("re-scan failed:", err)
		}
	})
	if err != nil {
		return err
	}

	cmd.Println("watching for plugin changes (ctrl-c to stop)")
	return watcher.Run(ctx)
}
