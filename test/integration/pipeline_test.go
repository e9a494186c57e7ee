// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

//go:build integration

package integration

import (
	"archive/zip"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/sluice-dl/sluice/internal/format"
	"github.com/sluice-dl/sluice/internal/plugin"
	"github.com/sluice-dl/sluice/internal/postproc"
	"github.com/sluice-dl/sluice/pkg/extractor"
)

const clipsModule = `
local util = require("sluice_plugins.extractor._shared")

ClipIE = class("ClipIE", {
	urls = "https://clips.example/*",
	extract = function(self, url)
		return {
			id = util.tail(url),
			title = "  Spaced Title  ",
			formats = {
				{ format_id = "hd", url = "https://clips.example/hd.mp4", height = 720, ext = "mp4", tbr = 2500 },
				{ format_id = "sd", url = "https://clips.example/sd.mp4", height = 360, ext = "mp4", tbr = 800 },
			},
		}
	end,
})
`

const sharedModule = `
function tail(url)
	local path = url:gsub("%?.*$", "")
	return path:match("([^/]+)$") or url
end
`

const trimModule = `
TrimPP = class("TrimPP", {
	process = function(self, info)
		if type(info.title) == "string" then
			info.title = info.title:match("^%s*(.-)%s*$")
		end
		return info
	end,
})
`

// writeFile writes a plugin source under root, creating parents.
func writeFile(root, rel, src string) {
	path := filepath.Join(root, filepath.FromSlash(rel))
	Expect(os.MkdirAll(filepath.Dir(path), 0o750)).To(Succeed())
	Expect(os.WriteFile(path, []byte(src), 0o600)).To(Succeed())
}

// makeArchive writes a zip archive with the given member contents.
func makeArchive(path string, members map[string]string) {
	Expect(os.MkdirAll(filepath.Dir(path), 0o750)).To(Succeed())
	f, err := os.Create(path)
	Expect(err).NotTo(HaveOccurred())
	zw := zip.NewWriter(f)
	for name, content := range members {
		w, err := zw.Create(name)
		Expect(err).NotTo(HaveOccurred())
		_, err = w.Write([]byte(content))
		Expect(err).NotTo(HaveOccurred())
	}
	Expect(zw.Close()).To(Succeed())
	Expect(f.Close()).To(Succeed())
}

func newRuntime(env plugin.Environ, hostVersion string) *plugin.Runtime {
	rt, err := plugin.NewRuntime(plugin.Options{
		Env:         env,
		HostVersion: hostVersion,
		Logger:      slog.New(slog.NewTextHandler(GinkgoWriter, nil)),
	})
	Expect(err).NotTo(HaveOccurred())
	return rt
}

func searchEnv(roots ...string) plugin.Environ {
	return plugin.Environ{SearchPath: roots}
}

var _ = Describe("Plugin pipeline", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("discovery", func() {
		It("resolves directory and archive locations in order", func() {
			root := GinkgoT().TempDir()
			pack := filepath.Join(GinkgoT().TempDir(), "pack.zip")
			writeFile(root, "sluice_plugins/extractor/clips.lua", clipsModule)
			makeArchive(pack, map[string]string{
				"sluice_plugins/postprocessor/trim.lua": trimModule,
			})

			rt := newRuntime(searchEnv(root, pack), "")
			defer rt.Close()

			locs, err := rt.Directories(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(locs).To(HaveLen(2))
			Expect(locs[0].Path).To(Equal(filepath.Join(root, "sluice_plugins")))
			Expect(locs[0].IsArchive()).To(BeFalse())
			Expect(locs[1].Archive).To(Equal(pack))
			Expect(locs[1].Sub).To(Equal("sluice_plugins"))
		})

		It("reports nothing when no root provides the namespace", func() {
			rt := newRuntime(searchEnv(GinkgoT().TempDir()), "")
			defer rt.Close()

			locs, err := rt.Directories(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(locs).To(BeEmpty())

			classes, err := rt.LoadPlugins(ctx, plugin.CategoryExtractor, extractor.NewRegistry())
			Expect(err).NotTo(HaveOccurred())
			Expect(classes.Len()).To(BeZero())
		})
	})

	Describe("loading", func() {
		It("collects qualifying classes from every root", func() {
			dirRoot := GinkgoT().TempDir()
			pack := filepath.Join(GinkgoT().TempDir(), "extra.pak")
			writeFile(dirRoot, "sluice_plugins/extractor/clips.lua", clipsModule)
			writeFile(dirRoot, "sluice_plugins/extractor/_shared.lua", sharedModule)
			makeArchive(pack, map[string]string{
				"sluice_plugins/extractor/vault.lua": `
VaultIE = class("VaultIE", {
	urls = "https://vault.example/*",
	extract = function(self, url)
		return { id = "v", title = "vault", formats = {} }
	end,
})
`,
			})

			rt := newRuntime(searchEnv(dirRoot, pack), "")
			defer rt.Close()

			classes, err := rt.LoadPlugins(ctx, plugin.CategoryExtractor, extractor.NewRegistry())
			Expect(err).NotTo(HaveOccurred())
			Expect(classes.Names()).To(ConsistOf("ClipIE", "VaultIE"))

			clip, ok := classes.Get("ClipIE")
			Expect(ok).To(BeTrue())
			Expect(clip.Module).To(Equal("sluice_plugins.extractor.clips"))
		})

		It("keeps loading past a module that raises", func() {
			root := GinkgoT().TempDir()
			writeFile(root, "sluice_plugins/extractor/broken.lua", `error("kaput")`)
			writeFile(root, "sluice_plugins/extractor/clips.lua", clipsModule)
			writeFile(root, "sluice_plugins/extractor/_shared.lua", sharedModule)

			rt := newRuntime(searchEnv(root), "")
			defer rt.Close()

			classes, err := rt.LoadPlugins(ctx, plugin.CategoryExtractor, extractor.NewRegistry())
			Expect(err).NotTo(HaveOccurred())
			Expect(classes.Has("ClipIE")).To(BeTrue())
		})

		It("prefers the first root for conflicting module files", func() {
			primary := GinkgoT().TempDir()
			secondary := GinkgoT().TempDir()
			writeFile(primary, "sluice_plugins/extractor/dup.lua", `
DupIE = class("DupIE", {
	urls = "https://dup.example/*",
	extract = function(self, url)
		return { id = "d", title = "primary", formats = {} }
	end,
})
`)
			writeFile(secondary, "sluice_plugins/extractor/dup.lua", `
DupIE = class("DupIE", {
	urls = "https://dup.example/*",
	extract = function(self, url)
		return { id = "d", title = "secondary", formats = {} }
	end,
})
`)

			rt := newRuntime(searchEnv(primary, secondary), "")
			defer rt.Close()

			reg := extractor.NewRegistry()
			classes, err := rt.LoadPlugins(ctx, plugin.CategoryExtractor, reg)
			Expect(err).NotTo(HaveOccurred())
			rt.RegisterExtractors(classes, reg)

			ex, ok := reg.Match("https://dup.example/x")
			Expect(ok).To(BeTrue())
			info, err := ex.Extract(ctx, "https://dup.example/x")
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Title).To(Equal("primary"))
		})

		It("skips modules requiring a newer host", func() {
			root := GinkgoT().TempDir()
			writeFile(root, "sluice_plugins/extractor/future.lua", `
__requires__ = ">= 9.0.0"
FutureIE = class("FutureIE", {
	urls = "https://future.example/*",
	extract = function(self, url) return { formats = {} } end,
})
`)

			rt := newRuntime(searchEnv(root), "1.0.0")
			defer rt.Close()

			classes, err := rt.LoadPlugins(ctx, plugin.CategoryExtractor, extractor.NewRegistry())
			Expect(err).NotTo(HaveOccurred())
			Expect(classes.Has("FutureIE")).To(BeFalse())
		})

		It("loads the executable-adjacent legacy package", func() {
			exeDir := GinkgoT().TempDir()
			writeFile(exeDir, "sluiceplugins/extractor/init.lua", `
LegacyIE = class("LegacyIE", {
	urls = "https://legacy.example/*",
	extract = function(self, url)
		return { id = "l", title = "legacy", formats = {} }
	end,
})
`)

			rt := newRuntime(plugin.Environ{Exe: filepath.Join(exeDir, "sluice")}, "")
			defer rt.Close()

			classes, err := rt.LoadPlugins(ctx, plugin.CategoryExtractor, extractor.NewRegistry())
			Expect(err).NotTo(HaveOccurred())
			Expect(classes.Has("LegacyIE")).To(BeTrue())
		})
	})

	Describe("extraction", func() {
		It("extracts, postprocesses, and selects a format end to end", func() {
			root := GinkgoT().TempDir()
			writeFile(root, "sluice_plugins/extractor/clips.lua", clipsModule)
			writeFile(root, "sluice_plugins/extractor/_shared.lua", sharedModule)
			writeFile(root, "sluice_plugins/postprocessor/trim.lua", trimModule)

			rt := newRuntime(searchEnv(root), "")
			defer rt.Close()

			reg := extractor.DefaultRegistry()
			ies, err := rt.LoadPlugins(ctx, plugin.CategoryExtractor, reg)
			Expect(err).NotTo(HaveOccurred())
			Expect(rt.RegisterExtractors(ies, reg)).To(ContainElement("ClipIE"))

			chain := postproc.DefaultChain()
			pps, err := rt.LoadPlugins(ctx, plugin.CategoryPostprocessor, chain)
			Expect(err).NotTo(HaveOccurred())
			Expect(rt.RegisterPostprocessors(pps, chain)).To(ContainElement("TrimPP"))

			ex, ok := reg.Match("https://clips.example/watch/42")
			Expect(ok).To(BeTrue())
			Expect(ex.Name()).To(Equal("ClipIE"))

			info, err := ex.Extract(ctx, "https://clips.example/watch/42")
			Expect(err).NotTo(HaveOccurred())
			Expect(info.ID).To(Equal("42"))

			Expect(chain.Run(ctx, info)).To(Succeed())
			Expect(info.Title).To(Equal("Spaced Title"))

			picked, err := format.Select("best[height<=480]", info.Formats)
			Expect(err).NotTo(HaveOccurred())
			Expect(picked.ID).To(Equal("sd"))
		})
	})

	Describe("cache invalidation", func() {
		It("sees a late plugin archive only after invalidation", func() {
			root := GinkgoT().TempDir()
			pack := filepath.Join(GinkgoT().TempDir(), "late.zip")
			writeFile(root, "sluice_plugins/extractor/clips.lua", clipsModule)
			writeFile(root, "sluice_plugins/extractor/_shared.lua", sharedModule)

			// The archive path is on the search path before the file exists.
			rt := newRuntime(searchEnv(root, pack), "")
			defer rt.Close()

			classes, err := rt.LoadPlugins(ctx, plugin.CategoryExtractor, extractor.NewRegistry())
			Expect(err).NotTo(HaveOccurred())
			Expect(classes.Names()).To(ConsistOf("ClipIE"))

			makeArchive(pack, map[string]string{
				"sluice_plugins/extractor/late.lua": `
LateIE = class("LateIE", {
	urls = "https://late.example/*",
	extract = function(self, url) return { formats = {} } end,
})
`,
			})

			// Namespace resolution is cached; the archive stays invisible.
			classes, err = rt.LoadPlugins(ctx, plugin.CategoryExtractor, extractor.NewRegistry())
			Expect(err).NotTo(HaveOccurred())
			Expect(classes.Names()).To(ConsistOf("ClipIE"))

			rt.InvalidateCaches()

			classes, err = rt.LoadPlugins(ctx, plugin.CategoryExtractor, extractor.NewRegistry())
			Expect(err).NotTo(HaveOccurred())
			Expect(classes.Names()).To(ConsistOf("ClipIE", "LateIE"))
		})
	})

	Describe("watching", func() {
		It("invalidates and reloads when plugin files change", func() {
			root := GinkgoT().TempDir()
			pack := filepath.Join(root, "fresh.zip")
			writeFile(root, "sluice_plugins/extractor/clips.lua", clipsModule)
			writeFile(root, "sluice_plugins/extractor/_shared.lua", sharedModule)

			rt := newRuntime(searchEnv(root, pack), "")
			defer rt.Close()

			classes, err := rt.LoadPlugins(ctx, plugin.CategoryExtractor, extractor.NewRegistry())
			Expect(err).NotTo(HaveOccurred())
			Expect(classes.Names()).To(ConsistOf("ClipIE"))

			reloaded := make(chan struct{}, 1)
			watcher, err := rt.Watch(func() {
				select {
				case reloaded <- struct{}{}:
				default:
				}
			})
			Expect(err).NotTo(HaveOccurred())

			watchCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- watcher.Run(watchCtx) }()

			makeArchive(pack, map[string]string{
				"sluice_plugins/extractor/fresh.lua": `
FreshIE = class("FreshIE", {
	urls = "https://fresh.example/*",
	extract = function(self, url) return { formats = {} } end,
})
`,
			})

			Eventually(reloaded).WithTimeout(5 * time.Second).Should(Receive())

			classes, err = rt.LoadPlugins(ctx, plugin.CategoryExtractor, extractor.NewRegistry())
			Expect(err).NotTo(HaveOccurred())
			Expect(classes.Names()).To(ConsistOf("ClipIE", "FreshIE"))

			cancel()
			Eventually(done).WithTimeout(5 * time.Second).Should(Receive(BeNil()))
		})
	})
})
