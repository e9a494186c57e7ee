// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

package extractor

import (
	"context"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/samber/oops"
)

// mediaExts are the path suffixes Generic treats as direct media links.
var mediaExts = []string{
	".mp4", ".m4a", ".m4v", ".mp3", ".webm", ".mkv",
	".flac", ".ogg", ".opus", ".wav", ".mov", ".m3u8",
}

// Generic handles direct links to media files. It matches only URLs whose
// path carries a known media extension, so it is safe to register ahead of
// plugin extractors without shadowing them.
type Generic struct{}

// Name returns the registry key.
func (Generic) Name() string { return "Generic" }

// Suitable reports whether rawURL is an http(s) link to a media file.
func (Generic) Suitable(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return slices.Contains(mediaExts, strings.ToLower(path.Ext(u.Path)))
}

// Extract builds a single direct-link format from the URL itself.
func (Generic) Extract(_ context.Context, rawURL string) (*Info, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, oops.In("extractor").With("url", rawURL).Wrapf(err, "parse url")
	}
	ext := strings.ToLower(path.Ext(u.Path))
	base := strings.TrimSuffix(path.Base(u.Path), ext)
	if base == "" || base == "/" || base == "." {
		base = u.Hostname()
	}
	return &Info{
		ID:         base,
		Title:      base,
		WebpageURL: rawURL,
		Formats: []Format{{
			ID:  "direct",
			URL: rawURL,
			Ext: strings.TrimPrefix(ext, "."),
		}},
	}, nil
}
