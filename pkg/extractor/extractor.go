// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

// Package extractor defines the contract between sluice and its site
// extractors, built in or plugin provided.
package extractor

import "context"

// Format describes one downloadable rendition of a media item.
type Format struct {
	ID       string  `json:"format_id"`
	URL      string  `json:"url"`
	Ext      string  `json:"ext,omitempty"`
	Protocol string  `json:"protocol,omitempty"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	FPS      float64 `json:"fps,omitempty"`
	TBR      float64 `json:"tbr,omitempty"`
	ABR      float64 `json:"abr,omitempty"`
	VBR      float64 `json:"vbr,omitempty"`
	Filesize int64   `json:"filesize,omitempty"`
	VCodec   string  `json:"vcodec,omitempty"`
	ACodec   string  `json:"acodec,omitempty"`
	Note     string  `json:"format_note,omitempty"`
}

// AudioOnly reports whether the format carries no video stream.
func (f Format) AudioOnly() bool {
	return f.VCodec == "none"
}

// VideoOnly reports whether the format carries no audio stream.
func (f Format) VideoOnly() bool {
	return f.ACodec == "none"
}

// Info is the metadata an extractor returns for a media page.
type Info struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	WebpageURL  string   `json:"webpage_url,omitempty"`
	Description string   `json:"description,omitempty"`
	Uploader    string   `json:"uploader,omitempty"`
	Duration    float64  `json:"duration,omitempty"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
	Formats     []Format `json:"formats,omitempty"`
}

// Extractor locates media on the page family identified by its URL pattern.
type Extractor interface {
	// Name returns the registry key, unique across the process.
	Name() string
	// Suitable reports whether the extractor wants to handle url.
	Suitable(url string) bool
	// Extract resolves url into media metadata and formats.
	Extract(ctx context.Context, url string) (*Info, error)
}
