// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

package postproc

import (
	"context"
	"sort"

	"github.com/sluice-dl/sluice/pkg/extractor"
)

// SortFormats orders an item's formats from best to worst so downstream
// selection can take the first match. Better means higher resolution, then
// higher total bitrate, then larger file. The sort is stable, so formats an
// extractor already ranked keep their relative order on ties.
type SortFormats struct{}

func (SortFormats) Name() string { return "SortFormatsPP" }

func (SortFormats) Process(_ context.Context, info *extractor.Info) error {
	sort.SliceStable(info.Formats, func(i, j int) bool {
		a, b := info.Formats[i], info.Formats[j]
		if a.Height != b.Height {
			return a.Height > b.Height
		}
		if a.TBR != b.TBR {
			return a.TBR > b.TBR
		}
		return a.Filesize > b.Filesize
	})
	return nil
}
