// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

package format

import (
	"strconv"

	"github.com/samber/oops"

	"github.com/sluice-dl/sluice/pkg/extractor"
)

// Select evaluates a selector expression over the extracted formats and
// returns the chosen one. Alternatives are tried in order; the first that
// yields a format wins. Unknown fields compare as zero or empty.
func Select(expr string, formats []extractor.Format) (*extractor.Format, error) {
	sel, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	for _, alt := range sel.Alternatives {
		if f := evalAlternative(alt, formats); f != nil {
			return f, nil
		}
	}
	return nil, oops.In("format").
		With("selector", expr).
		Code("no_format").
		Errorf("no format matches selector %q", expr)
}

func evalAlternative(alt *Alternative, formats []extractor.Format) *extractor.Format {
	candidates := make([]extractor.Format, 0, len(formats))
	for _, f := range formats {
		if matchesAll(f, alt.Filters) {
			candidates = append(candidates, f)
		}
	}
	return pickBase(alt.Base, candidates)
}

func matchesAll(f extractor.Format, filters []*Filter) bool {
	for _, flt := range filters {
		if !matches(f, flt) {
			return false
		}
	}
	return true
}

func matches(f extractor.Format, flt *Filter) bool {
	if _, ok := numericKeys[flt.Key]; ok {
		have, _ := numericField(f, flt.Key)
		want, _ := strconv.ParseFloat(flt.Value, 64)
		switch flt.Op {
		case "<=":
			return have <= want
		case ">=":
			return have >= want
		case "<":
			return have < want
		case ">":
			return have > want
		case "=", "==":
			return have == want
		case "!=":
			return have != want
		}
		return false
	}
	have, _ := stringField(f, flt.Key)
	if flt.Op == "!=" {
		return have != flt.Value
	}
	return have == flt.Value
}

func numericField(f extractor.Format, key string) (float64, bool) {
	switch key {
	case "height":
		return float64(f.Height), true
	case "width":
		return float64(f.Width), true
	case "fps":
		return f.FPS, true
	case "tbr":
		return f.TBR, true
	case "abr":
		return f.ABR, true
	case "vbr":
		return f.VBR, true
	case "filesize":
		return float64(f.Filesize), true
	}
	return 0, false
}

func stringField(f extractor.Format, key string) (string, bool) {
	switch key {
	case "ext":
		return f.Ext, true
	case "protocol":
		return f.Protocol, true
	case "vcodec":
		return f.VCodec, true
	case "acodec":
		return f.ACodec, true
	case "format_id":
		return f.ID, true
	}
	return "", false
}

// pickBase applies the base picker to the filtered candidates. Unknown base
// names select by format id, so "direct/best" reads naturally.
func pickBase(base string, candidates []extractor.Format) *extractor.Format {
	switch base {
	case "best":
		return extremeBy(candidates, qualityKey, false)
	case "worst":
		return extremeBy(candidates, qualityKey, true)
	case "bestaudio":
		return extremeBy(audioOnly(candidates), audioKey, false)
	case "worstaudio":
		return extremeBy(audioOnly(candidates), audioKey, true)
	case "bestvideo":
		return extremeBy(videoOnly(candidates), qualityKey, false)
	case "worstvideo":
		return extremeBy(videoOnly(candidates), qualityKey, true)
	default:
		for i := range candidates {
			if candidates[i].ID == base {
				return &candidates[i]
			}
		}
		return nil
	}
}

func audioOnly(in []extractor.Format) []extractor.Format {
	var out []extractor.Format
	for _, f := range in {
		if f.AudioOnly() {
			out = append(out, f)
		}
	}
	return out
}

func videoOnly(in []extractor.Format) []extractor.Format {
	var out []extractor.Format
	for _, f := range in {
		if f.VideoOnly() {
			out = append(out, f)
		}
	}
	return out
}

// qualityKey ranks general formats: resolution, then total bitrate, then
// size.
func qualityKey(f extractor.Format) [3]float64 {
	return [3]float64{float64(f.Height), f.TBR, float64(f.Filesize)}
}

// audioKey ranks audio formats by audio bitrate, then total bitrate.
func audioKey(f extractor.Format) [3]float64 {
	return [3]float64{f.ABR, f.TBR, float64(f.Filesize)}
}

// extremeBy returns the best candidate under key, or the worst when
// inverted. Ties keep the earlier format, so extractor ordering is the final
// tiebreak.
func extremeBy(candidates []extractor.Format, key func(extractor.Format) [3]float64, worst bool) *extractor.Format {
	if len(candidates) == 0 {
		return nil
	}
	pick := 0
	for i := 1; i < len(candidates); i++ {
		a, b := key(candidates[pick]), key(candidates[i])
		if (worst && keyLess(b, a)) || (!worst && keyLess(a, b)) {
			pick = i
		}
	}
	return &candidates[pick]
}

// keyLess compares rank keys lexicographically.
func keyLess(a, b [3]float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
