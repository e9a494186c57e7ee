// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

package format

import (
	"fmt"
	"strconv"

	"github.com/alecthomas/participle/v2"
	"github.com/samber/oops"
)

// parser is the singleton participle parser instance.
var parser *participle.Parser[Selector]

func init() {
	var err error
	parser, err = NewParser()
	if err != nil {
		panic(fmt.Sprintf("failed to build selector parser: %v", err))
	}
}

// numericKeys are filterable fields holding numbers; any comparator applies.
var numericKeys = map[string]struct{}{
	"height":   {},
	"width":    {},
	"fps":      {},
	"tbr":      {},
	"abr":      {},
	"vbr":      {},
	"filesize": {},
}

// stringKeys are filterable fields holding strings; only equality applies.
var stringKeys = map[string]struct{}{
	"ext":       {},
	"protocol":  {},
	"vcodec":    {},
	"acodec":    {},
	"format_id": {},
}

// Parse parses a selector expression into its AST. Returns a descriptive
// error with position info on failure.
func Parse(expr string) (*Selector, error) {
	sel, err := parser.ParseString("", expr)
	if err != nil {
		return nil, oops.In("format").With("selector", expr).Wrapf(err, "parsing format selector")
	}
	if err := validateSelector(sel); err != nil {
		return nil, oops.In("format").With("selector", expr).Wrap(err)
	}
	return sel, nil
}

// validateSelector performs post-parse validation of filter keys, operators,
// and value types.
func validateSelector(sel *Selector) error {
	for _, alt := range sel.Alternatives {
		for _, f := range alt.Filters {
			if err := validateFilter(f); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateFilter(f *Filter) error {
	if _, ok := numericKeys[f.Key]; ok {
		if _, err := strconv.ParseFloat(f.Value, 64); err != nil {
			return fmt.Errorf("filter %q needs a numeric value, got %q", f.Key, f.Value)
		}
		return nil
	}
	if _, ok := stringKeys[f.Key]; ok {
		switch f.Op {
		case "=", "==", "!=":
			return nil
		}
		return fmt.Errorf("filter %q supports only = and !=, got %q", f.Key, f.Op)
	}
	return fmt.Errorf("unknown filter key %q", f.Key)
}
