// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

// Package format implements the format selector expression language used to
// pick one downloadable rendition out of an extraction result. A selector is
// a chain of alternatives tried left to right, each a base picker optionally
// narrowed by bracket filters:
//
//	best[height<=720][ext=mp4]/bestaudio/direct
package format

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// selectorLexer tokenizes selector expressions. Multi-character comparators
// come first so "<=" never splits into "<" and "="; equality is greedy so
// "==" and the shorthand "=" share one rule.
var selectorLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Number", Pattern: `\d+(\.\d+)?`},
	{Name: "OpLe", Pattern: `<=`},
	{Name: "OpGe", Pattern: `>=`},
	{Name: "OpEq", Pattern: `==?`},
	{Name: "OpNe", Pattern: `!=`},
	{Name: "OpLt", Pattern: `<`},
	{Name: "OpGt", Pattern: `>`},
	{Name: "Ident", Pattern: `[a-zA-Z_][\w.-]*`},
	{Name: "Punct", Pattern: `[\[\]/]`},
	{Name: "whitespace", Pattern: `\s+`},
})

// Selector is an ordered list of alternatives; the first alternative that
// yields a format wins.
//
// Grammar: alternative ( "/" alternative )*
type Selector struct {
	Pos          lexer.Position `parser:""`
	Alternatives []*Alternative `parser:"@@ ('/' @@)*"`
}

// Alternative is one base picker with zero or more filters. Bases are either
// well known pickers (best, worstaudio, ...) or literal format ids, which may
// be purely numeric.
//
// Grammar: base ( "[" filter "]" )*
type Alternative struct {
	Pos     lexer.Position `parser:""`
	Base    string         `parser:"@(Ident | Number)"`
	Filters []*Filter      `parser:"('[' @@ ']')*"`
}

// Filter narrows the candidate set by one field comparison. Equality may be
// spelled "=" or "==".
type Filter struct {
	Pos   lexer.Position `parser:""`
	Key   string         `parser:"@Ident"`
	Op    string         `parser:"@('<=' | '>=' | '==' | '=' | '!=' | '<' | '>')"`
	Value string         `parser:"@(Number | Ident)"`
}

// NewParser constructs a participle parser for the selector grammar.
func NewParser() (*participle.Parser[Selector], error) {
	return participle.Build[Selector](
		participle.Lexer(selectorLexer),
	)
}
