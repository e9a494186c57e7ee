// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

package extractor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sluice-dl/sluice/pkg/extractor"
)

type fakeExtractor struct {
	name   string
	prefix string
}

func (f fakeExtractor) Name() string { return f.name }

func (f fakeExtractor) Suitable(url string) bool {
	return f.prefix != "" && len(url) >= len(f.prefix) && url[:len(f.prefix)] == f.prefix
}

func (f fakeExtractor) Extract(context.Context, string) (*extractor.Info, error) {
	return &extractor.Info{ID: f.name}, nil
}

func TestRegistry_OrderPreserved(t *testing.T) {
	r := extractor.NewRegistry()
	require.True(t, r.Register(fakeExtractor{name: "Alpha"}))
	require.True(t, r.Register(fakeExtractor{name: "Beta"}))
	require.True(t, r.Register(fakeExtractor{name: "Gamma"}))

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "Alpha", list[0].Name())
	assert.Equal(t, "Beta", list[1].Name())
	assert.Equal(t, "Gamma", list[2].Name())
}

func TestRegistry_FirstRegistrationWins(t *testing.T) {
	r := extractor.NewRegistry()
	first := fakeExtractor{name: "Dup", prefix: "https://first"}
	second := fakeExtractor{name: "Dup", prefix: "https://second"}

	require.True(t, r.Register(first))
	assert.False(t, r.Register(second), "duplicate name must be dropped")

	got, ok := r.Lookup("Dup")
	require.True(t, ok)
	assert.True(t, got.Suitable("https://first/x"), "original registration must survive")
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_MatchWalksInsertionOrder(t *testing.T) {
	r := extractor.NewRegistry()
	require.True(t, r.Register(fakeExtractor{name: "Narrow", prefix: "https://example.com/video"}))
	require.True(t, r.Register(fakeExtractor{name: "Wide", prefix: "https://example.com"}))

	got, ok := r.Match("https://example.com/video/42")
	require.True(t, ok)
	assert.Equal(t, "Narrow", got.Name())

	got, ok = r.Match("https://example.com/other")
	require.True(t, ok)
	assert.Equal(t, "Wide", got.Name())

	_, ok = r.Match("https://elsewhere.org")
	assert.False(t, ok)
}

func TestRegistry_Has(t *testing.T) {
	r := extractor.NewRegistry()
	require.True(t, r.Register(fakeExtractor{name: "Alpha"}))

	assert.True(t, r.Has("Alpha"))
	assert.False(t, r.Has("Beta"))
}

func TestDefaultRegistry_SeedsGeneric(t *testing.T) {
	r := extractor.DefaultRegistry()

	got, ok := r.Lookup("Generic")
	require.True(t, ok)
	assert.Equal(t, "Generic", got.Name())
}
