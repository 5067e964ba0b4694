package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmgw/llmgateway/internal/canon"
)

func sampleBindings() []Binding {
	return []Binding{
		{Slug: "openai-primary", Family: canon.FamilyOpenAI, Models: []string{"gpt-4o", "gpt-4o-mini"}},
		{Slug: "anthropic-primary", Family: canon.FamilyAnthropic, Models: []string{"claude-3-5-sonnet", "claude-3-haiku"}},
		{Slug: "bedrock-fallback", Family: canon.FamilyBedrock, Models: []string{"acme/*"}},
		{Slug: "catch-all", Family: canon.FamilyOpenAI, Models: []string{"*"}, Default: true},
	}
}

// TestResolve_ConfigOrderFirstMatch is §4.5/§8.1 law 6: resolution is
// deterministic — the first configuration-order binding whose Models list
// matches wins, independent of call order or goroutine.
func TestResolve_ConfigOrderFirstMatch(t *testing.T) {
	reg := New(sampleBindings())
	resolved, err := reg.Resolve("gpt-4o-mini", "")
	require.NoError(t, err)
	assert.Equal(t, "openai-primary", resolved.Binding.Slug)
	assert.Equal(t, "gpt-4o-mini", resolved.Model)
}

func TestResolve_WildcardPrefix(t *testing.T) {
	reg := New(sampleBindings())
	resolved, err := reg.Resolve("acme/custom-model", "")
	require.NoError(t, err)
	assert.Equal(t, "bedrock-fallback", resolved.Binding.Slug)
}

func TestResolve_ProviderHintTakesPriority(t *testing.T) {
	reg := New(sampleBindings())
	// Without a hint, "claude-3-5-sonnet" matches anthropic-primary in config
	// order anyway; force the hint to pick a binding that would NOT be the
	// first match: catch-all, which wildcards everything.
	resolved, err := reg.Resolve("claude-3-5-sonnet", "catch-all/claude-3-5-sonnet")
	require.NoError(t, err)
	assert.Equal(t, "catch-all", resolved.Binding.Slug)
}

func TestResolve_InvalidHintFallsThroughToConfigOrder(t *testing.T) {
	reg := New(sampleBindings())
	resolved, err := reg.Resolve("gpt-4o", "nonexistent-slug/gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "openai-primary", resolved.Binding.Slug)
}

func TestResolve_DefaultBindingUsedWhenNoModelMatches(t *testing.T) {
	bindings := []Binding{
		{Slug: "openai-primary", Family: canon.FamilyOpenAI, Models: []string{"gpt-4o"}},
		{Slug: "catch-all", Family: canon.FamilyOpenAI, Default: true},
	}
	reg := New(bindings)
	resolved, err := reg.Resolve("some-unlisted-model", "")
	require.NoError(t, err)
	assert.Equal(t, "catch-all", resolved.Binding.Slug)
}

func TestResolve_UnknownModelWithNoDefault(t *testing.T) {
	bindings := []Binding{{Slug: "openai-primary", Family: canon.FamilyOpenAI, Models: []string{"gpt-4o"}}}
	reg := New(bindings)
	_, err := reg.Resolve("unlisted", "")
	require.Error(t, err)
	gwErr, ok := err.(*canon.Error)
	require.True(t, ok)
	assert.Equal(t, canon.KindUnknownModel, gwErr.Kind)
}

func TestModels_ListsEveryBindingsModels(t *testing.T) {
	reg := New(sampleBindings())
	models := reg.Models()
	assert.Contains(t, models, "gpt-4o")
	assert.Contains(t, models, "claude-3-5-sonnet")
	assert.Contains(t, models, "acme/*")
}
