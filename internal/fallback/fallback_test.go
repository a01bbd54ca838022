package fallback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_KnownPairDrawsFromFixedSet(t *testing.T) {
	r := NewResolver()
	candidates := tables[FeatureLevelFeedback]["stress"]
	require.NotEmpty(t, candidates)

	for i := 0; i < 50; i++ {
		got := r.Resolve(FeatureLevelFeedback, "stress")
		assert.NotEmpty(t, got)
		assert.Contains(t, candidates, got)
	}
}

func TestResolve_AllCandidatesReachable(t *testing.T) {
	r := NewResolver()
	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		seen[r.Resolve(FeatureLevelFeedback, "stress")] = true
	}
	assert.Len(t, seen, len(tables[FeatureLevelFeedback]["stress"]))
}

func TestResolve_UnknownCategoryFallsToFeatureDefault(t *testing.T) {
	r := NewResolver()
	got := r.Resolve(FeatureLevelFeedback, "full_moon")
	assert.Contains(t, tables[FeatureLevelFeedback]["default"], got)
}

func TestResolve_UnknownFeatureFallsToGeneric(t *testing.T) {
	r := NewResolver()
	got := r.Resolve("tarot_reading", "whatever")
	assert.Contains(t, generic, got)
}

func TestResolve_NeverEmpty(t *testing.T) {
	r := NewResolver()
	for feature, byCategory := range tables {
		for category := range byCategory {
			assert.NotEmpty(t, r.Resolve(feature, category), "%s/%s", feature, category)
		}
	}
	assert.NotEmpty(t, r.Resolve("", ""))
}

func TestResolve_DeterministicWithPinnedRand(t *testing.T) {
	r := NewResolver()
	r.intN = func(int) int { return 0 }
	assert.Equal(t, tables[FeatureBattle]["victory"][0], r.Resolve(FeatureBattle, "victory"))
}

func TestHas(t *testing.T) {
	r := NewResolver()
	assert.True(t, r.Has(FeatureLevelFeedback, "stress"))
	assert.False(t, r.Has(FeatureLevelFeedback, "full_moon"))
	assert.False(t, r.Has("tarot_reading", "default"))
}

func TestTables_NoEmptyCandidates(t *testing.T) {
	for feature, byCategory := range tables {
		for category, candidates := range byCategory {
			require.NotEmpty(t, candidates, "%s/%s has no candidates", feature, category)
			for _, c := range candidates {
				assert.NotEmpty(t, c, "%s/%s has an empty candidate", feature, category)
			}
		}
	}
	require.NotEmpty(t, generic)
}
