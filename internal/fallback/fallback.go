package fallback

import (
	"math/rand/v2"
)

// TableVersion identifies the canned-response table revision, so product can
// tell which copy deck a degraded response came from.
const TableVersion = "2026-08"

// Feature names the gateway resolves fallbacks for.
const (
	FeatureLevelFeedback  = "level_feedback"
	FeatureOnboarding     = "onboarding_personalization"
	FeatureBattle         = "battle_commentary"
	FeatureForumModerator = "forum_moderation"
)

// Resolver serves pre-written responses when a live generation cannot be
// obtained. Every feature resolves to something usable: unknown features and
// categories fall through to generic copy, never to an empty string.
type Resolver struct {
	tables  map[string]map[string][]string
	generic []string
	intN    func(n int) int
}

// NewResolver creates a Resolver over the built-in table.
func NewResolver() *Resolver {
	return &Resolver{
		tables:  tables,
		generic: generic,
		intN:    rand.IntN,
	}
}

// Resolve returns a canned response for (feature, category). Selection among
// candidates is uniform-random. Lookup order: exact category, the feature's
// "default" category, then the feature-agnostic generic set.
func (r *Resolver) Resolve(feature, category string) string {
	if byCategory, ok := r.tables[feature]; ok {
		if candidates, ok := byCategory[category]; ok && len(candidates) > 0 {
			return candidates[r.intN(len(candidates))]
		}
		if candidates, ok := byCategory["default"]; ok && len(candidates) > 0 {
			return candidates[r.intN(len(candidates))]
		}
	}
	return r.generic[r.intN(len(r.generic))]
}

// Has reports whether an exact (feature, category) entry exists.
func (r *Resolver) Has(feature, category string) bool {
	byCategory, ok := r.tables[feature]
	if !ok {
		return false
	}
	candidates, ok := byCategory[category]
	return ok && len(candidates) > 0
}

var generic = []string{
	"Keep going — every hour you hold the line is progress your brain remembers.",
	"You showed up today, and that counts. Small steps stack into streaks.",
	"Progress isn't always visible. Stay with your plan and check back soon.",
}

var tables = map[string]map[string][]string{
	FeatureLevelFeedback: {
		"stress": {
			"Stress cravings peak and pass in about 15 minutes. Try the breathing drill you unlocked at level 2 and log how you feel after.",
			"Your body is asking for relief, not the habit. A brisk walk or a cold glass of water gives it relief without the relapse.",
			"Tough day? That's exactly when your streak matters most. Park the urge for 10 minutes and it usually loses its grip.",
		},
		"boredom": {
			"Boredom is the sneakiest trigger. Open your quest list — knocking out one small task starves the craving of attention.",
			"An idle moment doesn't need filling with the old habit. Two minutes of anything active resets the loop.",
		},
		"social": {
			"Being around old triggers is hard mode. Have your exit line ready, and remember your crew on the forum has your back.",
			"You don't owe anyone a relapse. 'Not tonight' is a complete sentence — and tomorrow you'll be glad you used it.",
		},
		"habit": {
			"Routine cravings fade fastest when you swap the ritual, not just resist it. What's your replacement move for this time of day?",
			"Same time, same place, same urge — that's conditioning, not need. Break one link in the chain and the rest weakens.",
		},
		"default": {
			"Cravings are waves: they build, crest, and break. Ride this one out and your next level is waiting.",
			"Whatever triggered this, it will pass. Log the craving — naming it is half of beating it.",
		},
	},
	FeatureOnboarding: {
		"default": {
			"Welcome to your recovery quest. Your first goal is simple: make it through today, log how it felt, and collect your first badge tonight.",
			"You've taken the hardest step already by starting. Day one is about noticing your triggers, not fighting them all at once.",
		},
	},
	FeatureBattle: {
		"victory": {
			"Clean sweep! Your streak discipline carried that battle — your opponent never stood a chance.",
			"Victory! Consistency beats intensity every time, and you just proved it.",
		},
		"defeat": {
			"Lost the battle, not the war. Your streak is intact, and that's the score that actually matters.",
			"Close one. Review your trigger log, tighten your routine, and queue up a rematch.",
		},
		"default": {
			"Battle on! Every clean day is a point on the board.",
		},
	},
	FeatureForumModerator: {
		"default": {
			"Thanks for sharing with the community. A moderator will take a closer look shortly.",
		},
	},
}
