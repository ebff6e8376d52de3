// Package warmth computes and maintains the family warmth aggregates: a
// bounded [0,1] engagement score per post, per comment and per family scope.
package warmth

import "hearth/pkg/models"

// kindBase is the base contribution per reaction kind.
var kindBase = map[models.ReactionKind]float64{
	models.ReactionSupportive: 0.15,
	models.ReactionLove:       0.12,
	models.ReactionExcited:    0.10,
	models.ReactionProud:      0.09,
	models.ReactionHappy:      0.08,
	models.ReactionLaugh:      0.06,
}

// milestoneBonus is the multiplier applied when the reacted post marks a
// milestone. Kinds that celebrate get the full 1.5x.
var milestoneBonus = map[models.ReactionKind]float64{
	models.ReactionExcited:    1.5,
	models.ReactionProud:      1.5,
	models.ReactionLove:       1.4,
	models.ReactionHappy:      1.3,
	models.ReactionSupportive: 1.2,
	models.ReactionLaugh:      1.2,
}

const defaultBase = 0.05

// CommentContribution is the flat warmth a comment adds to its post.
const CommentContribution = 0.05

// Contribution returns the warmth a single reaction contributes to its
// target: kind base times intensity/2, times the kind's milestone bonus when
// milestone is set. The result is not clamped; clamping happens when the
// delta is applied to an aggregate.
func Contribution(kind models.ReactionKind, intensity int, milestone bool) float64 {
	base, ok := kindBase[kind]
	if !ok {
		base = defaultBase
	}
	v := base * float64(intensity) / 2.0
	if milestone {
		bonus, ok := milestoneBonus[kind]
		if !ok {
			bonus = 1.2
		}
		v *= bonus
	}
	return v
}

// Clamp bounds a score to [0,1].
func Clamp(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
