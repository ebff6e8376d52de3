package warmth

import (
	"math"
	"testing"

	"hearth/pkg/models"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestContribution(t *testing.T) {
	cases := []struct {
		name      string
		kind      models.ReactionKind
		intensity int
		milestone bool
		want      float64
	}{
		{"love medium", models.ReactionLove, 2, false, 0.12},
		{"love light", models.ReactionLove, 1, false, 0.06},
		{"excited strong milestone", models.ReactionExcited, 3, true, 0.225},
		{"supportive strong", models.ReactionSupportive, 3, false, 0.225},
		{"laugh light", models.ReactionLaugh, 1, false, 0.03},
		{"happy medium milestone", models.ReactionHappy, 2, true, 0.104},
	}
	for _, tc := range cases {
		got := Contribution(tc.kind, tc.intensity, tc.milestone)
		if !almostEqual(got, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestContributionUnknownKindFallsBack(t *testing.T) {
	got := Contribution(models.ReactionKind("mystery"), 2, false)
	if !almostEqual(got, 0.05) {
		t.Fatalf("unknown kind: got %v want 0.05", got)
	}
}

func TestClamp(t *testing.T) {
	if Clamp(-0.3) != 0 {
		t.Fatalf("negative should clamp to 0")
	}
	if Clamp(1.7) != 1 {
		t.Fatalf("overflow should clamp to 1")
	}
	if Clamp(0.42) != 0.42 {
		t.Fatalf("in-range value must pass through")
	}
}
